package game

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"turing-trap-be/internal/service/director"
	"turing-trap-be/internal/service/dto"

	"github.com/stretchr/testify/require"
)

// fakeScheduler 记录所有延迟与后台任务，由测试手动触发
type fakeScheduler struct {
	mu     sync.Mutex
	timers []fakeTimer
	tasks  []func()
}

type fakeTimer struct {
	d time.Duration
	f func()
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timers = append(s.timers, fakeTimer{d: d, f: f})
}

func (s *fakeScheduler) Go(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, f)
}

func (s *fakeScheduler) pendingTimers() []fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]fakeTimer(nil), s.timers...)
}

func (s *fakeScheduler) pendingTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tasks)
}

func (s *fakeScheduler) fireTimers() int {
	s.mu.Lock()
	timers := s.timers
	s.timers = nil
	s.mu.Unlock()

	for _, t := range timers {
		t.f()
	}

	return len(timers)
}

func (s *fakeScheduler) runTasks() int {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	for _, f := range tasks {
		f()
	}

	return len(tasks)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type stubDirector struct {
	scenario      *dto.Scenario
	line          string
	panicScenario bool
	panicDialogue bool

	scenarioCalls []int
	histories     [][]dto.ChatMessage
	personas      []dto.Character
}

func (d *stubDirector) GenerateScenario(ctx context.Context, playerCount int) dto.Scenario {
	d.scenarioCalls = append(d.scenarioCalls, playerCount)

	if d.panicScenario {
		panic("scenario backend exploded")
	}

	if d.scenario != nil {
		return *d.scenario
	}

	return director.FallbackScenario()
}

func (d *stubDirector) GenerateDialogue(ctx context.Context, transcript []dto.ChatMessage, persona dto.Character) string {
	d.histories = append(d.histories, transcript)
	d.personas = append(d.personas, persona)

	if d.panicDialogue {
		panic("dialogue backend exploded")
	}

	return d.line
}

type fakeReleaser struct {
	released []string
}

func (r *fakeReleaser) Release(roomID string, gm *GameMachine) {
	r.released = append(r.released, roomID)
}

// scenarioWith 生成 n 个角色的剧本，第二个角色是内鬼
func scenarioWith(n int) *dto.Scenario {
	sc := &dto.Scenario{
		IntroText: "A lighthouse cut off by a storm.",
		TrapFact:  "The Keeper cannot swim.",
	}

	for i := 0; i < n; i++ {
		sc.Characters = append(sc.Characters, dto.Character{
			Role:        fmt.Sprintf("Role%d", i+1),
			IsImpostor:  i == 1,
			JournalText: fmt.Sprintf("Journal of Role%d.", i+1),
		})
	}

	return sc
}

const testRoomID = "room-1"

type harness struct {
	t *testing.T

	gm       *GameMachine
	sched    *fakeScheduler
	clock    *fakeClock
	dir      *stubDirector
	releaser *fakeReleaser

	chans map[string]chan ResponseWrapper
}

func testTuning() Tuning {
	tuning := DefaultTuning()
	// 默认关闭机器人发言，需要的测试自行打开
	tuning.AIResponseProbability = 0

	return tuning
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, testTuning())
}

func newHarnessWith(t *testing.T, tuning Tuning) *harness {
	t.Helper()

	h := &harness{
		t:        t,
		sched:    &fakeScheduler{},
		clock:    &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		dir:      &stubDirector{line: "ok who touched the radio"},
		releaser: &fakeReleaser{},
		chans:    make(map[string]chan ResponseWrapper),
	}

	h.gm = NewGameMachine(testRoomID, Deps{
		Director:  h.dir,
		Scheduler: h.sched,
		Releaser:  h.releaser,
		Clock:     h.clock.Now,
		Tuning:    tuning,
	})

	t.Cleanup(h.gm.Stop)

	return h
}

func (h *harness) ctx() *GameContext {
	return h.gm.ctx
}

func (h *harness) join(name string) string {
	h.t.Helper()

	id := GenID()
	ch := make(chan ResponseWrapper, 256)
	h.chans[id] = ch

	h.gm.dispatch(RequestWrapper{
		ReqType:    REQ_JOIN_ROOM,
		PlayerID:   id,
		NativeData: &JoinRoomRequest{Name: name, RoomID: testRoomID, RespCh: ch},
	})

	return id
}

// send 模拟客户端发来的 JSON 请求
func (h *harness) send(playerID, reqType string, payload any) {
	req := RequestWrapper{
		ReqType:  reqType,
		PlayerID: playerID,
	}

	if payload != nil {
		req.Data = mustMarshal(payload)
	}

	h.gm.dispatch(req)
}

func (h *harness) chat(playerID, text string) {
	h.send(playerID, REQ_SEND_MESSAGE, SendMessageRequest{Text: text})
}

func (h *harness) vote(voterID, targetID string) {
	h.send(voterID, REQ_VOTE, VoteRequest{TargetID: targetID})
}

// fire 触发所有已到期的延迟并处理其投递的事件
func (h *harness) fire() int {
	n := h.sched.fireTimers()
	h.gm.drain()

	return n
}

// run 执行所有后台任务并处理其投递的事件
func (h *harness) run() int {
	n := h.sched.runTasks()
	h.gm.drain()

	return n
}

// settle 反复推进直到没有挂起的任务与延迟
func (h *harness) settle() {
	for i := 0; i < 100; i++ {
		if h.sched.runTasks()+h.sched.fireTimers()+h.gm.drain() == 0 {
			return
		}
	}

	h.t.Fatal("machine did not settle")
}

func (h *harness) startGame(hostID string) {
	h.t.Helper()

	h.send(hostID, REQ_START_GAME, nil)
	h.run()

	require.Equal(h.t, STAGE_PLAYING, h.ctx().GameStage)
}

// responses 取出该玩家目前收到的全部响应
func (h *harness) responses(playerID string) []ResponseWrapper {
	ch := h.chans[playerID]
	out := make([]ResponseWrapper, 0)

	for {
		select {
		case resp, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, resp)
		default:
			return out
		}
	}
}

// isClosed 要求通道中已经没有未读的响应
func (h *harness) isClosed(playerID string) bool {
	select {
	case _, ok := <-h.chans[playerID]:
		return !ok
	default:
		return false
	}
}

func (h *harness) flush(ids ...string) {
	for _, id := range ids {
		h.responses(id)
	}
}

func respTypes(resps []ResponseWrapper) []string {
	types := make([]string, 0, len(resps))
	for _, r := range resps {
		types = append(types, r.RespType)
	}

	return types
}

func findResp(resps []ResponseWrapper, respType string) (ResponseWrapper, bool) {
	for _, r := range resps {
		if r.RespType == respType {
			return r, true
		}
	}

	return ResponseWrapper{}, false
}

func findAll(resps []ResponseWrapper, respType string) []ResponseWrapper {
	out := make([]ResponseWrapper, 0)
	for _, r := range resps {
		if r.RespType == respType {
			out = append(out, r)
		}
	}

	return out
}

func phases(resps []ResponseWrapper) []string {
	out := make([]string, 0)
	for _, r := range findAll(resps, RESP_PHASE_CHANGED) {
		out = append(out, r.Data.(PhaseChangedResponse).Phase)
	}

	return out
}

func (h *harness) leave(playerID string) {
	h.gm.dispatch(RequestWrapper{
		ReqType:    REQ_LEAVE_ROOM,
		PlayerID:   playerID,
		NativeData: &LeaveRoomRequest{},
	})
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("Failed to marshal: " + err.Error())
	}

	return data
}
