package game

import (
	"context"
	"fmt"

	"turing-trap-be/internal/service/director"
	"turing-trap-be/internal/service/dto"

	"go.uber.org/zap"
)

type stageSwitch struct {
	onSwitch func(string)
}

func (s *stageSwitch) SetOnSwitch(onSwitch func(string)) {
	s.onSwitch = onSwitch
}

// 大厅阶段是整个房间最初始的阶段
type lobbyStageHandler struct {
	stageSwitch
}

func NewLobbyStageHandler() *lobbyStageHandler {
	return &lobbyStageHandler{}
}

func (lsh *lobbyStageHandler) Stage() string {
	return STAGE_LOBBY
}

func (lsh *lobbyStageHandler) OnEnter(ctx *GameContext) {
	ctx.GameStage = STAGE_LOBBY
}

func (lsh *lobbyStageHandler) OnHandle(ctx *GameContext, req RequestWrapper) error {
	if TryUnwrapStartGameRequest(req) != nil {
		if ctx.CountHumans() < 1 {
			return fmt.Errorf("%w: no players in room", ErrInvalidPhase)
		}

		lsh.onSwitch(STAGE_STARTING)
		return nil
	}

	return fmt.Errorf("%w: %s not accepted in lobby", ErrInvalidPhase, req.ReqType)
}

func (lsh *lobbyStageHandler) OnExit(ctx *GameContext) {
}

// 开局阶段：加入机器人席位并等待剧本生成
type startingStageHandler struct {
	stageSwitch
}

func NewStartingStageHandler() *startingStageHandler {
	return &startingStageHandler{}
}

func (ssh *startingStageHandler) Stage() string {
	return STAGE_STARTING
}

func (ssh *startingStageHandler) OnEnter(ctx *GameContext) {
	ctx.GameSeq++

	bot := ctx.addSyntheticSeat()

	ctx.StartSeats = append([]string(nil), ctx.JoinOrder...)

	// 先广播，客户端可以显示加载状态
	ctx.broadcastPhase()

	seq := ctx.GameSeq
	playerCount := len(ctx.StartSeats)
	gen := ctx.deps.Director
	runCtx := ctx.runCtx

	zap.L().Info(
		"开始生成剧本",
		zap.String("room_id", ctx.RoomID),
		zap.Int("game_seq", seq),
		zap.Int("player_count", playerCount),
		zap.String("ai_seat_id", bot.ID),
	)

	ctx.Go(func() {
		scenario := generateScenarioSafely(runCtx, gen, playerCount)

		ctx.Post(wrapEvent(EVT_SCENARIO_READY, &scenarioReadyEvent{
			Seq:      seq,
			Scenario: scenario,
		}))
	})
}

func (ssh *startingStageHandler) OnHandle(ctx *GameContext, req RequestWrapper) error {
	if ev := tryNative[scenarioReadyEvent](req, EVT_SCENARIO_READY); ev != nil {
		if ev.Seq != ctx.GameSeq {
			zap.L().Debug(
				"丢弃过期的剧本",
				zap.String("room_id", ctx.RoomID),
				zap.Int("event_seq", ev.Seq),
				zap.Int("game_seq", ctx.GameSeq),
			)
			return nil
		}

		dealScenario(ctx, ev.Scenario)
		ssh.onSwitch(STAGE_PLAYING)

		return nil
	}

	return fmt.Errorf("%w: %s not accepted while starting", ErrInvalidPhase, req.ReqType)
}

func (ssh *startingStageHandler) OnExit(ctx *GameContext) {
}

// generateScenarioSafely 保证生成服务的 panic 不会带走房间，出错时使用内置剧本
func generateScenarioSafely(ctx context.Context, gen Director, playerCount int) (scenario dto.Scenario) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error(
				"生成剧本时发生 panic，使用内置剧本",
				zap.Any("panic", r),
				zap.Error(ErrGeneration),
			)
			scenario = director.FallbackScenario()
		}
	}()

	if gen == nil {
		return director.FallbackScenario()
	}

	return gen.GenerateScenario(ctx, playerCount)
}

// dealScenario 分配角色、私发档案、广播名单
func dealScenario(ctx *GameContext, scenario dto.Scenario) {
	ctx.Scenario = &scenario

	seats := make([]Seat, 0, len(ctx.StartSeats))
	for _, id := range ctx.StartSeats {
		if p, ok := ctx.Players[id]; ok {
			seats = append(seats, Seat{ID: p.ID, Synthetic: p.IsBot})
		}
	}

	assignment, err := AssignRoles(scenario.Characters, seats)
	if err != nil {
		zap.L().Error(
			"角色分配不完整",
			zap.String("room_id", ctx.RoomID),
			zap.Int("characters", len(scenario.Characters)),
			zap.Int("seats", len(seats)),
			zap.Error(err),
		)
	}

	for id, character := range assignment {
		c := character
		ctx.Players[id].Character = &c
	}

	for _, p := range ctx.OrderedPlayers() {
		if p.IsBot {
			continue
		}

		ctx.UnicastResp(p.ID, WrapResponse(RESP_GAME_STARTED, ctx.dossierFor(p)))

		if p.Character == nil {
			ctx.UnicastResp(p.ID, WrapErrResponse(noCharacterNotice(ctx, p)))
		}
	}

	ctx.broadcastRoster()

	zap.L().Info(
		"剧本与角色已分发",
		zap.String("room_id", ctx.RoomID),
		zap.Int("game_seq", ctx.GameSeq),
		zap.Int("assigned", len(assignment)),
	)
}

func noCharacterNotice(ctx *GameContext, p *Player) string {
	for _, id := range ctx.StartSeats {
		if id == p.ID {
			return "This scenario has no character left for you (more players than characters). You can still chat and vote as Unassigned."
		}
	}

	return "A game is already in progress. You will receive a character when the next game starts."
}

// 进行阶段：聊天与投票
type playingStageHandler struct {
	stageSwitch
}

func NewPlayingStageHandler() *playingStageHandler {
	return &playingStageHandler{}
}

func (psh *playingStageHandler) Stage() string {
	return STAGE_PLAYING
}

func (psh *playingStageHandler) OnEnter(ctx *GameContext) {
	ctx.broadcastPhase()
}

func (psh *playingStageHandler) OnHandle(ctx *GameContext, req RequestWrapper) error {
	if sreq := TryUnwrapSendMessageRequest(req); sreq != nil {
		return handleSendMessage(ctx, req.PlayerID, sreq)
	}

	if vreq := TryUnwrapVoteRequest(req); vreq != nil {
		outcome, err := handleVote(ctx, req.PlayerID, vreq)
		if err != nil {
			return err
		}

		if outcome != nil {
			ctx.Outcome = outcome
			psh.onSwitch(STAGE_ENDED)
		}

		return nil
	}

	return fmt.Errorf("%w: %s not accepted while playing", ErrInvalidPhase, req.ReqType)
}

func (psh *playingStageHandler) OnExit(ctx *GameContext) {
}

// 结束阶段：公布结果，允许再开一局
type endedStageHandler struct {
	stageSwitch
}

func NewEndedStageHandler() *endedStageHandler {
	return &endedStageHandler{}
}

func (esh *endedStageHandler) Stage() string {
	return STAGE_ENDED
}

func (esh *endedStageHandler) OnEnter(ctx *GameContext) {
	if ctx.Outcome != nil {
		ctx.BroadcastResp(WrapResponse(RESP_GAME_OVER, *ctx.Outcome))

		zap.L().Info(
			"游戏结束",
			zap.String("room_id", ctx.RoomID),
			zap.Int("game_seq", ctx.GameSeq),
			zap.String("winner", ctx.Outcome.Winner),
		)
	}

	ctx.broadcastPhase()
}

func (esh *endedStageHandler) OnHandle(ctx *GameContext, req RequestWrapper) error {
	if TryUnwrapStartGameRequest(req) != nil {
		if ctx.CountHumans() < 1 {
			return fmt.Errorf("%w: no players in room", ErrInvalidPhase)
		}

		ctx.resetForRestart()
		esh.onSwitch(STAGE_STARTING)

		return nil
	}

	return fmt.Errorf("%w: %s not accepted after game over", ErrInvalidPhase, req.ReqType)
}

func (esh *endedStageHandler) OnExit(ctx *GameContext) {
}
