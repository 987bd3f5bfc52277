package game

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"turing-trap-be/internal/service/dto"

	"go.uber.org/zap"
)

// 房间的生命周期分为 4 个阶段：
// 1. 大厅（LOBBY）：玩家加入房间，等待任意玩家开始游戏
// 2. 开局中（STARTING）：加入机器人席位，等待剧本生成
// 3. 进行中（PLAYING）：聊天、投票，机器人伺机发言
// 4. 已结束（ENDED）：公布结果，任意玩家可以再开一局（直接回到 STARTING）
const (
	STAGE_LOBBY    = "LOBBY"
	STAGE_STARTING = "STARTING"
	STAGE_PLAYING  = "PLAYING"
	STAGE_ENDED    = "ENDED"
)

type StageHandler interface {
	Stage() string

	OnEnter(ctx *GameContext)
	OnHandle(ctx *GameContext, req RequestWrapper) error
	OnExit(ctx *GameContext)

	SetOnSwitch(func(nextStage string))
}

// GameMachine 是房间状态机，负责管理房间状态和事件循环
type GameMachine struct {
	ctx     *GameContext
	handler StageHandler
	// 这是所有的用户的请求汇总的通道
	reqCh chan RequestWrapper
	// 结束通道，用于通知状态机退出事件循环
	doneCh   chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc

	// 供注册表在事件循环之外读取
	humans atomic.Int32

	createdAt time.Time
}

func NewGameMachine(roomID string, deps Deps) *GameMachine {
	if deps.Scheduler == nil {
		deps.Scheduler = NewTimerScheduler()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})

	ctx := &GameContext{
		RoomID:     roomID,
		GameStage:  STAGE_LOBBY,
		Players:    make(map[string]*Player),
		JoinOrder:  make([]string, 0),
		Transcript: make([]dto.ChatMessage, 0),
		deps:       deps,
		events:     make(chan RequestWrapper, 64),
		done:       doneCh,
		runCtx:     runCtx,
	}

	gm := &GameMachine{
		ctx:       ctx,
		handler:   NewLobbyStageHandler(),
		reqCh:     make(chan RequestWrapper, 64),
		doneCh:    doneCh,
		cancel:    cancel,
		createdAt: ctx.Now(),
	}

	ctx.release = func() {
		if deps.Releaser != nil {
			deps.Releaser.Release(roomID, gm)
		}
		gm.Stop()
	}

	gm.handler.SetOnSwitch(gm.onSwitch)

	return gm
}

func (gm *GameMachine) onSwitch(nextStage string) {
	gm.ctx.GameStage = nextStage
}

func (gm *GameMachine) RoomID() string {
	return gm.ctx.RoomID
}

// Submit 把请求送入事件循环，房间关闭或 ctx 结束时返回错误
func (gm *GameMachine) Submit(ctx context.Context, req RequestWrapper) error {
	select {
	case <-gm.doneCh:
		return ErrRoomClosed
	default:
	}

	select {
	case gm.reqCh <- req:
		return nil
	case <-gm.doneCh:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit 不阻塞，请求通道已满时返回 ErrRoomBusy
func (gm *GameMachine) TrySubmit(req RequestWrapper) error {
	select {
	case <-gm.doneCh:
		return ErrRoomClosed
	default:
	}

	select {
	case gm.reqCh <- req:
		return nil
	default:
		return ErrRoomBusy
	}
}

// Query 请求一份房间快照
func (gm *GameMachine) Query(ctx context.Context) (dto.RoomSnapshot, error) {
	reply := make(chan dto.RoomSnapshot, 1)

	req := RequestWrapper{
		ReqType:    REQ_SNAPSHOT,
		NativeData: &SnapshotRequest{Reply: reply},
	}

	if err := gm.Submit(ctx, req); err != nil {
		return dto.RoomSnapshot{}, err
	}

	select {
	case snap := <-reply:
		return snap, nil
	case <-gm.doneCh:
		return dto.RoomSnapshot{}, ErrRoomClosed
	case <-ctx.Done():
		return dto.RoomSnapshot{}, ctx.Err()
	}
}

func (gm *GameMachine) Start() {
	// 执行初始 handler 的 OnEnter
	gm.handler.OnEnter(gm.ctx)

	// 进入事件循环
	for {
		var req RequestWrapper

		select {
		case req = <-gm.reqCh:
			zap.L().Debug(
				"接收到客户端请求",
				zap.String("room_id", gm.ctx.RoomID),
				zap.String("request_type", req.ReqType),
			)
		case req = <-gm.ctx.events:
			zap.L().Debug(
				"接收到内部事件",
				zap.String("room_id", gm.ctx.RoomID),
				zap.String("event", req.ReqType),
			)
		case <-gm.doneCh:
			zap.L().Info(
				"游戏状态机已结束",
				zap.String("room_id", gm.ctx.RoomID),
			)
			return
		}

		gm.dispatch(req)
	}
}

func (gm *GameMachine) Stop() {
	gm.stopOnce.Do(func() {
		close(gm.doneCh)
		gm.cancel()
	})
}

func (gm *GameMachine) Done() <-chan struct{} {
	return gm.doneCh
}

func (gm *GameMachine) HumanCount() int {
	return int(gm.humans.Load())
}

func (gm *GameMachine) CreatedAt() time.Time {
	return gm.createdAt
}

// dispatch 处理一个请求或事件，并在阶段变化时完成切换
func (gm *GameMachine) dispatch(req RequestWrapper) {
	if gm.ctx.Closed {
		return
	}

	handled, err := handleCommon(gm.ctx, req)
	if !handled {
		err = gm.handler.OnHandle(gm.ctx, req)
	}

	if err != nil {
		zap.L().Debug(
			"处理请求失败",
			zap.String("room_id", gm.ctx.RoomID),
			zap.String("stage", gm.handler.Stage()),
			zap.String("request_type", req.ReqType),
			zap.Error(err),
		)

		surfaceError(gm.ctx, req.PlayerID, err)
	}

	// 检查状态是否发生变化，OnEnter 中可能再次切换
	for !gm.ctx.Closed && gm.ctx.GameStage != gm.handler.Stage() {
		gm.switchStage()
		gm.handler.OnEnter(gm.ctx)
	}

	gm.humans.Store(int32(gm.ctx.CountHumans()))
}

// drain 同步处理事件通道中所有已就绪的事件，返回处理的数量
func (gm *GameMachine) drain() int {
	n := 0
	for {
		select {
		case req := <-gm.ctx.events:
			gm.dispatch(req)
			n++
		default:
			return n
		}
	}
}

func (gm *GameMachine) switchStage() {
	// 执行当前 handler 的 OnExit
	gm.handler.OnExit(gm.ctx)

	// 根据新状态创建对应的 handler
	var newHandler StageHandler

	switch gm.ctx.GameStage {
	case STAGE_LOBBY:
		newHandler = NewLobbyStageHandler()
	case STAGE_STARTING:
		newHandler = NewStartingStageHandler()
	case STAGE_PLAYING:
		newHandler = NewPlayingStageHandler()
	case STAGE_ENDED:
		newHandler = NewEndedStageHandler()
	default:
		zap.L().Error(
			"未知的游戏阶段",
			zap.String("room_id", gm.ctx.RoomID),
			zap.String("stage", gm.ctx.GameStage),
		)
		gm.ctx.GameStage = gm.handler.Stage()
		return
	}

	newHandler.SetOnSwitch(gm.onSwitch)

	// 更新当前 handler
	gm.handler = newHandler
}

// surfaceError 按错误类型决定是否告知请求者
func surfaceError(ctx *GameContext, playerID string, err error) {
	if playerID == "" {
		return
	}

	if _, ok := ctx.Players[playerID]; !ok {
		return
	}

	var rateErr *RateLimitedError

	switch {
	case errors.As(err, &rateErr):
		ctx.UnicastResp(playerID, WrapErrResponseWithData(
			rateErr.Error(),
			RateLimitedNotice{RetryAfterMs: rateErr.RetryAfterMs()},
		))
	case errors.Is(err, ErrInvalidPhase):
		// 客户端是主要的防线，竞态下的阶段错误直接忽略
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrAlreadyExists):
		ctx.UnicastResp(playerID, WrapErrResponse(err.Error()))
	}
}
