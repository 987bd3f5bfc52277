package game

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

const MAX_NAME_RUNES = 24

// handleCommon 处理任何阶段都允许的请求与异步事件，返回是否已处理
func handleCommon(ctx *GameContext, req RequestWrapper) (bool, error) {
	switch req.ReqType {
	case REQ_JOIN_ROOM:
		jreq := TryUnwrapJoinRoomRequest(req)
		if jreq == nil {
			return true, fmt.Errorf("%w: malformed join request", ErrInvalidRequest)
		}
		onPlayerJoin(ctx, req.PlayerID, jreq)
		return true, nil

	case REQ_LEAVE_ROOM:
		if TryUnwrapLeaveRoomRequest(req) != nil {
			onPlayerLeave(ctx, req.PlayerID)
		}
		return true, nil

	case REQ_CURRENT_STATE:
		return true, sendCurrentState(ctx, req.PlayerID)

	case REQ_CLOSE_SERVER:
		return true, onCloseServer(ctx, req.PlayerID)

	case REQ_KICK_PLAYER:
		if kreq := TryUnwrapKickPlayerRequest(req); kreq != nil {
			err := onKickPlayer(ctx, kreq.TargetID)
			if kreq.Reply != nil {
				kreq.Reply <- err
			}
		}
		return true, nil

	case REQ_CLOSE_ROOM:
		if creq := TryUnwrapCloseRoomRequest(req); creq != nil {
			shutdownRoom(ctx, creq.Reason)
		}
		return true, nil

	case REQ_SNAPSHOT:
		if sreq := TryUnwrapSnapshotRequest(req); sreq != nil && sreq.Reply != nil {
			sreq.Reply <- ctx.Snapshot()
		}
		return true, nil

	case EVT_CHAT_DELIVER:
		if ev := tryNative[chatDeliverEvent](req, EVT_CHAT_DELIVER); ev != nil {
			onChatDeliver(ctx, ev)
		}
		return true, nil

	case EVT_AI_THINK_DONE:
		if ev := tryNative[aiThinkDoneEvent](req, EVT_AI_THINK_DONE); ev != nil {
			onAIThinkDone(ctx, ev)
		}
		return true, nil

	case EVT_AI_LINE_READY:
		if ev := tryNative[aiLineReadyEvent](req, EVT_AI_LINE_READY); ev != nil {
			onAILineReady(ctx, ev)
		}
		return true, nil

	case EVT_AI_DELIVER:
		if ev := tryNative[aiDeliverEvent](req, EVT_AI_DELIVER); ev != nil {
			onAIDeliver(ctx, ev)
		}
		return true, nil
	}

	return false, nil
}

// rejectJoin 在玩家尚未进入房间时直接通过其响应通道回复并关闭通道
func rejectJoin(ctx *GameContext, jreq *JoinRoomRequest, err error) {
	zap.L().Info(
		"拒绝加入房间",
		zap.String("room_id", ctx.RoomID),
		zap.String("player_name", jreq.Name),
		zap.Error(err),
	)

	if jreq.RespCh == nil {
		return
	}

	select {
	case jreq.RespCh <- WrapErrResponse(err.Error()):
	default:
	}

	close(jreq.RespCh)
}

func onPlayerJoin(ctx *GameContext, playerID string, jreq *JoinRoomRequest) {
	name := strings.TrimSpace(jreq.Name)

	switch {
	case playerID == "":
		rejectJoin(ctx, jreq, fmt.Errorf("%w: missing connection id", ErrInvalidRequest))
		return
	case name == "" || utf8.RuneCountInString(name) > MAX_NAME_RUNES:
		rejectJoin(ctx, jreq, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidRequest, MAX_NAME_RUNES))
		return
	}

	if _, exists := ctx.Players[playerID]; exists {
		rejectJoin(ctx, jreq, fmt.Errorf("player %s: %w", playerID, ErrAlreadyExists))
		return
	}

	player := &Player{
		ID:       playerID,
		Name:     name,
		JoinedAt: ctx.Now(),
		RespCh:   jreq.RespCh,
	}

	ctx.AddPlayer(player)

	ctx.UnicastResp(player.ID, WrapResponse(
		RESP_JOINED,
		JoinedResponse{PlayerID: player.ID, RoomID: ctx.RoomID},
	))
	ctx.UnicastResp(player.ID, WrapResponse(
		RESP_PHASE_CHANGED,
		PhaseChangedResponse{Phase: ctx.GameStage},
	))

	ctx.broadcastRoster()

	// 对局进行中加入（重连）时补发完整快照
	if ctx.GameStage == STAGE_PLAYING {
		sendGameSnapshot(ctx, player)
	}

	zap.L().Info(
		"玩家加入房间",
		zap.String("room_id", ctx.RoomID),
		zap.String("player_id", player.ID),
		zap.String("player_name", player.Name),
		zap.String("stage", ctx.GameStage),
	)
}

func sendGameSnapshot(ctx *GameContext, p *Player) {
	ctx.UnicastResp(p.ID, WrapResponse(RESP_GAME_STARTED, ctx.dossierFor(p)))

	if p.Character == nil {
		ctx.UnicastResp(p.ID, WrapErrResponse(noCharacterNotice(ctx, p)))
	}

	for _, msg := range ctx.Transcript {
		ctx.UnicastResp(p.ID, WrapResponse(RESP_MESSAGE_RECEIVED, msg))
	}
}

func sendCurrentState(ctx *GameContext, playerID string) error {
	player, ok := ctx.Players[playerID]
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}

	ctx.UnicastResp(playerID, WrapResponse(
		RESP_PHASE_CHANGED,
		PhaseChangedResponse{Phase: ctx.GameStage},
	))
	ctx.UnicastResp(playerID, WrapResponse(
		RESP_ROSTER_UPDATE,
		RosterUpdateResponse{Players: ctx.PublicRoster()},
	))

	if ctx.GameStage == STAGE_PLAYING {
		sendGameSnapshot(ctx, player)
	}

	return nil
}

func onPlayerLeave(ctx *GameContext, playerID string) {
	player := ctx.RemovePlayer(playerID)
	if player == nil {
		zap.L().Debug(
			"玩家不存在，无法退出",
			zap.String("room_id", ctx.RoomID),
			zap.String("player_id", playerID),
		)
		return
	}

	ctx.evict(player)

	zap.L().Info(
		"玩家离开房间",
		zap.String("room_id", ctx.RoomID),
		zap.String("player_id", player.ID),
		zap.String("player_name", player.Name),
	)

	if ctx.CountHumans() == 0 {
		zap.L().Info("最后一名真人玩家离开，释放房间", zap.String("room_id", ctx.RoomID))
		ctx.Closed = true
		ctx.release()
		return
	}

	ctx.broadcastRoster()
}

func onCloseServer(ctx *GameContext, requesterID string) error {
	host := ctx.GetHost()
	if host == nil || host.ID != requesterID {
		return fmt.Errorf("%w: only the host can close the room", ErrInvalidRequest)
	}

	shutdownRoom(ctx, "Server closed by host.")

	return nil
}

func onKickPlayer(ctx *GameContext, targetID string) error {
	player, ok := ctx.Players[targetID]
	if !ok {
		return fmt.Errorf("player %s: %w", targetID, ErrNotFound)
	}

	if player.IsBot {
		return fmt.Errorf("%w: the synthetic seat cannot be kicked", ErrInvalidRequest)
	}

	ctx.UnicastResp(targetID, WrapErrResponse("You have been kicked by an administrator."))

	zap.L().Info(
		"玩家被管理员踢出",
		zap.String("room_id", ctx.RoomID),
		zap.String("player_id", targetID),
	)

	onPlayerLeave(ctx, targetID)

	return nil
}

// shutdownRoom 先广播原因，再断开所有连接并释放房间
func shutdownRoom(ctx *GameContext, reason string) {
	ctx.BroadcastResp(WrapErrResponse(reason))

	for _, p := range ctx.Players {
		ctx.evict(p)
	}

	ctx.Players = make(map[string]*Player)
	ctx.JoinOrder = nil
	ctx.AISeatID = ""
	ctx.Closed = true

	zap.L().Info(
		"房间已关闭",
		zap.String("room_id", ctx.RoomID),
		zap.String("reason", reason),
	)

	ctx.release()
}
