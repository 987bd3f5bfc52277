package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"turing-trap-be/internal/service/game"
	"turing-trap-be/internal/state"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// 连接断开后通知房间的等待上限
const LEAVE_TIMEOUT = 3 * time.Second

func JoinGame(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		conn, err := upgrader.Upgrade(
			ctx.ResponseWriter(),
			ctx.Request(),
			nil,
		)
		if err != nil {
			zap.L().Error("升级到WebSocket失败", zap.Error(err))
			ctx.StatusCode(iris.StatusBadRequest)
			return
		}

		defer conn.Close()

		clientIP := ctx.RemoteAddr()

		conn.SetReadLimit(MAX_FRAME_BYTES)
		conn.SetReadDeadline(time.Now().Add(HEARTBEAT_TIMEOUT))
		conn.SetPongHandler(heartbeatHandler(conn))

		// 读取首次请求，必须是 JoinRoom
		_, msg, err := conn.ReadMessage()
		if err != nil {
			zap.L().Error(
				"读取首次请求失败",
				zap.String("client_ip", clientIP),
				zap.Error(err),
			)
			return
		}

		var wrapper game.RequestWrapper

		if err := json.Unmarshal(msg, &wrapper); err != nil {
			zap.L().Warn(
				"解析首次请求失败",
				zap.String("client_ip", clientIP),
				zap.Error(err),
			)
			writeDirect(conn, game.WrapErrResponse("Malformed request"))
			return
		}

		joinReq := game.TryUnwrapJoinRoomRequest(wrapper)
		if joinReq == nil {
			zap.L().Warn(
				"首次请求不是JoinRoom类型",
				zap.String("client_ip", clientIP),
				zap.String("request_type", wrapper.ReqType),
			)
			writeDirect(conn, game.WrapErrResponse("First message must be JoinRoom"))
			return
		}

		// 玩家 ID 由服务端按连接分配
		playerID := game.GenID()

		respCh := make(chan game.ResponseWrapper, RESP_BUFFER_SIZE)
		joinReq.RespCh = respCh

		gm, err := appState.RoomSvc.JoinRoom(ctx.Request().Context(), playerID, joinReq)
		if err != nil {
			zap.L().Warn(
				"加入房间失败",
				zap.String("client_ip", clientIP),
				zap.String("room_id", joinReq.RoomID),
				zap.Error(err),
			)
			writeDirect(conn, game.WrapErrResponse(err.Error()))
			return
		}

		zap.L().Info(
			"玩家请求加入房间",
			zap.String("client_ip", clientIP),
			zap.String("player_id", playerID),
			zap.String("room_id", gm.RoomID()),
		)

		// 传输层自身的错误走单独的通道，respCh 只由房间关闭
		localCh := make(chan game.ResponseWrapper, LOCAL_BUFFER_SIZE)

		// 写协程的退出信号
		writeDoneCh := make(chan struct{})
		writerExitCh := make(chan struct{})

		go func() {
			defer close(writerExitCh)
			writeLoop(conn, clientIP, gm, respCh, localCh, writeDoneCh)
		}()

		cfg := appState.Cfg
		limiter := rate.NewLimiter(rate.Limit(cfg.InboundRate), cfg.InboundBurst)

		// 读取协程（主协程）
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(
					err,
					websocket.CloseGoingAway,
					websocket.CloseNormalClosure,
					websocket.CloseAbnormalClosure,
				) {
					zap.L().Warn(
						"读取消息失败",
						zap.String("client_ip", clientIP),
						zap.Error(err),
					)
				}

				break
			}

			if !limiter.Allow() {
				sendLocal(localCh, game.WrapErrResponse("Too many messages, slow down"))
				continue
			}

			var wrapper game.RequestWrapper

			if err := json.Unmarshal(msg, &wrapper); err != nil {
				zap.L().Debug(
					"解析消息失败",
					zap.String("client_ip", clientIP),
					zap.Error(err),
				)
				sendLocal(localCh, game.WrapErrResponse("Malformed request"))
				continue
			}

			// 内部请求类型不允许由客户端发送
			if !game.IsClientRequest(wrapper.ReqType) {
				sendLocal(localCh, game.WrapErrResponse("Unsupported request type: "+wrapper.ReqType))
				continue
			}

			wrapper.PlayerID = playerID

			if err := gm.TrySubmit(wrapper); err != nil {
				if errors.Is(err, game.ErrRoomClosed) {
					break
				}

				zap.L().Warn(
					"发送请求到游戏状态机失败",
					zap.String("player_id", playerID),
					zap.Error(err),
				)
				sendLocal(localCh, game.WrapErrResponse("Room is busy, try again later"))
			}
		}

		close(writeDoneCh)
		<-writerExitCh

		// 读循环退出，表示客户端断开连接，通知房间清理玩家
		leaveCtx, cancel := context.WithTimeout(context.Background(), LEAVE_TIMEOUT)
		defer cancel()

		leaveReq := game.RequestWrapper{
			ReqType:    game.REQ_LEAVE_ROOM,
			PlayerID:   playerID,
			NativeData: &game.LeaveRoomRequest{},
		}

		if err := gm.Submit(leaveCtx, leaveReq); err != nil && !errors.Is(err, game.ErrRoomClosed) {
			zap.L().Warn(
				"发送退出请求失败",
				zap.String("player_id", playerID),
				zap.Error(err),
			)
		}

		zap.L().Info(
			"WebSocket连接处理完成",
			zap.String("client_ip", clientIP),
			zap.String("player_id", playerID),
		)
	}
}

func writeLoop(
	conn *websocket.Conn,
	clientIP string,
	gm *game.GameMachine,
	respCh <-chan game.ResponseWrapper,
	localCh <-chan game.ResponseWrapper,
	writeDoneCh <-chan struct{},
) {
	ticker := time.NewTicker(HEARTBEAT_INTERVAL)
	defer ticker.Stop()

	for {
		select {
		case <-writeDoneCh:
			return

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				zap.L().Warn(
					"发送心跳失败",
					zap.String("client_ip", clientIP),
					zap.Error(err),
				)
				conn.Close()
				return
			}

		case resp := <-localCh:
			if !writeResp(conn, clientIP, resp) {
				return
			}

		case resp, ok := <-respCh:
			// 房间关闭了通道：玩家被移出、被拒绝加入或房间已关闭
			if !ok {
				zap.L().Info(
					"响应通道已关闭，断开连接",
					zap.String("client_ip", clientIP),
				)
				closeConn(conn)
				return
			}

			if !writeResp(conn, clientIP, resp) {
				return
			}

		case <-gm.Done():
			// 房间已停止，先把已缓冲的消息发完
			flushResp(conn, clientIP, respCh)
			closeConn(conn)
			return
		}
	}
}

func writeResp(conn *websocket.Conn, clientIP string, resp game.ResponseWrapper) bool {
	conn.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT))

	if err := conn.WriteJSON(resp); err != nil {
		zap.L().Warn(
			"发送消息失败",
			zap.String("client_ip", clientIP),
			zap.Error(err),
		)
		conn.Close()
		return false
	}

	return true
}

func flushResp(conn *websocket.Conn, clientIP string, respCh <-chan game.ResponseWrapper) {
	for {
		select {
		case resp, ok := <-respCh:
			if !ok || !writeResp(conn, clientIP, resp) {
				return
			}
		default:
			return
		}
	}
}

// writeDirect 只在写协程启动之前使用
func writeDirect(conn *websocket.Conn, resp game.ResponseWrapper) {
	conn.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT))
	if err := conn.WriteJSON(resp); err != nil {
		zap.L().Debug("发送消息失败", zap.Error(err))
		return
	}

	closeConn(conn)
}

// closeConn 发送关闭帧并关闭底层连接，读循环随之退出
func closeConn(conn *websocket.Conn) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	conn.Close()
}

func sendLocal(localCh chan<- game.ResponseWrapper, resp game.ResponseWrapper) {
	select {
	case localCh <- resp:
	default:
	}
}
