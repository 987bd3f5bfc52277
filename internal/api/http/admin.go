package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"time"

	"turing-trap-be/internal/service/dto"
	"turing-trap-be/internal/state"

	"github.com/kataras/iris/v12"
	"go.uber.org/zap"
)

const (
	ADMIN_KEY_HEADER = "X-Admin-Key"

	// 等待房间协程响应的上限
	ADMIN_QUERY_TIMEOUT = 3 * time.Second
)

func AdminGuard(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		want := appState.Cfg.AdminKey
		got := ctx.GetHeader(ADMIN_KEY_HEADER)

		if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			zap.L().Warn("管理接口鉴权失败", zap.String("client_ip", ctx.RemoteAddr()))

			ctx.StatusCode(iris.StatusUnauthorized)
			ctx.JSON(iris.Map{
				"error": "unauthorized",
			})
			return
		}

		ctx.Next()
	}
}

func ListRooms(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		qctx, cancel := context.WithTimeout(ctx.Request().Context(), ADMIN_QUERY_TIMEOUT)
		defer cancel()

		ctx.JSON(appState.RoomSvc.Snapshots(qctx))
	}
}

func CloseRoom(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		roomID := ctx.Params().Get("id")

		var req dto.CloseRoomRequest

		// 请求体可选
		if body, err := ctx.GetBody(); err == nil && len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				ctx.StatusCode(iris.StatusBadRequest)
				ctx.JSON(iris.Map{
					"error": "invalid request body",
				})
				return
			}
		}

		qctx, cancel := context.WithTimeout(ctx.Request().Context(), ADMIN_QUERY_TIMEOUT)
		defer cancel()

		if err := appState.RoomSvc.CloseRoom(qctx, roomID, req.Reason); err != nil {
			writeError(ctx, err)
			return
		}

		ctx.JSON(dto.AdminActionResponse{
			RoomID: roomID,
			Action: dto.ADMIN_ACTION_CLOSE_ROOM,
		})
	}
}

func KickPlayer(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		roomID := ctx.Params().Get("id")
		playerID := ctx.Params().Get("pid")

		qctx, cancel := context.WithTimeout(ctx.Request().Context(), ADMIN_QUERY_TIMEOUT)
		defer cancel()

		if err := appState.RoomSvc.KickPlayer(qctx, roomID, playerID); err != nil {
			writeError(ctx, err)
			return
		}

		ctx.JSON(dto.AdminActionResponse{
			RoomID:   roomID,
			PlayerID: playerID,
			Action:   dto.ADMIN_ACTION_KICK_PLAYER,
		})
	}
}
