package http

import (
	"net/url"
	"strings"

	"turing-trap-be/internal/service"
	"turing-trap-be/internal/service/dto"
	"turing-trap-be/internal/state"

	"github.com/kataras/iris/v12"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const INVITE_QR_SIZE = 256

func CreateRoom(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		var req dto.CreateRoomRequest

		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StatusCode(iris.StatusBadRequest)
			ctx.JSON(iris.Map{
				"error": "invalid request body",
			})
			return
		}

		roomID, err := service.NormalizeRoomID(req.RoomID)
		if err != nil {
			writeError(ctx, err)
			return
		}

		if err := appState.RoomSvc.CreateRoom(roomID); err != nil {
			writeError(ctx, err)
			return
		}

		ctx.StatusCode(iris.StatusCreated)
		ctx.JSON(dto.CreateRoomResponse{
			RoomID:    roomID,
			InviteURL: inviteURL(ctx, appState.Cfg.PublicURL, roomID),
		})
	}
}

// RoomInvite 返回加入房间链接的二维码
func RoomInvite(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		gm, err := appState.RoomSvc.GetRoom(ctx.Params().Get("id"))
		if err != nil {
			writeError(ctx, err)
			return
		}

		link := inviteURL(ctx, appState.Cfg.PublicURL, gm.RoomID())

		png, err := qrcode.Encode(link, qrcode.Medium, INVITE_QR_SIZE)
		if err != nil {
			zap.L().Error("生成邀请二维码失败", zap.String("room_id", gm.RoomID()), zap.Error(err))
			writeError(ctx, err)
			return
		}

		ctx.ContentType("image/png")
		ctx.Write(png)
	}
}

// 未配置 public_url 时使用请求自身的地址
func inviteURL(ctx iris.Context, publicURL, roomID string) string {
	base := strings.TrimRight(publicURL, "/")
	if base == "" {
		base = ctx.Scheme() + ctx.Host()
	}

	return base + "/?room=" + url.QueryEscape(roomID)
}
