package http

import (
	"turing-trap-be/internal/service/dto"
	"turing-trap-be/internal/state"

	"github.com/kataras/iris/v12"
)

func Health(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		active := appState.RoomSvc.RoomCount()

		ctx.JSON(dto.HealthResponse{
			Status:      "ok",
			Message:     "Turing Trap server running",
			ActiveRooms: &active,
		})
	}
}
