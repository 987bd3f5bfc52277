package http

import (
	"context"
	"errors"

	"turing-trap-be/internal/service/game"

	"github.com/kataras/iris/v12"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrNotFound):
		return iris.StatusNotFound
	case errors.Is(err, game.ErrAlreadyExists):
		return iris.StatusConflict
	case errors.Is(err, game.ErrInvalidRequest):
		return iris.StatusBadRequest
	case errors.Is(err, game.ErrRoomClosed):
		return iris.StatusGone
	case errors.Is(err, context.DeadlineExceeded):
		return iris.StatusGatewayTimeout
	default:
		return iris.StatusInternalServerError
	}
}

func writeError(ctx iris.Context, err error) {
	ctx.StatusCode(statusFor(err))
	ctx.JSON(iris.Map{
		"error": err.Error(),
	})
}
