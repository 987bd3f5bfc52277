package state

import (
	"turing-trap-be/internal/config"
	"turing-trap-be/internal/service"
)

type AppState struct {
	Cfg     *config.AppConfig
	RoomSvc *service.RoomService
}

func NewAppState(
	cfg *config.AppConfig,
	roomSvc *service.RoomService,
) *AppState {
	return &AppState{
		Cfg:     cfg,
		RoomSvc: roomSvc,
	}
}
