package http

import (
	"fmt"

	"turing-trap-be/internal/api/http/websocket"
	"turing-trap-be/internal/state"

	"github.com/kataras/iris/v12"
)

func NewApp(appState *state.AppState) *iris.Application {
	app := iris.Default()

	if dir := appState.Cfg.StaticDir; dir != "" {
		app.HandleDir(
			"/",
			iris.Dir(dir),
			iris.DirOptions{
				IndexName: "index.html",
				SPA:       true,
				Compress:  true,
			},
		)
	} else {
		app.Get("/", Health(appState))
	}

	app.Get("/health", Health(appState))

	api := app.Party("/api/v1")

	api.Post("/rooms", CreateRoom(appState))
	api.Get("/rooms/{id}/invite.png", RoomInvite(appState))

	api.Get("/ws", websocket.JoinGame(appState))

	admin := api.Party("/admin", AdminGuard(appState))

	admin.Get("/rooms", ListRooms(appState))
	admin.Delete("/rooms/{id}", CloseRoom(appState))
	admin.Delete("/rooms/{id}/players/{pid}", KickPlayer(appState))

	return app
}

func RunServer(appState *state.AppState) error {
	app := NewApp(appState)

	addr := fmt.Sprintf(
		"%s:%d",
		appState.Cfg.Host,
		appState.Cfg.Port,
	)

	return app.Listen(addr)
}
