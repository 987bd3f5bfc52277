package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"turing-trap-be/internal/config"
	"turing-trap-be/internal/service"
	"turing-trap-be/internal/service/director"
	"turing-trap-be/internal/service/dto"
	"turing-trap-be/internal/service/game"
	"turing-trap-be/internal/state"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminKey = "test-admin-key"

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Host:                  "127.0.0.1",
		Port:                  0,
		LogLevel:              "error",
		PublicURL:             "https://trap.example",
		AdminKey:              testAdminKey,
		OpenAIAPIKey:          director.MOCK_API_KEY,
		GenerationTimeoutMs:   1000,
		RateLimitMs:           10000,
		MinDelayMs:            10,
		MaxDelayMs:            20,
		ThinkMinMs:            10,
		ThinkMaxMs:            20,
		AIResponseProbability: 0,
		InboundRate:           100,
		InboundBurst:          100,
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *state.AppState) {
	t.Helper()

	cfg := testConfig()

	roomSvc := service.NewRoomService(game.Deps{
		Director: director.New(director.Options{APIKey: cfg.OpenAIAPIKey}),
		Clock:    time.Now,
		Tuning: game.Tuning{
			RateLimit:             cfg.RateLimit(),
			MinDelay:              cfg.MinDelay(),
			MaxDelay:              cfg.MaxDelay(),
			ThinkMin:              cfg.ThinkMin(),
			ThinkMax:              cfg.ThinkMax(),
			AIResponseProbability: cfg.AIResponseProbability,
		},
	})
	t.Cleanup(roomSvc.Close)

	appState := state.NewAppState(cfg, roomSvc)

	app := NewApp(appState)
	require.NoError(t, app.Build())

	srv := httptest.NewServer(app)
	t.Cleanup(srv.Close)

	return srv, appState
}

func doJSON(t *testing.T, method, url, body string, header map[string]string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func TestHealth(t *testing.T) {
	srv, appState := newTestServer(t)

	require.NoError(t, appState.RoomSvc.CreateRoom("lab"))

	for _, path := range []string{"/", "/health"} {
		resp, body := doJSON(t, http.MethodGet, srv.URL+path, "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var health dto.HealthResponse
		require.NoError(t, json.Unmarshal(body, &health))
		assert.Equal(t, "ok", health.Status)
		require.NotNil(t, health.ActiveRooms)
		assert.Equal(t, 1, *health.ActiveRooms)
	}
}

func TestCreateRoom(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/rooms", `{"room_id":" lab "}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created dto.CreateRoomResponse
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "lab", created.RoomID)
	assert.Equal(t, "https://trap.example/?room=lab", created.InviteURL)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/rooms", `{"room_id":"lab"}`, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/rooms", `{"room_id":"no spaces"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/rooms", `{"room_id":`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoomInvite(t *testing.T) {
	srv, appState := newTestServer(t)

	require.NoError(t, appState.RoomSvc.CreateRoom("lab"))

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/rooms/lab/invite.png", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "image/png"))
	assert.True(t, bytes.HasPrefix(body, []byte("\x89PNG")))

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/rooms/missing/invite.png", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdmin(t *testing.T) {
	srv, appState := newTestServer(t)

	require.NoError(t, appState.RoomSvc.CreateRoom("lab"))

	auth := map[string]string{ADMIN_KEY_HEADER: testAdminKey}

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/v1/admin/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/admin/rooms", "", map[string]string{ADMIN_KEY_HEADER: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/admin/rooms", "", auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snaps []dto.RoomSnapshot
	require.NoError(t, json.Unmarshal(body, &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, "lab", snaps[0].ID)
	assert.Equal(t, game.STAGE_LOBBY, snaps[0].Phase)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/admin/rooms/lab/players/nobody", "", auth)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/admin/rooms/lab", `{"reason":"bye"}`, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var action dto.AdminActionResponse
	require.NoError(t, json.Unmarshal(body, &action))
	assert.Equal(t, dto.AdminActionResponse{RoomID: "lab", Action: dto.ADMIN_ACTION_CLOSE_ROOM}, action)
	assert.Equal(t, 0, appState.RoomSvc.RoomCount())

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/admin/rooms/lab", "", auth)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// 客户端侧的帧结构，data 保留原始 JSON
type wireResponse struct {
	RespType string          `json:"response_type"`
	Data     json.RawMessage `json:"data"`
	ErrMsg   string          `json:"error_message"`
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, reqType string, data any) {
	t.Helper()

	frame := map[string]any{"request_type": reqType}
	if data != nil {
		frame["data"] = data
	}

	require.NoError(t, conn.WriteJSON(frame))
}

func readUntil(t *testing.T, conn *websocket.Conn, respType string) wireResponse {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	for {
		var resp wireResponse
		require.NoError(t, conn.ReadJSON(&resp), "waiting for %s", respType)

		if resp.RespType == respType {
			return resp
		}
	}
}

func joinRoom(t *testing.T, conn *websocket.Conn, name, roomID string, create bool) string {
	t.Helper()

	sendFrame(t, conn, game.REQ_JOIN_ROOM, game.JoinRoomRequest{Name: name, RoomID: roomID, Create: create})

	var joined game.JoinedResponse
	require.NoError(t, json.Unmarshal(readUntil(t, conn, game.RESP_JOINED).Data, &joined))
	assert.Equal(t, roomID, joined.RoomID)

	return joined.PlayerID
}

func TestWebSocket_FirstFrameMustBeJoin(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dial(t, srv)
	sendFrame(t, conn, game.REQ_START_GAME, nil)

	resp := readUntil(t, conn, game.RESP_ERROR)
	assert.Equal(t, "First message must be JoinRoom", resp.ErrMsg)

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocket_JoinMissingRoom(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dial(t, srv)
	sendFrame(t, conn, game.REQ_JOIN_ROOM, game.JoinRoomRequest{Name: "Alice", RoomID: "nowhere"})

	resp := readUntil(t, conn, game.RESP_ERROR)
	assert.Contains(t, resp.ErrMsg, "not found")
}

func TestWebSocket_CreateExistingRoom(t *testing.T) {
	srv, appState := newTestServer(t)

	alice := dial(t, srv)
	joinRoom(t, alice, "Alice", "lab", true)

	mallory := dial(t, srv)
	sendFrame(t, mallory, game.REQ_JOIN_ROOM, game.JoinRoomRequest{Name: "Mallory", RoomID: "lab", Create: true})

	resp := readUntil(t, mallory, game.RESP_ERROR)
	assert.Contains(t, resp.ErrMsg, "already exists")

	gm, err := appState.RoomSvc.GetRoom("lab")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return gm.HumanCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_GameFlow(t *testing.T) {
	srv, appState := newTestServer(t)

	alice := dial(t, srv)
	aliceID := joinRoom(t, alice, "Alice", "lab", true)

	bob := dial(t, srv)
	bobID := joinRoom(t, bob, "Bob", "lab", false)
	assert.NotEqual(t, aliceID, bobID)

	// 内部请求类型会被传输层拒绝
	sendFrame(t, bob, game.REQ_CLOSE_ROOM, map[string]string{"Reason": "spoofed"})
	assert.Contains(t, readUntil(t, bob, game.RESP_ERROR).ErrMsg, "Unsupported request type")

	sendFrame(t, alice, game.REQ_START_GAME, nil)

	for _, conn := range []*websocket.Conn{alice, bob} {
		var dossier dto.Dossier
		require.NoError(t, json.Unmarshal(readUntil(t, conn, game.RESP_GAME_STARTED).Data, &dossier))
		assert.Len(t, dossier.Players, 3)
		assert.NotEqual(t, game.UNASSIGNED_CHARACTER, dossier.Character)
	}

	sendFrame(t, alice, game.REQ_SEND_MESSAGE, game.SendMessageRequest{Text: "hello crew"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		var msg dto.ChatMessage
		require.NoError(t, json.Unmarshal(readUntil(t, conn, game.RESP_MESSAGE_RECEIVED).Data, &msg))
		assert.Equal(t, "hello crew", msg.Text)
		assert.Equal(t, "Commander", msg.SenderName)
	}

	sendFrame(t, alice, game.REQ_SEND_MESSAGE, game.SendMessageRequest{Text: "again"})

	limited := readUntil(t, alice, game.RESP_ERROR)
	assert.Contains(t, limited.ErrMsg, "Rate limit!")

	var notice game.RateLimitedNotice
	require.NoError(t, json.Unmarshal(limited.Data, &notice))
	assert.Positive(t, notice.RetryAfterMs)

	// 管理员踢出 bob
	resp, _ := doJSON(
		t,
		http.MethodDelete,
		srv.URL+"/api/v1/admin/rooms/lab/players/"+bobID,
		"",
		map[string]string{ADMIN_KEY_HEADER: appState.Cfg.AdminKey},
	)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	kicked := readUntil(t, bob, game.RESP_ERROR)
	assert.Equal(t, "You have been kicked by an administrator.", kicked.ErrMsg)

	var roster game.RosterUpdateResponse
	require.NoError(t, json.Unmarshal(readUntil(t, alice, game.RESP_ROSTER_UPDATE).Data, &roster))
	assert.Len(t, roster.Players, 2)

	// 房主关闭房间
	sendFrame(t, alice, game.REQ_CLOSE_SERVER, nil)
	assert.Equal(t, "Server closed by host.", readUntil(t, alice, game.RESP_ERROR).ErrMsg)

	assert.Eventually(t, func() bool {
		return appState.RoomSvc.RoomCount() == 0
	}, 3*time.Second, 20*time.Millisecond)
}
