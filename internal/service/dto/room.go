package dto

type CreateRoomRequest struct {
	RoomID string `json:"room_id"`
}

type CreateRoomResponse struct {
	RoomID    string `json:"room_id"`
	InviteURL string `json:"invite_url,omitempty"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	ActiveRooms *int   `json:"active_rooms,omitempty"`
}

// 管理面板看到的房间快照，包含机器人标记
type RoomSnapshot struct {
	ID           string        `json:"id"`
	Phase        string        `json:"phase"`
	PlayerCount  int           `json:"player_count"`
	MessageCount int           `json:"message_count"`
	Players      []AdminPlayer `json:"players"`
}

type AdminPlayer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Character string `json:"character"`
	IsBot     bool   `json:"is_bot"`
}
