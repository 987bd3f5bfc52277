package dto

// 管理员对房间的操作
type CloseRoomRequest struct {
	Reason string `json:"reason"`
}

type AdminActionResponse struct {
	RoomID   string `json:"room_id"`
	PlayerID string `json:"player_id,omitempty"`
	Action   string `json:"action"`
}

const (
	ADMIN_ACTION_CLOSE_ROOM  = "CloseRoom"
	ADMIN_ACTION_KICK_PLAYER = "KickPlayer"
)

const DEFAULT_ADMIN_CLOSE_REASON = "Room closed by administrator."
