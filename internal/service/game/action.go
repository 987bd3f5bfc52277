package game

import "turing-trap-be/internal/service/dto"

// 客户端 -> 服务端

type JoinRoomRequest struct {
	Name   string `json:"name"`
	RoomID string `json:"room_id"`
	Create bool   `json:"create"`

	RespCh chan ResponseWrapper `json:"-"`
}

type RequestCurrentStateRequest struct{}

type StartGameRequest struct{}

type SendMessageRequest struct {
	Text string `json:"text"`
}

type VoteRequest struct {
	TargetID string `json:"target_id"`
}

type CloseServerRequest struct{}

// 服务端内部请求，只能由传输层或注册表构造

type LeaveRoomRequest struct{}

type KickPlayerRequest struct {
	TargetID string
	Reply    chan error
}

type CloseRoomRequest struct {
	Reason string
}

type SnapshotRequest struct {
	Reply chan dto.RoomSnapshot
}

// 异步任务完成后回投到房间事件循环的事件，Seq 为发起时的对局序号

type scenarioReadyEvent struct {
	Seq      int
	Scenario dto.Scenario
}

type chatDeliverEvent struct {
	Seq     int
	Message dto.ChatMessage
}

type aiThinkDoneEvent struct {
	Seq int
}

type aiLineReadyEvent struct {
	Seq  int
	Text string
}

type aiDeliverEvent struct {
	Seq     int
	Message dto.ChatMessage
}

// 服务端 -> 客户端

type JoinedResponse struct {
	PlayerID string `json:"player_id"`
	RoomID   string `json:"room_id"`
}

type RosterUpdateResponse struct {
	Players []dto.Player `json:"players"`
}

type PhaseChangedResponse struct {
	Phase string `json:"phase"`
}

type VoteCastResponse struct {
	VoterRole  string `json:"voter_role"`
	TargetRole string `json:"target_role"`
}

const (
	WINNER_HUMANS = "HUMANS"
	WINNER_AI     = "AI"
)

type GameOverResponse struct {
	Message string `json:"message"`
	Winner  string `json:"winner"`
}

type RateLimitedNotice struct {
	RetryAfterMs int64 `json:"retry_after_ms"`
}
