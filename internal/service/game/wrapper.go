package game

import (
	"encoding/json"

	"go.uber.org/zap"
)

// 客户端请求类型
const (
	REQ_JOIN_ROOM     = "JoinRoom"
	REQ_CURRENT_STATE = "RequestCurrentState"
	REQ_START_GAME    = "StartGame"
	REQ_SEND_MESSAGE  = "SendMessage"
	REQ_VOTE          = "Vote"
	REQ_CLOSE_SERVER  = "CloseServer"
)

// 服务端内部请求类型，客户端发送这些类型会在传输层被拒绝
const (
	REQ_LEAVE_ROOM  = "LeaveRoom"
	REQ_KICK_PLAYER = "KickPlayer"
	REQ_CLOSE_ROOM  = "CloseRoom"
	REQ_SNAPSHOT    = "Snapshot"

	EVT_SCENARIO_READY = "ScenarioReady"
	EVT_CHAT_DELIVER   = "ChatDeliver"
	EVT_AI_THINK_DONE  = "AIThinkDone"
	EVT_AI_LINE_READY  = "AILineReady"
	EVT_AI_DELIVER     = "AIDeliver"
)

type RequestWrapper struct {
	ReqType string          `json:"request_type"`
	Data    json.RawMessage `json:"data"`

	// 由服务端根据连接填写，客户端无法伪造
	PlayerID string `json:"-"`
	// 服务端内部构造的请求直接携带结构体，不经过 JSON
	NativeData any `json:"-"`
}

// IsClientRequest 判断该请求类型是否允许由客户端在加入房间后发送
func IsClientRequest(reqType string) bool {
	switch reqType {
	case REQ_CURRENT_STATE, REQ_START_GAME, REQ_SEND_MESSAGE, REQ_VOTE, REQ_CLOSE_SERVER:
		return true
	}

	return false
}

func unwrap[T any](wrapper RequestWrapper, reqType string) *T {
	if wrapper.ReqType != reqType {
		return nil
	}

	if native, ok := wrapper.NativeData.(*T); ok {
		return native
	}

	var req T

	// 没有负载的请求（例如 StartGame）
	if len(wrapper.Data) == 0 {
		return &req
	}

	if err := json.Unmarshal(wrapper.Data, &req); err != nil {
		zap.L().Error(
			"解析请求数据失败",
			zap.String("request_type", reqType),
			zap.Error(err),
		)
		return nil
	}

	return &req
}

func TryUnwrapJoinRoomRequest(wrapper RequestWrapper) *JoinRoomRequest {
	return unwrap[JoinRoomRequest](wrapper, REQ_JOIN_ROOM)
}

func TryUnwrapCurrentStateRequest(wrapper RequestWrapper) *RequestCurrentStateRequest {
	return unwrap[RequestCurrentStateRequest](wrapper, REQ_CURRENT_STATE)
}

func TryUnwrapStartGameRequest(wrapper RequestWrapper) *StartGameRequest {
	return unwrap[StartGameRequest](wrapper, REQ_START_GAME)
}

func TryUnwrapSendMessageRequest(wrapper RequestWrapper) *SendMessageRequest {
	return unwrap[SendMessageRequest](wrapper, REQ_SEND_MESSAGE)
}

func TryUnwrapVoteRequest(wrapper RequestWrapper) *VoteRequest {
	return unwrap[VoteRequest](wrapper, REQ_VOTE)
}

func TryUnwrapCloseServerRequest(wrapper RequestWrapper) *CloseServerRequest {
	return unwrap[CloseServerRequest](wrapper, REQ_CLOSE_SERVER)
}

func TryUnwrapLeaveRoomRequest(wrapper RequestWrapper) *LeaveRoomRequest {
	return tryNative[LeaveRoomRequest](wrapper, REQ_LEAVE_ROOM)
}

func TryUnwrapKickPlayerRequest(wrapper RequestWrapper) *KickPlayerRequest {
	return tryNative[KickPlayerRequest](wrapper, REQ_KICK_PLAYER)
}

func TryUnwrapCloseRoomRequest(wrapper RequestWrapper) *CloseRoomRequest {
	return tryNative[CloseRoomRequest](wrapper, REQ_CLOSE_ROOM)
}

func TryUnwrapSnapshotRequest(wrapper RequestWrapper) *SnapshotRequest {
	return tryNative[SnapshotRequest](wrapper, REQ_SNAPSHOT)
}

// 内部请求与事件只接受 NativeData，客户端无法通过 JSON 构造
func tryNative[T any](wrapper RequestWrapper, reqType string) *T {
	if wrapper.ReqType != reqType {
		return nil
	}

	native, _ := wrapper.NativeData.(*T)
	return native
}

func wrapEvent(evtType string, ev any) RequestWrapper {
	return RequestWrapper{
		ReqType:    evtType,
		NativeData: ev,
	}
}

// 响应类型
const (
	RESP_ERROR = "Error"

	RESP_JOINED           = "Joined"
	RESP_ROSTER_UPDATE    = "RosterUpdate"
	RESP_PHASE_CHANGED    = "PhaseChanged"
	RESP_GAME_STARTED     = "GameStarted"
	RESP_MESSAGE_RECEIVED = "MessageReceived"
	RESP_VOTE_CAST        = "VoteCast"
	RESP_GAME_OVER        = "GameOver"
)

type ResponseWrapper struct {
	RespType string `json:"response_type"`
	Data     any    `json:"data"`
	ErrMsg   string `json:"error_message,omitempty"`
}

func WrapResponse(respType string, data any) ResponseWrapper {
	return ResponseWrapper{
		RespType: respType,
		Data:     data,
	}
}

func WrapErrResponse(errMsg string) ResponseWrapper {
	return ResponseWrapper{
		RespType: RESP_ERROR,
		ErrMsg:   errMsg,
	}
}

func WrapErrResponseWithData(errMsg string, data any) ResponseWrapper {
	return ResponseWrapper{
		RespType: RESP_ERROR,
		Data:     data,
		ErrMsg:   errMsg,
	}
}
