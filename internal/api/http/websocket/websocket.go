package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// NOTE: 暂时允许所有来源
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const (
	// 心跳间隔
	HEARTBEAT_INTERVAL = 30 * time.Second
	// 心跳超时时间
	HEARTBEAT_TIMEOUT = 45 * time.Second
	// 单次写入超时
	WRITE_TIMEOUT = 10 * time.Second

	// 单帧上限，聊天消息最长 280 个字符，留足余量
	MAX_FRAME_BYTES = 4096

	// 房间广播的缓冲，写协程跟不上时房间会丢弃消息而不是阻塞
	RESP_BUFFER_SIZE = 512
	// 传输层自身错误的缓冲
	LOCAL_BUFFER_SIZE = 16
)

var heartbeatHandler = func(conn *websocket.Conn) func(string) error {
	return func(string) error {
		return conn.SetReadDeadline(time.Now().Add(HEARTBEAT_TIMEOUT))
	}
}
