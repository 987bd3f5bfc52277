package service

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"turing-trap-be/internal/service/game"
)

const (
	MAX_ROOM_ID_LEN = 32

	// 无人房间的保留时长，超过后由清理协程回收
	EMPTY_ROOM_TTL = time.Minute
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// NormalizeRoomID 去掉首尾空白并校验房间 ID
func NormalizeRoomID(roomID string) (string, error) {
	id := strings.TrimSpace(roomID)

	if id == "" || len(id) > MAX_ROOM_ID_LEN || !roomIDPattern.MatchString(id) {
		return "", fmt.Errorf(
			"%w: room id must be 1-%d characters of letters, digits, '-' or '_'",
			game.ErrInvalidRequest,
			MAX_ROOM_ID_LEN,
		)
	}

	return id, nil
}

func isRoomStale(gm *game.GameMachine, now time.Time) bool {
	if gm == nil {
		return true
	}

	if gm.HumanCount() > 0 {
		return false
	}

	return now.Sub(gm.CreatedAt()) >= EMPTY_ROOM_TTL
}
