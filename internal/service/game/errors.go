package game

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidPhase   = errors.New("invalid phase transition")
	ErrInvalidRequest = errors.New("invalid request")
	ErrDataIntegrity  = errors.New("data integrity fault")
	ErrGeneration     = errors.New("generation failure")
	ErrRoomClosed     = errors.New("room closed")
	ErrRoomBusy       = errors.New("room busy")
)

// RateLimitedError 只返回给发送者
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	return fmt.Sprintf("Rate limit! Wait %ds", secs)
}

func (e *RateLimitedError) RetryAfterMs() int64 {
	return e.RetryAfter.Milliseconds()
}
