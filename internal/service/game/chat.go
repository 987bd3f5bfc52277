package game

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"turing-trap-be/internal/service/dto"

	"go.uber.org/zap"
)

const MAX_MESSAGE_RUNES = 280

// cooldownRemaining 距离该玩家下一次允许发言还剩多久，0 表示可以发言
func (gc *GameContext) cooldownRemaining(p *Player, now time.Time) time.Duration {
	if p.LastMessageAt.IsZero() {
		return 0
	}

	elapsed := now.Sub(p.LastMessageAt)
	if elapsed >= gc.deps.Tuning.RateLimit {
		return 0
	}

	return gc.deps.Tuning.RateLimit - elapsed
}

func (gc *GameContext) humanizingDelay() time.Duration {
	return randomBetween(gc.deps.Tuning.MinDelay, gc.deps.Tuning.MaxDelay)
}

// 显示名永远是角色名
func newChatMessage(sender *Player, text string, now time.Time) dto.ChatMessage {
	return dto.ChatMessage{
		ID:         GenID(),
		SenderID:   sender.ID,
		SenderName: sender.CharacterName(),
		Text:       text,
		SentAt:     now,
	}
}

func handleSendMessage(ctx *GameContext, playerID string, req *SendMessageRequest) error {
	player, ok := ctx.Players[playerID]
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}

	if player.IsBot {
		return fmt.Errorf("%w: synthetic seat cannot send through the client path", ErrInvalidRequest)
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil
	}

	if utf8.RuneCountInString(text) > MAX_MESSAGE_RUNES {
		return fmt.Errorf("%w: message longer than %d characters", ErrInvalidRequest, MAX_MESSAGE_RUNES)
	}

	now := ctx.Now()
	if wait := ctx.cooldownRemaining(player, now); wait > 0 {
		return &RateLimitedError{RetryAfter: wait}
	}

	// 立即记录时间戳，延迟广播期间的连发同样会被限流
	player.LastMessageAt = now

	msg := newChatMessage(player, text, now)
	delay := ctx.humanizingDelay()

	ctx.Schedule(delay, wrapEvent(EVT_CHAT_DELIVER, &chatDeliverEvent{
		Seq:     ctx.GameSeq,
		Message: msg,
	}))

	zap.L().Debug(
		"聊天消息已排入延迟发送",
		zap.String("room_id", ctx.RoomID),
		zap.String("player_id", playerID),
		zap.Duration("delay", delay),
	)

	return nil
}

func (gc *GameContext) appendAndBroadcast(msg dto.ChatMessage) {
	gc.Transcript = append(gc.Transcript, msg)
	gc.BroadcastResp(WrapResponse(RESP_MESSAGE_RECEIVED, msg))
}

func onChatDeliver(ctx *GameContext, ev *chatDeliverEvent) {
	if ctx.GameStage != STAGE_PLAYING || ev.Seq != ctx.GameSeq {
		zap.L().Debug(
			"聊天消息投递被丢弃",
			zap.String("room_id", ctx.RoomID),
			zap.String("stage", ctx.GameStage),
			zap.Int("event_seq", ev.Seq),
			zap.Int("game_seq", ctx.GameSeq),
		)
		return
	}

	ctx.appendAndBroadcast(ev.Message)

	maybeStartAITurn(ctx)
}
