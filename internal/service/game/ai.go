package game

import (
	"context"
	"strings"

	"turing-trap-be/internal/service/dto"

	"go.uber.org/zap"
)

// 传给台词生成的最近聊天条数
const AI_HISTORY_WINDOW = 10

// maybeStartAITurn 在每条真人消息送达后调用；同一房间同一时间最多只有一个 AI 回合
func maybeStartAITurn(ctx *GameContext) {
	if ctx.AIBusy {
		zap.L().Debug("AI 回合进行中，跳过", zap.String("room_id", ctx.RoomID))
		return
	}

	if ctx.GameStage != STAGE_PLAYING {
		return
	}

	bot := ctx.GetAISeat()
	if bot == nil || bot.Character == nil {
		zap.L().Debug("房间内没有 AI 席位", zap.String("room_id", ctx.RoomID))
		return
	}

	if wait := ctx.cooldownRemaining(bot, ctx.Now()); wait > 0 {
		zap.L().Debug(
			"AI 席位发言冷却中",
			zap.String("room_id", ctx.RoomID),
			zap.Duration("wait", wait),
		)
		return
	}

	if !coinFlip(ctx.deps.Tuning.AIResponseProbability) {
		zap.L().Debug("AI 本轮选择沉默", zap.String("room_id", ctx.RoomID))
		return
	}

	ctx.AIBusy = true

	pause := randomBetween(ctx.deps.Tuning.ThinkMin, ctx.deps.Tuning.ThinkMax)
	ctx.Schedule(pause, wrapEvent(EVT_AI_THINK_DONE, &aiThinkDoneEvent{Seq: ctx.GameSeq}))

	zap.L().Debug(
		"AI 回合开始",
		zap.String("room_id", ctx.RoomID),
		zap.Duration("thinking", pause),
	)
}

// aiTurnValid 每个挂起点之后重新确认房间仍在同一局且处于进行阶段
func (gc *GameContext) aiTurnValid(seq int) bool {
	if gc.GameStage != STAGE_PLAYING || seq != gc.GameSeq {
		return false
	}

	bot := gc.GetAISeat()

	return bot != nil && bot.Character != nil
}

func (gc *GameContext) abortAITurn(reason string) {
	gc.AIBusy = false

	zap.L().Debug(
		"AI 回合中止",
		zap.String("room_id", gc.RoomID),
		zap.String("reason", reason),
	)
}

func onAIThinkDone(ctx *GameContext, ev *aiThinkDoneEvent) {
	if !ctx.aiTurnValid(ev.Seq) {
		ctx.abortAITurn("room left play during thinking pause")
		return
	}

	bot := ctx.GetAISeat()
	persona := *bot.Character
	history := recentHistory(ctx.Transcript, AI_HISTORY_WINDOW)

	seq := ev.Seq
	gen := ctx.deps.Director
	runCtx := ctx.runCtx

	ctx.Go(func() {
		text := generateDialogueSafely(runCtx, gen, history, persona)

		ctx.Post(wrapEvent(EVT_AI_LINE_READY, &aiLineReadyEvent{
			Seq:  seq,
			Text: text,
		}))
	})
}

func recentHistory(transcript []dto.ChatMessage, n int) []dto.ChatMessage {
	start := max(len(transcript)-n, 0)

	history := make([]dto.ChatMessage, len(transcript)-start)
	copy(history, transcript[start:])

	return history
}

// generateDialogueSafely 在事件循环之外运行，panic 时返回空串，由 onAILineReady 释放 AIBusy
func generateDialogueSafely(
	ctx context.Context,
	gen Director,
	history []dto.ChatMessage,
	persona dto.Character,
) (text string) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error(
				"生成台词时发生 panic",
				zap.Any("panic", r),
				zap.Error(ErrGeneration),
			)
			text = ""
		}
	}()

	if gen == nil {
		return ""
	}

	return strings.TrimSpace(gen.GenerateDialogue(ctx, history, persona))
}

func onAILineReady(ctx *GameContext, ev *aiLineReadyEvent) {
	if !ctx.aiTurnValid(ev.Seq) {
		ctx.abortAITurn("room left play during generation")
		return
	}

	if ev.Text == "" {
		ctx.abortAITurn("empty dialogue")
		return
	}

	bot := ctx.GetAISeat()
	now := ctx.Now()
	bot.LastMessageAt = now

	msg := newChatMessage(bot, ev.Text, now)

	ctx.Schedule(ctx.humanizingDelay(), wrapEvent(EVT_AI_DELIVER, &aiDeliverEvent{
		Seq:     ev.Seq,
		Message: msg,
	}))
}

func onAIDeliver(ctx *GameContext, ev *aiDeliverEvent) {
	defer func() {
		ctx.AIBusy = false
	}()

	if !ctx.aiTurnValid(ev.Seq) {
		zap.L().Debug(
			"AI 消息广播前被丢弃",
			zap.String("room_id", ctx.RoomID),
		)
		return
	}

	ctx.appendAndBroadcast(ev.Message)

	zap.L().Debug(
		"AI 消息已送达",
		zap.String("room_id", ctx.RoomID),
		zap.String("message_id", ev.Message.ID),
	)
}
