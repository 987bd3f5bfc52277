package game

import (
	"strings"
	"testing"
	"time"

	"turing-trap-be/internal/service/dto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage_DeliveredAfterHumanizingDelay(t *testing.T) {
	h := newHarness(t)

	alice := h.join("Alice")
	bob := h.join("Bob")
	h.startGame(alice)
	h.flush(alice, bob)

	h.chat(alice, "  who has the keycard?  ")

	// 送达之前记录不变，也没有广播
	assert.Empty(t, h.ctx().Transcript)
	assert.Empty(t, h.responses(bob))

	timers := h.sched.pendingTimers()
	require.Len(t, timers, 1)
	assert.GreaterOrEqual(t, timers[0].d, 2*time.Second)
	assert.LessOrEqual(t, timers[0].d, 5*time.Second)

	require.Equal(t, 1, h.fire())
	require.Len(t, h.ctx().Transcript, 1)

	msg := h.ctx().Transcript[0]
	assert.Equal(t, "who has the keycard?", msg.Text)
	assert.Equal(t, alice, msg.SenderID)
	assert.Equal(t, "Commander", msg.SenderName)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, h.clock.Now(), msg.SentAt)

	for _, id := range []string{alice, bob} {
		resps := h.responses(id)
		require.Len(t, resps, 1)
		assert.Equal(t, RESP_MESSAGE_RECEIVED, resps[0].RespType)
		assert.Equal(t, msg, resps[0].Data.(dto.ChatMessage))
	}
}

func TestSendMessage_RateLimited(t *testing.T) {
	h := newHarness(t)

	alice := h.join("Alice")
	h.startGame(alice)
	h.flush(alice)

	h.chat(alice, "one")
	h.chat(alice, "two")

	resps := h.responses(alice)
	require.Len(t, resps, 1)
	assert.Equal(t, RESP_ERROR, resps[0].RespType)
	assert.Equal(t, "Rate limit! Wait 10s", resps[0].ErrMsg)
	assert.Equal(t, RateLimitedNotice{RetryAfterMs: 10000}, resps[0].Data)

	// 被拒绝的消息不会产生延迟投递
	assert.Len(t, h.sched.pendingTimers(), 1)

	h.clock.advance(7500 * time.Millisecond)
	h.chat(alice, "three")

	resps = h.responses(alice)
	require.Len(t, resps, 1)
	assert.Equal(t, "Rate limit! Wait 3s", resps[0].ErrMsg)
	assert.Equal(t, RateLimitedNotice{RetryAfterMs: 2500}, resps[0].Data)

	h.clock.advance(2500 * time.Millisecond)
	h.chat(alice, "four")

	assert.Empty(t, h.responses(alice))
	assert.Len(t, h.sched.pendingTimers(), 2)
}

// 延迟期间的连发同样受限：时间戳在发送时而不是送达时记录
func TestSendMessage_RateLimitAppliesBeforeDelivery(t *testing.T) {
	h := newHarness(t)

	alice := h.join("Alice")
	h.startGame(alice)

	h.chat(alice, "first")
	h.clock.advance(3 * time.Second)
	h.fire()

	h.chat(alice, "second")

	assert.Len(t, h.ctx().Transcript, 1)
	assert.Empty(t, h.sched.pendingTimers())
}

func TestSendMessage_Validation(t *testing.T) {
	h := newHarness(t)

	alice := h.join("Alice")
	h.startGame(alice)
	h.flush(alice)

	h.chat(alice, "   ")
	assert.Empty(t, h.responses(alice))
	assert.Empty(t, h.sched.pendingTimers())

	h.chat(alice, strings.Repeat("a", MAX_MESSAGE_RUNES+1))

	resps := h.responses(alice)
	require.Len(t, resps, 1)
	assert.Equal(t, RESP_ERROR, resps[0].RespType)
	assert.Empty(t, h.sched.pendingTimers())

	// 空消息与超长消息都不消耗冷却
	h.chat(alice, strings.Repeat("é", MAX_MESSAGE_RUNES))
	assert.Empty(t, h.responses(alice))
	assert.Len(t, h.sched.pendingTimers(), 1)
}

func TestSendMessage_IgnoredOutsidePlaying(t *testing.T) {
	h := newHarness(t)

	alice := h.join("Alice")
	h.flush(alice)

	h.chat(alice, "hello lobby")

	assert.Empty(t, h.responses(alice))
	assert.Empty(t, h.sched.pendingTimers())
}

func TestChatDelivery_DroppedAfterGameEnds(t *testing.T) {
	h := newHarness(t)

	alice := h.join("Alice")
	bob := h.join("Bob")
	h.startGame(alice)

	h.chat(alice, "last words")

	bot := h.ctx().AISeatID
	h.vote(alice, bot)
	h.vote(bob, bot)
	require.Equal(t, STAGE_ENDED, h.ctx().GameStage)

	h.flush(alice, bob)
	h.fire()

	assert.Empty(t, h.ctx().Transcript)
	assert.Empty(t, h.responses(bob))
}

func TestChatDelivery_DroppedAfterRestart(t *testing.T) {
	h := newHarness(t)

	alice := h.join("Alice")
	bob := h.join("Bob")
	h.startGame(alice)

	h.chat(alice, "from the old game")

	bot := h.ctx().AISeatID
	h.vote(alice, bot)
	h.vote(bob, bot)
	h.send(alice, REQ_START_GAME, nil)
	h.run()
	require.Equal(t, STAGE_PLAYING, h.ctx().GameStage)

	h.fire()
	assert.Empty(t, h.ctx().Transcript)
}

func TestChatDelivery_DroppedAfterRoomReleased(t *testing.T) {
	h := newHarness(t)

	alice := h.join("Alice")
	h.startGame(alice)

	h.chat(alice, "goodbye")
	h.leave(alice)

	require.Equal(t, 1, h.sched.fireTimers())
	assert.Equal(t, 0, h.gm.drain())
	assert.Empty(t, h.ctx().Transcript)
}
