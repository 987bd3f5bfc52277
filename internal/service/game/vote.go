package game

import (
	"fmt"

	"go.uber.org/zap"
)

// majorityReached 票数严格超过总人数的一半。
// 按 ceil(total/2) 计算时 3 人局需要 3 票，与 3 人局 2 票即淘汰的约定冲突，故奇数人数比它少需一票
func majorityReached(count, total int) bool {
	return total > 0 && count*2 > total
}

// tallyVotes 按加入顺序统计当前玩家的投票，返回第一个越过多数线的目标。
// 同一轮中两个目标同时越线时以首次出现的顺序为准，这只是实现上的约定。
func tallyVotes(players []*Player) (string, bool) {
	present := make(map[string]bool, len(players))
	for _, p := range players {
		present[p.ID] = true
	}

	counts := make(map[string]int)
	order := make([]string, 0)

	for _, p := range players {
		if p.VotedFor == "" || !present[p.VotedFor] {
			continue
		}

		if _, seen := counts[p.VotedFor]; !seen {
			order = append(order, p.VotedFor)
		}

		counts[p.VotedFor]++
	}

	for _, target := range order {
		if majorityReached(counts[target], len(players)) {
			return target, true
		}
	}

	return "", false
}

func handleVote(ctx *GameContext, voterID string, req *VoteRequest) (*GameOverResponse, error) {
	voter, ok := ctx.Players[voterID]
	if !ok {
		return nil, fmt.Errorf("voter %s: %w", voterID, ErrNotFound)
	}

	target, ok := ctx.Players[req.TargetID]
	if !ok {
		return nil, fmt.Errorf("vote target %s: %w", req.TargetID, ErrNotFound)
	}

	// 允许改票
	voter.VotedFor = target.ID

	ctx.BroadcastResp(WrapResponse(
		RESP_VOTE_CAST,
		VoteCastResponse{
			VoterRole:  voter.CharacterName(),
			TargetRole: target.CharacterName(),
		},
	))

	ejectedID, ok := tallyVotes(ctx.OrderedPlayers())
	if !ok {
		return nil, nil
	}

	ejected := ctx.Players[ejectedID]

	zap.L().Info(
		"玩家被投票淘汰",
		zap.String("room_id", ctx.RoomID),
		zap.String("player_id", ejected.ID),
		zap.Bool("is_bot", ejected.IsBot),
	)

	if ejected.IsBot {
		return &GameOverResponse{
			Message: fmt.Sprintf("GAME OVER. The Imposter (%s) was ejected! HUMANS WIN!", ejected.CharacterName()),
			Winner:  WINNER_HUMANS,
		}, nil
	}

	return &GameOverResponse{
		Message: fmt.Sprintf("GAME OVER. An innocent Human (%s) was ejected! THE AI WINS!", ejected.CharacterName()),
		Winner:  WINNER_AI,
	}, nil
}
