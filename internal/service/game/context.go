package game

import (
	"context"
	"fmt"
	"slices"
	"time"

	"turing-trap-be/internal/service/dto"

	"go.uber.org/zap"
)

// GameContext 是单个房间的全部状态，只允许在房间的事件循环协程中读写
type GameContext struct {
	RoomID    string
	GameStage string

	Players map[string]*Player
	// 加入顺序，决定房主、角色分配顺序和计票顺序
	JoinOrder []string

	Scenario   *dto.Scenario
	Transcript []dto.ChatMessage

	AISeatID string
	AIBusy   bool

	// 每次开局自增，过期的异步回调据此被丢弃
	GameSeq int
	// 开局时参与分配角色的席位
	StartSeats []string

	Outcome *GameOverResponse

	// 房间已被关闭，之后的请求全部忽略
	Closed bool

	deps    Deps
	events  chan RequestWrapper
	done    <-chan struct{}
	runCtx  context.Context
	release func()
}

func (gc *GameContext) Now() time.Time {
	if gc.deps.Clock != nil {
		return gc.deps.Clock()
	}

	return time.Now()
}

// Post 把异步结果投递回事件循环；房间已关闭时直接丢弃
func (gc *GameContext) Post(req RequestWrapper) bool {
	select {
	case <-gc.done:
		return false
	default:
	}

	select {
	case gc.events <- req:
		return true
	case <-gc.done:
		zap.L().Debug(
			"房间已关闭，丢弃事件",
			zap.String("room_id", gc.RoomID),
			zap.String("event", req.ReqType),
		)
		return false
	}
}

// Schedule 在延迟之后把事件投递回事件循环
func (gc *GameContext) Schedule(d time.Duration, req RequestWrapper) {
	gc.deps.Scheduler.AfterFunc(d, func() {
		gc.Post(req)
	})
}

// Go 在事件循环之外执行耗时任务，任务本身不能读写 GameContext
func (gc *GameContext) Go(f func()) {
	gc.deps.Scheduler.Go(f)
}

func (gc *GameContext) GetHost() *Player {
	for _, id := range gc.JoinOrder {
		if p := gc.Players[id]; p != nil && !p.IsBot {
			return p
		}
	}

	return nil
}

func (gc *GameContext) GetAISeat() *Player {
	if gc.AISeatID == "" {
		return nil
	}

	return gc.Players[gc.AISeatID]
}

// OrderedPlayers 按加入顺序返回所有玩家（含机器人席位）
func (gc *GameContext) OrderedPlayers() []*Player {
	players := make([]*Player, 0, len(gc.JoinOrder))
	for _, id := range gc.JoinOrder {
		if p, ok := gc.Players[id]; ok {
			players = append(players, p)
		}
	}

	return players
}

func (gc *GameContext) CountHumans() int {
	n := 0
	for _, p := range gc.Players {
		if !p.IsBot {
			n++
		}
	}

	return n
}

func (gc *GameContext) AddPlayer(p *Player) {
	gc.Players[p.ID] = p
	gc.JoinOrder = append(gc.JoinOrder, p.ID)
}

func (gc *GameContext) RemovePlayer(playerID string) *Player {
	p, ok := gc.Players[playerID]
	if !ok {
		return nil
	}

	delete(gc.Players, playerID)
	gc.JoinOrder = slices.DeleteFunc(gc.JoinOrder, func(id string) bool {
		return id == playerID
	})

	if gc.AISeatID == playerID {
		gc.AISeatID = ""
	}

	return p
}

func (gc *GameContext) addSyntheticSeat() *Player {
	bot := &Player{
		ID:       GenID(),
		Name:     fmt.Sprintf("Player %d", gc.CountHumans()+1),
		IsBot:    true,
		JoinedAt: gc.Now(),
	}

	gc.AddPlayer(bot)
	gc.AISeatID = bot.ID

	return bot
}

// resetForRestart 清理上一局留下的一切，保留真人连接
func (gc *GameContext) resetForRestart() {
	gc.Transcript = make([]dto.ChatMessage, 0)
	gc.Scenario = nil
	gc.Outcome = nil
	gc.StartSeats = nil

	for _, p := range gc.Players {
		p.resetForNewGame()
	}

	if gc.AISeatID != "" {
		gc.RemovePlayer(gc.AISeatID)
	}

	// NOTE: AIBusy 不在这里清除，上一局仍在进行的 AI 回合会在自己的收尾事件中释放
}

func (gc *GameContext) PublicRoster() []dto.Player {
	players := make([]dto.Player, 0, len(gc.Players))
	for _, p := range gc.OrderedPlayers() {
		players = append(players, p.Public())
	}

	return players
}

func (gc *GameContext) dossierFor(p *Player) dto.Dossier {
	intro := ""
	if gc.Scenario != nil {
		intro = gc.Scenario.IntroText
	}

	roster := make([]dto.RosterEntry, 0, len(gc.Players))
	for _, other := range gc.OrderedPlayers() {
		roster = append(roster, dto.RosterEntry{
			ID:        other.ID,
			Character: other.CharacterName(),
		})
	}

	return dto.Dossier{
		ScenarioIntro: intro,
		Character:     p.CharacterName(),
		Journal:       p.Journal(),
		Players:       roster,
	}
}

func (gc *GameContext) Snapshot() dto.RoomSnapshot {
	players := make([]dto.AdminPlayer, 0, len(gc.Players))
	for _, p := range gc.OrderedPlayers() {
		players = append(players, dto.AdminPlayer{
			ID:        p.ID,
			Name:      p.Name,
			Character: p.CharacterName(),
			IsBot:     p.IsBot,
		})
	}

	return dto.RoomSnapshot{
		ID:           gc.RoomID,
		Phase:        gc.GameStage,
		PlayerCount:  len(gc.Players),
		MessageCount: len(gc.Transcript),
		Players:      players,
	}
}

func (gc *GameContext) BroadcastResp(resp ResponseWrapper) {
	for _, p := range gc.Players {
		if p.RespCh == nil {
			continue
		}

		select {
		case p.RespCh <- resp:
			zap.L().Debug(
				"成功发送广播响应",
				zap.String("room_id", gc.RoomID),
				zap.String("player_id", p.ID),
				zap.String("response_type", resp.RespType),
			)
		default:
			zap.L().Warn(
				"发送广播响应失败：玩家响应通道已满",
				zap.String("room_id", gc.RoomID),
				zap.String("player_id", p.ID),
			)
		}
	}
}

func (gc *GameContext) UnicastResp(playerID string, resp ResponseWrapper) {
	player, ok := gc.Players[playerID]
	if !ok || player.RespCh == nil {
		zap.L().Warn(
			"无法找到玩家进行单播响应",
			zap.String("room_id", gc.RoomID),
			zap.String("player_id", playerID),
		)
		return
	}

	select {
	case player.RespCh <- resp:
		zap.L().Debug(
			"发送单播响应成功",
			zap.String("room_id", gc.RoomID),
			zap.String("player_id", playerID),
			zap.String("response_type", resp.RespType),
		)
	default:
		zap.L().Warn(
			"发送单播响应失败：玩家响应通道已满",
			zap.String("room_id", gc.RoomID),
			zap.String("player_id", playerID),
		)
	}
}

func (gc *GameContext) broadcastPhase() {
	gc.BroadcastResp(WrapResponse(
		RESP_PHASE_CHANGED,
		PhaseChangedResponse{Phase: gc.GameStage},
	))
}

func (gc *GameContext) broadcastRoster() {
	gc.BroadcastResp(WrapResponse(
		RESP_ROSTER_UPDATE,
		RosterUpdateResponse{Players: gc.PublicRoster()},
	))
}

// evict 关闭玩家的响应通道，写协程随之退出并断开连接
func (gc *GameContext) evict(p *Player) {
	if p.RespCh != nil {
		close(p.RespCh)
		p.RespCh = nil
	}
}
