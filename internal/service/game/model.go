package game

import (
	"time"

	"turing-trap-be/internal/service/dto"
)

// 没有分配到角色的玩家在所有公开界面上显示为该标签
const UNASSIGNED_CHARACTER = "Unassigned"

type Player struct {
	ID    string
	Name  string
	IsBot bool

	// 开局前为 nil
	Character *dto.Character

	LastMessageAt time.Time
	VotedFor      string
	JoinedAt      time.Time

	// 机器人席位没有响应通道
	RespCh chan ResponseWrapper
}

func (p *Player) CharacterName() string {
	if p.Character == nil {
		return UNASSIGNED_CHARACTER
	}

	return p.Character.Role
}

func (p *Player) Journal() string {
	if p.Character == nil {
		return ""
	}

	return p.Character.JournalText
}

func (p *Player) Public() dto.Player {
	return dto.Player{
		ID:        p.ID,
		Name:      p.Name,
		Character: p.CharacterName(),
	}
}

func (p *Player) resetForNewGame() {
	p.Character = nil
	p.VotedFor = ""
}
