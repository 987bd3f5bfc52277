package dto

// Scenario 由剧本生成服务产出，字段名与生成服务返回的 JSON 保持一致
type Scenario struct {
	IntroText  string      `json:"scenario_intro"`
	TrapFact   string      `json:"trap_detail"`
	Characters []Character `json:"characters"`
}

type Character struct {
	Role               string `json:"role"`
	IsImpostor         bool   `json:"is_imposter"`
	JournalText        string `json:"journal_text"`
	ActingInstructions string `json:"system_instructions"`
}

func (s Scenario) ImpostorCount() int {
	n := 0
	for _, c := range s.Characters {
		if c.IsImpostor {
			n++
		}
	}

	return n
}

// 玩家私有的档案：剧情简介 + 自己的角色 + 自己的日志
type Dossier struct {
	ScenarioIntro string        `json:"scenario_intro"`
	Character     string        `json:"character"`
	Journal       string        `json:"journal"`
	Players       []RosterEntry `json:"players"`
}
