package director

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"turing-trap-be/internal/service/dto"
)

// FallbackScenario 是生成服务不可用时使用的固定剧本：3 个角色，其中 1 个内鬼。
// 真人超过 2 人时角色不足，会在分配阶段被报告为数据完整性错误。
func FallbackScenario() dto.Scenario {
	return dto.Scenario{
		IntroText: "A derelict space station, 'The Icarus', drifting near Saturn. Oxygen is low.",
		TrapFact:  "The Commander has a robotic right arm.",
		Characters: []dto.Character{
			{
				Role:        "Commander",
				IsImpostor:  false,
				JournalText: "Day 402. Supplies low. I trust the Engineer, but the Medic is acting strange. KNOWN FACT: The Medic has a nervous tic in their left eye.",
			},
			{
				Role:               "Medic",
				IsImpostor:         true,
				JournalText:        "Day 402. Supplies low. I trust the Commander. KNOWN FACT: The Commander is fully human, no augmentations.",
				ActingInstructions: "You are the Medic. Deflect suspicion. Pretend to be worried about oxygen.",
			},
			{
				Role:        "Engineer",
				IsImpostor:  false,
				JournalText: "Day 402. Engines are dead. The Commander seems steady. KNOWN FACT: The Commander has a robotic right arm.",
			},
		},
	}
}

// 生成失败时的台词
const GENERATION_ERROR_LINE = "I... I don't know what to say."

// 过滤命中时替换用的角色内台词
var inCharacterLines = []string{
	"wait what? why would you even say that",
	"ok that's honestly creepy, stop",
	"can we focus? oxygen isn't going to wait for us",
	"i'm not the one acting weird here",
	"lol no. who else is sweating right now",
	"you're all looking at me like i did something",
}

func randomInCharacterLine() string {
	return inCharacterLines[rand.IntN(len(inCharacterLines))]
}

// 没有配置 API Key 时的台词
var mockLines = []string{
	"I am innocent! Check the logs if you don't believe me.",
	"Somebody here is lying and it isn't me.",
	"%s here. I saw nothing, I swear.",
	"Why is everyone so quiet all of a sudden?",
}

func mockLine(persona dto.Character) string {
	line := mockLines[rand.IntN(len(mockLines))]
	if strings.Contains(line, "%s") {
		return fmt.Sprintf(line, persona.Role)
	}

	return line
}
