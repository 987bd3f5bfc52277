package director

import (
	"strings"
)

// 会暴露机器人身份的短语，统一小写比较
var bannedPhrases = []string{
	"as an ai",
	"i am an ai",
	"i'm an ai",
	"im an ai",
	"an ai language model",
	"language model",
	"artificial intelligence",
	"i am a bot",
	"i'm a bot",
	"i am not human",
	"openai",
	"chatgpt",
	"my programming",
	"i cannot roleplay",
}

func containsBannedPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range bannedPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}

	return false
}

// cleanDialogue 去掉包裹的引号；空串或命中禁用短语时返回一条角色内台词
func cleanDialogue(raw string) (string, bool) {
	text := strings.TrimSpace(raw)

	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		text = strings.TrimSpace(text[1 : len(text)-1])
	}

	if text == "" || containsBannedPhrase(text) {
		return randomInCharacterLine(), false
	}

	return text, true
}

// stripCodeFence 去掉生成结果中可能包裹的 markdown 代码块
func stripCodeFence(raw string) string {
	s := strings.ReplaceAll(raw, "```json", "")
	s = strings.ReplaceAll(s, "```", "")

	return strings.TrimSpace(s)
}
