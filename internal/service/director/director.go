package director

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"turing-trap-be/internal/service/dto"

	"go.uber.org/zap"
)

// 未配置真实 Key 时使用的占位值
const MOCK_API_KEY = "mock-key"

var ErrMalformedScenario = errors.New("malformed scenario")

type CompletionRequest struct {
	System string
	User   string

	Temperature      float32
	MaxTokens        int
	PresencePenalty  float32
	FrequencyPenalty float32

	// 要求返回 JSON 对象
	JSON bool
}

// Backend 是具体的文本生成后端
type Backend interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Director 负责剧本与台词的生成；任何失败都降级为内置内容，不会向上返回错误
type Director struct {
	backend Backend
	timeout time.Duration
}

func New(opts Options) *Director {
	if opts.APIKey == "" || opts.APIKey == MOCK_API_KEY {
		return &Director{timeout: opts.Timeout}
	}

	return NewWithBackend(NewOpenAIBackend(opts), opts.Timeout)
}

func NewWithBackend(backend Backend, timeout time.Duration) *Director {
	return &Director{
		backend: backend,
		timeout: timeout,
	}
}

func (d *Director) IsMock() bool {
	return d.backend == nil
}

func (d *Director) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, d.timeout)
}

func (d *Director) GenerateScenario(ctx context.Context, playerCount int) dto.Scenario {
	if d.backend == nil {
		zap.L().Info("使用内置剧本", zap.Int("player_count", playerCount))
		return FallbackScenario()
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	raw, err := d.backend.Complete(ctx, CompletionRequest{
		System:      scenarioPrompt(playerCount),
		Temperature: 0.8,
		JSON:        true,
	})
	if err != nil {
		zap.L().Warn(
			"生成剧本失败，使用内置剧本",
			zap.Int("player_count", playerCount),
			zap.Error(err),
		)
		return FallbackScenario()
	}

	scenario, err := parseScenario(raw, playerCount)
	if err != nil {
		zap.L().Warn(
			"生成的剧本校验未通过，使用内置剧本",
			zap.Int("player_count", playerCount),
			zap.Error(err),
		)
		return FallbackScenario()
	}

	return scenario
}

func parseScenario(raw string, playerCount int) (dto.Scenario, error) {
	var scenario dto.Scenario

	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &scenario); err != nil {
		return dto.Scenario{}, fmt.Errorf("%w: %w", ErrMalformedScenario, err)
	}

	if err := validateScenario(scenario, playerCount); err != nil {
		return dto.Scenario{}, err
	}

	return scenario, nil
}

func validateScenario(scenario dto.Scenario, playerCount int) error {
	if len(scenario.Characters) < playerCount {
		return fmt.Errorf("%w: %d characters for %d players", ErrMalformedScenario, len(scenario.Characters), playerCount)
	}

	if n := scenario.ImpostorCount(); n != 1 {
		return fmt.Errorf("%w: %d impostors", ErrMalformedScenario, n)
	}

	seen := make(map[string]bool, len(scenario.Characters))
	for _, c := range scenario.Characters {
		if c.Role == "" {
			return fmt.Errorf("%w: character without role", ErrMalformedScenario)
		}

		if seen[c.Role] {
			return fmt.Errorf("%w: duplicate role %q", ErrMalformedScenario, c.Role)
		}

		seen[c.Role] = true
	}

	return nil
}

func (d *Director) GenerateDialogue(ctx context.Context, transcript []dto.ChatMessage, persona dto.Character) string {
	if d.backend == nil {
		return mockLine(persona)
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	raw, err := d.backend.Complete(ctx, CompletionRequest{
		System:           dialoguePrompt(persona, transcript),
		User:             fmt.Sprintf("Reply to the last message as %s.", persona.Role),
		Temperature:      0.9,
		MaxTokens:        60,
		PresencePenalty:  0.5,
		FrequencyPenalty: 0.5,
	})
	if err != nil {
		zap.L().Warn(
			"生成台词失败",
			zap.String("role", persona.Role),
			zap.Error(err),
		)
		return GENERATION_ERROR_LINE
	}

	text, ok := cleanDialogue(raw)
	if !ok {
		zap.L().Warn(
			"生成的台词被过滤，替换为内置台词",
			zap.String("role", persona.Role),
			zap.String("raw", raw),
		)
	}

	return text
}
