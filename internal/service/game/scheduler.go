package game

import (
	"context"
	"time"

	"turing-trap-be/internal/service/dto"
)

// Director 是剧本与台词的生成服务，两个方法都不返回错误：
// 失败时由实现方自行降级为内置内容
type Director interface {
	GenerateScenario(ctx context.Context, playerCount int) dto.Scenario
	GenerateDialogue(ctx context.Context, transcript []dto.ChatMessage, persona dto.Character) string
}

// Scheduler 负责所有异步的延迟与后台任务，测试中替换为手动驱动的实现
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
	Go(f func())
}

// Releaser 由房间注册表实现，房间在最后一个真人离开或被关闭时调用
type Releaser interface {
	Release(roomID string, gm *GameMachine)
}

type Tuning struct {
	RateLimit time.Duration
	MinDelay  time.Duration
	MaxDelay  time.Duration
	ThinkMin  time.Duration
	ThinkMax  time.Duration

	AIResponseProbability float64
}

func DefaultTuning() Tuning {
	return Tuning{
		RateLimit:             10 * time.Second,
		MinDelay:              2 * time.Second,
		MaxDelay:              5 * time.Second,
		ThinkMin:              1 * time.Second,
		ThinkMax:              3 * time.Second,
		AIResponseProbability: 0.5,
	}
}

type Deps struct {
	Director  Director
	Scheduler Scheduler
	Releaser  Releaser
	Clock     func() time.Time
	Tuning    Tuning
}

type timerScheduler struct{}

func NewTimerScheduler() Scheduler {
	return timerScheduler{}
}

func (timerScheduler) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

func (timerScheduler) Go(f func()) {
	go f()
}
