package main

import (
	"time"

	"turing-trap-be/internal/api/http"
	"turing-trap-be/internal/config"
	"turing-trap-be/internal/logger"
	"turing-trap-be/internal/service"
	"turing-trap-be/internal/service/director"
	"turing-trap-be/internal/service/game"
	"turing-trap-be/internal/state"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg := config.GetConfig()

	// 初始化日志器
	logger.InitLogger(cfg.LogLevel)
	defer zap.L().Sync()

	// 剧本与台词生成
	dir := director.New(director.Options{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.GenerationTimeout(),
	})
	if dir.IsMock() {
		zap.S().Warn("未配置 OpenAI API Key，使用内置剧本与台词")
	}

	roomSvc := service.NewRoomService(game.Deps{
		Director:  dir,
		Scheduler: game.NewTimerScheduler(),
		Clock:     time.Now,
		Tuning: game.Tuning{
			RateLimit:             cfg.RateLimit(),
			MinDelay:              cfg.MinDelay(),
			MaxDelay:              cfg.MaxDelay(),
			ThinkMin:              cfg.ThinkMin(),
			ThinkMax:              cfg.ThinkMax(),
			AIResponseProbability: cfg.AIResponseProbability,
		},
	})
	defer roomSvc.Close()

	// 组装应用状态
	appState := state.NewAppState(cfg, roomSvc)

	zap.S().Infof("服务启动于 %s:%d", cfg.Host, cfg.Port)

	// 启动服务器
	if err := http.RunServer(appState); err != nil {
		zap.L().Error("服务器退出", zap.Error(err))
	}
}
