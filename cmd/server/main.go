package main

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"llmgateway/internal/adapter"
	"llmgateway/internal/bootstrap"
	"llmgateway/internal/config"
	"llmgateway/internal/database"
	"llmgateway/internal/gateway"
	"llmgateway/internal/handler"
	"llmgateway/internal/ranking"
	"llmgateway/internal/ratelimit"
	"llmgateway/internal/repository"
	"llmgateway/internal/router"
	"llmgateway/internal/selector"
)

func main() {
	_ = godotenv.Load()

	gin.SetMode(gin.ReleaseMode)

	cfg := config.Load()
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	if err := database.Init(cfg.DatabasePath); err != nil {
		log.Fatalf("数据库初始化失败: %v", err)
	}
	defer database.Close()

	backendRepo := repository.NewBackendRepository()
	modelRepo := repository.NewModelRepository()
	rankingRepo := repository.NewRankingRepository()
	usageRepo := repository.NewUsageRepository()
	eventRepo := repository.NewFailoverEventRepository()

	tracker := ratelimit.NewTracker(usageRepo)
	tracker.Rehydrate()
	defer tracker.Stop()

	engine := ranking.NewEngine(rankingRepo, usageRepo, modelRepo)
	sel := selector.New(backendRepo, modelRepo, tracker)
	adapters := adapter.NewFactory()
	orchestrator := gateway.NewOrchestrator(sel, adapters, tracker, engine, eventRepo)

	if err := bootstrap.Run(cfg.CatalogPath, bootstrap.NewSeeder(backendRepo, modelRepo, adapters)); err != nil {
		log.Fatalf("目录播种失败: %v", err)
	}

	// 进程内代替外部调度器触发日重置清扫
	stopSweep := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tracker.ResetDailyCounters()
			case <-stopSweep:
				return
			}
		}
	}()
	defer close(stopSweep)

	completionHandler := handler.NewCompletionHandler(orchestrator)
	adminHandler := handler.NewAdminHandler(eventRepo, rankingRepo, usageRepo, engine)

	r := router.Setup(cfg, completionHandler, adminHandler)

	port := cfg.ServerPort
	if envPort := os.Getenv("PORT"); envPort != "" {
		port = envPort
	}

	log.Infof("网关启动在 http://0.0.0.0:%s", port)
	if err := r.Run("0.0.0.0:" + port); err != nil {
		log.Fatalf("服务器启动失败: %v", err)
	}
}
