package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/aihub/classroom-rag/app/bootstrap"
	"github.com/aihub/classroom-rag/app/controllers"
	"github.com/aihub/classroom-rag/app/middleware"
	"github.com/aihub/classroom-rag/app/router"
	"github.com/aihub/classroom-rag/internal/logger"
	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"
)

func main() {
	app, err := bootstrap.Init(context.Background(), bootstrap.Options{Serve: true})
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	cfg := app.Config
	port, err := strconv.Atoi(cfg.Server.Port)
	if err != nil || port <= 0 {
		port = 8000
	}
	web.BConfig.AppName = "classroom-rag"
	web.BConfig.Listen.HTTPPort = port
	web.BConfig.MaxUploadSize = cfg.Ingestion.MaxUploadSize
	if cfg.Server.Env == "production" {
		web.BConfig.RunMode = web.PROD
	}

	factory := controllers.NewControllerFactory(app.Services, app.Infra, app.Health)
	router.Init(factory, middleware.Options{
		JWT:             app.JWT,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		GenerationRate:  cfg.Server.GenerationRate,
		GenerationBurst: cfg.Server.GenerationBurst,
	})

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting classroom RAG service", zap.Int("port", port))
		web.BeeApp.Run("")
		serverErr <- nil
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case <-serverErr:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := web.BeeApp.Server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
