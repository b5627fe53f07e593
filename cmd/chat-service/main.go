package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tripcrew/tripchat/internal/access"
	"github.com/tripcrew/tripchat/internal/auth"
	"github.com/tripcrew/tripchat/internal/config"
	"github.com/tripcrew/tripchat/internal/domain"
	"github.com/tripcrew/tripchat/internal/fabric"
	"github.com/tripcrew/tripchat/internal/handler"
	"github.com/tripcrew/tripchat/internal/repository"
	"github.com/tripcrew/tripchat/internal/service"
	"github.com/tripcrew/tripchat/pkg/database"
	"github.com/tripcrew/tripchat/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	logger := log.L()
	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting chat service")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db, &domain.RoomModel{}, &domain.MessageModel{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("connected to database")

	fab, err := newFabric(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize fabric")
	}
	defer fab.Close()
	logger.Info().Str("driver", cfg.Fabric.Driver).Msg("fabric ready")

	repo := repository.NewGormMessageRepository(db, cfg.Chat.MaxContentLength)
	membership := access.NewGormMembership(db)
	validator := auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	chatSvc := service.NewChatService(repo, fab, cfg.Chat)

	wsHandler := handler.NewWSHandler(chatSvc, fab, repo, validator, membership, cfg.WebSocket)
	httpHandler := handler.NewHTTPHandler(repo, validator, membership)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	wsHandler.RegisterRoutes(router)
	httpHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("chat service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("chat service stopped")
}

func newFabric(cfg *config.Config) (fabric.Fabric, error) {
	switch cfg.Fabric.Driver {
	case "redis":
		return fabric.NewRedisFabric(fabric.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Fabric.BufferSize)
	default:
		return fabric.NewMemoryFabric(cfg.Fabric.BufferSize), nil
	}
}
