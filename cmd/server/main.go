package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"merry-chat/config"
	"merry-chat/handlers"
	"merry-chat/repository"
	"merry-chat/services"
	"merry-chat/ws"

	"github.com/dgraph-io/badger/v4"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/mama165/sdk-go/logs"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "merry-chat: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until shutdown, so deferred store
// closes always happen before the process exits.
func run() error {
	// --- config/env ---
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	// --- stores ---
	if err := os.MkdirAll(cfg.BadgerFilepath, 0o755); err != nil {
		return fmt.Errorf("failed to create badger directory: %w", err)
	}
	kv, err := badger.Open(badger.DefaultOptions(cfg.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = kv.Close()
	}()

	if err := os.MkdirAll(filepath.Dir(cfg.SQLiteFilepath), 0o755); err != nil {
		return fmt.Errorf("failed to create sqlite directory: %w", err)
	}
	sql, err := gorm.Open(sqlite.Open(cfg.SQLiteFilepath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := sql.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	defer func() {
		log.Info("Closing SQLite...")
		_ = sqlDB.Close()
	}()
	if err := repository.Migrate(sql); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// --- repos ---
	userRepo := repository.NewGormUserRepo(sql)
	chatRepo := repository.NewBadgerChatRepo(kv, log)
	messageRepo := repository.NewBadgerMessageRepo(kv, log, cfg.HistoryLimit)

	// --- services ---
	authSvc := services.NewAuthService(userRepo, &cfg, log)
	chatSvc := services.NewChatService(chatRepo, userRepo, messageRepo, log)
	historySvc := services.NewHistoryService(messageRepo, chatRepo, userRepo, log)
	recorder, async := services.NewRecorder(cfg.PersistMode, messageRepo, cfg.PersistQueueSize, log)

	// --- websocket relay ---
	opts := ws.Options{
		EchoPolicy:       cfg.EchoPolicy,
		ClientBufferSize: cfg.ClientBufferSize,
		MaxMessageLength: cfg.MaxMessageLength,
	}
	if cfg.EnforceRoomMembership {
		opts.Gate = chatSvc
	}
	hub := ws.NewHub(log, recorder, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if async != nil {
		async.Start(ctx)
	}
	hub.Start(ctx)

	// --- handlers ---
	mux := handlers.Routes(
		handlers.NewAuthHandler(authSvc, log),
		handlers.NewChatHandler(hub, chatSvc, log),
		handlers.NewHistoryHandler(historySvc, log),
		handlers.NewAuthenticator(authSvc, log),
	)

	// WriteTimeout stays unset: hijacked WebSocket connections manage their
	// own deadlines.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.WithCORS(handlers.Logging(log, mux)),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Chat server running", "address", server.Addr,
			"persist_mode", cfg.PersistMode, "echo_policy", cfg.EchoPolicy,
			"enforce_room_membership", cfg.EnforceRoomMembership)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// --- graceful shutdown ---
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat-server": func(ctx context.Context) error {
				log.Info("Shutting down gracefully...")
				err := server.Shutdown(ctx)
				hub.Stop()
				if async != nil {
					async.Stop()
				}
				return err
			},
		},
	)

	select {
	case exitCode := <-wait:
		if exitCode != 0 {
			return fmt.Errorf("shutdown finished with exit code %d", exitCode)
		}
		log.Info("Server exited")
		return nil
	case err := <-errChan:
		hub.Stop()
		if async != nil {
			async.Stop()
		}
		return err
	}
}
