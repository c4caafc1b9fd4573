package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gridtally/gridtally/pkg/coordinator"
	"github.com/gridtally/gridtally/pkg/log"
	"github.com/gridtally/gridtally/pkg/server"
	"github.com/gridtally/gridtally/pkg/source"
	"github.com/gridtally/gridtally/pkg/storage"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// init packages
	src := source.Configured()
	db := storage.Configured()
	coord := coordinator.Configured(src, db)

	// init server
	srv := server.Configured(coord, db)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := db.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	// rebuild the current billing cycle before serving anything
	if err := coord.Init(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to initialize coordinator", "error", err)
		os.Exit(1)
	}

	// poll in the background while the API serves
	go func() {
		if err := coord.Run(ctx); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "coordinator failed", "error", err)
			cancel()
		}
	}()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
