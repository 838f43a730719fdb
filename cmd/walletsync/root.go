package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/walletbase/walletsync/internal/api"
	"github.com/walletbase/walletsync/internal/config"
	"github.com/walletbase/walletsync/internal/remote"
	"github.com/walletbase/walletsync/internal/snapshot"
	"github.com/walletbase/walletsync/internal/store"
	syncengine "github.com/walletbase/walletsync/internal/sync"
	"github.com/walletbase/walletsync/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "walletsync",
	Short: "walletsync - local-first finance tracker sync daemon",
	RunE:  run,
}

func run(cmd *cobra.Command, args []string) error {
	// Signal handling drives the whole shutdown sequence
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	initLogger(cfg)
	slog.Info("configuration loaded")

	// Local store (migrations, WAL mode)
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	deviceID, err := db.DeviceID(ctx)
	if err != nil {
		return err
	}
	slog.Info("device identity loaded", "device_id", deviceID)

	// Sync engine wiring
	client := remote.New(cfg.Remote.BaseURL, cfg.Remote.Token,
		&http.Client{Timeout: time.Duration(cfg.Remote.Timeout)})
	puller := syncengine.NewPuller(client, db, db, nil)
	pusher := syncengine.NewPusher(client, db, db)
	orchestrator := syncengine.NewOrchestrator(puller, pusher, db)
	scheduler := syncengine.NewScheduler(orchestrator,
		time.Duration(cfg.Sync.FullInterval), time.Duration(cfg.Sync.PushInterval))
	slog.Info("sync engine initialized",
		"remote", cfg.Remote.BaseURL,
		"full_interval", time.Duration(cfg.Sync.FullInterval).String(),
		"push_interval", time.Duration(cfg.Sync.PushInterval).String(),
	)

	// Control API
	handler := api.NewHandler(ctx, orchestrator, scheduler, db, cfg.Control.Token, Version)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Control.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Control.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Control.WriteTimeout),
	}

	// Background workers
	var wg sync.WaitGroup

	uploader, err := snapshot.NewUploader(cfg.Backup)
	if err != nil {
		return err
	}
	backup := worker.NewBackupCoordinator(db, uploader, deviceID, time.Duration(cfg.Backup.Interval))
	startWorker(ctx, &wg, "backup-coordinator", backup.Run)

	// The daemon boots foregrounded unless told otherwise; the UI layer
	// reports lifecycle transitions through the control API afterwards.
	if cfg.Sync.StartForegrounded {
		scheduler.Resume(ctx)
	}

	go func() {
		slog.Info("control server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called
		// gracefully. Anything else is a real failure.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("control server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Control.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("control server shutdown error", "error", err)
	}

	scheduler.Pause()
	wg.Wait()

	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func initLogger(cfg *config.Config) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context
// cancellation. Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
