package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NeF2le/guss-points/audit"
	"github.com/NeF2le/guss-points/bot"
	"github.com/NeF2le/guss-points/config"
	"github.com/NeF2le/guss-points/database"
	"github.com/NeF2le/guss-points/googleapi"
	"github.com/NeF2le/guss-points/points"
	"github.com/NeF2le/guss-points/syncer"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.LoadEnvConfig(".env")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := database.NewDatabase(cfg.DatabaseURL())
	if err := db.Connect(ctx); err != nil {
		logger.Error("database connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()
	if err := db.InitializeSchema(ctx); err != nil {
		logger.Error("schema init failed", slog.Any("error", err))
		os.Exit(1)
	}

	google := googleapi.NewClient(cfg.GoogleAPIToken)

	protocolSync := syncer.NewProtocolSyncer(google, db,
		cfg.PersonMatchThreshold, cfg.CommitteeAttendancePoints, logger)
	tableSync := syncer.NewTableSyncer(google, db, cfg.PersonMatchThreshold, logger)

	recorder := audit.NewRecorder(db, logger)
	awarder := points.NewService(db, recorder, cfg.CommitteeAttendancePoints)

	tgBot, err := bot.New(bot.Params{
		Token:        cfg.BotToken,
		AdminIDs:     cfg.AdminIDs,
		Store:        db,
		Verifier:     google,
		Recorder:     recorder,
		ProtocolSync: protocolSync,
		TableSync:    tableSync,
		Awarder:      awarder,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("bot init failed", slog.Any("error", err))
		os.Exit(1)
	}

	go runPeriodicSync(ctx, protocolSync, tableSync, time.Duration(cfg.SyncIntervalMinutes)*time.Minute, logger)

	if err := tgBot.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("bot stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// runPeriodicSync reconciles on startup and then on a fixed interval until
// the context ends.
func runPeriodicSync(ctx context.Context, protocols, tables bot.Syncer, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		if err := protocols.SyncAll(ctx); err != nil {
			logger.Error("protocol sync failed", slog.Any("error", err))
		}
		if err := tables.SyncAll(ctx); err != nil {
			logger.Error("table sync failed", slog.Any("error", err))
		}
		logger.Info("sync cycle finished", slog.Duration("took", time.Since(start)))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
