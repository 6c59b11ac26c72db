package main

import (
	"context"
	"os"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/config"
	flog "fintrack/internal/log"
	"fintrack/internal/restapi"
	"fintrack/internal/store"
	"fintrack/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(flog.ComponentWorker)
	logger.Info("Starting fintrack-worker", "mirror", cfg.MirrorTarget, "backend", cfg.DataBackend, "schedule", cfg.SyncSchedule)

	if cfg.MirrorTarget == config.MirrorNone {
		logger.Info("MIRROR_TARGET is none, nothing to do")
		return
	}

	mirror, err := newMirror(cfg)
	if err != nil {
		logger.Error("Failed to initialize mirror", flog.FieldError, err, "mirror", cfg.MirrorTarget)
		os.Exit(1)
	}

	res := cli.OpenBackend(context.Background(), logger, cfg)

	var tracker store.SyncTracker
	if t, ok := res.Backend.(store.SyncTracker); ok {
		tracker = t
	} else {
		logger.Info("Backend does not track sync state, pending sweeps disabled", "backend", cfg.DataBackend)
	}
	w := worker.NewMirrorWorker(mirror, res.Backend, tracker, cfg.SyncBatchSize)

	var consumer worker.Consumer
	client := cli.ConnectAMQP(logger, cfg)
	if client != nil {
		consumer = client
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if client != nil {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", flog.FieldError, err)
			}
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Warn("Backend cleanup failed", flog.FieldError, err)
			}
		}
	})

	if err := w.Run(ctx, consumer, cfg.SyncSchedule); err != nil {
		logger.Error("Mirror worker stopped with error", flog.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}

func newMirror(cfg *config.Config) (worker.Mirror, error) {
	switch cfg.MirrorTarget {
	case config.MirrorSheets:
		creds, err := worker.LoadCredentials(cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		m, err := worker.NewSheetsMirror(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, creds)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		c, err := restapi.New(cfg.APIBaseURL, cfg.APITimeout, restapi.WithToken(cfg.APIToken))
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
