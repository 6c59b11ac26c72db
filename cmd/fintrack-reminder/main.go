package main

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"fintrack/internal/cli"
	flog "fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/services"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(flog.ComponentReminder)
	logger.Info("Starting fintrack-reminder", "schedule", cfg.ReminderSchedule, "lead_days", cfg.ReminderLeadDays)

	res := cli.OpenBackend(context.Background(), logger, cfg)
	reminders := services.NewReminderService(res.Backend, notify.FromConfig(cfg), cfg.ReminderLeadDays)

	c := cron.New()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Warn("Backend cleanup failed", flog.FieldError, err)
			}
		}
	})

	if _, err := c.AddFunc(cfg.ReminderSchedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		if _, err := reminders.Run(runCtx); err != nil {
			logger.Error("Reminder run failed", flog.FieldError, err)
		}
	}); err != nil {
		logger.Error("Invalid reminder schedule", flog.FieldError, err, "schedule", cfg.ReminderSchedule)
		os.Exit(1)
	}
	c.Start()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Reminder stopped gracefully")
}
