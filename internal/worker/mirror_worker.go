// Package worker replays local transaction changes onto a mirror: the
// external REST API or a Google Sheets spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	flog "fintrack/internal/log"
	"fintrack/internal/restapi"
	"fintrack/internal/store"
)

// Mirror receives the current state of each record. Both operations must be
// idempotent: the same event can be delivered more than once.
type Mirror interface {
	Upsert(ctx context.Context, t core.Transaction) error
	Remove(ctx context.Context, id string) error
}

var _ Mirror = (*restapi.Client)(nil)

// Consumer is satisfied by *amqp.Client.
type Consumer interface {
	ConsumeTransactionEvents(ctx context.Context, handler amqp.Handler) error
}

const sweepConcurrency = 4

// MirrorWorker handles queue events and periodically sweeps rows the queue
// missed. Source and tracker are optional: without them events are mirrored
// from their snapshot and there is nothing to sweep.
type MirrorWorker struct {
	mirror    Mirror
	source    store.TransactionReader
	tracker   store.SyncTracker
	batchSize int
}

func NewMirrorWorker(mirror Mirror, source store.TransactionReader, tracker store.SyncTracker, batchSize int) *MirrorWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	return &MirrorWorker{
		mirror:    mirror,
		source:    source,
		tracker:   tracker,
		batchSize: batchSize,
	}
}

// HandleEvent applies one queue event. A returned error requeues the message.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev *amqp.TransactionEvent) error {
	slog.InfoContext(ctx, "Processing transaction event",
		flog.FieldTransactionID, ev.ID,
		"action", ev.Action,
		flog.FieldVersion, ev.Version)

	if ev.Action == amqp.ActionDeleted {
		if err := w.mirror.Remove(ctx, ev.ID); err != nil {
			return fmt.Errorf("remove from mirror: %w", err)
		}
		return nil
	}

	if w.source == nil {
		if ev.Snapshot == nil {
			slog.WarnContext(ctx, "Event has no snapshot and no source is configured, skipping", flog.FieldTransactionID, ev.ID)
			return nil
		}
		t, err := ev.Snapshot.ToCore()
		if err != nil {
			slog.ErrorContext(ctx, "Dropping event with invalid snapshot", flog.FieldTransactionID, ev.ID, flog.FieldError, err)
			return nil
		}
		t.ID = ev.ID
		if err := w.mirror.Upsert(ctx, t); err != nil {
			return fmt.Errorf("upsert to mirror: %w", err)
		}
		return nil
	}

	return w.syncOne(ctx, ev.ID)
}

// syncOne pushes the current row and marks the version that was read as
// synced. A newer write in between keeps the row pending.
func (w *MirrorWorker) syncOne(ctx context.Context, id string) error {
	var version int64
	if w.tracker != nil {
		v, err := w.tracker.Version(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("read version: %w", err)
		}
		version = v
	}

	t, err := w.source.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Deleted after the event was published; the delete event follows.
			slog.InfoContext(ctx, "Transaction no longer exists, skipping", flog.FieldTransactionID, id)
			return nil
		}
		return fmt.Errorf("get transaction: %w", err)
	}

	if err := w.mirror.Upsert(ctx, t); err != nil {
		if w.tracker != nil {
			if markErr := w.tracker.MarkSyncError(ctx, id); markErr != nil {
				slog.ErrorContext(ctx, "Failed to mark sync error", flog.FieldTransactionID, id, flog.FieldError, markErr)
			}
		}
		return fmt.Errorf("upsert to mirror: %w", err)
	}

	if w.tracker != nil {
		if err := w.tracker.MarkSynced(ctx, id, version); err != nil {
			slog.ErrorContext(ctx, "Failed to mark as synced", flog.FieldTransactionID, id, flog.FieldError, err)
		}
	}

	slog.InfoContext(ctx, "Successfully mirrored transaction",
		flog.FieldTransactionID, t.ID,
		flog.FieldVersion, version,
		flog.FieldAmountCents, t.Amount.Cents)
	return nil
}

// SweepResult counts one sweep.
type SweepResult struct {
	Total  int
	Synced int
	Failed int
}

// SweepPending mirrors rows still pending or in error. It is the backup for
// lost queue messages and runs on the cron schedule and at startup.
func (w *MirrorWorker) SweepPending(ctx context.Context) (SweepResult, error) {
	if w.tracker == nil || w.source == nil {
		return SweepResult{}, nil
	}

	pending, err := w.tracker.PendingSync(ctx, w.batchSize)
	if err != nil {
		return SweepResult{}, fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return SweepResult{}, nil
	}

	var synced, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, p := range pending {
		p := p
		g.Go(func() error {
			if err := w.syncOne(gctx, p.ID); err != nil {
				slog.ErrorContext(gctx, "Failed to sync pending transaction", flog.FieldTransactionID, p.ID, flog.FieldError, err)
				failed.Add(1)
				return nil
			}
			synced.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{Total: len(pending), Synced: int(synced.Load()), Failed: int(failed.Load())}
	slog.InfoContext(ctx, "Pending sweep completed", "total", res.Total, "synced", res.Synced, "errors", res.Failed)
	return res, nil
}

// Run sweeps once, then consumes events and sweeps on schedule until ctx is
// cancelled. A nil consumer runs the sweep schedule alone.
func (w *MirrorWorker) Run(ctx context.Context, consumer Consumer, schedule string) error {
	if _, err := w.SweepPending(ctx); err != nil {
		slog.WarnContext(ctx, "Startup sweep failed", flog.FieldError, err)
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := w.SweepPending(ctx); err != nil {
			slog.ErrorContext(ctx, "Scheduled sweep failed", flog.FieldError, err)
		}
	}); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	g, gctx := errgroup.WithContext(ctx)
	if consumer != nil {
		g.Go(func() error {
			return consumer.ConsumeTransactionEvents(gctx, w.HandleEvent)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
