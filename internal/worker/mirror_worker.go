// Package worker mirrors ledger events into an external spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/metrics"
	"conti/internal/sheets"
	"conti/internal/storage"

	"golang.org/x/sync/errgroup"
)

// Record kinds reported to metrics.
const (
	KindExpense    = "expense"
	KindSettlement = "settlement"
)

// Store is the read side of storage the worker needs.
type Store interface {
	GetExpense(ctx context.Context, id string) (core.Expense, error)
	ListExpenses(ctx context.Context, period core.Period) ([]core.Expense, error)
	ListSettlements(ctx context.Context, period core.Period) ([]core.Settlement, error)
}

// MirrorWorker appends expenses, materialized or entered by hand, and recorded
// settlements to a sheets.Mirror. The mirror deduplicates by record ID, so redelivered events
// and reconciliation passes are harmless.
type MirrorWorker struct {
	store   Store
	mirror  sheets.Mirror
	metrics *metrics.Metrics
}

func NewMirrorWorker(store Store, mirror sheets.Mirror, m *metrics.Metrics) *MirrorWorker {
	return &MirrorWorker{store: store, mirror: mirror, metrics: m}
}

// HandleEvent processes a single ledger event from AMQP. A returned error
// requeues the message.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"type", ev.Type,
		"id", ev.ID,
		"period", ev.Period)

	switch ev.Type {
	case amqp.EventExpenseMaterialized, amqp.EventExpenseRecorded:
		exp, err := w.store.GetExpense(ctx, ev.ID)
		if errors.Is(err, storage.ErrNotFound) {
			// Nothing to mirror; requeueing would loop forever.
			slog.WarnContext(ctx, "Expense from event not found, dropping", "id", ev.ID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("get expense from storage: %w", err)
		}
		return w.mirrorExpense(ctx, exp)

	case amqp.EventSettlementRecorded:
		st, err := w.findSettlement(ctx, ev.Period, ev.ID)
		if errors.Is(err, storage.ErrNotFound) {
			slog.WarnContext(ctx, "Settlement from event not found, dropping",
				"id", ev.ID,
				"period", ev.Period)
			return nil
		}
		if err != nil {
			return err
		}
		return w.mirrorSettlement(ctx, st)

	default:
		slog.WarnContext(ctx, "Ignoring unknown event type", "type", ev.Type, "id", ev.ID)
		return nil
	}
}

func (w *MirrorWorker) findSettlement(ctx context.Context, label, id string) (core.Settlement, error) {
	period, err := core.ParsePeriod(label)
	if err != nil {
		return core.Settlement{}, fmt.Errorf("event period %q: %w", label, storage.ErrNotFound)
	}
	settlements, err := w.store.ListSettlements(ctx, period)
	if err != nil {
		return core.Settlement{}, fmt.Errorf("list settlements: %w", err)
	}
	for _, s := range settlements {
		if s.ID == id {
			return s, nil
		}
	}
	return core.Settlement{}, storage.ErrNotFound
}

// SyncPeriod re-appends every expense and settlement of the period. It is the
// backup path for events lost while the worker was down. Failures on single
// records are logged and counted; the pass continues.
func (w *MirrorWorker) SyncPeriod(ctx context.Context, period core.Period) (synced, failed int, err error) {
	var (
		expenses    []core.Expense
		settlements []core.Settlement
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expenses, err = w.store.ListExpenses(gctx, period)
		if err != nil {
			return fmt.Errorf("list expenses: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		settlements, err = w.store.ListSettlements(gctx, period)
		if err != nil {
			return fmt.Errorf("list settlements: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	// Oldest first, so rows land in date order on a fresh sheet.
	for i := len(expenses) - 1; i >= 0; i-- {
		if err := w.mirrorExpense(ctx, expenses[i]); err != nil {
			failed++
			continue
		}
		synced++
	}
	for i := len(settlements) - 1; i >= 0; i-- {
		if err := w.mirrorSettlement(ctx, settlements[i]); err != nil {
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Period sync completed",
		"period", period.Label,
		"total", len(expenses)+len(settlements),
		"synced", synced,
		"errors", failed)
	return synced, failed, nil
}

// StartupSyncCheck reconciles the current and previous period.
func (w *MirrorWorker) StartupSyncCheck(ctx context.Context, today core.Date) error {
	current := core.PeriodOf(today)
	var errs []error
	for _, p := range []core.Period{current.Prev(), current} {
		if _, _, err := w.SyncPeriod(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", p.Label, err))
		}
	}
	return errors.Join(errs...)
}

func (w *MirrorWorker) mirrorExpense(ctx context.Context, exp core.Expense) error {
	ref, err := w.mirror.AppendExpense(ctx, exp)
	w.metrics.MirrorWrite(KindExpense, err)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to mirror expense", "id", exp.ID, "error", err)
		return fmt.Errorf("append expense to sheets: %w", err)
	}
	slog.InfoContext(ctx, "Mirrored expense",
		"id", exp.ID,
		"sheets_ref", ref,
		"amount_cents", exp.Amount.Cents)
	return nil
}

func (w *MirrorWorker) mirrorSettlement(ctx context.Context, st core.Settlement) error {
	ref, err := w.mirror.AppendSettlement(ctx, st)
	w.metrics.MirrorWrite(KindSettlement, err)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to mirror settlement", "id", st.ID, "error", err)
		return fmt.Errorf("append settlement to sheets: %w", err)
	}
	slog.InfoContext(ctx, "Mirrored settlement",
		"id", st.ID,
		"sheets_ref", ref,
		"amount_cents", st.Amount.Cents)
	return nil
}
