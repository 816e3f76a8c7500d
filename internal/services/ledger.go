package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"conti/internal/core"
	"conti/internal/metrics"
	"conti/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// maxParallelPeriods bounds concurrent period computations.
const maxParallelPeriods = 4

// Ledger is the application surface over storage, the materializer and the
// balancer. HTTP handlers and workers talk only to the Ledger.
type Ledger struct {
	store        storage.Gateway
	materializer *Materializer
	publisher    EventPublisher
	metrics      *metrics.Metrics
	members      map[string]bool
	now          func() time.Time
}

// NewLedger wires a ledger. members restricts participants to the household;
// an empty list allows any user. publisher and m may be nil.
func NewLedger(store storage.Gateway, publisher EventPublisher, m *metrics.Metrics, members []string) *Ledger {
	l := &Ledger{
		store:        store,
		materializer: NewMaterializer(store, publisher, m),
		publisher:    publisher,
		metrics:      m,
		now:          time.Now,
	}
	if len(members) > 0 {
		l.members = make(map[string]bool, len(members))
		for _, u := range members {
			l.members[u] = true
		}
	}
	return l
}

// Materializer exposes the underlying materializer for the worker.
func (l *Ledger) Materializer() *Materializer { return l.materializer }

// Materialize generates the expense for the definition's current due date.
//
// A non-zero due pins the occurrence, so retries of the same request are
// idempotent; an earlier, never materialized date is backfilled without
// moving the schedule (see Materializer.MaterializeAt). A zero due always
// generates the next occurrence.
func (l *Ledger) Materialize(ctx context.Context, definitionID string, due core.Date) (core.Expense, error) {
	if due.IsZero() {
		return l.materializer.MaterializeByID(ctx, definitionID)
	}
	return l.materializer.MaterializeAt(ctx, definitionID, due)
}

// AdvanceSchedule previews the due date after date under frequency.
func (l *Ledger) AdvanceSchedule(date core.Date, frequency core.Frequency) (core.Date, error) {
	if err := date.Validate(); err != nil {
		return core.Date{}, &core.ValidationError{Field: "date", Reason: err.Error(), Err: err}
	}
	next, err := TryAdvanceSchedule(date, frequency)
	if err != nil {
		field := "date"
		if errors.Is(err, core.ErrInvalidFrequency) {
			field = "frequency"
		}
		return core.Date{}, &core.ValidationError{Field: field, Reason: err.Error(), Err: err}
	}
	return next, nil
}

// ComputeBalances loads a period and reduces it. For an empty period the
// report is returned together with core.ErrPeriodEmpty.
func (l *Ledger) ComputeBalances(ctx context.Context, period core.Period) (*BalanceReport, error) {
	start := time.Now()
	expenses, err := l.store.ListExpenses(ctx, period)
	if err != nil {
		return nil, core.NewPersistenceError("list expenses", err)
	}
	settlements, err := l.store.ListSettlements(ctx, period)
	if err != nil {
		return nil, core.NewPersistenceError("list settlements", err)
	}
	report, err := ComputeBalances(expenses, settlements, period)
	l.metrics.BalanceComputed(time.Since(start))
	return report, err
}

// ComputeBalancesForPeriods computes independent periods concurrently.
// Empty periods are not errors here; check BalanceReport.Empty.
func (l *Ledger) ComputeBalancesForPeriods(ctx context.Context, periods []core.Period) ([]*BalanceReport, error) {
	reports := make([]*BalanceReport, len(periods))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelPeriods)
	for i, p := range periods {
		g.Go(func() error {
			r, err := l.ComputeBalances(ctx, p)
			if err != nil && !errors.Is(err, core.ErrPeriodEmpty) {
				return fmt.Errorf("period %s: %w", p.Label, err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (l *Ledger) checkMembers(users ...string) error {
	if l.members == nil {
		return nil
	}
	for _, u := range users {
		if !l.members[u] {
			return &core.ValidationError{Field: "participants", Reason: "user " + u + " is not a household member"}
		}
	}
	return nil
}

// checkSplit rejects records the balancer could not resolve later.
func checkSplit(amount core.Money, policy core.SplitPolicy, participants []string, payer string) error {
	if _, err := ResolveSplit(amount, policy, participants, payer); err != nil {
		return &core.ValidationError{Field: "split_policy", Reason: err.Error(), Err: err}
	}
	return nil
}

// checkDefinition rejects definitions that could not be stored or
// materialized, including a schedule with no next date inside the calendar.
func (l *Ledger) checkDefinition(def core.RecurringDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if err := l.checkMembers(def.Participants...); err != nil {
		return err
	}
	if err := checkSplit(def.Amount, def.SplitPolicy, def.Participants, def.OwnerUserID); err != nil {
		return err
	}
	if _, err := TryAdvanceSchedule(def.NextDueDate, def.Frequency); err != nil {
		return &core.ValidationError{Field: "next_due_date", Reason: err.Error(), Err: err}
	}
	return nil
}

// CreateDefinition validates and stores a new recurring definition.
func (l *Ledger) CreateDefinition(ctx context.Context, def core.RecurringDefinition) (core.RecurringDefinition, error) {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if err := l.checkDefinition(def); err != nil {
		return def, err
	}
	if err := l.store.CreateRecurringDefinition(ctx, def); err != nil {
		return def, core.NewPersistenceError("create recurring definition", err)
	}
	slog.InfoContext(ctx, "Recurring definition created",
		"recurrent_id", def.ID,
		"owner", def.OwnerUserID,
		"frequency", def.Frequency.String(),
		"next_due_date", def.NextDueDate.String())
	return def, nil
}

// UpdateDefinition replaces every editable field. Past expenses are untouched.
func (l *Ledger) UpdateDefinition(ctx context.Context, def core.RecurringDefinition) (core.RecurringDefinition, error) {
	if err := l.checkDefinition(def); err != nil {
		return def, err
	}
	unlock := l.materializer.locks.Lock(def.ID)
	defer unlock()
	if err := l.store.UpdateRecurringDefinition(ctx, def); err != nil {
		return def, core.NewPersistenceError("update recurring definition", err)
	}
	return l.GetDefinition(ctx, def.ID)
}

// DeleteDefinition removes a definition. Expenses it produced are kept.
func (l *Ledger) DeleteDefinition(ctx context.Context, id string) error {
	unlock := l.materializer.locks.Lock(id)
	defer unlock()
	if err := l.store.DeleteRecurringDefinition(ctx, id); err != nil {
		return core.NewPersistenceError("delete recurring definition", err)
	}
	slog.InfoContext(ctx, "Recurring definition deleted", "recurrent_id", id)
	return nil
}

func (l *Ledger) GetDefinition(ctx context.Context, id string) (core.RecurringDefinition, error) {
	def, err := l.store.GetRecurringDefinition(ctx, id)
	if err != nil {
		return def, core.NewPersistenceError("get recurring definition", err)
	}
	return def, nil
}

// ListDefinitions lists definitions; an empty ownerID lists all.
func (l *Ledger) ListDefinitions(ctx context.Context, ownerID string) ([]core.RecurringDefinition, error) {
	defs, err := l.store.ListRecurringDefinitions(ctx, ownerID)
	if err != nil {
		return nil, core.NewPersistenceError("list recurring definitions", err)
	}
	return defs, nil
}

// UpcomingDates previews the next n due dates of a definition.
func (l *Ledger) UpcomingDates(ctx context.Context, id string, n int) ([]core.Date, error) {
	if n < 1 || n > 120 {
		return nil, &core.ValidationError{Field: "n", Reason: "must be between 1 and 120"}
	}
	def, err := l.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := def.Frequency.Validate(); err != nil {
		return nil, err
	}
	return Upcoming(def, n), nil
}

// RecordExpense stores a one-off expense.
func (l *Ledger) RecordExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.SourceRecurringID != "" {
		return e, &core.ValidationError{Field: "source_recurring_id", Reason: "set only by materialization"}
	}
	if err := e.Validate(); err != nil {
		return e, err
	}
	if err := l.checkMembers(e.Participants...); err != nil {
		return e, err
	}
	if err := checkSplit(e.Amount, e.SplitPolicy, e.Participants, e.PayerUserID); err != nil {
		return e, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}
	if err := l.store.CreateExpense(ctx, e); err != nil {
		return e, core.NewPersistenceError("create expense", err)
	}

	if l.publisher != nil {
		err := l.publisher.PublishExpenseRecorded(ctx, e)
		l.metrics.EventPublished("expense.recorded", err)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to publish expense", "expense_id", e.ID, "error", err)
		}
	}
	return e, nil
}

func (l *Ledger) ListExpenses(ctx context.Context, period core.Period) ([]core.Expense, error) {
	out, err := l.store.ListExpenses(ctx, period)
	if err != nil {
		return nil, core.NewPersistenceError("list expenses", err)
	}
	return out, nil
}

func (l *Ledger) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	e, err := l.store.GetExpense(ctx, id)
	if err != nil {
		return e, core.NewPersistenceError("get expense", err)
	}
	return e, nil
}

// RecordSettlement stores a payment. An empty PeriodLabel defaults to the
// month of the payment date.
func (l *Ledger) RecordSettlement(ctx context.Context, s core.Settlement) (core.Settlement, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.PeriodLabel == "" && !s.Date.IsZero() {
		s.PeriodLabel = core.PeriodOf(s.Date).Label
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	if err := l.checkMembers(s.FromUserID, s.ToUserID); err != nil {
		return s, err
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = l.now()
	}
	if err := l.store.CreateSettlement(ctx, s); err != nil {
		return s, core.NewPersistenceError("create settlement", err)
	}
	slog.InfoContext(ctx, "Settlement recorded",
		"settlement_id", s.ID,
		"from", s.FromUserID,
		"to", s.ToUserID,
		"amount_cents", s.Amount.Cents,
		"period", s.PeriodLabel)

	if l.publisher != nil {
		err := l.publisher.PublishSettlementRecorded(ctx, s)
		l.metrics.EventPublished("settlement.recorded", err)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to publish settlement", "settlement_id", s.ID, "error", err)
		}
	}
	return s, nil
}

// ListSettlements returns the settlement history of a period, newest first.
func (l *Ledger) ListSettlements(ctx context.Context, period core.Period) ([]core.Settlement, error) {
	out, err := l.store.ListSettlements(ctx, period)
	if err != nil {
		return nil, core.NewPersistenceError("list settlements", err)
	}
	return out, nil
}

// Ping checks the storage collaborator.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}
