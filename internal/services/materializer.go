package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"conti/internal/core"
	"conti/internal/metrics"
	"conti/internal/storage"

	"github.com/google/uuid"
)

// DefaultMaxCatchUp bounds how many missed occurrences ProcessDue creates
// for one definition in a single pass.
const DefaultMaxCatchUp = 24

// occurrenceNamespace seeds deterministic expense IDs.
var occurrenceNamespace = uuid.MustParse("6f1c2a9e-3d4b-5c8e-9a7f-2b1d0e4c6a83")

// OccurrenceID is the expense ID for the occurrence of definitionID due on
// dueDate. The same pair always yields the same ID.
func OccurrenceID(definitionID string, dueDate core.Date) string {
	return uuid.NewSHA1(occurrenceNamespace, []byte(definitionID+"|"+dueDate.String())).String()
}

// EventPublisher notifies downstream consumers about ledger changes.
type EventPublisher interface {
	PublishExpenseMaterialized(ctx context.Context, e core.Expense) error
	PublishExpenseRecorded(ctx context.Context, e core.Expense) error
	PublishSettlementRecorded(ctx context.Context, s core.Settlement) error
}

// Materializer turns due occurrences of recurring definitions into expenses
// and advances the definitions' schedules.
//
// Writes for one definition are serialized in-process. Across processes the
// storage layer's unique (definition, due date) key and the compare-and-swap
// on next_due_date keep materialization idempotent.
type Materializer struct {
	store      storage.Gateway
	publisher  EventPublisher
	metrics    *metrics.Metrics
	locks      keyedMutex
	now        func() time.Time
	MaxCatchUp int
}

// NewMaterializer creates a materializer. publisher and m may be nil.
func NewMaterializer(store storage.Gateway, publisher EventPublisher, m *metrics.Metrics) *Materializer {
	return &Materializer{
		store:      store,
		publisher:  publisher,
		metrics:    m,
		now:        time.Now,
		MaxCatchUp: DefaultMaxCatchUp,
	}
}

// Materialize creates the expense for the due date in def, the caller's
// snapshot. If the stored definition has already moved past it and that
// occurrence has an expense, ErrAlreadyMaterialized is returned and nothing
// is written.
func (m *Materializer) Materialize(ctx context.Context, def core.RecurringDefinition) (core.Expense, error) {
	return m.MaterializeAt(ctx, def.ID, def.NextDueDate)
}

// MaterializeByID creates the expense for the definition's current due date,
// regardless of whether that date has been reached ("generate now").
func (m *Materializer) MaterializeByID(ctx context.Context, id string) (core.Expense, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	def, err := m.load(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	return m.materializeLocked(ctx, def)
}

// MaterializeAt creates the expense for the occurrence of definition id due
// on due, which must not be after the definition's NextDueDate.
//
// At NextDueDate it behaves like Materialize. An earlier date is a backfill:
// the expense is created if that occurrence has none yet, and the schedule
// does not move. An occurrence that already has an expense yields the stored
// expense with core.ErrAlreadyMaterialized.
func (m *Materializer) MaterializeAt(ctx context.Context, id string, due core.Date) (core.Expense, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	def, err := m.load(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	switch {
	case due.After(def.NextDueDate):
		return core.Expense{}, &core.ValidationError{Field: "due_date", Reason: "after the next due date " + def.NextDueDate.String()}
	case due.Equal(def.NextDueDate):
		return m.materializeLocked(ctx, def)
	}
	return m.backfillLocked(ctx, def, due)
}

// backfillLocked must be called with def.ID locked.
func (m *Materializer) backfillLocked(ctx context.Context, def core.RecurringDefinition, due core.Date) (core.Expense, error) {
	exp := NewExpenseFromDefinition(def, due, m.now())
	stored, err := m.store.GetExpense(ctx, exp.ID)
	switch {
	case err == nil:
		m.metrics.Materialization(metrics.OutcomeAlready)
		return stored, ErrAlreadyMaterializedFor(def.ID, due)
	case !errors.Is(err, storage.ErrNotFound):
		m.metrics.Materialization(metrics.OutcomeFailed)
		return core.Expense{}, core.NewPersistenceError("get expense", err)
	}

	if err := m.store.CreateExpense(ctx, exp); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			m.metrics.Materialization(metrics.OutcomeAlready)
			return core.Expense{}, ErrAlreadyMaterializedFor(def.ID, due)
		}
		m.metrics.Materialization(metrics.OutcomeFailed)
		return core.Expense{}, core.NewPersistenceError("create expense", err)
	}

	m.metrics.Materialization(metrics.OutcomeCreated)
	slog.InfoContext(ctx, "Backfilled expense for past occurrence",
		"recurrent_id", def.ID,
		"expense_id", exp.ID,
		"due_date", due.String(),
		"next_due_date", def.NextDueDate.String())
	m.publish(ctx, exp)
	return exp, nil
}

func (m *Materializer) load(ctx context.Context, id string) (core.RecurringDefinition, error) {
	def, err := m.store.GetRecurringDefinition(ctx, id)
	if err != nil {
		return def, core.NewPersistenceError("get recurring definition", err)
	}
	if err := def.Validate(); err != nil {
		return def, fmt.Errorf("recurring definition %s: %w", id, err)
	}
	return def, nil
}

// ErrAlreadyMaterializedFor annotates core.ErrAlreadyMaterialized.
func ErrAlreadyMaterializedFor(id string, due core.Date) error {
	return fmt.Errorf("definition %s due %s: %w", id, due, core.ErrAlreadyMaterialized)
}

// NewExpenseFromDefinition builds the expense for the occurrence due on due.
// The expense is dated on the due date, not on the day it was created.
func NewExpenseFromDefinition(def core.RecurringDefinition, due core.Date, createdAt time.Time) core.Expense {
	return core.Expense{
		ID:                OccurrenceID(def.ID, due),
		SourceRecurringID: def.ID,
		SourceDueDate:     due,
		Date:              due,
		Amount:            def.Amount,
		Category:          def.Category,
		Location:          def.Location,
		Description:       def.Description,
		SplitPolicy:       def.SplitPolicy,
		Participants:      append([]string(nil), def.Participants...),
		PayerUserID:       def.OwnerUserID,
		CreatedAt:         createdAt,
	}
}

// materializeLocked must be called with def.ID locked.
func (m *Materializer) materializeLocked(ctx context.Context, def core.RecurringDefinition) (core.Expense, error) {
	due := def.NextDueDate
	next, err := TryAdvanceSchedule(due, def.Frequency)
	if err != nil {
		m.metrics.Materialization(metrics.OutcomeFailed)
		return core.Expense{}, &core.ValidationError{Field: "next_due_date", Reason: err.Error(), Err: err}
	}
	exp := NewExpenseFromDefinition(def, due, m.now())

	recovered := false
	if err := m.store.CreateExpense(ctx, exp); err != nil {
		if !errors.Is(err, storage.ErrDuplicate) {
			m.metrics.Materialization(metrics.OutcomeFailed)
			return core.Expense{}, core.NewPersistenceError("create expense", err)
		}
		// A previous attempt wrote the expense but not the schedule.
		recovered = true
		slog.WarnContext(ctx, "Expense already exists for occurrence, completing schedule advance",
			"recurrent_id", def.ID,
			"due_date", due.String())
	}

	if err := m.store.AdvanceRecurringDefinition(ctx, def.ID, due, next); err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict) && recovered:
			m.metrics.Materialization(metrics.OutcomeAlready)
			return core.Expense{}, ErrAlreadyMaterializedFor(def.ID, due)
		case errors.Is(err, storage.ErrConflict):
			// Our insert won; a concurrent recovery already moved the schedule.
			slog.WarnContext(ctx, "Schedule advanced concurrently after expense was created",
				"recurrent_id", def.ID,
				"due_date", due.String())
			m.metrics.Materialization(metrics.OutcomeCreated)
			m.publish(ctx, exp)
			return exp, nil
		}
		m.metrics.Materialization(metrics.OutcomeFailed)
		return core.Expense{}, core.NewPersistenceError("advance recurring definition", err)
	}

	if recovered {
		m.metrics.Materialization(metrics.OutcomeAlready)
		if stored, err := m.store.GetExpense(ctx, exp.ID); err == nil {
			exp = stored
		}
		return exp, ErrAlreadyMaterializedFor(def.ID, due)
	}

	m.metrics.Materialization(metrics.OutcomeCreated)
	slog.InfoContext(ctx, "Created expense from recurring definition",
		"recurrent_id", def.ID,
		"expense_id", exp.ID,
		"due_date", due.String(),
		"next_due_date", next.String(),
		"amount_cents", exp.Amount.Cents,
		"frequency", def.Frequency.String())

	m.publish(ctx, exp)
	return exp, nil
}

func (m *Materializer) publish(ctx context.Context, exp core.Expense) {
	if m.publisher == nil {
		return
	}
	err := m.publisher.PublishExpenseMaterialized(ctx, exp)
	m.metrics.EventPublished("expense.materialized", err)
	if err != nil {
		// The expense is stored; the mirror can be rebuilt from storage.
		slog.ErrorContext(ctx, "Failed to publish materialized expense",
			"expense_id", exp.ID,
			"error", err)
	}
}

// ProcessDue materializes every occurrence due on or before now, for every
// definition, catching up at most MaxCatchUp occurrences per definition.
// Failures are logged per definition and do not stop the pass.
func (m *Materializer) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	defs, err := m.store.ListRecurringDefinitions(ctx, "")
	if err != nil {
		return 0, core.NewPersistenceError("list recurring definitions", err)
	}
	today := core.DateOf(now)

	slog.InfoContext(ctx, "Processing recurring definitions",
		"total", len(defs),
		"processing_date", today.String())

	processed := 0
	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if !IsDue(def, today) {
			continue
		}
		n, err := m.catchUp(ctx, def.ID, today)
		processed += n
		if err != nil {
			slog.ErrorContext(ctx, "Failed to materialize recurring definition",
				"recurrent_id", def.ID,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "Recurring processing complete",
		"processed", processed,
		"total_checked", len(defs))
	return processed, nil
}

func (m *Materializer) catchUp(ctx context.Context, id string, today core.Date) (int, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	limit := m.MaxCatchUp
	if limit <= 0 {
		limit = DefaultMaxCatchUp
	}
	n := 0
	for i := 0; i < limit; i++ {
		def, err := m.load(ctx, id)
		if err != nil {
			return n, err
		}
		if !IsDue(def, today) {
			return n, nil
		}
		_, err = m.materializeLocked(ctx, def)
		switch {
		case err == nil:
			n++
		case errors.Is(err, core.ErrAlreadyMaterialized):
			// Another process got there first; re-read and continue.
		default:
			return n, err
		}
	}
	slog.WarnContext(ctx, "Catch-up limit reached, remaining occurrences deferred",
		"recurrent_id", id,
		"limit", limit)
	return n, nil
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*refMutex{}
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
