// Package postgres implements storage.Gateway on PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"conti/internal/core"
	"conti/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

var _ storage.Gateway = (*Repository)(nil)

// New connects to databaseURL and applies migrations.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	r := &Repository{pool: pool}
	if err := r.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return r, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func dateOrNil(d core.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.Time
}

func stringOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const definitionColumns = `id, owner_user_id, amount_cents, category, location, description,
	frequency, split_policy, participants, next_due_date, created_at, updated_at`

func scanDefinition(row pgx.Row) (core.RecurringDefinition, error) {
	var d core.RecurringDefinition
	var freq, policy string
	var due time.Time
	err := row.Scan(&d.ID, &d.OwnerUserID, &d.Amount.Cents, &d.Category, &d.Location, &d.Description,
		&freq, &policy, &d.Participants, &due, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}
	d.NextDueDate = core.DateOf(due)
	if d.Frequency, err = storage.DecodeFrequency(freq); err != nil {
		return d, err
	}
	d.SplitPolicy, err = storage.DecodeSplitPolicy(policy)
	return d, err
}

func (r *Repository) GetRecurringDefinition(ctx context.Context, id string) (core.RecurringDefinition, error) {
	d, err := scanDefinition(r.pool.QueryRow(ctx,
		`SELECT `+definitionColumns+` FROM recurring_definitions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return d, fmt.Errorf("recurring definition %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return d, fmt.Errorf("get recurring definition: %w", err)
	}
	return d, nil
}

func (r *Repository) ListRecurringDefinitions(ctx context.Context, ownerID string) ([]core.RecurringDefinition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+definitionColumns+` FROM recurring_definitions
		 WHERE $1 = '' OR owner_user_id = $1
		 ORDER BY next_due_date, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list recurring definitions: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringDefinition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring definition: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) CreateRecurringDefinition(ctx context.Context, d core.RecurringDefinition) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO recurring_definitions (`+definitionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())`,
		d.ID, d.OwnerUserID, d.Amount.Cents, d.Category, d.Location, d.Description,
		d.Frequency.String(), d.SplitPolicy.String(), d.Participants, d.NextDueDate.Time, d.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("recurring definition %s: %w", d.ID, storage.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create recurring definition: %w", err)
	}
	return nil
}

func (r *Repository) UpdateRecurringDefinition(ctx context.Context, d core.RecurringDefinition) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE recurring_definitions SET owner_user_id = $1, amount_cents = $2, category = $3,
		 location = $4, description = $5, frequency = $6, split_policy = $7, participants = $8,
		 next_due_date = $9, updated_at = NOW()
		 WHERE id = $10`,
		d.OwnerUserID, d.Amount.Cents, d.Category, d.Location, d.Description,
		d.Frequency.String(), d.SplitPolicy.String(), d.Participants, d.NextDueDate.Time, d.ID)
	if err != nil {
		return fmt.Errorf("update recurring definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recurring definition %s: %w", d.ID, storage.ErrNotFound)
	}
	return nil
}

func (r *Repository) AdvanceRecurringDefinition(ctx context.Context, id string, from, to core.Date) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE recurring_definitions SET next_due_date = $1, updated_at = NOW()
		 WHERE id = $2 AND next_due_date = $3`,
		to.Time, id, from.Time)
	if err != nil {
		return fmt.Errorf("advance recurring definition: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetRecurringDefinition(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("recurring definition %s not due on %s: %w", id, from, storage.ErrConflict)
}

func (r *Repository) DeleteRecurringDefinition(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM recurring_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete recurring definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recurring definition %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

const expenseColumns = `id, source_recurring_id, source_due_date, date, amount_cents, category, location,
	description, split_policy, participants, payer_user_id, created_at`

func scanExpense(row pgx.Row) (core.Expense, error) {
	var e core.Expense
	var srcID *string
	var srcDue *time.Time
	var date time.Time
	var policy string
	err := row.Scan(&e.ID, &srcID, &srcDue, &date, &e.Amount.Cents, &e.Category, &e.Location,
		&e.Description, &policy, &e.Participants, &e.PayerUserID, &e.CreatedAt)
	if err != nil {
		return e, err
	}
	if srcID != nil {
		e.SourceRecurringID = *srcID
	}
	if srcDue != nil {
		e.SourceDueDate = core.DateOf(*srcDue)
	}
	e.Date = core.DateOf(date)
	e.SplitPolicy, err = storage.DecodeSplitPolicy(policy)
	return e, err
}

func (r *Repository) CreateExpense(ctx context.Context, e core.Expense) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO expenses (`+expenseColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, stringOrNil(e.SourceRecurringID), dateOrNil(e.SourceDueDate), e.Date.Time, e.Amount.Cents,
		e.Category, e.Location, e.Description, e.SplitPolicy.String(), e.Participants, e.PayerUserID, e.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("expense %s: %w", e.ID, storage.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	return nil
}

func (r *Repository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	e, err := scanExpense(r.pool.QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return e, fmt.Errorf("expense %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return e, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (r *Repository) ListExpenses(ctx context.Context, p core.Period) ([]core.Expense, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE date >= $1 AND date < $2
		 ORDER BY date DESC, created_at DESC, id`, p.Start.Time, p.End.Time)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const settlementColumns = `id, date, amount_cents, from_user_id, to_user_id, period_label, created_at`

func (r *Repository) CreateSettlement(ctx context.Context, s core.Settlement) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO settlements (`+settlementColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.Date.Time, s.Amount.Cents, s.FromUserID, s.ToUserID, s.PeriodLabel, s.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("settlement %s: %w", s.ID, storage.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create settlement: %w", err)
	}
	return nil
}

func (r *Repository) ListSettlements(ctx context.Context, p core.Period) ([]core.Settlement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+settlementColumns+` FROM settlements
		 WHERE period_label = $1
		 ORDER BY date DESC, created_at DESC, id`, p.Label)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var out []core.Settlement
	for rows.Next() {
		var s core.Settlement
		var date time.Time
		if err := rows.Scan(&s.ID, &date, &s.Amount.Cents, &s.FromUserID, &s.ToUserID, &s.PeriodLabel, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		s.Date = core.DateOf(date)
		out = append(out, s)
	}
	return out, rows.Err()
}
