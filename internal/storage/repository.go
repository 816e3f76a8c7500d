package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"conti/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository implements Gateway on a local SQLite file.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ Gateway = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Migrations first: they need the file to themselves.
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type rowScanner interface {
	Scan(dest ...any) error
}

const definitionColumns = `id, owner_user_id, amount_cents, category, location, description,
	frequency, split_policy, participants, next_due_date, created_at, updated_at`

func scanDefinition(row rowScanner) (core.RecurringDefinition, error) {
	var d core.RecurringDefinition
	var freq, policy, parts, due, created, updated string
	if err := row.Scan(&d.ID, &d.OwnerUserID, &d.Amount.Cents, &d.Category, &d.Location, &d.Description,
		&freq, &policy, &parts, &due, &created, &updated); err != nil {
		return d, err
	}
	var err error
	if d.Frequency, err = DecodeFrequency(freq); err != nil {
		return d, err
	}
	if d.SplitPolicy, err = DecodeSplitPolicy(policy); err != nil {
		return d, err
	}
	if d.Participants, err = DecodeParticipants(parts); err != nil {
		return d, err
	}
	if d.NextDueDate, err = core.ParseDate(due); err != nil {
		return d, err
	}
	if d.CreatedAt, err = DecodeTimestamp(created); err != nil {
		return d, err
	}
	d.UpdatedAt, err = DecodeTimestamp(updated)
	return d, err
}

func (r *SQLiteRepository) GetRecurringDefinition(ctx context.Context, id string) (core.RecurringDefinition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM recurring_definitions WHERE id = ?`, id)
	d, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("recurring definition %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return d, fmt.Errorf("get recurring definition: %w", err)
	}
	return d, nil
}

func (r *SQLiteRepository) ListRecurringDefinitions(ctx context.Context, ownerID string) ([]core.RecurringDefinition, error) {
	q := `SELECT ` + definitionColumns + ` FROM recurring_definitions`
	var args []any
	if ownerID != "" {
		q += ` WHERE owner_user_id = ?`
		args = append(args, ownerID)
	}
	q += ` ORDER BY next_due_date, id`

	rows, err := r.db.QueryContext(ctx, q, args...)
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

func (r *SQLiteRepository) CreateRecurringDefinition(ctx context.Context, d core.RecurringDefinition) error {
	parts, err := EncodeParticipants(d.Participants)
	if err != nil {
		return err
	}
	now := r.now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO recurring_definitions (`+definitionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.OwnerUserID, d.Amount.Cents, d.Category, d.Location, d.Description,
		d.Frequency.String(), d.SplitPolicy.String(), parts, d.NextDueDate.String(),
		EncodeTimestamp(d.CreatedAt), EncodeTimestamp(now))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("recurring definition %s: %w", d.ID, ErrDuplicate)
		}
		return fmt.Errorf("create recurring definition: %w", err)
	}
	slog.InfoContext(ctx, "Recurring definition saved to SQLite",
		"id", d.ID,
		"amount_cents", d.Amount.Cents,
		"frequency", d.Frequency.String(),
		"next_due_date", d.NextDueDate.String())
	return nil
}

func (r *SQLiteRepository) UpdateRecurringDefinition(ctx context.Context, d core.RecurringDefinition) error {
	parts, err := EncodeParticipants(d.Participants)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE recurring_definitions SET
		owner_user_id = ?, amount_cents = ?, category = ?, location = ?, description = ?,
		frequency = ?, split_policy = ?, participants = ?, next_due_date = ?, updated_at = ?
		WHERE id = ?`,
		d.OwnerUserID, d.Amount.Cents, d.Category, d.Location, d.Description,
		d.Frequency.String(), d.SplitPolicy.String(), parts, d.NextDueDate.String(),
		EncodeTimestamp(r.now()), d.ID)
	if err != nil {
		return fmt.Errorf("update recurring definition: %w", err)
	}
	return expectOneRow(res, "recurring definition "+d.ID, ErrNotFound)
}

func (r *SQLiteRepository) AdvanceRecurringDefinition(ctx context.Context, id string, from, to core.Date) error {
	res, err := r.db.ExecContext(ctx, `UPDATE recurring_definitions
		SET next_due_date = ?, updated_at = ?
		WHERE id = ? AND next_due_date = ?`,
		to.String(), EncodeTimestamp(r.now()), id, from.String())
	if err != nil {
		return fmt.Errorf("advance recurring definition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance recurring definition: %w", err)
	}
	if n == 1 {
		return nil
	}
	// Distinguish a missing row from a moved due date.
	if _, err := r.GetRecurringDefinition(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("recurring definition %s not due on %s: %w", id, from, ErrConflict)
}

func (r *SQLiteRepository) DeleteRecurringDefinition(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recurring_definitions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recurring definition: %w", err)
	}
	return expectOneRow(res, "recurring definition "+id, ErrNotFound)
}

func expectOneRow(res sql.Result, what string, sentinel error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, sentinel)
	}
	return nil
}

const expenseColumns = `id, source_recurring_id, source_due_date, date, amount_cents, category, location,
	description, split_policy, participants, payer_user_id, created_at`

func scanExpense(row rowScanner) (core.Expense, error) {
	var e core.Expense
	var srcID, srcDue sql.NullString
	var date, policy, parts, created string
	if err := row.Scan(&e.ID, &srcID, &srcDue, &date, &e.Amount.Cents, &e.Category, &e.Location,
		&e.Description, &policy, &parts, &e.PayerUserID, &created); err != nil {
		return e, err
	}
	var err error
	e.SourceRecurringID = srcID.String
	if srcDue.Valid {
		if e.SourceDueDate, err = core.ParseDate(srcDue.String); err != nil {
			return e, err
		}
	}
	if e.Date, err = core.ParseDate(date); err != nil {
		return e, err
	}
	if e.SplitPolicy, err = DecodeSplitPolicy(policy); err != nil {
		return e, err
	}
	if e.Participants, err = DecodeParticipants(parts); err != nil {
		return e, err
	}
	e.CreatedAt, err = DecodeTimestamp(created)
	return e, err
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) error {
	parts, err := EncodeParticipants(e.Participants)
	if err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, nullableString(e.SourceRecurringID), nullableDate(e.SourceDueDate), e.Date.String(),
		e.Amount.Cents, e.Category, e.Location, e.Description, e.SplitPolicy.String(), parts,
		e.PayerUserID, EncodeTimestamp(e.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("expense %s: %w", e.ID, ErrDuplicate)
		}
		return fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"amount_cents", e.Amount.Cents,
		"date", e.Date.String(),
		"recurrent_id", e.SourceRecurringID)
	return nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return e, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, p core.Period) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+expenseColumns+` FROM expenses
		WHERE date >= ? AND date < ?
		ORDER BY date DESC, created_at DESC, id`, p.Start.String(), p.End.String())
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

func scanSettlement(row rowScanner) (core.Settlement, error) {
	var s core.Settlement
	var date, created string
	if err := row.Scan(&s.ID, &date, &s.Amount.Cents, &s.FromUserID, &s.ToUserID, &s.PeriodLabel, &created); err != nil {
		return s, err
	}
	var err error
	if s.Date, err = core.ParseDate(date); err != nil {
		return s, err
	}
	s.CreatedAt, err = DecodeTimestamp(created)
	return s, err
}

func (r *SQLiteRepository) CreateSettlement(ctx context.Context, s core.Settlement) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO settlements (`+settlementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Date.String(), s.Amount.Cents, s.FromUserID, s.ToUserID, s.PeriodLabel, EncodeTimestamp(s.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("settlement %s: %w", s.ID, ErrDuplicate)
		}
		return fmt.Errorf("create settlement: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListSettlements(ctx context.Context, p core.Period) ([]core.Settlement, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+settlementColumns+` FROM settlements
		WHERE period_label = ?
		ORDER BY date DESC, created_at DESC, id`, p.Label)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var out []core.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
