package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"conti/internal/core"
	ports "conti/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config selects the spreadsheet and credentials. Sheet names are bases;
// the client prefixes the record's year ("2025 Expenses").
type Config struct {
	SpreadsheetID    string
	ExpensesSheet    string
	SettlementsSheet string
	// CredentialsJSON wins over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string
}

// valuesAPI is the slice of the Sheets values API the client needs.
type valuesAPI interface {
	Get(ctx context.Context, rng string) ([][]any, error)
	Update(ctx context.Context, rng string, rows [][]any) error
}

// sheetIndex remembers which IDs a sheet holds and how many rows it has.
type sheetIndex struct {
	rows      map[string]int
	count     int
	expiresAt time.Time
}

type Client struct {
	values           valuesAPI
	expensesSheet    string
	settlementsSheet string

	mu                 sync.Mutex
	index              map[string]*sheetIndex
	cacheValidDuration time.Duration
	now                func() time.Time
}

var _ ports.Mirror = (*Client)(nil)

// New creates a Sheets mirror authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, cfg.CredentialsJSON, cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(&serviceValues{svc: svc, spreadsheetID: cfg.SpreadsheetID}, cfg), nil
}

func newClient(values valuesAPI, cfg Config) *Client {
	if cfg.ExpensesSheet == "" {
		cfg.ExpensesSheet = "Expenses"
	}
	if cfg.SettlementsSheet == "" {
		cfg.SettlementsSheet = "Settlements"
	}
	return &Client{
		values:             values,
		expensesSheet:      cfg.ExpensesSheet,
		settlementsSheet:   cfg.SettlementsSheet,
		index:              make(map[string]*sheetIndex),
		cacheValidDuration: 5 * time.Minute,
		now:                time.Now,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, credentialsJSON, credentialsFile string) (*gsheet.Service, error) {
	var creds []byte
	switch {
	case strings.TrimSpace(credentialsJSON) != "":
		creds = []byte(credentialsJSON)
	case strings.TrimSpace(credentialsFile) != "":
		b, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		creds = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "credentials_size", len(creds))
	return service, nil
}

// AppendExpense writes e to the expenses sheet of its year.
func (c *Client) AppendExpense(ctx context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	sheet := yearPrefixedName(c.expensesSheet, e.Date.Year())
	return c.appendRow(ctx, sheet, expenseHeader, e.ID, expenseRow(e))
}

// AppendSettlement writes s to the settlements sheet of its year.
func (c *Client) AppendSettlement(ctx context.Context, s core.Settlement) (string, error) {
	if err := s.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	sheet := yearPrefixedName(c.settlementsSheet, s.Date.Year())
	return c.appendRow(ctx, sheet, settlementHeader, s.ID, settlementRow(s))
}

// appendRow writes row after the last used row unless id is already in
// column A. An empty sheet gets the header first.
func (c *Client) appendRow(ctx context.Context, sheet string, header []any, id string, row []any) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.loadIndex(ctx, sheet)
	if err != nil {
		return "", err
	}
	if n, ok := idx.rows[id]; ok {
		slog.DebugContext(ctx, "Row already mirrored", "sheet", sheet, "id", id, "row", n)
		return rowRange(sheet, n, len(row)), nil
	}

	if idx.count == 0 {
		if err := c.values.Update(ctx, rowRange(sheet, 1, len(header)), [][]any{header}); err != nil {
			delete(c.index, sheet)
			return "", fmt.Errorf("write header to %s: %w", sheet, err)
		}
		idx.count = 1
	}

	next := idx.count + 1
	ref := rowRange(sheet, next, len(row))
	if err := c.values.Update(ctx, ref, [][]any{row}); err != nil {
		// The row count may be stale; reread on the next call.
		delete(c.index, sheet)
		return "", fmt.Errorf("write %s: %w", ref, err)
	}
	idx.rows[id] = next
	idx.count = next
	return ref, nil
}

// loadIndex returns the cached index of sheet, reading column A when the
// cache is cold or expired. Callers hold c.mu.
func (c *Client) loadIndex(ctx context.Context, sheet string) (*sheetIndex, error) {
	if idx, ok := c.index[sheet]; ok && c.now().Before(idx.expiresAt) {
		return idx, nil
	}
	rng := fmt.Sprintf("%s!A:A", sheet)
	values, err := c.values.Get(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	idx := &sheetIndex{
		rows:      make(map[string]int, len(values)),
		count:     len(values),
		expiresAt: c.now().Add(c.cacheValidDuration),
	}
	for i, r := range values {
		cols := toStrings(r)
		if len(cols) == 0 || cols[0] == "" {
			continue
		}
		idx.rows[cols[0]] = i + 1
	}
	c.index[sheet] = idx
	return idx, nil
}

// InvalidateRowCache forces the next append to reread every sheet.
func (c *Client) InvalidateRowCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*sheetIndex)
}

// serviceValues adapts the generated Sheets client to valuesAPI.
type serviceValues struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (s *serviceValues) Get(ctx context.Context, rng string) ([][]any, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *serviceValues) Update(ctx context.Context, rng string, rows [][]any) error {
	vr := &gsheet.ValueRange{Values: rows}
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}
