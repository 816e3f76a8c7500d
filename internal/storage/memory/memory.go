// Package memory is an in-process storage.Gateway for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"conti/internal/core"
	"conti/internal/storage"
)

type Store struct {
	mu          sync.Mutex
	definitions map[string]core.RecurringDefinition
	expenses    map[string]core.Expense
	occurrences map[occurrenceKey]string
	settlements []core.Settlement
	now         func() time.Time
}

type occurrenceKey struct {
	definitionID string
	dueDate      string
}

var _ storage.Gateway = (*Store)(nil)

func New() *Store {
	return &Store{
		definitions: map[string]core.RecurringDefinition{},
		expenses:    map[string]core.Expense{},
		occurrences: map[occurrenceKey]string{},
		now:         time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error { return nil }

func cloneDefinition(d core.RecurringDefinition) core.RecurringDefinition {
	d.Participants = append([]string(nil), d.Participants...)
	return d
}

func cloneExpense(e core.Expense) core.Expense {
	e.Participants = append([]string(nil), e.Participants...)
	return e
}

func (s *Store) GetRecurringDefinition(_ context.Context, id string) (core.RecurringDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.definitions[id]
	if !ok {
		return core.RecurringDefinition{}, fmt.Errorf("recurring definition %s: %w", id, storage.ErrNotFound)
	}
	return cloneDefinition(d), nil
}

func (s *Store) ListRecurringDefinitions(_ context.Context, ownerID string) ([]core.RecurringDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.RecurringDefinition, 0, len(s.definitions))
	for _, d := range s.definitions {
		if ownerID != "" && d.OwnerUserID != ownerID {
			continue
		}
		out = append(out, cloneDefinition(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextDueDate.Equal(out[j].NextDueDate) {
			return out[i].NextDueDate.Before(out[j].NextDueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateRecurringDefinition(_ context.Context, d core.RecurringDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.definitions[d.ID]; ok {
		return fmt.Errorf("recurring definition %s: %w", d.ID, storage.ErrDuplicate)
	}
	now := s.now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	s.definitions[d.ID] = cloneDefinition(d)
	return nil
}

func (s *Store) UpdateRecurringDefinition(_ context.Context, d core.RecurringDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.definitions[d.ID]
	if !ok {
		return fmt.Errorf("recurring definition %s: %w", d.ID, storage.ErrNotFound)
	}
	d.CreatedAt = old.CreatedAt
	d.UpdatedAt = s.now()
	s.definitions[d.ID] = cloneDefinition(d)
	return nil
}

func (s *Store) AdvanceRecurringDefinition(_ context.Context, id string, from, to core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.definitions[id]
	if !ok {
		return fmt.Errorf("recurring definition %s: %w", id, storage.ErrNotFound)
	}
	if !d.NextDueDate.Equal(from) {
		return fmt.Errorf("recurring definition %s not due on %s: %w", id, from, storage.ErrConflict)
	}
	d.NextDueDate = to
	d.UpdatedAt = s.now()
	s.definitions[id] = d
	return nil
}

func (s *Store) DeleteRecurringDefinition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.definitions[id]; !ok {
		return fmt.Errorf("recurring definition %s: %w", id, storage.ErrNotFound)
	}
	delete(s.definitions, id)
	return nil
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[e.ID]; ok {
		return fmt.Errorf("expense %s: %w", e.ID, storage.ErrDuplicate)
	}
	var key occurrenceKey
	if e.SourceRecurringID != "" {
		key = occurrenceKey{e.SourceRecurringID, e.SourceDueDate.String()}
		if _, ok := s.occurrences[key]; ok {
			return fmt.Errorf("expense for %s on %s: %w", e.SourceRecurringID, e.SourceDueDate, storage.ErrDuplicate)
		}
		s.occurrences[key] = e.ID
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.expenses[e.ID] = cloneExpense(e)
	return nil
}

func (s *Store) GetExpense(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, storage.ErrNotFound)
	}
	return cloneExpense(e), nil
}

func (s *Store) ListExpenses(_ context.Context, p core.Period) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if p.Contains(e.Date) {
			out = append(out, cloneExpense(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateSettlement(_ context.Context, st core.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.settlements {
		if existing.ID == st.ID {
			return fmt.Errorf("settlement %s: %w", st.ID, storage.ErrDuplicate)
		}
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = s.now()
	}
	s.settlements = append(s.settlements, st)
	return nil
}

func (s *Store) ListSettlements(_ context.Context, p core.Period) ([]core.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Settlement
	for _, st := range s.settlements {
		if st.PeriodLabel == p.Label {
			out = append(out, st)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}
