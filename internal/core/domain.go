package core

import (
	"strings"
	"time"
)

// MaxDescriptionLength bounds free-text descriptions.
const MaxDescriptionLength = 200

type (
	// RecurringDefinition is a template for a charge that repeats on a schedule.
	RecurringDefinition struct {
		ID           string
		OwnerUserID  string
		Amount       Money
		Category     string
		Location     string
		Description  string
		Frequency    Frequency
		SplitPolicy  SplitPolicy
		Participants []string
		NextDueDate  Date
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	// Expense is a concrete dated charge paid by one participant.
	// SourceRecurringID and SourceDueDate are set when the expense was
	// materialized from a RecurringDefinition; the reference is weak.
	Expense struct {
		ID                string
		SourceRecurringID string
		SourceDueDate     Date
		Date              Date
		Amount            Money
		Category          string
		Location          string
		Description       string
		SplitPolicy       SplitPolicy
		Participants      []string
		PayerUserID       string
		CreatedAt         time.Time
	}

	// Settlement is a recorded real-world payment between two users.
	Settlement struct {
		ID          string
		Date        Date
		Amount      Money
		FromUserID  string
		ToUserID    string
		PeriodLabel string
		CreatedAt   time.Time
	}
)

// Equal compares two policies by value.
func (p SplitPolicy) Equal(o SplitPolicy) bool {
	return p.Kind == o.Kind && p.Owner == o.Owner && p.Percent.Equal(o.Percent)
}

// IsMaterialized reports whether the expense came from a recurring definition.
func (e Expense) IsMaterialized() bool {
	return e.SourceRecurringID != ""
}

func validateText(category, description string) error {
	if strings.TrimSpace(category) == "" {
		return invalidErr("category", ErrEmptyCategory)
	}
	if len(description) > MaxDescriptionLength {
		return invalid("description", "too long (max 200 characters)")
	}
	return nil
}

func validateParticipants(participants []string, members ...string) error {
	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if strings.TrimSpace(p) == "" {
			return invalid("participants", "empty user id")
		}
		if seen[p] {
			return invalid("participants", "duplicate user "+p)
		}
		seen[p] = true
	}
	if len(seen) < 2 {
		return invalid("participants", "at least two participants required")
	}
	for _, m := range members {
		if !seen[m] {
			return invalid("participants", "user "+m+" is not a participant")
		}
	}
	return nil
}

func validatePolicy(p SplitPolicy, participants []string) error {
	if err := p.Validate(); err != nil {
		return invalidErr("split_policy", err)
	}
	if p.Kind == SplitOwned {
		return validateParticipants(participants, p.Owner)
	}
	return nil
}

func (d RecurringDefinition) Validate() error {
	if strings.TrimSpace(d.OwnerUserID) == "" {
		return invalid("owner_user_id", "required")
	}
	if err := d.Amount.Validate(); err != nil {
		return invalidErr("amount", err)
	}
	if err := validateText(d.Category, d.Description); err != nil {
		return err
	}
	if err := d.Frequency.Validate(); err != nil {
		return invalidErr("frequency", err)
	}
	if err := d.NextDueDate.Validate(); err != nil {
		return invalidErr("next_due_date", err)
	}
	if err := validateParticipants(d.Participants, d.OwnerUserID); err != nil {
		return err
	}
	return validatePolicy(d.SplitPolicy, d.Participants)
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return invalidErr("date", err)
	}
	if err := e.Amount.Validate(); err != nil {
		return invalidErr("amount", err)
	}
	if err := validateText(e.Category, e.Description); err != nil {
		return err
	}
	if strings.TrimSpace(e.PayerUserID) == "" {
		return invalid("payer_user_id", "required")
	}
	if err := validateParticipants(e.Participants, e.PayerUserID); err != nil {
		return err
	}
	return validatePolicy(e.SplitPolicy, e.Participants)
}

func (s Settlement) Validate() error {
	if err := s.Date.Validate(); err != nil {
		return invalidErr("date", err)
	}
	if err := s.Amount.Validate(); err != nil {
		return invalidErr("amount", err)
	}
	if strings.TrimSpace(s.FromUserID) == "" || strings.TrimSpace(s.ToUserID) == "" {
		return invalid("users", "from and to are required")
	}
	if s.FromUserID == s.ToUserID {
		return invalid("users", "cannot settle with yourself")
	}
	if _, err := ParsePeriod(s.PeriodLabel); err != nil {
		return invalidErr("period", err)
	}
	return nil
}
