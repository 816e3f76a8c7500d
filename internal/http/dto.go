package http

import (
	"sort"
	"time"

	"conti/internal/core"
	"conti/internal/services"
)

type definitionRequest struct {
	OwnerUserID  string   `json:"owner_user_id"`
	Amount       string   `json:"amount"`
	AmountCents  *int64   `json:"amount_cents"`
	Category     string   `json:"category"`
	Location     string   `json:"location"`
	Description  string   `json:"description"`
	Frequency    string   `json:"frequency"`
	SplitPolicy  string   `json:"split_policy"`
	Participants []string `json:"participants"`
	NextDueDate  string   `json:"next_due_date"`
}

func (req definitionRequest) toDefinition(id string) (core.RecurringDefinition, error) {
	amount, err := ParseAmount(req.AmountCents, req.Amount)
	if err != nil {
		return core.RecurringDefinition{}, err
	}
	freq, err := core.ParseFrequency(req.Frequency)
	if err != nil {
		return core.RecurringDefinition{}, &core.ValidationError{Field: "frequency", Reason: err.Error(), Err: err}
	}
	policy, err := core.ParseSplitPolicy(req.SplitPolicy)
	if err != nil {
		return core.RecurringDefinition{}, &core.ValidationError{Field: "split_policy", Reason: err.Error(), Err: err}
	}
	due, err := ParseDateParam("next_due_date", req.NextDueDate)
	if err != nil {
		return core.RecurringDefinition{}, err
	}
	return core.RecurringDefinition{
		ID:           id,
		OwnerUserID:  sanitizeInput(req.OwnerUserID),
		Amount:       amount,
		Category:     sanitizeInput(req.Category),
		Location:     sanitizeInput(req.Location),
		Description:  sanitizeInput(req.Description),
		Frequency:    freq,
		SplitPolicy:  policy,
		Participants: sanitizeAll(req.Participants),
		NextDueDate:  due,
	}, nil
}

type expenseRequest struct {
	Date         string   `json:"date"`
	Amount       string   `json:"amount"`
	AmountCents  *int64   `json:"amount_cents"`
	Category     string   `json:"category"`
	Location     string   `json:"location"`
	Description  string   `json:"description"`
	SplitPolicy  string   `json:"split_policy"`
	Participants []string `json:"participants"`
	PayerUserID  string   `json:"payer_user_id"`
}

func (req expenseRequest) toExpense() (core.Expense, error) {
	amount, err := ParseAmount(req.AmountCents, req.Amount)
	if err != nil {
		return core.Expense{}, err
	}
	policy, err := core.ParseSplitPolicy(req.SplitPolicy)
	if err != nil {
		return core.Expense{}, &core.ValidationError{Field: "split_policy", Reason: err.Error(), Err: err}
	}
	date, err := ParseDateParam("date", req.Date)
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		Date:         date,
		Amount:       amount,
		Category:     sanitizeInput(req.Category),
		Location:     sanitizeInput(req.Location),
		Description:  sanitizeInput(req.Description),
		SplitPolicy:  policy,
		Participants: sanitizeAll(req.Participants),
		PayerUserID:  sanitizeInput(req.PayerUserID),
	}, nil
}

type settlementRequest struct {
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	AmountCents *int64 `json:"amount_cents"`
	FromUserID  string `json:"from_user_id"`
	ToUserID    string `json:"to_user_id"`
	Period      string `json:"period"`
}

func (req settlementRequest) toSettlement() (core.Settlement, error) {
	amount, err := ParseAmount(req.AmountCents, req.Amount)
	if err != nil {
		return core.Settlement{}, err
	}
	date, err := ParseDateParam("date", req.Date)
	if err != nil {
		return core.Settlement{}, err
	}
	s := core.Settlement{
		Date:       date,
		Amount:     amount,
		FromUserID: sanitizeInput(req.FromUserID),
		ToUserID:   sanitizeInput(req.ToUserID),
	}
	if req.Period != "" {
		p, err := core.ParsePeriod(req.Period)
		if err != nil {
			return core.Settlement{}, &core.ValidationError{Field: "period", Reason: err.Error()}
		}
		s.PeriodLabel = p.Label
	}
	return s, nil
}

type materializeRequest struct {
	DueDate string `json:"due_date"`
}

// moneyJSON carries both exact cents and a display string.
type moneyJSON struct {
	Cents     int64  `json:"cents"`
	Formatted string `json:"formatted"`
}

func (s *Server) money(m core.Money) moneyJSON {
	return moneyJSON{Cents: m.Cents, Formatted: m.Format(s.currency)}
}

type definitionResponse struct {
	ID               string    `json:"id"`
	OwnerUserID      string    `json:"owner_user_id"`
	Amount           moneyJSON `json:"amount"`
	Category         string    `json:"category"`
	Location         string    `json:"location,omitempty"`
	Description      string    `json:"description,omitempty"`
	Frequency        string    `json:"frequency"`
	FrequencyDisplay string    `json:"frequency_display"`
	SplitPolicy      string    `json:"split_policy"`
	Participants     []string  `json:"participants"`
	NextDueDate      core.Date `json:"next_due_date"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (s *Server) definitionJSON(d core.RecurringDefinition) definitionResponse {
	return definitionResponse{
		ID:               d.ID,
		OwnerUserID:      d.OwnerUserID,
		Amount:           s.money(d.Amount),
		Category:         d.Category,
		Location:         d.Location,
		Description:      d.Description,
		Frequency:        d.Frequency.String(),
		FrequencyDisplay: d.Frequency.DisplayName(),
		SplitPolicy:      d.SplitPolicy.String(),
		Participants:     d.Participants,
		NextDueDate:      d.NextDueDate,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

type expenseResponse struct {
	ID                string     `json:"id"`
	SourceRecurringID string     `json:"source_recurring_id,omitempty"`
	SourceDueDate     *core.Date `json:"source_due_date,omitempty"`
	Date              core.Date  `json:"date"`
	Amount            moneyJSON  `json:"amount"`
	Category          string     `json:"category"`
	Location          string     `json:"location,omitempty"`
	Description       string     `json:"description,omitempty"`
	SplitPolicy       string     `json:"split_policy"`
	Participants      []string   `json:"participants"`
	PayerUserID       string     `json:"payer_user_id"`
	CreatedAt         time.Time  `json:"created_at"`
}

func (s *Server) expenseJSON(e core.Expense) expenseResponse {
	out := expenseResponse{
		ID:                e.ID,
		SourceRecurringID: e.SourceRecurringID,
		Date:              e.Date,
		Amount:            s.money(e.Amount),
		Category:          e.Category,
		Location:          e.Location,
		Description:       e.Description,
		SplitPolicy:       e.SplitPolicy.String(),
		Participants:      e.Participants,
		PayerUserID:       e.PayerUserID,
		CreatedAt:         e.CreatedAt,
	}
	if e.IsMaterialized() {
		due := e.SourceDueDate
		out.SourceDueDate = &due
	}
	return out
}

type settlementResponse struct {
	ID         string    `json:"id"`
	Date       core.Date `json:"date"`
	Amount     moneyJSON `json:"amount"`
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	Period     string    `json:"period"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Server) settlementJSON(st core.Settlement) settlementResponse {
	return settlementResponse{
		ID:         st.ID,
		Date:       st.Date,
		Amount:     s.money(st.Amount),
		FromUserID: st.FromUserID,
		ToUserID:   st.ToUserID,
		Period:     st.PeriodLabel,
		CreatedAt:  st.CreatedAt,
	}
}

type netJSON struct {
	UserID string    `json:"user_id"`
	Net    moneyJSON `json:"net"`
}

type pairJSON struct {
	Debtor   string    `json:"debtor"`
	Creditor string    `json:"creditor"`
	Amount   moneyJSON `json:"amount"`
}

type transferJSON struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Amount moneyJSON `json:"amount"`
}

type balanceResponse struct {
	Period          string         `json:"period"`
	Previous        string         `json:"previous"`
	Next            string         `json:"next"`
	Empty           bool           `json:"empty"`
	Total           moneyJSON      `json:"total"`
	ExpenseCount    int            `json:"expense_count"`
	SettlementCount int            `json:"settlement_count"`
	Nets            []netJSON      `json:"nets"`
	Pairwise        []pairJSON     `json:"pairwise"`
	Transfers       []transferJSON `json:"transfers"`
}

// balanceJSON flattens the report maps into sorted lists. Pairwise entries
// are oriented so the amount is positive; settled pairs are omitted.
func (s *Server) balanceJSON(r *services.BalanceReport) balanceResponse {
	out := balanceResponse{
		Period:          r.Period.Label,
		Previous:        r.Period.Prev().Label,
		Next:            r.Period.Next().Label,
		Empty:           r.Empty(),
		Total:           s.money(r.Total),
		ExpenseCount:    r.ExpenseCount,
		SettlementCount: r.SettlementCount,
		Nets:            []netJSON{},
		Pairwise:        []pairJSON{},
		Transfers:       []transferJSON{},
	}
	for _, u := range r.Users() {
		out.Nets = append(out.Nets, netJSON{UserID: u, Net: s.money(r.Nets[u])})
	}
	for pair, amt := range r.Pairwise {
		switch {
		case amt.IsZero():
			continue
		case amt.IsNegative():
			out.Pairwise = append(out.Pairwise, pairJSON{Debtor: pair.B, Creditor: pair.A, Amount: s.money(amt.Neg())})
		default:
			out.Pairwise = append(out.Pairwise, pairJSON{Debtor: pair.A, Creditor: pair.B, Amount: s.money(amt)})
		}
	}
	sort.Slice(out.Pairwise, func(i, j int) bool {
		if out.Pairwise[i].Debtor != out.Pairwise[j].Debtor {
			return out.Pairwise[i].Debtor < out.Pairwise[j].Debtor
		}
		return out.Pairwise[i].Creditor < out.Pairwise[j].Creditor
	})
	for _, t := range r.Transfers {
		out.Transfers = append(out.Transfers, transferJSON{From: t.From, To: t.To, Amount: s.money(t.Amount)})
	}
	return out
}
