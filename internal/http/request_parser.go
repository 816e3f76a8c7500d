// Package http serves the ledger as a JSON API.
//
// This file holds the helpers that turn query strings and request bodies into
// domain values, reporting failures as core.ValidationError.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"conti/internal/core"
)

// errEmptyBody marks a request without a body.
var errEmptyBody = errors.New("empty body")

const (
	// maxBodyBytes bounds JSON request bodies.
	maxBodyBytes = 64 << 10
	// maxRangePeriods bounds a from/to balance query.
	maxRangePeriods = 24
)

// ParsePeriodParam reads a YYYY-MM query parameter. A missing value defaults
// to the month containing now.
func ParsePeriodParam(query url.Values, key string, now time.Time) (core.Period, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return core.PeriodOf(core.DateOf(now)), nil
	}
	p, err := core.ParsePeriod(v)
	if err != nil {
		return core.Period{}, &core.ValidationError{Field: key, Reason: err.Error()}
	}
	return p, nil
}

// ParsePeriodRange reads from/to (inclusive) and lists the months between.
func ParsePeriodRange(query url.Values, now time.Time) ([]core.Period, error) {
	from, err := ParsePeriodParam(query, "from", now)
	if err != nil {
		return nil, err
	}
	to, err := ParsePeriodParam(query, "to", now)
	if err != nil {
		return nil, err
	}
	if to.Start.Before(from.Start) {
		return nil, &core.ValidationError{Field: "to", Reason: "before from"}
	}

	var periods []core.Period
	for p := from; !to.Start.Before(p.Start); p = p.Next() {
		if len(periods) == maxRangePeriods {
			return nil, &core.ValidationError{Field: "to", Reason: fmt.Sprintf("range exceeds %d months", maxRangePeriods)}
		}
		periods = append(periods, p)
	}
	return periods, nil
}

// ParseIntParam reads an integer query parameter with a default.
func ParseIntParam(query url.Values, key string, def int) (int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &core.ValidationError{Field: key, Reason: "not an integer"}
	}
	return n, nil
}

// ParseDateParam reads a required YYYY-MM-DD value.
func ParseDateParam(field, v string) (core.Date, error) {
	d, err := core.ParseDate(strings.TrimSpace(v))
	if err != nil {
		return core.Date{}, &core.ValidationError{Field: field, Reason: "want YYYY-MM-DD", Err: err}
	}
	return d, nil
}

// ParseAmount accepts integer cents or a decimal string, never a float.
// Cents win when both are present.
func ParseAmount(cents *int64, decimal string) (core.Money, error) {
	if cents != nil {
		m := core.Cents(*cents)
		if err := m.Validate(); err != nil {
			return core.Money{}, &core.ValidationError{Field: "amount_cents", Reason: err.Error(), Err: err}
		}
		return m, nil
	}
	if strings.TrimSpace(decimal) == "" {
		return core.Money{}, &core.ValidationError{Field: "amount", Reason: "required"}
	}
	m, err := core.ParseMoney(decimal)
	if err != nil {
		return core.Money{}, &core.ValidationError{Field: "amount", Reason: err.Error(), Err: err}
	}
	return m, nil
}

// DecodeJSON reads a single JSON object into dst. Unknown fields are
// rejected so typos surface as errors.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return &core.ValidationError{Reason: "request body is empty", Err: errEmptyBody}
		case errors.As(err, &maxErr):
			return &core.ValidationError{Reason: "request body too large"}
		default:
			return &core.ValidationError{Reason: "malformed JSON: " + err.Error()}
		}
	}
	if dec.More() {
		return &core.ValidationError{Reason: "request body must hold a single JSON object"}
	}
	return nil
}

// sanitizeInput removes control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func sanitizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, sanitizeInput(s))
	}
	return out
}
