package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"conti/internal/core"
)

// Column encodings shared by the SQL adapters.

func EncodeParticipants(p []string) (string, error) {
	if p == nil {
		p = []string{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode participants: %w", err)
	}
	return string(b), nil
}

func DecodeParticipants(s string) ([]string, error) {
	var p []string
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("decode participants %q: %w", s, err)
	}
	return p, nil
}

func DecodeFrequency(s string) (core.Frequency, error) {
	f, err := core.ParseFrequency(s)
	if err != nil {
		return core.Frequency{}, fmt.Errorf("decode frequency: %w", err)
	}
	return f, nil
}

func DecodeSplitPolicy(s string) (core.SplitPolicy, error) {
	p, err := core.ParseSplitPolicy(s)
	if err != nil {
		return core.SplitPolicy{}, fmt.Errorf("decode split policy: %w", err)
	}
	return p, nil
}

const timestampLayout = time.RFC3339Nano

func EncodeTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func DecodeTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timestampLayout, s)
}

// nullableDate maps the zero Date to SQL NULL.
func nullableDate(d core.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
