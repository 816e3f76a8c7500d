package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"conti/internal/core"
)

func TestParsePeriodParam(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		want    string
		wantErr bool
	}{
		{"explicit", url.Values{"period": {"2024-12"}}, "2024-12", false},
		{"defaults to now", url.Values{}, "2025-02", false},
		{"blank defaults to now", url.Values{"period": {"  "}}, "2025-02", false},
		{"bad month", url.Values{"period": {"2024-13"}}, "", true},
		{"wrong layout", url.Values{"period": {"12/2024"}}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePeriodParam(tt.query, "period", testNow)
			if tt.wantErr {
				if !errors.Is(err, core.ErrValidation) {
					t.Fatalf("err = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Label != tt.want {
				t.Errorf("period = %s, want %s", p.Label, tt.want)
			}
		})
	}
}

func TestParsePeriodRange(t *testing.T) {
	periods, err := ParsePeriodRange(url.Values{"from": {"2024-11"}, "to": {"2025-02"}}, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var labels []string
	for _, p := range periods {
		labels = append(labels, p.Label)
	}
	if strings.Join(labels, ",") != "2024-11,2024-12,2025-01,2025-02" {
		t.Errorf("periods = %v", labels)
	}

	if _, err := ParsePeriodRange(url.Values{"from": {"2023-01"}, "to": {"2024-12"}}, testNow); err != nil {
		t.Errorf("24 months should be accepted: %v", err)
	}
	if _, err := ParsePeriodRange(url.Values{"from": {"2023-01"}, "to": {"2025-01"}}, testNow); err == nil {
		t.Error("25 months should be rejected")
	}
}

func TestParseAmount(t *testing.T) {
	cents := func(v int64) *int64 { return &v }
	tests := []struct {
		name    string
		cents   *int64
		decimal string
		want    int64
		wantErr string
	}{
		{"cents", cents(1234), "", 1234, ""},
		{"cents win", cents(100), "99.99", 100, ""},
		{"decimal dot", nil, "12.34", 1234, ""},
		{"decimal comma", nil, "12,34", 1234, ""},
		{"half up", nil, "0.005", 1, ""},
		{"zero cents", cents(0), "", 0, "amount_cents"},
		{"negative cents", cents(-5), "", 0, "amount_cents"},
		{"missing", nil, "", 0, "amount"},
		{"garbage", nil, "12abc", 0, "amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.cents, tt.decimal)
			if tt.wantErr != "" {
				var ve *core.ValidationError
				if !errors.As(err, &ve) || ve.Field != tt.wantErr {
					t.Fatalf("err = %v, want validation error on %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Cents != tt.want {
				t.Errorf("cents = %d, want %d", got.Cents, tt.want)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
		empty   bool
	}{
		{"valid", `{"name":"rent"}`, false, false},
		{"empty", ``, true, true},
		{"unknown field", `{"nme":"rent"}`, true, false},
		{"trailing object", `{"name":"a"}{"name":"b"}`, true, false},
		{"too large", `{"name":"` + strings.Repeat("x", maxBodyBytes) + `"}`, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := DecodeJSON(httptest.NewRecorder(), req, &p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, core.ErrValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
			if errors.Is(err, errEmptyBody) != tt.empty {
				t.Errorf("empty body detection = %v, want %v", errors.Is(err, errEmptyBody), tt.empty)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  rent\x00\x07 march\t "); got != "rent march" {
		t.Errorf("sanitizeInput = %q", got)
	}
}
