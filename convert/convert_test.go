package convert

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/afrarahimemadak/stellarwork"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestToLedgerAmount(t *testing.T) {
	tests := []struct {
		name    string
		fiat    string
		rate    string
		want    string
		wantErr error
	}{
		{"whole", "125.00", "0.10", "1250.0000000", nil},
		{"cents", "0.01", "0.10", "0.1000000", nil},
		{"rounds half away from zero", "0.00000005", "1", "0.0000001", nil},
		{"repeating", "1", "3", "0.3333333", nil},
		{"below one stroop", "0.00000001", "1", "", stellarwork.ErrAmountTooSmall},
		{"zero", "0", "0.10", "", stellarwork.ErrInvalidInput},
		{"negative", "-5", "0.10", "", stellarwork.ErrInvalidInput},
		{"zero rate", "5", "0", "", stellarwork.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToLedgerAmount(d(tt.fiat), d(tt.rate))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if FormatLedger(got) != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, FormatLedger(got))
			}
		})
	}
}

func TestRoundTripWithinOneUnit(t *testing.T) {
	rates := []string{"0.10", "0.1234567", "1", "0.3"}
	amounts := []string{"0.01", "1", "3.33", "125.00", "99999.99", "0.07"}
	unit := decimal.New(1, -stellarwork.LedgerPrecision)

	for _, r := range rates {
		for _, f := range amounts {
			rate, fiat := d(r), d(f)
			ledger, err := ToLedgerAmount(fiat, rate)
			if err != nil {
				t.Fatalf("ToLedgerAmount(%s, %s): %v", f, r, err)
			}
			back, err := ToFiat(ledger, rate)
			if err != nil {
				t.Fatalf("ToFiat(%s, %s): %v", ledger, r, err)
			}
			bound := rate.Mul(unit)
			if back.Sub(fiat).Abs().GreaterThan(bound) {
				t.Errorf("round trip of %s at %s drifted to %s (bound %s)", f, r, back, bound)
			}
		}
	}
}

func TestToFiat(t *testing.T) {
	got, err := ToFiat(d("1250.0000000"), d("0.10"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if FormatDisplay(got) != "125.00" {
		t.Errorf("Expected 125.00, got %s", FormatDisplay(got))
	}

	if zero, err := ToFiat(decimal.Zero, d("0.10")); err != nil || !zero.IsZero() {
		t.Errorf("Expected zero balance to convert to zero, got %s, %v", zero, err)
	}
	if _, err := ToFiat(d("-1"), d("0.10")); !errors.Is(err, stellarwork.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if _, err := ToFiat(d("1"), decimal.Zero); !errors.Is(err, stellarwork.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero rate, got %v", err)
	}
}

func TestFiatTotal(t *testing.T) {
	tests := []struct {
		hours, rate, want string
		wantErr           error
	}{
		{"2.5", "50", "125.00", nil},
		{"1", "33.333", "33.33", nil},
		{"0.5", "0.01", "0.01", nil},
		{"0.1", "0.01", "", stellarwork.ErrAmountTooSmall},
		{"0", "50", "", stellarwork.ErrInvalidInput},
		{"3", "-1", "", stellarwork.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.hours+"x"+tt.rate, func(t *testing.T) {
			got, err := FiatTotal(d(tt.hours), d(tt.rate))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if FormatDisplay(got) != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, FormatDisplay(got))
			}
		})
	}
}

func TestNewQuote(t *testing.T) {
	q, err := NewQuote(d("2.5"), d("50"), DefaultRate)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if q.FiatDisplay() != "125.00" {
		t.Errorf("Expected fiat 125.00, got %s", q.FiatDisplay())
	}
	if q.LedgerDisplay() != "1250.0000000" {
		t.Errorf("Expected ledger 1250.0000000, got %s", q.LedgerDisplay())
	}

	if _, err := NewQuote(d("0"), d("50"), DefaultRate); !errors.Is(err, stellarwork.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestParse(t *testing.T) {
	if v, err := Parse("12.50"); err != nil || !v.Equal(d("12.5")) {
		t.Errorf("Expected 12.5, got %s, %v", v, err)
	}
	for _, in := range []string{"", "abc", "1.2.3"} {
		if _, err := Parse(in); !errors.Is(err, stellarwork.ErrInvalidInput) {
			t.Errorf("Parse(%q): expected ErrInvalidInput, got %v", in, err)
		}
	}
}
