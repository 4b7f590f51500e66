package convert

import "github.com/shopspring/decimal"

// Quote is the price of a job in fiat and in the native asset.
type Quote struct {
	Hours        decimal.Decimal `json:"hours"`
	HourlyRate   decimal.Decimal `json:"hourlyRate"`
	Rate         decimal.Decimal `json:"rate"`
	FiatAmount   decimal.Decimal `json:"fiatAmount"`
	LedgerAmount decimal.Decimal `json:"ledgerAmount"`
}

// NewQuote prices hours at hourlyRate and converts the total at rate.
func NewQuote(hours, hourlyRate, rate decimal.Decimal) (*Quote, error) {
	fiat, err := FiatTotal(hours, hourlyRate)
	if err != nil {
		return nil, err
	}
	ledger, err := ToLedgerAmount(fiat, rate)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Hours:        hours,
		HourlyRate:   hourlyRate,
		Rate:         rate,
		FiatAmount:   fiat,
		LedgerAmount: ledger,
	}, nil
}

// FiatDisplay is the fiat total with two decimals.
func (q *Quote) FiatDisplay() string {
	return FormatDisplay(q.FiatAmount)
}

// LedgerDisplay is the native amount with seven decimals.
func (q *Quote) LedgerDisplay() string {
	return FormatLedger(q.LedgerAmount)
}
