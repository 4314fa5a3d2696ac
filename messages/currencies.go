package messages

import (
	"github.com/shopspring/decimal"
)

// Currency describes the fixed-point rules for one currency code: how many
// decimals an amount must carry and how a display string is composed.
type Currency struct {
	Code        string
	Symbol      string
	SymbolFirst bool
	Decimals    int32
}

var currencies = map[string]Currency{
	"USD": {Code: "USD", Symbol: "$ ", SymbolFirst: true, Decimals: 2},
	"EUR": {Code: "EUR", Symbol: " €", SymbolFirst: false, Decimals: 2},
	"GBP": {Code: "GBP", Symbol: "£ ", SymbolFirst: true, Decimals: 2},
}

// CurrencyFromCode resolves a currency code against the configured table.
func CurrencyFromCode(code string) (Currency, error) {
	c, ok := currencies[code]
	if !ok {
		return Currency{}, Errf(MalformedMessage, "unknown currency %q", code)
	}
	return c, nil
}

// ValidateAmount checks that the amount is positive and carries exactly the
// currency's declared number of decimals. "12.5" is not a valid USD amount,
// "12.50" is.
func (c Currency) ValidateAmount(amount decimal.Decimal) error {
	if amount.Exponent() != -c.Decimals {
		return Errf(MalformedMessage, "amount %s must have %d decimals for %s",
			amount.String(), c.Decimals, c.Code)
	}
	if amount.IsNegative() {
		return Errf(MalformedMessage, "amount %s must not be negative", amount.String())
	}
	return nil
}

// FormatAmount renders an amount with the currency symbol in its
// conventional position, e.g. "$ 12.50" for USD.
func (c Currency) FormatAmount(amount decimal.Decimal) (string, error) {
	if err := c.ValidateAmount(amount); err != nil {
		return "", err
	}
	if c.SymbolFirst {
		return c.Symbol + amount.StringFixed(c.Decimals), nil
	}
	return amount.StringFixed(c.Decimals) + c.Symbol, nil
}
