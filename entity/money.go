// Package entity defines data models for the Przelewy24 payment service.
package entity

import (
	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code accepted by Przelewy24.
type Currency string

const (
	PLN Currency = "PLN"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	CZK Currency = "CZK"
	USD Currency = "USD"
	BGN Currency = "BGN"
	DKK Currency = "DKK"
	HUF Currency = "HUF"
	NOK Currency = "NOK"
	SEK Currency = "SEK"
	CHF Currency = "CHF"
	RON Currency = "RON"
	HRK Currency = "HRK"
)

var supportedCurrencies = map[Currency]struct{}{
	PLN: {}, EUR: {}, GBP: {}, CZK: {}, USD: {}, BGN: {}, DKK: {},
	HUF: {}, NOK: {}, SEK: {}, CHF: {}, RON: {}, HRK: {},
}

// Supported reports whether the gateway accepts the currency.
func (c Currency) Supported() bool {
	_, ok := supportedCurrencies[c]
	return ok
}

var hundred = decimal.NewFromInt(100)

// Money pairs a decimal amount with its currency. The gateway works in the
// lowest currency unit (grosz, cent), so every amount crosses the wire as an
// integer; conversion is exact or rejected, never rounded.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

// Validate checks the currency and the amount scale before any network call.
func (m Money) Validate() error {
	if !m.Currency.Supported() {
		return Errf(ErrValidation, "money", "unsupported currency %q", m.Currency)
	}
	if m.Amount.IsNegative() {
		return Errf(ErrValidation, "money", "negative amount %s", m.Amount)
	}
	if !m.Amount.Mul(hundred).IsInteger() {
		return Errf(ErrValidation, "money", "amount %s has more than two decimal places", m.Amount)
	}
	return nil
}

// LowestUnit converts the amount to an integer count of minor units.
func (m Money) LowestUnit() (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	return m.Amount.Mul(hundred).IntPart(), nil
}

// MoneyFromLowestUnit converts an integer minor-unit amount back to Money.
// Round trip holds for any amount with at most two decimal places.
func MoneyFromLowestUnit(amount int64, currency Currency) Money {
	return Money{
		Amount:   decimal.New(amount, -2),
		Currency: currency,
	}
}
