package domain

import (
	"fmt"
	"strings"

	"freight-commission-ledger/pkg/apperror"

	"github.com/shopspring/decimal"
)

// CommissionPolicy turns an offer price into the commission held against it.
// The rate is kept as an exact ratio so "1/3" does not lose precision.
type CommissionPolicy struct {
	num      decimal.Decimal
	den      decimal.Decimal
	scale    int32
	currency string
}

// NewCommissionPolicy parses rate as either a decimal ("0.01") or a ratio ("1/100").
func NewCommissionPolicy(rate string, scale int32, currency string) (CommissionPolicy, error) {
	rate = strings.TrimSpace(rate)
	num, den := rate, "1"
	if i := strings.IndexByte(rate, '/'); i >= 0 {
		num, den = strings.TrimSpace(rate[:i]), strings.TrimSpace(rate[i+1:])
	}

	n, err := decimal.NewFromString(num)
	if err != nil {
		return CommissionPolicy{}, fmt.Errorf("commission rate %q: %w", rate, err)
	}
	d, err := decimal.NewFromString(den)
	if err != nil {
		return CommissionPolicy{}, fmt.Errorf("commission rate %q: %w", rate, err)
	}
	if d.Sign() <= 0 || n.Sign() <= 0 {
		return CommissionPolicy{}, fmt.Errorf("commission rate %q must be positive", rate)
	}
	if n.GreaterThan(d) {
		return CommissionPolicy{}, fmt.Errorf("commission rate %q exceeds 100%%", rate)
	}
	if scale < 0 {
		return CommissionPolicy{}, fmt.Errorf("currency scale must not be negative")
	}

	return CommissionPolicy{num: n, den: d, scale: scale, currency: currency}, nil
}

func (p CommissionPolicy) Currency() string { return p.currency }
func (p CommissionPolicy) Scale() int32     { return p.scale }

// Rate returns the multiplier as a decimal, rounded for display only.
func (p CommissionPolicy) Rate() decimal.Decimal {
	return p.num.DivRound(p.den, 8)
}

// Commission computes round_half_up(price * rate) at the currency scale.
func (p CommissionPolicy) Commission(price decimal.Decimal) (decimal.Decimal, error) {
	if err := p.ValidateAmount(price); err != nil {
		return decimal.Zero, err
	}
	c := price.Mul(p.num).DivRound(p.den, p.scale)
	if !c.IsPositive() {
		return decimal.Zero, apperror.Validation("Price is too small to carry a commission")
	}
	return c, nil
}

// ValidateAmount rejects non-positive amounts and amounts finer than the currency scale.
func (p CommissionPolicy) ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperror.ErrInvalidAmount()
	}
	if !amount.Equal(amount.Truncate(p.scale)) {
		return apperror.Validation(fmt.Sprintf("Amount has more than %d decimal places", p.scale))
	}
	return nil
}
