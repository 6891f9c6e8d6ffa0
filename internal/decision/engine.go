// Package decision picks the side and size of the next trade for a token.
package decision

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/harmony-one/pump-fun-trading-bot/internal/domain"
	"github.com/harmony-one/pump-fun-trading-bot/internal/ethutil"
	"github.com/harmony-one/pump-fun-trading-bot/internal/randsrc"
)

type SizingMode string

const (
	// SizingRandom buys a random amount in [max/10, max].
	SizingRandom SizingMode = "random"
	// SizingFixed buys a fixed amount; sells only when FixedRandomSide is set.
	SizingFixed SizingMode = "fixed"
)

// DefaultFixedSize is the configured default for fixed mode. An explicit zero
// is honoured and yields zero-amount buys.
var DefaultFixedSize = decimal.RequireFromString("0.01")

// sellThreshold: a draw strictly above it turns a held position into a sell.
const sellThreshold = 0.5

type Policy struct {
	Mode            SizingMode
	MaxTradeSize    decimal.Decimal
	FixedTradeSize  decimal.Decimal
	FixedRandomSide bool
}

func ParseSizingMode(raw string) (SizingMode, error) {
	switch SizingMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SizingRandom:
		return SizingRandom, nil
	case SizingFixed:
		return SizingFixed, nil
	default:
		return "", fmt.Errorf("unknown sizing mode %q (want random or fixed)", raw)
	}
}

func (p Policy) Validate() error {
	switch p.Mode {
	case SizingRandom:
		if err := checkSize("max trade size", p.MaxTradeSize); err != nil {
			return err
		}
	case SizingFixed:
		if err := checkSize("fixed trade size", p.FixedTradeSize); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown sizing mode %q", p.Mode)
	}
	return nil
}

func checkSize(name string, v decimal.Decimal) error {
	if v.Sign() < 0 {
		return fmt.Errorf("%s must be >= 0, got %s", name, v)
	}
	if f := v.InexactFloat64(); math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Errorf("%s out of range: %s", name, v)
	}
	return nil
}

type Engine struct {
	policy Policy
	rand   randsrc.Source
}

func NewEngine(policy Policy, src randsrc.Source) (*Engine, error) {
	if policy.Mode == "" {
		policy.Mode = SizingRandom
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("random source required")
	}
	return &Engine{policy: policy, rand: src}, nil
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// Decide returns a BUY of the sized amount unless the account holds the token
// and the side draw exceeds one half, in which case the whole balance is sold.
// A nil balance counts as zero.
func (e *Engine) Decide(token domain.Token, balance *big.Int) domain.Decision {
	d := domain.Decision{
		Token:  token,
		Side:   domain.SideBuy,
		Amount: ethutil.ToWei(e.buySize()),
	}

	if !e.sideIsRandom() || balance == nil || balance.Sign() <= 0 {
		return d
	}
	if e.rand.Uniform() > sellThreshold {
		d.Side = domain.SideSell
		d.Amount = new(big.Int).Set(balance)
	}
	return d
}

func (e *Engine) sideIsRandom() bool {
	return e.policy.Mode == SizingRandom || e.policy.FixedRandomSide
}

// buySize is in native units.
func (e *Engine) buySize() decimal.Decimal {
	if e.policy.Mode == SizingFixed {
		return e.policy.FixedTradeSize
	}

	hi := e.policy.MaxTradeSize
	if hi.Sign() <= 0 {
		return decimal.Zero
	}
	lo := hi.Div(decimal.NewFromInt(10))

	frac := e.rand.UniformRange(0, 1)
	if math.IsNaN(frac) || math.IsInf(frac, 0) {
		frac = 0
	}
	v := lo.Add(hi.Sub(lo).Mul(decimal.NewFromFloat(frac)))
	// Sources outside this package may return fractions outside [0,1).
	if v.LessThan(lo) {
		v = lo
	}
	if v.GreaterThan(hi) {
		v = hi
	}
	return v
}
