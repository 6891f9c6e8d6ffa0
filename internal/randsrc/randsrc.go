// Package randsrc provides the uniform random draws used for trade side
// selection and trade sizing.
//
// Both draws come from one ChaCha8 stream seeded from crypto/rand. None of the
// draws protect a secret (the strategy is public); side selection only needs
// an unbiased source with at least 32 bits per draw, which ChaCha8 exceeds.
package randsrc

import (
	crand "crypto/rand"
	"fmt"
	"math/rand/v2"
	"sync"
)

type Source interface {
	// Uniform returns a float in [0,1).
	Uniform() float64
	// UniformRange returns a float in [min,max). It returns min when max <= min.
	UniformRange(min, max float64) float64
}

type ChaCha struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func New() (*ChaCha, error) {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("seed random source: %w", err)
	}
	return NewSeeded(seed), nil
}

// NewSeeded returns a deterministic source. Intended for replaying a run.
func NewSeeded(seed [32]byte) *ChaCha {
	return &ChaCha{rng: rand.New(rand.NewChaCha8(seed))}
}

func (c *ChaCha) Uniform() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64()
}

func (c *ChaCha) UniformRange(min, max float64) float64 {
	if max <= min {
		return min
	}
	c.mu.Lock()
	f := c.rng.Float64()
	c.mu.Unlock()

	v := min + f*(max-min)
	// Float rounding can land exactly on max for tiny ranges.
	if v >= max {
		return min
	}
	return v
}

// Fixed returns constant draws.
//   - Uniform returns Value
//   - UniformRange returns min + Fraction*(max-min)
type Fixed struct {
	Value    float64
	Fraction float64
}

func (f Fixed) Uniform() float64 { return f.Value }

func (f Fixed) UniformRange(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + f.Fraction*(max-min)
}
