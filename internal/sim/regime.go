package sim

import (
	"fmt"

	"golang.org/x/exp/rand"

	"marketsim/models"
)

// regimeChain is the discrete-state Markov chain driving the market
// simulation. The initial state is always regime 0.
type regimeChain struct {
	regimes []models.Regime
	cum     [][]float64
	state   int
	rng     *rand.Rand
}

// newRegimeChain validates the regimes and transition matrix and prepares
// cumulative rows for categorical sampling. Validation failures wrap
// ErrConfiguration.
func newRegimeChain(regimes []models.Regime, matrix models.TransitionMatrix, rng *rand.Rand) (*regimeChain, error) {
	if len(regimes) == 0 {
		return nil, fmt.Errorf("%w: no regimes configured", ErrConfiguration)
	}
	for i, r := range regimes {
		if r.Sigma <= 0 {
			return nil, fmt.Errorf("%w: regime %d (%s) has non-positive sigma %v", ErrConfiguration, i, r.Name, r.Sigma)
		}
	}
	if err := matrix.Validate(len(regimes)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	cum := make([][]float64, len(matrix))
	for i, row := range matrix {
		cum[i] = make([]float64, len(row))
		acc := 0.0
		for j, p := range row {
			acc += p
			cum[i][j] = acc
		}
	}

	return &regimeChain{regimes: regimes, cum: cum, rng: rng}, nil
}

// Next draws the next regime index from the current row's probability
// vector and advances the chain.
func (c *regimeChain) Next() int {
	row := c.cum[c.state]
	u := c.rng.Float64()
	next := len(row) - 1
	for j, threshold := range row {
		if u < threshold {
			next = j
			break
		}
	}
	c.state = next
	return next
}

// Current returns the regime parameters of the chain's current state.
func (c *regimeChain) Current() models.Regime {
	return c.regimes[c.state]
}

// State returns the current regime index.
func (c *regimeChain) State() int {
	return c.state
}
