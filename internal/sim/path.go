package sim

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"marketsim/models"
)

// RunPath simulates a close-only price series with one of the simple path
// models. The regime-switching model carries its own parameter set and goes
// through RunMarket instead.
func RunPath(kind models.ModelKind, p models.PathParams) ([]float64, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	rng := newRNG(p.Seed)
	switch kind {
	case models.ModelGBM:
		return gbmPath(p, rng), nil
	case models.ModelJumpDiffusion:
		return jumpDiffusionPath(p, rng), nil
	default:
		return nil, fmt.Errorf("%w: model %q has no path form", ErrConfiguration, kind)
	}
}

func gbmPath(p models.PathParams, rng *rand.Rand) []float64 {
	dt := p.HorizonYears / float64(p.Steps)
	prices := make([]float64, p.Steps+1)
	prices[0] = p.InitialValue
	for t := 0; t < p.Steps; t++ {
		z := rng.NormFloat64()
		prices[t+1] = prices[t] * math.Exp((p.Drift-0.5*p.Volatility*p.Volatility)*dt+p.Volatility*math.Sqrt(dt)*z)
	}
	return prices
}

func jumpDiffusionPath(p models.PathParams, rng *rand.Rand) []float64 {
	dt := p.HorizonYears / float64(p.Steps)
	prices := make([]float64, p.Steps+1)
	prices[0] = p.InitialValue
	for t := 0; t < p.Steps; t++ {
		z := rng.NormFloat64()
		diffusion := (p.Drift-0.5*p.Volatility*p.Volatility)*dt + p.Volatility*math.Sqrt(dt)*z
		jumps := 0.0
		for n := poisson(rng, p.JumpIntensity*dt); n > 0; n-- {
			jumps += p.JumpMean + p.JumpVolatility*rng.NormFloat64()
		}
		prices[t+1] = prices[t] * math.Exp(diffusion+jumps)
	}
	return prices
}

// poisson draws a Poisson count by inversion; mean is small here (jump
// intensity times one step).
func poisson(rng *rand.Rand, mean float64) int {
	if mean <= 0 {
		return 0
	}
	limit := math.Exp(-mean)
	k := 0
	p := 1.0
	for {
		p *= rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}

// OptionChain is a single-shot chain for the simple request path: one
// expiry, a percent-range strike grid, call and put prices per strike.
type OptionChain struct {
	Strikes    []float64 `json:"strikes"`
	Calls      []float64 `json:"calls"`
	Puts       []float64 `json:"puts"`
	ExpiryDays int       `json:"expiry_days"`
}

// GenerateOptionChain prices a linearly spaced strike grid around the
// current price with Black-Scholes. Every input must be strictly positive.
func GenerateOptionChain(currentPrice, strikeRangePercent float64, numStrikes, daysToExpiry int, volatility, riskFreeRate float64) (*OptionChain, error) {
	if currentPrice <= 0 || strikeRangePercent <= 0 || numStrikes <= 0 || daysToExpiry <= 0 || volatility <= 0 {
		return nil, fmt.Errorf("%w: price=%v range=%v strikes=%d days=%d sigma=%v",
			ErrNumericDomain, currentPrice, strikeRangePercent, numStrikes, daysToExpiry, volatility)
	}

	low := currentPrice * (1 - strikeRangePercent/100)
	high := currentPrice * (1 + strikeRangePercent/100)
	tte := float64(daysToExpiry) / 365.0

	chain := &OptionChain{
		Strikes:    make([]float64, numStrikes),
		Calls:      make([]float64, numStrikes),
		Puts:       make([]float64, numStrikes),
		ExpiryDays: daysToExpiry,
	}
	for i := 0; i < numStrikes; i++ {
		k := low
		if numStrikes > 1 {
			k = low + (high-low)*float64(i)/float64(numStrikes-1)
		}
		call, _ := bsmPrice(currentPrice, k, tte, riskFreeRate, volatility, true)
		put, _ := bsmPrice(currentPrice, k, tte, riskFreeRate, volatility, false)
		chain.Strikes[i] = k
		chain.Calls[i] = call
		chain.Puts[i] = put
	}
	return chain, nil
}
