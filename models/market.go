package models

import (
	"fmt"
	"math"
	"time"
)

// TransitionTolerance is the maximum allowed deviation of a transition
// matrix row sum from 1.
const TransitionTolerance = 1e-6

// Regime is a discrete market state with its own drift, base volatility and
// drift-tilt factor. Regimes are immutable once loaded and selected by index.
type Regime struct {
	Name  string  `json:"name" yaml:"name"`
	Mu    float64 `json:"mu" yaml:"mu"`
	Sigma float64 `json:"sigma" yaml:"sigma"`
	Theta float64 `json:"theta" yaml:"theta"`
}

// TransitionMatrix holds row-stochastic switching probabilities. Row i,
// column j is the probability of moving from regime i to regime j on the
// next step.
type TransitionMatrix [][]float64

// Validate checks that the matrix is square, matches the regime count and
// that every row sums to 1 within TransitionTolerance.
func (m TransitionMatrix) Validate(regimeCount int) error {
	if len(m) == 0 {
		return fmt.Errorf("transition matrix is empty")
	}
	if len(m) != regimeCount {
		return fmt.Errorf("transition matrix has %d rows for %d regimes", len(m), regimeCount)
	}
	for i, row := range m {
		if len(row) != len(m) {
			return fmt.Errorf("transition matrix row %d has %d columns, want %d", i, len(row), len(m))
		}
		sum := 0.0
		for j, p := range row {
			if p < 0 || math.IsNaN(p) {
				return fmt.Errorf("transition matrix entry [%d][%d] = %v is not a probability", i, j, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > TransitionTolerance {
			return fmt.Errorf("transition matrix row %d sums to %v, want 1", i, sum)
		}
	}
	return nil
}

// OptionSide identifies the contract side of an option record.
type OptionSide string

const (
	SideCall OptionSide = "CE"
	SidePut  OptionSide = "PE"
)

// IndexBar is one simulated OHLC bar of the underlying index. CloseEMA is
// NaN until enough closes have accumulated to fill the EMA window.
type IndexBar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	RegimeID  int       `json:"regime_id"`
	SigmaUsed float64   `json:"sigma_used"`
	CloseEMA  float64   `json:"close_ema"`
}

// OptionRecord is one priced contract at one timestamp. Pricing fields are
// written once by the chain pricer; OpenInterest is the only field mutated
// afterwards, by the open-interest engine.
type OptionRecord struct {
	Timestamp       time.Time  `json:"timestamp"`
	Strike          float64    `json:"strike"`
	Side            OptionSide `json:"side"`
	Close           float64    `json:"close"`
	Delta           float64    `json:"delta"`
	UnderlyingClose float64    `json:"underlying_close"`
	ExpiryDate      time.Time  `json:"expiry_date"`
	OpenInterest    int64      `json:"open_interest"`
}

// ModelKind selects the stochastic process used for a simulation run.
type ModelKind string

const (
	ModelGBM                 ModelKind = "GBM"
	ModelJumpDiffusion       ModelKind = "JUMP_DIFFUSION"
	ModelRegimeJumpDiffusion ModelKind = "REGIME_JUMP_DIFFUSION"
)

// PathParams parameterizes the simple close-only path models (GBM and
// Merton jump-diffusion). Jump fields are ignored for ModelGBM.
type PathParams struct {
	InitialValue   float64
	HorizonYears   float64
	Steps          int
	Drift          float64
	Volatility     float64
	JumpIntensity  float64
	JumpMean       float64
	JumpVolatility float64
	Seed           uint64
}

// Validate rejects parameter sets the path models cannot simulate.
func (p PathParams) Validate() error {
	if p.InitialValue <= 0 {
		return fmt.Errorf("initial value must be positive, got %v", p.InitialValue)
	}
	if p.HorizonYears <= 0 {
		return fmt.Errorf("time horizon must be positive, got %v", p.HorizonYears)
	}
	if p.Steps <= 0 {
		return fmt.Errorf("number of steps must be positive, got %d", p.Steps)
	}
	if p.Volatility <= 0 {
		return fmt.Errorf("volatility must be positive, got %v", p.Volatility)
	}
	if p.JumpIntensity < 0 {
		return fmt.Errorf("jump intensity must be non-negative, got %v", p.JumpIntensity)
	}
	return nil
}

// MarketParams is the validated input of the regime-switching market
// simulation: the index path, the per-step options chain and the
// open-interest pass all draw from it.
type MarketParams struct {
	InitialValue   float64
	HorizonDays    int
	SubSteps       int
	Regimes        []Regime
	Transition     TransitionMatrix
	JumpIntensity  float64
	JumpMean       float64
	JumpVolatility float64

	// EMAWindow is the close-EMA span used by the adaptive volatility
	// rule. Zero means the default of 30.
	EMAWindow int

	// OpenInterestTarget is the per-expiry total the OI initialization
	// phase normalizes to. Zero means the engine default.
	OpenInterestTarget float64

	// SessionStart anchors the simulated trading calendar. Zero means the
	// default session start.
	SessionStart time.Time

	Seed uint64
}

// Validate enforces the core's valid input domain before any simulation
// step runs.
func (p MarketParams) Validate() error {
	if p.InitialValue <= 0 {
		return fmt.Errorf("initial value must be positive, got %v", p.InitialValue)
	}
	if p.HorizonDays <= 0 {
		return fmt.Errorf("horizon days must be positive, got %d", p.HorizonDays)
	}
	if p.SubSteps <= 0 {
		return fmt.Errorf("sub-step count must be positive, got %d", p.SubSteps)
	}
	if len(p.Regimes) == 0 {
		return fmt.Errorf("at least one regime is required")
	}
	for i, r := range p.Regimes {
		if r.Sigma <= 0 {
			return fmt.Errorf("regime %d (%s) has non-positive sigma %v", i, r.Name, r.Sigma)
		}
	}
	if err := p.Transition.Validate(len(p.Regimes)); err != nil {
		return err
	}
	if p.JumpIntensity < 0 {
		return fmt.Errorf("jump intensity must be non-negative, got %v", p.JumpIntensity)
	}
	if p.JumpVolatility <= 0 {
		return fmt.Errorf("jump volatility must be positive, got %v", p.JumpVolatility)
	}
	if p.EMAWindow < 0 {
		return fmt.Errorf("ema window must be non-negative, got %d", p.EMAWindow)
	}
	if p.OpenInterestTarget < 0 {
		return fmt.Errorf("open interest target must be non-negative, got %v", p.OpenInterestTarget)
	}
	return nil
}
