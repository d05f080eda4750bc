package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsim/models"
)

func singleRegimeParams(sigma, jumpIntensity, jumpMean float64) models.MarketParams {
	return models.MarketParams{
		InitialValue:   22500,
		HorizonDays:    1,
		SubSteps:       10,
		Regimes:        []models.Regime{{Name: "base", Mu: 0.05, Sigma: sigma}},
		Transition:     models.TransitionMatrix{{1}},
		JumpIntensity:  jumpIntensity,
		JumpMean:       jumpMean,
		JumpVolatility: 0.1,
		Seed:           99,
	}
}

func newTestEngine(t *testing.T, p models.MarketParams) *priceEngine {
	t.Helper()
	rng := newRNG(p.Seed)
	chain, err := newRegimeChain(p.Regimes, p.Transition, rng)
	require.NoError(t, err)
	return newPriceEngine(p, chain, 1.0/stepsPerYear, rng)
}

func TestStepBarInvariants(t *testing.T) {
	engine := newTestEngine(t, singleRegimeParams(0.2, 0, 0))

	ts := TradingMinutes(DefaultSessionStart, 1000)
	prev := 22500.0
	for i := 0; i < 1000; i++ {
		bar := engine.Step(ts[i])
		require.Greater(t, bar.Close, 0.0)
		assert.Equal(t, prev, bar.Open, "bar opens at previous close")
		assert.GreaterOrEqual(t, bar.High, math.Max(bar.Open, bar.Close))
		assert.LessOrEqual(t, bar.Low, math.Min(bar.Open, bar.Close))
		assert.Equal(t, 0, bar.RegimeID)
		prev = bar.Close
	}
}

func TestStepEmpiricalMoments(t *testing.T) {
	sigma := 0.2
	engine := newTestEngine(t, singleRegimeParams(sigma, 0, 0))

	ts := TradingMinutes(DefaultSessionStart, 10001)
	returns := make([]float64, 0, 10000)
	prev := 22500.0
	for i := 0; i < 10000; i++ {
		bar := engine.Step(ts[i])
		returns = append(returns, math.Log(bar.Close/prev))
		prev = bar.Close
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	dt := 1.0 / stepsPerYear
	annualized := math.Sqrt(variance / dt)
	assert.InDelta(t, sigma, annualized, 0.02, "annualized volatility should track the regime sigma")

	// The sampling noise on the mean is sigma/sqrt(dt*n) annualized, about
	// 0.6 here, so the drift check only catches gross errors.
	annualizedDrift := mean / dt
	assert.InDelta(t, 0.05-0.5*sigma*sigma, annualizedDrift, 1.9,
		"annualized drift should track mu - sigma^2/2 within sampling noise")
}

func TestStepJumpsMoveClose(t *testing.T) {
	// Jump on roughly half the bars, with a large negative mean so jumps
	// are visible against the diffusion.
	p := singleRegimeParams(0.1, 0.5*stepsPerYear, -0.5)
	engine := newTestEngine(t, p)

	ts := TradingMinutes(DefaultSessionStart, 500)
	jumps := 0
	for i := 0; i < 500; i++ {
		bar := engine.Step(ts[i])
		if math.Log(bar.Close/bar.Open) < -0.2 {
			jumps++
		}
	}
	assert.Greater(t, jumps, 100, "expected frequent large downward jumps")
}

func TestStepEMAWindow(t *testing.T) {
	p := singleRegimeParams(0.2, 0, 0)
	p.EMAWindow = 30
	engine := newTestEngine(t, p)

	ts := TradingMinutes(DefaultSessionStart, 100)
	for i := 0; i < 100; i++ {
		bar := engine.Step(ts[i])
		// steps starts at 1 for the seed close, so the EMA becomes
		// visible on the 30th generated bar.
		if i < 29 {
			assert.True(t, math.IsNaN(bar.CloseEMA), "bar %d should have no EMA yet", i)
		} else {
			assert.False(t, math.IsNaN(bar.CloseEMA), "bar %d should carry an EMA", i)
			assert.Greater(t, bar.CloseEMA, 0.0)
		}
	}
}

func TestAdjustedSigmaStaysNearBase(t *testing.T) {
	engine := newTestEngine(t, singleRegimeParams(0.2, 0, 0))

	for i := 0; i < 1000; i++ {
		sigma := engine.adjustedSigma(0.2)
		assert.InDelta(t, 0.2, sigma, 0.2*0.01*3*5, "perturbation should stay within five wide std devs")
	}
}
