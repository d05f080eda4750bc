package sim

import (
	"math"
	"time"

	"golang.org/x/exp/rand"

	"marketsim/models"
)

// emaProximity is the relative distance from the close EMA below which the
// market is considered coiled around consensus.
const emaProximity = 0.001

// sigmaPerturbWeight scales the random perturbation applied to a regime's
// base volatility each step.
const sigmaPerturbWeight = 0.01

// DefaultEMAWindow is the close-EMA span used when the caller does not
// override it.
const DefaultEMAWindow = 30

// priceEngine advances one intraday OHLC bar per step: regime switch, drift
// tilt, adaptive volatility, an intra-bar diffusion sub-path and a Poisson
// jump overlay.
type priceEngine struct {
	chain    *regimeChain
	rng      *rand.Rand
	dt       float64
	subSteps int

	jumpIntensity  float64
	jumpMean       float64
	jumpVolatility float64

	emaWindow int
	emaAlpha  float64

	prevClose float64
	ema       float64 // running EMA through the previous close
	steps     int     // closes observed so far
	lastEMA   float64 // CloseEMA recorded on the previous bar
}

func newPriceEngine(p models.MarketParams, chain *regimeChain, dt float64, rng *rand.Rand) *priceEngine {
	window := p.EMAWindow
	if window == 0 {
		window = DefaultEMAWindow
	}
	return &priceEngine{
		chain:          chain,
		rng:            rng,
		dt:             dt,
		subSteps:       p.SubSteps,
		jumpIntensity:  p.JumpIntensity,
		jumpMean:       p.JumpMean,
		jumpVolatility: p.JumpVolatility,
		emaWindow:      window,
		emaAlpha:       2.0 / (float64(window) + 1),
		prevClose:      p.InitialValue,
		ema:            p.InitialValue,
		steps:          1,
		lastEMA:        math.NaN(),
	}
}

// Step simulates the bar at ts from the previous close and returns it.
func (e *priceEngine) Step(ts time.Time) models.IndexBar {
	regimeID := e.chain.Next()
	regime := e.chain.Current()

	mu := regime.Mu * (1 + regime.Theta)
	sigma := e.adjustedSigma(regime.Sigma)

	open := e.prevClose
	subDt := e.dt / float64(e.subSteps)
	price := open
	high, low := open, open
	for i := 0; i < e.subSteps; i++ {
		z := e.rng.NormFloat64()
		price *= math.Exp((mu-0.5*sigma*sigma)*subDt + sigma*math.Sqrt(subDt)*z)
		if price > high {
			high = price
		}
		if price < low {
			low = price
		}
	}

	close := price
	// The jump probability is checked against the full bar interval, not
	// the sub-step time.
	if e.rng.Float64() < e.jumpIntensity*e.dt {
		close *= math.Exp(e.jumpMean + e.jumpVolatility*e.rng.NormFloat64())
		if close > high {
			high = close
		}
		if close < low {
			low = close
		}
	}

	barEMA := math.NaN()
	if e.steps >= e.emaWindow {
		barEMA = e.ema
	}

	bar := models.IndexBar{
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		RegimeID:  regimeID,
		SigmaUsed: sigma,
		CloseEMA:  barEMA,
	}

	e.ema = e.emaAlpha*close + (1-e.emaAlpha)*e.ema
	e.steps++
	e.prevClose = close
	e.lastEMA = barEMA

	return bar
}

// adjustedSigma perturbs the regime's base volatility. A close sitting
// within emaProximity of the trailing EMA draws from a tight normal; a
// close that has drifted away draws from a wider one.
func (e *priceEngine) adjustedSigma(base float64) float64 {
	var v float64
	if !math.IsNaN(e.lastEMA) && math.Abs(e.prevClose-e.lastEMA)/e.prevClose < emaProximity {
		v = e.rng.NormFloat64()
	} else {
		v = 3 * e.rng.NormFloat64()
	}
	return base * (1 + sigmaPerturbWeight*v)
}
