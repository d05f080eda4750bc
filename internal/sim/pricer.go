package sim

import (
	"fmt"
	"math"
	"time"

	"marketsim/models"
)

const (
	// DefaultRiskFreeRate is the annualized rate used for discounting.
	DefaultRiskFreeRate = 0.065

	// DefaultStrikeStep is the strike grid increment.
	DefaultStrikeStep = 50

	// DefaultStrikesPerChain is the number of strikes priced per side at
	// each timestamp.
	DefaultStrikesPerChain = 50

	// DefaultExpiryWeekday is the weekly options expiry day.
	DefaultExpiryWeekday = time.Thursday

	secondsPerYear = 365 * 24 * 60 * 60
)

// chainPricer prices a spot-centered strike grid with closed-form
// Black-Scholes-Merton valuation at every simulated timestamp.
type chainPricer struct {
	riskFree      float64
	strikeStep    float64
	strikeCount   int
	expiryWeekday time.Weekday
}

func newChainPricer() *chainPricer {
	return &chainPricer{
		riskFree:      DefaultRiskFreeRate,
		strikeStep:    DefaultStrikeStep,
		strikeCount:   DefaultStrikesPerChain,
		expiryWeekday: DefaultExpiryWeekday,
	}
}

// Strikes builds the grid for the given spot: spot rounded to the nearest
// increment, then strikeCount strikes at that increment centered on it.
func (p *chainPricer) Strikes(spot float64) []float64 {
	center := math.Round(spot/p.strikeStep) * p.strikeStep
	half := p.strikeCount / 2
	strikes := make([]float64, 0, p.strikeCount)
	for i := 0; i < p.strikeCount; i++ {
		strikes = append(strikes, center+float64(i-half)*p.strikeStep)
	}
	return strikes
}

// NextExpiry resolves the next weekly expiry strictly after ts: the nearest
// upcoming expiry weekday, or seven days out when ts already falls on it.
// The returned time is the expiry-day trading cutoff.
func (p *chainPricer) NextExpiry(ts time.Time) time.Time {
	daysAhead := (int(p.expiryWeekday) - int(ts.Weekday()) + 7) % 7
	if daysAhead == 0 {
		daysAhead = 7
	}
	return expiryCutoff(ts.AddDate(0, 0, daysAhead))
}

// Chain prices calls and puts across the grid for one timestamp. A
// non-positive spot, time-to-expiry or volatility rejects the whole call
// with ErrNumericDomain; the caller isolates the failure to this timestamp.
func (p *chainPricer) Chain(ts time.Time, spot, sigma float64) ([]models.OptionRecord, error) {
	expiry := p.NextExpiry(ts)
	tte := expiry.Sub(ts).Seconds() / secondsPerYear

	if spot <= 0 || tte <= 0 || sigma <= 0 {
		return nil, fmt.Errorf("%w: spot=%v tte=%v sigma=%v at %s", ErrNumericDomain, spot, tte, sigma, ts)
	}

	strikes := p.Strikes(spot)
	records := make([]models.OptionRecord, 0, 2*len(strikes))
	for _, strike := range strikes {
		if strike <= 0 {
			return nil, fmt.Errorf("%w: non-positive strike %v for spot %v", ErrNumericDomain, strike, spot)
		}
		callPrice, callDelta := bsmPrice(spot, strike, tte, p.riskFree, sigma, true)
		putPrice, putDelta := bsmPrice(spot, strike, tte, p.riskFree, sigma, false)

		records = append(records,
			models.OptionRecord{
				Timestamp:       ts,
				Strike:          strike,
				Side:            models.SideCall,
				Close:           callPrice,
				Delta:           callDelta,
				UnderlyingClose: spot,
				ExpiryDate:      expiry,
			},
			models.OptionRecord{
				Timestamp:       ts,
				Strike:          strike,
				Side:            models.SidePut,
				Close:           putPrice,
				Delta:           putDelta,
				UnderlyingClose: spot,
				ExpiryDate:      expiry,
			},
		)
	}
	return records, nil
}

// bsmPrice returns the Black-Scholes-Merton price (rounded to 3 decimals)
// and analytical delta. Inputs must be validated by the caller.
func bsmPrice(s, k, t, r, sigma float64, call bool) (price, delta float64) {
	d1 := (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * math.Sqrt(t))
	d2 := d1 - sigma*math.Sqrt(t)

	if call {
		price = s*normCDF(d1) - k*math.Exp(-r*t)*normCDF(d2)
		delta = normCDF(d1)
	} else {
		price = k*math.Exp(-r*t)*normCDF(-d2) - s*normCDF(-d1)
		delta = normCDF(d1) - 1
	}
	return math.Round(price*1000) / 1000, delta
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
