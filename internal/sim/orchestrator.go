package sim

import (
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/rand"

	"marketsim/logger"
	"marketsim/models"
)

// stepsPerYear converts the per-bar step to annualized time: 252 trading
// days of MinutesPerDay bars.
const stepsPerYear = 252 * MinutesPerDay

// Result carries the two tables produced by a market simulation run. The
// orchestrator owns both exclusively until they are returned.
type Result struct {
	Index   []models.IndexBar
	Options []models.OptionRecord
}

func newRNG(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewSource(seed))
}

// RunMarket simulates the full regime-switching market: the index bar
// series, the per-timestamp options chain, then the open-interest pass over
// the assembled options table. Configuration problems fail before the first
// step; a pricing call outside its numeric domain skips only that
// timestamp's chain.
func RunMarket(params models.MarketParams) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	rng := newRNG(params.Seed)
	chain, err := newRegimeChain(params.Regimes, params.Transition, rng)
	if err != nil {
		return nil, err
	}

	log := logger.GetLogger().WithComponent("orchestrator")

	dt := 1.0 / stepsPerYear
	steps := params.HorizonDays * MinutesPerDay
	start := params.SessionStart
	if start.IsZero() {
		start = DefaultSessionStart
	}
	timestamps := TradingMinutes(start, steps+1)

	engine := newPriceEngine(params, chain, dt, rng)
	pricer := newChainPricer()

	bars := make([]models.IndexBar, 0, steps+1)
	bars = append(bars, models.IndexBar{
		Timestamp: timestamps[0],
		Open:      params.InitialValue,
		High:      params.InitialValue,
		Low:       params.InitialValue,
		Close:     params.InitialValue,
		RegimeID:  0,
		SigmaUsed: params.Regimes[0].Sigma,
		CloseEMA:  math.NaN(),
	})

	options := make([]models.OptionRecord, 0, steps*2*DefaultStrikesPerChain)
	for t := 1; t <= steps; t++ {
		bar := engine.Step(timestamps[t])
		bars = append(bars, bar)

		records, err := pricer.Chain(bar.Timestamp, bar.Close, bar.SigmaUsed)
		if err != nil {
			if errors.Is(err, ErrNumericDomain) {
				log.WithError(err).WithFields(logger.Fields{
					"timestamp": bar.Timestamp,
				}).Warn("skipping chain for timestamp")
				continue
			}
			return nil, err
		}
		options = append(options, records...)
	}

	oi := newOIEngine(params.OpenInterestTarget)
	if err := oi.Apply(bars, options); err != nil {
		return nil, fmt.Errorf("open interest simulation: %w", err)
	}

	log.WithFields(logger.Fields{
		"index_rows":   len(bars),
		"options_rows": len(options),
		"days":         params.HorizonDays,
	}).Info("market simulation completed")

	return &Result{Index: bars, Options: options}, nil
}
