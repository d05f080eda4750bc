package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsim/models"
)

func syntheticChain(ts time.Time, expiry time.Time, spot float64) []models.OptionRecord {
	p := newChainPricer()
	records := make([]models.OptionRecord, 0, 2*DefaultStrikesPerChain)
	for _, strike := range p.Strikes(spot) {
		for _, side := range []models.OptionSide{models.SideCall, models.SidePut} {
			records = append(records, models.OptionRecord{
				Timestamp:       ts,
				Strike:          strike,
				Side:            side,
				UnderlyingClose: spot,
				ExpiryDate:      expiry,
			})
		}
	}
	return records
}

func TestReallocationRate(t *testing.T) {
	cases := []struct {
		days int
		want float64
	}{
		{0, 0.50},
		{1, 0.30},
		{2, 0.26},
		{3, 0.22},
		{4, 0.18},
		{5, 0.14},
		{6, 0.10},
		{10, 0.10},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, reallocationRate(c.days), 1e-9, "days=%d", c.days)
	}
}

func TestInitializeHitsTarget(t *testing.T) {
	ts := time.Date(2025, 1, 3, 9, 15, 0, 0, time.UTC)
	expiry := time.Date(2025, 1, 9, 15, 29, 0, 0, time.UTC)
	spot := 22510.0
	options := syntheticChain(ts, expiry, spot)
	bars := []models.IndexBar{{Timestamp: ts, Close: spot}}

	e := newOIEngine(0)
	cohorts := e.buildCohorts(options)
	require.Len(t, cohorts, 1)
	c := cohorts[0]

	require.NoError(t, e.initialize(c, bars))
	require.False(t, c.skipped)

	diff := float64(c.total()) - DefaultOpenInterestTarget
	assert.LessOrEqual(t, diff, float64(len(c.state)+1))
	assert.GreaterOrEqual(t, diff, -float64(len(c.state)+1))

	// Call OI peaks near spot + bump offset, put OI near spot - offset
	bestCall, bestPut := 0.0, 0.0
	var bestCallOI, bestPutOI int64
	for key, v := range c.state {
		if key.side == models.SideCall && v > bestCallOI {
			bestCall, bestCallOI = key.strike, v
		}
		if key.side == models.SidePut && v > bestPutOI {
			bestPut, bestPutOI = key.strike, v
		}
	}
	assert.InDelta(t, spot+oiBumpOffset, bestCall, 50)
	assert.InDelta(t, spot-oiBumpOffset, bestPut, 50)
}

func TestInitializeSkipsOneSidedCohort(t *testing.T) {
	ts := time.Date(2025, 1, 3, 9, 15, 0, 0, time.UTC)
	expiry := time.Date(2025, 1, 9, 15, 29, 0, 0, time.UTC)
	options := syntheticChain(ts, expiry, 22510)

	callsOnly := options[:0:0]
	for _, rec := range options {
		if rec.Side == models.SideCall {
			callsOnly = append(callsOnly, rec)
		}
	}

	e := newOIEngine(0)
	cohorts := e.buildCohorts(callsOnly)
	require.Len(t, cohorts, 1)
	require.NoError(t, e.initialize(cohorts[0], []models.IndexBar{{Timestamp: ts, Close: 22510}}))
	assert.True(t, cohorts[0].skipped)
}

func TestInjectFarFromExpiry(t *testing.T) {
	ts := time.Date(2025, 1, 3, 9, 15, 0, 0, time.UTC)
	expiry := time.Date(2025, 1, 9, 15, 29, 0, 0, time.UTC)
	spot := 22510.0
	options := syntheticChain(ts, expiry, spot)
	bars := []models.IndexBar{{Timestamp: ts, Close: spot}}

	e := newOIEngine(0)
	c := e.buildCohorts(options)[0]
	require.NoError(t, e.initialize(c, bars))

	before := make(map[contractKey]int64, len(c.state))
	for k, v := range c.state {
		before[k] = v
	}
	total0 := c.total()

	e.inject(c, spot, 5)

	// 20% of the cohort total lands on the selected strikes
	assert.InDelta(t, float64(total0)*(1+oiDailyInjectRate), float64(c.total()), 20)

	var changedCalls, changedPuts int
	for key, v := range c.state {
		if v == before[key] {
			continue
		}
		if key.side == models.SideCall {
			changedCalls++
			assert.GreaterOrEqual(t, key.strike, spot+oiFarDistance)
			assert.NotEqual(t, 50.0, mod100(key.strike), "x50 strike %v injected far from expiry", key.strike)
		} else {
			changedPuts++
			assert.LessOrEqual(t, key.strike, spot-oiFarDistance)
			assert.NotEqual(t, 50.0, mod100(key.strike), "x50 strike %v injected far from expiry", key.strike)
		}
	}
	assert.LessOrEqual(t, changedCalls, len(oiInjectWeights))
	assert.LessOrEqual(t, changedPuts, len(oiInjectWeights))
	assert.Greater(t, changedCalls, 0)
	assert.Greater(t, changedPuts, 0)
}

func mod100(k float64) float64 {
	m := k - 100*float64(int(k/100))
	return m
}

func TestInjectNearExpiryIncludesX50(t *testing.T) {
	ts := time.Date(2025, 1, 7, 9, 15, 0, 0, time.UTC)
	expiry := time.Date(2025, 1, 9, 15, 29, 0, 0, time.UTC)
	spot := 22510.0
	options := syntheticChain(ts, expiry, spot)
	bars := []models.IndexBar{{Timestamp: ts, Close: spot}}

	e := newOIEngine(0)
	c := e.buildCohorts(options)[0]
	require.NoError(t, e.initialize(c, bars))

	before := make(map[contractKey]int64, len(c.state))
	for k, v := range c.state {
		before[k] = v
	}

	e.inject(c, spot, 2)

	// With the near distance in force the nearest call strike is 22700,
	// and the x50 strike behind it participates too
	key := contractKey{strike: 22700, side: models.SideCall}
	assert.Greater(t, c.state[key], before[key], "nearest eligible strike should receive a share")
	x50 := contractKey{strike: 22750, side: models.SideCall}
	assert.Greater(t, c.state[x50], before[x50], "x50 strikes participate near expiry")
}

func TestShiftSideConservesAndFloors(t *testing.T) {
	e := newOIEngine(0)
	c := &oiCohort{state: make(map[contractKey]int64)}
	strikes := []float64{22400, 22450, 22500, 22600, 22700}
	values := []int64{100000, 200000, 300000, 1000, 1000}
	for i, k := range strikes {
		c.state[contractKey{strike: k, side: models.SideCall}] = values[i]
	}

	var total int64
	for _, v := range values {
		total += v
	}

	e.shiftSide(c, strikes, 22510, 0.5, models.SideCall)

	var after int64
	for _, k := range strikes {
		after += c.state[contractKey{strike: k, side: models.SideCall}]
	}
	assert.InDelta(t, float64(total), float64(after), float64(len(strikes)+1))

	// ITM strikes shrink by the rate, OTM strikes absorb the move with the
	// nearer strike taking more
	assert.Equal(t, int64(50000), c.state[contractKey{strike: 22400, side: models.SideCall}])
	gain22600 := c.state[contractKey{strike: 22600, side: models.SideCall}] - 1000
	gain22700 := c.state[contractKey{strike: 22700, side: models.SideCall}] - 1000
	assert.Greater(t, gain22600, gain22700)
	assert.Greater(t, gain22700, int64(0))
}

func TestShiftSideFloor(t *testing.T) {
	e := newOIEngine(0)
	c := &oiCohort{state: make(map[contractKey]int64)}
	strikes := []float64{22500, 22600}
	c.state[contractKey{strike: 22500, side: models.SideCall}] = 30
	c.state[contractKey{strike: 22600, side: models.SideCall}] = 100

	e.shiftSide(c, strikes, 22510, 0.5, models.SideCall)

	assert.Equal(t, int64(oiFloor), c.state[contractKey{strike: 22500, side: models.SideCall}])
}

func TestApplyStampsRecords(t *testing.T) {
	day1 := time.Date(2025, 1, 3, 9, 15, 0, 0, time.UTC)
	day2 := time.Date(2025, 1, 6, 9, 15, 0, 0, time.UTC)
	expiry := time.Date(2025, 1, 9, 15, 29, 0, 0, time.UTC)
	spot := 22510.0

	options := append(syntheticChain(day1, expiry, spot), syntheticChain(day2, expiry, spot)...)
	bars := []models.IndexBar{
		{Timestamp: day1, Close: spot},
		{Timestamp: day2, Close: spot},
	}

	e := newOIEngine(0)
	require.NoError(t, e.Apply(bars, options))

	var sum1, sum2 int64
	for _, rec := range options {
		require.GreaterOrEqual(t, rec.OpenInterest, int64(0))
		if rec.Timestamp.Equal(day1) {
			sum1 += rec.OpenInterest
		} else {
			sum2 += rec.OpenInterest
		}
	}

	// Day one carries the initialized total plus one injection; day two
	// adds another injection on top.
	assert.Greater(t, float64(sum1), DefaultOpenInterestTarget)
	assert.Greater(t, sum2, sum1)
}

func TestApplyEmptyInputs(t *testing.T) {
	e := newOIEngine(0)
	assert.NoError(t, e.Apply(nil, nil))
}
