package sim

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsim/models"
)

func TestStrikesGrid(t *testing.T) {
	p := newChainPricer()

	strikes := p.Strikes(22510)
	require.Len(t, strikes, DefaultStrikesPerChain)
	assert.Equal(t, 22500.0, strikes[DefaultStrikesPerChain/2], "spot rounds to the grid center")
	assert.Equal(t, 22500.0-25*50, strikes[0])
	assert.Equal(t, 22500.0+24*50, strikes[len(strikes)-1])

	for i := 1; i < len(strikes); i++ {
		assert.Equal(t, 50.0, strikes[i]-strikes[i-1])
	}
}

func TestNextExpiryThursday(t *testing.T) {
	p := newChainPricer()

	// Friday 2025-01-03 resolves to Thursday 2025-01-09
	friday := time.Date(2025, 1, 3, 9, 15, 0, 0, time.UTC)
	expiry := p.NextExpiry(friday)
	assert.Equal(t, time.Thursday, expiry.Weekday())
	assert.Equal(t, 9, expiry.Day())
	assert.Equal(t, 15, expiry.Hour())
	assert.Equal(t, 29, expiry.Minute())

	// A Thursday timestamp rolls to the following week
	thursday := time.Date(2025, 1, 9, 9, 15, 0, 0, time.UTC)
	assert.Equal(t, 16, p.NextExpiry(thursday).Day())
}

func TestChainPricesAndDeltas(t *testing.T) {
	p := newChainPricer()
	ts := time.Date(2025, 1, 3, 9, 15, 0, 0, time.UTC)
	spot := 22510.0
	sigma := 0.2

	records, err := p.Chain(ts, spot, sigma)
	require.NoError(t, err)
	require.Len(t, records, 2*DefaultStrikesPerChain)

	expiry := p.NextExpiry(ts)
	tte := expiry.Sub(ts).Seconds() / secondsPerYear
	for i := 0; i < len(records); i += 2 {
		call, put := records[i], records[i+1]
		require.Equal(t, models.SideCall, call.Side)
		require.Equal(t, models.SidePut, put.Side)
		require.Equal(t, call.Strike, put.Strike)

		discounted := call.Strike * math.Exp(-DefaultRiskFreeRate*tte)

		// No-arbitrage lower bounds, allowing for 3-decimal rounding
		assert.GreaterOrEqual(t, call.Close, math.Max(0, spot-discounted)-0.001)
		assert.GreaterOrEqual(t, put.Close, math.Max(0, discounted-spot)-0.001)

		// Put-call parity
		assert.InDelta(t, spot-discounted, call.Close-put.Close, 0.01,
			"parity violated at strike %v", call.Strike)

		assert.Greater(t, call.Delta, 0.0)
		assert.Less(t, call.Delta, 1.0)
		assert.Less(t, put.Delta, 0.0)
		assert.Greater(t, put.Delta, -1.0)
		assert.InDelta(t, 1.0, call.Delta-put.Delta, 1e-9)

		assert.Equal(t, spot, call.UnderlyingClose)
		assert.Equal(t, expiry, call.ExpiryDate)
	}
}

func TestChainRejectsBadInputs(t *testing.T) {
	p := newChainPricer()
	ts := time.Date(2025, 1, 3, 9, 15, 0, 0, time.UTC)

	_, err := p.Chain(ts, -100, 0.2)
	assert.ErrorIs(t, err, ErrNumericDomain)

	_, err = p.Chain(ts, 22500, 0)
	assert.ErrorIs(t, err, ErrNumericDomain)

	// A tiny spot pushes the low end of the grid to non-positive strikes
	_, err = p.Chain(ts, 100, 0.2)
	assert.ErrorIs(t, err, ErrNumericDomain)
}

func TestBSMPriceDeepInTheMoney(t *testing.T) {
	price, delta := bsmPrice(100, 50, 1, 0.065, 0.2, true)
	want := 100 - 50*math.Exp(-0.065)
	assert.InDelta(t, want, price, 0.01)
	assert.InDelta(t, 1.0, delta, 0.001)

	putPrice, putDelta := bsmPrice(100, 50, 1, 0.065, 0.2, false)
	assert.InDelta(t, 0.0, putPrice, 0.01)
	assert.InDelta(t, 0.0, putDelta, 0.001)
}

func TestNormCDF(t *testing.T) {
	assert.InDelta(t, 0.5, normCDF(0), 1e-12)
	assert.InDelta(t, 0.8413, normCDF(1), 1e-4)
	assert.InDelta(t, 0.1587, normCDF(-1), 1e-4)
}
