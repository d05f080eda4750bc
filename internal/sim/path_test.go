package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsim/models"
)

func pathTestParams() models.PathParams {
	return models.PathParams{
		InitialValue:   100,
		HorizonYears:   1,
		Steps:          252,
		Drift:          0.1,
		Volatility:     0.2,
		JumpIntensity:  1.0,
		JumpMean:       -0.05,
		JumpVolatility: 0.2,
		Seed:           5,
	}
}

func TestRunPathGBM(t *testing.T) {
	prices, err := RunPath(models.ModelGBM, pathTestParams())
	require.NoError(t, err)
	require.Len(t, prices, 253)

	assert.Equal(t, 100.0, prices[0])
	for _, p := range prices {
		assert.Greater(t, p, 0.0)
	}
}

func TestRunPathJumpDiffusion(t *testing.T) {
	prices, err := RunPath(models.ModelJumpDiffusion, pathTestParams())
	require.NoError(t, err)
	require.Len(t, prices, 253)
	for _, p := range prices {
		assert.Greater(t, p, 0.0)
	}
}

func TestRunPathDeterministicWithSeed(t *testing.T) {
	a, err := RunPath(models.ModelGBM, pathTestParams())
	require.NoError(t, err)
	b, err := RunPath(models.ModelGBM, pathTestParams())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRunPathRejectsRegimeModel(t *testing.T) {
	_, err := RunPath(models.ModelRegimeJumpDiffusion, pathTestParams())
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRunPathRejectsBadParams(t *testing.T) {
	p := pathTestParams()
	p.Volatility = 0
	_, err := RunPath(models.ModelGBM, p)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestPoisson(t *testing.T) {
	rng := newRNG(13)
	assert.Equal(t, 0, poisson(rng, 0))
	assert.Equal(t, 0, poisson(rng, -1))

	// Empirical mean of a large sample tracks the parameter
	mean := 3.0
	sum := 0
	n := 20000
	for i := 0; i < n; i++ {
		sum += poisson(rng, mean)
	}
	assert.InDelta(t, mean, float64(sum)/float64(n), 0.1)
}

func TestGenerateOptionChain(t *testing.T) {
	chain, err := GenerateOptionChain(100, 10, 11, 30, 0.2, DefaultRiskFreeRate)
	require.NoError(t, err)

	require.Len(t, chain.Strikes, 11)
	require.Len(t, chain.Calls, 11)
	require.Len(t, chain.Puts, 11)
	assert.Equal(t, 30, chain.ExpiryDays)
	assert.Equal(t, 90.0, chain.Strikes[0])
	assert.Equal(t, 110.0, chain.Strikes[10])

	// Calls cheapen and puts richen as the strike rises
	for i := 1; i < len(chain.Strikes); i++ {
		assert.Less(t, chain.Calls[i], chain.Calls[i-1])
		assert.Greater(t, chain.Puts[i], chain.Puts[i-1])
	}
}

func TestGenerateOptionChainRejectsBadInputs(t *testing.T) {
	_, err := GenerateOptionChain(-100, 10, 10, 30, 0.2, DefaultRiskFreeRate)
	assert.ErrorIs(t, err, ErrNumericDomain)

	_, err = GenerateOptionChain(100, 10, 10, 0, 0.2, DefaultRiskFreeRate)
	assert.ErrorIs(t, err, ErrNumericDomain)
}
