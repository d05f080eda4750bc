package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsim/models"
)

func testRegimes() []models.Regime {
	return []models.Regime{
		{Name: "calm", Mu: 0.05, Sigma: 0.12, Theta: 0.1},
		{Name: "stressed", Mu: -0.1, Sigma: 0.35, Theta: -0.2},
	}
}

func TestNewRegimeChainRejectsBadMatrix(t *testing.T) {
	rng := newRNG(1)

	_, err := newRegimeChain(testRegimes(), models.TransitionMatrix{{0.9, 0.2}, {0.2, 0.8}}, rng)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = newRegimeChain(testRegimes(), models.TransitionMatrix{{1.0}}, rng)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = newRegimeChain(nil, models.TransitionMatrix{}, rng)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNewRegimeChainRejectsBadSigma(t *testing.T) {
	regimes := []models.Regime{{Name: "broken", Sigma: 0}}
	_, err := newRegimeChain(regimes, models.TransitionMatrix{{1}}, newRNG(1))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRegimeChainVisitsAllStates(t *testing.T) {
	matrix := models.TransitionMatrix{{0.9, 0.1}, {0.2, 0.8}}
	chain, err := newRegimeChain(testRegimes(), matrix, newRNG(42))
	require.NoError(t, err)
	require.Equal(t, 0, chain.State())

	visits := make(map[int]int)
	for i := 0; i < 1000; i++ {
		state := chain.Next()
		require.GreaterOrEqual(t, state, 0)
		require.Less(t, state, 2)
		visits[state]++
	}
	assert.Greater(t, visits[0], 0, "state 0 never visited")
	assert.Greater(t, visits[1], 0, "state 1 never visited")
}

func TestRegimeChainAbsorbingState(t *testing.T) {
	matrix := models.TransitionMatrix{{1, 0}, {0, 1}}
	chain, err := newRegimeChain(testRegimes(), matrix, newRNG(7))
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		assert.Equal(t, 0, chain.Next())
	}
	assert.Equal(t, "calm", chain.Current().Name)
}
