package results

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ViniHorstFer/portfolio-sub000/internal/optimizer"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return store
}

func sampleResult() optimizer.Result {
	return optimizer.Result{
		Success:        true,
		Weights:        map[string]float64{"AAA": 0.6, "BBB": 0.4},
		ObjectiveValue: 0.0123,
		SolverStatus:   "optimal",
		Radius:         0.01,
		ScenarioCount:  120,
		Log:            []string{"solved"},
	}
}

func TestStore_SaveAndLatest(t *testing.T) {
	store := newTestStore(t)

	snap, err := store.Save("min_volatility", sampleResult())
	require.NoError(t, err)
	require.NotEmpty(t, snap.ID)
	assert.Equal(t, "min_volatility", snap.Objective)

	latest, err := store.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, snap.ID, latest.ID)
	assert.Equal(t, "optimal", latest.Result.SolverStatus)
	assert.InDelta(t, 0.6, latest.Result.Weights["AAA"], 1e-12)
}

func TestStore_LatestEmpty(t *testing.T) {
	store := newTestStore(t)

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestStore_GetByID(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Save("max_return", sampleResult())
	require.NoError(t, err)
	_, err = store.Save("min_cvar", sampleResult())
	require.NoError(t, err)

	snap, err := store.Get(first.ID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "max_return", snap.Objective)

	missing, err := store.Get("no-such-id")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_ListChronological(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Save("min_volatility", sampleResult())
	require.NoError(t, err)

	// File names are second-resolution time-prefixed; keep the saves apart so
	// lexical order is deterministic.
	time.Sleep(1100 * time.Millisecond)

	second, err := store.Save("max_omega", sampleResult())
	require.NoError(t, err)

	listed, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID}, listed)

	latest, err := store.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
}
