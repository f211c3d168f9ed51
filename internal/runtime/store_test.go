package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalPanicsWithNoCurrentStrategy(t *testing.T) {
	SetCurrent("")
	require.Panics(t, func() { Local() })
}

func TestStoreIsolatedPerStrategy(t *testing.T) {
	defer SetCurrent("")

	SetCurrent("alpha")
	Local().Set("k", 1)

	SetCurrent("beta")
	_, ok := Local().Get("k")
	require.False(t, ok, "beta must not see alpha's store")
	Local().Set("k", 2)

	SetCurrent("alpha")
	v, ok := Local().Get("k")
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestResetClearsStrategyStore(t *testing.T) {
	defer SetCurrent("")

	SetCurrent("gamma")
	Local().Set("k", "v")
	Reset("gamma")

	SetCurrent("gamma")
	_, ok := Local().Get("k")
	require.False(t, ok)
}
