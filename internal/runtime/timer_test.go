package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerStopWhileStoppedIsError(t *testing.T) {
	timer := NewTimer()
	_, _, err := timer.Stop()
	require.ErrorIs(t, err, ErrTimerNotStarted)
}

func TestTimerCooperativeExcludesPausedInterval(t *testing.T) {
	timer := NewTimer()
	timer.Start()
	time.Sleep(5 * time.Millisecond)
	timer.Pause()
	time.Sleep(20 * time.Millisecond)
	timer.Resume()
	time.Sleep(5 * time.Millisecond)
	cooperative, wall, err := timer.Stop()
	require.NoError(t, err)

	require.Less(t, cooperative, wall, "cooperative elapsed must exclude the paused interval")
	require.GreaterOrEqual(t, wall, 25*time.Millisecond)
}

func TestTimerIllegalTransitionsAreNoops(t *testing.T) {
	timer := NewTimer()
	timer.Pause() // pause while stopped: no-op
	timer.Resume() // resume while stopped: no-op
	require.Equal(t, timerStopped, timer.state)

	timer.Start()
	timer.Start() // start while started: no-op, does not reset accumulated
	require.Equal(t, timerStarted, timer.state)
}
