package rebuild

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/pyxis-go/internal/config"
)

func waitSignal(t *testing.T, d *Debouncer, timeout time.Duration) (Signal, bool) {
	t.Helper()
	select {
	case s := <-d.Signals():
		return s, true
	case <-time.After(timeout):
		return 0, false
	}
}

func TestDebouncer_FlushAfterQuietPeriod(t *testing.T) {
	t.Parallel()

	d := NewDebouncer(testLogger(), time.Second)
	defer d.Close()

	d.Notify(time.Now())

	select {
	case s := <-d.Signals():
		t.Fatalf("signal %v before the quiet period elapsed", s)
	case <-time.After(300 * time.Millisecond):
	}

	s, ok := waitSignal(t, d, 2*time.Second)
	require.True(t, ok, "flush never arrived")
	assert.Equal(t, SignalFlush, s)
}

func TestDebouncer_CoalescesBursts(t *testing.T) {
	t.Parallel()

	d := NewDebouncer(testLogger(), time.Second)
	defer d.Close()

	for i := 0; i < 25; i++ {
		d.Notify(time.Now())
	}

	s, ok := waitSignal(t, d, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, SignalFlush, s)

	_, more := waitSignal(t, d, 1500*time.Millisecond)
	assert.False(t, more, "a burst flushes exactly once")
}

func TestDebouncer_RestartSuppressesFlushes(t *testing.T) {
	t.Parallel()

	d := NewDebouncer(testLogger(), time.Second)
	defer d.Close()

	d.Notify(time.Now())
	d.RequestRestart()

	s, ok := waitSignal(t, d, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, SignalRestart, s)

	_, more := waitSignal(t, d, 1500*time.Millisecond)
	assert.False(t, more, "no flush once a restart was requested")
}

func TestClampDelay(t *testing.T) {
	t.Parallel()

	assert.Equal(t, config.MinRefreshDelay, clampDelay(0))
	assert.Equal(t, config.MinRefreshDelay, clampDelay(10*time.Millisecond))
	assert.Equal(t, 3*time.Second, clampDelay(3*time.Second))
	assert.Equal(t, config.MaxRefreshDelay, clampDelay(time.Hour))
}
