package pace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualClockRunsTimersInDeadlineOrder(t *testing.T) {
	clock := NewManualClock(epoch)
	var order []string
	var seen []time.Duration

	record := func(name string) func() {
		return func() {
			order = append(order, name)
			seen = append(seen, clock.Now().Sub(epoch))
		}
	}

	clock.AfterFunc(ms(30), record("c"))
	clock.AfterFunc(ms(10), record("a"))
	clock.AfterFunc(ms(10), record("b"))
	clock.AfterFunc(ms(50), record("d"))

	clock.Advance(ms(30))
	require.Equal(t, []string{"a", "b", "c"}, order)
	require.Equal(t, []time.Duration{ms(10), ms(10), ms(30)}, seen)
	require.Equal(t, epoch.Add(ms(30)), clock.Now())
	require.Equal(t, 1, clock.Pending())
}

func TestManualClockStop(t *testing.T) {
	clock := NewManualClock(epoch)
	ran := false
	timer := clock.AfterFunc(ms(10), func() { ran = true })

	require.True(t, timer.Stop())
	require.False(t, timer.Stop())
	clock.Advance(time.Second)
	require.False(t, ran)

	fired := clock.AfterFunc(ms(10), func() {})
	clock.Advance(ms(10))
	require.False(t, fired.Stop(), "stopping a fired timer reports false")
}

func TestManualClockDrainFollowsChainedTimers(t *testing.T) {
	clock := NewManualClock(epoch)
	hops := 0
	var hop func()
	hop = func() {
		hops++
		if hops < 3 {
			clock.AfterFunc(ms(100), hop)
		}
	}
	clock.AfterFunc(ms(100), hop)

	require.Equal(t, 3, clock.Drain())
	require.Equal(t, epoch.Add(ms(300)), clock.Now())
}

func TestManualClockSetBackwards(t *testing.T) {
	clock := NewManualClock(epoch.Add(time.Hour))
	clock.Set(epoch)
	require.Equal(t, epoch, clock.Now())
}
