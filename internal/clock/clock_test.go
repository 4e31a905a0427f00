package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_Advance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)

	assert.Equal(t, start, c.Now())

	c.Advance(31 * time.Minute)
	assert.Equal(t, start.Add(31*time.Minute), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestFakeClock_Ticker(t *testing.T) {
	c := Fake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ticker := c.NewTicker(time.Minute)

	select {
	case <-ticker.C:
		t.Fatal("ticker fired before the clock advanced")
	default:
	}

	c.Advance(time.Minute)
	select {
	case tick := <-ticker.C:
		assert.Equal(t, c.Now(), tick)
	default:
		t.Fatal("ticker did not fire after one interval")
	}

	// Several intervals at once collapse into one buffered tick
	c.Advance(5 * time.Minute)
	assert.Len(t, ticker.C, 1)
	<-ticker.C

	ticker.Stop()
	c.Advance(time.Hour)
	assert.Len(t, ticker.C, 0)
}

func TestFakeClock_TickerPanicsOnZeroInterval(t *testing.T) {
	c := Fake(time.Now())
	assert.Panics(t, func() { c.NewTicker(0) })
}

func TestRealClock(t *testing.T) {
	c := Real()
	before := time.Now()
	now := c.Now()

	assert.Equal(t, time.UTC, now.Location())
	assert.WithinDuration(t, before, now, time.Second)
}
