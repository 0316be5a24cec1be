package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/surge/pkg/surge/http1"
)

func TestEventsRunSerially(t *testing.T) {
	d := New("test", 50*time.Millisecond, nil)
	defer d.Stop()

	var mu sync.Mutex
	var running int
	var maxRunning int
	var done sync.WaitGroup

	for i := 0; i < 64; i++ {
		done.Add(1)
		d.Post("testEvent", func() {
			mu.Lock()
			running++
			if running > maxRunning {
				maxRunning = running
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			done.Done()
		})
	}
	done.Wait()

	assert.Equal(t, 1, maxRunning, "events overlapped on one dispatcher")
}

func TestEventOrderPreserved(t *testing.T) {
	d := New("test", 50*time.Millisecond, nil)
	defer d.Stop()

	var got []int
	var done sync.WaitGroup
	for i := 0; i < 100; i++ {
		i := i
		done.Add(1)
		d.Post("testEvent", func() {
			got = append(got, i)
			done.Done()
		})
	}
	done.Wait()

	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v, "events reordered")
	}
}

func TestHousekeepingTick(t *testing.T) {
	d := New("test", 20*time.Millisecond, nil)
	defer d.Stop()

	var ticks atomic.Int32
	d.AddHousekeeper(func() {
		ticks.Add(1)
	})

	time.Sleep(110 * time.Millisecond)
	assert.GreaterOrEqual(t, ticks.Load(), int32(3), "housekeeper starved")
}

func TestSleepBudgetShortensTick(t *testing.T) {
	d := New("test", time.Hour, nil)
	defer d.Stop()

	var ticks atomic.Int32
	d.AddHousekeeper(func() {
		ticks.Add(1)
	})
	d.SetSleepBudget(10 * time.Millisecond)

	// The budget only applies from the next timer reset, driven by events.
	d.Post("poke", func() {})
	time.Sleep(100 * time.Millisecond)
	assert.Greater(t, ticks.Load(), int32(0), "sleep budget ignored")
}

func TestStopDrainsQueuedEvents(t *testing.T) {
	d := New("test", 50*time.Millisecond, nil)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		d.Post("testEvent", func() {
			ran.Add(1)
		})
	}
	d.Stop()
	assert.Equal(t, int32(10), ran.Load())
}

func TestWaitReachesState(t *testing.T) {
	d := New("test", 50*time.Millisecond, nil)
	defer d.Stop()

	c := http1.NewConn(http1.DefaultLimits(), nil)
	// Deliver the request only after the wait observer installs.
	go func() {
		time.Sleep(20 * time.Millisecond)
		d.Post("httpReadable", func() {
			c.FeedBytes([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
		})
	}()

	result := Wait(d, c, http1.StateComplete, time.Second)
	assert.Equal(t, WaitReached, result)
}

func TestWaitTimeoutLeavesConnIntact(t *testing.T) {
	d := New("test", 50*time.Millisecond, nil)
	defer d.Stop()

	c := http1.NewConn(http1.DefaultLimits(), nil)
	// Nothing ever arrives.
	result := Wait(d, c, http1.StateComplete, 30*time.Millisecond)
	assert.Equal(t, WaitTimeout, result)
	assert.False(t, c.Closed())
	assert.Equal(t, http1.StateBegin, c.State())
}

func TestWaitConnectionOnClose(t *testing.T) {
	d := New("test", 50*time.Millisecond, nil)
	defer d.Stop()

	c := http1.NewConn(http1.DefaultLimits(), nil)
	d.Post("httpDestroyConn", func() {
		c.Close()
	})
	result := Wait(d, c, http1.StateComplete, time.Second)
	assert.Equal(t, WaitConnection, result)
}

func TestWaitRestoresObservers(t *testing.T) {
	d := New("test", 50*time.Millisecond, nil)
	defer d.Stop()

	c := http1.NewConn(http1.DefaultLimits(), nil)
	var observed atomic.Int32
	c.OnState = func(_ *http1.Conn, _ http1.State) {
		observed.Add(1)
	}

	_ = Wait(d, c, http1.StateComplete, 20*time.Millisecond)

	// The original observer must still be installed afterwards.
	done := make(chan struct{})
	d.Post("httpReadable", func() {
		c.FeedBytes([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
		close(done)
	})
	<-done
	assert.Greater(t, observed.Load(), int32(0), "prior observer lost")
}
