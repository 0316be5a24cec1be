// Package dispatch provides the cooperative execution contexts the server
// binds connections to. A dispatcher serializes every event for its bound
// entities on one goroutine; no state-machine step ever blocks it.
package dispatch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Event is one unit of work queued on a dispatcher. The name identifies the
// event in traces; the function runs on the dispatcher goroutine.
type Event struct {
	Name string
	Run  func()
}

// Dispatcher is a single-threaded cooperative execution context. Entities
// bound to it (connections, wait handlers) have all their transitions run
// serially here. Handoff between dispatchers happens only by posting events,
// never by shared mutation.
type Dispatcher struct {
	name string
	log  logrus.FieldLogger

	events chan Event
	quit   chan struct{}
	done   chan struct{}

	// sleep is the service's current sleep budget in nanoseconds. The accept
	// path sets it to the housekeeping period before queueing, so the
	// periodic timer fires without an extra wakeup.
	sleep atomic.Int64

	// housekeepers run on every periodic tick.
	mu           sync.Mutex
	housekeepers []func()

	closeOnce sync.Once
}

// New starts a dispatcher with the given housekeeping period.
func New(name string, period time.Duration, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	d := &Dispatcher{
		name:   name,
		log:    log.WithField("component", "dispatch").WithField("dispatcher", name),
		events: make(chan Event, 256),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if period <= 0 {
		period = 10 * time.Second
	}
	d.sleep.Store(int64(period))
	go d.loop(period)
	return d
}

// Name returns the dispatcher name.
func (d *Dispatcher) Name() string {
	return d.name
}

// Post queues an event. It blocks only if the queue is full, which bounds
// producers feeding a stalled dispatcher.
func (d *Dispatcher) Post(name string, fn func()) {
	select {
	case d.events <- Event{Name: name, Run: fn}:
	case <-d.quit:
	}
}

// TryPost queues an event without blocking. Returns false when the queue is
// full or the dispatcher has stopped.
func (d *Dispatcher) TryPost(name string, fn func()) bool {
	select {
	case d.events <- Event{Name: name, Run: fn}:
		return true
	case <-d.quit:
		return false
	default:
		return false
	}
}

// SetSleepBudget caps how long the dispatcher sleeps before the next
// housekeeping pass. The accept path aligns this with the listener period.
func (d *Dispatcher) SetSleepBudget(budget time.Duration) {
	d.sleep.Store(int64(budget))
}

// AddHousekeeper registers a function to run on every periodic tick.
func (d *Dispatcher) AddHousekeeper(fn func()) {
	d.mu.Lock()
	d.housekeepers = append(d.housekeepers, fn)
	d.mu.Unlock()
}

// Stop shuts the dispatcher down and waits for the loop to exit. Queued
// events are drained first.
func (d *Dispatcher) Stop() {
	d.closeOnce.Do(func() {
		close(d.quit)
	})
	<-d.done
}

func (d *Dispatcher) loop(period time.Duration) {
	defer close(d.done)
	timer := time.NewTimer(d.sleepBudget(period))
	defer timer.Stop()

	for {
		select {
		case ev := <-d.events:
			d.service(ev)
			// Re-arm within the current sleep budget so the periodic timer
			// fires without an extra wakeup.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d.sleepBudget(period))
		case <-timer.C:
			d.housekeep()
			timer.Reset(d.sleepBudget(period))
		case <-d.quit:
			// Drain what is already queued, then exit.
			for {
				select {
				case ev := <-d.events:
					d.service(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) sleepBudget(period time.Duration) time.Duration {
	if b := time.Duration(d.sleep.Load()); b > 0 && b < period {
		return b
	}
	return period
}

func (d *Dispatcher) service(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("event", ev.Name).Errorf("event panic: %v", r)
		}
	}()
	ev.Run()
}

func (d *Dispatcher) housekeep() {
	d.mu.Lock()
	hks := make([]func(), len(d.housekeepers))
	copy(hks, d.housekeepers)
	d.mu.Unlock()
	for _, fn := range hks {
		fn()
	}
}
