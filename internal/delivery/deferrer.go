package delivery

import (
	"sync"
	"time"
)

// Deferrer runs a task once after a delay.
type Deferrer interface {
	Submit(task func(), delay time.Duration)
}

// TimerDeferrer keeps deferred tasks in process timers. Pending tasks are lost
// on restart, so it is at-most-once.
type TimerDeferrer struct {
	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	wg      sync.WaitGroup
	stopped bool
}

func NewTimerDeferrer() *TimerDeferrer {
	return &TimerDeferrer{timers: map[*time.Timer]struct{}{}}
}

func (d *TimerDeferrer) Submit(task func(), delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		delete(d.timers, timer)
		d.mu.Unlock()
		task()
	})
	d.timers[timer] = struct{}{}
}

// Pending returns the number of tasks that have not fired yet.
func (d *TimerDeferrer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop drops pending tasks and waits for running ones.
func (d *TimerDeferrer) Stop() {
	d.mu.Lock()
	d.stopped = true
	for timer := range d.timers {
		if timer.Stop() {
			d.wg.Done()
		}
		delete(d.timers, timer)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
