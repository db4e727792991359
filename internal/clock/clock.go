// Package clock implements the countdown engine: it converts a
// {start, pause} timestamp pair plus a stage duration into a continuously
// updated seconds-remaining value without busy-polling.
//
// A single one-shot timer is re-armed after each tick with a drift-corrected
// delay of 1000 - (elapsedMs % 1000) milliseconds, so ticks land close to
// wall-clock second boundaries no matter how long the engine runs.
// Reconfiguring always cancels the armed timer before computing fresh state,
// so stale re-arms cannot stack.
package clock

import (
	"sync"
	"time"

	"github.com/ebbtide-net/ebbtide/internal/domain"
)

// Engine derives seconds remaining from a timer document.
type Engine struct {
	mu         sync.Mutex
	now        func() time.Time
	timer      *time.Timer
	gen        int
	maxSeconds int
	start      *int64
	pause      *int64
	remaining  int
	nextSub    int
	subs       map[int]func(int)
}

// New creates an engine showing a full, unstarted countdown.
func New(maxSeconds int) *Engine {
	return &Engine{
		now:        time.Now,
		maxSeconds: maxSeconds,
		remaining:  maxSeconds,
		subs:       make(map[int]func(int)),
	}
}

// Configure replaces the observed timer state and recomputes from scratch.
// If the timer is running a fresh tick is armed; if paused or reset, the
// displayed value freezes. A countdown that has already over-elapsed (for
// example after the process was suspended) reports 0 immediately.
func (e *Engine) Configure(start, pause *int64, maxSeconds int) {
	e.mu.Lock()
	e.gen++
	e.disarm()
	e.start = copyMs(start)
	e.pause = copyMs(pause)
	e.maxSeconds = maxSeconds
	remaining, delay := e.compute()
	e.remaining = remaining
	if e.start != nil && e.pause == nil && remaining > 0 {
		e.arm(delay, e.gen)
	}
	e.mu.Unlock()
	e.publish(remaining)
}

// Stop cancels any armed tick. The last displayed value is retained.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.gen++
	e.disarm()
	e.mu.Unlock()
}

// SecondsRemaining returns the currently displayed countdown value.
func (e *Engine) SecondsRemaining() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remaining
}

// IsActive reports whether the countdown is running.
func (e *Engine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.start != nil && e.pause == nil && e.remaining > 0
}

// IsDone reports whether the countdown has reached zero.
func (e *Engine) IsDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remaining <= 0
}

// Subscribe registers an observer for displayed-value updates and returns an
// unsubscribe function.
func (e *Engine) Subscribe(fn func(secondsRemaining int)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

// compute derives the remaining seconds and the drift-corrected delay until
// the next wall-clock second boundary. Callers hold e.mu.
func (e *Engine) compute() (remaining int, delay time.Duration) {
	mem := domain.TimerMemory{Start: e.start, Pause: e.pause}
	elapsed := mem.ElapsedMillis(e.now().UnixMilli())
	remaining = e.maxSeconds - int(elapsed/1000)
	if remaining < 0 {
		remaining = 0
	}
	delay = time.Duration(1000-elapsed%1000) * time.Millisecond
	return remaining, delay
}

func (e *Engine) arm(delay time.Duration, gen int) {
	e.timer = time.AfterFunc(delay, func() { e.tick(gen) })
}

func (e *Engine) disarm() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// tick fires once per armed delay. The generation guard discards ticks from
// timers that were cancelled after the callback was already scheduled.
func (e *Engine) tick(gen int) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	if e.remaining > 0 {
		e.remaining--
	}
	// Resync against the wall clock in case ticks were delayed or the
	// process slept between them.
	computed, delay := e.compute()
	if computed < e.remaining {
		e.remaining = computed
	}
	remaining := e.remaining
	if remaining > 0 {
		e.arm(delay, gen)
	} else {
		// Terminal: no further ticks until reconfigured.
		e.timer = nil
	}
	e.mu.Unlock()
	e.publish(remaining)
}

func (e *Engine) publish(remaining int) {
	e.mu.Lock()
	fns := make([]func(int), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(remaining)
	}
}

func copyMs(ms *int64) *int64 {
	if ms == nil {
		return nil
	}
	v := *ms
	return &v
}
