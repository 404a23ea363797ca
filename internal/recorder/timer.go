package recorder

import (
	"sync"
	"time"
)

// EndingSoonSeconds is when the remaining time is highlighted to the user
const EndingSoonSeconds = 5

// Timer counts elapsed whole seconds of a recording and fires once at the limit.
type Timer struct {
	interval time.Duration

	mu         sync.Mutex
	elapsed    int
	maxSeconds int
	gen        uint64
	stop       chan struct{}
	onMax      func()
	onTick     func(elapsed int)
}

// NewTimer returns a timer ticking every interval; zero means one second.
func NewTimer(interval time.Duration) *Timer {
	if interval <= 0 {
		interval = time.Second
	}
	return &Timer{interval: interval}
}

// OnTick registers a hook called with the elapsed seconds after each tick.
func (t *Timer) OnTick(fn func(elapsed int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTick = fn
}

// Start resets elapsed to zero and begins counting. onMaxReached runs at most once per Start.
func (t *Timer) Start(maxSeconds int, onMaxReached func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelLocked()
	t.gen++
	t.elapsed = 0
	t.maxSeconds = maxSeconds
	t.onMax = onMaxReached
	t.stop = make(chan struct{})

	go t.run(t.gen, t.stop)
}

// Stop cancels ticking. Elapsed keeps its value until the next Start.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
}

func (t *Timer) cancelLocked() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.gen++
}

// Elapsed returns whole seconds counted since Start.
func (t *Timer) Elapsed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

// Remaining returns seconds left before the limit.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rem := t.maxSeconds - t.elapsed; rem > 0 {
		return rem
	}
	return 0
}

// EndingSoon reports whether the limit is at most EndingSoonSeconds away.
func (t *Timer) EndingSoon() bool {
	return t.Remaining() <= EndingSoonSeconds
}

func (t *Timer) run(gen uint64, stop chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if done := t.tick(gen); done {
				return
			}
		}
	}
}

// tick advances the count for generation gen and reports whether counting is over.
func (t *Timer) tick(gen uint64) bool {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return true
	}

	t.elapsed++
	onTick := t.onTick
	elapsed := t.elapsed

	var onMax func()
	if t.elapsed >= t.maxSeconds {
		t.elapsed = t.maxSeconds
		elapsed = t.elapsed
		onMax = t.onMax
		t.onMax = nil
		t.cancelLocked()
	}
	t.mu.Unlock()

	if onTick != nil {
		onTick(elapsed)
	}
	if onMax != nil {
		onMax()
		return true
	}
	return false
}
