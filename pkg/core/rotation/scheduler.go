// Package rotation advances a display cursor over a changing sequence at a
// configurable interval.
package rotation

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/observability"
)

// DefaultFirstTick is the delay before the first advance once rotation can start.
const DefaultFirstTick = time.Second

// Target is the sequence being rotated.
type Target interface {
	// Len is the current length of the sequence.
	Len() int
	// Index is the current cursor, always < Len when Len > 0.
	Index() int
	// Advance moves the cursor to (cursor+1) mod Len and returns it.
	Advance() int
}

type Config struct {
	Target Target
	Clock  clock.Clock
	// FirstTick is the delay before the first advance, distinct from the
	// steady state interval.
	FirstTick time.Duration
	// OnTick is called from the scheduler goroutine after every advance.
	OnTick func(index int)

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

func (c Config) Validate() error {
	if c.Target == nil {
		return errors.New("nil Target not valid")
	}
	if c.FirstTick < 0 {
		return errors.New("negative FirstTick not valid")
	}
	return nil
}

// Scheduler is a single timer walking one Target. It stays idle until an
// interval was set and the target is non-empty, and goes idle again whenever
// the target empties.
type Scheduler struct {
	target    Target
	clock     clock.Clock
	firstTick time.Duration
	onTick    func(int)
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu       sync.Mutex
	interval time.Duration

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New starts a scheduler. It does not tick until SetInterval is called.
func New(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		target:    cfg.Target,
		clock:     cfg.Clock,
		firstTick: cfg.FirstTick,
		onTick:    cfg.OnTick,
		logger:    observability.OrDefault(cfg.Logger),
		metrics:   cfg.Metrics,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if s.clock == nil {
		s.clock = clock.WallClock
	}
	if s.firstTick == 0 {
		s.firstTick = DefaultFirstTick
	}
	if s.onTick == nil {
		s.onTick = func(int) {}
	}
	go s.loop()
	return s, nil
}

// Start rotates over a sequence whose length is reported by length, ticking
// every interval.
func Start(length func() int, interval time.Duration, cfg Config) (*Scheduler, *Counter, error) {
	counter := NewCounter(length)
	cfg.Target = counter
	s, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}
	s.SetInterval(interval)
	return s, counter, nil
}

// SetInterval sets the steady state interval. A non-positive interval stops
// rotation until a valid one is set.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	s.Poke()
}

func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Poke makes the scheduler re-read the target length, typically after the
// sequence changed. A pending tick keeps its deadline.
func (s *Scheduler) Poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Index is the cursor of the target.
func (s *Scheduler) Index() int {
	return s.target.Index()
}

// Stop cancels any pending tick and waits for the scheduler goroutine to
// exit. No OnTick call happens after Stop returns.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Scheduler) loop() {
	defer close(s.done)

	var (
		timer    clock.Timer
		deadline time.Time
		running  time.Duration
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
		}
	}
	defer stopTimer()

	for {
		interval := s.Interval()
		switch {
		case interval <= 0 || s.target.Len() == 0:
			if timer != nil {
				s.logger.Debug("rotation idle")
			}
			stopTimer()
			running = 0
		case timer == nil:
			// First tick after idle comes sooner than the steady interval.
			running = interval
			deadline = s.clock.Now().Add(s.firstTick)
			timer = s.clock.NewTimer(s.firstTick)
		case interval != running:
			running = interval
			stopTimer()
			deadline = s.clock.Now().Add(interval)
			timer = s.clock.NewTimer(interval)
		}

		var tick <-chan time.Time
		if timer != nil {
			tick = timer.Chan()
		}
		select {
		case <-s.stop:
			return
		case <-s.wake:
		case <-tick:
			if s.target.Len() == 0 {
				timer = nil
				continue
			}
			idx := s.target.Advance()
			s.metrics.RotationTick()
			s.onTick(idx)

			// Keep the cadence from the previous deadline rather than from
			// the end of OnTick.
			deadline = deadline.Add(running)
			wait := deadline.Sub(s.clock.Now())
			if wait < 0 {
				deadline = s.clock.Now().Add(running)
				wait = running
			}
			timer = s.clock.NewTimer(wait)
		}
	}
}

// Counter is a standalone Target over a sequence it does not own, known only
// by its length.
type Counter struct {
	length func() int

	mu     sync.Mutex
	cursor int
}

func NewCounter(length func() int) *Counter {
	return &Counter{length: length}
}

func (c *Counter) Len() int { return c.length() }

func (c *Counter) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor = clamp(c.cursor, c.length())
	return c.cursor
}

func (c *Counter) Advance() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.length()
	if n == 0 {
		c.cursor = 0
		return 0
	}
	c.cursor = (clamp(c.cursor, n) + 1) % n
	return c.cursor
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
