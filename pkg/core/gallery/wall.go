// Package gallery runs the wall display of one open collection: a live view
// of its photos and the rotation walking over them.
package gallery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/live"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/rotation"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/observability"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
)

const (
	DefaultInterval       = 5 * time.Second
	DefaultResumeAttempts = 5
	DefaultResumeDelay    = time.Second
	maxResumeDelay        = 30 * time.Second
)

type Config struct {
	CollectionID string
	Loader       ports.SnapshotLoader
	Feed         ports.ChangeFeedSubscriber
	// Settings provides the rotation interval. When nil or failing,
	// DefaultInterval is used.
	Settings ports.ConfigSource

	Clock           clock.Clock
	FirstTick       time.Duration
	DefaultInterval time.Duration

	// ResumeAttempts bounds automatic resumes after the feed drops.
	ResumeAttempts int
	ResumeDelay    time.Duration

	// OnShow is called with the photo to display after every rotation step.
	OnShow func(domain.Item)

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

func (c Config) Validate() error {
	if c.CollectionID == "" {
		return errors.New("empty CollectionID not valid")
	}
	if c.Loader == nil {
		return errors.New("nil Loader not valid")
	}
	if c.Feed == nil {
		return errors.New("nil Feed not valid")
	}
	return nil
}

// Wall is an open collection on a display.
type Wall struct {
	cfg    Config
	logger *slog.Logger
	view   *live.View
	sched  *rotation.Scheduler
	unsub  func()

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	resuming atomic.Bool

	mu     sync.Mutex
	closed bool
}

// Open opens the live view of the collection and starts rotation once the
// interval is known.
func Open(ctx context.Context, cfg Config) (*Wall, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = DefaultInterval
	}
	if cfg.ResumeAttempts <= 0 {
		cfg.ResumeAttempts = DefaultResumeAttempts
	}
	if cfg.ResumeDelay <= 0 {
		cfg.ResumeDelay = DefaultResumeDelay
	}
	logger := observability.OrDefault(cfg.Logger).With("collection", cfg.CollectionID)

	wctx, cancel := context.WithCancel(ctx)
	view, err := live.Open(wctx, live.Config{
		CollectionID: cfg.CollectionID,
		Loader:       cfg.Loader,
		Feed:         cfg.Feed,
		Logger:       logger,
		Metrics:      cfg.Metrics,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	w := &Wall{
		cfg:    cfg,
		logger: logger,
		view:   view,
		ctx:    wctx,
		cancel: cancel,
	}
	w.sched, err = rotation.New(rotation.Config{
		Target:    view,
		Clock:     cfg.Clock,
		FirstTick: cfg.FirstTick,
		OnTick:    w.show,
		Logger:    logger,
		Metrics:   cfg.Metrics,
	})
	if err != nil {
		view.Close()
		cancel()
		return nil, err
	}
	w.unsub = view.Subscribe(w.changed)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.RefreshInterval(wctx)
	}()
	return w, nil
}

// RefreshInterval reloads the rotation interval from the settings source.
func (w *Wall) RefreshInterval(ctx context.Context) {
	interval := w.cfg.DefaultInterval
	if w.cfg.Settings != nil {
		d, err := w.cfg.Settings.RotationInterval(ctx, w.cfg.CollectionID)
		switch {
		case err != nil:
			w.logger.Warn("rotation interval unavailable, using default", "err", err, "default", interval)
		case d > 0:
			interval = d
		}
	}
	w.sched.SetInterval(interval)
}

// Resume resumes the view after the feed dropped, retrying with backoff.
func (w *Wall) Resume(ctx context.Context) error {
	if !w.resuming.CompareAndSwap(false, true) {
		return nil
	}
	defer w.resuming.Store(false)

	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			lastErr = w.view.Resume(ctx)
			return lastErr
		},
		IsFatalError: func(err error) bool {
			return errors.Is(err, domain.ErrViewClosed) || w.view.State() == live.Error
		},
		NotifyFunc: func(err error, attempt int) {
			w.logger.Warn("resume failed", "err", err, "attempt", attempt)
		},
		Attempts:    w.cfg.ResumeAttempts,
		Delay:       w.cfg.ResumeDelay,
		MaxDelay:    maxResumeDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       w.cfg.Clock,
		Stop:        ctx.Done(),
	})
	if err != nil {
		if (retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err)) && lastErr != nil {
			return lastErr
		}
		return err
	}
	w.logger.Info("feed resumed")
	return nil
}

func (w *Wall) changed(ch live.Change) {
	w.sched.Poke()
	if ch.State != live.Stale || w.resuming.Load() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.Resume(w.ctx); err != nil && w.ctx.Err() == nil {
			w.logger.Error("giving up on feed", "err", err)
		}
	}()
}

func (w *Wall) show(int) {
	if w.cfg.OnShow == nil {
		return
	}
	if item, ok := w.view.Current(); ok {
		w.cfg.OnShow(item)
	}
}

// Close stops the rotation, then closes the view.
func (w *Wall) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	w.sched.Stop()
	w.unsub()
	w.view.Close()
	w.wg.Wait()
}

func (w *Wall) View() *live.View { return w.view }

func (w *Wall) Scheduler() *rotation.Scheduler { return w.sched }

// WaitReady waits for the initial snapshot.
func (w *Wall) WaitReady(ctx context.Context) error { return w.view.WaitReady(ctx) }

// Current is the photo on display.
func (w *Wall) Current() (domain.Item, bool) { return w.view.Current() }

// CurrentIndex is the rotation cursor.
func (w *Wall) CurrentIndex() int { return w.sched.Index() }
