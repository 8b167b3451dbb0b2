// Package live keeps an ordered, deduplicated, visibility filtered view of a
// collection, built from an initial snapshot and a stream of change events.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/juju/pubsub/v2"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/observability"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
)

// State is the lifecycle state of a View.
type State int

const (
	// Loading: snapshot in flight, change events are buffered.
	Loading State = iota
	// Live: snapshot applied, change events are reconciled as they arrive.
	Live
	// Stale: the feed dropped. The last state stays displayed until Resume.
	Stale
	// Error: the initial snapshot failed. Terminal.
	Error
	// Closed: terminal.
	Closed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Live:
		return "live"
	case Stale:
		return "stale"
	case Error:
		return "error"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const changeTopic = "display.changed"

// Change is sent to view listeners after every state or sequence change.
type Change struct {
	State    State
	Sequence []domain.Item
	Cursor   int
	Err      error
}

// Config holds the collaborators of a View.
type Config struct {
	CollectionID string
	Loader       ports.SnapshotLoader
	Feed         ports.ChangeFeedSubscriber

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

// View is the single owner of the display state of one open collection.
// Change events are applied one at a time under the view lock, in the order
// the feed delivers them.
type View struct {
	id      string
	loader  ports.SnapshotLoader
	feed    ports.ChangeFeedSubscriber
	logger  *slog.Logger
	metrics *observability.Metrics
	hub     *pubsub.SimpleHub

	ready     chan struct{}
	readyOnce sync.Once

	mu         sync.Mutex
	state      State
	err        error
	display    *DisplayState
	gen        uint64
	sub        ports.CancelHandle
	cancel     context.CancelFunc
	buffering  bool
	dropped    error
	pending    []domain.ChangeEvent
	pendingIdx map[string]int
	listeners  map[int]func()
	nextLid    int
}

// Open subscribes to the change feed of the collection and loads its
// snapshot in the background. Events arriving before the snapshot is applied
// are buffered and replayed right after it. A snapshot that never resolves
// leaves the view Loading until Close or until ctx is done.
func Open(ctx context.Context, cfg Config) (*View, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	v := &View{
		id:         cfg.CollectionID,
		loader:     cfg.Loader,
		feed:       cfg.Feed,
		logger:     observability.OrDefault(cfg.Logger).With("collection", cfg.CollectionID),
		metrics:    cfg.Metrics,
		hub:        pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{}),
		ready:      make(chan struct{}),
		state:      Loading,
		display:    NewDisplayState(cfg.CollectionID),
		gen:        1,
		buffering:  true,
		pendingIdx: make(map[string]int),
		listeners:  make(map[int]func()),
	}
	sub, err := v.feed.Subscribe(v.id, &feedSink{v: v, gen: 1})
	if err != nil {
		return nil, fmt.Errorf("subscribe to collection %s: %w", v.id, err)
	}
	loadCtx, cancel := context.WithCancel(ctx)
	v.mu.Lock()
	v.sub = sub
	v.cancel = cancel
	v.mu.Unlock()
	v.metrics.ViewOpened()

	go func() {
		items, err := v.loader.FetchSnapshot(loadCtx, v.id)
		v.mu.Lock()
		defer v.mu.Unlock()
		if err != nil {
			v.failLoad(1, err)
			return
		}
		v.finishLoad(1, items)
	}()
	return v, nil
}

// Resume re-subscribes to the feed and reconciles from a fresh snapshot. The
// current sequence stays displayed meanwhile. A failed snapshot leaves the
// view Stale so Resume can be called again.
func (v *View) Resume(ctx context.Context) error {
	v.mu.Lock()
	switch v.state {
	case Closed:
		v.mu.Unlock()
		return domain.ErrViewClosed
	case Error:
		err := v.err
		v.mu.Unlock()
		return err
	case Loading:
		v.mu.Unlock()
		return errors.New("view is still loading")
	}
	v.gen++
	gen := v.gen
	old := v.sub
	v.sub = nil
	v.startBuffering()
	v.mu.Unlock()

	if old != nil {
		old.Cancel()
	}
	sub, err := v.feed.Subscribe(v.id, &feedSink{v: v, gen: gen})

	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}
		return domain.ErrViewClosed
	}
	if err != nil {
		v.buffering = false
		v.pending, v.pendingIdx = nil, make(map[string]int)
		v.setState(Stale, fmt.Errorf("%w: %v", domain.ErrFeedDisconnected, err))
		v.mu.Unlock()
		return fmt.Errorf("resubscribe to collection %s: %w", v.id, err)
	}
	v.sub = sub
	v.mu.Unlock()

	items, err := v.loader.FetchSnapshot(ctx, v.id)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return domain.ErrViewClosed
	}
	if err != nil {
		// Keep what is displayed, fold in whatever arrived meanwhile.
		v.replay()
		v.setState(Stale, fmt.Errorf("%w: %v", domain.ErrFeedDisconnected, err))
		return fmt.Errorf("%w: %v", domain.ErrSnapshotUnavailable, err)
	}
	v.finishLoad(gen, items)
	return nil
}

// Close cancels the feed subscription, drops buffered events and detaches
// listeners. Events arriving afterwards are discarded. Close is idempotent.
func (v *View) Close() {
	v.mu.Lock()
	if v.state == Closed {
		v.mu.Unlock()
		return
	}
	v.gen++
	sub := v.sub
	v.sub = nil
	cancel := v.cancel
	v.buffering = false
	v.pending, v.pendingIdx = nil, nil
	v.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if cancel != nil {
		cancel()
	}

	v.mu.Lock()
	v.setState(Closed, nil)
	unsubs := v.listeners
	v.listeners = nil
	v.mu.Unlock()

	v.markReady()
	for _, unsub := range unsubs {
		unsub()
	}
	v.metrics.ViewClosed()
}

// WaitReady blocks until the initial snapshot was applied or failed, or the
// view closed.
func (v *View) WaitReady(ctx context.Context) error {
	select {
	case <-v.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	switch v.state {
	case Error:
		return v.err
	case Closed:
		return domain.ErrViewClosed
	}
	return nil
}

// Subscribe registers fn to be called after every change. Calls are made
// in order from a dedicated goroutine. The returned function unsubscribes.
func (v *View) Subscribe(fn func(Change)) func() {
	unsub := v.hub.Subscribe(changeTopic, func(_ string, data interface{}) {
		if ch, ok := data.(Change); ok {
			fn(ch)
		}
	})
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.listeners == nil {
		unsub()
		return func() {}
	}
	id := v.nextLid
	v.nextLid++
	var once sync.Once
	remove := func() { once.Do(unsub) }
	v.listeners[id] = remove
	return func() {
		v.mu.Lock()
		delete(v.listeners, id)
		v.mu.Unlock()
		remove()
	}
}

// Sequence returns the visible items in display order.
func (v *View) Sequence() []domain.Item {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.display.Sequence()
}

// Display returns the current immutable display state.
func (v *View) Display() *DisplayState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.display
}

// Current returns the item under the cursor.
func (v *View) Current() (domain.Item, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.display.Current()
}

// Len implements rotation.Target.
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.display.Len()
}

// Index implements rotation.Target.
func (v *View) Index() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.display.Cursor()
}

// Advance implements rotation.Target: it moves the cursor one step and
// returns the new index.
func (v *View) Advance() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == Closed {
		return v.display.Cursor()
	}
	v.display = v.display.Advance()
	v.notify()
	return v.display.Cursor()
}

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Err returns the error behind an Error or Stale state.
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Empty reports a live collection with nothing to show, as opposed to a
// collection whose snapshot could not be loaded.
func (v *View) Empty() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return (v.state == Live || v.state == Stale) && v.display.Len() == 0
}

func (v *View) handleChange(gen uint64, ev domain.ChangeEvent) {
	kind := ev.Kind.String()
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen || v.state == Closed || v.state == Error {
		v.metrics.ChangeEvent(kind, "dropped")
		return
	}
	if err := v.display.Validate(ev); err != nil {
		v.logger.Warn("ignoring change event", "err", err, "item", ev.Item.ID)
		v.metrics.ChangeEvent(kind, "ignored")
		return
	}
	if v.buffering {
		v.buffer(ev)
		v.metrics.ChangeEvent(kind, "buffered")
		return
	}
	v.apply(ev)
	v.notify()
}

func (v *View) handleDisconnect(gen uint64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen || v.state == Closed || v.state == Error {
		return
	}
	if err == nil {
		err = errors.New("feed closed")
	}
	v.logger.Warn("change feed dropped", "err", err)
	if v.buffering {
		v.dropped = err
		return
	}
	v.setState(Stale, fmt.Errorf("%w: %v", domain.ErrFeedDisconnected, err))
}

// apply must be called with v.mu held.
func (v *View) apply(ev domain.ChangeEvent) {
	next, err := Reconcile(v.display, ev)
	if err != nil {
		v.logger.Warn("ignoring change event", "err", err, "item", ev.Item.ID)
		v.metrics.ChangeEvent(ev.Kind.String(), "ignored")
		return
	}
	v.display = next
	v.metrics.ChangeEvent(ev.Kind.String(), "applied")
}

// buffer keeps the last event per item, in first arrival order. Events are
// full snapshots so only the last one per item matters, which bounds the
// buffer by the number of distinct items.
func (v *View) buffer(ev domain.ChangeEvent) {
	if i, ok := v.pendingIdx[ev.Item.ID]; ok {
		v.pending[i] = ev
		return
	}
	v.pendingIdx[ev.Item.ID] = len(v.pending)
	v.pending = append(v.pending, ev)
}

func (v *View) startBuffering() {
	v.buffering = true
	v.dropped = nil
	v.pending = nil
	v.pendingIdx = make(map[string]int)
}

// replay applies and clears the buffered events.
func (v *View) replay() {
	pending := v.pending
	v.pending, v.pendingIdx = nil, make(map[string]int)
	v.buffering = false
	for _, ev := range pending {
		v.apply(ev)
	}
}

func (v *View) finishLoad(gen uint64, items []domain.Item) {
	if gen != v.gen || v.state == Closed {
		return
	}
	v.display = Rebase(v.display, items)
	v.replay()
	if v.dropped != nil {
		err := v.dropped
		v.dropped = nil
		v.setState(Stale, fmt.Errorf("%w: %v", domain.ErrFeedDisconnected, err))
	} else {
		v.setState(Live, nil)
	}
	v.markReady()
}

func (v *View) failLoad(gen uint64, err error) {
	if gen != v.gen || v.state == Closed {
		return
	}
	v.logger.Error("snapshot failed", "err", err)
	v.gen++
	sub := v.sub
	v.sub = nil
	v.buffering = false
	v.pending, v.pendingIdx = nil, nil
	v.setState(Error, fmt.Errorf("%w: %v", domain.ErrSnapshotUnavailable, err))
	v.markReady()
	if sub != nil {
		go sub.Cancel()
	}
}

// setState must be called with v.mu held.
func (v *View) setState(s State, err error) {
	changed := v.state != s
	v.state = s
	v.err = err
	if changed {
		v.metrics.ViewState(s.String())
	}
	v.notify()
}

// notify must be called with v.mu held.
func (v *View) notify() {
	if len(v.listeners) == 0 {
		return
	}
	_ = v.hub.Publish(changeTopic, Change{
		State:    v.state,
		Sequence: v.display.Sequence(),
		Cursor:   v.display.Cursor(),
		Err:      v.err,
	})
}

func (v *View) markReady() {
	v.readyOnce.Do(func() { close(v.ready) })
}

// feedSink binds a subscription generation to the view, so that events from
// a replaced or cancelled subscription are dropped.
type feedSink struct {
	v   *View
	gen uint64
}

func (s *feedSink) HandleChange(ev domain.ChangeEvent) { s.v.handleChange(s.gen, ev) }
func (s *feedSink) HandleDisconnect(err error)         { s.v.handleDisconnect(s.gen, err) }
