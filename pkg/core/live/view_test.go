package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
)

type cancelFunc func()

func (f cancelFunc) Cancel() { f() }

type fakeFeed struct {
	mu        sync.Mutex
	handlers  []ports.FeedHandler
	cancelled int
	err       error
}

func (f *fakeFeed) Subscribe(_ string, h ports.FeedHandler) (ports.CancelHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.handlers = append(f.handlers, h)
	return cancelFunc(func() {
		f.mu.Lock()
		f.cancelled++
		f.mu.Unlock()
	}), nil
}

func (f *fakeFeed) handler(c *qt.C) ports.FeedHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.Assert(f.handlers, qt.Not(qt.HasLen), 0)
	return f.handlers[len(f.handlers)-1]
}

func (f *fakeFeed) subscriptions() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers), f.cancelled
}

type snapshot struct {
	items []domain.Item
	err   error
}

// gatedLoader blocks every fetch until the test hands it a result.
type gatedLoader struct {
	results chan snapshot
}

func newGatedLoader() *gatedLoader {
	return &gatedLoader{results: make(chan snapshot)}
}

func (l *gatedLoader) FetchSnapshot(ctx context.Context, _ string) ([]domain.Item, error) {
	select {
	case r := <-l.results:
		return r.items, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func openView(c *qt.C) (*View, *fakeFeed, *gatedLoader) {
	feed := &fakeFeed{}
	loader := newGatedLoader()
	v, err := Open(context.Background(), Config{CollectionID: coll, Loader: loader, Feed: feed})
	c.Assert(err, qt.IsNil)
	c.Cleanup(v.Close)
	return v, feed, loader
}

func waitReady(c *qt.C, v *View) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return v.WaitReady(ctx)
}

func TestViewReplaysEventsQueuedDuringLoad(t *testing.T) {
	c := qt.New(t)
	v, feed, loader := openView(c)
	c.Assert(v.State(), qt.Equals, Loading)

	feed.handler(c).HandleChange(domain.Created(item("c", 3, true)))
	c.Assert(v.Len(), qt.Equals, 0)

	loader.results <- snapshot{items: []domain.Item{item("a", 1, true), item("b", 2, false)}}
	c.Assert(waitReady(c, v), qt.IsNil)
	c.Assert(v.State(), qt.Equals, Live)
	c.Assert(ids(v.Sequence()), qt.DeepEquals, []string{"a", "c"})
}

func TestViewQueuedEventsOverrideSnapshot(t *testing.T) {
	c := qt.New(t)
	v, feed, loader := openView(c)

	// Hidden while the snapshot was being read.
	feed.handler(c).HandleChange(domain.Updated(item("a", 1, false)))
	loader.results <- snapshot{items: []domain.Item{item("a", 1, true), item("b", 2, true)}}
	c.Assert(waitReady(c, v), qt.IsNil)
	c.Assert(ids(v.Sequence()), qt.DeepEquals, []string{"b"})
}

func TestViewAppliesLiveEvents(t *testing.T) {
	c := qt.New(t)
	v, feed, loader := openView(c)
	loader.results <- snapshot{items: []domain.Item{item("a", 1, true), item("b", 2, true), item("c", 3, true)}}
	c.Assert(waitReady(c, v), qt.IsNil)

	c.Assert(v.Advance(), qt.Equals, 1)
	c.Assert(v.Advance(), qt.Equals, 2)
	feed.handler(c).HandleChange(domain.Updated(item("b", 2, false)))

	c.Assert(ids(v.Sequence()), qt.DeepEquals, []string{"a", "c"})
	c.Assert(v.Index(), qt.Equals, 1)
	cur, ok := v.Current()
	c.Assert(ok, qt.IsTrue)
	c.Assert(cur.ID, qt.Equals, "c")
}

func TestViewIgnoresMalformedEvents(t *testing.T) {
	c := qt.New(t)
	v, feed, loader := openView(c)
	loader.results <- snapshot{items: []domain.Item{item("a", 1, true)}}
	c.Assert(waitReady(c, v), qt.IsNil)

	foreign := item("x", 2, true)
	foreign.CollectionID = "other"
	feed.handler(c).HandleChange(domain.Created(foreign))
	feed.handler(c).HandleChange(domain.ChangeEvent{CollectionID: coll, Item: item("y", 3, true)})
	c.Assert(ids(v.Sequence()), qt.DeepEquals, []string{"a"})
	c.Assert(v.State(), qt.Equals, Live)
}

func TestViewSnapshotFailureIsErrorNotEmpty(t *testing.T) {
	c := qt.New(t)
	v, feed, loader := openView(c)
	loader.results <- snapshot{err: errors.New("backend down")}

	err := waitReady(c, v)
	c.Assert(errors.Is(err, domain.ErrSnapshotUnavailable), qt.IsTrue, qt.Commentf("got %v", err))
	c.Assert(v.State(), qt.Equals, Error)
	c.Assert(v.Empty(), qt.IsFalse)

	// Terminal: late events and resumes change nothing.
	feed.handler(c).HandleChange(domain.Created(item("a", 1, true)))
	c.Assert(v.Len(), qt.Equals, 0)
	c.Assert(errors.Is(v.Resume(context.Background()), domain.ErrSnapshotUnavailable), qt.IsTrue)
}

func TestViewEmptyCollection(t *testing.T) {
	c := qt.New(t)
	v, _, loader := openView(c)
	c.Assert(v.Empty(), qt.IsFalse)
	loader.results <- snapshot{}
	c.Assert(waitReady(c, v), qt.IsNil)
	c.Assert(v.Empty(), qt.IsTrue)
	c.Assert(v.Err(), qt.IsNil)
}

func TestViewCloseDiscardsEvents(t *testing.T) {
	c := qt.New(t)
	v, feed, _ := openView(c)
	h := feed.handler(c)
	h.HandleChange(domain.Created(item("a", 1, true)))

	v.Close()
	c.Assert(v.State(), qt.Equals, Closed)
	_, cancelled := feed.subscriptions()
	c.Assert(cancelled, qt.Equals, 1)

	h.HandleChange(domain.Created(item("b", 2, true)))
	c.Assert(v.Len(), qt.Equals, 0)
	c.Assert(errors.Is(waitReady(c, v), domain.ErrViewClosed), qt.IsTrue)
	c.Assert(errors.Is(v.Resume(context.Background()), domain.ErrViewClosed), qt.IsTrue)

	// Idempotent.
	v.Close()
	_, cancelled = feed.subscriptions()
	c.Assert(cancelled, qt.Equals, 1)
}

func TestViewDisconnectThenResume(t *testing.T) {
	c := qt.New(t)
	v, feed, loader := openView(c)
	loader.results <- snapshot{items: []domain.Item{item("a", 1, true), item("b", 2, true)}}
	c.Assert(waitReady(c, v), qt.IsNil)
	c.Assert(v.Advance(), qt.Equals, 1)

	old := feed.handler(c)
	old.HandleDisconnect(errors.New("connection reset"))
	c.Assert(v.State(), qt.Equals, Stale)
	c.Assert(errors.Is(v.Err(), domain.ErrFeedDisconnected), qt.IsTrue)
	c.Assert(ids(v.Sequence()), qt.DeepEquals, []string{"a", "b"})

	done := make(chan error, 1)
	go func() { done <- v.Resume(context.Background()) }()
	// b was hidden while disconnected, c was uploaded.
	loader.results <- snapshot{items: []domain.Item{item("a", 1, true), item("b", 2, false), item("c", 3, true)}}
	c.Assert(<-done, qt.IsNil)

	c.Assert(v.State(), qt.Equals, Live)
	c.Assert(ids(v.Sequence()), qt.DeepEquals, []string{"a", "c"})
	subs, cancelled := feed.subscriptions()
	c.Assert(subs, qt.Equals, 2)
	c.Assert(cancelled, qt.Equals, 1)

	// Events from the replaced subscription are dropped.
	old.HandleChange(domain.Created(item("d", 4, true)))
	c.Assert(v.Len(), qt.Equals, 2)
	feed.handler(c).HandleChange(domain.Created(item("d", 4, true)))
	c.Assert(ids(v.Sequence()), qt.DeepEquals, []string{"a", "c", "d"})
}

func TestViewResumeFailureStaysStale(t *testing.T) {
	c := qt.New(t)
	v, feed, loader := openView(c)
	loader.results <- snapshot{items: []domain.Item{item("a", 1, true)}}
	c.Assert(waitReady(c, v), qt.IsNil)
	feed.handler(c).HandleDisconnect(errors.New("eof"))

	done := make(chan error, 1)
	go func() { done <- v.Resume(context.Background()) }()
	loader.results <- snapshot{err: errors.New("still down")}
	err := <-done
	c.Assert(errors.Is(err, domain.ErrSnapshotUnavailable), qt.IsTrue, qt.Commentf("got %v", err))
	c.Assert(v.State(), qt.Equals, Stale)
	c.Assert(ids(v.Sequence()), qt.DeepEquals, []string{"a"})
}

func TestViewCloseAfterDropCancelsSubscription(t *testing.T) {
	c := qt.New(t)
	v, feed, loader := openView(c)
	loader.results <- snapshot{items: []domain.Item{item("a", 1, true)}}
	c.Assert(waitReady(c, v), qt.IsNil)

	feed.handler(c).HandleDisconnect(errors.New("eof"))
	c.Assert(v.State(), qt.Equals, Stale)
	v.Close()

	subs, cancelled := feed.subscriptions()
	c.Assert(subs, qt.Equals, 1)
	c.Assert(cancelled, qt.Equals, 1)
}

func TestViewNotifiesListeners(t *testing.T) {
	c := qt.New(t)
	v, feed, loader := openView(c)
	changes := make(chan Change, 10)
	unsub := v.Subscribe(func(ch Change) { changes <- ch })
	defer unsub()

	loader.results <- snapshot{items: []domain.Item{item("a", 1, true)}}
	c.Assert(waitReady(c, v), qt.IsNil)
	feed.handler(c).HandleChange(domain.Created(item("b", 2, true)))

	want := [][]string{{"a"}, {"a", "b"}}
	for _, w := range want {
		select {
		case ch := <-changes:
			c.Assert(ch.State, qt.Equals, Live)
			c.Assert(ids(ch.Sequence), qt.DeepEquals, w)
		case <-time.After(5 * time.Second):
			c.Fatalf("timed out waiting for change %v", w)
		}
	}
}

func TestOpenValidatesConfig(t *testing.T) {
	c := qt.New(t)
	_, err := Open(context.Background(), Config{Loader: newGatedLoader(), Feed: &fakeFeed{}})
	c.Assert(err, qt.ErrorMatches, "empty CollectionID not valid")

	_, err = Open(context.Background(), Config{CollectionID: coll, Loader: newGatedLoader(), Feed: &fakeFeed{err: errors.New("refused")}})
	c.Assert(err, qt.ErrorMatches, "subscribe to collection c1: refused")
}
