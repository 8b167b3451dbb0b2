package gallery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/juju/clock/testclock"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/live"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
)

const shortWait = 5 * time.Second

type cancelFunc func()

func (f cancelFunc) Cancel() { f() }

type fakeFeed struct {
	mu       sync.Mutex
	handlers []ports.FeedHandler
}

func (f *fakeFeed) Subscribe(_ string, h ports.FeedHandler) (ports.CancelHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, h)
	return cancelFunc(func() {}), nil
}

func (f *fakeFeed) last() ports.FeedHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[len(f.handlers)-1]
}

func (f *fakeFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

type fakeLoader struct {
	mu    sync.Mutex
	items []domain.Item
}

func (l *fakeLoader) FetchSnapshot(context.Context, string) ([]domain.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Item(nil), l.items...), nil
}

func (l *fakeLoader) set(items ...domain.Item) {
	l.mu.Lock()
	l.items = items
	l.mu.Unlock()
}

type fakeSettings struct {
	interval time.Duration
	err      error
}

func (s fakeSettings) RotationInterval(context.Context, string) (time.Duration, error) {
	return s.interval, s.err
}

func photo(id string, seq int64, visible bool) domain.Item {
	return domain.Item{ID: id, CollectionID: "c1", ImageURL: "https://img/" + id, Visible: visible, Seq: seq}
}

func eventually(c *qt.C, cond func() bool) {
	c.Helper()
	deadline := time.Now().Add(shortWait)
	for !cond() {
		if time.Now().After(deadline) {
			c.Fatalf("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

type wallFixture struct {
	clk    *testclock.Clock
	feed   *fakeFeed
	loader *fakeLoader
	shown  chan string
	wall   *Wall
}

func openWall(c *qt.C, settings ports.ConfigSource, items ...domain.Item) *wallFixture {
	f := &wallFixture{
		clk:    testclock.NewClock(time.Unix(0, 0)),
		feed:   &fakeFeed{},
		loader: &fakeLoader{items: items},
		shown:  make(chan string, 16),
	}
	w, err := Open(context.Background(), Config{
		CollectionID: "c1",
		Loader:       f.loader,
		Feed:         f.feed,
		Settings:     settings,
		Clock:        f.clk,
		FirstTick:    time.Second,
		OnShow:       func(it domain.Item) { f.shown <- it.ID },
	})
	c.Assert(err, qt.IsNil)
	c.Cleanup(w.Close)
	f.wall = w

	ctx, cancel := context.WithTimeout(context.Background(), shortWait)
	defer cancel()
	c.Assert(w.WaitReady(ctx), qt.IsNil)
	return f
}

func (f *wallFixture) next(c *qt.C) string {
	c.Helper()
	select {
	case id := <-f.shown:
		return id
	case <-time.After(shortWait):
		c.Fatalf("nothing shown")
	}
	return ""
}

func TestWallRotatesWithConfiguredInterval(t *testing.T) {
	c := qt.New(t)
	f := openWall(c, fakeSettings{interval: 10 * time.Second}, photo("a", 1, true), photo("b", 2, true))
	eventually(c, func() bool { return f.wall.Scheduler().Interval() == 10*time.Second })

	c.Assert(f.clk.WaitAdvance(time.Second, shortWait, 1), qt.IsNil)
	c.Assert(f.next(c), qt.Equals, "b")
	c.Assert(f.clk.WaitAdvance(10*time.Second, shortWait, 1), qt.IsNil)
	c.Assert(f.next(c), qt.Equals, "a")
	c.Assert(f.wall.CurrentIndex(), qt.Equals, 0)
}

func TestWallFallsBackToDefaultInterval(t *testing.T) {
	c := qt.New(t)
	f := openWall(c, fakeSettings{err: errors.New("no settings")}, photo("a", 1, true))
	eventually(c, func() bool { return f.wall.Scheduler().Interval() == DefaultInterval })
}

func TestWallStartsRotatingWhenFirstPhotoArrives(t *testing.T) {
	c := qt.New(t)
	f := openWall(c, nil)
	c.Assert(f.wall.View().Empty(), qt.IsTrue)
	eventually(c, func() bool { return f.wall.Scheduler().Interval() == DefaultInterval })

	f.feed.last().HandleChange(domain.Created(photo("a", 1, true)))
	f.feed.last().HandleChange(domain.Created(photo("b", 2, true)))
	c.Assert(f.clk.WaitAdvance(time.Second, shortWait, 1), qt.IsNil)
	c.Assert(f.next(c), qt.Equals, "b")
}

func TestWallResumesAfterDisconnect(t *testing.T) {
	c := qt.New(t)
	f := openWall(c, fakeSettings{interval: time.Minute}, photo("a", 1, true))

	f.loader.set(photo("a", 1, true), photo("b", 2, true))
	f.feed.last().HandleDisconnect(errors.New("connection reset"))

	eventually(c, func() bool {
		return f.feed.count() == 2 && f.wall.View().State() == live.Live
	})
	c.Assert(f.wall.View().Len(), qt.Equals, 2)
}

func TestOpenValidates(t *testing.T) {
	c := qt.New(t)
	_, err := Open(context.Background(), Config{CollectionID: "c1", Feed: &fakeFeed{}})
	c.Assert(err, qt.ErrorMatches, "nil Loader not valid")
}
