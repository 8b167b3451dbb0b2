package feed

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/observability"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
)

const DefaultBuffer = 64

// Server streams the change feed of one collection to a websocket client as
// JSON encoded ChangeEvents, one per text message.
type Server struct {
	Feed ports.ChangeFeedSubscriber
	// Buffer is the number of events queued per connection. A client that
	// falls further behind is disconnected and has to resync.
	Buffer  int
	Logger  *slog.Logger
	Metrics *observability.Metrics

	upgrader websocket.Upgrader
}

func NewServer(feed ports.ChangeFeedSubscriber, buffer int, logger *slog.Logger, metrics *observability.Metrics) *Server {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Server{
		Feed:    feed,
		Buffer:  buffer,
		Logger:  observability.OrDefault(logger),
		Metrics: metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Serve subscribes to the collection, then upgrades the request and streams
// events until either side goes away. Events published once the handshake
// completed are never missed.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, collectionID string) {
	sink := &connSink{
		send:     make(chan domain.ChangeEvent, s.Buffer),
		overflow: make(chan struct{}),
		dropped:  make(chan struct{}),
	}
	sub, err := s.Feed.Subscribe(collectionID, sink)
	if err != nil {
		s.Logger.Error("feed subscribe failed", "collection", collectionID, "err", err)
		http.Error(w, "feed unavailable", http.StatusServiceUnavailable)
		return
	}
	defer sub.Cancel()

	wc, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("feed upgrade failed", "err", err)
		return
	}
	defer wc.Close()
	s.Metrics.FeedConnected()
	defer s.Metrics.FeedDisconnected()

	// Clients only send control frames; reading keeps them processed.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := wc.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev := <-sink.send:
			wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wc.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wc.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sink.overflow:
			s.Logger.Warn("feed client too slow, disconnecting", "collection", collectionID)
			closeWith(wc, websocket.ClosePolicyViolation, "too slow")
			return
		case <-sink.dropped:
			closeWith(wc, websocket.CloseGoingAway, "feed closed")
			return
		case <-readDone:
			return
		case <-r.Context().Done():
			closeWith(wc, websocket.CloseGoingAway, "")
			return
		}
	}
}

func closeWith(wc *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = wc.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}

// connSink queues events for one connection without ever blocking the feed.
type connSink struct {
	send         chan domain.ChangeEvent
	overflow     chan struct{}
	overflowOnce sync.Once
	dropped      chan struct{}
	dropOnce     sync.Once
}

func (c *connSink) HandleChange(ev domain.ChangeEvent) {
	select {
	case c.send <- ev:
	default:
		c.overflowOnce.Do(func() { close(c.overflow) })
	}
}

func (c *connSink) HandleDisconnect(error) {
	c.dropOnce.Do(func() { close(c.dropped) })
}
