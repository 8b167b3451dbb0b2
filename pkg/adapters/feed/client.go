package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/observability"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
)

const (
	writeTimeout = 10 * time.Second
	pingPeriod   = 30 * time.Second
	pongWait     = 3 * pingPeriod
)

// Client subscribes to the change feed of a remote server over websocket.
// A dropped connection is reported once through HandleDisconnect; reconnecting
// is up to the caller.
type Client struct {
	baseURL string
	*websocket.Dialer
	Header http.Header
	Logger *slog.Logger
}

var _ ports.ChangeFeedSubscriber = (*Client)(nil)

func NewClient(baseURL string) *Client {
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// FeedURL is the websocket URL of the feed of a collection.
func FeedURL(baseURL, collectionID string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/c/" + url.PathEscape(collectionID) + "/feed")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

func (c *Client) Subscribe(collectionID string, h ports.FeedHandler) (ports.CancelHandle, error) {
	if h == nil {
		return nil, errors.New("nil FeedHandler")
	}
	u, err := FeedURL(c.baseURL, collectionID)
	if err != nil {
		return nil, err
	}
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	wc, resp, err := dialer.Dial(u, c.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	s := &clientSub{
		wc:     wc,
		done:   make(chan struct{}),
		logger: observability.OrDefault(c.Logger).With("collection", collectionID),
	}
	go s.read(h)
	return s, nil
}

type clientSub struct {
	wc     *websocket.Conn
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (s *clientSub) read(h ports.FeedHandler) {
	defer s.wc.Close()
	s.wc.SetReadDeadline(time.Now().Add(pongWait))
	s.wc.SetPingHandler(func(data string) error {
		s.wc.SetReadDeadline(time.Now().Add(pongWait))
		err := s.wc.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	for {
		op, data, err := s.wc.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				h.HandleDisconnect(err)
			}
			return
		}
		if op != websocket.TextMessage {
			continue
		}
		var ev domain.ChangeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("skipping undecodable change event", "err", err)
			continue
		}
		h.HandleChange(ev)
	}
}

func (s *clientSub) Cancel() {
	s.once.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.wc.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		s.wc.Close()
	})
}
