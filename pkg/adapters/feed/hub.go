// Package feed carries photo change events from the services that make them
// to the walls that display them.
package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/juju/pubsub/v2"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/observability"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
)

const topicPrefix = "photos."

func topic(collectionID string) string {
	return topicPrefix + collectionID
}

// Hub is the in-process change broker. Each subscriber receives the events
// of its collection in publish order, on its own goroutine.
type Hub struct {
	hub     *pubsub.SimpleHub
	logger  *slog.Logger
	metrics *observability.Metrics
}

var (
	_ ports.ChangePublisher      = (*Hub)(nil)
	_ ports.ChangeFeedSubscriber = (*Hub)(nil)
)

func NewHub(logger *slog.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		hub:     pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{}),
		logger:  observability.OrDefault(logger),
		metrics: metrics,
	}
}

func (h *Hub) Publish(ev domain.ChangeEvent) {
	if ev.CollectionID == "" {
		ev.CollectionID = ev.Item.CollectionID
	}
	if ev.CollectionID == "" {
		h.logger.Warn("dropping change event without collection", "item", ev.Item.ID)
		return
	}
	_ = h.hub.Publish(topic(ev.CollectionID), ev)
	h.metrics.Published(ev.Kind.String())
}

// Subscribe never reports a disconnect: the in-process feed only ends on Cancel.
func (h *Hub) Subscribe(collectionID string, fh ports.FeedHandler) (ports.CancelHandle, error) {
	if collectionID == "" {
		return nil, errors.New("empty collection id")
	}
	if fh == nil {
		return nil, errors.New("nil FeedHandler")
	}
	unsub := h.hub.Subscribe(topic(collectionID), func(_ string, data interface{}) {
		ev, ok := data.(domain.ChangeEvent)
		if !ok {
			h.logger.Error("unexpected feed payload", "type", fmt.Sprintf("%T", data))
			return
		}
		fh.HandleChange(ev)
	})
	return &subscription{unsub: unsub}, nil
}

type subscription struct {
	once  sync.Once
	unsub func()
}

func (s *subscription) Cancel() { s.once.Do(s.unsub) }
