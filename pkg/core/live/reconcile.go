package live

import (
	"fmt"
	"maps"
	"slices"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
)

type entry struct {
	item domain.Item
	// seen is the order in which the item was first seen, used to break
	// ties between equal creation keys without reshuffling known items.
	seen uint64
}

// DisplayState is the reconciled content of one collection: every known
// item, the visible ordered sequence and the display cursor.
//
// A DisplayState is never mutated once returned; Reconcile and Rebase build
// a new one.
type DisplayState struct {
	collectionID string
	items        map[string]entry
	seq          []domain.Item
	cursor       int
	nextSeen     uint64
}

// NewDisplayState returns an empty state for collectionID.
func NewDisplayState(collectionID string) *DisplayState {
	return &DisplayState{collectionID: collectionID, items: make(map[string]entry)}
}

// Sequence returns a copy of the visible items in display order.
func (s *DisplayState) Sequence() []domain.Item {
	return slices.Clone(s.seq)
}

func (s *DisplayState) Len() int    { return len(s.seq) }
func (s *DisplayState) Cursor() int { return s.cursor }

// Current returns the item under the cursor.
func (s *DisplayState) Current() (domain.Item, bool) {
	if len(s.seq) == 0 {
		return domain.Item{}, false
	}
	return s.seq[s.cursor], true
}

// Item returns a stored item, visible or not.
func (s *DisplayState) Item(id string) (domain.Item, bool) {
	e, ok := s.items[id]
	return e.item, ok
}

// Known is the number of items held, hidden ones included.
func (s *DisplayState) Known() int { return len(s.items) }

// WithCursor returns a copy of s with the cursor moved to i, clamped into range.
func (s *DisplayState) WithCursor(i int) *DisplayState {
	next := *s
	next.cursor = clamp(i, len(s.seq))
	return &next
}

// Advance returns a copy of s with the cursor moved one step, wrapping at the end.
func (s *DisplayState) Advance() *DisplayState {
	n := len(s.seq)
	if n == 0 {
		return s.WithCursor(0)
	}
	return s.WithCursor((clamp(s.cursor, n) + 1) % n)
}

// Validate reports whether ev can be applied to the collection of s.
func (s *DisplayState) Validate(ev domain.ChangeEvent) error {
	if ev.Kind != domain.KindCreated && ev.Kind != domain.KindUpdated {
		return fmt.Errorf("%w: kind %v", domain.ErrMalformedEvent, ev.Kind)
	}
	if ev.Item.ID == "" {
		return fmt.Errorf("%w: item without id", domain.ErrMalformedEvent)
	}
	target := ev.CollectionID
	if target == "" {
		target = ev.Item.CollectionID
	}
	if target != s.collectionID || (ev.Item.CollectionID != "" && ev.Item.CollectionID != s.collectionID) {
		return fmt.Errorf("%w: event for collection %q applied to %q", domain.ErrMalformedEvent, target, s.collectionID)
	}
	return nil
}

// Reconcile applies one change event and returns the resulting state.
//
// Created and Updated are both upserts: an Updated for an unknown item
// inserts it, and the stored item is replaced by the payload of whichever
// event arrives last. A malformed event leaves prev untouched and returns an
// error wrapping domain.ErrMalformedEvent.
func Reconcile(prev *DisplayState, ev domain.ChangeEvent) (*DisplayState, error) {
	if err := prev.Validate(ev); err != nil {
		return prev, err
	}
	item := ev.Item
	item.CollectionID = prev.collectionID

	next := &DisplayState{
		collectionID: prev.collectionID,
		items:        maps.Clone(prev.items),
		nextSeen:     prev.nextSeen,
	}
	if old, ok := next.items[item.ID]; ok {
		next.items[item.ID] = entry{item: item, seen: old.seen}
	} else {
		next.items[item.ID] = entry{item: item, seen: next.nextSeen}
		next.nextSeen++
	}
	next.rebuild(prev)
	return next, nil
}

// Rebase replaces the item set with a fresh snapshot. Items already known
// keep their first-seen position, and the cursor stays on the displayed item
// when it is still visible.
func Rebase(prev *DisplayState, snapshot []domain.Item) *DisplayState {
	next := &DisplayState{
		collectionID: prev.collectionID,
		items:        make(map[string]entry, len(snapshot)),
		nextSeen:     prev.nextSeen,
	}
	for _, item := range snapshot {
		if item.ID == "" {
			continue
		}
		if item.CollectionID != "" && item.CollectionID != prev.collectionID {
			continue
		}
		item.CollectionID = prev.collectionID
		if old, ok := prev.items[item.ID]; ok {
			next.items[item.ID] = entry{item: item, seen: old.seen}
			continue
		}
		if dup, ok := next.items[item.ID]; ok {
			next.items[item.ID] = entry{item: item, seen: dup.seen}
			continue
		}
		next.items[item.ID] = entry{item: item, seen: next.nextSeen}
		next.nextSeen++
	}
	next.rebuild(prev)
	return next
}

// rebuild recomputes the visible sequence and re-anchors the cursor on the
// item prev was displaying.
func (s *DisplayState) rebuild(prev *DisplayState) {
	visible := make([]entry, 0, len(s.items))
	for _, e := range s.items {
		if e.item.Visible {
			visible = append(visible, e)
		}
	}
	slices.SortFunc(visible, func(a, b entry) int {
		if a.item.Seq != b.item.Seq {
			if a.item.Seq < b.item.Seq {
				return -1
			}
			return 1
		}
		if a.seen < b.seen {
			return -1
		}
		if a.seen > b.seen {
			return 1
		}
		return 0
	})
	s.seq = make([]domain.Item, len(visible))
	for i, e := range visible {
		s.seq[i] = e.item
	}

	s.cursor = clamp(prev.cursor, len(s.seq))
	if shown, ok := prev.Current(); ok {
		if i := slices.IndexFunc(s.seq, func(it domain.Item) bool { return it.ID == shown.ID }); i >= 0 {
			s.cursor = i
		}
	}
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
