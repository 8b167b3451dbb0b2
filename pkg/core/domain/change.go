package domain

import "fmt"

// ChangeKind tags a ChangeEvent
type ChangeKind int

const (
	KindUnknown ChangeKind = iota
	KindCreated
	KindUpdated
)

func (k ChangeKind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindUpdated:
		return "updated"
	}
	return "unknown"
}

func (k ChangeKind) MarshalText() ([]byte, error) {
	if k != KindCreated && k != KindUpdated {
		return nil, fmt.Errorf("cannot marshal change kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *ChangeKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "created":
		*k = KindCreated
	case "updated":
		*k = KindUpdated
	default:
		return fmt.Errorf("%w: unknown change type %q", ErrMalformedEvent, string(b))
	}
	return nil
}

// ChangeEvent carries a full item snapshot, not a diff
type ChangeEvent struct {
	Kind         ChangeKind `json:"type"`
	CollectionID string     `json:"collection_id"`
	Item         Item       `json:"item"`
}

func Created(item Item) ChangeEvent {
	return ChangeEvent{Kind: KindCreated, CollectionID: item.CollectionID, Item: item}
}

func Updated(item Item) ChangeEvent {
	return ChangeEvent{Kind: KindUpdated, CollectionID: item.CollectionID, Item: item}
}
