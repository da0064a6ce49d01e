package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrOperationFailed wraps store-level failures so callers can treat any
// create/read/update/query error uniformly.
var ErrOperationFailed = errors.New("store operation failed")

// Patch is a field-scoped update. Paths are dotted ("player1.lastPing").
// Set overwrites, Push appends to a list, Inc adds to a numeric field.
type Patch struct {
	Set  map[string]interface{}
	Push map[string]interface{}
	Inc  map[string]int64
}

// Empty reports whether the patch would change nothing.
func (p Patch) Empty() bool {
	return len(p.Set) == 0 && len(p.Push) == 0 && len(p.Inc) == 0
}

// Filter selects records by field equality and membership.
type Filter struct {
	Eq map[string]interface{}
	In map[string][]interface{}
}

// Snapshot is one observed state of a record. A snapshot with Exists=false
// means the record is gone (or never was).
type Snapshot struct {
	ID     string
	Exists bool
	raw    bson.Raw
}

// Decode unmarshals the snapshot into out.
func (s *Snapshot) Decode(out interface{}) error {
	if !s.Exists {
		return errors.New("decode of non-existing snapshot")
	}
	return bson.Unmarshal(s.raw, out)
}

// Subscription is a handle to an active push subscription.
type Subscription interface {
	// Unsubscribe stops delivery. Safe to call more than once.
	Unsubscribe()
}

// Client is a generic multi-writer document store with push notifications.
// Create stamps the record's createdAt server-side; callers never supply it.
// Subscribe delivers the current snapshot first, then every subsequent
// change; deletion arrives as a snapshot with Exists=false.
type Client interface {
	Create(ctx context.Context, collection string, doc interface{}) (string, error)
	Get(ctx context.Context, collection, id string) (*Snapshot, error)
	Update(ctx context.Context, collection, id string, patch Patch) error
	// UpdateIf applies the patch only while every cond field still holds its
	// given value. Returns false when the condition no longer matches.
	UpdateIf(ctx context.Context, collection, id string, cond map[string]interface{}, patch Patch) (bool, error)
	Query(ctx context.Context, collection string, filter Filter, limit int64) ([]*Snapshot, error)
	Subscribe(ctx context.Context, collection, id string, onChange func(*Snapshot), onError func(error)) (Subscription, error)
}
