package store

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryClient is an in-process Client with the same patch, query and
// subscribe semantics as the Mongo implementation. It backs unit tests and
// local development without a running replica set.
type MemoryClient struct {
	mu          sync.Mutex
	collections map[string]map[string]bson.M
	subs        map[string][]*memorySub
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		collections: make(map[string]map[string]bson.M),
		subs:        make(map[string][]*memorySub),
	}
}

type memoryEvent struct {
	snap *Snapshot
	err  error
}

type memorySub struct {
	client *MemoryClient
	key    string
	events chan memoryEvent
	once   sync.Once

	onChange func(*Snapshot)
	onError  func(error)
}

func (s *memorySub) Unsubscribe() {
	s.once.Do(func() {
		s.client.mu.Lock()
		subs := s.client.subs[s.key]
		for i, sub := range subs {
			if sub == s {
				s.client.subs[s.key] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		s.client.mu.Unlock()
		close(s.events)
	})
}

func (s *memorySub) pump() {
	for ev := range s.events {
		if ev.err != nil {
			s.onError(ev.err)
			continue
		}
		s.onChange(ev.snap)
	}
}

func (c *MemoryClient) Create(ctx context.Context, collection string, doc interface{}) (string, error) {
	m, err := toDoc(doc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	id, _ := m["_id"].(string)
	if id == "" {
		id = uuid.NewString()
		m["_id"] = id
	}
	m["createdAt"] = primitive.NewDateTimeFromTime(time.Now().UTC())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collections[collection] == nil {
		c.collections[collection] = make(map[string]bson.M)
	}
	c.collections[collection][id] = m
	return id, nil
}

func (c *MemoryClient) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(collection, id), nil
}

func (c *MemoryClient) Update(ctx context.Context, collection, id string, patch Patch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.collections[collection][id]
	if !ok {
		return fmt.Errorf("%w: no record %s/%s", ErrOperationFailed, collection, id)
	}
	applyPatch(doc, patch)
	c.notifyLocked(collection, id)
	return nil
}

func (c *MemoryClient) UpdateIf(ctx context.Context, collection, id string, cond map[string]interface{}, patch Patch) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.collections[collection][id]
	if !ok {
		return false, nil
	}
	for path, want := range cond {
		if !equalValues(getPath(doc, path), want) {
			return false, nil
		}
	}
	applyPatch(doc, patch)
	c.notifyLocked(collection, id)
	return true, nil
}

func (c *MemoryClient) Query(ctx context.Context, collection string, filter Filter, limit int64) ([]*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var snaps []*Snapshot
	for id, doc := range c.collections[collection] {
		if !matches(doc, filter) {
			continue
		}
		snaps = append(snaps, c.snapshotLocked(collection, id))
		if limit > 0 && int64(len(snaps)) >= limit {
			break
		}
	}
	return snaps, nil
}

func (c *MemoryClient) Subscribe(ctx context.Context, collection, id string, onChange func(*Snapshot), onError func(error)) (Subscription, error) {
	key := collection + "/" + id
	sub := &memorySub{
		client:   c,
		key:      key,
		events:   make(chan memoryEvent, 64),
		onChange: onChange,
		onError:  onError,
	}

	c.mu.Lock()
	c.subs[key] = append(c.subs[key], sub)
	sub.events <- memoryEvent{snap: c.snapshotLocked(collection, id)}
	c.mu.Unlock()

	go sub.pump()
	return sub, nil
}

// Delete removes a record and notifies subscribers with a non-existing
// snapshot. Not part of the Client interface: deletion of match records is
// an external housekeeping concern, but tests need to simulate it.
func (c *MemoryClient) Delete(collection, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.collections[collection], id)
	c.notifyLocked(collection, id)
}

// BreakSubscriptions delivers err to every subscriber of the record,
// simulating a notification-channel failure.
func (c *MemoryClient) BreakSubscriptions(collection, id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs[collection+"/"+id] {
		sub.events <- memoryEvent{err: err}
	}
}

func (c *MemoryClient) snapshotLocked(collection, id string) *Snapshot {
	doc, ok := c.collections[collection][id]
	if !ok {
		return &Snapshot{ID: id, Exists: false}
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return &Snapshot{ID: id, Exists: false}
	}
	return &Snapshot{ID: id, Exists: true, raw: raw}
}

func (c *MemoryClient) notifyLocked(collection, id string) {
	snap := c.snapshotLocked(collection, id)
	for _, sub := range c.subs[collection+"/"+id] {
		select {
		case sub.events <- memoryEvent{snap: snap}:
		default:
			// Drop when a subscriber stops draining.
		}
	}
}

// toDoc round-trips a value through bson so stored documents use the same
// representation the Mongo store would produce.
func toDoc(v interface{}) (bson.M, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func normalize(v interface{}) interface{} {
	data, err := bson.Marshal(bson.M{"v": v})
	if err != nil {
		return v
	}
	var m bson.M
	if err := bson.Unmarshal(data, &m); err != nil {
		return v
	}
	return m["v"]
}

func applyPatch(doc bson.M, patch Patch) {
	for path, v := range patch.Set {
		setPath(doc, path, normalize(v))
	}
	for path, v := range patch.Push {
		arr, _ := getPath(doc, path).(bson.A)
		setPath(doc, path, append(arr, normalize(v)))
	}
	for path, delta := range patch.Inc {
		cur, _ := asInt64(getPath(doc, path))
		setPath(doc, path, cur+delta)
	}
}

func setPath(doc bson.M, path string, v interface{}) {
	parts := strings.Split(path, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := doc[p].(bson.M)
		if !ok {
			next = bson.M{}
			doc[p] = next
		}
		doc = next
	}
	doc[parts[len(parts)-1]] = v
}

func getPath(doc bson.M, path string) interface{} {
	parts := strings.Split(path, ".")
	var cur interface{} = doc
	for _, p := range parts {
		m, ok := cur.(bson.M)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

func matches(doc bson.M, filter Filter) bool {
	for path, want := range filter.Eq {
		if !equalValues(getPath(doc, path), want) {
			return false
		}
	}
	for path, wants := range filter.In {
		got := getPath(doc, path)
		found := false
		for _, want := range wants {
			if equalValues(got, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func equalValues(a, b interface{}) bool {
	a, b = normalize(a), normalize(b)
	if ai, ok := asInt64(a); ok {
		bi, ok := asInt64(b)
		return ok && ai == bi
	}
	return reflect.DeepEqual(a, b)
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
