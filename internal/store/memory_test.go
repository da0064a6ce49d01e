package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type widget struct {
	ID     string   `bson:"_id,omitempty"`
	Name   string   `bson:"name"`
	Count  int      `bson:"count"`
	Nested nested   `bson:"nested"`
	Items  []string `bson:"items"`
}

type nested struct {
	Flag bool  `bson:"flag"`
	Ping int64 `bson:"ping"`
}

func TestCreateAssignsIDAndTimestamp(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	id, err := c.Create(ctx, "widgets", &widget{Name: "w"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap, err := c.Get(ctx, "widgets", id)
	require.NoError(t, err)
	require.True(t, snap.Exists)

	var m bson.M
	require.NoError(t, snap.Decode(&m))
	assert.NotNil(t, m["createdAt"], "store stamps createdAt")
}

func TestUpdatePatchSemantics(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	id, err := c.Create(ctx, "widgets", &widget{Name: "w", Count: 1, Items: []string{}})
	require.NoError(t, err)

	err = c.Update(ctx, "widgets", id, Patch{
		Set:  map[string]interface{}{"nested.flag": true, "nested.ping": int64(99)},
		Push: map[string]interface{}{"items": "a"},
		Inc:  map[string]int64{"count": 2},
	})
	require.NoError(t, err)
	err = c.Update(ctx, "widgets", id, Patch{
		Push: map[string]interface{}{"items": "b"},
	})
	require.NoError(t, err)

	snap, err := c.Get(ctx, "widgets", id)
	require.NoError(t, err)

	var w widget
	require.NoError(t, snap.Decode(&w))
	assert.True(t, w.Nested.Flag)
	assert.Equal(t, int64(99), w.Nested.Ping)
	assert.Equal(t, 3, w.Count)
	assert.Equal(t, []string{"a", "b"}, w.Items)
}

func TestUpdateIfIsCompareAndSet(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	id, err := c.Create(ctx, "widgets", &widget{Name: "w", Count: 0})
	require.NoError(t, err)

	advance := Patch{Set: map[string]interface{}{"count": 1}}

	ok, err := c.UpdateIf(ctx, "widgets", id, map[string]interface{}{"count": 0}, advance)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second writer raced and lost: the condition no longer holds.
	ok, err = c.UpdateIf(ctx, "widgets", id, map[string]interface{}{"count": 0}, advance)
	require.NoError(t, err)
	assert.False(t, ok)

	snap, err := c.Get(ctx, "widgets", id)
	require.NoError(t, err)
	var w widget
	require.NoError(t, snap.Decode(&w))
	assert.Equal(t, 1, w.Count, "no double advance")
}

func TestUpdateIfMissingRecord(t *testing.T) {
	c := NewMemoryClient()
	ok, err := c.UpdateIf(context.Background(), "widgets", "nope", nil, Patch{
		Set: map[string]interface{}{"name": "x"},
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueryFilters(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	_, err := c.Create(ctx, "widgets", &widget{Name: "a", Count: 1})
	require.NoError(t, err)
	_, err = c.Create(ctx, "widgets", &widget{Name: "b", Count: 1})
	require.NoError(t, err)
	_, err = c.Create(ctx, "widgets", &widget{Name: "c", Count: 2})
	require.NoError(t, err)

	snaps, err := c.Query(ctx, "widgets", Filter{
		Eq: map[string]interface{}{"count": 1},
	}, 0)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	snaps, err = c.Query(ctx, "widgets", Filter{
		Eq: map[string]interface{}{"count": 1},
	}, 1)
	require.NoError(t, err)
	assert.Len(t, snaps, 1, "limit respected")

	snaps, err = c.Query(ctx, "widgets", Filter{
		In: map[string][]interface{}{"name": {"a", "c"}},
	}, 0)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	snaps, err = c.Query(ctx, "widgets", Filter{
		Eq: map[string]interface{}{"name": "zzz"},
	}, 0)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestSubscribeDeliversCurrentThenChanges(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	id, err := c.Create(ctx, "widgets", &widget{Name: "w"})
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []string
	sub, err := c.Subscribe(ctx, "widgets", id, func(snap *Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if !snap.Exists {
			seen = append(seen, "<gone>")
			return
		}
		var w widget
		if err := snap.Decode(&w); err == nil {
			seen = append(seen, w.Name)
		}
	}, func(err error) {})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0] == "w"
	}, time.Second, 10*time.Millisecond, "current snapshot delivered first")

	require.NoError(t, c.Update(ctx, "widgets", id, Patch{
		Set: map[string]interface{}{"name": "w2"},
	}))
	c.Delete("widgets", id)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3 && seen[1] == "w2" && seen[2] == "<gone>"
	}, time.Second, 10*time.Millisecond)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	id, err := c.Create(ctx, "widgets", &widget{Name: "w"})
	require.NoError(t, err)

	var mu sync.Mutex
	count := 0
	sub, err := c.Subscribe(ctx, "widgets", id, func(*Snapshot) {
		mu.Lock()
		count++
		mu.Unlock()
	}, func(error) {})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, 10*time.Millisecond)

	sub.Unsubscribe()
	sub.Unsubscribe() // safe to repeat

	require.NoError(t, c.Update(ctx, "widgets", id, Patch{
		Set: map[string]interface{}{"name": "w2"},
	}))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestBreakSubscriptionsDeliversError(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	id, err := c.Create(ctx, "widgets", &widget{Name: "w"})
	require.NoError(t, err)

	errs := make(chan error, 1)
	sub, err := c.Subscribe(ctx, "widgets", id, func(*Snapshot) {}, func(err error) {
		errs <- err
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	boom := errors.New("stream broke")
	c.BreakSubscriptions("widgets", id, boom)

	select {
	case err := <-errs:
		assert.Equal(t, boom, err)
	case <-time.After(time.Second):
		t.Fatal("no error delivered")
	}
}

func TestUpdateDocShape(t *testing.T) {
	doc := updateDoc(Patch{
		Set:  map[string]interface{}{"a": 1},
		Push: map[string]interface{}{"b": "x"},
		Inc:  map[string]int64{"c": 2},
	})
	assert.Equal(t, bson.M{"a": 1}, doc["$set"])
	assert.Equal(t, bson.M{"b": "x"}, doc["$push"])
	assert.Equal(t, bson.M{"c": int64(2)}, doc["$inc"])

	assert.Empty(t, updateDoc(Patch{}))
}
