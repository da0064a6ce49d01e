package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoClient implements Client on a MongoDB database. Push subscriptions
// ride on change streams, so the deployment must be a replica set.
type MongoClient struct {
	db *mongo.Database
}

func NewMongoClient(db *mongo.Database) *MongoClient {
	return &MongoClient{db: db}
}

func (c *MongoClient) Create(ctx context.Context, collection string, doc interface{}) (string, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("%w: marshal: %v", ErrOperationFailed, err)
	}

	var m bson.M
	if err := bson.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("%w: unmarshal: %v", ErrOperationFailed, err)
	}

	id, _ := m["_id"].(string)
	if id == "" {
		id = primitive.NewObjectID().Hex()
		m["_id"] = id
	}
	// The store, not the caller, stamps the creation instant.
	m["createdAt"] = primitive.NewDateTimeFromTime(time.Now().UTC())

	if _, err := c.db.Collection(collection).InsertOne(ctx, m); err != nil {
		return "", fmt.Errorf("%w: insert: %v", ErrOperationFailed, err)
	}
	return id, nil
}

func (c *MongoClient) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	res := c.db.Collection(collection).FindOne(ctx, bson.M{"_id": id})
	raw, err := res.Raw()
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return &Snapshot{ID: id, Exists: false}, nil
		}
		return nil, fmt.Errorf("%w: find: %v", ErrOperationFailed, err)
	}

	buf := make(bson.Raw, len(raw))
	copy(buf, raw)
	return &Snapshot{ID: id, Exists: true, raw: buf}, nil
}

func (c *MongoClient) Update(ctx context.Context, collection, id string, patch Patch) error {
	if patch.Empty() {
		return nil
	}
	_, err := c.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, updateDoc(patch))
	if err != nil {
		return fmt.Errorf("%w: update: %v", ErrOperationFailed, err)
	}
	return nil
}

func (c *MongoClient) UpdateIf(ctx context.Context, collection, id string, cond map[string]interface{}, patch Patch) (bool, error) {
	filter := bson.M{"_id": id}
	for k, v := range cond {
		filter[k] = v
	}

	res, err := c.db.Collection(collection).UpdateOne(ctx, filter, updateDoc(patch))
	if err != nil {
		return false, fmt.Errorf("%w: conditional update: %v", ErrOperationFailed, err)
	}
	return res.MatchedCount == 1, nil
}

func (c *MongoClient) Query(ctx context.Context, collection string, filter Filter, limit int64) ([]*Snapshot, error) {
	q := bson.M{}
	for k, v := range filter.Eq {
		q[k] = v
	}
	for k, vs := range filter.In {
		q[k] = bson.M{"$in": vs}
	}

	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := c.db.Collection(collection).Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrOperationFailed, err)
	}
	defer cur.Close(ctx)

	var snaps []*Snapshot
	for cur.Next(ctx) {
		raw := make(bson.Raw, len(cur.Current))
		copy(raw, cur.Current)
		id, _ := raw.Lookup("_id").StringValueOK()
		snaps = append(snaps, &Snapshot{ID: id, Exists: true, raw: raw})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: cursor: %v", ErrOperationFailed, err)
	}
	return snaps, nil
}

func (c *MongoClient) Subscribe(ctx context.Context, collection, id string, onChange func(*Snapshot), onError func(error)) (Subscription, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: id}}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	// The stream outlives the caller's context; Unsubscribe ends it.
	streamCtx, cancel := context.WithCancel(context.Background())
	cs, err := c.db.Collection(collection).Watch(streamCtx, pipeline, opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: watch: %v", ErrOperationFailed, err)
	}

	go func() {
		defer cs.Close(context.Background())

		// Deliver the current state before streamed changes, so late
		// subscribers observe writes they raced with (the joiner relies on
		// seeing its own join immediately).
		snap, err := c.Get(streamCtx, collection, id)
		if err != nil {
			if streamCtx.Err() == nil {
				onError(err)
			}
			return
		}
		onChange(snap)

		for cs.Next(streamCtx) {
			op, _ := cs.Current.Lookup("operationType").StringValueOK()
			if op == "delete" {
				onChange(&Snapshot{ID: id, Exists: false})
				continue
			}
			doc, ok := cs.Current.Lookup("fullDocument").DocumentOK()
			if !ok {
				continue
			}
			raw := make(bson.Raw, len(doc))
			copy(raw, doc)
			onChange(&Snapshot{ID: id, Exists: true, raw: raw})
		}
		if err := cs.Err(); err != nil && streamCtx.Err() == nil {
			onError(fmt.Errorf("%w: change stream: %v", ErrOperationFailed, err))
		}
	}()

	return &mongoSubscription{cancel: cancel}, nil
}

type mongoSubscription struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (s *mongoSubscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

func updateDoc(patch Patch) bson.M {
	doc := bson.M{}
	if len(patch.Set) > 0 {
		doc["$set"] = bson.M(patch.Set)
	}
	if len(patch.Push) > 0 {
		doc["$push"] = bson.M(patch.Push)
	}
	if len(patch.Inc) > 0 {
		inc := bson.M{}
		for k, v := range patch.Inc {
			inc[k] = v
		}
		doc["$inc"] = inc
	}
	return doc
}
