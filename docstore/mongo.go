package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"taskadmin/config"
	"taskadmin/model"
)

const (
	minBackoff = time.Second
	maxBackoff = time.Minute
)

// MongoStore reads collections from MongoDB. Watchers re-read the whole
// collection on every change stream event. Where change streams are not
// available (a standalone server) they poll and compare fingerprints.
type MongoStore struct {
	client   *mongo.Client
	db       *mongo.Database
	timeout  time.Duration
	interval time.Duration
	log      logrus.FieldLogger
}

func ConnectMongo(ctx context.Context, cfg *config.MongoConfig, pollInterval time.Duration, log logrus.FieldLogger) (*MongoStore, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	log.Infof("connected to %s/%s", cfg.URI, cfg.Database)
	return &MongoStore{
		client:   client,
		db:       client.Database(cfg.Database),
		timeout:  timeout,
		interval: pollInterval,
		log:      log,
	}, nil
}

type mongoWatch struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (w *mongoWatch) Unsubscribe() {
	w.once.Do(w.cancel)
	<-w.done
}

func (m *MongoStore) Watch(ctx context.Context, collection string, h Handler) (Subscription, error) {
	wctx, cancel := context.WithCancel(ctx)
	w := &mongoWatch{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		m.watchLoop(wctx, m.db.Collection(collection), h)
	}()
	return w, nil
}

func (m *MongoStore) watchLoop(ctx context.Context, coll *mongo.Collection, h Handler) {
	name := coll.Name()
	backoff := minBackoff
	var last uint64

	deliver := func() bool {
		docs, sum, err := m.load(ctx, coll)
		if err != nil {
			if ctx.Err() == nil {
				m.log.Warnf("load %s: %v", name, err)
				h.fail(name, err)
			}
			return false
		}
		if sum != last || last == 0 {
			last = sum
			h.snapshot(Snapshot{Collection: name, Docs: docs, At: time.Now()})
		}
		return true
	}

	for ctx.Err() == nil {
		stream, err := coll.Watch(ctx, mongo.Pipeline{})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.Warnf("change stream %s unavailable, polling for %s: %v", name, backoff, err)
			h.fail(name, err)
			m.poll(ctx, backoff, deliver)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		if deliver() {
			backoff = minBackoff
		}
		for stream.Next(ctx) {
			deliver()
		}
		err = stream.Err()
		stream.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		m.log.Warnf("change stream %s closed: %v", name, err)
		h.fail(name, fmt.Errorf("change stream closed: %w", err))
		m.poll(ctx, backoff, deliver)
		backoff = min(backoff*2, maxBackoff)
	}
}

// poll delivers on fingerprint changes for the given span, then returns so
// the caller can retry the change stream.
func (m *MongoStore) poll(ctx context.Context, span time.Duration, deliver func() bool) {
	deliver()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(span)
	defer deadline.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
			deliver()
		}
	}
}

// load reads the whole collection and returns it with an xxhash fingerprint
// of the raw BSON.
func (m *MongoStore) load(ctx context.Context, coll *mongo.Collection) ([]model.Document, uint64, error) {
	qctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	cur, err := coll.Find(qctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(context.Background())

	digest := xxhash.New()
	var docs []model.Document
	for cur.Next(qctx) {
		digest.Write(cur.Current)
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			continue
		}
		docs = append(docs, fromBSON(raw))
	}
	if err := cur.Err(); err != nil {
		return nil, 0, err
	}
	// Seed keeps an empty collection distinct from "never loaded".
	digest.WriteString(coll.Name())
	return docs, digest.Sum64(), nil
}

// fromBSON converts driver types into the plain values the model decoders
// understand.
func fromBSON(m bson.M) model.Document {
	d := make(model.Document, len(m))
	for k, v := range m {
		d[k] = plain(v)
	}
	return d
}

func plain(v any) any {
	switch x := v.(type) {
	case primitive.M:
		return map[string]any(fromBSON(bson.M(x)))
	case primitive.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = plain(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(x))
		for i := range x {
			out[i] = plain(x[i])
		}
		return out
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time()
	case primitive.Timestamp:
		return time.Unix(int64(x.T), 0)
	case primitive.Decimal128:
		return x.String()
	case int32:
		return int64(x)
	default:
		return v
	}
}

// idFilter matches a string _id and, when id is a valid hex ObjectID, the
// ObjectID form too.
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{id, oid}}}
	}
	return bson.M{"_id": id}
}

func (m *MongoStore) Insert(ctx context.Context, collection string, doc model.Document) (string, error) {
	id, body := assignID(doc)
	body["_id"] = id
	qctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if _, err := m.db.Collection(collection).InsertOne(qctx, bson.M(body)); err != nil {
		return "", wrap("insert", collection, err)
	}
	return id, nil
}

func (m *MongoStore) Update(ctx context.Context, collection, id string, fields model.Document) error {
	set, unset := bson.M{}, bson.M{}
	for k, v := range fields {
		if v == nil {
			unset[k] = ""
			continue
		}
		set[k] = v
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(update) == 0 {
		return nil
	}

	qctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	res, err := m.db.Collection(collection).UpdateOne(qctx, idFilter(id), update)
	if err != nil {
		return wrap("update", collection, err)
	}
	if res.MatchedCount == 0 {
		return wrap("update", collection, fmt.Errorf("%s: %w", id, ErrNotFound))
	}
	return nil
}

func (m *MongoStore) Delete(ctx context.Context, collection, id string) error {
	qctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	res, err := m.db.Collection(collection).DeleteOne(qctx, idFilter(id))
	if err != nil {
		return wrap("delete", collection, err)
	}
	if res.DeletedCount == 0 {
		return wrap("delete", collection, fmt.Errorf("%s: %w", id, ErrNotFound))
	}
	return nil
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.client.Disconnect(ctx); err != nil && !errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("mongo disconnect: %w", err)
	}
	return nil
}
