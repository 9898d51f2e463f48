package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	kerrors "github.com/PolarWolf314/nudge/internal/errors"
	"github.com/PolarWolf314/nudge/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Server error codes reported when a deployment throttles requests.
const (
	codeRequestRateTooLarge = 16500
	codeIngressRateLimited  = 462
)

// Store is a store.DocumentStore backed by MongoDB. Subscriptions use change
// streams, which require a replica set or sharded cluster.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.DocumentStore = (*Store)(nil)

// New connects to uri and verifies the connection.
func New(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, mapError(err)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, mapError(err)
	}
	return &Store{client: cli, db: cli.Database(database)}, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.Document{}, fmt.Errorf("%s/%s: %w", collection, id, kerrors.ErrNotFound)
	}
	if err != nil {
		return store.Document{}, mapError(err)
	}
	return toDocument(raw), nil
}

func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	coll := s.db.Collection(collection)
	var err error
	if merge {
		_, err = coll.UpdateByID(ctx, id, bson.M{"$set": bson.M(fields)}, options.Update().SetUpsert(true))
	} else {
		_, err = coll.ReplaceOne(ctx, bson.M{"_id": id}, bson.M(fields), options.Replace().SetUpsert(true))
	}
	return mapError(err)
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	res, err := s.db.Collection(collection).UpdateByID(ctx, id, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, kerrors.ErrNotFound)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	return mapError(err)
}

// SetFieldIfAbsent upserts with a filter requiring path to be missing. When
// another writer got there first the upsert collides on _id and the stored
// value is read back.
func (s *Store) SetFieldIfAbsent(ctx context.Context, collection, id, path string, value any) (any, bool, error) {
	coll := s.db.Collection(collection)
	_, err := coll.UpdateOne(ctx,
		bson.M{"_id": id, path: bson.M{"$exists": false}},
		bson.M{"$set": bson.M{path: value}},
		options.Update().SetUpsert(true),
	)
	if err == nil {
		return value, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, false, mapError(err)
	}

	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, false, err
	}
	existing, ok := store.GetPath(doc.Fields, path)
	if !ok {
		return nil, false, fmt.Errorf("%s/%s: %s vanished after conflict", collection, id, path)
	}
	return existing, false, nil
}

func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	opts := options.Find()
	if len(q.Orders) > 0 {
		opts.SetSort(sortOf(q))
	}
	cur, err := s.db.Collection(q.Collection).Find(ctx, filterOf(q), opts)
	if err != nil {
		return nil, mapError(err)
	}
	defer cur.Close(ctx)

	var docs []store.Document
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decoding %s document: %w", q.Collection, err)
		}
		docs = append(docs, toDocument(raw))
	}
	if err := cur.Err(); err != nil {
		return nil, mapError(err)
	}
	q.Sort(docs)
	return docs, nil
}

// Batch applies writes in a single transaction.
func (s *Store) Batch(ctx context.Context, writes []store.Write) error {
	if len(writes) == 0 {
		return nil
	}

	byCollection := map[string][]mongo.WriteModel{}
	var order []string
	for _, w := range writes {
		if _, ok := byCollection[w.Collection]; !ok {
			order = append(order, w.Collection)
		}
		byCollection[w.Collection] = append(byCollection[w.Collection], writeModel(w))
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return mapError(err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		for _, c := range order {
			if _, err := s.db.Collection(c).BulkWrite(sc, byCollection[c], options.BulkWrite().SetOrdered(true)); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return mapError(err)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func writeModel(w store.Write) mongo.WriteModel {
	switch w.Kind {
	case store.WriteUpdate:
		return mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": w.ID}).
			SetUpdate(bson.M{"$set": bson.M(w.Fields)})
	case store.WriteDelete:
		return mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": w.ID})
	default:
		if w.Merge {
			return mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": w.ID}).
				SetUpdate(bson.M{"$set": bson.M(w.Fields)}).
				SetUpsert(true)
		}
		return mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": w.ID}).
			SetReplacement(bson.M(w.Fields)).
			SetUpsert(true)
	}
}

func filterOf(q store.Query) bson.D {
	f := bson.D{}
	for _, flt := range q.Filters {
		switch flt.Op {
		case store.OpIn:
			f = append(f, bson.E{Key: flt.Field, Value: bson.M{"$in": flt.Value}})
		default:
			// Equality on an array field matches any element, which is
			// array-contains.
			f = append(f, bson.E{Key: flt.Field, Value: flt.Value})
		}
	}
	return f
}

func sortOf(q store.Query) bson.D {
	d := bson.D{}
	for _, o := range q.Orders {
		dir := 1
		if o.Desc {
			dir = -1
		}
		d = append(d, bson.E{Key: o.Field, Value: dir})
	}
	return d
}

func toDocument(raw bson.M) store.Document {
	id := fmt.Sprint(normalize(raw["_id"]))
	delete(raw, "_id")
	fields, _ := normalize(raw).(map[string]any)
	return store.Document{ID: id, Fields: fields}
}

// normalize converts driver types to the plain values store.Document uses.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	case int32:
		return int64(t)
	default:
		return v
	}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorCode(codeRequestRateTooLarge) || se.HasErrorCode(codeIngressRateLimited)) {
		return fmt.Errorf("%w: %v", kerrors.ErrQuotaExhausted, err)
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return fmt.Errorf("%w: %v", kerrors.ErrNetworkUnavailable, err)
	}
	return err
}
