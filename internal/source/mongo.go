package source

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/roach88/mongo2elastic/internal/document"
)

// DefaultMongoURI is used when no URI is configured.
const DefaultMongoURI = "mongodb://localhost:27017"

// Mongo is a Source backed by a MongoDB deployment.
type Mongo struct {
	client *mongo.Client
}

// ConnectMongo connects to uri and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*Mongo, error) {
	if uri == "" {
		uri = DefaultMongoURI
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &Mongo{client: client}, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// HasDatabase reports whether db exists.
func (m *Mongo) HasDatabase(ctx context.Context, db string) (bool, error) {
	names, err := m.client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return false, fmt.Errorf("list databases: %w", err)
	}
	return slices.Contains(names, db), nil
}

// HasCollection reports whether db.coll exists.
func (m *Mongo) HasCollection(ctx context.Context, db, coll string) (bool, error) {
	names, err := m.ListCollections(ctx, db)
	if err != nil {
		return false, err
	}
	return slices.Contains(names, coll), nil
}

// ListCollections returns the collection names of db in sorted order.
func (m *Mongo) ListCollections(ctx context.Context, db string) ([]string, error) {
	names, err := m.client.Database(db).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections of %s: %w", db, err)
	}
	sort.Strings(names)
	return names, nil
}

// SampleID returns the identifier of the first document in natural order.
func (m *Mongo) SampleID(ctx context.Context, db, coll string) (any, error) {
	var raw bson.D
	opts := options.FindOne().SetProjection(bson.D{{Key: IDField, Value: 1}})
	err := m.client.Database(db).Collection(coll).FindOne(ctx, bson.D{}, opts).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sample %s.%s: %w", db, coll, err)
	}
	for _, e := range raw {
		if e.Key == IDField {
			return convertValue(e.Value), nil
		}
	}
	return nil, nil
}

// SampleField returns the value of field in the first document, in natural
// order, that has it. Dotted fields address nested documents.
func (m *Mongo) SampleField(ctx context.Context, db, coll, field string) (any, error) {
	var raw bson.D
	filter := bson.D{{Key: field, Value: bson.D{{Key: "$exists", Value: true}}}}
	opts := options.FindOne().SetProjection(bson.D{{Key: field, Value: 1}})
	err := m.client.Database(db).Collection(coll).FindOne(ctx, filter, opts).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sample %s of %s.%s: %w", field, db, coll, err)
	}
	return lookup(FromBSON(raw), field), nil
}

func lookup(doc *document.Document, path string) any {
	head, rest, nested := strings.Cut(path, ".")
	v, ok := doc.Get(head)
	if !ok {
		return nil
	}
	if !nested {
		return v
	}
	sub, ok := v.(*document.Document)
	if !ok {
		return nil
	}
	return lookup(sub, rest)
}

// Count returns the number of documents matching filter.
func (m *Mongo) Count(ctx context.Context, db, coll string, filter *Filter) (int64, error) {
	n, err := m.client.Database(db).Collection(coll).CountDocuments(ctx, filter.BSON())
	if err != nil {
		return 0, fmt.Errorf("count %s.%s: %w", db, coll, err)
	}
	return n, nil
}

// Find opens a cursor over documents matching filter, ascending by the
// filter field.
func (m *Mongo) Find(ctx context.Context, db, coll string, filter *Filter) (Cursor, error) {
	opts := options.Find().SetSort(bson.D{{Key: filter.SortField(), Value: 1}})
	cur, err := m.client.Database(db).Collection(coll).Find(ctx, filter.BSON(), opts)
	if err != nil {
		return nil, fmt.Errorf("find %s.%s (%s): %w", db, coll, filter, err)
	}
	return &mongoCursor{cur: cur}, nil
}

type mongoCursor struct {
	cur *mongo.Cursor
	rec Record
	err error
}

func (c *mongoCursor) Next(ctx context.Context) bool {
	if c.err != nil || !c.cur.Next(ctx) {
		return false
	}
	var raw bson.D
	if err := c.cur.Decode(&raw); err != nil {
		c.err = fmt.Errorf("decode document: %w", err)
		return false
	}
	c.rec = SplitID(FromBSON(raw))
	return true
}

func (c *mongoCursor) Record() Record {
	return c.rec
}

func (c *mongoCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.cur.Err()
}

func (c *mongoCursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

// FromBSON converts a decoded BSON document into a Document. Nested
// documents and arrays are converted recursively and BSON date-times
// become UTC time.Time values.
func FromBSON(d bson.D) *document.Document {
	doc := &document.Document{}
	for _, e := range d {
		doc.Set(e.Key, convertValue(e.Value))
	}
	return doc
}

func convertValue(v any) any {
	switch val := v.(type) {
	case bson.D:
		return FromBSON(val)
	case bson.M:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		doc := &document.Document{}
		for _, k := range keys {
			doc.Set(k, convertValue(val[k]))
		}
		return doc
	case bson.A:
		return convertList(val)
	case []any:
		return convertList(val)
	case bson.DateTime:
		return val.Time().UTC()
	default:
		return v
	}
}

func convertList(in []any) []any {
	out := make([]any, len(in))
	for i, e := range in {
		out[i] = convertValue(e)
	}
	return out
}
