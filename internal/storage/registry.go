package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Connect opens a client and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// Registry maps collection names to schemas and store handles. It is built
// once at startup; unknown names fail there rather than per call.
type Registry struct {
	db          *mongo.Database
	schemas     []Schema
	collections map[string]Collection
	logger      *logrus.Logger
}

func NewRegistry(db *mongo.Database, schemas []Schema, logger *logrus.Logger) (*Registry, error) {
	r := &Registry{
		db:          db,
		schemas:     schemas,
		collections: make(map[string]Collection, len(schemas)),
		logger:      logger,
	}
	// nested documents decode as maps so Documents serialize as objects
	opts := options.Collection().SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	for _, s := range schemas {
		if _, dup := r.collections[s.Name]; dup {
			return nil, fmt.Errorf("storage: collection %q registered twice", s.Name)
		}
		r.collections[s.Name] = NewCollection(db.Collection(s.Name, opts), s, logger)
	}
	return r, nil
}

func (r *Registry) Collection(name string) (Collection, error) {
	c, ok := r.collections[name]
	if !ok {
		return nil, fmt.Errorf("storage: unknown collection %q", name)
	}
	return c, nil
}

// EnsureIndexes creates the unique indexes declared by the schemas.
func (r *Registry) EnsureIndexes(ctx context.Context) error {
	for _, s := range r.schemas {
		for _, fields := range s.Unique {
			keys := bson.D{}
			for _, f := range fields {
				keys = append(keys, bson.E{Key: f, Value: 1})
			}
			model := mongo.IndexModel{
				Keys:    keys,
				Options: options.Index().SetUnique(true).SetName("uniq_" + strings.Join(fields, "_")),
			}
			name, err := r.db.Collection(s.Name).Indexes().CreateOne(ctx, model)
			if err != nil {
				return fmt.Errorf("create index on %s: %w", s.Name, err)
			}
			r.logger.WithFields(logrus.Fields{"collection": s.Name, "index": name}).Info("index ensured")
		}
	}
	return nil
}

// Close disconnects the underlying client.
func (r *Registry) Close(ctx context.Context) error {
	return r.db.Client().Disconnect(ctx)
}
