package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tuniwaste/exchange/internal/domain"
)

const (
	DefaultDatabase   = "exchange"
	HistoryCollection = "status_history"

	writeTimeout = 5 * time.Second
)

type statusChangeDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	EntityKind string             `bson:"entity_kind"`
	EntityID   string             `bson:"entity_id"`
	From       string             `bson:"from,omitempty"`
	To         string             `bson:"to"`
	ActorID    string             `bson:"actor_id,omitempty"`
	Note       string             `bson:"note,omitempty"`
	At         time.Time          `bson:"at"`
}

// Connect dials uri and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// HistoryRepository stores the status trail of listings, bids and
// transactions. It is a secondary record; Postgres stays authoritative.
type HistoryRepository struct {
	collection *mongo.Collection
}

func NewHistoryRepository(client *mongo.Client, database string) *HistoryRepository {
	if database == "" {
		database = DefaultDatabase
	}
	return &HistoryRepository{collection: client.Database(database).Collection(HistoryCollection)}
}

// EnsureIndexes creates the lookup index used by List.
func (r *HistoryRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "entity_kind", Value: 1}, {Key: "entity_id", Value: 1}, {Key: "at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create history index: %w", err)
	}
	return nil
}

func (r *HistoryRepository) Record(ctx context.Context, change domain.StatusChange) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	doc := statusChangeDoc{
		EntityKind: string(change.EntityKind),
		EntityID:   change.EntityID,
		From:       change.From,
		To:         change.To,
		ActorID:    change.ActorID,
		Note:       change.Note,
		At:         change.At.UTC(),
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return wrap("insert status change", err)
	}
	return nil
}

// List returns the trail of one entity, oldest first.
func (r *HistoryRepository) List(ctx context.Context, kind domain.RefKind, entityID string) ([]domain.StatusChange, error) {
	filter := bson.D{{Key: "entity_kind", Value: string(kind)}, {Key: "entity_id", Value: entityID}}
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrap("find status changes", err)
	}
	defer cur.Close(ctx)

	var docs []statusChangeDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrap("decode status changes", err)
	}

	out := make([]domain.StatusChange, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.StatusChange{
			EntityKind: domain.RefKind(d.EntityKind),
			EntityID:   d.EntityID,
			From:       d.From,
			To:         d.To,
			ActorID:    d.ActorID,
			Note:       d.Note,
			At:         d.At.UTC(),
		})
	}
	return out, nil
}

// wrap marks connection and timeout failures as unavailable.
func wrap(op string, err error) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
