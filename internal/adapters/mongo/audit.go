package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/order-settlement-and-commission/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditTrail stores one document per applied status transition. Records
// are insert-only; history is never rewritten.
type AuditTrail struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditTrail(db *mongo.Database, logger observability.Logger) *AuditTrail {
	return &AuditTrail{
		coll:   db.Collection("status_transitions"),
		logger: logger,
	}
}

type TransitionDoc struct {
	ID         uuid.UUID `bson:"_id"`
	Entity     string    `bson:"entity"`
	EntityID   uuid.UUID `bson:"entity_id"`
	FromStatus string    `bson:"from_status"`
	ToStatus   string    `bson:"to_status"`
	Actor      string    `bson:"actor,omitempty"`
	Timestamp  time.Time `bson:"timestamp"`
	Data       bson.M    `bson:"data,omitempty"`
}

func (a *AuditTrail) AppendTransition(ctx context.Context, entity string, id uuid.UUID, from, to, actor string, data map[string]interface{}) error {
	doc := TransitionDoc{
		ID:         uuid.New(),
		Entity:     entity,
		EntityID:   id,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Timestamp:  time.Now(),
		Data:       bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, doc)
	if err != nil {
		a.logger.Error("failed to insert transition audit", err)
		return err
	}
	return nil
}

// History returns the transition documents for one entity, oldest first.
func (a *AuditTrail) History(ctx context.Context, entity string, id uuid.UUID) ([]TransitionDoc, error) {
	cur, err := a.coll.Find(ctx, bson.M{"entity": entity, "entity_id": id},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []TransitionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}
