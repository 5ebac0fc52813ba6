package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pdfdesk/models"
)

type EditSessionRepository interface {
	Create(ctx context.Context, session *models.EditSession) error
	GetForUser(ctx context.Context, userID primitive.ObjectID, sessionID string) (*models.EditSession, error)
	// Transition applies set and moves status from -> to atomically.
	Transition(ctx context.Context, id primitive.ObjectID, from, to models.EditStatus, set bson.M) (bool, error)
	// ListStale returns sessions created before cutoff that still hold a
	// source document and are not mid-export.
	ListStale(ctx context.Context, before time.Time, limit int64) ([]models.EditSession, error)
	// Expire moves a session that is not mid-export to expired and drops
	// its source reference. The bool is false if it no longer qualifies.
	Expire(ctx context.Context, id primitive.ObjectID, sourceKey string) (bool, error)
}

type editSessionRepository struct {
	collection *mongo.Collection
}

func NewEditSessionRepository(collection *mongo.Collection) EditSessionRepository {
	return &editSessionRepository{collection: collection}
}

func (r *editSessionRepository) Create(ctx context.Context, session *models.EditSession) error {
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	if _, err := r.collection.InsertOne(ctx, session); err != nil {
		return fmt.Errorf("creating edit session: %w", err)
	}
	return nil
}

func (r *editSessionRepository) GetForUser(ctx context.Context, userID primitive.ObjectID, sessionID string) (*models.EditSession, error) {
	var session models.EditSession
	err := r.collection.FindOne(ctx, bson.M{"session_id": sessionID, "user_id": userID}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding edit session: %w", err)
	}
	return &session, nil
}

func (r *editSessionRepository) Transition(ctx context.Context, id primitive.ObjectID, from, to models.EditStatus, set bson.M) (bool, error) {
	fields := bson.M{"status": to, "updated_at": time.Now().UTC()}
	for k, v := range set {
		fields[k] = v
	}

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": fields},
	)
	if err != nil {
		return false, fmt.Errorf("moving edit session to %s: %w", to, err)
	}
	return res.MatchedCount > 0, nil
}

func (r *editSessionRepository) ListStale(ctx context.Context, before time.Time, limit int64) ([]models.EditSession, error) {
	filter := bson.M{
		"source_key": bson.M{"$exists": true, "$ne": ""},
		"status":     bson.M{"$ne": models.EditProcessing},
		"created_at": bson.M{"$lte": before},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(limit)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("listing stale edit sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []models.EditSession
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("decoding stale edit sessions: %w", err)
	}
	return sessions, nil
}

func (r *editSessionRepository) Expire(ctx context.Context, id primitive.ObjectID, sourceKey string) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "source_key": sourceKey, "status": bson.M{"$ne": models.EditProcessing}},
		bson.M{
			"$set":   bson.M{"status": models.EditExpired, "updated_at": time.Now().UTC()},
			"$unset": bson.M{"source_key": ""},
		},
	)
	if err != nil {
		return false, fmt.Errorf("expiring edit session %s: %w", id.Hex(), err)
	}
	return res.ModifiedCount > 0, nil
}
