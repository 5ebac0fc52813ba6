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

// OperationRepository stores append-only tool operation records.
type OperationRepository interface {
	Create(ctx context.Context, op *models.Operation) error
	// Finish moves a processing record to a terminal status. It reports
	// false if the record had already left processing.
	Finish(ctx context.Context, id primitive.ObjectID, status models.OperationStatus, set bson.M) (bool, error)
	GetForUser(ctx context.Context, userID, id primitive.ObjectID) (*models.Operation, error)
	ListForUser(ctx context.Context, userID primitive.ObjectID, tool models.Tool, page, limit int64) ([]models.Operation, int64, error)
	// ListStaleArtifacts returns completed operations still holding an
	// artifact that finished before the cutoff of their category.
	ListStaleArtifacts(ctx context.Context, cutoffs map[models.Category]time.Time, limit int64) ([]models.Operation, error)
	// ClearArtifact drops the artifact reference if it is still key. The
	// bool is false when it was already cleared.
	ClearArtifact(ctx context.Context, id primitive.ObjectID, key string, at time.Time) (bool, error)
}

type operationRepository struct {
	collection *mongo.Collection
}

func NewOperationRepository(collection *mongo.Collection) OperationRepository {
	return &operationRepository{collection: collection}
}

func (r *operationRepository) Create(ctx context.Context, op *models.Operation) error {
	if op.ID.IsZero() {
		op.ID = primitive.NewObjectID()
	}
	if _, err := r.collection.InsertOne(ctx, op); err != nil {
		return fmt.Errorf("recording operation: %w", err)
	}
	return nil
}

func (r *operationRepository) Finish(ctx context.Context, id primitive.ObjectID, status models.OperationStatus, set bson.M) (bool, error) {
	fields := bson.M{"status": status}
	for k, v := range set {
		fields[k] = v
	}

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.OperationProcessing},
		bson.M{"$set": fields},
	)
	if err != nil {
		return false, fmt.Errorf("finishing operation %s: %w", id.Hex(), err)
	}
	return res.ModifiedCount > 0, nil
}

func (r *operationRepository) GetForUser(ctx context.Context, userID, id primitive.ObjectID) (*models.Operation, error) {
	var op models.Operation
	err := r.collection.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&op)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding operation: %w", err)
	}
	return &op, nil
}

func (r *operationRepository) ListForUser(ctx context.Context, userID primitive.ObjectID, tool models.Tool, page, limit int64) ([]models.Operation, int64, error) {
	filter := bson.M{"user_id": userID}
	if tool != "" {
		filter["tool"] = tool
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("counting operations: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("listing operations: %w", err)
	}
	defer cursor.Close(ctx)

	var ops []models.Operation
	if err := cursor.All(ctx, &ops); err != nil {
		return nil, 0, fmt.Errorf("decoding operations: %w", err)
	}
	return ops, total, nil
}

func (r *operationRepository) ListStaleArtifacts(ctx context.Context, cutoffs map[models.Category]time.Time, limit int64) ([]models.Operation, error) {
	if len(cutoffs) == 0 {
		return nil, nil
	}
	byCategory := make(bson.A, 0, len(cutoffs))
	for category, before := range cutoffs {
		byCategory = append(byCategory, bson.M{"category": category, "completed_at": bson.M{"$lte": before}})
	}
	filter := bson.M{
		"status":       models.OperationDone,
		"artifact_key": bson.M{"$exists": true, "$ne": ""},
		"$or":          byCategory,
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "completed_at", Value: 1}}).
		SetLimit(limit)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("listing stale artifacts: %w", err)
	}
	defer cursor.Close(ctx)

	var ops []models.Operation
	if err := cursor.All(ctx, &ops); err != nil {
		return nil, fmt.Errorf("decoding stale artifacts: %w", err)
	}
	return ops, nil
}

func (r *operationRepository) ClearArtifact(ctx context.Context, id primitive.ObjectID, key string, at time.Time) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "artifact_key": key},
		bson.M{
			"$unset": bson.M{"artifact_key": ""},
			"$set":   bson.M{"artifact_removed_at": at},
		},
	)
	if err != nil {
		return false, fmt.Errorf("clearing artifact of %s: %w", id.Hex(), err)
	}
	return res.ModifiedCount > 0, nil
}
