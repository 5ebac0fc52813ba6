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

// UsageRepository persists per-user cycle counters. Every mutation is a
// single-document conditional update so concurrent requests cannot overshoot.
type UsageRepository interface {
	// Ensure returns the usage document, creating it with zero counters.
	Ensure(ctx context.Context, userID primitive.ObjectID, period models.BillingCycle, now time.Time) (*models.Usage, error)
	// Increment adds one unit unless the counter already reached limit.
	// The bool is false when the limit refused the increment.
	Increment(ctx context.Context, userID primitive.ObjectID, category models.Category, limit models.Limit) (*models.Usage, bool, error)
	// ResetWindow zeroes the counters and moves to a period window only if
	// the stored cycle still ends at expectedEnd, so concurrent resets apply once.
	ResetWindow(ctx context.Context, userID primitive.ObjectID, expectedEnd time.Time, period models.BillingCycle, start, end time.Time) (bool, error)
	// StartCycle unconditionally begins a fresh window, used on plan activation.
	StartCycle(ctx context.Context, userID primitive.ObjectID, period models.BillingCycle, start, end time.Time) error
	ListDue(ctx context.Context, now time.Time, limit int64) ([]models.Usage, error)
	// AdjustStorage adds delta bytes, refusing growth past limit and
	// releases below zero.
	AdjustStorage(ctx context.Context, userID primitive.ObjectID, delta int64, limit models.Limit) (*models.Usage, bool, error)
}

type usageRepository struct {
	collection *mongo.Collection
}

func NewUsageRepository(collection *mongo.Collection) UsageRepository {
	return &usageRepository{collection: collection}
}

func (r *usageRepository) Ensure(ctx context.Context, userID primitive.ObjectID, period models.BillingCycle, now time.Time) (*models.Usage, error) {
	start, end := models.CycleWindow(now, period)
	filter := bson.M{"user_id": userID}
	update := bson.M{"$setOnInsert": bson.M{
		"user_id":       userID,
		"counters":      models.ZeroCounters(),
		"storage_bytes": int64(0),
		"period":        period,
		"cycle_start":   start,
		"cycle_end":     end,
		"reset_count":   int64(0),
		"created_at":    start,
		"updated_at":    start,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var usage models.Usage
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&usage)
	if mongo.IsDuplicateKeyError(err) {
		// lost the upsert race; the winner's document is there now
		err = r.collection.FindOne(ctx, filter).Decode(&usage)
	}
	if err != nil {
		return nil, fmt.Errorf("ensuring usage for %s: %w", userID.Hex(), err)
	}
	return &usage, nil
}

func (r *usageRepository) Increment(ctx context.Context, userID primitive.ObjectID, category models.Category, limit models.Limit) (*models.Usage, bool, error) {
	if !limit.Unlimited && limit.Max <= 0 {
		return nil, false, nil
	}

	field := "counters." + string(category)
	filter := bson.M{"user_id": userID}
	if !limit.Unlimited {
		filter["$or"] = bson.A{
			bson.M{field: bson.M{"$lt": limit.Max}},
			bson.M{field: bson.M{"$exists": false}},
		}
	}
	update := bson.M{
		"$inc": bson.M{field: int64(1)},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var usage models.Usage
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&usage)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("incrementing %s usage: %w", category, err)
	}
	return &usage, true, nil
}

func (r *usageRepository) ResetWindow(ctx context.Context, userID primitive.ObjectID, expectedEnd time.Time, period models.BillingCycle, start, end time.Time) (bool, error) {
	filter := bson.M{"user_id": userID, "cycle_end": expectedEnd}
	update := bson.M{
		"$set": bson.M{
			"counters":    models.ZeroCounters(),
			"period":      period,
			"cycle_start": start,
			"cycle_end":   end,
			"updated_at":  time.Now().UTC(),
		},
		"$inc": bson.M{"reset_count": int64(1)},
	}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("resetting usage for %s: %w", userID.Hex(), err)
	}
	return res.MatchedCount > 0, nil
}

func (r *usageRepository) StartCycle(ctx context.Context, userID primitive.ObjectID, period models.BillingCycle, start, end time.Time) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"counters":    models.ZeroCounters(),
			"period":      period,
			"cycle_start": start,
			"cycle_end":   end,
			"updated_at":  now,
		},
		"$setOnInsert": bson.M{
			"storage_bytes": int64(0),
			"reset_count":   int64(0),
			"created_at":    now,
		},
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"user_id": userID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("starting cycle for %s: %w", userID.Hex(), err)
	}
	return nil
}

func (r *usageRepository) ListDue(ctx context.Context, now time.Time, limit int64) ([]models.Usage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "cycle_end", Value: 1}}).SetLimit(limit)
	cursor, err := r.collection.Find(ctx, bson.M{"cycle_end": bson.M{"$lte": now}}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing due usage: %w", err)
	}
	defer cursor.Close(ctx)

	var due []models.Usage
	if err := cursor.All(ctx, &due); err != nil {
		return nil, fmt.Errorf("decoding due usage: %w", err)
	}
	return due, nil
}

func (r *usageRepository) AdjustStorage(ctx context.Context, userID primitive.ObjectID, delta int64, limit models.Limit) (*models.Usage, bool, error) {
	filter := bson.M{"user_id": userID}
	switch {
	case delta < 0:
		filter["storage_bytes"] = bson.M{"$gte": -delta}
	case !limit.Unlimited:
		ceiling := limit.Max - delta
		if ceiling < 0 {
			return nil, false, nil
		}
		filter["storage_bytes"] = bson.M{"$lte": ceiling}
	}
	update := bson.M{
		"$inc": bson.M{"storage_bytes": delta},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var usage models.Usage
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&usage)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("adjusting storage for %s: %w", userID.Hex(), err)
	}
	return &usage, true, nil
}
