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

// CreditRepository persists top-up credit pools. total_available is moved in
// the same update as the per-category balance it summarizes.
type CreditRepository interface {
	Ensure(ctx context.Context, userID primitive.ObjectID) (*models.CreditAccount, error)
	// Debit takes one credit for category if at least one is available.
	Debit(ctx context.Context, userID primitive.ObjectID, category models.Category) (bool, error)
	// Grant adds a purchase once per transaction id. The bool is false when
	// the transaction was already granted.
	Grant(ctx context.Context, userID primitive.ObjectID, purchase models.CreditPurchase) (bool, error)
	SetPriority(ctx context.Context, userID primitive.ObjectID, priority models.CreditPriority) error
}

type creditRepository struct {
	collection *mongo.Collection
}

func NewCreditRepository(collection *mongo.Collection) CreditRepository {
	return &creditRepository{collection: collection}
}

func (r *creditRepository) Ensure(ctx context.Context, userID primitive.ObjectID) (*models.CreditAccount, error) {
	now := time.Now().UTC()
	filter := bson.M{"user_id": userID}
	update := bson.M{"$setOnInsert": bson.M{
		"user_id":          userID,
		"available":        models.ZeroCounters(),
		"consumed":         models.ZeroCounters(),
		"total_available":  int64(0),
		"priority":         models.PrioritySubscriptionFirst,
		"purchase_history": bson.A{},
		"created_at":       now,
		"updated_at":       now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var account models.CreditAccount
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&account)
	if mongo.IsDuplicateKeyError(err) {
		err = r.collection.FindOne(ctx, filter).Decode(&account)
	}
	if err != nil {
		return nil, fmt.Errorf("ensuring credit account for %s: %w", userID.Hex(), err)
	}
	return &account, nil
}

func (r *creditRepository) Debit(ctx context.Context, userID primitive.ObjectID, category models.Category) (bool, error) {
	available := "available." + string(category)
	filter := bson.M{
		"user_id": userID,
		available: bson.M{"$gte": int64(1)},
	}
	update := bson.M{
		"$inc": bson.M{
			available:                      int64(-1),
			"consumed." + string(category): int64(1),
			"total_available":              int64(-1),
		},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("debiting %s credit: %w", category, err)
	}
	return res.ModifiedCount > 0, nil
}

func (r *creditRepository) Grant(ctx context.Context, userID primitive.ObjectID, purchase models.CreditPurchase) (bool, error) {
	inc := bson.M{}
	var total int64
	for category, n := range purchase.Credits {
		if !category.Valid() || n <= 0 {
			continue
		}
		inc["available."+string(category)] = n
		total += n
	}
	if total == 0 {
		return false, errors.New("purchase grants no credits")
	}
	inc["total_available"] = total
	purchase.Total = total

	filter := bson.M{
		"user_id":                         userID,
		"purchase_history.transaction_id": bson.M{"$ne": purchase.TransactionID},
	}
	update := bson.M{
		"$inc":  inc,
		"$push": bson.M{"purchase_history": purchase},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("granting credits for %s: %w", purchase.TransactionID, err)
	}
	return res.ModifiedCount > 0, nil
}

func (r *creditRepository) SetPriority(ctx context.Context, userID primitive.ObjectID, priority models.CreditPriority) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"priority": priority, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("setting credit priority: %w", err)
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
