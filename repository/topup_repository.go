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

type TopupRepository interface {
	ListActive(ctx context.Context) ([]models.TopupPackage, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.TopupPackage, error)
	IncrementPurchaseCount(ctx context.Context, id primitive.ObjectID) error
}

type topupRepository struct {
	collection *mongo.Collection
}

func NewTopupRepository(collection *mongo.Collection) TopupRepository {
	return &topupRepository{collection: collection}
}

func (r *topupRepository) ListActive(ctx context.Context) ([]models.TopupPackage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sort_order", Value: 1}, {Key: "price", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"is_active": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing top-up packages: %w", err)
	}
	defer cursor.Close(ctx)

	var packages []models.TopupPackage
	if err := cursor.All(ctx, &packages); err != nil {
		return nil, fmt.Errorf("decoding top-up packages: %w", err)
	}
	return packages, nil
}

func (r *topupRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.TopupPackage, error) {
	var pkg models.TopupPackage
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&pkg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding top-up package: %w", err)
	}
	return &pkg, nil
}

func (r *topupRepository) IncrementPurchaseCount(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"purchase_count": int64(1)},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("counting top-up purchase: %w", err)
	}
	return nil
}
