package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pdfdesk/models"
)

// ErrNotFound is returned by lookups that matched no document.
var ErrNotFound = errors.New("not found")

type PlanRepository interface {
	ListActive(ctx context.Context) ([]models.Plan, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Plan, error)
	GetBySlug(ctx context.Context, slug string) (*models.Plan, error)
}

type planRepository struct {
	collection *mongo.Collection
}

func NewPlanRepository(collection *mongo.Collection) PlanRepository {
	return &planRepository{collection: collection}
}

func (r *planRepository) ListActive(ctx context.Context) ([]models.Plan, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sort_order", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"is_active": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}
	defer cursor.Close(ctx)

	var plans []models.Plan
	if err := cursor.All(ctx, &plans); err != nil {
		return nil, fmt.Errorf("decoding plans: %w", err)
	}
	return plans, nil
}

func (r *planRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Plan, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *planRepository) GetBySlug(ctx context.Context, slug string) (*models.Plan, error) {
	return r.findOne(ctx, bson.M{"slug": slug})
}

func (r *planRepository) findOne(ctx context.Context, filter bson.M) (*models.Plan, error) {
	var plan models.Plan
	err := r.collection.FindOne(ctx, filter).Decode(&plan)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding plan: %w", err)
	}
	return &plan, nil
}
