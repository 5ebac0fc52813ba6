package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CreateIndexes creates the indexes the repositories rely on. The unique
// user_id indexes make lazy creation of usage and credit documents safe.
func CreateIndexes(ctx context.Context, c *Collections) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	groups := []struct {
		collection *mongo.Collection
		indexes    []mongo.IndexModel
	}{
		{c.Users(), []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "subscription.status", Value: 1}, {Key: "subscription.expires_at", Value: 1}}},
		}},
		{c.Plans(), []mongo.IndexModel{
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "sort_order", Value: 1}}},
		}},
		{c.Usage(), []mongo.IndexModel{
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "cycle_end", Value: 1}}},
		}},
		{c.CreditAccounts(), []mongo.IndexModel{
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{c.TopupPackages(), []mongo.IndexModel{
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "sort_order", Value: 1}}},
		}},
		{c.Payments(), []mongo.IndexModel{
			{Keys: bson.D{{Key: "transaction_id", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "payment_ref", Value: 1}}, Options: options.Index().SetSparse(true)},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		}},
		{c.Operations(), []mongo.IndexModel{
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "tool", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "completed_at", Value: 1}}},
		}},
		{c.EditSessions(), []mongo.IndexModel{
			{Keys: bson.D{{Key: "session_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		}},
	}

	for _, group := range groups {
		if _, err := group.collection.Indexes().CreateMany(ctx, group.indexes); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", group.collection.Name(), err)
		}
	}
	return nil
}
