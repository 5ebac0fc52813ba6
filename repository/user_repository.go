package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pdfdesk/models"
)

// ErrDuplicate is returned when a unique index rejects an insert.
var ErrDuplicate = errors.New("duplicate")

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateSubscription(ctx context.Context, id primitive.ObjectID, sub models.Subscription) error
	TouchLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error
	SetAutoRenewal(ctx context.Context, id primitive.ObjectID, enabled bool) error
	// ListLapsed returns users whose active subscription expired by now.
	ListLapsed(ctx context.Context, now time.Time, limit int64) ([]models.User, error)
	// ExpireSubscription flips one lapsed subscription to expired. The bool
	// is false when the subscription was renewed or already expired.
	ExpireSubscription(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error)
}

type userRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(collection *mongo.Collection) UserRepository {
	return &userRepository{collection: collection}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	_, err := r.collection.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (r *userRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) UpdateSubscription(ctx context.Context, id primitive.ObjectID, sub models.Subscription) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"subscription": sub, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("updating subscription: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) TouchLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"last_login_at": at}},
	)
	return err
}

func (r *userRepository) SetAutoRenewal(ctx context.Context, id primitive.ObjectID, enabled bool) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"subscription.auto_renewal": enabled, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("updating auto renewal: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func lapsedFilter(now time.Time) bson.M {
	return bson.M{
		"subscription.status":     models.SubscriptionActive,
		"subscription.expires_at": bson.M{"$lte": now},
	}
}

func (r *userRepository) ListLapsed(ctx context.Context, now time.Time, limit int64) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "subscription.expires_at", Value: 1}}).SetLimit(limit)
	cursor, err := r.collection.Find(ctx, lapsedFilter(now), opts)
	if err != nil {
		return nil, fmt.Errorf("listing lapsed subscriptions: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decoding lapsed subscriptions: %w", err)
	}
	return users, nil
}

func (r *userRepository) ExpireSubscription(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	filter := lapsedFilter(now)
	filter["_id"] = id
	res, err := r.collection.UpdateOne(ctx, filter,
		bson.M{"$set": bson.M{
			"subscription.status": models.SubscriptionExpired,
			"updated_at":          now,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("expiring subscription: %w", err)
	}
	return res.ModifiedCount > 0, nil
}
