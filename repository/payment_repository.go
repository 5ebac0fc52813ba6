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

type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	AttachCheckout(ctx context.Context, id primitive.ObjectID, transactionID, checkoutURL string) error
	GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	GetByPaymentRef(ctx context.Context, paymentRef string) (*models.Payment, error)
	GetForUser(ctx context.Context, userID, id primitive.ObjectID) (*models.Payment, error)
	ListForUser(ctx context.Context, userID primitive.ObjectID, page, limit int64) ([]models.Payment, int64, error)
	// Transition moves a payment from one status to another. Only one of
	// several concurrent callers observes true.
	Transition(ctx context.Context, transactionID string, from, to models.PaymentStatus, set bson.M) (bool, error)
	MarkInvoiceSent(ctx context.Context, id primitive.ObjectID) error
}

type paymentRepository struct {
	collection *mongo.Collection
}

func NewPaymentRepository(collection *mongo.Collection) PaymentRepository {
	return &paymentRepository{collection: collection}
}

func (r *paymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID.IsZero() {
		payment.ID = primitive.NewObjectID()
	}
	if _, err := r.collection.InsertOne(ctx, payment); err != nil {
		return fmt.Errorf("creating payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) AttachCheckout(ctx context.Context, id primitive.ObjectID, transactionID, checkoutURL string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"transaction_id": transactionID,
			"checkout_url":   checkoutURL,
			"updated_at":     time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("attaching checkout: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return r.findOne(ctx, bson.M{"transaction_id": transactionID})
}

func (r *paymentRepository) GetForUser(ctx context.Context, userID, id primitive.ObjectID) (*models.Payment, error) {
	return r.findOne(ctx, bson.M{"_id": id, "user_id": userID})
}

func (r *paymentRepository) findOne(ctx context.Context, filter bson.M) (*models.Payment, error) {
	var payment models.Payment
	err := r.collection.FindOne(ctx, filter).Decode(&payment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding payment: %w", err)
	}
	return &payment, nil
}

func (r *paymentRepository) ListForUser(ctx context.Context, userID primitive.ObjectID, page, limit int64) ([]models.Payment, int64, error) {
	filter := bson.M{"user_id": userID}
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("counting payments: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("listing payments: %w", err)
	}
	defer cursor.Close(ctx)

	var payments []models.Payment
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, 0, fmt.Errorf("decoding payments: %w", err)
	}
	return payments, total, nil
}

func (r *paymentRepository) Transition(ctx context.Context, transactionID string, from, to models.PaymentStatus, set bson.M) (bool, error) {
	fields := bson.M{"status": to, "updated_at": time.Now().UTC()}
	for k, v := range set {
		fields[k] = v
	}

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"transaction_id": transactionID, "status": from},
		bson.M{"$set": fields},
	)
	if err != nil {
		return false, fmt.Errorf("moving payment %s to %s: %w", transactionID, to, err)
	}
	return res.ModifiedCount > 0, nil
}

func (r *paymentRepository) MarkInvoiceSent(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"invoice_sent": true, "updated_at": time.Now().UTC()}},
	)
	return err
}

func (r *paymentRepository) GetByPaymentRef(ctx context.Context, paymentRef string) (*models.Payment, error) {
	return r.findOne(ctx, bson.M{"payment_ref": paymentRef})
}
