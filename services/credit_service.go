package services

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pdfdesk/apperrors"
	"pdfdesk/models"
	"pdfdesk/repository"
)

// ResolveSources returns the pools to try, in order, for a category with the
// given subscription limit. Unlimited categories never draw top-up credits.
func ResolveSources(priority models.CreditPriority, limit models.Limit) ([]models.CreditSource, error) {
	if limit.Unlimited {
		return []models.CreditSource{models.SourceSubscription}, nil
	}
	switch priority {
	case models.PrioritySubscriptionFirst, "":
		return []models.CreditSource{models.SourceSubscription, models.SourceTopup}, nil
	case models.PriorityTopupFirst:
		return []models.CreditSource{models.SourceTopup, models.SourceSubscription}, nil
	case models.PriorityMixed:
		return nil, apperrors.ErrMixedPriorityUnsupported
	}
	return nil, apperrors.ErrInvalidPriority
}

type CreditService struct {
	credits repository.CreditRepository
	logger  *logrus.Logger
}

func NewCreditService(credits repository.CreditRepository, logger *logrus.Logger) *CreditService {
	return &CreditService{credits: credits, logger: logger}
}

// Account returns the user's credit account, creating an empty one.
func (cs *CreditService) Account(ctx context.Context, userID primitive.ObjectID) (*models.CreditAccount, error) {
	account, err := cs.credits.Ensure(ctx, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return account, nil
}

// SetPriority changes which pool is drawn first.
func (cs *CreditService) SetPriority(ctx context.Context, userID primitive.ObjectID, priority models.CreditPriority) (*models.CreditAccount, error) {
	switch priority {
	case models.PrioritySubscriptionFirst, models.PriorityTopupFirst:
	case models.PriorityMixed:
		return nil, apperrors.ErrMixedPriorityUnsupported
	default:
		return nil, apperrors.ErrInvalidPriority
	}

	account, err := cs.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := cs.credits.SetPriority(ctx, userID, priority); err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	account.Priority = priority
	return account, nil
}

// Grant credits a purchase once per transaction id. It reports false when
// the transaction had already been granted.
func (cs *CreditService) Grant(ctx context.Context, userID primitive.ObjectID, purchase models.CreditPurchase) (bool, error) {
	if _, err := cs.Account(ctx, userID); err != nil {
		return false, err
	}
	granted, err := cs.credits.Grant(ctx, userID, purchase)
	if err != nil {
		return false, apperrors.DatabaseError(err)
	}
	if granted {
		cs.logger.WithFields(logrus.Fields{
			"user_id":        userID.Hex(),
			"transaction_id": purchase.TransactionID,
			"credits":        models.SumCredits(purchase.Credits),
		}).Info("Top-up credits granted")
	}
	return granted, nil
}

// History returns purchases newest first.
func (cs *CreditService) History(ctx context.Context, userID primitive.ObjectID) ([]models.CreditPurchase, error) {
	account, err := cs.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	history := append([]models.CreditPurchase(nil), account.PurchaseHistory...)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].PurchasedAt.After(history[j].PurchasedAt)
	})
	return history, nil
}
