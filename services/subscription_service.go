package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pdfdesk/apperrors"
	"pdfdesk/models"
	"pdfdesk/repository"
)

type SubscriptionService struct {
	users  repository.UserRepository
	quota  *QuotaService
	logger *logrus.Logger
	now    func() time.Time
}

func NewSubscriptionService(users repository.UserRepository, quota *QuotaService, logger *logrus.Logger) *SubscriptionService {
	return &SubscriptionService{
		users:  users,
		quota:  quota,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Activate puts user on plan for one billing period and starts a fresh
// usage window. Top-up credits are not affected.
func (ss *SubscriptionService) Activate(ctx context.Context, userID primitive.ObjectID, plan *models.Plan, cycle models.BillingCycle) (*models.Subscription, error) {
	return ss.activate(ctx, userID, plan, cycle, nil, false)
}

// ActivateForPayment activates plan for a paid checkout. A payment that
// already activated the user's current subscription is not applied again,
// so a retried fulfilment is safe.
func (ss *SubscriptionService) ActivateForPayment(ctx context.Context, userID, paymentID primitive.ObjectID, plan *models.Plan, cycle models.BillingCycle) (*models.Subscription, error) {
	user, err := ss.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	sub := user.Subscription
	if sub.PaymentID != nil && *sub.PaymentID == paymentID {
		return &sub, nil
	}
	return ss.activate(ctx, userID, plan, cycle, &paymentID, sub.AutoRenewal)
}

func (ss *SubscriptionService) activate(ctx context.Context, userID primitive.ObjectID, plan *models.Plan, cycle models.BillingCycle, paymentID *primitive.ObjectID, autoRenewal bool) (*models.Subscription, error) {
	if !cycle.Valid() {
		cycle = models.BillingMonthly
	}
	now := ss.now()
	expires := cycle.Advance(now)
	planID := plan.ID

	sub := models.Subscription{
		PlanID:       &planID,
		PlanSlug:     plan.Slug,
		BillingCycle: cycle,
		Status:       models.SubscriptionActive,
		ExpiresAt:    &expires,
		AutoRenewal:  autoRenewal,
		ActivatedAt:  &now,
		PaymentID:    paymentID,
	}
	err := ss.users.UpdateSubscription(ctx, userID, sub)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if err := ss.quota.StartCycle(ctx, userID, cycle, now); err != nil {
		return nil, err
	}

	ss.logger.WithFields(logrus.Fields{
		"user_id":       userID.Hex(),
		"plan":          plan.Slug,
		"billing_cycle": cycle,
		"expires_at":    expires,
	}).Info("Subscription activated")
	return &sub, nil
}

// AutoRenewal reports the renewal preference of user's subscription.
func (ss *SubscriptionService) AutoRenewal(ctx context.Context, userID primitive.ObjectID) (*models.AutoRenewalStatus, error) {
	user, err := ss.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	sub := user.Subscription
	return &models.AutoRenewalStatus{
		AutoRenewal: sub.AutoRenewal,
		PlanSlug:    sub.PlanSlug,
		Status:      sub.Status,
		ExpiresAt:   sub.ExpiresAt,
	}, nil
}

// ToggleAutoRenewal flips the renewal preference. Only a live paid
// subscription has one.
func (ss *SubscriptionService) ToggleAutoRenewal(ctx context.Context, userID primitive.ObjectID) (*models.AutoRenewalStatus, error) {
	status, err := ss.AutoRenewal(ctx, userID)
	if err != nil {
		return nil, err
	}
	current := models.Subscription{Status: status.Status, ExpiresAt: status.ExpiresAt}
	if !current.IsActive(ss.now()) {
		return nil, apperrors.ErrNoActiveSubscription
	}

	status.AutoRenewal = !status.AutoRenewal
	err = ss.users.SetAutoRenewal(ctx, userID, status.AutoRenewal)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	ss.logger.WithFields(logrus.Fields{
		"user_id":      userID.Hex(),
		"auto_renewal": status.AutoRenewal,
	}).Info("Auto renewal changed")
	return status, nil
}

const expireBatch = 200

// ExpireDue marks lapsed subscriptions expired and restarts each user on a
// monthly usage window under the free plan. It returns the number expired.
func (ss *SubscriptionService) ExpireDue(ctx context.Context) (int64, error) {
	now := ss.now()
	var expired int64

	for {
		lapsed, err := ss.users.ListLapsed(ctx, now, expireBatch)
		if err != nil {
			return expired, apperrors.DatabaseError(err)
		}

		progressed := false
		for i := range lapsed {
			if err := ctx.Err(); err != nil {
				return expired, err
			}
			userID := lapsed[i].ID
			ok, err := ss.users.ExpireSubscription(ctx, userID, now)
			if err != nil {
				ss.logger.WithError(err).WithField("user_id", userID.Hex()).Error("Subscription expiry failed")
				continue
			}
			if !ok {
				continue
			}
			progressed = true
			expired++

			ss.logger.WithFields(logrus.Fields{
				"user_id":      userID.Hex(),
				"plan":         lapsed[i].Subscription.PlanSlug,
				"auto_renewal": lapsed[i].Subscription.AutoRenewal,
			}).Info("Subscription lapsed")
			if err := ss.quota.StartCycle(ctx, userID, models.BillingMonthly, now); err != nil {
				// the next quota check realigns the window
				ss.logger.WithError(err).WithField("user_id", userID.Hex()).Warn("Could not restart usage window after expiry")
			}
		}
		if !progressed || len(lapsed) < expireBatch {
			break
		}
	}

	if expired > 0 {
		ss.logger.WithField("count", expired).Info("Expired lapsed subscriptions")
	}
	return expired, nil
}
