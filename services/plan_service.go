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

type PlanService struct {
	plans  repository.PlanRepository
	logger *logrus.Logger
}

func NewPlanService(plans repository.PlanRepository, logger *logrus.Logger) *PlanService {
	return &PlanService{plans: plans, logger: logger}
}

// List returns the active plans in display order.
func (ps *PlanService) List(ctx context.Context) ([]models.Plan, error) {
	plans, err := ps.plans.ListActive(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return plans, nil
}

func (ps *PlanService) GetBySlug(ctx context.Context, slug string) (*models.Plan, error) {
	plan, err := ps.plans.GetBySlug(ctx, slug)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrPlanNotFound
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return plan, nil
}

func (ps *PlanService) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Plan, error) {
	plan, err := ps.plans.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrPlanNotFound
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return plan, nil
}

// Effective resolves the plan whose limits apply to user right now. Users
// without an active paid subscription, or whose plan is gone or retired,
// get the free plan.
func (ps *PlanService) Effective(ctx context.Context, user *models.User, now time.Time) (*models.Plan, error) {
	sub := user.Subscription
	if sub.IsActive(now) && (sub.PlanID != nil || sub.PlanSlug != "") {
		plan, err := ps.subscribedPlan(ctx, sub)
		if err == nil && plan.IsActive {
			return plan, nil
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.DatabaseError(err)
		}
		ps.logger.WithFields(logrus.Fields{
			"user_id":   user.ID.Hex(),
			"plan_slug": sub.PlanSlug,
		}).Warn("Subscribed plan unavailable, applying free plan")
	}

	plan, err := ps.plans.GetBySlug(ctx, models.FreePlanSlug)
	if errors.Is(err, repository.ErrNotFound) {
		ps.logger.Warn("Free plan missing from catalog, applying built-in limits")
		free := models.DefaultFreePlan()
		return &free, nil
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return plan, nil
}

func (ps *PlanService) subscribedPlan(ctx context.Context, sub models.Subscription) (*models.Plan, error) {
	if sub.PlanID != nil {
		return ps.plans.GetByID(ctx, *sub.PlanID)
	}
	return ps.plans.GetBySlug(ctx, sub.PlanSlug)
}

// UpgradeAvailable reports whether some higher active plan would admit one
// more unit of category at the given usage.
func (ps *PlanService) UpgradeAvailable(ctx context.Context, current *models.Plan, category models.Category, used int64) (bool, error) {
	plans, err := ps.plans.ListActive(ctx)
	if err != nil {
		return false, err
	}
	for i := range plans {
		p := &plans[i]
		if p.Slug == current.Slug || p.SortOrder <= current.SortOrder {
			continue
		}
		if p.Limit(category).Allows(used) {
			return true, nil
		}
	}
	return false, nil
}

// UpgradeForFeature reports whether some higher active plan includes feature.
func (ps *PlanService) UpgradeForFeature(ctx context.Context, current *models.Plan, feature models.Feature) (bool, error) {
	plans, err := ps.plans.ListActive(ctx)
	if err != nil {
		return false, err
	}
	for i := range plans {
		if plans[i].SortOrder > current.SortOrder && plans[i].HasFeature(feature) {
			return true, nil
		}
	}
	return false, nil
}
