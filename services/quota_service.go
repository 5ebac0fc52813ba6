package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pdfdesk/apperrors"
	"pdfdesk/models"
	"pdfdesk/repository"
)

// Decision is the outcome of an entitlement check.
type Decision struct {
	Allowed        bool                `json:"allowed"`
	Category       models.Category     `json:"category"`
	Source         models.CreditSource `json:"source,omitempty"`
	CurrentUsage   int64               `json:"currentUsage"`
	Limit          models.Limit        `json:"limit"`
	Remaining      int64               `json:"remaining"`
	TopupAvailable int64               `json:"topupAvailable"`
	Plan           string              `json:"plan"`
}

// snapshot is the state one check or charge works from.
type snapshot struct {
	plan    *models.Plan
	usage   *models.Usage
	account *models.CreditAccount
}

// QuotaService meters per-category usage against plan limits and top-up
// credits. Every charge is a single conditional update so concurrent
// requests cannot overshoot a limit.
type QuotaService struct {
	usage   repository.UsageRepository
	credits repository.CreditRepository
	plans   *PlanService
	logger  *logrus.Logger
	now     func() time.Time
}

func NewQuotaService(usage repository.UsageRepository, credits repository.CreditRepository, plans *PlanService, logger *logrus.Logger) *QuotaService {
	return &QuotaService{
		usage:   usage,
		credits: credits,
		plans:   plans,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (qs *QuotaService) snapshot(ctx context.Context, user *models.User) (*snapshot, error) {
	now := qs.now()
	plan, err := qs.plans.Effective(ctx, user, now)
	if err != nil {
		return nil, err
	}

	period := user.Subscription.Period(now)
	usage, err := qs.usage.Ensure(ctx, user.ID, period, now)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if usage.Due(now) || storedPeriod(usage) != period {
		if usage, _, err = qs.ResetIfDue(ctx, usage, period, now); err != nil {
			return nil, err
		}
	}

	account, err := qs.credits.Ensure(ctx, user.ID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return &snapshot{plan: plan, usage: usage, account: account}, nil
}

// sources resolves the draw order, falling back to subscription-first for a
// priority that cannot be resolved.
func (qs *QuotaService) sources(account *models.CreditAccount, limit models.Limit) []models.CreditSource {
	sources, err := ResolveSources(account.Priority, limit)
	if err != nil {
		qs.logger.WithFields(logrus.Fields{
			"user_id":  account.UserID.Hex(),
			"priority": account.Priority,
		}).Warn("Unresolvable credit priority, using subscription-first")
		sources, _ = ResolveSources(models.PrioritySubscriptionFirst, limit)
	}
	return sources
}

// Check reports whether user may run one more operation in category. A
// refusal is returned as a *apperrors.LimitError alongside the decision.
func (qs *QuotaService) Check(ctx context.Context, user *models.User, category models.Category) (*Decision, error) {
	snap, err := qs.snapshot(ctx, user)
	if err != nil {
		return nil, err
	}

	limit := snap.plan.Limit(category)
	used := snap.usage.Used(category)
	topup := snap.account.AvailableFor(category)
	decision := &Decision{
		Category:       category,
		CurrentUsage:   used,
		Limit:          limit,
		Remaining:      limit.Remaining(used),
		TopupAvailable: topup,
		Plan:           snap.plan.Slug,
	}

	for _, source := range qs.sources(snap.account, limit) {
		switch source {
		case models.SourceSubscription:
			if limit.Allows(used) {
				decision.Allowed = true
				decision.Source = source
				return decision, nil
			}
		case models.SourceTopup:
			if topup > 0 {
				decision.Allowed = true
				decision.Source = source
				return decision, nil
			}
		}
	}

	return decision, qs.deny(ctx, snap, category)
}

// Consume charges one unit of category after a successful operation and
// reports the pool it was drawn from. Losing a race for the last unit
// returns the same refusal as Check.
func (qs *QuotaService) Consume(ctx context.Context, user *models.User, category models.Category) (models.CreditSource, *models.Usage, error) {
	snap, err := qs.snapshot(ctx, user)
	if err != nil {
		return "", nil, err
	}

	limit := snap.plan.Limit(category)
	for _, source := range qs.sources(snap.account, limit) {
		switch source {
		case models.SourceSubscription:
			usage, ok, err := qs.usage.Increment(ctx, user.ID, category, limit)
			if err != nil {
				return "", nil, apperrors.DatabaseError(err)
			}
			if ok {
				return models.SourceSubscription, usage, nil
			}
		case models.SourceTopup:
			ok, err := qs.credits.Debit(ctx, user.ID, category)
			if err != nil {
				return "", nil, apperrors.DatabaseError(err)
			}
			if ok {
				return models.SourceTopup, snap.usage, nil
			}
		}
	}

	// re-read so the refusal reports the usage that beat us
	if fresh, err := qs.usage.Ensure(ctx, user.ID, user.Subscription.Period(qs.now()), qs.now()); err == nil {
		snap.usage = fresh
	}
	if fresh, err := qs.credits.Ensure(ctx, user.ID); err == nil {
		snap.account = fresh
	}
	return "", nil, qs.deny(ctx, snap, category)
}

func (qs *QuotaService) deny(ctx context.Context, snap *snapshot, category models.Category) error {
	used := snap.usage.Used(category)
	limit := snap.plan.Limit(category)

	upgrade, err := qs.plans.UpgradeAvailable(ctx, snap.plan, category, used)
	if err != nil {
		qs.logger.WithError(err).Warn("Could not evaluate upgrade options")
	}

	le := apperrors.QuotaExceeded(category, used, limit, upgrade)
	le.TopupAvailable = snap.account.AvailableFor(category)

	qs.logger.WithFields(logrus.Fields{
		"user_id":  snap.usage.UserID.Hex(),
		"category": category,
		"used":     used,
		"limit":    limit.String(),
		"plan":     snap.plan.Slug,
	}).Info("Usage limit reached")
	return le
}

// RequireFeature refuses users whose plan lacks feature.
func (qs *QuotaService) RequireFeature(ctx context.Context, user *models.User, feature models.Feature) error {
	plan, err := qs.plans.Effective(ctx, user, qs.now())
	if err != nil {
		return err
	}
	if plan.HasFeature(feature) {
		return nil
	}

	le := apperrors.FeatureUnavailable(feature)
	upgrade, err := qs.plans.UpgradeForFeature(ctx, plan, feature)
	if err != nil {
		qs.logger.WithError(err).Warn("Could not evaluate upgrade options")
	}
	le.UpgradeRequired = upgrade
	return le
}

// CheckUpload enforces the per-file size limit and refuses uploads while
// storage is already full.
func (qs *QuotaService) CheckUpload(ctx context.Context, user *models.User, sizes []int64) error {
	snap, err := qs.snapshot(ctx, user)
	if err != nil {
		return err
	}

	maxFile := snap.plan.MaxFileSizeBytes()
	for _, size := range sizes {
		if !maxFile.AllowsAmount(0, size) {
			return apperrors.FileTooLarge(size, snap.plan.MaxFileSize)
		}
	}

	storage := snap.plan.StorageBytes()
	if !storage.Allows(snap.usage.StorageBytes) {
		return apperrors.StorageExceeded(snap.usage.StorageBytes, storage)
	}
	return nil
}

// ReserveStorage accounts bytes of new artifacts against the storage quota.
func (qs *QuotaService) ReserveStorage(ctx context.Context, user *models.User, bytes int64) error {
	if bytes <= 0 {
		return nil
	}
	snap, err := qs.snapshot(ctx, user)
	if err != nil {
		return err
	}

	limit := snap.plan.StorageBytes()
	_, ok, err := qs.usage.AdjustStorage(ctx, user.ID, bytes, limit)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	if !ok {
		return apperrors.StorageExceeded(snap.usage.StorageBytes, limit)
	}
	return nil
}

// ReleaseStorage gives back bytes from a removed artifact.
func (qs *QuotaService) ReleaseStorage(ctx context.Context, userID primitive.ObjectID, bytes int64) error {
	if bytes <= 0 {
		return nil
	}
	_, ok, err := qs.usage.AdjustStorage(ctx, userID, -bytes, models.UnlimitedLimit())
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	if !ok {
		qs.logger.WithFields(logrus.Fields{
			"user_id": userID.Hex(),
			"bytes":   bytes,
		}).Warn("Storage release exceeds recorded usage, ignored")
	}
	return nil
}

func storedPeriod(usage *models.Usage) models.BillingCycle {
	if usage.Period.Valid() {
		return usage.Period
	}
	return models.BillingMonthly
}

// ResetIfDue starts the period window containing now if usage's window has
// ended. A window of another length, left over from a subscription that
// lapsed or changed cycle, is replaced by a period window starting at now.
// Only the first of several concurrent callers resets; the rest observe
// the already-advanced window. Top-up credits are untouched.
func (qs *QuotaService) ResetIfDue(ctx context.Context, usage *models.Usage, period models.BillingCycle, now time.Time) (*models.Usage, bool, error) {
	if !period.Valid() {
		period = models.BillingMonthly
	}

	var start, end time.Time
	switch {
	case usage.Due(now):
		start, end = models.NextWindow(usage.CycleEnd, period, now)
	case storedPeriod(usage) != period:
		start, end = models.CycleWindow(now, period)
	default:
		return usage, false, nil
	}

	reset, err := qs.usage.ResetWindow(ctx, usage.UserID, usage.CycleEnd, period, start, end)
	if err != nil {
		return nil, false, apperrors.DatabaseError(err)
	}

	fresh, err := qs.usage.Ensure(ctx, usage.UserID, period, now)
	if err != nil {
		return nil, false, apperrors.DatabaseError(err)
	}
	if reset {
		qs.logger.WithFields(logrus.Fields{
			"user_id":     usage.UserID.Hex(),
			"period":      period,
			"cycle_start": start,
			"cycle_end":   end,
		}).Info("Usage cycle reset")
	}
	return fresh, reset, nil
}

// ResetDueCycles resets every usage window that has ended, whether or not
// its user is active. It returns the number of windows reset.
func (qs *QuotaService) ResetDueCycles(ctx context.Context, batchSize int64) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	now := qs.now()
	total := 0

	for {
		due, err := qs.usage.ListDue(ctx, now, batchSize)
		if err != nil {
			return total, apperrors.DatabaseError(err)
		}
		if len(due) == 0 {
			return total, nil
		}

		progressed := false
		for i := range due {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			_, reset, err := qs.ResetIfDue(ctx, &due[i], due[i].Period, now)
			if err != nil {
				qs.logger.WithError(err).WithField("user_id", due[i].UserID.Hex()).Error("Usage reset failed")
				continue
			}
			if reset {
				total++
			}
			progressed = true
		}
		if !progressed || int64(len(due)) < batchSize {
			return total, nil
		}
	}
}

// StartCycle begins a fresh window at now, used when a plan is activated.
func (qs *QuotaService) StartCycle(ctx context.Context, userID primitive.ObjectID, period models.BillingCycle, now time.Time) error {
	start, end := models.CycleWindow(now, period)
	if err := qs.usage.StartCycle(ctx, userID, period, start, end); err != nil {
		return apperrors.DatabaseError(err)
	}
	return nil
}

// Stats reports usage for every category alongside plan and credit state.
func (qs *QuotaService) Stats(ctx context.Context, user *models.User) (*models.UsageStats, error) {
	snap, err := qs.snapshot(ctx, user)
	if err != nil {
		return nil, err
	}

	planUsage := make(map[models.Category]models.CategoryUsage, len(models.Categories))
	for _, c := range models.Categories {
		limit := snap.plan.Limit(c)
		used := snap.usage.Used(c)
		planUsage[c] = models.CategoryUsage{
			Used:        used,
			Limit:       limit,
			Remaining:   limit.Remaining(used),
			Percentage:  limit.Percentage(used),
			IsUnlimited: limit.Unlimited,
			Topup:       snap.account.AvailableFor(c),
		}
	}

	return &models.UsageStats{
		Plan:         snap.plan,
		PlanUsage:    planUsage,
		StorageUsed:  snap.usage.StorageBytes,
		StorageLimit: snap.plan.StorageBytes(),
		CycleStart:   snap.usage.CycleStart,
		CycleEnd:     snap.usage.CycleEnd,
		Priority:     snap.account.Priority,
		TopupBalance: snap.account.TotalAvailable,
		Subscription: user.Subscription,
	}, nil
}
