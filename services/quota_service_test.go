package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfdesk/apperrors"
	"pdfdesk/models"
)

func requireLimitError(t *testing.T, err error) *apperrors.LimitError {
	t.Helper()
	le, ok := apperrors.AsLimitError(err)
	require.True(t, ok, "expected a limit error, got %v", err)
	return le
}

func TestTenConversionsThenDeny(t *testing.T) {
	ctx := context.Background()
	user := freeUser()
	e := newEnv(t, user)

	for i := 1; i <= 10; i++ {
		d, err := e.quota.Check(ctx, user, models.CategoryConversion)
		require.NoError(t, err)
		assert.True(t, d.Allowed)

		source, usage, err := e.quota.Consume(ctx, user, models.CategoryConversion)
		require.NoError(t, err)
		assert.Equal(t, models.SourceSubscription, source)
		assert.Equal(t, int64(i), usage.Used(models.CategoryConversion))
	}

	d, err := e.quota.Check(ctx, user, models.CategoryConversion)
	le := requireLimitError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, models.CategoryConversion, le.Category)
	assert.Equal(t, int64(10), le.CurrentUsage)
	assert.Equal(t, capped(10), le.Limit)
	assert.True(t, le.UpgradeRequired)

	payload := le.Payload()
	assert.Equal(t, "limit_exceeded", payload.Type)
	assert.False(t, payload.Success)

	_, _, err = e.quota.Consume(ctx, user, models.CategoryConversion)
	requireLimitError(t, err)
	assert.Equal(t, int64(10), e.usage.get(user.ID).Used(models.CategoryConversion))
}

func TestUnlimitedCategoryNeverDenies(t *testing.T) {
	ctx := context.Background()
	user := proUser()
	e := newEnv(t, user)
	e.credits.give(user.ID, models.CategoryConversion, 5)

	for i := 0; i < 1000; i++ {
		source, _, err := e.quota.Consume(ctx, user, models.CategoryConversion)
		require.NoError(t, err)
		require.Equal(t, models.SourceSubscription, source)
	}

	assert.Equal(t, int64(1000), e.usage.get(user.ID).Used(models.CategoryConversion))
	assert.Equal(t, int64(5), e.credits.get(user.ID).Available[models.CategoryConversion])

	d, err := e.quota.Check(ctx, user, models.CategoryConversion)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(-1), d.Remaining)
}

func TestConcurrentChargesAtLastUnit(t *testing.T) {
	ctx := context.Background()
	user := freeUser()
	e := newEnv(t, user)

	_, err := e.quota.Check(ctx, user, models.CategoryConversion)
	require.NoError(t, err)
	e.usage.set(user.ID, func(u *models.Usage) { u.Counters[models.CategoryConversion] = 9 })

	const workers = 25
	var allowed, denied int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := e.quota.Consume(ctx, user, models.CategoryConversion)
			if err == nil {
				atomic.AddInt32(&allowed, 1)
				return
			}
			if _, ok := apperrors.AsLimitError(err); ok {
				atomic.AddInt32(&denied, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), allowed)
	assert.Equal(t, int32(workers-1), denied)
	assert.Equal(t, int64(10), e.usage.get(user.ID).Used(models.CategoryConversion))
}

func TestTwoConcurrentRequestsWithOneUnitLeft(t *testing.T) {
	ctx := context.Background()
	user := freeUser()
	e := newEnv(t, user)

	_, err := e.quota.Check(ctx, user, models.CategoryOrganize)
	require.NoError(t, err)
	e.usage.set(user.ID, func(u *models.Usage) { u.Counters[models.CategoryOrganize] = 4 })

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, _, err := e.quota.Consume(ctx, user, models.CategoryOrganize)
			errs <- err
		}()
	}
	first, second := <-errs, <-errs
	assert.True(t, (first == nil) != (second == nil), "exactly one request may succeed")
	assert.Equal(t, int64(5), e.usage.get(user.ID).Used(models.CategoryOrganize))
}

func TestZeroLimitMeansNoAccess(t *testing.T) {
	ctx := context.Background()
	user := freeUser()
	e := newEnv(t, user)

	_, err := e.quota.Check(ctx, user, models.CategoryAdvanced)
	le := requireLimitError(t, err)
	assert.Equal(t, int64(0), le.Limit.Max)
	assert.False(t, le.Limit.Unlimited)
	assert.Contains(t, le.Message, "not included")
	assert.True(t, le.UpgradeRequired)

	e.credits.give(user.ID, models.CategoryAdvanced, 2)
	d, err := e.quota.Check(ctx, user, models.CategoryAdvanced)
	require.NoError(t, err)
	assert.Equal(t, models.SourceTopup, d.Source)
	assert.Equal(t, int64(2), d.TopupAvailable)

	source, _, err := e.quota.Consume(ctx, user, models.CategoryAdvanced)
	require.NoError(t, err)
	assert.Equal(t, models.SourceTopup, source)
	assert.Equal(t, int64(0), e.usage.get(user.ID).Used(models.CategoryAdvanced))
	assert.Equal(t, int64(1), e.credits.get(user.ID).TotalAvailable)
}

func TestPriorityOrdering(t *testing.T) {
	ctx := context.Background()

	t.Run("subscription first", func(t *testing.T) {
		user := freeUser()
		e := newEnv(t, user)
		e.credits.give(user.ID, models.CategoryEdit, 2)

		for i := 0; i < 5; i++ {
			source, _, err := e.quota.Consume(ctx, user, models.CategoryEdit)
			require.NoError(t, err)
			assert.Equal(t, models.SourceSubscription, source)
		}
		for i := 0; i < 2; i++ {
			source, _, err := e.quota.Consume(ctx, user, models.CategoryEdit)
			require.NoError(t, err)
			assert.Equal(t, models.SourceTopup, source)
		}
		_, _, err := e.quota.Consume(ctx, user, models.CategoryEdit)
		le := requireLimitError(t, err)
		assert.Equal(t, int64(0), le.TopupAvailable)
	})

	t.Run("topup first", func(t *testing.T) {
		user := freeUser()
		e := newEnv(t, user)
		e.credits.give(user.ID, models.CategoryEdit, 2)
		_, err := e.creditSvc.SetPriority(ctx, user.ID, models.PriorityTopupFirst)
		require.NoError(t, err)

		var sources []models.CreditSource
		for i := 0; i < 3; i++ {
			source, _, err := e.quota.Consume(ctx, user, models.CategoryEdit)
			require.NoError(t, err)
			sources = append(sources, source)
		}
		assert.Equal(t, []models.CreditSource{models.SourceTopup, models.SourceTopup, models.SourceSubscription}, sources)
		assert.Equal(t, int64(1), e.usage.get(user.ID).Used(models.CategoryEdit))
	})

	t.Run("stored mixed falls back to subscription first", func(t *testing.T) {
		user := freeUser()
		e := newEnv(t, user)
		e.credits.give(user.ID, models.CategoryEdit, 1)
		require.NoError(t, e.credits.SetPriority(ctx, user.ID, models.PriorityMixed))

		source, _, err := e.quota.Consume(ctx, user, models.CategoryEdit)
		require.NoError(t, err)
		assert.Equal(t, models.SourceSubscription, source)
	})
}

func TestResetIfDueAppliesOnce(t *testing.T) {
	ctx := context.Background()
	user := freeUser()
	e := newEnv(t, user)

	past := time.Now().UTC().AddDate(0, -3, 0)
	_, err := e.usage.Ensure(ctx, user.ID, models.BillingMonthly, past)
	require.NoError(t, err)
	e.usage.set(user.ID, func(u *models.Usage) { u.Counters[models.CategoryConversion] = 7 })
	stale := e.usage.get(user.ID)

	now := time.Now().UTC()
	var resets int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, reset, err := e.quota.ResetIfDue(ctx, stale, models.BillingMonthly, now)
			if err == nil && reset {
				atomic.AddInt32(&resets, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), resets)
	fresh := e.usage.get(user.ID)
	assert.Equal(t, int64(0), fresh.Used(models.CategoryConversion))
	assert.Equal(t, int64(1), fresh.ResetCount)
	assert.False(t, fresh.Due(now))
	assert.False(t, now.Before(fresh.CycleStart))

	_, reset, err := e.quota.ResetIfDue(ctx, fresh, models.BillingMonthly, now)
	require.NoError(t, err)
	assert.False(t, reset)
}

func TestLapsedAnnualSubscriptionGetsMonthlyWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	expired := now.Add(-24 * time.Hour)
	user := proUser()
	user.Subscription.BillingCycle = models.BillingAnnual
	user.Subscription.ExpiresAt = &expired
	e := newEnv(t, user)

	require.NoError(t, e.quota.StartCycle(ctx, user.ID, models.BillingAnnual, now.AddDate(-1, 0, 2)))
	e.usage.set(user.ID, func(u *models.Usage) { u.Counters[models.CategoryConversion] = 50 })

	d, err := e.quota.Check(ctx, user, models.CategoryConversion)
	require.NoError(t, err)
	assert.Equal(t, models.FreePlanSlug, d.Plan)
	assert.Equal(t, capped(10), d.Limit)

	usage := e.usage.get(user.ID)
	assert.Equal(t, models.BillingMonthly, usage.Period)
	assert.Less(t, usage.CycleEnd.Sub(usage.CycleStart), 768*time.Hour)
	assert.False(t, usage.Due(now))
	assert.Equal(t, int64(0), usage.Used(models.CategoryConversion))
	assert.Equal(t, int64(1), usage.ResetCount)

	// the realigned window is stable across checks
	_, err = e.quota.Check(ctx, user, models.CategoryConversion)
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.usage.get(user.ID).ResetCount)
}

func TestTopupCreditsSurviveResets(t *testing.T) {
	ctx := context.Background()
	user := freeUser()
	e := newEnv(t, user)
	e.credits.give(user.ID, models.CategoryConversion, 4)

	start := time.Now().UTC().AddDate(-1, 0, 0)
	_, err := e.usage.Ensure(ctx, user.ID, models.BillingMonthly, start)
	require.NoError(t, err)

	for month := 1; month <= 6; month++ {
		u := e.usage.get(user.ID)
		_, _, err := e.quota.ResetIfDue(ctx, u, models.BillingMonthly, start.AddDate(0, month, 1))
		require.NoError(t, err)
	}

	account := e.credits.get(user.ID)
	assert.Equal(t, int64(4), account.Available[models.CategoryConversion])
	assert.Equal(t, int64(4), account.TotalAvailable)
}

func TestResetDueCycles(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	past := time.Now().UTC().AddDate(0, -2, 0)
	for i := 0; i < 3; i++ {
		u := freeUser()
		_, err := e.usage.Ensure(ctx, u.ID, models.BillingMonthly, past)
		require.NoError(t, err)
	}
	current := freeUser()
	_, err := e.usage.Ensure(ctx, current.ID, models.BillingMonthly, time.Now().UTC())
	require.NoError(t, err)

	n, err := e.quota.ResetDueCycles(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = e.quota.ResetDueCycles(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestExpiredSubscriptionUsesFreeLimits(t *testing.T) {
	ctx := context.Background()
	user := proUser()
	expired := time.Now().Add(-time.Hour)
	user.Subscription.ExpiresAt = &expired
	e := newEnv(t, user)

	d, err := e.quota.Check(ctx, user, models.CategoryConversion)
	require.NoError(t, err)
	assert.Equal(t, models.FreePlanSlug, d.Plan)
	assert.Equal(t, capped(10), d.Limit)
}

func TestCheckUpload(t *testing.T) {
	ctx := context.Background()
	user := freeUser()
	e := newEnv(t, user)

	require.NoError(t, e.quota.CheckUpload(ctx, user, []int64{5 << 20}))

	err := e.quota.CheckUpload(ctx, user, []int64{1 << 20, 11 << 20})
	le := requireLimitError(t, err)
	assert.Equal(t, "File Too Large", le.Title)

	e.usage.set(user.ID, func(u *models.Usage) { u.StorageBytes = 1 << 30 })
	err = e.quota.CheckUpload(ctx, user, []int64{1024})
	le = requireLimitError(t, err)
	assert.Equal(t, "Storage Limit Reached", le.Title)
}

func TestStorageReservation(t *testing.T) {
	ctx := context.Background()
	user := freeUser()
	e := newEnv(t, user)

	require.NoError(t, e.quota.ReserveStorage(ctx, user, 1<<29))
	require.NoError(t, e.quota.ReserveStorage(ctx, user, 1<<29))
	requireLimitError(t, e.quota.ReserveStorage(ctx, user, 1))

	require.NoError(t, e.quota.ReleaseStorage(ctx, user.ID, 1<<29))
	assert.Equal(t, int64(1<<29), e.usage.get(user.ID).StorageBytes)

	// over-release is ignored rather than going negative
	require.NoError(t, e.quota.ReleaseStorage(ctx, user.ID, 1<<30))
	assert.Equal(t, int64(1<<29), e.usage.get(user.ID).StorageBytes)
}

func TestRequireFeature(t *testing.T) {
	ctx := context.Background()
	free, pro := freeUser(), proUser()
	e := newEnv(t, free, pro)

	err := e.quota.RequireFeature(ctx, free, models.FeatureOCR)
	le := requireLimitError(t, err)
	assert.Equal(t, models.FeatureOCR, le.Feature)
	assert.True(t, le.UpgradeRequired)

	assert.NoError(t, e.quota.RequireFeature(ctx, pro, models.FeatureOCR))

	// no plan offers team collaboration
	err = e.quota.RequireFeature(ctx, pro, models.FeatureTeamCollaboration)
	le = requireLimitError(t, err)
	assert.False(t, le.UpgradeRequired)
}

func TestUpgradeRequiredOnlyWhenAHigherPlanAdmits(t *testing.T) {
	ctx := context.Background()
	user := proUser()
	e := newEnv(t, user)

	_, err := e.quota.Check(ctx, user, models.CategoryEdit)
	require.NoError(t, err)
	e.usage.set(user.ID, func(u *models.Usage) { u.Counters[models.CategoryEdit] = 100 })

	_, err = e.quota.Check(ctx, user, models.CategoryEdit)
	le := requireLimitError(t, err)
	assert.True(t, le.UpgradeRequired, "enterprise is unlimited")
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	user := freeUser()
	e := newEnv(t, user)
	e.credits.give(user.ID, models.CategoryOptimize, 3)

	for i := 0; i < 4; i++ {
		_, _, err := e.quota.Consume(ctx, user, models.CategoryConversion)
		require.NoError(t, err)
	}

	stats, err := e.quota.Stats(ctx, user)
	require.NoError(t, err)
	conv := stats.PlanUsage[models.CategoryConversion]
	assert.Equal(t, int64(4), conv.Used)
	assert.Equal(t, int64(6), conv.Remaining)
	assert.InDelta(t, 40.0, conv.Percentage, 0.001)
	assert.False(t, conv.IsUnlimited)
	assert.Equal(t, int64(3), stats.PlanUsage[models.CategoryOptimize].Topup)
	assert.Equal(t, int64(3), stats.TopupBalance)
	assert.Len(t, stats.PlanUsage, len(models.Categories))
}

func TestBuiltinFreePlanWhenCatalogLacksIt(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()
	plans := NewPlanService(&fakePlans{plans: testPlans()[1:]}, logger)
	quota := NewQuotaService(newFakeUsage(), newFakeCredits(), plans, logger)
	user := freeUser()

	plan, err := plans.Effective(ctx, user, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.FreePlanSlug, plan.Slug)
	assert.True(t, plan.IsFree)

	for i := 0; i < 10; i++ {
		_, _, err := quota.Consume(ctx, user, models.CategoryConversion)
		require.NoError(t, err)
	}
	_, err = quota.Check(ctx, user, models.CategoryConversion)
	le := requireLimitError(t, err)
	assert.Equal(t, capped(10), le.Limit)
}
