package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pdfdesk/apperrors"
	"pdfdesk/config"
	"pdfdesk/models"
	"pdfdesk/utils"
)

func newTestAuth(users *fakeUsers) *AuthService {
	tokens := utils.NewTokenManager(config.JWTConfig{
		Secret:        "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		Issuer:        "pdfdesk-test",
	})
	return NewAuthService(users, tokens, testLogger())
}

func TestAuthRegisterLoginRefresh(t *testing.T) {
	ctx := context.Background()
	users := newFakeUsers()
	auth := newTestAuth(users)

	reg, err := auth.Register(ctx, &models.RegisterRequest{Name: " Ada ", Email: "Ada@Example.com", Password: "Sup3r$ecret"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", reg.User.Name)
	assert.Equal(t, "ada@example.com", reg.User.Email)
	assert.Equal(t, models.FreePlanSlug, reg.User.Subscription.PlanSlug)
	assert.Equal(t, models.SubscriptionInactive, reg.User.Subscription.Status)
	assert.NotEqual(t, "Sup3r$ecret", reg.User.Password)
	require.NotNil(t, reg.Tokens)

	_, err = auth.Register(ctx, &models.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "Sup3r$ecret"})
	assert.ErrorIs(t, err, apperrors.ErrEmailTaken)

	_, err = auth.Login(ctx, &models.LoginRequest{Email: "ada@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = auth.Login(ctx, &models.LoginRequest{Email: "nobody@example.com", Password: "Sup3r$ecret"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	login, err := auth.Login(ctx, &models.LoginRequest{Email: "ADA@example.com", Password: "Sup3r$ecret"})
	require.NoError(t, err)
	stored, err := users.GetByID(ctx, login.User.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)

	refreshed, err := auth.Refresh(ctx, login.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, login.User.ID, refreshed.User.ID)

	_, err = auth.Refresh(ctx, login.Tokens.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken, "access tokens cannot refresh")
}

func TestAuthDisabledAccount(t *testing.T) {
	ctx := context.Background()
	users := newFakeUsers()
	auth := newTestAuth(users)

	reg, err := auth.Register(ctx, &models.RegisterRequest{Name: "Bo", Email: "bo@example.com", Password: "Sup3r$ecret"})
	require.NoError(t, err)

	users.mu.Lock()
	users.users[reg.User.ID].IsActive = false
	users.mu.Unlock()

	_, err = auth.Login(ctx, &models.LoginRequest{Email: "bo@example.com", Password: "Sup3r$ecret"})
	assert.ErrorIs(t, err, apperrors.ErrAccountDisabled)

	_, err = auth.Me(ctx, reg.User.ID)
	assert.ErrorIs(t, err, apperrors.ErrAccountDisabled)

	_, err = auth.Me(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestCreditPriority(t *testing.T) {
	ctx := context.Background()
	user := freeUser()
	e := newEnv(t, user)

	account, err := e.creditSvc.SetPriority(ctx, user.ID, models.PriorityTopupFirst)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityTopupFirst, account.Priority)
	assert.Equal(t, models.PriorityTopupFirst, e.credits.get(user.ID).Priority)

	_, err = e.creditSvc.SetPriority(ctx, user.ID, models.PriorityMixed)
	assert.ErrorIs(t, err, apperrors.ErrMixedPriorityUnsupported)

	_, err = e.creditSvc.SetPriority(ctx, user.ID, "random")
	assert.ErrorIs(t, err, apperrors.ErrInvalidPriority)
	assert.Equal(t, models.PriorityTopupFirst, e.credits.get(user.ID).Priority)
}

func TestResolveSources(t *testing.T) {
	tests := []struct {
		name     string
		priority models.CreditPriority
		limit    models.Limit
		want     []models.CreditSource
		err      error
	}{
		{"default", "", capped(5), []models.CreditSource{models.SourceSubscription, models.SourceTopup}, nil},
		{"subscription first", models.PrioritySubscriptionFirst, capped(5), []models.CreditSource{models.SourceSubscription, models.SourceTopup}, nil},
		{"topup first", models.PriorityTopupFirst, capped(5), []models.CreditSource{models.SourceTopup, models.SourceSubscription}, nil},
		{"unlimited ignores topup", models.PriorityTopupFirst, models.UnlimitedLimit(), []models.CreditSource{models.SourceSubscription}, nil},
		{"mixed", models.PriorityMixed, capped(5), nil, apperrors.ErrMixedPriorityUnsupported},
		{"unknown", "weird", capped(5), nil, apperrors.ErrInvalidPriority},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveSources(tt.priority, tt.limit)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreditHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	user := freeUser()
	e := newEnv(t, user)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, tx := range []string{"cs_a", "cs_b", "cs_c"} {
		granted, err := e.creditSvc.Grant(ctx, user.ID, models.CreditPurchase{
			TransactionID: tx,
			Credits:       map[models.Category]int64{models.CategoryOrganize: 5},
			PurchasedAt:   base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		assert.True(t, granted)
	}
	granted, err := e.creditSvc.Grant(ctx, user.ID, models.CreditPurchase{TransactionID: "cs_b", Credits: map[models.Category]int64{models.CategoryOrganize: 5}})
	require.NoError(t, err)
	assert.False(t, granted)

	history, err := e.creditSvc.History(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "cs_c", history[0].TransactionID)
	assert.Equal(t, "cs_a", history[2].TransactionID)
	assert.Equal(t, int64(15), e.credits.get(user.ID).TotalAvailable)
}

func TestExpireDueSubscriptions(t *testing.T) {
	ctx := context.Background()
	lapsed, current := proUser(), proUser()
	past := time.Now().Add(-time.Hour)
	lapsed.Subscription.BillingCycle = models.BillingAnnual
	lapsed.Subscription.ExpiresAt = &past
	e := newEnv(t, lapsed, current)
	require.NoError(t, e.quota.StartCycle(ctx, lapsed.ID, models.BillingAnnual, past.AddDate(-1, 0, 0)))
	e.usage.set(lapsed.ID, func(u *models.Usage) { u.Counters[models.CategoryConversion] = 50 })

	n, err := e.subscriptions.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	usage := e.usage.get(lapsed.ID)
	assert.Equal(t, models.BillingMonthly, usage.Period)
	assert.Less(t, usage.CycleEnd.Sub(usage.CycleStart), 768*time.Hour)
	assert.Equal(t, int64(0), usage.Used(models.CategoryConversion))

	got, err := e.users.GetByID(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionExpired, got.Subscription.Status)

	plan, err := e.plans.Effective(ctx, got, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.FreePlanSlug, plan.Slug)

	n, err = e.subscriptions.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestActivateUnknownUser(t *testing.T) {
	e := newEnv(t)
	plans := testPlans()
	_, err := e.subscriptions.Activate(context.Background(), primitive.NewObjectID(), &plans[1], models.BillingMonthly)
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestToggleAutoRenewal(t *testing.T) {
	ctx := context.Background()
	pro, free := proUser(), freeUser()
	e := newEnv(t, pro, free)

	status, err := e.subscriptions.AutoRenewal(ctx, pro.ID)
	require.NoError(t, err)
	assert.False(t, status.AutoRenewal)
	assert.Equal(t, "professional", status.PlanSlug)

	status, err = e.subscriptions.ToggleAutoRenewal(ctx, pro.ID)
	require.NoError(t, err)
	assert.True(t, status.AutoRenewal)

	got, err := e.users.GetByID(ctx, pro.ID)
	require.NoError(t, err)
	assert.True(t, got.Subscription.AutoRenewal)

	// the preference survives a renewal payment
	plans := testPlans()
	_, err = e.subscriptions.ActivateForPayment(ctx, pro.ID, primitive.NewObjectID(), &plans[1], models.BillingMonthly)
	require.NoError(t, err)
	status, err = e.subscriptions.AutoRenewal(ctx, pro.ID)
	require.NoError(t, err)
	assert.True(t, status.AutoRenewal)

	status, err = e.subscriptions.ToggleAutoRenewal(ctx, pro.ID)
	require.NoError(t, err)
	assert.False(t, status.AutoRenewal)

	_, err = e.subscriptions.ToggleAutoRenewal(ctx, free.ID)
	assert.ErrorIs(t, err, apperrors.ErrNoActiveSubscription)
}
