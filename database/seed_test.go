package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfdesk/models"
)

func TestDefaultPlansCoverEveryCategory(t *testing.T) {
	plans := DefaultPlans()
	require.Len(t, plans, 4)

	for _, plan := range plans {
		for _, c := range models.Categories {
			_, ok := plan.Limits[c]
			assert.True(t, ok, "plan %s is missing %s", plan.Slug, c)
		}
	}
}

func TestDefaultPlansUseExplicitSentinels(t *testing.T) {
	bySlug := map[string]models.Plan{}
	for _, p := range DefaultPlans() {
		bySlug[p.Slug] = p
	}

	free := bySlug[models.FreePlanSlug]
	assert.True(t, free.IsFree)
	assert.False(t, free.Limit(models.CategoryAdvanced).Allows(0), "free plan has no advanced access")
	assert.Equal(t, models.CappedLimit(10), free.Limit(models.CategoryConversion))

	enterprise := bySlug["enterprise"]
	for _, c := range models.Categories {
		assert.True(t, enterprise.Limit(c).Unlimited)
	}
	assert.True(t, enterprise.MaxFileSize.Unlimited)
}

func TestDefaultTopupPackagesNormalize(t *testing.T) {
	for _, pkg := range DefaultTopupPackages() {
		pkg.Normalize()
		assert.Equal(t, models.SumCredits(pkg.Credits), pkg.TotalCredits)
		assert.Positive(t, pkg.TotalCredits)
	}
}
