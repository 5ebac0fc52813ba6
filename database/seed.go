package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pdfdesk/models"
)

// DefaultPlans is the catalog installed on first start.
func DefaultPlans() []models.Plan {
	capped := func(conv, edit, org, sec, opt, adv int64) map[models.Category]models.Limit {
		return map[models.Category]models.Limit{
			models.CategoryConversion: models.CappedLimit(conv),
			models.CategoryEdit:       models.CappedLimit(edit),
			models.CategoryOrganize:   models.CappedLimit(org),
			models.CategorySecurity:   models.CappedLimit(sec),
			models.CategoryOptimize:   models.CappedLimit(opt),
			models.CategoryAdvanced:   models.CappedLimit(adv),
		}
	}
	unlimited := make(map[models.Category]models.Limit, len(models.Categories))
	for _, c := range models.Categories {
		unlimited[c] = models.UnlimitedLimit()
	}

	return []models.Plan{
		models.DefaultFreePlan(),
		{
			Slug:        "starter",
			Name:        "Starter",
			Description: "Perfect for individual users and students",
			Limits:      capped(50, 25, 25, 15, 15, 5),
			MaxFileSize: models.CappedLimit(10),
			Storage:     models.CappedLimit(5),
			Features:    models.PlanFeatures{WatermarkFree: true},
			SupportType: "Email",
			Pricing:     models.PlanPricing{MonthlyUSD: 12, AnnualUSD: 108, MonthlyINR: 999, AnnualINR: 8999},
			IsActive:    true,
			SortOrder:   1,
		},
		{
			Slug:        "professional",
			Name:        "Professional",
			Description: "Ideal for freelancers and small teams",
			Limits:      capped(500, 200, 200, 100, 100, 50),
			MaxFileSize: models.CappedLimit(100),
			Storage:     models.CappedLimit(100),
			Features: models.PlanFeatures{
				OCR:               true,
				BatchProcessing:   true,
				DigitalSignatures: true,
				WatermarkFree:     true,
			},
			SupportType: "Priority",
			Pricing:     models.PlanPricing{MonthlyUSD: 39, AnnualUSD: 351, MonthlyINR: 2999, AnnualINR: 26999},
			IsActive:    true,
			SortOrder:   2,
		},
		{
			Slug:        "enterprise",
			Name:        "Enterprise",
			Description: "For large organizations",
			Limits:      unlimited,
			MaxFileSize: models.UnlimitedLimit(),
			Storage:     models.CappedLimit(1000),
			Features: models.PlanFeatures{
				OCR:               true,
				BatchProcessing:   true,
				DigitalSignatures: true,
				APIAccess:         true,
				TeamCollaboration: true,
				WatermarkFree:     true,
			},
			SupportType: "24/7 Dedicated",
			IsActive:    true,
			SortOrder:   3,
		},
	}
}

// DefaultTopupPackages is the top-up catalog installed on first start.
func DefaultTopupPackages() []models.TopupPackage {
	pack := func(name, desc string, price float64, conv, edit, org, sec, opt, adv int64, featured bool, order int) models.TopupPackage {
		return models.TopupPackage{
			Name:        name,
			Description: desc,
			Price:       price,
			Currency:    "USD",
			Credits: map[models.Category]int64{
				models.CategoryConversion: conv,
				models.CategoryEdit:       edit,
				models.CategoryOrganize:   org,
				models.CategorySecurity:   sec,
				models.CategoryOptimize:   opt,
				models.CategoryAdvanced:   adv,
			},
			IsActive:  true,
			Featured:  featured,
			SortOrder: order,
		}
	}

	return []models.TopupPackage{
		pack("Mini Boost", "Small credit boost for occasional needs", 4.99, 25, 10, 10, 5, 5, 2, false, 1),
		pack("Power Pack", "Perfect balance for regular users", 9.99, 75, 40, 40, 25, 25, 15, true, 2),
		pack("Pro Reserve", "Large credit reserve for power users", 19.99, 200, 100, 100, 75, 75, 50, true, 3),
		pack("Conversion Focus", "Extra conversion credits for heavy PDF work", 7.99, 150, 20, 20, 15, 15, 10, false, 4),
	}
}

// Seed inserts the default catalog. Existing documents are left untouched so
// edits made after the first start survive restarts.
func Seed(ctx context.Context, c *Collections, logger *logrus.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	upsert := options.Update().SetUpsert(true)

	for _, plan := range DefaultPlans() {
		plan.CreatedAt = now
		plan.UpdatedAt = now
		res, err := c.Plans().UpdateOne(ctx,
			bson.M{"slug": plan.Slug},
			bson.M{"$setOnInsert": plan},
			upsert,
		)
		if err != nil {
			return fmt.Errorf("seeding plan %s: %w", plan.Slug, err)
		}
		if res.UpsertedCount > 0 {
			logger.WithField("plan", plan.Slug).Info("seeded plan")
		}
	}

	for _, pkg := range DefaultTopupPackages() {
		pkg.Normalize()
		pkg.CreatedAt = now
		pkg.UpdatedAt = now
		res, err := c.TopupPackages().UpdateOne(ctx,
			bson.M{"name": pkg.Name},
			bson.M{"$setOnInsert": pkg},
			upsert,
		)
		if err != nil {
			return fmt.Errorf("seeding top-up package %s: %w", pkg.Name, err)
		}
		if res.UpsertedCount > 0 {
			logger.WithField("package", pkg.Name).Info("seeded top-up package")
		}
	}

	return nil
}
