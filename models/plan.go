package models

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const FreePlanSlug = "free"

const (
	bytesPerMB = 1024 * 1024
	bytesPerGB = 1024 * 1024 * 1024
)

type Plan struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Slug        string             `bson:"slug" json:"slug"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description" json:"description"`
	Limits      map[Category]Limit `bson:"limits" json:"limits"`
	MaxFileSize Limit              `bson:"max_file_size_mb" json:"max_file_size_mb"` // per input file, in MB
	Storage     Limit              `bson:"storage_gb" json:"storage_gb"`             // total artifact storage, in GB
	Features    PlanFeatures       `bson:"features" json:"features"`
	SupportType string             `bson:"support_type" json:"support_type"`
	Pricing     PlanPricing        `bson:"pricing" json:"pricing"`
	IsFree      bool               `bson:"is_free" json:"is_free"`
	IsDefault   bool               `bson:"is_default" json:"is_default"`
	IsActive    bool               `bson:"is_active" json:"is_active"`
	SortOrder   int                `bson:"sort_order" json:"sort_order"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// DefaultFreePlan is the built-in free tier. It is seeded into the catalog
// and applied when the stored free plan cannot be found.
func DefaultFreePlan() Plan {
	return Plan{
		Slug:        FreePlanSlug,
		Name:        "Free",
		Description: "Perfect for getting started with basic PDF needs",
		Limits: map[Category]Limit{
			CategoryConversion: CappedLimit(10),
			CategoryEdit:       CappedLimit(5),
			CategoryOrganize:   CappedLimit(5),
			CategorySecurity:   CappedLimit(3),
			CategoryOptimize:   CappedLimit(3),
			CategoryAdvanced:   CappedLimit(0),
		},
		MaxFileSize: CappedLimit(5),
		Storage:     CappedLimit(1),
		SupportType: "Community",
		IsFree:      true,
		IsDefault:   true,
		IsActive:    true,
		SortOrder:   0,
	}
}

type PlanFeatures struct {
	OCR               bool `bson:"ocr" json:"ocr"`
	BatchProcessing   bool `bson:"batch_processing" json:"batch_processing"`
	DigitalSignatures bool `bson:"digital_signatures" json:"digital_signatures"`
	APIAccess         bool `bson:"api_access" json:"api_access"`
	TeamCollaboration bool `bson:"team_collaboration" json:"team_collaboration"`
	WatermarkFree     bool `bson:"watermark_free" json:"watermark_free"`
}

type PlanPricing struct {
	MonthlyUSD float64 `bson:"monthly_usd" json:"monthly_usd"`
	AnnualUSD  float64 `bson:"annual_usd" json:"annual_usd"`
	MonthlyINR float64 `bson:"monthly_inr" json:"monthly_inr"`
	AnnualINR  float64 `bson:"annual_inr" json:"annual_inr"`
}

// Limit returns the plan's ceiling for a category. Categories missing from
// the plan grant no access.
func (p *Plan) Limit(c Category) Limit {
	if l, ok := p.Limits[c]; ok {
		return l
	}
	return CappedLimit(0)
}

func (p *Plan) MaxFileSizeBytes() Limit {
	return p.MaxFileSize.Scale(bytesPerMB)
}

func (p *Plan) StorageBytes() Limit {
	return p.Storage.Scale(bytesPerGB)
}

func (p *Plan) HasFeature(f Feature) bool {
	switch f {
	case FeatureOCR:
		return p.Features.OCR
	case FeatureBatchProcessing:
		return p.Features.BatchProcessing
	case FeatureDigitalSignatures:
		return p.Features.DigitalSignatures
	case FeatureAPIAccess:
		return p.Features.APIAccess
	case FeatureTeamCollaboration:
		return p.Features.TeamCollaboration
	case FeatureWatermarkFree:
		return p.Features.WatermarkFree
	}
	return false
}

// Price returns the list price for a billing cycle and currency.
func (p *Plan) Price(cycle BillingCycle, currency string) (float64, error) {
	var price float64
	switch strings.ToUpper(currency) {
	case "USD":
		price = p.Pricing.MonthlyUSD
		if cycle == BillingAnnual {
			price = p.Pricing.AnnualUSD
		}
	case "INR":
		price = p.Pricing.MonthlyINR
		if cycle == BillingAnnual {
			price = p.Pricing.AnnualINR
		}
	default:
		return 0, fmt.Errorf("unsupported currency %q", currency)
	}
	if price <= 0 {
		return 0, fmt.Errorf("plan %s has no %s %s price", p.Slug, cycle, currency)
	}
	return price, nil
}
