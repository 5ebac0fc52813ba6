package models

import "strings"

// Category is a metered tool grouping. Usage is counted separately per category.
type Category string

const (
	CategoryConversion Category = "conversion"
	CategoryEdit       Category = "edit"
	CategoryOrganize   Category = "organize"
	CategorySecurity   Category = "security"
	CategoryOptimize   Category = "optimize"
	CategoryAdvanced   Category = "advanced"
)

// Categories lists every metered category in display order.
var Categories = []Category{
	CategoryConversion,
	CategoryEdit,
	CategoryOrganize,
	CategorySecurity,
	CategoryOptimize,
	CategoryAdvanced,
}

var categoryLabels = map[Category]string{
	CategoryConversion: "PDF conversions",
	CategoryEdit:       "Edit tools",
	CategoryOrganize:   "Organize tools",
	CategorySecurity:   "Security tools",
	CategoryOptimize:   "Optimize tools",
	CategoryAdvanced:   "Advanced tools",
}

// aliases accepted from clients that still send the older feature names
var categoryAliases = map[string]Category{
	"convert":        CategoryConversion,
	"conversions":    CategoryConversion,
	"edit-tools":     CategoryEdit,
	"edittools":      CategoryEdit,
	"organize-tools": CategoryOrganize,
	"organizetools":  CategoryOrganize,
	"security-tools": CategorySecurity,
	"securitytools":  CategorySecurity,
	"optimize-tools": CategoryOptimize,
	"optimizetools":  CategoryOptimize,
	"advanced-tools": CategoryAdvanced,
	"advancedtools":  CategoryAdvanced,
}

func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// ParseCategory normalizes a category name, accepting legacy aliases.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c := Category(s); c.Valid() {
		return c, true
	}
	c, ok := categoryAliases[s]
	return c, ok
}

// Feature is a boolean plan capability, as opposed to a counted quota.
type Feature string

const (
	FeatureOCR               Feature = "ocr"
	FeatureBatchProcessing   Feature = "batch_processing"
	FeatureDigitalSignatures Feature = "digital_signatures"
	FeatureAPIAccess         Feature = "api_access"
	FeatureTeamCollaboration Feature = "team_collaboration"
	FeatureWatermarkFree     Feature = "watermark_free"
)

var featureLabels = map[Feature]string{
	FeatureOCR:               "OCR text recognition",
	FeatureBatchProcessing:   "Batch processing",
	FeatureDigitalSignatures: "Digital signatures",
	FeatureAPIAccess:         "API access",
	FeatureTeamCollaboration: "Team collaboration",
	FeatureWatermarkFree:     "Watermark-free output",
}

func (f Feature) Label() string {
	if label, ok := featureLabels[f]; ok {
		return label
	}
	return string(f)
}
