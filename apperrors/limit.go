package apperrors

import (
	"fmt"
	"net/http"
	"time"

	"pdfdesk/models"
)

const LimitExceededType = "limit_exceeded"

// LimitError is a user-recoverable refusal: upgrade, buy credits, or wait for
// the next cycle. It is never a server fault.
type LimitError struct {
	Title           string
	Message         string
	Category        models.Category
	Feature         models.Feature
	CurrentUsage    int64
	Limit           models.Limit
	TopupAvailable  int64
	UpgradeRequired bool
}

func (e *LimitError) Error() string {
	if e.Feature != "" {
		return fmt.Sprintf("%s: feature %s not included in plan", LimitExceededType, e.Feature)
	}
	return fmt.Sprintf("%s: %s %d/%s", LimitExceededType, e.Category, e.CurrentUsage, e.Limit)
}

func (e *LimitError) HTTPStatus() int {
	return http.StatusForbidden
}

// Payload renders the deny body the frontend uses to show an upgrade prompt.
func (e *LimitError) Payload() models.LimitExceeded {
	return models.LimitExceeded{
		Success:         false,
		Type:            LimitExceededType,
		Title:           e.Title,
		Message:         e.Message,
		Category:        e.Category,
		Feature:         e.Feature,
		CurrentUsage:    e.CurrentUsage,
		Limit:           e.Limit,
		TopupAvailable:  e.TopupAvailable,
		UpgradeRequired: e.UpgradeRequired,
		Timestamp:       time.Now(),
	}
}

func AsLimitError(err error) (*LimitError, bool) {
	var le *LimitError
	if As(err, &le) {
		return le, true
	}
	return nil, false
}

// QuotaExceeded builds the deny for an exhausted category.
func QuotaExceeded(category models.Category, used int64, limit models.Limit, upgrade bool) *LimitError {
	msg := fmt.Sprintf("You have used %d of %s %s this cycle.", used, limit, category.Label())
	if !limit.Unlimited && limit.Max == 0 {
		msg = fmt.Sprintf("%s are not included in your plan.", category.Label())
	}
	if upgrade {
		msg += " Upgrade your plan or buy a top-up pack to continue."
	} else {
		msg += " Buy a top-up pack or wait for your usage to reset."
	}
	return &LimitError{
		Title:           "Usage Limit Reached",
		Message:         msg,
		Category:        category,
		CurrentUsage:    used,
		Limit:           limit,
		UpgradeRequired: upgrade,
	}
}

func FeatureUnavailable(feature models.Feature) *LimitError {
	return &LimitError{
		Title:           "Upgrade Required",
		Message:         fmt.Sprintf("%s is not included in your plan.", feature.Label()),
		Feature:         feature,
		Limit:           models.CappedLimit(0),
		UpgradeRequired: true,
	}
}

func FileTooLarge(size int64, limit models.Limit) *LimitError {
	return &LimitError{
		Title:           "File Too Large",
		Message:         fmt.Sprintf("Maximum file size on your plan is %s MB, your file is %.1f MB.", limit.String(), float64(size)/(1024*1024)),
		CurrentUsage:    size,
		Limit:           limit,
		UpgradeRequired: true,
	}
}

func StorageExceeded(used int64, limit models.Limit) *LimitError {
	return &LimitError{
		Title:           "Storage Limit Reached",
		Message:         "Your storage is full. Delete old files or upgrade your plan.",
		CurrentUsage:    used,
		Limit:           limit,
		UpgradeRequired: true,
	}
}
