package controllers

import (
	"github.com/gin-gonic/gin"

	"pdfdesk/middleware"
	"pdfdesk/models"
	"pdfdesk/services"
	"pdfdesk/utils"
)

type UsageController struct {
	quotaService *services.QuotaService
}

func NewUsageController(quotaService *services.QuotaService) *UsageController {
	return &UsageController{quotaService: quotaService}
}

// GetStats returns per-category usage, limits and top-up balances
func (uc *UsageController) GetStats(c *gin.Context) {
	stats, err := uc.quotaService.Stats(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Usage retrieved successfully", gin.H{
		"stats": stats,
		"storage": gin.H{
			"used":      utils.FormatFileSize(stats.StorageUsed),
			"limit":     storageLabel(stats.StorageLimit),
			"unlimited": stats.StorageLimit.Unlimited,
		},
	})
}

// CheckLimit reports whether one more operation in a category is allowed.
// A refusal is rendered as the deny body.
func (uc *UsageController) CheckLimit(c *gin.Context) {
	category, ok := models.ParseCategory(c.Param("category"))
	if !ok {
		utils.BadRequestResponse(c, "Unknown tool category")
		return
	}

	decision, err := uc.quotaService.Check(c.Request.Context(), middleware.CurrentUser(c), category)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Operation allowed", decision)
}

func storageLabel(limit models.Limit) string {
	if limit.Unlimited {
		return "unlimited"
	}
	return utils.FormatFileSize(limit.Max)
}
