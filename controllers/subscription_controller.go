package controllers

import (
	"github.com/gin-gonic/gin"

	"pdfdesk/middleware"
	"pdfdesk/services"
	"pdfdesk/utils"
)

type SubscriptionController struct {
	subscriptionService *services.SubscriptionService
}

func NewSubscriptionController(subscriptionService *services.SubscriptionService) *SubscriptionController {
	return &SubscriptionController{subscriptionService: subscriptionService}
}

// GetAutoRenewal returns the renewal preference of the current subscription
func (sc *SubscriptionController) GetAutoRenewal(c *gin.Context) {
	status, err := sc.subscriptionService.AutoRenewal(c.Request.Context(), middleware.CurrentUser(c).ID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Auto renewal status retrieved successfully", status)
}

// ToggleAutoRenewal switches auto renewal on or off
func (sc *SubscriptionController) ToggleAutoRenewal(c *gin.Context) {
	status, err := sc.subscriptionService.ToggleAutoRenewal(c.Request.Context(), middleware.CurrentUser(c).ID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	message := "Auto renewal disabled"
	if status.AutoRenewal {
		message = "Auto renewal enabled"
	}
	utils.SuccessResponse(c, message, status)
}
