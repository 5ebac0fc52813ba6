package controllers

import (
	"github.com/gin-gonic/gin"

	"pdfdesk/middleware"
	"pdfdesk/models"
	"pdfdesk/services"
	"pdfdesk/utils"
)

type CreditController struct {
	creditService *services.CreditService
}

func NewCreditController(creditService *services.CreditService) *CreditController {
	return &CreditController{creditService: creditService}
}

// GetAccount returns the user's top-up credit balances
func (cc *CreditController) GetAccount(c *gin.Context) {
	account, err := cc.creditService.Account(c.Request.Context(), middleware.CurrentUser(c).ID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Credits retrieved successfully", account)
}

// SetPriority changes which pool is drawn first
func (cc *CreditController) SetPriority(c *gin.Context) {
	var req models.PriorityRequest
	if !bindJSON(c, &req) {
		return
	}

	account, err := cc.creditService.SetPriority(c.Request.Context(), middleware.CurrentUser(c).ID, req.Priority)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Credit priority updated", account)
}

// GetHistory returns top-up purchases, newest first
func (cc *CreditController) GetHistory(c *gin.Context) {
	history, err := cc.creditService.History(c.Request.Context(), middleware.CurrentUser(c).ID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Purchase history retrieved successfully", history)
}
