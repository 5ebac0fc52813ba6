package controllers

import (
	"io"

	"github.com/gin-gonic/gin"

	"pdfdesk/middleware"
	"pdfdesk/models"
	"pdfdesk/services"
	"pdfdesk/utils"
)

const (
	signatureHeader = "Stripe-Signature"
	maxWebhookBytes = 64 << 10
)

type PaymentController struct {
	paymentService *services.PaymentService
}

func NewPaymentController(paymentService *services.PaymentService) *PaymentController {
	return &PaymentController{paymentService: paymentService}
}

// GetPackages lists the active top-up packages
func (pc *PaymentController) GetPackages(c *gin.Context) {
	packages, err := pc.paymentService.Packages(c.Request.Context())
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Packages retrieved successfully", packages)
}

// CreateTopupOrder starts a checkout for a top-up package
func (pc *PaymentController) CreateTopupOrder(c *gin.Context) {
	var req models.TopupOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := pc.paymentService.CreateTopupOrder(c.Request.Context(), middleware.CurrentUser(c), req.PackageID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, "Checkout created", checkoutView(p))
}

// CreateSubscriptionOrder starts a checkout for a paid plan
func (pc *PaymentController) CreateSubscriptionOrder(c *gin.Context) {
	var req models.SubscriptionOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := pc.paymentService.CreateSubscriptionOrder(c.Request.Context(), middleware.CurrentUser(c), req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, "Checkout created", checkoutView(p))
}

// Verify confirms a checkout after the gateway redirect. Used for both
// subscriptions and top-ups.
func (pc *PaymentController) Verify(c *gin.Context) {
	var req models.VerifyPaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := pc.paymentService.Verify(c.Request.Context(), middleware.CurrentUser(c), req.SessionID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Payment verified", p)
}

// Webhook receives signed gateway events
func (pc *PaymentController) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		utils.BadRequestResponse(c, "Could not read webhook payload")
		return
	}

	if err := pc.paymentService.HandleWebhook(c.Request.Context(), payload, c.GetHeader(signatureHeader)); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Webhook processed", gin.H{"received": true})
}

// GetHistory returns the user's payments, newest first
func (pc *PaymentController) GetHistory(c *gin.Context) {
	page, limit := pageParams(c)

	payments, total, err := pc.paymentService.History(c.Request.Context(), middleware.CurrentUser(c), page, limit)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.PaginatedResponse(c, "Payments retrieved successfully", payments, page, limit, total)
}

// GetInvoice returns the receipt of a settled payment
func (pc *PaymentController) GetInvoice(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	invoice, err := pc.paymentService.Invoice(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Invoice retrieved successfully", invoice)
}

func checkoutView(p *models.Payment) gin.H {
	return gin.H{
		"payment_id":     p.ID,
		"session_id":     p.TransactionID,
		"checkout_url":   p.CheckoutURL,
		"amount":         p.Amount,
		"currency":       p.Currency,
		"invoice_number": p.InvoiceNumber,
	}
}
