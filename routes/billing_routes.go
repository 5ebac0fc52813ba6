package routes

import (
	"github.com/gin-gonic/gin"

	"pdfdesk/controllers"
)

func BillingRoutes(r *gin.RouterGroup, deps *Dependencies, requireAuth gin.HandlerFunc) {
	creditController := controllers.NewCreditController(deps.Credits)
	paymentController := controllers.NewPaymentController(deps.Payments)
	subscriptionController := controllers.NewSubscriptionController(deps.Subscriptions)

	credits := r.Group("/credits")
	credits.Use(requireAuth)
	{
		credits.GET("", creditController.GetAccount)
		credits.PUT("/priority", creditController.SetPriority)
		credits.GET("/history", creditController.GetHistory)
	}

	topup := r.Group("/topup")
	{
		topup.GET("/packages", paymentController.GetPackages)
		topup.POST("/orders", requireAuth, paymentController.CreateTopupOrder)
		topup.POST("/verify", requireAuth, paymentController.Verify)
	}

	payments := r.Group("/payments")
	{
		// Webhook endpoint for the payment processor, authenticated by signature
		payments.POST("/webhook", paymentController.Webhook)

		protected := payments.Group("")
		protected.Use(requireAuth)
		{
			protected.POST("/subscription", paymentController.CreateSubscriptionOrder)
			protected.POST("/verify", paymentController.Verify)
			protected.GET("/history", paymentController.GetHistory)
			protected.GET("/auto-renewal/status", subscriptionController.GetAutoRenewal)
			protected.POST("/auto-renewal/toggle", subscriptionController.ToggleAutoRenewal)
			protected.GET("/:id/invoice", paymentController.GetInvoice)
		}
	}
}
