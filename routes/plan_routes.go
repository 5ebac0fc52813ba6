package routes

import (
	"github.com/gin-gonic/gin"

	"pdfdesk/controllers"
)

func PlanRoutes(r *gin.RouterGroup, deps *Dependencies, requireAuth gin.HandlerFunc) {
	planController := controllers.NewPlanController(deps.Plans)
	usageController := controllers.NewUsageController(deps.Quota)

	// Public plan routes
	plans := r.Group("/plans")
	{
		plans.GET("", planController.GetPlans)
		plans.GET("/:slug", planController.GetPlan)
	}

	usage := r.Group("/usage")
	usage.Use(requireAuth)
	{
		usage.GET("/stats", usageController.GetStats)
		usage.GET("/limits/:category", usageController.CheckLimit)
	}
}
