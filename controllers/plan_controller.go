package controllers

import (
	"github.com/gin-gonic/gin"

	"pdfdesk/services"
	"pdfdesk/utils"
)

type PlanController struct {
	planService *services.PlanService
}

func NewPlanController(planService *services.PlanService) *PlanController {
	return &PlanController{planService: planService}
}

// GetPlans returns all active plans ordered for display
func (pc *PlanController) GetPlans(c *gin.Context) {
	plans, err := pc.planService.List(c.Request.Context())
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Plans retrieved successfully", plans)
}

// GetPlan returns a plan by slug
func (pc *PlanController) GetPlan(c *gin.Context) {
	plan, err := pc.planService.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Plan retrieved successfully", plan)
}
