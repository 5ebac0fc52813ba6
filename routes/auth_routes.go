package routes

import (
	"github.com/gin-gonic/gin"

	"pdfdesk/controllers"
)

func AuthRoutes(r *gin.RouterGroup, deps *Dependencies, requireAuth gin.HandlerFunc) {
	authController := controllers.NewAuthController(deps.Auth)

	auth := r.Group("/auth")
	{
		auth.POST("/register", authController.Register)
		auth.POST("/login", authController.Login)
		auth.POST("/refresh", authController.RefreshToken)
		auth.GET("/me", requireAuth, authController.Me)
	}
}
