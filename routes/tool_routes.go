package routes

import (
	"github.com/gin-gonic/gin"

	"pdfdesk/controllers"
	"pdfdesk/middleware"
)

func ToolRoutes(r *gin.RouterGroup, deps *Dependencies, requireAuth gin.HandlerFunc) {
	toolController := controllers.NewToolController(deps.Tools, deps.Jobs, deps.Recorder)
	editController := controllers.NewEditController(deps.EditSessions)
	bodyLimit := middleware.BodyLimitMiddleware(deps.Config.MaxUploadBytes())

	tools := r.Group("/tools")
	tools.Use(requireAuth)
	{
		tools.POST("/optimize/compress", bodyLimit, toolController.Compress)
		tools.POST("/organize/:action", bodyLimit, toolController.Organize)
		tools.POST("/security/:action", bodyLimit, toolController.Security)
		tools.POST("/convert/:target", bodyLimit, toolController.Convert)
		tools.POST("/ocr", bodyLimit, toolController.OCR)
		tools.POST("/edit/rename", bodyLimit, toolController.Rename)
		tools.POST("/advanced/automation", bodyLimit, toolController.Automation)

		tools.GET("/operations/:id/download", toolController.Download)
		tools.DELETE("/operations/:id", toolController.DeleteArtifact)
		tools.GET("/:tool/history", toolController.GetHistory)
	}

	edit := r.Group("/edit/sessions")
	edit.Use(requireAuth)
	{
		edit.POST("", bodyLimit, editController.CreateSession)
		edit.GET("/:id", editController.GetSession)
		edit.POST("/:id/edits", editController.ApplyEdits)
		edit.POST("/:id/export", editController.Export)
		edit.GET("/:id/download", editController.Download)
	}
}
