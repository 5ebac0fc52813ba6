package controllers

import (
	"github.com/gin-gonic/gin"

	"pdfdesk/middleware"
	"pdfdesk/models"
	"pdfdesk/services"
	"pdfdesk/utils"
)

type EditController struct {
	editService *services.EditSessionService
}

func NewEditController(editService *services.EditSessionService) *EditController {
	return &EditController{editService: editService}
}

// CreateSession uploads a document and opens an edit session
func (ec *EditController) CreateSession(c *gin.Context) {
	file, ok := readUpload(c)
	if !ok {
		return
	}

	session, err := ec.editService.Create(c.Request.Context(), middleware.CurrentUser(c), file)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, "Edit session created", session)
}

// GetSession returns the session state
func (ec *EditController) GetSession(c *gin.Context) {
	session, err := ec.editService.Get(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Edit session retrieved", session)
}

// ApplyEdits replaces the pending edit set
func (ec *EditController) ApplyEdits(c *gin.Context) {
	var req models.EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request data")
		return
	}

	session, err := ec.editService.ApplyEdits(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), req.Edits)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Edits saved", session)
}

// Export renders the edits into a new document. This is the metered step.
func (ec *EditController) Export(c *gin.Context) {
	session, res, err := ec.editService.Export(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Document exported", gin.H{
		"session": session,
		"result":  newToolPayload(res),
	})
}

// Download returns the last exported document
func (ec *EditController) Download(c *gin.Context) {
	dl, err := ec.editService.Download(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	sendDownload(c, dl)
}
