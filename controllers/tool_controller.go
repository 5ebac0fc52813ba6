package controllers

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"

	"pdfdesk/middleware"
	"pdfdesk/models"
	"pdfdesk/services"
	"pdfdesk/utils"
)

type ToolController struct {
	toolService *services.ToolService
	jobs        *services.ToolJobs
	recorder    *services.OperationRecorder
}

func NewToolController(toolService *services.ToolService, jobs *services.ToolJobs, recorder *services.OperationRecorder) *ToolController {
	return &ToolController{toolService: toolService, jobs: jobs, recorder: recorder}
}

type toolPayload struct {
	models.ToolResponse
	ReductionPercent float64                `json:"reductionPercent,omitempty"`
	Extra            map[string]interface{} `json:"extra,omitempty"`
}

// Compress reduces the size of a PDF
func (tc *ToolController) Compress(c *gin.Context) {
	file, ok := readUpload(c)
	if !ok {
		return
	}
	tc.run(c, tc.jobs.Compress(file))
}

// Organize handles merge, rotate, remove-pages and extract-pages
func (tc *ToolController) Organize(c *gin.Context) {
	files, ok := readUploads(c)
	if !ok {
		return
	}
	job, err := tc.jobs.Organize(c.Param("action"), files, formParams(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	tc.run(c, job)
}

// Security encrypts or decrypts a PDF
func (tc *ToolController) Security(c *gin.Context) {
	file, ok := readUpload(c)
	if !ok {
		return
	}
	job, err := tc.jobs.Security(c.Param("action"), file, formParams(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	tc.run(c, job)
}

// Convert converts a PDF to another format through the converter service
func (tc *ToolController) Convert(c *gin.Context) {
	file, ok := readUpload(c)
	if !ok {
		return
	}
	job, err := tc.jobs.Convert(c.Param("target"), file)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	tc.run(c, job)
}

// OCR extracts text from a scanned PDF
func (tc *ToolController) OCR(c *gin.Context) {
	file, ok := readUpload(c)
	if !ok {
		return
	}
	tc.run(c, tc.jobs.OCR(file, c.PostForm("language")))
}

// Rename renames a batch of files and returns them as a ZIP archive
func (tc *ToolController) Rename(c *gin.Context) {
	files, ok := readUploads(c)
	if !ok {
		return
	}
	tc.run(c, tc.jobs.Rename(files, c.PostForm("pattern")))
}

// Automation runs an ordered pipeline of steps on one document
func (tc *ToolController) Automation(c *gin.Context) {
	file, ok := readUpload(c)
	if !ok {
		return
	}

	var req models.AutomationRequest
	if err := json.Unmarshal([]byte(c.PostForm("steps")), &req.Steps); err != nil {
		utils.BadRequestResponse(c, "steps must be a JSON array")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, err)
		return
	}

	job, err := tc.jobs.Automation(file, req.Steps)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	tc.run(c, job)
}

// GetHistory lists the user's operations for one tool
func (tc *ToolController) GetHistory(c *gin.Context) {
	tool := models.Tool(c.Param("tool"))
	if !tool.Valid() {
		utils.NotFoundResponse(c, "Unknown tool")
		return
	}
	page, limit := pageParams(c)

	ops, total, err := tc.recorder.History(c.Request.Context(), middleware.CurrentUser(c).ID, tool, page, limit)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.PaginatedResponse(c, "History retrieved successfully", ops, page, limit, total)
}

// Download returns the artifact of a completed operation
func (tc *ToolController) Download(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	dl, err := tc.toolService.Download(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	sendDownload(c, dl)
}

// DeleteArtifact removes an operation's stored output before it expires
func (tc *ToolController) DeleteArtifact(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	if err := tc.toolService.DeleteArtifact(c.Request.Context(), middleware.CurrentUser(c), id); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, "File deleted successfully", nil)
}

func (tc *ToolController) run(c *gin.Context, job services.Job) {
	res, err := tc.toolService.Run(c.Request.Context(), middleware.CurrentUser(c), job)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "File processed successfully", newToolPayload(res))
}

func newToolPayload(res *services.ToolResult) toolPayload {
	op := res.Operation
	return toolPayload{
		ToolResponse: models.ToolResponse{
			OperationID:  op.ID.Hex(),
			DownloadURL:  fmt.Sprintf("/api/v1/tools/operations/%s/download", op.ID.Hex()),
			FileName:     op.OutputName,
			FileSize:     op.OutputSize,
			ChargedFrom:  res.Source,
			CurrentUsage: res.Used,
			Limit:        res.Limit,
		},
		ReductionPercent: op.ReductionPercent,
		Extra:            res.Extra,
	}
}
