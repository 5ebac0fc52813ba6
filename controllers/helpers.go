package controllers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pdfdesk/processing"
	"pdfdesk/services"
	"pdfdesk/utils"
)

const (
	uploadField  = "files"
	maxPageLimit = 100
)

// bindJSON decodes and validates a request body, writing the error response
// itself when it fails.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, "Invalid request data")
		return false
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ValidationErrorResponse(c, err)
		return false
	}
	return true
}

func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := utils.StringToObjectID(c.Param(name))
	if err != nil {
		utils.NotFoundResponse(c, "")
		return primitive.NilObjectID, false
	}
	return id, true
}

// pageParams reads page and limit the same way the services clamp them.
func pageParams(c *gin.Context) (int, int) {
	page := utils.QueryInt(c.Query("page"), 1)
	limit := utils.QueryInt(c.Query("limit"), 20)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

// readUploads loads every file of the multipart field into memory.
func readUploads(c *gin.Context) ([]processing.NamedFile, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		utils.BadRequestResponse(c, "Expected a multipart upload")
		return nil, false
	}
	headers := form.File[uploadField]
	if len(headers) == 0 {
		utils.BadRequestResponse(c, fmt.Sprintf("No files uploaded in field %q", uploadField))
		return nil, false
	}

	files := make([]processing.NamedFile, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			utils.BadRequestResponse(c, "Could not read uploaded file")
			return nil, false
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			utils.BadRequestResponse(c, "Could not read uploaded file")
			return nil, false
		}
		files = append(files, processing.NamedFile{Name: utils.SanitizeFilename(h.Filename), Data: data})
	}
	return files, true
}

// readUpload is readUploads for tools that take exactly one document.
func readUpload(c *gin.Context) (processing.NamedFile, bool) {
	files, ok := readUploads(c)
	if !ok {
		return processing.NamedFile{}, false
	}
	if len(files) != 1 {
		utils.BadRequestResponse(c, "Upload exactly one file")
		return processing.NamedFile{}, false
	}
	return files[0], true
}

// formParams collects the non-file form fields.
func formParams(c *gin.Context) map[string]string {
	params := map[string]string{}
	if form, err := c.MultipartForm(); err == nil {
		for k, v := range form.Value {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
	}
	return params
}

// sendDownload redirects to a presigned URL or streams the artifact.
func sendDownload(c *gin.Context, dl *services.Download) {
	if dl.URL != "" {
		c.Redirect(http.StatusFound, dl.URL)
		return
	}
	defer dl.Reader.Close()

	op := dl.Operation
	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, utils.SanitizeFilename(op.OutputName)),
	}
	c.DataFromReader(http.StatusOK, op.OutputSize, op.MimeType, dl.Reader, headers)
}
