package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"portfolio-admin-backend/internal/middleware"
	"portfolio-admin-backend/internal/service"

	"github.com/gin-gonic/gin"
)

// multipart framing allowance on top of the import limit
const multipartOverhead = 1 << 20

type DataHandler struct {
	service *service.DataTransferService
}

func NewDataHandler(svc *service.DataTransferService) *DataHandler {
	return &DataHandler{service: svc}
}

func splitTables(value string) []string {
	var tables []string
	for _, name := range strings.Split(value, ",") {
		if name = strings.TrimSpace(name); name != "" {
			tables = append(tables, name)
		}
	}
	return tables
}

func (h *DataHandler) Export(c *gin.Context) {
	artifact, err := h.service.Export(c.Request.Context(), service.ExportOptions{
		Tables:            splitTables(c.Query("tables")),
		IncludeMedia:      queryBool(c, "includeMedia", false),
		IncludeSystemData: queryBool(c, "includeSystemData", false),
		Compression:       queryBool(c, "compression", false),
		Format:            c.DefaultQuery("format", service.FormatJSON),
		Actor:             middleware.Actor(c),
	})
	if err != nil {
		respondError(c, err, "Failed to export data")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", artifact.Filename))
	c.Header("X-Export-Records", fmt.Sprint(artifact.Records))
	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}

func (h *DataHandler) Import(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.service.MaxImportSize()+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, service.ErrImportTooLarge, "")
			return
		}
		respondFailure(c, http.StatusBadRequest, CodeMissingRequiredFields, "Import file is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondFailure(c, http.StatusBadRequest, CodeInvalidRequest, "Failed to open uploaded file")
		return
	}
	defer file.Close()

	result, err := h.service.Import(c.Request.Context(), fileHeader.Filename, file, fileHeader.Size, service.ImportOptions{
		Overwrite:    queryBool(c, "overwrite", false),
		ValidateData: queryBool(c, "validateData", true),
		CreateBackup: queryBool(c, "createBackup", false),
		SkipErrors:   queryBool(c, "skipErrors", false),
		Actor:        middleware.Actor(c),
	})
	if err != nil {
		respondError(c, err, "Failed to import data")
		return
	}

	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, Envelope{
			Success: false,
			Data:    result,
			Error:   &APIError{Code: CodeImportAborted, Message: result.Message},
		})
		return
	}
	respondMessage(c, http.StatusOK, result, result.Message)
}
