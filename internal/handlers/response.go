package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"portfolio-admin-backend/internal/repository"
	"portfolio-admin-backend/internal/service"
	"portfolio-admin-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Error codes returned in the error envelope.
const (
	CodeMissingRequiredFields = "MISSING_REQUIRED_FIELDS"
	CodeMissingContent        = "MISSING_CONTENT"
	CodeValidation            = "VALIDATION_ERROR"
	CodeNotFound              = "NOT_FOUND"
	CodeConflict              = "CONFLICT"
	CodeIntegrity             = "INTEGRITY_ERROR"
	CodeImportTooLarge        = "IMPORT_TOO_LARGE"
	CodeImportAborted         = "IMPORT_ABORTED"
	CodeUnsupportedFormat     = "UNSUPPORTED_FORMAT"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeInternal              = "INTERNAL_ERROR"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

type Page struct {
	Items  interface{} `json:"items"`
	Total  int64       `json:"total"`
	Offset int         `json:"offset"`
	Limit  int         `json:"limit"`
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

func respondMessage(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, Envelope{Success: true, Data: data, Message: message})
}

func respondFailure(c *gin.Context, status int, code, message string) {
	c.JSON(status, Envelope{Success: false, Error: &APIError{Code: code, Message: message}})
}

// respondError maps a service error to a status and error code. Unknown
// errors are logged and reported with a generic message.
func respondError(c *gin.Context, err error, fallback string) {
	var validation *service.ValidationError

	switch {
	case errors.As(err, &validation):
		respondFailure(c, http.StatusBadRequest, CodeValidation, validation.Message)
	case errors.Is(err, service.ErrMissingRequiredFields):
		respondFailure(c, http.StatusBadRequest, CodeMissingRequiredFields, "Missing required fields")
	case errors.Is(err, service.ErrMissingContent):
		respondFailure(c, http.StatusBadRequest, CodeMissingContent, "Content is required")
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, service.ErrVersionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		respondFailure(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, service.ErrChecksumMismatch):
		respondFailure(c, http.StatusConflict, CodeIntegrity,
			"Backup integrity check failed: the stored checksum does not match the payload. Restore was refused.")
	case errors.Is(err, service.ErrCorruptVersion),
		errors.Is(err, service.ErrInvalidBackup),
		errors.Is(err, service.ErrBackupVersion):
		respondFailure(c, http.StatusUnprocessableEntity, CodeIntegrity, err.Error())
	case errors.Is(err, service.ErrBackupNotRestorable):
		respondFailure(c, http.StatusConflict, CodeConflict, err.Error())
	case errors.Is(err, service.ErrSlugTaken),
		errors.Is(err, repository.ErrVersionConflict):
		respondFailure(c, http.StatusConflict, CodeConflict, err.Error())
	case errors.Is(err, service.ErrImportTooLarge):
		respondFailure(c, http.StatusRequestEntityTooLarge, CodeImportTooLarge, err.Error())
	case errors.Is(err, service.ErrUnsupportedFormat):
		respondFailure(c, http.StatusBadRequest, CodeUnsupportedFormat, err.Error())
	case errors.Is(err, service.ErrInvalidSlug),
		errors.Is(err, service.ErrUnknownSection),
		errors.Is(err, service.ErrInvalidContentType),
		errors.Is(err, service.ErrInvalidBackupType),
		errors.Is(err, service.ErrInvalidSchedule),
		errors.Is(err, service.ErrInvalidImport),
		errors.Is(err, service.ErrInvalidUpload):
		respondFailure(c, http.StatusBadRequest, CodeValidation, err.Error())
	default:
		logger.FromContext(c.Request.Context()).WithError(err).Error(fallback)
		respondFailure(c, http.StatusInternalServerError, CodeInternal, fallback)
	}
}

func respondBindError(c *gin.Context, err error) {
	respondFailure(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		respondFailure(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// pagination reads offset and limit query parameters.
func pagination(c *gin.Context, defaultLimit, maxLimit int) (int, int) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return offset, limit
}

func queryBool(c *gin.Context, key string, fallback bool) bool {
	value, ok := c.GetQuery(key)
	if !ok {
		value, ok = c.GetPostForm(key)
	}
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
