package service

import "errors"

var (
	ErrNotFound              = errors.New("resource not found")
	ErrMissingRequiredFields = errors.New("missing required fields")
	ErrMissingContent        = errors.New("content is required")
	ErrInvalidSlug           = errors.New("invalid slug")
	ErrSlugTaken             = errors.New("slug is already in use")
	ErrUnknownSection        = errors.New("unknown site section")
	ErrInvalidContentType    = errors.New("unsupported content type")
	ErrVersionNotFound       = errors.New("content version not found")
	ErrCorruptVersion        = errors.New("stored version snapshot is corrupt")

	ErrInvalidBackup       = errors.New("invalid backup archive")
	ErrBackupVersion       = errors.New("unsupported backup schema version")
	ErrBackupNotRestorable = errors.New("backup is not restorable")
	ErrChecksumMismatch    = errors.New("backup checksum mismatch")
	ErrInvalidBackupType   = errors.New("invalid backup type")
	ErrInvalidSchedule     = errors.New("invalid backup schedule")

	ErrImportTooLarge    = errors.New("import file exceeds the maximum allowed size")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrInvalidImport     = errors.New("invalid import file")
	ErrImportAborted     = errors.New("import aborted")

	ErrInvalidUpload = errors.New("invalid upload")
)

// ValidationError carries a user facing message for a rejected request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func newValidationError(message string) error {
	return &ValidationError{Message: message}
}
