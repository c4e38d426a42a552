package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/repository"
	"portfolio-admin-backend/pkg/cache"
	"portfolio-admin-backend/pkg/logger"
	"portfolio-admin-backend/pkg/utils"
	"portfolio-admin-backend/pkg/validator"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const mediaURLPrefix = "/uploads/"

// MediaService stores uploaded images in the upload directory and tracks
// them as media_assets rows.
type MediaService struct {
	uploadDir string
	maxSize   int64
	repo      repository.EntityRepository[models.MediaAsset]
	audit     *AuditService
	cache     *cache.Cache
}

func NewMediaService(uploadDir string, maxSize int64, repo repository.EntityRepository[models.MediaAsset], audit *AuditService, cacheService *cache.Cache) *MediaService {
	if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
		if err := os.MkdirAll(uploadDir, 0o755); err != nil {
			logger.Error(err, "Failed to create upload directory", map[string]interface{}{"path": uploadDir})
		}
	}

	if maxSize <= 0 {
		maxSize = 10 << 20
	}

	return &MediaService{
		uploadDir: uploadDir,
		maxSize:   maxSize,
		repo:      repo,
		audit:     audit,
		cache:     cacheService,
	}
}

func (s *MediaService) List(offset, limit int) ([]models.MediaAsset, int64, error) {
	assets, total, err := s.repo.GetAll(offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list media: %w", err)
	}
	if assets == nil {
		assets = []models.MediaAsset{}
	}
	return assets, total, nil
}

// Upload validates an image upload, writes it under a slugged unique name
// and records it.
func (s *MediaService) Upload(file *multipart.FileHeader, alt string, actor models.Actor) (*models.MediaAsset, error) {
	asset, err := s.upload(file, alt)
	resourceID := ""
	if asset != nil {
		resourceID = strconv.FormatUint(uint64(asset.ID), 10)
	}
	s.audit.Track(actor, "upload", "media", resourceID, models.SeverityLow, err, nil)
	if err != nil {
		return nil, err
	}
	_ = s.cache.InvalidateAnalytics()
	return asset, nil
}

func (s *MediaService) upload(file *multipart.FileHeader, alt string) (*models.MediaAsset, error) {
	if file == nil {
		return nil, fmt.Errorf("%w: file is required", ErrInvalidUpload)
	}
	if !validator.ValidateFileSize(file.Size, s.maxSize) {
		return nil, fmt.Errorf("%w: file size must be between 1 byte and %d bytes", ErrInvalidUpload, s.maxSize)
	}
	if !validator.ValidateImageExtension(file.Filename) {
		return nil, fmt.Errorf("%w: only jpg, png, gif, webp and svg images are allowed", ErrInvalidUpload)
	}

	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	head = head[:n]

	mimeType := validator.DetectFileType(head)
	if !validator.ValidateImageContentType(mimeType) {
		return nil, fmt.Errorf("%w: file content is not a supported image", ErrInvalidUpload)
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	filename := s.generateFilename(file.Filename, ext)
	filePath := filepath.Join(s.uploadDir, filename)

	dst, err := os.Create(filePath)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(dst, io.MultiReader(bytes.NewReader(head), src)); err != nil {
		dst.Close()
		os.Remove(filePath)
		return nil, err
	}
	if err := dst.Close(); err != nil {
		os.Remove(filePath)
		return nil, err
	}

	asset := &models.MediaAsset{
		Filename:     filename,
		OriginalName: validator.SanitizeFilename(filepath.Base(file.Filename)),
		URL:          mediaURLPrefix + filename,
		MimeType:     mimeType,
		Size:         file.Size,
		Alt:          validator.SanitizeString(alt),
	}
	if err := s.repo.Create(asset); err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to record media: %w", err)
	}

	return asset, nil
}

func (s *MediaService) UpdateAlt(id uint, alt string, actor models.Actor) (*models.MediaAsset, error) {
	asset, err := s.repo.GetByID(id)
	if err == nil {
		asset.Alt = validator.SanitizeString(alt)
		err = s.repo.Update(asset)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrNotFound
	}
	s.audit.Track(actor, "update", "media", strconv.FormatUint(uint64(id), 10), models.SeverityLow, err, nil)
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// Delete removes the media row and its file.
func (s *MediaService) Delete(id uint, actor models.Actor) error {
	err := s.delete(id)
	s.audit.Track(actor, "delete", "media", strconv.FormatUint(uint64(id), 10), models.SeverityMedium, err, nil)
	if err == nil {
		_ = s.cache.InvalidateAnalytics()
	}
	return err
}

func (s *MediaService) delete(id uint) error {
	asset, err := s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := s.repo.Delete(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	return s.removeFile(asset.Filename)
}

func (s *MediaService) removeFile(name string) error {
	filename := filepath.Base(name)
	uploadDirAbs, err := filepath.Abs(s.uploadDir)
	if err != nil {
		return err
	}
	filePathAbs, err := filepath.Abs(filepath.Join(s.uploadDir, filename))
	if err != nil {
		return err
	}
	if !strings.HasPrefix(filePathAbs, uploadDirAbs+string(filepath.Separator)) {
		return errors.New("invalid file path")
	}

	if err := os.Remove(filePathAbs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *MediaService) generateFilename(originalName, ext string) string {
	baseName := strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))
	cleaned := utils.GenerateSlug(strings.ReplaceAll(baseName, "_", " "))
	if cleaned == "" {
		cleaned = uuid.New().String()
	}

	candidate := cleaned + ext
	for i := 1; s.fileExists(candidate); i++ {
		if i >= 1000 {
			return uuid.New().String() + ext
		}
		candidate = fmt.Sprintf("%s-%d%s", cleaned, i, ext)
	}
	return candidate
}

func (s *MediaService) fileExists(name string) bool {
	_, err := os.Stat(filepath.Join(s.uploadDir, name))
	return err == nil
}
