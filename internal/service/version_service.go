package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"sync"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/repository"
	"portfolio-admin-backend/pkg/logger"

	"github.com/klauspost/compress/gzip"
	"gorm.io/gorm"
)

// Fields that change on every save and never count as an edit.
var untrackedFields = map[string]struct{}{
	"id":         {},
	"created_at": {},
	"updated_at": {},
}

// VersionRestorer writes a stored snapshot back over the live record and
// appends the resulting version.
type VersionRestorer interface {
	RestoreSnapshot(id uint, snapshot []byte, fromVersion int, actor models.Actor) (interface{}, error)
}

type VersionDetail struct {
	models.ContentVersion
	Snapshot json.RawMessage `json:"snapshot"`
}

type VersionService struct {
	versionRepo       repository.VersionRepository
	compressThreshold int

	mu        sync.RWMutex
	restorers map[models.ContentType]VersionRestorer
}

func NewVersionService(versionRepo repository.VersionRepository, compressThreshold int) *VersionService {
	return &VersionService{
		versionRepo:       versionRepo,
		compressThreshold: compressThreshold,
		restorers:         make(map[models.ContentType]VersionRestorer),
	}
}

func (s *VersionService) RegisterRestorer(contentType models.ContentType, restorer VersionRestorer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restorers[contentType] = restorer
}

// Snapshot returns the JSON form of item and its decoded field map.
func Snapshot(item interface{}) ([]byte, map[string]interface{}, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	fields := make(map[string]interface{})
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return data, fields, nil
}

// Diff lists field level changes from before to after, sorted by field name.
// A nil before marks every field as added.
func Diff(before, after map[string]interface{}) models.FieldChanges {
	names := make(map[string]struct{}, len(before)+len(after))
	for name := range before {
		names[name] = struct{}{}
	}
	for name := range after {
		names[name] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		if _, skip := untrackedFields[name]; skip {
			continue
		}
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	changes := models.FieldChanges{}
	for _, name := range sorted {
		oldValue, hadOld := before[name]
		newValue, hasNew := after[name]

		switch {
		case before == nil || (!hadOld && hasNew):
			changes = append(changes, models.FieldChange{Field: name, NewValue: newValue, ChangeType: models.ChangeAdded})
		case hadOld && !hasNew:
			changes = append(changes, models.FieldChange{Field: name, OldValue: oldValue, ChangeType: models.ChangeRemoved})
		case !sameValue(oldValue, newValue):
			changes = append(changes, models.FieldChange{
				Field:      name,
				OldValue:   oldValue,
				NewValue:   newValue,
				ChangeType: models.ChangeModified,
			})
		}
	}
	return changes
}

// sameValue treats null and empty collections as equal.
func sameValue(a, b interface{}) bool {
	if isEmptyValue(a) && isEmptyValue(b) {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func isEmptyValue(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case []interface{}:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	}
	return false
}

// Record appends a version of item inside tx. With a non-nil before and no
// changed fields nothing is written and nil is returned, unless force is set.
func (s *VersionService) Record(tx *gorm.DB, contentID uint, item models.Versionable, before map[string]interface{}, createdBy string, metadata models.JSONMap, force bool) (*models.ContentVersion, error) {
	data, after, err := Snapshot(item)
	if err != nil {
		return nil, err
	}

	changes := Diff(before, after)
	if before != nil && len(changes) == 0 && !force {
		return nil, nil
	}

	sum := sha256.Sum256(data)
	version := &models.ContentVersion{
		ContentType: item.VersionContentType(),
		ContentID:   contentID,
		Title:       item.VersionTitle(),
		Metadata:    metadata,
		Changes:     changes,
		CreatedBy:   createdBy,
		Checksum:    hex.EncodeToString(sum[:]),
		Size:        len(data),
	}

	if s.compressThreshold > 0 && len(data) > s.compressThreshold {
		compressed, err := compressSnapshot(data)
		if err != nil {
			return nil, err
		}
		version.Content = compressed
		version.Compressed = true
	} else {
		version.Content = string(data)
	}

	if err := s.versionRepo.WithTx(tx).Append(version); err != nil {
		return nil, fmt.Errorf("failed to store version: %w", err)
	}

	return version, nil
}

func (s *VersionService) History(contentType models.ContentType, contentID uint) ([]models.ContentVersion, error) {
	versions, err := s.versionRepo.List(contentType, contentID)
	if err != nil {
		return nil, err
	}
	if versions == nil {
		versions = []models.ContentVersion{}
	}
	return versions, nil
}

func (s *VersionService) GetVersion(contentType models.ContentType, contentID uint, number int) (*VersionDetail, error) {
	version, err := s.versionRepo.Get(contentType, contentID, number)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}

	snapshot, err := VersionSnapshot(version)
	if err != nil {
		return nil, err
	}

	return &VersionDetail{ContentVersion: *version, Snapshot: snapshot}, nil
}

func (s *VersionService) Compare(contentType models.ContentType, contentID uint, from, to int) (*models.VersionComparison, error) {
	fromVersion, err := s.GetVersion(contentType, contentID, from)
	if err != nil {
		return nil, err
	}
	toVersion, err := s.GetVersion(contentType, contentID, to)
	if err != nil {
		return nil, err
	}

	var before, after map[string]interface{}
	if err := json.Unmarshal(fromVersion.Snapshot, &before); err != nil {
		return nil, ErrCorruptVersion
	}
	if err := json.Unmarshal(toVersion.Snapshot, &after); err != nil {
		return nil, ErrCorruptVersion
	}
	if before == nil {
		before = map[string]interface{}{}
	}

	return &models.VersionComparison{
		ContentType: contentType,
		ContentID:   contentID,
		From:        from,
		To:          to,
		Changes:     Diff(before, after),
	}, nil
}

// RestoreVersion writes the snapshot of the given version back as the current
// record. The restore itself is appended as a new version.
func (s *VersionService) RestoreVersion(contentType models.ContentType, contentID uint, number int, actor models.Actor) (interface{}, error) {
	s.mu.RLock()
	restorer, ok := s.restorers[contentType]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidContentType
	}

	detail, err := s.GetVersion(contentType, contentID, number)
	if err != nil {
		return nil, err
	}

	restored, err := restorer.RestoreSnapshot(contentID, detail.Snapshot, number, actor)
	if err != nil {
		return nil, err
	}

	logger.Info("Content version restored", map[string]interface{}{
		"content_type": contentType,
		"content_id":   contentID,
		"version":      number,
		"actor":        actor.Label(),
	})

	return restored, nil
}

// VersionSnapshot returns the uncompressed snapshot of version and checks it
// against the stored checksum.
func VersionSnapshot(version *models.ContentVersion) ([]byte, error) {
	data := []byte(version.Content)
	if version.Compressed {
		decoded, err := decompressSnapshot(version.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptVersion, err)
		}
		data = decoded
	}

	if version.Checksum != "" {
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != version.Checksum {
			return nil, ErrCorruptVersion
		}
	}

	return data, nil
}

func compressSnapshot(data []byte) (string, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decompressSnapshot(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	reader, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
