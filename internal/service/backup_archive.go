package service

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"portfolio-admin-backend/internal/repository"
	"portfolio-admin-backend/pkg/logger"

	"gorm.io/gorm"
)

const (
	backupSchemaVersion = "1"
	backupApplication   = "portfolio-admin"

	archiveManifestName = "manifest.json"
	archiveDataDir      = "data/"
	archiveUploadsDir   = "uploads/"
)

// archiveManifest is the manifest.json entry of a backup or export archive.
type archiveManifest struct {
	SchemaVersion string         `json:"schema_version"`
	Application   string         `json:"application"`
	BackupID      string         `json:"backup_id,omitempty"`
	Type          string         `json:"type,omitempty"`
	GeneratedAt   time.Time      `json:"generated_at"`
	Tables        []string       `json:"tables"`
	Counts        map[string]int `json:"counts"`
	Uploads       []string       `json:"uploads,omitempty"`
}

// tableSnapshot holds the JSON rows of every selected table.
type tableSnapshot struct {
	Tables []string
	Data   map[string]json.RawMessage
	Counts map[string]int
}

func (s tableSnapshot) RecordCount() int {
	total := 0
	for _, count := range s.Counts {
		total += count
	}
	return total
}

func snapshotTables(db *gorm.DB, tables []repository.Table) (tableSnapshot, error) {
	snapshot := tableSnapshot{
		Tables: make([]string, 0, len(tables)),
		Data:   make(map[string]json.RawMessage, len(tables)),
		Counts: make(map[string]int, len(tables)),
	}

	for _, table := range tables {
		data, count, err := table.Dump(db)
		if err != nil {
			return snapshot, err
		}
		snapshot.Tables = append(snapshot.Tables, table.Name())
		snapshot.Data[table.Name()] = data
		snapshot.Counts[table.Name()] = count
	}

	return snapshot, nil
}

func writeArchive(w io.Writer, manifest archiveManifest, snapshot tableSnapshot, uploadDir string) error {
	writer := zip.NewWriter(w)

	manifest.SchemaVersion = backupSchemaVersion
	manifest.Application = backupApplication
	manifest.Tables = snapshot.Tables
	manifest.Counts = snapshot.Counts

	if err := writeJSONEntry(writer, archiveManifestName, manifest, manifest.GeneratedAt); err != nil {
		writer.Close()
		return err
	}

	for _, name := range snapshot.Tables {
		header := &zip.FileHeader{Name: archiveDataDir + name + ".json", Method: zip.Deflate}
		header.SetModTime(manifest.GeneratedAt)
		entry, err := writer.CreateHeader(header)
		if err != nil {
			writer.Close()
			return fmt.Errorf("failed to create archive entry for %s: %w", name, err)
		}
		if _, err := entry.Write(snapshot.Data[name]); err != nil {
			writer.Close()
			return fmt.Errorf("failed to write %s to archive: %w", name, err)
		}
	}

	if err := writeUploads(writer, uploadDir, manifest.Uploads); err != nil {
		writer.Close()
		return err
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalise archive: %w", err)
	}
	return nil
}

func writeJSONEntry(writer *zip.Writer, name string, value interface{}, modTime time.Time) error {
	header := &zip.FileHeader{Name: name, Method: zip.Deflate}
	header.SetModTime(modTime)
	w, err := writer.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create %s entry: %w", name, err)
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return nil
}

func listUploads(uploadDir string) ([]string, error) {
	uploadDir = strings.TrimSpace(uploadDir)
	if uploadDir == "" {
		return nil, nil
	}

	info, err := os.Stat(uploadDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to inspect upload directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("upload path is not a directory")
	}

	files := make([]string, 0)
	err = filepath.WalkDir(uploadDir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(uploadDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate uploads: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func writeUploads(writer *zip.Writer, uploadDir string, uploads []string) error {
	base := strings.TrimSpace(uploadDir)
	if len(uploads) == 0 || base == "" {
		return nil
	}

	for _, rel := range uploads {
		absPath := filepath.Join(base, filepath.FromSlash(rel))
		info, err := os.Stat(absPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to read upload file info: %w", err)
		}
		if !info.Mode().IsRegular() {
			continue
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return fmt.Errorf("failed to prepare archive header: %w", err)
		}
		header.Name = path.Join("uploads", rel)
		header.Method = zip.Deflate

		entry, err := writer.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("failed to create archive entry for upload: %w", err)
		}
		file, err := os.Open(absPath)
		if err != nil {
			return fmt.Errorf("failed to open upload file: %w", err)
		}
		_, err = io.Copy(entry, file)
		file.Close()
		if err != nil {
			return fmt.Errorf("failed to write upload file to archive: %w", err)
		}
	}
	return nil
}

// openedArchive is a parsed backup or export archive.
type openedArchive struct {
	reader   *zip.Reader
	Manifest archiveManifest
	Tables   map[string]json.RawMessage
}

func openArchive(readerAt io.ReaderAt, size int64) (*openedArchive, error) {
	reader, err := zip.NewReader(readerAt, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}

	archive := &openedArchive{reader: reader, Tables: make(map[string]json.RawMessage)}

	var manifestFound bool
	for _, file := range reader.File {
		switch {
		case file.Name == archiveManifestName:
			if err := readJSONEntry(file, &archive.Manifest); err != nil {
				return nil, err
			}
			manifestFound = true
		case strings.HasPrefix(file.Name, archiveDataDir) && strings.HasSuffix(file.Name, ".json"):
			name := strings.TrimSuffix(strings.TrimPrefix(file.Name, archiveDataDir), ".json")
			data, err := readEntry(file)
			if err != nil {
				return nil, err
			}
			archive.Tables[name] = data
		}
	}

	if !manifestFound || archive.Manifest.SchemaVersion == "" {
		return nil, ErrInvalidBackup
	}
	if archive.Manifest.SchemaVersion != backupSchemaVersion {
		return nil, ErrBackupVersion
	}
	for _, name := range archive.Manifest.Tables {
		if _, ok := archive.Tables[name]; !ok {
			return nil, fmt.Errorf("%w: missing data for table %s", ErrInvalidBackup, name)
		}
	}

	return archive, nil
}

func readEntry(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", file.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func readJSONEntry(file *zip.File, dest interface{}) error {
	data, err := readEntry(file)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: failed to decode %s: %v", ErrInvalidBackup, file.Name, err)
	}
	return nil
}

func (a *openedArchive) HasUploads() bool {
	for _, file := range a.reader.File {
		if strings.HasPrefix(file.Name, archiveUploadsDir) && !file.FileInfo().IsDir() {
			return true
		}
	}
	return false
}

// ExtractUploads writes the uploads/ entries into a new temporary directory.
func (a *openedArchive) ExtractUploads() (string, int, error) {
	tempDir, err := os.MkdirTemp("", "portfolio-uploads-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temporary uploads directory: %w", err)
	}

	count := 0
	for _, file := range a.reader.File {
		if !strings.HasPrefix(file.Name, archiveUploadsDir) {
			continue
		}
		relPath := path.Clean(strings.TrimPrefix(file.Name, archiveUploadsDir))
		if relPath == "." || relPath == "" {
			continue
		}
		for _, segment := range strings.Split(relPath, "/") {
			if segment == ".." || segment == "" {
				return tempDir, count, fmt.Errorf("%w: invalid upload path %s", ErrInvalidBackup, file.Name)
			}
		}
		targetPath := filepath.Join(tempDir, filepath.FromSlash(relPath))

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return tempDir, count, fmt.Errorf("failed to create upload directory: %w", err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return tempDir, count, fmt.Errorf("failed to prepare upload destination: %w", err)
		}

		if err := extractFile(file, targetPath); err != nil {
			return tempDir, count, err
		}
		count++
	}

	return tempDir, count, nil
}

func extractFile(file *zip.File, targetPath string) error {
	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open upload from archive: %w", err)
	}
	defer rc.Close()

	mode := file.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}

	dst, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(dst, rc); err != nil {
		dst.Close()
		return fmt.Errorf("failed to write upload file: %w", err)
	}
	return dst.Close()
}

// stageUploads swaps the extracted uploads into place. The previous
// directory is moved aside and its path returned so it can be removed or
// put back.
func stageUploads(uploadDir, tempDir string) (string, error) {
	base := strings.TrimSpace(uploadDir)
	if base == "" {
		return "", nil
	}

	previous := ""
	if _, err := os.Stat(base); err == nil {
		previous = fmt.Sprintf("%s.bak-%s", base, time.Now().UTC().Format("20060102-150405"))
		if err := os.Rename(base, previous); err != nil {
			return "", fmt.Errorf("failed to move existing uploads aside: %w", err)
		}
	}

	if tempDir == "" {
		if err := os.MkdirAll(base, 0o755); err != nil {
			rollbackUploads(base, previous)
			return "", fmt.Errorf("failed to prepare empty uploads directory: %w", err)
		}
		return previous, nil
	}

	if err := os.Rename(tempDir, base); err != nil {
		if err := copyDirectory(tempDir, base); err != nil {
			rollbackUploads(base, previous)
			return "", fmt.Errorf("failed to apply uploads: %w", err)
		}
		if removeErr := os.RemoveAll(tempDir); removeErr != nil {
			logger.Warn("Failed to remove temporary uploads directory", map[string]interface{}{"path": tempDir, "error": removeErr.Error()})
		}
	}

	return previous, nil
}

func rollbackUploads(base, previous string) {
	if base != "" {
		os.RemoveAll(base)
	}
	if previous != "" {
		if err := os.Rename(previous, base); err != nil {
			logger.Warn("Failed to put previous uploads back", map[string]interface{}{"backup": previous, "error": err.Error()})
		}
	}
}

func copyDirectory(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return err
	}

	return filepath.Walk(src, func(current string, info fs.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, current)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("symlinks are not supported in uploads")
		}
		return copyFile(current, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
