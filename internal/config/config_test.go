package config

import (
	"os"
	"testing"
	"time"
)

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	original, existed := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset %s: %v", key, err)
	}
	t.Cleanup(func() {
		if !existed {
			_ = os.Unsetenv(key)
			return
		}
		_ = os.Setenv(key, original)
	})
}

func TestImportLimitDefaultsTo100MB(t *testing.T) {
	unsetEnv(t, "MAX_IMPORT_SIZE")

	cfg := New()
	if cfg.MaxImportSize != 100*1024*1024 {
		t.Fatalf("expected 100MB import limit, got %d", cfg.MaxImportSize)
	}
}

func TestMinIOStorageFallsBackToLocalWithoutEndpoint(t *testing.T) {
	t.Setenv("BACKUP_STORAGE", "MinIO")
	unsetEnv(t, "MINIO_ENDPOINT")

	cfg := New()
	if cfg.BackupStorage != "local" {
		t.Fatalf("expected local backup storage without endpoint, got %q", cfg.BackupStorage)
	}
}

func TestMinIOStorageKeptWithEndpoint(t *testing.T) {
	t.Setenv("BACKUP_STORAGE", "minio")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")

	cfg := New()
	if cfg.BackupStorage != "minio" {
		t.Fatalf("expected minio backup storage, got %q", cfg.BackupStorage)
	}
}

func TestAuditFlushIntervalParsesDuration(t *testing.T) {
	t.Setenv("AUDIT_FLUSH_INTERVAL", "750ms")

	cfg := New()
	if cfg.AuditFlushInterval != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %s", cfg.AuditFlushInterval)
	}

	t.Setenv("AUDIT_FLUSH_INTERVAL", "soon")
	cfg = New()
	if cfg.AuditFlushInterval != 2*time.Second {
		t.Fatalf("expected default interval for invalid value, got %s", cfg.AuditFlushInterval)
	}
}

func TestCORSOriginsAreTrimmed(t *testing.T) {
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg := New()
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "https://a.example" || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %#v", cfg.CORSOrigins)
	}
}

func TestDatabaseURLOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/x")

	cfg := New()
	if cfg.DatabaseURL != "postgres://u:p@db:5432/x" {
		t.Fatalf("expected DATABASE_URL override, got %q", cfg.DatabaseURL)
	}
}
