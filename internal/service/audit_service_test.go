package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/repository"
	"portfolio-admin-backend/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func seedAuditEvents(t *testing.T, env *testEnv, now time.Time) {
	t.Helper()

	today := now.Add(-2 * time.Hour)
	twoDaysAgo := now.AddDate(0, 0, -2)

	events := []models.AuditEvent{
		{Action: "create", Resource: "projects", UserEmail: "a@example.com", Success: true, Timestamp: today},
		{Action: "create", Resource: "projects", UserEmail: "a@example.com", Success: true, Timestamp: today},
		{Action: "create", Resource: "blog_posts", UserEmail: "a@example.com", Success: true, Timestamp: today},
		{Action: "create", Resource: "skills", UserEmail: "b@example.com", Success: true, Timestamp: today},
		{Action: "create", Resource: "tools", UserEmail: "b@example.com", Success: true, Timestamp: today},
		{Action: "update", Resource: "projects", UserEmail: "a@example.com", Success: true, Timestamp: today},
		{Action: "update", Resource: "projects", UserEmail: "a@example.com", Success: true, Timestamp: today},
		{Action: "backup.restore", Resource: "backup", UserEmail: "a@example.com", Severity: models.SeverityCritical, ErrorMessage: "checksum mismatch", Timestamp: today},
		{Action: "backup.restore", Resource: "backup", UserEmail: "b@example.com", Severity: models.SeverityHigh, ErrorMessage: "payload missing", Timestamp: today},
		{Action: "backup.restore", Resource: "backup", UserEmail: "b@example.com", Severity: models.SeverityHigh, ErrorMessage: "payload missing", Timestamp: twoDaysAgo},
	}
	for _, event := range events {
		env.audit.Record(event)
	}
}

func TestAuditSummaryAndTimeline(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	env.audit.now = func() time.Time { return now }
	seedAuditEvents(t, env, now)

	summary, err := env.audit.Summarize(30)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary.TotalEvents != 10 || summary.FailedEvents != 3 {
		t.Fatalf("unexpected totals %+v", summary)
	}
	if summary.FailureRate != 30 {
		t.Fatalf("expected failure rate 30, got %v", summary.FailureRate)
	}
	if summary.CriticalEvents != 1 || summary.RecentActivity != 9 {
		t.Fatalf("unexpected critical/recent counts %+v", summary)
	}
	if len(summary.TopActions) == 0 || summary.TopActions[0].Key != "create" || summary.TopActions[0].Count != 5 {
		t.Fatalf("unexpected top actions %+v", summary.TopActions)
	}
	if len(summary.TopUsers) == 0 || summary.TopUsers[0].Key != "a@example.com" {
		t.Fatalf("unexpected top users %+v", summary.TopUsers)
	}

	timeline, err := env.audit.Timeline(3)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(timeline) != 3 {
		t.Fatalf("expected 3 days, got %d", len(timeline))
	}
	want := []models.TimelinePoint{
		{Date: "2024-05-08", Events: 1, Failures: 1},
		{Date: "2024-05-09"},
		{Date: "2024-05-10", Events: 9, Failures: 2, Critical: 1},
	}
	for i, point := range timeline {
		if point != want[i] {
			t.Fatalf("day %d: expected %+v, got %+v", i, want[i], point)
		}
	}
}

func TestAuditFiltersSearchAndExport(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	seedAuditEvents(t, env, now)

	failed := false
	events, total, err := env.audit.ListEvents(models.AuditFilter{Success: &failed, UserEmail: "b@example.com"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(events) != 2 {
		t.Fatalf("expected 2 failed events for b, got %d", total)
	}

	found, err := env.audit.SearchEvents("CHECKSUM", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 || found[0].Severity != models.SeverityCritical {
		t.Fatalf("unexpected search result %+v", found)
	}

	var validation *ValidationError
	if _, err := env.audit.SearchEvents("   ", 10); !errors.As(err, &validation) {
		t.Fatalf("expected validation error for empty query, got %v", err)
	}

	export, err := env.audit.Export("csv", models.AuditFilter{Resource: "backup"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(export.Data)), "\n")
	if len(lines) != 4 || !strings.HasPrefix(lines[0], "id,timestamp,action") {
		t.Fatalf("unexpected csv export:\n%s", export.Data)
	}
	if !strings.HasSuffix(export.Filename, ".csv") {
		t.Fatalf("unexpected filename %s", export.Filename)
	}

	if _, err := env.audit.Export("xml", models.AuditFilter{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestAuditRecordDefaultsSeverity(t *testing.T) {
	env := newTestEnv(t)

	env.audit.Record(models.AuditEvent{Action: "login", Resource: "session", Severity: "urgent", Success: true})

	events, _, err := env.audit.ListEvents(models.AuditFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID == "" || events[0].Timestamp.IsZero() || events[0].Severity != models.SeverityLow {
		t.Fatalf("event defaults not applied: %+v", events[0])
	}
}

func TestAuditRecorderFlushesQueueOnShutdown(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewAuditRepository(db)
	recorder := NewAuditRecorder(repo, 8, 2, time.Hour)
	audit := NewAuditService(repo, recorder, nil)

	recorder.Start()
	for i := 0; i < 5; i++ {
		audit.Track(testActor(), "update", "projects", "1", models.SeverityLow, nil, nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := recorder.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	_, total, err := repo.List(models.AuditFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected every queued event to be written, got %d", total)
	}

	// after shutdown events are written inline
	audit.Track(testActor(), "delete", "projects", "1", models.SeverityMedium, errors.New("boom"), nil)
	if _, total, _ = repo.List(models.AuditFilter{}); total != 6 {
		t.Fatalf("expected inline write after shutdown, got %d", total)
	}
}

func TestAuditSummaryCacheDroppedAfterWrites(t *testing.T) {
	db := newTestDB(t)
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := repository.NewAuditRepository(db)
	recorder := NewAuditRecorder(repo, 16, 4, 10*time.Millisecond)
	audit := NewAuditService(repo, recorder, cache.NewWithClient(client))

	event := func(action string) models.AuditEvent {
		return models.AuditEvent{Action: action, Resource: "projects", Success: true}
	}

	audit.Record(event("create"))
	summary, err := audit.Summarize(7)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary.TotalEvents != 1 {
		t.Fatalf("expected 1 event, got %d", summary.TotalEvents)
	}
	if len(server.Keys()) == 0 {
		t.Fatal("expected the summary to be cached")
	}

	// inline write before Start
	audit.Record(event("update"))
	if summary, err = audit.Summarize(7); err != nil || summary.TotalEvents != 2 {
		t.Fatalf("inline write should refresh the summary, got %+v (%v)", summary, err)
	}

	// batched write after Start
	recorder.Start()
	audit.Record(event("delete"))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := recorder.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if summary, err = audit.Summarize(7); err != nil || summary.TotalEvents != 3 {
		t.Fatalf("flushed batch should refresh the summary, got %+v (%v)", summary, err)
	}
}
