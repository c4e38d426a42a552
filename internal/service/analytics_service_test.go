package service

import (
	"testing"
	"time"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/repository"
	"portfolio-admin-backend/pkg/cache"
)

func newAnalytics(env *testEnv) *AnalyticsService {
	return NewAnalyticsService(env.db, env.tables, repository.NewVersionRepository(env.db), env.audit, env.backups, cache.Disabled())
}

func TestAnalyticsReportCountsContent(t *testing.T) {
	env := newTestEnv(t)
	actor := testActor()

	if _, err := env.projects.Create(&models.Project{Title: "Draft"}, actor); err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if _, err := env.projects.Create(&models.Project{Title: "Live", Published: true}, actor); err != nil {
		t.Fatalf("create published: %v", err)
	}
	seedSkills(t, env, "Go")

	report, err := newAnalytics(env).Report(7)
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	if report.WindowDays != 7 || len(report.Versions) != 7 {
		t.Fatalf("expected a 7 day window, got %d days and %d buckets", report.WindowDays, len(report.Versions))
	}

	projects := report.Content["projects"]
	if projects.Total != 2 || projects.Recent != 2 {
		t.Fatalf("unexpected project stats %+v", projects)
	}
	if projects.Published == nil || *projects.Published != 1 {
		t.Fatalf("expected one published project, got %+v", projects.Published)
	}

	skills := report.Content["skills"]
	if skills.Total != 1 || skills.Published != nil {
		t.Fatalf("skills have no published flag, got %+v", skills)
	}
	if _, ok := report.Content["audit_events"]; ok {
		t.Fatal("system tables must not appear in content stats")
	}

	today := time.Now().UTC().Format("2006-01-02")
	last := report.Versions[len(report.Versions)-1]
	if last.Date != today || last.Count != 2 {
		t.Fatalf("expected 2 versions today, got %+v", last)
	}

	if report.Audit == nil || report.Audit.TotalEvents != 3 {
		t.Fatalf("expected 3 audit events in the summary, got %+v", report.Audit)
	}
	if report.Backups == nil || report.Backups.TotalBackups != 0 {
		t.Fatalf("unexpected backup statistics %+v", report.Backups)
	}
}

func TestAnalyticsReportNormalizesWindow(t *testing.T) {
	env := newTestEnv(t)
	analytics := newAnalytics(env)

	cases := map[int]int{0: defaultAuditWindowDays, -3: defaultAuditWindowDays, 5000: maxAuditWindowDays}
	for requested, want := range cases {
		report, err := analytics.Report(requested)
		if err != nil {
			t.Fatalf("report(%d): %v", requested, err)
		}
		if report.WindowDays != want || len(report.Versions) != want {
			t.Fatalf("report(%d): expected %d days, got %d with %d buckets", requested, want, report.WindowDays, len(report.Versions))
		}
	}
}
