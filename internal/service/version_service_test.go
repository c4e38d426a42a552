package service

import (
	"errors"
	"testing"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/repository"
)

func TestDiffClassifiesChanges(t *testing.T) {
	before := map[string]interface{}{
		"title":      "Old",
		"summary":    "same",
		"tags":       nil,
		"legacy":     "gone",
		"updated_at": "2024-01-01",
	}
	after := map[string]interface{}{
		"title":      "New",
		"summary":    "same",
		"tags":       []interface{}{},
		"extra":      true,
		"updated_at": "2024-02-01",
	}

	changes := Diff(before, after)

	want := map[string]models.ChangeType{
		"extra":  models.ChangeAdded,
		"legacy": models.ChangeRemoved,
		"title":  models.ChangeModified,
	}
	if len(changes) != len(want) {
		t.Fatalf("expected %d changes, got %+v", len(want), changes)
	}
	for _, change := range changes {
		if want[change.Field] != change.ChangeType {
			t.Fatalf("unexpected change %+v", change)
		}
	}
	if changes[0].Field != "extra" || changes[2].Field != "title" {
		t.Fatalf("changes should be sorted by field, got %+v", changes)
	}
}

func TestDiffWithoutBeforeMarksEverythingAdded(t *testing.T) {
	changes := Diff(nil, map[string]interface{}{"id": 1, "title": "A", "slug": "a"})
	if len(changes) != 2 {
		t.Fatalf("expected title and slug to be added, got %+v", changes)
	}
	for _, change := range changes {
		if change.ChangeType != models.ChangeAdded {
			t.Fatalf("expected added, got %+v", change)
		}
	}
}

func TestProjectVersionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	actor := testActor()

	created, err := env.projects.Create(&models.Project{Title: "Original Title", Content: "<p>Body</p>"}, actor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Slug != "original-title" {
		t.Fatalf("unexpected slug %q", created.Slug)
	}

	history, err := env.versions.History(models.ContentTypeProject, created.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Version != 1 {
		t.Fatalf("expected a single initial version, got %+v", history)
	}

	_, err = env.projects.Update(created.ID, &models.Project{Title: "Renamed", Content: "<p>Body</p>"}, actor)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	history, err = env.versions.History(models.ContentTypeProject, created.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(history))
	}
	latest := history[0]
	if latest.Version != 2 {
		t.Fatalf("history should be newest first, got version %d", latest.Version)
	}
	if len(latest.Changes) != 1 || latest.Changes[0].Field != "title" || latest.Changes[0].ChangeType != models.ChangeModified {
		t.Fatalf("expected only title modified, got %+v", latest.Changes)
	}
	if latest.CreatedBy != actor.Email {
		t.Fatalf("unexpected created_by %q", latest.CreatedBy)
	}

	// identical update records nothing
	if _, err := env.projects.Update(created.ID, &models.Project{Title: "Renamed", Content: "<p>Body</p>"}, actor); err != nil {
		t.Fatalf("no-op update: %v", err)
	}
	if history, _ = env.versions.History(models.ContentTypeProject, created.ID); len(history) != 2 {
		t.Fatalf("no-op update should not add a version, got %d", len(history))
	}

	comparison, err := env.versions.Compare(models.ContentTypeProject, created.ID, 1, 2)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(comparison.Changes) != 1 || comparison.Changes[0].Field != "title" {
		t.Fatalf("unexpected comparison %+v", comparison.Changes)
	}

	if _, err := env.versions.RestoreVersion(models.ContentTypeProject, created.ID, 1, actor); err != nil {
		t.Fatalf("restore: %v", err)
	}

	current, err := env.projects.Get(created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.Title != "Original Title" || current.Slug != "original-title" {
		t.Fatalf("restore did not bring back version 1: %+v", current)
	}

	history, _ = env.versions.History(models.ContentTypeProject, created.ID)
	if len(history) != 3 {
		t.Fatalf("restore should append a version, got %d", len(history))
	}
	if history[0].Metadata["restored_from"] != float64(1) {
		t.Fatalf("expected restored_from metadata, got %+v", history[0].Metadata)
	}

	if _, err := env.versions.GetVersion(models.ContentTypeProject, created.ID, 99); !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}
}

func TestCompressedSnapshotsRoundTripAndDetectCorruption(t *testing.T) {
	db := newTestDB(t)
	versions := NewVersionService(repository.NewVersionRepository(db), 16)

	item := &models.Project{ID: 7, Title: "Compressed", Slug: "compressed", Content: "a long enough body to pass the threshold"}
	version, err := versions.Record(db, item.ID, item, nil, "tester", nil, false)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !version.Compressed {
		t.Fatal("expected snapshot to be compressed")
	}

	detail, err := versions.GetVersion(models.ContentTypeProject, 7, 1)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if len(detail.Snapshot) != version.Size {
		t.Fatalf("snapshot size %d does not match recorded size %d", len(detail.Snapshot), version.Size)
	}

	if err := db.Model(&models.ContentVersion{}).Where("id = ?", version.ID).Update("content", "bm90IGd6aXA=").Error; err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, err := versions.GetVersion(models.ContentTypeProject, 7, 1); !errors.Is(err, ErrCorruptVersion) {
		t.Fatalf("expected ErrCorruptVersion, got %v", err)
	}
}

func TestSlugRules(t *testing.T) {
	env := newTestEnv(t)

	first, err := env.projects.Create(&models.Project{Title: "Café Déjà Vu"}, testActor())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := env.projects.Create(&models.Project{Title: "Cafe Deja Vu"}, testActor())
	if err != nil {
		t.Fatalf("create duplicate title: %v", err)
	}
	if first.Slug != "cafe-deja-vu" || second.Slug != "cafe-deja-vu-1" {
		t.Fatalf("unexpected slugs %q, %q", first.Slug, second.Slug)
	}

	if _, err := env.projects.Create(&models.Project{Title: "Other", Slug: "cafe-deja-vu"}, testActor()); !errors.Is(err, ErrSlugTaken) {
		t.Fatalf("expected ErrSlugTaken, got %v", err)
	}
	if _, err := env.projects.Create(&models.Project{Title: "Other", Slug: "Not A Slug"}, testActor()); !errors.Is(err, ErrInvalidSlug) {
		t.Fatalf("expected ErrInvalidSlug, got %v", err)
	}

	updated, err := env.projects.Update(first.ID, &models.Project{Title: "Completely New", Slug: "ignored"}, testActor())
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Slug != "cafe-deja-vu" {
		t.Fatalf("slug must not change on update, got %q", updated.Slug)
	}
}
