package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
)

type versionEntry struct {
	Version int                    `json:"version"`
	Meta    map[string]interface{} `json:"metadata"`
}

// createProjectWithHistory creates a project and renames it once, leaving
// versions 1 and 2.
func createProjectWithHistory(t *testing.T, server *testServer) uint {
	t.Helper()

	rec := server.doJSON(t, http.MethodPost, "/api/admin/projects", map[string]interface{}{"title": "First Title"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: %d %s", rec.Code, rec.Body.String())
	}
	var project struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &project); err != nil {
		t.Fatalf("decode project: %v", err)
	}

	rec = server.doJSON(t, http.MethodPut, fmt.Sprintf("/api/admin/projects/%d", project.ID), map[string]interface{}{"title": "Second Title"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update project: %d %s", rec.Code, rec.Body.String())
	}
	return project.ID
}

func TestVersionHistoryAndGet(t *testing.T) {
	server := newTestServer(t, 0)
	id := createProjectWithHistory(t, server)
	base := fmt.Sprintf("/api/admin/versions/project/%d", id)

	rec := server.do(t, http.MethodGet, base, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d %s", rec.Code, rec.Body.String())
	}
	var history []versionEntry
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 2 || history[0].Version != 2 || history[1].Version != 1 {
		t.Fatalf("expected versions 2 and 1 newest first, got %+v", history)
	}

	rec = server.do(t, http.MethodGet, base+"/1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get version: %d %s", rec.Code, rec.Body.String())
	}
	var detail struct {
		Version  int `json:"version"`
		Snapshot struct {
			Title string `json:"title"`
		} `json:"snapshot"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &detail); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if detail.Version != 1 || detail.Snapshot.Title != "First Title" {
		t.Fatalf("unexpected version detail %+v", detail)
	}

	expectFailure(t, server.do(t, http.MethodGet, base+"/9", nil, ""), http.StatusNotFound, CodeNotFound)
	expectFailure(t, server.do(t, http.MethodGet, base+"/zero", nil, ""), http.StatusBadRequest, CodeInvalidRequest)
}

func TestVersionCompare(t *testing.T) {
	server := newTestServer(t, 0)
	id := createProjectWithHistory(t, server)
	base := fmt.Sprintf("/api/admin/versions/project/%d/compare", id)

	rec := server.do(t, http.MethodGet, base+"?from=1&to=2", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("compare: %d %s", rec.Code, rec.Body.String())
	}
	var comparison struct {
		From    int                      `json:"from"`
		To      int                      `json:"to"`
		Changes []map[string]interface{} `json:"changes"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &comparison); err != nil {
		t.Fatalf("decode comparison: %v", err)
	}
	if comparison.From != 1 || comparison.To != 2 {
		t.Fatalf("unexpected comparison range %+v", comparison)
	}
	found := false
	for _, change := range comparison.Changes {
		if change["field"] == "title" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a title change, got %+v", comparison.Changes)
	}

	expectFailure(t, server.do(t, http.MethodGet, base+"?from=1", nil, ""), http.StatusBadRequest, CodeMissingRequiredFields)
	expectFailure(t, server.do(t, http.MethodGet, base+"?from=1&to=7", nil, ""), http.StatusNotFound, CodeNotFound)
}

func TestVersionRestore(t *testing.T) {
	server := newTestServer(t, 0)
	id := createProjectWithHistory(t, server)
	base := fmt.Sprintf("/api/admin/versions/project/%d", id)

	rec := server.doJSON(t, http.MethodPost, base+"/restore", map[string]int{"version": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("restore: %d %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Message != "Version 1 restored" {
		t.Fatalf("unexpected message %q", env.Message)
	}

	rec = server.do(t, http.MethodGet, fmt.Sprintf("/api/admin/projects/%d", id), nil, "")
	var project struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &project); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	if project.Title != "First Title" {
		t.Fatalf("restore did not bring back version 1: %q", project.Title)
	}

	var history []versionEntry
	rec = server.do(t, http.MethodGet, base, nil, "")
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 3 || history[0].Meta["restored_from"] != float64(1) {
		t.Fatalf("restore should append a version pointing at 1, got %+v", history)
	}

	expectFailure(t, server.doJSON(t, http.MethodPost, base+"/restore", map[string]int{}), http.StatusBadRequest, CodeMissingRequiredFields)
	expectFailure(t, server.doJSON(t, http.MethodPost, base+"/restore", map[string]int{"version": 42}), http.StatusNotFound, CodeNotFound)
}

func TestVersionRoutesRejectBadTargets(t *testing.T) {
	server := newTestServer(t, 0)

	expectFailure(t, server.do(t, http.MethodGet, "/api/admin/versions/recipe/1", nil, ""), http.StatusBadRequest, CodeValidation)
	expectFailure(t, server.do(t, http.MethodGet, "/api/admin/versions/project/abc", nil, ""), http.StatusBadRequest, CodeInvalidRequest)
	expectFailure(t, server.doJSON(t, http.MethodPost, "/api/admin/versions/recipe/1/restore", map[string]int{"version": 1}), http.StatusBadRequest, CodeValidation)
}

func TestAnalyticsReportEndpoint(t *testing.T) {
	server := newTestServer(t, 0)
	createProjectWithHistory(t, server)

	rec := server.do(t, http.MethodGet, "/api/admin/analytics?days=3", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("analytics: %d %s", rec.Code, rec.Body.String())
	}
	var report struct {
		WindowDays int `json:"window_days"`
		Content    map[string]struct {
			Total int64 `json:"total"`
		} `json:"content"`
		Versions []struct {
			Count int64 `json:"count"`
		} `json:"versions"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.WindowDays != 3 || len(report.Versions) != 3 {
		t.Fatalf("unexpected window %+v", report)
	}
	if report.Content["projects"].Total != 1 {
		t.Fatalf("expected one project, got %+v", report.Content["projects"])
	}
	if report.Versions[2].Count != 2 {
		t.Fatalf("expected 2 versions today, got %+v", report.Versions)
	}
}
