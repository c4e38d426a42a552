package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"portfolio-admin-backend/internal/models"
)

const skillsImport = `{
  "schema_version": "1",
  "tables": {
    "skills": [
      {"id": 1, "name": "Go", "level": 90},
      {"id": 2, "name": ""},
      {"id": 3, "name": "SQL", "level": 70}
    ]
  }
}`

func TestSplitTables(t *testing.T) {
	got := splitTables(" skills, ,projects ,")
	if len(got) != 2 || got[0] != "skills" || got[1] != "projects" {
		t.Fatalf("unexpected tables %v", got)
	}
	if splitTables("") != nil {
		t.Fatal("empty selection should mean every table")
	}
}

func TestImportRequiresFile(t *testing.T) {
	server := newTestServer(t, 0)
	expectFailure(t, server.upload(t, "/api/admin/data/import", "", ""), http.StatusBadRequest, CodeMissingRequiredFields)
}

func TestImportAbortsOnInvalidRecord(t *testing.T) {
	server := newTestServer(t, 0)

	rec := server.upload(t, "/api/admin/data/import", "skills.json", skillsImport)
	env := expectFailure(t, rec, http.StatusUnprocessableEntity, CodeImportAborted)
	if !strings.Contains(env.Error.Message, "skills record 2") {
		t.Fatalf("expected failing record in message, got %q", env.Error.Message)
	}

	var count int64
	server.db.Model(&models.Skill{}).Count(&count)
	if count != 0 {
		t.Fatalf("aborted import must not write records, found %d", count)
	}
}

func TestImportSkipErrors(t *testing.T) {
	server := newTestServer(t, 0)

	rec := server.upload(t, "/api/admin/data/import?skipErrors=true", "skills.json", skillsImport)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Success  bool `json:"success"`
		Imported int  `json:"imported"`
		Skipped  int  `json:"skipped"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Success || result.Imported != 2 || result.Skipped != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestImportRejectsOversizedFile(t *testing.T) {
	server := newTestServer(t, 64)
	expectFailure(t, server.upload(t, "/api/admin/data/import", "skills.json", skillsImport),
		http.StatusRequestEntityTooLarge, CodeImportTooLarge)
}

func TestImportRejectsCSV(t *testing.T) {
	server := newTestServer(t, 0)
	expectFailure(t, server.upload(t, "/api/admin/data/import", "skills.csv", "id,name\n1,Go\n"),
		http.StatusBadRequest, CodeUnsupportedFormat)
}

func TestExportSetsAttachmentHeaders(t *testing.T) {
	server := newTestServer(t, 0)
	if err := server.db.Create(&models.Skill{Name: "Go"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := server.do(t, http.MethodGet, "/api/admin/data/export?tables=skills", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment; filename=") {
		t.Fatalf("unexpected disposition %q", rec.Header().Get("Content-Disposition"))
	}
	if rec.Header().Get("X-Export-Records") != "1" {
		t.Fatalf("unexpected record count header %q", rec.Header().Get("X-Export-Records"))
	}

	var document struct {
		Tables map[string][]map[string]interface{} `json:"tables"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &document); err != nil {
		t.Fatalf("export is not a json document: %v", err)
	}
	if len(document.Tables["skills"]) != 1 {
		t.Fatalf("unexpected export %s", rec.Body.String())
	}

	expectFailure(t, server.do(t, http.MethodGet, "/api/admin/data/export?tables=users", nil, ""),
		http.StatusBadRequest, CodeValidation)
	expectFailure(t, server.do(t, http.MethodGet, "/api/admin/data/export?format=xml", nil, ""),
		http.StatusBadRequest, CodeUnsupportedFormat)
}
