package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestSiteSectionSaveErrors(t *testing.T) {
	server := newTestServer(t, 0)

	cases := []struct {
		name    string
		payload interface{}
		status  int
		code    string
	}{
		{"missing section", map[string]interface{}{"content": map[string]string{"title": "Hi"}}, http.StatusBadRequest, CodeMissingRequiredFields},
		{"missing content", map[string]interface{}{"section": "hero"}, http.StatusBadRequest, CodeMissingContent},
		{"unknown section", map[string]interface{}{"section": "sidebar", "content": map[string]string{"title": "Hi"}}, http.StatusBadRequest, CodeValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := server.doJSON(t, http.MethodPost, "/api/admin/content", tc.payload)
			expectFailure(t, rec, tc.status, tc.code)
		})
	}

	rec := server.do(t, http.MethodPost, "/api/admin/content", strings.NewReader("{"), "application/json")
	expectFailure(t, rec, http.StatusBadRequest, CodeMissingRequiredFields)
}

func TestSiteSectionSaveAndGet(t *testing.T) {
	server := newTestServer(t, 0)

	rec := server.doJSON(t, http.MethodPost, "/api/admin/content", map[string]interface{}{
		"section": "Hero",
		"content": map[string]string{"title": "Hello<script>alert(1)</script>"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success || env.Message != "Content saved successfully" {
		t.Fatalf("unexpected envelope %s", rec.Body.String())
	}

	rec = server.do(t, http.MethodGet, "/api/admin/content?section=hero", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var section struct {
		Key     string            `json:"key"`
		Content map[string]string `json:"content"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &section); err != nil {
		t.Fatalf("decode section: %v", err)
	}
	if section.Key != "hero" || strings.Contains(section.Content["title"], "<script>") {
		t.Fatalf("unexpected section %+v", section)
	}

	rec = server.do(t, http.MethodGet, "/api/admin/content?section=about", nil, "")
	expectFailure(t, rec, http.StatusNotFound, CodeNotFound)
}

func TestCollectionHandlerCRUD(t *testing.T) {
	server := newTestServer(t, 0)

	rec := server.doJSON(t, http.MethodPost, "/api/admin/skills", map[string]interface{}{"name": "Go", "level": 80})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID   uint   `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &created); err != nil {
		t.Fatalf("decode skill: %v", err)
	}
	if created.ID == 0 || created.Name != "Go" {
		t.Fatalf("unexpected skill %+v", created)
	}

	rec = server.do(t, http.MethodGet, "/api/admin/skills", nil, "")
	var page struct {
		Total int64 `json:"total"`
		Limit int   `json:"limit"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 1 || page.Limit != 100 {
		t.Fatalf("unexpected page %+v", page)
	}

	expectFailure(t, server.do(t, http.MethodGet, "/api/admin/skills/999", nil, ""), http.StatusNotFound, CodeNotFound)
	expectFailure(t, server.do(t, http.MethodGet, "/api/admin/skills/abc", nil, ""), http.StatusBadRequest, CodeInvalidRequest)
	expectFailure(t, server.do(t, http.MethodPut, "/api/admin/skills/1", strings.NewReader("not json"), "application/json"),
		http.StatusBadRequest, CodeInvalidRequest)

	rec = server.do(t, http.MethodDelete, "/api/admin/skills/1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	expectFailure(t, server.do(t, http.MethodDelete, "/api/admin/skills/1", nil, ""), http.StatusNotFound, CodeNotFound)
}
