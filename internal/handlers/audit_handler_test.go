package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestAuditHandlerTracksAdminActions(t *testing.T) {
	server := newTestServer(t, 0)

	server.doJSON(t, http.MethodPost, "/api/admin/skills", map[string]interface{}{"name": "Go"})
	server.do(t, http.MethodDelete, "/api/admin/skills/99", nil, "")

	rec := server.do(t, http.MethodGet, "/api/admin/audit?resource=skills&success=false", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var page struct {
		Total int64 `json:"total"`
		Items []struct {
			Action     string `json:"action"`
			ResourceID string `json:"resource_id"`
		} `json:"items"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 1 || page.Items[0].Action != "delete" || page.Items[0].ResourceID != "99" {
		t.Fatalf("unexpected audit page %+v", page)
	}

	rec = server.do(t, http.MethodGet, "/api/admin/audit?action=summary&days=7", nil, "")
	var summary struct {
		TotalEvents int64   `json:"total_events"`
		FailureRate float64 `json:"failure_rate"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.TotalEvents != 2 || summary.FailureRate != 50 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	rec = server.do(t, http.MethodGet, "/api/admin/audit?action=export&format=csv", nil, "")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected export response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(rec.Body.String(), "id,timestamp,action") {
		t.Fatalf("unexpected csv body %q", rec.Body.String())
	}
}

func TestAuditHandlerRejectsBadFilters(t *testing.T) {
	server := newTestServer(t, 0)

	for _, path := range []string{
		"/api/admin/audit?severity=urgent",
		"/api/admin/audit?success=maybe",
		"/api/admin/audit?from=yesterday",
		"/api/admin/audit?action=search",
	} {
		expectFailure(t, server.do(t, http.MethodGet, path, nil, ""), http.StatusBadRequest, CodeValidation)
	}

	expectFailure(t, server.do(t, http.MethodGet, "/api/admin/audit?action=export&format=xml", nil, ""),
		http.StatusBadRequest, CodeUnsupportedFormat)
}
