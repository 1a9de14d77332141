package common

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type sampleRequest struct {
	Title  string `json:"title" validate:"required,notblank,max=10"`
	Status string `json:"status" validate:"omitempty,oneof=approved rejected"`
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"valid", `{"title":"ok","status":"approved"}`, ""},
		{"malformed", `{"title":`, "body"},
		{"blank title", `{"title":"   "}`, "title"},
		{"too long", `{"title":"01234567890"}`, "title"},
		{"bad status", `{"title":"ok","status":"pending"}`, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst sampleRequest
			errs := DecodeAndValidate(req, &dst)
			if tt.wantField == "" {
				if errs != nil {
					t.Fatalf("unexpected errors: %v", errs)
				}
				return
			}
			if _, ok := errs[tt.wantField]; !ok {
				t.Fatalf("expected error on %q, got %v", tt.wantField, errs)
			}
		})
	}
}

func TestViewerContext(t *testing.T) {
	if _, err := GetViewer(context.Background()); err != ErrNoViewer {
		t.Fatalf("expected ErrNoViewer, got %v", err)
	}

	ctx := WithViewer(context.Background(), &Viewer{ID: "u-1", Role: RoleAdmin})
	viewer, err := GetViewer(ctx)
	if err != nil || viewer.ID != "u-1" {
		t.Fatalf("GetViewer = %+v, %v", viewer, err)
	}
	if !viewer.IsAdmin() {
		t.Fatalf("expected admin viewer")
	}
}

func TestErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	NoStore(rec)
	Conflict(rec, "status changed")

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Cache-Control"), "no-store") {
		t.Fatalf("missing no-store header")
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success || resp.Error != "status changed" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
}
