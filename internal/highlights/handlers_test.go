package highlights

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/tommygebru/vitrine-highlights/internal/common"
)

// testAuth trusts X-Test-User / X-Test-Role headers
func testAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Test-User")
		if id == "" {
			common.Unauthorized(w, "Authorization header required")
			return
		}
		ctx := common.WithViewer(r.Context(), &common.Viewer{ID: id, Name: id, Role: r.Header.Get("X-Test-Role")})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func testOptional(next http.Handler) http.Handler { return next }

func testRequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viewer, err := common.GetViewer(r.Context())
		if err != nil || !viewer.IsAdmin() {
			common.Forbidden(w, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newTestRouter(repo Repository) *mux.Router {
	router := mux.NewRouter()
	RegisterRoutes(router, NewHandler(newTestService(repo), nil), Middlewares{
		Authenticate: testAuth,
		OptionalAuth: testOptional,
		RequireAdmin: testRequireAdmin,
	})
	return router
}

func doRequest(router http.Handler, method, path, body, user, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
		req.Header.Set("X-Test-Role", role)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) common.Response {
	t.Helper()
	var raw struct {
		common.Response
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if data != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return raw.Response
}

func TestAdminListHandler(t *testing.T) {
	repo := newMemRepository(
		newItem("p1", "u1", 0, StatusPending),
		newItem("a1", "u2", 0, StatusApproved),
	)
	router := newTestRouter(repo)

	rec := doRequest(router, http.MethodGet, "/api/v1/admin/highlights?status=pending&_=abc", "", "mod", common.RoleAdmin)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Cache-Control"), "no-store") {
		t.Fatalf("admin list must not be cacheable")
	}

	var items []*Item
	resp := decodeEnvelope(t, rec, &items)
	if !resp.Success || len(items) != 1 || items[0].ID != "p1" {
		t.Fatalf("unexpected list: %+v", items)
	}

	if rec := doRequest(router, http.MethodGet, "/api/v1/admin/highlights?status=bogus", "", "mod", common.RoleAdmin); rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus status = %d", rec.Code)
	}
	if rec := doRequest(router, http.MethodGet, "/api/v1/admin/highlights", "", "u1", common.RoleUser); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin = %d", rec.Code)
	}
}

func TestModerateHandlerErrors(t *testing.T) {
	repo := newMemRepository(
		newItem("p1", "u1", 0, StatusPending),
		newItem("a1", "u2", 0, StatusApproved),
	)
	router := newTestRouter(repo)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"reject without reason", "/api/v1/admin/highlights/p1", `{"moderation_status":"rejected"}`, http.StatusBadRequest},
		{"unknown status", "/api/v1/admin/highlights/p1", `{"moderation_status":"pending"}`, http.StatusBadRequest},
		{"missing item", "/api/v1/admin/highlights/nope", `{"moderation_status":"approved"}`, http.StatusNotFound},
		{"deactivate user content", "/api/v1/admin/highlights/a1", `{"moderation_status":"inactive"}`, http.StatusForbidden},
		{"approve twice", "/api/v1/admin/highlights/a1", `{"moderation_status":"approved"}`, http.StatusConflict},
		{"approve pending", "/api/v1/admin/highlights/p1", `{"moderation_status":"approved"}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(router, http.MethodPatch, tt.path, tt.body, "mod", common.RoleAdmin)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d, body=%s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestSubmitAndFeedHandlers(t *testing.T) {
	repo := newMemRepository()
	router := newTestRouter(repo)

	if rec := doRequest(router, http.MethodPost, "/api/v1/highlights", `{"title":"x","media_url":"https://a.b/c.jpg"}`, "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous submit = %d", rec.Code)
	}

	rec := doRequest(router, http.MethodPost, "/api/v1/highlights", `{"title":"Promo","media_url":"https://a.b/c.jpg"}`, "u1", common.RoleUser)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit = %d body=%s", rec.Code, rec.Body.String())
	}
	var submitted Item
	decodeEnvelope(t, rec, &submitted)
	if submitted.Status != StatusPending {
		t.Fatalf("submitted status = %s", submitted.Status)
	}

	rec = doRequest(router, http.MethodPost, "/api/v1/admin/highlights", `{"title":"Ops","media_url":"https://a.b/ops.jpg"}`, "mod", common.RoleAdmin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doRequest(router, http.MethodGet, "/api/v1/highlights/feed", "", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("feed = %d", rec.Code)
	}
	var tiles []Thumbnail
	decodeEnvelope(t, rec, &tiles)
	if len(tiles) != 1 || tiles[0].AuthorID != "mod" || !tiles[0].IsAdmin {
		t.Fatalf("feed should only contain the approved admin tile, got %+v", tiles)
	}

	rec = doRequest(router, http.MethodPost, "/api/v1/highlights/"+submitted.ID+"/view", "", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("view on pending item = %d", rec.Code)
	}
}

func TestStatsHandler(t *testing.T) {
	repo := newMemRepository(
		newItem("p1", "u1", 0, StatusPending),
		newItem("r1", "u1", 0, StatusRejected),
	)
	router := newTestRouter(repo)

	rec := doRequest(router, http.MethodGet, "/api/v1/admin/highlights/stats", "", "mod", common.RoleAdmin)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats = %d", rec.Code)
	}
	var stats Stats
	decodeEnvelope(t, rec, &stats)
	if stats.Total != 2 || stats.Pending != 1 || stats.Rejected != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
