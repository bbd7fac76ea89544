package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/dilduck/fallcentalert/internal/domain"
	"github.com/dilduck/fallcentalert/internal/engine"
	"github.com/dilduck/fallcentalert/internal/session"
)

// ----- Stub services -----

type stubEngine struct {
	state    engine.State
	version  int64
	settings domain.Settings

	updatePatch  *domain.SettingsPatch // captured
	updateResult domain.Settings
}

func (s *stubEngine) State() engine.State          { return s.state }
func (s *stubEngine) Stats() domain.Stats          { return s.state.Stats }
func (s *stubEngine) CatalogVersion() int64        { return s.version }
func (s *stubEngine) Settings() domain.Settings    { return s.settings }
func (s *stubEngine) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) domain.Settings {
	s.updatePatch = &patch
	return s.updateResult
}

type stubSessions struct {
	stats session.Stats
}

func (s *stubSessions) Stats() session.Stats { return s.stats }

func newTestRouter(eng EngineService, sessions SessionStatsService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(eng, sessions)
	r.GET("/api/products", h.ListProducts)
	r.GET("/api/settings", h.GetSettings)
	r.PUT("/api/settings", h.UpdateSettings)
	r.GET("/api/sessions", h.ListSessions)
	return r
}

func mkState(n int) engine.State {
	st := engine.State{Settings: domain.DefaultSettings()}
	for i := 0; i < n; i++ {
		st.Products = append(st.Products, domain.Product{ID: fmt.Sprintf("p-%d", i), Title: fmt.Sprintf("Product %d", i)})
	}
	st.Stats = domain.Stats{Total: n}
	return st
}

// ----- Tests -----

func TestListProducts_DefaultPage(t *testing.T) {
	eng := &stubEngine{state: mkState(3), version: 7}
	r := newTestRouter(eng, &stubSessions{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if etag := w.Header().Get("ETag"); etag != `W/"products:7:1:50"` {
		t.Errorf("ETag = %q", etag)
	}

	var resp ProductsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Products) != 3 {
		t.Errorf("products = %d, want 3", len(resp.Products))
	}
	if resp.Pagination.Page != 1 || resp.Pagination.PageSize != 50 || resp.Pagination.Total != 3 {
		t.Errorf("pagination = %+v", resp.Pagination)
	}
	if resp.Pagination.HasNext {
		t.Error("has_next on a single page")
	}
}

func TestListProducts_PagingAndClamping(t *testing.T) {
	eng := &stubEngine{state: mkState(5), version: 1}
	r := newTestRouter(eng, &stubSessions{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products?page=2&page_size=2", nil))

	var resp ProductsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Products) != 2 || resp.Products[0].ID != "p-2" {
		t.Errorf("page 2 = %+v", resp.Products)
	}
	if !resp.Pagination.HasNext || resp.Pagination.TotalPages != 3 {
		t.Errorf("pagination = %+v", resp.Pagination)
	}

	// Out-of-range page yields an empty slice, not an error.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products?page=99&page_size=2", nil))
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if w.Code != http.StatusOK || len(resp.Products) != 0 {
		t.Errorf("out-of-range page: status %d, products %d", w.Code, len(resp.Products))
	}

	// Oversized page_size is clamped to the maximum.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products?page_size=9999", nil))
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Pagination.PageSize != 200 {
		t.Errorf("page_size = %d, want 200", resp.Pagination.PageSize)
	}
}

func TestListProducts_NotModified(t *testing.T) {
	eng := &stubEngine{state: mkState(1), version: 42}
	r := newTestRouter(eng, &stubSessions{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("If-None-Match", `W/"products:42:1:50"`)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Error("304 response carries a body")
	}

	// A stale validator gets a fresh body.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("If-None-Match", `W/"products:41:1:50"`)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestGetSettings(t *testing.T) {
	settings := domain.DefaultSettings()
	settings.Keywords = []string{"ssd"}
	r := newTestRouter(&stubEngine{settings: settings}, &stubSessions{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/settings", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got domain.Settings
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Keywords) != 1 || got.Keywords[0] != "ssd" {
		t.Errorf("settings = %+v", got)
	}
}

func TestUpdateSettings(t *testing.T) {
	eng := &stubEngine{updateResult: domain.DefaultSettings()}
	r := newTestRouter(eng, &stubSessions{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(`{"crawling_interval":10,"keywords":["tv"]}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if eng.updatePatch == nil || eng.updatePatch.CrawlIntervalMinutes == nil || *eng.updatePatch.CrawlIntervalMinutes != 10 {
		t.Errorf("captured patch = %+v", eng.updatePatch)
	}
}

func TestUpdateSettings_RejectsBadInput(t *testing.T) {
	eng := &stubEngine{}
	r := newTestRouter(eng, &stubSessions{})

	for name, body := range map[string]string{
		"malformed json":   `{"crawling_interval":`,
		"interval below 1": `{"crawling_interval":0}`,
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
		var resp ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: unmarshal: %v", name, err)
		}
		if resp.Code != ErrCodeBadRequest {
			t.Errorf("%s: code = %q", name, resp.Code)
		}
	}
	if eng.updatePatch != nil {
		t.Error("engine called despite invalid input")
	}
}

func TestListSessions(t *testing.T) {
	sessions := &stubSessions{stats: session.Stats{
		ActiveSessions: 2,
		TotalAlerts:    5,
		Sessions: []session.Info{
			{SessionID: "s1", DismissedCount: 3},
			{SessionID: "s2"},
		},
	}}
	r := newTestRouter(&stubEngine{}, sessions)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got session.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ActiveSessions != 2 || got.TotalAlerts != 5 || len(got.Sessions) != 2 {
		t.Errorf("stats = %+v", got)
	}
}
