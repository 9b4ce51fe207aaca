package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/notesearch/note-search/internal/analytics"
	"github.com/notesearch/note-search/internal/content"
	"github.com/notesearch/note-search/internal/history"
	"github.com/notesearch/note-search/internal/pkg/logger"
	"github.com/notesearch/note-search/internal/pkg/middleware"
)

type handlerFixture struct {
	mux       *http.ServeMux
	store     *content.MemoryStore
	history   *history.MemoryStore
	analytics *analytics.MemoryStore
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := newFixture(t, nil, nil)
	hist := history.NewMemoryStore()
	anal := analytics.NewMemoryStore()

	mux := http.NewServeMux()
	NewHandler(f.svc, hist, anal, logger.Default()).RegisterRoutes(mux)
	return &handlerFixture{
		mux:       mux,
		store:     f.store,
		history:   hist,
		analytics: anal,
	}
}

func (f *handlerFixture) do(method, target, user, body string) *httptest.ResponseRecorder {
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if user != "" {
		req.Header.Set(middleware.UserIDHeader, user)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestHandlersRequireUserID(t *testing.T) {
	f := newHandlerFixture(t)
	requests := []struct {
		method, target string
	}{
		{http.MethodPost, "/v1/search"},
		{http.MethodGet, "/v1/suggestions"},
		{http.MethodGet, "/v1/history"},
		{http.MethodDelete, "/v1/history"},
		{http.MethodDelete, "/v1/history/abc"},
		{http.MethodGet, "/v1/analytics"},
	}
	for _, req := range requests {
		rec := f.do(req.method, req.target, "", `{"query":"x"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without user header: status %d, want 401", req.method, req.target, rec.Code)
		}
	}
}

func TestHandleSearch(t *testing.T) {
	f := newHandlerFixture(t)
	f.store.Put(note("1", "u1", "Meeting notes", "quarterly planning meeting", nil))

	rec := f.do(http.MethodPost, "/v1/search", "u1", `{"query":"meeting"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || len(resp.Results) != 1 {
		t.Fatalf("total=%d results=%d, want 1/1", resp.Total, len(resp.Results))
	}
	if resp.Results[0].ID != "1" {
		t.Errorf("result id = %q", resp.Results[0].ID)
	}
	if resp.Mode != "keyword" {
		t.Errorf("mode = %q, want keyword (no vector backend)", resp.Mode)
	}
}

func TestHandleSearchBadBody(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(http.MethodPost, "/v1/search", "u1", `{"query":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status %d, want 400", rec.Code)
	}
}

func TestHandleSearchValidationStatus(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(http.MethodPost, "/v1/search", "u1", `{"query":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank query: status %d, want 400", rec.Code)
	}
}

func TestHandleSuggestions(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	f.history.Record(ctx, "u1", "golang generics", "keyword", nil, 3)
	f.history.Record(ctx, "u1", "golang generics", "keyword", nil, 3)
	f.history.Record(ctx, "u1", "golang channels", "keyword", nil, 5)
	f.history.Record(ctx, "u2", "golang testing", "keyword", nil, 1)

	rec := f.do(http.MethodGet, "/v1/suggestions?prefix=golang", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp SuggestionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Suggestions) != 2 {
		t.Fatalf("got %d suggestions, want 2 (other user's entry excluded)", len(resp.Suggestions))
	}
	if resp.Suggestions[0].Query != "golang generics" {
		t.Errorf("first suggestion %q, want most-used first", resp.Suggestions[0].Query)
	}
	if resp.Suggestions[0].UseCount != 2 {
		t.Errorf("use count = %d, want 2", resp.Suggestions[0].UseCount)
	}
}

func TestHandleHistoryList(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	f.history.Record(ctx, "u1", "first", "keyword", nil, 0)
	f.history.Record(ctx, "u1", "second", "keyword", nil, 0)

	rec := f.do(http.MethodGet, "/v1/history", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp HistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(resp.Entries))
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}

	rec = f.do(http.MethodGet, "/v1/history", "u2", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 0 {
		t.Errorf("empty history returned %d entries", len(resp.Entries))
	}
	if !strings.Contains(rec.Body.String(), `"entries":[]`) {
		t.Errorf("empty history should serialize as [], got %s", rec.Body.String())
	}
}

func TestHandleHistoryListPaging(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	for _, q := range []string{"alpha", "beta", "gamma"} {
		f.history.Record(ctx, "u1", q, "keyword", nil, 0)
		time.Sleep(2 * time.Millisecond)
	}

	rec := f.do(http.MethodGet, "/v1/history?limit=1&offset=1", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp HistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 3 {
		t.Errorf("total = %d, want 3 regardless of the page", resp.Total)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Query != "beta" {
		t.Errorf("offset page = %+v", resp.Entries)
	}
}

func TestHandleHistoryListTypeFilter(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	f.history.Record(ctx, "u1", "plain", "keyword", nil, 0)
	f.history.Record(ctx, "u1", "blended", "hybrid", nil, 0)

	rec := f.do(http.MethodGet, "/v1/history?type=hybrid", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp HistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Entries) != 1 || resp.Entries[0].Query != "blended" {
		t.Errorf("type filter response = %+v", resp)
	}
	if resp.Entries[0].QueryType != "hybrid" {
		t.Errorf("query type = %q, want hybrid", resp.Entries[0].QueryType)
	}
}

func TestHandleHistoryListDateWindow(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	f.history.Record(ctx, "u1", "early", "keyword", nil, 0)
	time.Sleep(5 * time.Millisecond)
	late, _ := f.history.Record(ctx, "u1", "late", "keyword", nil, 0)

	from := late.LastUsedAt.UTC().Format(time.RFC3339Nano)
	rec := f.do(http.MethodGet, "/v1/history?from="+from, "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp HistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Entries) != 1 || resp.Entries[0].Query != "late" {
		t.Errorf("from window response = %+v", resp)
	}
}

func TestHandleHistoryListBadParams(t *testing.T) {
	f := newHandlerFixture(t)
	for _, target := range []string{
		"/v1/history?limit=zero",
		"/v1/history?limit=-3",
		"/v1/history?offset=-1",
		"/v1/history?type=psychic",
		"/v1/history?from=yesterday",
		"/v1/history?to=tomorrow",
	} {
		rec := f.do(http.MethodGet, target, "u1", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", target, rec.Code)
		}
	}
}

func TestHandleHistoryClear(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	f.history.Record(ctx, "u1", "keep nothing", "keyword", nil, 0)
	f.history.Record(ctx, "u2", "keep this", "keyword", nil, 0)

	rec := f.do(http.MethodDelete, "/v1/history", "u1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d, want 204", rec.Code)
	}
	entries, _, _ := f.history.List(ctx, "u1", history.ListQuery{})
	if len(entries) != 0 {
		t.Errorf("u1 history not cleared: %d entries remain", len(entries))
	}
	entries, _, _ = f.history.List(ctx, "u2", history.ListQuery{})
	if len(entries) != 1 {
		t.Errorf("clear leaked into another user's history")
	}
}

func TestHandleHistoryClearBefore(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	f.history.Record(ctx, "u1", "old query", "keyword", nil, 0)
	time.Sleep(5 * time.Millisecond)
	recent, _ := f.history.Record(ctx, "u1", "recent query", "keyword", nil, 0)

	// Parse accepts fractional seconds even with the plain RFC3339 layout.
	cutoff := recent.LastUsedAt.UTC().Format(time.RFC3339Nano)
	rec := f.do(http.MethodDelete, "/v1/history?before="+cutoff, "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["removed"] != 1 {
		t.Errorf("removed = %d, want 1", resp["removed"])
	}
	entries, _, _ := f.history.List(ctx, "u1", history.ListQuery{})
	if len(entries) != 1 || entries[0].Query != "recent query" {
		t.Errorf("surviving entries = %+v", entries)
	}
}

func TestHandleHistoryClearBadBefore(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(http.MethodDelete, "/v1/history?before=yesterday", "u1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
}

func TestHandleHistoryDelete(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	entry, _ := f.history.Record(ctx, "u1", "delete me", "keyword", nil, 0)
	f.history.Record(ctx, "u1", "keep me", "keyword", nil, 0)

	rec := f.do(http.MethodDelete, "/v1/history/"+entry.ID, "u1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d, want 204", rec.Code)
	}
	entries, _, _ := f.history.List(ctx, "u1", history.ListQuery{})
	if len(entries) != 1 || entries[0].Query != "keep me" {
		t.Errorf("surviving entries = %+v", entries)
	}
}

func TestHandleHistoryDeleteUnknownID(t *testing.T) {
	// Deleting an id that no longer exists is a no-op, not an error.
	f := newHandlerFixture(t)
	rec := f.do(http.MethodDelete, "/v1/history/nope", "u1", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("status %d, want 204", rec.Code)
	}
}

func TestHandleAnalytics(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	f.analytics.Record(ctx, &analytics.Record{
		ID: "a1", UserID: "u1", Query: "fast one", Mode: "keyword",
		ResultCount: 2, ExecutionTimeMs: 50, Timestamp: now,
	})
	f.analytics.Record(ctx, &analytics.Record{
		ID: "a2", UserID: "u1", Query: "slow one", Mode: "hybrid",
		ResultCount: 9, ExecutionTimeMs: 1500, Timestamp: now,
	})
	f.analytics.Record(ctx, &analytics.Record{
		ID: "a3", UserID: "u2", Query: "other user", Mode: "keyword",
		ResultCount: 1, ExecutionTimeMs: 10, Timestamp: now,
	})

	rec := f.do(http.MethodGet, "/v1/analytics", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var sum analytics.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.TotalSearches != 2 {
		t.Errorf("total = %d, want 2 (other user excluded)", sum.TotalSearches)
	}
	if sum.FastSearches != 1 || sum.SlowSearches != 1 {
		t.Errorf("fast=%d slow=%d, want 1/1", sum.FastSearches, sum.SlowSearches)
	}
}

func TestHandleAnalyticsWindow(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.analytics.Record(ctx, &analytics.Record{
		ID: "a1", UserID: "u1", Query: "inside", Mode: "keyword",
		ExecutionTimeMs: 10, Timestamp: base,
	})
	f.analytics.Record(ctx, &analytics.Record{
		ID: "a2", UserID: "u1", Query: "outside", Mode: "keyword",
		ExecutionTimeMs: 10, Timestamp: base.Add(48 * time.Hour),
	})

	from := base.Add(-time.Hour).Format(time.RFC3339)
	to := base.Add(time.Hour).Format(time.RFC3339)
	rec := f.do(http.MethodGet, "/v1/analytics?from="+from+"&to="+to, "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var sum analytics.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.TotalSearches != 1 {
		t.Errorf("windowed total = %d, want 1", sum.TotalSearches)
	}
}

func TestHandleAnalyticsTypeFilter(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	f.analytics.Record(ctx, &analytics.Record{
		ID: "a1", UserID: "u1", Query: "plain", Mode: "keyword",
		ExecutionTimeMs: 10, Timestamp: now,
	})
	f.analytics.Record(ctx, &analytics.Record{
		ID: "a2", UserID: "u1", Query: "blended", Mode: "hybrid",
		ExecutionTimeMs: 20, Timestamp: now,
	})

	rec := f.do(http.MethodGet, "/v1/analytics?type=hybrid", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var sum analytics.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.TotalSearches != 1 {
		t.Errorf("filtered total = %d, want 1", sum.TotalSearches)
	}
	if sum.ModeDistribution["keyword"] != 0 {
		t.Errorf("keyword searches leaked into the filtered summary: %v", sum.ModeDistribution)
	}
}

func TestHandleAnalyticsBadParams(t *testing.T) {
	f := newHandlerFixture(t)
	for _, target := range []string{
		"/v1/analytics?from=lastweek",
		"/v1/analytics?to=tomorrow",
		"/v1/analytics?top=0",
		"/v1/analytics?type=psychic",
	} {
		rec := f.do(http.MethodGet, target, "u1", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", target, rec.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newHandlerFixture(t)
	handler := CORSMiddleware(f.mux)

	req := httptest.NewRequest(http.MethodOptions, "/v1/search", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("preflight status %d", rec.Code)
	}
	allow := rec.Header().Get("Access-Control-Allow-Headers")
	if !strings.Contains(allow, middleware.UserIDHeader) {
		t.Errorf("allow headers %q missing %s", allow, middleware.UserIDHeader)
	}
}
