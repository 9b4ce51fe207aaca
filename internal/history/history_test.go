package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/notesearch/note-search/internal/content"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Redis Migration", "redis migration"},
		{"  spaced   out  ", "spaced out"},
		{"already normal", "already normal"},
		{"한국어  검색", "한국어 검색"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecordUpsert(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.Record(ctx, "u1", "Redis Migration", "keyword", nil, 5)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if first.UseCount != 1 {
		t.Errorf("new entry use count = %d, want 1", first.UseCount)
	}
	if first.ID == "" {
		t.Errorf("new entry has no ID")
	}

	// Same query modulo case and spacing: must update, not duplicate.
	second, err := s.Record(ctx, "u1", "  redis   migration ", "keyword", nil, 7)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert created a new entry: %s vs %s", second.ID, first.ID)
	}
	if second.UseCount != 2 {
		t.Errorf("use count = %d, want 2", second.UseCount)
	}
	if second.ResultCount != 7 {
		t.Errorf("result count = %d, want latest value 7", second.ResultCount)
	}

	entries, _, _ := s.List(ctx, "u1", ListQuery{})
	if len(entries) != 1 {
		t.Fatalf("history holds %d entries, want 1", len(entries))
	}
}

func TestRecordUseCountMatchesSubmissions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 9
	var last *Entry
	for i := 0; i < n; i++ {
		var err error
		last, err = s.Record(ctx, "u1", "standup notes", "keyword", nil, i)
		if err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}
	if last.UseCount != n {
		t.Errorf("use count after %d submissions = %d", n, last.UseCount)
	}
}

func TestRecordEmptyQuery(t *testing.T) {
	s := NewMemoryStore()
	entry, err := s.Record(context.Background(), "u1", "   ", "keyword", nil, 0)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if entry != nil {
		t.Errorf("blank query recorded: %+v", entry)
	}
}

func TestListRecencyOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time { return clock }

	for i, q := range []string{"first", "second", "third"} {
		clock = base.Add(time.Duration(i) * time.Minute)
		if _, err := s.Record(ctx, "u1", q, "keyword", nil, 0); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, _, err := s.List(ctx, "u1", ListQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"third", "second", "first"}
	for i, w := range want {
		if entries[i].Query != w {
			t.Errorf("entry[%d] = %q, want %q", i, entries[i].Query, w)
		}
	}

	limited, _, _ := s.List(ctx, "u1", ListQuery{Limit: 2})
	if len(limited) != 2 || limited[0].Query != "third" {
		t.Errorf("limited list wrong: %+v", limited)
	}
}

func TestSuggestOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time { return clock }

	// "redis cluster" used 3x, "redis cache" 1x but most recent,
	// "postgres" should never match the prefix.
	for i := 0; i < 3; i++ {
		clock = base.Add(time.Duration(i) * time.Minute)
		s.Record(ctx, "u1", "redis cluster", "keyword", nil, 0)
	}
	clock = base.Add(10 * time.Minute)
	s.Record(ctx, "u1", "redis cache", "keyword", nil, 0)
	s.Record(ctx, "u1", "postgres tuning", "keyword", nil, 0)

	got, err := s.Suggest(ctx, "u1", "Redis", 10)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d suggestions, want 2", len(got))
	}
	if got[0].Query != "redis cluster" {
		t.Errorf("most used query not first: %q", got[0].Query)
	}
	if got[1].Query != "redis cache" {
		t.Errorf("second suggestion %q, want redis cache", got[1].Query)
	}
}

func TestSuggestTieBrokenByRecency(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time { return clock }

	s.Record(ctx, "u1", "go generics", "keyword", nil, 0)
	clock = base.Add(time.Minute)
	s.Record(ctx, "u1", "go modules", "keyword", nil, 0)

	got, _ := s.Suggest(ctx, "u1", "go", 10)
	if len(got) != 2 || got[0].Query != "go modules" {
		t.Fatalf("equal use counts not broken by recency: %+v", got)
	}
}

func TestDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	entry, _ := s.Record(ctx, "u1", "keep me not", "keyword", nil, 0)
	s.Record(ctx, "u1", "keep me", "keyword", nil, 0)

	if err := s.Delete(ctx, "u1", entry.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	entries, _, _ := s.List(ctx, "u1", ListQuery{})
	if len(entries) != 1 || entries[0].Query != "keep me" {
		t.Errorf("delete removed the wrong entry: %+v", entries)
	}

	// Unknown ID and wrong user are both no-ops.
	if err := s.Delete(ctx, "u1", "no-such-id"); err != nil {
		t.Errorf("Delete unknown id: %v", err)
	}
	if err := s.Delete(ctx, "u2", entries[0].ID); err != nil {
		t.Errorf("Delete cross user: %v", err)
	}
	entries, _, _ = s.List(ctx, "u1", ListQuery{})
	if len(entries) != 1 {
		t.Errorf("no-op deletes changed the history")
	}
}

func TestDeleteOlderThan(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time { return clock }

	s.Record(ctx, "u1", "ancient", "keyword", nil, 0)
	clock = base.Add(48 * time.Hour)
	s.Record(ctx, "u1", "recent", "keyword", nil, 0)

	removed, err := s.DeleteOlderThan(ctx, "u1", base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed %d entries, want 1", removed)
	}
	entries, _, _ := s.List(ctx, "u1", ListQuery{})
	if len(entries) != 1 || entries[0].Query != "recent" {
		t.Errorf("wrong survivors: %+v", entries)
	}
}

func TestClearIsUserScoped(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Record(ctx, "u1", "mine", "keyword", nil, 0)
	s.Record(ctx, "u2", "theirs", "keyword", nil, 0)

	if err := s.Clear(ctx, "u1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if entries, _, _ := s.List(ctx, "u1", ListQuery{}); len(entries) != 0 {
		t.Errorf("u1 history survived clear")
	}
	if entries, _, _ := s.List(ctx, "u2", ListQuery{}); len(entries) != 1 {
		t.Errorf("u2 history lost to u1 clear")
	}
}

func TestRecordKeepsFiltersSnapshot(t *testing.T) {
	s := NewMemoryStore()
	filters := &content.Filters{Tags: []string{"work"}}
	entry, err := s.Record(context.Background(), "u1", "query", "keyword", filters, 3)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if entry.Filters == nil || len(entry.Filters.Tags) != 1 || entry.Filters.Tags[0] != "work" {
		t.Errorf("filters snapshot lost: %+v", entry.Filters)
	}
}

func TestRecordKeepsQueryType(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	entry, err := s.Record(ctx, "u1", "migration plan", "hybrid", nil, 2)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if entry.QueryType != "hybrid" {
		t.Errorf("query type = %q, want hybrid", entry.QueryType)
	}

	// Re-running the same query in another mode updates the entry.
	entry, err = s.Record(ctx, "u1", "migration plan", "semantic", nil, 4)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if entry.QueryType != "semantic" || entry.UseCount != 2 {
		t.Errorf("upsert kept stale mode: %+v", entry)
	}
}

func TestListOffsetAndTotal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time { return clock }

	for i, q := range []string{"alpha", "beta", "gamma", "delta"} {
		clock = base.Add(time.Duration(i) * time.Minute)
		s.Record(ctx, "u1", q, "keyword", nil, 0)
	}

	page, total, err := s.List(ctx, "u1", ListQuery{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
	if len(page) != 2 || page[0].Query != "gamma" || page[1].Query != "beta" {
		t.Errorf("offset page wrong: %+v", page)
	}

	// Offset past the end yields an empty page but the true total.
	page, total, _ = s.List(ctx, "u1", ListQuery{Limit: 2, Offset: 10})
	if len(page) != 0 || total != 4 {
		t.Errorf("past-end page: entries=%d total=%d", len(page), total)
	}
}

func TestListFiltersByQueryType(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Record(ctx, "u1", "typed one", "keyword", nil, 0)
	s.Record(ctx, "u1", "typed two", "hybrid", nil, 0)
	s.Record(ctx, "u1", "typed three", "hybrid", nil, 0)

	entries, total, err := s.List(ctx, "u1", ListQuery{QueryType: "hybrid"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(entries) != 2 {
		t.Fatalf("hybrid filter: entries=%d total=%d, want 2/2", len(entries), total)
	}
	for _, e := range entries {
		if e.QueryType != "hybrid" {
			t.Errorf("filter leaked %q entry %q", e.QueryType, e.Query)
		}
	}
}

func TestListFiltersByDateWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time { return clock }

	for i, q := range []string{"day zero", "day one", "day two"} {
		clock = base.AddDate(0, 0, i)
		s.Record(ctx, "u1", q, "keyword", nil, 0)
	}

	// Window is half-open: From inclusive, To exclusive.
	entries, total, err := s.List(ctx, "u1", ListQuery{
		From: base.AddDate(0, 0, 1),
		To:   base.AddDate(0, 0, 2),
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(entries) != 1 || entries[0].Query != "day one" {
		t.Errorf("date window: %+v (total %d)", entries, total)
	}
}

func TestTrimCapsHistory(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time { return clock }

	for i := 0; i < MaxEntriesPerUser+10; i++ {
		clock = base.Add(time.Duration(i) * time.Second)
		s.Record(ctx, "u1", fmt.Sprintf("query number %d", i), "keyword", nil, 0)
	}

	entries, _, _ := s.List(ctx, "u1", ListQuery{})
	if len(entries) != MaxEntriesPerUser {
		t.Fatalf("history holds %d entries, want cap %d", len(entries), MaxEntriesPerUser)
	}
	// The oldest queries are the ones that went.
	for _, e := range entries {
		if e.Query == "query number 0" {
			t.Errorf("oldest entry survived the trim")
		}
	}
}
