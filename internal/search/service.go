// Package search orchestrates the hybrid search pipeline: cache lookup,
// parallel keyword and vector retrieval, score fusion and side effect
// publication.
package search

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/notesearch/note-search/internal/bus"
	"github.com/notesearch/note-search/internal/cache"
	"github.com/notesearch/note-search/internal/content"
	"github.com/notesearch/note-search/internal/embed"
	"github.com/notesearch/note-search/internal/pkg/errors"
	"github.com/notesearch/note-search/internal/pkg/logger"
	"github.com/notesearch/note-search/internal/rank"
	"github.com/notesearch/note-search/internal/rank/fusion"
)

// MaxQueryLength bounds accepted query text.
const MaxQueryLength = 2000

// TextSearcher is the keyword retrieval stage.
type TextSearcher interface {
	Search(ctx context.Context, userID, query string, filters *content.Filters, limit int) ([]rank.TextMatch, error)
}

// Config configures the search service.
type Config struct {
	// DefaultLimit is the page size when the request names none.
	DefaultLimit int

	// MaxLimit caps the requested page size.
	MaxLimit int

	// Weights blends the keyword and vector signals in hybrid mode.
	Weights fusion.Weights

	// SimilarityThreshold drops weak vector matches.
	SimilarityThreshold float64

	// PrefetchMultiplier controls how many candidates each ranker fetches
	// relative to the requested page.
	PrefetchMultiplier int
}

// DefaultConfig returns sensible search defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:        20,
		MaxLimit:            100,
		Weights:             fusion.DefaultWeights,
		SimilarityThreshold: rank.DefaultSimilarityThreshold,
		PrefetchMultiplier:  3,
	}
}

// Service runs searches for callers.
type Service struct {
	text     TextSearcher
	vector   rank.VectorSearcher
	embedder embed.Embedder
	cache    cache.Cache
	bus      bus.Bus
	log      *logger.Logger
	cfg      Config
}

// NewService creates a search service. vector and embedder may be nil, in
// which case every search runs keyword-only.
func NewService(text TextSearcher, vector rank.VectorSearcher, embedder embed.Embedder, c cache.Cache, b bus.Bus, log *logger.Logger, cfg Config) *Service {
	if cfg.DefaultLimit == 0 {
		cfg = DefaultConfig()
	}
	return &Service{
		text:     text,
		vector:   vector,
		embedder: embedder,
		cache:    c,
		bus:      b,
		log:      log,
		cfg:      cfg,
	}
}

// Request represents a search request.
type Request struct {
	// Query is the free text to search for.
	Query string `json:"query"`

	// Mode selects keyword, semantic or hybrid ranking. Empty means keyword.
	Mode string `json:"mode,omitempty"`

	// Filters constrain the candidate set before ranking.
	Filters *content.Filters `json:"filters,omitempty"`

	// Limit is the page size.
	Limit int `json:"limit,omitempty"`

	// Offset skips ranked results for pagination.
	Offset int `json:"offset,omitempty"`

	// NoCache bypasses the response cache for this request.
	NoCache bool `json:"no_cache,omitempty"`
}

// Result is one ranked search hit. Content is the item's full text,
// untouched by highlighting.
type Result struct {
	ID           string    `json:"id"`
	EntityType   string    `json:"entityType"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Snippet      string    `json:"snippet,omitempty"`
	Highlighted  string    `json:"highlighted,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	TextRank     float64   `json:"textRank"`
	VectorRank   *float64  `json:"vectorRank,omitempty"`
	CombinedRank float64   `json:"combinedRank"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Response is a completed search. Total counts the merged candidates
// inside the prefetch window (page size times PrefetchMultiplier per
// ranker); a corpus with more matches than the window reports the
// window size, not the full corpus count.
type Response struct {
	Results         []Result `json:"results"`
	Total           int      `json:"total"`
	Query           string   `json:"query"`
	Mode            string   `json:"mode"`
	ExecutionTimeMs int64    `json:"executionTimeMs"`
	CacheHit        bool     `json:"cacheHit"`
	Degraded        bool     `json:"degraded,omitempty"`
}

// CompletedPayload is the search.completed event body consumed by the
// history and analytics recorders.
type CompletedPayload struct {
	UserID          string           `json:"user_id"`
	Query           string           `json:"query"`
	Mode            string           `json:"mode"`
	Filters         *content.Filters `json:"filters,omitempty"`
	ResultCount     int              `json:"result_count"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
	CacheHit        bool             `json:"cache_hit"`
	Failed          bool             `json:"failed,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Search executes one search for userID. The response is served from
// cache when a fresh identical request exists; otherwise the rankers run
// in parallel and the merged page is cached for the next caller. History
// and analytics recording never blocks the response.
func (s *Service) Search(ctx context.Context, userID string, req Request) (*Response, error) {
	start := time.Now()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.ValidationError("user id is required")
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errors.ValidationError("query cannot be empty")
	}
	if len(query) > MaxQueryLength {
		return nil, errors.ValidationError("query exceeds maximum length")
	}

	mode := fusion.Mode(req.Mode)
	if mode == "" {
		mode = fusion.ModeKeyword
	}
	if !mode.Valid() {
		return nil, errors.ValidationError("mode must be keyword, semantic or hybrid")
	}
	// Without a vector backend every search is keyword ranking. Keyword
	// search has no embedding dependency, so even semantic requests are
	// served rather than refused.
	if s.vector == nil || s.embedder == nil {
		mode = fusion.ModeKeyword
	}

	if req.Filters != nil {
		if err := req.Filters.Validate(); err != nil {
			return nil, errors.ValidationError(err.Error())
		}
	}

	limit := req.Limit
	switch {
	case limit <= 0:
		limit = s.cfg.DefaultLimit
	case limit > s.cfg.MaxLimit:
		limit = s.cfg.MaxLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	key := cache.Key(userID, strings.ToLower(query), req.Filters, string(mode), limit, offset)
	if !req.NoCache {
		if resp, ok := s.fromCache(ctx, key); ok {
			resp.CacheHit = true
			resp.ExecutionTimeMs = time.Since(start).Milliseconds()
			s.publishCompleted(ctx, userID, query, string(mode), req.Filters, resp)
			return resp, nil
		}
	}

	merged, degraded, err := s.retrieve(ctx, userID, query, req.Filters, mode, offset+limit)
	if err != nil {
		// Failed attempts still leave an analytics trace with zero results.
		s.publishFailed(ctx, userID, query, string(mode), req.Filters, time.Since(start).Milliseconds())
		return nil, err
	}

	page := fusion.Page(merged, offset, limit)
	resp := &Response{
		Results:         toResults(page),
		Total:           len(merged),
		Query:           query,
		Mode:            string(mode),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Degraded:        degraded,
	}

	if !req.NoCache && !degraded {
		s.store(ctx, key, userID, resp)
	}
	s.publishCompleted(ctx, userID, query, string(mode), req.Filters, resp)

	return resp, nil
}

// retrieve runs the participating rankers in parallel and merges their
// results. A failing vector stage degrades the search to keyword-only
// instead of failing it; only text retrieval errors fail the request.
func (s *Service) retrieve(ctx context.Context, userID, query string, filters *content.Filters, mode fusion.Mode, want int) ([]fusion.Scored, bool, error) {
	prefetch := want * s.cfg.PrefetchMultiplier

	var (
		textMatches   []rank.TextMatch
		vectorMatches []rank.VectorMatch
		vectorErr     error
	)

	g, gctx := errgroup.WithContext(ctx)

	if mode != fusion.ModeSemantic {
		g.Go(func() error {
			var err error
			textMatches, err = s.text.Search(gctx, userID, query, filters, prefetch)
			return err
		})
	}

	if mode != fusion.ModeKeyword {
		g.Go(func() error {
			vector, err := s.embedder.Embed(gctx, query)
			if err == nil {
				vectorMatches, err = s.vector.Search(gctx, userID, vector, filters, s.cfg.SimilarityThreshold, prefetch)
			}
			vectorErr = err
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	degraded := false
	if vectorErr != nil {
		s.log.WithUser(userID).WithError(vectorErr).Warn("vector retrieval failed, serving keyword results")
		if mode == fusion.ModeSemantic {
			// The text ranker did not participate; run it now.
			var err error
			textMatches, err = s.text.Search(ctx, userID, query, filters, prefetch)
			if err != nil {
				return nil, false, err
			}
		}
		mode = fusion.ModeKeyword
		degraded = true
	}

	return fusion.Merge(textMatches, vectorMatches, mode, s.cfg.Weights), degraded, nil
}

func (s *Service) fromCache(ctx context.Context, key string) (*Response, bool) {
	entry, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.WithError(err).Warn("cache lookup failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var resp Response
	if err := json.Unmarshal(entry.Payload, &resp); err != nil {
		s.log.WithError(err).Warn("dropping undecodable cached response", "key", key)
		return nil, false
	}
	return &resp, true
}

func (s *Service) store(ctx context.Context, key, userID string, resp *Response) {
	// The cached copy is always a cold read for the next caller.
	cached := *resp
	cached.CacheHit = false

	payload, err := json.Marshal(&cached)
	if err != nil {
		s.log.WithError(err).Warn("failed to marshal response for cache")
		return
	}
	err = s.cache.Put(ctx, &cache.Entry{
		Key:     key,
		UserID:  userID,
		Payload: payload,
	})
	if err != nil {
		s.log.WithError(err).Warn("cache store failed", "key", key)
	}
}

// publishCompleted emits the search.completed event. Failures are logged
// and swallowed: recording loss is acceptable, a slow or down bus is not
// allowed to touch the response path.
func (s *Service) publishCompleted(ctx context.Context, userID, query, mode string, filters *content.Filters, resp *Response) {
	s.publish(ctx, CompletedPayload{
		UserID:          userID,
		Query:           query,
		Mode:            mode,
		Filters:         filters,
		ResultCount:     resp.Total,
		ExecutionTimeMs: resp.ExecutionTimeMs,
		CacheHit:        resp.CacheHit,
		Timestamp:       time.Now().UTC(),
	})
}

// publishFailed emits the search.completed event for a query attempt that
// errored. The failed marker keeps it out of history while analytics still
// counts the attempt.
func (s *Service) publishFailed(ctx context.Context, userID, query, mode string, filters *content.Filters, elapsedMs int64) {
	s.publish(ctx, CompletedPayload{
		UserID:          userID,
		Query:           query,
		Mode:            mode,
		Filters:         filters,
		ExecutionTimeMs: elapsedMs,
		Failed:          true,
		Timestamp:       time.Now().UTC(),
	})
}

func (s *Service) publish(ctx context.Context, payload CompletedPayload) {
	event := bus.Event{
		ID:        uuid.NewString(),
		Type:      bus.TopicSearchCompleted,
		Source:    "search",
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
	if err := s.bus.Publish(ctx, bus.TopicSearchCompleted, event); err != nil {
		s.log.WithUser(payload.UserID).WithError(err).Warn("failed to publish search.completed")
	}
}

func toResults(scored []fusion.Scored) []Result {
	results := make([]Result, len(scored))
	for i, sc := range scored {
		results[i] = Result{
			ID:           sc.Item.ID,
			EntityType:   string(sc.Item.EntityType),
			Title:        sc.Item.Title,
			Content:      sc.Item.Content,
			Snippet:      sc.Snippet,
			Highlighted:  sc.Highlighted,
			Tags:         sc.Item.Tags,
			TextRank:     sc.TextRank,
			VectorRank:   sc.VectorRank,
			CombinedRank: sc.Combined,
			CreatedAt:    sc.Item.CreatedAt,
			UpdatedAt:    sc.Item.UpdatedAt,
		}
	}
	return results
}
