package search

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/notesearch/note-search/internal/analytics"
	"github.com/notesearch/note-search/internal/bus"
	"github.com/notesearch/note-search/internal/cache"
	"github.com/notesearch/note-search/internal/history"
	"github.com/notesearch/note-search/internal/pkg/logger"
)

// Recorder consumes search.completed events and writes query history and
// analytics. It also invalidates cached responses when a user's content
// changes. Running it off the bus keeps recording out of the request path
// entirely.
type Recorder struct {
	history   history.Store
	analytics analytics.Store
	cache     cache.Cache
	log       *logger.Logger
}

// NewRecorder creates a recorder over the given stores.
func NewRecorder(h history.Store, a analytics.Store, c cache.Cache, log *logger.Logger) *Recorder {
	return &Recorder{history: h, analytics: a, cache: c, log: log}
}

// Subscribe attaches the recorder to the bus.
func (r *Recorder) Subscribe(ctx context.Context, b bus.Bus) error {
	if err := b.Subscribe(ctx, bus.TopicSearchCompleted, r.handleCompleted); err != nil {
		return fmt.Errorf("subscribe %s: %w", bus.TopicSearchCompleted, err)
	}
	if err := b.Subscribe(ctx, bus.TopicContentChanged, r.handleContentChanged); err != nil {
		return fmt.Errorf("subscribe %s: %w", bus.TopicContentChanged, err)
	}
	return nil
}

func (r *Recorder) handleCompleted(ctx context.Context, event bus.Event) error {
	var payload CompletedPayload
	if err := decodePayload(event.Payload, &payload); err != nil {
		return fmt.Errorf("decode search.completed payload: %w", err)
	}
	if payload.UserID == "" {
		return nil
	}

	log := r.log.WithUser(payload.UserID)

	// A failed attempt is counted by analytics but never becomes history:
	// suggestions should only offer queries that completed.
	if !payload.Failed {
		_, err := r.history.Record(ctx, payload.UserID, payload.Query, payload.Mode, payload.Filters, payload.ResultCount)
		if err != nil {
			log.WithError(err).Warn("history record failed")
		}
	}

	err := r.analytics.Record(ctx, &analytics.Record{
		ID:              event.ID,
		UserID:          payload.UserID,
		Query:           payload.Query,
		Mode:            payload.Mode,
		ResultCount:     payload.ResultCount,
		ExecutionTimeMs: payload.ExecutionTimeMs,
		CacheHit:        payload.CacheHit,
		Failed:          payload.Failed,
		Timestamp:       payload.Timestamp,
	})
	if err != nil {
		log.WithError(err).Warn("analytics record failed")
	}
	return nil
}

// ContentChangedPayload is the search.content.changed event body.
type ContentChangedPayload struct {
	UserID string `json:"user_id"`
}

func (r *Recorder) handleContentChanged(ctx context.Context, event bus.Event) error {
	var payload ContentChangedPayload
	if err := decodePayload(event.Payload, &payload); err != nil {
		return fmt.Errorf("decode content.changed payload: %w", err)
	}
	if payload.UserID == "" {
		return nil
	}
	if err := r.cache.InvalidateUser(ctx, payload.UserID); err != nil {
		r.log.WithUser(payload.UserID).WithError(err).Warn("cache invalidation failed")
	}
	return nil
}

// decodePayload converts an event payload to a concrete type. Payloads
// arrive as structs from the memory bus and as decoded JSON maps from
// Kafka; a JSON round trip handles both.
func decodePayload(payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
