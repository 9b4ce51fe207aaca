package search

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/notesearch/note-search/internal/analytics"
	"github.com/notesearch/note-search/internal/history"
	"github.com/notesearch/note-search/internal/pkg/errors"
	"github.com/notesearch/note-search/internal/pkg/logger"
	"github.com/notesearch/note-search/internal/pkg/middleware"
	"github.com/notesearch/note-search/internal/rank/fusion"
)

const defaultAnalyticsTopN = 10

// Handler provides HTTP handlers for the search API.
type Handler struct {
	svc       *Service
	history   history.Store
	analytics analytics.Store
	log       *logger.Logger
}

// NewHandler creates a new search handler.
func NewHandler(svc *Service, h history.Store, a analytics.Store, log *logger.Logger) *Handler {
	return &Handler{
		svc:       svc,
		history:   h,
		analytics: a,
		log:       log,
	}
}

// RegisterRoutes registers all API routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/search", h.HandleSearch)
	mux.HandleFunc("GET /v1/suggestions", h.HandleSuggestions)
	mux.HandleFunc("GET /v1/history", h.HandleHistoryList)
	mux.HandleFunc("DELETE /v1/history", h.HandleHistoryClear)
	mux.HandleFunc("DELETE /v1/history/{id}", h.HandleHistoryDelete)
	mux.HandleFunc("GET /v1/analytics", h.HandleAnalytics)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// userID extracts the caller identity. Every API operation is scoped to
// this user.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(middleware.UserIDHeader)
	if id == "" {
		errors.WriteError(w, errors.UnauthorizedError())
		return "", false
	}
	return id, true
}

// HandleSearch handles POST /v1/search.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.InvalidRequestError("invalid request body: "+err.Error()))
		return
	}

	resp, err := h.svc.Search(r.Context(), uid, req)
	if err != nil {
		h.log.WithUser(uid).WithError(err).Warn("search failed")
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// SuggestionsResponse is the JSON body for GET /v1/suggestions.
type SuggestionsResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}

// Suggestion is one typeahead candidate.
type Suggestion struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	UseCount   int64     `json:"useCount"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// HandleSuggestions handles GET /v1/suggestions?prefix=...&limit=...
func (h *Handler) HandleSuggestions(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	entries, serr := h.history.Suggest(r.Context(), uid, r.URL.Query().Get("prefix"), limit)
	if serr != nil {
		h.log.WithUser(uid).WithError(serr).Warn("suggestions failed")
		errors.WriteError(w, serr)
		return
	}

	resp := SuggestionsResponse{Suggestions: make([]Suggestion, len(entries))}
	for i, e := range entries {
		resp.Suggestions[i] = Suggestion{
			ID:         e.ID,
			Query:      e.Query,
			UseCount:   e.UseCount,
			LastUsedAt: e.LastUsedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HistoryResponse is the JSON body for GET /v1/history. Total counts all
// matching entries before paging.
type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
	Total   int             `json:"total"`
}

// HandleHistoryList handles
// GET /v1/history?limit=...&offset=...&type=...&from=...&to=...
func (h *Handler) HandleHistoryList(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	q := history.ListQuery{}
	var err error
	if q.Limit, err = queryInt(r, "limit", 50); err != nil {
		errors.WriteError(w, err)
		return
	}
	if q.Offset, err = queryOffset(r); err != nil {
		errors.WriteError(w, err)
		return
	}
	if q.QueryType, err = queryMode(r); err != nil {
		errors.WriteError(w, err)
		return
	}
	if q.From, err = queryTime(r, "from"); err != nil {
		errors.WriteError(w, err)
		return
	}
	if q.To, err = queryTime(r, "to"); err != nil {
		errors.WriteError(w, err)
		return
	}

	entries, total, herr := h.history.List(r.Context(), uid, q)
	if herr != nil {
		h.log.WithUser(uid).WithError(herr).Warn("history list failed")
		errors.WriteError(w, herr)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries, Total: total})
}

// HandleHistoryClear handles DELETE /v1/history. With ?before=RFC3339 only
// entries last used before the cutoff are removed.
func (h *Handler) HandleHistoryClear(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	if before := r.URL.Query().Get("before"); before != "" {
		cutoff, err := time.Parse(time.RFC3339, before)
		if err != nil {
			errors.WriteError(w, errors.InvalidRequestError("before must be an RFC3339 timestamp"))
			return
		}
		removed, derr := h.history.DeleteOlderThan(r.Context(), uid, cutoff)
		if derr != nil {
			h.log.WithUser(uid).WithError(derr).Warn("history prune failed")
			errors.WriteError(w, derr)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
		return
	}

	if err := h.history.Clear(r.Context(), uid); err != nil {
		h.log.WithUser(uid).WithError(err).Warn("history clear failed")
		errors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHistoryDelete handles DELETE /v1/history/{id}.
func (h *Handler) HandleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		errors.WriteError(w, errors.InvalidRequestError("history entry id is required"))
		return
	}

	if err := h.history.Delete(r.Context(), uid, id); err != nil {
		h.log.WithUser(uid).WithError(err).Warn("history delete failed")
		errors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAnalytics handles GET /v1/analytics?from=...&to=...&type=...&top=...
func (h *Handler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	from, err := queryTime(r, "from")
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	mode, err := queryMode(r)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	topN, err := queryInt(r, "top", defaultAnalyticsTopN)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	summary, serr := h.analytics.Summarize(r.Context(), uid, from, to, mode, topN)
	if serr != nil {
		h.log.WithUser(uid).WithError(serr).Warn("analytics summary failed")
		errors.WriteError(w, serr)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errors.InvalidRequestError(name + " must be a positive integer")
	}
	return n, nil
}

// queryOffset parses the optional offset parameter, which may be zero.
func queryOffset(r *http.Request) (int, error) {
	v := r.URL.Query().Get("offset")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.InvalidRequestError("offset must be a non-negative integer")
	}
	return n, nil
}

// queryMode parses the optional type parameter into a search mode.
func queryMode(r *http.Request) (string, error) {
	v := r.URL.Query().Get("type")
	if v == "" {
		return "", nil
	}
	if !fusion.Mode(v).Valid() {
		return "", errors.InvalidRequestError("type must be keyword, semantic or hybrid")
	}
	return v, nil
}

// queryTime parses an optional RFC3339 query parameter.
func queryTime(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errors.InvalidRequestError(name + " must be an RFC3339 timestamp")
	}
	return t, nil
}

// CORSMiddleware adds CORS headers.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+middleware.UserIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
