// Package analytics aggregates per-user search activity into summaries:
// volumes, latency buckets, mode distribution and top queries.
package analytics

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Latency bucket thresholds in milliseconds.
const (
	FastThresholdMs = 200
	SlowThresholdMs = 1000
)

// Record is one completed search.
type Record struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Query           string    `json:"query"`
	Mode            string    `json:"mode"`
	ResultCount     int       `json:"result_count"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	CacheHit        bool      `json:"cache_hit"`
	Failed          bool      `json:"failed,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// QueryCount is a query with usage volume and how many results it
// returned on average, for top-query lists.
type QueryCount struct {
	Query          string  `json:"query"`
	Count          int64   `json:"count"`
	AvgResultCount float64 `json:"avg_result_count"`
}

// DayBucket is the search volume and average latency for one UTC day.
type DayBucket struct {
	Date               string  `json:"date"` // 2006-01-02
	Count              int64   `json:"count"`
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`
}

// Summary is the aggregate view over a time range. Summaries are additive:
// the summary over a range equals the merge of summaries over any partition
// of that range.
type Summary struct {
	TotalSearches      int64            `json:"total_searches"`
	AvgExecutionTimeMs float64          `json:"avg_execution_time_ms"`
	AvgResultCount     float64          `json:"avg_result_count"`
	CacheHitRate       float64          `json:"cache_hit_rate"`
	FastSearches       int64            `json:"fast_searches"`
	SlowSearches       int64            `json:"slow_searches"`
	ModeDistribution   map[string]int64 `json:"mode_distribution"`
	TopQueries         []QueryCount     `json:"top_queries"`
	Daily              []DayBucket      `json:"daily"`
}

// Store persists search records and serves range summaries. Ranges are
// half-open: from inclusive, to exclusive. A non-empty mode restricts
// the summary to records of that search mode.
type Store interface {
	Record(ctx context.Context, rec *Record) error
	Summarize(ctx context.Context, userID string, from, to time.Time, mode string, topN int) (*Summary, error)

	// Purge drops records before the cutoff and reports how many went.
	Purge(ctx context.Context, userID string, cutoff time.Time) (int, error)

	Close() error
}

// queryStats accumulates per-query volume and result totals.
type queryStats struct {
	count   int64
	results int64
}

// dayStats accumulates per-day volume and latency totals.
type dayStats struct {
	count int64
	ms    int64
}

// summarize folds raw records into a Summary. Shared by the store
// implementations so they aggregate identically. A non-empty mode keeps
// only records of that mode.
func summarize(records []Record, mode string, topN int) *Summary {
	s := &Summary{
		ModeDistribution: make(map[string]int64),
	}

	var totalMs, totalResults, cacheHits int64
	queries := make(map[string]*queryStats)
	days := make(map[string]*dayStats)

	for _, r := range records {
		if mode != "" && r.Mode != mode {
			continue
		}
		s.TotalSearches++
		totalMs += r.ExecutionTimeMs
		totalResults += int64(r.ResultCount)
		if r.CacheHit {
			cacheHits++
		}
		if r.ExecutionTimeMs < FastThresholdMs {
			s.FastSearches++
		}
		if r.ExecutionTimeMs > SlowThresholdMs {
			s.SlowSearches++
		}
		s.ModeDistribution[r.Mode]++

		normalized := strings.Join(strings.Fields(strings.ToLower(r.Query)), " ")
		if normalized != "" {
			qs := queries[normalized]
			if qs == nil {
				qs = &queryStats{}
				queries[normalized] = qs
			}
			qs.count++
			qs.results += int64(r.ResultCount)
		}

		day := r.Timestamp.UTC().Format("2006-01-02")
		ds := days[day]
		if ds == nil {
			ds = &dayStats{}
			days[day] = ds
		}
		ds.count++
		ds.ms += r.ExecutionTimeMs
	}

	if s.TotalSearches == 0 {
		return s
	}

	n := float64(s.TotalSearches)
	s.AvgExecutionTimeMs = float64(totalMs) / n
	s.AvgResultCount = float64(totalResults) / n
	s.CacheHitRate = float64(cacheHits) / n

	for q, qs := range queries {
		s.TopQueries = append(s.TopQueries, QueryCount{
			Query:          q,
			Count:          qs.count,
			AvgResultCount: float64(qs.results) / float64(qs.count),
		})
	}
	sort.Slice(s.TopQueries, func(i, j int) bool {
		if s.TopQueries[i].Count != s.TopQueries[j].Count {
			return s.TopQueries[i].Count > s.TopQueries[j].Count
		}
		return s.TopQueries[i].Query < s.TopQueries[j].Query
	})
	if topN > 0 && len(s.TopQueries) > topN {
		s.TopQueries = s.TopQueries[:topN]
	}

	for d, ds := range days {
		s.Daily = append(s.Daily, DayBucket{
			Date:               d,
			Count:              ds.count,
			AvgExecutionTimeMs: float64(ds.ms) / float64(ds.count),
		})
	}
	sort.Slice(s.Daily, func(i, j int) bool { return s.Daily[i].Date < s.Daily[j].Date })

	return s
}

// inRange reports whether ts falls in [from, to). A zero bound is open.
func inRange(ts, from, to time.Time) bool {
	if !from.IsZero() && ts.Before(from) {
		return false
	}
	if !to.IsZero() && !ts.Before(to) {
		return false
	}
	return true
}
