// Package main provides the note-search command line client.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "note-search",
		Short: "Note Search - query the hybrid search API from the terminal",
		Long: `Note Search is the command line client for the note search server.

Run 'note-search search "release checklist"' to search your notes.
Every command needs --user (or NOTESEARCH_USER) to identify the caller.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "server base URL")
	rootCmd.PersistentFlags().StringP("user", "u", os.Getenv("NOTESEARCH_USER"), "user id for data isolation")
	rootCmd.PersistentFlags().Bool("json", false, "print raw JSON responses")

	rootCmd.AddCommand(
		searchCmd(),
		suggestCmd(),
		historyCmd(),
		analyticsCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type client struct {
	base string
	user string
	http *http.Client
	raw  bool
}

func newClient(cmd *cobra.Command) (*client, error) {
	base, _ := cmd.Flags().GetString("server")
	user, _ := cmd.Flags().GetString("user")
	raw, _ := cmd.Flags().GetBool("json")
	if user == "" {
		return nil, fmt.Errorf("--user is required (or set NOTESEARCH_USER)")
	}
	return &client{
		base: base,
		user: user,
		http: &http.Client{Timeout: 30 * time.Second},
		raw:  raw,
	}, nil
}

func (c *client) do(method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-User-ID", c.user)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var appErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &appErr) == nil && appErr.Error != "" {
			return nil, fmt.Errorf("%s: %s", resp.Status, appErr.Error)
		}
		return nil, fmt.Errorf("%s", resp.Status)
	}
	return data, nil
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search notes and documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			mode, _ := cmd.Flags().GetString("mode")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			tags, _ := cmd.Flags().GetStringSlice("tag")
			entity, _ := cmd.Flags().GetString("type")

			req := map[string]any{
				"query":  args[0],
				"mode":   mode,
				"limit":  limit,
				"offset": offset,
			}
			filters := map[string]any{}
			if len(tags) > 0 {
				filters["tags"] = tags
			}
			if entity != "" {
				filters["entity_type"] = entity
			}
			if len(filters) > 0 {
				req["filters"] = filters
			}

			data, err := c.do(http.MethodPost, "/v1/search", req)
			if err != nil {
				return err
			}
			if c.raw {
				fmt.Println(string(data))
				return nil
			}

			var resp struct {
				Results []struct {
					ID           string  `json:"id"`
					EntityType   string  `json:"entityType"`
					Title        string  `json:"title"`
					Snippet      string  `json:"snippet"`
					CombinedRank float64 `json:"combinedRank"`
				} `json:"results"`
				Total           int    `json:"total"`
				Mode            string `json:"mode"`
				ExecutionTimeMs int64  `json:"executionTimeMs"`
				CacheHit        bool   `json:"cacheHit"`
				Degraded        bool   `json:"degraded"`
			}
			if err := json.Unmarshal(data, &resp); err != nil {
				return err
			}

			for i, r := range resp.Results {
				fmt.Printf("%2d. [%.3f] %s (%s/%s)\n", i+1, r.CombinedRank, r.Title, r.EntityType, r.ID)
				if r.Snippet != "" {
					fmt.Printf("      %s\n", r.Snippet)
				}
			}
			suffix := ""
			if resp.CacheHit {
				suffix = ", cached"
			}
			if resp.Degraded {
				suffix += ", degraded"
			}
			fmt.Printf("\n%d results (%s, %dms%s)\n", resp.Total, resp.Mode, resp.ExecutionTimeMs, suffix)
			return nil
		},
	}
	cmd.Flags().StringP("mode", "m", "hybrid", "search mode (keyword, semantic, hybrid)")
	cmd.Flags().IntP("limit", "n", 20, "maximum results")
	cmd.Flags().Int("offset", 0, "pagination offset")
	cmd.Flags().StringSlice("tag", nil, "filter: require tag (repeatable)")
	cmd.Flags().StringP("type", "t", "", "filter: entity type (note, document)")
	return cmd
}

func suggestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest [prefix]",
		Short: "Show query suggestions from your history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			q := url.Values{"limit": {strconv.Itoa(limit)}}
			if len(args) > 0 {
				q.Set("prefix", args[0])
			}

			data, err := c.do(http.MethodGet, "/v1/suggestions?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			if c.raw {
				fmt.Println(string(data))
				return nil
			}

			var resp struct {
				Suggestions []struct {
					Query    string `json:"query"`
					UseCount int64  `json:"useCount"`
				} `json:"suggestions"`
			}
			if err := json.Unmarshal(data, &resp); err != nil {
				return err
			}
			for _, s := range resp.Suggestions {
				fmt.Printf("%s (%d)\n", s.Query, s.UseCount)
			}
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 10, "maximum suggestions")
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			mode, _ := cmd.Flags().GetString("type")

			q := url.Values{"limit": {strconv.Itoa(limit)}}
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}
			if mode != "" {
				q.Set("type", mode)
			}
			data, err := c.do(http.MethodGet, "/v1/history?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			if c.raw {
				fmt.Println(string(data))
				return nil
			}

			var resp struct {
				Entries []struct {
					ID         string    `json:"id"`
					Query      string    `json:"query"`
					QueryType  string    `json:"query_type"`
					UseCount   int64     `json:"use_count"`
					LastUsedAt time.Time `json:"last_used_at"`
				} `json:"entries"`
				Total int `json:"total"`
			}
			if err := json.Unmarshal(data, &resp); err != nil {
				return err
			}
			for _, e := range resp.Entries {
				fmt.Printf("%s  %-40q %-8s x%d  (%s)\n",
					e.LastUsedAt.Local().Format("2006-01-02 15:04"), e.Query, e.QueryType, e.UseCount, e.ID)
			}
			if resp.Total > len(resp.Entries) {
				fmt.Printf("showing %d of %d entries\n", len(resp.Entries), resp.Total)
			}
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 50, "maximum entries")
	cmd.Flags().Int("offset", 0, "pagination offset")
	cmd.Flags().StringP("type", "t", "", "filter: search mode (keyword, semantic, hybrid)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "clear",
			Short: "Delete all history entries",
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := newClient(cmd)
				if err != nil {
					return err
				}
				if _, err := c.do(http.MethodDelete, "/v1/history", nil); err != nil {
					return err
				}
				fmt.Println("history cleared")
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete one history entry",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := newClient(cmd)
				if err != nil {
					return err
				}
				if _, err := c.do(http.MethodDelete, "/v1/history/"+url.PathEscape(args[0]), nil); err != nil {
					return err
				}
				fmt.Println("deleted")
				return nil
			},
		},
	)
	return cmd
}

func analyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show search usage summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			days, _ := cmd.Flags().GetInt("days")
			top, _ := cmd.Flags().GetInt("top")
			mode, _ := cmd.Flags().GetString("type")

			q := url.Values{"top": {strconv.Itoa(top)}}
			if days > 0 {
				q.Set("from", time.Now().AddDate(0, 0, -days).UTC().Format(time.RFC3339))
			}
			if mode != "" {
				q.Set("type", mode)
			}

			data, err := c.do(http.MethodGet, "/v1/analytics?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			if c.raw {
				fmt.Println(string(data))
				return nil
			}

			var sum struct {
				TotalSearches    int64            `json:"total_searches"`
				AvgExecutionMs   float64          `json:"avg_execution_time_ms"`
				AvgResultCount   float64          `json:"avg_result_count"`
				CacheHitRate     float64          `json:"cache_hit_rate"`
				FastSearches     int64            `json:"fast_searches"`
				SlowSearches     int64            `json:"slow_searches"`
				ModeDistribution map[string]int64 `json:"mode_distribution"`
				TopQueries       []struct {
					Query          string  `json:"query"`
					Count          int64   `json:"count"`
					AvgResultCount float64 `json:"avg_result_count"`
				} `json:"top_queries"`
			}
			if err := json.Unmarshal(data, &sum); err != nil {
				return err
			}

			fmt.Printf("searches:    %d (%.0f%% cached)\n", sum.TotalSearches, sum.CacheHitRate*100)
			fmt.Printf("latency:     %.0fms avg, %d fast, %d slow\n", sum.AvgExecutionMs, sum.FastSearches, sum.SlowSearches)
			fmt.Printf("avg results: %.1f\n", sum.AvgResultCount)
			for mode, n := range sum.ModeDistribution {
				fmt.Printf("  %-8s %d\n", mode, n)
			}
			if len(sum.TopQueries) > 0 {
				fmt.Println("top queries:")
				for _, tq := range sum.TopQueries {
					fmt.Printf("  %4d  %-40s %.1f avg results\n", tq.Count, tq.Query, tq.AvgResultCount)
				}
			}
			return nil
		},
	}
	cmd.Flags().Int("days", 30, "look back this many days (0 = all time)")
	cmd.Flags().Int("top", 10, "number of top queries")
	cmd.Flags().StringP("type", "t", "", "filter: search mode (keyword, semantic, hybrid)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("note-search %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}
