// Package rank implements the keyword and vector retrieval stages of the
// search pipeline.
package rank

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/notesearch/note-search/internal/content"
)

const (
	// titleBoost weights title matches relative to body matches.
	titleBoost = 2.0

	// snippetRadius is the number of bytes kept on each side of the first
	// match when building a snippet. The resulting snippet stays inside the
	// 150-300 character band for typical content.
	snippetRadius = 110

	// HighlightOpen and HighlightClose delimit matched terms in highlighted
	// output. The caller strips or renders them; Content is never mutated.
	HighlightOpen  = "[["
	HighlightClose = "]]"
)

// Stop words excluded from query and document terms.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true, "what": true, "how": true,
}

// TextMatch is a keyword search hit.
type TextMatch struct {
	Item        content.Item
	Score       float64 // [0,1]
	Snippet     string
	Highlighted string
}

// TextRanker executes keyword search over a content store.
type TextRanker struct {
	store content.Store
}

// NewTextRanker creates a keyword ranker backed by the given store.
func NewTextRanker(store content.Store) *TextRanker {
	return &TextRanker{store: store}
}

// Search returns items whose text matches the query, scored in [0,1] and
// ordered by descending score. A query with no usable terms yields an empty
// set; only store failures return an error. limit <= 0 means unbounded.
func (r *TextRanker) Search(ctx context.Context, userID, query string, filters *content.Filters, limit int) ([]TextMatch, error) {
	terms := QueryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	items, err := r.store.ItemsForUser(ctx, userID, filters)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}

	matches := make([]TextMatch, 0, len(items))
	for i := range items {
		m, ok := scoreItem(&items[i], terms)
		if ok {
			matches = append(matches, m)
		}
	}

	sortTextMatches(matches)

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// QueryTerms normalizes a raw query into stemmed search terms. Returns nil
// when nothing usable remains (stop words only, punctuation only).
func QueryTerms(query string) []string {
	tokens := scanTokens(query)
	seen := make(map[string]bool, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if stopWords[tok.norm] || seen[tok.norm] {
			continue
		}
		seen[tok.norm] = true
		terms = append(terms, tok.norm)
	}
	return terms
}

// token is a single word with its byte span in the original text.
type token struct {
	norm  string // lowercased, stemmed
	start int
	end   int
}

// scanTokens splits text on non-letter/non-digit boundaries, keeping byte
// offsets into the original string. Works on any script: Hangul, CJK and
// Latin runs all come out as tokens.
func scanTokens(text string) []token {
	var tokens []token
	start := -1
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, newToken(text, start, i))
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, newToken(text, start, len(text)))
	}
	return tokens
}

func newToken(text string, start, end int) token {
	return token{
		norm:  stem(strings.ToLower(text[start:end])),
		start: start,
		end:   end,
	}
}

// stem strips common English suffixes. Non-ASCII words pass through
// unchanged; exact matching is the correct behavior for scripts without
// inflectional suffixes we can safely strip.
func stem(word string) string {
	if !isASCII(word) {
		return word
	}
	switch {
	case strings.HasSuffix(word, "'s"):
		word = word[:len(word)-2]
	}
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "sses"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "ing") && len(word) > 5:
		return word[:len(word)-3]
	case strings.HasSuffix(word, "ed") && len(word) > 4:
		return word[:len(word)-2]
	case strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") && len(word) > 3:
		return word[:len(word)-1]
	}
	return word
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// scoreItem computes the relevance of one item against the query terms.
// The score combines term coverage, weighted term frequency (title counts
// double) and proximity of the matched terms in the body.
func scoreItem(item *content.Item, terms []string) (TextMatch, bool) {
	titleTokens := scanTokens(item.Title)
	bodyTokens := scanTokens(item.Content)

	termSet := make(map[string]bool, len(terms))
	for _, t := range terms {
		termSet[t] = true
	}

	matched := make(map[string]bool, len(terms))
	weightedTF := 0.0

	for _, tok := range titleTokens {
		if termSet[tok.norm] {
			matched[tok.norm] = true
			weightedTF += titleBoost
		}
	}

	var matchedBody []int // body token indexes that hit a query term
	for i, tok := range bodyTokens {
		if termSet[tok.norm] {
			matched[tok.norm] = true
			weightedTF += 1.0
			matchedBody = append(matchedBody, i)
		}
	}

	if len(matched) == 0 {
		return TextMatch{}, false
	}

	coverage := float64(len(matched)) / float64(len(terms))
	tfScore := 1.0 - 1.0/(1.0+weightedTF)

	// Title-only matches have no body spread to penalize.
	prox := 1.0
	if len(matchedBody) > 0 {
		prox = proximity(bodyTokens, matchedBody)
	}

	score := coverage * (0.5 + 0.3*tfScore + 0.2*prox)

	m := TextMatch{
		Item:  *item,
		Score: score,
	}
	if len(matchedBody) > 0 {
		first := bodyTokens[matchedBody[0]]
		m.Snippet = snippetAround(item.Content, first.start, first.end)
		m.Highlighted = highlight(item.Content, bodyTokens, termSet)
	}
	return m, true
}

// proximity measures how tightly the matched terms cluster in the body.
// 1.0 means all distinct matched terms appear in a window with no gaps;
// single-term matches always score 1.0.
func proximity(bodyTokens []token, matchedBody []int) float64 {
	distinct := make(map[string]bool)
	for _, i := range matchedBody {
		distinct[bodyTokens[i].norm] = true
	}
	need := len(distinct)
	if need <= 1 {
		return 1.0
	}

	// Minimal window (in tokens) over matched positions containing every
	// distinct matched term at least once.
	best := len(bodyTokens)
	counts := make(map[string]int, need)
	have := 0
	left := 0
	for right := 0; right < len(matchedBody); right++ {
		term := bodyTokens[matchedBody[right]].norm
		counts[term]++
		if counts[term] == 1 {
			have++
		}
		for have == need {
			window := matchedBody[right] - matchedBody[left] + 1
			if window < best {
				best = window
			}
			leftTerm := bodyTokens[matchedBody[left]].norm
			counts[leftTerm]--
			if counts[leftTerm] == 0 {
				have--
			}
			left++
		}
	}
	return float64(need) / float64(best)
}

// snippetAround extracts the surrounding context of a match, trimmed to
// rune boundaries and whitespace, with ellipses when truncated.
func snippetAround(text string, matchStart, matchEnd int) string {
	start := matchStart - snippetRadius
	if start < 0 {
		start = 0
	}
	end := matchEnd + snippetRadius
	if end > len(text) {
		end = len(text)
	}

	// Never cut multi-byte runes in half.
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}

	snippet := text[start:end]

	// Trim partial words at the cut points.
	if start > 0 {
		if idx := strings.IndexAny(snippet, " \t\n"); idx >= 0 && idx < matchStart-start {
			snippet = snippet[idx+1:]
		}
		snippet = "…" + snippet
	}
	if end < len(text) {
		if idx := strings.LastIndexAny(snippet, " \t\n"); idx > len(snippet)-40 {
			snippet = snippet[:idx]
		}
		snippet = snippet + "…"
	}
	return strings.TrimSpace(snippet)
}

// highlight wraps every matched token in the delimiters. The original text
// between tokens is preserved byte for byte.
func highlight(text string, tokens []token, termSet map[string]bool) string {
	var b strings.Builder
	b.Grow(len(text) + 16)
	prev := 0
	for _, tok := range tokens {
		if !termSet[tok.norm] {
			continue
		}
		b.WriteString(text[prev:tok.start])
		b.WriteString(HighlightOpen)
		b.WriteString(text[tok.start:tok.end])
		b.WriteString(HighlightClose)
		prev = tok.end
	}
	b.WriteString(text[prev:])
	return b.String()
}

// sortTextMatches orders by score descending, breaking ties by most recent
// update then identity for determinism.
func sortTextMatches(matches []TextMatch) {
	sortSlice(matches, func(a, b TextMatch) bool {
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Item.UpdatedAt.Equal(b.Item.UpdatedAt) {
			return a.Item.UpdatedAt.After(b.Item.UpdatedAt)
		}
		return a.Item.Key() < b.Item.Key()
	})
}
