package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	// DefaultLimit is used when a search asks for no limit.
	DefaultLimit = 20
	// MaxLimit caps a single page of hits.
	MaxLimit = 100
)

// Params configures a message search.
type Params struct {
	GroupID string
	Query   string
	Limit   int
}

// Hit is one matching message.
type Hit struct {
	Timestamp time.Time `json:"timestamp"`
	MessageID string    `json:"messageId"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Score     float64   `json:"score"`
	Fragment  string    `json:"fragment,omitempty"`
}

// Result holds the hits for one search.
type Result struct {
	Query  string `json:"query"`
	Hits   []Hit  `json:"hits"`
	Total  uint64 `json:"total"`
	TookMs int64  `json:"tookMs"`
}

func groupQuery(groupID string) query.Query {
	q := bleve.NewTermQuery(groupID)
	q.SetField("group_id")
	return q
}

func buildQuery(p Params) query.Query {
	text := bleve.NewMatchQuery(p.Query)
	text.SetField("text")
	text.SetBoost(2)

	prefix := bleve.NewPrefixQuery(strings.ToLower(p.Query))
	prefix.SetField("sender")

	return bleve.NewConjunctionQuery(
		groupQuery(p.GroupID),
		bleve.NewDisjunctionQuery(text, prefix),
	)
}

// Search finds messages in one group matching p.Query, best match first and
// newest first among equal scores.
func (s *Index) Search(ctx context.Context, p Params) (*Result, error) {
	p.Query = strings.TrimSpace(p.Query)
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	p.Limit = min(p.Limit, MaxLimit)

	result := &Result{Query: p.Query, Hits: []Hit{}}
	if p.Query == "" {
		return result, nil
	}

	req := bleve.NewSearchRequestOptions(buildQuery(p), p.Limit, 0, false)
	req.SortBy([]string{"-_score", "-timestamp"})
	req.Fields = []string{"message_id", "sender", "text", "timestamp"}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField("text")

	s.mu.RLock()
	res, err := s.index.SearchInContext(ctx, req)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result.Total = res.Total
	result.TookMs = res.Took.Milliseconds()
	for _, h := range res.Hits {
		hit := Hit{
			MessageID: stringField(h.Fields, "message_id"),
			Sender:    stringField(h.Fields, "sender"),
			Text:      stringField(h.Fields, "text"),
			Score:     h.Score,
		}
		if ts := stringField(h.Fields, "timestamp"); ts != "" {
			hit.Timestamp, _ = time.Parse(time.RFC3339, ts)
		}
		if frags := h.Fragments["text"]; len(frags) > 0 {
			hit.Fragment = frags[0]
		}
		result.Hits = append(result.Hits, hit)
	}
	return result, nil
}

func stringField(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return s
}
