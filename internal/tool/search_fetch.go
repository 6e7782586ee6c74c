package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ngoclaw/toolorch/internal/docstore"
	"github.com/ngoclaw/toolorch/internal/llm"
)

var slugNonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	s = slugNonAlnumRe.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

// SearchTool and FetchTool implement the thin, deliberately-separate search
// and fetch handler pair (spec §4.11): search synthesizes a short result
// list from a single LLM call and caches the full response; fetch looks the
// cached document back up by id.
type SearchTool struct {
	llm   llm.Client
	cache *docstore.Cache
	model string
	now   func() time.Time
}

// NewSearchTool builds a search tool that tags every cached document with
// model, the model id recorded in the document's metadata (spec §3).
func NewSearchTool(client llm.Client, cache *docstore.Cache, model string) *SearchTool {
	return &SearchTool{llm: client, cache: cache, model: model, now: time.Now}
}

func (s *SearchTool) Name() string        { return "search" }
func (s *SearchTool) Description() string { return "Search for information about a topic and return a short list of results." }
func (s *SearchTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
		"required":   []string{"query"},
	}
}

func (s *SearchTool) Execute(ctx context.Context, args map[string]interface{}, rc RunContext) (*Result, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return &Result{Success: false, Content: "missing required argument: query"}, nil
	}

	prompt := fmt.Sprintf("Search and provide information about: %s…", query)
	response, err := s.llm.Query(ctx, prompt, llm.Options{}, nil)
	if err != nil {
		return &Result{Success: false, Content: err.Error()}, nil
	}

	now := s.now()
	millis := now.UnixMilli()
	slug := slugify(query)
	meta := docstore.Metadata{Query: query, Timestamp: now, Model: s.model}

	type searchResult struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	var results []searchResult

	lines := strings.Split(response, "\n")
	count := 0
	for _, line := range lines {
		if count >= 3 {
			break
		}
		trimmed := strings.TrimSpace(line)
		if len(trimmed) <= 10 {
			continue
		}
		title := trimmed
		if len(title) > 100 {
			title = title[:100]
		}
		id := fmt.Sprintf("doc-%d-%d", millis, count)
		url := fmt.Sprintf("https://gemini-search/%s/%d", slug, count)

		s.cache.Put(docstore.Document{ID: id, Title: title, URL: url, Text: response, Metadata: meta})
		results = append(results, searchResult{ID: id, Title: title, URL: url})
		count++
	}

	data, err := json.Marshal(results)
	if err != nil {
		return &Result{Success: false, Content: err.Error()}, nil
	}
	return &Result{Success: true, Content: string(data)}, nil
}

// FetchTool looks up a previously cached search result by id.
type FetchTool struct {
	cache *docstore.Cache
}

func NewFetchTool(cache *docstore.Cache) *FetchTool {
	return &FetchTool{cache: cache}
}

func (f *FetchTool) Name() string        { return "fetch" }
func (f *FetchTool) Description() string { return "Fetch a previously cached search result by id." }
func (f *FetchTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"id": map[string]interface{}{"type": "string"}},
		"required":   []string{"id"},
	}
}

func (f *FetchTool) Execute(ctx context.Context, args map[string]interface{}, rc RunContext) (*Result, error) {
	id, _ := args["id"].(string)
	doc, ok := f.cache.Get(id)
	if !ok {
		return &Result{Success: false, Content: fmt.Sprintf("no cached document for id %q", id)}, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return &Result{Success: false, Content: err.Error()}, nil
	}
	return &Result{Success: true, Content: string(data)}, nil
}
