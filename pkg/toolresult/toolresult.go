// Package toolresult normalizes arbitrary tool-invocation outputs into one
// canonical display payload and merges payload lists without duplication.
// Tool results arrive in whatever shape each tool produced; the dashboard
// only ever renders the canonical form.
package toolresult

import (
	"strings"
)

// Payload is the canonical tool-call result.
type Payload struct {
	Name       string                 `json:"name"`
	Summary    string                 `json:"summary,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`

	// Result is nil when the tool produced no renderable result data.
	// Consumers test Result == nil instead of probing an empty mapping.
	Result *Result `json:"result,omitempty"`
}

// Result holds the allow-listed result fields. Anything a tool emits
// outside this set is dropped — it bounds payload size and keeps internal
// tool state out of the dashboard.
type Result struct {
	Success      *bool                  `json:"success,omitempty"`
	SearchEngine string                 `json:"search_engine,omitempty"`
	Query        string                 `json:"query,omitempty"`
	Response     string                 `json:"response,omitempty"`
	Answer       string                 `json:"answer,omitempty"`
	Error        string                 `json:"error,omitempty"`
	TotalResults *int                   `json:"total_results,omitempty"`
	Results      []Item                 `json:"results,omitempty"`
	Prompt       string                 `json:"prompt,omitempty"`
	Triples      []interface{}          `json:"triples,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Subgraph     map[string]interface{} `json:"subgraph,omitempty"`
}

// Item is a single search-style result entry. An item survives
// sanitization if at least one field is present.
type Item struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Source  string `json:"source,omitempty"`
}

func (i Item) empty() bool {
	return i.Title == "" && i.URL == "" && i.Snippet == "" && i.Source == ""
}

// Normalize rebuilds a raw tool result into the canonical payload. It
// returns nil — not an error — when the input carries nothing renderable;
// "no payload" is an ordinary outcome, not a failure.
func Normalize(raw interface{}) *Payload {
	m, ok := raw.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil
	}

	p := &Payload{}

	p.Name = cleanString(m["name"])
	if p.Name == "" {
		// Some tool runners report under tool_name instead.
		p.Name = cleanString(m["tool_name"])
	}

	p.Summary = cleanString(m["summary"])
	if p.Summary == "" {
		p.Summary = cleanString(m["message"])
	}

	if params, ok := m["parameters"].(map[string]interface{}); ok && len(params) > 0 {
		p.Parameters = params
	}

	p.Result = normalizeResult(m["result"])

	if p.Name == "" && p.Summary == "" && p.Parameters == nil && p.Result == nil {
		return nil
	}
	return p
}

// normalizeResult rebuilds the result mapping field-by-field from the
// allow-list. It returns nil when nothing survives so callers get an
// explicit absent marker instead of an empty struct.
func normalizeResult(raw interface{}) *Result {
	m, ok := raw.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil
	}

	r := &Result{}
	populated := false

	if v, ok := m["success"].(bool); ok {
		r.Success = &v
		populated = true
	}
	if s := cleanString(m["search_engine"]); s != "" {
		r.SearchEngine = s
		populated = true
	}
	if s := cleanString(m["query"]); s != "" {
		r.Query = s
		populated = true
	}
	if s := cleanString(m["response"]); s != "" {
		r.Response = s
		populated = true
	}
	if s := cleanString(m["answer"]); s != "" {
		r.Answer = s
		populated = true
	}
	if s := cleanString(m["error"]); s != "" {
		r.Error = s
		populated = true
	}
	if n, ok := coerceInt(m["total_results"]); ok {
		r.TotalResults = &n
		populated = true
	}
	if items := sanitizeItems(m["results"]); len(items) > 0 {
		r.Results = items
		populated = true
	}
	if s := cleanString(m["prompt"]); s != "" {
		r.Prompt = s
		populated = true
	}
	if triples, ok := m["triples"].([]interface{}); ok && len(triples) > 0 {
		r.Triples = triples
		populated = true
	}
	if meta, ok := m["metadata"].(map[string]interface{}); ok && len(meta) > 0 {
		r.Metadata = meta
		populated = true
	}
	if sub, ok := m["subgraph"].(map[string]interface{}); ok && len(sub) > 0 {
		r.Subgraph = sub
		populated = true
	}

	if !populated {
		return nil
	}
	return r
}

// sanitizeItems keeps every item that has at least one known field.
// Partial items are kept as-is; only fully empty ones are dropped.
func sanitizeItems(raw interface{}) []Item {
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	var items []Item
	for _, entry := range list {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		item := Item{
			Title:   cleanString(m["title"]),
			URL:     cleanString(m["url"]),
			Snippet: cleanString(m["snippet"]),
			Source:  cleanString(m["source"]),
		}
		if item.empty() {
			continue
		}
		items = append(items, item)
	}
	return items
}

// mergeKey deduplicates payloads on (name, summary, result.query), each
// component defaulting to the empty string.
func mergeKey(p Payload) string {
	query := ""
	if p.Result != nil {
		query = p.Result.Query
	}
	return p.Name + "\x00" + p.Summary + "\x00" + query
}

// Merge combines existing payloads with additions. Existing entries keep
// their original order, additions are appended in encounter order, and the
// first entry seen under a key wins. Merging the same additions twice is a
// no-op, so retried chat turns cannot duplicate dashboard entries.
func Merge(existing, additions []Payload) []Payload {
	merged := make([]Payload, 0, len(existing)+len(additions))
	seen := make(map[string]bool, len(existing)+len(additions))

	for _, p := range existing {
		key := mergeKey(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, p)
	}
	for _, p := range additions {
		key := mergeKey(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, p)
	}
	return merged
}

func cleanString(raw interface{}) string {
	s, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func coerceInt(raw interface{}) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
		return 0, false
	default:
		return 0, false
	}
}
