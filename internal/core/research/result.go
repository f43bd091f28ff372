package research

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Confidence levels assigned by the normalizers.
const (
	FallbackConfidence    = 0.3
	UnavailableConfidence = 0.2
	NoResultsConfidence   = 0.1
	FactConfidence        = 0.95
	SectionConfidence     = 0.85
	AnalysisConfidence    = 0.6
)

// Tags with fixed meaning.
const (
	TagFallback  = "fallback"
	TagNoResults = "no-results"
)

// Evidence is one normalized finding.
type Evidence struct {
	Title      string
	Content    string
	Source     string
	Confidence float64
	Tags       []string
}

// FactRecord is the payload of a fact-class tool.
type FactRecord struct {
	Symbol  string   `json:"symbol"`
	Year    int      `json:"year"`
	Concept string   `json:"concept"`
	Value   *float64 `json:"value"`
	Unit    string   `json:"unit,omitempty"`
	Source  string   `json:"source,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// SectionRecord is the payload of a section-class tool.
type SectionRecord struct {
	Symbol  string `json:"symbol"`
	Year    int    `json:"year"`
	Section string `json:"section"`
	Content string `json:"content,omitempty"`
	Source  string `json:"source,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SearchRecord is one hit of a search-class tool.
type SearchRecord struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Source     string   `json:"source"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
}

// SearchResults is the payload of a search-class tool.
type SearchResults struct {
	Results    []SearchRecord `json:"results"`
	TotalCount int            `json:"total_count"`
}

// AnalysisRecord is the payload of an analysis-class tool.
type AnalysisRecord struct {
	Analysis string `json:"analysis"`
	Source   string `json:"source,omitempty"`
}

// ToolResult is a discriminated union over tool result shapes. Exactly the
// field matching Kind is set.
type ToolResult struct {
	Kind     ToolClass
	Tool     string
	Query    string
	Fact     *FactRecord
	Section  *SectionRecord
	Search   *SearchResults
	Analysis *AnalysisRecord
}

// DecodeResult decodes a raw tool payload into the union member for the
// tool's class.
func DecodeResult(tool, query string, payload []byte) (ToolResult, error) {
	class := ClassOf(tool)
	result := ToolResult{Kind: class, Tool: tool, Query: query}

	var err error
	switch class {
	case ClassFact:
		result.Fact = &FactRecord{}
		err = json.Unmarshal(payload, result.Fact)
	case ClassSection:
		result.Section = &SectionRecord{}
		err = json.Unmarshal(payload, result.Section)
	case ClassAnalysis:
		result.Analysis = &AnalysisRecord{}
		err = json.Unmarshal(payload, result.Analysis)
	default:
		result.Search = &SearchResults{}
		err = json.Unmarshal(payload, result.Search)
	}
	if err != nil {
		return ToolResult{}, fmt.Errorf("%w: %s returned undecodable %s result: %v", ErrMalformed, tool, class, err)
	}
	return result, nil
}

// Normalize converts a tool result into evidence. Every kind yields at
// least one item so that a completed step always carries evidence.
func Normalize(r ToolResult) []Evidence {
	switch r.Kind {
	case ClassFact:
		return normalizeFact(r.Tool, r.Fact)
	case ClassSection:
		return normalizeSection(r.Tool, r.Section)
	case ClassAnalysis:
		return normalizeAnalysis(r.Tool, r.Query, r.Analysis)
	default:
		return normalizeSearch(r.Tool, r.Query, r.Search)
	}
}

func normalizeFact(tool string, f *FactRecord) []Evidence {
	if f == nil {
		f = &FactRecord{}
	}
	title := fmt.Sprintf("%s %s (%d)", f.Symbol, f.Concept, f.Year)
	source := f.Source
	if source == "" {
		source = tool
	}

	if f.Value == nil {
		reason := f.Error
		if reason == "" {
			reason = "no value reported"
		}
		return []Evidence{{
			Title:      title,
			Content:    fmt.Sprintf("Data not available: %s", reason),
			Source:     source,
			Confidence: UnavailableConfidence,
			Tags:       []string{"financial-fact", "unavailable"},
		}}
	}

	unit := f.Unit
	if unit == "" {
		unit = "USD"
	}
	return []Evidence{{
		Title:      title,
		Content:    fmt.Sprintf("%s reported %s of %s %s for fiscal year %d.", f.Symbol, f.Concept, formatAmount(*f.Value), unit, f.Year),
		Source:     source,
		Confidence: FactConfidence,
		Tags:       []string{"financial-fact", strings.ToLower(f.Concept)},
	}}
}

func normalizeSection(tool string, s *SectionRecord) []Evidence {
	if s == nil {
		s = &SectionRecord{}
	}
	title := fmt.Sprintf("%s %d 10-K: %s", s.Symbol, s.Year, s.Section)
	source := s.Source
	if source == "" {
		source = tool
	}

	if strings.TrimSpace(s.Content) == "" {
		reason := s.Error
		if reason == "" {
			reason = "section is empty"
		}
		return []Evidence{{
			Title:      title,
			Content:    fmt.Sprintf("Section not available: %s", reason),
			Source:     source,
			Confidence: UnavailableConfidence,
			Tags:       []string{"document-section", "unavailable"},
		}}
	}

	return []Evidence{{
		Title:      title,
		Content:    s.Content,
		Source:     source,
		Confidence: SectionConfidence,
		Tags:       []string{"document-section", slug(s.Section)},
	}}
}

func normalizeSearch(tool, query string, s *SearchResults) []Evidence {
	if s == nil || len(s.Results) == 0 {
		return []Evidence{{
			Title:      fmt.Sprintf("No results from %s", tool),
			Content:    fmt.Sprintf("The search for %q returned no matching records.", query),
			Source:     tool,
			Confidence: NoResultsConfidence,
			Tags:       []string{TagNoResults},
		}}
	}

	items := make([]Evidence, 0, len(s.Results))
	for _, rec := range s.Results {
		source := rec.Source
		if source == "" {
			source = tool
		}
		items = append(items, Evidence{
			Title:      rec.Title,
			Content:    rec.Content,
			Source:     source,
			Confidence: ClampConfidence(rec.Confidence),
			Tags:       append([]string(nil), rec.Tags...),
		})
	}
	return items
}

func normalizeAnalysis(tool, query string, a *AnalysisRecord) []Evidence {
	text := ""
	source := tool
	if a != nil {
		text = strings.TrimSpace(a.Analysis)
		if a.Source != "" {
			source = a.Source
		}
	}
	if text == "" {
		return []Evidence{{
			Title:      fmt.Sprintf("No analysis from %s", tool),
			Content:    fmt.Sprintf("The analysis request %q produced no output.", query),
			Source:     source,
			Confidence: NoResultsConfidence,
			Tags:       []string{"analysis", TagNoResults},
		}}
	}
	return []Evidence{{
		Title:      fmt.Sprintf("Analysis: %s", truncate(query, 80)),
		Content:    text,
		Source:     source,
		Confidence: AnalysisConfidence,
		Tags:       []string{"analysis"},
	}}
}

// FallbackEvidence stands in for a tool call that failed so the step still
// yields evidence.
func FallbackEvidence(tool, description string, cause error) Evidence {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	return Evidence{
		Title:      fmt.Sprintf("Fallback: %s", truncate(description, 80)),
		Content:    fmt.Sprintf("Tool %s was unavailable (%s). No external data was collected for: %s", tool, reason, description),
		Source:     "fallback",
		Confidence: FallbackConfidence,
		Tags:       []string{TagFallback},
	}
}

// TagWithProxy adds the proxy's observable measure to every item's tags.
func TagWithProxy(items []Evidence, p *ProxyHypothesis) []Evidence {
	if p == nil || p.ObservableProxy == "" {
		return items
	}
	for i := range items {
		if !contains(items[i].Tags, p.ObservableProxy) {
			items[i].Tags = append(items[i].Tags, p.ObservableProxy)
		}
	}
	return items
}

// Summarize describes a tool result in one line for the step record.
func (r ToolResult) Summarize() string {
	switch r.Kind {
	case ClassFact:
		if r.Fact == nil || r.Fact.Value == nil {
			return fmt.Sprintf("%s: fact unavailable", r.Tool)
		}
		return fmt.Sprintf("%s: %s %s %d = %s", r.Tool, r.Fact.Symbol, r.Fact.Concept, r.Fact.Year, formatAmount(*r.Fact.Value))
	case ClassSection:
		if r.Section == nil || r.Section.Content == "" {
			return fmt.Sprintf("%s: section unavailable", r.Tool)
		}
		return fmt.Sprintf("%s: %s section (%d chars)", r.Tool, r.Section.Section, len(r.Section.Content))
	case ClassAnalysis:
		if r.Analysis == nil {
			return fmt.Sprintf("%s: no analysis", r.Tool)
		}
		return fmt.Sprintf("%s: analysis (%d chars)", r.Tool, len(r.Analysis.Analysis))
	default:
		n := 0
		if r.Search != nil {
			n = len(r.Search.Results)
		}
		return fmt.Sprintf("%s: %d results", r.Tool, n)
	}
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

func formatAmount(v float64) string {
	abs := v
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "'", "")
	return strings.Join(strings.Fields(s), "-")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
