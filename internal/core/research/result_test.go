package research

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeResultSelectsUnionMemberByClass(t *testing.T) {
	tests := []struct {
		tool     string
		payload  string
		wantKind ToolClass
	}{
		{ToolFinancialFacts, `{"symbol":"AAPL","year":2023,"concept":"Revenue","value":383285000000,"unit":"USD"}`, ClassFact},
		{ToolDocumentSection, `{"symbol":"AAPL","year":2023,"section":"Risk Factors","content":"text"}`, ClassSection},
		{ToolSearch, `{"results":[{"id":"md-001","title":"t","content":"c","source":"s","confidence":0.8,"tags":["growth"]}],"total_count":1}`, ClassSearch},
		{ToolReasoning, `{"analysis":"margins are expanding"}`, ClassAnalysis},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			r, err := DecodeResult(tt.tool, "q", []byte(tt.payload))
			if err != nil {
				t.Fatalf("DecodeResult: %v", err)
			}
			if r.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", r.Kind, tt.wantKind)
			}
			set := 0
			for _, p := range []bool{r.Fact != nil, r.Section != nil, r.Search != nil, r.Analysis != nil} {
				if p {
					set++
				}
			}
			if set != 1 {
				t.Errorf("%d union members set, want exactly 1", set)
			}
		})
	}
}

func TestDecodeResultRejectsWrongShape(t *testing.T) {
	_, err := DecodeResult(ToolSearch, "q", []byte(`{"results": "not a list"}`))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("error = %v, want ErrMalformed", err)
	}
}

func TestNormalizeFact(t *testing.T) {
	value := 394328000000.0
	got := Normalize(ToolResult{
		Kind: ClassFact,
		Tool: ToolFinancialFacts,
		Fact: &FactRecord{Symbol: "AAPL", Year: 2022, Concept: "Revenue", Value: &value, Unit: "USD", Source: "XBRL Filing 2022"},
	})
	want := []Evidence{{
		Title:      "AAPL Revenue (2022)",
		Content:    "AAPL reported Revenue of 394.33B USD for fiscal year 2022.",
		Source:     "XBRL Filing 2022",
		Confidence: FactConfidence,
		Tags:       []string{"financial-fact", "revenue"},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeUnavailableFact(t *testing.T) {
	got := Normalize(ToolResult{
		Kind: ClassFact,
		Tool: ToolFinancialFacts,
		Fact: &FactRecord{Symbol: "IBM", Year: 2023, Concept: "Revenue", Error: "Data not available for IBM Revenue 2023"},
	})
	if len(got) != 1 {
		t.Fatalf("got %d items, want 1", len(got))
	}
	if got[0].Confidence != UnavailableConfidence {
		t.Errorf("Confidence = %v, want %v", got[0].Confidence, UnavailableConfidence)
	}
	if got[0].Source != ToolFinancialFacts {
		t.Errorf("Source = %q, want tool name", got[0].Source)
	}
}

func TestNormalizeSearch(t *testing.T) {
	got := Normalize(ToolResult{
		Kind:  ClassSearch,
		Tool:  ToolMarketData,
		Query: "growth",
		Search: &SearchResults{Results: []SearchRecord{
			{ID: "md-001", Title: "Growth", Content: "15% growth", Source: "Report", Confidence: 0.85, Tags: []string{"growth"}},
			{ID: "md-009", Title: "Odd", Content: "bad score", Source: "", Confidence: 1.7},
		}},
	})
	if len(got) != 2 {
		t.Fatalf("got %d items, want 2", len(got))
	}
	if got[1].Confidence != 1 {
		t.Errorf("confidence not clamped: %v", got[1].Confidence)
	}
	if got[1].Source != ToolMarketData {
		t.Errorf("empty source should default to tool, got %q", got[1].Source)
	}
}

func TestNormalizeAlwaysYieldsEvidence(t *testing.T) {
	results := []ToolResult{
		{Kind: ClassSearch, Tool: ToolSearch, Query: "nothing", Search: &SearchResults{}},
		{Kind: ClassSection, Tool: ToolDocumentSection, Section: &SectionRecord{Symbol: "AAPL", Year: 2019, Section: "Business", Error: "no filing"}},
		{Kind: ClassAnalysis, Tool: ToolReasoning, Query: "why", Analysis: &AnalysisRecord{}},
		{Kind: ClassFact, Tool: ToolFinancialFacts},
	}
	for _, r := range results {
		items := Normalize(r)
		if len(items) == 0 {
			t.Errorf("%s produced no evidence", r.Kind)
		}
		for _, it := range items {
			if it.Confidence < 0 || it.Confidence > 1 {
				t.Errorf("%s confidence %v out of range", r.Kind, it.Confidence)
			}
		}
	}
}

func TestFallbackEvidence(t *testing.T) {
	ev := FallbackEvidence(ToolSearch, "find growth data", errors.New("connection refused"))
	if ev.Confidence != 0.3 {
		t.Errorf("Confidence = %v, want 0.3", ev.Confidence)
	}
	if diff := cmp.Diff([]string{"fallback"}, ev.Tags); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(ev.Content, "connection refused") {
		t.Errorf("Content %q does not mention cause", ev.Content)
	}
}

func TestTagWithProxy(t *testing.T) {
	items := []Evidence{
		{Title: "a", Tags: []string{"growth"}},
		{Title: "b", Tags: []string{"gross margin"}},
		{Title: "c"},
	}
	p := &ProxyHypothesis{ObservableProxy: "gross margin"}
	got := TagWithProxy(items, p)
	for _, it := range got {
		n := 0
		for _, tag := range it.Tags {
			if tag == "gross margin" {
				n++
			}
		}
		if n != 1 {
			t.Errorf("item %s has proxy tag %d times, want 1", it.Title, n)
		}
	}

	untouched := TagWithProxy([]Evidence{{Title: "x"}}, nil)
	if len(untouched[0].Tags) != 0 {
		t.Errorf("nil proxy should not add tags, got %v", untouched[0].Tags)
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize("Thesis", "Build the case FOR: X", 4, 3)
	want := "Thesis research completed for mission 'Build the case FOR: X'. Collected 4 evidence items across 3 steps."
	if got != want {
		t.Errorf("Summarize() = %q, want %q", got, want)
	}
}
