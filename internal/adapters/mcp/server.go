// Package mcp serves the research tools over the Model Context Protocol
// and implements secondary.ToolProvider as an MCP client.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/example/dialectica/internal/core/research"
	"github.com/example/dialectica/internal/ports/secondary"
)

// ServerName identifies the research tools server to MCP clients.
const ServerName = "dialectica-tools"

const maxSearchResults = 10

// Server wraps the MCP SDK server with the research tools registered.
type Server struct {
	MCPServer *sdkmcp.Server

	llm secondary.LLMProvider
	log *slog.Logger
}

// NewServer creates the research tools server. llm backs the analysis
// tool; a nil provider makes that tool report an error.
func NewServer(version string, llm secondary.LLMProvider) *Server {
	s := &Server{
		MCPServer: sdkmcp.NewServer(&sdkmcp.Implementation{Name: ServerName, Version: version}, nil),
		llm:       llm,
		log:       slog.Default().With("component", "tools-mcp"),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        research.ToolFinancialFacts,
		Description: "Retrieves a specific numerical financial fact (like Revenue, NetIncome) for a given company and year from its XBRL filing.",
	}, s.handleFact)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        research.ToolDocumentSection,
		Description: "Retrieves the full text of a specific section (like 'Risk Factors') from a company's 10-K filing.",
	}, s.handleSection)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        research.ToolSearch,
		Description: "Searches market, expert, competitive and financial research corpora.",
	}, s.searchHandler(""))

	for _, ct := range corpusTools {
		sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
			Name:        ct.name,
			Description: ct.description,
		}, s.searchHandler(ct.corpus))
	}

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        research.ToolReasoning,
		Description: "Uses the LLM to generate analysis and insights.",
	}, s.handleAnalysis)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        research.ToolFilings,
		Description: "Lists available SEC filings and companies.",
	}, s.handleFilings)
}

// --- Tool input types ---

type factInput struct {
	Symbol  string `json:"symbol" jsonschema:"ticker symbol, e.g. AAPL"`
	Year    int    `json:"year" jsonschema:"fiscal year"`
	Concept string `json:"concept" jsonschema:"XBRL concept, e.g. Revenue or NetIncome"`
}

type sectionInput struct {
	Symbol  string `json:"symbol" jsonschema:"ticker symbol, e.g. AAPL"`
	Year    int    `json:"year" jsonschema:"fiscal year of the 10-K"`
	Section string `json:"section" jsonschema:"section name, e.g. Risk Factors"`
}

type searchInput struct {
	Query      string `json:"query" jsonschema:"free-text search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"result limit (default 10)"`
}

type analysisInput struct {
	Prompt string `json:"prompt" jsonschema:"analysis request"`
}

type filingsInput struct {
	Company string `json:"company,omitempty" jsonschema:"ticker symbol to restrict the catalogue to"`
}

// --- Tool handlers ---

func (s *Server) handleFact(_ context.Context, _ *sdkmcp.CallToolRequest, in factInput) (*sdkmcp.CallToolResult, research.FactRecord, error) {
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	out := research.FactRecord{Symbol: symbol, Year: in.Year, Concept: in.Concept}

	value, ok := xbrlFacts[symbol][in.Concept][in.Year]
	if !ok {
		out.Error = fmt.Sprintf("Data not available for %s %s %d", symbol, in.Concept, in.Year)
		return nil, out, nil
	}
	out.Value = &value
	out.Unit = "USD"
	out.Source = fmt.Sprintf("XBRL Filing %d", in.Year)
	return nil, out, nil
}

func (s *Server) handleSection(_ context.Context, _ *sdkmcp.CallToolRequest, in sectionInput) (*sdkmcp.CallToolResult, research.SectionRecord, error) {
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	out := research.SectionRecord{Symbol: symbol, Year: in.Year, Section: in.Section}

	if !slices.Contains(filingYears[symbol], in.Year) {
		out.Error = fmt.Sprintf("Filing not found for %s %d", symbol, in.Year)
		return nil, out, nil
	}
	for name, text := range filingSections[symbol] {
		if strings.EqualFold(name, strings.TrimSpace(in.Section)) {
			out.Section = name
			out.Content = text
			out.Source = fmt.Sprintf("10-K Filing %d", in.Year)
			return nil, out, nil
		}
	}
	out.Error = fmt.Sprintf("Section %s not found in %s %d filing", in.Section, symbol, in.Year)
	return nil, out, nil
}

func (s *Server) searchHandler(corpus string) func(context.Context, *sdkmcp.CallToolRequest, searchInput) (*sdkmcp.CallToolResult, research.SearchResults, error) {
	return func(_ context.Context, _ *sdkmcp.CallToolRequest, in searchInput) (*sdkmcp.CallToolResult, research.SearchResults, error) {
		limit := in.MaxResults
		if limit <= 0 {
			limit = maxSearchResults
		}
		var names []string
		if corpus == "" {
			names = corpusOrder
		} else {
			names = []string{corpus}
		}
		results := search(names, in.Query, limit)
		return nil, research.SearchResults{Results: results, TotalCount: len(results)}, nil
	}
}

func (s *Server) handleAnalysis(ctx context.Context, _ *sdkmcp.CallToolRequest, in analysisInput) (*sdkmcp.CallToolResult, research.AnalysisRecord, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, research.AnalysisRecord{}, fmt.Errorf("prompt is required")
	}
	if s.llm == nil {
		return nil, research.AnalysisRecord{}, fmt.Errorf("no language model configured for %s", research.ToolReasoning)
	}

	text, err := s.llm.Generate(ctx, analysisPrompt(in.Prompt), secondary.GenerationParams{Temperature: 0.3})
	if err != nil {
		s.log.Warn("analysis generation failed", "error", err)
		return nil, research.AnalysisRecord{}, fmt.Errorf("analysis failed: %w", err)
	}
	return nil, research.AnalysisRecord{Analysis: text, Source: s.llm.Name()}, nil
}

func (s *Server) handleFilings(_ context.Context, _ *sdkmcp.CallToolRequest, in filingsInput) (*sdkmcp.CallToolResult, research.SearchResults, error) {
	company := strings.ToUpper(strings.TrimSpace(in.Company))

	symbols := make([]string, 0, len(filingYears))
	for symbol := range filingYears {
		if company == "" || symbol == company {
			symbols = append(symbols, symbol)
		}
	}
	slices.Sort(symbols)

	results := make([]research.SearchRecord, 0)
	for _, symbol := range symbols {
		for _, year := range filingYears[symbol] {
			sections := make([]string, 0, len(filingSections[symbol]))
			for name := range filingSections[symbol] {
				sections = append(sections, name)
			}
			slices.Sort(sections)
			results = append(results, research.SearchRecord{
				ID:         fmt.Sprintf("10k-%s-%d", strings.ToLower(symbol), year),
				Title:      fmt.Sprintf("%s 10-K %d", symbol, year),
				Content:    fmt.Sprintf("Annual report on Form 10-K for fiscal year %d. Sections available: %s.", year, strings.Join(sections, ", ")),
				Source:     "SEC EDGAR",
				Confidence: 0.9,
				Tags:       []string{"sec-filing", strings.ToLower(symbol)},
			})
		}
	}
	return nil, research.SearchResults{Results: results, TotalCount: len(results)}, nil
}

func analysisPrompt(request string) string {
	return "You are a financial research analyst. Provide a concise, evidence-focused analysis " +
		"for the following request. State assumptions explicitly.\n\nRequest: " + request
}

// search returns records from the named corpora that match query, best
// matches first.
func search(names []string, query string, limit int) []research.SearchRecord {
	terms := searchTerms(query)
	phrase := strings.ToLower(strings.TrimSpace(query))

	type hit struct {
		rec   research.SearchRecord
		score int
	}
	var hits []hit
	for _, name := range names {
		for _, rec := range corpora[name] {
			haystack := strings.ToLower(rec.Title + " " + rec.Content + " " + strings.Join(rec.Tags, " "))
			score := 0
			if phrase != "" && strings.Contains(haystack, phrase) {
				score += len(terms) + 1
			}
			for _, term := range terms {
				if strings.Contains(haystack, term) {
					score++
				}
			}
			if score > 0 {
				hits = append(hits, hit{rec: rec, score: score})
			}
		}
	}

	slices.SortStableFunc(hits, func(a, b hit) int { return b.score - a.score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]research.SearchRecord, len(hits))
	for i, h := range hits {
		out[i] = h.rec
		out[i].Tags = slices.Clone(h.rec.Tags)
	}
	return out
}

var stopwords = map[string]bool{
	"that": true, "this": true, "with": true, "from": true, "have": true, "what": true,
	"which": true, "will": true, "their": true, "there": true, "about": true, "into": true,
	"over": true, "than": true, "they": true, "been": true, "were": true, "does": true,
}

// searchTerms lowercases query and keeps words of four or more letters.
func searchTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-')
	})
	var terms []string
	for _, f := range fields {
		if len(f) >= 4 && !stopwords[f] && !slices.Contains(terms, f) {
			terms = append(terms, f)
		}
	}
	return terms
}
