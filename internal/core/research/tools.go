// Package research contains the pure decision procedures used while
// executing a research step: observability classification, proxy
// hypotheses, tool selection, query formulation and result normalization.
// Nothing in this package performs I/O.
package research

// Tool names served by the research tools server.
const (
	ToolFinancialFacts  = "xbrl_financial_fact_retriever"
	ToolDocumentSection = "document_section_retriever"
	ToolSearch          = "mcp_server_tool"
	ToolReasoning       = "llm_tool"
	ToolFilings         = "sec_data_tool"

	ToolMarketData          = "market-data-api"
	ToolExpertAnalysis      = "expert-analysis-db"
	ToolCompetitiveAnalysis = "competitive-analysis-api"
	ToolRiskAssessment      = "risk-assessment-api"
	ToolFinancialData       = "financial-data-api"
)

// ToolClass determines a tool's input contract and result shape.
type ToolClass string

const (
	ClassFact     ToolClass = "fact"     // single XBRL fact record
	ClassSection  ToolClass = "section"  // single document-section record
	ClassSearch   ToolClass = "search"   // list of search-style records
	ClassAnalysis ToolClass = "analysis" // generated analysis text
)

// Tool describes one entry of a tool manifest.
type Tool struct {
	Name        string
	Description string
}

// ClassOf returns the class of the named tool. Unknown tools are treated
// as search tools since free-text queries are the loosest contract.
func ClassOf(toolName string) ToolClass {
	switch toolName {
	case ToolFinancialFacts:
		return ClassFact
	case ToolDocumentSection:
		return ClassSection
	case ToolReasoning:
		return ClassAnalysis
	default:
		return ClassSearch
	}
}

// DefaultManifest is substituted when the tool provider cannot list its
// tools, so a step can still choose one.
func DefaultManifest() []Tool {
	return []Tool{
		{Name: ToolFinancialFacts, Description: "Retrieves a specific numerical financial fact (like Revenue, NetIncome) for a given company and year from its XBRL filing."},
		{Name: ToolDocumentSection, Description: "Retrieves the full text of a specific section (like 'Risk Factors') from a company's 10-K filing."},
		{Name: ToolSearch, Description: "Searches market, expert, competitive and financial research corpora."},
		{Name: ToolReasoning, Description: "Uses the LLM to generate analysis and insights."},
		{Name: ToolFilings, Description: "Lists available SEC filings and companies."},
	}
}

// ToolNames returns the names of tools in manifest order.
func ToolNames(tools []Tool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}
