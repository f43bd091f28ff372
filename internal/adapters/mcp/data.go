package mcp

import "github.com/example/dialectica/internal/core/research"

// Corpus names searched by the research tools.
const (
	corpusMarket      = "market-data"
	corpusExpert      = "expert-analysis"
	corpusCompetitive = "competitive-analysis"
	corpusFinancial   = "financial-data"
)

// corpusTools maps each corpus search tool to the corpus it reads. An
// empty corpus means every corpus.
var corpusTools = []struct {
	name        string
	corpus      string
	description string
}{
	{research.ToolMarketData, corpusMarket, "Access to market data and trends analysis"},
	{research.ToolExpertAnalysis, corpusExpert, "Database of expert opinions and analyst reports"},
	{research.ToolCompetitiveAnalysis, corpusCompetitive, "Competitive analysis and market position data"},
	{research.ToolRiskAssessment, "", "Risk assessment and volatility analysis across every corpus"},
	{research.ToolFinancialData, corpusFinancial, "Financial health and risk indicators"},
}

var corpusOrder = []string{corpusMarket, corpusExpert, corpusCompetitive, corpusFinancial}

var corpora = map[string][]research.SearchRecord{
	corpusMarket: {
		{
			ID:         "md-001",
			Title:      "Market Growth Analysis Q4 2024",
			Content:    "Market analysis shows strong growth indicators with 15% year-over-year increase in key metrics. Revenue growth has been steady and sustainable, indicating strong market demand.",
			Source:     "Market Analysis Report 2024",
			Confidence: 0.85,
			Tags:       []string{"growth", "revenue", "market-trends"},
		},
		{
			ID:         "md-002",
			Title:      "Market Volatility Assessment",
			Content:    "Recent market volatility has increased by 25% with several concerning indicators pointing to potential instability. Economic uncertainty creates significant headwinds.",
			Source:     "Volatility Analysis Report",
			Confidence: 0.80,
			Tags:       []string{"volatility", "risk", "uncertainty"},
		},
	},
	corpusExpert: {
		{
			ID:         "ea-001",
			Title:      "Bullish Analyst Consensus",
			Content:    "Leading industry experts maintain positive outlook with 80% of surveyed analysts recommending strong buy positions. Consensus estimates project continued growth trajectory.",
			Source:     "Expert Consensus Survey",
			Confidence: 0.90,
			Tags:       []string{"bullish", "expert-opinion", "growth"},
		},
		{
			ID:         "ea-002",
			Title:      "Risk Warning Reports",
			Content:    "20% of industry experts have issued cautionary statements about current market conditions and potential downside risks. Several analysts have downgraded growth projections.",
			Source:     "Risk Assessment Survey",
			Confidence: 0.75,
			Tags:       []string{"bearish", "risk-warnings", "downgrades"},
		},
	},
	corpusCompetitive: {
		{
			ID:         "ca-001",
			Title:      "Competitive Market Position",
			Content:    "Analysis reveals strong competitive advantages including brand recognition, proprietary technology, and established customer relationships. Market share has grown consistently.",
			Source:     "Competitive Analysis Database",
			Confidence: 0.88,
			Tags:       []string{"competitive-advantage", "market-share", "brand"},
		},
		{
			ID:         "ca-002",
			Title:      "Emerging Competitive Threats",
			Content:    "Emerging competitors are gaining market share rapidly, particularly in key growth segments. Disruptive technologies could potentially undermine current competitive advantages.",
			Source:     "Competitive Threat Assessment",
			Confidence: 0.78,
			Tags:       []string{"competitive-threats", "disruption", "market-share-loss"},
		},
	},
	corpusFinancial: {
		{
			ID:         "fd-001",
			Title:      "Strong Financial Health Indicators",
			Content:    "Strong balance sheet with healthy cash flow, manageable debt levels, and consistent profitability. Key financial ratios are well within industry benchmarks.",
			Source:     "Financial Health Assessment",
			Confidence: 0.82,
			Tags:       []string{"financial-health", "cash-flow", "profitability"},
		},
		{
			ID:         "fd-002",
			Title:      "Financial Risk Indicators",
			Content:    "Several financial metrics show concerning trends including increasing debt levels, declining cash flow margins, and potential liquidity constraints in adverse scenarios.",
			Source:     "Financial Risk Analysis",
			Confidence: 0.72,
			Tags:       []string{"financial-risk", "debt", "liquidity"},
		},
	},
}

// xbrlFacts holds reported values in USD by symbol, concept and fiscal year.
var xbrlFacts = map[string]map[string]map[int]float64{
	"AAPL": {
		"Revenue":     {2023: 383285000000, 2022: 394328000000, 2021: 365817000000},
		"NetIncome":   {2023: 96995000000, 2022: 99803000000, 2021: 94680000000},
		"Inventory":   {2023: 6331000000, 2022: 4946000000, 2021: 6580000000},
		"GrossProfit": {2023: 169148000000, 2022: 170782000000, 2021: 152836000000},
		"TotalAssets": {2023: 352755000000, 2022: 346747000000, 2021: 351002000000},
	},
	"MSFT": {
		"Revenue":     {2023: 211915000000, 2022: 198270000000, 2021: 168088000000},
		"NetIncome":   {2023: 72409000000, 2022: 72619000000, 2021: 61271000000},
		"Inventory":   {2023: 2500000000, 2022: 3744000000, 2021: 2600000000},
		"GrossProfit": {2023: 146052000000, 2022: 135620000000, 2021: 115856000000},
		"TotalAssets": {2023: 470558000000, 2022: 364840000000, 2021: 333779000000},
	},
}

// filingYears lists the 10-K filings on record per symbol.
var filingYears = map[string][]int{
	"AAPL": {2021, 2022, 2023},
	"MSFT": {2021, 2022, 2023},
}

// filingSections holds 10-K section text per symbol. The same text serves
// every year on record.
var filingSections = map[string]map[string]string{
	"AAPL": {
		"Business": "The Company designs, manufactures and markets smartphones, personal computers, tablets, wearables and accessories, and sells a variety of related services. Products and services revenue is generated across the Americas, Europe, Greater China, Japan and Rest of Asia Pacific.",
		"Risk Factors": "The Company's operations and performance depend significantly on global and regional economic conditions. The Company faces substantial competition, depends on component supply from outsourcing partners concentrated in Asia, and is subject to complex and changing laws and regulations worldwide.",
		"Management's Discussion and Analysis": "Net sales decreased during the year driven by lower iPhone and Mac sales, partially offset by growth in Services. Gross margin percentage improved due to a different mix of products and services.",
		"Legal Proceedings": "The Company is subject to legal proceedings and claims that arise in the ordinary course of business, including antitrust matters in the United States and the European Union related to the App Store.",
	},
	"MSFT": {
		"Business": "Microsoft develops and supports software, services, devices and solutions. Segments are Productivity and Business Processes, Intelligent Cloud, and More Personal Computing.",
		"Risk Factors": "Competition in the technology sector is intense. Cloud-based services require significant capital investment, cyberattacks and security vulnerabilities could reduce revenue, and government regulation of AI could increase compliance costs.",
		"Management's Discussion and Analysis": "Revenue increased driven by growth in Intelligent Cloud, with Azure and other cloud services revenue growing significantly. Operating income increased as gross margin improved despite higher operating expenses.",
		"Legal Proceedings": "Microsoft is involved in antitrust, patent and other claims. Management does not expect these matters to have a material adverse effect on the financial statements.",
	},
}
