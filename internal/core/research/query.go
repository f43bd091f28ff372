package research

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Defaults used when a description names no company, year or concept.
const (
	DefaultSymbol  = "AAPL"
	DefaultYear    = 2023
	DefaultConcept = "Revenue"
	DefaultSection = "Risk Factors"
)

// Required keys for structured queries, by tool class.
var requiredKeys = map[ToolClass][]string{
	ClassFact:    {"symbol", "year", "concept"},
	ClassSection: {"symbol", "year", "section"},
}

// Company names, checked in order.
var companySymbols = []struct {
	name   string
	symbol string
}{
	{"apple", "AAPL"},
	{"microsoft", "MSFT"},
	{"google", "GOOGL"},
	{"alphabet", "GOOGL"},
	{"amazon", "AMZN"},
	{"tesla", "TSLA"},
}

// Concept vocabulary, checked in order.
var conceptPatterns = []struct {
	pattern string
	concept string
}{
	{"net income", "NetIncome"},
	{"earnings", "NetIncome"},
	{"profit", "NetIncome"},
	{"gross", "GrossProfit"},
	{"margin", "GrossProfit"},
	{"inventory", "Inventory"},
	{"assets", "TotalAssets"},
	{"balance sheet", "TotalAssets"},
	{"revenue", "Revenue"},
	{"sales", "Revenue"},
}

// Section vocabulary, checked in order.
var sectionPatterns = []struct {
	pattern string
	section string
}{
	{"risk", "Risk Factors"},
	{"management", "Management's Discussion and Analysis"},
	{"md&a", "Management's Discussion and Analysis"},
	{"legal", "Legal Proceedings"},
	{"business", "Business"},
	{"competition", "Business"},
	{"strategy", "Business"},
}

var (
	keyPattern    = regexp.MustCompile(`(?i)\b([a-z_]+):`)
	yearPattern   = regexp.MustCompile(`\b(20[0-9]{2})\b`)
	tickerPattern = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
)

// ParseKeyValues splits a "key:value key:value" query into a map. Values
// may contain spaces; each runs until the next key.
func ParseKeyValues(query string) map[string]string {
	result := make(map[string]string)
	locs := keyPattern.FindAllStringSubmatchIndex(query, -1)
	for i, loc := range locs {
		key := strings.ToLower(query[loc[2]:loc[3]])
		end := len(query)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		value := strings.TrimSpace(query[loc[1]:end])
		value = strings.Trim(value, ",;\"'")
		if value != "" {
			result[key] = value
		}
	}
	return result
}

// ParseQuery validates a formulated query against the input contract of
// class. Structured classes need every required key and a numeric year;
// free-text classes only need non-empty text.
func ParseQuery(class ToolClass, text string) (string, bool) {
	query := strings.TrimSpace(text)
	query = strings.Trim(query, "`\"")
	query = strings.TrimSpace(query)
	if query == "" {
		return "", false
	}

	keys, structured := requiredKeys[class]
	if !structured {
		return query, true
	}

	kv := ParseKeyValues(query)
	for _, k := range keys {
		if kv[k] == "" {
			return "", false
		}
	}
	if _, err := strconv.Atoi(kv["year"]); err != nil {
		return "", false
	}
	return FormatQuery(class, kv), true
}

// FormatQuery renders the canonical key order for a structured class.
func FormatQuery(class ToolClass, kv map[string]string) string {
	keys, structured := requiredKeys[class]
	if !structured {
		return kv["query"]
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, kv[k]))
	}
	return strings.Join(parts, " ")
}

// DefaultQuery derives a query for class from the step description alone.
func DefaultQuery(class ToolClass, description string) string {
	switch class {
	case ClassFact:
		return FormatQuery(class, map[string]string{
			"symbol":  ExtractSymbol(description),
			"year":    strconv.Itoa(ExtractYear(description)),
			"concept": extractConcept(description),
		})
	case ClassSection:
		return FormatQuery(class, map[string]string{
			"symbol":  ExtractSymbol(description),
			"year":    strconv.Itoa(ExtractYear(description)),
			"section": extractSection(description),
		})
	default:
		return description
	}
}

// ExtractSymbol finds a ticker or known company name in text.
func ExtractSymbol(text string) string {
	lower := strings.ToLower(text)
	for _, c := range companySymbols {
		if strings.Contains(lower, c.name) {
			return c.symbol
		}
	}
	known := make(map[string]bool, len(companySymbols))
	for _, c := range companySymbols {
		known[c.symbol] = true
	}
	for _, candidate := range tickerPattern.FindAllString(text, -1) {
		if known[candidate] {
			return candidate
		}
	}
	return DefaultSymbol
}

// ExtractYear finds a four-digit 20xx year in text.
func ExtractYear(text string) int {
	if m := yearPattern.FindString(text); m != "" {
		year, _ := strconv.Atoi(m)
		return year
	}
	return DefaultYear
}

func extractConcept(text string) string {
	lower := strings.ToLower(text)
	for _, p := range conceptPatterns {
		if strings.Contains(lower, p.pattern) {
			return p.concept
		}
	}
	return DefaultConcept
}

func extractSection(text string) string {
	lower := strings.ToLower(text)
	for _, p := range sectionPatterns {
		if strings.Contains(lower, p.pattern) {
			return p.section
		}
	}
	return DefaultSection
}
