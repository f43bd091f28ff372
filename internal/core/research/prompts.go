package research

import (
	"fmt"
	"strings"
)

// ClassificationPrompt asks whether a step targets directly observable data.
func ClassificationPrompt(mission, description string) string {
	return fmt.Sprintf(`You are classifying a research step for the mission: %s

Research step: %s

Does this step ask for directly observable data (reported figures, filed
documents, published records), or for an abstract property that cannot be
measured directly (such as strength, quality or sentiment)?

Answer with a single word: YES if the data is directly observable, NO if it is abstract.`, mission, description)
}

// DataGapPrompt asks the provider to name what cannot be measured.
func DataGapPrompt(description string) string {
	return fmt.Sprintf(`The following research step targets a property that cannot be measured directly:

%s

In one sentence, state the specific data gap: what would need to be measured
that no public data source reports directly.`, description)
}

// ProxyPrompt asks for a proxy hypothesis as strict JSON.
func ProxyPrompt(description, gap string) string {
	return fmt.Sprintf(`Research step: %s
Data gap: %s

Formulate a proxy hypothesis that bridges the gap with a deductive argument.
Respond with ONLY a JSON object with exactly these string fields:
{
  "unobservable_claim": "the abstract claim the step is really about",
  "deductive_chain": "the reasoning that links the claim to a measurable outcome",
  "observable_proxy": "the measurable quantity to research instead"
}`, description, gap)
}

// ToolSelectionPrompt asks the provider to choose one tool by name.
func ToolSelectionPrompt(description string, tools []Tool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Select the single best tool for this research step:\n\n%s\n\nAvailable tools:\n", description)
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	b.WriteString("\nRespond with only the tool name.")
	return b.String()
}

// QueryPrompt asks for a query that satisfies the tool's input contract.
func QueryPrompt(description, tool string) string {
	var contract string
	switch ClassOf(tool) {
	case ClassFact:
		contract = "a structured query of the form symbol:<TICKER> year:<YYYY> concept:<Revenue|NetIncome|Inventory|GrossProfit|TotalAssets>"
	case ClassSection:
		contract = "a structured query of the form symbol:<TICKER> year:<YYYY> section:<10-K section name, e.g. Risk Factors>"
	case ClassAnalysis:
		contract = "a concise analytical question in plain text"
	default:
		contract = "a short free-text search query of a few keywords"
	}
	return fmt.Sprintf(`Formulate the input for tool %s to carry out this research step:

%s

The tool expects %s.
Respond with only the query.`, tool, description, contract)
}

// Summarize produces the deterministic dossier summary stored when a
// research run finishes.
func Summarize(sideLabel, mission string, evidenceCount, stepCount int) string {
	return fmt.Sprintf("%s research completed for mission '%s'. Collected %d evidence items across %d steps.",
		sideLabel, mission, evidenceCount, stepCount)
}

// RevisionStepDescription is the description of the step appended when a
// reviewer requests a revision.
func RevisionStepDescription(feedback string) string {
	return fmt.Sprintf("address revision feedback: %s", strings.TrimSpace(feedback))
}
