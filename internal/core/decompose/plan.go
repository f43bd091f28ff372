// Package decompose turns a research query into a pair of opposing missions
// with ordered research steps. Provider output is validated against a
// strict schema; anything that fails validation is replaced by a fixed
// default plan so decomposition never leaves a dossier without steps.
package decompose

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/dialectica/internal/core/research"
)

// Step count bounds for a provider-generated plan.
const (
	MinSteps = 3
	MaxSteps = 5
)

var validate = validator.New()

// StepSpec is one planned research step.
type StepSpec struct {
	Description                string `json:"description" validate:"required"`
	Tool                       string `json:"tool" validate:"required"`
	ToolSelectionJustification string `json:"tool_selection_justification" validate:"required"`
	ToolQueryRationale         string `json:"tool_query_rationale" validate:"required"`
}

// SidePlan is the refined mission and steps for one side.
type SidePlan struct {
	Mission string     `json:"mission" validate:"required"`
	Steps   []StepSpec `json:"steps" validate:"min=3,max=5,dive"`
}

// Plan is a full decomposition for both sides.
type Plan struct {
	Thesis     SidePlan `json:"thesis"`
	Antithesis SidePlan `json:"antithesis"`
}

// InitialMission is the templated mission a dossier carries before
// decomposition refines it.
func InitialMission(side, query string) string {
	direction := "FOR"
	if side == "antithesis" {
		direction = "AGAINST"
	}
	return fmt.Sprintf("Build the strongest possible, evidence-based case %s the following: %s", direction, query)
}

// Prompt builds the single decomposition request.
func Prompt(query, thesisMission, antithesisMission string, tools []research.Tool) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are the research director for a dialectical investigation of:

%s

Two independent research teams will work in parallel.
Thesis team: %s
Antithesis team: %s

For each team, refine the mission into one sentence and write %d to %d research
steps. Each step needs a description, the suggested tool, a justification for
the tool choice, and a rationale for how the tool should be queried.

Available tools:
`, query, thesisMission, antithesisMission, MinSteps, MaxSteps)
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	b.WriteString(`
Respond with ONLY a JSON object of this shape:
{
  "thesis": {"mission": "...", "steps": [{"description": "...", "tool": "...", "tool_selection_justification": "...", "tool_query_rationale": "..."}]},
  "antithesis": {"mission": "...", "steps": [...]}
}`)
	return b.String()
}

// Parse extracts and validates a plan from provider output.
func Parse(text string) (*Plan, error) {
	raw, ok := research.ExtractJSONObject(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in decomposition", research.ErrMalformed)
	}

	var p Plan
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", research.ErrMalformed, err)
	}
	p.Thesis.trim()
	p.Antithesis.trim()

	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", research.ErrMalformed, err)
	}
	return &p, nil
}

// DefaultPlan is the deterministic one-step-per-side fallback.
func DefaultPlan(query string) *Plan {
	return &Plan{
		Thesis: SidePlan{
			Mission: fmt.Sprintf("Build the strongest possible case FOR: %s", query),
			Steps: []StepSpec{{
				Description:                "Analyze positive market indicators and growth trends",
				Tool:                       research.ToolMarketData,
				ToolSelectionJustification: "Market data surfaces growth indicators that support the thesis.",
				ToolQueryRationale:         "Search for growth and revenue trend keywords.",
			}},
		},
		Antithesis: SidePlan{
			Mission: fmt.Sprintf("Build the strongest possible case AGAINST: %s", query),
			Steps: []StepSpec{{
				Description:                "Identify market risks and potential challenges",
				Tool:                       research.ToolRiskAssessment,
				ToolSelectionJustification: "Risk assessment data surfaces volatility and downside indicators.",
				ToolQueryRationale:         "Search for risk and volatility keywords.",
			}},
		},
	}
}

// ForSide returns the plan half for side ("thesis" or "antithesis").
func (p *Plan) ForSide(side string) SidePlan {
	if side == "antithesis" {
		return p.Antithesis
	}
	return p.Thesis
}

func (s *SidePlan) trim() {
	s.Mission = strings.TrimSpace(s.Mission)
	for i := range s.Steps {
		st := &s.Steps[i]
		st.Description = strings.TrimSpace(st.Description)
		st.Tool = strings.TrimSpace(st.Tool)
		st.ToolSelectionJustification = strings.TrimSpace(st.ToolSelectionJustification)
		st.ToolQueryRationale = strings.TrimSpace(st.ToolQueryRationale)
	}
}
