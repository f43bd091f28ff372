// Package ledger names the providers, call types and statuses recorded in
// the request ledger.
package ledger

// Providers.
const (
	ProviderLLM  = "llm"
	ProviderTool = "tool"
)

// Entry statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// LLM call types.
const (
	CallOrchestratorMission = "orchestrator_mission"
	CallClassification      = "classification"
	CallDataGap             = "data_gap"
	CallProxyHypothesis     = "proxy_hypothesis"
	CallToolSelection       = "tool_selection"
	CallQueryFormulation    = "query_formulation"
	CallSynthesis           = "synthesis"
)

// Tool call types.
const (
	CallManifest = "manifest"
	CallExecute  = "execute"
)

// IsValidProvider returns true if p is a known provider.
func IsValidProvider(p string) bool {
	return p == ProviderLLM || p == ProviderTool
}

// IsValidStatus returns true if s is a known entry status.
func IsValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsFinal returns true if an entry in status s will not change again.
func IsFinal(s string) bool {
	return s == StatusCompleted || s == StatusFailed
}
