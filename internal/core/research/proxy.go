package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrMalformed is returned when provider output cannot be parsed into the
// expected structure.
var ErrMalformed = errors.New("malformed provider response")

var validate = validator.New()

// ProxyHypothesis links an unobservable claim to a measurable stand-in.
type ProxyHypothesis struct {
	UnobservableClaim string `json:"unobservable_claim" validate:"required"`
	DeductiveChain    string `json:"deductive_chain" validate:"required"`
	ObservableProxy   string `json:"observable_proxy" validate:"required"`
}

// Abstract vocabulary marks properties that have no direct measurement.
var abstractPatterns = []string{
	"moat",
	"strength",
	"quality",
	"sentiment",
	"reputation",
	"culture",
	"trust",
	"loyalty",
	"perception",
	"brand",
	"morale",
	"innovation",
	"leadership",
	"resilience",
	"competitive advantage",
	"vision",
}

// ParseObservability interprets a yes/no classification answer where YES
// means the step asks for directly observable data. ok is false when the
// answer is neither.
func ParseObservability(answer string) (observable bool, ok bool) {
	fields := strings.Fields(strings.ToLower(answer))
	if len(fields) == 0 {
		return false, false
	}
	switch strings.Trim(fields[0], "`\"'.,:;!*") {
	case "yes", "observable", "directly":
		return true, true
	case "no", "abstract", "unobservable", "not":
		return false, true
	}
	return false, false
}

// LooksAbstract is the deterministic fallback classifier used when the
// provider's answer is missing or unparseable.
func LooksAbstract(description string) bool {
	return containsAny(strings.ToLower(description), abstractPatterns)
}

// ParseDataGap cleans a data-gap statement. ok is false for empty output.
func ParseDataGap(text string) (string, bool) {
	gap := strings.TrimSpace(text)
	gap = strings.Trim(gap, "\"")
	if gap == "" {
		return "", false
	}
	return gap, true
}

// DefaultDataGap describes the gap when the provider gives none.
func DefaultDataGap(description string) string {
	return fmt.Sprintf("No direct measurement exists for: %s", description)
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSONObject returns the text between the first '{' and the last '}'.
// Providers routinely wrap JSON in prose or code fences.
func ExtractJSONObject(text string) (string, bool) {
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return "", false
	}
	return match, true
}

// ParseProxyHypothesis parses and validates a proxy hypothesis. Any missing
// or blank field rejects the whole payload.
func ParseProxyHypothesis(text string) (ProxyHypothesis, error) {
	raw, ok := ExtractJSONObject(text)
	if !ok {
		return ProxyHypothesis{}, fmt.Errorf("%w: no JSON object in proxy hypothesis", ErrMalformed)
	}

	var p ProxyHypothesis
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return ProxyHypothesis{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	p.UnobservableClaim = strings.TrimSpace(p.UnobservableClaim)
	p.DeductiveChain = strings.TrimSpace(p.DeductiveChain)
	p.ObservableProxy = strings.TrimSpace(p.ObservableProxy)

	if err := validate.Struct(p); err != nil {
		return ProxyHypothesis{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return p, nil
}

// DefaultProxyHypothesis bridges an abstract step to financial performance,
// which every covered company reports.
func DefaultProxyHypothesis(description string) ProxyHypothesis {
	return ProxyHypothesis{
		UnobservableClaim: description,
		DeductiveChain:    "If the claim holds, it should be reflected in sustained revenue growth and gross margin relative to peers.",
		ObservableProxy:   "revenue growth and gross margin trends",
	}
}

// RewriteDescription retargets a step at the proxy's observable measure.
func RewriteDescription(original string, p ProxyHypothesis) string {
	return fmt.Sprintf("Measure %s as an observable proxy for: %s", p.ObservableProxy, original)
}

// EncodeProxy serializes a proxy hypothesis for storage.
func EncodeProxy(p ProxyHypothesis) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode proxy hypothesis: %w", err)
	}
	return string(b), nil
}

// DecodeProxy parses a stored proxy hypothesis. An empty string means the
// step has none.
func DecodeProxy(stored string) (*ProxyHypothesis, error) {
	if stored == "" {
		return nil, nil
	}
	var p ProxyHypothesis
	if err := json.Unmarshal([]byte(stored), &p); err != nil {
		return nil, fmt.Errorf("failed to decode proxy hypothesis: %w", err)
	}
	return &p, nil
}
