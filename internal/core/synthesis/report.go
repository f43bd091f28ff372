// Package synthesis builds the final report request from two approved
// dossiers.
package synthesis

import (
	"fmt"
	"strings"

	"github.com/example/dialectica/internal/core/research"
)

// StepView is the part of a research step the report draws on.
type StepView struct {
	Number      int
	Description string
	Proxy       *research.ProxyHypothesis
}

// DossierView is one side of the argument as seen by the synthesizer.
type DossierView struct {
	Label    string
	Mission  string
	Summary  string
	Steps    []StepView
	Evidence []research.Evidence
}

// Prompt builds the single synthesis request.
func Prompt(query string, thesis, antithesis DossierView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are writing the final dialectical synthesis for the question:\n\n%s\n\n", query)
	writeDossier(&b, thesis)
	writeDossier(&b, antithesis)
	b.WriteString(`Write a single balanced executive summary that:
1) states the core thesis argument,
2) states the core antithesis argument,
3) highlights the key points of conflict between the two cases,
4) gives a nuanced assessment based ONLY on the evidence above,
5) acknowledges every proxy hypothesis used and judges its soundness.

Use markdown sections. Do not introduce information that is not in the dossiers.`)
	return b.String()
}

func writeDossier(b *strings.Builder, d DossierView) {
	summary := d.Summary
	if summary == "" {
		summary = "No summary provided"
	}
	fmt.Fprintf(b, "%s DOSSIER\nMission: %s\nSummary: %s\nResearch steps:\n", strings.ToUpper(d.Label), d.Mission, summary)
	for _, s := range d.Steps {
		fmt.Fprintf(b, "  Step %d: %s\n", s.Number, s.Description)
		if s.Proxy != nil {
			fmt.Fprintf(b, "    Proxy: %s -> %s (because %s)\n",
				s.Proxy.UnobservableClaim, s.Proxy.ObservableProxy, s.Proxy.DeductiveChain)
		}
	}
	b.WriteString("Evidence:\n")
	for _, e := range d.Evidence {
		fmt.Fprintf(b, "  - %s: %s (source: %s, confidence %.2f)\n", e.Title, e.Content, e.Source, e.Confidence)
	}
	b.WriteString("\n")
}

// FallbackReport is stored when the provider cannot produce a synthesis.
// It lays both cases side by side without an assessment.
func FallbackReport(query string, thesis, antithesis DossierView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Synthesis: %s\n\n", query)
	b.WriteString("_Generated without a language model; no assessment is offered._\n\n")
	for _, d := range []DossierView{thesis, antithesis} {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", d.Label, d.Mission)
		if d.Summary != "" {
			fmt.Fprintf(&b, "%s\n\n", d.Summary)
		}
		for _, s := range d.Steps {
			if s.Proxy != nil {
				fmt.Fprintf(&b, "- Proxy (step %d): %s measured as %s\n", s.Number, s.Proxy.UnobservableClaim, s.Proxy.ObservableProxy)
			}
		}
		for _, e := range d.Evidence {
			fmt.Fprintf(&b, "- %s (%s, %.2f)\n", e.Title, e.Source, e.Confidence)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
