package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coredossier "github.com/example/dialectica/internal/core/dossier"
	coreledger "github.com/example/dialectica/internal/core/ledger"
	"github.com/example/dialectica/internal/core/research"
	"github.com/example/dialectica/internal/ctxutil"
	"github.com/example/dialectica/internal/metrics"
	"github.com/example/dialectica/internal/ports/primary"
	"github.com/example/dialectica/internal/ports/secondary"
)

// errStepHeld is returned by ExecuteStep when another run holds the step.
var errStepHeld = fmt.Errorf("%w: step is held by another run", primary.ErrInvalidState)

// ResearchServiceImpl implements the ResearchService interface.
type ResearchServiceImpl struct {
	dossierRepo  secondary.DossierRepository
	planRepo     secondary.PlanRepository
	evidenceRepo secondary.EvidenceRepository
	llm          *TrackedLLM
	tools        *TrackedTools
	staleAfter   time.Duration
	log          *slog.Logger
}

// NewResearchService creates a new ResearchService with injected dependencies.
func NewResearchService(
	dossierRepo secondary.DossierRepository,
	planRepo secondary.PlanRepository,
	evidenceRepo secondary.EvidenceRepository,
	llm *TrackedLLM,
	tools *TrackedTools,
	staleAfter time.Duration,
	log *slog.Logger,
) *ResearchServiceImpl {
	return &ResearchServiceImpl{
		dossierRepo:  dossierRepo,
		planRepo:     planRepo,
		evidenceRepo: evidenceRepo,
		llm:          llm,
		tools:        tools,
		staleAfter:   staleAfter,
		log:          log,
	}
}

// RunPlan executes the dossier's unfinished steps and hands it to review.
func (s *ResearchServiceImpl) RunPlan(ctx context.Context, dossierID string) error {
	d, err := s.dossierRepo.GetByID(ctx, dossierID)
	if err != nil {
		return lookupError("dossier", dossierID, err)
	}
	guard := coredossier.CanStartResearch(coredossier.StartResearchContext{
		DossierID: d.ID,
		Status:    coredossier.Status(d.Status),
	})
	if !guard.Allowed {
		s.log.Info("skipping research", "dossier_id", d.ID, "reason", guard.Reason)
		return nil
	}
	// A pending dossier has no plan until its job is decomposed.
	if d.Status == string(coredossier.StatusPending) {
		s.log.Info("skipping research until decomposition", "dossier_id", d.ID)
		return nil
	}

	ctx = ctxutil.WithScope(ctx, ctxutil.Scope{JobID: d.JobID, DossierID: d.ID})

	consumed, err := s.planRepo.ApplyRevisionFeedback(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("failed to apply revision feedback: %w", err)
	}
	if consumed > 0 {
		s.log.Info("revision feedback applied", "dossier_id", d.ID, "entries", consumed)
	}

	started, err := s.dossierRepo.Transition(ctx, d.ID, statusStrings(coredossier.SourcesFor(coredossier.StatusResearching)), string(coredossier.StatusResearching))
	if err != nil {
		return fmt.Errorf("failed to start research: %w", err)
	}
	if !started {
		s.log.Info("dossier left research before it started", "dossier_id", d.ID)
		return nil
	}

	plan, err := s.planRepo.GetByDossier(ctx, d.ID)
	if err != nil {
		return lookupError("plan for dossier", d.ID, err)
	}
	steps, err := s.planRepo.ListSteps(ctx, plan.ID)
	if err != nil {
		return fmt.Errorf("failed to list steps: %w", err)
	}

	held := 0
	for _, st := range steps {
		if !research.NeedsExecution(st.Status) {
			continue
		}
		if _, err := s.ExecuteStep(ctx, d.ID, st.ID); err != nil {
			if errors.Is(err, errStepHeld) {
				s.log.Info("step held by another run", "dossier_id", d.ID, "step_id", st.ID)
				held++
				continue
			}
			if markErr := s.planRepo.UpdateStepStatus(context.WithoutCancel(ctx), st.ID, research.StepFailed); markErr != nil {
				s.log.Error("failed to mark step failed", "step_id", st.ID, "error", markErr)
			}
			return fmt.Errorf("failed to execute step %d: %w", st.StepNumber, err)
		}
	}

	// Whichever run finishes the last step finalizes the dossier.
	if held > 0 {
		done, err := s.planComplete(ctx, plan.ID)
		if err != nil || !done {
			return err
		}
	}

	finalized, err := finalizeDossier(ctx, d, s.planRepo, s.evidenceRepo, s.dossierRepo)
	if err != nil {
		return err
	}
	if finalized {
		s.log.Info("dossier awaiting verification", "dossier_id", d.ID, "job_id", d.JobID)
	}
	return nil
}

func (s *ResearchServiceImpl) planComplete(ctx context.Context, planID string) (bool, error) {
	steps, err := s.planRepo.ListSteps(ctx, planID)
	if err != nil {
		return false, fmt.Errorf("failed to list steps: %w", err)
	}
	statuses := make([]string, len(steps))
	for i, st := range steps {
		statuses[i] = st.Status
	}
	return research.AllCompleted(statuses), nil
}

// finalizeDossier stores the summary and moves the dossier to
// awaiting_verification. Returns false if the dossier was no longer
// researching.
func finalizeDossier(
	ctx context.Context,
	d *secondary.DossierRecord,
	planRepo secondary.PlanRepository,
	evidenceRepo secondary.EvidenceRepository,
	dossierRepo secondary.DossierRepository,
) (bool, error) {
	plan, err := planRepo.GetByDossier(ctx, d.ID)
	if err != nil {
		return false, lookupError("plan for dossier", d.ID, err)
	}
	steps, err := planRepo.ListSteps(ctx, plan.ID)
	if err != nil {
		return false, fmt.Errorf("failed to list steps: %w", err)
	}
	count, err := evidenceRepo.CountByDossier(ctx, d.ID)
	if err != nil {
		return false, fmt.Errorf("failed to count evidence: %w", err)
	}

	summary := research.Summarize(coredossier.Side(d.Side).Label(), d.Mission, count, len(steps))
	finalized, err := dossierRepo.Finalize(ctx, d.ID, summary)
	if err != nil {
		return false, fmt.Errorf("failed to finalize dossier %s: %w", d.ID, err)
	}
	if finalized {
		metrics.Transitions.WithLabelValues("dossier", string(coredossier.StatusAwaitingVerification)).Inc()
	}
	return finalized, nil
}

// ExecuteStep runs the proxy framework and the tool call for one step.
func (s *ResearchServiceImpl) ExecuteStep(ctx context.Context, dossierID, stepID string) (*primary.StepOutcome, error) {
	d, err := s.dossierRepo.GetByID(ctx, dossierID)
	if err != nil {
		return nil, lookupError("dossier", dossierID, err)
	}
	step, err := s.planRepo.GetStep(ctx, stepID)
	if err != nil {
		return nil, lookupError("step", stepID, err)
	}

	ctx = ctxutil.WithScope(ctx, ctxutil.Scope{JobID: d.JobID, DossierID: d.ID, StepID: step.ID})

	claimed, err := s.planRepo.ClaimStep(ctx, step.ID, s.staleAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to start step: %w", err)
	}
	if !claimed {
		return nil, errStepHeld
	}

	tools, err := loadManifest(ctx, s.tools, s.log)
	if err != nil {
		return nil, err
	}

	description := step.Description
	proxy, err := research.DecodeProxy(step.ProxyHypothesis)
	if err != nil {
		s.log.Warn("discarding unreadable proxy", "step_id", step.ID, "error", err)
		proxy = nil
	}

	if proxy == nil {
		observable, err := s.classify(ctx, d.Mission, description)
		if err != nil {
			return nil, err
		}
		if !observable {
			p, gap, err := s.bridge(ctx, description)
			if err != nil {
				return nil, err
			}
			encoded, err := research.EncodeProxy(p)
			if err != nil {
				return nil, err
			}
			description = research.RewriteDescription(description, p)
			if err := s.planRepo.SaveProxy(ctx, step.ID, description, gap, encoded); err != nil {
				return nil, fmt.Errorf("failed to save proxy: %w", err)
			}
			proxy = &p
		}
	}

	tool, err := s.selectTool(ctx, description, tools)
	if err != nil {
		return nil, err
	}
	class := research.ClassOf(tool)

	query, err := s.formulateQuery(ctx, description, tool, class)
	if err != nil {
		return nil, err
	}

	evidence, summary, usedFallback, err := s.run(ctx, tool, query, description)
	if err != nil {
		return nil, err
	}
	evidence = research.TagWithProxy(evidence, proxy)

	records := make([]*secondary.EvidenceRecord, len(evidence))
	for i, e := range evidence {
		records[i] = &secondary.EvidenceRecord{
			DossierID:  d.ID,
			StepID:     step.ID,
			Title:      e.Title,
			Content:    e.Content,
			Source:     e.Source,
			Confidence: research.ClampConfidence(e.Confidence),
			Tags:       e.Tags,
		}
	}

	if err := s.planRepo.CompleteStep(ctx, &secondary.StepCompletion{
		StepID:        step.ID,
		DossierID:     d.ID,
		ToolUsed:      tool,
		ToolInput:     query,
		OutputSummary: summary,
		Evidence:      records,
	}); err != nil {
		return nil, fmt.Errorf("failed to complete step: %w", err)
	}

	s.log.Debug("step completed", "step_id", step.ID, "tool", tool, "evidence", len(records), "fallback", usedFallback)
	return &primary.StepOutcome{
		StepID:        step.ID,
		Tool:          tool,
		Query:         query,
		UsedProxy:     proxy != nil,
		UsedFallback:  usedFallback,
		EvidenceCount: len(records),
	}, nil
}

// ask makes one tracked LLM call. ok is false when the provider failed and
// the caller should fall back; err is set only for failures that must stop
// the step.
func (s *ResearchServiceImpl) ask(ctx context.Context, callType, prompt string) (text string, ok bool, err error) {
	text, err = s.llm.Generate(ctx, callType, prompt)
	if err != nil {
		if errors.Is(err, secondary.ErrProvider) {
			fallback(ctx, s.log, callType, err)
			return "", false, nil
		}
		return "", false, err
	}
	return text, true, nil
}

// classify decides whether the step's data can be measured directly.
func (s *ResearchServiceImpl) classify(ctx context.Context, mission, description string) (bool, error) {
	text, ok, err := s.ask(ctx, coreledger.CallClassification, research.ClassificationPrompt(mission, description))
	if err != nil {
		return false, err
	}
	if ok {
		if observable, parsed := research.ParseObservability(text); parsed {
			return observable, nil
		}
		fallback(ctx, s.log, coreledger.CallClassification, research.ErrMalformed)
	}
	return !research.LooksAbstract(description), nil
}

// bridge identifies the data gap of an unobservable step and the proxy
// that stands in for it.
func (s *ResearchServiceImpl) bridge(ctx context.Context, description string) (research.ProxyHypothesis, string, error) {
	gap := research.DefaultDataGap(description)
	text, ok, err := s.ask(ctx, coreledger.CallDataGap, research.DataGapPrompt(description))
	if err != nil {
		return research.ProxyHypothesis{}, "", err
	}
	if ok {
		if parsed, valid := research.ParseDataGap(text); valid {
			gap = parsed
		} else {
			fallback(ctx, s.log, coreledger.CallDataGap, research.ErrMalformed)
		}
	}

	proxy := research.DefaultProxyHypothesis(description)
	text, ok, err = s.ask(ctx, coreledger.CallProxyHypothesis, research.ProxyPrompt(description, gap))
	if err != nil {
		return research.ProxyHypothesis{}, "", err
	}
	if ok {
		if parsed, perr := research.ParseProxyHypothesis(text); perr == nil {
			proxy = parsed
		} else {
			fallback(ctx, s.log, coreledger.CallProxyHypothesis, perr)
		}
	}
	return proxy, gap, nil
}

// selectTool picks a tool from the manifest for the step.
func (s *ResearchServiceImpl) selectTool(ctx context.Context, description string, tools []research.Tool) (string, error) {
	names := research.ToolNames(tools)
	text, ok, err := s.ask(ctx, coreledger.CallToolSelection, research.ToolSelectionPrompt(description, tools))
	if err != nil {
		return "", err
	}
	if ok {
		if tool, matched := research.MatchToolChoice(text, names); matched {
			return tool, nil
		}
		fallback(ctx, s.log, coreledger.CallToolSelection, research.ErrMalformed)
	}
	return research.SelectToolHeuristic(description, names), nil
}

// formulateQuery writes the tool input for the step, honoring the input
// contract of the tool's class.
func (s *ResearchServiceImpl) formulateQuery(ctx context.Context, description, tool string, class research.ToolClass) (string, error) {
	text, ok, err := s.ask(ctx, coreledger.CallQueryFormulation, research.QueryPrompt(description, tool))
	if err != nil {
		return "", err
	}
	if ok {
		if query, valid := research.ParseQuery(class, text); valid {
			return query, nil
		}
		fallback(ctx, s.log, coreledger.CallQueryFormulation, research.ErrMalformed)
	}
	return research.DefaultQuery(class, description), nil
}

// run executes the tool and normalizes its result. A failed call or an
// undecodable payload yields a single fallback item.
func (s *ResearchServiceImpl) run(ctx context.Context, tool, query, description string) ([]research.Evidence, string, bool, error) {
	out, err := s.tools.Execute(ctx, tool, query)
	if err != nil {
		if !errors.Is(err, secondary.ErrProvider) {
			return nil, "", false, err
		}
		fallback(ctx, s.log, coreledger.CallExecute, err)
		return []research.Evidence{research.FallbackEvidence(tool, description, err)}, fmt.Sprintf("%s: unavailable", tool), true, nil
	}

	result, err := research.DecodeResult(tool, query, out.Payload)
	if err != nil {
		fallback(ctx, s.log, coreledger.CallExecute, err)
		return []research.Evidence{research.FallbackEvidence(tool, description, err)}, fmt.Sprintf("%s: unreadable result", tool), true, nil
	}
	return research.Normalize(result), result.Summarize(), false, nil
}

func statusStrings(statuses []coredossier.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

var _ primary.ResearchService = (*ResearchServiceImpl)(nil)
