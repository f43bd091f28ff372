package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	coredossier "github.com/example/dialectica/internal/core/dossier"
	corejob "github.com/example/dialectica/internal/core/job"
	coreledger "github.com/example/dialectica/internal/core/ledger"
	"github.com/example/dialectica/internal/core/research"
	"github.com/example/dialectica/internal/core/synthesis"
	"github.com/example/dialectica/internal/ctxutil"
	"github.com/example/dialectica/internal/ports/primary"
	"github.com/example/dialectica/internal/ports/secondary"
)

// SynthesisServiceImpl implements the SynthesisService interface.
type SynthesisServiceImpl struct {
	jobRepo       secondary.JobRepository
	dossierRepo   secondary.DossierRepository
	planRepo      secondary.PlanRepository
	evidenceRepo  secondary.EvidenceRepository
	synthesisRepo secondary.SynthesisRepository
	llm           *TrackedLLM
	log           *slog.Logger
}

// NewSynthesisService creates a new SynthesisService with injected dependencies.
func NewSynthesisService(
	jobRepo secondary.JobRepository,
	dossierRepo secondary.DossierRepository,
	planRepo secondary.PlanRepository,
	evidenceRepo secondary.EvidenceRepository,
	synthesisRepo secondary.SynthesisRepository,
	llm *TrackedLLM,
	log *slog.Logger,
) *SynthesisServiceImpl {
	return &SynthesisServiceImpl{
		jobRepo:       jobRepo,
		dossierRepo:   dossierRepo,
		planRepo:      planRepo,
		evidenceRepo:  evidenceRepo,
		synthesisRepo: synthesisRepo,
		llm:           llm,
		log:           log,
	}
}

// Synthesize produces the job's report once both dossiers are approved.
func (s *SynthesisServiceImpl) Synthesize(ctx context.Context, jobID string) (*primary.Report, error) {
	existing, err := s.synthesisRepo.GetByJob(ctx, jobID)
	if err == nil {
		s.log.Info("report already exists", "job_id", jobID)
		return recordToReport(existing), nil
	}
	if !errors.Is(err, secondary.ErrNotFound) {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, lookupError("job", jobID, err)
	}
	dossiers, err := s.dossierRepo.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dossiers: %w", err)
	}

	statuses := make([]string, len(dossiers))
	for i, d := range dossiers {
		statuses[i] = d.Status
	}
	if guard := corejob.CanSynthesize(corejob.SynthesizeContext{JobID: jobID, DossierStatuses: statuses}); !guard.Allowed {
		return nil, fmt.Errorf("%w: %s", primary.ErrNotReady, guard.Reason)
	}

	var thesis, antithesis synthesis.DossierView
	for _, d := range dossiers {
		view, err := s.view(ctx, d)
		if err != nil {
			return nil, err
		}
		if d.Side == string(coredossier.SideAntithesis) {
			antithesis = view
		} else {
			thesis = view
		}
	}

	ctx = ctxutil.WithScope(ctx, ctxutil.Scope{JobID: jobID})
	content, err := s.llm.Generate(ctx, coreledger.CallSynthesis, synthesis.Prompt(job.Query, thesis, antithesis))
	if err != nil {
		if !errors.Is(err, secondary.ErrProvider) {
			return nil, err
		}
		fallback(ctx, s.log, coreledger.CallSynthesis, err)
		content = synthesis.FallbackReport(job.Query, thesis, antithesis)
	}

	created, err := s.synthesisRepo.Create(ctx, jobID, content)
	if err != nil {
		return nil, fmt.Errorf("failed to store report: %w", err)
	}
	if created {
		s.log.Info("report written", "job_id", jobID)
	} else {
		s.log.Info("report written by a concurrent synthesis", "job_id", jobID)
	}

	report, err := s.synthesisRepo.GetByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return recordToReport(report), nil
}

// view collects one dossier's mission, summary, steps and evidence.
func (s *SynthesisServiceImpl) view(ctx context.Context, d *secondary.DossierRecord) (synthesis.DossierView, error) {
	view := synthesis.DossierView{
		Label:   coredossier.Side(d.Side).Label(),
		Mission: d.Mission,
		Summary: d.Summary,
	}

	plan, err := s.planRepo.GetByDossier(ctx, d.ID)
	if err != nil {
		return view, lookupError("plan for dossier", d.ID, err)
	}
	steps, err := s.planRepo.ListSteps(ctx, plan.ID)
	if err != nil {
		return view, fmt.Errorf("failed to list steps: %w", err)
	}
	for _, st := range steps {
		sv := synthesis.StepView{Number: st.StepNumber, Description: st.Description}
		if p, err := research.DecodeProxy(st.ProxyHypothesis); err == nil {
			sv.Proxy = p
		}
		view.Steps = append(view.Steps, sv)
	}

	evidence, err := s.evidenceRepo.ListByDossier(ctx, d.ID)
	if err != nil {
		return view, fmt.Errorf("failed to list evidence: %w", err)
	}
	for _, e := range evidence {
		view.Evidence = append(view.Evidence, research.Evidence{
			Title:      e.Title,
			Content:    e.Content,
			Source:     e.Source,
			Confidence: e.Confidence,
			Tags:       e.Tags,
		})
	}
	return view, nil
}

// GetReport retrieves the job's report.
func (s *SynthesisServiceImpl) GetReport(ctx context.Context, jobID string) (*primary.Report, error) {
	record, err := s.synthesisRepo.GetByJob(ctx, jobID)
	if err != nil {
		return nil, lookupError("report for job", jobID, err)
	}
	return recordToReport(record), nil
}

func recordToReport(r *secondary.ReportRecord) *primary.Report {
	return &primary.Report{
		ID:        r.ID,
		JobID:     r.JobID,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
	}
}

var _ primary.SynthesisService = (*SynthesisServiceImpl)(nil)
