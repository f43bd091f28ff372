package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/example/dialectica/internal/core/decompose"
	coredossier "github.com/example/dialectica/internal/core/dossier"
	corejob "github.com/example/dialectica/internal/core/job"
	coreledger "github.com/example/dialectica/internal/core/ledger"
	"github.com/example/dialectica/internal/core/research"
	"github.com/example/dialectica/internal/ctxutil"
	"github.com/example/dialectica/internal/metrics"
	"github.com/example/dialectica/internal/ports/primary"
	"github.com/example/dialectica/internal/ports/secondary"
)

var validate = validator.New()

// OrchestrationServiceImpl implements the OrchestrationService interface.
type OrchestrationServiceImpl struct {
	jobRepo       secondary.JobRepository
	dossierRepo   secondary.DossierRepository
	planRepo      secondary.PlanRepository
	evidenceRepo  secondary.EvidenceRepository
	feedbackRepo  secondary.FeedbackRepository
	synthesisRepo secondary.SynthesisRepository
	llm           *TrackedLLM
	tools         *TrackedTools
	queue         secondary.TaskQueue
	log           *slog.Logger
}

// NewOrchestrationService creates a new OrchestrationService with injected dependencies.
func NewOrchestrationService(
	jobRepo secondary.JobRepository,
	dossierRepo secondary.DossierRepository,
	planRepo secondary.PlanRepository,
	evidenceRepo secondary.EvidenceRepository,
	feedbackRepo secondary.FeedbackRepository,
	synthesisRepo secondary.SynthesisRepository,
	llm *TrackedLLM,
	tools *TrackedTools,
	queue secondary.TaskQueue,
	log *slog.Logger,
) *OrchestrationServiceImpl {
	return &OrchestrationServiceImpl{
		jobRepo:       jobRepo,
		dossierRepo:   dossierRepo,
		planRepo:      planRepo,
		evidenceRepo:  evidenceRepo,
		feedbackRepo:  feedbackRepo,
		synthesisRepo: synthesisRepo,
		llm:           llm,
		tools:         tools,
		queue:         queue,
		log:           log,
	}
}

// CreateJob allocates a job with its two dossiers and dispatches decomposition.
func (s *OrchestrationServiceImpl) CreateJob(ctx context.Context, req primary.CreateJobRequest) (*primary.CreateJobResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", primary.ErrInvalidRequest, err)
	}
	if guard := corejob.CanCreateJob(corejob.CreateJobContext{Query: req.Query}); !guard.Allowed {
		return nil, fmt.Errorf("%w: %w", primary.ErrInvalidRequest, guard.Error())
	}

	missions := make(map[string]string, 2)
	for _, side := range coredossier.Sides() {
		missions[string(side)] = decompose.InitialMission(string(side), req.Query)
	}

	record, err := s.jobRepo.Create(ctx, &secondary.NewJob{Query: req.Query, Missions: missions})
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	s.log.Info("job created", "job_id", record.ID)

	// The job exists either way; a lost decompose task is re-sent by the
	// reconciliation sweep.
	if err := enqueue(ctx, s.queue, secondary.Task{Kind: secondary.TaskDecompose, JobID: record.ID}); err != nil {
		s.log.Warn("failed to dispatch decomposition", "job_id", record.ID, "error", err)
	}

	return &primary.CreateJobResponse{
		JobID: record.ID,
		Job:   recordToJob(record),
	}, nil
}

// Decompose plans both sides of a pending job and dispatches research.
func (s *OrchestrationServiceImpl) Decompose(ctx context.Context, jobID string) error {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return lookupError("job", jobID, err)
	}
	if guard := corejob.CanDecompose(corejob.DecomposeContext{JobID: job.ID, Status: job.Status}); !guard.Allowed {
		s.log.Info("skipping decomposition", "job_id", job.ID, "reason", guard.Reason)
		return nil
	}

	ctx = ctxutil.WithScope(ctx, ctxutil.Scope{JobID: job.ID})

	dossiers, err := s.dossierRepo.ListByJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to list dossiers: %w", err)
	}
	missions := make(map[string]string, len(dossiers))
	for _, d := range dossiers {
		missions[d.Side] = d.Mission
	}

	tools, err := loadManifest(ctx, s.tools, s.log)
	if err != nil {
		return err
	}

	plan, err := s.plan(ctx, job.Query, missions, tools)
	if err != nil {
		return err
	}

	sides := make([]*secondary.SideDecomposition, 0, len(dossiers))
	for _, d := range dossiers {
		half := plan.ForSide(d.Side)
		steps := make([]*secondary.NewStep, len(half.Steps))
		for i, st := range half.Steps {
			steps[i] = &secondary.NewStep{
				Description:                st.Description,
				Tool:                       st.Tool,
				ToolSelectionJustification: st.ToolSelectionJustification,
				ToolQueryRationale:         st.ToolQueryRationale,
			}
		}
		sides = append(sides, &secondary.SideDecomposition{Side: d.Side, Mission: half.Mission, Steps: steps})
	}

	applied, err := s.jobRepo.ApplyDecomposition(ctx, job.ID, sides)
	if err != nil {
		return fmt.Errorf("failed to apply decomposition: %w", err)
	}
	if !applied {
		s.log.Info("decomposition already applied", "job_id", job.ID)
		return nil
	}
	metrics.Transitions.WithLabelValues("job", corejob.StatusResearching).Inc()
	s.log.Info("job decomposed", "job_id", job.ID, "thesis_steps", len(plan.Thesis.Steps), "antithesis_steps", len(plan.Antithesis.Steps))

	var errs []error
	for _, d := range dossiers {
		metrics.Transitions.WithLabelValues("dossier", string(coredossier.StatusResearching)).Inc()
		if err := enqueue(ctx, s.queue, secondary.Task{Kind: secondary.TaskRunResearch, JobID: job.ID, DossierID: d.ID}); err != nil {
			errs = append(errs, fmt.Errorf("failed to dispatch research for dossier %s: %w", d.ID, err))
		}
	}
	return errors.Join(errs...)
}

// plan asks for a decomposition, falling back to the default plan when the
// provider fails or its answer does not fit the schema.
func (s *OrchestrationServiceImpl) plan(ctx context.Context, query string, missions map[string]string, tools []research.Tool) (*decompose.Plan, error) {
	prompt := decompose.Prompt(query, missions[string(coredossier.SideThesis)], missions[string(coredossier.SideAntithesis)], tools)

	text, err := s.llm.Generate(ctx, coreledger.CallOrchestratorMission, prompt)
	if err != nil {
		if !errors.Is(err, secondary.ErrProvider) {
			return nil, err
		}
		fallback(ctx, s.log, "decomposition", err)
		return decompose.DefaultPlan(query), nil
	}

	plan, err := decompose.Parse(text)
	if err != nil {
		fallback(ctx, s.log, "decomposition", err)
		return decompose.DefaultPlan(query), nil
	}
	return plan, nil
}

// OnResearchUnitFinished runs the convergence check for the dossier's job.
func (s *OrchestrationServiceImpl) OnResearchUnitFinished(ctx context.Context, dossierID string) (bool, error) {
	d, err := s.dossierRepo.GetByID(ctx, dossierID)
	if err != nil {
		return false, lookupError("dossier", dossierID, err)
	}

	converged, err := s.jobRepo.MarkAwaitingVerification(ctx, d.JobID)
	if err != nil {
		return false, fmt.Errorf("failed to check convergence: %w", err)
	}
	if converged {
		metrics.Transitions.WithLabelValues("job", corejob.StatusAwaitingVerification).Inc()
		s.log.Info("job awaiting verification", "job_id", d.JobID)
	}
	return converged, nil
}

// GetJob retrieves a job with its dossiers.
func (s *OrchestrationServiceImpl) GetJob(ctx context.Context, jobID string) (*primary.JobDetail, error) {
	record, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, lookupError("job", jobID, err)
	}

	dossiers, err := s.dossierRepo.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dossiers: %w", err)
	}

	hasReport := true
	if _, err := s.synthesisRepo.GetByJob(ctx, jobID); err != nil {
		if !errors.Is(err, secondary.ErrNotFound) {
			return nil, fmt.Errorf("failed to get report: %w", err)
		}
		hasReport = false
	}

	detail := &primary.JobDetail{Job: recordToJob(record), HasReport: hasReport}
	for _, d := range dossiers {
		detail.Dossiers = append(detail.Dossiers, recordToDossier(d))
	}
	return detail, nil
}

// ListJobs lists jobs with optional filters.
func (s *OrchestrationServiceImpl) ListJobs(ctx context.Context, filters primary.JobFilters) ([]*primary.Job, error) {
	if filters.Status != "" && !corejob.IsValidStatus(filters.Status) {
		return nil, fmt.Errorf("%w: unknown job status %q", primary.ErrInvalidRequest, filters.Status)
	}

	records, err := s.jobRepo.List(ctx, secondary.JobFilters{Status: filters.Status, Limit: filters.Limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*primary.Job, len(records))
	for i, r := range records {
		jobs[i] = recordToJob(r)
	}
	return jobs, nil
}

// GetDossier retrieves a dossier with its steps, evidence and feedback.
func (s *OrchestrationServiceImpl) GetDossier(ctx context.Context, dossierID string) (*primary.DossierDetail, error) {
	d, err := s.dossierRepo.GetByID(ctx, dossierID)
	if err != nil {
		return nil, lookupError("dossier", dossierID, err)
	}
	return loadDossierDetail(ctx, d, s.planRepo, s.evidenceRepo, s.feedbackRepo)
}

// loadDossierDetail reads a dossier's plan, evidence and feedback.
func loadDossierDetail(
	ctx context.Context,
	d *secondary.DossierRecord,
	planRepo secondary.PlanRepository,
	evidenceRepo secondary.EvidenceRepository,
	feedbackRepo secondary.FeedbackRepository,
) (*primary.DossierDetail, error) {
	plan, err := planRepo.GetByDossier(ctx, d.ID)
	if err != nil {
		return nil, lookupError("plan for dossier", d.ID, err)
	}
	steps, err := planRepo.ListSteps(ctx, plan.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	evidence, err := evidenceRepo.ListByDossier(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	feedback, err := feedbackRepo.ListByDossier(ctx, d.ID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}

	detail := &primary.DossierDetail{Dossier: recordToDossier(d), PlanID: plan.ID}
	for _, st := range steps {
		detail.Steps = append(detail.Steps, recordToStep(st))
	}
	for _, e := range evidence {
		detail.Evidence = append(detail.Evidence, recordToEvidence(e))
	}
	for _, f := range feedback {
		detail.Feedback = append(detail.Feedback, &primary.Feedback{
			ID:          f.ID,
			Feedback:    f.Feedback,
			CreatedAt:   f.CreatedAt,
			ProcessedAt: f.ProcessedAt,
		})
	}
	return detail, nil
}

// loadManifest fetches the tool manifest, substituting the default list
// when the provider cannot answer.
func loadManifest(ctx context.Context, tools *TrackedTools, log *slog.Logger) ([]research.Tool, error) {
	manifest, err := tools.Manifest(ctx)
	if err != nil {
		if !errors.Is(err, secondary.ErrProvider) {
			return nil, err
		}
		fallback(ctx, log, "manifest", err)
		return research.DefaultManifest(), nil
	}
	return manifest, nil
}

// fallback records that a deterministic default replaced a provider answer.
func fallback(ctx context.Context, log *slog.Logger, decision string, cause error) {
	metrics.Fallbacks.WithLabelValues(decision).Inc()
	attrs := append([]any{"decision", decision, "error", cause}, ctxutil.LogAttrs(ctx)...)
	log.Warn("using fallback", attrs...)
}

func recordToJob(r *secondary.JobRecord) *primary.Job {
	return &primary.Job{
		ID:        r.ID,
		Query:     r.Query,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func recordToDossier(r *secondary.DossierRecord) *primary.Dossier {
	return &primary.Dossier{
		ID:        r.ID,
		JobID:     r.JobID,
		Side:      r.Side,
		Mission:   r.Mission,
		Status:    r.Status,
		Summary:   r.Summary,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func recordToStep(r *secondary.StepRecord) *primary.Step {
	step := &primary.Step{
		ID:                         r.ID,
		StepNumber:                 r.StepNumber,
		Description:                r.Description,
		Status:                     r.Status,
		ToolUsed:                   r.ToolUsed,
		ToolSelectionJustification: r.ToolSelectionJustification,
		ToolQueryRationale:         r.ToolQueryRationale,
		DataGapIdentified:          r.DataGapIdentified,
		ToolInput:                  r.ToolInput,
		ToolOutputSummary:          r.ToolOutputSummary,
	}
	// A corrupt proxy is shown as absent rather than failing the read.
	if p, err := research.DecodeProxy(r.ProxyHypothesis); err == nil && p != nil {
		step.Proxy = &primary.ProxyHypothesis{
			UnobservableClaim: p.UnobservableClaim,
			DeductiveChain:    p.DeductiveChain,
			ObservableProxy:   p.ObservableProxy,
		}
	}
	return step
}

func recordToEvidence(r *secondary.EvidenceRecord) *primary.Evidence {
	return &primary.Evidence{
		ID:         r.ID,
		StepID:     r.StepID,
		Title:      r.Title,
		Content:    r.Content,
		Source:     r.Source,
		Confidence: r.Confidence,
		Tags:       r.Tags,
		CreatedAt:  r.CreatedAt,
	}
}

var _ primary.OrchestrationService = (*OrchestrationServiceImpl)(nil)
