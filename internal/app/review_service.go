package app

import (
	"context"
	"fmt"
	"log/slog"

	coredossier "github.com/example/dialectica/internal/core/dossier"
	corejob "github.com/example/dialectica/internal/core/job"
	"github.com/example/dialectica/internal/core/research"
	"github.com/example/dialectica/internal/metrics"
	"github.com/example/dialectica/internal/ports/primary"
	"github.com/example/dialectica/internal/ports/secondary"
)

// ReviewServiceImpl implements the ReviewService interface.
type ReviewServiceImpl struct {
	jobRepo      secondary.JobRepository
	dossierRepo  secondary.DossierRepository
	planRepo     secondary.PlanRepository
	evidenceRepo secondary.EvidenceRepository
	feedbackRepo secondary.FeedbackRepository
	queue        secondary.TaskQueue
	log          *slog.Logger
}

// NewReviewService creates a new ReviewService with injected dependencies.
func NewReviewService(
	jobRepo secondary.JobRepository,
	dossierRepo secondary.DossierRepository,
	planRepo secondary.PlanRepository,
	evidenceRepo secondary.EvidenceRepository,
	feedbackRepo secondary.FeedbackRepository,
	queue secondary.TaskQueue,
	log *slog.Logger,
) *ReviewServiceImpl {
	return &ReviewServiceImpl{
		jobRepo:      jobRepo,
		dossierRepo:  dossierRepo,
		planRepo:     planRepo,
		evidenceRepo: evidenceRepo,
		feedbackRepo: feedbackRepo,
		queue:        queue,
		log:          log,
	}
}

// Review applies an approve or revise decision.
func (s *ReviewServiceImpl) Review(ctx context.Context, req primary.ReviewRequest) (*primary.ReviewResponse, error) {
	d, err := s.dossierRepo.GetByID(ctx, req.DossierID)
	if err != nil {
		return nil, lookupError("dossier", req.DossierID, err)
	}

	guard := coredossier.CanReview(coredossier.ReviewContext{
		DossierID: d.ID,
		Status:    coredossier.Status(d.Status),
		Action:    req.Action,
		Feedback:  req.Feedback,
	})
	if !guard.Allowed {
		return nil, denialError(guard)
	}

	resp := &primary.ReviewResponse{DossierID: d.ID, JobID: d.JobID}

	switch req.Action {
	case coredossier.ActionApprove:
		if err := s.approve(ctx, d, resp); err != nil {
			return nil, err
		}
	case coredossier.ActionRevise:
		if err := s.revise(ctx, d, req.Feedback, resp); err != nil {
			return nil, err
		}
	}

	job, err := s.jobRepo.GetByID(ctx, d.JobID)
	if err != nil {
		return nil, lookupError("job", d.JobID, err)
	}
	resp.JobStatus = job.Status
	return resp, nil
}

func (s *ReviewServiceImpl) approve(ctx context.Context, d *secondary.DossierRecord, resp *primary.ReviewResponse) error {
	approved, err := s.dossierRepo.Transition(ctx, d.ID,
		statusStrings(coredossier.SourcesFor(coredossier.StatusApproved)), string(coredossier.StatusApproved))
	if err != nil {
		return fmt.Errorf("failed to approve dossier: %w", err)
	}
	if !approved {
		return fmt.Errorf("%w: dossier %s was reviewed concurrently", primary.ErrInvalidState, d.ID)
	}
	metrics.Transitions.WithLabelValues("dossier", string(coredossier.StatusApproved)).Inc()
	resp.DossierStatus = string(coredossier.StatusApproved)
	s.log.Info("dossier approved", "dossier_id", d.ID, "job_id", d.JobID)

	completed, err := s.jobRepo.MarkComplete(ctx, d.JobID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if !completed {
		return nil
	}
	metrics.Transitions.WithLabelValues("job", corejob.StatusComplete).Inc()
	resp.JobCompleted = true
	s.log.Info("job complete", "job_id", d.JobID)

	// Only the approval that completed the job dispatches synthesis. If the
	// dispatch is lost, the reconciliation sweep finds the job without a
	// report.
	if err := enqueue(ctx, s.queue, secondary.Task{Kind: secondary.TaskSynthesize, JobID: d.JobID}); err != nil {
		s.log.Warn("failed to dispatch synthesis", "job_id", d.JobID, "error", err)
	}
	return nil
}

func (s *ReviewServiceImpl) revise(ctx context.Context, d *secondary.DossierRecord, feedback string, resp *primary.ReviewResponse) error {
	requested, err := s.dossierRepo.RequestRevision(ctx, d.ID, feedback)
	if err != nil {
		return fmt.Errorf("failed to request revision: %w", err)
	}
	if !requested {
		return fmt.Errorf("%w: dossier %s was reviewed concurrently", primary.ErrInvalidState, d.ID)
	}
	metrics.Transitions.WithLabelValues("dossier", string(coredossier.StatusRevisionRequested)).Inc()
	resp.DossierStatus = string(coredossier.StatusRevisionRequested)
	s.log.Info("revision requested", "dossier_id", d.ID, "job_id", d.JobID)

	if err := enqueue(ctx, s.queue, secondary.Task{Kind: secondary.TaskRunResearch, JobID: d.JobID, DossierID: d.ID}); err != nil {
		s.log.Warn("failed to dispatch research", "dossier_id", d.ID, "error", err)
		return nil
	}
	resp.ResearchQueued = true
	return nil
}

// GetVerification returns the checklist a reviewer works through.
func (s *ReviewServiceImpl) GetVerification(ctx context.Context, dossierID string) (*primary.Verification, error) {
	d, err := s.dossierRepo.GetByID(ctx, dossierID)
	if err != nil {
		return nil, lookupError("dossier", dossierID, err)
	}

	detail, err := loadDossierDetail(ctx, d, s.planRepo, s.evidenceRepo, s.feedbackRepo)
	if err != nil {
		return nil, err
	}

	siblings, err := s.dossierRepo.ListByJob(ctx, d.JobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dossiers: %w", err)
	}
	v := &primary.Verification{Dossier: detail.Dossier}
	statuses := make([]string, 0, len(siblings))
	for _, sib := range siblings {
		statuses = append(statuses, sib.Status)
		if sib.ID != d.ID {
			v.SiblingStatus = sib.Status
		}
	}
	v.CanSynthesize = corejob.CanSynthesize(corejob.SynthesizeContext{JobID: d.JobID, DossierStatuses: statuses}).Allowed

	for _, f := range detail.Feedback {
		if f.ProcessedAt == "" {
			v.PendingFeedback++
		}
	}

	stepsByNumber := make(map[int]*primary.Step, len(detail.Steps))
	checklistSteps := make([]coredossier.ChecklistStep, 0, len(detail.Steps))
	for _, st := range detail.Steps {
		stepsByNumber[st.StepNumber] = st
		cs := coredossier.ChecklistStep{
			Number:        st.StepNumber,
			Description:   st.Description,
			Tool:          st.ToolUsed,
			Justification: st.ToolSelectionJustification,
			Rationale:     st.ToolQueryRationale,
			DataGap:       st.DataGapIdentified,
		}
		if st.Proxy != nil {
			cs.Proxy = &research.ProxyHypothesis{
				UnobservableClaim: st.Proxy.UnobservableClaim,
				DeductiveChain:    st.Proxy.DeductiveChain,
				ObservableProxy:   st.Proxy.ObservableProxy,
			}
		}
		checklistSteps = append(checklistSteps, cs)
	}

	evidenceByID := make(map[string]*primary.Evidence, len(detail.Evidence))
	checklistEvidence := make([]coredossier.ChecklistEvidence, 0, len(detail.Evidence))
	for _, e := range detail.Evidence {
		evidenceByID[e.ID] = e
		checklistEvidence = append(checklistEvidence, coredossier.ChecklistEvidence{
			ID:         e.ID,
			Title:      e.Title,
			Source:     e.Source,
			Confidence: e.Confidence,
		})
	}

	checklist := coredossier.BuildChecklist(d.Summary, checklistSteps, checklistEvidence)
	for _, cs := range checklist.Proxies {
		v.ProxySteps = append(v.ProxySteps, stepsByNumber[cs.Number])
	}
	for _, cs := range checklist.Reasoning {
		v.Reasoning = append(v.Reasoning, stepsByNumber[cs.Number])
	}
	for _, ce := range checklist.SpotCheck {
		v.SpotCheck = append(v.SpotCheck, evidenceByID[ce.ID])
	}
	return v, nil
}

// denialError maps a guard denial to the matching primary sentinel.
func denialError(guard coredossier.GuardResult) error {
	switch guard.Kind {
	case coredossier.DenialMissingFeedback:
		return fmt.Errorf("%w: %s", primary.ErrMissingFeedback, guard.Reason)
	case coredossier.DenialInvalidAction:
		return fmt.Errorf("%w: %s", primary.ErrInvalidAction, guard.Reason)
	default:
		return fmt.Errorf("%w: %s", primary.ErrInvalidState, guard.Reason)
	}
}

var _ primary.ReviewService = (*ReviewServiceImpl)(nil)
