package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coredossier "github.com/example/dialectica/internal/core/dossier"
	corejob "github.com/example/dialectica/internal/core/job"
	"github.com/example/dialectica/internal/core/research"
	"github.com/example/dialectica/internal/metrics"
	"github.com/example/dialectica/internal/ports/primary"
	"github.com/example/dialectica/internal/ports/secondary"
)

// ReconcileServiceImpl implements the ReconcileService interface.
//
// Units of work can be lost between transactions: a crashed worker, a
// failed enqueue, or a unit that timed out. The sweep finds the state such
// a loss leaves behind and either finishes the transition itself or
// dispatches the unit again. Every repair goes through the same
// compare-and-swap updates as the normal path, so racing a live worker is
// harmless.
type ReconcileServiceImpl struct {
	jobRepo      secondary.JobRepository
	dossierRepo  secondary.DossierRepository
	planRepo     secondary.PlanRepository
	evidenceRepo secondary.EvidenceRepository
	ledgerRepo   secondary.LedgerRepository
	queue        secondary.TaskQueue
	staleAfter   time.Duration
	log          *slog.Logger
}

// NewReconcileService creates a new ReconcileService with injected dependencies.
func NewReconcileService(
	jobRepo secondary.JobRepository,
	dossierRepo secondary.DossierRepository,
	planRepo secondary.PlanRepository,
	evidenceRepo secondary.EvidenceRepository,
	ledgerRepo secondary.LedgerRepository,
	queue secondary.TaskQueue,
	staleAfter time.Duration,
	log *slog.Logger,
) *ReconcileServiceImpl {
	return &ReconcileServiceImpl{
		jobRepo:      jobRepo,
		dossierRepo:  dossierRepo,
		planRepo:     planRepo,
		evidenceRepo: evidenceRepo,
		ledgerRepo:   ledgerRepo,
		queue:        queue,
		staleAfter:   staleAfter,
		log:          log,
	}
}

// Sweep repairs stuck work. A failing repair does not stop the others; all
// failures are returned together.
func (s *ReconcileServiceImpl) Sweep(ctx context.Context) (*primary.SweepResult, error) {
	result := &primary.SweepResult{}
	var errs []error

	errs = append(errs, s.requeueDecomposition(ctx, result))
	finalized, err := s.finalizeFinishedResearch(ctx, result)
	errs = append(errs, err)
	errs = append(errs, s.requeueResearch(ctx, finalized, result))
	// Jobs that are already complete get their synthesis dispatched before
	// the completion check runs, so a job completed by this sweep is only
	// dispatched once.
	errs = append(errs, s.requeueSynthesis(ctx, result))
	errs = append(errs, s.advanceJobs(ctx, result))

	failed, err := s.ledgerRepo.FailStale(ctx, s.staleAfter)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to close stale ledger entries: %w", err))
	}
	result.LedgerEntriesFailed = failed
	metrics.ReconcileActions.WithLabelValues("ledger_failed").Add(float64(failed))

	if result.Total() > 0 {
		s.log.Info("reconciliation sweep repaired work",
			"decompose_requeued", result.DecomposeRequeued,
			"dossiers_finalized", result.DossiersFinalized,
			"research_requeued", result.ResearchRequeued,
			"jobs_converged", result.JobsConverged,
			"jobs_completed", result.JobsCompleted,
			"synthesis_requeued", result.SynthesisRequeued,
			"ledger_failed", result.LedgerEntriesFailed,
		)
	}
	return result, errors.Join(errs...)
}

func (s *ReconcileServiceImpl) requeueDecomposition(ctx context.Context, result *primary.SweepResult) error {
	jobs, err := s.jobRepo.ListStale(ctx, corejob.StatusPending, s.staleAfter)
	if err != nil {
		return fmt.Errorf("failed to list stale pending jobs: %w", err)
	}
	var errs []error
	for _, j := range jobs {
		if err := enqueue(ctx, s.queue, secondary.Task{Kind: secondary.TaskDecompose, JobID: j.ID}); err != nil {
			errs = append(errs, err)
			continue
		}
		result.DecomposeRequeued++
		metrics.ReconcileActions.WithLabelValues("decompose_requeued").Inc()
	}
	return errors.Join(errs...)
}

// finalizeFinishedResearch finalizes researching dossiers whose steps have
// all completed, then runs the convergence check for their jobs. Returns
// the IDs of the dossiers it finalized.
func (s *ReconcileServiceImpl) finalizeFinishedResearch(ctx context.Context, result *primary.SweepResult) (map[string]bool, error) {
	finalized := make(map[string]bool)
	dossiers, err := s.dossierRepo.ListByStatus(ctx, string(coredossier.StatusResearching))
	if err != nil {
		return finalized, fmt.Errorf("failed to list researching dossiers: %w", err)
	}

	var errs []error
	for _, d := range dossiers {
		done, err := s.researchDone(ctx, d.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !done {
			continue
		}

		ok, err := finalizeDossier(ctx, d, s.planRepo, s.evidenceRepo, s.dossierRepo)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		finalized[d.ID] = true
		result.DossiersFinalized++
		metrics.ReconcileActions.WithLabelValues("dossier_finalized").Inc()

		converged, err := s.jobRepo.MarkAwaitingVerification(ctx, d.JobID)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to check convergence: %w", err))
			continue
		}
		if converged {
			result.JobsConverged++
			metrics.ReconcileActions.WithLabelValues("job_converged").Inc()
		}
	}
	return finalized, errors.Join(errs...)
}

func (s *ReconcileServiceImpl) researchDone(ctx context.Context, dossierID string) (bool, error) {
	plan, err := s.planRepo.GetByDossier(ctx, dossierID)
	if err != nil {
		return false, lookupError("plan for dossier", dossierID, err)
	}
	steps, err := s.planRepo.ListSteps(ctx, plan.ID)
	if err != nil {
		return false, fmt.Errorf("failed to list steps: %w", err)
	}
	statuses := make([]string, len(steps))
	for i, st := range steps {
		statuses[i] = st.Status
	}
	return research.AllCompleted(statuses), nil
}

func (s *ReconcileServiceImpl) requeueResearch(ctx context.Context, skip map[string]bool, result *primary.SweepResult) error {
	dossiers, err := s.dossierRepo.ListStale(ctx, []string{
		string(coredossier.StatusResearching),
		string(coredossier.StatusRevisionRequested),
	}, s.staleAfter)
	if err != nil {
		return fmt.Errorf("failed to list stale dossiers: %w", err)
	}

	var errs []error
	for _, d := range dossiers {
		if skip[d.ID] {
			continue
		}
		if err := enqueue(ctx, s.queue, secondary.Task{Kind: secondary.TaskRunResearch, JobID: d.JobID, DossierID: d.ID}); err != nil {
			errs = append(errs, err)
			continue
		}
		result.ResearchRequeued++
		metrics.ReconcileActions.WithLabelValues("research_requeued").Inc()
	}
	return errors.Join(errs...)
}

func (s *ReconcileServiceImpl) requeueSynthesis(ctx context.Context, result *primary.SweepResult) error {
	jobs, err := s.jobRepo.ListCompleteWithoutReport(ctx, s.staleAfter)
	if err != nil {
		return fmt.Errorf("failed to list jobs without report: %w", err)
	}
	var errs []error
	for _, j := range jobs {
		if err := enqueue(ctx, s.queue, secondary.Task{Kind: secondary.TaskSynthesize, JobID: j.ID}); err != nil {
			errs = append(errs, err)
			continue
		}
		result.SynthesisRequeued++
		metrics.ReconcileActions.WithLabelValues("synthesis_requeued").Inc()
	}
	return errors.Join(errs...)
}

// advanceJobs runs the convergence and completion checks for every job
// still in research or verification.
func (s *ReconcileServiceImpl) advanceJobs(ctx context.Context, result *primary.SweepResult) error {
	var errs []error
	for _, status := range []string{corejob.StatusResearching, corejob.StatusAwaitingVerification} {
		jobs, err := s.jobRepo.List(ctx, secondary.JobFilters{Status: status})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to list %s jobs: %w", status, err))
			continue
		}
		for _, j := range jobs {
			if status == corejob.StatusResearching {
				converged, err := s.jobRepo.MarkAwaitingVerification(ctx, j.ID)
				if err != nil {
					errs = append(errs, fmt.Errorf("failed to check convergence: %w", err))
					continue
				}
				if converged {
					result.JobsConverged++
					metrics.ReconcileActions.WithLabelValues("job_converged").Inc()
				}
			}

			completed, err := s.jobRepo.MarkComplete(ctx, j.ID)
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to check completion: %w", err))
				continue
			}
			if !completed {
				continue
			}
			result.JobsCompleted++
			metrics.ReconcileActions.WithLabelValues("job_completed").Inc()
			if err := enqueue(ctx, s.queue, secondary.Task{Kind: secondary.TaskSynthesize, JobID: j.ID}); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

var _ primary.ReconcileService = (*ReconcileServiceImpl)(nil)
