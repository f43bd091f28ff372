// Package wire provides dependency injection for dialectica.
// It creates singleton services with lazy initialization from the
// loaded configuration.
package wire

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"sync"
	"time"

	cliadapter "github.com/example/dialectica/internal/adapters/cli"
	"github.com/example/dialectica/internal/adapters/llm"
	"github.com/example/dialectica/internal/adapters/mcp"
	"github.com/example/dialectica/internal/adapters/queue"
	"github.com/example/dialectica/internal/adapters/sqlite"
	"github.com/example/dialectica/internal/app"
	"github.com/example/dialectica/internal/config"
	"github.com/example/dialectica/internal/core/research"
	"github.com/example/dialectica/internal/db"
	"github.com/example/dialectica/internal/ports/primary"
	"github.com/example/dialectica/internal/ports/secondary"
	"github.com/example/dialectica/internal/version"
)

var (
	configPath string
	cfg        *config.Config
	cfgErr     error
	cfgOnce    sync.Once

	database    *sql.DB
	llmProvider secondary.LLMProvider
	toolClient  *mcp.Client
	taskQueue   secondary.TaskQueue
	closers     []io.Closer

	orchestrationService primary.OrchestrationService
	researchService      primary.ResearchService
	reviewService        primary.ReviewService
	synthesisService     primary.SynthesisService
	reconcileService     primary.ReconcileService
	ledgerService        primary.LedgerService
	dispatcher           *app.Dispatcher

	once sync.Once
)

// SetConfigPath selects the config file. Must be called before the first
// accessor; later calls have no effect.
func SetConfigPath(path string) {
	configPath = path
}

// Config returns the loaded configuration.
func Config() (*config.Config, error) {
	cfgOnce.Do(func() {
		var path string
		path, cfgErr = config.ResolvePath(configPath)
		if cfgErr != nil {
			return
		}
		cfg, cfgErr = config.Load(path)
	})
	return cfg, cfgErr
}

// ConfigPath returns the resolved config file location.
func ConfigPath() (string, error) {
	return config.ResolvePath(configPath)
}

// OrchestrationService returns the singleton OrchestrationService instance.
func OrchestrationService() primary.OrchestrationService {
	once.Do(initServices)
	return orchestrationService
}

// ResearchService returns the singleton ResearchService instance.
func ResearchService() primary.ResearchService {
	once.Do(initServices)
	return researchService
}

// ReviewService returns the singleton ReviewService instance.
func ReviewService() primary.ReviewService {
	once.Do(initServices)
	return reviewService
}

// SynthesisService returns the singleton SynthesisService instance.
func SynthesisService() primary.SynthesisService {
	once.Do(initServices)
	return synthesisService
}

// ReconcileService returns the singleton ReconcileService instance.
func ReconcileService() primary.ReconcileService {
	once.Do(initServices)
	return reconcileService
}

// LedgerService returns the singleton LedgerService instance.
func LedgerService() primary.LedgerService {
	once.Do(initServices)
	return ledgerService
}

// Dispatcher returns the singleton task dispatcher.
func Dispatcher() *app.Dispatcher {
	once.Do(initServices)
	return dispatcher
}

// TaskQueue returns the configured task queue.
func TaskQueue() secondary.TaskQueue {
	once.Do(initServices)
	return taskQueue
}

// ToolProvider returns the configured research tools client.
func ToolProvider() secondary.ToolProvider {
	once.Do(initServices)
	return toolClient
}

// ToolServer returns a research tools server backed by the configured LLM
// provider. It does not open the database.
func ToolServer() (*mcp.Server, error) {
	c, err := Config()
	if err != nil {
		return nil, err
	}
	provider, err := llm.New(c.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm provider: %w", err)
	}
	return mcp.NewServer(version.Short(), provider), nil
}

// JobAdapter returns a new JobAdapter writing to stdout.
// Each call creates a new adapter (adapters are stateless translators).
func JobAdapter() *cliadapter.JobAdapter {
	return cliadapter.NewJobAdapter(OrchestrationService(), os.Stdout)
}

// ReviewAdapter returns a new ReviewAdapter writing to stdout.
func ReviewAdapter() *cliadapter.ReviewAdapter {
	return cliadapter.NewReviewAdapter(ReviewService(), os.Stdout)
}

// ReportAdapter returns a new ReportAdapter writing to stdout.
func ReportAdapter() *cliadapter.ReportAdapter {
	return cliadapter.NewReportAdapter(SynthesisService(), os.Stdout)
}

// LedgerAdapter returns a new LedgerAdapter writing to stdout.
func LedgerAdapter() *cliadapter.LedgerAdapter {
	return cliadapter.NewLedgerAdapter(LedgerService(), os.Stdout)
}

// Close releases the tool session, the queue connection and the database.
func Close() error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		errs = append(errs, closers[i].Close())
	}
	closers = nil
	return errors.Join(errs...)
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	c, err := Config()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := slog.Default()

	database, err = db.GetDB(c.Database.Path)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	closers = append(closers, closerFunc(db.Close))

	llmProvider, err = llm.New(c.LLM)
	if err != nil {
		log.Fatalf("failed to create llm provider: %v", err)
	}

	toolClient, err = newToolClient(c.Tools, llmProvider)
	if err != nil {
		log.Fatalf("failed to create tools client: %v", err)
	}
	closers = append(closers, toolClient)

	taskQueue, err = newQueue(c.Queue)
	if err != nil {
		log.Fatalf("failed to create task queue: %v", err)
	}
	if cl, ok := taskQueue.(io.Closer); ok {
		closers = append(closers, cl)
	}

	// Create repository adapters (secondary ports) with the injected DB
	jobRepo := sqlite.NewJobRepository(database)
	dossierRepo := sqlite.NewDossierRepository(database)
	planRepo := sqlite.NewPlanRepository(database)
	evidenceRepo := sqlite.NewEvidenceRepository(database)
	feedbackRepo := sqlite.NewFeedbackRepository(database)
	synthesisRepo := sqlite.NewSynthesisRepository(database)
	ledgerRepo := sqlite.NewLedgerRepository(database)

	trackedLLM := app.NewTrackedLLM(llmProvider, ledgerRepo,
		secondary.GenerationParams{Temperature: c.LLM.Temperature}, c.LLM.Timeout.Std())
	trackedTools := app.NewTrackedTools(toolClient, ledgerRepo)

	// Create services (primary ports implementation)
	orchestration := app.NewOrchestrationService(jobRepo, dossierRepo, planRepo, evidenceRepo, feedbackRepo, synthesisRepo,
		trackedLLM, trackedTools, taskQueue, logger.With("component", "orchestration"))
	researchSvc := app.NewResearchService(dossierRepo, planRepo, evidenceRepo, trackedLLM, trackedTools,
		c.Reconcile.StaleAfter.Std(), logger.With("component", "research"))
	synthesis := app.NewSynthesisService(jobRepo, dossierRepo, planRepo, evidenceRepo, synthesisRepo, trackedLLM,
		logger.With("component", "synthesis"))

	orchestrationService = orchestration
	researchService = researchSvc
	synthesisService = synthesis
	reviewService = app.NewReviewService(jobRepo, dossierRepo, planRepo, evidenceRepo, feedbackRepo, taskQueue,
		logger.With("component", "review"))
	reconcileService = app.NewReconcileService(jobRepo, dossierRepo, planRepo, evidenceRepo, ledgerRepo, taskQueue,
		c.Reconcile.StaleAfter.Std(), logger.With("component", "reconcile"))
	ledgerService = app.NewLedgerService(ledgerRepo)
	dispatcher = app.NewDispatcher(taskQueue, orchestration, researchSvc, synthesis,
		c.Worker.Concurrency, c.Worker.UnitTimeout.Std(), logger.With("component", "dispatcher"))
}

func newToolClient(c config.ToolsConfig, provider secondary.LLMProvider) (*mcp.Client, error) {
	timeouts := mcp.Timeouts{
		Manifest: c.ManifestTimeout.Std(),
		PerClass: map[research.ToolClass]time.Duration{},
	}
	for _, class := range []research.ToolClass{research.ClassFact, research.ClassSection, research.ClassSearch, research.ClassAnalysis} {
		timeouts.PerClass[class] = c.TimeoutFor(string(class))
	}

	switch c.Transport {
	case "inprocess":
		return mcp.NewInProcessClient(mcp.NewServer(version.Short(), provider), version.Short(), timeouts), nil
	case "command":
		return mcp.NewCommandClient(c.Command, version.Short(), timeouts), nil
	case "http":
		return mcp.NewHTTPClient(c.Endpoint, version.Short(), timeouts), nil
	default:
		return nil, fmt.Errorf("unknown tools transport %q", c.Transport)
	}
}

func newQueue(c config.QueueConfig) (secondary.TaskQueue, error) {
	switch c.Backend {
	case "memory":
		return queue.NewMemoryQueue(), nil
	case "redis":
		return queue.NewRedisQueue(context.Background(), c.RedisURL, c.Key)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", c.Backend)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
