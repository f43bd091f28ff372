package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/dialectica/internal/adapters/mcp"
	"github.com/example/dialectica/internal/adapters/queue"
	"github.com/example/dialectica/internal/adapters/sqlite"
	coreledger "github.com/example/dialectica/internal/core/ledger"
	"github.com/example/dialectica/internal/core/research"
	"github.com/example/dialectica/internal/db"
	"github.com/example/dialectica/internal/ports/primary"
	"github.com/example/dialectica/internal/ports/secondary"
)

// ============================================================================
// Scripted LLM
// ============================================================================

// promptMarkers identify which pipeline decision a prompt belongs to.
var promptMarkers = []struct {
	marker   string
	callType string
}{
	{"research director", coreledger.CallOrchestratorMission},
	{"Answer with a single word", coreledger.CallClassification},
	{"state the specific data gap", coreledger.CallDataGap},
	{"Formulate a proxy hypothesis", coreledger.CallProxyHypothesis},
	{"Select the single best tool", coreledger.CallToolSelection},
	{"Formulate the input for tool", coreledger.CallQueryFormulation},
	{"final dialectical synthesis", coreledger.CallSynthesis},
}

func callTypeOf(prompt string) string {
	for _, m := range promptMarkers {
		if strings.Contains(prompt, m.marker) {
			return m.callType
		}
	}
	return "unknown"
}

// scriptedLLM answers each kind of prompt with a scripted reply.
type scriptedLLM struct {
	mu      sync.Mutex
	replies map[string]func(prompt string) string
	failing map[string]bool
	failAll bool
	calls   map[string]int
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{
		replies: map[string]func(string) string{
			coreledger.CallOrchestratorMission: func(string) string { return planReply },
			coreledger.CallClassification: func(p string) string {
				if strings.Contains(p, "moat") {
					return "NO"
				}
				return "YES"
			},
			coreledger.CallDataGap: func(string) string {
				return "No public source reports brand strength directly."
			},
			coreledger.CallProxyHypothesis: func(string) string { return proxyReply },
			coreledger.CallToolSelection: func(p string) string {
				desc := between(p, "research step:\n\n", "\n\nAvailable tools:")
				return research.SelectToolHeuristic(desc, research.ToolNames(research.DefaultManifest()))
			},
			coreledger.CallQueryFormulation: func(p string) string {
				tool := between(p, "input for tool ", " to carry out")
				desc := between(p, "research step:\n\n", "\n\nThe tool expects")
				return research.DefaultQuery(research.ClassOf(tool), desc)
			},
			coreledger.CallSynthesis: func(string) string {
				return "# Synthesis\n\nBoth cases weighed; the evidence favours a cautious yes."
			},
		},
		failing: make(map[string]bool),
		calls:   make(map[string]int),
	}
}

func (l *scriptedLLM) Name() string { return "scripted" }

func (l *scriptedLLM) Generate(_ context.Context, prompt string, _ secondary.GenerationParams) (string, error) {
	callType := callTypeOf(prompt)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[callType]++
	if l.failAll || l.failing[callType] {
		return "", fmt.Errorf("%w: scripted outage", secondary.ErrProvider)
	}
	reply, ok := l.replies[callType]
	if !ok {
		return "", fmt.Errorf("%w: no reply scripted for %s", secondary.ErrProvider, callType)
	}
	return reply(prompt), nil
}

func (l *scriptedLLM) fail(callType string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failing[callType] = true
}

func (l *scriptedLLM) reply(callType, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.replies[callType] = func(string) string { return text }
}

func (l *scriptedLLM) callCount(callType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[callType]
}

func between(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	rest := s[i+len(start):]
	if j := strings.Index(rest, end); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}

const planReply = `Here is the plan:
{
  "thesis": {
    "mission": "Build the case FOR investing in Apple",
    "steps": [
      {"description": "Retrieve Apple revenue for 2023", "tool": "xbrl_financial_fact_retriever",
       "tool_selection_justification": "Revenue is a reported XBRL fact.", "tool_query_rationale": "Query AAPL Revenue 2023."},
      {"description": "Review the Risk Factors section of the Apple 2023 10-K", "tool": "document_section_retriever",
       "tool_selection_justification": "Risk factors live in the 10-K.", "tool_query_rationale": "Query the Risk Factors section."},
      {"description": "Assess Apple brand moat strength", "tool": "mcp_server_tool",
       "tool_selection_justification": "Brand data is qualitative.", "tool_query_rationale": "Search brand keywords."}
    ]
  },
  "antithesis": {
    "mission": "Build the case AGAINST investing in Apple",
    "steps": [
      {"description": "Search for market risks and volatility", "tool": "risk-assessment-api",
       "tool_selection_justification": "Risk corpus covers volatility.", "tool_query_rationale": "Search risk keywords."},
      {"description": "Retrieve Apple net income for 2022", "tool": "xbrl_financial_fact_retriever",
       "tool_selection_justification": "Net income is a reported XBRL fact.", "tool_query_rationale": "Query AAPL NetIncome 2022."},
      {"description": "Review the Legal Proceedings section of the Apple 2023 10-K", "tool": "document_section_retriever",
       "tool_selection_justification": "Litigation is disclosed in the 10-K.", "tool_query_rationale": "Query the Legal Proceedings section."}
    ]
  }
}`

const proxyReply = `{"unobservable_claim": "Apple has a durable brand moat",
"deductive_chain": "A durable moat lets Apple hold pricing power, which shows up as a stable gross margin.",
"observable_proxy": "gross margin trend"}`

// ============================================================================
// Tool providers
// ============================================================================

// downTools is a tool provider that cannot be reached.
type downTools struct{}

func (downTools) Manifest(context.Context) ([]secondary.ToolDescriptor, error) {
	return nil, fmt.Errorf("%w: dial tcp 127.0.0.1:8931: connection refused", secondary.ErrProvider)
}

func (downTools) Execute(context.Context, string, string) (*secondary.ToolOutput, error) {
	return nil, fmt.Errorf("%w: dial tcp 127.0.0.1:8931: connection refused", secondary.ErrProvider)
}

// ============================================================================
// Harness
// ============================================================================

// harness wires every service over a real SQLite database, a memory queue,
// the scripted LLM and a tool provider.
type harness struct {
	db    *sql.DB
	llm   *scriptedLLM
	queue *queue.MemoryQueue

	jobRepo       *sqlite.JobRepository
	dossierRepo   *sqlite.DossierRepository
	planRepo      *sqlite.PlanRepository
	evidenceRepo  *sqlite.EvidenceRepository
	feedbackRepo  *sqlite.FeedbackRepository
	synthesisRepo *sqlite.SynthesisRepository
	ledgerRepo    *sqlite.LedgerRepository

	orchestration *OrchestrationServiceImpl
	research      *ResearchServiceImpl
	review        *ReviewServiceImpl
	synthesis     *SynthesisServiceImpl
	reconcile     *ReconcileServiceImpl
	ledger        *LedgerServiceImpl
	dispatcher    *Dispatcher
}

// newHarness uses the built-in research tools server unless tools is given.
func newHarness(t *testing.T, tools ...secondary.ToolProvider) *harness {
	t.Helper()

	conn, err := db.Open(filepath.Join(t.TempDir(), "dialectica.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	h := &harness{
		db:            conn,
		llm:           newScriptedLLM(),
		queue:         queue.NewMemoryQueue(),
		jobRepo:       sqlite.NewJobRepository(conn),
		dossierRepo:   sqlite.NewDossierRepository(conn),
		planRepo:      sqlite.NewPlanRepository(conn),
		evidenceRepo:  sqlite.NewEvidenceRepository(conn),
		feedbackRepo:  sqlite.NewFeedbackRepository(conn),
		synthesisRepo: sqlite.NewSynthesisRepository(conn),
		ledgerRepo:    sqlite.NewLedgerRepository(conn),
	}

	var provider secondary.ToolProvider
	if len(tools) > 0 {
		provider = tools[0]
	} else {
		client := mcp.NewInProcessClient(mcp.NewServer("test", h.llm), "test", mcp.Timeouts{})
		t.Cleanup(func() { client.Close() })
		provider = client
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	llm := NewTrackedLLM(h.llm, h.ledgerRepo, secondary.GenerationParams{Temperature: 0.3}, 5*time.Second)
	tracked := NewTrackedTools(provider, h.ledgerRepo)

	h.orchestration = NewOrchestrationService(h.jobRepo, h.dossierRepo, h.planRepo, h.evidenceRepo, h.feedbackRepo, h.synthesisRepo, llm, tracked, h.queue, log)
	h.research = NewResearchService(h.dossierRepo, h.planRepo, h.evidenceRepo, llm, tracked, 15*time.Minute, log)
	h.review = NewReviewService(h.jobRepo, h.dossierRepo, h.planRepo, h.evidenceRepo, h.feedbackRepo, h.queue, log)
	h.synthesis = NewSynthesisService(h.jobRepo, h.dossierRepo, h.planRepo, h.evidenceRepo, h.synthesisRepo, llm, log)
	h.reconcile = NewReconcileService(h.jobRepo, h.dossierRepo, h.planRepo, h.evidenceRepo, h.ledgerRepo, h.queue, 15*time.Minute, log)
	h.ledger = NewLedgerService(h.ledgerRepo)
	h.dispatcher = NewDispatcher(h.queue, h.orchestration, h.research, h.synthesis, 2, time.Minute, log)
	return h
}

// drain runs queued work until the queue is idle.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := h.dispatcher.RunUntilIdle(ctx); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
}

// researchedJob creates a job and drains it to awaiting_verification.
// Returns the job, thesis and antithesis IDs.
func (h *harness) researchedJob(t *testing.T, query string) (string, string, string) {
	t.Helper()
	ctx := context.Background()

	resp, err := h.orchestration.CreateJob(ctx, primary.CreateJobRequest{Query: query})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	h.drain(t)

	thesis, antithesis := h.dossiers(t, resp.JobID)
	return resp.JobID, thesis.ID, antithesis.ID
}

// dossiers returns the job's thesis and antithesis records.
func (h *harness) dossiers(t *testing.T, jobID string) (*secondary.DossierRecord, *secondary.DossierRecord) {
	t.Helper()
	records, err := h.dossierRepo.ListByJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("ListByJob failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 dossiers, got %d", len(records))
	}
	return records[0], records[1]
}

func (h *harness) jobStatus(t *testing.T, jobID string) string {
	t.Helper()
	job, err := h.jobRepo.GetByID(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	return job.Status
}

func (h *harness) dossierStatus(t *testing.T, dossierID string) string {
	t.Helper()
	d, err := h.dossierRepo.GetByID(context.Background(), dossierID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	return d.Status
}

func (h *harness) steps(t *testing.T, dossierID string) []*secondary.StepRecord {
	t.Helper()
	ctx := context.Background()
	plan, err := h.planRepo.GetByDossier(ctx, dossierID)
	if err != nil {
		t.Fatalf("GetByDossier failed: %v", err)
	}
	steps, err := h.planRepo.ListSteps(ctx, plan.ID)
	if err != nil {
		t.Fatalf("ListSteps failed: %v", err)
	}
	return steps
}

func (h *harness) evidence(t *testing.T, dossierID string) []*secondary.EvidenceRecord {
	t.Helper()
	items, err := h.evidenceRepo.ListByDossier(context.Background(), dossierID)
	if err != nil {
		t.Fatalf("ListByDossier failed: %v", err)
	}
	return items
}

func (h *harness) reportCount(t *testing.T, jobID string) int {
	t.Helper()
	var n int
	if err := h.db.QueryRow("SELECT COUNT(*) FROM synthesis_reports WHERE job_id = ?", jobID).Scan(&n); err != nil {
		t.Fatalf("failed to count reports: %v", err)
	}
	return n
}

// age pushes every row's updated_at in table back by d.
func (h *harness) age(t *testing.T, table string, d time.Duration) {
	t.Helper()
	modifier := fmt.Sprintf("-%d seconds", int64(d.Seconds()))
	if _, err := h.db.Exec("UPDATE "+table+" SET updated_at = datetime('now', ?)", modifier); err != nil {
		t.Fatalf("failed to age %s: %v", table, err)
	}
}
