package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coreledger "github.com/example/dialectica/internal/core/ledger"
	"github.com/example/dialectica/internal/core/research"
	"github.com/example/dialectica/internal/ctxutil"
	"github.com/example/dialectica/internal/metrics"
	"github.com/example/dialectica/internal/ports/primary"
	"github.com/example/dialectica/internal/ports/secondary"
)

var tracer = otel.Tracer("dialectica.app")

// TrackedLLM records every generation in the request ledger and bounds it
// with the configured timeout. The ledger scope comes from the context.
type TrackedLLM struct {
	llm     secondary.LLMProvider
	ledger  secondary.LedgerRepository
	params  secondary.GenerationParams
	timeout time.Duration
}

// NewTrackedLLM wraps llm so its calls land in ledger.
func NewTrackedLLM(llm secondary.LLMProvider, ledger secondary.LedgerRepository, params secondary.GenerationParams, timeout time.Duration) *TrackedLLM {
	return &TrackedLLM{llm: llm, ledger: ledger, params: params, timeout: timeout}
}

// Generate performs one ledgered call of callType. Provider failures wrap
// secondary.ErrProvider; ledger failures do not.
func (t *TrackedLLM) Generate(ctx context.Context, callType, prompt string) (string, error) {
	entry, err := openEntry(ctx, t.ledger, &secondary.LedgerRecord{
		Provider: coreledger.ProviderLLM,
		CallType: callType,
		Request:  prompt,
	})
	if err != nil {
		return "", err
	}

	ctx, span := tracer.Start(ctx, "llm."+callType, trace.WithAttributes(
		attribute.String("provider", t.llm.Name()),
		attribute.String("ledger_id", entry.ID),
	))
	defer span.End()

	callCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	text, callErr := t.llm.Generate(callCtx, prompt, t.params)
	metrics.ProviderLatency.WithLabelValues(coreledger.ProviderLLM, callType).Observe(time.Since(start).Seconds())

	return text, closeEntry(ctx, t.ledger, span, entry, coreledger.ProviderLLM, callType, text, callErr)
}

// TrackedTools records every tool provider call in the request ledger.
// Per-class timeouts are applied by the provider.
type TrackedTools struct {
	tools  secondary.ToolProvider
	ledger secondary.LedgerRepository
}

// NewTrackedTools wraps tools so its calls land in ledger.
func NewTrackedTools(tools secondary.ToolProvider, ledger secondary.LedgerRepository) *TrackedTools {
	return &TrackedTools{tools: tools, ledger: ledger}
}

// Manifest lists the provider's tools.
func (t *TrackedTools) Manifest(ctx context.Context) ([]research.Tool, error) {
	entry, err := openEntry(ctx, t.ledger, &secondary.LedgerRecord{
		Provider: coreledger.ProviderTool,
		CallType: coreledger.CallManifest,
		Request:  "list_tools",
	})
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "tool.manifest", trace.WithAttributes(attribute.String("ledger_id", entry.ID)))
	defer span.End()

	start := time.Now()
	descriptors, callErr := t.tools.Manifest(ctx)
	metrics.ProviderLatency.WithLabelValues(coreledger.ProviderTool, coreledger.CallManifest).Observe(time.Since(start).Seconds())

	tools := make([]research.Tool, len(descriptors))
	names := make([]string, len(descriptors))
	for i, d := range descriptors {
		tools[i] = research.Tool{Name: d.Name, Description: d.Description}
		names[i] = d.Name
	}
	if callErr == nil && len(tools) == 0 {
		callErr = fmt.Errorf("%w: tool provider returned an empty manifest", secondary.ErrProvider)
	}

	if err := closeEntry(ctx, t.ledger, span, entry, coreledger.ProviderTool, coreledger.CallManifest, fmt.Sprint(names), callErr); err != nil {
		return nil, err
	}
	return tools, nil
}

// Execute runs tool with query.
func (t *TrackedTools) Execute(ctx context.Context, tool, query string) (*secondary.ToolOutput, error) {
	entry, err := openEntry(ctx, t.ledger, &secondary.LedgerRecord{
		Provider: coreledger.ProviderTool,
		CallType: coreledger.CallExecute,
		ToolName: tool,
		Request:  query,
	})
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("ledger_id", entry.ID),
	))
	defer span.End()

	start := time.Now()
	out, callErr := t.tools.Execute(ctx, tool, query)
	metrics.ProviderLatency.WithLabelValues(coreledger.ProviderTool, coreledger.CallExecute).Observe(time.Since(start).Seconds())

	response := ""
	if out != nil {
		response = string(out.Payload)
	}
	if err := closeEntry(ctx, t.ledger, span, entry, coreledger.ProviderTool, coreledger.CallExecute, response, callErr); err != nil {
		return nil, err
	}
	return out, nil
}

// openEntry creates a ledger entry scoped from ctx and marks it in progress.
func openEntry(ctx context.Context, ledger secondary.LedgerRepository, entry *secondary.LedgerRecord) (*secondary.LedgerRecord, error) {
	scope := ctxutil.ScopeFromContext(ctx)
	entry.JobID = scope.JobID
	entry.DossierID = scope.DossierID
	entry.StepID = scope.StepID

	if err := ledger.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record %s call: %w", entry.CallType, err)
	}
	if err := ledger.MarkInProgress(ctx, entry.ID); err != nil {
		if failErr := ledger.Fail(context.WithoutCancel(ctx), entry.ID, err.Error()); failErr != nil {
			err = errors.Join(err, failErr)
		}
		return nil, fmt.Errorf("failed to start ledger entry %s: %w", entry.ID, err)
	}
	return entry, nil
}

// closeEntry finalizes entry with the call outcome. The write ignores
// cancellation of ctx so an expired call is still recorded. The returned
// error wraps secondary.ErrProvider when the call itself failed.
func closeEntry(ctx context.Context, ledger secondary.LedgerRepository, span trace.Span, entry *secondary.LedgerRecord, provider, callType, response string, callErr error) error {
	finalCtx := context.WithoutCancel(ctx)

	if callErr != nil {
		metrics.ProviderCalls.WithLabelValues(provider, callType, "failed").Inc()
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Error())
		if err := ledger.Fail(finalCtx, entry.ID, callErr.Error()); err != nil {
			return fmt.Errorf("failed to close ledger entry %s: %w", entry.ID, err)
		}
		if !errors.Is(callErr, secondary.ErrProvider) {
			callErr = fmt.Errorf("%w: %w", secondary.ErrProvider, callErr)
		}
		return fmt.Errorf("%s call failed: %w", callType, callErr)
	}

	metrics.ProviderCalls.WithLabelValues(provider, callType, "completed").Inc()
	if err := ledger.Complete(finalCtx, entry.ID, response); err != nil {
		return fmt.Errorf("failed to close ledger entry %s: %w", entry.ID, err)
	}
	return nil
}

// LedgerServiceImpl implements the LedgerService interface.
type LedgerServiceImpl struct {
	ledgerRepo secondary.LedgerRepository
}

// NewLedgerService creates a new LedgerService with injected dependencies.
func NewLedgerService(ledgerRepo secondary.LedgerRepository) *LedgerServiceImpl {
	return &LedgerServiceImpl{ledgerRepo: ledgerRepo}
}

// ListEntries lists ledger entries, newest first.
func (s *LedgerServiceImpl) ListEntries(ctx context.Context, filters primary.LedgerFilters) ([]*primary.LedgerEntry, error) {
	if filters.Provider != "" && !coreledger.IsValidProvider(filters.Provider) {
		return nil, fmt.Errorf("%w: unknown provider %q", primary.ErrInvalidRequest, filters.Provider)
	}
	if filters.Status != "" && !coreledger.IsValidStatus(filters.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", primary.ErrInvalidRequest, filters.Status)
	}

	records, err := s.ledgerRepo.List(ctx, secondary.LedgerFilters{
		JobID:     filters.JobID,
		DossierID: filters.DossierID,
		Provider:  filters.Provider,
		Status:    filters.Status,
		Limit:     filters.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	entries := make([]*primary.LedgerEntry, len(records))
	for i, r := range records {
		entries[i] = recordToLedgerEntry(r)
	}
	return entries, nil
}

// GetEntry retrieves one entry.
func (s *LedgerServiceImpl) GetEntry(ctx context.Context, id string) (*primary.LedgerEntry, error) {
	record, err := s.ledgerRepo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError("ledger entry", id, err)
	}
	return recordToLedgerEntry(record), nil
}

func recordToLedgerEntry(r *secondary.LedgerRecord) *primary.LedgerEntry {
	return &primary.LedgerEntry{
		ID:           r.ID,
		Provider:     r.Provider,
		JobID:        r.JobID,
		DossierID:    r.DossierID,
		StepID:       r.StepID,
		CallType:     r.CallType,
		ToolName:     r.ToolName,
		Status:       r.Status,
		Request:      r.Request,
		Response:     r.Response,
		ErrorMessage: r.ErrorMessage,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
		CreatedAt:    r.CreatedAt,
	}
}

// lookupError maps a repository miss to primary.ErrNotFound.
func lookupError(entity, id string, err error) error {
	if errors.Is(err, secondary.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", primary.ErrNotFound, entity, id)
	}
	return fmt.Errorf("failed to get %s %s: %w", entity, id, err)
}

var _ primary.LedgerService = (*LedgerServiceImpl)(nil)
