// Package runner orchestrates one capture run end to end: resolve the model,
// assemble the prompt, build and transmit the request, derive metadata, and
// persist the correlated records. Exactly one attempt per run; a failed call
// is a recorded fact, never retried.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/willpenman/llm-philosophy/config"
	"github.com/willpenman/llm-philosophy/internal/catalog"
	"github.com/willpenman/llm-philosophy/internal/core"
	"github.com/willpenman/llm-philosophy/internal/prompt"
	"github.com/willpenman/llm-philosophy/internal/providers"
	"github.com/willpenman/llm-philosophy/internal/runstore"
	"github.com/willpenman/llm-philosophy/internal/usage"
)

// Options selects what one run does. DebugCapture implies streaming and
// suppresses the run logs and the text artifact; raw events go to a side
// JSONL instead.
type Options struct {
	ModelID         string
	PuzzleName      string
	SpecialSettings string
	Overrides       map[string]any
	Stream          bool
	DryRun          bool
	DebugCapture    bool
	PromptsDir      string
	// OnTextDelta observes streamed output fragments for progress display.
	OnTextDelta func(delta string)
}

// Summary is what the CLI reports after a run.
type Summary struct {
	RunID        string
	Provider     string
	Model        string
	ModelAlias   string
	RequestPath  string
	ResponsePath string
	TextPath     string
	DebugPath    string
	Usage        *core.Usage
	Cost         *core.CostBreakdown
	CostLine     string
	CostCaveat   string
	Partial      bool
	StreamNote   string
	OutputText   string
}

// Runner holds the long-lived collaborators shared across runs.
type Runner struct {
	catalog *catalog.Store
	store   *runstore.Store
	logger  *slog.Logger
}

// New creates a runner over a catalog and an append store.
func New(cat *catalog.Store, store *runstore.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{catalog: cat, store: store, logger: logger}
}

// Run executes one capture run.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	entry, err := r.catalog.Resolve(opts.ModelID)
	if err != nil {
		return nil, err
	}
	model, provider := entry.Model, entry.Provider

	systemPrompt, err := prompt.LoadSystemPrompt(opts.PromptsDir)
	if err != nil {
		return nil, err
	}
	puzzle, err := prompt.LoadPuzzle(opts.PromptsDir, opts.PuzzleName)
	if err != nil {
		return nil, err
	}

	maxOutputTokens, err := providers.MaxOutputTokens(provider.Name, model, opts.Overrides)
	if err != nil {
		return nil, err
	}
	systemText := prompt.WithLengthGuidance(systemPrompt.Text, maxOutputTokens)

	input := &core.CanonicalInput{
		SystemText: systemText,
		UserText:   puzzle.Text,
		Model:      model.ID,
		Overrides:  opts.Overrides,
	}

	apiKey := ""
	if !opts.DryRun {
		apiKey, err = config.APIKey(provider)
		if err != nil {
			return nil, err
		}
	}

	// Base URL overrides route through a copy so catalog entries stay
	// immutable.
	transport := *provider
	transport.BaseURL = config.BaseURL(provider)

	adapter, err := providers.Create(provider.Name, providers.Options{
		Descriptor: &transport,
		APIKey:     apiKey,
	})
	if err != nil {
		return nil, err
	}

	mode := core.ModeBlocking
	if opts.Stream || opts.DebugCapture {
		mode = core.ModeStreaming
	}
	req, err := adapter.BuildRequest(input, model, mode)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	createdAt := core.UTCNow()
	settings := opts.SpecialSettings
	if settings == "" {
		settings = "default"
	}
	base := core.RunRecord{
		RunID:           runID,
		CreatedAt:       createdAt,
		Provider:        entry.StorageProvider(),
		Model:           model.ID,
		PuzzleName:      puzzle.Name,
		PuzzleVersion:   puzzle.Version,
		SpecialSettings: settings,
		Request:         req.Payload,
	}

	summary := &Summary{
		RunID:      runID,
		Provider:   base.Provider,
		Model:      model.ID,
		ModelAlias: model.DisplayName(),
	}

	r.logger.Info("run starting",
		"run_id", runID,
		"provider", provider.Name,
		"model", model.ID,
		"puzzle", puzzle.Name,
		"mode", string(mode),
		"dry_run", opts.DryRun,
		"debug_capture", opts.DebugCapture,
	)

	if !opts.DebugCapture {
		requestRecord := base
		summary.RequestPath, err = r.store.AppendRequest(&requestRecord)
		if err != nil {
			return nil, err
		}
	}
	if opts.DryRun {
		r.logger.Info("dry run complete", "run_id", runID, "request_log", summary.RequestPath)
		return summary, nil
	}

	var debugLog *runstore.DebugLog
	streamOpts := core.StreamOptions{OnTextDelta: opts.OnTextDelta}
	if opts.DebugCapture {
		debugLog, err = r.store.OpenDebugLog(base.Provider, model.ID, runID)
		if err != nil {
			return nil, err
		}
		defer debugLog.Close()
		summary.DebugPath = debugLog.Path()
		streamOpts.OnEvent = func(ev core.StreamEvent) {
			if err := debugLog.Append(ev); err != nil {
				r.logger.Warn("debug event dropped", "run_id", runID, "error", err)
			}
		}
	}

	timing := core.Timing{RequestStartedAt: core.UTCNow()}
	var resp *core.CanonicalResponse
	if mode == core.ModeStreaming {
		resp, err = adapter.Stream(ctx, req, streamOpts)
	} else {
		resp, err = adapter.Send(ctx, req)
	}
	timing.RequestCompletedAt = core.UTCNow()
	if err != nil {
		return nil, err
	}

	derived := r.deriveMetadata(provider.Name, model, resp, timing)
	summary.Usage = derived.Usage
	summary.Cost = derived.Cost
	summary.CostCaveat = derived.CostCaveat
	summary.Partial = derived.Partial
	summary.StreamNote = derived.StreamNote
	summary.OutputText = resp.OutputText
	if derived.Cost != nil {
		summary.CostLine = usage.CostLine(derived.Cost)
	}

	if opts.DebugCapture {
		r.logger.Info("debug capture complete",
			"run_id", runID, "events_log", summary.DebugPath, "partial", resp.Partial)
		return summary, nil
	}

	responseRecord := base
	responseRecord.Response = resp.Payload
	responseRecord.Derived = derived
	summary.ResponsePath, err = r.store.AppendResponse(&responseRecord)
	if err != nil {
		return nil, err
	}

	summary.TextPath, err = r.store.WriteText(runstore.TextArtifact{
		Provider:        base.Provider,
		Model:           model.ID,
		ModelDisplay:    model.DisplayName(),
		ProviderDisplay: providerDisplay(model, provider),
		PuzzleTitle:     puzzle.DisplayTitle(),
		PuzzleName:      puzzle.Name,
		PuzzleVersion:   puzzle.Version,
		SpecialSettings: opts.SpecialSettings,
		CreatedAt:       createdAt,
		InputText:       prompt.FormatInputText(systemText, puzzle.Text),
		OutputText:      resp.OutputText,
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("run complete",
		"run_id", runID,
		"response_log", summary.ResponsePath,
		"text", summary.TextPath,
		"partial", resp.Partial,
	)
	return summary, nil
}

// deriveMetadata computes everything reproducible from the payload plus the
// catalog. Pricing gaps become caveats, never failures.
func (r *Runner) deriveMetadata(providerName string, model *core.ModelDescriptor, resp *core.CanonicalResponse, timing core.Timing) *core.Derived {
	derived := &core.Derived{
		Timing:     timing,
		ModelAlias: model.DisplayName(),
		Partial:    resp.Partial,
		StreamNote: resp.StreamNote,
	}

	tokens := usage.ExtractTokens(providerName, resp.Payload)
	if tokens != (core.Usage{}) {
		derived.Usage = &tokens
	}

	cost, caveat, err := usage.Compute(providerName, model.ID, tokens, model.PriceTiers)
	if err != nil {
		if errors.Is(err, core.ErrNoMatchingPriceTier) {
			derived.CostCaveat = err.Error()
			return derived
		}
		r.logger.Warn("cost computation failed", "model", model.ID, "error", err)
		derived.CostCaveat = err.Error()
		return derived
	}
	derived.Cost = cost
	derived.CostCaveat = caveat

	if cost != nil {
		if tier, err := usage.MatchTier(model.ID, model.PriceTiers, deref(tokens.InputTokens)); err == nil {
			if raw, err := json.Marshal(tier); err == nil {
				derived.PriceSchedule = raw
			}
		}
	}
	return derived
}

func providerDisplay(m *core.ModelDescriptor, p *core.ProviderDescriptor) string {
	if m.ProviderDisplay != "" {
		return m.ProviderDisplay
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

func deref(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}
