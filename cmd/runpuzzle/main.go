// Command runpuzzle sends one philosophy puzzle to one model and archives the
// exchange: request and response JSONL records plus a human-readable text
// artifact.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/willpenman/llm-philosophy/config"
	"github.com/willpenman/llm-philosophy/internal/catalog"
	"github.com/willpenman/llm-philosophy/internal/core"
	"github.com/willpenman/llm-philosophy/internal/logging"
	"github.com/willpenman/llm-philosophy/internal/runner"
	"github.com/willpenman/llm-philosophy/internal/runstore"

	// Adapter packages register themselves with the provider factory.
	_ "github.com/willpenman/llm-philosophy/internal/providers/anthropic"
	_ "github.com/willpenman/llm-philosophy/internal/providers/fireworks"
	_ "github.com/willpenman/llm-philosophy/internal/providers/gemini"
	_ "github.com/willpenman/llm-philosophy/internal/providers/grok"
	_ "github.com/willpenman/llm-philosophy/internal/providers/openai"
)

func main() {
	var (
		puzzleName = flag.String("puzzle", "", "puzzle fixture name (required)")
		modelID    = flag.String("model", "", "model id or alias (required)")
		stream     = flag.Bool("stream", true, "read the response as a stream")
		dryRun     = flag.Bool("dry-run", false, "build and log the request without sending it")
		debugSSE   = flag.Bool("debug-sse", false, "capture every raw stream event to a side log instead of the run archive")
		special    = flag.String("special", "", "special settings label for non-default experiments")

		maxOutputTokens = flag.Int("max-output-tokens", 0, "override the output token ceiling")
		temperature     = flag.Float64("temperature", 0, "sampling temperature override")
		topP            = flag.Float64("top-p", 0, "nucleus sampling override")
		topK            = flag.Int("top-k", 0, "top-k sampling override")
		seed            = flag.Int("seed", 0, "deterministic sampling seed override")
		reasoningEffort = flag.String("reasoning-effort", "", "reasoning effort level override")
		thinkingBudget  = flag.Int("thinking-budget", 0, "thinking budget tokens override")

		responsesDir = flag.String("responses-dir", "", "run archive root (default $"+config.EnvResponsesDir+" or ./responses)")
		promptsDir   = flag.String("prompts-dir", "", "prompt fixture directory (default embedded fixtures)")
		verbose      = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	logger := logging.SetupDefault(*verbose)

	if *puzzleName == "" || *modelID == "" {
		fmt.Fprintln(os.Stderr, "usage: runpuzzle -puzzle <name> -model <id or alias> [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := config.Load()
	if *responsesDir != "" {
		cfg.ResponsesDir = *responsesDir
	}
	if *promptsDir != "" {
		cfg.PromptsDir = *promptsDir
	}

	cat, err := catalog.Load()
	if err != nil {
		logger.Error("catalog load failed", "error", err)
		os.Exit(1)
	}

	overrides := map[string]any{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "max-output-tokens":
			overrides["max_output_tokens"] = *maxOutputTokens
		case "temperature":
			overrides["temperature"] = *temperature
		case "top-p":
			overrides["top_p"] = *topP
		case "top-k":
			overrides["top_k"] = *topK
		case "seed":
			overrides["seed"] = *seed
		case "reasoning-effort":
			overrides["reasoning_effort"] = *reasoningEffort
		case "thinking-budget":
			overrides["thinking_budget_tokens"] = *thinkingBudget
		}
	})

	r := runner.New(cat, runstore.New(cfg.ResponsesDir), logger)

	opts := runner.Options{
		ModelID:         *modelID,
		PuzzleName:      *puzzleName,
		SpecialSettings: *special,
		Overrides:       overrides,
		Stream:          *stream,
		DryRun:          *dryRun,
		DebugCapture:    *debugSSE,
		PromptsDir:      cfg.PromptsDir,
	}

	progressTTY := term.IsTerminal(int(os.Stderr.Fd()))
	if progressTTY && (opts.Stream || opts.DebugCapture) && !opts.DryRun {
		received := 0
		opts.OnTextDelta = func(delta string) {
			received += len(delta)
			// Rough running estimate at four characters per token.
			fmt.Fprintf(os.Stderr, "\r≈ %d tokens received", received/4)
		}
	}

	summary, err := r.Run(context.Background(), opts)
	if progressTTY && opts.OnTextDelta != nil {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		var runErr *core.RunError
		if errors.As(err, &runErr) {
			logger.Error("run failed",
				"stage", string(runErr.Stage),
				"provider", runErr.Provider,
				"error", runErr.Message,
			)
		} else {
			logger.Error("run failed", "error", err)
		}
		os.Exit(1)
	}

	fmt.Printf("Run %s: %s (%s)\n", summary.RunID, summary.ModelAlias, summary.Provider)
	if opts.DryRun {
		fmt.Printf("Dry run: request logged to %s\n", summary.RequestPath)
		return
	}
	if opts.DebugCapture {
		fmt.Printf("Debug capture: events logged to %s\n", summary.DebugPath)
		return
	}
	if summary.Partial {
		fmt.Printf("PARTIAL response: %s\n", summary.StreamNote)
	}
	if u := summary.Usage; u != nil {
		fmt.Printf("Tokens: input %s, reasoning %s, output %s\n",
			formatTokens(u.InputTokens), formatTokens(u.ReasoningTokens), formatTokens(u.OutputTokens))
	}
	if summary.CostLine != "" {
		fmt.Println(summary.CostLine)
	}
	if summary.CostCaveat != "" {
		fmt.Printf("Cost caveat: %s\n", summary.CostCaveat)
	}
	fmt.Printf("Response log: %s\n", summary.ResponsePath)
	fmt.Printf("Text: %s\n", summary.TextPath)
}

func formatTokens(n *int) string {
	if n == nil {
		return "unreported"
	}
	return fmt.Sprintf("%d", *n)
}
