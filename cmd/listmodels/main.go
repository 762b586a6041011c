// Command listmodels prints the capability catalog: every model's id, alias,
// provider, reasoning mode, output ceiling, and rate schedule.
package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/willpenman/llm-philosophy/internal/catalog"
	"github.com/willpenman/llm-philosophy/internal/core"
)

func main() {
	cat, err := catalog.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "catalog load failed: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tALIAS\tPROVIDER\tREASONING\tMAX OUT\tPRICES ($/Mtok in/out)")
	for _, entry := range cat.Models() {
		m := entry.Model
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			m.ID,
			m.Alias,
			entry.Provider.Name,
			string(m.Reasoning),
			m.MaxOutputTokensDefault,
			formatTiers(m.PriceTiers),
		)
	}
	w.Flush()
}

func formatTiers(tiers []core.PriceTier) string {
	parts := make([]string, 0, len(tiers))
	for _, t := range tiers {
		label := fmt.Sprintf("%.2f/%.2f", t.InputPerMtok, t.OutputPerMtok)
		if t.MaxInputTokens > 0 {
			label = fmt.Sprintf("%s (≤%dk in)", label, t.MaxInputTokens/1000)
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, ", ")
}
