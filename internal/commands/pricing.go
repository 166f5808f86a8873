package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"vibemon/internal/livesync"
	"vibemon/internal/output"
	"vibemon/internal/stats"
	"vibemon/internal/ui"
)

// RunPricingShow prints the server's pricing table.
func RunPricingShow() {
	a, err := loadApp(false)
	if err != nil {
		output.PrintError(err)
		return
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout.D())
	defer cancel()
	table, err := a.client.FetchPricing(ctx)
	if err != nil {
		output.PrintError(err)
		return
	}
	output.Print(table, func() { printPricing(table) })
}

// RunPricingSet adds or replaces the entry for one model.
func RunPricingSet(entry stats.PricingEntry) {
	a, err := loadApp(false)
	if err != nil {
		output.PrintError(err)
		return
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*a.cfg.RequestTimeout.D())
	defer cancel()
	table, err := setPrice(ctx, a.client, entry, a.logger)
	if err != nil {
		output.PrintError(err)
		return
	}
	output.Print(table, func() {
		ui.ShowSuccess("Saved pricing for %s", entry.Model)
		printPricing(table)
	})
}

// setPrice loads the table into an editor, upserts entry and waits for
// the save to settle. It returns the table the server confirmed.
func setPrice(ctx context.Context, store livesync.PricingStore, entry stats.PricingEntry, logger *slog.Logger) (stats.PricingSettings, error) {
	if err := validateEntry(entry); err != nil {
		return stats.PricingSettings{}, err
	}
	editor := livesync.NewPricingEditor(store, logger)
	if err := editor.Load(ctx); err != nil {
		return stats.PricingSettings{}, err
	}
	editor.Upsert(entry)
	if err := editor.Wait(ctx); err != nil {
		return stats.PricingSettings{}, fmt.Errorf("save pricing: %w", err)
	}
	if err := editor.State().Err; err != nil {
		return stats.PricingSettings{}, fmt.Errorf("save pricing: %w", err)
	}
	return editor.Confirmed(), nil
}

func validateEntry(e stats.PricingEntry) error {
	if strings.TrimSpace(e.Model) == "" {
		return fmt.Errorf("model is required")
	}
	prices := map[string]*float64{
		"input":     &e.InputPer1M,
		"output":    &e.OutputPer1M,
		"cache":     e.CacheInputPer1M,
		"reasoning": e.ReasoningPer1M,
	}
	for name, p := range prices {
		if p != nil && *p < 0 {
			return fmt.Errorf("%s price must not be negative", name)
		}
	}
	return nil
}

func printPricing(table stats.PricingSettings) {
	ui.ShowHeader("Pricing (USD per 1M tokens)")
	if len(table.Entries) == 0 {
		ui.ShowInfo("No pricing entries")
		return
	}
	for _, e := range table.Entries {
		line := fmt.Sprintf("in %s  out %s", price(e.InputPer1M), price(e.OutputPer1M))
		if e.CacheInputPer1M != nil {
			line += "  cache " + price(*e.CacheInputPer1M)
		}
		if e.ReasoningPer1M != nil {
			line += "  reasoning " + price(*e.ReasoningPer1M)
		}
		ui.ShowField(e.Model, line)
	}
}

func price(v float64) string { return fmt.Sprintf("%.4g", v) }
