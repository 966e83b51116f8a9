package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"esco-optimizer/decision/normalize"
	"esco-optimizer/internal/utility"
	"esco-optimizer/pkg/offer"
)

// RenderOffers writes eligible offers without scoring them.
func RenderOffers(w io.Writer, offers []offer.Offer, format Format) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(offers)
	}

	if format == FormatMarkdown {
		fmt.Fprintln(w, "| # | Provider | Type | Zone | Rate | Green | Cancellation Fee |")
		fmt.Fprintln(w, "|---|----------|------|------|------|-------|------------------|")
		for i, o := range offers {
			fmt.Fprintf(w, "| %d | %s | %s | %s | %s | %s | %s |\n",
				i+1, escapeCell(o.DisplayName), o.Type(), escapeCell(o.ServiceZone),
				o.Rate.String(), o.PercentageGreen.String(), escapeCell(o.CancellationFee.String()))
		}
		return nil
	}

	fmt.Fprintf(w, "%4s  %-30s %-9s %-24s %10s %6s  %s\n", "#", "Provider", "Type", "Zone", "Rate", "Green", "Cancellation fee")
	for i, o := range offers {
		rate := "n/a"
		if r, ok := normalize.Rate(o.Rate); ok {
			rate = r.String()
		}
		fmt.Fprintf(w, "%4d  %-30s %-9s %-24s %10s %6s  %s\n",
			i+1, truncate(o.DisplayName, 30), o.Type(), truncate(o.ServiceZone, 24),
			rate, normalize.ParseGreenPercentage(o.PercentageGreen).String(), o.CancellationFee.String())
	}
	fmt.Fprintf(w, "\n%d eligible offers\n", len(offers))
	return nil
}

// RenderTerritory writes utility detection results.
func RenderTerritory(w io.Writer, t utility.Territory, format Format) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	}

	baseline := "not found"
	if t.Baseline.Valid {
		baseline = "$" + t.Baseline.Decimal.String() + "/kWh"
	}

	zones := make([]string, 0, len(t.Counts))
	for z := range t.Counts {
		zones = append(zones, z)
	}
	sort.Strings(zones)

	if format == FormatMarkdown {
		fmt.Fprintf(w, "| **Utility** | %s |\n", utilityLabel(t))
		fmt.Fprintln(w, "|---|---|")
		fmt.Fprintf(w, "| **Default rate** | %s |\n", baseline)
		for _, z := range zones {
			fmt.Fprintf(w, "| %s | %d offers |\n", escapeCell(z), t.Counts[z])
		}
		return nil
	}

	fmt.Fprintf(w, "Utility:       %s\n", utilityLabel(t))
	fmt.Fprintf(w, "Default rate:  %s\n", baseline)
	if len(zones) > 0 {
		fmt.Fprintln(w, "Service zones:")
		for _, z := range zones {
			fmt.Fprintf(w, "  %-40s %d\n", z, t.Counts[z])
		}
	}
	return nil
}
