// Package report renders optimizer results for terminals, JSON consumers and
// markdown documents.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"esco-optimizer/decision/policy"
	"esco-optimizer/decision/scoring"
	"esco-optimizer/internal/service"
	"esco-optimizer/internal/utility"
	"esco-optimizer/pkg/offer"
	"esco-optimizer/source/ptc"
)

// Format selects the renderer
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts table, json, markdown (or md).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or markdown)", s)
	}
}

// Options tune what is rendered
type Options struct {
	ShowAll bool
}

// SwitchInstructions accompany the fallback link when an offer has none.
const SwitchInstructions = "Search your ZIP code on the PowerToChoose site and choose this plan from the list."

// SwitchLink returns where to enroll in an offer. Offers without a usable
// URL fall back to the PowerToChoose home page with instructions.
func SwitchLink(o offer.Offer) (url, instructions string) {
	if u := o.SwitchURL(); u != "" {
		return u, ""
	}
	return ptc.HomeURL, SwitchInstructions
}

// Render writes a recommendation in the given format
func Render(w io.Writer, res *service.Result, format Format, opts Options) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, res, opts)
	case FormatMarkdown:
		return renderMarkdown(w, res, opts)
	default:
		return renderTable(w, res, opts)
	}
}

// =============================================================================
// JSON
// =============================================================================

type JSONOutput struct {
	RunID        string             `json:"run_id"`
	ZipCode      string             `json:"zip_code"`
	UsageKWh     string             `json:"usage_kwh"`
	Utility      string             `json:"utility"`
	BaselineRate *string            `json:"baseline_rate"`
	Savings      any                `json:"savings"`
	Best         JSONOffer          `json:"best"`
	Top          []JSONOffer        `json:"top"`
	All          []JSONOffer        `json:"all,omitempty"`
	PolicyResult string             `json:"policy_result,omitempty"`
	Violations   []policy.Violation `json:"violations,omitempty"`
	Warnings     []policy.Warning   `json:"warnings,omitempty"`
	Fetched      int                `json:"offers_fetched"`
	Eligible     int                `json:"offers_eligible"`
	GeneratedAt  string             `json:"generated_at"`
}

type JSONOffer struct {
	Rank            int               `json:"rank"`
	Provider        string            `json:"provider"`
	OfferType       string            `json:"offer_type"`
	ServiceZone     string            `json:"service_zone"`
	Rate            string            `json:"rate"`
	MonthlyCost     string            `json:"monthly_cost"`
	GreenPercentage string            `json:"green_percentage"`
	CancellationFee string            `json:"cancellation_fee"`
	ValueAdded      bool              `json:"value_added"`
	Score           string            `json:"score"`
	Breakdown       scoring.Breakdown `json:"breakdown"`
	SwitchURL       string            `json:"switch_url"`
	Issues          []string          `json:"issues,omitempty"`
}

func toJSONOffers(offers []scoring.ScoredOffer) []JSONOffer {
	out := make([]JSONOffer, len(offers))
	for i, s := range offers {
		url, _ := SwitchLink(s.Offer)
		out[i] = JSONOffer{
			Rank:            i + 1,
			Provider:        s.DisplayName,
			OfferType:       string(s.PlanType),
			ServiceZone:     s.ServiceZone,
			Rate:            s.RatePerKWh.String(),
			MonthlyCost:     s.MonthlyCost.StringFixed(2),
			GreenPercentage: s.GreenPercentage.String(),
			CancellationFee: s.CancellationFeeParsed.StringFixed(2),
			ValueAdded:      s.ValueAddedParsed == 1,
			Score:           s.Score.StringFixed(2),
			Breakdown:       s.Breakdown,
			SwitchURL:       url,
			Issues:          s.Issues,
		}
	}
	return out
}

// NewJSONOutput builds the machine-readable view of a result.
func NewJSONOutput(res *service.Result, opts Options) JSONOutput {
	top := toJSONOffers(res.Top)
	output := JSONOutput{
		RunID:       res.RunID.String(),
		ZipCode:     res.ZipCode,
		UsageKWh:    res.UsageKWh.String(),
		Utility:     res.Utility.Name,
		Savings:     res.Savings,
		Best:        toJSONOffers([]scoring.ScoredOffer{res.Best})[0],
		Top:         top,
		Fetched:     res.Stats.Fetched,
		Eligible:    res.Stats.Eligible,
		GeneratedAt: res.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if res.Utility.Baseline.Valid {
		b := res.Utility.Baseline.Decimal.String()
		output.BaselineRate = &b
	}
	if opts.ShowAll {
		output.All = toJSONOffers(res.Ranked)
	}
	if res.Review != nil {
		output.PolicyResult = string(res.Review.Decision)
		output.Violations = res.Review.Violations
		output.Warnings = res.Review.Warnings
	}
	return output
}

func renderJSON(w io.Writer, res *service.Result, opts Options) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewJSONOutput(res, opts))
}

// =============================================================================
// TABLE
// =============================================================================

const boxWidth = 62

func boxLine(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "║  %-*s║\n", boxWidth-2, truncate(fmt.Sprintf(format, args...), boxWidth-3))
}

func rule(w io.Writer, left, right string) {
	fmt.Fprintln(w, left+strings.Repeat("═", boxWidth)+right)
}

func renderTable(w io.Writer, res *service.Result, opts Options) error {
	best := res.Best

	fmt.Fprintln(w)
	rule(w, "╔", "╗")
	boxLine(w, "⚡ ELECTRICITY PLAN RECOMMENDATION")
	rule(w, "╠", "╣")
	boxLine(w, "ZIP code:          %s", res.ZipCode)
	boxLine(w, "Monthly usage:     %s kWh", res.UsageKWh.String())
	boxLine(w, "Utility:           %s", utilityLabel(res.Utility))
	boxLine(w, "Default rate:      %s", baselineLabel(res))
	boxLine(w, "Savings:           %s", SavingsLabel(res))
	rule(w, "╠", "╣")
	boxLine(w, "BEST PLAN")
	rule(w, "╠", "╣")
	boxLine(w, "Provider:          %s", best.DisplayName)
	boxLine(w, "Rate:              $%s/kWh", best.RatePerKWh.String())
	boxLine(w, "Monthly cost:      $%s", best.MonthlyCost.StringFixed(2))
	boxLine(w, "Offer type:        %s", best.PlanType)
	boxLine(w, "Service zone:      %s", best.ServiceZone)
	boxLine(w, "Green energy:      %s%%", best.GreenPercentage.String())
	boxLine(w, "Cancellation fee:  %s", feeLabel(best))
	rule(w, "╠", "╣")
	boxLine(w, "TOP %d PLANS", len(res.Top))
	rule(w, "╠", "╣")
	for i, s := range res.Top {
		boxLine(w, "%d. %-30s $%9s  %8s", i+1, truncate(s.DisplayName, 30), s.MonthlyCost.StringFixed(2), s.Score.StringFixed(2))
	}
	if res.Review != nil {
		rule(w, "╠", "╣")
		boxLine(w, "Review:            %s", decisionLabel(res.Review.Decision))
		for _, v := range res.Review.Violations {
			boxLine(w, "❌ %s", v.Message)
		}
		for _, wn := range res.Review.Warnings {
			boxLine(w, "⚠️  %s", wn.Message)
		}
	}
	rule(w, "╚", "╝")

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Why this plan:")
	for _, line := range Explain(best, res.Preferences, res.UsageKWh) {
		fmt.Fprintf(w, "  • %s\n", line)
	}

	url, instructions := SwitchLink(best.Offer)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Switch: %s\n", url)
	if instructions != "" {
		fmt.Fprintf(w, "        %s\n", instructions)
	}

	if opts.ShowAll {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "All %d eligible plans:\n", len(res.Ranked))
		fmt.Fprintf(w, "%4s  %-30s %-9s %10s %10s %6s %10s\n", "#", "Provider", "Type", "Rate", "Monthly", "Green", "Score")
		for i, s := range res.Ranked {
			fmt.Fprintf(w, "%4d  %-30s %-9s %10s %10s %5s%% %10s\n",
				i+1, truncate(s.DisplayName, 30), s.PlanType, s.RatePerKWh.String(),
				s.MonthlyCost.StringFixed(2), s.GreenPercentage.String(), s.Score.StringFixed(2))
		}
	}
	return nil
}

// =============================================================================
// MARKDOWN
// =============================================================================

func renderMarkdown(w io.Writer, res *service.Result, opts Options) error {
	best := res.Best

	fmt.Fprintln(w, "## ⚡ Electricity Plan Recommendation")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Metric | Value |")
	fmt.Fprintln(w, "|--------|-------|")
	fmt.Fprintf(w, "| **ZIP code** | %s |\n", res.ZipCode)
	fmt.Fprintf(w, "| **Monthly usage** | %s kWh |\n", res.UsageKWh.String())
	fmt.Fprintf(w, "| **Utility** | %s |\n", utilityLabel(res.Utility))
	fmt.Fprintf(w, "| **Default rate** | %s |\n", baselineLabel(res))
	fmt.Fprintf(w, "| **Savings** | %s |\n", SavingsLabel(res))
	if res.Review != nil {
		fmt.Fprintf(w, "| **Review** | %s |\n", res.Review.Decision)
	}

	url, instructions := SwitchLink(best.Offer)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "### 🏆 Best plan: %s\n", best.DisplayName)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "- Rate: $%s/kWh\n", best.RatePerKWh.String())
	fmt.Fprintf(w, "- Monthly cost: $%s\n", best.MonthlyCost.StringFixed(2))
	fmt.Fprintf(w, "- Offer type: %s\n", best.PlanType)
	fmt.Fprintf(w, "- Green energy: %s%%\n", best.GreenPercentage.String())
	fmt.Fprintf(w, "- Cancellation fee: %s\n", feeLabel(best))
	if instructions != "" {
		fmt.Fprintf(w, "- Switch: [PowerToChoose](%s). %s\n", url, instructions)
	} else {
		fmt.Fprintf(w, "- Switch: [%s](%s)\n", best.DisplayName, url)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "#### Why this plan")
	fmt.Fprintln(w)
	for _, line := range Explain(best, res.Preferences, res.UsageKWh) {
		fmt.Fprintf(w, "- %s\n", line)
	}

	rows := res.Top
	title := fmt.Sprintf("### 📊 Top %d plans", len(res.Top))
	if opts.ShowAll {
		rows = res.Ranked
		title = fmt.Sprintf("### 📊 All %d eligible plans", len(res.Ranked))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| # | Provider | Type | Rate | Monthly Cost | Green | Score |")
	fmt.Fprintln(w, "|---|----------|------|------|--------------|-------|-------|")
	for i, s := range rows {
		fmt.Fprintf(w, "| %d | %s | %s | $%s | $%s | %s%% | %s |\n",
			i+1, escapeCell(s.DisplayName), s.PlanType, s.RatePerKWh.String(),
			s.MonthlyCost.StringFixed(2), s.GreenPercentage.String(), s.Score.StringFixed(2))
	}

	if res.Review != nil && len(res.Review.Violations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "### ❌ Policy Violations")
		fmt.Fprintln(w)
		for _, v := range res.Review.Violations {
			fmt.Fprintf(w, "- **%s**: %s\n", v.PolicyName, v.Message)
		}
	}
	if res.Review != nil && len(res.Review.Warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "### ⚠️ Warnings")
		fmt.Fprintln(w)
		for _, wn := range res.Review.Warnings {
			fmt.Fprintf(w, "- %s\n", wn.Message)
		}
	}
	return nil
}

// =============================================================================
// SHARED
// =============================================================================

// Explain lists the score components of an offer in plain words.
func Explain(s scoring.ScoredOffer, prefs scoring.Preferences, usageKWh decimal.Decimal) []string {
	lines := []string{
		fmt.Sprintf("Monthly cost $%s (%s kWh × $%s/kWh): %s points",
			s.MonthlyCost.StringFixed(2), usageKWh.String(), s.RatePerKWh.String(), signed(s.Breakdown.Cost)),
	}
	if prefs.AvoidCancellationFees {
		lines = append(lines, fmt.Sprintf("Cancellation fee $%s: %s points",
			s.CancellationFeeParsed.StringFixed(2), signed(s.Breakdown.CancellationFee)))
	}
	if prefs.PreferGreen {
		lines = append(lines, fmt.Sprintf("%s%% renewable: %s points",
			s.GreenPercentage.String(), signed(s.Breakdown.Green)))
	}
	if prefs.PreferFixed {
		lines = append(lines, fmt.Sprintf("%s rate: %s points", s.PlanType, signed(s.Breakdown.OfferType)))
	}
	if prefs.AvoidValueAdded {
		lines = append(lines, fmt.Sprintf("Value-added services %s: %s points",
			yesNo(s.ValueAddedParsed == 1), signed(s.Breakdown.ValueAdded)))
	}
	lines = append(lines, fmt.Sprintf("Total score: %s", s.Score.StringFixed(2)))
	if s.Incomplete() {
		lines = append(lines, "Data issues: "+strings.Join(s.Issues, ", "))
	}
	return lines
}

// SavingsLabel describes savings against the default rate.
func SavingsLabel(res *service.Result) string {
	s := res.Savings
	if !s.Available {
		return "savings unavailable (default rate not found)"
	}
	if s.Amount.IsNegative() {
		return fmt.Sprintf("-$%s/month (costs more than the default rate)", s.Amount.Neg().StringFixed(2))
	}
	return fmt.Sprintf("$%s/month", s.Amount.StringFixed(2))
}

func baselineLabel(res *service.Result) string {
	if !res.Utility.Baseline.Valid {
		return "not found"
	}
	return "$" + res.Utility.Baseline.Decimal.String() + "/kWh"
}

func utilityLabel(t utility.Territory) string {
	switch {
	case t.Overridden:
		return t.Name + " (override)"
	case !t.Detected:
		return t.Name
	default:
		return t.Name + " (detected)"
	}
}

func feeLabel(s scoring.ScoredOffer) string {
	if s.FeeAssumedZero {
		return fmt.Sprintf("%q (treated as $0.00)", s.CancellationFee.String())
	}
	return "$" + s.CancellationFeeParsed.StringFixed(2)
}

func decisionLabel(d policy.Decision) string {
	switch d {
	case policy.DecisionPass:
		return "✅ PASS"
	case policy.DecisionWarn:
		return "⚠️  WARN"
	case policy.DecisionDeny:
		return "❌ DENY"
	}
	return string(d)
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(2)
	}
	return "+" + d.StringFixed(2)
}

func yesNo(b bool) string {
	if b {
		return "included"
	}
	return "not included"
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
