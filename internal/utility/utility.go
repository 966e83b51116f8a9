// Package utility identifies the incumbent utility for a set of offers and
// looks up its default supply rate.
package utility

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"esco-optimizer/decision/normalize"
	"esco-optimizer/pkg/offer"
)

// Unknown is reported when no offer names a service zone.
const Unknown = "Unknown Utility"

// Territory is the outcome of utility detection.
type Territory struct {
	Name       string              `json:"name"`
	Detected   bool                `json:"detected"`
	Overridden bool                `json:"overridden"`
	Counts     map[string]int      `json:"zone_counts,omitempty"`
	Baseline   decimal.NullDecimal `json:"baseline_rate"`
}

// Detect returns the most frequent non-empty service zone. Ties go to the
// lexicographically smallest zone. ok is false when no zone is present.
func Detect(offers []offer.Offer) (name string, ok bool) {
	counts := ZoneCounts(offers)
	if len(counts) == 0 {
		return Unknown, false
	}

	zones := make([]string, 0, len(counts))
	for z := range counts {
		zones = append(zones, z)
	}
	sort.Slice(zones, func(i, j int) bool {
		if counts[zones[i]] != counts[zones[j]] {
			return counts[zones[i]] > counts[zones[j]]
		}
		return zones[i] < zones[j]
	})
	return zones[0], true
}

// ZoneCounts tallies trimmed, non-empty service zones.
func ZoneCounts(offers []offer.Offer) map[string]int {
	counts := make(map[string]int)
	for _, o := range offers {
		if z := strings.TrimSpace(o.ServiceZone); z != "" {
			counts[z]++
		}
	}
	return counts
}

// BaselineRate returns the rate of the first offer whose service zone
// contains the utility name, case-insensitively. Offers with an unreadable
// rate are skipped.
func BaselineRate(offers []offer.Offer, utilityName string) decimal.NullDecimal {
	needle := strings.ToLower(strings.TrimSpace(utilityName))
	if needle == "" || utilityName == Unknown {
		return decimal.NullDecimal{}
	}
	for _, o := range offers {
		if !strings.Contains(strings.ToLower(o.ServiceZone), needle) {
			continue
		}
		if rate, ok := normalize.Rate(o.Rate); ok {
			return decimal.NewNullDecimal(rate)
		}
	}
	return decimal.NullDecimal{}
}

// Resolve detects the utility, applies a non-blank override, and looks up
// the baseline rate.
func Resolve(offers []offer.Offer, override string) Territory {
	t := Territory{Counts: ZoneCounts(offers)}
	t.Name, t.Detected = Detect(offers)

	if o := strings.TrimSpace(override); o != "" {
		t.Name = o
		t.Overridden = true
	}

	t.Baseline = BaselineRate(offers, t.Name)
	return t
}
