// Package policy reviews a recommendation before it is presented.
// Built-in guardrails surface the risks the scoring formula deliberately
// ignores; optional rego policies add site-specific rules.
package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"esco-optimizer/decision/recommend"
	"esco-optimizer/decision/scoring"
	"esco-optimizer/pkg/offer"
)

// PolicyType defines the type of policy
type PolicyType string

const (
	PolicyTypeMaxMonthlyCost   PolicyType = "max_monthly_cost"
	PolicyTypeIncompleteOffers PolicyType = "incomplete_offers"
	PolicyTypeAssumedZeroFee   PolicyType = "assumed_zero_fee"
	PolicyTypeVariableRate     PolicyType = "variable_rate"
	PolicyTypeNegativeSavings  PolicyType = "negative_savings"
)

// Severity defines policy violation severity
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Decision is the policy evaluation outcome
type Decision string

const (
	DecisionPass Decision = "pass"
	DecisionWarn Decision = "warn"
	DecisionDeny Decision = "deny"
)

// Policy defines a review rule
type Policy struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Type        PolicyType `json:"type" yaml:"type"`
	Severity    Severity   `json:"severity" yaml:"severity"`
	Threshold   float64    `json:"threshold" yaml:"threshold"`
	Enabled     bool       `json:"enabled" yaml:"enabled"`
}

// Violation represents a policy violation
type Violation struct {
	PolicyID   string `json:"policy_id"`
	PolicyName string `json:"policy_name"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
}

// Warning represents a policy warning. Info-severity warnings are notes and
// never change the decision.
type Warning struct {
	PolicyID string `json:"policy_id"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// EvaluationRequest contains the input for policy evaluation
type EvaluationRequest struct {
	Recommendation *recommend.Recommendation
	Ranked         []scoring.ScoredOffer
	UsageKWh       decimal.Decimal
	CustomPolicies []Policy
}

// EvaluationResult contains the policy evaluation outcome
type EvaluationResult struct {
	Decision    Decision    `json:"decision"`
	Violations  []Violation `json:"violations"`
	Warnings    []Warning   `json:"warnings"`
	PoliciesRan int         `json:"policies_ran"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
}

// Engine evaluates policies against a recommendation
type Engine struct {
	policies []Policy
	rego     *RegoEvaluator
}

// NewEngine creates a policy engine with the built-in policies
func NewEngine() *Engine {
	return &Engine{policies: defaultPolicies()}
}

// WithRego adds rego policies loaded from a directory
func (e *Engine) WithRego(r *RegoEvaluator) *Engine {
	e.rego = r
	return e
}

// AddPolicy adds a policy
func (e *Engine) AddPolicy(p Policy) {
	e.policies = append(e.policies, p)
}

// MaxMonthlyCost returns an enabled cost ceiling policy
func MaxMonthlyCost(limit float64) Policy {
	return Policy{
		ID:          "max-monthly-cost",
		Name:        "Monthly Cost Ceiling",
		Description: "Deny when the best plan's monthly cost exceeds the ceiling",
		Type:        PolicyTypeMaxMonthlyCost,
		Severity:    SeverityError,
		Threshold:   limit,
		Enabled:     true,
	}
}

// Evaluate runs all policies against the recommendation
func (e *Engine) Evaluate(ctx context.Context, req EvaluationRequest) (*EvaluationResult, error) {
	if req.Recommendation == nil {
		return nil, fmt.Errorf("policy: recommendation is required")
	}

	result := &EvaluationResult{
		Decision:    DecisionPass,
		Violations:  make([]Violation, 0),
		Warnings:    make([]Warning, 0),
		EvaluatedAt: time.Now(),
	}

	all := make([]Policy, 0, len(e.policies)+len(req.CustomPolicies))
	all = append(all, e.policies...)
	all = append(all, req.CustomPolicies...)

	for _, p := range all {
		if !p.Enabled {
			continue
		}

		result.PoliciesRan++
		violation, warning := e.evaluatePolicy(p, req)
		result.record(p.Severity, violation, warning)
	}

	if e.rego != nil {
		denials, warnings, err := e.rego.Evaluate(ctx, regoInput(req))
		if err != nil {
			return nil, fmt.Errorf("policy: rego evaluation failed: %w", err)
		}
		for _, msg := range denials {
			result.record(SeverityError, &Violation{
				PolicyID:   "rego",
				PolicyName: "Rego Policy",
				Message:    msg,
				Severity:   string(SeverityError),
			}, nil)
		}
		for _, msg := range warnings {
			result.record(SeverityWarning, nil, &Warning{PolicyID: "rego", Message: msg, Severity: string(SeverityWarning)})
		}
	}

	return result, nil
}

func (r *EvaluationResult) record(sev Severity, v *Violation, w *Warning) {
	if v != nil {
		r.Violations = append(r.Violations, *v)
	}
	if w != nil {
		if w.Severity == "" {
			w.Severity = string(sev)
		}
		r.Warnings = append(r.Warnings, *w)
	}
	if v == nil && w == nil {
		return
	}

	switch {
	case sev == SeverityError && v != nil:
		r.Decision = DecisionDeny
	case sev == SeverityInfo:
	case r.Decision == DecisionPass:
		r.Decision = DecisionWarn
	}
}

func (e *Engine) evaluatePolicy(p Policy, req EvaluationRequest) (*Violation, *Warning) {
	best := req.Recommendation.Best

	switch p.Type {
	case PolicyTypeMaxMonthlyCost:
		limit := decimal.NewFromFloat(p.Threshold)
		if best.MonthlyCost.GreaterThan(limit) {
			return &Violation{
				PolicyID:   p.ID,
				PolicyName: p.Name,
				Message: fmt.Sprintf("Best plan costs $%s/month, above the $%s ceiling",
					best.MonthlyCost.StringFixed(2), limit.StringFixed(2)),
				Severity: string(p.Severity),
			}, nil
		}

	case PolicyTypeIncompleteOffers:
		incomplete := 0
		for _, s := range req.Ranked {
			if s.Incomplete() {
				incomplete++
			}
		}
		if incomplete > 0 {
			return nil, &Warning{
				PolicyID: p.ID,
				Message:  fmt.Sprintf("%d offer(s) had missing or malformed fields and were scored as-is", incomplete),
			}
		}

	case PolicyTypeAssumedZeroFee:
		if best.FeeAssumedZero {
			return nil, &Warning{
				PolicyID: p.ID,
				Message: fmt.Sprintf("Cancellation fee %q could not be read and was treated as $0; check the plan terms",
					best.CancellationFee.String()),
			}
		}

	case PolicyTypeVariableRate:
		if best.PlanType != offer.OfferTypeFixed {
			return nil, &Warning{
				PolicyID: p.ID,
				Message:  "Best plan is not fixed-rate; the price can change month to month",
			}
		}

	case PolicyTypeNegativeSavings:
		s := req.Recommendation.Savings
		if s.Available && s.Amount.IsNegative() {
			return nil, &Warning{
				PolicyID: p.ID,
				Message: fmt.Sprintf("Best plan costs $%s/month more than the default utility rate",
					s.Amount.Neg().StringFixed(2)),
			}
		}
	}

	return nil, nil
}

func regoInput(req EvaluationRequest) map[string]any {
	best := req.Recommendation.Best
	input := map[string]any{
		"provider":          best.DisplayName,
		"offer_type":        string(best.PlanType),
		"rate":              best.RatePerKWh.InexactFloat64(),
		"monthly_cost":      best.MonthlyCost.InexactFloat64(),
		"cancellation_fee":  best.CancellationFeeParsed.InexactFloat64(),
		"fee_assumed_zero":  best.FeeAssumedZero,
		"green_percentage":  best.GreenPercentage.InexactFloat64(),
		"value_added":       best.ValueAddedParsed,
		"usage_kwh":         req.UsageKWh.InexactFloat64(),
		"savings_available": req.Recommendation.Savings.Available,
		"offers_ranked":     len(req.Ranked),
		"service_zone":      best.ServiceZone,
	}
	if req.Recommendation.Savings.Available {
		input["savings"] = req.Recommendation.Savings.Amount.InexactFloat64()
	}
	return input
}

func defaultPolicies() []Policy {
	return []Policy{
		{
			ID:          "incomplete-offers",
			Name:        "Incomplete Offers",
			Description: "Warn when offers with missing rate or offer type were ranked",
			Type:        PolicyTypeIncompleteOffers,
			Severity:    SeverityWarning,
			Enabled:     true,
		},
		{
			ID:          "assumed-zero-fee",
			Name:        "Unreadable Cancellation Fee",
			Description: "Warn when the best plan's fee text had no amount and was treated as zero",
			Type:        PolicyTypeAssumedZeroFee,
			Severity:    SeverityWarning,
			Enabled:     true,
		},
		{
			ID:          "variable-rate",
			Name:        "Variable Rate",
			Description: "Note when the best plan is not fixed-rate",
			Type:        PolicyTypeVariableRate,
			Severity:    SeverityInfo,
			Enabled:     true,
		},
		{
			ID:          "negative-savings",
			Name:        "Negative Savings",
			Description: "Warn when the best plan is more expensive than the default utility rate",
			Type:        PolicyTypeNegativeSavings,
			Severity:    SeverityWarning,
			Enabled:     true,
		},
	}
}
