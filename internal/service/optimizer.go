// Package service runs the recommendation pipeline end to end: fetch offers,
// restrict them to a segment, detect the utility, score, select and review.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"esco-optimizer/decision/filter"
	"esco-optimizer/decision/policy"
	"esco-optimizer/decision/recommend"
	"esco-optimizer/decision/scoring"
	"esco-optimizer/internal/utility"
	apperrors "esco-optimizer/pkg/errors"
	"esco-optimizer/pkg/offer"
	"esco-optimizer/source"
)

// Optimizer is the recommendation pipeline
type Optimizer struct {
	source  source.Source
	segment filter.Segment
	scorer  *scoring.Engine
	review  *policy.Engine
	topK    int
	logger  zerolog.Logger
}

// NewOptimizer creates a pipeline over src with default settings
func NewOptimizer(src source.Source) *Optimizer {
	return &Optimizer{
		source:  src,
		segment: filter.ElectricResidential,
		scorer:  scoring.NewEngine(),
		review:  policy.NewEngine(),
		topK:    recommend.DefaultTopK,
		logger:  log.With().Str("component", "optimizer").Logger(),
	}
}

// WithSegment restricts ranking to another commodity/service class
func (o *Optimizer) WithSegment(s filter.Segment) *Optimizer {
	o.segment = s
	return o
}

// WithScorer replaces the scoring engine
func (o *Optimizer) WithScorer(e *scoring.Engine) *Optimizer {
	o.scorer = e
	return o
}

// WithReview replaces the policy engine; nil disables review
func (o *Optimizer) WithReview(e *policy.Engine) *Optimizer {
	o.review = e
	return o
}

// WithTopK sets the default shortlist length
func (o *Optimizer) WithTopK(k int) *Optimizer {
	if k > 0 {
		o.topK = k
	}
	return o
}

// WithLogger sets the logger
func (o *Optimizer) WithLogger(l zerolog.Logger) *Optimizer {
	o.logger = l
	return o
}

// Source returns the configured offer source
func (o *Optimizer) Source() source.Source { return o.source }

// Request contains the inputs for one recommendation
type Request struct {
	ZipCode         string              `json:"zip_code"`
	UsageKWh        decimal.Decimal     `json:"usage_kwh"`
	Preferences     scoring.Preferences `json:"preferences"`
	UtilityOverride string              `json:"utility_override,omitempty"`
	TopK            int                 `json:"top_k,omitempty"`
}

// Result is the complete recommendation output
type Result struct {
	RunID       uuid.UUID                `json:"run_id"`
	ZipCode     string                   `json:"zip_code"`
	UsageKWh    decimal.Decimal          `json:"usage_kwh"`
	Preferences scoring.Preferences      `json:"preferences"`
	Segment     filter.Segment           `json:"segment"`
	Utility     utility.Territory        `json:"utility"`
	Best        scoring.ScoredOffer      `json:"best"`
	Top         []scoring.ScoredOffer    `json:"top"`
	Ranked      []scoring.ScoredOffer    `json:"ranked"`
	Savings     recommend.Savings        `json:"savings"`
	Review      *policy.EvaluationResult `json:"review,omitempty"`
	Stats       Stats                    `json:"stats"`
	GeneratedAt time.Time                `json:"generated_at"`
}

// Stats counts offers at each pipeline stage
type Stats struct {
	Fetched    int           `json:"fetched"`
	Eligible   int           `json:"eligible"`
	Incomplete int           `json:"incomplete"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// Eligible fetches offers for the ZIP code and keeps those in the segment.
// It also returns the number of offers fetched.
func (o *Optimizer) Eligible(ctx context.Context, zip string) ([]offer.Offer, int, error) {
	q, err := source.Query{ZipCode: zip}.Normalize()
	if err != nil {
		return nil, 0, err
	}

	raw, err := o.source.Fetch(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	if len(raw) == 0 {
		return nil, 0, apperrors.NewNoOffersError(q.ZipCode)
	}

	eligible := o.segment.Apply(raw)
	o.logger.Debug().
		Str("zip", q.ZipCode).
		Int("fetched", len(raw)).
		Int("eligible", len(eligible)).
		Msg("Filtered offers")
	return eligible, len(raw), nil
}

// Territory fetches eligible offers and resolves the utility for them.
func (o *Optimizer) Territory(ctx context.Context, zip, override string) (utility.Territory, error) {
	eligible, _, err := o.Eligible(ctx, zip)
	if err != nil {
		return utility.Territory{}, err
	}
	return utility.Resolve(eligible, override), nil
}

// Optimize runs the full pipeline
func (o *Optimizer) Optimize(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if !req.UsageKWh.IsPositive() {
		return nil, apperrors.ErrInvalidUsage
	}

	eligible, fetched, err := o.Eligible(ctx, req.ZipCode)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, apperrors.NewNoEligibleOffersError(req.ZipCode)
	}

	territory := utility.Resolve(eligible, req.UtilityOverride)

	ranked := o.scorer.Score(eligible, req.UsageKWh, req.Preferences)

	k := req.TopK
	if k <= 0 {
		k = o.topK
	}
	rec, err := recommend.Recommend(ranked, k, territory.Baseline, req.UsageKWh)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RunID:       uuid.New(),
		ZipCode:     req.ZipCode,
		UsageKWh:    req.UsageKWh,
		Preferences: req.Preferences,
		Segment:     o.segment,
		Utility:     territory,
		Best:        rec.Best,
		Top:         rec.Top,
		Ranked:      ranked,
		Savings:     rec.Savings,
		Stats: Stats{
			Fetched:  fetched,
			Eligible: len(eligible),
		},
		GeneratedAt: time.Now().UTC(),
	}
	for _, s := range ranked {
		if s.Incomplete() {
			result.Stats.Incomplete++
		}
	}

	if o.review != nil {
		review, err := o.review.Evaluate(ctx, policy.EvaluationRequest{
			Recommendation: rec,
			Ranked:         ranked,
			UsageKWh:       req.UsageKWh,
		})
		if err != nil {
			return nil, &apperrors.Error{
				Code:     apperrors.CodePolicyFailed,
				Message:  "recommendation review failed",
				Severity: apperrors.SeverityError,
				Err:      err,
			}
		}
		result.Review = review
	}

	result.Stats.Elapsed = time.Since(start)

	o.logger.Info().
		Str("run_id", result.RunID.String()).
		Str("zip", result.ZipCode).
		Str("utility", territory.Name).
		Str("best", rec.Best.DisplayName).
		Str("monthly_cost", rec.Best.MonthlyCost.StringFixed(2)).
		Int("eligible", len(eligible)).
		Dur("elapsed", result.Stats.Elapsed).
		Msg("Recommendation complete")

	return result, nil
}

// String summarizes a result for logs
func (r *Result) String() string {
	return fmt.Sprintf("%s zip=%s best=%q cost=%s", r.RunID, r.ZipCode, r.Best.DisplayName, r.Best.MonthlyCost.StringFixed(2))
}
