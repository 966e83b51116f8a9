// Package source defines where offers come from. Implementations return the
// raw, unfiltered offer list for a ZIP code.
package source

import (
	"context"
	"regexp"
	"strings"

	apperrors "esco-optimizer/pkg/errors"
	"esco-optimizer/pkg/offer"
)

var zipPattern = regexp.MustCompile(`^\d{5}$`)

// Query identifies the offers to fetch.
type Query struct {
	ZipCode string `json:"zip_code"`
}

// Normalize trims the ZIP code and validates it as five digits.
func (q Query) Normalize() (Query, error) {
	q.ZipCode = strings.TrimSpace(q.ZipCode)
	if !zipPattern.MatchString(q.ZipCode) {
		return q, apperrors.NewInvalidQueryError("zip_code", "ZIP code must be 5 digits")
	}
	return q, nil
}

// Source fetches offers for a query.
type Source interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]offer.Offer, error)
}

// Pinger is implemented by sources with a reachable backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Func adapts a function to Source.
type Func struct {
	SourceName string
	Fn         func(ctx context.Context, q Query) ([]offer.Offer, error)
}

func (f Func) Name() string { return f.SourceName }

func (f Func) Fetch(ctx context.Context, q Query) ([]offer.Offer, error) {
	return f.Fn(ctx, q)
}

// Static serves the same offers for every query.
func Static(name string, offers []offer.Offer) Source {
	return Func{SourceName: name, Fn: func(context.Context, Query) ([]offer.Offer, error) {
		out := make([]offer.Offer, len(offers))
		copy(out, offers)
		return out, nil
	}}
}
