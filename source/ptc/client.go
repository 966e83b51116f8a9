// Package ptc fetches offers from the NY DPS PowerToChoose service.
package ptc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apperrors "esco-optimizer/pkg/errors"
	"esco-optimizer/pkg/offer"
	"esco-optimizer/pkg/platform"
	"esco-optimizer/source"
)

const (
	// DefaultBaseURL is the public PowerToChoose endpoint.
	DefaultBaseURL = "https://documents.dps.ny.gov/PTC"
	// HomeURL is shown when an offer has no enrollment link.
	HomeURL = "https://documents.dps.ny.gov/PTC"

	offersPath = "/api/Service/GetActiveOffersByZip/"
)

// Config for the PowerToChoose client
type Config struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// DefaultConfig returns default client settings
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 30 * time.Second,
		Retries: 2,
	}
}

// Client is a source.Source backed by the PowerToChoose API.
type Client struct {
	baseURL string
	http    *platform.HTTPClient
	logger  zerolog.Logger
}

// NewClient creates a PowerToChoose client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    platform.NewHTTPClient(cfg.Retries, cfg.Timeout),
		logger:  log.With().Str("source", "ptc").Logger(),
	}
}

// WithHTTPClient replaces the transport, mainly for tests.
func (c *Client) WithHTTPClient(h *platform.HTTPClient) *Client {
	c.http = h
	return c
}

func (c *Client) Name() string { return "ptc" }

// Fetch returns all active offers for the ZIP code.
func (c *Client) Fetch(ctx context.Context, q source.Query) ([]offer.Offer, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	url := c.baseURL + offersPath + q.ZipCode
	start := time.Now()

	var offers []offer.Offer
	if err := c.http.GetJSON(ctx, url, &offers); err != nil {
		return nil, apperrors.NewSourceError(c.Name(), fmt.Errorf("zip %s: %w", q.ZipCode, err))
	}

	c.logger.Debug().
		Str("zip", q.ZipCode).
		Int("offers", len(offers)).
		Dur("elapsed", time.Since(start)).
		Msg("Fetched offers")

	return offers, nil
}
