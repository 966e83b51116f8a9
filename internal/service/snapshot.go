package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"esco-optimizer/db/clickhouse"
	"esco-optimizer/db/postgres"
	"esco-optimizer/internal/config"
	apperrors "esco-optimizer/pkg/errors"
	"esco-optimizer/pkg/offer"
	"esco-optimizer/source"
)

// SnapshotStore persists raw offer listings for later replay.
type SnapshotStore interface {
	Name() string
	Migrate(ctx context.Context) error
	SaveSnapshot(ctx context.Context, zip, origin string, offers []offer.Offer) (uuid.UUID, error)
	Close() error
}

// SnapshotResult describes one saved listing.
type SnapshotResult struct {
	ID      uuid.UUID `json:"id"`
	ZipCode string    `json:"zip_code"`
	Origin  string    `json:"origin"`
	Store   string    `json:"store"`
	Offers  int       `json:"offers"`
}

// NewSnapshotStore opens the store named by kind using the connection
// settings of the matching source section.
func NewSnapshotStore(cfg *config.Config, kind string) (SnapshotStore, error) {
	switch kind {
	case config.SourceClickHouse:
		chCfg := cfg.Source.ClickHouse
		store, err := clickhouse.NewStore(&chCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		return store, nil
	case config.SourcePostgres:
		if cfg.Source.Postgres.DSN == "" {
			return nil, fmt.Errorf("postgres snapshot store requires a DSN")
		}
		db, err := postgres.Open(cfg.Source.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		return postgres.NewStore(db), nil
	default:
		return nil, fmt.Errorf("unsupported snapshot store %q (want clickhouse or postgres)", kind)
	}
}

// Snapshot fetches the full listing for zip from src and saves it unfiltered.
func Snapshot(ctx context.Context, src source.Source, store SnapshotStore, zip string) (*SnapshotResult, error) {
	q, err := source.Query{ZipCode: zip}.Normalize()
	if err != nil {
		return nil, err
	}

	offers, err := src.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(offers) == 0 {
		return nil, apperrors.NewNoOffersError(q.ZipCode)
	}

	id, err := store.SaveSnapshot(ctx, q.ZipCode, src.Name(), offers)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot to %s: %w", store.Name(), err)
	}

	log.Info().
		Str("snapshot_id", id.String()).
		Str("zip_code", q.ZipCode).
		Str("store", store.Name()).
		Int("offers", len(offers)).
		Msg("Offer snapshot saved")

	return &SnapshotResult{
		ID:      id,
		ZipCode: q.ZipCode,
		Origin:  src.Name(),
		Store:   store.Name(),
		Offers:  len(offers),
	}, nil
}
