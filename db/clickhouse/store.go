// Package clickhouse stores offer snapshots in ClickHouse and serves the
// latest snapshot for a ZIP code as an offer source.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	apperrors "esco-optimizer/pkg/errors"
	"esco-optimizer/pkg/offer"
	"esco-optimizer/source"
)

// Schema creates the offer snapshot table.
const Schema = `
CREATE TABLE IF NOT EXISTS esco_offers (
	snapshot_id      UUID,
	zip_code         String,
	position         UInt32,
	fetched_at       DateTime64(3),
	source           LowCardinality(String),
	display_name     String,
	commodity        LowCardinality(String),
	service_class    LowCardinality(String),
	service_zone     String,
	offer_type       LowCardinality(String),
	rate             Nullable(String),
	percentage_green Nullable(String),
	cancellation_fee Nullable(String),
	value_added      Nullable(String),
	url              Nullable(String)
) ENGINE = MergeTree
ORDER BY (zip_code, fetched_at, position)
`

// Config holds ClickHouse connection configuration
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "escopt",
		Username: "default",
		Password: "",
		Debug:    false,
	}
}

// Store implements source.Source using ClickHouse
type Store struct {
	conn clickhouse.Conn
	cfg  *Config
}

// NewStore creates a new ClickHouse offer store
func NewStore(cfg *Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	return &Store{conn: conn, cfg: cfg}, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// Migrate creates the offer table if needed
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.conn.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create esco_offers: %w", err)
	}
	return nil
}

func (s *Store) Name() string { return "clickhouse" }

// =============================================================================
// SNAPSHOT OPERATIONS
// =============================================================================

// SaveSnapshot stores offers for a ZIP code under a new snapshot ID.
// Input order is kept in the position column.
func (s *Store) SaveSnapshot(ctx context.Context, zip, origin string, offers []offer.Offer) (uuid.UUID, error) {
	id := uuid.New()
	if len(offers) == 0 {
		return id, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO esco_offers (
			snapshot_id, zip_code, position, fetched_at, source,
			display_name, commodity, service_class, service_zone, offer_type,
			rate, percentage_green, cancellation_fee, value_added, url
		)
	`)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to prepare batch: %w", err)
	}

	now := time.Now().UTC()
	for i, o := range offers {
		if err := batch.Append(
			id, zip, uint32(i), now, origin,
			o.DisplayName, o.Commodity, o.ServiceClass, o.ServiceZone, o.OfferType,
			offer.Cell(o.Rate), offer.Cell(o.PercentageGreen), offer.Cell(o.CancellationFee),
			offer.Cell(o.ValueAdded), offer.Cell(o.URL),
		); err != nil {
			return uuid.Nil, fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return uuid.Nil, fmt.Errorf("failed to send batch: %w", err)
	}
	return id, nil
}

// Fetch returns the offers of the most recent snapshot for the ZIP code.
func (s *Store) Fetch(ctx context.Context, q source.Query) ([]offer.Offer, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT display_name, commodity, service_class, service_zone, offer_type,
			   rate, percentage_green, cancellation_fee, value_added, url
		FROM esco_offers
		WHERE zip_code = ? AND snapshot_id = (
			SELECT snapshot_id FROM esco_offers
			WHERE zip_code = ?
			ORDER BY fetched_at DESC
			LIMIT 1
		)
		ORDER BY position
	`
	rows, err := s.conn.Query(ctx, query, q.ZipCode, q.ZipCode)
	if err != nil {
		return nil, apperrors.NewSourceError(s.Name(), fmt.Errorf("failed to query offers: %w", err))
	}
	defer rows.Close()

	var offers []offer.Offer
	for rows.Next() {
		var o offer.Offer
		var rate, green, fee, valueAdded, url *string
		if err := rows.Scan(
			&o.DisplayName, &o.Commodity, &o.ServiceClass, &o.ServiceZone, &o.OfferType,
			&rate, &green, &fee, &valueAdded, &url,
		); err != nil {
			return nil, apperrors.NewSourceError(s.Name(), fmt.Errorf("failed to scan offer: %w", err))
		}
		o.Rate = offer.FromNullableCell(rate)
		o.PercentageGreen = offer.FromNullableCell(green)
		o.CancellationFee = offer.FromNullableCell(fee)
		o.ValueAdded = offer.FromNullableCell(valueAdded)
		o.URL = offer.FromNullableCell(url)
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewSourceError(s.Name(), err)
	}
	return offers, nil
}

// CountSnapshots returns how many snapshots exist for the ZIP code.
func (s *Store) CountSnapshots(ctx context.Context, zip string) (int, error) {
	var count uint64
	err := s.conn.QueryRow(ctx,
		`SELECT uniqExact(snapshot_id) FROM esco_offers WHERE zip_code = ?`, zip,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return int(count), nil
}
