// Package postgres stores offer snapshots in PostgreSQL and serves the latest
// snapshot for a ZIP code as an offer source.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	apperrors "esco-optimizer/pkg/errors"
	"esco-optimizer/pkg/offer"
	"esco-optimizer/source"
)

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 5
	defaultConnLifetime = time.Hour
	defaultConnIdleTime = 30 * time.Minute
	defaultPingTimeout  = 5 * time.Second
)

// Schema creates the offer snapshot table.
const Schema = `
CREATE TABLE IF NOT EXISTS esco_offers (
	snapshot_id      UUID        NOT NULL,
	zip_code         TEXT        NOT NULL,
	position         INTEGER     NOT NULL,
	fetched_at       TIMESTAMPTZ NOT NULL,
	source           TEXT        NOT NULL,
	display_name     TEXT        NOT NULL,
	commodity        TEXT        NOT NULL,
	service_class    TEXT        NOT NULL,
	service_zone     TEXT        NOT NULL,
	offer_type       TEXT        NOT NULL,
	rate             TEXT,
	percentage_green TEXT,
	cancellation_fee TEXT,
	value_added      TEXT,
	url              TEXT,
	PRIMARY KEY (snapshot_id, position)
);
CREATE INDEX IF NOT EXISTS esco_offers_zip_fetched ON esco_offers (zip_code, fetched_at DESC);
`

// Store implements source.Source over a *sql.DB.
type Store struct {
	db *sql.DB
}

// Open creates a lib/pq backed *sql.DB pool and validates the connection.
func Open(dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("db: empty DSN")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnLifetime)
	db.SetConnMaxIdleTime(defaultConnIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// NewStore wraps an open pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Name() string { return "postgres" }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the offer table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create esco_offers: %w", err)
	}
	return nil
}

// SaveSnapshot stores offers for a ZIP code in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, zip, origin string, offers []offer.Offer) (uuid.UUID, error) {
	id := uuid.New()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO esco_offers (
			snapshot_id, zip_code, position, fetched_at, source,
			display_name, commodity, service_class, service_zone, offer_type,
			rate, percentage_green, cancellation_fee, value_added, url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`)
	if err != nil {
		return uuid.Nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, o := range offers {
		if _, err := stmt.ExecContext(ctx,
			id.String(), zip, i, now, origin,
			o.DisplayName, o.Commodity, o.ServiceClass, o.ServiceZone, o.OfferType,
			offer.Cell(o.Rate), offer.Cell(o.PercentageGreen), offer.Cell(o.CancellationFee),
			offer.Cell(o.ValueAdded), offer.Cell(o.URL),
		); err != nil {
			return uuid.Nil, fmt.Errorf("insert offer %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// Fetch returns the offers of the most recent snapshot for the ZIP code.
func (s *Store) Fetch(ctx context.Context, q source.Query) ([]offer.Offer, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT display_name, commodity, service_class, service_zone, offer_type,
			   rate, percentage_green, cancellation_fee, value_added, url
		FROM esco_offers
		WHERE snapshot_id = (
			SELECT snapshot_id FROM esco_offers
			WHERE zip_code = $1
			ORDER BY fetched_at DESC
			LIMIT 1
		)
		ORDER BY position
	`, q.ZipCode)
	if err != nil {
		return nil, apperrors.NewSourceError(s.Name(), fmt.Errorf("query offers: %w", err))
	}
	defer rows.Close()

	var offers []offer.Offer
	for rows.Next() {
		var o offer.Offer
		var rate, green, fee, valueAdded, url sql.NullString
		if err := rows.Scan(
			&o.DisplayName, &o.Commodity, &o.ServiceClass, &o.ServiceZone, &o.OfferType,
			&rate, &green, &fee, &valueAdded, &url,
		); err != nil {
			return nil, apperrors.NewSourceError(s.Name(), fmt.Errorf("scan offer: %w", err))
		}
		o.Rate = nullable(rate)
		o.PercentageGreen = nullable(green)
		o.CancellationFee = nullable(fee)
		o.ValueAdded = nullable(valueAdded)
		o.URL = nullable(url)
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewSourceError(s.Name(), err)
	}
	return offers, nil
}

func nullable(ns sql.NullString) offer.RawField {
	if !ns.Valid {
		return offer.Null()
	}
	return offer.FromNullableCell(&ns.String)
}
