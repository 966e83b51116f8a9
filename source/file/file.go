// Package file reads offers from local JSON or CSV files.
package file

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "esco-optimizer/pkg/errors"
	"esco-optimizer/pkg/offer"
	"esco-optimizer/source"
)

// Format of an offer document.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported offer file %q: want .json or .csv", path)
	}
}

// Decode reads offers from r. JSON documents are an array of offer records;
// CSV documents have a header row of record keys.
func Decode(r io.Reader, format Format) ([]offer.Offer, error) {
	switch format {
	case FormatJSON:
		var offers []offer.Offer
		if err := json.NewDecoder(r).Decode(&offers); err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}
		return offers, nil
	case FormatCSV:
		return decodeCSV(r)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func decodeCSV(r io.Reader) ([]offer.Offer, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("csv: empty document (no header row)")
	}

	headers := records[0]
	for i := range headers {
		headers[i] = strings.ToUpper(strings.TrimSpace(headers[i]))
	}

	offers := make([]offer.Offer, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) != len(headers) {
			return nil, fmt.Errorf("csv: row %d has %d columns, expected %d", i+2, len(record), len(headers))
		}
		row := make(map[string]string, len(headers))
		for j, h := range headers {
			row[h] = record[j]
		}
		offers = append(offers, offer.FromRow(row))
	}
	return offers, nil
}

// Source serves offers from a single file, or from <dir>/<zip>.json or
// <dir>/<zip>.csv when Path is a directory.
type Source struct {
	Path string
}

func New(path string) *Source {
	return &Source{Path: path}
}

func (s *Source) Name() string { return "file" }

func (s *Source) Fetch(ctx context.Context, q source.Query) ([]offer.Offer, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	path, err := s.resolve(q.ZipCode)
	if err != nil {
		return nil, apperrors.NewSourceError(s.Name(), err)
	}

	offers, err := Load(path)
	if err != nil {
		return nil, apperrors.NewSourceError(s.Name(), err)
	}
	return offers, nil
}

// Ping checks that the configured path exists.
func (s *Source) Ping(ctx context.Context) error {
	_, err := os.Stat(s.Path)
	return err
}

func (s *Source) resolve(zip string) (string, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return s.Path, nil
	}
	for _, ext := range []string{".json", ".csv"} {
		p := filepath.Join(s.Path, zip+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no offer file for zip %s in %s", zip, s.Path)
}

// Load reads an offer file, inferring the format from its extension.
func Load(path string) ([]offer.Offer, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	offers, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return offers, nil
}
