// Package postgres loads the static facility set from PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lifeguard/lifeguard/internal/facility"
	"github.com/lifeguard/lifeguard/pkg/geo"
)

// Schema creates the facilities table used by Loader.
const Schema = `
	CREATE TABLE IF NOT EXISTS facilities (
		id         TEXT PRIMARY KEY,
		category   TEXT NOT NULL CHECK (category IN ('Hospital', 'Police', 'Ambulance')),
		name       TEXT NOT NULL,
		address    TEXT NOT NULL DEFAULT '',
		latitude   DOUBLE PRECISION NOT NULL CHECK (latitude BETWEEN -90 AND 90),
		longitude  DOUBLE PRECISION NOT NULL CHECK (longitude BETWEEN -180 AND 180),
		contact    TEXT NOT NULL DEFAULT '',
		position   INTEGER NOT NULL DEFAULT 0
	)
`

// Querier is the subset of pgxpool.Pool used by Loader.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Loader reads facilities from the facilities table.
type Loader struct {
	db Querier
}

// NewLoader creates a new facility loader.
func NewLoader(db Querier) *Loader {
	return &Loader{db: db}
}

// Load returns every facility in registration order (position, then id).
func (l *Loader) Load(ctx context.Context) ([]facility.Facility, error) {
	query := `
		SELECT id, category, name, address, latitude, longitude, contact
		FROM facilities
		ORDER BY position, id
	`

	rows, err := l.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query facilities: %w", err)
	}
	defer rows.Close()

	var facilities []facility.Facility
	for rows.Next() {
		var (
			f        facility.Facility
			category string
			lat, lng float64
		)

		if err := rows.Scan(&f.ID, &category, &f.Name, &f.Address, &lat, &lng, &f.Contact); err != nil {
			return nil, fmt.Errorf("scan facility: %w", err)
		}

		f.Category, err = facility.ParseCategory(category)
		if err != nil {
			return nil, fmt.Errorf("facility %s: %w", f.ID, err)
		}
		f.Location = geo.Coordinate{Latitude: lat, Longitude: lng}

		facilities = append(facilities, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facilities: %w", err)
	}

	return facilities, nil
}
