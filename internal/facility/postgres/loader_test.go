package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeguard/lifeguard/internal/facility"
	"github.com/lifeguard/lifeguard/internal/facility/postgres"
)

// fakeRows serves fixed rows of (id, category, name, address, lat, lng, contact).
type fakeRows struct {
	rows    [][]any
	pos     int
	err     error
	closed  bool
	scanErr error
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.pos-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.rows[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: want %d destinations, got %d", len(row), len(dest))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *float64:
			*p = row[i].(float64)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

type fakeQuerier struct {
	rows  *fakeRows
	err   error
	query string
}

func (q *fakeQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	q.query = sql
	if q.err != nil {
		return nil, q.err
	}
	return q.rows, nil
}

func TestLoader_Load(t *testing.T) {
	rows := &fakeRows{rows: [][]any{
		{"HOSP-001", "Hospital", "City General Trauma Center", "1 Main St", 37.7749, -122.4194, "+15550000001"},
		{"POL-001", "Police", "Central Police Station", "", 37.7849, -122.4094, ""},
	}}
	q := &fakeQuerier{rows: rows}

	facilities, err := postgres.NewLoader(q).Load(context.Background())
	require.NoError(t, err)

	require.Len(t, facilities, 2)
	assert.Equal(t, "HOSP-001", facilities[0].ID)
	assert.Equal(t, facility.CategoryHospital, facilities[0].Category)
	assert.Equal(t, "1 Main St", facilities[0].Address)
	assert.InDelta(t, 37.7749, facilities[0].Location.Latitude, 1e-9)
	assert.Equal(t, facility.CategoryPolice, facilities[1].Category)
	assert.Contains(t, q.query, "ORDER BY position, id")
	assert.True(t, rows.closed)
}

func TestLoader_Load_Errors(t *testing.T) {
	tests := []struct {
		name    string
		q       *fakeQuerier
		wantErr string
	}{
		{
			name:    "query fails",
			q:       &fakeQuerier{err: errors.New("relation does not exist")},
			wantErr: "query facilities",
		},
		{
			name: "unknown category",
			q: &fakeQuerier{rows: &fakeRows{rows: [][]any{
				{"FIRE-001", "Fire", "Station 1", "", 1.0, 2.0, ""},
			}}},
			wantErr: "facility FIRE-001",
		},
		{
			name:    "scan fails",
			q:       &fakeQuerier{rows: &fakeRows{rows: [][]any{{"x"}}, scanErr: errors.New("bad column")}},
			wantErr: "scan facility",
		},
		{
			name:    "iteration fails",
			q:       &fakeQuerier{rows: &fakeRows{err: errors.New("connection reset")}},
			wantErr: "iterate facilities",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := postgres.NewLoader(tt.q).Load(context.Background())
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
