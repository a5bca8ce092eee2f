package facility

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lifeguard/lifeguard/pkg/geo"
)

// DefaultLookupTimeout bounds the primary lookup when no timeout is configured.
const DefaultLookupTimeout = 4 * time.Second

// FallbackLookup queries a primary source (typically a remote finder) and
// substitutes the fallback when the primary errors, times out, or answers
// with no facilities.
type FallbackLookup struct {
	Primary  Lookup
	Fallback Lookup
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// Facilities implements Lookup.
func (l *FallbackLookup) Facilities(ctx context.Context, origin geo.Coordinate) ([]Facility, error) {
	if l.Primary == nil {
		return l.Fallback.Facilities(ctx, origin)
	}

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}

	primaryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	facilities, err := l.Primary.Facilities(primaryCtx, origin)
	if err == nil && len(facilities) > 0 {
		l.Logger.Debug().
			Int("count", len(facilities)).
			Dur("duration", time.Since(start)).
			Msg("facility lookup served by primary source")
		return facilities, nil
	}

	if err == nil {
		err = ErrNoFacilities
	}
	l.Logger.Warn().
		Err(err).
		Dur("duration", time.Since(start)).
		Msg("primary facility lookup unavailable, using fallback dataset")

	if l.Fallback == nil {
		return nil, err
	}
	return l.Fallback.Facilities(ctx, origin)
}
