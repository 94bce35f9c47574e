// Package profile provides cached table-level statistics for the
// monitored CDM.
package profile

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-health/kestrel/internal/cdm"
	"github.com/opensource-health/kestrel/internal/domain"
)

const defaultTTL = 5 * time.Minute

// Service answers table row-count queries, caching results so that
// check rules sharing a table do not re-count it on every run.
type Service struct {
	exec  domain.Executor
	cache domain.Cache
	q     cdm.Queries
	ttl   time.Duration
}

// NewService creates a new profile service. A nil cache disables
// caching; every call then hits the database.
func NewService(exec domain.Executor, cache domain.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{
		exec:  exec,
		cache: cache,
		q:     cdm.NewQueries(exec.DialectName()),
		ttl:   ttl,
	}
}

// RowCount returns the number of rows in a CDM table.
func (s *Service) RowCount(ctx context.Context, table string) (int64, error) {
	if table == "" {
		return 0, fmt.Errorf("table is required")
	}

	key := cacheKey(table)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, s.exec.DatabaseID(), key); err == nil && data != nil {
			if count, perr := strconv.ParseInt(string(data), 10, 64); perr == nil {
				return count, nil
			}
			// Unparseable entry: fall through and re-count.
		}
	}

	count, err := s.exec.ScalarInt(ctx, s.q.RowCount(table))
	if err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, s.exec.DatabaseID(), key, []byte(strconv.FormatInt(count, 10)), s.ttl)
	}

	return count, nil
}

// Invalidate drops the cached count for a table.
func (s *Service) Invalidate(ctx context.Context, table string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, s.exec.DatabaseID(), cacheKey(table))
}

// Counts returns row counts for a set of tables, keyed by table name.
func (s *Service) Counts(ctx context.Context, tables []string) (map[string]int64, error) {
	out := make(map[string]int64, len(tables))
	for _, table := range tables {
		count, err := s.RowCount(ctx, table)
		if err != nil {
			return nil, err
		}
		out[table] = count
	}
	return out, nil
}

// Getter returns a row-count function for the check engine.
func (s *Service) Getter() func(ctx context.Context, table string) (int64, error) {
	return s.RowCount
}

func cacheKey(table string) string {
	return "rowcount:" + table
}
