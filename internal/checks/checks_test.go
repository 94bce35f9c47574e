package checks

import (
	"context"
	"strings"

	"github.com/opensource-health/kestrel/internal/cdm"
	"github.com/opensource-health/kestrel/internal/domain"
)

// fakeExec satisfies domain.Executor with canned answers keyed by
// query substring. Unmatched queries return zero.
type fakeExec struct {
	dialect string

	// scalar answers: first key contained in the query wins
	scalars map[string]int64
	floats  map[string]float64
	columns map[string][]float64
	rows    map[string][]map[string]any

	err error
}

func newFakeExec() *fakeExec {
	return &fakeExec{
		dialect: "sqlite",
		scalars: map[string]int64{},
		floats:  map[string]float64{},
		columns: map[string][]float64{},
		rows:    map[string][]map[string]any{},
	}
}

// lookupInt returns the answer of the longest key contained in the
// query, so overlapping keys stay deterministic.
func (f *fakeExec) lookupInt(query string) int64 {
	best := -1
	var answer int64
	for k, v := range f.scalars {
		if strings.Contains(query, k) && len(k) > best {
			best = len(k)
			answer = v
		}
	}
	return answer
}

func (f *fakeExec) ScalarInt(_ context.Context, query string, _ ...any) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.lookupInt(query), nil
}

func (f *fakeExec) ScalarFloat(_ context.Context, query string, _ ...any) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	for k, v := range f.floats {
		if strings.Contains(query, k) {
			return v, nil
		}
	}
	return float64(f.lookupInt(query)), nil
}

func (f *fakeExec) FloatColumn(_ context.Context, query string, _ ...any) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	for k, v := range f.columns {
		if strings.Contains(query, k) {
			return v, nil
		}
	}
	return nil, nil
}

func (f *fakeExec) Rows(_ context.Context, query string, _ int, _ ...any) ([]map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	for k, v := range f.rows {
		if strings.Contains(query, k) {
			return v, nil
		}
	}
	return nil, nil
}

func (f *fakeExec) DatabaseID() string  { return "test-cdm" }
func (f *fakeExec) DialectName() string { return f.dialect }

func (f *fakeExec) Ping(context.Context) error { return nil }
func (f *fakeExec) Close() error               { return nil }

// testEnv wires a fake executor into a rule environment with the
// default configuration and a fixed table row count.
func testEnv(exec *fakeExec, rowCount int64) *Env {
	cfg := domain.DefaultChecksConfig()
	return &Env{
		Exec: exec,
		Q:    cdm.NewQueries(exec.DialectName()),
		Cfg:  &cfg,
		RowCount: func(context.Context, string) (int64, error) {
			return rowCount, nil
		},
	}
}
