// Package databasetest provides an in-memory database.DB fake for inspector
// tests. A pattern is split on whitespace and every token must appear as a
// substring of the query text plus its bind arguments, in registration
// order, so tests can stub exactly the catalog queries an inspector issues
// without a live server. Matching against the bind arguments lets a test
// distinguish the same parameterized query issued for different tables.
package databasetest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/koustreak/pgscope/internal/database"
	"github.com/koustreak/pgscope/internal/errs"
)

type stub struct {
	pattern string
	cols    []string
	rows    [][]any
	err     error
}

// FakeDB implements database.DB from registered stubs.
type FakeDB struct {
	mu      sync.Mutex
	stubs   []stub
	pingErr error
}

// SetPingErr makes Ping fail, simulating an unreachable server.
func (f *FakeDB) SetPingErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

// New returns an empty FakeDB. Unmatched queries fail with ErrKindQueryFailed.
func New() *FakeDB {
	return &FakeDB{}
}

// Register stubs every query containing pattern to return the given columns
// and rows. Earlier registrations win when multiple patterns match.
func (f *FakeDB) Register(pattern string, cols []string, rows [][]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs = append(f.stubs, stub{pattern: pattern, cols: cols, rows: rows})
}

// RegisterErr stubs every query containing pattern to fail with err.
func (f *FakeDB) RegisterErr(pattern string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs = append(f.stubs, stub{pattern: pattern, err: err})
}

func (f *FakeDB) find(sql string, args []any) (stub, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	haystack := strings.ToLower(sql)
	if len(args) > 0 {
		haystack += " " + strings.ToLower(fmt.Sprintln(args...))
	}
	for _, s := range f.stubs {
		if matches(haystack, s.pattern) {
			return s, true
		}
	}
	return stub{}, false
}

func matches(haystack, pattern string) bool {
	for _, token := range strings.Fields(strings.ToLower(pattern)) {
		if !strings.Contains(haystack, token) {
			return false
		}
	}
	return true
}

// --- database.DB implementation ---

func (f *FakeDB) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *FakeDB) Close() {}

func (f *FakeDB) Query(_ context.Context, sql string, args ...any) (database.Rows, error) {
	s, ok := f.find(sql, args)
	if !ok {
		return nil, errs.New(errs.ErrKindQueryFailed, "no stub for query: "+firstLine(sql))
	}
	if s.err != nil {
		return nil, s.err
	}
	return &fakeRows{cols: s.cols, rows: s.rows, idx: -1}, nil
}

func (f *FakeDB) QueryRow(_ context.Context, sql string, args ...any) database.Row {
	s, ok := f.find(sql, args)
	if !ok {
		return &fakeRow{err: errs.New(errs.ErrKindQueryFailed, "no stub for query: "+firstLine(sql))}
	}
	if s.err != nil {
		return &fakeRow{err: s.err}
	}
	if len(s.rows) == 0 {
		return &fakeRow{err: errs.New(errs.ErrKindNotFound, "no rows")}
	}
	return &fakeRow{vals: s.rows[0]}
}

func firstLine(sql string) string {
	sql = strings.TrimSpace(sql)
	if i := strings.IndexByte(sql, '\n'); i >= 0 {
		sql = sql[:i]
	}
	return sql
}

// --- rows / row fakes ---

type fakeRows struct {
	cols []string
	rows [][]any
	idx  int
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	return scanInto(r.rows[r.idx], dest)
}

func (r *fakeRows) Columns() ([]string, error) { return r.cols, nil }

func (r *fakeRows) Values() ([]any, error) { return r.rows[r.idx], nil }

func (r *fakeRows) Close() {}

func (r *fakeRows) Err() error { return nil }

type fakeRow struct {
	vals []any
	err  error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.vals, dest)
}

// scanInto copies src values into the typed destinations tests use.
func scanInto(src []any, dest []any) error {
	for i, d := range dest {
		if i >= len(src) {
			break
		}
		switch dv := d.(type) {
		case *string:
			if s, ok := src[i].(string); ok {
				*dv = s
			}
		case **string:
			switch v := src[i].(type) {
			case nil:
				*dv = nil
			case string:
				s := v
				*dv = &s
			case *string:
				*dv = v
			}
		case *bool:
			if b, ok := src[i].(bool); ok {
				*dv = b
			}
		case *int:
			*dv = int(asInt64(src[i]))
		case *int64:
			*dv = asInt64(src[i])
		case *float64:
			switch v := src[i].(type) {
			case float64:
				*dv = v
			case int:
				*dv = float64(v)
			case int64:
				*dv = float64(v)
			}
		case *[]string:
			if ss, ok := src[i].([]string); ok {
				*dv = ss
			}
		case *any:
			*dv = src[i]
		}
	}
	return nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}
