package numerator

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Mock objects

type mockRow struct {
	vals []any
	err  error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	for i, d := range dest {
		if i >= len(m.vals) {
			break
		}
		switch ptr := d.(type) {
		case *int64:
			*ptr = m.vals[i].(int64)
		case *bool:
			*ptr = m.vals[i].(bool)
		case *string:
			*ptr = m.vals[i].(string)
		}
	}
	return nil
}

type call struct {
	sql  string
	args []any
}

// mockQuerier simulates sys_sequences in memory and records every statement.
type mockQuerier struct {
	mu       sync.Mutex
	counters map[string]int64
	calls    []call

	// rowFunc, if set, answers QueryRow calls not aimed at sys_sequences.
	rowFunc func(sql string, args []any) pgx.Row
	err     error
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{counters: make(map[string]int64)}
}

func (m *mockQuerier) record(sql string, args []any) {
	m.calls = append(m.calls, call{sql: sql, args: args})
}

func (m *mockQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(sql, args)

	if m.err != nil {
		return &mockRow{err: m.err}
	}
	switch {
	case strings.Contains(sql, "current_val <= EXCLUDED.current_val"):
		office, target := args[0].(string), args[1].(int64)
		if cur, ok := m.counters[office]; ok && cur > target {
			return &mockRow{err: pgx.ErrNoRows}
		}
		m.counters[office] = target
		return &mockRow{vals: []any{target}}
	case strings.Contains(sql, "INSERT INTO sys_sequences"):
		office := args[0].(string)
		m.counters[office] += args[1].(int64)
		return &mockRow{vals: []any{m.counters[office]}}
	case strings.Contains(sql, "FROM sys_sequences"):
		v, ok := m.counters[args[0].(string)]
		if !ok {
			return &mockRow{err: pgx.ErrNoRows}
		}
		return &mockRow{vals: []any{v}}
	case m.rowFunc != nil:
		return m.rowFunc(sql, args)
	}
	return &mockRow{err: errors.New("unexpected query: " + sql)}
}

func (m *mockQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(sql, args)

	if m.err != nil {
		return pgconn.CommandTag{}, m.err
	}
	return pgconn.NewCommandTag("DELETE 3"), nil
}

func (m *mockQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("mockQuerier: Query not supported")
}

func (m *mockQuerier) roundTrips() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockQuerier) last() call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}
