package testfixtures

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bohemiyan/ugibdd"
)

// Table is an in-memory ugibdd.Table. Rows are stored as decoded JSON objects
// so the fake sees exactly what a REST backend would.
type Table struct {
	mu       sync.Mutex
	now      func() time.Time
	rows     map[string][]map[string]any
	nextID   map[string]int64
	failures map[string]error
	calls    []string
}

// NewTable returns an empty table stamping created_at with now.
func NewTable(now func() time.Time) *Table {
	if now == nil {
		now = time.Now
	}
	return &Table{
		now:      now,
		rows:     make(map[string][]map[string]any),
		nextID:   make(map[string]int64),
		failures: make(map[string]error),
	}
}

// FailOn makes every call of op ("select", "insert", "update", "delete",
// "count") against table return err. A nil err clears the failure.
func (t *Table) FailOn(op, table string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := op + ":" + table
	if err == nil {
		delete(t.failures, key)
		return
	}
	t.failures[key] = err
}

// Calls returns the "op:table" log of every call made so far.
func (t *Table) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

// Seed inserts rows directly, bypassing failure injection.
func (t *Table) Seed(table string, rows ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, row := range rows {
		m, err := toMap(row)
		if err != nil {
			panic(err)
		}
		t.store(table, m)
	}
}

// Rows returns a copy of the stored rows of table.
func (t *Table) Rows(table string) []map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]map[string]any, 0, len(t.rows[table]))
	for _, r := range t.rows[table] {
		out = append(out, clone(r))
	}
	return out
}

func (t *Table) Select(_ context.Context, table string, q ugibdd.Query, dest any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("select", table); err != nil {
		return err
	}

	matched, err := t.match(table, q.Filters)
	if err != nil {
		return err
	}
	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			c := compare(matched[i][q.OrderBy], matched[j][q.OrderBy])
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]map[string]any, 0, len(matched))
	for _, r := range matched {
		if len(q.Columns) == 0 {
			out = append(out, clone(r))
			continue
		}
		proj := make(map[string]any, len(q.Columns))
		for _, c := range q.Columns {
			proj[c] = r[c]
		}
		out = append(out, proj)
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, dest)
}

func (t *Table) Insert(_ context.Context, table string, row any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("insert", table); err != nil {
		return err
	}
	m, err := toMap(row)
	if err != nil {
		return err
	}
	stored := t.store(table, m)
	payload, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, row)
}

func (t *Table) Update(_ context.Context, table string, patch map[string]any, filters ...ugibdd.Filter) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("update", table); err != nil {
		return err
	}
	if len(filters) == 0 {
		return fmt.Errorf("%w: update without filters", ugibdd.ErrInvalidInput)
	}
	normalized, err := toMap(patch)
	if err != nil {
		return err
	}
	matched, err := t.match(table, filters)
	if err != nil {
		return err
	}
	for _, r := range matched {
		for k, v := range normalized {
			r[k] = v
		}
	}
	return nil
}

func (t *Table) Delete(_ context.Context, table string, filters ...ugibdd.Filter) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("delete", table); err != nil {
		return err
	}
	if len(filters) == 0 {
		return fmt.Errorf("%w: delete without filters", ugibdd.ErrInvalidInput)
	}
	kept := t.rows[table][:0]
	for _, r := range t.rows[table] {
		ok, err := matches(r, filters)
		if err != nil {
			return err
		}
		if !ok {
			kept = append(kept, r)
		}
	}
	t.rows[table] = kept
	return nil
}

func (t *Table) Count(_ context.Context, table string, filters ...ugibdd.Filter) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("count", table); err != nil {
		return 0, err
	}
	matched, err := t.match(table, filters)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (t *Table) enter(op, table string) error {
	t.calls = append(t.calls, op+":"+table)
	return t.failures[op+":"+table]
}

// store assigns an id and created_at when missing and appends the row.
func (t *Table) store(table string, m map[string]any) map[string]any {
	id, _ := m["id"].(float64)
	if id == 0 {
		t.nextID[table]++
		m["id"] = float64(t.nextID[table])
	} else if int64(id) > t.nextID[table] {
		t.nextID[table] = int64(id)
	}
	if _, ok := m["created_at"]; !ok {
		m["created_at"] = t.now().UTC().Format(time.RFC3339Nano)
	}
	t.rows[table] = append(t.rows[table], m)
	return clone(m)
}

func (t *Table) match(table string, filters []ugibdd.Filter) ([]map[string]any, error) {
	var out []map[string]any
	for _, r := range t.rows[table] {
		ok, err := matches(r, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func matches(row map[string]any, filters []ugibdd.Filter) (bool, error) {
	for _, f := range filters {
		want, err := normalize(f.Value)
		if err != nil {
			return false, err
		}
		got := row[f.Column]
		var ok bool
		switch f.Op {
		case ugibdd.OpEq:
			ok = got != nil && compare(got, want) == 0
		case ugibdd.OpNeq:
			ok = got == nil || compare(got, want) != 0
		case ugibdd.OpGt:
			ok = got != nil && compare(got, want) > 0
		case ugibdd.OpGte:
			ok = got != nil && compare(got, want) >= 0
		case ugibdd.OpLt:
			ok = got != nil && compare(got, want) < 0
		case ugibdd.OpLte:
			ok = got != nil && compare(got, want) <= 0
		case ugibdd.OpIs:
			ok = got == nil && want == nil
		case ugibdd.OpIn:
			list, _ := want.([]any)
			for _, v := range list {
				if got != nil && compare(got, v) == 0 {
					ok = true
					break
				}
			}
		default:
			return false, fmt.Errorf("%w: unsupported operator %q", ugibdd.ErrInvalidInput, f.Op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// compare orders JSON scalars. Strings that both parse as RFC 3339 compare as times.
func compare(a, b any) int {
	switch av := a.(type) {
	case float64:
		bv, _ := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		bv, _ := b.(string)
		at, aerr := time.Parse(time.RFC3339Nano, av)
		bt, berr := time.Parse(time.RFC3339Nano, bv)
		if aerr == nil && berr == nil {
			return at.Compare(bt)
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case bool:
		bv, _ := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case nil:
		if b == nil {
			return 0
		}
		return -1
	}
	return 1
}

func normalize(v any) (any, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(payload, &out)
	return out, err
}

func toMap(v any) (map[string]any, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	err = json.Unmarshal(payload, &out)
	return out, err
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
