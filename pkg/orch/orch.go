// Package orch implements the generic consume/merge/apply/retry loop shared
// by every subsystem orch (spec.md §4.1, C2): pop a batch from a store.Table,
// merge it into an insertion-ordered pending map (last-writer-wins per
// field, DEL always replaces), then hand the merged pending map to the
// subsystem's doTask, which consumes entries in insertion order and decides
// Consumed / Retry / Invalid per entry.
package orch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sonic-net/go-orchagent/pkg/record"
	"github.com/sonic-net/go-orchagent/pkg/store"
	"github.com/sonic-net/go-orchagent/pkg/util"
)

// TaskResult is what a doTask handler returns for one pending entry.
type TaskResult int

const (
	// Consumed removes the entry from pending; it will not be seen again.
	Consumed TaskResult = iota
	// Retry leaves the entry in pending; it is retried on the next
	// doTask invocation for this table (triggered by any subsequent
	// table event, or an explicit Poke after a sibling component
	// installs the missing dependency).
	Retry
	// Invalid removes the entry from pending and logs it — a malformed
	// entry is never retried (spec.md §7 ParseError).
	Invalid
)

// PendingEntry is one entry in a table's pending map: the merged view of
// every SET/DEL published for a key since it was last consumed.
type PendingEntry struct {
	Key    string
	Op     store.Op
	Fields store.FieldList
}

// Handler is a subsystem's doTask for one table: it is handed the ordered
// pending entries and returns, for each key, the TaskResult. Implementations
// iterate in the order given (spec.md "doTask iterates pending in insertion
// order") and may mutate subsystem-owned state and call into the SAD.
type Handler func(entries []PendingEntry) map[string]TaskResult

// TableConsumer binds one store.Table to one Handler plus its own pending
// map and insertion order.
type TableConsumer struct {
	table   store.Table
	handler Handler

	order   []string // insertion order of currently-pending keys
	pending map[string]PendingEntry
}

// NewTableConsumer constructs a consumer for a table.
func NewTableConsumer(table store.Table, handler Handler) *TableConsumer {
	return &TableConsumer{
		table:   table,
		handler: handler,
		pending: make(map[string]PendingEntry),
	}
}

func (c *TableConsumer) Name() string { return c.table.Name() }

func (c *TableConsumer) Ready() <-chan struct{} { return c.table.Ready() }

// PendingCount reports how many keys are currently pending, for metrics and
// tests.
func (c *TableConsumer) PendingCount() int { return len(c.pending) }

// Execute pops a batch (bounded by batchLimit, 0 means unbounded), merges it
// into pending, records each popped entry if rec is non-nil, and then runs
// doTask over the full current pending set in insertion order (spec.md
// §4.1).
func (c *TableConsumer) Execute(batchLimit int, rec record.Logger) error {
	entries, err := c.table.PopBatch(batchLimit)
	if err != nil {
		return fmt.Errorf("orch: popping %s: %w", c.table.Name(), err)
	}

	for _, e := range entries {
		c.merge(e)
		if rec != nil {
			rec.Record(record.Entry{
				Table:  c.table.Name(),
				Key:    e.Key,
				Op:     e.Op.String(),
				Fields: e.Fields.ToMap(),
			})
		}
	}

	return c.doTask()
}

// merge implements the pending-merge rule (spec.md §4.1, property #1/#2):
// a new SET keeps the existing op but merges fields last-writer-wins; a new
// DEL always replaces the entry outright regardless of the prior op.
func (c *TableConsumer) merge(e store.Entry) {
	existing, ok := c.pending[e.Key]
	if !ok {
		c.order = append(c.order, e.Key)
		c.pending[e.Key] = PendingEntry{Key: e.Key, Op: e.Op, Fields: append(store.FieldList(nil), e.Fields...)}
		return
	}

	if e.Op == store.OpDel {
		c.pending[e.Key] = PendingEntry{Key: e.Key, Op: store.OpDel, Fields: nil}
		return
	}

	// New op is SET: merge fields onto the existing entry, preserving the
	// existing op (which may itself be SET — there is no DEL-then-SET
	// special case in the spec beyond "last-writer-wins per field").
	merged := append(store.FieldList(nil), existing.Fields...)
	for _, f := range e.Fields {
		merged = upsertField(merged, f)
	}
	c.pending[e.Key] = PendingEntry{Key: e.Key, Op: existing.Op, Fields: merged}
}

func upsertField(fields store.FieldList, f store.Field) store.FieldList {
	for i, existing := range fields {
		if existing.Name == f.Name {
			fields[i].Value = f.Value
			return fields
		}
	}
	return append(fields, f)
}

// doTask hands the handler every currently pending entry, in insertion
// order, then applies the returned verdicts: Consumed/Invalid entries are
// removed (Invalid is also logged); Retry entries stay, keeping their
// position for the next call.
func (c *TableConsumer) doTask() error {
	if len(c.order) == 0 {
		return nil
	}

	snapshot := make([]PendingEntry, 0, len(c.order))
	for _, k := range c.order {
		snapshot = append(snapshot, c.pending[k])
	}

	results := c.handler(snapshot)

	var nextOrder []string
	for _, k := range c.order {
		switch results[k] {
		case Retry:
			nextOrder = append(nextOrder, k)
		case Invalid:
			util.WithFields(map[string]interface{}{"table": c.table.Name(), "key": k}).
				Warn("orch: discarding invalid entry")
			delete(c.pending, k)
		default: // Consumed
			delete(c.pending, k)
		}
	}
	c.order = nextOrder
	return nil
}

// Poke re-runs doTask over the current pending set without popping new
// entries from the store. Used when a sibling component installs a
// dependency another table's entries were waiting on (spec.md §4.1 "a
// separate 'poke' after a sibling component installs the dependency").
func (c *TableConsumer) Poke() error { return c.doTask() }

// ParseReference parses a "[TABLE:NAME]" reference string (spec.md §4.1).
func ParseReference(ref string) (table, name string, err error) {
	ref = strings.TrimSpace(ref)
	if len(ref) < 2 || ref[0] != '[' || ref[len(ref)-1] != ']' {
		return "", "", util.NewParseError("", "", "reference", ref, "[TABLE:NAME]")
	}
	inner := ref[1 : len(ref)-1]
	parts := strings.Split(inner, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", util.NewParseError("", "", "reference", ref, "exactly one ':' separator")
	}
	return parts[0], parts[1], nil
}

// ResolveResult is the outcome of resolving a field reference against a set
// of type maps.
type ResolveResult int

const (
	Success ResolveResult = iota
	NotFound
	Unresolved
	Duplicate
)

// ResolveFieldRef resolves a "[TABLE:NAME]"-style field value against
// typeMaps, a map from table name to a lookup function returning (handle,
// found). It returns Success with the handle, NotFound if the table isn't
// known, Unresolved if the table is known but the name isn't present yet
// (the usual Retry trigger), and never Duplicate — nor does
// ResolveFieldRefArray, which only forwards these results. Duplicate is for
// callers that discover the same handle resolves via more than one
// candidate table.
func ResolveFieldRef(typeMaps map[string]func(name string) (handle interface{}, ok bool), fieldName, value string) (ResolveResult, interface{}) {
	table, name, err := ParseReference(value)
	if err != nil {
		return NotFound, nil
	}
	lookup, ok := typeMaps[table]
	if !ok {
		return NotFound, nil
	}
	handle, ok := lookup(name)
	if !ok {
		return Unresolved, nil
	}
	return Success, handle
}

// ResolveFieldRefArray resolves a comma-separated list of "[TABLE:NAME]"
// references. It stops and returns the first non-Success result it hits so
// callers can Retry or reject the whole entry — spec.md's ACL/QoS/buffer
// object-reference fields require every element to resolve before the
// operation proceeds.
func ResolveFieldRefArray(typeMaps map[string]func(name string) (handle interface{}, ok bool), fieldName, value string) (ResolveResult, []interface{}) {
	if value == "" {
		return Success, nil
	}
	var handles []interface{}
	for _, v := range strings.Split(value, ",") {
		res, handle := ResolveFieldRef(typeMaps, fieldName, strings.TrimSpace(v))
		if res != Success {
			return res, nil
		}
		handles = append(handles, handle)
	}
	return Success, handles
}

// ParseIndexRange parses "lo-hi" or "n" into (low, high) with low <= high
// (spec.md §4.1).
func ParseIndexRange(spec string) (low, high int, err error) {
	spec = strings.TrimSpace(spec)
	if !strings.Contains(spec, "-") {
		n, err := strconv.Atoi(spec)
		if err != nil {
			return 0, 0, util.NewParseError("", "", "range", spec, "integer or 'lo-hi'")
		}
		return n, n, nil
	}
	parts := strings.SplitN(spec, "-", 2)
	lo, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	hi, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, util.NewParseError("", "", "range", spec, "'lo-hi' with integers")
	}
	if lo > hi {
		return 0, 0, util.NewParseError("", "", "range", spec, "lo <= hi")
	}
	return lo, hi, nil
}
