// Package store implements the producer-side contract the Orch engine
// consumes from (spec.md §4.1, C1): a selectable readiness primitive per
// table, a non-blocking bounded pop of pending mutations in publication
// order, and a direct get by key. Grounded on the teacher's go-redis usage
// (pkg/newtron/device/sonic/configdb.go, pipeline.go) for the Redis hash-
// per-key shape ("TABLE|key" -> HSET fields), adapted here to the consumer
// side: this package pops, it never pushes a composite config.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Op is the mutation kind the store reports for a key.
type Op int

const (
	OpSet Op = iota
	OpDel
)

func (o Op) String() string {
	if o == OpDel {
		return "DEL"
	}
	return "SET"
}

// Field is one (name, value) pair in publication order.
type Field struct {
	Name  string
	Value string
}

// FieldList is an ordered list of fields, with last-writer-wins lookup.
type FieldList []Field

// Get returns the last value written for name, and whether it was present.
func (f FieldList) Get(name string) (string, bool) {
	val, ok := "", false
	for _, fld := range f {
		if fld.Name == name {
			val, ok = fld.Value, true
		}
	}
	return val, ok
}

// ToMap collapses the field list into a map, last-writer-wins.
func (f FieldList) ToMap() map[string]string {
	m := make(map[string]string, len(f))
	for _, fld := range f {
		m[fld.Name] = fld.Value
	}
	return m
}

// Entry is one popped mutation.
type Entry struct {
	Key    string
	Op     Op
	Fields FieldList
}

// Table is the per-table contract an Orch consumes (spec.md C1).
type Table interface {
	// Name is the table's identifier as it appears in store keys.
	Name() string
	// Ready returns a channel that is sent to (or closed) whenever the
	// table has pending mutations available to pop. It is the
	// "selectable readiness primitive" of §4.1.
	Ready() <-chan struct{}
	// PopBatch drains up to limit pending mutations, in publication
	// order. Returns an empty slice if nothing is pending.
	PopBatch(limit int) ([]Entry, error)
	// Get returns the fully committed fields for key, or nil if the key
	// does not exist.
	Get(key string) (map[string]string, error)
}

// RedisTable implements Table against a single go-redis hash-per-key table,
// driven by Redis keyspace notifications (requires
// "notify-keyspace-events KEA" on the server, as SONiC's redis instances are
// configured).
type RedisTable struct {
	name   string
	client *redis.Client
	ctx    context.Context
	db     int

	ready  chan struct{}
	sub    *redis.PubSub
	queue  []Entry
	queueMu chan struct{} // binary semaphore guarding queue
}

// NewRedisTable subscribes to keyspace events for the given table name on
// the given Redis DB and returns a Table. The caller must call Close when
// done (handled by the daemon's shutdown path, spec.md §5).
func NewRedisTable(client *redis.Client, db int, name string) *RedisTable {
	t := &RedisTable{
		name:    name,
		client:  client,
		ctx:     context.Background(),
		db:      db,
		ready:   make(chan struct{}, 1),
		queueMu: make(chan struct{}, 1),
	}
	t.queueMu <- struct{}{}

	pattern := fmt.Sprintf("__keyspace@%d__:%s|*", db, name)
	t.sub = client.PSubscribe(t.ctx, pattern)
	go t.pump()
	return t
}

func (t *RedisTable) Name() string { return t.name }

func (t *RedisTable) Ready() <-chan struct{} { return t.ready }

// pump translates keyspace notifications into queued Entry pops. Real
// orchagent relies on SWSS's SubscriberStateTable, which already decodes
// the channel payload into (key, operation, field-values); this is the
// direct Redis equivalent using PSUBSCRIBE + a follow-up HGETALL, since
// go-redis exposes only the raw pub/sub primitive.
func (t *RedisTable) pump() {
	ch := t.sub.Channel()
	for msg := range ch {
		key := strings.TrimPrefix(msg.Channel, fmt.Sprintf("__keyspace@%d__:", t.db))
		parts := strings.SplitN(key, "|", 2)
		if len(parts) != 2 {
			continue
		}
		redisKey := parts[0] + "|" + parts[1]

		var entry Entry
		entry.Key = parts[1]
		if msg.Payload == "del" || msg.Payload == "expired" {
			entry.Op = OpDel
		} else {
			vals, err := t.client.HGetAll(t.ctx, redisKey).Result()
			if err != nil || len(vals) == 0 {
				entry.Op = OpDel
			} else {
				entry.Op = OpSet
				for k, v := range vals {
					entry.Fields = append(entry.Fields, Field{Name: k, Value: v})
				}
			}
		}

		<-t.queueMu
		t.queue = append(t.queue, entry)
		t.queueMu <- struct{}{}

		select {
		case t.ready <- struct{}{}:
		default:
		}
	}
}

// PopBatch drains up to limit queued entries, in arrival order.
func (t *RedisTable) PopBatch(limit int) ([]Entry, error) {
	<-t.queueMu
	defer func() { t.queueMu <- struct{}{} }()

	if limit <= 0 || limit > len(t.queue) {
		limit = len(t.queue)
	}
	batch := t.queue[:limit]
	t.queue = t.queue[limit:]
	return batch, nil
}

// Writer lets a component push fields back into its own table — used by
// mirrororch to mirror session status back under MIRROR_SESSION_TABLE for
// observers such as aclorch's mirror rules (spec.md §4.6).
type Writer interface {
	Set(key string, fields map[string]string) error
}

// Set performs a direct HSET for key.
func (t *RedisTable) Set(key string, fields map[string]string) error {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := t.client.HSet(t.ctx, fmt.Sprintf("%s|%s", t.name, key), args...).Err(); err != nil {
		return fmt.Errorf("store: set %s|%s: %w", t.name, key, err)
	}
	return nil
}

// Get performs a direct HGETALL for key.
func (t *RedisTable) Get(key string) (map[string]string, error) {
	vals, err := t.client.HGetAll(t.ctx, fmt.Sprintf("%s|%s", t.name, key)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: get %s|%s: %w", t.name, key, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return vals, nil
}

// Close unsubscribes from keyspace events.
func (t *RedisTable) Close() error {
	return t.sub.Close()
}

// PollInterval is how long the daemon's top-level select waits between
// init-done checks when no table has fired (spec.md §5 "small timeout used
// to drive the init-done post-condition").
const PollInterval = 1 * time.Second
