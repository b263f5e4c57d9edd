// Package orchdaemon wires every subsystem orch into one process: it
// constructs the shared sad.Context (switch/VR/MAC/CPU-port singletons, per
// spec.md §9 "declared as an explicit context struct"), builds each *orch
// component in dependency order, subscribes the observer fabric across
// them, registers one orch.TableConsumer per store table, and runs the
// top-level select loop described in spec.md §5. Grounded on
// original_source/sonic-swss/orchagent/orchdaemon.cpp +
// original_source/sonic-swss/orchagent/saihelper.cpp for the bootstrap
// order and the select-with-timeout shape.
package orchdaemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sonic-net/go-orchagent/pkg/aclorch"
	"github.com/sonic-net/go-orchagent/pkg/bufferorch"
	"github.com/sonic-net/go-orchagent/pkg/copporch"
	"github.com/sonic-net/go-orchagent/pkg/fdborch"
	"github.com/sonic-net/go-orchagent/pkg/intfsorch"
	"github.com/sonic-net/go-orchagent/pkg/mirrororch"
	"github.com/sonic-net/go-orchagent/pkg/neighorch"
	"github.com/sonic-net/go-orchagent/pkg/orch"
	"github.com/sonic-net/go-orchagent/pkg/orchconfig"
	"github.com/sonic-net/go-orchagent/pkg/portorch"
	"github.com/sonic-net/go-orchagent/pkg/qosorch"
	"github.com/sonic-net/go-orchagent/pkg/record"
	"github.com/sonic-net/go-orchagent/pkg/routeorch"
	"github.com/sonic-net/go-orchagent/pkg/sad"
	"github.com/sonic-net/go-orchagent/pkg/store"
	"github.com/sonic-net/go-orchagent/pkg/util"
)

// TableFactory constructs (or looks up) the store.Table backing name. The
// daemon calls it once per table it subscribes to, plus once more for
// write-only tables (MIRROR_SESSION_TABLE status write-back reuses the
// subscribed table; COUNTERS is write-only and has no consumer).
type TableFactory func(name string) store.Table

// Components bundles every constructed subsystem orch, exposed for tests
// and for callers that want to drive one directly (e.g. a CLI "show"
// command reading portorch's catalog).
type Components struct {
	Context sad.Context
	Ports   *portorch.Catalog
	Intfs   *intfsorch.Orch
	Neigh   *neighorch.Orch
	Routes  *routeorch.Orch
	Fdb     *fdborch.Orch
	Mirror  *mirrororch.Orch
	Acl     *aclorch.Orch
	Qos     *qosorch.Orch
	Buffer  *bufferorch.Orch
	Copp    *copporch.Orch
}

// Build constructs every subsystem component in dependency order and wires
// the cross-subsystem observer subscriptions spec.md §9 describes (C3).
func Build(driver sad.Driver, cfg *orchconfig.Config) *Components {
	ctx := sad.NewContext(driver)

	ports := portorch.NewCatalog(driver, cfg.SeedPorts)
	intfs := intfsorch.New(driver, ports, ctx)
	neigh := neighorch.New(driver, intfs)
	routes := routeorch.New(driver, ctx, neigh)
	fdb := fdborch.New(ports)
	mirror := mirrororch.New(driver, ctx, ports, neigh, routes, fdb)
	acl := aclorch.New(driver, ports, neigh, routes, mirror)
	qos := qosorch.New(driver, ports)
	buffer := bufferorch.New(driver, ports)
	copp := copporch.New(driver)

	// Cross-subsystem notifications (spec.md §4.6's resolution chain):
	// mirror sessions resolve through neighbor, FDB, and LAG-membership
	// changes; ACL mirror rules activate/deactivate off mirror session
	// transitions.
	neigh.OnNeighborUpdate(mirror)
	fdb.OnFdbUpdate(mirror)
	ports.OnLagMemberUpdate(mirror)
	mirror.OnMirrorSessionUpdate(acl)

	return &Components{
		Context: ctx,
		Ports:   ports,
		Intfs:   intfs,
		Neigh:   neigh,
		Routes:  routes,
		Fdb:     fdb,
		Mirror:  mirror,
		Acl:     acl,
		Qos:     qos,
		Buffer:  buffer,
		Copp:    copp,
	}
}

// handlerFor returns the doTask handler bound to tableName, or nil if the
// daemon does not know how to consume it.
func handlerFor(c *Components, tableName string) orch.Handler {
	switch tableName {
	case orchconfig.TablePort:
		return c.Ports.PortHandler()
	case orchconfig.TableVlan:
		return c.Ports.VlanHandler()
	case orchconfig.TableVlanMember:
		return c.Ports.VlanMemberHandler()
	case orchconfig.TableLag:
		return c.Ports.LagHandler()
	case orchconfig.TableLagMember:
		return c.Ports.LagMemberHandler()
	case orchconfig.TableIntf:
		return c.Intfs.Handler()
	case orchconfig.TableNeigh:
		return c.Neigh.Handler()
	case orchconfig.TableRoute:
		return c.Routes.Handler()
	case orchconfig.TableFdb:
		return c.Fdb.Handler()
	case orchconfig.TableAcl:
		return c.Acl.TableHandler()
	case orchconfig.TableAclRule:
		return c.Acl.RuleHandler()
	case orchconfig.TableMirrorSession:
		return c.Mirror.Handler()
	case orchconfig.TableDscpToTc:
		return c.Qos.MapHandler(qosorch.MapDscpToTc)
	case orchconfig.TableTcToQueue:
		return c.Qos.MapHandler(qosorch.MapTcToQueue)
	case orchconfig.TableTcToPg:
		return c.Qos.MapHandler(qosorch.MapTcToPg)
	case orchconfig.TablePfcToPg:
		return c.Qos.MapHandler(qosorch.MapPfcToPg)
	case orchconfig.TablePfcToQueue:
		return c.Qos.MapHandler(qosorch.MapPfcToQueue)
	case orchconfig.TableScheduler:
		return c.Qos.SchedulerHandler()
	case orchconfig.TableWredProfile:
		return c.Qos.WredProfileHandler()
	case orchconfig.TablePortQosMap:
		return c.Qos.PortQosMapHandler()
	case orchconfig.TableQueue:
		return c.Qos.QueueHandler()
	case orchconfig.TableBufferPool:
		return c.Buffer.PoolHandler()
	case orchconfig.TableBufferProfile:
		return c.Buffer.ProfileHandler()
	case orchconfig.TableBufferQueue:
		return c.Buffer.QueueHandler()
	case orchconfig.TableBufferPg:
		return c.Buffer.PgHandler()
	case orchconfig.TableBufferPortIngress:
		return c.Buffer.PortProfileListHandler(true)
	case orchconfig.TableBufferPortEgress:
		return c.Buffer.PortProfileListHandler(false)
	case orchconfig.TablePolicer:
		return c.Copp.PolicerHandler()
	case orchconfig.TableCopp:
		return c.Copp.TrapGroupHandler()
	default:
		return nil
	}
}

// Daemon owns the running select loop, the record log, and the background
// counter sampler (spec.md §5).
type Daemon struct {
	components *Components
	cfg        *orchconfig.Config
	rec        record.Logger

	mu        sync.Mutex
	consumers map[string]*orch.TableConsumer
	order     []string // stable iteration order, for deterministic tests

	fired chan string
	stop  chan struct{}

	group *errgroup.Group
}

// New builds a Daemon: every subsystem component, one orch.TableConsumer
// per table named in cfg.Tables, and the mirror/ACL write-back wiring.
// tables is called once per table name needed — every entry in cfg.Tables
// plus "COUNTERS" for the ACL counter poller's write-back.
func New(driver sad.Driver, cfg *orchconfig.Config, tables TableFactory, rec record.Logger) (*Daemon, error) {
	if cfg == nil {
		cfg = orchconfig.Default()
	}
	if rec == nil {
		rec = record.NopLogger{}
	}

	components := Build(driver, cfg)

	d := &Daemon{
		components: components,
		cfg:        cfg,
		rec:        rec,
		consumers:  make(map[string]*orch.TableConsumer),
		fired:      make(chan string, len(orchconfig.AllTables)+1),
		stop:       make(chan struct{}),
	}

	for _, name := range cfg.Tables {
		handler := handlerFor(components, name)
		if handler == nil {
			return nil, fmt.Errorf("orchdaemon: no handler registered for table %q", name)
		}
		tbl := tables(name)
		if tbl == nil {
			return nil, fmt.Errorf("orchdaemon: table factory returned nil for %q", name)
		}
		d.consumers[name] = orch.NewTableConsumer(tbl, handler)
		d.order = append(d.order, name)

		if name == orchconfig.TableMirrorSession {
			if w, ok := tbl.(store.Writer); ok {
				components.Mirror.SetWriter(w)
			}
		}
	}

	if countersTable := tables("COUNTERS"); countersTable != nil {
		if w, ok := countersTable.(store.Writer); ok {
			components.Acl.SetWriter(w)
		}
	}

	return d, nil
}

// Components returns the constructed subsystem instances, for callers that
// need direct access (tests, a read-only CLI).
func (d *Daemon) Components() *Components { return d.components }

// Run drives the top-level select loop until stop is closed (spec.md §5):
// one goroutine per table forwards its Ready() signal onto a shared
// channel; the loop pops+merges+doTasks whichever table fired, then pokes
// every other table once (a mutation in one subsystem may have unblocked a
// Retry entry sitting in another's pending map — spec.md §4.1's "poke"
// mechanism). A bounded poll tick drives the init-done post-condition.
func (d *Daemon) Run() error {
	group, _ := errgroup.WithContext(context.Background())
	d.group = group

	group.Go(func() error {
		d.components.Acl.StartCounterLoop(d.stop, time.Duration(d.cfg.CountersIntervalSeconds)*time.Second)
		return nil
	})

	for _, name := range d.order {
		name := name
		consumer := d.consumers[name]
		group.Go(func() error {
			for {
				select {
				case <-d.stop:
					return nil
				case <-consumer.Ready():
					select {
					case d.fired <- name:
					case <-d.stop:
						return nil
					}
				}
			}
		})
	}

	initFired := false
	ticker := time.NewTicker(store.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return group.Wait()
		case name := <-d.fired:
			d.executeLocked(name)
			d.pokeOthers(name)
		case <-ticker.C:
			if !initFired {
				select {
				case <-d.components.Ports.InitDone():
					util.Logger.Info("orchdaemon: init done")
					initFired = true
				default:
				}
			}
		}
	}
}

// Tick pops and applies one table's pending batch directly, then pokes
// every other table once — the deterministic, synchronous equivalent of
// what Run's select loop does when name's Ready() channel fires. Exposed
// for tests and for a CLI "process one batch" debug mode; Run uses the
// same two calls internally.
func (d *Daemon) Tick(name string) {
	d.executeLocked(name)
	d.pokeOthers(name)
}

func (d *Daemon) executeLocked(name string) {
	d.mu.Lock()
	consumer := d.consumers[name]
	d.mu.Unlock()
	if consumer == nil {
		return
	}
	if err := consumer.Execute(d.cfg.BatchLimit, d.rec); err != nil {
		util.WithFields(map[string]interface{}{"table": name, "error": err}).Warn("orchdaemon: execute failed")
	}
}

// pokeOthers re-runs doTask on every other table's current pending set,
// since a mutation on `name` may have resolved a dependency another table's
// entries are waiting on (spec.md §4.1).
func (d *Daemon) pokeOthers(name string) {
	d.mu.Lock()
	order := append([]string(nil), d.order...)
	d.mu.Unlock()
	for _, other := range order {
		if other == name {
			continue
		}
		d.mu.Lock()
		consumer := d.consumers[other]
		d.mu.Unlock()
		if consumer == nil || consumer.PendingCount() == 0 {
			continue
		}
		if err := consumer.Poke(); err != nil {
			util.WithFields(map[string]interface{}{"table": other, "error": err}).Warn("orchdaemon: poke failed")
		}
	}
}

// Stop signals the select loop and every table-watcher goroutine to exit,
// then joins them and the counter sampler (spec.md §5 "notifies the counter
// condition variable, joins the auxiliary tasks").
func (d *Daemon) Stop() error {
	close(d.stop)
	if d.group != nil {
		return d.group.Wait()
	}
	return nil
}

// Reopen is called on SIGHUP (spec.md §6): reopens the record log at the
// same path.
func (d *Daemon) Reopen() error {
	return d.rec.Reopen()
}
