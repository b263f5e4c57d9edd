// Package orchconfig loads the table-configuration file that tells a build
// of the daemon which store tables it subscribes to — the YAML equivalent
// of real SONiC orchagent's "-t orchagent.tables.json" flag (spec.md §6),
// modeled on the teacher's pkg/labgen YAML-file-load-then-validate pattern.
package orchconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Table names this build knows how to consume, in the fixed order
// pkg/orchdaemon registers their consumers. A table-config file may narrow
// this list (e.g. a build with no QoS hardware support) but never add
// tables the core doesn't know how to wire.
const (
	TablePort             = "PORT_TABLE"
	TableVlan             = "VLAN_TABLE"
	TableVlanMember       = "VLAN_MEMBER_TABLE"
	TableLag              = "LAG_TABLE"
	TableLagMember        = "LAG_MEMBER_TABLE"
	TableIntf             = "INTF_TABLE"
	TableNeigh            = "NEIGH_TABLE"
	TableRoute            = "ROUTE_TABLE"
	TableFdb              = "FDB_TABLE"
	TableAcl              = "ACL_TABLE"
	TableAclRule          = "ACL_RULE_TABLE"
	TableMirrorSession    = "MIRROR_SESSION_TABLE"
	TableDscpToTc         = "DSCP_TO_TC_MAP"
	TableTcToQueue        = "TC_TO_QUEUE_MAP"
	TableTcToPg           = "TC_TO_PRIORITY_GROUP_MAP"
	TablePfcToPg          = "PFC_PRIORITY_TO_PRIORITY_GROUP_MAP"
	TablePfcToQueue       = "PFC_PRIORITY_TO_QUEUE_MAP"
	TableScheduler        = "SCHEDULER"
	TableWredProfile      = "WRED_PROFILE"
	TablePortQosMap       = "PORT_QOS_MAP"
	TableQueue            = "QUEUE"
	TableBufferPool       = "BUFFER_POOL"
	TableBufferProfile    = "BUFFER_PROFILE"
	TableBufferQueue      = "BUFFER_QUEUE"
	TableBufferPg         = "BUFFER_PG"
	TableBufferPortIngress = "BUFFER_PORT_INGRESS_PROFILE_LIST"
	TableBufferPortEgress  = "BUFFER_PORT_EGRESS_PROFILE_LIST"
	TablePolicer          = "POLICER_TABLE"
	TableCopp             = "COPP_TABLE"
)

// AllTables lists every table name the daemon knows how to consume, in the
// order pkg/orchdaemon registers their consumers.
var AllTables = []string{
	TablePort, TableVlan, TableVlanMember, TableLag, TableLagMember,
	TableIntf, TableNeigh, TableRoute, TableFdb,
	TableAcl, TableAclRule,
	TableMirrorSession,
	TableDscpToTc, TableTcToQueue, TableTcToPg, TablePfcToPg, TablePfcToQueue,
	TableScheduler, TableWredProfile, TablePortQosMap, TableQueue,
	TableBufferPool, TableBufferProfile, TableBufferQueue, TableBufferPg,
	TableBufferPortIngress, TableBufferPortEgress,
	TablePolicer, TableCopp,
}

// Config is the decoded table-configuration file.
type Config struct {
	// Tables lists the subset of AllTables this build subscribes to. An
	// empty list means "subscribe to everything" (AllTables).
	Tables []string `yaml:"tables"`
	// SeedPorts lists the host interface names the initial config is
	// expected to bring up, driving portorch's init-done latch
	// (spec.md §4.2, SPEC_FULL.md SUPPLEMENTED FEATURES: orch.cpp's
	// SELECT_TIMEOUT + init-done behavior).
	SeedPorts []string `yaml:"seed_ports"`
	// CountersIntervalSeconds is how often aclorch's background counter poller
	// runs, in seconds (spec.md §4.7 COUNTERS_READ_INTERVAL). Defaults to
	// 10 if zero or absent.
	CountersIntervalSeconds int `yaml:"counters_interval_seconds"`
	// BatchLimit bounds how many entries a single Execute pops per table
	// per tick (0 means unbounded).
	BatchLimit int `yaml:"batch_limit"`
}

// Load parses a table-configuration YAML file and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("orchconfig: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("orchconfig: parsing %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("orchconfig: validating %s: %w", path, err)
	}
	if len(cfg.Tables) == 0 {
		cfg.Tables = AllTables
	}
	if cfg.CountersIntervalSeconds == 0 {
		cfg.CountersIntervalSeconds = 10
	}
	return &cfg, nil
}

// Default returns a Config subscribing to every known table, for use when
// no --table-file is given.
func Default() *Config {
	return &Config{
		Tables:                  AllTables,
		CountersIntervalSeconds: 10,
	}
}

func (c *Config) validate() error {
	known := make(map[string]bool, len(AllTables))
	for _, t := range AllTables {
		known[t] = true
	}
	for _, t := range c.Tables {
		if !known[t] {
			return fmt.Errorf("unknown table %q", t)
		}
	}
	if c.CountersIntervalSeconds < 0 {
		return fmt.Errorf("counters_interval_seconds must be >= 0")
	}
	if c.BatchLimit < 0 {
		return fmt.Errorf("batch_limit must be >= 0")
	}
	return nil
}

// Has reports whether table is in this config's subscription list.
func (c *Config) Has(table string) bool {
	for _, t := range c.Tables {
		if t == table {
			return true
		}
	}
	return false
}
