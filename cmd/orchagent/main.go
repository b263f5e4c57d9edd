// Orchagent reconciles a store of desired-state tables against a switch
// through the SAD boundary: one process, one Redis instance, one SAD
// driver. It subscribes to every table a --table-file lists (or every known
// table by default), runs the doTask loop described in spec.md §5, and
// exits on SIGINT/SIGTERM after draining its running goroutines. SIGHUP
// reopens the record log in place.
//
// Usage:
//
//	orchagent --redis-addr localhost:6379 --redis-db 0
//	orchagent --table-file orchagent.tables.yaml --record-log /var/log/orchagent.rec
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/sonic-net/go-orchagent/pkg/orchconfig"
	"github.com/sonic-net/go-orchagent/pkg/orchdaemon"
	"github.com/sonic-net/go-orchagent/pkg/record"
	"github.com/sonic-net/go-orchagent/pkg/sad"
	"github.com/sonic-net/go-orchagent/pkg/sad/fakesad"
	"github.com/sonic-net/go-orchagent/pkg/store"
	"github.com/sonic-net/go-orchagent/pkg/util"
)

// Version is overridden at build time via -ldflags, matching the teacher's
// own cmd/*/version.go pattern (kept here as a single var since pkg/version
// served the lab-topology tools this build drops).
var Version = "dev"

var opts struct {
	redisAddr string
	redisDB   int
	tableFile string
	recordLog string
	logLevel  string
	logJSON   bool
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "orchagent",
	Short:         "Reconciles a store of desired-state tables against a switch",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&opts.redisAddr, "redis-addr", "a", "localhost:6379", "Redis server address")
	flags.IntVarP(&opts.redisDB, "redis-db", "d", 0, "Redis logical DB number")
	flags.StringVarP(&opts.tableFile, "table-file", "t", "", "table-subscription YAML file (default: subscribe to every known table)")
	flags.StringVarP(&opts.recordLog, "record-log", "r", "", "path to the applied-operation record log (default: disabled)")
	flags.StringVarP(&opts.logLevel, "log-level", "l", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&opts.logJSON, "log-json", false, "emit structured JSON logs instead of text")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("orchagent %s\n", Version)
		},
	})
}

func run() error {
	if err := util.SetLogLevel(opts.logLevel); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	if opts.logJSON {
		util.SetJSONFormat()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rec, err := buildRecordLogger()
	if err != nil {
		return err
	}
	defer rec.Close()

	client := redis.NewClient(&redis.Options{Addr: opts.redisAddr, DB: opts.redisDB})
	defer client.Close()

	// The SAD boundary (sad.Driver) is explicitly out of scope: real
	// deployments link a genuine driver implementation here. fakesad is an
	// in-memory stand-in that lets this binary actually run end to end
	// against a live Redis for development and integration testing.
	var driver sad.Driver = fakesad.New()

	factory := func(name string) store.Table {
		return store.NewRedisTable(client, opts.redisDB, name)
	}

	d, err := orchdaemon.New(driver, cfg, factory, rec)
	if err != nil {
		return fmt.Errorf("building daemon: %w", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigs {
			switch sig {
			case syscall.SIGHUP:
				if err := d.Reopen(); err != nil {
					util.WithField("error", err).Warn("orchagent: reopen failed")
				}
			case syscall.SIGINT, syscall.SIGTERM:
				util.Logger.Info("orchagent: shutting down")
				if err := d.Stop(); err != nil {
					util.WithField("error", err).Warn("orchagent: stop failed")
				}
				return
			}
		}
	}()

	util.WithFields(map[string]interface{}{
		"redis_addr": opts.redisAddr,
		"redis_db":   opts.redisDB,
		"tables":     len(cfg.Tables),
	}).Info("orchagent: starting")

	return d.Run()
}

func loadConfig() (*orchconfig.Config, error) {
	if opts.tableFile == "" {
		return orchconfig.Default(), nil
	}
	cfg, err := orchconfig.Load(opts.tableFile)
	if err != nil {
		return nil, fmt.Errorf("loading --table-file: %w", err)
	}
	return cfg, nil
}

func buildRecordLogger() (record.Logger, error) {
	if opts.recordLog == "" {
		return record.NopLogger{}, nil
	}
	l, err := record.NewFileLogger(opts.recordLog)
	if err != nil {
		return nil, fmt.Errorf("opening --record-log: %w", err)
	}
	return l, nil
}
