package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/geoimport/internal/config"
	"github.com/JonMunkholm/geoimport/internal/core"
	"github.com/JonMunkholm/geoimport/internal/logging"
	"github.com/JonMunkholm/geoimport/internal/metrics"
	"github.com/JonMunkholm/geoimport/internal/parser"
	"github.com/JonMunkholm/geoimport/internal/store/postgres"
	"github.com/JonMunkholm/geoimport/internal/store/sqlite"
)

// maxListedRejections bounds the rejected rows echoed in the summary.
const maxListedRejections = 10

type importFlags struct {
	format      string
	driver      string
	dsn         string
	sqlitePath  string
	table       string
	createTable bool
	metricsAddr string
	timeout     time.Duration
	quiet       bool
}

// apply copies explicitly set flags over the environment configuration.
func (f *importFlags) apply(cmd *cobra.Command) func(*config.Config) {
	fs := cmd.Flags()
	return func(c *config.Config) {
		if fs.Changed("format") {
			c.Import.Format = f.format
		}
		if fs.Changed("driver") {
			c.Store.Driver = f.driver
		}
		if fs.Changed("dsn") {
			c.Store.DatabaseURL = f.dsn
		}
		if fs.Changed("sqlite-path") {
			c.Store.SQLitePath = f.sqlitePath
		}
		if fs.Changed("table") {
			c.Store.Table = f.table
		}
		if fs.Changed("create-table") {
			c.Store.CreateTable = f.createTable
		}
		if fs.Changed("metrics-addr") {
			c.Metrics.Addr = f.metricsAddr
		}
		if fs.Changed("timeout") {
			c.Import.Timeout = f.timeout
		}
	}
}

func importCmd(stdout, stderr io.Writer) *cobra.Command {
	var flags importFlags
	cmd := &cobra.Command{
		Use:   "import <file.gz>",
		Short: "Load one gzip-compressed city file in a single transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.apply(cmd))
			if err != nil {
				return err
			}
			logging.Setup(cfg.Logging.Level, cfg.Logging.Format, stderr)
			slog.Debug("configuration loaded", "config", cfg.String())

			var progress io.Writer
			if !flags.quiet {
				progress = stderr
			}
			return runImport(cmd.Context(), cfg, args[0], stdout, progress)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.format, "format", parser.Auto, "input format (auto detects from the file name)")
	f.StringVar(&flags.driver, "driver", config.DriverPostgres, "store driver: postgres or sqlite")
	f.StringVar(&flags.dsn, "dsn", "", "postgres connection string (default $DATABASE_URL)")
	f.StringVar(&flags.sqlitePath, "sqlite-path", "cities.db", "sqlite database file")
	f.StringVar(&flags.table, "table", "cities", "target table")
	f.BoolVar(&flags.createTable, "create-table", false, "create the target table if it does not exist")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address while importing")
	f.DurationVar(&flags.timeout, "timeout", 0, "abort and roll back after this long (0 = no limit)")
	f.BoolVarP(&flags.quiet, "quiet", "q", false, "do not print progress")
	return cmd
}

// cityStore is what the command needs from either backend.
type cityStore interface {
	core.Store
	EnsureSchema(ctx context.Context) error
}

func openStore(ctx context.Context, cfg *config.Config) (cityStore, func(), error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.Store.SQLitePath, Table: cfg.Store.Table})
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Error("close sqlite", "error", err)
			}
		}, nil
	default:
		s, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.Store.DatabaseURL,
			Table:           cfg.Store.Table,
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
}

// runImport imports path with cfg. Progress goes to progressOut when non-nil.
func runImport(ctx context.Context, cfg *config.Config, path string, stdout, progressOut io.Writer) error {
	format, err := parser.Resolve(cfg.Import.Format, path)
	if err != nil {
		return err
	}

	if cfg.Import.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Import.Timeout)
		defer cancel()
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer closeStore()

	if cfg.Store.CreateTable {
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	imp := core.New(store, format.New(),
		core.WithLockWait(cfg.Import.LockWait),
		core.WithBufferSize(cfg.Import.BufferSize),
		core.WithLogEvery(cfg.Import.LogEvery),
		core.WithMaxRejections(cfg.Import.MaxRejections),
		core.WithFormatName(format.Name),
	)

	var sinks []core.ProgressSink
	if progressOut != nil {
		sinks = append(sinks, core.ThrottleProgress(percentPrinter(progressOut, path), cfg.Import.ProgressInterval))
	}

	var collector *metrics.Collector
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if collector, err = metrics.NewCollector(reg); err != nil {
			return err
		}
		sinks = append(sinks, collector.Progress())

		stopMetrics, err := serveMetrics(cfg, metrics.NewServer(reg, imp.Lock().Status))
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	res, err := imp.Import(ctx, core.FileSource(path), core.MultiProgress(sinks...))
	if progressOut != nil && res != nil && res.BytesRead > 0 {
		fmt.Fprintln(progressOut)
	}
	if collector != nil {
		collector.ObserveImport(res, err)
	}
	if err != nil {
		return err
	}

	printSummary(stdout, res)
	return nil
}

func serveMetrics(cfg *config.Config, srv *metrics.Server) (func(), error) {
	ln, err := net.Listen("tcp", cfg.Metrics.Addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", cfg.Metrics.Addr, err)
	}
	go func() {
		if err := srv.Serve(ln); err != nil {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Metrics.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("metrics shutdown", "error", err)
		}
	}, nil
}

func percentPrinter(w io.Writer, name string) core.ProgressSink {
	return core.ProgressFunc(func(read, total int64) {
		fmt.Fprintf(w, "\rimporting %s: %3d%% (%d/%d bytes)", name, core.Percent(read, total), read, total)
	})
}

func printSummary(w io.Writer, res *core.Result) {
	fmt.Fprintf(w, "import %s committed: %d inserted, %d rejected, %d bytes read in %s\n",
		res.ImportID, res.Inserted, res.Rejected, res.BytesRead, res.Duration.Round(time.Millisecond))
	shown := 0
	for _, r := range res.Rejections {
		if shown == maxListedRejections {
			break
		}
		fmt.Fprintf(w, "  rejected %d: %s\n", r.RecordID, r.Reason)
		shown++
	}
	if res.Rejected > shown {
		fmt.Fprintf(w, "  ... %d more\n", res.Rejected-shown)
	}
}
