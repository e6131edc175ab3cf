package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wtsi-hgi/shepherd/config"
	"github.com/wtsi-hgi/shepherd/executor"
	"github.com/wtsi-hgi/shepherd/filesystem"
	"github.com/wtsi-hgi/shepherd/observability"
	"github.com/wtsi-hgi/shepherd/planner"
	"github.com/wtsi-hgi/shepherd/routing"
	"github.com/wtsi-hgi/shepherd/store"
	"github.com/wtsi-hgi/shepherd/transform"
)

// sourceName and targetName name the only route this binary knows how to
// drive, matching original_source/cli/dummy.py's single Lustre-to-iRODS
// tuple ("we're only dealing with the Lustre-iRODS tuple, so this is
// simplified considerably").
const (
	sourceName = "lustre"
	targetName = "irods"

	sourceMaxConcurrency = 50
	targetMaxConcurrency = 10

	transferScript = "cp {{source.address}} {{target.address}}"
)

// openStore connects to the production Postgres backend named by the
// PG_* environment variables.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	port, err := strconv.Atoi(cfg.PGPort)
	if err != nil {
		return nil, fmt.Errorf("shepherd: invalid PG_PORT %q: %w", cfg.PGPort, err)
	}

	s, err := store.NewPostgresStore(ctx, store.PostgresConfig{
		Host:     cfg.PGHost,
		Port:     port,
		Database: cfg.PGDatabase,
		Username: cfg.PGUsername,
		Password: cfg.PGPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("shepherd: connect to postgres: %w", err)
	}
	if err := s.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("shepherd: bootstrap schema: %w", err)
	}
	return s, nil
}

// buildRegistry constructs the fixed Lustre/iRODS capability pair. iRODS
// support is out of scope (a real adapter needs a C client library this
// module cannot depend on), so both endpoints are backed by the POSIX
// reference implementation; only the naming and max-concurrency figures
// differ, matching original_source/cli/dummy.py's _FILESYSTEMS tuple.
func buildRegistry() (*filesystem.Registry, filesystem.Capability, filesystem.Capability) {
	lustre := filesystem.NewPOSIX(sourceName, sourceMaxConcurrency)
	irods := filesystem.NewPOSIX(targetName, targetMaxConcurrency)

	registry := filesystem.NewRegistry()
	registry.Register(lustre)
	registry.Register(irods)

	return registry, lustre, irods
}

// buildRoute constructs the single supported transfer route: strip the
// FoFN entries' common prefix, then re-root them under
// IRODS_BASE/subcollection. Grounded on original_source/cli/dummy.py's
// prepare(): `route += strip_common_prefix; route += prefix(...)`.
func buildRoute(cfg *config.Config, source, target filesystem.Capability, subcollection string) *planner.TransferRoute {
	route := planner.New(source, target, transferScript, routing.O1)
	route.AddIO(transform.StripCommonPrefix())
	route.AddIO(transform.Prefix(filepath.Join(cfg.IRODSBase, subcollection)))
	route.AddScript(transform.Debugging())
	route.AddScript(transform.Telemetry())
	return route
}

// binaryPath resolves this running executable's own path, so submit can
// tell the executor to re-exec it under the internal modes.
func binaryPath() (string, error) {
	return os.Executable()
}

// logDir resolves SHEPHERD_LOG, creating it if necessary.
func logDir(cfg *config.Config) (string, error) {
	dir := cfg.ShepherdLog
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("shepherd: create log directory %q: %w", dir, err)
	}
	return dir, nil
}

// openLogFile opens name under the job's log directory for append,
// creating it if necessary.
func openLogFile(dir, name string) (*os.File, error) {
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// buildEmitter writes events as JSON lines to logFile, through a
// MultiEmitter with that single backend; it does not feed the Prometheus
// metrics, which are recorded separately via newMetrics.
func buildEmitter(logFile *os.File) observability.Emitter {
	return observability.NewMultiEmitter(
		observability.NewLogEmitter(logFile, true),
	)
}

func newMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.DefaultRegisterer)
}

func newLSFExecutor(cfg *config.Config) *executor.LSFExecutor {
	return executor.NewLSFExecutor(cfg.LSFConfig, cfg.LSFGroup)
}
