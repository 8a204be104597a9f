// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bonial-oss/vulnmatch/internal/cache"
	"github.com/bonial-oss/vulnmatch/internal/config"
	"github.com/bonial-oss/vulnmatch/internal/download"
	"github.com/bonial-oss/vulnmatch/internal/httpclient"
	"github.com/bonial-oss/vulnmatch/internal/logger"
	"github.com/bonial-oss/vulnmatch/internal/metrics"
	"github.com/bonial-oss/vulnmatch/internal/store"
	"github.com/bonial-oss/vulnmatch/internal/update"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Exit codes.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitError signals a non-zero exit code with an optional message.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: ExitUsage, Message: fmt.Sprintf(format, args...)}
}

// NewRootCommand creates the root cobra command with its subcommands.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:     "vulnmatch",
		Short:   "Identify the CPEs of dependencies and report their known vulnerabilities",
		Version: Version,
		Long: `vulnmatch maintains a local copy of the NVD vulnerability feeds, identifies
the CPE of each dependency from the evidence collected for it, and reports
the vulnerabilities affecting the identified versions, prioritized with
EPSS scores and CISA Known Exploited Vulnerabilities data.

Usage:
  vulnmatch update
  vulnmatch check --file lib/struts2-core-2.1.2.jar
  vulnmatch check --format sarif < evidence.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML configuration file")
	pf.String("data-dir", "", "Directory holding the database and caches")
	pf.String("log-level", "", "Log level: trace, debug, info, warn, error")
	_ = v.BindPFlag("data_dir", pf.Lookup("data-dir"))
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))

	cmd.AddCommand(
		newUpdateCommand(v, &configFile),
		newCheckCommand(v, &configFile),
		newPurgeCommand(v, &configFile),
	)
	return cmd
}

// app holds the components shared by the subcommands.
type app struct {
	cfg     *config.Config
	logger  hclog.Logger
	metrics *metrics.Metrics
	// direct never uses a proxy; proxied is nil without one. fetcher is
	// the one feeds are downloaded with.
	direct  *download.Fetcher
	proxied *download.Fetcher
	fetcher *download.Fetcher
}

func newApp(v *viper.Viper, configFile string) (*app, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, usageError("%v", err)
	}
	log := logger.New(cfg.Log, "vulnmatch")

	a := &app{cfg: cfg, logger: log, metrics: metrics.New()}
	if a.direct, err = newFetcher(cfg, nil, log); err != nil {
		return nil, err
	}
	a.fetcher = a.direct
	if cfg.Proxy != nil {
		if a.proxied, err = newFetcher(cfg, cfg.Proxy, log); err != nil {
			return nil, usageError("%v", err)
		}
		a.fetcher = a.proxied
	}
	return a, nil
}

func newFetcher(cfg *config.Config, proxy *config.Proxy, log hclog.Logger) (*download.Fetcher, error) {
	client, err := httpclient.New(cfg.HTTP, proxy, log.Named("http"))
	if err != nil {
		return nil, err
	}
	return download.NewFetcher(client, cfg.S3, log.Named("download"))
}

func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(ctx, a.cfg.Database.Driver, a.cfg.Database.DSN, a.logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("opening vulnerability store: %w", err)
	}
	return st, nil
}

// updateMarker returns the cache recording the last update check, nil
// when nvd.check_valid_for_hours disables it.
func (a *app) updateMarker() *cache.Cache {
	if a.cfg.NVD.CheckValidForHours <= 0 {
		return nil
	}
	ttl := time.Duration(a.cfg.NVD.CheckValidForHours) * time.Hour
	return cache.New(filepath.Join(a.cfg.DataDir, "update"), ttl)
}

func (a *app) newUpdater(st *store.Store, marker *cache.Cache) *update.Updater {
	return update.New(a.cfg.NVD, st, a.fetcher, update.Options{
		Marker:  marker,
		Metrics: a.metrics,
		Logger:  a.logger.Named("update"),
	})
}

// writeMetrics writes the metrics textfile when one is configured. A
// failure is logged, never fatal.
func (a *app) writeMetrics() {
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Warn("unable to write metrics", "error", err)
	}
}
