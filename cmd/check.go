// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/bonial-oss/vulnmatch/internal/cpe"
	"github.com/bonial-oss/vulnmatch/internal/datasource/epss"
	"github.com/bonial-oss/vulnmatch/internal/datasource/kev"
	"github.com/bonial-oss/vulnmatch/internal/dependency"
	"github.com/bonial-oss/vulnmatch/internal/enricher"
	"github.com/bonial-oss/vulnmatch/internal/input"
	"github.com/bonial-oss/vulnmatch/internal/output"
	"github.com/bonial-oss/vulnmatch/internal/store"
	"github.com/bonial-oss/vulnmatch/internal/suppression"
)

const updateFailedHint = "unable to update the vulnerability data; analysis continues with the existing data. " +
	"Run vulnmatch update for details; if this host is behind a proxy, configure http.proxies"

// checkOptions holds the check flags that are not configuration keys.
type checkOptions struct {
	Input          string
	Files          []string
	Format         string
	Output         string
	SortBy         string
	NoUpdate       bool
	NoEPSS         bool
	NoKEV          bool
	HideSuppressed bool
}

func newCheckCommand(v *viper.Viper, configFile *string) *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Identify dependencies and report the vulnerabilities affecting them",
		Long: `check reads dependencies with their collected evidence from stdin (or
--input) and from the files named by --file, identifies their CPEs against
the local database and reports the matched vulnerabilities.

The input is either a document of the form
  {"dependencies": [{"file_path": "...", "evidence": {"vendor": [...], "product": [...], "version": [...]}}]}
or a dependency-check JSON report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.NoEPSS {
				v.Set("enrich.epss", false)
			}
			if opts.NoKEV {
				v.Set("enrich.kev", false)
			}
			return runCheck(cmd.Context(), v, *configFile, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.Input, "input", "i", "", "Read dependencies from this file instead of stdin (- for stdin)")
	flags.StringArrayVar(&opts.Files, "file", nil, "Scan a file, deriving evidence from its name (repeatable)")
	flags.StringVar(&opts.Format, "format", "table", "Output format: table, json, sarif")
	flags.StringVarP(&opts.Output, "output", "o", "", "Write to file instead of stdout")
	flags.StringVar(&opts.SortBy, "sort-by", "risk", "Sort table by: risk, epss, severity, cvss, cve")
	flags.BoolVar(&opts.NoUpdate, "no-update", false, "Do not update the vulnerability data before the check")
	flags.BoolVar(&opts.NoEPSS, "no-epss", false, "Disable EPSS enrichment")
	flags.BoolVar(&opts.NoKEV, "no-kev", false, "Disable KEV enrichment")
	flags.BoolVar(&opts.HideSuppressed, "hide-suppressed", false, "Omit suppressed vulnerabilities from the table")

	flags.Bool("skip-db-update", false, "Use cached EPSS and KEV data without update check")
	flags.Float64("epss-threshold", 0, "Only report vulns with EPSS score >= value")
	flags.Bool("kev-only", false, "Only report vulns present in KEV")
	flags.Bool("fail-on-kev", false, "Exit code 1 if any KEV vuln found")
	flags.Float64("fail-on-epss-threshold", 0, "Exit code 1 if any vuln has EPSS >= value")
	flags.Float64("fail-on-cvss", 0, "Exit code 1 if any vuln has a CVSS score >= value")
	flags.String("suppression", "", "Suppression rule file, path or URL")
	flags.Int("workers", 0, "Dependencies identified in parallel")
	for key, flag := range map[string]string{
		"enrich.skip_update":    "skip-db-update",
		"enrich.epss_threshold": "epss-threshold",
		"enrich.kev_only":       "kev-only",
		"policy.fail_on_kev":    "fail-on-kev",
		"policy.fail_on_epss":   "fail-on-epss-threshold",
		"policy.fail_on_cvss":   "fail-on-cvss",
		"suppression_file":      "suppression",
		"scan.workers":          "workers",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	return cmd
}

func runCheck(ctx context.Context, v *viper.Viper, configFile string, opts *checkOptions, stdin io.Reader, stdout io.Writer) error {
	switch opts.Format {
	case "table", "json", "sarif":
	default:
		return usageError("unsupported output format: %s", opts.Format)
	}

	a, err := newApp(v, configFile)
	if err != nil {
		return err
	}
	defer a.writeMetrics()

	deps, err := readDependencies(opts, stdin)
	if err != nil {
		return err
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if !opts.NoUpdate {
		if err := a.newUpdater(st, a.updateMarker()).Update(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			a.logger.Warn(updateFailedHint, "error", err)
		}
	}
	if n, err := st.IndexSize(ctx); err == nil && n == 0 {
		a.logger.Warn("the vulnerability database is empty, run vulnmatch update first")
	}

	rules, err := suppression.Load(ctx, a.cfg.SuppressionFile, a.direct, a.proxied)
	if err != nil {
		return usageError("%v", err)
	}

	if err := a.analyze(ctx, st, rules, deps); err != nil {
		return err
	}

	epssSource, kevSource := a.loadEPSS(ctx), a.loadKEV(ctx)
	result := enricher.New(epssSource, kevSource).Enrich(deps, enricher.Config{
		EPSSThreshold:       a.cfg.Enrich.EPSSThreshold,
		KEVOnly:             a.cfg.Enrich.KEVOnly,
		FailOnKEV:           a.cfg.Policy.FailOnKEV,
		FailOnEPSSThreshold: a.cfg.Policy.FailOnEPSS,
		FailOnCVSS:          a.cfg.Policy.FailOnCVSS,
	})

	tableCfg := output.TableConfig{
		ShowEPSS:       epssSource != nil,
		ShowKEV:        kevSource != nil,
		ShowRisk:       epssSource != nil && kevSource != nil,
		SortBy:         opts.SortBy,
		HideSuppressed: opts.HideSuppressed,
	}
	if err := writeReport(opts, stdout, result, tableCfg); err != nil {
		return err
	}

	if result.PolicyViolation {
		for _, violation := range result.Violations {
			a.logger.Error("policy violation", "finding", violation)
		}
		return &ExitError{Code: ExitFailure, Message: "policy violation detected"}
	}
	return nil
}

// readDependencies parses the input document and adds the --file
// dependencies. Stdin is only read when no --file is given or --input is
// "-".
func readDependencies(opts *checkOptions, stdin io.Reader) ([]*dependency.Dependency, error) {
	var deps []*dependency.Dependency

	if opts.Input != "" || len(opts.Files) == 0 {
		var data []byte
		var err error
		if opts.Input == "" || opts.Input == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(opts.Input)
		}
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			if len(opts.Files) == 0 {
				return nil, usageError("no input provided on stdin")
			}
		} else {
			parsed, err := input.Parse(data)
			if err != nil {
				return nil, usageError("parsing input: %v", err)
			}
			deps = append(deps, parsed...)
		}
	}

	for _, path := range opts.Files {
		d, err := input.FromFile(path)
		if err != nil {
			return nil, usageError("%v", err)
		}
		deps = append(deps, d)
	}
	return deps, nil
}

// identifyError is the identification metric result of a failed analysis.
const identifyError = "error"

// analyze identifies every dependency on a pool of scan.workers
// goroutines, each dependency being handled by one of them. A failure
// leaves that dependency unidentified; only cancellation stops the scan.
func (a *app) analyze(ctx context.Context, st *store.Store, rules *suppression.Rules, deps []*dependency.Dependency) error {
	analyzer := cpe.NewAnalyzer(st, cpe.Options{
		MinScore:   a.cfg.Search.MinScore,
		MaxResults: a.cfg.Search.MaxResults,
		SearchURL:  a.cfg.Identify.NVDSearchURL,
	}, a.logger.Named("cpe"))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Scan.Workers)
	for _, dep := range deps {
		g.Go(func() error {
			res, err := analyzer.DetermineCPE(gctx, dep)
			if err == nil {
				rules.ApplyIdentifiers(dep)
				err = analyzer.LookupVulnerabilities(gctx, dep)
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				a.logger.Warn("unable to analyze dependency", "dependency", dep.DisplayName(), "error", err)
				a.metrics.Identified(identifyError, 0)
				return nil
			}
			if n := rules.ApplyVulnerabilities(dep); n > 0 {
				a.logger.Debug("vulnerabilities suppressed", "dependency", dep.DisplayName(), "count", n)
			}
			a.metrics.Identified(res.State.String(), len(dep.Vulnerabilities()))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("analyzing dependencies: %w", err)
	}
	return nil
}

// loadEPSS returns the EPSS source, or nil when it is disabled or cannot
// be loaded.
func (a *app) loadEPSS(ctx context.Context) *epss.Source {
	if !a.cfg.Enrich.EPSS {
		return nil
	}
	s := epss.NewSource(a.fetcher, a.cfg.DataDir, a.logger.Named("epss"))
	if err := s.Load(ctx, a.cfg.Enrich.SkipUpdate); err != nil {
		a.logger.Warn("EPSS enrichment disabled", "error", err)
		return nil
	}
	return s
}

// loadKEV returns the KEV source, or nil when it is disabled or cannot be
// loaded.
func (a *app) loadKEV(ctx context.Context) *kev.Source {
	if !a.cfg.Enrich.KEV {
		return nil
	}
	s := kev.NewSource(a.fetcher, a.cfg.DataDir, a.logger.Named("kev"))
	if err := s.Load(ctx, a.cfg.Enrich.SkipUpdate); err != nil {
		a.logger.Warn("KEV enrichment disabled", "error", err)
		return nil
	}
	return s
}

func writeReport(opts *checkOptions, stdout io.Writer, result *enricher.Result, tableCfg output.TableConfig) error {
	w := stdout
	if opts.Output != "" && opts.Output != "-" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch opts.Format {
	case "json":
		return output.WriteJSON(w, output.Document{
			Dependencies: result.Dependencies,
			Violations:   result.Violations,
		})
	case "sarif":
		return output.WriteSARIF(w, result.Dependencies)
	default:
		tableCfg.IsTerminal = output.IsOutputToTerminal(w)
		return output.WriteTable(w, result.Dependencies, tableCfg)
	}
}
