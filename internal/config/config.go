// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package config loads the settings of every vulnmatch component from
// defaults, an optional YAML file, a .env file and VULNMATCH_* environment
// variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "VULNMATCH"

var (
	// ErrAmbiguousProxy is returned when several proxies are configured and
	// none is selected.
	ErrAmbiguousProxy = errors.New("ambiguous proxy definition")
	// ErrProxyNotFound is returned when http.proxy_id names no configured proxy.
	ErrProxyNotFound = errors.New("proxy not found")
)

type Config struct {
	DataDir         string         `mapstructure:"data_dir"`
	Log             LogConfig      `mapstructure:"log"`
	Database        DatabaseConfig `mapstructure:"database"`
	NVD             NVDConfig      `mapstructure:"nvd"`
	HTTP            HTTPConfig     `mapstructure:"http"`
	S3              S3Config       `mapstructure:"s3"`
	Search          SearchConfig   `mapstructure:"search"`
	Identify        IdentifyConfig `mapstructure:"identify"`
	Scan            ScanConfig     `mapstructure:"scan"`
	SuppressionFile string         `mapstructure:"suppression_file"`
	Enrich          EnrichConfig   `mapstructure:"enrich"`
	Policy          PolicyConfig   `mapstructure:"policy"`
	Metrics         MetricsConfig  `mapstructure:"metrics"`

	// Proxy is the proxy selected from HTTP.Proxies, nil for direct
	// connections.
	Proxy *Proxy `mapstructure:"-"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	JSON        bool   `mapstructure:"json"`
	DisableTime bool   `mapstructure:"disable_time"`
}

type DatabaseConfig struct {
	// Driver is sqlite or postgres.
	Driver string `mapstructure:"driver"`
	// DSN is the SQLite file path or the PostgreSQL connection string.
	DSN string `mapstructure:"dsn"`
}

// NVDConfig locates the feed segments. The base URLs are format strings
// receiving the year.
type NVDConfig struct {
	ModifiedURL          string `mapstructure:"modified_url"`
	ModifiedLegacyURL    string `mapstructure:"modified_legacy_url"`
	BaseURL              string `mapstructure:"base_url"`
	LegacyBaseURL        string `mapstructure:"legacy_base_url"`
	CPEDictionaryURL     string `mapstructure:"cpe_dictionary_url"`
	StartYear            int    `mapstructure:"start_year"`
	ModifiedValidForDays int    `mapstructure:"modified_valid_for_days"`
	CheckValidForHours   int    `mapstructure:"check_valid_for_hours"`
	MaxDownloadThreads   int    `mapstructure:"max_download_threads"`
}

type HTTPConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	Insecure bool          `mapstructure:"insecure"`
	Proxies  []Proxy       `mapstructure:"proxies"`
	ProxyID  string        `mapstructure:"proxy_id"`
}

type Proxy struct {
	ID            string   `mapstructure:"id"`
	URL           string   `mapstructure:"url"`
	Username      string   `mapstructure:"username"`
	Password      string   `mapstructure:"password"`
	NonProxyHosts []string `mapstructure:"non_proxy_hosts"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

type SearchConfig struct {
	MinScore   float64 `mapstructure:"min_score"`
	MaxResults int     `mapstructure:"max_results"`
}

type IdentifyConfig struct {
	NVDSearchURL string `mapstructure:"nvd_search_url"`
}

type ScanConfig struct {
	Workers int `mapstructure:"workers"`
}

type EnrichConfig struct {
	EPSS          bool    `mapstructure:"epss"`
	KEV           bool    `mapstructure:"kev"`
	SkipUpdate    bool    `mapstructure:"skip_update"`
	EPSSThreshold float64 `mapstructure:"epss_threshold"`
	KEVOnly       bool    `mapstructure:"kev_only"`
}

// PolicyConfig holds the conditions that fail a check. Zero values disable
// a condition.
type PolicyConfig struct {
	FailOnCVSS float64 `mapstructure:"fail_on_cvss"`
	FailOnKEV  bool    `mapstructure:"fail_on_kev"`
	FailOnEPSS float64 `mapstructure:"fail_on_epss"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	dataDir := "vulnmatch-data"
	if dir, err := os.UserCacheDir(); err == nil {
		dataDir = filepath.Join(dir, "vulnmatch")
	}
	v.SetDefault("data_dir", dataDir)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.disable_time", true)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")

	v.SetDefault("nvd.modified_url", "https://nvd.nist.gov/feeds/xml/cve/nvdcve-2.0-Modified.xml.gz")
	v.SetDefault("nvd.modified_legacy_url", "https://nvd.nist.gov/download/nvdcve-Modified.xml.gz")
	v.SetDefault("nvd.base_url", "https://nvd.nist.gov/feeds/xml/cve/nvdcve-2.0-%d.xml.gz")
	v.SetDefault("nvd.legacy_base_url", "https://nvd.nist.gov/download/nvdcve-%d.xml.gz")
	v.SetDefault("nvd.cpe_dictionary_url", "")
	v.SetDefault("nvd.start_year", 2002)
	v.SetDefault("nvd.modified_valid_for_days", 7)
	v.SetDefault("nvd.check_valid_for_hours", 4)
	v.SetDefault("nvd.max_download_threads", 3)

	v.SetDefault("http.timeout", 60*time.Second)
	v.SetDefault("http.insecure", false)
	v.SetDefault("http.proxies", []Proxy{})
	v.SetDefault("http.proxy_id", "")

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("s3.region", "")

	v.SetDefault("search.min_score", 0.08)
	v.SetDefault("search.max_results", 25)
	v.SetDefault("identify.nvd_search_url",
		"https://nvd.nist.gov/vuln/search/results?form_type=Advanced&cves=on&cpe_version=%s")
	v.SetDefault("scan.workers", 4)
	v.SetDefault("suppression_file", "")

	v.SetDefault("enrich.epss", true)
	v.SetDefault("enrich.kev", true)
	v.SetDefault("enrich.skip_update", false)
	v.SetDefault("enrich.epss_threshold", 0.0)
	v.SetDefault("enrich.kev_only", false)

	v.SetDefault("policy.fail_on_cvss", 0.0)
	v.SetDefault("policy.fail_on_kev", false)
	v.SetDefault("policy.fail_on_epss", 0.0)

	v.SetDefault("metrics.textfile", "")
}

// Load reads the configuration into a Config. file is an optional YAML
// file; a .env file in the working directory is loaded into the process
// environment first when present.
func Load(v *viper.Viper, file string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) finalize() error {
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.DSN == "" {
			c.Database.DSN = filepath.Join(c.DataDir, "cve.db")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	if c.Search.MinScore <= 0 || c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be in (0, 1], got %v", c.Search.MinScore)
	}
	if c.Search.MaxResults < 1 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be positive, got %d", c.Scan.Workers)
	}
	if c.NVD.MaxDownloadThreads < 1 {
		return fmt.Errorf("nvd.max_download_threads must be positive, got %d", c.NVD.MaxDownloadThreads)
	}
	if !strings.Contains(c.NVD.BaseURL, "%d") {
		return fmt.Errorf("nvd.base_url must contain %%d for the year, got %q", c.NVD.BaseURL)
	}
	if c.NVD.LegacyBaseURL != "" && !strings.Contains(c.NVD.LegacyBaseURL, "%d") {
		return fmt.Errorf("nvd.legacy_base_url must contain %%d for the year, got %q", c.NVD.LegacyBaseURL)
	}

	proxy, err := ResolveProxy(c.HTTP.Proxies, c.HTTP.ProxyID)
	if err != nil {
		return err
	}
	c.Proxy = proxy
	return nil
}

// ResolveProxy selects the proxy to use: the one named by id, the only one
// configured, or none when the list is empty.
func ResolveProxy(proxies []Proxy, id string) (*Proxy, error) {
	if id != "" {
		for i := range proxies {
			if proxies[i].ID == id {
				p := proxies[i]
				return &p, nil
			}
		}
		return nil, fmt.Errorf("%w: %q", ErrProxyNotFound, id)
	}
	switch len(proxies) {
	case 0:
		return nil, nil
	case 1:
		p := proxies[0]
		return &p, nil
	}
	return nil, fmt.Errorf("%w: %d proxies configured, set http.proxy_id", ErrAmbiguousProxy, len(proxies))
}
