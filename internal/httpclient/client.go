// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package httpclient

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/bonial-oss/vulnmatch/internal/config"
)

const userAgent = "vulnmatch"

// HclogAdapter adapts an hclog.Logger to the resty.Logger interface.
type HclogAdapter struct {
	logger hclog.Logger
}

// NewHclogAdapter creates a new adapter that will forward messages to a hclog.Logger.
func NewHclogAdapter(logger hclog.Logger) resty.Logger {
	return &HclogAdapter{logger: logger}
}

// Errorf logs a message at error level.
func (a *HclogAdapter) Errorf(format string, v ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

// Warnf logs a message at warning level.
func (a *HclogAdapter) Warnf(format string, v ...interface{}) {
	a.logger.Warn(fmt.Sprintf(format, v...))
}

// Debugf logs a message at debug level.
func (a *HclogAdapter) Debugf(format string, v ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, v...))
}

// New returns a resty client with the configured timeout and TLS settings,
// routed through proxy when it is not nil. Requests are never retried: a
// failed segment download is reported once and the updater skips it until
// the next run.
func New(cfg config.HTTPConfig, proxy *config.Proxy, logger hclog.Logger) (*resty.Client, error) {
	client := resty.New()
	if logger != nil {
		client.SetLogger(NewHclogAdapter(logger))
	}
	client.
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent).
		SetTLSClientConfig(&tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.Insecure,
		})

	if proxy != nil {
		fn, err := proxyFunc(proxy)
		if err != nil {
			return nil, err
		}
		transport, ok := client.GetClient().Transport.(*http.Transport)
		if !ok {
			return nil, fmt.Errorf("unexpected HTTP transport %T", client.GetClient().Transport)
		}
		transport.Proxy = fn
	}
	return client, nil
}

// proxyFunc routes requests through p except for its non-proxy hosts.
// Entries match the host exactly or, with a leading dot or "*.", any
// subdomain.
func proxyFunc(p *config.Proxy) (func(*http.Request) (*url.URL, error), error) {
	u, err := url.Parse(p.URL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy URL %q", p.URL)
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return func(r *http.Request) (*url.URL, error) {
		if bypass(r.URL.Host, p.NonProxyHosts) {
			return nil, nil
		}
		return u, nil
	}, nil
}

func bypass(hostport string, nonProxyHosts []string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	for _, entry := range nonProxyHosts {
		entry = strings.ToLower(strings.TrimSpace(entry))
		switch {
		case entry == "":
		case strings.HasPrefix(entry, "*."):
			if strings.HasSuffix(host, entry[1:]) {
				return true
			}
		case strings.HasPrefix(entry, "."):
			if strings.HasSuffix(host, entry) {
				return true
			}
		case host == entry:
			return true
		}
	}
	return false
}
