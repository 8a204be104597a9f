// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package download fetches feed files and their modification times from
// http(s), s3:// and file:// locations.
package download

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bonial-oss/vulnmatch/internal/config"
)

// MaxSize bounds the size of a downloaded file after decompression.
const MaxSize = 512 * 1024 * 1024

// DownloadFailedError reports a failed download or an unusable remote
// timestamp.
type DownloadFailedError struct {
	URL string
	Err error
}

func (e *DownloadFailedError) Error() string {
	return fmt.Sprintf("download of %s failed: %v", e.URL, e.Err)
}

func (e *DownloadFailedError) Unwrap() error {
	return e.Err
}

func failed(rawURL string, err error) error {
	return &DownloadFailedError{URL: rawURL, Err: err}
}

// Fetcher retrieves files over HTTP with resty, from S3 compatible storage
// with minio, or from the local file system.
type Fetcher struct {
	client  *resty.Client
	s3      *minio.Client
	logger  hclog.Logger
	maxSize int64
}

// NewFetcher returns a fetcher using client for HTTP. s3:// URLs are only
// supported when s3cfg names an endpoint; they share client's transport.
func NewFetcher(client *resty.Client, s3cfg config.S3Config, logger hclog.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	f := &Fetcher{client: client, logger: logger, maxSize: MaxSize}
	if s3cfg.Endpoint != "" {
		mc, err := minio.New(s3cfg.Endpoint, &minio.Options{
			Creds:     credentials.NewStaticV4(s3cfg.AccessKey, s3cfg.SecretKey, ""),
			Secure:    s3cfg.UseSSL,
			Region:    s3cfg.Region,
			Transport: client.GetClient().Transport,
		})
		if err != nil {
			return nil, fmt.Errorf("creating S3 client: %w", err)
		}
		f.s3 = mc
	}
	return f, nil
}

type location struct {
	raw    string
	scheme string
	host   string
	path   string
}

func parseLocation(rawURL string) (location, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return location{}, failed(rawURL, err)
	}
	loc := location{raw: rawURL, scheme: strings.ToLower(u.Scheme), host: u.Host, path: u.Path}
	switch loc.scheme {
	case "http", "https":
		if u.Host == "" {
			return location{}, failed(rawURL, errors.New("missing host"))
		}
	case "s3":
		loc.path = strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || loc.path == "" {
			return location{}, failed(rawURL, errors.New("expected s3://bucket/key"))
		}
	case "file":
	case "":
		loc.scheme = "file"
	default:
		return location{}, failed(rawURL, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if loc.scheme == "file" && loc.path == "" {
		return location{}, failed(rawURL, errors.New("missing path"))
	}
	return loc, nil
}

// LastModified returns the modification time of the file at rawURL: the
// Last-Modified header for HTTP, the object's modification time for S3, the
// file's mtime otherwise.
func (f *Fetcher) LastModified(ctx context.Context, rawURL string) (time.Time, error) {
	loc, err := parseLocation(rawURL)
	if err != nil {
		return time.Time{}, err
	}
	switch loc.scheme {
	case "http", "https":
		resp, err := f.client.R().SetContext(ctx).Head(loc.raw)
		if err != nil {
			return time.Time{}, failed(rawURL, err)
		}
		if resp.IsError() {
			return time.Time{}, failed(rawURL, fmt.Errorf("HTTP %d", resp.StatusCode()))
		}
		header := resp.Header().Get("Last-Modified")
		if header == "" {
			return time.Time{}, failed(rawURL, errors.New("no Last-Modified header"))
		}
		t, err := http.ParseTime(header)
		if err != nil {
			return time.Time{}, failed(rawURL, fmt.Errorf("invalid Last-Modified %q: %w", header, err))
		}
		return t, nil
	case "s3":
		if f.s3 == nil {
			return time.Time{}, failed(rawURL, errors.New("s3.endpoint is not configured"))
		}
		info, err := f.s3.StatObject(ctx, loc.host, loc.path, minio.StatObjectOptions{})
		if err != nil {
			return time.Time{}, failed(rawURL, err)
		}
		return info.LastModified, nil
	default:
		fi, err := os.Stat(loc.path)
		if err != nil {
			return time.Time{}, failed(rawURL, err)
		}
		return fi.ModTime(), nil
	}
}

// Fetch downloads the file at rawURL. Files whose path ends in .gz are
// decompressed.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	loc, err := parseLocation(rawURL)
	if err != nil {
		return nil, err
	}
	body, err := f.open(ctx, loc)
	if err != nil {
		return nil, failed(rawURL, err)
	}
	defer body.Close()

	var r io.Reader = body
	if strings.HasSuffix(strings.ToLower(loc.path), ".gz") {
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, failed(rawURL, fmt.Errorf("creating gzip reader: %w", err))
		}
		defer gz.Close()
		r = gz
	}

	data, err := io.ReadAll(io.LimitReader(r, f.maxSize+1))
	if err != nil {
		return nil, failed(rawURL, fmt.Errorf("reading data: %w", err))
	}
	if int64(len(data)) > f.maxSize {
		return nil, failed(rawURL, fmt.Errorf("file exceeds %d bytes", f.maxSize))
	}
	f.logger.Debug("downloaded", "url", rawURL, "bytes", len(data))
	return data, nil
}

func (f *Fetcher) open(ctx context.Context, loc location) (io.ReadCloser, error) {
	switch loc.scheme {
	case "http", "https":
		resp, err := f.client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(loc.raw)
		if err != nil {
			return nil, err
		}
		body := resp.RawBody()
		if resp.StatusCode() != http.StatusOK {
			_, _ = io.Copy(io.Discard, body)
			body.Close()
			return nil, fmt.Errorf("HTTP %d", resp.StatusCode())
		}
		return body, nil
	case "s3":
		if f.s3 == nil {
			return nil, errors.New("s3.endpoint is not configured")
		}
		obj, err := f.s3.GetObject(ctx, loc.host, loc.path, minio.GetObjectOptions{})
		if err != nil {
			return nil, err
		}
		return obj, nil
	default:
		return os.Open(loc.path)
	}
}

// FetchWithFallback fetches rawURL with direct and, when that fails and a
// proxied fetcher is given, once more through it.
func FetchWithFallback(ctx context.Context, rawURL string, direct, proxied *Fetcher) ([]byte, error) {
	data, err := direct.Fetch(ctx, rawURL)
	if err == nil || proxied == nil {
		return data, err
	}
	direct.logger.Debug("direct download failed, retrying through proxy", "url", rawURL, "error", err)
	data, proxyErr := proxied.Fetch(ctx, rawURL)
	if proxyErr != nil {
		return nil, errors.Join(err, proxyErr)
	}
	return data, nil
}

// Gzip compresses data; feeds mirrored to disk or S3 are stored this way.
func Gzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
