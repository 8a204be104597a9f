// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package update keeps the local vulnerability store in sync with the NVD
// feeds. Segments are selected by comparing remote and stored timestamps,
// downloaded by a bounded pool and ingested one at a time.
package update

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/bonial-oss/vulnmatch/internal/cache"
	"github.com/bonial-oss/vulnmatch/internal/config"
	"github.com/bonial-oss/vulnmatch/internal/download"
	"github.com/bonial-oss/vulnmatch/internal/metrics"
	"github.com/bonial-oss/vulnmatch/internal/nvd"
)

// LastUpdateRunProperty holds the id of the last update that ingested data.
const LastUpdateRunProperty = "last_update_run"

const proxyHint = "unable to check the NVD feeds for updates; analysis continues with the existing data. " +
	"If this host is behind a proxy, configure http.proxies"

type State int

const (
	Idle State = iota
	CheckingTimestamps
	NothingToDo
	Downloading
	Processing
	Maintenance
	Done
	Failed
)

var stateNames = map[State]string{
	Idle:               "idle",
	CheckingTimestamps: "checking_timestamps",
	NothingToDo:        "nothing_to_do",
	Downloading:        "downloading",
	Processing:         "processing",
	Maintenance:        "maintenance",
	Done:               "done",
	Failed:             "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Error reports a segment that could not be processed. It aborts the
// update.
type Error struct {
	Segment string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("processing segment %s: %v", e.Segment, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Store is the part of the vulnerability store the updater writes to.
type Store interface {
	Properties(ctx context.Context) (map[string]string, error)
	SetProperty(ctx context.Context, key, value string) error
	Ingest(ctx context.Context, feed *nvd.Feed, properties map[string]string) error
	Cleanup(ctx context.Context) error
}

// Fetcher retrieves feed files and their modification times.
type Fetcher interface {
	LastModified(ctx context.Context, url string) (time.Time, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Options struct {
	// Marker records the last successful check. While fresh, Update
	// returns without contacting the remote side.
	Marker  *cache.Cache
	Metrics *metrics.Metrics
	Logger  hclog.Logger
}

type Updater struct {
	cfg     config.NVDConfig
	store   Store
	fetcher Fetcher
	marker  *cache.Cache
	metrics *metrics.Metrics
	logger  hclog.Logger
	now     func() time.Time

	mu    sync.Mutex
	state State
}

func New(cfg config.NVDConfig, st Store, f Fetcher, opts Options) *Updater {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Updater{
		cfg:     cfg,
		store:   st,
		fetcher: f,
		marker:  opts.Marker,
		metrics: opts.Metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// State returns the state reached by the current or last Update.
func (u *Updater) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *Updater) setState(s State) {
	u.mu.Lock()
	u.state = s
	u.mu.Unlock()
	u.logger.Trace("update state", "state", s)
}

// RetrieveRemoteTimestamps lists every configured segment with its remote
// modification time.
func (u *Updater) RetrieveRemoteTimestamps(ctx context.Context) (*Updateable, error) {
	updates := NewUpdateable()
	updates.Add(&UpdateableEntry{ID: ModifiedID, URL: u.cfg.ModifiedURL, LegacyURL: u.cfg.ModifiedLegacyURL})
	for year := u.cfg.StartYear; year <= u.now().Year(); year++ {
		e := &UpdateableEntry{ID: strconv.Itoa(year), URL: fmt.Sprintf(u.cfg.BaseURL, year)}
		if u.cfg.LegacyBaseURL != "" {
			e.LegacyURL = fmt.Sprintf(u.cfg.LegacyBaseURL, year)
		}
		updates.Add(e)
	}
	if u.cfg.CPEDictionaryURL != "" {
		updates.Add(&UpdateableEntry{ID: DictionaryID, URL: u.cfg.CPEDictionaryURL})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(u.cfg.MaxDownloadThreads, 1))
	for _, e := range updates.Entries() {
		g.Go(func() error {
			ts, err := u.fetcher.LastModified(gctx, e.URL)
			if err != nil {
				return err
			}
			e.Timestamp = ts.UnixMilli()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return updates, nil
}

// GetUpdatesNeeded flags the segments to download. A stored modified
// timestamp equal to the remote one needs nothing; one younger than the
// freshness window needs only the modified segment; otherwise every
// segment whose stored timestamp differs from the remote one is needed.
// A segment never stored is needed in every case.
func (u *Updater) GetUpdatesNeeded(ctx context.Context) (*Updateable, error) {
	updates, err := u.RetrieveRemoteTimestamps(ctx)
	if err != nil {
		return nil, err
	}
	props, err := u.store.Properties(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading stored timestamps: %w", err)
	}
	for _, e := range updates.Entries() {
		if v, ok := props[e.ID]; ok {
			if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
				e.Stored = ts
			}
		}
	}

	modified, _ := updates.Get(ModifiedID)
	window := time.Duration(u.cfg.ModifiedValidForDays) * 24 * time.Hour
	switch {
	case modified.Stored != 0 && modified.Stored == modified.Timestamp:
		u.logger.Debug("stored data matches the remote feeds")
	case modified.Stored != 0 && u.now().Sub(time.UnixMilli(modified.Stored)) < window:
		modified.NeedsUpdate = true
	default:
		for _, e := range updates.Entries() {
			e.NeedsUpdate = e.ID == ModifiedID || e.Stored != e.Timestamp
		}
	}
	for _, e := range updates.Entries() {
		if e.ID != ModifiedID && e.Stored == 0 {
			e.NeedsUpdate = true
		}
	}
	return updates, nil
}

// Update brings the store up to date. Failing to reach the remote side is
// logged and leaves the existing data in place; a segment that cannot be
// processed aborts the update with an *Error.
func (u *Updater) Update(ctx context.Context) error {
	start := u.now()
	u.setState(CheckingTimestamps)

	if u.marker != nil && u.marker.IsFresh() {
		u.logger.Info("skipping update check, checked recently")
		u.setState(NothingToDo)
		return nil
	}

	updates, err := u.GetUpdatesNeeded(ctx)
	if err != nil {
		u.setState(Failed)
		var dfe *download.DownloadFailedError
		if errors.As(err, &dfe) {
			u.logger.Warn(proxyHint, "error", err)
			return nil
		}
		return err
	}

	needed := updates.Needed()
	if len(needed) == 0 {
		u.touchMarker()
		u.setState(NothingToDo)
		return nil
	}

	u.logger.Info("updating vulnerability data", "segments", len(needed))
	u.setState(Downloading)
	if err := u.process(ctx, needed); err != nil {
		u.setState(Failed)
		return err
	}

	u.setState(Maintenance)
	if err := u.store.Cleanup(ctx); err != nil {
		u.setState(Failed)
		return fmt.Errorf("store maintenance: %w", err)
	}
	runID := uuid.NewString()
	if err := u.store.SetProperty(ctx, LastUpdateRunProperty, runID); err != nil {
		u.setState(Failed)
		return err
	}
	u.touchMarker()
	elapsed := u.now().Sub(start)
	u.metrics.ObserveUpdate(elapsed)
	u.logger.Info("update complete", "run", runID, "duration", elapsed.Round(time.Millisecond))
	u.setState(Done)
	return nil
}

func (u *Updater) touchMarker() {
	if u.marker == nil {
		return
	}
	if err := u.marker.Touch(); err != nil {
		u.logger.Warn("unable to record update check", "error", err)
	}
}

type segment struct {
	entry   *UpdateableEntry
	primary []byte
	legacy  []byte
}

// process downloads the needed segments with a bounded pool and ingests
// them from a single consumer. The modified segment goes last so it
// overrides the yearly data. A segment that failed to download keeps no
// timestamp, so the next run retries it.
func (u *Updater) process(ctx context.Context, needed []*UpdateableEntry) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	segments := make(chan segment)

	var g errgroup.Group
	g.SetLimit(min(max(u.cfg.MaxDownloadThreads, 1), len(needed)))
	go func() {
		defer close(segments)
		for _, e := range needed {
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				seg, err := u.download(ctx, e)
				u.metrics.SegmentDownloaded(err == nil)
				if err != nil {
					if ctx.Err() == nil {
						u.logger.Warn("segment download failed, skipping", "segment", e.ID, "error", err)
					}
					return nil
				}
				select {
				case segments <- seg:
				case <-ctx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	var (
		modified *segment
		procErr  error
		started  bool
	)
	for seg := range segments {
		if procErr != nil {
			continue
		}
		if !started {
			u.setState(Processing)
			started = true
		}
		if seg.entry.ID == ModifiedID {
			modified = &seg
			continue
		}
		if err := u.ingest(ctx, seg); err != nil {
			procErr = err
			cancel()
		}
	}
	if procErr != nil {
		return procErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if modified != nil {
		if err := u.ingest(ctx, *modified); err != nil {
			return err
		}
	}
	return nil
}

func (u *Updater) download(ctx context.Context, e *UpdateableEntry) (segment, error) {
	u.logger.Debug("downloading segment", "segment", e.ID, "url", e.URL)
	seg := segment{entry: e}
	var err error
	if seg.primary, err = u.fetcher.Fetch(ctx, e.URL); err != nil {
		return seg, err
	}
	if e.LegacyURL != "" {
		if seg.legacy, err = u.fetcher.Fetch(ctx, e.LegacyURL); err != nil {
			return seg, err
		}
	}
	return seg, nil
}

func (u *Updater) ingest(ctx context.Context, seg segment) error {
	u.logger.Info("processing segment", "segment", seg.entry.ID)
	var legacy io.Reader
	if seg.legacy != nil {
		legacy = bytes.NewReader(seg.legacy)
	}
	feed, err := nvd.Parse(bytes.NewReader(seg.primary), legacy)
	if err != nil {
		return &Error{Segment: seg.entry.ID, Err: err}
	}
	props := map[string]string{seg.entry.ID: strconv.FormatInt(seg.entry.Timestamp, 10)}
	if err := u.store.Ingest(ctx, feed, props); err != nil {
		return &Error{Segment: seg.entry.ID, Err: err}
	}
	u.metrics.SegmentIngested()
	return nil
}
