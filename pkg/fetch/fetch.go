// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package fetch downloads the five RIR delegated-extended files,
// falling back across each registry's known mirrors, and caches them
// locally with ETag conditional requests (If-None-Match) so an unchanged
// upstream costs one small HTTP round trip instead of a re-download.
// If-Modified-Since is not sent.
//
// Grounded on pkg/iptoasn/fetcher.go's Fetcher (conditional-GET +
// temp-file-then-rename cache shape), generalized from iptoasn's single
// source to five registries each with a mirror list, and on
// pkg/util/workers.Pool for bounding concurrent downloads under a rate
// limiter.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/wingedpig/rirgeo/pkg/util/workers"
)

// DefaultUserAgent identifies this client to RIR mirrors.
const DefaultUserAgent = "github.com/wingedpig/rirgeo"

// mirrors lists, per registry, the known-good delegated-extended file
// locations in the order they should be tried: the registry's own
// server first, then the mirrors other RIRs host of each other's data.
var mirrors = map[string][]string{
	"apnic": {
		"https://ftp.apnic.net/stats/apnic/delegated-apnic-extended-latest",
		"https://ftp.ripe.net/pub/stats/apnic/delegated-apnic-extended-latest",
	},
	"arin": {
		"https://ftp.arin.net/pub/stats/arin/delegated-arin-extended-latest",
		"https://ftp.ripe.net/pub/stats/arin/delegated-arin-extended-latest",
		"https://ftp.apnic.net/stats/arin/delegated-arin-extended-latest",
	},
	"ripe": {
		"https://ftp.ripe.net/pub/stats/ripencc/delegated-ripencc-extended-latest",
		"https://ftp.apnic.net/stats/ripe-ncc/delegated-ripencc-extended-latest",
		"https://ftp.lacnic.net/pub/stats/ripencc/delegated-ripencc-extended-latest",
	},
	"lacnic": {
		"https://ftp.lacnic.net/pub/stats/lacnic/delegated-lacnic-extended-latest",
		"https://ftp.ripe.net/pub/stats/lacnic/delegated-lacnic-extended-latest",
	},
	"afrinic": {
		"https://ftp.afrinic.net/stats/afrinic/delegated-afrinic-extended-latest",
		"https://ftp.ripe.net/pub/stats/afrinic/delegated-afrinic-extended-latest",
		"https://ftp.apnic.net/stats/afrinic/delegated-afrinic-extended-latest",
	},
}

// Registries lists the five RIRs fetched by a full update run, in a
// fixed order so pipeline output ordering is deterministic.
var Registries = []string{"apnic", "arin", "ripe", "lacnic", "afrinic"}

// SourceMeta records what was fetched for one registry.
type SourceMeta struct {
	URL    string `json:"url"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`

	etag string // the server's ETag response header, if any
}

type cacheRecord struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
	SHA256       string    `json:"sha256"`
	Size         int64     `json:"size"`
}

// Fetcher downloads and caches the RIR delegated files under cacheDir.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	pool     workers.Config
}

// New constructs a Fetcher that caches under cacheDir, bounding
// concurrent registry downloads to maxConcurrent, with request starts
// further limited to 4 per second (burst maxConcurrent) by a token-bucket
// limiter (grounded on workers.Config's RateLimit).
func New(cacheDir string, maxConcurrent int) *Fetcher {
	if maxConcurrent <= 0 {
		maxConcurrent = len(Registries)
	}
	return &Fetcher{
		client:   &http.Client{Timeout: 90 * time.Second},
		cacheDir: cacheDir,
		pool:     workers.Config{Workers: maxConcurrent, RateLimit: 4, BurstSize: maxConcurrent},
	}
}

// FetchAll downloads (or reuses the cache for) every registry in
// Registries and returns the local path to each. force bypasses the
// conditional-GET cache and re-downloads unconditionally.
func (f *Fetcher) FetchAll(ctx context.Context, force bool) (map[string]string, map[string]SourceMeta, error) {
	if err := os.MkdirAll(f.cacheDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("fetch: create cache dir: %w", err)
	}

	pool := workers.NewPool(ctx, f.pool)
	type outcome struct {
		registry string
		path     string
		meta     SourceMeta
		err      error
	}
	outcomes := make([]outcome, len(Registries))

	for i, registry := range Registries {
		i, registry := i, registry
		pool.Submit(i, func(ctx context.Context) error {
			path, meta, err := f.fetchOne(ctx, registry, force)
			outcomes[i] = outcome{registry: registry, path: path, meta: meta, err: err}
			return err
		})
	}
	for _, r := range pool.Wait() {
		// A task the pool never ran (cancelled context or limiter error)
		// left its outcome unset; record the pool's error for it.
		if r.Error != nil && outcomes[r.Index].err == nil {
			outcomes[r.Index] = outcome{registry: Registries[r.Index], err: r.Error}
		}
	}

	paths := make(map[string]string, len(Registries))
	metas := make(map[string]SourceMeta, len(Registries))
	var firstErr error
	for _, o := range outcomes {
		if o.err != nil {
			// Source I/O failures are logged and that registry is
			// skipped; the pipeline continues with whatever did load.
			fmt.Fprintf(os.Stderr, "WARN: fetch %s: %v\n", o.registry, o.err)
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		paths[o.registry] = o.path
		metas[o.registry] = o.meta
	}
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("fetch: all registries failed, first error: %w", firstErr)
	}
	return paths, metas, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, registry string, force bool) (string, SourceMeta, error) {
	urls, ok := mirrors[registry]
	if !ok || len(urls) == 0 {
		return "", SourceMeta{}, fmt.Errorf("fetch: unknown registry %q", registry)
	}

	dataPath := filepath.Join(f.cacheDir, registry+".txt")
	cachePath := filepath.Join(f.cacheDir, registry+".cache.json")

	var cached cacheRecord
	if !force {
		if raw, err := os.ReadFile(cachePath); err == nil {
			_ = json.Unmarshal(raw, &cached)
		}
	}

	var lastErr error
	for _, url := range urls {
		meta, changed, err := f.fetchURL(ctx, url, dataPath, cached, force)
		if err != nil {
			lastErr = err
			continue
		}
		if changed {
			record := cacheRecord{URL: url, ETag: meta.etag, Size: meta.Size, SHA256: meta.SHA256, LastModified: time.Now().UTC()}
			if raw, err := json.MarshalIndent(record, "", "  "); err == nil {
				_ = os.WriteFile(cachePath, raw, 0o644)
			}
		}
		return dataPath, meta, nil
	}
	return "", SourceMeta{}, fmt.Errorf("fetch: %s: all mirrors failed, last error: %w", registry, lastErr)
}

// fetchURL downloads url to a scratch file and renames it over dest on
// success. It reports changed=false without touching dest when the
// server returns 304 Not Modified against the cached ETag.
func (f *Fetcher) fetchURL(ctx context.Context, url, dest string, cached cacheRecord, force bool) (SourceMeta, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return SourceMeta{}, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	if !force && cached.URL == url && cached.ETag != "" {
		req.Header.Set("If-None-Match", cached.ETag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return SourceMeta{}, false, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return SourceMeta{URL: url, Size: cached.Size, SHA256: cached.SHA256}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return SourceMeta{}, false, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return SourceMeta{}, false, fmt.Errorf("create scratch file: %w", err)
	}
	defer func() {
		out.Close()
		os.Remove(tmp)
	}()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(out, h), resp.Body)
	if err != nil {
		return SourceMeta{}, false, fmt.Errorf("download %s: %w", url, err)
	}
	if err := out.Close(); err != nil {
		return SourceMeta{}, false, fmt.Errorf("close scratch file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return SourceMeta{}, false, fmt.Errorf("publish %s: %w", dest, err)
	}

	return SourceMeta{URL: url, Size: size, SHA256: hex.EncodeToString(h.Sum(nil)), etag: resp.Header.Get("ETag")}, true, nil
}
