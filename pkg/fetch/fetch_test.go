// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestFetchURL_DownloadsAndCaches(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("apnic|JP|ipv4|1.0.16.0|4096|20120101|allocated\n"))
	}))
	defer srv.Close()

	f := New(t.TempDir(), 1)
	dest := filepath.Join(t.TempDir(), "out.txt")

	meta, changed, err := f.fetchURL(context.Background(), srv.URL, dest, cacheRecord{}, false)
	if err != nil {
		t.Fatalf("fetchURL: %v", err)
	}
	if !changed {
		t.Fatal("expected changed=true on first fetch")
	}
	if meta.SHA256 == "" {
		t.Fatal("expected non-empty sha256")
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected downloaded content")
	}
	if hits != 1 {
		t.Fatalf("got %d hits, want 1", hits)
	}
}

func TestFetchURL_NotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	f := New(t.TempDir(), 1)
	dest := filepath.Join(t.TempDir(), "out.txt")
	cached := cacheRecord{URL: srv.URL, ETag: `"v1"`, Size: 4, SHA256: "abc"}

	meta, changed, err := f.fetchURL(context.Background(), srv.URL, dest, cached, false)
	if err != nil {
		t.Fatalf("fetchURL: %v", err)
	}
	if changed {
		t.Fatal("expected changed=false on 304")
	}
	if meta.SHA256 != "abc" {
		t.Fatalf("got %+v, want cached meta echoed back", meta)
	}
}

func TestFetchAll_AllRegistriesUnreachableReturnsError(t *testing.T) {
	// A Fetcher with no reachable mirrors for any registry must return
	// an aggregate error rather than hang or panic.
	f := New(t.TempDir(), 2)
	for k := range mirrors {
		mirrors[k] = []string{"http://127.0.0.1:1/unreachable"}
	}
	defer restoreMirrors()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := f.FetchAll(ctx, false)
	if err == nil {
		t.Fatal("expected an error when every mirror is unreachable")
	}
}

func restoreMirrors() {
	mirrors = map[string][]string{
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
}
