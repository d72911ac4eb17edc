// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package snapshot

import (
	"errors"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/wingedpig/rirgeo/pkg/aggregate"
	"github.com/wingedpig/rirgeo/pkg/reconcile"
	"github.com/wingedpig/rirgeo/pkg/rirgeoerr"
)

func TestWriteThenLoadRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snap")
	pairs := []aggregate.Pair{
		{Prefix: netip.MustParsePrefix("10.0.0.0/8"), Country: "US"},
		{Prefix: netip.MustParsePrefix("2001:db8::/32"), Country: "DE"},
	}
	sources := map[string]SourceInfo{
		"arin": {URL: "https://example.invalid/arin.txt", Size: 100, SHA256: "deadbeef"},
	}
	conflicts := []reconcile.Conflict{
		{
			Prefix: "192.0.2.0/24",
			Entries: []reconcile.Claim{
				{Registry: "arin", Country: "US", Date: time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)},
				{Registry: "ripe", Country: "GB", Date: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)},
			},
			Chosen: reconcile.Claim{Registry: "ripe", Country: "GB", Date: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)},
		},
	}

	meta, err := Write(dir, pairs, sources, conflicts)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if meta.Statistics.TotalIPv4Aggregated != 1 || meta.Statistics.TotalIPv6Aggregated != 1 {
		t.Fatalf("unexpected statistics: %+v", meta.Statistics)
	}
	if meta.Statistics.ConflictCount != 1 {
		t.Fatalf("got %d conflicts, want 1", meta.Statistics.ConflictCount)
	}

	if !Exists(dir) {
		t.Fatal("Exists reports false right after Write")
	}

	snap, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.IPv4) != 1 || snap.IPv4[0].Prefix.String() != "10.0.0.0/8" || snap.IPv4[0].Country != "US" {
		t.Fatalf("got IPv4 %+v", snap.IPv4)
	}
	if len(snap.IPv6) != 1 || snap.IPv6[0].Prefix.String() != "2001:db8::/32" || snap.IPv6[0].Country != "DE" {
		t.Fatalf("got IPv6 %+v", snap.IPv6)
	}
	if len(snap.Metadata.Conflicts) != 1 || snap.Metadata.Conflicts[0].Chosen.Registry != "ripe" {
		t.Fatalf("got conflicts %+v", snap.Metadata.Conflicts)
	}
	if snap.Metadata.Files[ipv4FileName].Count != 1 {
		t.Fatalf("got files info %+v", snap.Metadata.Files)
	}
}

func TestWriteIsDeterministic(t *testing.T) {
	pairs := []aggregate.Pair{
		{Prefix: netip.MustParsePrefix("10.0.1.0/24"), Country: "US"},
		{Prefix: netip.MustParsePrefix("10.0.0.0/24"), Country: "US"},
	}

	dirA := filepath.Join(t.TempDir(), "a")
	dirB := filepath.Join(t.TempDir(), "b")
	metaA, err := Write(dirA, pairs, nil, nil)
	if err != nil {
		t.Fatalf("Write A: %v", err)
	}
	metaB, err := Write(dirB, pairs, nil, nil)
	if err != nil {
		t.Fatalf("Write B: %v", err)
	}
	if metaA.Files[ipv4FileName].SHA256 != metaB.Files[ipv4FileName].SHA256 {
		t.Fatalf("expected identical sha256 for identical inputs")
	}
}

func TestLoadMissingSnapshot(t *testing.T) {
	if Exists(filepath.Join(t.TempDir(), "missing")) {
		t.Fatal("Exists reports true for a directory never written")
	}
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error loading a missing snapshot")
	}
	if !errors.Is(err, rirgeoerr.NotFound) {
		t.Errorf("got %v, want rirgeoerr.NotFound", err)
	}
}
