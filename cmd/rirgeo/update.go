// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"

	"github.com/wingedpig/rirgeo/pkg/aggregate"
	"github.com/wingedpig/rirgeo/pkg/fetch"
	"github.com/wingedpig/rirgeo/pkg/lookupengine"
	"github.com/wingedpig/rirgeo/pkg/reconcile"
	"github.com/wingedpig/rirgeo/pkg/rirfmt"
	"github.com/wingedpig/rirgeo/pkg/snapshot"
	"github.com/wingedpig/rirgeo/pkg/sources/maxmind"
)

func updateCmd(args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	force := fs.Bool("force", false, "bypass the conditional-GET cache and re-download every registry")
	dataDir := fs.String("data-dir", defaultDataDir(), "directory holding the raw cache and published snapshot")
	maxmindPath := fs.String("maxmind-mmdb", "", "optional path to a GeoLite2-Country MMDB used as a supplementary, lowest-priority source")
	workers := fs.Int("workers", 5, "concurrent registry downloads")
	verify := fs.Bool("verify", false, "cross-check the trie against an independently built LevelDB index before publishing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()

	f := fetch.New(rawDir(*dataDir), *workers)
	paths, sourceMetas, err := f.FetchAll(ctx, *force)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	var allEntries []rirfmt.Entry
	for _, registry := range fetch.Registries {
		path, ok := paths[registry]
		if !ok {
			fmt.Fprintf(os.Stderr, "WARN: update: no data fetched for %s, skipping\n", registry)
			continue
		}
		file, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "WARN: update: open %s: %v\n", path, err)
			continue
		}
		parser := rirfmt.NewParser(file, registry)
		entries, err := parser.ParseAll()
		file.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "WARN: update: parse %s: %v\n", registry, err)
			continue
		}
		for _, w := range parser.Warnings() {
			fmt.Fprintf(os.Stderr, "WARN: %s: %s\n", registry, w)
		}
		allEntries = append(allEntries, entries...)
	}

	if *maxmindPath != "" {
		mmEntries, err := loadMaxMindEntries(*maxmindPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "WARN: update: maxmind: %v\n", err)
		} else {
			allEntries = append(allEntries, mmEntries...)
		}
	}

	result := reconcile.Reconcile(allEntries)

	pairs := make([]aggregate.Pair, len(result.Entries))
	for i, e := range result.Entries {
		pairs[i] = aggregate.Pair{Prefix: e.Prefix, Country: e.Country}
	}
	aggregated := aggregate.Aggregate(pairs)

	if *verify {
		if err := verifyAgainstIndex(aggregated); err != nil {
			return fmt.Errorf("update: verify: %w", err)
		}
	}

	sources := make(map[string]snapshot.SourceInfo, len(sourceMetas))
	for registry, m := range sourceMetas {
		sources[registry] = snapshot.SourceInfo{URL: m.URL, Size: m.Size, SHA256: m.SHA256}
	}

	meta, err := snapshot.Write(snapshotDir(*dataDir), aggregated, sources, result.Conflicts)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	fmt.Printf("update complete: %d IPv4 prefixes, %d IPv6 prefixes, %d conflicts\n",
		meta.Statistics.TotalIPv4Aggregated, meta.Statistics.TotalIPv6Aggregated, meta.Statistics.ConflictCount)
	printConflictPreview(os.Stdout, result.Conflicts)
	fmt.Printf("snapshot written to %s at %s\n", snapshotDir(*dataDir), meta.GeneratedTimestamp)
	return nil
}

// printConflictPreview prints the first few resolved conflicts plus a
// "... and N more" tail, matching parser.py's deduplicate_entries
// console summary.
const conflictPreviewLimit = 5

func printConflictPreview(w io.Writer, conflicts []reconcile.Conflict) {
	if len(conflicts) == 0 {
		return
	}
	fmt.Fprintf(w, "resolved %d conflicts (chose most recent, ties to reverse-lexicographic registry):\n", len(conflicts))
	for _, c := range conflicts[:min(conflictPreviewLimit, len(conflicts))] {
		claims := make([]string, len(c.Entries))
		for i, e := range c.Entries {
			claims[i] = fmt.Sprintf("%s/%s/%s", e.Registry, e.Country, e.Date.Format("2006-01-02"))
		}
		fmt.Fprintf(w, "  %s: [%s] -> %s/%s/%s\n", c.Prefix, strings.Join(claims, ", "),
			c.Chosen.Registry, c.Chosen.Country, c.Chosen.Date.Format("2006-01-02"))
	}
	if len(conflicts) > conflictPreviewLimit {
		fmt.Fprintf(w, "  ... and %d more\n", len(conflicts)-conflictPreviewLimit)
	}
}

// verifyAgainstIndex builds a scratch LevelDB index from the same
// aggregated pairs the trie is built from, then cross-checks the two
// lookup paths over the representative address of every aggregated
// prefix. A mismatch here would mean the trie and the independently
// built index disagree on data both were handed identically, which can
// only happen from a bug in one of the two lookup implementations.
func verifyAgainstIndex(aggregated []aggregate.Pair) error {
	indexDir, err := os.MkdirTemp("", "rirgeo-verify-index-*")
	if err != nil {
		return fmt.Errorf("create scratch index dir: %w", err)
	}
	defer os.RemoveAll(indexDir)

	idx, err := snapshot.BuildIndex(indexDir, aggregated)
	if err != nil {
		return fmt.Errorf("build verification index: %w", err)
	}
	defer idx.Close()

	engine := lookupengine.NewFromAggregated(aggregated)

	mismatches := 0
	for _, p := range aggregated {
		addr := p.Prefix.Addr()
		trieCC, trieOK, err := engine.ResolveWithHint(addr.String(), hintFor(addr))
		if err != nil {
			return fmt.Errorf("trie lookup for %s: %w", addr, err)
		}
		idxCC, idxOK, err := idx.Lookup(addr)
		if err != nil {
			return fmt.Errorf("index lookup for %s: %w", addr, err)
		}
		if trieOK != idxOK || trieCC != idxCC {
			mismatches++
			fmt.Fprintf(os.Stderr, "WARN: update: verify mismatch for %s: trie=(%s,%v) index=(%s,%v)\n",
				addr, trieCC, trieOK, idxCC, idxOK)
		}
	}
	if mismatches > 0 {
		return fmt.Errorf("%d of %d addresses disagreed between trie and index", mismatches, len(aggregated))
	}
	fmt.Printf("verify: trie and index agree on all %d aggregated prefixes\n", len(aggregated))
	return nil
}

func hintFor(addr netip.Addr) lookupengine.Family {
	if addr.Is4() {
		return lookupengine.FamilyV4
	}
	return lookupengine.FamilyV6
}

// loadMaxMindEntries reads a GeoLite2-Country MMDB and tags every
// network with a date one day before the sentinel epoch, so it never
// outranks an actual RIR claim at the same exact prefix under the (date
// DESC, registry DESC-lex) tie-break, not even one whose own date fell
// back to the sentinel; it only fills gaps the delegated files leave
// uncovered.
func loadMaxMindEntries(path string) ([]rirfmt.Entry, error) {
	reader, err := maxmind.Open(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	mmEntries, err := reader.Entries()
	if err != nil {
		return nil, err
	}

	entries := make([]rirfmt.Entry, len(mmEntries))
	for i, e := range mmEntries {
		family := rirfmt.FamilyV4
		if e.Prefix.Addr().Is6() {
			family = rirfmt.FamilyV6
		}
		entries[i] = rirfmt.Entry{
			Registry: "maxmind",
			Country:  e.Country,
			Family:   family,
			Prefix:   e.Prefix,
			Date:     rirfmt.EpochSentinel.AddDate(0, 0, -1),
			Status:   rirfmt.StatusAllocated,
		}
	}
	return entries, nil
}
