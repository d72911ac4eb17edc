// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package snapshot persists an aggregated prefix set as two sorted CSV
// files plus a metadata.json document, and reloads them for the
// LookupEngine. Writes go to a scratch directory and are published with
// os.Rename so a reader never observes a half-written snapshot.
//
// Grounded on pkg/iptoasn/fetcher.go's temp-file + os.Rename pattern
// (the same atomicity technique, reused here for the snapshot's own
// commit instead of the download cache) and on output_writer.py's
// metadata shape, which spec.md requires verbatim.
package snapshot

import (
	"bufio"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/wingedpig/rirgeo/pkg/aggregate"
	"github.com/wingedpig/rirgeo/pkg/reconcile"
	"github.com/wingedpig/rirgeo/pkg/rirgeoerr"
)

const (
	ipv4FileName     = "prefixes_ipv4_agg.csv"
	ipv6FileName     = "prefixes_ipv6_agg.csv"
	metadataFileName = "metadata.json"
)

// SourceInfo describes one fetched registry file, as recorded by the
// Fetcher.
type SourceInfo struct {
	URL    string `json:"url"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// FileInfo describes one generated snapshot file.
type FileInfo struct {
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
	Count  int    `json:"count"`
}

// Statistics summarizes the counts that went into a snapshot.
type Statistics struct {
	TotalIPv4Aggregated int `json:"total_ipv4_aggregated"`
	TotalIPv6Aggregated int `json:"total_ipv6_aggregated"`
	ConflictCount       int `json:"conflict_count"`
}

// ConflictClaim is one registry's serialized claim within a ConflictRecord.
type ConflictClaim struct {
	Registry string `json:"registry"`
	Country  string `json:"country"`
	Date     string `json:"date"`
}

// ConflictRecord is the JSON-serialized form of a reconcile.Conflict:
// dates become ISO-8601 strings.
type ConflictRecord struct {
	Prefix  string          `json:"prefix"`
	Entries []ConflictClaim `json:"entries"`
	Chosen  ConflictClaim   `json:"chosen"`
}

// Metadata is the full metadata.json document.
type Metadata struct {
	GeneratedTimestamp string                `json:"generated_timestamp"`
	Sources            map[string]SourceInfo `json:"sources"`
	Files              map[string]FileInfo   `json:"files"`
	Statistics         Statistics            `json:"statistics"`
	Conflicts          []ConflictRecord      `json:"conflicts"`
}

// Snapshot is a fully loaded on-disk dataset: the two aggregated prefix
// sets plus their metadata document.
type Snapshot struct {
	IPv4     []aggregate.Pair
	IPv6     []aggregate.Pair
	Metadata Metadata
}

// Write serializes pairs and sources/conflicts to dir, via a sibling
// scratch directory renamed into place atomically. Any previous
// snapshot at dir is left untouched while the new files are written; it
// is renamed aside just before the final rename, put back if that rename
// fails, and removed once it succeeds.
func Write(dir string, pairs []aggregate.Pair, sources map[string]SourceInfo, conflicts []reconcile.Conflict) (Metadata, error) {
	var ipv4, ipv6 []aggregate.Pair
	for _, p := range pairs {
		if p.Prefix.Addr().Is4() {
			ipv4 = append(ipv4, p)
		} else {
			ipv6 = append(ipv6, p)
		}
	}
	sortPairs(ipv4)
	sortPairs(ipv6)

	scratch := dir + ".scratch"
	if err := os.RemoveAll(scratch); err != nil {
		return Metadata{}, fmt.Errorf("snapshot: clear scratch dir: %w", err)
	}
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return Metadata{}, fmt.Errorf("snapshot: create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	files := make(map[string]FileInfo, 3)

	v4Info, err := writeCSV(filepath.Join(scratch, ipv4FileName), ipv4)
	if err != nil {
		return Metadata{}, err
	}
	files[ipv4FileName] = v4Info

	v6Info, err := writeCSV(filepath.Join(scratch, ipv6FileName), ipv6)
	if err != nil {
		return Metadata{}, err
	}
	files[ipv6FileName] = v6Info

	meta := Metadata{
		GeneratedTimestamp: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		Sources:            sources,
		Files:              files,
		Statistics: Statistics{
			TotalIPv4Aggregated: len(ipv4),
			TotalIPv6Aggregated: len(ipv6),
			ConflictCount:       len(conflicts),
		},
		Conflicts: serializeConflicts(conflicts),
	}

	metaPath := filepath.Join(scratch, metadataFileName)
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return Metadata{}, fmt.Errorf("snapshot: marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, metaBytes, 0o644); err != nil {
		return Metadata{}, fmt.Errorf("snapshot: write metadata: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return Metadata{}, fmt.Errorf("snapshot: create parent dir: %w", err)
	}
	previous := dir + ".previous"
	if err := os.RemoveAll(previous); err != nil {
		return Metadata{}, fmt.Errorf("snapshot: clear previous-snapshot backup: %w", err)
	}
	if err := os.Rename(dir, previous); err != nil && !os.IsNotExist(err) {
		return Metadata{}, fmt.Errorf("snapshot: set aside previous snapshot: %w", err)
	}
	if err := os.Rename(scratch, dir); err != nil {
		os.Rename(previous, dir)
		return Metadata{}, fmt.Errorf("snapshot: publish snapshot: %w", err)
	}
	os.RemoveAll(previous)
	return meta, nil
}

// Load reads a previously published snapshot from dir.
func Load(dir string) (*Snapshot, error) {
	meta, err := loadMetadata(filepath.Join(dir, metadataFileName))
	if err != nil {
		return nil, err
	}

	ipv4, err := readCSV(filepath.Join(dir, ipv4FileName))
	if err != nil {
		return nil, err
	}
	ipv6, err := readCSV(filepath.Join(dir, ipv6FileName))
	if err != nil {
		return nil, err
	}

	return &Snapshot{IPv4: ipv4, IPv6: ipv6, Metadata: meta}, nil
}

// Exists reports whether a snapshot's metadata file is present at dir.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, metadataFileName))
	return err == nil
}

func sortPairs(pairs []aggregate.Pair) {
	sort.Slice(pairs, func(i, j int) bool {
		ai, aj := pairs[i].Prefix.Addr(), pairs[j].Prefix.Addr()
		if c := ai.Compare(aj); c != 0 {
			return c < 0
		}
		return pairs[i].Prefix.Bits() < pairs[j].Prefix.Bits()
	})
}

func writeCSV(path string, pairs []aggregate.Pair) (FileInfo, error) {
	f, err := os.Create(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("snapshot: create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.UseCRLF = false
	for _, p := range pairs {
		if err := w.Write([]string{p.Prefix.String(), p.Country}); err != nil {
			return FileInfo{}, fmt.Errorf("snapshot: write row in %s: %w", filepath.Base(path), err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return FileInfo{}, fmt.Errorf("snapshot: flush %s: %w", filepath.Base(path), err)
	}

	sum, size, err := hashFile(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Size: size, SHA256: sum, Count: len(pairs)}, nil
}

func readCSV(path string) ([]aggregate.Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", rirgeoerr.NotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("snapshot: open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = 2
	var out []aggregate.Pair
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: malformed row in %s: %v", rirgeoerr.DataCorrupt, filepath.Base(path), err)
		}
		prefix, err := netip.ParsePrefix(record[0])
		if err != nil {
			return nil, fmt.Errorf("%w: bad prefix %q in %s", rirgeoerr.DataCorrupt, record[0], filepath.Base(path))
		}
		out = append(out, aggregate.Pair{Prefix: prefix, Country: record[1]})
	}
	return out, nil
}

func loadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, fmt.Errorf("%w: metadata.json", rirgeoerr.NotFound)
		}
		return Metadata{}, fmt.Errorf("snapshot: read metadata.json: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("%w: metadata.json: %v", rirgeoerr.DataCorrupt, err)
	}
	return meta, nil
}

func serializeConflicts(conflicts []reconcile.Conflict) []ConflictRecord {
	if len(conflicts) == 0 {
		return []ConflictRecord{}
	}
	out := make([]ConflictRecord, len(conflicts))
	for i, c := range conflicts {
		entries := make([]ConflictClaim, len(c.Entries))
		for j, e := range c.Entries {
			entries[j] = ConflictClaim{Registry: e.Registry, Country: e.Country, Date: e.Date.Format("2006-01-02")}
		}
		out[i] = ConflictRecord{
			Prefix:  c.Prefix,
			Entries: entries,
			Chosen:  ConflictClaim{Registry: c.Chosen.Registry, Country: c.Chosen.Country, Date: c.Chosen.Date.Format("2006-01-02")},
		}
	}
	return out
}

func hashFile(path string) (sum string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("snapshot: reopen %s for hashing: %w", filepath.Base(path), err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("snapshot: hash %s: %w", filepath.Base(path), err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
