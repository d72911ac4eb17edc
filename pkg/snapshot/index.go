// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package snapshot

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/wingedpig/rirgeo/pkg/aggregate"
	"github.com/wingedpig/rirgeo/pkg/rirgeoerr"
	"github.com/wingedpig/rirgeo/pkg/util/ipcodec"
)

// Index is an optional LevelDB-backed secondary index over an aggregated
// prefix set, keyed by range start for O(log n) seek/prev lookups. It
// exists as an independently verifiable cross-check against the trie
// built by pkg/lookupengine, not as the primary lookup path.
//
// Adapted from the teacher's pkg/iporgdb: the same seek/prev range-key
// technique over the same key encoding (pkg/util/ipcodec), but storing a
// bare country code per range instead of a full ASN/org/geo record.
type Index struct {
	db *leveldb.DB
}

type indexRecord struct {
	EndBytes []byte
	Country  string
	Prefix   string
}

// BuildIndex creates a fresh LevelDB index at path from an aggregated
// prefix set, overwriting anything already there. The caller owns path;
// `rirgeo update --verify` passes a temporary directory.
func BuildIndex(path string, pairs []aggregate.Pair) (*Index, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("snapshot: clear index at %s: %w", path, err)
	}
	opts := &opt.Options{Compression: opt.SnappyCompression}
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open index at %s: %w", path, err)
	}

	batch := new(leveldb.Batch)
	for _, p := range pairs {
		key := ipcodec.EncodeRangeKey(p.Prefix.Addr())
		_, end, err := ipcodec.CIDRToRange(p.Prefix.String())
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("snapshot: index range for %s: %w", p.Prefix, err)
		}
		value, err := msgpack.Marshal(indexRecord{
			EndBytes: ipcodec.IPToBytes(end),
			Country:  p.Country,
			Prefix:   p.Prefix.String(),
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("snapshot: encode index record for %s: %w", p.Prefix, err)
		}
		batch.Put(key, value)
	}
	if err := db.Write(batch, nil); err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot: write index batch: %w", err)
	}

	return &Index{db: db}, nil
}

// OpenIndex opens a previously built index for read-only querying.
func OpenIndex(path string) (*Index, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{Compression: opt.SnappyCompression, ErrorIfMissing: true})
	if err != nil {
		return nil, fmt.Errorf("snapshot: open index at %s: %w", path, err)
	}
	return &Index{db: db}, nil
}

// Close releases the index's file handles.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Lookup performs the seek/prev longest-match query used by
// `rirgeo update --verify` to cross-check the in-memory trie's answer
// for the first address of every aggregated prefix against this
// independently built index. After the seek it steps back through
// earlier ranges of the same family until one contains addr.
func (idx *Index) Lookup(addr netip.Addr) (string, bool, error) {
	if !addr.IsValid() {
		return "", false, rirgeoerr.InvalidAddress
	}

	searchKey := ipcodec.EncodeRangeKey(addr)
	wantV4 := addr.Is4()

	iter := idx.db.NewIterator(nil, nil)
	defer iter.Release()

	sameFamily := func(key []byte) bool {
		start, err := ipcodec.DecodeRangeKey(key)
		return err == nil && start.Is4() == wantV4
	}

	if !iter.Seek(searchKey) {
		if !iter.Last() || !sameFamily(iter.Key()) {
			return "", false, nil
		}
	} else {
		key := iter.Key()
		if !sameFamily(key) {
			if !iter.Prev() || !sameFamily(iter.Key()) {
				return "", false, nil
			}
		} else {
			start, err := ipcodec.DecodeRangeKey(key)
			if err != nil {
				return "", false, fmt.Errorf("%w: corrupt index key", rirgeoerr.DataCorrupt)
			}
			if start.Compare(addr) > 0 {
				if !iter.Prev() || !sameFamily(iter.Key()) {
					return "", false, nil
				}
			}
			// start <= addr: stay positioned here.
		}
	}

	// Step back from the nearest start at or below addr until a range
	// contains it: among nested ranges the most specific one comes first.
	for {
		start, err := ipcodec.DecodeRangeKey(iter.Key())
		if err != nil {
			return "", false, fmt.Errorf("%w: corrupt index key", rirgeoerr.DataCorrupt)
		}
		var rec indexRecord
		if err := msgpack.Unmarshal(iter.Value(), &rec); err != nil {
			return "", false, fmt.Errorf("%w: corrupt index value: %v", rirgeoerr.DataCorrupt, err)
		}
		end, err := ipcodec.BytesToIP(rec.EndBytes)
		if err != nil {
			return "", false, fmt.Errorf("%w: corrupt index end address", rirgeoerr.DataCorrupt)
		}

		if ipcodec.IsInRange(addr, start, end) {
			return rec.Country, true, nil
		}
		if !iter.Prev() || !sameFamily(iter.Key()) {
			return "", false, nil
		}
	}
}
