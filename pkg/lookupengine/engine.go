// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package lookupengine resolves IP addresses to country codes via
// longest-prefix-match against a pair of family-locked radix tries.
//
// Grounded on pkg/iporgdb/lookup.go's GetByIP: "resolve an address
// against a committed dataset, return a typed not-found sentinel instead
// of panicking", generalized here from a LevelDB seek/prev scan to a
// trie descent.
package lookupengine

import (
	"net/netip"

	"github.com/wingedpig/rirgeo/pkg/aggregate"
	"github.com/wingedpig/rirgeo/pkg/radixtrie"
	"github.com/wingedpig/rirgeo/pkg/rirgeoerr"
	"github.com/wingedpig/rirgeo/pkg/snapshot"
)

// Family distinguishes which trie a query should be routed to.
type Family int

const (
	// FamilyAuto detects the family from the address itself.
	FamilyAuto Family = iota
	FamilyV4
	FamilyV6
)

// Engine serves longest-prefix-match country lookups over a pair of
// tries built from one aggregated snapshot. The zero value is
// Uninitialized; NewFromAggregated or Load transitions it to Ready.
// There is no other transition — a rebuild produces a new Engine value,
// it never mutates one in place.
type Engine struct {
	v4    *radixtrie.Trie
	v6    *radixtrie.Trie
	ready bool
}

// NewFromAggregated builds a Ready engine directly from the Aggregator's
// output, without touching the SnapshotStore. Used by `rirgeo update` to
// serve queries from the freshly built dataset without a reload.
func NewFromAggregated(pairs []aggregate.Pair) *Engine {
	e := &Engine{
		v4: radixtrie.NewTrie(false),
		v6: radixtrie.NewTrie(true),
	}
	for _, p := range pairs {
		data := radixtrie.PrefixData{CountryCode: p.Country, PrefixStr: p.Prefix.String()}
		if p.Prefix.Addr().Is4() {
			e.v4.Insert(p.Prefix, data)
		} else {
			e.v6.Insert(p.Prefix, data)
		}
	}
	e.ready = true
	return e
}

// Load reads a published snapshot from dir and builds a Ready engine
// from it. This is the Uninitialized -> Ready transition used by every
// command except `rirgeo update`, which already holds the aggregated
// pairs in memory and calls NewFromAggregated directly instead.
func Load(dir string) (*Engine, error) {
	if !snapshot.Exists(dir) {
		return nil, rirgeoerr.DataUnavailable
	}
	snap, err := snapshot.Load(dir)
	if err != nil {
		return nil, err
	}
	pairs := make([]aggregate.Pair, 0, len(snap.IPv4)+len(snap.IPv6))
	pairs = append(pairs, snap.IPv4...)
	pairs = append(pairs, snap.IPv6...)
	return NewFromAggregated(pairs), nil
}

// Resolve returns the country code covering ip, or ("", false) if no
// prefix matches. It returns rirgeoerr.InvalidAddress if ip does not
// parse, and rirgeoerr.DataUnavailable if the engine has not been
// loaded yet.
func (e *Engine) Resolve(ip string) (string, bool, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", false, rirgeoerr.InvalidAddress
	}
	return e.resolveAddr(addr, FamilyAuto)
}

// ResolveWithHint is Resolve, but skips family detection: the caller
// asserts ip belongs to family (v4 or v6), letting repeated lookups over
// a known-homogeneous batch skip the Is4/Is6 branch per call.
func (e *Engine) ResolveWithHint(ip string, family Family) (string, bool, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", false, rirgeoerr.InvalidAddress
	}
	return e.resolveAddr(addr, family)
}

func (e *Engine) resolveAddr(addr netip.Addr, family Family) (string, bool, error) {
	if !e.ready {
		return "", false, rirgeoerr.DataUnavailable
	}

	trie := e.trieFor(addr, family)
	if trie == nil {
		return "", false, rirgeoerr.InvalidAddress
	}

	data := trie.Lookup(addr)
	if data == nil {
		return "", false, nil
	}
	return data.CountryCode, true, nil
}

func (e *Engine) trieFor(addr netip.Addr, family Family) *radixtrie.Trie {
	switch family {
	case FamilyV4:
		return e.v4
	case FamilyV6:
		return e.v6
	default:
		if addr.Is4() || addr.Is4In6() {
			return e.v4
		}
		return e.v6
	}
}

// Ready reports whether the engine has a dataset loaded.
func (e *Engine) Ready() bool { return e.ready }
