// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package radixtrie builds the binary radix tries the LookupEngine walks
// for longest-prefix-match. Each Trie is family-locked (v4 or v6) and
// stores its nodes in a flat arena of indices rather than pointer-chasing
// structs, so a populated trie is a handful of contiguous slices instead
// of millions of individually heap-allocated nodes.
//
// Grounded on the public shape of the pack's ip2cc trie
// (NewTrie/InsertCIDR/Insert/Lookup/LookupString/PrefixData), adapted from
// its pointer-based left/right nodes to the arena representation spec.md
// §9 calls out explicitly.
package radixtrie

import (
	"fmt"
	"net/netip"
)

// none is the arena sentinel for "no child". Index 0 is reserved for it so
// that the zero value of a node slot (all fields zero) already means
// "absent", and real nodes start at index 1.
const none uint32 = 0

// PrefixData is the value stored at a trie node that terminates an
// inserted prefix.
type PrefixData struct {
	CountryCode string
	PrefixStr   string
}

type node struct {
	children [2]uint32
	has      bool
	data     PrefixData
}

// Trie is a binary radix trie locked to one address family. The zero
// value is not usable; construct with NewTrie.
type Trie struct {
	isV6  bool
	nodes []node
}

// NewTrie constructs an empty trie for IPv4 addresses (isV6 false) or
// IPv6 addresses (isV6 true). Every subsequent Insert/Lookup is rejected
// if its address belongs to the other family.
func NewTrie(isV6 bool) *Trie {
	t := &Trie{isV6: isV6}
	t.nodes = make([]node, 1, 64) // nodes[0] is the unused "none" sentinel
	t.nodes = append(t.nodes, node{children: [2]uint32{none, none}})
	return t
}

func (t *Trie) root() uint32 { return 1 }

// family reports whether addr belongs to this trie's locked family.
func (t *Trie) family(addr netip.Addr) bool {
	if t.isV6 {
		return addr.Is6() && !addr.Is4In6()
	}
	return addr.Is4()
}

// InsertCIDR parses cidr and inserts it with the given country code,
// rejecting malformed CIDRs and family mismatches.
func (t *Trie) InsertCIDR(cidr, countryCode string) error {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return fmt.Errorf("radixtrie: invalid CIDR %q: %w", cidr, err)
	}
	if !t.family(prefix.Addr()) {
		return fmt.Errorf("radixtrie: %q does not match trie family", cidr)
	}
	t.Insert(prefix, PrefixData{CountryCode: countryCode, PrefixStr: prefix.String()})
	return nil
}

// Insert walks (or extends) the trie to prefix.Bits() depth along
// prefix.Addr()'s bits and stores data at the terminal node. The caller
// is responsible for ensuring prefix belongs to this trie's family;
// Insert panics otherwise, since it is reached only from validated call
// sites (InsertCIDR, or callers that already checked the family).
func (t *Trie) Insert(prefix netip.Prefix, data PrefixData) {
	if !t.family(prefix.Addr()) {
		panic(fmt.Sprintf("radixtrie: Insert called with mismatched family for %s", prefix))
	}
	bits := addrBits(prefix.Addr())
	n := prefix.Bits()

	cur := t.root()
	for i := 0; i < n; i++ {
		bit := bits[i]
		next := t.nodes[cur].children[bit]
		if next == none {
			t.nodes = append(t.nodes, node{children: [2]uint32{none, none}})
			next = uint32(len(t.nodes) - 1)
			t.nodes[cur].children[bit] = next
		}
		cur = next
	}
	t.nodes[cur].has = true
	t.nodes[cur].data = data
}

// Lookup returns the PrefixData of the longest inserted prefix covering
// addr, or nil if none matches or addr belongs to the other family.
func (t *Trie) Lookup(addr netip.Addr) *PrefixData {
	if !t.family(addr) {
		return nil
	}
	bits := addrBits(addr)

	cur := t.root()
	var best *PrefixData
	if t.nodes[cur].has {
		d := t.nodes[cur].data
		best = &d
	}
	for i := 0; i < len(bits); i++ {
		next := t.nodes[cur].children[bits[i]]
		if next == none {
			break
		}
		cur = next
		if t.nodes[cur].has {
			d := t.nodes[cur].data
			best = &d
		}
	}
	return best
}

// LookupString parses s as an IP address and calls Lookup.
func (t *Trie) LookupString(s string) (*PrefixData, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return nil, fmt.Errorf("radixtrie: invalid address %q: %w", s, err)
	}
	return t.Lookup(addr), nil
}

// Len reports the number of arena nodes allocated, including the root
// and the unused sentinel. Exposed for snapshot size/memory diagnostics.
func (t *Trie) Len() int { return len(t.nodes) }

// addrBits returns addr's bits in MSB-first order as 0/1 indices.
func addrBits(addr netip.Addr) []byte {
	raw := addr.AsSlice()
	bits := make([]byte, len(raw)*8)
	for i, b := range raw {
		for j := 0; j < 8; j++ {
			if b&(0x80>>uint(j)) != 0 {
				bits[i*8+j] = 1
			}
		}
	}
	return bits
}
