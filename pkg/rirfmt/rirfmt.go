// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package rirfmt parses RIR "delegated-extended" statistics files into
// country-tagged IP prefixes.
package rirfmt

import (
	"net/netip"
	"time"
)

// Family tags an Entry or Prefix as IPv4 or IPv6. Kept as an explicit
// variant rather than inferred from netip.Addr at every call site, so v4
// and v6 data never mix in one container.
type Family uint8

const (
	FamilyV4 Family = iota
	FamilyV6
)

func (f Family) String() string {
	if f == FamilyV6 {
		return "ipv6"
	}
	return "ipv4"
}

// EpochSentinel is the registration date substituted for absent or
// malformed date fields.
var EpochSentinel = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// Status is the RIR allocation status. Lines with any other status are
// dropped before an Entry is ever constructed.
type Status uint8

const (
	StatusAllocated Status = iota
	StatusAssigned
)

// Entry is a single parsed RIR line that survived validation.
type Entry struct {
	Registry string // apnic, arin, ripe, lacnic, afrinic (maxmind for MMDB-derived entries)
	Country  string // two uppercase ASCII letters
	Family   Family
	Prefix   netip.Prefix
	Date     time.Time
	Status   Status
}
