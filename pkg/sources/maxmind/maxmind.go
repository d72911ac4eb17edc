// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package maxmind adapts a GeoLite2-Country (or compatible) MMDB file
// into a supplementary country-code entry source for the reconciler,
// for networks a delegated file under-specifies or omits entirely.
//
// Adapted from the teacher's pkg/sources/maxmind Readers: stripped of
// its ASN lookups, City/region/lat-lon geo, and the binary-search
// network-boundary approximation (all ASN- or sub-country-grained,
// both out of scope here), keeping only a country-grained walk over the
// database's own network boundaries via maxminddb-golang's Networks
// iterator — which needs no approximation, since those boundaries are
// exact record boundaries rather than inferred ones.
package maxmind

import (
	"fmt"
	"net"
	"net/netip"
	"os"

	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"

	"github.com/wingedpig/rirgeo/pkg/rirgeoerr"
)

// Entry is one country-tagged network read directly from the MMDB.
type Entry struct {
	Prefix  netip.Prefix
	Country string
}

// Reader wraps an open GeoLite2-Country database. It keeps two handles
// on the same file: a maxminddb.Reader for the bulk Networks walk that
// Entries needs, and a lazily-opened geoip2.Reader for the cheaper
// single-address queries CountryForAddr serves.
type Reader struct {
	path string
	db   *maxminddb.Reader
	geo  *geoip2.Reader
}

// Open opens the MMDB file at path.
func Open(path string) (*Reader, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", rirgeoerr.NotFound, path)
		}
		return nil, fmt.Errorf("maxmind: open %s: %w", path, err)
	}
	return &Reader{path: path, db: db}, nil
}

// Close releases the underlying database's memory mapping(s).
func (r *Reader) Close() error {
	if r.geo != nil {
		r.geo.Close()
	}
	return r.db.Close()
}

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	RegisteredCountry struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"registered_country"`
}

// Entries walks every network in the database and returns one Entry per
// network that carries a resolvable country code. Networks with neither
// a country nor a registered_country field (anonymous/satellite ranges)
// are skipped, matching the parser's own silent-drop-unknown policy for
// rows it can't attribute to a country.
func (r *Reader) Entries() ([]Entry, error) {
	var entries []Entry
	networks := r.db.Networks(maxminddb.SkipAliasedNetworks)
	for networks.Next() {
		var rec countryRecord
		subnet, err := networks.Network(&rec)
		if err != nil {
			return nil, fmt.Errorf("maxmind: decode network: %w", err)
		}
		cc := rec.Country.ISOCode
		if cc == "" {
			cc = rec.RegisteredCountry.ISOCode
		}
		if cc == "" {
			continue
		}
		entries = append(entries, Entry{Prefix: subnet, Country: cc})
	}
	if err := networks.Err(); err != nil {
		return nil, fmt.Errorf("maxmind: iterate networks: %w", err)
	}
	return entries, nil
}

// CountryForAddr answers a single-address country query directly
// against the MMDB using geoip2-golang's decoded Country record, rather
// than walking every network via Entries. It's the cheaper path for ad
// hoc spot checks (e.g. comparing a MaxMind answer against the trie's
// for one address) where building the full entry list would be wasted
// work.
func (r *Reader) CountryForAddr(addr netip.Addr) (string, bool, error) {
	if r.geo == nil {
		geo, err := geoip2.Open(r.path)
		if err != nil {
			return "", false, fmt.Errorf("maxmind: open %s for country lookup: %w", r.path, err)
		}
		r.geo = geo
	}

	rec, err := r.geo.Country(net.IP(addr.AsSlice()))
	if err != nil {
		return "", false, fmt.Errorf("maxmind: country lookup: %w", err)
	}
	cc := rec.Country.IsoCode
	if cc == "" {
		cc = rec.RegisteredCountry.IsoCode
	}
	if cc == "" {
		return "", false, nil
	}
	return cc, true, nil
}
