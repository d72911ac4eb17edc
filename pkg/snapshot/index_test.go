// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package snapshot

import (
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/wingedpig/rirgeo/pkg/aggregate"
	"github.com/wingedpig/rirgeo/pkg/rirgeoerr"
)

func mustPrefix(t *testing.T, s string) netip.Prefix {
	t.Helper()
	p, err := netip.ParsePrefix(s)
	if err != nil {
		t.Fatalf("ParsePrefix(%q): %v", s, err)
	}
	return p
}

func TestIndexBuildAndLookup(t *testing.T) {
	pairs := []aggregate.Pair{
		{Prefix: mustPrefix(t, "10.0.0.0/8"), Country: "US"},
		{Prefix: mustPrefix(t, "10.1.0.0/16"), Country: "CA"},
		{Prefix: mustPrefix(t, "2001:db8::/32"), Country: "FR"},
	}

	dir := filepath.Join(t.TempDir(), "idx")
	idx, err := BuildIndex(dir, pairs)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	defer idx.Close()

	cases := []struct {
		ip   string
		want string
		ok   bool
	}{
		{"10.1.2.3", "CA", true},
		{"10.2.0.1", "US", true},
		{"11.0.0.1", "", false},
		{"2001:db8::1", "FR", true},
		{"2001:db9::1", "", false},
	}
	for _, c := range cases {
		addr := netip.MustParseAddr(c.ip)
		cc, ok, err := idx.Lookup(addr)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", c.ip, err)
		}
		if ok != c.ok || cc != c.want {
			t.Errorf("Lookup(%s) = (%q, %v), want (%q, %v)", c.ip, cc, ok, c.want, c.ok)
		}
	}
}

func TestIndexLookupInvalidAddress(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	idx, err := BuildIndex(dir, nil)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	defer idx.Close()

	if _, _, err := idx.Lookup(netip.Addr{}); err != rirgeoerr.InvalidAddress {
		t.Errorf("got %v, want InvalidAddress", err)
	}
}

func TestIndexEmpty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	idx, err := BuildIndex(dir, nil)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	defer idx.Close()

	if _, ok, err := idx.Lookup(netip.MustParseAddr("1.2.3.4")); err != nil || ok {
		t.Errorf("got ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}

func TestOpenIndex_MissingDatabase(t *testing.T) {
	if _, err := OpenIndex(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected an error opening a nonexistent index")
	}
}
