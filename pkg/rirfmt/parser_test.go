// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package rirfmt

import (
	"strings"
	"testing"
)

func TestParser_ScenarioA_IPv4StartPlusCount(t *testing.T) {
	// 1.0.16.0 is 4096-aligned, so 4096 hosts fit one /20 block.
	p := NewParser(strings.NewReader("apnic|JP|ipv4|1.0.16.0|4096|20120101|allocated\n"), "apnic")
	entries, err := p.ParseAll()
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1: %+v", len(entries), entries)
	}
	want := []string{"1.0.16.0/20"}
	for i, e := range entries {
		if e.Prefix.String() != want[i] {
			t.Errorf("entry %d: got %s, want %s", i, e.Prefix, want[i])
		}
		if e.Country != "JP" {
			t.Errorf("entry %d: got country %s, want JP", i, e.Country)
		}
	}
}

func TestParser_ScenarioB_IPv6Direct(t *testing.T) {
	p := NewParser(strings.NewReader("ripe|DE|ipv6|2a00::|12|20000101|allocated\n"), "ripe")
	entries, err := p.ParseAll()
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Prefix.String() != "2a00::/12" {
		t.Errorf("got %s, want 2a00::/12", entries[0].Prefix)
	}
}

func TestParser_SkipsUnknownTypeAndStatus(t *testing.T) {
	input := strings.Join([]string{
		"# a comment",
		"",
		"apnic|*|asn|1234|1|20120101|allocated",
		"apnic||ipv4|1.0.0.0|10|20120101|reserved",
		"apnic|JP|ipv4|short|field",
		"apnic2|summary|ipv4||100|||",
	}, "\n")
	p := NewParser(strings.NewReader(input), "apnic")
	entries, err := p.ParseAll()
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("got %d entries, want 0: %+v", len(entries), entries)
	}
}

func TestParser_MalformedPrefixDropsLineWithWarning(t *testing.T) {
	p := NewParser(strings.NewReader("ripe|DE|ipv6|2a00::1|12|20000101|allocated\n"), "ripe")
	entries, err := p.ParseAll()
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("got %d entries, want 0 (host bits set)", len(entries))
	}
	if len(p.Warnings()) == 0 {
		t.Fatalf("expected a warning for malformed ipv6 prefix")
	}
}

func TestParser_DateSentinel(t *testing.T) {
	p := NewParser(strings.NewReader("arin|US|ipv4|192.0.2.0|256|garbage|assigned\n"), "arin")
	entries, err := p.ParseAll()
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if !entries[0].Date.Equal(EpochSentinel) {
		t.Errorf("got date %v, want sentinel %v", entries[0].Date, EpochSentinel)
	}
}

func TestIPv4CIDRsFromCount_BigRange(t *testing.T) {
	got := ipv4CIDRsFromCount("0.0.0.1", "4294967294")
	if len(got) == 0 {
		t.Fatal("expected decomposition")
	}
	for _, g := range got {
		if g.err != nil {
			t.Fatalf("unexpected error: %v", g.err)
		}
	}
	if got[0].prefix.String() != "0.0.0.1/32" {
		t.Errorf("first block: got %s, want 0.0.0.1/32", got[0].prefix)
	}
}
