// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package lookupengine

import (
	"net/netip"
	"testing"

	"github.com/wingedpig/rirgeo/pkg/aggregate"
	"github.com/wingedpig/rirgeo/pkg/rirgeoerr"
)

func TestEngine_ScenarioE_LongestPrefixOverride(t *testing.T) {
	pairs := []aggregate.Pair{
		{Prefix: netip.MustParsePrefix("10.0.0.0/8"), Country: "A"},
		{Prefix: netip.MustParsePrefix("10.1.0.0/16"), Country: "B"},
	}
	e := NewFromAggregated(pairs)

	cases := []struct {
		ip      string
		want    string
		wantHit bool
	}{
		{"10.0.0.1", "A", true},
		{"10.1.2.3", "B", true},
		{"10.2.0.1", "A", true},
		{"11.0.0.1", "", false},
	}
	for _, c := range cases {
		cc, ok, err := e.Resolve(c.ip)
		if err != nil {
			t.Fatalf("Resolve(%s): unexpected error %v", c.ip, err)
		}
		if ok != c.wantHit || cc != c.want {
			t.Errorf("Resolve(%s) = (%q, %v), want (%q, %v)", c.ip, cc, ok, c.want, c.wantHit)
		}
	}
}

func TestEngine_UninitializedReturnsDataUnavailable(t *testing.T) {
	var e Engine
	_, _, err := e.Resolve("8.8.8.8")
	if err != rirgeoerr.DataUnavailable {
		t.Fatalf("got %v, want DataUnavailable", err)
	}
}

func TestEngine_InvalidAddress(t *testing.T) {
	e := NewFromAggregated(nil)
	_, _, err := e.Resolve("not-an-ip")
	if err != rirgeoerr.InvalidAddress {
		t.Fatalf("got %v, want InvalidAddress", err)
	}
}

func TestEngine_ResolveWithHintSkipsDetection(t *testing.T) {
	pairs := []aggregate.Pair{
		{Prefix: netip.MustParsePrefix("2001:db8::/32"), Country: "DE"},
	}
	e := NewFromAggregated(pairs)

	cc, ok, err := e.ResolveWithHint("2001:db8::1", FamilyV6)
	if err != nil || !ok || cc != "DE" {
		t.Fatalf("got (%q, %v, %v), want (DE, true, nil)", cc, ok, err)
	}
}

func TestEngine_MonotonicityRemovingMoreSpecificSameCountry(t *testing.T) {
	// Invariant #4: a more-specific prefix mapping to the SAME country as
	// the covering less-specific prefix must not change resolve(ip) for
	// addresses outside the more-specific one once it's removed.
	withBoth := NewFromAggregated([]aggregate.Pair{
		{Prefix: netip.MustParsePrefix("192.0.0.0/8"), Country: "US"},
		{Prefix: netip.MustParsePrefix("192.0.2.0/24"), Country: "US"},
	})
	withoutSpecific := NewFromAggregated([]aggregate.Pair{
		{Prefix: netip.MustParsePrefix("192.0.0.0/8"), Country: "US"},
	})

	for _, ip := range []string{"192.1.1.1", "192.255.0.1"} {
		a, _, _ := withBoth.Resolve(ip)
		b, _, _ := withoutSpecific.Resolve(ip)
		if a != b {
			t.Errorf("resolve(%s) changed after removing a same-country more-specific prefix: %q vs %q", ip, a, b)
		}
	}
}

func TestEngine_EmptyDatasetAlwaysMisses(t *testing.T) {
	e := NewFromAggregated(nil)
	cc, ok, err := e.Resolve("1.2.3.4")
	if err != nil || ok || cc != "" {
		t.Fatalf("got (%q, %v, %v), want (\"\", false, nil)", cc, ok, err)
	}
}
