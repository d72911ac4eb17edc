// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package reconcile deduplicates overlapping RIR assertions for the same
// exact prefix under a deterministic tie-break policy.
package reconcile

import (
	"sort"
	"time"

	"github.com/wingedpig/rirgeo/pkg/rirfmt"
)

// Claim is one registry's assertion of a country code for a prefix,
// recorded in a Conflict.
type Claim struct {
	Registry string
	Country  string
	Date     time.Time
}

// Conflict records every claim that was made against a prefix and the one
// the tie-break chose.
type Conflict struct {
	Prefix  string
	Entries []Claim
	Chosen  Claim
}

// Result is the output of Reconcile: one entry per unique prefix plus the
// conflicts encountered along the way.
type Result struct {
	Entries   []rirfmt.Entry
	Conflicts []Conflict
}

// Reconcile groups entries by exact prefix and, for any prefix claimed by
// more than one entry, picks a winner via (date DESC, registry DESC-lex).
// Overlap between prefixes of different lengths is intentionally left
// unresolved here; that is the LookupEngine's job at query time.
func Reconcile(entries []rirfmt.Entry) Result {
	groups := make(map[string][]rirfmt.Entry, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		key := e.Prefix.String()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}

	var result Result
	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			result.Entries = append(result.Entries, group[0])
			continue
		}

		sorted := make([]rirfmt.Entry, len(group))
		copy(sorted, group)
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := sorted[i], sorted[j]
			if !a.Date.Equal(b.Date) {
				return a.Date.After(b.Date)
			}
			return a.Registry > b.Registry
		})

		chosen := sorted[0]
		result.Entries = append(result.Entries, chosen)

		countries := make(map[string]bool, len(group))
		for _, e := range group {
			countries[e.Country] = true
		}
		if len(countries) > 1 {
			claims := make([]Claim, len(group))
			for i, e := range group {
				claims[i] = Claim{Registry: e.Registry, Country: e.Country, Date: e.Date}
			}
			result.Conflicts = append(result.Conflicts, Conflict{
				Prefix:  key,
				Entries: claims,
				Chosen:  Claim{Registry: chosen.Registry, Country: chosen.Country, Date: chosen.Date},
			})
		}
	}
	return result
}
