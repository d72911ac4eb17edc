// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package rirfmt

import (
	"fmt"
	"net/netip"
	"strconv"
)

// ipv6PrefixFromStart builds the single prefix start/value for an ipv6
// delegated-file row. If start has host bits set beyond value, that is a
// parse error and the line is dropped (per spec).
func ipv6PrefixFromStart(startStr, valueStr string) []netipPrefixOrErr {
	start, err := netip.ParseAddr(startStr)
	if err != nil || !start.Is6() {
		return []netipPrefixOrErr{{err: fmt.Errorf("invalid ipv6 start %q: %v", startStr, err)}}
	}
	bits, err := strconv.Atoi(valueStr)
	if err != nil || bits < 0 || bits > 128 {
		return []netipPrefixOrErr{{err: fmt.Errorf("invalid ipv6 prefix length %q: %v", valueStr, err)}}
	}

	prefix := netip.PrefixFrom(start, bits)
	if prefix.Masked().Addr() != start {
		return []netipPrefixOrErr{{err: fmt.Errorf("ipv6 start %s has host bits set for /%d", startStr, bits)}}
	}
	return []netipPrefixOrErr{{prefix: prefix}}
}
