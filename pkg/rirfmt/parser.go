// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package rirfmt

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Parser reads one RIR delegated-extended file and emits Entry records.
//
// Lines are `|`-separated ASCII: registry|cc|type|start|value|date|status,
// trailing fields ignored. Lines that are empty, start with `#`, have
// fewer than seven fields, have an unrecognized type, or an unrecognized
// status are silently skipped (this is also how summary-header lines are
// filtered out).
type Parser struct {
	registry string
	scanner  *bufio.Scanner
	lineNum  int
	warnings []string
}

// NewParser creates a parser for a single registry's delegated file.
func NewParser(r io.Reader, registry string) *Parser {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	return &Parser{
		registry: registry,
		scanner:  scanner,
	}
}

// Warnings returns the malformed-line warnings accumulated so far.
func (p *Parser) Warnings() []string {
	return p.warnings
}

func (p *Parser) warnf(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf("%s line %d: "+format, append([]any{p.registry, p.lineNum}, args...)...))
}

// ParseAll reads every line to EOF and returns the entries that survived
// validation. A scanner I/O error is returned, but any entries parsed
// before the error are still returned alongside it.
func (p *Parser) ParseAll() ([]Entry, error) {
	var entries []Entry
	for {
		e, ok, err := p.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return entries, err
		}
		if ok {
			entries = append(entries, e...)
		}
	}
	return entries, nil
}

// ParseNext parses the next line from the input. A single ipv4 line may
// expand to more than one Entry (the start+count decomposition), so this
// returns a slice.
func (p *Parser) ParseNext() ([]Entry, bool, error) {
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return nil, false, fmt.Errorf("%s: scanner error at line %d: %w", p.registry, p.lineNum, err)
		}
		return nil, false, io.EOF
	}
	p.lineNum++

	line := strings.TrimRight(p.scanner.Text(), "\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, false, nil
	}

	fields := strings.Split(line, "|")
	if len(fields) < 7 {
		return nil, false, nil
	}

	cc := strings.ToUpper(strings.TrimSpace(fields[1]))
	typeField := strings.TrimSpace(fields[2])
	start := strings.TrimSpace(fields[3])
	value := strings.TrimSpace(fields[4])
	dateField := strings.TrimSpace(fields[5])
	statusField := strings.TrimSpace(fields[6])

	var family Family
	switch typeField {
	case "ipv4":
		family = FamilyV4
	case "ipv6":
		family = FamilyV6
	default:
		// Covers "asn" rows and the summary-header line, both silently
		// dropped: non-goal per the spec, not an error.
		return nil, false, nil
	}

	var status Status
	switch statusField {
	case "allocated":
		status = StatusAllocated
	case "assigned":
		status = StatusAssigned
	default:
		return nil, false, nil
	}

	date := parseDate(dateField)

	var prefixes []netipPrefixOrErr
	if family == FamilyV4 {
		prefixes = ipv4CIDRsFromCount(start, value)
	} else {
		prefixes = ipv6PrefixFromStart(start, value)
	}

	if len(prefixes) == 0 {
		p.warnf("failed to decompose %s/%s", start, value)
		return nil, false, nil
	}

	var entries []Entry
	for _, pe := range prefixes {
		if pe.err != nil {
			p.warnf("malformed prefix %s/%s: %v", start, value, pe.err)
			continue
		}
		entries = append(entries, Entry{
			Registry: p.registry,
			Country:  cc,
			Family:   family,
			Prefix:   pe.prefix,
			Date:     date,
			Status:   status,
		})
	}
	return entries, true, nil
}
