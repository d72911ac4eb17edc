// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/wingedpig/rirgeo/pkg/countries"
	"github.com/wingedpig/rirgeo/pkg/lookupengine"
	"github.com/wingedpig/rirgeo/pkg/rirgeoerr"
	"github.com/wingedpig/rirgeo/pkg/snapshot"
)

type lookupResult struct {
	IP          string `json:"ip"`
	CountryCode string `json:"country_code,omitempty"`
	CountryName string `json:"country_name,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Resolved    bool   `json:"resolved"`
}

func loadEngine(dataDir string) (*lookupengine.Engine, error) {
	engine, err := lookupengine.Load(snapshotDir(dataDir))
	if errors.Is(err, rirgeoerr.DataUnavailable) {
		return nil, fmt.Errorf("%w: run `rirgeo update` first", rirgeoerr.DataUnavailable)
	}
	return engine, err
}

func lookupCmd(args []string) error {
	fs := flag.NewFlagSet("lookup", flag.ExitOnError)
	format := fs.String("format", "table", "output format: table, json, or csv")
	withCountryName := fs.Bool("country-name", false, "include the country's full name")
	withCurrency := fs.Bool("currency", false, "include the country's currency code")
	dataDir := fs.String("data-dir", defaultDataDir(), "directory holding the published snapshot")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ips := fs.Args()
	if len(ips) == 0 {
		return errors.New("lookup: at least one <ip> argument is required")
	}

	engine, err := loadEngine(*dataDir)
	if err != nil {
		return err
	}

	results := make([]lookupResult, 0, len(ips))
	for _, ip := range ips {
		res := lookupResult{IP: ip}
		cc, ok, err := engine.Resolve(ip)
		if err != nil {
			if errors.Is(err, rirgeoerr.InvalidAddress) {
				fmt.Fprintf(os.Stderr, "WARN: lookup: invalid address %q, skipping\n", ip)
				continue
			}
			return err
		}
		if ok {
			res.Resolved = true
			res.CountryCode = cc
			if info, found := countries.Lookup(cc); found {
				if *withCountryName {
					res.CountryName = info.Name
				}
				if *withCurrency {
					res.Currency = info.Currency
				}
			}
		}
		results = append(results, res)
	}

	return printLookupResults(os.Stdout, results, *format)
}

func printLookupResults(w io.Writer, results []lookupResult, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "csv":
		cw := csv.NewWriter(w)
		defer cw.Flush()
		for _, r := range results {
			cc := r.CountryCode
			if !r.Resolved {
				cc = "Unknown"
			}
			row := []string{r.IP, cc}
			if r.CountryName != "" {
				row = append(row, r.CountryName)
			}
			if r.Currency != "" {
				row = append(row, r.Currency)
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		return nil
	case "table":
		tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
		fmt.Fprintln(tw, "IP\tCOUNTRY\tNAME\tCURRENCY")
		for _, r := range results {
			cc := r.CountryCode
			if !r.Resolved {
				cc = "Unknown"
			}
			name := r.CountryName
			if name == "" {
				name = "-"
			}
			currency := r.Currency
			if currency == "" {
				currency = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.IP, cc, name, currency)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("lookup: unknown format %q", format)
	}
}

// snapshotFiles lists every file a published snapshot directory should
// contain, in display order, matching cli.py's status command's
// processed_files listing (minus country.mmdb, which is the teacher's
// own build artifact and isn't part of this snapshot format).
var snapshotFiles = []string{"prefixes_ipv4_agg.csv", "prefixes_ipv6_agg.csv", "metadata.json"}

func statusCmd(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	dataDir := fs.String("data-dir", defaultDataDir(), "directory holding the published snapshot")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir := snapshotDir(*dataDir)
	fmt.Printf("snapshot directory: %s\n", dir)
	fmt.Println("files:")
	for _, name := range snapshotFiles {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			fmt.Printf("  [MISSING] %s\n", name)
			continue
		}
		fmt.Printf("  [OK] %s: %d bytes\n", name, info.Size())
	}

	if !snapshot.Exists(dir) {
		fmt.Println("no snapshot found; run `rirgeo update`")
		return nil
	}
	snap, err := snapshot.Load(dir)
	if err != nil {
		return err
	}
	fmt.Printf("generated: %s\n", snap.Metadata.GeneratedTimestamp)
	fmt.Printf("IPv4 prefixes: %d\n", snap.Metadata.Statistics.TotalIPv4Aggregated)
	fmt.Printf("IPv6 prefixes: %d\n", snap.Metadata.Statistics.TotalIPv6Aggregated)
	fmt.Printf("conflicts recorded: %d\n", snap.Metadata.Statistics.ConflictCount)
	return nil
}

type fieldKind int

const (
	fieldCountryCode fieldKind = iota
	fieldCountryName
	fieldCurrency
)

// fieldCmd implements the country/country_code/currency single-field
// shortcuts: print "Unknown" when unresolved, exit non-zero only on
// invalid input.
func fieldCmd(args []string, kind fieldKind) error {
	fs := flag.NewFlagSet("field", flag.ExitOnError)
	dataDir := fs.String("data-dir", defaultDataDir(), "directory holding the published snapshot")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ip, err := requireArg(fs.Args(), "field")
	if err != nil {
		return err
	}

	engine, err := loadEngine(*dataDir)
	if err != nil {
		return err
	}

	cc, ok, err := engine.Resolve(ip)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Unknown")
		return nil
	}

	switch kind {
	case fieldCountryCode:
		fmt.Println(cc)
	case fieldCountryName:
		if info, found := countries.Lookup(cc); found {
			fmt.Println(info.Name)
		} else {
			fmt.Println("Unknown")
		}
	case fieldCurrency:
		if info, found := countries.Lookup(cc); found {
			fmt.Println(info.Currency)
		} else {
			fmt.Println("Unknown")
		}
	}
	return nil
}
