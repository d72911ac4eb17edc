// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Command rirgeo resolves IP addresses to ISO-3166 country codes from an
// offline snapshot built from the five RIR delegated-extended files.
//
// Grounded on cmd/iporg-build/main.go's os.Args[1] dispatch and
// printUsage shape, and on the original tool's cli.py command set
// (update/lookup/status/country/country_code/currency).
package main

import (
	"fmt"
	"os"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "update":
		err = updateCmd(args)
	case "lookup":
		err = lookupCmd(args)
	case "status":
		err = statusCmd(args)
	case "country":
		err = fieldCmd(args, fieldCountryName)
	case "country_code":
		err = fieldCmd(args, fieldCountryCode)
	case "currency":
		err = fieldCmd(args, fieldCurrency)
	case "version":
		fmt.Printf("rirgeo version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`rirgeo - offline IP-to-country lookup from RIR delegated files

Usage:
  rirgeo update [--force] [--verify] [--data-dir PATH] [--maxmind-mmdb PATH]
  rirgeo lookup <ip>... [--format table|json|csv] [--country-name] [--currency] [--data-dir PATH]
  rirgeo status [--data-dir PATH]
  rirgeo country <ip>
  rirgeo country_code <ip>
  rirgeo currency <ip>
  rirgeo version
  rirgeo help

Examples:
  rirgeo update
  rirgeo lookup 8.8.8.8 2001:4860:4860::8888
  rirgeo lookup 8.8.8.8 --format json --country-name --currency
  rirgeo status`)
}
