// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// defaultDataDir returns the OS-appropriate per-user location for
// rirgeo's cache and snapshot, overridable per command via --data-dir.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rirgeo"
	}
	return filepath.Join(home, ".rirgeo")
}

func rawDir(dataDir string) string      { return filepath.Join(dataDir, "raw") }
func snapshotDir(dataDir string) string { return filepath.Join(dataDir, "snapshot") }

func requireArg(args []string, name string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%s: missing required <ip> argument", name)
	}
	return args[0], nil
}
