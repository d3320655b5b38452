// Package discovery manages the on-disk descriptor files that let clients
// find a coordinator without a separate naming service. A coordinator
// writes one JSON file per partition/name pair at startup; clients read it
// at init to learn the coordinator's address.
package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Descriptor is the persisted record describing a coordinator. ClientAddr
// and DaemonAddr intentionally duplicate the same address: the reference
// coordinator this project grew out of never distinguished a client-facing
// address from an internal one, and nothing downstream depends on them
// differing.
type Descriptor struct {
	Name        string `json:"name"`
	Partition   string `json:"partition"`
	ClientAddr  string `json:"client_addr"`
	DaemonAddr  string `json:"daemon_addr"`
}

// ConfigBase returns the base configuration directory, honoring
// XDG_CONFIG_HOME and falling back to $HOME/.config.
func ConfigBase() (string, error) {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return base, nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", fmt.Errorf("discovery: neither XDG_CONFIG_HOME nor HOME is set")
	}
	return filepath.Join(home, ".config"), nil
}

func partitionDir(base, partition string) string {
	return filepath.Join(base, "heimdallr", partition)
}

// Write persists a Descriptor at <base>/heimdallr/<partition>/<name>,
// creating the partition directory if necessary. Safe to call repeatedly;
// each call simply overwrites the file.
func Write(base string, d Descriptor) (string, error) {
	dir := partitionDir(base, d.Partition)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("discovery: create partition directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, d.Name)
	encoded, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("discovery: marshal descriptor: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return "", fmt.Errorf("discovery: write descriptor %s: %w", path, err)
	}
	return path, nil
}

// Read loads the Descriptor for a given partition/name pair.
func Read(base, partition, name string) (Descriptor, error) {
	path := filepath.Join(partitionDir(base, partition), name)
	raw, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("discovery: open descriptor %s: %w", path, err)
	}
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return Descriptor{}, fmt.Errorf("discovery: parse descriptor %s: %w", path, err)
	}
	return d, nil
}

// ListPartition enumerates every coordinator descriptor known to a
// partition, for operator-facing debug tooling (e.g. "what coordinators
// are currently registered under partition X"). Matching is done with
// doublestar so a future caller can pass a glob instead of "*" without a
// second code path.
func ListPartition(base, partition string) ([]Descriptor, error) {
	dir := partitionDir(base, partition)
	entries, err := doublestar.FilepathGlob(filepath.Join(dir, "*"))
	if err != nil {
		return nil, fmt.Errorf("discovery: glob partition directory %s: %w", dir, err)
	}
	descriptors := make([]Descriptor, 0, len(entries))
	for _, path := range entries {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var d Descriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			continue
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}
