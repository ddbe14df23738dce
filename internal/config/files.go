// Package config resolves the on-disk locations of files that live
// outside a database's data directory: the casbin ACL model and
// policy, shared across every database a process opens.
package config

import (
	"log"
	"os"
	"path/filepath"
)

// ACLModelFile and ACLPolicyFile are resolved per call, not cached in a
// package var, so tests can point ENSO_CONFIG_DIR at a scratch
// directory without cross-test leakage.
func ACLModelFile() string  { return configFile("model.conf") }
func ACLPolicyFile() string { return configFile("policy.csv") }

// configFile resolves filename under $ENSO_CONFIG_DIR, falling back to
// ~/.enso when unset.
func configFile(filename string) string {
	if dir := os.Getenv("ENSO_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, filename)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalln("Failed to get user home directory:", err)
	}
	return filepath.Join(homeDir, ".enso", filename)
}
