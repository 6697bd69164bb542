// Package config resolves operator-tunable defaults for the recovery
// engine using Viper, following the pattern established in the teacher's
// internal/disk/dmg.go: a named config file searched across a handful of
// conventional locations, environment-variable overrides under a single
// prefix, and SetDefault calls for every tunable so a missing config file
// is never an error.
//
// This is the module's answer to the open question in SPEC_FULL.md §4: the
// search tool's scan window and target dentry names are no longer
// compile-time constants.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds every operator-tunable default for the recover/search tools.
type Config struct {
	// ScanStart is the first physical block address considered by the
	// search tool's linear scan (inclusive).
	ScanStart uint64 `mapstructure:"scan_start"`

	// ScanEnd is the physical block address the linear scan stops before
	// (exclusive).
	ScanEnd uint64 `mapstructure:"scan_end"`

	// SearchNames is the list of directory-entry names the search tool
	// reports matches for.
	SearchNames []string `mapstructure:"search_names"`

	// Verbose enables debug-level progress narration.
	Verbose bool `mapstructure:"verbose"`

	// Quiet suppresses all progress narration except fatal errors.
	Quiet bool `mapstructure:"quiet"`
}

// defaultSearchNames preserves the original tool's hard-coded dentry-name
// list (apfs-search-tailored.c) as the shipped default, now overridable.
var defaultSearchNames = []string{
	"id_rsa",
	"id_rsa.pub",
	"authorized_keys",
	"known_hosts",
	"Techmanity",
	"Applications.md",
	"Post-install.md",
	"Projects",
	"Profile",
	"Wallpapers",
	"FOOTAGE",
	"Finances",
	"Software",
	"ISOs",
	"Films",
	"TV",
	"TV Series",
	"MP3",
	"dumps.dmg",
	"brew-upgrade-all.sh",
}

// Load reads apfs-recover.yaml from the conventional search path, applies
// APFS_*-prefixed environment overrides, and fills in defaults for anything
// left unset. A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("apfs-recover")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.apfs-recover")
	v.AddConfigPath("/etc/apfs-recover")

	v.SetDefault("scan_start", 0xa5e3c)
	v.SetDefault("scan_end", 0x120000)
	v.SetDefault("search_names", defaultSearchNames)
	v.SetDefault("verbose", false)
	v.SetDefault("quiet", false)

	v.SetEnvPrefix("APFS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return cfg, nil
}
