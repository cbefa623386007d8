// Package config loads and saves the node's TOML configuration (§6
// "Configuration recognized by the core" plus the ambient fields a real
// node needs to boot). Grounded on the teacher's flat, zero-nesting
// settings style (the teacher carries no config package of its own — this
// generalizes its sentinel-error-and-plain-struct conventions, used
// elsewhere for internal/errors) and encoded with
// github.com/pelletier/go-toml/v2 per the pack's TOML-using members.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Mining holds the miner-coordinator knobs (§6).
type Mining struct {
	Threads int  `toml:"threads"` // 0 ⇒ use the host's CPU count
	Lower   bool `toml:"lower"`   // lower OS scheduling priority where supported
}

// Config is the full node configuration. Origin/KeyFile/Mining mirror §6
// exactly; ListenAddr/DBPath/LogLevel are the ambient fields a process
// needs to actually start (§10.2 "Configuration").
type Config struct {
	Origin     string `toml:"origin"`      // hex hash of genesis, or empty before bootstrap
	KeyFile    string `toml:"key_file"`    // path to the node's secp256k1 key file
	ListenAddr string `toml:"listen_addr"` // DNS server bind address
	DBPath     string `toml:"db_path"`     // sqlite chain store path
	LogLevel   string `toml:"log_level"`   // "debug" | "info" | "warn" | "error"
	Mining     Mining `toml:"mining"`
}

// Default returns the configuration shipped by -g/--generate: no origin
// yet (the chain hasn't bootstrapped), a key file and database alongside
// the binary, info logging, mining threads left at 0 (one worker per CPU
// once a mining job runs) and priority lowering off.
func Default() Config {
	return Config{
		Origin:     "",
		KeyFile:    "node.key",
		ListenAddr: "127.0.0.1:5353",
		DBPath:     "chain.db",
		LogLevel:   "info",
		Mining: Mining{
			Threads: 0,
			Lower:   false,
		},
	}
}

// Load reads and decodes a TOML config file at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// Save encodes cfg as TOML and writes it to path.
func Save(path string, cfg Config) error {
	raw, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write config %q: %w", path, err)
	}
	return nil
}

// Marshal renders cfg as TOML text, used by the -g/-u CLI paths to print
// to stdout without touching disk.
func Marshal(cfg Config) (string, error) {
	raw, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(raw), nil
}

// Upgrade loads an old-shape config file at path, layers it over
// Default() so any field missing from the old file (added in a later
// version) is filled in, and returns the result without writing it back —
// the CLI's -u PATH path prints this for the operator to redirect into a
// new file.
func Upgrade(path string) (Config, error) {
	old, err := Load(path)
	if err != nil {
		return Config{}, err
	}

	upgraded := Default()
	if old.Origin != "" {
		upgraded.Origin = old.Origin
	}
	if old.KeyFile != "" {
		upgraded.KeyFile = old.KeyFile
	}
	if old.ListenAddr != "" {
		upgraded.ListenAddr = old.ListenAddr
	}
	if old.DBPath != "" {
		upgraded.DBPath = old.DBPath
	}
	if old.LogLevel != "" {
		upgraded.LogLevel = old.LogLevel
	}
	upgraded.Mining = old.Mining

	return upgraded, nil
}
