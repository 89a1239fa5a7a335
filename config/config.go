// Package config loads server configuration the way the teacher's
// configuration example layers it: built-in defaults, then an optional
// YAML file, then explicit CLI flags, each overriding the last.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds every knob overthere server accepts, either via
// --config FILE (YAML) or matching CLI flags. Duration fields are stored
// as whole seconds on the wire/file format, matching the CLI's "S"
// (seconds) flag convention from the spec.
type ServerConfig struct {
	Transport             string `yaml:"transport"`
	Auth                  string `yaml:"auth"`
	AuthKey               string `yaml:"akey"`
	Enc                   string `yaml:"enc"`
	EncKey                string `yaml:"ekey"`
	WorkingDir            string `yaml:"working_dir"`
	CleanupIntervalSec    int    `yaml:"cleanup_interval"`
	UntouchedFileTTLSec   int    `yaml:"untouched_file_ttl"`
	UntouchedProcTTLSec   int    `yaml:"untouched_proc_ttl"`
	DeadProcTTLSec        int    `yaml:"dead_proc_ttl"`
	PacketTTLSec          int    `yaml:"packet_ttl"`
	InternalBufferSize    int    `yaml:"internal_buffer_size"`
	LogLevel              string `yaml:"log_level"`
}

// DefaultServerConfig returns the built-in defaults from the spec's
// configuration defaults table.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Transport:           "tcp",
		Auth:                "none",
		Enc:                 "none",
		WorkingDir:          ".",
		CleanupIntervalSec:  60,
		UntouchedFileTTLSec: 150,
		UntouchedProcTTLSec: 300,
		DeadProcTTLSec:      30,
		PacketTTLSec:        300,
		InternalBufferSize:  1000,
		LogLevel:            "info",
	}
}

// LoadYAML overlays a YAML config file's fields onto cfg, leaving any key
// the file doesn't mention untouched.
func LoadYAML(cfg *ServerConfig, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// ParseServerFlags parses args (typically os.Args[1:] of overthere-server)
// against fs, applying defaults, then an optional --config YAML overlay,
// then any flags the caller actually passed, in that precedence order.
// addr is the first positional argument after the flags.
func ParseServerFlags(fs *flag.FlagSet, args []string) (cfg ServerConfig, addr string, err error) {
	cfg = DefaultServerConfig()

	var (
		configFile         string
		transport          string
		auth               string
		akey               string
		enc                string
		ekey               string
		workingDir         string
		cleanupInterval    int
		untouchedFileTTL   int
		untouchedProcTTL   int
		deadProcTTL        int
		packetTTL          int
		internalBufferSize int
		logLevel           string
	)

	fs.StringVar(&configFile, "config", "", "path to a YAML config file")
	fs.StringVar(&transport, "transport", "", "tcp or udp")
	fs.StringVar(&auth, "auth", "", "none, sha256, or sha512")
	fs.StringVar(&akey, "akey", "", "pre-shared authentication key")
	fs.StringVar(&enc, "enc", "", "none, aes-128-gcm, aes-256-gcm, or chacha20-poly1305")
	fs.StringVar(&ekey, "ekey", "", "pre-shared encryption key")
	fs.StringVar(&workingDir, "working-dir", "", "directory relative paths resolve against")
	fs.IntVar(&cleanupInterval, "cleanup-interval", 0, "seconds between janitor sweeps")
	fs.IntVar(&untouchedFileTTL, "untouched-file-ttl", 0, "seconds an open file may sit untouched")
	fs.IntVar(&untouchedProcTTL, "untouched-proc-ttl", 0, "seconds a running process may sit untouched")
	fs.IntVar(&deadProcTTL, "dead-proc-ttl", 0, "seconds an exited process's status is retained")
	fs.IntVar(&packetTTL, "packet-ttl", 0, "seconds an incomplete packet group is held")
	fs.IntVar(&internalBufferSize, "internal-buffer-size", 0, "outbound/inbound mailbox depth")
	fs.StringVar(&logLevel, "log-level", "", "debug, info, warn, or error")

	if err := fs.Parse(args); err != nil {
		return ServerConfig{}, "", err
	}
	if fs.NArg() < 1 {
		return ServerConfig{}, "", fmt.Errorf("config: missing server address")
	}
	addr = fs.Arg(0)

	if configFile != "" {
		if err := LoadYAML(&cfg, configFile); err != nil {
			return ServerConfig{}, "", err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "transport":
			cfg.Transport = transport
		case "auth":
			cfg.Auth = auth
		case "akey":
			cfg.AuthKey = akey
		case "enc":
			cfg.Enc = enc
		case "ekey":
			cfg.EncKey = ekey
		case "working-dir":
			cfg.WorkingDir = workingDir
		case "cleanup-interval":
			cfg.CleanupIntervalSec = cleanupInterval
		case "untouched-file-ttl":
			cfg.UntouchedFileTTLSec = untouchedFileTTL
		case "untouched-proc-ttl":
			cfg.UntouchedProcTTLSec = untouchedProcTTL
		case "dead-proc-ttl":
			cfg.DeadProcTTLSec = deadProcTTL
		case "packet-ttl":
			cfg.PacketTTLSec = packetTTL
		case "internal-buffer-size":
			cfg.InternalBufferSize = internalBufferSize
		case "log-level":
			cfg.LogLevel = logLevel
		}
	})

	return cfg, addr, nil
}

// CleanupInterval returns the configured value as a time.Duration.
func (c ServerConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSec) * time.Second
}

// UntouchedFileTTL returns the configured value as a time.Duration.
func (c ServerConfig) UntouchedFileTTL() time.Duration {
	return time.Duration(c.UntouchedFileTTLSec) * time.Second
}

// UntouchedProcTTL returns the configured value as a time.Duration.
func (c ServerConfig) UntouchedProcTTL() time.Duration {
	return time.Duration(c.UntouchedProcTTLSec) * time.Second
}

// DeadProcTTL returns the configured value as a time.Duration.
func (c ServerConfig) DeadProcTTL() time.Duration {
	return time.Duration(c.DeadProcTTLSec) * time.Second
}

// PacketTTL returns the configured value as a time.Duration.
func (c ServerConfig) PacketTTL() time.Duration {
	return time.Duration(c.PacketTTLSec) * time.Second
}
