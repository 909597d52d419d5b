// Package cfg defines wolfs' runtime configuration and the cobra/pflag/
// viper flag binding that populates it, following the shape of the
// teacher's generated cfg/config.go: a nested Config struct with yaml
// tags, and a BindFlags function registering each flag and wiring it to
// a viper key via viper.BindPFlag.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ResolvedPath is an absolute filesystem path, distinguished from a plain
// string so config fields make clear they've already been resolved.
type ResolvedPath string

// Config is wolfs' full runtime configuration, built from CLI flags,
// optionally overlaid with a --config-file, and decoded by viper.
type Config struct {
	Source ResolvedPath `yaml:"source"`
	Mount  ResolvedPath `yaml:"mount"`

	Cache  CacheConfig   `yaml:"cache"`
	MetaDB MetaDBConfig  `yaml:"metadb"`
	Log    LoggingConfig `yaml:"logging"`
	Debug  DebugConfig   `yaml:"debug"`
	Remote RemoteConfig  `yaml:"remote"`
}

// CacheConfig controls the on-disk cache manager (internal/cache).
type CacheConfig struct {
	Dir         ResolvedPath `yaml:"dir"`
	MaxSizeMB   int64        `yaml:"max-size-mb"`
	Threshold   float64      `yaml:"threshold"`
	NoAtime     bool         `yaml:"noatime"`
	WarmOnMount bool         `yaml:"warm-on-mount"`
}

// MetaDBConfig controls the persisted inode-table snapshot (internal/metadb).
type MetaDBConfig struct {
	Path ResolvedPath `yaml:"path"`
}

// LoggingConfig controls internal/logger.
type LoggingConfig struct {
	Severity string       `yaml:"severity"`
	Format   string       `yaml:"format"`
	FilePath ResolvedPath `yaml:"file-path"`

	LogRotate LogRotateConfig `yaml:"log-rotate"`
}

// LogRotateConfig mirrors lumberjack.Logger's rotation knobs.
type LogRotateConfig struct {
	MaxFileSizeMB   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

// DefaultLogRotateConfig mirrors the teacher's config.DefaultLogRotateConfig.
func DefaultLogRotateConfig() LogRotateConfig {
	return LogRotateConfig{MaxFileSizeMB: 512, BackupFileCount: 10, Compress: false}
}

// DebugConfig gates verbose/expensive debug behavior: panicking instead of
// silently tolerating a violated invariant, and the kernel-side fuse debug
// log.
type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`
	FUSE                     bool `yaml:"fuse"`
}

// RemoteConfig controls whether a remote collaborator node backs the
// source tree (internal/remote).
type RemoteConfig struct {
	Host    string `yaml:"host"`
	Enabled bool   `yaml:"enabled"`
}

// BindFlags registers wolfs' flags on flagSet and binds each to the
// matching viper key.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("metadb", "", "", "Path to the persisted inode-table snapshot.")

	err = viper.BindPFlag("metadb.path", flagSet.Lookup("metadb"))
	if err != nil {
		return err
	}

	flagSet.Int64P("cache-size-mb", "", 1024, "Maximum cache size in megabytes.")

	err = viper.BindPFlag("cache.max-size-mb", flagSet.Lookup("cache-size-mb"))
	if err != nil {
		return err
	}

	flagSet.Float64P("cache-threshold", "", 0.99, "Fraction of the cache cap that triggers eviction.")

	err = viper.BindPFlag("cache.threshold", flagSet.Lookup("cache-threshold"))
	if err != nil {
		return err
	}

	flagSet.BoolP("noatime", "", true, "Use mtime instead of atime for cache eviction ordering.")

	err = viper.BindPFlag("cache.noatime", flagSet.Lookup("noatime"))
	if err != nil {
		return err
	}

	flagSet.BoolP("warm-cache", "", true, "Copy recently used files into the cache at mount time.")

	err = viper.BindPFlag("cache.warm-on-mount", flagSet.Lookup("warm-cache"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "Log file path; empty logs to stderr.")

	err = viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", "INFO", "One of TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")

	err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "One of text, json.")

	err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format"))
	if err != nil {
		return err
	}

	flagSet.BoolP("debug_invariants", "", false, "Exit when internal invariants are violated.")

	err = viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug_invariants"))
	if err != nil {
		return err
	}

	flagSet.BoolP("debug_fuse", "", false, "Enable the kernel-side fuse debug log.")

	err = viper.BindPFlag("debug.fuse", flagSet.Lookup("debug_fuse"))
	if err != nil {
		return err
	}

	flagSet.StringP("remote-host", "", "", "Hostname of the remote collaborator node backing the source tree, if any.")

	err = viper.BindPFlag("remote.host", flagSet.Lookup("remote-host"))
	if err != nil {
		return err
	}

	flagSet.BoolP("remote-enabled", "", false, "Whether a remote collaborator node backs the source tree.")

	err = viper.BindPFlag("remote.enabled", flagSet.Lookup("remote-enabled"))
	if err != nil {
		return err
	}

	return nil
}
