// Package main is wolfs' cobra-based command-line entrypoint.
//
// Grounded on gcsfuse's cmd/root.go: a single cobra.Command binds
// cfg.BindFlags onto its persistent flag set, optionally overlays a
// --config-file via viper, and hands the resolved cfg.Config to the mount
// routine.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wolfs-fs/wolfs/cfg"
	"github.com/wolfs-fs/wolfs/internal/logger"
	"github.com/wolfs-fs/wolfs/internal/mount"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error

	mountConfig cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "wolfs [flags] source mount [cache]",
	Short: "Mount a directory tree as a caching overlay backed by a remote source",
	Long: `wolfs is a user-space caching filesystem: it exposes a local mount
point backed by a (possibly slow, possibly intermittently unavailable)
source directory, copying files into a faster local cache on first access
and flushing writes back through a journal.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}

		if err := populateArgs(args); err != nil {
			return err
		}
		if err := logger.InitLogFile(mountConfig.Log); err != nil {
			return fmt.Errorf("initializing log file: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		mfs, err := mount.Mount(ctx, mountConfig)
		if err != nil {
			return err
		}

		logger.Infof("wolfs mounted; waiting for unmount or signal")
		return mfs.Join(ctx)
	},
}

// populateArgs canonicalizes the positional source/mount[/cache] arguments
// into mountConfig, mirroring gcsfuse's root.go populateArgs.
func populateArgs(args []string) error {
	source, err := resolvePath(args[0])
	if err != nil {
		return fmt.Errorf("canonicalizing source: %w", err)
	}
	mountDir, err := resolvePath(args[1])
	if err != nil {
		return fmt.Errorf("canonicalizing mount point: %w", err)
	}
	mountConfig.Source = cfg.ResolvedPath(source)
	mountConfig.Mount = cfg.ResolvedPath(mountDir)

	if len(args) == 3 {
		cacheDir, err := resolvePath(args[2])
		if err != nil {
			return fmt.Errorf("canonicalizing cache dir: %w", err)
		}
		mountConfig.Cache.Dir = cfg.ResolvedPath(cacheDir)
	} else if mountConfig.Cache.Dir == "" {
		return fmt.Errorf("a cache directory is required: pass it positionally or via a --config-file")
	}
	return nil
}

func resolvePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// Execute runs the root command. On failure it exits with ENOENT's value
// when a required directory is missing, and with status 1 otherwise.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var errno syscall.Errno
		if errors.As(err, &errno) && errno == syscall.ENOENT {
			os.Exit(int(syscall.ENOENT))
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file overlaying the flags below.")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile == "" {
		if err := viper.Unmarshal(&mountConfig); err != nil {
			configFileErr = fmt.Errorf("unmarshaling config: %w", err)
		}
		return
	}

	resolved, err := resolvePath(cfgFile)
	if err != nil {
		configFileErr = fmt.Errorf("resolving config file path: %w", err)
		return
	}
	viper.SetConfigFile(resolved)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file: %w", err)
		return
	}
	if err := viper.Unmarshal(&mountConfig); err != nil {
		configFileErr = fmt.Errorf("unmarshaling config: %w", err)
	}
}
