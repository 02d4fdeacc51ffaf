// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"hostbin/file-api/pkg/quota"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

var (
	makeStorageRoot = pflag.Bool("make-storage-root", false, "Creates the storage root directory if it doesn't exist")
	validLogLevels  = []string{"debug", "info", "warn", "error", "fatal"}
	validDBDrivers  = []string{"sqlite", "postgres"}
)

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	//
	// ENVS
	//
	v.BindEnv("app.log_level", "app_log_level")

	v.BindEnv("host.port", "host_port")
	v.BindEnv("host.base_url", "host_base_url")

	v.BindEnv("db.driver", "db_driver")
	v.BindEnv("db.dsn", "db_dsn")

	v.BindEnv("storage.root", "storage_root")

	v.BindEnv("security.jwt_secret", "security_jwt_secret")

	v.BindEnv("tiers.registered.max_file_size", "tiers_registered_max_file_size")
	v.BindEnv("tiers.registered.max_file_count", "tiers_registered_max_file_count")
	v.BindEnv("tiers.registered.allowed_types", "tiers_registered_allowed_types")

	v.BindEnv("tiers.unregistered.max_file_size", "tiers_unregistered_max_file_size")
	v.BindEnv("tiers.unregistered.max_file_count", "tiers_unregistered_max_file_count")
	v.BindEnv("tiers.unregistered.allowed_types", "tiers_unregistered_allowed_types")

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)
	v.SetDefault("host.base_url", "http://localhost:8080")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "database.db")

	v.SetDefault("storage.root", "uploads")

	// Sizes are in megabytes, -1 means unlimited
	v.SetDefault("tiers.registered.max_file_size", 100)
	v.SetDefault("tiers.registered.max_file_count", -1)
	v.SetDefault("tiers.registered.allowed_types", []string{"*"})

	v.SetDefault("tiers.unregistered.max_file_size", 10)
	v.SetDefault("tiers.unregistered.max_file_count", 10)
	v.SetDefault("tiers.unregistered.allowed_types", []string{"image/*"})

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file, %w", err)
		}
	}

	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if !slices.Contains(validDBDrivers, v.GetString("db.driver")) {
		return errors.New("invalid database driver provided")
	}

	if v.GetString("db.dsn") == "" {
		return errors.New("database dsn can't be empty")
	}

	if v.GetString("security.jwt_secret") == "" {
		return errors.New("no jwt secret provided")
	}

	root := v.GetString("storage.root")
	if root == "" {
		return errors.New("storage root can't be empty")
	}

	if *makeStorageRoot {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("failed to create storage root, %w", err)
		}
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("storage root %q is inaccessible, %w", root, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("storage root %q is not a directory", root)
	}

	for _, tier := range []string{"registered", "unregistered"} {
		if err := checkTier(tier); err != nil {
			return err
		}

		// Shift megabytes to bytes after validation. -1 stays as-is
		key := "tiers." + tier + ".max_file_size"
		if size := v.GetInt64(key); size != -1 {
			v.Set(key, size<<20)
		}
	}

	return nil
}

func checkTier(tier string) error {
	size := v.GetInt64("tiers." + tier + ".max_file_size")
	if size != -1 && size <= 0 {
		return fmt.Errorf("tiers.%s.max_file_size must be bigger than 0 or -1", tier)
	}

	count := v.GetInt64("tiers." + tier + ".max_file_count")
	if count != -1 && count <= 0 {
		return fmt.Errorf("tiers.%s.max_file_count must be bigger than 0 or -1", tier)
	}

	types := v.GetStringSlice("tiers." + tier + ".allowed_types")
	if len(types) == 0 {
		return fmt.Errorf("tiers.%s.allowed_types can't be empty", tier)
	}

	for _, t := range types {
		t = strings.TrimSpace(t)
		if t == "*" {
			continue
		}

		if t == "" || !strings.Contains(t, "/") {
			return fmt.Errorf("tiers.%s.allowed_types contains invalid type %q", tier, t)
		}
	}

	return nil
}

// Tiers materializes the per-tier limits so that services can take
// them as an explicit parameter instead of reading viper everywhere.
// Must only be called after Setup
func Tiers() quota.Tiers {
	return quota.Tiers{
		Registered:   tierLimits("registered"),
		Unregistered: tierLimits("unregistered"),
	}
}

func tierLimits(tier string) quota.Limits {
	types := v.GetStringSlice("tiers." + tier + ".allowed_types")
	for i, t := range types {
		types[i] = strings.ToLower(strings.TrimSpace(t))
	}

	return quota.Limits{
		MaxFileSize:  v.GetInt64("tiers." + tier + ".max_file_size"),
		MaxFileCount: v.GetInt64("tiers." + tier + ".max_file_count"),
		AllowedTypes: types,
	}
}
