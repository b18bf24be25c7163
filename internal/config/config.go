// Package config loads GitSocial's on-disk configuration: storage
// root, default remote and social branch, cache size, and log path.
// Loading goes through viper; the default file, when one doesn't exist
// yet, is written as TOML.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// FileName is the on-disk config file name; the CLI uses it as a
// relative path, so it resolves against the process's working
// directory.
const FileName = "gitsocial.toml"

// Config is GitSocial's full runtime configuration.
type Config struct {
	StorageRoot  string `mapstructure:"storage_root" toml:"storage_root"`
	RemoteName   string `mapstructure:"remote_name" toml:"remote_name"`
	Branch       string `mapstructure:"branch" toml:"branch"`
	CacheMaxSize int    `mapstructure:"cache_max_size" toml:"cache_max_size"`
	LogPath      string `mapstructure:"log_path" toml:"log_path"`
	ListenAddr   string `mapstructure:"listen_addr" toml:"listen_addr"`
}

// Default returns GitSocial's built-in defaults.
func Default() Config {
	return Config{
		StorageRoot:  defaultStorageRoot(),
		RemoteName:   "origin",
		Branch:       "main",
		CacheMaxSize: 100_000,
		LogPath:      "",
		ListenAddr:   ":8765",
	}
}

func defaultStorageRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gitsocial"
	}
	return filepath.Join(home, ".gitsocial", "storage")
}

// Load reads configPath (gitsocial.toml) into a viper instance layered
// over Default. Viper owns precedence (explicit file over defaults); a
// missing file is not an error, Default alone is returned.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	v.SetDefault("storage_root", cfg.StorageRoot)
	v.SetDefault("remote_name", cfg.RemoteName)
	v.SetDefault("branch", cfg.Branch)
	v.SetDefault("cache_max_size", cfg.CacheMaxSize)
	v.SetDefault("log_path", cfg.LogPath)
	v.SetDefault("listen_addr", cfg.ListenAddr)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return cfg, err
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Write persists cfg to configPath as TOML.
func Write(configPath string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// WriteDefault writes GitSocial's default configuration to configPath,
// for first-run bootstrap (`gitsocial init`).
func WriteDefault(configPath string) error {
	return Write(configPath, Default())
}
