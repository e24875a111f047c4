// Package config loads and validates the indexer's runtime configuration
// (C12): a JSON file on disk, overridable by environment variables,
// following the teacher's config package conventions.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Config is the indexer's runtime configuration.
type Config struct {
	DBPath        string        `json:"db_path" env:"UTXOINDEX_DB_PATH"`
	RPCURL        string        `json:"rpc_url" env:"UTXOINDEX_RPC_URL"`
	Confirmations int           `json:"confirmations" env:"UTXOINDEX_CONFIRMATIONS"`
	ListenAddr    string        `json:"listen_addr" env:"UTXOINDEX_LISTEN_ADDR"`
	P2PKHVersion  byte          `json:"p2pkh_version" env:"UTXOINDEX_P2PKH_VERSION"`
	P2SHVersion   byte          `json:"p2sh_version" env:"UTXOINDEX_P2SH_VERSION"`
	RPCTimeout    time.Duration `json:"rpc_timeout" env:"UTXOINDEX_RPC_TIMEOUT"`
	LogLevel      string        `json:"log_level" env:"UTXOINDEX_LOG_LEVEL"`
	LogFile       string        `json:"log_file" env:"UTXOINDEX_LOG_FILE"`
}

// DefaultConfig returns the configuration a fresh install should start from.
func DefaultConfig() *Config {
	return &Config{
		DBPath:        "utxoindex.db",
		RPCURL:        "http://127.0.0.1:8332",
		Confirmations: 100,
		ListenAddr:    "0.0.0.0:8080",
		P2PKHVersion:  0x00,
		P2SHVersion:   0x05,
		RPCTimeout:    10 * time.Second,
		LogLevel:      "info",
		LogFile:       "utxoindex.log",
	}
}

// LoadConfig loads configuration from path, writing out DefaultConfig if
// the file does not yet exist, then applies any UTXOINDEX_* environment
// overrides on top.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := SaveConfig(config, path); err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	} else if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	if err := loadFromEnv(config); err != nil {
		return nil, err
	}

	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves configuration to path, creating its directory if needed.
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(config, "", "   ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ValidateConfig validates the configuration.
func ValidateConfig(config *Config) error {
	if config.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	if config.RPCURL == "" {
		return errors.New("rpc_url must not be empty")
	}
	if config.Confirmations <= 0 {
		return errors.New("confirmations must be positive")
	}
	if config.ListenAddr == "" {
		return errors.New("listen_addr must not be empty")
	}
	if config.RPCTimeout <= 0 {
		return errors.New("rpc_timeout must be positive")
	}
	switch config.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("invalid log_level")
	}
	return nil
}
