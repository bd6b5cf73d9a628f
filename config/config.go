package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	DBPath         string `toml:"db_path"`
	MaxConnections int    `toml:"max_connections"`
	QueueSize      int    `toml:"queue_size"`
	WriteTimeout   int    `toml:"write_timeout"` // seconds
	MetricsPort    int    `toml:"metrics_port"`  // 0 disables the metrics listener
}

func Default() *Config {
	return &Config{
		Host:           "",
		Port:           40123,
		DBPath:         "chatd.db",
		MaxConnections: 100,
		QueueSize:      1000,
		WriteTimeout:   30,
		MetricsPort:    9090,
	}
}

// Load reads the TOML config at path, writing the defaults there first if the
// file does not exist, then applies CHATD_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := write(path, cfg); err != nil {
				return nil, err
			}
		} else if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func write(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func applyEnv(cfg *Config) {
	if host, ok := os.LookupEnv("CHATD_HOST"); ok {
		cfg.Host = host
	}

	if portStr := os.Getenv("CHATD_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Port = port
		}
	}

	if dbPath := os.Getenv("CHATD_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	if maxStr := os.Getenv("CHATD_MAX_CONNECTIONS"); maxStr != "" {
		if max, err := strconv.Atoi(maxStr); err == nil {
			cfg.MaxConnections = max
		}
	}

	if sizeStr := os.Getenv("CHATD_QUEUE_SIZE"); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil {
			cfg.QueueSize = size
		}
	}

	if timeoutStr := os.Getenv("CHATD_WRITE_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.WriteTimeout = timeout
		}
	}

	if portStr := os.Getenv("CHATD_METRICS_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.MetricsPort = port
		}
	}
}
