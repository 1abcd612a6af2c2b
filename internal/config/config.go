package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	DataDir       string `json:"data_dir"`
	// RetentionMinutes bounds how long a session's artifacts stay servable.
	RetentionMinutes int `json:"retention_minutes"`
	// SweepIntervalMinutes throttles opportunistic sweeps piggybacked on traffic.
	SweepIntervalMinutes int `json:"sweep_interval_minutes"`
	MaxUploadMB          int `json:"max_upload_mb"`
	// ConverterCommand is the external conversion tool plus fixed arguments.
	ConverterCommand []string `json:"converter_command"`
	MinWorkers       int      `json:"min_workers"`
	MaxWorkers       int      `json:"max_workers"`
	QueueSize        int      `json:"queue_size"`
	// WorkerIdleTimeout is in minutes.
	WorkerIdleTimeout int `json:"worker_idle_timeout"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress:        ":8090",
			DataDir:              "./data",
			RetentionMinutes:     60,
			SweepIntervalMinutes: 30,
			MaxUploadMB:          50,
			ConverterCommand:     []string{"docmark-convert"},
			MinWorkers:           2,
			MaxWorkers:           4,
			QueueSize:            32,
		},
		Databases: map[string]DatabaseConfig{
			"sqlite3": {DSN: "./data/docmark.db"},
		},
	}
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file is not an error: the built-in defaults apply.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default(), nil
		}
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	cfg := Default()
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if !filepath.IsAbs(cfg.BasicConfig.DataDir) {
		cfg.BasicConfig.DataDir = filepath.Join(filepath.Dir(absPath), cfg.BasicConfig.DataDir)
	}
	if db, ok := cfg.Databases["sqlite3"]; ok && db.DSN != "" && !filepath.IsAbs(db.DSN) {
		db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
		cfg.Databases["sqlite3"] = db
	}
	return cfg, nil
}
