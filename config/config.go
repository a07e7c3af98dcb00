// Package config loads service settings from an optional TOML file, a .env
// file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/franksops/filexfer/engine"
	"github.com/franksops/filexfer/ftp"
)

// Config holds every setting of the service and the CLI.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `toml:"addr"`

	// LogsDir holds the transfer log channels.
	LogsDir string `toml:"logs_dir"`
	// ServiceLog is the rotating diagnostic log file.
	ServiceLog string `toml:"service_log"`
	LogLevel   string `toml:"log_level"`
	// StateDir holds the audit store.
	StateDir   string `toml:"state_dir"`
	StagingDir string `toml:"staging_dir"`
	// ShareRoot is where share locations are mounted. Empty maps a location
	// straight onto the filesystem root.
	ShareRoot string `toml:"share_root"`

	Workers          int  `toml:"workers"`
	BufferSize       int  `toml:"buffer_size"`
	PreserveMetadata bool `toml:"preserve_metadata"`

	FTP FTP `toml:"ftp"`
}

// FTP holds the FTP client settings.
type FTP struct {
	User         string        `toml:"user"`
	Password     string        `toml:"password"`
	TLS          bool          `toml:"tls"`
	TLSInsecure  bool          `toml:"tls_insecure"`
	Timeout      time.Duration `toml:"timeout"`
	VerifyRemote bool          `toml:"verify_remote"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Addr:             ":8080",
		LogsDir:          "Logs",
		ServiceLog:       filepath.Join("Logs", "service.log"),
		LogLevel:         "info",
		StateDir:         "state",
		StagingDir:       os.TempDir(),
		Workers:          1,
		BufferSize:       engine.DefaultBufferSize,
		PreserveMetadata: true,
		FTP: FTP{
			User:         "anonymous",
			Password:     "anonymous",
			Timeout:      ftp.DefaultTimeout,
			VerifyRemote: true,
		},
	}
}

// Load builds the configuration. path names an optional TOML file; a
// missing .env file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Addr = getEnv("FXFER_ADDR", c.Addr)
	c.LogsDir = getEnv("LOGS_DIR", c.LogsDir)
	c.ServiceLog = getEnv("SERVICE_LOG", c.ServiceLog)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.StateDir = getEnv("STATE_DIR", c.StateDir)
	c.StagingDir = getEnv("STAGING_DIR", c.StagingDir)
	c.ShareRoot = getEnv("SHARE_ROOT", c.ShareRoot)
	c.Workers = getEnvInt("TRANSFER_WORKERS", c.Workers)
	c.BufferSize = getEnvInt("BUFFER_SIZE", c.BufferSize)
	c.PreserveMetadata = getEnvBool("PRESERVE_METADATA", c.PreserveMetadata)

	c.FTP.User = getEnv("FTP_USER", c.FTP.User)
	c.FTP.Password = getEnv("FTP_PASSWORD", c.FTP.Password)
	c.FTP.TLS = getEnvBool("FTP_TLS", c.FTP.TLS)
	c.FTP.TLSInsecure = getEnvBool("FTP_TLS_INSECURE", c.FTP.TLSInsecure)
	c.FTP.Timeout = getEnvDuration("FTP_TIMEOUT", c.FTP.Timeout)
	c.FTP.VerifyRemote = getEnvBool("FTP_VERIFY_REMOTE", c.FTP.VerifyRemote)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.LogsDir == "" {
		errs = append(errs, errors.New("logs_dir must be set"))
	}
	if c.StateDir == "" {
		errs = append(errs, errors.New("state_dir must be set"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.BufferSize < 1 {
		errs = append(errs, fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize))
	}
	if c.FTP.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("ftp timeout must be positive, got %s", c.FTP.Timeout))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// StorePath is the audit database file.
func (c *Config) StorePath() string {
	return filepath.Join(c.StateDir, "filexfer.db")
}

// FTPConfig converts the FTP settings for the ftp package.
func (c *Config) FTPConfig() ftp.Config {
	return ftp.Config{
		User:               c.FTP.User,
		Password:           c.FTP.Password,
		TLS:                c.FTP.TLS,
		InsecureSkipVerify: c.FTP.TLSInsecure,
		Timeout:            c.FTP.Timeout,
	}
}

// EngineOptions converts the batch settings for the engine.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Workers:      c.Workers,
		StagingDir:   c.StagingDir,
		VerifyRemote: c.FTP.VerifyRemote,
		BufferSize:   c.BufferSize,
	}
}
