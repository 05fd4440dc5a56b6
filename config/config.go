// Package config loads the dashboard application file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	logger "github.com/tomyedwab/scorecard/log"
)

const envPrefix = "BSC"

var log = logger.Component("config")

type ServerConfig struct {
	Address     string        `yaml:"address"`
	Port        int           `yaml:"port"`
	ReadTimeout time.Duration `yaml:"read_timeout" split_words:"true"`
}

// Listen returns the host:port the dashboard binds to.
func (s ServerConfig) Listen() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

type StorageConfig struct {
	// Path of the sqlite database holding jobs and their outputs.
	Path      string        `yaml:"path"`
	CacheSize int           `yaml:"cache_size" split_words:"true"`
	// Retention is how long finished jobs are kept. Zero keeps them forever.
	Retention time.Duration `yaml:"retention"`
}

type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes" split_words:"true"`
}

type DownloadsConfig struct {
	TokenTTL   time.Duration `yaml:"token_ttl" split_words:"true"`
	SecretPath string        `yaml:"secret_path" split_words:"true"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" split_words:"true"`
}

// Config is the application file. Every field can be overridden from the
// environment as BSC_<SECTION>_<FIELD>, for example BSC_STORAGE_CACHE_SIZE.
// Only prefixed names are read.
type Config struct {
	Title     string          `yaml:"title"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Upload    UploadConfig    `yaml:"upload"`
	Downloads DownloadsConfig `yaml:"downloads"`
	CORS      CORSConfig      `yaml:"cors"`

	// OriginalPath is the file the configuration was read from.
	OriginalPath string `yaml:"-" ignored:"true"`
}

// Default returns the configuration used for anything the application file
// leaves out.
func Default() Config {
	return Config{
		Title: "平衡计分卡 KPI 数据处理器",
		Server: ServerConfig{
			Address:     "localhost",
			Port:        8501,
			ReadTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Path:      "bsc_jobs.db",
			CacheSize: 32,
			Retention: 7 * 24 * time.Hour,
		},
		Upload: UploadConfig{
			MaxBytes: 32 << 20,
		},
		Downloads: DownloadsConfig{
			TokenTTL:   15 * time.Minute,
			SecretPath: "bsc_download.key",
		},
	}
}

// Resolve makes the storage and secret paths relative to the application
// file's directory.
func (c *Config) Resolve() {
	if c.OriginalPath == "" {
		return
	}
	dir := filepath.Dir(c.OriginalPath)
	if c.Storage.Path != "" && !filepath.IsAbs(c.Storage.Path) {
		c.Storage.Path = filepath.Join(dir, c.Storage.Path)
	}
	if c.Downloads.SecretPath != "" && !filepath.IsAbs(c.Downloads.SecretPath) {
		c.Downloads.SecretPath = filepath.Join(dir, c.Downloads.SecretPath)
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address must not be empty"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, errors.New("server.read_timeout must not be negative"))
	}
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path must not be empty"))
	}
	if c.Storage.CacheSize <= 0 {
		errs = append(errs, errors.New("storage.cache_size must be positive"))
	}
	if c.Storage.Retention < 0 {
		errs = append(errs, errors.New("storage.retention must not be negative"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}
	if c.Downloads.TokenTTL <= 0 {
		errs = append(errs, errors.New("downloads.token_ttl must be positive"))
	}
	if c.Downloads.SecretPath == "" {
		errs = append(errs, errors.New("downloads.secret_path must not be empty"))
	}
	return errors.Join(errs...)
}

// WriteDefault writes conf, with environment overrides applied, to path.
func WriteDefault(fs afero.Fs, path string, conf *Config) error {
	if err := envconfig.Process(envPrefix, conf); err != nil {
		return fmt.Errorf("failed to process config env vars: %w", err)
	}
	bs, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, bs, 0644)
}

// Load reads the application file at path over conf. A missing file is
// replaced by the defaults, written to path. Environment variables prefixed
// BSC_ override values from the file.
func Load(fs afero.Fs, path string, conf *Config) error {
	bs, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		log.Warnf("No application file found, writing default to %s", path)
		if err := WriteDefault(fs, path, conf); err != nil {
			return err
		}
		log.Info("Loading default configuration...")
		return Load(fs, path, conf)
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(bs, conf); err != nil {
		return fmt.Errorf("couldn't unmarshal config: %w", err)
	}
	if err := envconfig.Process(envPrefix, conf); err != nil {
		return fmt.Errorf("failed to process config env vars: %w", err)
	}
	conf.OriginalPath = path
	return nil
}
