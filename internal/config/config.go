// Package config provides configuration management for sarprep.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "SARPREP_"

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Paths   PathsConfig   `envPrefix:"PATHS_"`
	Orbit   OrbitConfig   `envPrefix:"ORBIT_"`
	DEM     DEMConfig     `envPrefix:"DEM_"`
	Geocode GeocodeConfig `envPrefix:"GEOCODE_"`
	ASF     ASFConfig     `envPrefix:"ASF_"`
	S3      S3Config      `envPrefix:"S3_"`
	Server  ServerConfig  `envPrefix:"SERVER_"`
	Runs    RunsConfig    `envPrefix:"RUNS_"`
	Logging LoggingConfig `envPrefix:"LOG_"`
}

// PathsConfig contains the filesystem layout of a run.
// Relative paths are resolved against WorkDir.
type PathsConfig struct {
	WorkDir       string `env:"WORK_DIR" envDefault:"."`
	ShapefileDir  string `env:"SHAPEFILE_DIR" envDefault:"data/shp"`
	OutputDir     string `env:"OUTPUT_DIR" envDefault:"data/processed"`
	StagingDir    string `env:"STAGING_DIR" envDefault:"data/archives"`
	LocationsDir  string `env:"LOCATIONS_DIR" envDefault:"data/terminals"`
	// OrbitCacheDir must be the SNAP auxdata orbit directory, where
	// Apply-Orbit-File looks for the fetched files.
	OrbitCacheDir string `env:"ORBIT_CACHE_DIR,expand" envDefault:"${HOME}/.snap/auxdata/Orbits/Sentinel-1"`
	DEMCacheDir   string `env:"DEM_CACHE_DIR,expand" envDefault:"${HOME}/.snap/auxdata/dem/SRTM 1Sec HGT"`
}

// OrbitConfig contains orbit file lookup configuration.
type OrbitConfig struct {
	// Type is "POE" (precise) or "RES" (restituted). It selects both the
	// cached files and the orbits SNAP applies.
	Type    string        `env:"TYPE" envDefault:"POE"`
	BaseURL string        `env:"BASE_URL" envDefault:"https://s1qc.asf.alaska.edu"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

// DEMConfig contains DEM auto-download configuration.
type DEMConfig struct {
	Type        string        `env:"TYPE" envDefault:"SRTM 1Sec HGT"`
	BaseURL     string        `env:"BASE_URL" envDefault:"https://step.esa.int/auxdata/dem/SRTMGL1"`
	Buffer      float64       `env:"BUFFER" envDefault:"0.1"`
	Concurrency int           `env:"CONCURRENCY" envDefault:"4"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"5m"`
}

// GeocodeConfig contains SNAP graph processing configuration.
type GeocodeConfig struct {
	GPTPath      string        `env:"GPT_PATH" envDefault:"gpt"`
	PixelSpacing float64       `env:"PIXEL_SPACING" envDefault:"20"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"2h"`
}

// ASFConfig contains ASF API client configuration.
type ASFConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"https://api.daac.asf.alaska.edu"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
	// Token is an Earthdata Login bearer token used for datapool downloads.
	Token string `env:"TOKEN"`
	// Enrich looks products up in ASF Search to fill footprint and flight direction.
	Enrich bool `env:"ENRICH" envDefault:"false"`
}

// S3Config contains credentials for staging s3:// archives.
type S3Config struct {
	Region          string `env:"REGION" envDefault:"us-west-2"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	SessionToken    string `env:"SESSION_TOKEN"`
}

// ServerConfig contains HTTP server configuration for serve mode.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"127.0.0.1"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"3h"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// RunsConfig contains run ledger configuration.
type RunsConfig struct {
	// DBPath selects the SQLite ledger; empty keeps reports in memory.
	DBPath string        `env:"DB_PATH"`
	TTL    time.Duration `env:"TTL" envDefault:"24h"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// Load parses configuration from environment variables.
// It returns an error if a value cannot be parsed or is invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		Prefix: EnvPrefix,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Paths.ShapefileDir == "" {
		return fmt.Errorf("shapefile directory is required")
	}

	if c.Paths.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}

	if c.Paths.OrbitCacheDir == "" {
		return fmt.Errorf("orbit cache directory is required")
	}

	if c.Paths.DEMCacheDir == "" {
		return fmt.Errorf("DEM cache directory is required")
	}

	if c.Orbit.Type != "POE" && c.Orbit.Type != "RES" {
		return fmt.Errorf("orbit type must be 'POE' or 'RES', got %q", c.Orbit.Type)
	}

	if c.Orbit.BaseURL == "" {
		return fmt.Errorf("orbit base URL is required")
	}

	if c.Orbit.Timeout <= 0 {
		return fmt.Errorf("orbit timeout must be positive, got %s", c.Orbit.Timeout)
	}

	if c.DEM.Type != "SRTM 1Sec HGT" {
		return fmt.Errorf("unsupported DEM type %q", c.DEM.Type)
	}

	if c.DEM.Buffer < 0 || c.DEM.Buffer > 5 {
		return fmt.Errorf("DEM buffer must be between 0 and 5 degrees, got %g", c.DEM.Buffer)
	}

	if c.DEM.Concurrency < 1 {
		return fmt.Errorf("DEM concurrency must be at least 1, got %d", c.DEM.Concurrency)
	}

	if c.DEM.Timeout <= 0 {
		return fmt.Errorf("DEM timeout must be positive, got %s", c.DEM.Timeout)
	}

	if c.Geocode.GPTPath == "" {
		return fmt.Errorf("gpt path is required")
	}

	if c.Geocode.PixelSpacing <= 0 {
		return fmt.Errorf("pixel spacing must be positive, got %g", c.Geocode.PixelSpacing)
	}

	if c.Geocode.Timeout <= 0 {
		return fmt.Errorf("geocode timeout must be positive, got %s", c.Geocode.Timeout)
	}

	if c.ASF.BaseURL == "" {
		return fmt.Errorf("ASF base URL is required")
	}

	if c.ASF.Timeout <= 0 {
		return fmt.Errorf("ASF timeout must be positive, got %s", c.ASF.Timeout)
	}

	if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		return fmt.Errorf("S3 access key ID and secret access key must be set together")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	if c.Runs.TTL <= 0 {
		return fmt.Errorf("runs TTL must be positive, got %s", c.Runs.TTL)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// Resolve returns p joined onto WorkDir unless p is already absolute.
func (p *PathsConfig) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || p.WorkDir == "" {
		return path
	}
	return filepath.Join(p.WorkDir, path)
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
