package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted when credentials are omitted from the
// configuration file.
const (
	EnvAPIKey    = "CLOUDINARY_API_KEY"
	EnvAPISecret = "CLOUDINARY_API_SECRET"
)

// Defaults applied by Load when the corresponding field is unset.
const (
	DefaultBaseURL   = "https://res.cloudinary.com/"
	DefaultAPIBase   = "https://api.cloudinary.com"
	DefaultTransform = "f_auto,q_auto"
	DefaultWidth     = 800
	DefaultCacheDir  = ".cache"
	DefaultCacheName = "cloudinary"
	DefaultWorkers   = 2
)

// Config represents the application configuration
type Config struct {
	// CloudName is the account identifier on the image service. Required.
	CloudName string `yaml:"cloud_name"`
	// APIKey and APISecret authenticate uploads. When empty, the
	// CLOUDINARY_API_KEY / CLOUDINARY_API_SECRET environment variables are
	// consulted before validation.
	APIKey    string `yaml:"api_key,omitempty"`
	APISecret string `yaml:"api_secret,omitempty"`

	// BaseURL is the delivery host rewritten URLs point at.
	BaseURL string `yaml:"base_url,omitempty"`
	// APIBase is the upload API host (distinct from the delivery host).
	APIBase string `yaml:"api_base,omitempty"`
	// Folder is the destination folder on the service for every upload.
	Folder string `yaml:"folder,omitempty"`
	// Transform is the transformation directive applied to every image.
	Transform string `yaml:"transform,omitempty"`
	// Width is the target pixel width used to compute responsive variants.
	Width int `yaml:"width,omitempty"`

	Cache   CacheConfig   `yaml:"cache,omitempty"`
	Uploads UploadsConfig `yaml:"uploads,omitempty"`
}

// CacheConfig locates the on-disk URL cache.
type CacheConfig struct {
	Dir  string `yaml:"dir,omitempty"`  // defaults to .cache
	Name string `yaml:"name,omitempty"` // defaults to cloudinary (file <dir>/<name>.json)
}

// UploadsConfig tunes the background upload queue.
type UploadsConfig struct {
	// Workers caps concurrent background uploads. Defaults to 2.
	Workers int `yaml:"workers,omitempty"`
	// Journal, when set, is the path of a SQLite database recording every
	// upload attempt and outcome.
	Journal string `yaml:"journal,omitempty"`
}

// Load loads configuration from the specified file, applies defaults and
// the environment credential fallback, and validates the result.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// ApplyDefaults fills unset fields, including the environment credential
// fallback. Safe to call on a hand-constructed Config.
func (c *Config) ApplyDefaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv(EnvAPIKey)
	}
	if c.APISecret == "" {
		c.APISecret = os.Getenv(EnvAPISecret)
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.APIBase == "" {
		c.APIBase = DefaultAPIBase
	}
	if c.Transform == "" {
		c.Transform = DefaultTransform
	}
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = DefaultCacheDir
	}
	if c.Cache.Name == "" {
		c.Cache.Name = DefaultCacheName
	}
	if c.Uploads.Workers <= 0 {
		c.Uploads.Workers = DefaultWorkers
	}
}

// Validate reports configuration errors that must abort initialization
// before any integration point is constructed.
func (c *Config) Validate() error {
	if c.CloudName == "" {
		return fmt.Errorf("config: cloud_name is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("config: api_key is required (set api_key or %s)", EnvAPIKey)
	}
	if c.APISecret == "" {
		return fmt.Errorf("config: api_secret is required (set api_secret or %s)", EnvAPISecret)
	}
	return nil
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		CloudName: "demo",
		BaseURL:   DefaultBaseURL,
		Folder:    "images",
		Transform: DefaultTransform,
		Width:     DefaultWidth,
		Cache: CacheConfig{
			Dir:  DefaultCacheDir,
			Name: DefaultCacheName,
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}

	header := "# imgcdn configuration\n# Credentials may be omitted here and supplied via\n# CLOUDINARY_API_KEY / CLOUDINARY_API_SECRET (a .env file is honored).\n"
	if err := os.WriteFile(configPath, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
