package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// DefaultAPIKey is the publicly shared, heavily rate-limited APOD key.
const DefaultAPIKey = "DEMO_KEY"

type Config struct {
	Metadata   Metadata   `yaml:"metadata"`
	Enrichment Enrichment `yaml:"enrichment"`
	Feed       Feed       `yaml:"feed"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Metadata struct {
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	FallbackKey       string        `yaml:"fallback_key"`
	Timezone          string        `yaml:"timezone"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// Enrichment configures the commentary backend. A zero Timeout leaves
// generation requests without a client-side limit.
type Enrichment struct {
	Provider     string        `yaml:"provider"`
	Model        string        `yaml:"model"`
	APIKeyEnv    string        `yaml:"api_key_env"`
	OllamaURL    string        `yaml:"ollama_url"`
	OllamaModel  string        `yaml:"ollama_model"`
	Language     string        `yaml:"language"`
	MaxCitations int           `yaml:"max_citations"`
	MaxTokens    int           `yaml:"max_tokens"`
	Timeout      time.Duration `yaml:"timeout"`
}

type Feed struct {
	RSSURL string `yaml:"rss_url"`
	Limit  int    `yaml:"limit"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// Validate checks the parsed configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Metadata,
		validation.Field(&c.Metadata.BaseURL, validation.Required),
		validation.Field(&c.Metadata.Timezone, validation.Required, validation.By(validTimezone)),
		validation.Field(&c.Metadata.RequestsPerSecond, validation.Min(0.0)),
	); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	if err := validation.ValidateStruct(&c.Enrichment,
		validation.Field(&c.Enrichment.Provider, validation.Required, validation.In("gemini", "ollama")),
		validation.Field(&c.Enrichment.Language, validation.Required),
		validation.Field(&c.Enrichment.MaxCitations, validation.Min(0), validation.Max(3)),
		validation.Field(&c.Enrichment.Timeout, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("enrichment: %w", err)
	}
	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return validation.ValidateStruct(&c.Logging,
		validation.Field(&c.Logging.Level, validation.In("DEBUG", "INFO", "WARN", "ERROR", "debug", "info", "warn", "error")),
	)
}

func validTimezone(value any) error {
	name, _ := value.(string)
	if _, err := time.LoadLocation(name); err != nil {
		return fmt.Errorf("unknown timezone %q", name)
	}
	return nil
}

// ConfigDir returns the XDG config directory for adhara.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "adhara")
}

// DataDir returns the XDG data directory for adhara.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "adhara")
}

// LoadEnv loads .env files from the working directory and the config
// directory. Variables already present in the environment win.
func LoadEnv() {
	for _, p := range []string{".env", filepath.Join(ConfigDir(), ".env")} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/adhara/config.yaml > ./config.yaml.
// An empty result with a nil error means built-in defaults apply.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", nil
}

// Load reads and parses a config YAML file. An empty path yields the
// embedded defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return parse(DefaultConfigYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Metadata: Metadata{
			BaseURL:           "https://api.nasa.gov/planetary/apod",
			APIKeyEnv:         "NASA_API_KEY",
			FallbackKey:       DefaultAPIKey,
			Timezone:          "America/New_York",
			RequestsPerSecond: 2,
		},
		Enrichment: Enrichment{
			Provider:     "gemini",
			Model:        "gemini-3-flash-preview",
			APIKeyEnv:    "GEMINI_API_KEY",
			OllamaURL:    "http://localhost:11434",
			OllamaModel:  "qwen2.5:7b",
			Language:     "Spanish",
			MaxCitations: 3,
			MaxTokens:    4096,
		},
		Feed: Feed{
			RSSURL: "https://apod.nasa.gov/apod.rss",
			Limit:  7,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// MetadataAPIKey resolves the APOD key from the environment, falling back to
// the shared demo key.
func (c *Config) MetadataAPIKey() string {
	if c.Metadata.APIKeyEnv != "" {
		if v := os.Getenv(c.Metadata.APIKeyEnv); v != "" {
			return v
		}
	}
	if c.Metadata.FallbackKey != "" {
		return c.Metadata.FallbackKey
	}
	return DefaultAPIKey
}

// EnrichmentAPIKey returns the generative backend key, possibly empty.
func (c *Config) EnrichmentAPIKey() string {
	if c.Enrichment.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Enrichment.APIKeyEnv)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
