package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

const appName = "newstopics"

type Config struct {
	Collector     Collector     `yaml:"collector"`
	Sources       Sources       `yaml:"sources"`
	Fetch         Fetch         `yaml:"fetch"`
	Preprocess    Preprocess    `yaml:"preprocess"`
	Modeling      Modeling      `yaml:"modeling"`
	Summarization Summarization `yaml:"summarization"`
	Database      Database      `yaml:"database"`
	Query         Query         `yaml:"query"`
	Server        Server        `yaml:"server"`
	Schedule      Schedule      `yaml:"schedule"`
	Logging       Logging       `yaml:"logging"`
}

type Collector struct {
	Terms       []string      `yaml:"terms"`
	WindowHours int           `yaml:"window_hours"`
	Timezone    string        `yaml:"timezone"`
	PageSize    int           `yaml:"page_size"`
	MaxPages    int           `yaml:"max_pages"`
	PageDelay   time.Duration `yaml:"page_delay"`
	Concurrency int           `yaml:"concurrency"`
}

type Sources struct {
	Naver   NaverConfig   `yaml:"naver"`
	NewsAPI NewsAPIConfig `yaml:"newsapi"`
	Feed    FeedConfig    `yaml:"feed"`
}

type NaverConfig struct {
	Enabled         bool   `yaml:"enabled"`
	BaseURL         string `yaml:"base_url"`
	ClientIDEnv     string `yaml:"client_id_env"`
	ClientSecretEnv string `yaml:"client_secret_env"`
}

type NewsAPIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Language  string `yaml:"language"`
}

type FeedConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URLTemplate string `yaml:"url_template"`
}

type Fetch struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

type Preprocess struct {
	MinTokenLength int      `yaml:"min_token_length"`
	Stopwords      []string `yaml:"stopwords"`
}

type Modeling struct {
	Provider          string  `yaml:"provider"` // "local" or "remote"
	EmbeddingProvider string  `yaml:"embedding_provider"`
	EmbeddingModel    string  `yaml:"embedding_model"`
	OllamaURL         string  `yaml:"ollama_url"`
	DistanceThreshold float64 `yaml:"distance_threshold"`
	MinTopicSize      int     `yaml:"min_topic_size"`
	TopNWords         int     `yaml:"top_n_words"`
	Refine            bool    `yaml:"refine"`
	RefineThreshold   float64 `yaml:"refine_threshold"`
	RemoteURL         string  `yaml:"remote_url"`
	RemoteAPIKeyEnv   string  `yaml:"remote_api_key_env"`
	LLMLabels         bool    `yaml:"llm_labels"`
}

type Summarization struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	MaxTokens   int    `yaml:"max_tokens"`
}

type Database struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	Path   string `yaml:"path"`
	DSNEnv string `yaml:"dsn_env"`
}

type Query struct {
	TrendMinCount int `yaml:"trend_min_count"`
	KeywordTopN   int `yaml:"keyword_top_n"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Schedule struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigDir returns the XDG config directory for newstopics.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// DataDir returns the XDG data directory for newstopics.
func DataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// ResolveConfigPath finds the config file following priority:
// explicit path > $XDG_CONFIG_HOME/newstopics/config.yaml > ./config.yaml
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

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'newstopics init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the configuration with every default applied and no file overrides.
func Default() *Config {
	return defaults()
}

func defaults() *Config {
	return &Config{
		Collector: Collector{
			WindowHours: 24,
			Timezone:    "Asia/Seoul",
			PageSize:    100,
			MaxPages:    10,
			PageDelay:   100 * time.Millisecond,
			Concurrency: 1,
		},
		Sources: Sources{
			Naver: NaverConfig{
				Enabled:         true,
				BaseURL:         "https://openapi.naver.com/v1/search/news.json",
				ClientIDEnv:     "NAVER_CLIENT_ID",
				ClientSecretEnv: "NAVER_CLIENT_SECRET",
			},
			NewsAPI: NewsAPIConfig{
				BaseURL:   "https://newsapi.org/v2/everything",
				APIKeyEnv: "NEWSAPI_KEY",
			},
		},
		Fetch:      Fetch{Timeout: 15 * time.Second},
		Preprocess: Preprocess{MinTokenLength: 2},
		Modeling: Modeling{
			Provider:          "local",
			EmbeddingProvider: "ollama",
			EmbeddingModel:    "nomic-embed-text",
			OllamaURL:         "http://localhost:11434",
			DistanceThreshold: 1.2,
			MinTopicSize:      10,
			TopNWords:         10,
			Refine:            true,
			RemoteAPIKeyEnv:   "TOPIC_MODEL_API_KEY",
		},
		Summarization: Summarization{
			Provider:    "ollama",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxTokens:   64,
		},
		Database: Database{Driver: "sqlite", DSNEnv: "NEWSTOPICS_DATABASE_DSN"},
		Query:    Query{TrendMinCount: 10, KeywordTopN: 20},
		Server:   Server{Port: 8000},
		Schedule: Schedule{Cron: "0 6 * * *", Timezone: "Asia/Seoul"},
		Logging:  Logging{Level: "info", Format: "text"},
	}
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("collector.timezone: %w", err)
	}
	if c.Collector.WindowHours <= 0 {
		return fmt.Errorf("collector.window_hours must be positive, got %d", c.Collector.WindowHours)
	}
	if c.Collector.PageSize <= 0 || c.Collector.MaxPages <= 0 {
		return fmt.Errorf("collector.page_size and collector.max_pages must be positive")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	switch c.Modeling.Provider {
	case "local", "remote":
	default:
		return fmt.Errorf("modeling.provider must be local or remote, got %q", c.Modeling.Provider)
	}
	return nil
}

// Location resolves the collector's reference timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Collector.Timezone)
}

// Window returns the trailing collection window.
func (c *Config) Window() time.Duration {
	return time.Duration(c.Collector.WindowHours) * time.Hour
}

// GetDatabasePath returns the effective SQLite path from config or the XDG default.
func (c *Config) GetDatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(DataDir(), "newstopics.db")
}

// DatabaseDSN returns the Postgres DSN from the configured environment variable.
func (c *Config) DatabaseDSN() string {
	return os.Getenv(c.Database.DSNEnv)
}
