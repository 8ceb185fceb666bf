package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override (MARKETRESEARCH_LLM_PROVIDER, ...).
const EnvPrefix = "MARKETRESEARCH"

// Config holds all configuration for a research run and the tooling around it.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Trace     TraceConfig     `mapstructure:"trace"`
	Output    OutputConfig    `mapstructure:"output"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
}

// LLMConfig selects the model vendor and its credentials.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider"` // openai or anthropic
	Model           string        `mapstructure:"model"`    // overrides the per-vendor model
	OpenAIAPIKey    string        `mapstructure:"openai_api_key"`
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key"`
	OpenAIModel     string        `mapstructure:"openai_model"`
	AnthropicModel  string        `mapstructure:"anthropic_model"`
	BaseURL         string        `mapstructure:"base_url"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	MaxRetries      int           `mapstructure:"max_retries"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Normalize() LLMConfig {
	cfg := l
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	return cfg
}

func (l LLMConfig) Validate() error {
	switch l.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider %q unsupported: use 'openai' or 'anthropic'", l.Provider)
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2]")
	}
	return nil
}

// APIKey returns the credential of the selected vendor.
func (l LLMConfig) APIKey() string {
	if l.Provider == "anthropic" {
		return strings.TrimSpace(l.AnthropicAPIKey)
	}
	return strings.TrimSpace(l.OpenAIAPIKey)
}

// APIKeyEnv names the variable that should carry APIKey, for error messages.
func (l LLMConfig) APIKeyEnv() string {
	if l.Provider == "anthropic" {
		return "ANTHROPIC_API_KEY"
	}
	return "OPENAI_API_KEY"
}

// ResolvedModel prefers llm.model, then the vendor specific model. An empty
// result means the vendor default.
func (l LLMConfig) ResolvedModel() string {
	if l.Model != "" {
		return l.Model
	}
	if l.Provider == "anthropic" {
		return strings.TrimSpace(l.AnthropicModel)
	}
	return strings.TrimSpace(l.OpenAIModel)
}

// SearchConfig configures the web_search tool.
type SearchConfig struct {
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	Fallbacks    []string      `mapstructure:"fallbacks"` // unauthenticated providers, in order
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Retries      int           `mapstructure:"retries"`
}

// Normalize lower-cases and de-duplicates the fallback list.
func (s SearchConfig) Normalize() SearchConfig {
	cfg := s
	seen := make(map[string]struct{}, len(cfg.Fallbacks))
	out := make([]string, 0, len(cfg.Fallbacks))
	for _, f := range cfg.Fallbacks {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	cfg.Fallbacks = out
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	return cfg
}

func (s SearchConfig) Validate() error {
	if s.Retries < 0 {
		return fmt.Errorf("search.retries must be >= 0")
	}
	if s.Timeout < 0 {
		return fmt.Errorf("search.timeout must be >= 0")
	}
	return nil
}

// TraceConfig controls trajectory recording.
type TraceConfig struct {
	// Enabled is derived from the raw "trace.enabled" value by LoadConfig, so
	// that 0/false/no/off all disable tracing.
	Enabled      bool   `mapstructure:"-"`
	Dir          string `mapstructure:"dir"`
	PreviewLimit int    `mapstructure:"preview_limit"`
	// RedisStream mirrors events to a Redis stream when storage.redis is set.
	RedisStream  bool  `mapstructure:"redis_stream"`
	StreamMaxLen int64 `mapstructure:"stream_max_len"`
}

// OutputConfig says where reports land.
type OutputConfig struct {
	Dir        string `mapstructure:"dir"`         // persist tool root
	ReportFile string `mapstructure:"report_file"` // name used by the persist tool
	File       string `mapstructure:"file"`        // final report written by the CLI
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	MetricsJob     string `mapstructure:"metrics_job"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && strings.TrimSpace(t.OTLPEndpoint) == "" {
		return fmt.Errorf("telemetry.otlp_endpoint required when telemetry is enabled")
	}
	return nil
}

// StorageConfig groups the optional backing stores.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Configured reports whether any Redis endpoint was given.
func (r RedisConfig) Configured() bool {
	return strings.TrimSpace(r.Addr) != "" || strings.TrimSpace(r.Host) != ""
}

// Address returns host:port, preferring Addr.
func (r RedisConfig) Address() string {
	if addr := strings.TrimSpace(r.Addr); addr != "" {
		return addr
	}
	port := strings.TrimSpace(r.Port)
	if port == "" {
		port = "6379"
	}
	return net.JoinHostPort(strings.TrimSpace(r.Host), port)
}

func (r RedisConfig) Validate() error {
	if !r.Configured() {
		return nil
	}
	if _, _, err := net.SplitHostPort(r.Address()); err != nil {
		return fmt.Errorf("storage.redis address %q invalid: %w", r.Address(), err)
	}
	if r.DB < 0 {
		return fmt.Errorf("storage.redis.db must be >= 0")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Configured reports whether a database was given at all.
func (p PostgresConfig) Configured() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

// DSN returns a postgres:// URL usable by lib/pq and golang-migrate.
func (p PostgresConfig) DSN() string {
	if raw := strings.TrimSpace(p.URL); raw != "" {
		return raw
	}
	port := strings.TrimSpace(p.Port)
	if port == "" {
		port = "5432"
	}
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(strings.TrimSpace(p.Host), port),
		Path:     "/" + p.DBName,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	if p.User != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u.String()
}

func (p PostgresConfig) Validate() error {
	if !p.Configured() || strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// ServerConfig contains the read-only trace API settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// legacyEnv maps config keys to the unprefixed variables older deployments set.
var legacyEnv = map[string]string{
	"llm.provider":              "LLM_PROVIDER",
	"llm.openai_api_key":        "OPENAI_API_KEY",
	"llm.anthropic_api_key":     "ANTHROPIC_API_KEY",
	"llm.openai_model":          "OPENAI_MODEL",
	"llm.anthropic_model":       "ANTHROPIC_MODEL",
	"search.serper_api_key":     "SERPER_API_KEY",
	"search.brave_api_key":      "BRAVE_API_KEY",
	"trace.enabled":             "TRACE_TRAJECTORY",
	"trace.dir":                 "TRACE_DIR",
	"storage.postgres.url":      "DATABASE_URL",
	"storage.redis.addr":        "REDIS_ADDR",
	"telemetry.otlp_endpoint":   "OTEL_EXPORTER_OTLP_ENDPOINT",
	"telemetry.pushgateway_url": "PUSHGATEWAY_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("search.fallbacks", []string{"duckduckgo", "wikipedia"})
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.timeout", 20*time.Second)
	v.SetDefault("search.retries", 1)
	v.SetDefault("trace.enabled", true)
	v.SetDefault("trace.dir", "trajectories")
	v.SetDefault("trace.preview_limit", 1200)
	v.SetDefault("trace.redis_stream", false)
	v.SetDefault("trace.stream_max_len", 10000)
	v.SetDefault("output.dir", "outputs")
	v.SetDefault("output.report_file", "market_report.md")
	v.SetDefault("output.file", "planning_market_report.md")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "marketresearch")
	v.SetDefault("telemetry.metrics_job", "marketresearch")
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("storage.postgres.timeout", 5*time.Second)
	v.SetDefault("server.address", ":8080")
}

// LoadConfig reads configuration from defaults, an optional config file and
// the environment, in increasing precedence. With an empty path the usual
// locations are searched and a missing file is not an error; an explicit
// path must exist.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Trace.Enabled = ParseSwitch(v.GetString("trace.enabled"), true)
	cfg.LLM = cfg.LLM.Normalize()
	cfg.Search = cfg.Search.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Redis.Validate(); err != nil {
		return err
	}
	return c.Storage.Postgres.Validate()
}

// ParseSwitch reads an on/off value: blank means def, and 0, false, no and
// off (any case) mean off. Everything else is on.
func ParseSwitch(raw string, def bool) bool {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return def
	}
	switch raw {
	case "0", "false", "no", "off":
		return false
	}
	return true
}
