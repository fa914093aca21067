package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jimshare/bae-ai/internal/util"
)

// Reply modes for the /sms webhook.
const (
	ReplyModeText  = "text"  // plain-text body (Twilio sends it as the reply)
	ReplyModeTwiML = "twiml" // <Response><Message> document
	ReplyModeREST  = "rest"  // empty TwiML, reply sent through the Messages API
)

// LLM providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config represents the main configuration
type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Twilio    TwilioConfig    `toml:"twilio" yaml:"twilio"`
	LLM       LLMConfig       `toml:"llm" yaml:"llm"`
	Prompt    PromptConfig    `toml:"prompt" yaml:"prompt"`
	RateLimit RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
	Store     StoreConfig     `toml:"store" yaml:"store"`
	Dev       DevConfig       `toml:"dev" yaml:"dev"`
	Log       LogConfig       `toml:"log" yaml:"log"`
}

// ServerConfig configures the webhook HTTP server.
type ServerConfig struct {
	Host          string `toml:"host" yaml:"host"`
	Port          int    `toml:"port" yaml:"port"`
	PublicBaseURL string `toml:"public_base_url" yaml:"public_base_url"` // URL Twilio calls (tunnel URL)
	ReplyMode     string `toml:"reply_mode" yaml:"reply_mode"`           // text, twiml or rest
	APIKey        string `toml:"api_key" yaml:"api_key"`                 // protects /api/v1
	RESTWorkers   int    `toml:"rest_workers" yaml:"rest_workers"`       // concurrent REST deliveries
}

// TwilioConfig holds Twilio credentials.
type TwilioConfig struct {
	AccountSID        string `toml:"account_sid" yaml:"account_sid"`
	AuthToken         string `toml:"auth_token" yaml:"auth_token"`
	PhoneNumber       string `toml:"phone_number" yaml:"phone_number"`
	ValidateSignature bool   `toml:"validate_signature" yaml:"validate_signature"`
	APIBaseURL        string `toml:"api_base_url" yaml:"api_base_url"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	Provider       string   `toml:"provider" yaml:"provider"`
	Model          string   `toml:"model" yaml:"model"`
	MaxTokens      int      `toml:"max_tokens" yaml:"max_tokens"`
	Temperature    *float64 `toml:"temperature,omitempty" yaml:"temperature,omitempty"` // nil: provider default
	AnthropicKey   string   `toml:"anthropic_api_key" yaml:"anthropic_api_key"`
	GeminiKey      string   `toml:"gemini_api_key" yaml:"gemini_api_key"`
	BaseURL        string   `toml:"base_url" yaml:"base_url"`
	TimeoutSeconds int      `toml:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries     int      `toml:"max_retries" yaml:"max_retries"`
}

// PromptConfig controls prompt assembly and reply length.
type PromptConfig struct {
	ContextFile string `toml:"context_file" yaml:"context_file"`
	Watch       bool   `toml:"watch" yaml:"watch"`         // reload context file on change
	SMSLimit    int    `toml:"sms_limit" yaml:"sms_limit"` // 0 disables truncation
}

// RateLimitConfig bounds replies per sender.
type RateLimitConfig struct {
	MaxPerWindow  int `toml:"max_per_window" yaml:"max_per_window"` // 0 disables
	WindowMinutes int `toml:"window_minutes" yaml:"window_minutes"`
}

// StoreConfig configures the SQLite message log.
type StoreConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// DevConfig configures the tmux development launcher.
type DevConfig struct {
	Session       string `toml:"session" yaml:"session"`
	ServerCommand string `toml:"server_command" yaml:"server_command"`
	TunnelCommand string `toml:"tunnel_command" yaml:"tunnel_command"` // empty means "ngrok http <port>"
	Vertical      bool   `toml:"vertical" yaml:"vertical"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`   // debug, info, warn, error
	Format string `toml:"format" yaml:"format"` // json or console
}

// DotEnvFile is loaded by Load before environment overrides are applied.
var DotEnvFile = ".env"

// DefaultPath returns the default config file path
func DefaultPath() string {
	if env := os.Getenv("BAE_CONFIG"); env != "" {
		return ExpandHome(env)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bae", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		// Fallback to /tmp when home directory is unavailable (e.g., containers)
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "bae", "config.toml")
}

// DefaultStorePath returns the message log path next to the config file.
func DefaultStorePath() string {
	return filepath.Join(filepath.Dir(DefaultPath()), "messages.db")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			ReplyMode:   ReplyModeText,
			RESTWorkers: 4,
		},
		Twilio: TwilioConfig{
			ValidateSignature: true,
			APIBaseURL:        "https://api.twilio.com",
		},
		LLM: LLMConfig{
			Provider:       ProviderAnthropic,
			Model:          "claude-3-5-sonnet-20241022",
			MaxTokens:      1024,
			BaseURL:        "https://api.anthropic.com",
			TimeoutSeconds: 60,
			MaxRetries:     2,
		},
		Prompt: PromptConfig{
			ContextFile: "context.txt",
			Watch:       true,
			SMSLimit:    320,
		},
		RateLimit: RateLimitConfig{
			MaxPerWindow:  10,
			WindowMinutes: 60,
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    DefaultStorePath(),
		},
		Dev: DevConfig{
			Session:       "bae",
			ServerCommand: "bae serve",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path (DefaultPath when empty) over the defaults, then applies
// .env and environment overrides (Env > TOML > Default).
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	// 1. Initialize with defaults
	cfg := Default()

	// 2. Read and unmarshal TOML over defaults
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	// 3. .env never overrides variables already set in the environment
	if err := LoadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}

	// 4. Apply Environment Variable Overrides
	ApplyEnv(cfg, os.Getenv)

	cfg.Store.Path = ExpandHome(cfg.Store.Path)
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg from environment variables read through getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.AnthropicKey = v
	}
	if v := getenv("GEMINI_API_KEY"); v != "" {
		cfg.LLM.GeminiKey = v
	} else if v := getenv("GOOGLE_API_KEY"); v != "" {
		cfg.LLM.GeminiKey = v
	}
	if v := getenv("BAE_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = strings.ToLower(v)
	}
	if v := getenv("BAE_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	if v := getenv("TWILIO_ACCOUNT_SID"); v != "" {
		cfg.Twilio.AccountSID = v
	}
	if v := getenv("TWILIO_AUTH_TOKEN"); v != "" {
		cfg.Twilio.AuthToken = v
	}
	if v := getenv("TWILIO_PHONE_NUMBER"); v != "" {
		cfg.Twilio.PhoneNumber = v
	}

	if v := getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.Port = n
		}
	}
	if v := getenv("BAE_PUBLIC_BASE_URL"); v != "" {
		cfg.Server.PublicBaseURL = v
	}
	if v := getenv("BAE_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := getenv("BAE_CONTEXT_FILE"); v != "" {
		cfg.Prompt.ContextFile = v
	}
	if v := getenv("BAE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
}

// TunnelCommand returns the configured tunnel command or the ngrok default.
func (c *Config) TunnelCommand() string {
	if c.Dev.TunnelCommand != "" {
		return c.Dev.TunnelCommand
	}
	return "ngrok http " + strconv.Itoa(c.Server.Port)
}

// APIKeyFor returns the credential for the configured provider.
func (c *Config) APIKeyFor() string {
	if c.LLM.Provider == ProviderGemini {
		return c.LLM.GeminiKey
	}
	return c.LLM.AnthropicKey
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Twilio.AuthToken = mask(cp.Twilio.AuthToken)
	cp.LLM.AnthropicKey = mask(cp.LLM.AnthropicKey)
	cp.LLM.GeminiKey = mask(cp.LLM.GeminiKey)
	cp.Server.APIKey = mask(cp.Server.APIKey)
	return &cp
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// tomlFloat formats f so TOML reads it back as a float, never an integer.
func tomlFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// CreateDefaultAt writes the default config to path, refusing to overwrite.
func CreateDefaultAt(path string) (string, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config file already exists: %s", path)
	}

	var buffer strings.Builder
	if err := Print(Default(), &buffer); err != nil {
		return "", err
	}

	// 0600: the file may hold API keys
	if err := util.AtomicWriteFile(path, []byte(buffer.String()), 0600); err != nil {
		return "", err
	}

	return path, nil
}

// Print writes cfg as a commented TOML document.
func Print(cfg *Config, w io.Writer) error {
	fmt.Fprintln(w, "# bae configuration")
	fmt.Fprintln(w, "# Environment variables (and .env) override these values.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[server]")
	fmt.Fprintf(w, "host = %q\n", cfg.Server.Host)
	fmt.Fprintf(w, "port = %d  # $PORT\n", cfg.Server.Port)
	fmt.Fprintln(w, "# Public URL Twilio posts to (your tunnel), used for signature checks")
	printOptional(w, "public_base_url", cfg.Server.PublicBaseURL, "https://example.ngrok.app")
	fmt.Fprintln(w, "# Reply mode: text (plain body), twiml, rest (send via Messages API)")
	fmt.Fprintf(w, "reply_mode = %q\n", cfg.Server.ReplyMode)
	fmt.Fprintln(w, "# Key for the /api/v1 read endpoints ($BAE_API_KEY)")
	printOptional(w, "api_key", cfg.Server.APIKey, "change-me")
	fmt.Fprintf(w, "rest_workers = %d\n", cfg.Server.RESTWorkers)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[twilio]")
	fmt.Fprintln(w, "# Prefer $TWILIO_ACCOUNT_SID, $TWILIO_AUTH_TOKEN, $TWILIO_PHONE_NUMBER")
	printOptional(w, "account_sid", cfg.Twilio.AccountSID, "AC...")
	printOptional(w, "auth_token", cfg.Twilio.AuthToken, "")
	printOptional(w, "phone_number", cfg.Twilio.PhoneNumber, "+15550001111")
	fmt.Fprintf(w, "validate_signature = %t\n", cfg.Twilio.ValidateSignature)
	fmt.Fprintf(w, "api_base_url = %q\n", cfg.Twilio.APIBaseURL)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[llm]")
	fmt.Fprintln(w, "# Provider: anthropic or gemini ($BAE_LLM_PROVIDER)")
	fmt.Fprintf(w, "provider = %q\n", cfg.LLM.Provider)
	fmt.Fprintf(w, "model = %q\n", cfg.LLM.Model)
	fmt.Fprintf(w, "max_tokens = %d\n", cfg.LLM.MaxTokens)
	if cfg.LLM.Temperature != nil {
		fmt.Fprintf(w, "temperature = %s\n", tomlFloat(*cfg.LLM.Temperature))
	} else {
		fmt.Fprintln(w, "# temperature = 0.7")
	}
	fmt.Fprintln(w, "# Prefer $ANTHROPIC_API_KEY / $GEMINI_API_KEY")
	printOptional(w, "anthropic_api_key", cfg.LLM.AnthropicKey, "")
	printOptional(w, "gemini_api_key", cfg.LLM.GeminiKey, "")
	fmt.Fprintf(w, "base_url = %q\n", cfg.LLM.BaseURL)
	fmt.Fprintf(w, "timeout_seconds = %d\n", cfg.LLM.TimeoutSeconds)
	fmt.Fprintf(w, "max_retries = %d\n", cfg.LLM.MaxRetries)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[prompt]")
	fmt.Fprintf(w, "context_file = %q\n", cfg.Prompt.ContextFile)
	fmt.Fprintf(w, "watch = %t\n", cfg.Prompt.Watch)
	fmt.Fprintln(w, "# Maximum reply length in characters (0 disables)")
	fmt.Fprintf(w, "sms_limit = %d\n", cfg.Prompt.SMSLimit)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[rate_limit]")
	fmt.Fprintln(w, "# Replies per sender per window (0 disables)")
	fmt.Fprintf(w, "max_per_window = %d\n", cfg.RateLimit.MaxPerWindow)
	fmt.Fprintf(w, "window_minutes = %d\n", cfg.RateLimit.WindowMinutes)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[store]")
	fmt.Fprintf(w, "enabled = %t\n", cfg.Store.Enabled)
	fmt.Fprintf(w, "path = %q\n", cfg.Store.Path)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[dev]")
	fmt.Fprintf(w, "session = %q\n", cfg.Dev.Session)
	fmt.Fprintf(w, "server_command = %q\n", cfg.Dev.ServerCommand)
	fmt.Fprintln(w, "# Defaults to \"ngrok http <port>\"")
	printOptional(w, "tunnel_command", cfg.Dev.TunnelCommand, "ngrok http 8000")
	fmt.Fprintf(w, "vertical = %t\n", cfg.Dev.Vertical)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[log]")
	fmt.Fprintf(w, "level = %q\n", cfg.Log.Level)
	fmt.Fprintf(w, "format = %q\n", cfg.Log.Format)

	return nil
}

func printOptional(w io.Writer, key, value, example string) {
	if value != "" {
		fmt.Fprintf(w, "%s = %q\n", key, value)
		return
	}
	fmt.Fprintf(w, "# %s = %q\n", key, example)
}

// PrintYAML writes cfg as YAML.
func PrintYAML(cfg *Config, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	return enc.Close()
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			return home
		}
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}

	return path
}

// Validate checks cfg and returns every problem found.
func Validate(cfg *Config) []error {
	if cfg == nil {
		return []error{fmt.Errorf("config is nil")}
	}

	var errs []error

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: must be between 1 and 65535, got %d", cfg.Server.Port))
	}
	switch cfg.Server.ReplyMode {
	case ReplyModeText, ReplyModeTwiML, ReplyModeREST:
		// ok
	default:
		errs = append(errs, fmt.Errorf("server.reply_mode: must be \"text\", \"twiml\" or \"rest\", got %q", cfg.Server.ReplyMode))
	}
	if cfg.Server.PublicBaseURL != "" {
		u, err := url.Parse(cfg.Server.PublicBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("server.public_base_url: must be an absolute URL, got %q", cfg.Server.PublicBaseURL))
		}
	}
	if cfg.Server.RESTWorkers < 1 {
		errs = append(errs, fmt.Errorf("server.rest_workers: must be at least 1, got %d", cfg.Server.RESTWorkers))
	}
	if cfg.Server.ReplyMode == ReplyModeREST {
		if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" {
			errs = append(errs, fmt.Errorf("twilio: reply_mode \"rest\" requires account_sid and auth_token"))
		}
		if cfg.Twilio.PhoneNumber == "" {
			errs = append(errs, fmt.Errorf("twilio.phone_number: required for reply_mode \"rest\""))
		}
	}
	switch cfg.LLM.Provider {
	case ProviderAnthropic, ProviderGemini:
		// ok
	default:
		errs = append(errs, fmt.Errorf("llm.provider: must be \"anthropic\" or \"gemini\", got %q", cfg.LLM.Provider))
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("llm.model: must not be empty"))
	}
	if cfg.LLM.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("llm.max_tokens: must be positive, got %d", cfg.LLM.MaxTokens))
	}
	if t := cfg.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("llm.temperature: must be between 0 and 2, got %g", *t))
	}
	if cfg.LLM.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("llm.timeout_seconds: must be non-negative, got %d", cfg.LLM.TimeoutSeconds))
	}
	if cfg.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("llm.max_retries: must be non-negative, got %d", cfg.LLM.MaxRetries))
	}

	if cfg.Prompt.SMSLimit < 0 {
		errs = append(errs, fmt.Errorf("prompt.sms_limit: must be non-negative, got %d", cfg.Prompt.SMSLimit))
	}
	if cfg.RateLimit.MaxPerWindow < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.max_per_window: must be non-negative, got %d", cfg.RateLimit.MaxPerWindow))
	}
	if cfg.RateLimit.MaxPerWindow > 0 && cfg.RateLimit.WindowMinutes < 1 {
		errs = append(errs, fmt.Errorf("rate_limit.window_minutes: must be at least 1, got %d", cfg.RateLimit.WindowMinutes))
	}
	if cfg.Store.Enabled && cfg.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store.path: must not be empty when the store is enabled"))
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
		// ok
	default:
		errs = append(errs, fmt.Errorf("log.level: must be debug, info, warn or error, got %q", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "json", "console":
		// ok
	default:
		errs = append(errs, fmt.Errorf("log.format: must be \"json\" or \"console\", got %q", cfg.Log.Format))
	}

	return errs
}

// ValidateLLMCredentials reports a missing key for the configured provider.
// It is separate from Validate because `bae dev` and `bae config` work without one.
func ValidateLLMCredentials(cfg *Config) error {
	if cfg.APIKeyFor() != "" {
		return nil
	}
	if cfg.LLM.Provider == ProviderGemini {
		return errors.New("GEMINI_API_KEY (or GOOGLE_API_KEY) is not set")
	}
	return errors.New("ANTHROPIC_API_KEY is not set")
}
