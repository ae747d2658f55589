package server

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/craftai-co-in/superflow/internal/gateway"
	"github.com/craftai-co-in/superflow/internal/routing"
)

// Config holds all configuration for the server.
type Config struct {
	DataDir       string
	BindAddress   string
	Port          int
	AdminKey      string
	FreeURL       string
	PremiumURL    string
	FreeHosts     []string
	PremiumHosts  []string
	CookieDomain  string
	StaticDir     string
	PublicMetrics bool
	SweepSchedule string // cron spec; empty disables the scheduled sweep

	LogLevel  string
	LogFormat string
	LogFile   string

	GatewayEnv        gateway.Environment
	CashfreeAppID     string
	CashfreeSecretKey string
	CashfreeVersion   string

	OpenAIKey       string
	OpenAIBaseURL   string
	TranscribeModel string
	EnhanceModel    string

	PostmarkToken string
	EmailFrom     string

	GoogleClientID     string
	GoogleClientSecret string
}

// LoadConfig loads configuration from environment variables.
// A .env file is loaded if present but not required.
func LoadConfig() (*Config, error) {
	// Best-effort .env loading (not required)
	_ = godotenv.Load()

	port, err := envOrDefaultInt("SUPERFLOW_PORT", 8080)
	if err != nil {
		return nil, err
	}
	publicMetrics, err := envOrDefaultBool("SUPERFLOW_PUBLIC_METRICS", false)
	if err != nil {
		return nil, err
	}
	env, err := gateway.ParseEnvironment(os.Getenv("CASHFREE_ENV"))
	if err != nil {
		return nil, fmt.Errorf("CASHFREE_ENV: %w", err)
	}

	cfg := &Config{
		DataDir:       envOrDefault("SUPERFLOW_DATA_DIR", "./data"),
		BindAddress:   envOrDefault("SUPERFLOW_BIND_ADDRESS", "0.0.0.0"),
		Port:          port,
		AdminKey:      strings.TrimSpace(os.Getenv("SUPERFLOW_ADMIN_KEY")),
		FreeURL:       envOrDefault("SUPERFLOW_FREE_URL", "http://localhost:8080"),
		PremiumURL:    envOrDefault("SUPERFLOW_PREMIUM_URL", "http://localhost:8080"),
		FreeHosts:     envList("SUPERFLOW_FREE_HOSTS"),
		PremiumHosts:  envList("SUPERFLOW_PREMIUM_HOSTS"),
		CookieDomain:  strings.TrimSpace(os.Getenv("SUPERFLOW_COOKIE_DOMAIN")),
		StaticDir:     strings.TrimSpace(os.Getenv("SUPERFLOW_STATIC_DIR")),
		PublicMetrics: publicMetrics,
		SweepSchedule: strings.TrimSpace(os.Getenv("SUPERFLOW_SWEEP_SCHEDULE")),

		LogLevel:  envOrDefault("SUPERFLOW_LOG_LEVEL", "info"),
		LogFormat: envOrDefault("SUPERFLOW_LOG_FORMAT", "auto"),
		LogFile:   strings.TrimSpace(os.Getenv("SUPERFLOW_LOG_FILE")),

		GatewayEnv:        env,
		CashfreeAppID:     strings.TrimSpace(os.Getenv("CASHFREE_APP_ID")),
		CashfreeSecretKey: strings.TrimSpace(os.Getenv("CASHFREE_SECRET_KEY")),
		CashfreeVersion:   envOrDefault("CASHFREE_API_VERSION", "2023-08-01"),

		OpenAIKey:       strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:   strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		TranscribeModel: strings.TrimSpace(os.Getenv("SUPERFLOW_TRANSCRIBE_MODEL")),
		EnhanceModel:    strings.TrimSpace(os.Getenv("SUPERFLOW_ENHANCE_MODEL")),

		PostmarkToken: strings.TrimSpace(os.Getenv("POSTMARK_SERVER_TOKEN")),
		EmailFrom:     envOrDefault("SUPERFLOW_EMAIL_FROM", "noreply@superflow.in"),

		GoogleClientID:     strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
		GoogleClientSecret: strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET")),
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyDefaults derives host patterns and the cookie domain from the base
// URLs when they are not set explicitly.
func (c *Config) applyDefaults() {
	if len(c.FreeHosts) == 0 {
		if h := routing.HostOf(c.FreeURL); h != "" {
			c.FreeHosts = []string{h}
		}
	}
	if len(c.PremiumHosts) == 0 {
		if h := routing.HostOf(c.PremiumURL); h != "" && h != routing.HostOf(c.FreeURL) {
			c.PremiumHosts = []string{h}
		}
	}
	if c.CookieDomain == "" {
		c.CookieDomain = parentDomain(routing.HostOf(c.FreeURL), routing.HostOf(c.PremiumURL))
	}
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("SUPERFLOW_PORT must be between 1 and 65535, got %d", c.Port)
	}
	for key, raw := range map[string]string{"SUPERFLOW_FREE_URL": c.FreeURL, "SUPERFLOW_PREMIUM_URL": c.PremiumURL} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s must be a valid URL: %w", key, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%s must use http or https scheme", key)
		}
		if u.Host == "" {
			return fmt.Errorf("%s must include a host", key)
		}
	}
	if c.GatewayEnv == gateway.EnvProduction {
		var missing []string
		if c.CashfreeAppID == "" {
			missing = append(missing, "CASHFREE_APP_ID")
		}
		if c.CashfreeSecretKey == "" {
			missing = append(missing, "CASHFREE_SECRET_KEY")
		}
		if len(missing) > 0 {
			return fmt.Errorf("production gateway requires: %s", strings.Join(missing, ", "))
		}
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}
	return nil
}

// SecureCookies reports whether both origins are served over https.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.FreeURL, "https://") && strings.HasPrefix(c.PremiumURL, "https://")
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// parentDomain returns the longest common dot-suffix of two hosts with at
// least two labels, e.g. app.superflow.in + pro.superflow.in -> superflow.in.
// It returns "" for IPs, single-label hosts and unrelated hosts.
func parentDomain(a, b string) string {
	if a == "" || b == "" || a == "localhost" || b == "localhost" || isIP(a) || isIP(b) {
		return ""
	}
	if a == b {
		return ""
	}
	la, lb := strings.Split(a, "."), strings.Split(b, ".")
	var common []string
	for i, j := len(la)-1, len(lb)-1; i >= 0 && j >= 0 && la[i] == lb[j]; i, j = i-1, j-1 {
		common = append([]string{la[i]}, common...)
	}
	if len(common) < 2 {
		return ""
	}
	return strings.Join(common, ".")
}

func isIP(host string) bool {
	for _, r := range host {
		if (r < '0' || r > '9') && r != '.' && r != ':' {
			return false
		}
	}
	return true
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultBool(key string, fallback bool) (bool, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%s must be a boolean: %w", key, err)
		}
		return b, nil
	}
	return fallback, nil
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
