package server

import (
	"strings"
	"testing"

	"github.com/craftai-co-in/superflow/internal/gateway"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SUPERFLOW_DATA_DIR", "SUPERFLOW_BIND_ADDRESS", "SUPERFLOW_PORT", "SUPERFLOW_ADMIN_KEY",
		"SUPERFLOW_FREE_URL", "SUPERFLOW_PREMIUM_URL", "SUPERFLOW_FREE_HOSTS", "SUPERFLOW_PREMIUM_HOSTS",
		"SUPERFLOW_COOKIE_DOMAIN", "SUPERFLOW_STATIC_DIR", "SUPERFLOW_PUBLIC_METRICS", "SUPERFLOW_SWEEP_SCHEDULE",
		"CASHFREE_ENV", "CASHFREE_APP_ID", "CASHFREE_SECRET_KEY", "CASHFREE_API_VERSION",
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 8080 || cfg.DataDir != "./data" {
		t.Fatalf("unexpected defaults: port=%d data=%q", cfg.Port, cfg.DataDir)
	}
	if cfg.GatewayEnv != gateway.EnvSandbox {
		t.Fatalf("GatewayEnv = %q, want sandbox", cfg.GatewayEnv)
	}
	if cfg.SecureCookies() {
		t.Fatal("http base URLs must not produce secure cookies")
	}
	if cfg.CookieDomain != "" {
		t.Fatalf("CookieDomain = %q, want empty for localhost", cfg.CookieDomain)
	}
	if cfg.SweepSchedule != "" {
		t.Fatalf("scheduled sweep should be off by default, got %q", cfg.SweepSchedule)
	}
}

func TestLoadConfigDerivesHostsAndCookieDomain(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SUPERFLOW_FREE_URL", "https://app.superflow.in")
	t.Setenv("SUPERFLOW_PREMIUM_URL", "https://pro.superflow.in")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.FreeHosts) != 1 || cfg.FreeHosts[0] != "app.superflow.in" {
		t.Fatalf("FreeHosts = %v", cfg.FreeHosts)
	}
	if len(cfg.PremiumHosts) != 1 || cfg.PremiumHosts[0] != "pro.superflow.in" {
		t.Fatalf("PremiumHosts = %v", cfg.PremiumHosts)
	}
	if cfg.CookieDomain != "superflow.in" {
		t.Fatalf("CookieDomain = %q", cfg.CookieDomain)
	}
	if !cfg.SecureCookies() {
		t.Fatal("https base URLs should produce secure cookies")
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad port", map[string]string{"SUPERFLOW_PORT": "70000"}, "SUPERFLOW_PORT"},
		{"non-numeric port", map[string]string{"SUPERFLOW_PORT": "http"}, "valid integer"},
		{"bad scheme", map[string]string{"SUPERFLOW_FREE_URL": "ftp://app.example.com"}, "http or https"},
		{"unknown gateway env", map[string]string{"CASHFREE_ENV": "staging"}, "CASHFREE_ENV"},
		{"production without creds", map[string]string{"CASHFREE_ENV": "production", "CASHFREE_APP_ID": "app"}, "CASHFREE_SECRET_KEY"},
		{"half google config", map[string]string{"GOOGLE_CLIENT_ID": "id"}, "set together"},
		{"bad bool", map[string]string{"SUPERFLOW_PUBLIC_METRICS": "maybe"}, "boolean"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("LoadConfig error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestParentDomain(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"app.superflow.in", "pro.superflow.in", "superflow.in"},
		{"superflow.in", "pro.superflow.in", "superflow.in"},
		{"app.superflow.in", "app.superflow.in", ""},
		{"superflow.in", "superflow.com", ""},
		{"localhost", "localhost", ""},
		{"127.0.0.1", "127.0.0.2", ""},
	}
	for _, tc := range tests {
		if got := parentDomain(tc.a, tc.b); got != tc.want {
			t.Errorf("parentDomain(%q, %q) = %q, want %q", tc.a, tc.b, got, tc.want)
		}
	}
}
