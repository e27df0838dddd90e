package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "empty agent binary",
			mutate:    func(c *Config) { c.Session.AgentBinary = "" },
			wantField: "session.agent_binary",
		},
		{
			name:      "negative history limit",
			mutate:    func(c *Config) { c.Session.TmuxHistoryLimit = -1 },
			wantField: "session.tmux_history_limit",
		},
		{
			name:      "webhook url without scheme",
			mutate:    func(c *Config) { c.Webhook.URL = "hooks.example.com"; c.Webhook.Secret = "s" },
			wantField: "webhook.url",
		},
		{
			name:      "webhook url without secret",
			mutate:    func(c *Config) { c.Webhook.URL = "https://hooks.example.com" },
			wantField: "webhook.secret",
		},
		{
			name:      "zero request timeout",
			mutate:    func(c *Config) { c.Webhook.RequestTimeoutMs = 0 },
			wantField: "webhook.request_timeout_ms",
		},
		{
			name:      "unknown log level",
			mutate:    func(c *Config) { c.Logging.Level = "trace" },
			wantField: "logging.level",
		},
		{
			name:      "metrics enabled without addr",
			mutate:    func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" },
			wantField: "metrics.addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if len(errs) == 0 {
				t.Fatal("Validate() found no errors")
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() = %v, want error on %s", errs, tt.wantField)
			}
		})
	}
}

func TestValidateAccumulates(t *testing.T) {
	cfg := Default()
	cfg.Session.AgentBinary = ""
	cfg.Logging.Level = "silly"
	cfg.Webhook.RequestTimeoutMs = -5

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Fatalf("Validate() returned %d errors, want 3: %v", len(errs), errs)
	}

	msg := ValidationErrors(errs).Error()
	if !strings.HasPrefix(msg, "invalid configuration: ") {
		t.Errorf("aggregate message = %q", msg)
	}
}

func TestValidWebhookConfig(t *testing.T) {
	cfg := Default()
	cfg.Webhook.URL = "https://hooks.example.com/tasks"
	cfg.Webhook.Secret = "s3cret"

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want none", errs)
	}
}
