package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError describes a single invalid configuration value.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error returns the formatted validation error.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors aggregates all validation failures found in one pass so
// the user can fix them together.
type ValidationErrors []ValidationError

// Error returns all validation errors joined into a single message.
func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// validLogLevels are the accepted logging.level values.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration and returns all problems found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.Session.AgentBinary == "" {
		errs = append(errs, ValidationError{
			Field:   "session.agent_binary",
			Value:   c.Session.AgentBinary,
			Message: "must not be empty",
		})
	}
	if c.Session.TmuxHistoryLimit < 0 {
		errs = append(errs, ValidationError{
			Field:   "session.tmux_history_limit",
			Value:   c.Session.TmuxHistoryLimit,
			Message: "must not be negative",
		})
	}
	if c.Session.GracefulStopTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "session.graceful_stop_timeout_ms",
			Value:   c.Session.GracefulStopTimeoutMs,
			Message: "must not be negative",
		})
	}

	if c.Webhook.URL != "" {
		if u, err := url.Parse(c.Webhook.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, ValidationError{
				Field:   "webhook.url",
				Value:   c.Webhook.URL,
				Message: "must be an http or https URL",
			})
		}
		if c.Webhook.Secret == "" {
			errs = append(errs, ValidationError{
				Field:   "webhook.secret",
				Value:   "",
				Message: "required when webhook.url is set",
			})
		}
	}
	if c.Webhook.RequestTimeoutMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "webhook.request_timeout_ms",
			Value:   c.Webhook.RequestTimeoutMs,
			Message: "must be positive",
		})
	}
	if c.Webhook.RetrySweepIntervalMinutes <= 0 {
		errs = append(errs, ValidationError{
			Field:   "webhook.retry_sweep_interval_minutes",
			Value:   c.Webhook.RetrySweepIntervalMinutes,
			Message: "must be positive",
		})
	}

	if !validLogLevels[c.Logging.Level] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: "must be one of debug, info, warn, error",
		})
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, ValidationError{
			Field:   "metrics.addr",
			Value:   "",
			Message: "required when metrics.enabled is true",
		})
	}

	return errs
}
