package config

import (
	"fmt"
	"strings"
	"time"
)

// ProviderConfig represents configuration for a single listing provider
type ProviderConfig struct {
	Enabled       bool   `yaml:"enabled"`         // Provider enabled flag
	BaseURL       string `yaml:"base_url"`        // Base URL for API calls
	APIKey        string `yaml:"api_key"`         // Usually injected from the environment
	MaxPages      int    `yaml:"max_pages"`       // Upper bound on listing pages per cycle
	PerPage       int    `yaml:"per_page"`        // Listing page size
	PageDelayMS   int    `yaml:"page_delay_ms"`   // Throttle between pages
	PublicDelayMS int    `yaml:"public_delay_ms"` // Throttle after falling back to keyless access
	BreakerFails  int    `yaml:"breaker_fails"`   // Consecutive failures that open the breaker
}

// HTTPConfig represents the shared transport settings
type HTTPConfig struct {
	MaxConcurrency int    `yaml:"max_concurrency"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	BackoffBaseMS  int    `yaml:"backoff_base_ms"`
	BackoffMaxMS   int    `yaml:"backoff_max_ms"`
	UserAgent      string `yaml:"user_agent"`
}

// PageDelay returns the per-page throttle interval
func (p ProviderConfig) PageDelay() time.Duration {
	return time.Duration(p.PageDelayMS) * time.Millisecond
}

// PublicDelay returns the throttle used after a keyless fallback
func (p ProviderConfig) PublicDelay() time.Duration {
	if p.PublicDelayMS <= 0 {
		return p.PageDelay()
	}
	return time.Duration(p.PublicDelayMS) * time.Millisecond
}

// HasKey reports whether a usable API key is configured. Placeholder values
// left over from setup templates count as missing.
func (p ProviderConfig) HasKey() bool {
	return usableKey(p.APIKey)
}

// Validate ensures a provider configuration is valid
func (p *ProviderConfig) Validate(name string) error {
	if !p.Enabled {
		return nil
	}
	if p.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}
	if p.MaxPages <= 0 {
		return fmt.Errorf("max_pages must be positive, got %d", p.MaxPages)
	}
	if p.PerPage <= 0 {
		return fmt.Errorf("per_page must be positive, got %d", p.PerPage)
	}
	if p.PageDelayMS < 0 || p.PublicDelayMS < 0 {
		return fmt.Errorf("page delays cannot be negative")
	}
	if p.BreakerFails < 0 {
		return fmt.Errorf("breaker_fails cannot be negative, got %d", p.BreakerFails)
	}
	return nil
}

// Timeout returns the per-request timeout
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// BackoffBase returns the first retry delay
func (h HTTPConfig) BackoffBase() time.Duration {
	return time.Duration(h.BackoffBaseMS) * time.Millisecond
}

// BackoffMax returns the retry delay ceiling
func (h HTTPConfig) BackoffMax() time.Duration {
	return time.Duration(h.BackoffMaxMS) * time.Millisecond
}

// Validate ensures transport settings are usable
func (h *HTTPConfig) Validate() error {
	if h.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be positive, got %d", h.MaxConcurrency)
	}
	if h.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", h.TimeoutSeconds)
	}
	if h.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", h.MaxRetries)
	}
	if h.BackoffMaxMS < h.BackoffBaseMS {
		return fmt.Errorf("backoff_max_ms (%d) must be >= backoff_base_ms (%d)", h.BackoffMaxMS, h.BackoffBaseMS)
	}
	if h.UserAgent == "" {
		return fmt.Errorf("user_agent cannot be empty")
	}
	return nil
}

func usableKey(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	upper := strings.ToUpper(key)
	return !strings.Contains(upper, "CONFIG_") && !strings.HasPrefix(upper, "YOUR_")
}
