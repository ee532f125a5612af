package profile

import (
	"log/slog"
	"net/url"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Home Assistant connection
	HomeAssistantURL   string // Base URL, e.g. http://homeassistant.local:8123
	HomeAssistantToken string // Long-lived access token

	// LLM server configuration (OpenAI-compatible chat completions protocol).
	// LLMBaseURL is the default server for all agents; the per-agent URLs
	// override it so each pipeline stage can target a different model.
	LLMBaseURL   string
	LLMAPIKey    string
	LLMModel     string
	PlannerURL   string
	SelectorURL  string
	SummariseURL string

	LLMTemperature float32 // default: 0.1
	LLMMaxTokens   int     // default: 500
	LLMTimeout     int     // Request timeout in seconds (default: 30)

	// Memory store
	MemoryDSN string // SQLite file path for the persistent memory store

	Mode    string // dev, prod
	Addr    string
	Port    int
	Version string
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables. Values already set
// (e.g. from flags) win over the environment.
func (p *Profile) FromEnv() {
	if p.HomeAssistantURL == "" {
		p.HomeAssistantURL = getEnvOrDefault("HAUSWART_HASS_URL", "http://localhost:8123")
	}
	if p.HomeAssistantToken == "" {
		p.HomeAssistantToken = getEnvOrDefault("HAUSWART_HASS_TOKEN", "")
	}

	if p.LLMBaseURL == "" {
		p.LLMBaseURL = getEnvOrDefault("HAUSWART_LLM_BASE_URL", "http://localhost:8080/v1")
	}
	if p.LLMAPIKey == "" {
		p.LLMAPIKey = getEnvOrDefault("HAUSWART_LLM_API_KEY", "")
	}
	if p.LLMModel == "" {
		p.LLMModel = getEnvOrDefault("HAUSWART_LLM_MODEL", "llama.cpp")
	}

	// Per-agent endpoint overrides. Empty means: use LLMBaseURL.
	p.PlannerURL = getEnvOrDefault("HAUSWART_PLANNER_URL", p.PlannerURL)
	p.SelectorURL = getEnvOrDefault("HAUSWART_SELECTOR_URL", p.SelectorURL)
	p.SummariseURL = getEnvOrDefault("HAUSWART_SUMMARISER_URL", p.SummariseURL)

	if p.LLMTemperature == 0 {
		p.LLMTemperature = 0.1
	}
	if p.LLMMaxTokens == 0 {
		p.LLMMaxTokens = getEnvOrDefaultInt("HAUSWART_LLM_MAX_TOKENS", 500)
	}
	if p.LLMTimeout == 0 {
		p.LLMTimeout = getEnvOrDefaultInt("HAUSWART_LLM_TIMEOUT_SECONDS", 30)
	}

	if p.MemoryDSN == "" {
		p.MemoryDSN = getEnvOrDefault("HAUSWART_MEMORY_DSN", "hauswart_memory.db")
	}
}

// PlannerBaseURL returns the LLM endpoint the Planner should use.
func (p *Profile) PlannerBaseURL() string {
	if p.PlannerURL != "" {
		return p.PlannerURL
	}
	return p.LLMBaseURL
}

// SelectorBaseURL returns the LLM endpoint the Selector should use.
func (p *Profile) SelectorBaseURL() string {
	if p.SelectorURL != "" {
		return p.SelectorURL
	}
	return p.LLMBaseURL
}

// SummariserBaseURL returns the LLM endpoint the Summariser should use.
func (p *Profile) SummariserBaseURL() string {
	if p.SummariseURL != "" {
		return p.SummariseURL
	}
	return p.LLMBaseURL
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// Validate checks the profile for obviously broken configuration before the
// server starts. Missing HA credentials are an error; a missing LLM API key
// is not, since local llama.cpp servers run unauthenticated.
func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.HomeAssistantToken == "" {
		slog.Warn("no Home Assistant token configured, service calls will be unauthenticated")
	}

	for name, raw := range map[string]string{
		"hass-url":       p.HomeAssistantURL,
		"llm-base-url":   p.LLMBaseURL,
		"planner-url":    p.PlannerURL,
		"selector-url":   p.SelectorURL,
		"summariser-url": p.SummariseURL,
	} {
		if raw == "" {
			continue
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			return errors.Wrapf(err, "invalid %s", name)
		}
	}

	if p.Port <= 0 || p.Port > 65535 {
		return errors.Errorf("invalid port: %d", p.Port)
	}
	return nil
}
