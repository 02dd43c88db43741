package config

import (
	"time"

	"mediq/pkg/config"
	"mediq/pkg/email"
	"mediq/pkg/llm"
)

// Config stores environment configuration for MedIQ.
type Config struct {
	Port     string
	LogLevel string

	LLM        llm.Config
	LLMTimeout time.Duration

	MaxFractalDepth     int
	ConfidenceThreshold float64

	VitalsBufferSize int
	AlertCooldown    time.Duration

	// Empty means the twin runs on the in-memory store only.
	BaselineDatabaseURL string

	SMSGatewayURL  string
	PushGatewayURL string

	SMTP           email.Config
	EmergencyEmail string
}

// Load reads the MedIQ configuration from environment variables.
func Load() Config {
	return Config{
		Port:     config.GetEnv("PORT", "18090"),
		LogLevel: config.GetEnv("LOG_LEVEL", "info"),

		LLM: llm.Config{
			Provider:  config.GetEnv("LLM_PROVIDER", "anthropic"),
			Model:     config.GetEnv("LLM_MODEL", ""),
			APIKey:    config.GetEnv("LLM_API_KEY", ""),
			APIURL:    config.GetEnv("LLM_API_URL", config.GetEnv("OLLAMA_URL", "")),
			MaxTokens: config.GetEnvInt("LLM_MAX_TOKENS", 1024),
		},
		LLMTimeout: config.GetEnvDuration("LLM_TIMEOUT", 10*time.Second),

		MaxFractalDepth:     config.GetEnvInt("MAX_FRACTAL_DEPTH", 3),
		ConfidenceThreshold: config.GetEnvFloat("CONFIDENCE_THRESHOLD", 0.85),

		VitalsBufferSize: config.GetEnvInt("VITALS_BUFFER_SIZE", 300),
		AlertCooldown:    config.GetEnvDuration("ALERT_COOLDOWN", 5*time.Minute),

		BaselineDatabaseURL: config.GetEnv("BASELINE_DATABASE_URL", ""),

		SMSGatewayURL:  config.GetEnv("SMS_GATEWAY_URL", ""),
		PushGatewayURL: config.GetEnv("PUSH_GATEWAY_URL", ""),

		SMTP: email.Config{
			Host:     config.GetEnv("SMTP_HOST", ""),
			Port:     config.GetEnv("SMTP_PORT", "587"),
			User:     config.GetEnv("SMTP_USER", ""),
			Password: config.GetEnv("SMTP_PASS", ""),
			From:     config.GetEnv("SMTP_FROM", ""),
			FromName: config.GetEnv("SMTP_FROM_NAME", "MedIQ Alerts"),
		},
		EmergencyEmail: config.GetEnv("EMERGENCY_EMAIL", ""),
	}
}
