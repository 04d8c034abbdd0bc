// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	Interview InterviewConfig
	OpenAI    OpenAIConfig
	Speech    SpeechConfig
	Runner    RunnerConfig
}

// InterviewConfig holds the session policy knobs.
type InterviewConfig struct {
	MaxDurationMinutes  int
	IntroTarget         int
	ScreeningMin        int
	ScreeningMax        int
	PoorAnswerThreshold int
	IdleCooldownSeconds int
	CodeLanguage        string
}

// OpenAIConfig configures the response generator and answer evaluator.
type OpenAIConfig struct {
	APIKey string
	Model  string
}

// SpeechConfig configures ElevenLabs speech. An empty API key disables
// voice turns entirely.
type SpeechConfig struct {
	APIKey  string
	VoiceID string
}

// RunnerConfig configures sandboxed code execution.
type RunnerConfig struct {
	Enabled bool
	Image   string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/interviews.db"),
		Interview: InterviewConfig{
			MaxDurationMinutes:  getEnvInt("INTERVIEW_MAX_DURATION_MINUTES", 30),
			IntroTarget:         getEnvInt("INTERVIEW_INTRO_TARGET", 2),
			ScreeningMin:        getEnvInt("INTERVIEW_SCREENING_MIN", 5),
			ScreeningMax:        getEnvInt("INTERVIEW_SCREENING_MAX", 5),
			PoorAnswerThreshold: getEnvInt("INTERVIEW_POOR_ANSWER_THRESHOLD", 3),
			IdleCooldownSeconds: getEnvInt("INTERVIEW_IDLE_COOLDOWN_SECONDS", 45),
			CodeLanguage:        getEnv("INTERVIEW_CODE_LANGUAGE", "python"),
		},
		OpenAI: OpenAIConfig{
			APIKey: getEnv("OPENAI_API_KEY", ""),
			Model:  getEnv("OPENAI_MODEL", "gpt-4o"),
		},
		Speech: SpeechConfig{
			APIKey:  getEnv("ELEVENLABS_API_KEY", ""),
			VoiceID: getEnv("ELEVENLABS_VOICE_ID", ""),
		},
		Runner: RunnerConfig{
			Enabled: getEnvBool("RUNNER_ENABLED", false),
			Image:   getEnv("RUNNER_IMAGE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY cannot be empty")
	}
	if c.Interview.MaxDurationMinutes <= 0 {
		return fmt.Errorf("INTERVIEW_MAX_DURATION_MINUTES must be > 0")
	}
	if c.Interview.IntroTarget <= 0 {
		return fmt.Errorf("INTERVIEW_INTRO_TARGET must be > 0")
	}
	if c.Interview.ScreeningMin <= 0 || c.Interview.ScreeningMax < c.Interview.ScreeningMin {
		return fmt.Errorf("INTERVIEW_SCREENING_MIN/MAX must form a valid range")
	}
	if c.Interview.PoorAnswerThreshold <= 0 {
		return fmt.Errorf("INTERVIEW_POOR_ANSWER_THRESHOLD must be > 0")
	}
	if c.Interview.IdleCooldownSeconds <= 0 {
		return fmt.Errorf("INTERVIEW_IDLE_COOLDOWN_SECONDS must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
