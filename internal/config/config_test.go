package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Interview.MaxDurationMinutes != 30 || cfg.Interview.IntroTarget != 2 {
		t.Errorf("interview defaults = %+v", cfg.Interview)
	}
	if cfg.Interview.IdleCooldownSeconds != 45 {
		t.Errorf("idle cooldown = %d, want 45", cfg.Interview.IdleCooldownSeconds)
	}
	if cfg.OpenAI.Model != "gpt-4o" {
		t.Errorf("model = %q", cfg.OpenAI.Model)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing OPENAI_API_KEY")
	}
}

func TestLoadRejectsInvalidScreeningRange(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("INTERVIEW_SCREENING_MIN", "6")
	t.Setenv("INTERVIEW_SCREENING_MAX", "4")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for inverted screening range")
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "9090")
	t.Setenv("INTERVIEW_SCREENING_MIN", "4")
	t.Setenv("INTERVIEW_SCREENING_MAX", "8")
	t.Setenv("RUNNER_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.Interview.ScreeningMin != 4 || cfg.Interview.ScreeningMax != 8 {
		t.Errorf("screening range = %d..%d", cfg.Interview.ScreeningMin, cfg.Interview.ScreeningMax)
	}
	if !cfg.Runner.Enabled {
		t.Error("runner not enabled")
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:3000", true},
		{"https://hire.example.com", false},
	}
	for _, tt := range tests {
		cfg := &Config{FrontendURL: tt.url}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
