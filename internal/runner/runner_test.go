package runner

import (
	"context"
	"errors"
	"testing"
)

func TestRunRejectsUnsupportedLanguage(t *testing.T) {
	t.Parallel()

	r, err := NewDockerRunner("")
	if err != nil {
		t.Fatalf("NewDockerRunner failed: %v", err)
	}

	for _, lang := range []string{"javascript", "go", ""} {
		_, err := r.Run(context.Background(), lang, "code")
		if !errors.Is(err, ErrUnsupportedLanguage) {
			t.Errorf("Run(%q) error = %v, want ErrUnsupportedLanguage", lang, err)
		}
	}
}
