package domain

import (
	"testing"
	"time"
)

func TestParseStage(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"INTRO", "SCREENING", "TASK", "CODING", "TERMINATED", "WRAPUP"} {
		if _, err := ParseStage(s); err != nil {
			t.Errorf("ParseStage(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseStage("DONE"); err == nil {
		t.Error("ParseStage accepted unknown stage")
	}
}

func TestStageTerminal(t *testing.T) {
	t.Parallel()

	if !StageTerminated.Terminal() || !StageWrapup.Terminal() {
		t.Error("terminal stages not recognized")
	}
	if StageCoding.Terminal() {
		t.Error("CODING reported terminal")
	}
}

func TestTimedOut(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{MaxDurationMinutes: 30}

	if s.TimedOut(now) {
		t.Error("session without StartedAt reported timed out")
	}

	started := now.Add(-30 * time.Minute)
	s.StartedAt = &started
	if s.TimedOut(now) {
		t.Error("session at exactly the limit reported timed out")
	}
	if !s.TimedOut(now.Add(time.Second)) {
		t.Error("session past the limit not reported timed out")
	}
}

func TestCodeLengthTrimsWhitespace(t *testing.T) {
	t.Parallel()

	s := &Session{CodeText: "   \n\t  "}
	if got := s.CodeLength(); got != 0 {
		t.Errorf("CodeLength = %d, want 0 for whitespace-only code", got)
	}
	s.CodeText = "  print(1)  "
	if got := s.CodeLength(); got != len("print(1)") {
		t.Errorf("CodeLength = %d, want %d", got, len("print(1)"))
	}
}

func TestTailAndLastInterviewerMessage(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := &Session{}
	s.Append(SpeakerInterviewer, "first", now)
	s.Append(SpeakerCandidate, "answer", now)
	s.Append(SpeakerInterviewer, "second", now)

	if got := s.LastInterviewerMessage(); got != "second" {
		t.Errorf("LastInterviewerMessage = %q, want second", got)
	}
	if tail := s.Tail(2); len(tail) != 2 || tail[0].Text != "answer" {
		t.Errorf("Tail(2) = %+v", tail)
	}
	if tail := s.Tail(10); len(tail) != 3 {
		t.Errorf("Tail(10) length = %d, want 3", len(tail))
	}
}
