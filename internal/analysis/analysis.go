// Package analysis produces a structured hiring evaluation for a finished
// interview session. It runs after the session ends and never participates
// in the turn path.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/interviewd/internal/domain"
)

// analysisCodeLimit bounds how much of the final code goes into the prompt.
const analysisCodeLimit = 3000

// Completer answers a single free-form prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ReportStore persists finished reports.
type ReportStore interface {
	SaveAnalysis(ctx context.Context, sessionID string, report []byte) error
}

// Verdict is the hiring recommendation of an analysis.
type Verdict string

const (
	VerdictStrongHire Verdict = "STRONG_HIRE"
	VerdictHire       Verdict = "HIRE"
	VerdictMaybe      Verdict = "MAYBE"
	VerdictNoHire     Verdict = "NO_HIRE"
)

// Moment is one notable point of the interview.
type Moment struct {
	Time        string `json:"time"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// Report is the persisted evaluation of one interview session.
type Report struct {
	SessionID          string   `json:"session_id"`
	CandidateName      string   `json:"candidate_name"`
	Position           string   `json:"position"`
	DurationMinutes    int      `json:"duration"`
	TechnicalScore     int      `json:"technical_score"`
	CommunicationScore int      `json:"communication_score"`
	OverallScore       int      `json:"overall_score"`
	Verdict            Verdict  `json:"verdict"`
	KeyStrengths       []string `json:"key_strengths"`
	KeyInsights        string   `json:"key_insights"`
	NotableMoments     []Moment `json:"notable_moments"`
	AnalyzedAt         string   `json:"analyzed_at"`
}

// Service analyzes finished sessions and stores the report.
type Service struct {
	completer Completer
	repo      ReportStore

	// Injected for deterministic tests.
	now func() time.Time
}

// NewService creates an analysis service.
func NewService(completer Completer, repo ReportStore) *Service {
	return &Service{completer: completer, repo: repo, now: time.Now}
}

// Launch runs the analysis in the background. Failures are logged and a
// fallback report is stored; the caller's turn is never affected.
func (s *Service) Launch(sess *domain.Session) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if err := s.Analyze(ctx, sess); err != nil {
			slog.Error("Interview analysis failed", "error", err, "session_id", sess.SessionID)
		}
	}()
}

// Analyze evaluates a finished session and persists the report.
func (s *Service) Analyze(ctx context.Context, sess *domain.Session) error {
	report := s.evaluate(ctx, sess)

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal analysis report: %w", err)
	}
	if err := s.repo.SaveAnalysis(ctx, sess.SessionID, data); err != nil {
		return fmt.Errorf("save analysis report: %w", err)
	}

	slog.Info("Interview analysis completed",
		"session_id", sess.SessionID,
		"verdict", report.Verdict,
		"overall_score", report.OverallScore)
	return nil
}

// evaluate asks the model for a report, falling back to a conservative
// default when the model or parsing fails.
func (s *Service) evaluate(ctx context.Context, sess *domain.Session) *Report {
	duration := s.durationMinutes(sess)

	raw, err := s.completer.Complete(ctx, buildPrompt(sess, duration))
	if err != nil {
		slog.Error("Analysis completion failed", "error", err, "session_id", sess.SessionID)
		return s.fallbackReport(sess, duration)
	}

	report, err := parseReport(raw)
	if err != nil {
		slog.Error("Analysis response unparseable", "error", err, "session_id", sess.SessionID)
		return s.fallbackReport(sess, duration)
	}

	report.SessionID = sess.SessionID
	report.CandidateName = sess.Candidate.Name
	report.Position = sess.Job.Title
	report.DurationMinutes = duration
	report.AnalyzedAt = s.now().UTC().Format(time.RFC3339)
	return report
}

func (s *Service) durationMinutes(sess *domain.Session) int {
	if sess.StartedAt == nil {
		return 0
	}
	return int(s.now().Sub(*sess.StartedAt).Minutes())
}

func buildPrompt(sess *domain.Session, durationMinutes int) string {
	var b strings.Builder
	b.WriteString("You are an expert technical interview analyst. Analyze this completed interview and provide a structured evaluation.\n\n")
	fmt.Fprintf(&b, "=== INTERVIEW DETAILS ===\nCandidate: %s\nPosition: %s\nDuration: %d minutes\n",
		sess.Candidate.Name, sess.Job.Title, durationMinutes)
	if sess.EndedEarly {
		b.WriteString("NOTE: This interview was terminated early (candidate did not pass screening).\n")
	}

	b.WriteString("\n=== CONVERSATION TRANSCRIPT ===\n")
	for _, m := range sess.Transcript {
		if m.Speaker == domain.SpeakerSystem {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(string(m.Speaker)), m.Text)
	}

	b.WriteString("\n=== CANDIDATE'S CODE ===\n")
	code := strings.TrimSpace(sess.CodeText)
	if code == "" {
		b.WriteString("No code was submitted (candidate did not reach or complete coding phase).\n")
	} else {
		if len(code) > analysisCodeLimit {
			code = code[:analysisCodeLimit]
		}
		fmt.Fprintf(&b, "Language: %s\nTask: %s\nTask Description: %s\n\n```%s\n%s\n```\n",
			sess.CodeLanguage, sess.Task.Title, sess.Task.Description, sess.CodeLanguage, code)
	}

	b.WriteString(`
=== YOUR TASK ===
Analyze this interview and return a JSON object with these exact fields:

{
  "technical_score": <number 0-100>,
  "communication_score": <number 0-100>,
  "overall_score": <number 0-100>,
  "verdict": "<STRONG_HIRE|HIRE|MAYBE|NO_HIRE>",
  "key_strengths": ["strength 1", "strength 2", "strength 3"],
  "key_insights": "<2-3 sentence summary of the candidate>",
  "notable_moments": [
    {"time": "MM:SS", "description": "what happened", "type": "positive|negative"}
  ]
}

Scoring: technical_score from demonstrated knowledge and code quality,
communication_score from clarity and thought process, overall_score
weighted 60/40 technical/communication. Verdicts: STRONG_HIRE 85-100,
HIRE 70-84, MAYBE 50-69, NO_HIRE 0-49. If the interview was terminated
early, factor that into the verdict. Return ONLY valid JSON, no other text.`)

	return b.String()
}

// parseReport extracts the JSON report from the model response, tolerating
// markdown code fences around it.
func parseReport(raw string) (*Report, error) {
	text := strings.TrimSpace(raw)
	if idx := strings.Index(text, "```json"); idx != -1 {
		text = text[idx+len("```json"):]
		if end := strings.Index(text, "```"); end != -1 {
			text = text[:end]
		}
	} else if idx := strings.Index(text, "```"); idx != -1 {
		text = text[idx+3:]
		if end := strings.Index(text, "```"); end != -1 {
			text = text[:end]
		}
	}

	var report Report
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &report); err != nil {
		return nil, fmt.Errorf("decode analysis json: %w", err)
	}

	report.TechnicalScore = clampScore(report.TechnicalScore)
	report.CommunicationScore = clampScore(report.CommunicationScore)
	report.OverallScore = clampScore(report.OverallScore)
	switch report.Verdict {
	case VerdictStrongHire, VerdictHire, VerdictMaybe, VerdictNoHire:
	default:
		report.Verdict = VerdictMaybe
	}
	if len(report.KeyStrengths) > 3 {
		report.KeyStrengths = report.KeyStrengths[:3]
	}
	if len(report.NotableMoments) > 5 {
		report.NotableMoments = report.NotableMoments[:5]
	}
	return &report, nil
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// fallbackReport is stored when the model cannot be consulted. Early
// terminations score against the candidate; anything else defers to
// manual review.
func (s *Service) fallbackReport(sess *domain.Session, durationMinutes int) *Report {
	report := &Report{
		SessionID:       sess.SessionID,
		CandidateName:   sess.Candidate.Name,
		Position:        sess.Job.Title,
		DurationMinutes: durationMinutes,
		AnalyzedAt:      s.now().UTC().Format(time.RFC3339),
	}
	if sess.EndedEarly {
		report.TechnicalScore = 30
		report.CommunicationScore = 40
		report.OverallScore = 34
		report.Verdict = VerdictNoHire
		report.KeyStrengths = []string{"Interview terminated early", "Insufficient data", "N/A"}
		report.KeyInsights = "Interview was terminated early. Candidate did not demonstrate sufficient technical knowledge during the screening phase."
		return report
	}
	report.TechnicalScore = 50
	report.CommunicationScore = 50
	report.OverallScore = 50
	report.Verdict = VerdictMaybe
	report.KeyStrengths = []string{"Analysis unavailable", "Analysis unavailable", "Analysis unavailable"}
	report.KeyInsights = "Automated analysis could not be completed. Manual review recommended."
	return report
}
