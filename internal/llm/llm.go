// Package llm defines the response-generation and answer-evaluation ports
// used by the interview controller, plus the OpenAI-backed implementation.
package llm

import (
	"context"

	"github.com/ashureev/interviewd/internal/domain"
)

// Judgment is a coarse quality rating of a candidate answer.
type Judgment string

const (
	JudgmentPoor Judgment = "POOR"
	JudgmentOkay Judgment = "OKAY"
	JudgmentGood Judgment = "GOOD"
)

// ScreeningProgress is forwarded to the generator during SCREENING.
type ScreeningProgress struct {
	Asked       int
	Target      int
	PoorAnswers int
}

// CodeContext is the live editor snapshot forwarded during CODING.
type CodeContext struct {
	Code        string
	Language    string
	IdleSeconds int
	NudgeCount  int
}

// GenerateRequest bundles everything the generator may need for one utterance.
// History carries the conversation including any synthetic system notes
// appended for the current turn only.
type GenerateRequest struct {
	Stage     domain.Stage
	History   []domain.Message
	Candidate domain.CandidateContext
	Job       domain.JobContext
	Task      domain.TaskContext
	Screening *ScreeningProgress
	Code      *CodeContext
}

// Generator produces interviewer utterances for a stage and context bundle.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Evaluator rates a question/answer pair against an expected seniority level.
// Evaluation failures are a soft signal: callers must tolerate errors.
type Evaluator interface {
	Evaluate(ctx context.Context, question, answer, expectedLevel string) (Judgment, error)
}
