package interview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/interviewd/internal/domain"
	"github.com/ashureev/interviewd/internal/llm"
)

func (c *Controller) handleScreening(ctx context.Context, s *domain.Session, ev Event) (string, bool, error) {
	// Already past the poor-answer threshold on entry: skip question
	// generation entirely and close the session out.
	if s.PoorAnswerCount >= s.PoorAnswerThreshold {
		slog.Warn("early termination on screening entry",
			"session_id", s.SessionID, "poor_answers", s.PoorAnswerCount)
		return c.failScreening(ctx, s)
	}

	resp, err := c.gen.Generate(ctx, llm.GenerateRequest{
		Stage:     domain.StageScreening,
		History:   history(s),
		Candidate: s.Candidate,
		Job:       s.Job,
		Screening: &llm.ScreeningProgress{
			Asked:       s.ScreeningCount,
			Target:      s.ScreeningTarget,
			PoorAnswers: s.PoorAnswerCount,
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("generate screening response: %w", err)
	}

	if ev.Type == EventMessage && strings.TrimSpace(ev.Text) != "" {
		s.ScreeningCount++
		slog.Info("screening answer", "session_id", s.SessionID,
			"count", s.ScreeningCount, "target", s.ScreeningTarget)

		// Rate the answer against the question that prompted it. Evaluation
		// is a soft signal: any failure skips the increment and the turn
		// continues.
		if question := s.LastInterviewerMessage(); question != "" {
			judgment, evalErr := c.eval.Evaluate(ctx, question, ev.Text, s.Job.ExperienceLevel)
			if evalErr != nil {
				slog.Warn("answer evaluation failed, skipping",
					"session_id", s.SessionID, "error", evalErr)
			} else if judgment == llm.JudgmentPoor {
				s.PoorAnswerCount++
				slog.Warn("poor answer detected", "session_id", s.SessionID,
					"poor_answers", s.PoorAnswerCount,
					"threshold", s.PoorAnswerThreshold)
			}
		}
	}

	switch {
	case s.PoorAnswerCount >= s.PoorAnswerThreshold:
		// Fail: the screening utterance already generated is discarded and
		// replaced with a termination message.
		slog.Warn("too many poor answers, terminating", "session_id", s.SessionID)
		return c.failScreening(ctx, s)
	case s.ScreeningCount >= s.ScreeningTarget:
		// Pass: introduce the task, unlock the editor, and move straight to
		// CODING. These are the TASK stage's side effects applied inline.
		slog.Info("screening passed", "session_id", s.SessionID)
		resp, err = c.gen.Generate(ctx, llm.GenerateRequest{
			Stage:     domain.StageTask,
			History:   history(s),
			Candidate: s.Candidate,
			Job:       s.Job,
			Task:      s.Task,
		})
		if err != nil {
			return "", false, fmt.Errorf("generate task introduction: %w", err)
		}
		s.TaskUnlocked = true
		s.CanEditCode = true
		s.Stage = domain.StageCoding
	}

	return resp, true, nil
}

// failScreening terminates the session for poor performance and generates
// the termination utterance.
func (c *Controller) failScreening(ctx context.Context, s *domain.Session) (string, bool, error) {
	s.Stage = domain.StageTerminated
	s.EndedEarly = true
	s.Ended = true

	resp, err := c.gen.Generate(ctx, llm.GenerateRequest{
		Stage:     domain.StageTerminated,
		History:   history(s),
		Candidate: s.Candidate,
		Job:       s.Job,
	})
	if err != nil {
		return "", false, fmt.Errorf("generate termination response: %w", err)
	}
	return resp, true, nil
}
