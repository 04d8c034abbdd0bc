package interview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/interviewd/internal/domain"
	"github.com/ashureev/interviewd/internal/llm"
)

// terminationPhrases are scanned (case-insensitive) in generated coding-stage
// utterances. A match means the generator decided to end the interview over
// suspected dishonesty. This is a blunt signal coupled to the generator's
// wording; see DESIGN.md.
var terminationPhrases = []string{
	"ending the interview",
	"end the interview",
	"terminate",
	"concerns about authenticity",
	"not your own work",
}

func containsTerminationPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range terminationPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func (c *Controller) handleCoding(ctx context.Context, s *domain.Session, ev Event, now time.Time) (string, bool, error) {
	codeCtx := &llm.CodeContext{
		Code:        s.CodeText,
		Language:    s.CodeLanguage,
		IdleSeconds: ev.IdleSeconds,
		NudgeCount:  s.IdleNudgeCount,
	}

	switch ev.Type {
	case EventIdle:
		return c.handleCodingIdle(ctx, s, ev, codeCtx, now)

	case EventMessage:
		resp, err := c.gen.Generate(ctx, llm.GenerateRequest{
			Stage:     domain.StageCoding,
			History:   history(s),
			Candidate: s.Candidate,
			Job:       s.Job,
			Task:      s.Task,
			Code:      codeCtx,
		})
		if err != nil {
			return "", false, fmt.Errorf("generate coding response: %w", err)
		}
		return resp, true, nil

	default:
		// Code updates and anything else do not warrant a response.
		return "", false, nil
	}
}

func (c *Controller) handleCodingIdle(ctx context.Context, s *domain.Session, ev Event, codeCtx *llm.CodeContext, now time.Time) (string, bool, error) {
	cooldown := time.Duration(s.IdleCooldownSeconds) * time.Second
	if s.LastIdleNudgeAt != nil {
		if since := now.Sub(*s.LastIdleNudgeAt); since < cooldown {
			slog.Info("idle nudge suppressed by cooldown",
				"session_id", s.SessionID,
				"since_last", since.Round(time.Second),
				"cooldown", cooldown)
			return "", false, nil
		}
	}

	codeLen := s.CodeLength()
	var note string
	if codeLen < c.cfg.IdleCodeCharThreshold {
		note = fmt.Sprintf("[SYSTEM: Candidate has been idle for %ds with almost NO CODE written (%d chars). This is nudge #%d. Be increasingly concerned about potential cheating or lack of effort.]",
			ev.IdleSeconds, codeLen, s.IdleNudgeCount+1)
	} else {
		note = fmt.Sprintf("[SYSTEM: Candidate idle for %ds. They have %d chars of code. Nudge #%d. Check their code and offer help if stuck.]",
			ev.IdleSeconds, codeLen, s.IdleNudgeCount+1)
	}

	hist := append(history(s), domain.Message{
		Speaker: domain.SpeakerSystem,
		Text:    note,
		Ts:      now,
	})
	s.Append(domain.SpeakerSystem, note, now)

	slog.Info("idle nudge", "session_id", s.SessionID,
		"nudge", s.IdleNudgeCount+1,
		"idle_seconds", ev.IdleSeconds,
		"code_chars", codeLen)

	resp, err := c.gen.Generate(ctx, llm.GenerateRequest{
		Stage:     domain.StageCoding,
		History:   hist,
		Candidate: s.Candidate,
		Job:       s.Job,
		Task:      s.Task,
		Code:      codeCtx,
	})
	if err != nil {
		return "", false, fmt.Errorf("generate idle nudge: %w", err)
	}

	s.IdleNudgeCount++
	nudgedAt := now
	s.LastIdleNudgeAt = &nudgedAt

	if containsTerminationPhrase(resp) {
		slog.Warn("generator suspects cheating, terminating",
			"session_id", s.SessionID)
		s.Stage = domain.StageTerminated
		s.EndedEarly = true
		s.Ended = true
	}

	return resp, true, nil
}
