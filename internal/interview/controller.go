package interview

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/ashureev/interviewd/internal/domain"
	"github.com/ashureev/interviewd/internal/llm"
)

// Config holds the tunable policy knobs of the controller.
type Config struct {
	// ScreeningMin and ScreeningMax bound the inclusive range the screening
	// question target is drawn from when a session leaves INTRO.
	ScreeningMin int
	ScreeningMax int
	// IdleCodeCharThreshold separates "almost no code" from "some code"
	// when framing an idle nudge.
	IdleCodeCharThreshold int
}

// DefaultConfig returns the default controller policy.
func DefaultConfig() Config {
	return Config{
		ScreeningMin:          5,
		ScreeningMax:          5,
		IdleCodeCharThreshold: 20,
	}
}

// Controller runs the per-event transition policy. It owns no persistence:
// the caller loads the session, feeds exactly one event, and stores the
// mutated session afterwards. Calls to the generator and evaluator are
// sequential within a turn.
type Controller struct {
	gen  llm.Generator
	eval llm.Evaluator
	cfg  Config

	// Injected for deterministic tests.
	now        func() time.Time
	drawTarget func(min, max int) int
}

// New creates a stage controller with the given collaborators.
func New(gen llm.Generator, eval llm.Evaluator, cfg Config) *Controller {
	if cfg.ScreeningMin <= 0 {
		cfg.ScreeningMin = DefaultConfig().ScreeningMin
	}
	if cfg.ScreeningMax < cfg.ScreeningMin {
		cfg.ScreeningMax = cfg.ScreeningMin
	}
	if cfg.IdleCodeCharThreshold <= 0 {
		cfg.IdleCodeCharThreshold = DefaultConfig().IdleCodeCharThreshold
	}
	return &Controller{
		gen:  gen,
		eval: eval,
		cfg:  cfg,
		now:  time.Now,
		drawTarget: func(min, max int) int {
			if max <= min {
				return min
			}
			return min + rand.IntN(max-min+1)
		},
	}
}

// HandleEvent processes one inbound event against a session, mutating it in
// place. It returns the interviewer utterance for the turn, or ok=false when
// the turn produces none. Any generator error is a hard failure of the turn
// and the session must not be persisted.
func (c *Controller) HandleEvent(ctx context.Context, s *domain.Session, ev Event) (utterance string, ok bool, err error) {
	now := c.now()

	// Timeout guard runs before any stage handler. An already terminated
	// session stays terminated.
	if s.Stage != domain.StageTerminated && s.TimedOut(now) {
		slog.Info("interview timeout reached",
			"session_id", s.SessionID,
			"max_duration_minutes", s.MaxDurationMinutes)
		s.Stage = domain.StageWrapup
		s.Ended = true
	}

	switch s.Stage {
	case domain.StageIntro:
		return c.handleIntro(ctx, s, ev, now)
	case domain.StageScreening:
		return c.handleScreening(ctx, s, ev)
	case domain.StageTask:
		return c.handleTask(ctx, s)
	case domain.StageCoding:
		return c.handleCoding(ctx, s, ev, now)
	case domain.StageTerminated:
		return c.handleClosing(ctx, s, domain.StageTerminated)
	case domain.StageWrapup:
		return c.handleClosing(ctx, s, domain.StageWrapup)
	}
	return "", false, fmt.Errorf("session %s in unknown stage %q", s.SessionID, s.Stage)
}

// history returns the conversation visible to the generator: every
// candidate and interviewer entry, with stored system notes filtered out.
func history(s *domain.Session) []domain.Message {
	out := make([]domain.Message, 0, len(s.Transcript))
	for _, m := range s.Transcript {
		if m.Speaker == domain.SpeakerSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (c *Controller) handleIntro(ctx context.Context, s *domain.Session, ev Event, now time.Time) (string, bool, error) {
	if s.StartedAt == nil {
		started := now
		s.StartedAt = &started
	}

	resp, err := c.gen.Generate(ctx, llm.GenerateRequest{
		Stage:     domain.StageIntro,
		History:   history(s),
		Candidate: s.Candidate,
		Job:       s.Job,
	})
	if err != nil {
		return "", false, fmt.Errorf("generate intro response: %w", err)
	}

	if ev.Type == EventMessage {
		s.IntroCount++
		slog.Info("intro exchange", "session_id", s.SessionID,
			"count", s.IntroCount, "target", s.IntroTarget)
	}

	if s.IntroCount >= s.IntroTarget {
		s.Stage = domain.StageScreening
		s.ScreeningTarget = c.drawTarget(c.cfg.ScreeningMin, c.cfg.ScreeningMax)
		slog.Info("moving to screening", "session_id", s.SessionID,
			"screening_target", s.ScreeningTarget)
	}

	return resp, true, nil
}

// handleTask introduces the coding task and unlocks the editor. It is only
// reached when a caller forces the TASK stage; the screening pass path
// applies the same side effects inline.
func (c *Controller) handleTask(ctx context.Context, s *domain.Session) (string, bool, error) {
	resp, err := c.gen.Generate(ctx, llm.GenerateRequest{
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
	slog.Info("task unlocked", "session_id", s.SessionID)

	return resp, true, nil
}

// handleClosing emits the closing utterance for a terminal stage. Re-entry
// only re-emits the closing line; no other side effects.
func (c *Controller) handleClosing(ctx context.Context, s *domain.Session, stage domain.Stage) (string, bool, error) {
	resp, err := c.gen.Generate(ctx, llm.GenerateRequest{
		Stage:     stage,
		History:   history(s),
		Candidate: s.Candidate,
		Job:       s.Job,
	})
	if err != nil {
		return "", false, fmt.Errorf("generate closing response: %w", err)
	}

	s.Ended = true
	return resp, true, nil
}
