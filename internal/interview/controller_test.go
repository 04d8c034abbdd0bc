package interview

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/interviewd/internal/domain"
	"github.com/ashureev/interviewd/internal/llm"
)

// fakeGenerator returns a canned response per stage and records every request.
type fakeGenerator struct {
	responses map[domain.Stage]string
	calls     []llm.GenerateRequest
	err       error
}

func (g *fakeGenerator) Generate(_ context.Context, req llm.GenerateRequest) (string, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return "", g.err
	}
	if resp, ok := g.responses[req.Stage]; ok {
		return resp, nil
	}
	return "response for " + string(req.Stage), nil
}

func (g *fakeGenerator) lastCall() llm.GenerateRequest {
	return g.calls[len(g.calls)-1]
}

// fakeEvaluator returns a fixed judgment or error.
type fakeEvaluator struct {
	judgment  llm.Judgment
	err       error
	questions []string
}

func (e *fakeEvaluator) Evaluate(_ context.Context, question, _, _ string) (llm.Judgment, error) {
	e.questions = append(e.questions, question)
	if e.err != nil {
		return "", e.err
	}
	return e.judgment, nil
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestController(gen *fakeGenerator, eval *fakeEvaluator) *Controller {
	c := New(gen, eval, Config{ScreeningMin: 5, ScreeningMax: 7})
	c.now = func() time.Time { return testNow }
	c.drawTarget = func(min, _ int) int { return min }
	return c
}

func newTestSession() *domain.Session {
	return &domain.Session{
		SessionID:           "sess-1",
		Stage:               domain.StageIntro,
		MaxDurationMinutes:  30,
		IntroTarget:         2,
		ScreeningTarget:     5,
		PoorAnswerThreshold: 3,
		IdleCooldownSeconds: 45,
		CodeLanguage:        "python",
		Job:                 domain.JobContext{Title: "Backend Engineer", ExperienceLevel: "mid"},
	}
}

// feedMessage mimics the adapter: append the candidate message, run the
// controller, append the returned utterance.
func feedMessage(t *testing.T, c *Controller, s *domain.Session, text string) (string, bool) {
	t.Helper()
	s.Append(domain.SpeakerCandidate, text, c.now())
	resp, ok, err := c.HandleEvent(context.Background(), s, Event{Type: EventMessage, Text: text})
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if ok {
		s.Append(domain.SpeakerInterviewer, resp, c.now())
	}
	return resp, ok
}

func TestStartDoesNotCountIntroExchange(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	c := newTestController(gen, &fakeEvaluator{})
	s := newTestSession()

	_, ok, err := c.HandleEvent(context.Background(), s, Event{Type: EventStart})
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if !ok {
		t.Fatal("expected an intro utterance")
	}
	if s.IntroCount != 0 {
		t.Errorf("start event must not count as intro exchange, got %d", s.IntroCount)
	}
	if s.StartedAt == nil || !s.StartedAt.Equal(testNow) {
		t.Errorf("expected StartedAt=%v, got %v", testNow, s.StartedAt)
	}
}

func TestStartIsIdempotentForStartedAt(t *testing.T) {
	t.Parallel()

	c := newTestController(&fakeGenerator{}, &fakeEvaluator{})
	s := newTestSession()

	if _, _, err := c.HandleEvent(context.Background(), s, Event{Type: EventStart}); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	first := *s.StartedAt

	c.now = func() time.Time { return testNow.Add(5 * time.Minute) }
	if _, _, err := c.HandleEvent(context.Background(), s, Event{Type: EventStart}); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if !s.StartedAt.Equal(first) {
		t.Errorf("StartedAt was reset: %v != %v", s.StartedAt, first)
	}
	if s.IntroCount != 0 {
		t.Errorf("redelivered start duplicated intro counting: %d", s.IntroCount)
	}
}

func TestIntroAdvancesToScreening(t *testing.T) {
	t.Parallel()

	c := newTestController(&fakeGenerator{}, &fakeEvaluator{})
	s := newTestSession()

	feedMessage(t, c, s, "hi, I'm Ana")
	if s.IntroCount != 1 {
		t.Fatalf("expected introCount=1, got %d", s.IntroCount)
	}
	if s.Stage != domain.StageIntro {
		t.Fatalf("moved out of INTRO too early: %s", s.Stage)
	}

	feedMessage(t, c, s, "doing great, thanks")
	if s.IntroCount != 2 {
		t.Fatalf("expected introCount=2, got %d", s.IntroCount)
	}
	if s.Stage != domain.StageScreening {
		t.Fatalf("expected SCREENING after second exchange, got %s", s.Stage)
	}
	if s.ScreeningTarget < 5 || s.ScreeningTarget > 7 {
		t.Errorf("screening target %d outside configured range [5,7]", s.ScreeningTarget)
	}
}

func TestTimeoutGuardForcesWrapup(t *testing.T) {
	t.Parallel()

	for _, stage := range []domain.Stage{domain.StageIntro, domain.StageScreening, domain.StageCoding} {
		gen := &fakeGenerator{responses: map[domain.Stage]string{
			domain.StageWrapup: "thanks, we are out of time",
		}}
		c := newTestController(gen, &fakeEvaluator{})
		s := newTestSession()
		s.Stage = stage
		started := testNow.Add(-31 * time.Minute)
		s.StartedAt = &started

		resp, ok, err := c.HandleEvent(context.Background(), s, Event{Type: EventMessage, Text: "hello?"})
		if err != nil {
			t.Fatalf("stage %s: HandleEvent failed: %v", stage, err)
		}
		if s.Stage != domain.StageWrapup {
			t.Errorf("stage %s: expected WRAPUP, got %s", stage, s.Stage)
		}
		if !s.Ended {
			t.Errorf("stage %s: expected ended=true", stage)
		}
		if !ok || resp != "thanks, we are out of time" {
			t.Errorf("stage %s: expected wrapup utterance, got %q (ok=%v)", stage, resp, ok)
		}
	}
}

func TestTimeoutDoesNotOverrideTerminated(t *testing.T) {
	t.Parallel()

	c := newTestController(&fakeGenerator{}, &fakeEvaluator{})
	s := newTestSession()
	s.Stage = domain.StageTerminated
	s.Ended = true
	s.EndedEarly = true
	started := testNow.Add(-2 * time.Hour)
	s.StartedAt = &started

	if _, _, err := c.HandleEvent(context.Background(), s, Event{Type: EventIdle, IdleSeconds: 60}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if s.Stage != domain.StageTerminated {
		t.Errorf("terminated session was moved to %s", s.Stage)
	}
	if !s.Ended || !s.EndedEarly {
		t.Error("flags must stay monotonic")
	}
}

func TestScreeningPoorAnswersTerminate(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: map[domain.Stage]string{
		domain.StageScreening:  "next question",
		domain.StageTerminated: "we will stop here, thank you for your time",
	}}
	c := newTestController(gen, &fakeEvaluator{judgment: llm.JudgmentPoor})
	s := newTestSession()
	s.Stage = domain.StageScreening
	started := testNow
	s.StartedAt = &started
	s.Append(domain.SpeakerInterviewer, "what is a goroutine?", testNow)

	var resp string
	var ok bool
	for i := 0; i < 3; i++ {
		resp, ok = feedMessage(t, c, s, "I don't know")
	}

	if s.PoorAnswerCount != 3 {
		t.Fatalf("expected 3 poor answers, got %d", s.PoorAnswerCount)
	}
	if s.Stage != domain.StageTerminated {
		t.Fatalf("expected TERMINATED, got %s", s.Stage)
	}
	if !s.EndedEarly || !s.Ended {
		t.Error("expected ended=true and endedEarly=true")
	}
	if !ok || resp != "we will stop here, thank you for your time" {
		t.Errorf("expected termination utterance, got %q", resp)
	}
}

func TestScreeningShortCircuitOnEntry(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	c := newTestController(gen, &fakeEvaluator{judgment: llm.JudgmentGood})
	s := newTestSession()
	s.Stage = domain.StageScreening
	s.PoorAnswerCount = 3

	_, ok, err := c.HandleEvent(context.Background(), s, Event{Type: EventMessage, Text: "wait, one more chance"})
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a termination utterance")
	}
	if len(gen.calls) != 1 || gen.calls[0].Stage != domain.StageTerminated {
		t.Errorf("expected a single TERMINATED generation, got %d calls", len(gen.calls))
	}
	if s.ScreeningCount != 0 {
		t.Errorf("short-circuit must not count the answer, got %d", s.ScreeningCount)
	}
	if !s.EndedEarly {
		t.Error("expected endedEarly=true")
	}
}

func TestScreeningPassMovesDirectlyToCoding(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: map[domain.Stage]string{
		domain.StageScreening: "question",
		domain.StageTask:      "here is your coding task",
	}}
	c := newTestController(gen, &fakeEvaluator{judgment: llm.JudgmentGood})
	s := newTestSession()
	s.Stage = domain.StageScreening
	s.ScreeningTarget = 2
	started := testNow
	s.StartedAt = &started
	s.Append(domain.SpeakerInterviewer, "first question", testNow)

	feedMessage(t, c, s, "an answer")
	resp, ok := feedMessage(t, c, s, "another answer")

	if s.Stage != domain.StageCoding {
		t.Fatalf("expected CODING after pass, got %s", s.Stage)
	}
	if !s.TaskUnlocked || !s.CanEditCode {
		t.Error("pass must unlock the task and editor")
	}
	if s.Ended || s.EndedEarly {
		t.Error("passing must not end the session")
	}
	if !ok || resp != "here is your coding task" {
		t.Errorf("expected task introduction utterance, got %q", resp)
	}
}

func TestScreeningEvaluationFailureIsSoft(t *testing.T) {
	t.Parallel()

	c := newTestController(&fakeGenerator{}, &fakeEvaluator{err: errors.New("evaluator down")})
	s := newTestSession()
	s.Stage = domain.StageScreening
	s.Append(domain.SpeakerInterviewer, "question", testNow)

	_, ok := feedMessage(t, c, s, "some answer")
	if !ok {
		t.Fatal("turn must survive evaluator failure")
	}
	if s.PoorAnswerCount != 0 {
		t.Errorf("failed evaluation must skip the poor-answer increment, got %d", s.PoorAnswerCount)
	}
	if s.ScreeningCount != 1 {
		t.Errorf("answer should still count, got %d", s.ScreeningCount)
	}
}

func TestScreeningEmptyAnswerNotCounted(t *testing.T) {
	t.Parallel()

	eval := &fakeEvaluator{judgment: llm.JudgmentGood}
	c := newTestController(&fakeGenerator{}, eval)
	s := newTestSession()
	s.Stage = domain.StageScreening

	if _, _, err := c.HandleEvent(context.Background(), s, Event{Type: EventMessage, Text: "   "}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if s.ScreeningCount != 0 {
		t.Errorf("blank answer must not count, got %d", s.ScreeningCount)
	}
	if len(eval.questions) != 0 {
		t.Error("blank answer must not be evaluated")
	}
}

func TestForcedTaskStageUnlocksAndMovesToCoding(t *testing.T) {
	t.Parallel()

	c := newTestController(&fakeGenerator{}, &fakeEvaluator{})
	s := newTestSession()
	s.Stage = domain.StageTask

	_, ok, err := c.HandleEvent(context.Background(), s, Event{Type: EventStart})
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a task introduction utterance")
	}
	if s.Stage != domain.StageCoding || !s.TaskUnlocked || !s.CanEditCode {
		t.Errorf("TASK must unlock and advance to CODING, got stage=%s unlocked=%v edit=%v",
			s.Stage, s.TaskUnlocked, s.CanEditCode)
	}
}

func TestIdleCooldownSuppressesNudges(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	c := newTestController(gen, &fakeEvaluator{})
	s := newTestSession()
	s.Stage = domain.StageCoding
	started := testNow
	s.StartedAt = &started

	_, ok, err := c.HandleEvent(context.Background(), s, Event{Type: EventIdle, IdleSeconds: 60})
	if err != nil {
		t.Fatalf("first idle failed: %v", err)
	}
	if !ok || s.IdleNudgeCount != 1 {
		t.Fatalf("expected first nudge, ok=%v count=%d", ok, s.IdleNudgeCount)
	}

	// 10s later: inside the 45s cooldown, nothing happens.
	c.now = func() time.Time { return testNow.Add(10 * time.Second) }
	_, ok, err = c.HandleEvent(context.Background(), s, Event{Type: EventIdle, IdleSeconds: 70})
	if err != nil {
		t.Fatalf("second idle failed: %v", err)
	}
	if ok {
		t.Error("nudge inside cooldown must yield no utterance")
	}
	if s.IdleNudgeCount != 1 {
		t.Errorf("cooldown must not advance the nudge count, got %d", s.IdleNudgeCount)
	}

	// 50s after the first nudge: cooldown elapsed.
	c.now = func() time.Time { return testNow.Add(50 * time.Second) }
	_, ok, err = c.HandleEvent(context.Background(), s, Event{Type: EventIdle, IdleSeconds: 120})
	if err != nil {
		t.Fatalf("third idle failed: %v", err)
	}
	if !ok || s.IdleNudgeCount != 2 {
		t.Errorf("expected second nudge after cooldown, ok=%v count=%d", ok, s.IdleNudgeCount)
	}
}

func TestIdleFramingDependsOnCodeLength(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	c := newTestController(gen, &fakeEvaluator{})
	s := newTestSession()
	s.Stage = domain.StageCoding

	if _, _, err := c.HandleEvent(context.Background(), s, Event{Type: EventIdle, IdleSeconds: 45}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	hist := gen.lastCall().History
	note := hist[len(hist)-1]
	if note.Speaker != domain.SpeakerSystem || !strings.Contains(note.Text, "NO CODE") {
		t.Errorf("empty editor should get the suspicious framing, got %q", note.Text)
	}

	s2 := newTestSession()
	s2.Stage = domain.StageCoding
	s2.CodeText = "def solve(items):\n    return sorted(items)\n"
	if _, _, err := c.HandleEvent(context.Background(), s2, Event{Type: EventIdle, IdleSeconds: 45}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	hist = gen.lastCall().History
	note = hist[len(hist)-1]
	if !strings.Contains(note.Text, "offer help") {
		t.Errorf("non-empty editor should get the stuck framing, got %q", note.Text)
	}
}

func TestCheatPhraseTerminates(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: map[domain.Stage]string{
		domain.StageCoding: "I have serious Concerns About Authenticity of this work.",
	}}
	c := newTestController(gen, &fakeEvaluator{})
	s := newTestSession()
	s.Stage = domain.StageCoding

	if _, _, err := c.HandleEvent(context.Background(), s, Event{Type: EventIdle, IdleSeconds: 90}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if s.Stage != domain.StageTerminated || !s.EndedEarly || !s.Ended {
		t.Errorf("cheat phrase must terminate, got stage=%s endedEarly=%v", s.Stage, s.EndedEarly)
	}
}

func TestBenignNudgeDoesNotTerminate(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: map[domain.Stage]string{
		domain.StageCoding: "How is it going? Let me know if you are stuck.",
	}}
	c := newTestController(gen, &fakeEvaluator{})
	s := newTestSession()
	s.Stage = domain.StageCoding

	if _, _, err := c.HandleEvent(context.Background(), s, Event{Type: EventIdle, IdleSeconds: 90}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if s.Stage != domain.StageCoding {
		t.Errorf("benign nudge changed stage to %s", s.Stage)
	}
	if s.Ended || s.EndedEarly {
		t.Error("benign nudge must not end the session")
	}
}

func TestContainsTerminationPhrase(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want bool
	}{
		{"I'm ending the interview now.", true},
		{"We have to END THE INTERVIEW here.", true},
		{"I have concerns about authenticity.", true},
		{"This does not look like your own work... not your own work.", true},
		{"Keep going, you are close!", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := containsTerminationPhrase(tc.text); got != tc.want {
			t.Errorf("containsTerminationPhrase(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestCodingCodeEventIsSilent(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	c := newTestController(gen, &fakeEvaluator{})
	s := newTestSession()
	s.Stage = domain.StageCoding

	_, ok, err := c.HandleEvent(context.Background(), s, Event{Type: EventCode})
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if ok {
		t.Error("code event must not produce an utterance")
	}
	if len(gen.calls) != 0 {
		t.Error("code event must not invoke the generator")
	}
}

func TestClosingStagesAreIdempotent(t *testing.T) {
	t.Parallel()

	for _, stage := range []domain.Stage{domain.StageTerminated, domain.StageWrapup} {
		c := newTestController(&fakeGenerator{}, &fakeEvaluator{})
		s := newTestSession()
		s.Stage = stage
		s.Ended = true
		s.IdleNudgeCount = 2

		_, ok, err := c.HandleEvent(context.Background(), s, Event{Type: EventMessage, Text: "hello?"})
		if err != nil {
			t.Fatalf("stage %s: HandleEvent failed: %v", stage, err)
		}
		if !ok {
			t.Errorf("stage %s: expected a closing utterance on re-entry", stage)
		}
		if s.Stage != stage || !s.Ended {
			t.Errorf("stage %s: re-entry mutated state: stage=%s ended=%v", stage, s.Stage, s.Ended)
		}
		if s.IdleNudgeCount != 2 {
			t.Errorf("stage %s: re-entry touched counters", stage)
		}
	}
}

func TestGeneratorFailureIsHard(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{err: errors.New("model unavailable")}
	c := newTestController(gen, &fakeEvaluator{})
	s := newTestSession()

	if _, _, err := c.HandleEvent(context.Background(), s, Event{Type: EventStart}); err == nil {
		t.Fatal("expected a hard failure when generation fails")
	}
}
