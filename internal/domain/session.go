package domain

import (
	"strings"
	"time"
)

// Speaker identifies the author of a transcript entry.
type Speaker string

const (
	SpeakerCandidate   Speaker = "candidate"
	SpeakerInterviewer Speaker = "interviewer"
	// SpeakerSystem marks synthetic context notes. They are never shown to
	// the candidate and are excluded when replaying history.
	SpeakerSystem Speaker = "system"
)

// Message is a single transcript entry.
type Message struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	Ts      time.Time `json:"ts"`
}

// CandidateContext is loaded once from the user record at session creation.
type CandidateContext struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// JobContext is loaded once from the job posting at session creation.
type JobContext struct {
	Title           string   `json:"title"`
	ExperienceLevel string   `json:"experience_level"`
	TechStack       []string `json:"tech_stack"`
	Requirements    []string `json:"requirements"`
}

// TaskContext is loaded once from the assignment at session creation.
type TaskContext struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Requirements []string `json:"requirements"`
}

// CodeSnapshot is one entry of the capped per-session code history.
type CodeSnapshot struct {
	Code string    `json:"code"`
	Ts   time.Time `json:"ts"`
}

// Session is the durable record of one interview session. It is mutated
// exactly once per inbound event by the stage controller and persisted as
// a whole by the store between events.
type Session struct {
	SessionID     string
	AssignmentID  string
	ApplicationID string

	Stage Stage

	// Monotonic flags: once true, never false again within a session.
	CanEditCode  bool
	TaskUnlocked bool
	Ended        bool
	EndedEarly   bool

	Transcript []Message

	// Timing. StartedAt is set once on first INTRO processing.
	StartedAt          *time.Time
	MaxDurationMinutes int

	// Intro counters.
	IntroCount  int
	IntroTarget int

	// Screening counters.
	ScreeningCount      int
	ScreeningTarget     int
	PoorAnswerCount     int
	PoorAnswerThreshold int

	// Idle tracking.
	IdleNudgeCount      int
	LastIdleNudgeAt     *time.Time
	IdleCooldownSeconds int

	// Code editor state, updated out-of-band by code events.
	CodeText         string
	CodeLanguage     string
	LastCodeChangeAt *time.Time

	// Context loaded at creation, read-only inside the controller.
	Candidate CandidateContext
	Job       JobContext
	Task      TaskContext

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionDefaults carries the tunable policy values a new session is born with.
type SessionDefaults struct {
	MaxDurationMinutes  int
	IntroTarget         int
	ScreeningTarget     int
	PoorAnswerThreshold int
	IdleCooldownSeconds int
	CodeLanguage        string
}

// NewSession materializes a fresh session at stage INTRO for an assignment.
func NewSession(sessionID string, a *Assignment, d SessionDefaults, now time.Time) *Session {
	return &Session{
		SessionID:           sessionID,
		AssignmentID:        a.ID,
		ApplicationID:       a.ApplicationID,
		Stage:               StageIntro,
		MaxDurationMinutes:  d.MaxDurationMinutes,
		IntroTarget:         d.IntroTarget,
		ScreeningTarget:     d.ScreeningTarget,
		PoorAnswerThreshold: d.PoorAnswerThreshold,
		IdleCooldownSeconds: d.IdleCooldownSeconds,
		CodeLanguage:        d.CodeLanguage,
		Candidate:           a.Candidate,
		Job:                 a.Job,
		Task: TaskContext{
			Title:        a.TaskTitle,
			Description:  a.TaskDescription,
			Requirements: a.TaskRequirements,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a transcript entry.
func (s *Session) Append(speaker Speaker, text string, ts time.Time) {
	s.Transcript = append(s.Transcript, Message{Speaker: speaker, Text: text, Ts: ts})
}

// Tail returns the last n transcript entries.
func (s *Session) Tail(n int) []Message {
	if n >= len(s.Transcript) {
		return s.Transcript
	}
	return s.Transcript[len(s.Transcript)-n:]
}

// LastInterviewerMessage returns the most recent interviewer utterance,
// or empty string if none exists yet.
func (s *Session) LastInterviewerMessage() string {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Speaker == SpeakerInterviewer {
			return s.Transcript[i].Text
		}
	}
	return ""
}

// TimedOut reports whether the session has exceeded its maximum duration.
func (s *Session) TimedOut(now time.Time) bool {
	if s.StartedAt == nil {
		return false
	}
	return now.Sub(*s.StartedAt) > time.Duration(s.MaxDurationMinutes)*time.Minute
}

// CodeLength returns the trimmed length of the current editor contents.
func (s *Session) CodeLength() int {
	return len(strings.TrimSpace(s.CodeText))
}
