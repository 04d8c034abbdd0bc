// Package domain contains core domain types for the interviewd application.
package domain

import "fmt"

// Stage is the discrete phase of an interview session.
type Stage string

const (
	StageIntro      Stage = "INTRO"
	StageScreening  Stage = "SCREENING"
	StageTask       Stage = "TASK"
	StageCoding     Stage = "CODING"
	StageTerminated Stage = "TERMINATED"
	StageWrapup     Stage = "WRAPUP"
)

// ParseStage validates a stored stage value.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageIntro, StageScreening, StageTask, StageCoding, StageTerminated, StageWrapup:
		return Stage(s), nil
	}
	return "", fmt.Errorf("unknown interview stage %q", s)
}

// Terminal returns true for stages the session can never leave.
func (s Stage) Terminal() bool {
	return s == StageTerminated || s == StageWrapup
}
