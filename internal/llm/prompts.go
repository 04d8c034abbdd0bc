package llm

import (
	"fmt"
	"strings"

	"github.com/ashureev/interviewd/internal/domain"
)

const codePreviewLimit = 800

// buildSystemPrompt assembles the stage-specific interviewer instructions
// with the candidate, job, progress, and code context folded in.
func buildSystemPrompt(req GenerateRequest) string {
	var b strings.Builder

	b.WriteString("You are a FRIENDLY but PROFESSIONAL HR INTERVIEWER conducting a technical screening.\n")

	name := req.Candidate.Name
	if name == "" {
		name = "Candidate"
	}
	fmt.Fprintf(&b, "CANDIDATE: %s\n", name)

	title := req.Job.Title
	if title == "" {
		title = "Software Developer"
	}
	level := req.Job.ExperienceLevel
	if level == "" {
		level = "mid"
	}
	tech := "General"
	if len(req.Job.TechStack) > 0 {
		tech = strings.Join(req.Job.TechStack, ", ")
	}
	fmt.Fprintf(&b, "POSITION: %s (%s)\nTECH STACK: %s\n", title, strings.ToUpper(level), tech)
	if len(req.Job.Requirements) > 0 {
		reqs := req.Job.Requirements
		if len(reqs) > 5 {
			reqs = reqs[:5]
		}
		fmt.Fprintf(&b, "KEY REQUIREMENTS: %s\n", strings.Join(reqs, "; "))
	}

	if req.Screening != nil {
		fmt.Fprintf(&b, "PROGRESS: Question %d/%d. Poor answers: %d\n",
			req.Screening.Asked, req.Screening.Target, req.Screening.PoorAnswers)
	}

	if req.Code != nil {
		writeCodeSection(&b, req.Code)
	}

	b.WriteString(`
SPEAKING RULES:
1. Keep responses SHORT (1-2 sentences, MAX 25 words)
2. This is VOICE - be natural and conversational
3. During technical questions, be direct - no filler
`)

	switch req.Stage {
	case domain.StageIntro:
		b.WriteString(`
STAGE: Introduction (warm-up).
Greet the candidate, introduce yourself as their interviewer, and ask how
they are doing and for their name. On the second exchange, acknowledge the
name and transition toward the technical questions. This is the only small
talk allowed.`)
	case domain.StageScreening:
		fmt.Fprintf(&b, `
STAGE: Technical Screening.
Ask ONE question at a time that tests whether the candidate truly
understands the fundamentals needed for %s. Follow the progress counter:
never exceed the target number of questions. Do not explain answers, do not
teach. Acknowledge briefly and move on.`, title)
	case domain.StageTask:
		fmt.Fprintf(&b, `
STAGE: Task introduction.
Tell the candidate they passed the screening and introduce the coding task
"%s". Briefly describe it: %s. Tell them the editor is now unlocked and
they can start whenever ready.`, req.Task.Title, req.Task.Description)
	case domain.StageCoding:
		b.WriteString(`
STAGE: Coding.
The candidate is working on the task in the live editor shown above. Answer
questions about the task without giving away the solution. When nudging an
idle candidate, react to what the code section shows. If the system notes
raise repeated concern about no effort or outside help, you have the
authority to end the interview and say so explicitly.`)
	case domain.StageTerminated:
		b.WriteString(`
STAGE: Early termination.
Politely end the interview now. Thank the candidate for their time, tell
them the team will be in touch, and do not continue the conversation.`)
	case domain.StageWrapup:
		b.WriteString(`
STAGE: Wrap-up.
Time is up. Thank the candidate, tell them their session and code were
recorded for review, and close warmly.`)
	}

	return b.String()
}

func writeCodeSection(b *strings.Builder, code *CodeContext) {
	lang := code.Language
	if lang == "" {
		lang = "python"
	}
	trimmed := strings.TrimSpace(code.Code)

	b.WriteString("\n=== CODE EDITOR (LIVE VIEW) ===\n")
	fmt.Fprintf(b, "Language selected: %s\n", lang)
	fmt.Fprintf(b, "Code length: %d characters\n", len(trimmed))
	fmt.Fprintf(b, "Idle time: %d seconds\n", code.IdleSeconds)
	fmt.Fprintf(b, "Times nudged: %d\n", code.NudgeCount)

	if trimmed == "" {
		b.WriteString("\nTHE CODE EDITOR IS EMPTY - CANDIDATE HAS NOT WRITTEN ANY CODE YET!\n")
	} else {
		preview := code.Code
		if len(preview) > codePreviewLimit {
			preview = preview[:codePreviewLimit] + "..."
		}
		fmt.Fprintf(b, "\nCANDIDATE'S CURRENT CODE:\n```\n%s\n```\n", preview)
	}
	b.WriteString("=== END CODE ===\n")
}
