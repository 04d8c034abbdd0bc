package domain

import "time"

// AssignmentStatus is the lifecycle of a technical assignment.
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "pending"
	AssignmentSent       AssignmentStatus = "sent"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentSubmitted  AssignmentStatus = "submitted"
	AssignmentReviewed   AssignmentStatus = "reviewed"
	AssignmentExpired    AssignmentStatus = "expired"
)

// ApplicationStatus is the lifecycle of a job application.
type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationCompleted ApplicationStatus = "completed"
	ApplicationRejected  ApplicationStatus = "rejected"
)

// User is a candidate account.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Job is a posted position.
type Job struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	ExperienceLevel string    `json:"experience_level"`
	TechStack       []string  `json:"tech_stack"`
	Requirements    []string  `json:"requirements"`
	CreatedAt       time.Time `json:"created_at"`
}

// Application links a user to a job.
type Application struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	JobID     string            `json:"job_id"`
	Status    ApplicationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// Assignment is a technical task handed to a candidate, keyed by the opaque
// interview session identifier. The Candidate and Job contexts are joined
// in by the store when the assignment is loaded for session creation.
type Assignment struct {
	ID               string           `json:"id"`
	ApplicationID    string           `json:"application_id"`
	SessionID        string           `json:"session_id"`
	TaskTitle        string           `json:"task_title"`
	TaskDescription  string           `json:"task_description"`
	TaskRequirements []string         `json:"task_requirements"`
	Status           AssignmentStatus `json:"status"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	SubmittedAt      *time.Time       `json:"submitted_at,omitempty"`
	CandidateNotes   string           `json:"candidate_notes,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`

	Candidate CandidateContext `json:"candidate"`
	Job       JobContext       `json:"job"`
}
