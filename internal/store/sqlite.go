package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/interviewd/internal/domain"
	_ "modernc.org/sqlite"
)

// codeHistoryCap bounds the per-session code history.
const codeHistoryCap = 100

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		experience_level TEXT NOT NULL,
		tech_stack_json TEXT NOT NULL,
		requirements_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS applications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		job_id TEXT NOT NULL REFERENCES jobs(id),
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL REFERENCES applications(id),
		session_id TEXT NOT NULL UNIQUE,
		task_title TEXT NOT NULL,
		task_description TEXT NOT NULL,
		task_requirements_json TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at INTEGER,
		submitted_at INTEGER,
		candidate_notes TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assignments_session ON assignments(session_id);

	CREATE TABLE IF NOT EXISTS interview_sessions (
		session_id TEXT PRIMARY KEY,
		assignment_id TEXT NOT NULL,
		application_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		can_edit_code INTEGER NOT NULL DEFAULT 0,
		task_unlocked INTEGER NOT NULL DEFAULT 0,
		ended INTEGER NOT NULL DEFAULT 0,
		ended_early INTEGER NOT NULL DEFAULT 0,
		transcript_json TEXT NOT NULL,
		started_at INTEGER,
		max_duration_minutes INTEGER NOT NULL,
		intro_count INTEGER NOT NULL DEFAULT 0,
		intro_target INTEGER NOT NULL,
		screening_count INTEGER NOT NULL DEFAULT 0,
		screening_target INTEGER NOT NULL,
		poor_answer_count INTEGER NOT NULL DEFAULT 0,
		poor_answer_threshold INTEGER NOT NULL,
		idle_nudge_count INTEGER NOT NULL DEFAULT 0,
		last_idle_nudge_at INTEGER,
		idle_cooldown_seconds INTEGER NOT NULL,
		code_text TEXT NOT NULL DEFAULT '',
		code_language TEXT NOT NULL,
		last_code_change_at INTEGER,
		candidate_json TEXT NOT NULL,
		job_json TEXT NOT NULL,
		task_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS code_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		code TEXT NOT NULL,
		ts INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_code_history_session ON code_history(session_id, id);

	CREATE TABLE IF NOT EXISTS analyses (
		session_id TEXT PRIMARY KEY,
		report_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetSession retrieves an interview session by its opaque identifier.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
		SELECT session_id, assignment_id, application_id, stage,
		       can_edit_code, task_unlocked, ended, ended_early,
		       transcript_json, started_at, max_duration_minutes,
		       intro_count, intro_target,
		       screening_count, screening_target,
		       poor_answer_count, poor_answer_threshold,
		       idle_nudge_count, last_idle_nudge_at, idle_cooldown_seconds,
		       code_text, code_language, last_code_change_at,
		       candidate_json, job_json, task_json,
		       created_at, updated_at
		FROM interview_sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var sess domain.Session
	var stage string
	var transcriptJSON, candidateJSON, jobJSON, taskJSON string
	var startedAt, lastNudgeAt, lastCodeChangeAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&sess.SessionID, &sess.AssignmentID, &sess.ApplicationID, &stage,
		&sess.CanEditCode, &sess.TaskUnlocked, &sess.Ended, &sess.EndedEarly,
		&transcriptJSON, &startedAt, &sess.MaxDurationMinutes,
		&sess.IntroCount, &sess.IntroTarget,
		&sess.ScreeningCount, &sess.ScreeningTarget,
		&sess.PoorAnswerCount, &sess.PoorAnswerThreshold,
		&sess.IdleNudgeCount, &lastNudgeAt, &sess.IdleCooldownSeconds,
		&sess.CodeText, &sess.CodeLanguage, &lastCodeChangeAt,
		&candidateJSON, &jobJSON, &taskJSON,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.Stage, err = domain.ParseStage(stage)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	if err := json.Unmarshal([]byte(transcriptJSON), &sess.Transcript); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	if err := json.Unmarshal([]byte(candidateJSON), &sess.Candidate); err != nil {
		return nil, fmt.Errorf("decode candidate context: %w", err)
	}
	if err := json.Unmarshal([]byte(jobJSON), &sess.Job); err != nil {
		return nil, fmt.Errorf("decode job context: %w", err)
	}
	if err := json.Unmarshal([]byte(taskJSON), &sess.Task); err != nil {
		return nil, fmt.Errorf("decode task context: %w", err)
	}

	sess.StartedAt = unixPtr(startedAt)
	sess.LastIdleNudgeAt = unixPtr(lastNudgeAt)
	sess.LastCodeChangeAt = unixPtr(lastCodeChangeAt)
	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	sess.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &sess, nil
}

// UpsertSession writes the full session state.
func (s *SQLiteStore) UpsertSession(ctx context.Context, sess *domain.Session) error {
	transcript := sess.Transcript
	if transcript == nil {
		transcript = []domain.Message{}
	}
	transcriptJSON, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	candidateJSON, err := json.Marshal(sess.Candidate)
	if err != nil {
		return fmt.Errorf("encode candidate context: %w", err)
	}
	jobJSON, err := json.Marshal(sess.Job)
	if err != nil {
		return fmt.Errorf("encode job context: %w", err)
	}
	taskJSON, err := json.Marshal(sess.Task)
	if err != nil {
		return fmt.Errorf("encode task context: %w", err)
	}

	query := `
		INSERT INTO interview_sessions (
			session_id, assignment_id, application_id, stage,
			can_edit_code, task_unlocked, ended, ended_early,
			transcript_json, started_at, max_duration_minutes,
			intro_count, intro_target,
			screening_count, screening_target,
			poor_answer_count, poor_answer_threshold,
			idle_nudge_count, last_idle_nudge_at, idle_cooldown_seconds,
			code_text, code_language, last_code_change_at,
			candidate_json, job_json, task_json,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			stage = excluded.stage,
			can_edit_code = excluded.can_edit_code,
			task_unlocked = excluded.task_unlocked,
			ended = excluded.ended,
			ended_early = excluded.ended_early,
			transcript_json = excluded.transcript_json,
			started_at = excluded.started_at,
			intro_count = excluded.intro_count,
			screening_count = excluded.screening_count,
			screening_target = excluded.screening_target,
			poor_answer_count = excluded.poor_answer_count,
			idle_nudge_count = excluded.idle_nudge_count,
			last_idle_nudge_at = excluded.last_idle_nudge_at,
			code_text = excluded.code_text,
			code_language = excluded.code_language,
			last_code_change_at = excluded.last_code_change_at,
			updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		sess.SessionID, sess.AssignmentID, sess.ApplicationID, string(sess.Stage),
		sess.CanEditCode, sess.TaskUnlocked, sess.Ended, sess.EndedEarly,
		string(transcriptJSON), unixVal(sess.StartedAt), sess.MaxDurationMinutes,
		sess.IntroCount, sess.IntroTarget,
		sess.ScreeningCount, sess.ScreeningTarget,
		sess.PoorAnswerCount, sess.PoorAnswerThreshold,
		sess.IdleNudgeCount, unixVal(sess.LastIdleNudgeAt), sess.IdleCooldownSeconds,
		sess.CodeText, sess.CodeLanguage, unixVal(sess.LastCodeChangeAt),
		string(candidateJSON), string(jobJSON), string(taskJSON),
		sess.CreatedAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetAssignmentBySessionID loads the assignment backing a session id.
func (s *SQLiteStore) GetAssignmentBySessionID(ctx context.Context, sessionID string) (*domain.Assignment, error) {
	query := `
		SELECT a.id, a.application_id, a.session_id,
		       a.task_title, a.task_description, a.task_requirements_json,
		       a.status, a.started_at, a.submitted_at, a.candidate_notes, a.created_at,
		       u.name, u.email,
		       j.title, j.experience_level, j.tech_stack_json, j.requirements_json
		FROM assignments a
		JOIN applications ap ON ap.id = a.application_id
		JOIN users u ON u.id = ap.user_id
		JOIN jobs j ON j.id = ap.job_id
		WHERE a.session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var a domain.Assignment
	var status string
	var taskReqJSON, techJSON, reqJSON string
	var startedAt, submittedAt sql.NullInt64
	var createdAt int64

	err := row.Scan(
		&a.ID, &a.ApplicationID, &a.SessionID,
		&a.TaskTitle, &a.TaskDescription, &taskReqJSON,
		&status, &startedAt, &submittedAt, &a.CandidateNotes, &createdAt,
		&a.Candidate.Name, &a.Candidate.Email,
		&a.Job.Title, &a.Job.ExperienceLevel, &techJSON, &reqJSON,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan assignment row: %w", err)
	}

	if err := json.Unmarshal([]byte(taskReqJSON), &a.TaskRequirements); err != nil {
		return nil, fmt.Errorf("decode task requirements: %w", err)
	}
	if err := json.Unmarshal([]byte(techJSON), &a.Job.TechStack); err != nil {
		return nil, fmt.Errorf("decode tech stack: %w", err)
	}
	if err := json.Unmarshal([]byte(reqJSON), &a.Job.Requirements); err != nil {
		return nil, fmt.Errorf("decode job requirements: %w", err)
	}

	a.Status = domain.AssignmentStatus(status)
	a.StartedAt = unixPtr(startedAt)
	a.SubmittedAt = unixPtr(submittedAt)
	a.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &a, nil
}

// MarkAssignmentStarted records that the candidate opened the interview.
func (s *SQLiteStore) MarkAssignmentStarted(ctx context.Context, assignmentID string, at time.Time) error {
	query := `UPDATE assignments SET status = ?, started_at = ? WHERE id = ? AND started_at IS NULL`
	if _, err := s.db.ExecContext(ctx, query, string(domain.AssignmentInProgress), at.Unix(), assignmentID); err != nil {
		return fmt.Errorf("mark assignment started: %w", err)
	}
	return nil
}

// MarkAssignmentSubmitted records completion of the interview.
func (s *SQLiteStore) MarkAssignmentSubmitted(ctx context.Context, assignmentID, candidateNotes string, at time.Time) error {
	query := `UPDATE assignments SET status = ?, submitted_at = ?, candidate_notes = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, string(domain.AssignmentSubmitted), at.Unix(), candidateNotes, assignmentID)
	if err != nil {
		return fmt.Errorf("mark assignment submitted: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("MarkAssignmentSubmitted affected 0 rows", "assignment_id", assignmentID)
	}
	return nil
}

// UpdateApplicationStatus moves an application through its lifecycle.
func (s *SQLiteStore) UpdateApplicationStatus(ctx context.Context, applicationID string, status domain.ApplicationStatus) error {
	query := `UPDATE applications SET status = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, string(status), applicationID)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateApplicationStatus affected 0 rows", "application_id", applicationID)
	}
	return nil
}

// AppendCodeSnapshot appends to the capped per-session code history.
func (s *SQLiteStore) AppendCodeSnapshot(ctx context.Context, sessionID, code string, ts time.Time) error {
	insert := `INSERT INTO code_history (session_id, code, ts) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, insert, sessionID, code, ts.Unix()); err != nil {
		return fmt.Errorf("append code snapshot: %w", err)
	}

	// Keep only the newest snapshots for the session.
	trim := `
		DELETE FROM code_history
		WHERE session_id = ? AND id NOT IN (
			SELECT id FROM code_history WHERE session_id = ?
			ORDER BY id DESC LIMIT ?
		)`
	if _, err := s.db.ExecContext(ctx, trim, sessionID, sessionID, codeHistoryCap); err != nil {
		return fmt.Errorf("trim code history: %w", err)
	}
	return nil
}

// GetCodeHistory returns up to limit snapshots, oldest first.
func (s *SQLiteStore) GetCodeHistory(ctx context.Context, sessionID string, limit int) ([]domain.CodeSnapshot, error) {
	if limit <= 0 || limit > codeHistoryCap {
		limit = codeHistoryCap
	}
	query := `
		SELECT code, ts FROM (
			SELECT id, code, ts FROM code_history
			WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query code history: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close code history rows", "error", closeErr)
		}
	}()

	var snapshots []domain.CodeSnapshot
	for rows.Next() {
		var snap domain.CodeSnapshot
		var ts int64
		if err := rows.Scan(&snap.Code, &ts); err != nil {
			return nil, fmt.Errorf("scan code history row: %w", err)
		}
		snap.Ts = time.Unix(ts, 0).UTC()
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate code history: %w", err)
	}
	return snapshots, nil
}

// SaveAnalysis stores the post-interview analysis verdict as JSON.
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, sessionID string, report []byte) error {
	query := `
		INSERT INTO analyses (session_id, report_json, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			report_json = excluded.report_json,
			created_at = excluded.created_at`
	if _, err := s.db.ExecContext(ctx, query, sessionID, string(report), time.Now().Unix()); err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

// GetAnalysis returns the stored analysis JSON, or nil when absent.
func (s *SQLiteStore) GetAnalysis(ctx context.Context, sessionID string) ([]byte, error) {
	var report string
	err := s.db.QueryRowContext(ctx, `SELECT report_json FROM analyses WHERE session_id = ?`, sessionID).Scan(&report)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan analysis row: %w", err)
	}
	return []byte(report), nil
}

// CreateUser inserts a candidate account.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *domain.User) error {
	query := `INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, u.ID, u.Name, u.Email, u.CreatedAt.Unix()); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// CreateJob inserts a job posting.
func (s *SQLiteStore) CreateJob(ctx context.Context, j *domain.Job) error {
	techJSON, err := json.Marshal(j.TechStack)
	if err != nil {
		return fmt.Errorf("encode tech stack: %w", err)
	}
	reqJSON, err := json.Marshal(j.Requirements)
	if err != nil {
		return fmt.Errorf("encode requirements: %w", err)
	}
	query := `INSERT INTO jobs (id, title, experience_level, tech_stack_json, requirements_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, j.ID, j.Title, j.ExperienceLevel, string(techJSON), string(reqJSON), j.CreatedAt.Unix()); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// CreateApplication inserts an application.
func (s *SQLiteStore) CreateApplication(ctx context.Context, a *domain.Application) error {
	status := a.Status
	if status == "" {
		status = domain.ApplicationPending
	}
	query := `INSERT INTO applications (id, user_id, job_id, status, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, a.ID, a.UserID, a.JobID, string(status), a.CreatedAt.Unix()); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// CreateAssignment inserts an assignment keyed by its session id.
func (s *SQLiteStore) CreateAssignment(ctx context.Context, a *domain.Assignment) error {
	taskReqJSON, err := json.Marshal(a.TaskRequirements)
	if err != nil {
		return fmt.Errorf("encode task requirements: %w", err)
	}
	status := a.Status
	if status == "" {
		status = domain.AssignmentSent
	}
	query := `
		INSERT INTO assignments (
			id, application_id, session_id, task_title, task_description,
			task_requirements_json, status, candidate_notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query,
		a.ID, a.ApplicationID, a.SessionID, a.TaskTitle, a.TaskDescription,
		string(taskReqJSON), string(status), a.CandidateNotes, a.CreatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func unixVal(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
