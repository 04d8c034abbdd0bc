package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/interviewd/internal/domain"
	"github.com/ashureev/interviewd/internal/interview"
	"github.com/ashureev/interviewd/internal/live"
	"github.com/ashureev/interviewd/internal/runner"
	"github.com/ashureev/interviewd/internal/speech"
)

// messagesTailSize bounds how much transcript a turn response carries.
const messagesTailSize = 20

// maxAudioUploadBytes bounds candidate audio uploads.
const maxAudioUploadBytes = 20 << 20

// Conductor runs one inbound event against a session.
type Conductor interface {
	HandleEvent(ctx context.Context, s *domain.Session, ev interview.Event) (string, bool, error)
}

// Publisher fans turn events out to session observers.
type Publisher interface {
	Publish(sessionID string, ev live.Event)
}

// Launcher starts the post-interview analysis in the background.
type Launcher interface {
	Launch(sess *domain.Session)
}

// InterviewHandler serves the candidate-facing interview endpoints.
type InterviewHandler struct {
	*Handler
	ctrl     Conductor
	stt      speech.Transcriber
	tts      speech.Synthesizer
	hub      Publisher
	runner   runner.Runner
	analyzer Launcher
	defaults domain.SessionDefaults

	now func() time.Time
}

// NewInterviewHandler creates the interview handler. The speech, runner, and
// analyzer collaborators may be nil when the corresponding feature is not
// configured.
func NewInterviewHandler(base *Handler, ctrl Conductor, stt speech.Transcriber, tts speech.Synthesizer,
	hub Publisher, codeRunner runner.Runner, analyzer Launcher, defaults domain.SessionDefaults) *InterviewHandler {
	return &InterviewHandler{
		Handler:  base,
		ctrl:     ctrl,
		stt:      stt,
		tts:      tts,
		hub:      hub,
		runner:   codeRunner,
		analyzer: analyzer,
		defaults: defaults,
		now:      time.Now,
	}
}

// RegisterRoutes registers the interview and session routes.
func (h *InterviewHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/interview/{sessionID}", func(r chi.Router) {
		r.Post("/start", h.Start)
		r.Post("/message", h.Message)
		r.Post("/code", h.Code)
		r.Post("/idle", h.Idle)
		r.Post("/audio", h.Audio)
		r.Post("/execute", h.Execute)
		r.Get("/state", h.State)
		r.Get("/debug", h.Debug)
		r.Get("/analysis", h.Analysis)
	})
	r.Route("/api/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.GetAssignment)
		r.Post("/complete", h.Complete)
	})
}

type messageRequest struct {
	Text string `json:"text"`
}

type codeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type idleRequest struct {
	SecondsIdle int `json:"seconds_idle"`
}

type executeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type completeRequest struct {
	CandidateNotes string `json:"candidate_notes"`
}

type assistantPayload struct {
	Text        string `json:"text"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	AudioMime   string `json:"audio_mime,omitempty"`
}

type messageItem struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	Ts   time.Time `json:"ts"`
}

type turnResponse struct {
	SessionID        string            `json:"session_id"`
	Transcript       string            `json:"transcript,omitempty"`
	Stage            domain.Stage      `json:"stage"`
	CanEditCode      bool              `json:"can_edit_code"`
	TaskUnlocked     bool              `json:"task_unlocked"`
	InterviewEnded   bool              `json:"interview_ended"`
	EarlyTermination bool              `json:"early_termination"`
	Assistant        *assistantPayload `json:"assistant"`
	MessagesTail     []messageItem     `json:"messages_tail"`
}

type stateResponse struct {
	turnResponse
	CodeCurrent  string `json:"code_current"`
	CodeLanguage string `json:"code_language"`
}

// Start begins (or resumes) an interview session.
func (h *InterviewHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.runTurn(w, r, interview.Event{Type: interview.EventStart}, "")
}

// Message processes a typed candidate message.
func (h *InterviewHandler) Message(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.runTurn(w, r, interview.Event{Type: interview.EventMessage, Text: req.Text}, "")
}

// Idle processes a reported period of candidate inactivity.
func (h *InterviewHandler) Idle(w http.ResponseWriter, r *http.Request) {
	var req idleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.runTurn(w, r, interview.Event{Type: interview.EventIdle, IdleSeconds: req.SecondsIdle}, "")
}

// Audio transcribes uploaded candidate speech and processes it as a message.
func (h *InterviewHandler) Audio(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if h.stt == nil {
		Error(w, http.StatusServiceUnavailable, "speech is not configured")
		return
	}

	if err := r.ParseMultipartForm(maxAudioUploadBytes); err != nil {
		Error(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "missing audio file")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, maxAudioUploadBytes))
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to read audio file")
		return
	}
	if len(data) == 0 {
		Error(w, http.StatusBadRequest, "empty audio file")
		return
	}

	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = "audio/webm"
	}
	filename := header.Filename
	if filename == "" {
		filename = "audio.webm"
	}

	transcript, err := h.stt.Transcribe(r.Context(), data, filename, mime)
	if err != nil {
		slog.Error("Transcription failed", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "transcription failed")
		return
	}
	if transcript == "" {
		Error(w, http.StatusBadRequest, "no speech detected in audio")
		return
	}
	slog.Info("Audio transcribed", "session_id", sessionID, "bytes", len(data))

	h.runTurn(w, r, interview.Event{Type: interview.EventMessage, Text: transcript}, transcript)
}

// runTurn loads the session, feeds one event through the controller, and
// persists the result exactly once. transcript is echoed back for audio turns.
func (h *InterviewHandler) runTurn(w http.ResponseWriter, r *http.Request, ev interview.Event, transcript string) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	sess, ok := h.loadOrCreateSession(ctx, w, sessionID)
	if !ok {
		return
	}

	prevStage := sess.Stage
	wasEnded := sess.Ended

	if ev.Type == interview.EventMessage && ev.Text != "" {
		sess.Append(domain.SpeakerCandidate, ev.Text, h.now())
	}

	utterance, spoke, err := h.ctrl.HandleEvent(ctx, sess, ev)
	if err != nil {
		slog.Error("Turn failed", "error", err, "session_id", sessionID, "event", ev.Type)
		Error(w, http.StatusInternalServerError, "failed to process turn")
		return
	}
	if spoke {
		sess.Append(domain.SpeakerInterviewer, utterance, h.now())
	}

	if err := h.persistSession(ctx, sess); err != nil {
		slog.Error("Failed to save session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to save session")
		return
	}

	h.publishTurn(sessionID, sess, prevStage, wasEnded, utterance, spoke)

	resp := turnResponse{
		SessionID:        sess.SessionID,
		Transcript:       transcript,
		Stage:            sess.Stage,
		CanEditCode:      sess.CanEditCode,
		TaskUnlocked:     sess.TaskUnlocked,
		InterviewEnded:   sess.Ended,
		EarlyTermination: sess.EndedEarly,
		MessagesTail:     visibleTail(sess),
	}
	if spoke {
		resp.Assistant = h.voiced(ctx, sessionID, utterance)
	}
	JSON(w, http.StatusOK, resp)
}

// voiced wraps an utterance with synthesized audio when a synthesizer is
// configured. Synthesis failure downgrades the turn to text only.
func (h *InterviewHandler) voiced(ctx context.Context, sessionID, utterance string) *assistantPayload {
	payload := &assistantPayload{Text: utterance}
	if h.tts == nil {
		return payload
	}
	audio, err := h.tts.Synthesize(ctx, utterance)
	if err != nil {
		slog.Warn("Synthesis failed, continuing without audio", "error", err, "session_id", sessionID)
		return payload
	}
	if audio != nil {
		payload.AudioBase64 = audio.Base64
		payload.AudioMime = audio.Mime
	}
	return payload
}

func (h *InterviewHandler) publishTurn(sessionID string, sess *domain.Session, prevStage domain.Stage, wasEnded bool, utterance string, spoke bool) {
	if h.hub == nil {
		return
	}
	if sess.Stage != prevStage {
		h.hub.Publish(sessionID, live.Event{Type: live.EventStage, Stage: string(sess.Stage)})
	}
	if spoke {
		h.hub.Publish(sessionID, live.Event{
			Type:    live.EventUtterance,
			Stage:   string(sess.Stage),
			Speaker: string(domain.SpeakerInterviewer),
			Text:    utterance,
		})
	}
	if sess.Ended && !wasEnded {
		h.hub.Publish(sessionID, live.Event{Type: live.EventEnded, Stage: string(sess.Stage)})
	}
}

// Code records an out-of-band editor update. It never produces an utterance.
func (h *InterviewHandler) Code(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Language == "" {
		req.Language = "python"
	}

	sess, err := h.repo.GetSession(ctx, sessionID)
	if err != nil {
		slog.Error("Failed to load session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		Error(w, http.StatusNotFound, "interview session not found")
		return
	}

	now := h.now()
	sess.CodeText = req.Code
	sess.CodeLanguage = req.Language
	sess.LastCodeChangeAt = &now

	if err := h.repo.AppendCodeSnapshot(ctx, sessionID, req.Code, now); err != nil {
		slog.Error("Failed to record code snapshot", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to record code")
		return
	}
	if err := h.persistSession(ctx, sess); err != nil {
		slog.Error("Failed to save session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to save session")
		return
	}

	if h.hub != nil {
		h.hub.Publish(sessionID, live.Event{Type: live.EventCode, Stage: string(sess.Stage), Text: req.Code})
	}

	JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Execute runs the submitted code in a disposable sandbox.
func (h *InterviewHandler) Execute(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if h.runner == nil {
		Error(w, http.StatusServiceUnavailable, "code execution is not configured")
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Language == "" {
		req.Language = "python"
	}

	result, err := h.runner.Run(r.Context(), req.Language, req.Code)
	if errors.Is(err, runner.ErrUnsupportedLanguage) {
		JSON(w, http.StatusOK, &runner.Result{
			Error: "Language '" + req.Language + "' is not supported yet. Only Python is currently available.",
		})
		return
	}
	if err != nil {
		slog.Error("Code execution failed", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "execution failed")
		return
	}
	JSON(w, http.StatusOK, result)
}

// State returns the current interview state.
func (h *InterviewHandler) State(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	sess, ok := h.loadOrCreateSession(ctx, w, sessionID)
	if !ok {
		return
	}

	JSON(w, http.StatusOK, stateResponse{
		turnResponse: turnResponse{
			SessionID:        sess.SessionID,
			Stage:            sess.Stage,
			CanEditCode:      sess.CanEditCode,
			TaskUnlocked:     sess.TaskUnlocked,
			InterviewEnded:   sess.Ended,
			EarlyTermination: sess.EndedEarly,
			MessagesTail:     visibleTail(sess),
		},
		CodeCurrent:  sess.CodeText,
		CodeLanguage: sess.CodeLanguage,
	})
}

// Debug returns minimal session info for troubleshooting.
func (h *InterviewHandler) Debug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.repo.GetSession(ctx, sessionID)
	if err != nil {
		slog.Error("Debug session lookup failed", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		assignment, err := h.repo.GetAssignmentBySessionID(ctx, sessionID)
		if err != nil {
			slog.Error("Debug assignment lookup failed", "error", err, "session_id", sessionID)
			Error(w, http.StatusInternalServerError, "failed to load assignment")
			return
		}
		JSON(w, http.StatusOK, map[string]interface{}{
			"session_id":       sessionID,
			"has_session":      false,
			"assignment_found": assignment != nil,
		})
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id":       sessionID,
		"has_session":      true,
		"assignment_found": true,
		"stage":            sess.Stage,
		"can_edit_code":    sess.CanEditCode,
		"task_unlocked":    sess.TaskUnlocked,
		"message_count":    len(sess.Transcript),
		"observers":        h.observerCount(sessionID),
	})
}

func (h *InterviewHandler) observerCount(sessionID string) int {
	if hub, ok := h.hub.(*live.Hub); ok {
		return hub.Observers(sessionID)
	}
	return 0
}

// Analysis returns the stored post-interview report.
func (h *InterviewHandler) Analysis(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	report, err := h.repo.GetAnalysis(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load analysis", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load analysis")
		return
	}
	if report == nil {
		Error(w, http.StatusNotFound, "analysis not available")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report)
}

// GetAssignment returns the assignment backing a session, marking it
// started on first access.
func (h *InterviewHandler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	assignment, err := h.repo.GetAssignmentBySessionID(ctx, sessionID)
	if err != nil {
		slog.Error("Failed to load assignment", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load assignment")
		return
	}
	if assignment == nil {
		Error(w, http.StatusNotFound, "interview session not found")
		return
	}

	if assignment.Status == domain.AssignmentSent && assignment.StartedAt == nil {
		if err := h.repo.MarkAssignmentStarted(ctx, assignment.ID, h.now()); err != nil {
			slog.Error("Failed to mark assignment started", "error", err, "assignment_id", assignment.ID)
			Error(w, http.StatusInternalServerError, "failed to update assignment")
			return
		}
		assignment, err = h.repo.GetAssignmentBySessionID(ctx, sessionID)
		if err != nil || assignment == nil {
			Error(w, http.StatusInternalServerError, "failed to reload assignment")
			return
		}
	}

	JSON(w, http.StatusOK, assignment)
}

// Complete marks the session finished and launches the analysis pass.
func (h *InterviewHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	var req completeRequest
	if r.Body != nil {
		// Body is optional.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	assignment, err := h.repo.GetAssignmentBySessionID(ctx, sessionID)
	if err != nil {
		slog.Error("Failed to load assignment", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load assignment")
		return
	}
	if assignment == nil {
		Error(w, http.StatusNotFound, "interview session not found")
		return
	}

	if err := h.repo.MarkAssignmentSubmitted(ctx, assignment.ID, req.CandidateNotes, h.now()); err != nil {
		slog.Error("Failed to mark assignment submitted", "error", err, "assignment_id", assignment.ID)
		Error(w, http.StatusInternalServerError, "failed to update assignment")
		return
	}
	if err := h.repo.UpdateApplicationStatus(ctx, assignment.ApplicationID, domain.ApplicationCompleted); err != nil {
		slog.Error("Failed to update application", "error", err, "application_id", assignment.ApplicationID)
		Error(w, http.StatusInternalServerError, "failed to update application")
		return
	}

	sess, err := h.repo.GetSession(ctx, sessionID)
	if err != nil {
		slog.Warn("Failed to load session for analysis", "error", err, "session_id", sessionID)
	}
	if sess != nil {
		if !sess.Ended {
			sess.Ended = true
			if err := h.persistSession(ctx, sess); err != nil {
				slog.Warn("Failed to mark session ended", "error", err, "session_id", sessionID)
			}
		}
		if h.analyzer != nil {
			h.analyzer.Launch(sess)
		}
		if h.hub != nil {
			h.hub.Publish(sessionID, live.Event{Type: live.EventEnded, Stage: string(sess.Stage)})
		}
	}

	slog.Info("Interview completed", "session_id", sessionID, "assignment_id", assignment.ID)
	JSON(w, http.StatusOK, map[string]string{
		"message":        "Interview completed successfully",
		"assignment_id":  assignment.ID,
		"application_id": assignment.ApplicationID,
		"status":         "completed",
	})
}

// loadOrCreateSession fetches the session, materializing it from the backing
// assignment chain on first contact. A missing assignment is a 404.
func (h *InterviewHandler) loadOrCreateSession(ctx context.Context, w http.ResponseWriter, sessionID string) (*domain.Session, bool) {
	sess, err := h.repo.GetSession(ctx, sessionID)
	if err != nil {
		slog.Error("Failed to load session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return nil, false
	}
	if sess != nil {
		return sess, true
	}

	assignment, err := h.repo.GetAssignmentBySessionID(ctx, sessionID)
	if err != nil {
		slog.Error("Failed to load assignment", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load assignment")
		return nil, false
	}
	if assignment == nil {
		slog.Warn("Assignment not found for session", "session_id", sessionID)
		Error(w, http.StatusNotFound, "assignment for session not found")
		return nil, false
	}

	sess = domain.NewSession(sessionID, assignment, h.defaults, h.now())
	slog.Info("Interview session created",
		"session_id", sessionID,
		"candidate", sess.Candidate.Name,
		"job", sess.Job.Title)
	return sess, true
}

// visibleTail returns the candidate-facing transcript tail. Stored system
// notes never leave the server.
func visibleTail(sess *domain.Session) []messageItem {
	visible := make([]domain.Message, 0, len(sess.Transcript))
	for _, m := range sess.Transcript {
		if m.Speaker == domain.SpeakerSystem {
			continue
		}
		visible = append(visible, m)
	}
	if len(visible) > messagesTailSize {
		visible = visible[len(visible)-messagesTailSize:]
	}

	tail := make([]messageItem, 0, len(visible))
	for _, m := range visible {
		role := "user"
		if m.Speaker == domain.SpeakerInterviewer {
			role = "assistant"
		}
		tail = append(tail, messageItem{Role: role, Text: m.Text, Ts: m.Ts})
	}
	return tail
}
