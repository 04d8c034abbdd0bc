package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/interviewd/internal/domain"
	"github.com/ashureev/interviewd/internal/shared"
)

// AdminHandler serves the recruiter-side endpoints that set up the chain
// behind an interview: user, job, application, assignment.
type AdminHandler struct {
	*Handler
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(base *Handler) *AdminHandler {
	return &AdminHandler{Handler: base}
}

// RegisterRoutes registers the admin routes.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/users", h.CreateUser)
		r.Post("/jobs", h.CreateJob)
		r.Post("/applications", h.CreateApplication)
		r.Post("/assignments", h.CreateAssignment)
	})
}

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type createJobRequest struct {
	Title           string   `json:"title"`
	ExperienceLevel string   `json:"experience_level"`
	TechStack       []string `json:"tech_stack"`
	Requirements    []string `json:"requirements"`
}

type createApplicationRequest struct {
	UserID string `json:"user_id"`
	JobID  string `json:"job_id"`
}

type createAssignmentRequest struct {
	ApplicationID    string   `json:"application_id"`
	TaskTitle        string   `json:"task_title"`
	TaskDescription  string   `json:"task_description"`
	TaskRequirements []string `json:"task_requirements"`
}

// CreateUser registers a candidate.
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		Error(w, http.StatusBadRequest, "email is required")
		return
	}

	id, err := shared.NewID("usr")
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to generate id")
		return
	}
	user := &domain.User{ID: id, Name: req.Name, Email: req.Email, CreatedAt: h.nowUTC()}
	if err := h.repo.CreateUser(r.Context(), user); err != nil {
		slog.Error("Failed to create user", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	JSON(w, http.StatusCreated, user)
}

// CreateJob registers a posted position.
func (h *AdminHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		Error(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.ExperienceLevel == "" {
		req.ExperienceLevel = "mid"
	}

	id, err := shared.NewID("job")
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to generate id")
		return
	}
	job := &domain.Job{
		ID:              id,
		Title:           req.Title,
		ExperienceLevel: req.ExperienceLevel,
		TechStack:       req.TechStack,
		Requirements:    req.Requirements,
		CreatedAt:       h.nowUTC(),
	}
	if err := h.repo.CreateJob(r.Context(), job); err != nil {
		slog.Error("Failed to create job", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	JSON(w, http.StatusCreated, job)
}

// CreateApplication links a user to a job.
func (h *AdminHandler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	var req createApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.JobID == "" {
		Error(w, http.StatusBadRequest, "user_id and job_id are required")
		return
	}

	id, err := shared.NewID("app")
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to generate id")
		return
	}
	app := &domain.Application{
		ID:        id,
		UserID:    req.UserID,
		JobID:     req.JobID,
		Status:    domain.ApplicationPending,
		CreatedAt: h.nowUTC(),
	}
	if err := h.repo.CreateApplication(r.Context(), app); err != nil {
		slog.Error("Failed to create application", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create application")
		return
	}
	JSON(w, http.StatusCreated, app)
}

// CreateAssignment issues a technical assignment and mints the opaque
// session id the candidate will interview under.
func (h *AdminHandler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req createAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ApplicationID == "" || req.TaskTitle == "" {
		Error(w, http.StatusBadRequest, "application_id and task_title are required")
		return
	}

	id, err := shared.NewID("asg")
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to generate id")
		return
	}
	sessionID, err := shared.NewID("sess")
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to generate session id")
		return
	}

	assignment := &domain.Assignment{
		ID:               id,
		ApplicationID:    req.ApplicationID,
		SessionID:        sessionID,
		TaskTitle:        req.TaskTitle,
		TaskDescription:  req.TaskDescription,
		TaskRequirements: req.TaskRequirements,
		Status:           domain.AssignmentSent,
		CreatedAt:        h.nowUTC(),
	}
	if err := h.repo.CreateAssignment(r.Context(), assignment); err != nil {
		slog.Error("Failed to create assignment", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create assignment")
		return
	}

	slog.Info("Assignment created", "assignment_id", id, "session_id", sessionID)
	JSON(w, http.StatusCreated, assignment)
}
