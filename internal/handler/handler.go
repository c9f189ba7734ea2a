package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/audit"
	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/grading"
	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/model"
	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/session"
	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	sessions *session.Manager
	grading  *grading.Engine
	assist   *grading.AssistClient // nil when no LLM endpoint is configured
	audit    audit.Sink
	validate *validator.Validate
}

// New creates a new Handler.
func New(s *store.Store, sm *session.Manager, g *grading.Engine, assist *grading.AssistClient, sink audit.Sink) *Handler {
	return &Handler{
		store:    s,
		sessions: sm,
		grading:  g,
		assist:   assist,
		audit:    sink,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/api/logout", h.handleLogout)

		r.Route("/api/exams", func(r chi.Router) {
			r.Get("/", h.handleListExams)
			r.Get("/{examID}", h.handleGetExam)
			r.With(requireRole(model.UserRoleAdmin)).Post("/", h.handleCreateExam)
			r.With(requireRole(model.UserRoleAdmin, model.UserRoleGrader)).Post("/{examID}/publish", h.handlePublishResults)
			r.With(requireRole(model.UserRoleAdmin, model.UserRoleGrader)).Get("/{examID}/stats", h.handleStats)
			r.With(requireRole(model.UserRoleAdmin, model.UserRoleGrader)).Post("/{examID}/bulk-grade", h.handleBulkGrade)
		})

		r.Route("/api/sessions", func(r chi.Router) {
			r.With(requireRole(model.UserRoleStudent)).Post("/start", h.handleStart)
			r.With(requireRole(model.UserRoleStudent)).Patch("/{submissionID}/checkpoint", h.handleCheckpoint)
			r.With(requireRole(model.UserRoleStudent)).Post("/{submissionID}/submit", h.handleSubmit)
			r.With(requireRole(model.UserRoleStudent)).Post("/{submissionID}/telemetry", h.handleTelemetry)
			r.Get("/{submissionID}/result", h.handleResult)
			r.With(requireRole(model.UserRoleAdmin, model.UserRoleGrader)).Post("/{submissionID}/grade", h.handleManualGrade)
			r.With(requireRole(model.UserRoleAdmin, model.UserRoleGrader)).Post("/{submissionID}/suggest", h.handleSuggest)
		})
	})
}

type startRequest struct {
	ExamID int64 `json:"exam_id" validate:"required,gt=0"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var req startRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.sessions.StartOrResume(user.ID, req.ExamID)
	if errors.Is(err, model.ErrAlreadySubmitted) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":         "already_submitted",
			"submission_id": res.Submission.ID,
			"status":        res.Submission.Status,
		})
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type draftAnswerPayload struct {
	QuestionID int64  `json:"question_id" validate:"required,gt=0"`
	Response   string `json:"response"`
}

type checkpointRequest struct {
	DraftAnswers []draftAnswerPayload `json:"draft_answers" validate:"required,dive"`
}

func (h *Handler) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.ownSubmission(w, r)
	if !ok {
		return
	}

	var req checkpointRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.sessions.Checkpoint(sub.ID, toDraft(req.DraftAnswers))
	if errors.Is(err, model.ErrAlreadySubmitted) {
		// Late or duplicate checkpoint after submit: nothing was mutated,
		// signal the client to stop sending.
		writeJSON(w, http.StatusGone, map[string]any{
			"error":  "already_submitted",
			"status": sub.Status,
		})
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": true})
}

type submitRequest struct {
	Answers []draftAnswerPayload `json:"answers" validate:"dive"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.ownSubmission(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if !h.decode(w, r, &req) {
		return
	}

	user := model.UserFromContext(r.Context())
	graded, err := h.sessions.Finalize(user.ID, sub.ID, toDraft(req.Answers))
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := map[string]any{
		"submission_id": graded.ID,
		"status":        graded.Status,
		"result":        "pending",
	}
	if graded.Status == model.StatusEvaluated {
		resp["result"] = "scored"
		resp["score"] = graded.Score
		resp["percentage"] = graded.Percentage
	}
	writeJSON(w, http.StatusOK, resp)
}

type telemetryRequest struct {
	Kind   string `json:"kind" validate:"required,max=64"`
	Detail string `json:"detail" validate:"max=1024"`
}

// handleTelemetry accepts advisory proctoring events (tab switch, fullscreen
// exit, reconnect). They are recorded for instructors and never affect
// session state.
func (h *Handler) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.ownSubmission(w, r)
	if !ok {
		return
	}

	var req telemetryRequest
	if !h.decode(w, r, &req) {
		return
	}

	user := model.UserFromContext(r.Context())
	h.audit.Record(model.AuditEvent{
		Kind:         audit.KindTelemetry,
		ActorID:      user.ID,
		ExamID:       sub.ExamID,
		SubmissionID: sub.ID,
		Detail:       req.Kind + ": " + req.Detail,
	})
	w.WriteHeader(http.StatusAccepted)
}

type breakdownItem struct {
	QuestionID   int64              `json:"question_id"`
	Text         string             `json:"text"`
	Type         model.QuestionType `json:"type"`
	Marks        float64            `json:"marks"`
	Response     string             `json:"response"`
	IsCorrect    *bool              `json:"is_correct,omitempty"`
	MarksAwarded float64            `json:"marks_awarded"`
	Feedback     string             `json:"feedback,omitempty"`
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	submissionID, err := paramID(r, "submissionID")
	if err != nil {
		h.writeError(w, err)
		return
	}

	sub, err := h.store.GetSubmission(submissionID)
	if errors.Is(err, sql.ErrNoRows) {
		h.writeError(w, model.ErrNotFound)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	user := model.UserFromContext(r.Context())
	isOwner := user.Role == model.UserRoleStudent && sub.StudentID == user.ID
	isStaff := user.Role == model.UserRoleAdmin || user.Role == model.UserRoleGrader
	if !isOwner && !isStaff {
		h.writeError(w, model.ErrNotFound)
		return
	}

	// Realize the derived expired state so a test-taker reconnecting after
	// the deadline sees a graded result, not an error.
	if sub.Status == model.StatusInProgress {
		if err := h.sessions.AutoExpire(sub.ID); err != nil {
			h.writeError(w, err)
			return
		}
		if sub, err = h.store.GetSubmission(sub.ID); err != nil {
			h.writeError(w, err)
			return
		}
	}

	exam, err := h.store.GetExam(sub.ExamID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Publication gate: while unset, the owner sees only a pending marker,
	// even when their submission is already evaluated.
	visible := isStaff || (sub.Status == model.StatusEvaluated && exam.ResultsPublished)
	if !visible {
		writeJSON(w, http.StatusOK, map[string]any{
			"submission_id": sub.ID,
			"status":        sub.Status,
			"result":        "pending",
		})
		return
	}

	answers, err := h.store.GetAnswers(sub.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var breakdown []breakdownItem
	for _, a := range answers {
		item := breakdownItem{
			QuestionID:   a.QuestionID,
			Response:     a.Response,
			IsCorrect:    a.IsCorrect,
			MarksAwarded: a.MarksAwarded,
			Feedback:     a.Feedback,
		}
		if q := exam.QuestionByID(a.QuestionID); q != nil {
			item.Text = q.Text
			item.Type = q.Type
			item.Marks = q.Marks
		}
		breakdown = append(breakdown, item)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"submission_id": sub.ID,
		"status":        sub.Status,
		"result":        "scored",
		"score":         sub.Score,
		"percentage":    sub.Percentage,
		"passed":        sub.Status == model.StatusEvaluated && sub.Score >= exam.PassingMarks,
		"breakdown":     breakdown,
	})
}

type manualGradeRequest struct {
	QuestionID   int64   `json:"question_id" validate:"required,gt=0"`
	MarksAwarded float64 `json:"marks_awarded" validate:"gte=0"`
	Feedback     string  `json:"feedback" validate:"max=4096"`
}

func (h *Handler) handleManualGrade(w http.ResponseWriter, r *http.Request) {
	submissionID, err := paramID(r, "submissionID")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req manualGradeRequest
	if !h.decode(w, r, &req) {
		return
	}

	user := model.UserFromContext(r.Context())
	sub, err := h.grading.ManualGrade(user.ID, submissionID, req.QuestionID, req.MarksAwarded, req.Feedback)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"submission_id": sub.ID,
		"score":         sub.Score,
		"percentage":    sub.Percentage,
		"status":        sub.Status,
	})
}

type bulkGradeRequest struct {
	QuestionID    int64   `json:"question_id" validate:"required,gt=0"`
	MarksAwarded  float64 `json:"marks_awarded" validate:"gte=0"`
	Feedback      string  `json:"feedback" validate:"max=4096"`
	SubmissionIDs []int64 `json:"submission_ids" validate:"required,min=1,dive,gt=0"`
}

func (h *Handler) handleBulkGrade(w http.ResponseWriter, r *http.Request) {
	var req bulkGradeRequest
	if !h.decode(w, r, &req) {
		return
	}

	user := model.UserFromContext(r.Context())
	items := h.grading.BulkManualGrade(user.ID, req.QuestionID, req.MarksAwarded, req.Feedback, req.SubmissionIDs)
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	examID, err := paramID(r, "examID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	stats, err := h.grading.Stats(examID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type suggestRequest struct {
	QuestionID int64 `json:"question_id" validate:"required,gt=0"`
}

func (h *Handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if h.assist == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":   "assist_unavailable",
			"message": "no LLM endpoint configured",
		})
		return
	}

	submissionID, err := paramID(r, "submissionID")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req suggestRequest
	if !h.decode(w, r, &req) {
		return
	}

	sub, err := h.store.GetSubmission(submissionID)
	if errors.Is(err, sql.ErrNoRows) {
		h.writeError(w, model.ErrNotFound)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	if sub.Status == model.StatusInProgress {
		h.writeError(w, model.ErrValidation)
		return
	}

	exam, err := h.store.GetExam(sub.ExamID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	q := exam.QuestionByID(req.QuestionID)
	if q == nil {
		h.writeError(w, model.ErrNotFound)
		return
	}
	if q.Type != model.QuestionDescriptive {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "validation_error",
			"message": "suggestions apply to descriptive questions only",
		})
		return
	}

	ans, err := h.store.GetAnswer(submissionID, req.QuestionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if ans == nil {
		h.writeError(w, model.ErrNotFound)
		return
	}

	suggestion, err := h.assist.SuggestGrade(r.Context(), *q, ans.Response)
	if err != nil {
		slog.Error("grade suggestion failed", "submission_id", submissionID, "question_id", req.QuestionID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   "assist_failed",
			"message": "LLM suggestion failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

// ownSubmission resolves the submission route param and verifies the caller
// owns it. Foreign submissions read as not found.
func (h *Handler) ownSubmission(w http.ResponseWriter, r *http.Request) (model.Submission, bool) {
	submissionID, err := paramID(r, "submissionID")
	if err != nil {
		h.writeError(w, err)
		return model.Submission{}, false
	}
	sub, err := h.store.GetSubmission(submissionID)
	if errors.Is(err, sql.ErrNoRows) {
		h.writeError(w, model.ErrNotFound)
		return model.Submission{}, false
	}
	if err != nil {
		h.writeError(w, err)
		return model.Submission{}, false
	}
	user := model.UserFromContext(r.Context())
	if sub.StudentID != user.ID {
		h.writeError(w, model.ErrNotFound)
		return model.Submission{}, false
	}
	return sub, true
}

// decode parses and validates a JSON request body. On failure it writes a
// validation error response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "validation_error",
			"message": "malformed JSON body",
		})
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "validation_error",
			"message": err.Error(),
		})
		return false
	}
	return true
}

func toDraft(payload []draftAnswerPayload) []model.DraftAnswer {
	out := make([]model.DraftAnswer, 0, len(payload))
	for _, p := range payload {
		out = append(out, model.DraftAnswer{QuestionID: p.QuestionID, Response: p.Response})
	}
	return out
}

func paramID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.ErrValidation
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError maps the service error taxonomy onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var status int
	var code string
	switch {
	case errors.Is(err, model.ErrValidation):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, model.ErrOutOfRange):
		status, code = http.StatusBadRequest, "out_of_range"
	case errors.Is(err, model.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrAlreadySubmitted):
		status, code = http.StatusConflict, "already_submitted"
	case errors.Is(err, model.ErrWindowClosed):
		status, code = http.StatusForbidden, "window_closed"
	case errors.Is(err, model.ErrWindowExpired):
		status, code = http.StatusForbidden, "window_expired"
	default:
		slog.Error("internal error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "internal",
			"message": "internal error",
		})
		return
	}
	writeJSON(w, status, map[string]any{"error": code, "message": err.Error()})
}
