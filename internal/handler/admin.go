package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/audit"
	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/model"
)

type questionPayload struct {
	Type          string   `json:"type" validate:"required,oneof=multiple_choice true_false descriptive"`
	Text          string   `json:"text" validate:"required"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	CorrectBool   bool     `json:"correct_bool"`
	Explanation   string   `json:"explanation"`
	Marks         float64  `json:"marks" validate:"gte=0"`
}

type createExamRequest struct {
	CourseID           int64             `json:"course_id" validate:"gte=0"`
	Title              string            `json:"title" validate:"required"`
	DurationMinutes    int               `json:"duration_minutes" validate:"required,gt=0"`
	TotalMarks         float64           `json:"total_marks" validate:"required,gt=0"`
	PassingMarks       float64           `json:"passing_marks" validate:"gte=0"`
	NegativeMarking    bool              `json:"negative_marking"`
	NegativeMarkingPct float64           `json:"negative_marking_pct" validate:"gte=0,lte=100"`
	StartTime          time.Time         `json:"start_time" validate:"required"`
	EndTime            time.Time         `json:"end_time" validate:"required"`
	Questions          []questionPayload `json:"questions" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var req createExamRequest
	if !h.decode(w, r, &req) {
		return
	}

	user := model.UserFromContext(r.Context())
	exam := model.Exam{
		CourseID:           req.CourseID,
		Title:              req.Title,
		DurationMinutes:    req.DurationMinutes,
		TotalMarks:         req.TotalMarks,
		PassingMarks:       req.PassingMarks,
		NegativeMarking:    req.NegativeMarking,
		NegativeMarkingPct: req.NegativeMarkingPct,
		StartTime:          req.StartTime,
		EndTime:            req.EndTime,
		CreatedBy:          user.ID,
	}
	for _, q := range req.Questions {
		exam.Questions = append(exam.Questions, model.Question{
			Type:          model.QuestionType(q.Type),
			Text:          q.Text,
			Options:       q.Options,
			CorrectOption: q.CorrectOption,
			CorrectBool:   q.CorrectBool,
			Explanation:   q.Explanation,
			Marks:         q.Marks,
		})
	}

	// Structural validation of correctness representations happens here,
	// at definition time, never at grading time.
	if err := exam.Validate(); err != nil {
		h.writeError(w, err)
		return
	}

	id, err := h.store.CreateExam(exam)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"exam_id": id})
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.store.ListExams()
	if err != nil {
		h.writeError(w, err)
		return
	}

	user := model.UserFromContext(r.Context())
	if user.Role == model.UserRoleStudent {
		// Students see only exams whose scheduling window is open.
		now := time.Now()
		var open []model.Exam
		for _, e := range exams {
			if !now.Before(e.StartTime) && !now.After(e.EndTime) {
				open = append(open, e)
			}
		}
		exams = open
	}
	writeJSON(w, http.StatusOK, map[string]any{"exams": exams})
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	examID, err := paramID(r, "examID")
	if err != nil {
		h.writeError(w, err)
		return
	}

	exam, err := h.store.GetExam(examID)
	if errors.Is(err, sql.ErrNoRows) {
		h.writeError(w, model.ErrNotFound)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	user := model.UserFromContext(r.Context())
	if user.Role == model.UserRoleStudent {
		questions := model.RedactQuestions(exam.Questions)
		exam.Questions = nil
		writeJSON(w, http.StatusOK, map[string]any{"exam": exam, "questions": questions})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exam": exam})
}

type publishRequest struct {
	Published bool `json:"published"`
}

// handlePublishResults flips the publication gate. Evaluation and publication
// are independent: grading can complete long before scores are revealed.
func (h *Handler) handlePublishResults(w http.ResponseWriter, r *http.Request) {
	examID, err := paramID(r, "examID")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req publishRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.store.SetResultsPublished(examID, req.Published); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, model.ErrNotFound)
			return
		}
		h.writeError(w, err)
		return
	}

	user := model.UserFromContext(r.Context())
	detail := "unpublished"
	if req.Published {
		detail = "published"
	}
	h.audit.Record(model.AuditEvent{
		Kind:    audit.KindResultsPublish,
		ActorID: user.ID,
		ExamID:  examID,
		Detail:  detail,
	})
	writeJSON(w, http.StatusOK, map[string]any{"exam_id": examID, "results_published": req.Published})
}
