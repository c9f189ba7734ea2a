// Package grading scores finalized submissions: objective items
// automatically, descriptive items through human graders, with the aggregate
// score recomputed from scratch on every grading mutation.
package grading

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/audit"
	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/keylock"
	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/model"
	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/store"
)

// Engine owns the two-phase scoring pipeline. It mutates submissions but does
// not own their lifecycle; the session manager does.
type Engine struct {
	store *store.Store
	audit audit.Sink
	locks *keylock.Map
	now   func() time.Time
}

func NewEngine(s *store.Store, sink audit.Sink, locks *keylock.Map) *Engine {
	return &Engine{store: s, audit: sink, locks: locks, now: time.Now}
}

// AutoGrade scores every objective answer of a just-finalized submission,
// leaves descriptive answers for manual review, and closes the submission out
// immediately when nothing needs a human. The caller holds the submission
// lock.
func (g *Engine) AutoGrade(sub model.Submission, exam model.Exam) (model.Submission, error) {
	answers, err := g.store.GetAnswers(sub.ID)
	if err != nil {
		return sub, fmt.Errorf("get answers: %w", err)
	}

	var score float64
	for _, a := range answers {
		q := exam.QuestionByID(a.QuestionID)
		if q == nil || !q.Type.Objective() {
			continue
		}
		correct := responseCorrect(*q, a.Response)
		marks := 0.0
		switch {
		case correct:
			marks = q.Marks
		case exam.NegativeMarking && !a.Skipped():
			// Penalty applies only to attempted, incorrect items.
			marks = -q.Marks * exam.NegativeMarkingPct / 100
		}
		if err := g.store.SetAutoGrade(a.ID, correct, marks); err != nil {
			return sub, fmt.Errorf("score answer %d: %w", a.ID, err)
		}
		score += marks
	}

	pct := percentage(score, exam.TotalMarks)
	if err := g.store.UpdateScore(sub.ID, score, pct); err != nil {
		return sub, fmt.Errorf("update score: %w", err)
	}

	answers, err = g.store.GetAnswers(sub.ID)
	if err != nil {
		return sub, fmt.Errorf("reload answers: %w", err)
	}
	if !needsManualReview(exam, answers) {
		if err := g.store.SetEvaluated(sub.ID, nil, g.now()); err != nil {
			return sub, fmt.Errorf("mark evaluated: %w", err)
		}
	}

	return g.store.GetSubmission(sub.ID)
}

// ManualGrade overwrites one answer's human-assigned marks and feedback,
// re-sums the whole submission, and transitions it to evaluated once every
// descriptive answer has a grader assigned.
func (g *Engine) ManualGrade(graderID, submissionID, questionID int64, marks float64, feedback string) (model.Submission, error) {
	sub, err := g.getSubmission(submissionID)
	if err != nil {
		return model.Submission{}, err
	}

	unlock := g.locks.Lock(keylock.SubmissionKey(sub.ExamID, sub.StudentID))
	defer unlock()

	sub, err = g.getSubmission(submissionID)
	if err != nil {
		return model.Submission{}, err
	}
	if sub.Status == model.StatusInProgress {
		return sub, fmt.Errorf("%w: submission %d is not finalized yet", model.ErrValidation, submissionID)
	}

	exam, err := g.store.GetExam(sub.ExamID)
	if err != nil {
		return sub, fmt.Errorf("get exam %d: %w", sub.ExamID, err)
	}
	q := exam.QuestionByID(questionID)
	if q == nil {
		return sub, fmt.Errorf("%w: question %d in exam %d", model.ErrNotFound, questionID, exam.ID)
	}
	// Never clamp: an out-of-range grade is a grader mistake to surface.
	if marks < 0 || marks > q.Marks {
		return sub, fmt.Errorf("%w: got %g, valid range is [0, %g]", model.ErrOutOfRange, marks, q.Marks)
	}

	ans, err := g.store.GetAnswer(submissionID, questionID)
	if err != nil {
		return sub, fmt.Errorf("get answer: %w", err)
	}
	if ans == nil {
		return sub, fmt.Errorf("%w: answer for question %d in submission %d", model.ErrNotFound, questionID, submissionID)
	}

	now := g.now()
	if err := g.store.SetManualGrade(ans.ID, marks, feedback, graderID, now); err != nil {
		return sub, fmt.Errorf("set grade: %w", err)
	}

	// Recompute by re-summing every answer rather than adjusting
	// incrementally, so repeated re-grades cannot drift.
	answers, err := g.store.GetAnswers(submissionID)
	if err != nil {
		return sub, fmt.Errorf("reload answers: %w", err)
	}
	var score float64
	for _, a := range answers {
		score += a.MarksAwarded
	}
	if err := g.store.UpdateScore(submissionID, score, percentage(score, exam.TotalMarks)); err != nil {
		return sub, fmt.Errorf("update score: %w", err)
	}

	if !needsManualReview(exam, answers) {
		if err := g.store.SetEvaluated(submissionID, &graderID, now); err != nil {
			return sub, fmt.Errorf("mark evaluated: %w", err)
		}
	}

	g.audit.Record(model.AuditEvent{
		Kind:         audit.KindManualGrade,
		ActorID:      graderID,
		ExamID:       exam.ID,
		SubmissionID: submissionID,
		Detail:       fmt.Sprintf("question %d: %g marks", questionID, marks),
	})

	return g.getSubmission(submissionID)
}

// BulkItem is the outcome of one submission within a bulk grade call.
type BulkItem struct {
	SubmissionID int64                  `json:"submission_id"`
	OK           bool                   `json:"ok"`
	Error        string                 `json:"error,omitempty"`
	Score        float64                `json:"score,omitempty"`
	Status       model.SubmissionStatus `json:"status,omitempty"`
}

// BulkManualGrade applies the same marks and feedback for one question across
// many submissions. Outcomes are collected independently; a failure never
// rolls back grades already applied.
func (g *Engine) BulkManualGrade(graderID, questionID int64, marks float64, feedback string, submissionIDs []int64) []BulkItem {
	items := make([]BulkItem, 0, len(submissionIDs))
	for _, id := range submissionIDs {
		sub, err := g.ManualGrade(graderID, id, questionID, marks, feedback)
		item := BulkItem{SubmissionID: id}
		if err != nil {
			item.Error = err.Error()
		} else {
			item.OK = true
			item.Score = sub.Score
			item.Status = sub.Status
		}
		items = append(items, item)
	}
	return items
}

// ExamStats is a read-only aggregate over all submissions for an exam.
type ExamStats struct {
	ExamID        int64   `json:"exam_id"`
	Total         int     `json:"total"`
	InProgress    int     `json:"in_progress"`
	Submitted     int     `json:"submitted"`
	Evaluated     int     `json:"evaluated"`
	PendingReview int     `json:"pending_review"`
	MeanScore     float64 `json:"mean_score"`
	MinScore      float64 `json:"min_score"`
	MaxScore      float64 `json:"max_score"`
	PassRate      float64 `json:"pass_rate"`
}

// Stats aggregates submission counts and evaluated-score statistics for an
// exam. Pure read, no side effects.
func (g *Engine) Stats(examID int64) (*ExamStats, error) {
	exam, err := g.store.GetExam(examID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: exam %d", model.ErrNotFound, examID)
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	subs, err := g.store.ListSubmissionsForExam(examID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	stats := &ExamStats{ExamID: examID, Total: len(subs)}
	var sum float64
	var passed int
	for _, sub := range subs {
		switch sub.Status {
		case model.StatusInProgress:
			stats.InProgress++
		case model.StatusSubmitted:
			// A submission stays submitted only while a descriptive
			// answer awaits a grader.
			stats.Submitted++
			stats.PendingReview++
		case model.StatusEvaluated:
			stats.Evaluated++
			sum += sub.Score
			if sub.Score >= exam.PassingMarks {
				passed++
			}
			if stats.Evaluated == 1 || sub.Score < stats.MinScore {
				stats.MinScore = sub.Score
			}
			if sub.Score > stats.MaxScore {
				stats.MaxScore = sub.Score
			}
		}
	}
	if stats.Evaluated > 0 {
		stats.MeanScore = sum / float64(stats.Evaluated)
		stats.PassRate = float64(passed) / float64(stats.Evaluated)
	}
	return stats, nil
}

func (g *Engine) getSubmission(id int64) (model.Submission, error) {
	sub, err := g.store.GetSubmission(id)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, fmt.Errorf("%w: submission %d", model.ErrNotFound, id)
	}
	return sub, err
}

// needsManualReview is the derived predicate for the two-phase fork: any
// descriptive answer without a grader assigned keeps the submission open.
// Recomputed on every grading mutation, never cached.
func needsManualReview(exam model.Exam, answers []model.Answer) bool {
	for _, a := range answers {
		q := exam.QuestionByID(a.QuestionID)
		if q != nil && q.Type == model.QuestionDescriptive && a.GradedBy == nil {
			return true
		}
	}
	return false
}

func percentage(score, totalMarks float64) float64 {
	if totalMarks <= 0 {
		return 0
	}
	return 100 * score / totalMarks
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// responseCorrect compares a normalized response against the question's
// correct-answer representation. Multiple-choice responses are the selected
// option index; true/false responses parse as booleans.
func responseCorrect(q model.Question, response string) bool {
	switch q.Type {
	case model.QuestionMultipleChoice:
		idx, err := strconv.Atoi(normalize(response))
		return err == nil && idx == q.CorrectOption
	case model.QuestionTrueFalse:
		v, err := strconv.ParseBool(normalize(response))
		return err == nil && v == q.CorrectBool
	}
	return false
}
