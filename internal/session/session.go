// Package session owns the lifecycle of a test-taker's attempt: start or
// resume, periodic answer checkpoints, the authoritative submit, and
// server-driven expiry. Time is enforced from the stored start stamp only;
// client-reported time remaining is advisory.
package session

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/audit"
	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/grading"
	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/keylock"
	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/model"
	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/store"
)

// DefaultGracePeriod absorbs normal network latency on a submit that lands
// just past the nominal deadline. Policy, not invariant; configurable.
const DefaultGracePeriod = 30 * time.Second

// Manager coordinates all submission state transitions. Operations on the
// same submission serialize on a per-submission lock; different submissions
// proceed in parallel.
type Manager struct {
	store  *store.Store
	audit  audit.Sink
	grader *grading.Engine
	locks  *keylock.Map
	grace  time.Duration
	now    func() time.Time
}

func NewManager(s *store.Store, sink audit.Sink, grader *grading.Engine, locks *keylock.Map, grace time.Duration) *Manager {
	if grace < 0 {
		grace = DefaultGracePeriod
	}
	return &Manager{
		store:  s,
		audit:  sink,
		grader: grader,
		locks:  locks,
		grace:  grace,
		now:    time.Now,
	}
}

// StartResult is what a test-taker receives on entering a session: the
// redacted question set, any checkpointed draft, and the server deadline.
type StartResult struct {
	Submission model.Submission         `json:"submission"`
	Questions  []model.RedactedQuestion `json:"questions"`
	Draft      []model.DraftAnswer      `json:"draft,omitempty"`
	Deadline   time.Time                `json:"deadline"`
	Resumed    bool                     `json:"resumed"`
}

// StartOrResume is idempotent: the first call inside the scheduling window
// creates the submission and stamps startedAt; later calls return the same
// submission, the stored draft, and the same deadline recomputed from the
// original stamp, never extended. A finalized submission yields
// ErrAlreadySubmitted with the submission attached so the caller can route
// to the result view.
func (m *Manager) StartOrResume(studentID, examID int64) (*StartResult, error) {
	unlock := m.locks.Lock(keylock.SubmissionKey(examID, studentID))
	defer unlock()

	exam, err := m.getExam(examID)
	if err != nil {
		return nil, err
	}

	sub, err := m.store.GetSubmissionForStudent(examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}

	if sub == nil {
		now := m.now()
		if now.Before(exam.StartTime) {
			return nil, fmt.Errorf("%w: exam opens at %s", model.ErrWindowClosed, exam.StartTime.Format(time.RFC3339))
		}
		if now.After(exam.EndTime) {
			return nil, fmt.Errorf("%w: exam closed at %s", model.ErrWindowClosed, exam.EndTime.Format(time.RFC3339))
		}

		id, err := m.store.CreateSubmission(examID, studentID, now)
		if err != nil {
			return nil, fmt.Errorf("create submission: %w", err)
		}
		created, err := m.store.GetSubmission(id)
		if err != nil {
			return nil, fmt.Errorf("reload submission: %w", err)
		}

		m.audit.Record(model.AuditEvent{
			Kind:         audit.KindSessionStart,
			ActorID:      studentID,
			ExamID:       examID,
			SubmissionID: id,
		})
		slog.Info("session started", "submission_id", id, "exam_id", examID, "student_id", studentID)

		return &StartResult{
			Submission: created,
			Questions:  model.RedactQuestions(exam.Questions),
			Deadline:   exam.Deadline(created.StartedAt),
		}, nil
	}

	if sub.Status != model.StatusInProgress {
		return &StartResult{Submission: *sub}, model.ErrAlreadySubmitted
	}

	deadline := exam.Deadline(sub.StartedAt)
	if !m.now().Before(deadline) {
		// The sweep has not caught this one yet; finalize from the draft
		// so the caller sees a graded result, never an error page.
		if err := m.expireLocked(*sub, exam); err != nil {
			return nil, err
		}
		expired, err := m.store.GetSubmission(sub.ID)
		if err != nil {
			return nil, fmt.Errorf("reload submission: %w", err)
		}
		return &StartResult{Submission: expired}, model.ErrAlreadySubmitted
	}

	draft, err := m.store.GetDraft(sub.ID)
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}

	return &StartResult{
		Submission: *sub,
		Questions:  model.RedactQuestions(exam.Questions),
		Draft:      draft,
		Deadline:   deadline,
		Resumed:    true,
	}, nil
}

// Checkpoint overwrites the stored draft wholesale. Valid only while the
// submission is in progress and before the deadline. A checkpoint arriving
// after finalize performs no mutation and reports ErrAlreadySubmitted so the
// client stops sending.
func (m *Manager) Checkpoint(submissionID int64, draft []model.DraftAnswer) error {
	sub, err := m.getSubmission(submissionID)
	if err != nil {
		return err
	}

	unlock := m.locks.Lock(keylock.SubmissionKey(sub.ExamID, sub.StudentID))
	defer unlock()

	sub, err = m.getSubmission(submissionID)
	if err != nil {
		return err
	}
	if sub.Status != model.StatusInProgress {
		return fmt.Errorf("%w: submission %d", model.ErrAlreadySubmitted, submissionID)
	}

	exam, err := m.getExam(sub.ExamID)
	if err != nil {
		return err
	}
	if !m.now().Before(exam.Deadline(sub.StartedAt)) {
		return fmt.Errorf("%w: checkpoint after deadline", model.ErrWindowExpired)
	}

	for _, d := range draft {
		if exam.QuestionByID(d.QuestionID) == nil {
			return fmt.Errorf("%w: question %d does not belong to exam %d", model.ErrValidation, d.QuestionID, exam.ID)
		}
	}

	if err := m.store.SaveDraft(submissionID, draft); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Finalize is the authoritative submit. Answers missing from the payload fall
// back to the last checkpointed draft, then count as skipped. A call past
// deadline+grace is rejected so a late client cannot extend its own window;
// the sweeper will finalize from the draft instead. Auto-grading runs
// synchronously before return.
func (m *Manager) Finalize(studentID, submissionID int64, answers []model.DraftAnswer) (model.Submission, error) {
	sub, err := m.getSubmission(submissionID)
	if err != nil {
		return model.Submission{}, err
	}

	unlock := m.locks.Lock(keylock.SubmissionKey(sub.ExamID, sub.StudentID))
	defer unlock()

	sub, err = m.getSubmission(submissionID)
	if err != nil {
		return model.Submission{}, err
	}
	// Foreign submissions read as not found, matching the HTTP layer.
	if sub.StudentID != studentID {
		return model.Submission{}, fmt.Errorf("%w: submission %d", model.ErrNotFound, submissionID)
	}
	if sub.Status != model.StatusInProgress {
		return sub, fmt.Errorf("%w: submission %d", model.ErrAlreadySubmitted, submissionID)
	}

	exam, err := m.getExam(sub.ExamID)
	if err != nil {
		return sub, err
	}

	now := m.now()
	if now.After(exam.Deadline(sub.StartedAt).Add(m.grace)) {
		return sub, fmt.Errorf("%w: deadline was %s", model.ErrWindowExpired,
			exam.Deadline(sub.StartedAt).Format(time.RFC3339))
	}

	for _, a := range answers {
		if exam.QuestionByID(a.QuestionID) == nil {
			return sub, fmt.Errorf("%w: question %d does not belong to exam %d", model.ErrValidation, a.QuestionID, exam.ID)
		}
	}

	graded, err := m.finalizeLocked(sub, exam, answers, now, audit.KindSessionSubmit)
	if err != nil {
		return sub, err
	}
	slog.Info("session submitted", "submission_id", submissionID, "score", graded.Score, "status", graded.Status)
	return graded, nil
}

// AutoExpire finalizes an overdue in-progress submission from its last
// checkpointed draft. Always accepted regardless of grace; a second call on
// an already-finalized submission is a no-op.
func (m *Manager) AutoExpire(submissionID int64) error {
	sub, err := m.getSubmission(submissionID)
	if err != nil {
		return err
	}

	unlock := m.locks.Lock(keylock.SubmissionKey(sub.ExamID, sub.StudentID))
	defer unlock()

	sub, err = m.getSubmission(submissionID)
	if err != nil {
		return err
	}
	if sub.Status != model.StatusInProgress {
		return nil
	}

	exam, err := m.getExam(sub.ExamID)
	if err != nil {
		return err
	}
	if m.now().Before(exam.Deadline(sub.StartedAt)) {
		return nil
	}

	return m.expireLocked(sub, exam)
}

// expireLocked finalizes from the draft. Caller holds the submission lock and
// has verified status and deadline.
func (m *Manager) expireLocked(sub model.Submission, exam model.Exam) error {
	draft, err := m.store.GetDraft(sub.ID)
	if err != nil {
		return fmt.Errorf("get draft: %w", err)
	}
	if _, err := m.finalizeLocked(sub, exam, draft, m.now(), audit.KindSessionExpire); err != nil {
		return err
	}
	slog.Info("session auto-expired", "submission_id", sub.ID, "exam_id", exam.ID)
	return nil
}

// finalizeLocked records the answer set, stamps submittedAt, and runs the
// auto-grade pass. The supplied answers win per question; the last draft is
// the tie-break for questions the payload omits; everything else is skipped.
func (m *Manager) finalizeLocked(sub model.Submission, exam model.Exam, answers []model.DraftAnswer, now time.Time, auditKind string) (model.Submission, error) {
	supplied := make(map[int64]string, len(answers))
	for _, a := range answers {
		supplied[a.QuestionID] = a.Response
	}
	if auditKind == audit.KindSessionSubmit {
		draft, err := m.store.GetDraft(sub.ID)
		if err != nil {
			return sub, fmt.Errorf("get draft: %w", err)
		}
		for _, d := range draft {
			if _, ok := supplied[d.QuestionID]; !ok {
				supplied[d.QuestionID] = d.Response
			}
		}
	}

	final := make([]model.Answer, 0, len(exam.Questions))
	for _, q := range exam.Questions {
		final = append(final, model.Answer{
			SubmissionID: sub.ID,
			QuestionID:   q.ID,
			Response:     supplied[q.ID],
		})
	}

	if err := m.store.FinalizeSubmission(sub.ID, final, now); err != nil {
		return sub, fmt.Errorf("finalize submission: %w", err)
	}
	sub, err := m.store.GetSubmission(sub.ID)
	if err != nil {
		return sub, fmt.Errorf("reload submission: %w", err)
	}

	graded, err := m.grader.AutoGrade(sub, exam)
	if err != nil {
		return sub, fmt.Errorf("auto-grade: %w", err)
	}

	m.audit.Record(model.AuditEvent{
		Kind:         auditKind,
		ActorID:      sub.StudentID,
		ExamID:       exam.ID,
		SubmissionID: sub.ID,
		Detail:       fmt.Sprintf("score %g", graded.Score),
	})

	return graded, nil
}

func (m *Manager) getExam(id int64) (model.Exam, error) {
	exam, err := m.store.GetExam(id)
	if errors.Is(err, sql.ErrNoRows) {
		return exam, fmt.Errorf("%w: exam %d", model.ErrNotFound, id)
	}
	if err != nil {
		return exam, fmt.Errorf("get exam %d: %w", id, err)
	}
	return exam, nil
}

func (m *Manager) getSubmission(id int64) (model.Submission, error) {
	sub, err := m.store.GetSubmission(id)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, fmt.Errorf("%w: submission %d", model.ErrNotFound, id)
	}
	if err != nil {
		return sub, fmt.Errorf("get submission %d: %w", id, err)
	}
	return sub, nil
}
