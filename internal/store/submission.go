package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/model"
)

// CreateSubmission creates an in-progress submission, stamping started_at
// exactly once. The UNIQUE (exam_id, student_id) constraint guarantees one
// submission per pair even under a start race.
func (s *Store) CreateSubmission(examID, studentID int64, startedAt time.Time) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO submissions (exam_id, student_id, status, started_at) VALUES (?, ?, 'in_progress', ?)`,
		examID, studentID, startedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetSubmission returns a submission by ID.
func (s *Store) GetSubmission(id int64) (model.Submission, error) {
	var sub model.Submission
	err := s.db.QueryRow(
		`SELECT id, exam_id, student_id, status, started_at, submitted_at, score, percentage, evaluated_at, evaluated_by
		 FROM submissions WHERE id = ?`, id,
	).Scan(&sub.ID, &sub.ExamID, &sub.StudentID, &sub.Status, &sub.StartedAt, &sub.SubmittedAt,
		&sub.Score, &sub.Percentage, &sub.EvaluatedAt, &sub.EvaluatedBy)
	return sub, err
}

// GetSubmissionForStudent returns the submission for a (student, exam) pair,
// or nil if none exists yet.
func (s *Store) GetSubmissionForStudent(examID, studentID int64) (*model.Submission, error) {
	var sub model.Submission
	err := s.db.QueryRow(
		`SELECT id, exam_id, student_id, status, started_at, submitted_at, score, percentage, evaluated_at, evaluated_by
		 FROM submissions WHERE exam_id = ? AND student_id = ?`, examID, studentID,
	).Scan(&sub.ID, &sub.ExamID, &sub.StudentID, &sub.Status, &sub.StartedAt, &sub.SubmittedAt,
		&sub.Score, &sub.Percentage, &sub.EvaluatedAt, &sub.EvaluatedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListSubmissionsForExam returns all submissions for an exam.
func (s *Store) ListSubmissionsForExam(examID int64) ([]model.Submission, error) {
	rows, err := s.db.Query(
		`SELECT id, exam_id, student_id, status, started_at, submitted_at, score, percentage, evaluated_at, evaluated_by
		 FROM submissions WHERE exam_id = ? ORDER BY id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(&sub.ID, &sub.ExamID, &sub.StudentID, &sub.Status, &sub.StartedAt, &sub.SubmittedAt,
			&sub.Score, &sub.Percentage, &sub.EvaluatedAt, &sub.EvaluatedBy); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// InProgressRef pairs an in-progress submission with its deadline inputs so
// the sweeper can compute deadlines in one place.
type InProgressRef struct {
	SubmissionID    int64
	StartedAt       time.Time
	DurationMinutes int
}

// ListInProgress returns all in-progress submissions with the exam duration
// needed to compute each deadline.
func (s *Store) ListInProgress() ([]InProgressRef, error) {
	rows, err := s.db.Query(
		`SELECT s.id, s.started_at, e.duration_minutes
		 FROM submissions s JOIN exams e ON e.id = s.exam_id
		 WHERE s.status = 'in_progress' ORDER BY s.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []InProgressRef
	for rows.Next() {
		var r InProgressRef
		if err := rows.Scan(&r.SubmissionID, &r.StartedAt, &r.DurationMinutes); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// SetSubmitted transitions a submission to submitted and stamps submitted_at.
func (s *Store) SetSubmitted(id int64, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE submissions SET status = 'submitted', submitted_at = ? WHERE id = ?`, at, id,
	)
	return err
}

// SetEvaluated transitions a submission to evaluated. by is nil when the
// auto-grade pass closed the submission without human involvement.
func (s *Store) SetEvaluated(id int64, by *int64, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE submissions SET status = 'evaluated', evaluated_at = ?, evaluated_by = ? WHERE id = ?`,
		at, by, id,
	)
	return err
}

// UpdateScore writes the recomputed aggregate score and percentage.
func (s *Store) UpdateScore(id int64, score, percentage float64) error {
	_, err := s.db.Exec(
		`UPDATE submissions SET score = ?, percentage = ? WHERE id = ?`, score, percentage, id,
	)
	return err
}

// SaveDraft overwrites the checkpointed draft for a submission wholesale,
// last writer wins.
func (s *Store) SaveDraft(submissionID int64, draft []model.DraftAnswer) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO drafts (submission_id, answers, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(submission_id) DO UPDATE SET answers = ?, updated_at = ?`,
		submissionID, string(data), time.Now(), string(data), time.Now(),
	)
	return err
}

// GetDraft returns the last checkpointed draft, or nil if none was saved.
func (s *Store) GetDraft(submissionID int64) ([]model.DraftAnswer, error) {
	var data string
	err := s.db.QueryRow(`SELECT answers FROM drafts WHERE submission_id = ?`, submissionID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var draft []model.DraftAnswer
	if err := json.Unmarshal([]byte(data), &draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// FinalizeSubmission records the answer set and the submitted transition in
// one transaction, so a crash between the two writes can never leave answer
// rows behind on an in-progress submission. A retry replaces whatever rows an
// earlier partial attempt committed.
func (s *Store) FinalizeSubmission(id int64, answers []model.Answer, at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM answers WHERE submission_id = ?`, id); err != nil {
		return err
	}
	for _, a := range answers {
		_, err := tx.Exec(
			`INSERT INTO answers (submission_id, question_id, response, marks_awarded) VALUES (?, ?, ?, 0)`,
			id, a.QuestionID, a.Response,
		)
		if err != nil {
			return err
		}
	}
	if _, err := tx.Exec(
		`UPDATE submissions SET status = 'submitted', submitted_at = ? WHERE id = ?`, at, id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertAnswers records the finalized answer set in one transaction.
func (s *Store) InsertAnswers(submissionID int64, answers []model.Answer) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range answers {
		_, err := tx.Exec(
			`INSERT INTO answers (submission_id, question_id, response, marks_awarded) VALUES (?, ?, ?, 0)`,
			submissionID, a.QuestionID, a.Response,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetAnswers returns the finalized answers for a submission.
func (s *Store) GetAnswers(submissionID int64) ([]model.Answer, error) {
	rows, err := s.db.Query(
		`SELECT id, submission_id, question_id, response, is_correct, marks_awarded, feedback, graded_by, graded_at
		 FROM answers WHERE submission_id = ? ORDER BY id`, submissionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.QuestionID, &a.Response, &a.IsCorrect,
			&a.MarksAwarded, &a.Feedback, &a.GradedBy, &a.GradedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// GetAnswer returns one answer by (submission, question), or nil.
func (s *Store) GetAnswer(submissionID, questionID int64) (*model.Answer, error) {
	var a model.Answer
	err := s.db.QueryRow(
		`SELECT id, submission_id, question_id, response, is_correct, marks_awarded, feedback, graded_by, graded_at
		 FROM answers WHERE submission_id = ? AND question_id = ?`, submissionID, questionID,
	).Scan(&a.ID, &a.SubmissionID, &a.QuestionID, &a.Response, &a.IsCorrect,
		&a.MarksAwarded, &a.Feedback, &a.GradedBy, &a.GradedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SetAutoGrade writes the objective scoring outcome for one answer.
func (s *Store) SetAutoGrade(answerID int64, isCorrect bool, marksAwarded float64) error {
	_, err := s.db.Exec(
		`UPDATE answers SET is_correct = ?, marks_awarded = ? WHERE id = ?`,
		isCorrect, marksAwarded, answerID,
	)
	return err
}

// SetManualGrade overwrites the human-assigned grade for one answer.
func (s *Store) SetManualGrade(answerID int64, marksAwarded float64, feedback string, gradedBy int64, gradedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE answers SET marks_awarded = ?, feedback = ?, graded_by = ?, graded_at = ? WHERE id = ?`,
		marksAwarded, feedback, gradedBy, gradedAt, answerID,
	)
	return err
}
