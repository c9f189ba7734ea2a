package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a test-taker.
	UserRoleStudent UserRole = "student"
	// UserRoleGrader may grade descriptive answers and view results.
	UserRoleGrader UserRole = "grader"
	// UserRoleAdmin manages exams, users, and result publication.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session backing a bearer token.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// QuestionType classifies how a question is answered and scored.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionDescriptive    QuestionType = "descriptive"
)

// Objective reports whether answers of this type are scored automatically.
func (t QuestionType) Objective() bool {
	return t == QuestionMultipleChoice || t == QuestionTrueFalse
}

// SubmissionStatus represents the state of a test-taker's attempt.
type SubmissionStatus string

const (
	StatusInProgress SubmissionStatus = "in_progress"
	StatusSubmitted  SubmissionStatus = "submitted"
	StatusEvaluated  SubmissionStatus = "evaluated"
)

// Exam is an immutable-per-publish snapshot of a test: its questions, marks,
// duration, and scheduling window. The session and grading layers consume it
// but never mutate it.
type Exam struct {
	ID                 int64      `json:"id"`
	CourseID           int64      `json:"course_id"`
	Title              string     `json:"title"`
	DurationMinutes    int        `json:"duration_minutes"`
	TotalMarks         float64    `json:"total_marks"`
	PassingMarks       float64    `json:"passing_marks"`
	NegativeMarking    bool       `json:"negative_marking"`
	NegativeMarkingPct float64    `json:"negative_marking_pct"`
	StartTime          time.Time  `json:"start_time"`
	EndTime            time.Time  `json:"end_time"`
	ResultsPublished   bool       `json:"results_published"`
	CreatedBy          int64      `json:"created_by"`
	CreatedAt          time.Time  `json:"created_at"`
	Questions          []Question `json:"questions,omitempty"`
}

// Duration returns the exam length as a time.Duration.
func (e Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Deadline computes the authoritative submit deadline for an attempt started
// at the given server-stamped time.
func (e Exam) Deadline(startedAt time.Time) time.Time {
	return startedAt.Add(e.Duration())
}

// QuestionByID returns the exam question with the given ID, or nil.
func (e Exam) QuestionByID(id int64) *Question {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i]
		}
	}
	return nil
}

// Question is a single exam item, embedded in an Exam definition.
type Question struct {
	ID            int64        `json:"id"`
	ExamID        int64        `json:"exam_id"`
	Position      int          `json:"position"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	Options       []string     `json:"options,omitempty"`
	CorrectOption int          `json:"correct_option,omitempty"`
	CorrectBool   bool         `json:"correct_bool,omitempty"`
	Explanation   string       `json:"explanation,omitempty"`
	Marks         float64      `json:"marks"`
}

// RedactedQuestion is the view of a question handed to a test-taker: the
// answer key and explanation are stripped.
type RedactedQuestion struct {
	ID       int64        `json:"id"`
	Position int          `json:"position"`
	Type     QuestionType `json:"type"`
	Text     string       `json:"text"`
	Options  []string     `json:"options,omitempty"`
	Marks    float64      `json:"marks"`
}

// Redact strips the answer key and explanation from a question.
func (q Question) Redact() RedactedQuestion {
	return RedactedQuestion{
		ID:       q.ID,
		Position: q.Position,
		Type:     q.Type,
		Text:     q.Text,
		Options:  q.Options,
		Marks:    q.Marks,
	}
}

// RedactQuestions strips answer keys from a question list.
func RedactQuestions(qs []Question) []RedactedQuestion {
	out := make([]RedactedQuestion, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.Redact())
	}
	return out
}

// Submission is one test-taker's single attempt record for one exam.
type Submission struct {
	ID          int64            `json:"id"`
	ExamID      int64            `json:"exam_id"`
	StudentID   int64            `json:"student_id"`
	Status      SubmissionStatus `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty"`
	Score       float64          `json:"score"`
	Percentage  float64          `json:"percentage"`
	EvaluatedAt *time.Time       `json:"evaluated_at,omitempty"`
	EvaluatedBy *int64           `json:"evaluated_by,omitempty"`
}

// Answer is one finalized response within a submission. IsCorrect is set for
// objective items only; Feedback, GradedBy, and GradedAt are set by manual
// grading of descriptive items.
type Answer struct {
	ID           int64      `json:"id"`
	SubmissionID int64      `json:"submission_id"`
	QuestionID   int64      `json:"question_id"`
	Response     string     `json:"response"`
	IsCorrect    *bool      `json:"is_correct,omitempty"`
	MarksAwarded float64    `json:"marks_awarded"`
	Feedback     string     `json:"feedback,omitempty"`
	GradedBy     *int64     `json:"graded_by,omitempty"`
	GradedAt     *time.Time `json:"graded_at,omitempty"`
}

// Skipped reports whether the answer was left blank.
func (a Answer) Skipped() bool { return a.Response == "" }

// DraftAnswer is one checkpointed in-progress response. Drafts are mutable
// while the submission is in progress and are overwritten wholesale on each
// checkpoint.
type DraftAnswer struct {
	QuestionID int64  `json:"question_id"`
	Response   string `json:"response"`
}

// AuditEvent is a best-effort record handed to the audit sink. Failures to
// persist one must never fail the primary operation.
type AuditEvent struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	ActorID      int64     `json:"actor_id"`
	ExamID       int64     `json:"exam_id,omitempty"`
	SubmissionID int64     `json:"submission_id,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
