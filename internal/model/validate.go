package model

import (
	"fmt"
	"math"
)

// marksEpsilon absorbs float64 rounding when summing fractional per-question
// marks (0.1 + 0.2 must still equal a total of 0.3).
const marksEpsilon = 1e-9

// Validate checks an exam definition for structural soundness. Correctness
// representations are validated here, at definition time, never at grading
// time.
func (e Exam) Validate() error {
	if e.Title == "" {
		return fmt.Errorf("%w: exam title is required", ErrValidation)
	}
	if e.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %d", ErrValidation, e.DurationMinutes)
	}
	if e.TotalMarks <= 0 {
		return fmt.Errorf("%w: total marks must be positive, got %g", ErrValidation, e.TotalMarks)
	}
	if e.PassingMarks < 0 || e.PassingMarks > e.TotalMarks {
		return fmt.Errorf("%w: passing marks %g outside [0, %g]", ErrValidation, e.PassingMarks, e.TotalMarks)
	}
	if !e.EndTime.After(e.StartTime) {
		return fmt.Errorf("%w: window end must be after start", ErrValidation)
	}
	if e.NegativeMarkingPct < 0 || e.NegativeMarkingPct > 100 {
		return fmt.Errorf("%w: negative marking percentage %g outside [0, 100]", ErrValidation, e.NegativeMarkingPct)
	}
	if len(e.Questions) == 0 {
		return fmt.Errorf("%w: exam has no questions", ErrValidation)
	}
	var sum float64
	for i, q := range e.Questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
		sum += q.Marks
	}
	if math.Abs(sum-e.TotalMarks) > marksEpsilon {
		return fmt.Errorf("%w: question marks sum to %g, exam total is %g", ErrValidation, sum, e.TotalMarks)
	}
	return nil
}

// Validate checks that a question's correctness representation is
// structurally valid for its type.
func (q Question) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("%w: question text is required", ErrValidation)
	}
	if q.Marks < 0 {
		return fmt.Errorf("%w: marks must be non-negative, got %g", ErrValidation, q.Marks)
	}
	switch q.Type {
	case QuestionMultipleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: multiple-choice question needs at least 2 options, got %d", ErrValidation, len(q.Options))
		}
		if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
			return fmt.Errorf("%w: correct option %d outside [0, %d)", ErrValidation, q.CorrectOption, len(q.Options))
		}
	case QuestionTrueFalse, QuestionDescriptive:
		if len(q.Options) != 0 {
			return fmt.Errorf("%w: %s question must not carry options", ErrValidation, q.Type)
		}
	default:
		return fmt.Errorf("%w: unknown question type %q", ErrValidation, q.Type)
	}
	return nil
}
