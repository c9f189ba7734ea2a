package model

import "time"

// ExamExport is the top-level JSON structure for exam result export.
type ExamExport struct {
	ExamID       int64           `json:"exam_id"`
	Title        string          `json:"title"`
	TotalMarks   float64         `json:"total_marks"`
	PassingMarks float64         `json:"passing_marks"`
	Results      []StudentResult `json:"results"`
}

// StudentResult holds one test-taker's submission data for export.
type StudentResult struct {
	StudentID   int64            `json:"student_id"`
	Username    string           `json:"username"`
	DisplayName string           `json:"display_name"`
	Status      SubmissionStatus `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty"`
	Score       float64          `json:"score"`
	Percentage  float64          `json:"percentage"`
	Passed      bool             `json:"passed"`
	Answers     []AnswerResult   `json:"answers"`
}

// AnswerResult holds per-question data for export.
type AnswerResult struct {
	QuestionText string       `json:"question_text"`
	Type         QuestionType `json:"type"`
	Marks        float64      `json:"marks"`
	Response     string       `json:"response"`
	IsCorrect    *bool        `json:"is_correct,omitempty"`
	MarksAwarded float64      `json:"marks_awarded"`
	Feedback     string       `json:"feedback,omitempty"`
}
