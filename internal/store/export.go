package store

import (
	"fmt"

	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/model"
)

// ExportExam builds export-ready results for every submission of an exam.
func (s *Store) ExportExam(examID int64) (*model.ExamExport, error) {
	exam, err := s.GetExam(examID)
	if err != nil {
		return nil, fmt.Errorf("get exam %d: %w", examID, err)
	}

	subs, err := s.ListSubmissionsForExam(examID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	export := &model.ExamExport{
		ExamID:       exam.ID,
		Title:        exam.Title,
		TotalMarks:   exam.TotalMarks,
		PassingMarks: exam.PassingMarks,
	}

	for _, sub := range subs {
		user, err := s.GetUserByID(sub.StudentID)
		if err != nil {
			return nil, fmt.Errorf("get user %d: %w", sub.StudentID, err)
		}
		var username, displayName string
		if user != nil {
			username = user.Username
			displayName = user.DisplayName
		}

		answers, err := s.GetAnswers(sub.ID)
		if err != nil {
			return nil, fmt.Errorf("get answers for submission %d: %w", sub.ID, err)
		}

		var results []model.AnswerResult
		for _, a := range answers {
			ar := model.AnswerResult{
				Response:     a.Response,
				IsCorrect:    a.IsCorrect,
				MarksAwarded: a.MarksAwarded,
				Feedback:     a.Feedback,
			}
			if q := exam.QuestionByID(a.QuestionID); q != nil {
				ar.QuestionText = q.Text
				ar.Type = q.Type
				ar.Marks = q.Marks
			}
			results = append(results, ar)
		}

		export.Results = append(export.Results, model.StudentResult{
			StudentID:   sub.StudentID,
			Username:    username,
			DisplayName: displayName,
			Status:      sub.Status,
			StartedAt:   sub.StartedAt,
			SubmittedAt: sub.SubmittedAt,
			Score:       sub.Score,
			Percentage:  sub.Percentage,
			Passed:      sub.Status == model.StatusEvaluated && sub.Score >= exam.PassingMarks,
			Answers:     results,
		})
	}

	return export, nil
}
