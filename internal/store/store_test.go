package store

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestExam(t *testing.T, s *Store) int64 {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	id, err := s.CreateExam(model.Exam{
		CourseID:        1,
		Title:           "Go fundamentals",
		DurationMinutes: 60,
		TotalMarks:      15,
		PassingMarks:    8,
		StartTime:       now.Add(-time.Hour),
		EndTime:         now.Add(time.Hour),
		CreatedBy:       1,
		Questions: []model.Question{
			{Position: 1, Type: model.QuestionMultipleChoice, Text: "What declares a variable?", Options: []string{"var", "let", "def"}, CorrectOption: 0, Marks: 5},
			{Position: 2, Type: model.QuestionTrueFalse, Text: "Goroutines are OS threads.", CorrectBool: false, Marks: 5},
			{Position: 3, Type: model.QuestionDescriptive, Text: "Explain channels.", Marks: 5},
		},
	})
	if err != nil {
		t.Fatalf("insertTestExam: %v", err)
	}
	return id
}

func TestExamCRUD(t *testing.T) {
	s := newTestStore(t)

	list, err := s.ListExams()
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	id := insertTestExam(t, s)
	e, err := s.GetExam(id)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if e.Title != "Go fundamentals" {
		t.Errorf("expected title 'Go fundamentals', got %q", e.Title)
	}
	if len(e.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(e.Questions))
	}
	// Questions come back in position order with options intact.
	if e.Questions[0].Type != model.QuestionMultipleChoice {
		t.Errorf("expected first question multiple_choice, got %q", e.Questions[0].Type)
	}
	if len(e.Questions[0].Options) != 3 || e.Questions[0].Options[0] != "var" {
		t.Errorf("options not persisted: %v", e.Questions[0].Options)
	}
	if e.Questions[1].CorrectBool {
		t.Error("expected CorrectBool false for true_false question")
	}
	if e.Questions[2].Type != model.QuestionDescriptive {
		t.Errorf("expected third question descriptive, got %q", e.Questions[2].Type)
	}

	// Not found.
	_, err = s.GetExam(9999)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected ErrNoRows, got %v", err)
	}

	insertTestExam(t, s)
	list, err = s.ListExams()
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 exams, got %d", len(list))
	}
}

func TestResultsPublishedFlag(t *testing.T) {
	s := newTestStore(t)
	id := insertTestExam(t, s)

	e, _ := s.GetExam(id)
	if e.ResultsPublished {
		t.Fatal("new exam should not have results published")
	}

	if err := s.SetResultsPublished(id, true); err != nil {
		t.Fatalf("SetResultsPublished: %v", err)
	}
	e, _ = s.GetExam(id)
	if !e.ResultsPublished {
		t.Error("expected results published after set")
	}

	if err := s.SetResultsPublished(id, false); err != nil {
		t.Fatalf("SetResultsPublished(false): %v", err)
	}
	e, _ = s.GetExam(id)
	if e.ResultsPublished {
		t.Error("expected results unpublished after unset")
	}

	if err := s.SetResultsPublished(9999, true); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected ErrNoRows for missing exam, got %v", err)
	}
}

func TestReplaceQuestionsFrozenAfterSubmission(t *testing.T) {
	s := newTestStore(t)
	id := insertTestExam(t, s)

	// Before any submission the question list is editable.
	err := s.ReplaceQuestions(id, []model.Question{
		{Position: 1, Type: model.QuestionTrueFalse, Text: "Go is compiled.", CorrectBool: true, Marks: 15},
	})
	if err != nil {
		t.Fatalf("ReplaceQuestions: %v", err)
	}
	e, _ := s.GetExam(id)
	if len(e.Questions) != 1 {
		t.Fatalf("expected 1 question after replace, got %d", len(e.Questions))
	}

	if _, err := s.CreateSubmission(id, 42, time.Now()); err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	err = s.ReplaceQuestions(id, []model.Question{
		{Position: 1, Type: model.QuestionTrueFalse, Text: "changed", CorrectBool: false, Marks: 15},
	})
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected ErrValidation once submissions exist, got %v", err)
	}
}

func TestSubmissionLifecycle(t *testing.T) {
	s := newTestStore(t)
	examID := insertTestExam(t, s)

	started := time.Now().UTC().Truncate(time.Second)
	subID, err := s.CreateSubmission(examID, 7, started)
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	sub, err := s.GetSubmission(subID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.Status != model.StatusInProgress {
		t.Errorf("expected in_progress, got %q", sub.Status)
	}
	if !sub.StartedAt.Equal(started) {
		t.Errorf("expected started_at %v, got %v", started, sub.StartedAt)
	}

	// One attempt per student per exam.
	if _, err := s.CreateSubmission(examID, 7, time.Now()); err == nil {
		t.Error("expected unique constraint error for second attempt")
	}

	// Lookup by student.
	found, err := s.GetSubmissionForStudent(examID, 7)
	if err != nil {
		t.Fatalf("GetSubmissionForStudent: %v", err)
	}
	if found == nil || found.ID != subID {
		t.Fatalf("expected submission %d, got %+v", subID, found)
	}
	missing, err := s.GetSubmissionForStudent(examID, 99)
	if err != nil {
		t.Fatalf("GetSubmissionForStudent(missing): %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for student without attempt, got %+v", missing)
	}

	submittedAt := started.Add(30 * time.Minute)
	if err := s.SetSubmitted(subID, submittedAt); err != nil {
		t.Fatalf("SetSubmitted: %v", err)
	}
	sub, _ = s.GetSubmission(subID)
	if sub.Status != model.StatusSubmitted {
		t.Errorf("expected submitted, got %q", sub.Status)
	}
	if sub.SubmittedAt == nil || !sub.SubmittedAt.Equal(submittedAt) {
		t.Errorf("expected submitted_at %v, got %v", submittedAt, sub.SubmittedAt)
	}

	if err := s.UpdateScore(subID, 10, 66.67); err != nil {
		t.Fatalf("UpdateScore: %v", err)
	}
	grader := int64(2)
	if err := s.SetEvaluated(subID, &grader, submittedAt.Add(time.Hour)); err != nil {
		t.Fatalf("SetEvaluated: %v", err)
	}
	sub, _ = s.GetSubmission(subID)
	if sub.Status != model.StatusEvaluated {
		t.Errorf("expected evaluated, got %q", sub.Status)
	}
	if sub.Score != 10 {
		t.Errorf("expected score 10, got %g", sub.Score)
	}
	if sub.EvaluatedBy == nil || *sub.EvaluatedBy != grader {
		t.Errorf("expected evaluated_by %d, got %v", grader, sub.EvaluatedBy)
	}
}

func TestDraftOverwrite(t *testing.T) {
	s := newTestStore(t)
	examID := insertTestExam(t, s)
	subID, err := s.CreateSubmission(examID, 7, time.Now())
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	d, err := s.GetDraft(subID)
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if d != nil {
		t.Fatalf("expected no draft initially, got %v", d)
	}

	if err := s.SaveDraft(subID, []model.DraftAnswer{{QuestionID: 1, Response: "0"}}); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	d, _ = s.GetDraft(subID)
	if len(d) != 1 || d[0].Response != "0" {
		t.Fatalf("unexpected draft: %v", d)
	}

	// Later checkpoint replaces the draft wholesale.
	if err := s.SaveDraft(subID, []model.DraftAnswer{
		{QuestionID: 1, Response: "2"},
		{QuestionID: 2, Response: "false"},
	}); err != nil {
		t.Fatalf("SaveDraft(overwrite): %v", err)
	}
	d, _ = s.GetDraft(subID)
	if len(d) != 2 {
		t.Fatalf("expected 2 draft answers, got %d", len(d))
	}
	if d[0].Response != "2" {
		t.Errorf("expected overwritten response '2', got %q", d[0].Response)
	}
}

func TestAnswersAndGrades(t *testing.T) {
	s := newTestStore(t)
	examID := insertTestExam(t, s)
	subID, err := s.CreateSubmission(examID, 7, time.Now())
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	e, _ := s.GetExam(examID)

	answers := []model.Answer{
		{QuestionID: e.Questions[0].ID, Response: "0"},
		{QuestionID: e.Questions[1].ID, Response: ""},
		{QuestionID: e.Questions[2].ID, Response: "Channels synchronize goroutines."},
	}
	if err := s.InsertAnswers(subID, answers); err != nil {
		t.Fatalf("InsertAnswers: %v", err)
	}

	got, err := s.GetAnswers(subID)
	if err != nil {
		t.Fatalf("GetAnswers: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 answers, got %d", len(got))
	}
	if got[1].Response != "" || !got[1].Skipped() {
		t.Errorf("expected second answer skipped, got %+v", got[1])
	}
	if got[0].IsCorrect != nil {
		t.Errorf("ungraded answer should have nil IsCorrect, got %v", *got[0].IsCorrect)
	}

	if err := s.SetAutoGrade(got[0].ID, true, 5); err != nil {
		t.Fatalf("SetAutoGrade: %v", err)
	}
	a, err := s.GetAnswer(subID, e.Questions[0].ID)
	if err != nil {
		t.Fatalf("GetAnswer: %v", err)
	}
	if a.IsCorrect == nil || !*a.IsCorrect {
		t.Error("expected IsCorrect true after auto grade")
	}
	if a.MarksAwarded != 5 {
		t.Errorf("expected 5 marks, got %g", a.MarksAwarded)
	}

	gradedAt := time.Now().UTC().Truncate(time.Second)
	if err := s.SetManualGrade(got[2].ID, 3, "decent answer", 2, gradedAt); err != nil {
		t.Fatalf("SetManualGrade: %v", err)
	}
	a, _ = s.GetAnswer(subID, e.Questions[2].ID)
	if a.MarksAwarded != 3 {
		t.Errorf("expected 3 marks, got %g", a.MarksAwarded)
	}
	if a.Feedback != "decent answer" {
		t.Errorf("expected feedback, got %q", a.Feedback)
	}
	if a.GradedBy == nil || *a.GradedBy != 2 {
		t.Errorf("expected graded_by 2, got %v", a.GradedBy)
	}
	// Descriptive grades never set correctness.
	if a.IsCorrect != nil {
		t.Errorf("expected nil IsCorrect on manual grade, got %v", *a.IsCorrect)
	}

	none, err := s.GetAnswer(subID, 9999)
	if err != nil {
		t.Fatalf("GetAnswer(missing): %v", err)
	}
	if none != nil {
		t.Errorf("expected nil for missing answer, got %+v", none)
	}
}

func TestFinalizeSubmission(t *testing.T) {
	s := newTestStore(t)
	examID := insertTestExam(t, s)
	e, _ := s.GetExam(examID)
	subID, err := s.CreateSubmission(examID, 7, time.Now())
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	// Leftover rows from an interrupted earlier attempt.
	err = s.InsertAnswers(subID, []model.Answer{
		{SubmissionID: subID, QuestionID: e.Questions[0].ID, Response: "stale"},
	})
	if err != nil {
		t.Fatalf("InsertAnswers: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	err = s.FinalizeSubmission(subID, []model.Answer{
		{SubmissionID: subID, QuestionID: e.Questions[0].ID, Response: "0"},
		{SubmissionID: subID, QuestionID: e.Questions[1].ID, Response: "true"},
		{SubmissionID: subID, QuestionID: e.Questions[2].ID, Response: ""},
	}, at)
	if err != nil {
		t.Fatalf("FinalizeSubmission: %v", err)
	}

	sub, _ := s.GetSubmission(subID)
	if sub.Status != model.StatusSubmitted {
		t.Errorf("expected submitted, got %q", sub.Status)
	}
	if sub.SubmittedAt == nil || !sub.SubmittedAt.Equal(at) {
		t.Errorf("expected submitted_at %v, got %v", at, sub.SubmittedAt)
	}
	answers, err := s.GetAnswers(subID)
	if err != nil {
		t.Fatalf("GetAnswers: %v", err)
	}
	if len(answers) != 3 {
		t.Fatalf("expected 3 answers after replace, got %d", len(answers))
	}
	a, _ := s.GetAnswer(subID, e.Questions[0].ID)
	if a.Response != "0" {
		t.Errorf("stale row must be replaced, got %q", a.Response)
	}
}

func TestExportExam(t *testing.T) {
	s := newTestStore(t)
	examID := insertTestExam(t, s)
	e, _ := s.GetExam(examID)

	studentID, err := s.CreateUser(model.User{
		Username:     "student1",
		DisplayName:  "Student One",
		PasswordHash: "hash",
		Role:         model.UserRoleStudent,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	started := time.Now().Add(-30 * time.Minute)
	subID, err := s.CreateSubmission(examID, studentID, started)
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	err = s.FinalizeSubmission(subID, []model.Answer{
		{SubmissionID: subID, QuestionID: e.Questions[0].ID, Response: "0"},
		{SubmissionID: subID, QuestionID: e.Questions[1].ID, Response: "false"},
		{SubmissionID: subID, QuestionID: e.Questions[2].ID, Response: "an essay"},
	}, time.Now())
	if err != nil {
		t.Fatalf("FinalizeSubmission: %v", err)
	}
	answers, _ := s.GetAnswers(subID)
	if err := s.SetAutoGrade(answers[0].ID, true, 5); err != nil {
		t.Fatalf("SetAutoGrade: %v", err)
	}
	if err := s.SetManualGrade(answers[2].ID, 4, "well argued", 2, time.Now()); err != nil {
		t.Fatalf("SetManualGrade: %v", err)
	}
	if err := s.UpdateScore(subID, 9, 60); err != nil {
		t.Fatalf("UpdateScore: %v", err)
	}
	grader := int64(2)
	if err := s.SetEvaluated(subID, &grader, time.Now()); err != nil {
		t.Fatalf("SetEvaluated: %v", err)
	}

	export, err := s.ExportExam(examID)
	if err != nil {
		t.Fatalf("ExportExam: %v", err)
	}
	if export.ExamID != examID || export.Title != e.Title {
		t.Errorf("unexpected header: %+v", export)
	}
	if len(export.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(export.Results))
	}
	res := export.Results[0]
	if res.Username != "student1" || res.DisplayName != "Student One" {
		t.Errorf("unexpected student identity: %+v", res)
	}
	if res.Score != 9 || !res.Passed {
		t.Errorf("expected score 9 passed, got %g passed=%v", res.Score, res.Passed)
	}
	if len(res.Answers) != 3 {
		t.Fatalf("expected 3 answer results, got %d", len(res.Answers))
	}
	if res.Answers[0].QuestionText != e.Questions[0].Text || res.Answers[0].MarksAwarded != 5 {
		t.Errorf("unexpected first answer result: %+v", res.Answers[0])
	}
	if res.Answers[2].Feedback != "well argued" {
		t.Errorf("expected manual feedback in export, got %q", res.Answers[2].Feedback)
	}

	if _, err := s.ExportExam(9999); err == nil {
		t.Error("expected error for missing exam")
	}
}

func TestListInProgress(t *testing.T) {
	s := newTestStore(t)
	examID := insertTestExam(t, s)

	started := time.Now().UTC().Truncate(time.Second)
	subID, _ := s.CreateSubmission(examID, 7, started)
	otherID, _ := s.CreateSubmission(examID, 8, started)
	if err := s.SetSubmitted(otherID, started.Add(time.Minute)); err != nil {
		t.Fatalf("SetSubmitted: %v", err)
	}

	refs, err := s.ListInProgress()
	if err != nil {
		t.Fatalf("ListInProgress: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("expected 1 in-progress ref, got %d", len(refs))
	}
	if refs[0].SubmissionID != subID {
		t.Errorf("expected submission %d, got %d", subID, refs[0].SubmissionID)
	}
	if refs[0].DurationMinutes != 60 {
		t.Errorf("expected duration 60, got %d", refs[0].DurationMinutes)
	}
	if !refs[0].StartedAt.Equal(started) {
		t.Errorf("expected started_at %v, got %v", started, refs[0].StartedAt)
	}
}

func TestUsersAndAuthSessions(t *testing.T) {
	s := newTestStore(t)

	count, err := s.UserCount()
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	id, err := s.CreateUser(model.User{
		Username:     "alice",
		DisplayName:  "Alice",
		PasswordHash: "hash",
		Role:         model.UserRoleGrader,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	u, err := s.GetUserByUsername("alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u == nil || u.ID != id || u.Role != model.UserRoleGrader {
		t.Fatalf("unexpected user: %+v", u)
	}
	missing, err := s.GetUserByUsername("bob")
	if err != nil {
		t.Fatalf("GetUserByUsername(missing): %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown user, got %+v", missing)
	}

	token, err := s.CreateAuthSession(id)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	sess, err := s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess == nil || sess.UserID != id {
		t.Fatalf("unexpected auth session: %+v", sess)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	sess, err = s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession(deleted): %v", err)
	}
	if sess != nil {
		t.Errorf("expected nil after delete, got %+v", sess)
	}
}

func TestAuditEvents(t *testing.T) {
	s := newTestStore(t)

	err := s.InsertAuditEvent(model.AuditEvent{
		ID:        "evt-1",
		Kind:      "session.start",
		ActorID:   7,
		ExamID:    1,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("InsertAuditEvent: %v", err)
	}
	err = s.InsertAuditEvent(model.AuditEvent{
		ID:        "evt-2",
		Kind:      "session.submit",
		ActorID:   7,
		ExamID:    1,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("InsertAuditEvent: %v", err)
	}

	n, err := s.CountAuditEvents("session.start")
	if err != nil {
		t.Fatalf("CountAuditEvents: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 session.start event, got %d", n)
	}
	n, _ = s.CountAuditEvents("session.expire")
	if n != 0 {
		t.Errorf("expected 0 session.expire events, got %d", n)
	}
}
