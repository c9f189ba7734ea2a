package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mohammed-ayan-zahoor/IMS-V2-sub000/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL DEFAULT 1,
		title TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		total_marks REAL NOT NULL,
		passing_marks REAL NOT NULL,
		negative_marking INTEGER NOT NULL DEFAULT 0,
		negative_marking_pct REAL NOT NULL DEFAULT 0,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		results_published INTEGER NOT NULL DEFAULT 0,
		created_by INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		type TEXT NOT NULL,
		text TEXT NOT NULL,
		options TEXT NOT NULL DEFAULT '[]',
		correct_option INTEGER NOT NULL DEFAULT -1,
		correct_bool INTEGER NOT NULL DEFAULT 0,
		explanation TEXT NOT NULL DEFAULT '',
		marks REAL NOT NULL DEFAULT 0,
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL,
		student_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		started_at DATETIME NOT NULL,
		submitted_at DATETIME,
		score REAL NOT NULL DEFAULT 0,
		percentage REAL NOT NULL DEFAULT 0,
		evaluated_at DATETIME,
		evaluated_by INTEGER,
		UNIQUE (exam_id, student_id),
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS drafts (
		submission_id INTEGER PRIMARY KEY,
		answers TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (submission_id) REFERENCES submissions(id)
	);

	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		submission_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		response TEXT NOT NULL DEFAULT '',
		is_correct INTEGER,
		marks_awarded REAL NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL DEFAULT '',
		graded_by INTEGER,
		graded_at DATETIME,
		UNIQUE (submission_id, question_id),
		FOREIGN KEY (submission_id) REFERENCES submissions(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		actor_id INTEGER NOT NULL DEFAULT 0,
		exam_id INTEGER NOT NULL DEFAULT 0,
		submission_id INTEGER NOT NULL DEFAULT 0,
		detail TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateExam inserts an exam definition with its questions in one
// transaction. The definition must already have passed Validate.
func (s *Store) CreateExam(e model.Exam) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO exams (course_id, title, duration_minutes, total_marks, passing_marks,
		                    negative_marking, negative_marking_pct, start_time, end_time,
		                    results_published, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		e.CourseID, e.Title, e.DurationMinutes, e.TotalMarks, e.PassingMarks,
		e.NegativeMarking, e.NegativeMarkingPct, e.StartTime, e.EndTime,
		e.CreatedBy, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	examID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, q := range e.Questions {
		opts, err := json.Marshal(q.Options)
		if err != nil {
			return 0, err
		}
		_, err = tx.Exec(
			`INSERT INTO questions (exam_id, position, type, text, options, correct_option, correct_bool, explanation, marks)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			examID, i+1, q.Type, q.Text, string(opts), q.CorrectOption, q.CorrectBool, q.Explanation, q.Marks,
		)
		if err != nil {
			return 0, err
		}
	}

	return examID, tx.Commit()
}

// GetExam returns an exam by ID with its questions ordered by position.
func (s *Store) GetExam(id int64) (model.Exam, error) {
	var e model.Exam
	err := s.db.QueryRow(
		`SELECT id, course_id, title, duration_minutes, total_marks, passing_marks,
		        negative_marking, negative_marking_pct, start_time, end_time,
		        results_published, created_by, created_at
		 FROM exams WHERE id = ?`, id,
	).Scan(&e.ID, &e.CourseID, &e.Title, &e.DurationMinutes, &e.TotalMarks, &e.PassingMarks,
		&e.NegativeMarking, &e.NegativeMarkingPct, &e.StartTime, &e.EndTime,
		&e.ResultsPublished, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return e, err
	}
	e.Questions, err = s.getQuestions(id)
	return e, err
}

func (s *Store) getQuestions(examID int64) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, exam_id, position, type, text, options, correct_option, correct_bool, explanation, marks
		 FROM questions WHERE exam_id = ? ORDER BY position`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var opts string
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Position, &q.Type, &q.Text, &opts,
			&q.CorrectOption, &q.CorrectBool, &q.Explanation, &q.Marks); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(opts), &q.Options); err != nil {
			return nil, fmt.Errorf("decode options for question %d: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListExams returns all exams without their question lists, newest first.
func (s *Store) ListExams() ([]model.Exam, error) {
	rows, err := s.db.Query(
		`SELECT id, course_id, title, duration_minutes, total_marks, passing_marks,
		        negative_marking, negative_marking_pct, start_time, end_time,
		        results_published, created_by, created_at
		 FROM exams ORDER BY id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.CourseID, &e.Title, &e.DurationMinutes, &e.TotalMarks, &e.PassingMarks,
			&e.NegativeMarking, &e.NegativeMarkingPct, &e.StartTime, &e.EndTime,
			&e.ResultsPublished, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// SetResultsPublished flips the publication gate for an exam.
func (s *Store) SetResultsPublished(examID int64, published bool) error {
	res, err := s.db.Exec(`UPDATE exams SET results_published = ? WHERE id = ?`, published, examID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ExamHasSubmissions reports whether any submission references the exam.
// Once true, the exam's question list is frozen.
func (s *Store) ExamHasSubmissions(examID int64) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM submissions WHERE exam_id = ?`, examID).Scan(&count)
	return count > 0, err
}

// ReplaceQuestions swaps an exam's question list. It fails once any
// submission references the exam, so a later edit can never retroactively
// change an already-scored submission.
func (s *Store) ReplaceQuestions(examID int64, questions []model.Question) error {
	referenced, err := s.ExamHasSubmissions(examID)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("%w: exam %d has submissions, question list is frozen", model.ErrValidation, examID)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM questions WHERE exam_id = ?`, examID); err != nil {
		return err
	}
	for i, q := range questions {
		opts, err := json.Marshal(q.Options)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO questions (exam_id, position, type, text, options, correct_option, correct_bool, explanation, marks)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			examID, i+1, q.Type, q.Text, string(opts), q.CorrectOption, q.CorrectBool, q.Explanation, q.Marks,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// InsertAuditEvent stores one audit record.
func (s *Store) InsertAuditEvent(e model.AuditEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_events (id, kind, actor_id, exam_id, submission_id, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.ActorID, e.ExamID, e.SubmissionID, e.Detail, e.CreatedAt,
	)
	return err
}

// CountAuditEvents returns the number of stored audit events of a kind
// (empty kind counts all).
func (s *Store) CountAuditEvents(kind string) (int, error) {
	var count int
	var err error
	if kind == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM audit_events`).Scan(&count)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM audit_events WHERE kind = ?`, kind).Scan(&count)
	}
	return count, err
}
