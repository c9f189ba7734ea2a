package keylock

import "fmt"

// SubmissionKey is the canonical lock key for every operation touching one
// (student, exam) attempt. Start, checkpoint, finalize, auto-expire, and
// manual grading all serialize on it.
func SubmissionKey(examID, studentID int64) string {
	return fmt.Sprintf("submission:%d:%d", examID, studentID)
}
