package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission persistence states. A submission is created pending and becomes
// graded when the parent question is evaluated.
const (
	SubmissionStatusPending = "pending"
	SubmissionStatusGraded  = "graded"
)

// SubmissionState is the per-(question, student) lifecycle sub-state exposed
// to clients. It is derived once at the data-access boundary, never
// re-inferred downstream from message or score fields.
type SubmissionState string

// Submission sub-states.
const (
	SubmissionStateNotSubmitted SubmissionState = "not_submitted"
	SubmissionStatePending      SubmissionState = "pending"
	SubmissionStateGraded       SubmissionState = "graded"
)

// Submission is a student's final attempt at a question. The unique index on
// (question_id, student_id) backs the exactly-once final-submit contract.
type Submission struct {
	ID         uint     `gorm:"primaryKey" json:"id"`
	QuestionID uint     `gorm:"not null;uniqueIndex:idx_question_student" json:"question_id"`
	StudentID  uint     `gorm:"not null;uniqueIndex:idx_question_student" json:"student_id"`
	Language   Language `gorm:"size:16;not null" json:"language"`
	Filename   string   `gorm:"size:64;not null" json:"filename"`
	Source     string   `gorm:"type:text;not null" json:"source"`
	ObjectKey  string   `gorm:"size:255;not null" json:"object_key"`
	Status     string   `gorm:"size:16;not null;default:pending" json:"status"`
	Score      *float64 `json:"score"`
	Feedback   string   `gorm:"type:text" json:"feedback"`
	// Results holds the per-test-case runs recorded at grading time, so the
	// graded view can show more than the aggregate score.
	Results   datatypes.JSON `json:"results,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// StateOf derives the submission sub-state for one (question, student) pair.
// submission is nil when the student never finalised an attempt.
func StateOf(submission *Submission, question Question) SubmissionState {
	if submission == nil {
		return SubmissionStateNotSubmitted
	}
	if question.Status == QuestionStatusClosed && submission.Status == SubmissionStatusGraded {
		return SubmissionStateGraded
	}
	return SubmissionStatePending
}
