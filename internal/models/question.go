package models

import "time"

// QuestionStatus enumerates the question lifecycle states. A question is
// created open and moves to closed exactly once, when the owning instructor
// evaluates it. There is no reverse transition.
type QuestionStatus string

// Question lifecycle states.
const (
	QuestionStatusOpen   QuestionStatus = "open"
	QuestionStatusClosed QuestionStatus = "closed"
)

// DefaultSimilarityThreshold is applied when a question is created without an
// explicit plagiarism threshold.
const DefaultSimilarityThreshold = 0.80

// Question is a graded programming assignment scoped to a class.
type Question struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	ClassID   uint           `gorm:"not null;index" json:"class_id"`
	Text      string         `gorm:"type:text;not null" json:"text"`
	Status    QuestionStatus `gorm:"size:16;not null;default:open" json:"status"`
	Threshold float64        `gorm:"not null;default:0.8" json:"threshold"`
	TestCases []TestCase     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"test_cases"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// IsOpen reports whether the question still accepts submissions.
func (q Question) IsOpen() bool {
	return q.Status == QuestionStatusOpen
}

// CanEvaluate reports whether the evaluate transition is legal from the
// current state. Evaluating a closed question is a logic error, not a
// transient failure.
func (q Question) CanEvaluate() bool {
	return q.Status == QuestionStatusOpen
}

// TestCase is one input/expected-output pair of a question. Test cases are
// created in a batch at question creation and are immutable afterwards.
type TestCase struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	QuestionID uint      `gorm:"not null;index" json:"question_id"`
	Input      string    `gorm:"type:text;not null" json:"input"`
	Expected   string    `gorm:"type:text;not null" json:"expected"`
	Position   int       `gorm:"not null" json:"position"`
	CreatedAt  time.Time `json:"created_at"`
}
