package dto

import (
	"encoding/json"

	"github.com/campuscode/autograder-api/internal/models"
)

// ClassSummary is one row of a student's enrolment listing.
type ClassSummary struct {
	ClassID        uint   `json:"ClassID"`
	InstructorID   uint   `json:"InstructorID"`
	InstructorName string `json:"InstructorName"`
}

// ClassListResponse wraps the enrolment listing.
type ClassListResponse struct {
	Classes []ClassSummary `json:"classes"`
}

// QuestionListResponse wraps a per-class question listing.
type QuestionListResponse struct {
	Questions []QuestionSummary `json:"questions"`
}

// TestCaseView is a test case as shown to students.
type TestCaseView struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// SubmissionResult carries the score and feedback attached once the parent
// question closes, plus the per-test-case runs recorded at grading time.
type SubmissionResult struct {
	Score    *float64             `json:"Score"`
	Feedback string               `json:"Feedback"`
	Results  []models.TestCaseRun `json:"Results,omitempty"`
}

// StudentQuestionDetail is the student view of one question. State is the
// explicit submission sub-state derived at the data-access boundary; Message
// is only set while the question is open and the student has already
// finalised; Submission is only set once the question is closed.
type StudentQuestionDetail struct {
	QuestionID   uint              `json:"QuestionID"`
	QuestionText string            `json:"QuestionText"`
	TestCases    []TestCaseView    `json:"TestCases"`
	Status       string            `json:"Status"`
	State        string            `json:"State"`
	Message      string            `json:"message,omitempty"`
	Submission   *SubmissionResult `json:"Submission,omitempty"`
}

// TestRunResponse is the ephemeral result of a dry run against the question's
// test cases.
type TestRunResponse struct {
	Results []models.TestCaseRun `json:"Results"`
}

// NewStudentQuestionDetail assembles the student view from the question and
// the student's own submission, if any.
func NewStudentQuestionDetail(question models.Question, submission *models.Submission) StudentQuestionDetail {
	cases := make([]TestCaseView, 0, len(question.TestCases))
	for _, tc := range question.TestCases {
		cases = append(cases, TestCaseView{Input: tc.Input, Output: tc.Expected})
	}

	state := models.StateOf(submission, question)
	detail := StudentQuestionDetail{
		QuestionID:   question.ID,
		QuestionText: question.Text,
		TestCases:    cases,
		Status:       string(question.Status),
		State:        string(state),
	}

	switch state {
	case models.SubmissionStatePending:
		if question.IsOpen() {
			detail.Message = "Already submitted. Please wait for results."
		}
	case models.SubmissionStateGraded:
		result := SubmissionResult{Score: submission.Score, Feedback: submission.Feedback}
		if len(submission.Results) > 0 {
			// Stored runs are best effort; a decode failure degrades to the
			// aggregate score and feedback.
			_ = json.Unmarshal(submission.Results, &result.Results)
		}
		detail.Submission = &result
	}

	return detail
}
