package dto

import "github.com/campuscode/autograder-api/internal/models"

// TestCaseInput is one input/expected-output pair supplied at question
// creation. Pairs with a blank side are dropped during validation.
type TestCaseInput struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// QuestionCreateRequest is the instructor payload for creating a question.
type QuestionCreateRequest struct {
	QuestionText string          `json:"QuestionText" validate:"required"`
	TestCases    []TestCaseInput `json:"TestCases" validate:"required,min=1"`
	Threshold    float64         `json:"Threshold,omitempty" validate:"omitempty,gt=0,lte=1"`
}

// QuestionSummary is one row of a class question listing.
type QuestionSummary struct {
	QuestionID uint   `json:"QuestionID"`
	Status     string `json:"Status"`
}

// NewQuestionSummaries maps questions into listing rows.
func NewQuestionSummaries(questions []models.Question) []QuestionSummary {
	summaries := make([]QuestionSummary, 0, len(questions))
	for _, q := range questions {
		summaries = append(summaries, QuestionSummary{QuestionID: q.ID, Status: string(q.Status)})
	}
	return summaries
}

// InstructorQuestionDetail is the instructor view of one question. While the
// question is open only Msg is set. Once closed, Results carries the
// plagiarism report, or Pending is true when evaluation output has not been
// persisted yet. The two null-report cases stay distinguishable.
type InstructorQuestionDetail struct {
	Status  string                    `json:"status"`
	Msg     string                    `json:"msg,omitempty"`
	Pending bool                      `json:"evaluation_pending,omitempty"`
	Results *PlagiarismReportResponse `json:"results,omitempty"`
}

// PlagiarismReportResponse is the report contract returned for a closed
// question.
type PlagiarismReportResponse struct {
	Threshold float64                  `json:"threshold"`
	Bucket    string                   `json:"bucket"`
	Results   []PlagiarismPairResponse `json:"results"`
}

// PlagiarismPairResponse is one pairwise comparison entry.
type PlagiarismPairResponse struct {
	File1          string  `json:"file1"`
	File2          string  `json:"file2"`
	Similarity     float64 `json:"similarity"`
	PlagiarismFlag bool    `json:"plagiarism_flag"`
}

// FlaggedOnly projects the report down to pairs at or above the threshold.
// This is a pure view over an already retrieved report, not a second fetch.
func (r PlagiarismReportResponse) FlaggedOnly() []PlagiarismPairResponse {
	flagged := make([]PlagiarismPairResponse, 0, len(r.Results))
	for _, pair := range r.Results {
		if pair.PlagiarismFlag {
			flagged = append(flagged, pair)
		}
	}
	return flagged
}

// NewPlagiarismReportResponse builds the report contract from the persisted
// model, preserving pair order.
func NewPlagiarismReportResponse(report models.PlagiarismReport) PlagiarismReportResponse {
	pairs := make([]PlagiarismPairResponse, 0, len(report.Pairs))
	for _, pair := range report.Pairs {
		pairs = append(pairs, PlagiarismPairResponse{
			File1:          pair.File1,
			File2:          pair.File2,
			Similarity:     pair.Similarity,
			PlagiarismFlag: pair.Flagged,
		})
	}
	return PlagiarismReportResponse{
		Threshold: report.Threshold,
		Bucket:    report.Bucket,
		Results:   pairs,
	}
}
