package models

// TestRunStatus enumerates per-test-case outcomes of an ephemeral test run.
type TestRunStatus string

// Test run outcomes. These are advisory only and never change submission or
// question state.
const (
	TestRunPassed       TestRunStatus = "Passed"
	TestRunFailed       TestRunStatus = "Failed"
	TestRunError        TestRunStatus = "Error"
	TestRunCompileError TestRunStatus = "Compile Error"
)

// TestCaseRun is the outcome of running a solution against one test case.
// Test runs are never persisted.
type TestCaseRun struct {
	TestCase int           `json:"test_case"`
	Status   TestRunStatus `json:"status"`
	Input    string        `json:"input"`
	Expected string        `json:"expected"`
	Actual   string        `json:"actual,omitempty"`
	Error    string        `json:"error,omitempty"`
}
