// Package execution talks to the remote code execution service that runs
// student code and grades submissions against test cases.
package execution

// Run statuses reported by the execution service.
const (
	RunSuccess          = "Success"
	RunRuntimeError     = "Runtime Error"
	RunCompilationError = "Compilation Error"
	RunTimeLimit        = "TLE"
	RunMemoryLimit      = "MLE"
)

// Test case result statuses.
const (
	ResultPassed           = "Passed"
	ResultFailed           = "Failed"
	ResultTimeLimit        = "TLE"
	ResultMemoryLimit      = "MLE"
	ResultRuntimeError     = "Runtime Error"
	ResultCompilationError = "Compilation Error"
)

// RunRequest executes code once against custom input.
type RunRequest struct {
	Language    string `json:"language" validate:"required"`
	Code        string `json:"code" validate:"required"`
	CustomInput string `json:"custom_input"`
}

// RunResult is the outcome of a run. A compilation or runtime failure is a
// valid result, not an error.
type RunResult struct {
	Status string  `json:"status"`
	Output string  `json:"output"`
	Error  string  `json:"error,omitempty"`
	Time   float64 `json:"time"`
}

// SubmitRequest grades a final solution.
type SubmitRequest struct {
	StudentID  uint   `json:"student_id"`
	QuestionID uint   `json:"question_id" validate:"required"`
	Language   string `json:"language" validate:"required"`
	Code       string `json:"code" validate:"required"`
}

// TestCaseResult is the grading outcome of one test case. IsHidden is
// authoritative; outputs of hidden cases must not be shown to students.
type TestCaseResult struct {
	TestCaseID     uint    `json:"test_case_id"`
	Status         string  `json:"status"`
	ExecutionTime  float64 `json:"execution_time"`
	MemoryUsed     int64   `json:"memory_used"`
	StudentOutput  *string `json:"student_output,omitempty"`
	ExpectedOutput *string `json:"expected_output,omitempty"`
	IsHidden       bool    `json:"is_hidden"`
	PointsEarned   int     `json:"points_earned"`
}

// SubmitResult is the grading outcome of a submission.
type SubmitResult struct {
	SubmissionID uint             `json:"submission_id"`
	Status       string           `json:"status"`
	Results      []TestCaseResult `json:"results"`
	Score        string           `json:"score"`
	TotalScore   float64          `json:"total_score"`
	MaxScore     float64          `json:"max_score"`
}

// AllPassed reports whether results is non-empty and every case passed.
func AllPassed(results []TestCaseResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, result := range results {
		if result.Status != ResultPassed {
			return false
		}
	}
	return true
}

// Redacted returns a copy of results with the outputs of hidden cases removed.
func Redacted(results []TestCaseResult) []TestCaseResult {
	out := make([]TestCaseResult, len(results))
	for i, result := range results {
		if result.IsHidden {
			result.StudentOutput = nil
			result.ExpectedOutput = nil
		}
		out[i] = result
	}
	return out
}
