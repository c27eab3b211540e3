package editor

import (
	"strconv"

	"github.com/noah-isme/oelp-api/pkg/execution"
)

// ResultView is a test case result as shown to the student.
type ResultView struct {
	Index          int     `json:"index"`
	Status         string  `json:"status"`
	ExecutionTime  float64 `json:"execution_time"`
	MemoryUsed     int64   `json:"memory_used"`
	IsHidden       bool    `json:"is_hidden"`
	PointsEarned   int     `json:"points_earned"`
	StudentOutput  *string `json:"student_output,omitempty"`
	ExpectedOutput *string `json:"expected_output,omitempty"`
}

// Snapshot is the presentation state of a session.
type Snapshot struct {
	State      string       `json:"state"`
	Code       string       `json:"code"`
	Input      string       `json:"input"`
	Source     string       `json:"source"`
	SaveStatus string       `json:"save_status"`
	Run        RunView      `json:"run"`
	Results    []ResultView `json:"results"`
	Score      string       `json:"score,omitempty"`
	Completed  bool         `json:"completed"`
	Error      string       `json:"error,omitempty"`
}

// View returns the current presentation state. Outputs of hidden test cases
// are never included.
func (s *Session) View() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	saveStatus := SaveStatusSaved
	if !s.saved {
		saveStatus = SaveStatusUnsaved
	}

	return Snapshot{
		State:      s.state.String(),
		Code:       s.code,
		Input:      s.input,
		Source:     s.source,
		SaveStatus: saveStatus,
		Run:        s.run,
		Results:    presentResults(s.results),
		Score:      s.score,
		Completed:  s.completed,
		Error:      s.lastError,
	}
}

func presentResults(results []execution.TestCaseResult) []ResultView {
	views := make([]ResultView, 0, len(results))
	for i, result := range execution.Redacted(results) {
		views = append(views, ResultView{
			Index:          i + 1,
			Status:         result.Status,
			ExecutionTime:  result.ExecutionTime,
			MemoryUsed:     result.MemoryUsed,
			IsHidden:       result.IsHidden,
			PointsEarned:   result.PointsEarned,
			StudentOutput:  result.StudentOutput,
			ExpectedOutput: result.ExpectedOutput,
		})
	}
	return views
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}
