package grading

import (
	"math"
	"strings"
)

// Status is the canonical grading outcome derived from a free-text status string.
type Status string

const (
	StatusCompleted  Status = "Completed"
	StatusInProgress Status = "InProgress"
	StatusFailed     Status = "Failed"
	StatusUnknown    Status = "Unknown"
)

// Vocabulary maps raw status strings onto canonical statuses. Each call site
// owns its vocabulary because the recognised synonyms differ between them.
type Vocabulary struct {
	Name          string
	Completed     []string
	InProgress    []string
	Failed        []string
	CaseSensitive bool
}

var (
	inProgressSynonyms = []string{"in progress", "in_progress", "pending", "running", "submitted", "queued"}
	failedSynonyms     = []string{"failed", "error", "wrong answer", "rejected", "timeout", "tle", "mle", "runtime error", "compilation error"}
)

// LeaderboardVocabulary is used when ranking students.
var LeaderboardVocabulary = Vocabulary{
	Name:       "leaderboard",
	Completed:  []string{"completed", "passed", "accepted", "success"},
	InProgress: inProgressSynonyms,
	Failed:     failedSynonyms,
}

// ProgressVocabulary is used for per-student lab progress. It does not accept
// "success" as a completed synonym.
var ProgressVocabulary = Vocabulary{
	Name:       "progress",
	Completed:  []string{"completed", "passed", "accepted"},
	InProgress: inProgressSynonyms,
	Failed:     failedSynonyms,
}

// LabStatusVocabulary reads student_progress records, which only ever hold the
// exact strings written by the grader.
var LabStatusVocabulary = Vocabulary{
	Name:          "lab_status",
	Completed:     []string{ProgressCompleted},
	InProgress:    []string{ProgressInProgress},
	CaseSensitive: true,
}

// Normalize maps raw onto a canonical status. Empty or unrecognised input maps
// to StatusUnknown.
func (v Vocabulary) Normalize(raw string) Status {
	value := strings.TrimSpace(raw)
	if value == "" {
		return StatusUnknown
	}
	if !v.CaseSensitive {
		value = strings.ToLower(value)
	}

	switch {
	case v.matches(v.Completed, value):
		return StatusCompleted
	case v.matches(v.InProgress, value):
		return StatusInProgress
	case v.matches(v.Failed, value):
		return StatusFailed
	default:
		return StatusUnknown
	}
}

// IsCompleted reports whether raw normalises to StatusCompleted.
func (v Vocabulary) IsCompleted(raw string) bool {
	return v.Normalize(raw) == StatusCompleted
}

func (v Vocabulary) matches(set []string, value string) bool {
	for _, candidate := range set {
		if !v.CaseSensitive {
			candidate = strings.ToLower(candidate)
		}
		if candidate == value {
			return true
		}
	}
	return false
}

// NormalizeStatus normalises raw with the leaderboard vocabulary.
func NormalizeStatus(raw string) Status {
	return LeaderboardVocabulary.Normalize(raw)
}

// NormalizeScore returns a finite, non-negative score. Missing values count as zero.
func NormalizeScore(score *float64) float64 {
	if score == nil {
		return 0
	}
	value := *score
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0
	}
	return value
}

// Percent returns round(100 * part / total), or 0 when total is not positive.
func Percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}
