package grading

import (
	"fmt"
	"time"
)

// Status strings stored on student progress records.
const (
	ProgressCompleted  = "Completed"
	ProgressInProgress = "In Progress"
	NotStarted         = "Not Started"
)

// SubmissionRecord is the read-only view of a graded submission the aggregators consume.
type SubmissionRecord struct {
	ID          uint
	StudentID   uint
	QuestionID  uint
	LabID       uint
	Status      string
	Score       *float64
	SubmittedAt time.Time
}

// ProgressRecord is a per-question status row maintained by the grader.
type ProgressRecord struct {
	QuestionID uint
	Status     string
}

// LabScope names a lab and the questions that belong to it.
type LabScope struct {
	ID          uint
	Title       string
	QuestionIDs []uint
}

// LabProgress summarises how many questions of a lab a student has solved.
type LabProgress struct {
	LabID  uint   `json:"lab_id"`
	Title  string `json:"title"`
	Solved int    `json:"solved"`
	Total  int    `json:"total"`
	Pct    int    `json:"pct"`
}

// AggregateLab folds one student's submissions into progress for a single lab.
// Submissions for questions outside the lab are ignored.
func AggregateLab(lab LabScope, submissions []SubmissionRecord, vocab Vocabulary) LabProgress {
	questions := make(map[uint]struct{}, len(lab.QuestionIDs))
	for _, id := range lab.QuestionIDs {
		questions[id] = struct{}{}
	}

	solved := make(map[uint]struct{})
	for _, submission := range submissions {
		if _, ok := questions[submission.QuestionID]; !ok {
			continue
		}
		if vocab.IsCompleted(submission.Status) {
			solved[submission.QuestionID] = struct{}{}
		}
	}

	return LabProgress{
		LabID:  lab.ID,
		Title:  lab.Title,
		Solved: len(solved),
		Total:  len(questions),
		Pct:    Percent(len(solved), len(questions)),
	}
}

// AggregateStudent computes progress for every lab, preserving lab order.
func AggregateStudent(labs []LabScope, submissions []SubmissionRecord, vocab Vocabulary) []LabProgress {
	result := make([]LabProgress, 0, len(labs))
	for _, lab := range labs {
		result = append(result, AggregateLab(lab, submissions, vocab))
	}
	return result
}

// QuestionState resolves the status shown for a question on the lab page:
// any completed record wins, otherwise the first record's status, otherwise NotStarted.
func QuestionState(records []ProgressRecord) string {
	if len(records) == 0 {
		return NotStarted
	}
	for _, record := range records {
		if LabStatusVocabulary.IsCompleted(record.Status) {
			return ProgressCompleted
		}
	}
	return records[0].Status
}

// DashboardProgress computes the dashboard completion figures from progress
// records. Completed counts are clamped to the lab's question total.
func DashboardProgress(labs []LabScope, records []ProgressRecord) []LabProgress {
	completedByQuestion := make(map[uint]int)
	for _, record := range records {
		if LabStatusVocabulary.IsCompleted(record.Status) {
			completedByQuestion[record.QuestionID]++
		}
	}

	result := make([]LabProgress, 0, len(labs))
	for _, lab := range labs {
		total := len(lab.QuestionIDs)
		completed := 0
		for _, id := range lab.QuestionIDs {
			completed += completedByQuestion[id]
		}
		if completed > total {
			completed = total
		}
		result = append(result, LabProgress{
			LabID:  lab.ID,
			Title:  lab.Title,
			Solved: completed,
			Total:  total,
			Pct:    Percent(completed, total),
		})
	}
	return result
}

// LatestSubmission returns the newest submitted_at among submissions for the lab.
func LatestSubmission(lab LabScope, submissions []SubmissionRecord) time.Time {
	questions := make(map[uint]struct{}, len(lab.QuestionIDs))
	for _, id := range lab.QuestionIDs {
		questions[id] = struct{}{}
	}
	var latest time.Time
	for _, submission := range submissions {
		if _, ok := questions[submission.QuestionID]; !ok {
			continue
		}
		if submission.SubmittedAt.After(latest) {
			latest = submission.SubmittedAt
		}
	}
	return latest
}

// ProgressCacheKey identifies a cached lab progress computation. Submissions are
// immutable, so the newest timestamp covers new work. The question count and
// the highest question id cover questions added to or removed from the lab,
// since ids only grow.
func ProgressCacheKey(studentID uint, lab LabScope, latest time.Time) string {
	var highest uint
	for _, id := range lab.QuestionIDs {
		if id > highest {
			highest = id
		}
	}
	return fmt.Sprintf("progress:%d:%d:%d:%d:%d", studentID, lab.ID, len(lab.QuestionIDs), highest, latest.UnixNano())
}
