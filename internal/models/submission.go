package models

import (
	"time"

	"gorm.io/datatypes"
)

// SubmissionStatusCompleted is written for every graded submission; the
// outcome lives in the score and in StudentProgress.
const SubmissionStatusCompleted = "completed"

// Submission is an immutable graded attempt. Rows are only ever inserted.
type Submission struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	StudentID   uint              `gorm:"index;not null" json:"student_id"`
	QuestionID  uint              `gorm:"index;not null" json:"question_id"`
	Language    string            `gorm:"size:32;not null" json:"language"`
	Code        string            `gorm:"type:text" json:"code"`
	Status      string            `gorm:"size:32;not null" json:"status"`
	TotalScore  float64           `gorm:"not null;default:0" json:"total_score"`
	MaxScore    float64           `gorm:"not null;default:0" json:"max_score"`
	Details     datatypes.JSONMap `json:"details"`
	SubmittedAt time.Time         `gorm:"index;not null" json:"submitted_at"`
	Question    Question          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// TestCaseResult stores the outcome of one test case of a submission.
type TestCaseResult struct {
	ID             uint    `gorm:"primaryKey" json:"id"`
	SubmissionID   uint    `gorm:"index;not null" json:"submission_id"`
	TestCaseID     uint    `gorm:"index" json:"test_case_id"`
	Status         string  `gorm:"size:32;not null" json:"status"`
	ExecutionTime  float64 `json:"execution_time"`
	MemoryUsed     int64   `json:"memory_used"`
	StudentOutput  string  `gorm:"type:text" json:"student_output"`
	ExpectedOutput string  `gorm:"type:text" json:"expected_output"`
	IsHidden       bool    `json:"is_hidden"`
	PointsEarned   int     `json:"points_earned"`
}

// StudentProgress is the per-question status shown on lab pages. A completed
// question is never downgraded.
type StudentProgress struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	StudentID  uint      `gorm:"uniqueIndex:idx_progress_student_question;not null" json:"student_id"`
	QuestionID uint      `gorm:"uniqueIndex:idx_progress_student_question;not null" json:"question_id"`
	Status     string    `gorm:"size:32;not null" json:"status"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName keeps the historical table name.
func (StudentProgress) TableName() string {
	return "student_progress"
}

// AllModels lists every model migrated at startup.
func AllModels() []interface{} {
	return []interface{}{
		&Profile{},
		&Lab{},
		&Question{},
		&TestCase{},
		&Submission{},
		&TestCaseResult{},
		&StudentProgress{},
	}
}

// Progress statuses stored on StudentProgress.
const (
	ProgressStatusCompleted  = "Completed"
	ProgressStatusInProgress = "In Progress"
)
