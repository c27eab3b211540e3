package dto

import (
	"time"

	"github.com/noah-isme/oelp-api/internal/grading"
)

// AllLabsTitle labels an unscoped leaderboard.
const AllLabsTitle = "All Labs"

// UnknownLabTitle labels submissions whose lab no longer resolves.
const UnknownLabTitle = "Unknown Lab"

// LeaderboardEntry is one ranked student.
type LeaderboardEntry struct {
	Rank            int     `json:"rank"`
	StudentID       uint    `json:"student_id"`
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	TotalScore      float64 `json:"total_score"`
	QuestionsSolved int     `json:"questions_solved"`
	CompletionRate  int     `json:"completion_rate"`
	LastActive      string  `json:"last_active"`
}

// LeaderboardSummary holds the headline numbers of a leaderboard.
type LeaderboardSummary struct {
	AverageScore   int     `json:"average_score"`
	ActiveStudents int     `json:"active_students"`
	TotalStudents  int     `json:"total_students"`
	TopScore       float64 `json:"top_score"`
}

// LeaderboardResponse is the ranked view for one scope.
type LeaderboardResponse struct {
	LabID          *uint              `json:"lab_id"`
	LabTitle       string             `json:"lab_title"`
	TotalQuestions int                `json:"total_questions"`
	Entries        []LeaderboardEntry `json:"entries"`
	Summary        LeaderboardSummary `json:"summary"`
	GeneratedAt    time.Time          `json:"generated_at"`
	CacheHit       bool               `json:"cache_hit"`
}

// NewLeaderboardEntries maps aggregated rows.
func NewLeaderboardEntries(rows []grading.LeaderboardRow) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, LeaderboardEntry{
			Rank:            row.Rank,
			StudentID:       row.StudentID,
			Name:            row.Name,
			Email:           row.Email,
			TotalScore:      row.TotalScore,
			QuestionsSolved: row.QuestionsSolved,
			CompletionRate:  row.CompletionRate,
			LastActive:      row.LastActiveLabel(),
		})
	}
	return entries
}

// NewLeaderboardSummary maps summary statistics.
func NewLeaderboardSummary(summary grading.Summary) LeaderboardSummary {
	return LeaderboardSummary{
		AverageScore:   summary.AverageScore,
		ActiveStudents: summary.ActiveStudents,
		TotalStudents:  summary.TotalStudents,
		TopScore:       summary.TopScore,
	}
}

// StudentIdentity names a student in reports.
type StudentIdentity struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SubmissionReport is one submission in a student report.
type SubmissionReport struct {
	ID            uint      `json:"id"`
	QuestionID    uint      `json:"question_id"`
	QuestionTitle string    `json:"question_title"`
	LabID         uint      `json:"lab_id"`
	LabTitle      string    `json:"lab_title"`
	Language      string    `json:"language"`
	Status        string    `json:"status"`
	TotalScore    float64   `json:"total_score"`
	MaxScore      float64   `json:"max_score"`
	Code          string    `json:"code"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// StudentReportResponse is the per-student drill-down.
type StudentReportResponse struct {
	Student     StudentIdentity       `json:"student"`
	Labs        []grading.LabProgress `json:"labs"`
	Submissions []SubmissionReport    `json:"submissions"`
}
