package dto

import "github.com/noah-isme/oelp-api/internal/grading"

// DashboardLab is one lab card on the student dashboard.
type DashboardLab struct {
	LabID       uint   `json:"lab_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   int    `json:"completed"`
	Total       int    `json:"total"`
	Percent     int    `json:"percent"`
}

// DashboardResponse aggregates lab progress for a student.
type DashboardResponse struct {
	Labs               []DashboardLab `json:"labs"`
	CompletedQuestions int            `json:"completed_questions"`
	TotalQuestions     int            `json:"total_questions"`
	OverallPercent     int            `json:"overall_percent"`
}

// LabQuestionState is one question row of a lab page.
type LabQuestionState struct {
	QuestionID uint   `json:"question_id"`
	Title      string `json:"title"`
	Difficulty string `json:"difficulty"`
	Points     int    `json:"points"`
	Status     string `json:"status"`
}

// LabDetailResponse lists the questions of a lab with the student's state.
type LabDetailResponse struct {
	LabID       uint               `json:"lab_id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Questions   []LabQuestionState `json:"questions"`
	Completed   int                `json:"completed"`
	Total       int                `json:"total"`
}

// SampleCase is a public test case shown on the problem page.
type SampleCase struct {
	TestCaseID uint   `json:"test_case_id"`
	Input      string `json:"input"`
	Output     string `json:"output"`
}

// ProblemResponse carries everything the problem page needs.
type ProblemResponse struct {
	Question           QuestionResponse `json:"question"`
	LabTitle           string           `json:"lab_title"`
	Samples            []SampleCase     `json:"samples"`
	Status             string           `json:"status"`
	LastSubmissionCode string           `json:"last_submission_code,omitempty"`
}

// StudentProgressResponse lists per-lab progress computed from submissions.
type StudentProgressResponse struct {
	StudentID uint                  `json:"student_id"`
	Labs      []grading.LabProgress `json:"labs"`
}
