package dto

import (
	"mime/multipart"
	"time"

	"github.com/noah-isme/oelp-api/internal/models"
)

// LabCreateRequest captures the payload for creating a lab.
type LabCreateRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"omitempty,max=20000"`
}

// LabResponse serialises a lab for authoring screens.
type LabResponse struct {
	ID            uint      `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	ProfessorID   uint      `json:"professor_id"`
	QuestionCount int64     `json:"question_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewLabResponse maps a lab model.
func NewLabResponse(lab models.Lab, questionCount int64) LabResponse {
	return LabResponse{
		ID:            lab.ID,
		Title:         lab.Title,
		Description:   lab.Description,
		ProfessorID:   lab.ProfessorID,
		QuestionCount: questionCount,
		CreatedAt:     lab.CreatedAt,
	}
}

// QuestionCreateRequest captures the question fields of the authoring form.
type QuestionCreateRequest struct {
	Title       string `form:"title" json:"title" validate:"required,min=1,max=255"`
	Description string `form:"description" json:"description" validate:"omitempty,max=50000"`
	Difficulty  string `form:"difficulty" json:"difficulty" validate:"omitempty,oneof=Easy Medium Hard"`
	Points      int    `form:"points" json:"points" validate:"omitempty,min=0,max=1000"`
	StarterCode string `form:"starter_code" json:"starter_code" validate:"omitempty,max=20000"`
}

// TestCaseUpload is one input/output row of the authoring form. Either file
// may be nil when the row was left incomplete.
type TestCaseUpload struct {
	Input  *multipart.FileHeader
	Output *multipart.FileHeader
}

// RowWarning reports a test case row that was skipped.
type RowWarning struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// QuestionResponse serialises a question.
type QuestionResponse struct {
	ID            uint      `json:"id"`
	LabID         uint      `json:"lab_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Difficulty    string    `json:"difficulty"`
	Points        int       `json:"points"`
	StarterCode   string    `json:"starter_code,omitempty"`
	TestCaseCount int64     `json:"test_case_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewQuestionResponse maps a question model.
func NewQuestionResponse(question models.Question, testCaseCount int64) QuestionResponse {
	return QuestionResponse{
		ID:            question.ID,
		LabID:         question.LabID,
		Title:         question.Title,
		Description:   question.Description,
		Difficulty:    question.Difficulty,
		Points:        question.Points,
		StarterCode:   question.StarterCode,
		TestCaseCount: testCaseCount,
		CreatedAt:     question.CreatedAt,
	}
}

// QuestionCreateResponse is returned after authoring a question.
type QuestionCreateResponse struct {
	Question QuestionResponse `json:"question"`
	Warnings []RowWarning     `json:"warnings"`
}
