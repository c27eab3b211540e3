package models

import "time"

// Question difficulties.
const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

// DefaultQuestionPoints is used when a question is created without points.
const DefaultQuestionPoints = 10

// Lab groups questions authored by a professor.
type Lab struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	ProfessorID uint       `gorm:"index" json:"professor_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Questions   []Question `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// Question belongs to exactly one lab.
type Question struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	LabID       uint       `gorm:"index;not null" json:"lab_id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Difficulty  string     `gorm:"size:16;not null;default:Easy" json:"difficulty"`
	Points      int        `gorm:"not null;default:10" json:"points"`
	StarterCode string     `gorm:"type:text" json:"starter_code"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	TestCases   []TestCase `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// TestCase pairs an input fixture with its expected output. The first case of
// a question is public, the rest are hidden.
type TestCase struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	QuestionID uint      `gorm:"index;not null" json:"question_id"`
	Position   int       `gorm:"not null;default:0" json:"position"`
	InputPath  string    `gorm:"size:512" json:"input_path"`
	OutputPath string    `gorm:"size:512" json:"output_path"`
	InputURL   string    `gorm:"size:1024" json:"-"`
	OutputURL  string    `gorm:"size:1024" json:"-"`
	IsHidden   bool      `gorm:"not null;default:false" json:"is_hidden"`
	IsPublic   bool      `gorm:"not null;default:false" json:"is_public"`
	CreatedAt  time.Time `json:"created_at"`
}
