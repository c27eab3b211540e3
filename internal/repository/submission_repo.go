package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/oelp-api/internal/models"
)

// SubmissionRow is a submission joined with the lab of its question.
type SubmissionRow struct {
	ID          uint
	StudentID   uint
	QuestionID  uint
	LabID       uint
	Status      string
	TotalScore  float64
	SubmittedAt time.Time
}

// SubmissionRepository exposes persistence helpers for graded submissions.
type SubmissionRepository interface {
	CreateGraded(ctx context.Context, submission *models.Submission, results []models.TestCaseResult, progressStatus string) error
	ListForScope(ctx context.Context, labID *uint) ([]SubmissionRow, error)
	ListByStudent(ctx context.Context, studentID uint) ([]SubmissionRow, error)
	ListDetailedByStudent(ctx context.Context, studentID uint) ([]models.Submission, error)
	LatestForQuestion(ctx context.Context, studentID, questionID uint) (models.Submission, error)
	ListResults(ctx context.Context, submissionID uint) ([]models.TestCaseResult, error)
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

type submissionRepository struct {
	db *gorm.DB
}

// CreateGraded inserts the submission with its test case results and records
// the student's progress on the question in one transaction.
func (r *submissionRepository) CreateGraded(ctx context.Context, submission *models.Submission, results []models.TestCaseResult, progressStatus string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Question").Create(submission).Error; err != nil {
			return err
		}

		if len(results) > 0 {
			for i := range results {
				results[i].SubmissionID = submission.ID
			}
			if err := tx.Create(&results).Error; err != nil {
				return err
			}
		}

		return upsertProgress(tx, submission.StudentID, submission.QuestionID, progressStatus)
	})
}

func upsertProgress(tx *gorm.DB, studentID, questionID uint, status string) error {
	var progress models.StudentProgress
	err := tx.Where("student_id = ? AND question_id = ?", studentID, questionID).First(&progress).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(&models.StudentProgress{StudentID: studentID, QuestionID: questionID, Status: status}).Error
	case err != nil:
		return err
	}

	if progress.Status == models.ProgressStatusCompleted || progress.Status == status {
		return nil
	}
	return tx.Model(&progress).Update("status", status).Error
}

func (r *submissionRepository) scoped(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("submissions").
		Select("submissions.id, submissions.student_id, submissions.question_id, questions.lab_id, submissions.status, submissions.total_score, submissions.submitted_at").
		Joins("JOIN questions ON questions.id = submissions.question_id")
}

// ListForScope returns every submission in scope; a nil labID means all labs.
func (r *submissionRepository) ListForScope(ctx context.Context, labID *uint) ([]SubmissionRow, error) {
	var rows []SubmissionRow
	query := r.scoped(ctx)
	if labID != nil {
		query = query.Where("questions.lab_id = ?", *labID)
	}
	err := query.Order("submissions.submitted_at DESC").Scan(&rows).Error
	return rows, err
}

func (r *submissionRepository) ListByStudent(ctx context.Context, studentID uint) ([]SubmissionRow, error) {
	var rows []SubmissionRow
	err := r.scoped(ctx).
		Where("submissions.student_id = ?", studentID).
		Order("submissions.submitted_at DESC").
		Scan(&rows).Error
	return rows, err
}

func (r *submissionRepository) ListDetailedByStudent(ctx context.Context, studentID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.db.WithContext(ctx).
		Preload("Question").
		Where("student_id = ?", studentID).
		Order("submitted_at DESC").
		Order("id DESC").
		Find(&submissions).Error
	return submissions, err
}

func (r *submissionRepository) LatestForQuestion(ctx context.Context, studentID, questionID uint) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND question_id = ?", studentID, questionID).
		Order("submitted_at DESC").
		Order("id DESC").
		First(&submission).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) ListResults(ctx context.Context, submissionID uint) ([]models.TestCaseResult, error) {
	var results []models.TestCaseResult
	err := r.db.WithContext(ctx).Where("submission_id = ?", submissionID).Order("id ASC").Find(&results).Error
	return results, err
}
