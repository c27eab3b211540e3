package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/oelp-api/internal/models"
)

// ProgressRepository reads per-question progress records.
type ProgressRepository interface {
	ListByStudent(ctx context.Context, studentID uint, questionIDs []uint) ([]models.StudentProgress, error)
}

// NewProgressRepository constructs a progress repository.
func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &progressRepository{db: db}
}

type progressRepository struct {
	db *gorm.DB
}

// ListByStudent returns the student's records, restricted to questionIDs when given.
func (r *progressRepository) ListByStudent(ctx context.Context, studentID uint, questionIDs []uint) ([]models.StudentProgress, error) {
	var records []models.StudentProgress
	query := r.db.WithContext(ctx).Where("student_id = ?", studentID)
	if questionIDs != nil {
		if len(questionIDs) == 0 {
			return []models.StudentProgress{}, nil
		}
		query = query.Where("question_id IN ?", questionIDs)
	}
	err := query.Order("id ASC").Find(&records).Error
	return records, err
}
