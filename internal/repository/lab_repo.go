package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/oelp-api/internal/models"
)

// LabSummary is a lab with its question count.
type LabSummary struct {
	models.Lab
	QuestionCount int64 `json:"question_count"`
}

// LabRepository exposes persistence helpers for labs.
type LabRepository interface {
	Create(ctx context.Context, lab *models.Lab) error
	GetByID(ctx context.Context, id uint) (models.Lab, error)
	List(ctx context.Context) ([]models.Lab, error)
	ListByProfessor(ctx context.Context, professorID uint) ([]LabSummary, error)
	Delete(ctx context.Context, id uint) error
}

// NewLabRepository constructs a lab repository.
func NewLabRepository(db *gorm.DB) LabRepository {
	return &labRepository{db: db}
}

type labRepository struct {
	db *gorm.DB
}

func (r *labRepository) Create(ctx context.Context, lab *models.Lab) error {
	return r.db.WithContext(ctx).Create(lab).Error
}

func (r *labRepository) GetByID(ctx context.Context, id uint) (models.Lab, error) {
	var lab models.Lab
	if err := r.db.WithContext(ctx).First(&lab, id).Error; err != nil {
		return models.Lab{}, err
	}
	return lab, nil
}

func (r *labRepository) List(ctx context.Context) ([]models.Lab, error) {
	var labs []models.Lab
	err := r.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&labs).Error
	return labs, err
}

func (r *labRepository) ListByProfessor(ctx context.Context, professorID uint) ([]LabSummary, error) {
	var labs []models.Lab
	if err := r.db.WithContext(ctx).
		Where("professor_id = ?", professorID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&labs).Error; err != nil {
		return nil, err
	}
	if len(labs) == 0 {
		return []LabSummary{}, nil
	}

	ids := make([]uint, 0, len(labs))
	for _, lab := range labs {
		ids = append(ids, lab.ID)
	}

	var counts []struct {
		LabID uint
		Total int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Question{}).
		Select("lab_id, COUNT(*) AS total").
		Where("lab_id IN ?", ids).
		Group("lab_id").
		Scan(&counts).Error; err != nil {
		return nil, err
	}

	byLab := make(map[uint]int64, len(counts))
	for _, row := range counts {
		byLab[row.LabID] = row.Total
	}

	summaries := make([]LabSummary, 0, len(labs))
	for _, lab := range labs {
		summaries = append(summaries, LabSummary{Lab: lab, QuestionCount: byLab[lab.ID]})
	}
	return summaries, nil
}

// Delete removes the lab together with its questions, test cases, submissions
// and progress records.
func (r *labRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var questionIDs []uint
		if err := tx.Model(&models.Question{}).Where("lab_id = ?", id).Pluck("id", &questionIDs).Error; err != nil {
			return err
		}
		if err := deleteQuestions(tx, questionIDs); err != nil {
			return err
		}

		result := tx.Delete(&models.Lab{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func deleteQuestions(tx *gorm.DB, questionIDs []uint) error {
	if len(questionIDs) == 0 {
		return nil
	}

	submissions := tx.Model(&models.Submission{}).Select("id").Where("question_id IN ?", questionIDs)
	if err := tx.Where("submission_id IN (?)", submissions).Delete(&models.TestCaseResult{}).Error; err != nil {
		return err
	}
	if err := tx.Where("question_id IN ?", questionIDs).Delete(&models.Submission{}).Error; err != nil {
		return err
	}
	if err := tx.Where("question_id IN ?", questionIDs).Delete(&models.StudentProgress{}).Error; err != nil {
		return err
	}
	if err := tx.Where("question_id IN ?", questionIDs).Delete(&models.TestCase{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", questionIDs).Delete(&models.Question{}).Error
}
