package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/oelp-api/internal/models"
)

// QuestionRef is the lab membership of a question.
type QuestionRef struct {
	ID    uint
	LabID uint
}

// QuestionRepository exposes persistence helpers for questions and their test cases.
type QuestionRepository interface {
	Create(ctx context.Context, question *models.Question) error
	GetByID(ctx context.Context, id uint) (models.Question, error)
	ListByLab(ctx context.Context, labID uint) ([]models.Question, error)
	ListRefs(ctx context.Context, labID *uint) ([]QuestionRef, error)
	Count(ctx context.Context, labID *uint) (int64, error)
	Delete(ctx context.Context, id uint) error
	CreateTestCases(ctx context.Context, cases []models.TestCase) error
	ListTestCases(ctx context.Context, questionID uint) ([]models.TestCase, error)
	ListPublicTestCases(ctx context.Context, questionID uint, limit int) ([]models.TestCase, error)
	CountTestCases(ctx context.Context, questionIDs []uint) (map[uint]int64, error)
}

// NewQuestionRepository constructs a question repository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

type questionRepository struct {
	db *gorm.DB
}

func (r *questionRepository) Create(ctx context.Context, question *models.Question) error {
	return r.db.WithContext(ctx).Create(question).Error
}

func (r *questionRepository) GetByID(ctx context.Context, id uint) (models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).First(&question, id).Error; err != nil {
		return models.Question{}, err
	}
	return question, nil
}

func (r *questionRepository) ListByLab(ctx context.Context, labID uint) ([]models.Question, error) {
	var questions []models.Question
	err := r.db.WithContext(ctx).Where("lab_id = ?", labID).Order("id ASC").Find(&questions).Error
	return questions, err
}

// ListRefs returns every question in scope; a nil labID means all labs.
func (r *questionRepository) ListRefs(ctx context.Context, labID *uint) ([]QuestionRef, error) {
	var refs []QuestionRef
	query := r.db.WithContext(ctx).Model(&models.Question{}).Select("id, lab_id").Order("id ASC")
	if labID != nil {
		query = query.Where("lab_id = ?", *labID)
	}
	err := query.Scan(&refs).Error
	return refs, err
}

func (r *questionRepository) Count(ctx context.Context, labID *uint) (int64, error) {
	var total int64
	query := r.db.WithContext(ctx).Model(&models.Question{})
	if labID != nil {
		query = query.Where("lab_id = ?", *labID)
	}
	err := query.Count(&total).Error
	return total, err
}

func (r *questionRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&models.Question{}).Where("id = ?", id).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return gorm.ErrRecordNotFound
		}
		return deleteQuestions(tx, []uint{id})
	})
}

func (r *questionRepository) CreateTestCases(ctx context.Context, cases []models.TestCase) error {
	if len(cases) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&cases).Error
}

func (r *questionRepository) ListTestCases(ctx context.Context, questionID uint) ([]models.TestCase, error) {
	var cases []models.TestCase
	err := r.db.WithContext(ctx).
		Where("question_id = ?", questionID).
		Order("position ASC").
		Order("id ASC").
		Find(&cases).Error
	return cases, err
}

func (r *questionRepository) ListPublicTestCases(ctx context.Context, questionID uint, limit int) ([]models.TestCase, error) {
	var cases []models.TestCase
	query := r.db.WithContext(ctx).
		Where("question_id = ? AND is_public = ?", questionID, true).
		Order("position ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&cases).Error
	return cases, err
}

func (r *questionRepository) CountTestCases(ctx context.Context, questionIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(questionIDs))
	if len(questionIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		QuestionID uint
		Total      int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.TestCase{}).
		Select("question_id, COUNT(*) AS total").
		Where("question_id IN ?", questionIDs).
		Group("question_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.QuestionID] = row.Total
	}
	return counts, nil
}
