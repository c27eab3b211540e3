package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/oelp-api/internal/models"
)

// ProfileRepository exposes read access to user profiles.
type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, id uint) (models.Profile, error)
	ListByRole(ctx context.Context, role string) ([]models.Profile, error)
}

// NewProfileRepository constructs a profile repository.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

type profileRepository struct {
	db *gorm.DB
}

func (r *profileRepository) Create(ctx context.Context, profile *models.Profile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

func (r *profileRepository) GetByID(ctx context.Context, id uint) (models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).First(&profile, id).Error; err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}

// ListByRole returns profiles with the role in insertion order, which is the
// roster order used for ranking ties.
func (r *profileRepository) ListByRole(ctx context.Context, role string) ([]models.Profile, error) {
	var profiles []models.Profile
	err := r.db.WithContext(ctx).
		Where("LOWER(role) = ?", strings.ToLower(strings.TrimSpace(role))).
		Order("id ASC").
		Find(&profiles).Error
	return profiles, err
}
