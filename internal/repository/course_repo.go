package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/acadops/campus-api/internal/models"
)

// CourseRepository resolves course references for the assignment lifecycle.
type CourseRepository interface {
	GetByID(ctx context.Context, id uint) (models.Course, error)
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository instantiates the repository.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) GetByID(ctx context.Context, id uint) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).Preload("Faculty").First(&course, id).Error; err != nil {
		return models.Course{}, err
	}

	return course, nil
}
