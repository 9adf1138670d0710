package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/campuscode/autograder-api/internal/models"
)

// ClassRepository exposes persistence helpers for classes and enrolments.
type ClassRepository interface {
	GetByID(ctx context.Context, id uint) (models.Class, error)
	ListByInstructor(ctx context.Context, instructorID uint) ([]models.Class, error)
	ListEnrolled(ctx context.Context, studentID uint) ([]models.Class, error)
	IsEnrolled(ctx context.Context, classID, studentID uint) (bool, error)
}

// NewClassRepository constructs a class repository.
func NewClassRepository(db *gorm.DB) ClassRepository {
	return &classRepository{db: db}
}

type classRepository struct {
	db *gorm.DB
}

func (r *classRepository) GetByID(ctx context.Context, id uint) (models.Class, error) {
	var class models.Class
	err := r.db.WithContext(ctx).Preload("Instructor").First(&class, id).Error
	if err != nil {
		return models.Class{}, err
	}
	return class, nil
}

func (r *classRepository) ListByInstructor(ctx context.Context, instructorID uint) ([]models.Class, error) {
	var classes []models.Class
	err := r.db.WithContext(ctx).
		Where("instructor_id = ?", instructorID).
		Order("id ASC").
		Find(&classes).Error
	return classes, err
}

func (r *classRepository) ListEnrolled(ctx context.Context, studentID uint) ([]models.Class, error) {
	var classes []models.Class
	err := r.db.WithContext(ctx).
		Preload("Instructor").
		Joins("JOIN enrollments ON enrollments.class_id = classes.id").
		Where("enrollments.student_id = ?", studentID).
		Order("classes.id ASC").
		Find(&classes).Error
	return classes, err
}

func (r *classRepository) IsEnrolled(ctx context.Context, classID, studentID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("class_id = ? AND student_id = ?", classID, studentID).
		Count(&count).Error
	return count > 0, err
}
