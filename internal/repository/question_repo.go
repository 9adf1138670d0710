package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/campuscode/autograder-api/internal/models"
)

// QuestionRepository exposes persistence helpers for questions.
type QuestionRepository interface {
	Create(ctx context.Context, question *models.Question) error
	GetByID(ctx context.Context, id uint) (models.Question, error)
	ListByClass(ctx context.Context, classID uint) ([]models.Question, error)
	// Close flips an open question to closed. It reports false when the
	// question was already closed, which makes the open->closed transition
	// race-safe at the database level.
	Close(ctx context.Context, id uint) (bool, error)
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
	err := r.db.WithContext(ctx).
		Preload("TestCases", func(db *gorm.DB) *gorm.DB {
			return db.Order("test_cases.position ASC")
		}).
		First(&question, id).Error
	if err != nil {
		return models.Question{}, err
	}
	return question, nil
}

func (r *questionRepository) ListByClass(ctx context.Context, classID uint) ([]models.Question, error) {
	var questions []models.Question
	err := r.db.WithContext(ctx).
		Where("class_id = ?", classID).
		Order("id ASC").
		Find(&questions).Error
	return questions, err
}

func (r *questionRepository) Close(ctx context.Context, id uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Question{}).
		Where("id = ? AND status = ?", id, models.QuestionStatusOpen).
		Update("status", models.QuestionStatusClosed)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
