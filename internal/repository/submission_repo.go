package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/campuscode/autograder-api/internal/models"
)

// ErrDuplicateSubmission indicates a second final submission for the same
// (question, student) pair was attempted.
var ErrDuplicateSubmission = errors.New("submission already exists")

// SubmissionRepository exposes persistence helpers for final submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByQuestionAndStudent(ctx context.Context, questionID, studentID uint) (models.Submission, error)
	ListByQuestion(ctx context.Context, questionID uint) ([]models.Submission, error)
	SaveGrade(ctx context.Context, id uint, score float64, feedback string, results datatypes.JSON) error
	Delete(ctx context.Context, id uint) error
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

type submissionRepository struct {
	db *gorm.DB
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	err := r.db.WithContext(ctx).Create(submission).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return ErrDuplicateSubmission
	}
	return err
}

func (r *submissionRepository) GetByQuestionAndStudent(ctx context.Context, questionID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).
		Where("question_id = ? AND student_id = ?", questionID, studentID).
		First(&submission).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) ListByQuestion(ctx context.Context, questionID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.db.WithContext(ctx).
		Where("question_id = ?", questionID).
		Order("student_id ASC").
		Find(&submissions).Error
	return submissions, err
}

func (r *submissionRepository) SaveGrade(ctx context.Context, id uint, score float64, feedback string, results datatypes.JSON) error {
	return r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"score":    score,
			"feedback": feedback,
			"results":  results,
			"status":   models.SubmissionStatusGraded,
		}).Error
}

func (r *submissionRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Submission{}, id).Error
}

// isUniqueViolation catches drivers that report constraint violations without
// the gorm translated error, sqlite in particular.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
