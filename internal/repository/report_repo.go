package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/campuscode/autograder-api/internal/models"
)

// ReportRepository exposes persistence helpers for plagiarism reports.
type ReportRepository interface {
	Create(ctx context.Context, report *models.PlagiarismReport) error
	GetByQuestion(ctx context.Context, questionID uint) (models.PlagiarismReport, error)
}

// NewReportRepository constructs a report repository.
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

type reportRepository struct {
	db *gorm.DB
}

func (r *reportRepository) Create(ctx context.Context, report *models.PlagiarismReport) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *reportRepository) GetByQuestion(ctx context.Context, questionID uint) (models.PlagiarismReport, error) {
	var report models.PlagiarismReport
	err := r.db.WithContext(ctx).
		Preload("Pairs", func(db *gorm.DB) *gorm.DB {
			return db.Order("plagiarism_pairs.position ASC")
		}).
		Where("question_id = ?", questionID).
		First(&report).Error
	if err != nil {
		return models.PlagiarismReport{}, err
	}
	return report, nil
}
