package models

import "time"

// PlagiarismReport is produced once when a question is evaluated and is
// immutable afterwards. One report per question.
type PlagiarismReport struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	QuestionID uint             `gorm:"not null;uniqueIndex" json:"question_id"`
	Threshold  float64          `gorm:"not null" json:"threshold"`
	Bucket     string           `gorm:"size:255;not null" json:"bucket"`
	Pairs      []PlagiarismPair `gorm:"foreignKey:ReportID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"pairs"`
	CreatedAt  time.Time        `json:"created_at"`
}

// PlagiarismPair is one pairwise comparison between two stored submission
// artifacts.
type PlagiarismPair struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	ReportID   uint    `gorm:"not null;index" json:"report_id"`
	File1      string  `gorm:"size:255;not null" json:"file1"`
	File2      string  `gorm:"size:255;not null" json:"file2"`
	Similarity float64 `gorm:"not null" json:"similarity"`
	Flagged    bool    `gorm:"not null" json:"plagiarism_flag"`
	Position   int     `gorm:"not null" json:"position"`
}

// Normalize re-derives every pair's flag from the report threshold. The flag
// must equal (similarity >= threshold) no matter what the comparator
// produced.
func (r *PlagiarismReport) Normalize() {
	for i := range r.Pairs {
		r.Pairs[i].Flagged = r.Pairs[i].Similarity >= r.Threshold
	}
}
