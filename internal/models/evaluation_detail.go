package models

import "time"

// EvaluationDetail stores the outcome of one rubric criterion.
type EvaluationDetail struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SubmissionID   uint      `gorm:"not null;index" json:"submission_id"`
	CriterionIndex int       `gorm:"not null" json:"criterion_index"`
	MaxScore       int       `gorm:"not null" json:"max_score"`
	ScoreObtained  int       `gorm:"not null" json:"score_obtained"`
	Feedback       string    `gorm:"type:text" json:"feedback"`
	CreatedAt      time.Time `json:"created_at"`
}
