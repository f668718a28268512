package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	// SubmissionStatusPending indicates the submission is queued for grading.
	SubmissionStatusPending = "pending"
	// SubmissionStatusCompleted indicates grading finished with a score.
	SubmissionStatusCompleted = "completed"
	// SubmissionStatusError indicates grading finished without a usable score.
	SubmissionStatusError = "error"
	// SubmissionStatusRejected indicates the injection guard refused the code.
	SubmissionStatusRejected = "rejected"
)

// Submission is a student's code submitted against a problem.
type Submission struct {
	ID         uint               `gorm:"primaryKey" json:"id"`
	UserID     uint               `gorm:"not null;index" json:"user_id"`
	ProblemID  uint               `gorm:"not null;index" json:"problem_id"`
	Code       string             `gorm:"type:text;not null" json:"code"`
	Language   string             `gorm:"size:32;not null" json:"language"`
	Status     string             `gorm:"size:32;not null;index" json:"status"`
	TotalScore int                `gorm:"default:0" json:"total_score"`
	MaxScore   int                `gorm:"default:0" json:"max_score"`
	Approach   string             `gorm:"size:64" json:"approach"`
	Error      string             `gorm:"type:text" json:"error"`
	Analysis   datatypes.JSON     `json:"analysis"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	Problem    Problem            `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"problem"`
	Details    []EvaluationDetail `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"details"`
}

// IsFinal reports whether grading has finished, successfully or not.
func (s Submission) IsFinal() bool {
	return s.Status != SubmissionStatusPending
}
