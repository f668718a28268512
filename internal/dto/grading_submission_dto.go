package dto

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/noah-isme/gema-grader/internal/models"
)

// SubmitRequest queues code for asynchronous grading against a stored problem.
type SubmitRequest struct {
	ProblemID uint   `json:"problem_id" validate:"required,gt=0"`
	Code      string `json:"code" validate:"required,min=1"`
	Language  string `json:"language" validate:"omitempty,max=32"`
}

// SubmitResponse acknowledges a queued submission.
type SubmitResponse struct {
	SubmissionID uint   `json:"submission_id"`
	Status       string `json:"status"`
	Message      string `json:"message"`
}

// SubmissionStatusResponse reports grading progress.
type SubmissionStatusResponse struct {
	SubmissionID uint    `json:"submission_id"`
	Status       string  `json:"status"`
	Message      string  `json:"message"`
	Score        *int    `json:"score,omitempty"`
	MaxScore     *int    `json:"max_score,omitempty"`
	Error        *string `json:"error,omitempty"`
}

// NewSubmissionStatusResponse describes a submission's state.
func NewSubmissionStatusResponse(submission models.Submission) SubmissionStatusResponse {
	response := SubmissionStatusResponse{
		SubmissionID: submission.ID,
		Status:       submission.Status,
	}

	switch submission.Status {
	case models.SubmissionStatusPending:
		response.Message = "Evaluation in progress"
	case models.SubmissionStatusCompleted:
		response.Message = "Evaluation completed"
		score, maxScore := submission.TotalScore, submission.MaxScore
		response.Score = &score
		response.MaxScore = &maxScore
	case models.SubmissionStatusRejected:
		response.Message = "Submission rejected by security checks"
		response.Error = stringPtr(submission.Error)
	default:
		response.Message = "Evaluation failed"
		response.Error = stringPtr(submission.Error)
	}

	return response
}

// SubmissionHistoryItem is one row of a user's submission history.
type SubmissionHistoryItem struct {
	SubmissionID uint      `json:"submission_id"`
	ProblemID    uint      `json:"problem_id"`
	ProblemTitle string    `json:"problem_title"`
	Language     string    `json:"language"`
	Status       string    `json:"status"`
	Score        *int      `json:"score"`
	MaxScore     *int      `json:"max_score"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// NewSubmissionHistory converts submissions into history rows.
func NewSubmissionHistory(submissions []models.Submission) []SubmissionHistoryItem {
	items := make([]SubmissionHistoryItem, 0, len(submissions))
	for _, submission := range submissions {
		item := SubmissionHistoryItem{
			SubmissionID: submission.ID,
			ProblemID:    submission.ProblemID,
			ProblemTitle: submission.Problem.Title,
			Language:     submission.Language,
			Status:       submission.Status,
			SubmittedAt:  submission.CreatedAt,
		}
		if submission.Status == models.SubmissionStatusCompleted {
			score, maxScore := submission.TotalScore, submission.MaxScore
			item.Score = &score
			item.MaxScore = &maxScore
		}
		items = append(items, item)
	}
	return items
}

// SubmissionResultResponse is the stored grading outcome of a submission.
type SubmissionResultResponse struct {
	SubmissionID uint               `json:"submission_id"`
	Evaluation   EvaluationResponse `json:"evaluation"`
	Analysis     json.RawMessage    `json:"analysis,omitempty"`
}

// NewSubmissionResultResponse rebuilds an EvaluationResponse from stored details.
func NewSubmissionResultResponse(submission models.Submission) SubmissionResultResponse {
	details := make([]models.EvaluationDetail, len(submission.Details))
	copy(details, submission.Details)
	sort.Slice(details, func(i, j int) bool { return details[i].CriterionIndex < details[j].CriterionIndex })

	feedback := make(map[string]FeedbackItem, len(details))
	for _, detail := range details {
		feedback[strconv.Itoa(detail.CriterionIndex)] = FeedbackItem{
			PointsAwarded: detail.ScoreObtained,
			MaxPoints:     detail.MaxScore,
			Feedback:      detail.Feedback,
		}
	}

	response := SubmissionResultResponse{
		SubmissionID: submission.ID,
		Evaluation: EvaluationResponse{
			Score:    submission.TotalScore,
			MaxScore: submission.MaxScore,
			Feedback: feedback,
			Approach: submission.Approach,
			Error:    stringPtr(submission.Error),
		},
	}
	if len(submission.Analysis) > 0 {
		response.Analysis = json.RawMessage(submission.Analysis)
	}
	return response
}

// ProblemRequest creates a problem.
type ProblemRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"required"`
	Topic       string `json:"topic" validate:"omitempty,max=128"`
	Rubric      string `json:"rubric" validate:"required"`
	Editorial   string `json:"editorial"`
	ExamplesDir string `json:"examples_dir" validate:"omitempty,max=512"`
}

// ProblemResponse describes a problem to API consumers.
type ProblemResponse struct {
	ID          uint     `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Summary     string   `json:"summary"`
	Topic       string   `json:"topic"`
	Rubric      string   `json:"rubric,omitempty"`
	Approaches  []string `json:"approaches"`
	TotalMarks  int      `json:"total_marks"`
}

func stringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
