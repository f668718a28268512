package dto

import (
	"github.com/noah-isme/gema-grader/internal/rubric"
)

// Evaluation modes.
const (
	EvaluationModeComplete  = "complete"
	EvaluationModePointwise = "pointwise"
)

// EvaluateRequest is the synchronous grading payload.
type EvaluateRequest struct {
	ProblemStatement string `json:"problem_statement" validate:"required"`
	Rubric           string `json:"rubric" validate:"required"`
	StudentCode      string `json:"student_code" validate:"required"`
	ModelSolution    string `json:"model_solution"`
	ExamplesDir      string `json:"examples_dir"`
	Language         string `json:"language" validate:"omitempty,max=32"`
	Mode             string `json:"mode" validate:"omitempty,oneof=complete pointwise"`
}

// FeedbackItem is the graded outcome of one rubric criterion.
type FeedbackItem struct {
	PointsAwarded int    `json:"points_awarded"`
	MaxPoints     int    `json:"max_points"`
	Feedback      string `json:"feedback"`
}

// EvaluationResponse is the result of grading one submission. Score is the
// sum of PointsAwarded and every item satisfies PointsAwarded <= MaxPoints.
type EvaluationResponse struct {
	Score    int                     `json:"score"`
	MaxScore int                     `json:"max_score"`
	Feedback map[string]FeedbackItem `json:"feedback"`
	Approach string                  `json:"approach,omitempty"`
	Summary  string                  `json:"summary,omitempty"`
	Error    *string                 `json:"error"`
	// SecurityIssues is set only when the code was rejected by the
	// injection guard before grading.
	SecurityIssues []string `json:"security_issues,omitempty"`
}

// Failed reports whether the evaluation carries an error.
func (r EvaluationResponse) Failed() bool {
	return r.Error != nil
}

// Rejected reports whether the code was refused by the injection guard.
func (r EvaluationResponse) Rejected() bool {
	return len(r.SecurityIssues) > 0
}

// NewFailedEvaluation builds the zero-score response returned on any pipeline error.
func NewFailedEvaluation(message string) EvaluationResponse {
	return EvaluationResponse{
		Score:    0,
		MaxScore: 0,
		Feedback: map[string]FeedbackItem{},
		Error:    &message,
	}
}

// NewRejectedEvaluation builds the response for code that failed the
// injection guard. It is a failure, not a zero score.
func NewRejectedEvaluation(message string, issues []string) EvaluationResponse {
	response := NewFailedEvaluation(message)
	response.SecurityIssues = append([]string{}, issues...)
	return response
}

// SecurityCheckRequest asks for an injection check of code.
type SecurityCheckRequest struct {
	Code string `json:"code" validate:"required"`
}

// SecurityCheckResponse reports the combined injection checks.
type SecurityCheckResponse struct {
	Passed bool     `json:"passed"`
	Issues []string `json:"issues"`
}

// RubricParseRequest carries raw rubric text.
type RubricParseRequest struct {
	Rubric string `json:"rubric" validate:"required"`
}

// RubricParseResponse is the structured rubric with its derived totals.
type RubricParseResponse struct {
	Rubric       *rubric.Parsed `json:"rubric"`
	TotalMarks   int            `json:"total_marks"`
	BestApproach string         `json:"best_approach"`
}

// NewRubricParseResponse derives totals from a parsed rubric.
func NewRubricParseResponse(parsed *rubric.Parsed) RubricParseResponse {
	return RubricParseResponse{
		Rubric:       parsed,
		TotalMarks:   rubric.TotalMarks(parsed),
		BestApproach: rubric.BestByMarks(parsed),
	}
}
