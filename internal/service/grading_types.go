package service

import (
	"github.com/noah-isme/gema-grader/internal/rubric"
)

// ApproachExplanation is a rubric-agnostic description of what submitted
// code actually implements.
type ApproachExplanation struct {
	ApproachName          string   `json:"approach_name"`
	Explanation           string   `json:"explanation"`
	AlgorithmDetails      string   `json:"algorithm_details"`
	TimeComplexity        string   `json:"time_complexity"`
	SpaceComplexity       string   `json:"space_complexity"`
	IssuesIdentified      []string `json:"issues_identified"`
	CorrectImplementation bool     `json:"correct_implementation"`
}

// ApproachEvaluation scores one rubric approach against one submission.
// Augmentation returns a new value; the raw judgement is left untouched.
type ApproachEvaluation struct {
	Approach      string   `json:"approach"`
	Confidence    float64  `json:"confidence"`
	Explanation   string   `json:"explanation"`
	KeyIndicators []string `json:"key_indicators"`
}

// ExtractedRubric is the approach selected for a submission together with
// the evidence that led to it.
type ExtractedRubric struct {
	Approach            string               `json:"approach"`
	Rubric              rubric.Approach      `json:"rubric"`
	Confidence          float64              `json:"confidence"`
	Explanation         string               `json:"explanation"`
	OriginalRubric      *rubric.Parsed       `json:"original_rubric"`
	MaxScore            int                  `json:"max_score"`
	AllEvaluations      []ApproachEvaluation `json:"all_evaluations"`
	ApproachExplanation *ApproachExplanation `json:"approach_explanation,omitempty"`
	Fallback            bool                 `json:"fallback"`
}

// AlgorithmGuidance holds approach-specific grading instructions.
type AlgorithmGuidance struct {
	AlgorithmType             string `json:"algorithm_type"`
	AlgorithmGuidance         string `json:"algorithm_guidance"`
	TestCases                 string `json:"test_cases"`
	CommonErrors              string `json:"common_errors"`
	KeyImplementationPatterns string `json:"key_implementation_patterns"`
	MisleadingPatterns        string `json:"misleading_patterns"`
}
