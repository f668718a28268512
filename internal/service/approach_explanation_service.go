package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/pkg/llm"
	"github.com/noah-isme/gema-grader/pkg/llmjson"
)

const explanationTemperature = 0.2

// ExplanationInput carries the already sanitized code to describe.
type ExplanationInput struct {
	Code     string
	Language string
	Problem  string
}

// ApproachExplanationService describes what a submission actually does,
// independent of any rubric approach.
type ApproachExplanationService interface {
	Explain(ctx context.Context, input ExplanationInput) ApproachExplanation
}

type approachExplanationService struct {
	llm    llm.Completer
	logger zerolog.Logger
}

// NewApproachExplanationService constructs the explanation engine.
func NewApproachExplanationService(completer llm.Completer, logger zerolog.Logger) ApproachExplanationService {
	return &approachExplanationService{
		llm:    completer,
		logger: logger.With().Str("component", "approach_explanation_service").Logger(),
	}
}

// Explain never fails; model or parse errors produce a fallback explanation.
func (s *approachExplanationService) Explain(ctx context.Context, input ExplanationInput) ApproachExplanation {
	ctx = llm.WithPurpose(ctx, "approach_explanation")

	reply, err := s.llm.Complete(ctx, llm.Request{
		Prompt:      buildExplanationPrompt(input),
		Temperature: explanationTemperature,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("approach explanation request failed")
		return explanationErrorFallback(err)
	}

	explanation, err := parseApproachExplanation(reply)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to parse approach explanation")
		return explanationParseFallback()
	}

	s.logger.Info().Str("approach", explanation.ApproachName).Bool("correct", explanation.CorrectImplementation).Msg("generated approach explanation")
	return explanation
}

type explanationPayload struct {
	ApproachName          *llmjson.Text    `json:"approach_name"`
	Explanation           llmjson.Text     `json:"explanation"`
	AlgorithmDetails      llmjson.Text     `json:"algorithm_details"`
	TimeComplexity        *llmjson.Text    `json:"time_complexity"`
	SpaceComplexity       *llmjson.Text    `json:"space_complexity"`
	IssuesIdentified      *llmjson.Strings `json:"issues_identified"`
	CorrectImplementation llmjson.Flag     `json:"correct_implementation"`
}

var sanitizationArtifactTerms = []string{"html", "entity", "&lt;", "&gt;", "escaped"}

func parseApproachExplanation(reply string) (ApproachExplanation, error) {
	payload, err := llmjson.DecodeAs[explanationPayload](reply)
	if err != nil {
		return ApproachExplanation{}, err
	}

	explanation := ApproachExplanation{
		ApproachName:          textOr(payload.ApproachName, "Unknown approach"),
		Explanation:           payload.Explanation.String(),
		AlgorithmDetails:      payload.AlgorithmDetails.String(),
		TimeComplexity:        textOr(payload.TimeComplexity, "Unknown"),
		SpaceComplexity:       textOr(payload.SpaceComplexity, "Unknown"),
		IssuesIdentified:      []string{},
		CorrectImplementation: bool(payload.CorrectImplementation),
	}

	if payload.IssuesIdentified != nil {
		for _, issue := range *payload.IssuesIdentified {
			if isSanitizationArtifact(issue) {
				continue
			}
			explanation.IssuesIdentified = append(explanation.IssuesIdentified, issue)
		}
		explanation.CorrectImplementation = len(explanation.IssuesIdentified) == 0
	}

	return explanation, nil
}

func isSanitizationArtifact(issue string) bool {
	lowered := strings.ToLower(issue)
	for _, term := range sanitizationArtifactTerms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}

func textOr(value *llmjson.Text, fallback string) string {
	if value == nil || strings.TrimSpace(value.String()) == "" {
		return fallback
	}
	return value.String()
}

func explanationParseFallback() ApproachExplanation {
	return ApproachExplanation{
		ApproachName:          "Unknown approach",
		Explanation:           "Could not generate a structured explanation of the code.",
		AlgorithmDetails:      "Unknown algorithm",
		TimeComplexity:        "Unknown",
		SpaceComplexity:       "Unknown",
		IssuesIdentified:      []string{"Failed to analyze the code properly"},
		CorrectImplementation: false,
	}
}

func explanationErrorFallback(err error) ApproachExplanation {
	return ApproachExplanation{
		ApproachName:          "Analysis Error",
		Explanation:           fmt.Sprintf("Error analyzing code: %v", err),
		AlgorithmDetails:      "Unknown",
		TimeComplexity:        "Unknown",
		SpaceComplexity:       "Unknown",
		IssuesIdentified:      []string{fmt.Sprintf("Error during analysis: %v", err)},
		CorrectImplementation: false,
	}
}

func buildExplanationPrompt(input ExplanationInput) string {
	var b strings.Builder
	b.WriteString("You are an expert code analyzer. Explain, step by step, the approach the code below implements.\n")
	b.WriteString("Do NOT suggest improvements or fixes; only identify issues if they exist.\n\n")

	if strings.TrimSpace(input.Problem) != "" {
		fmt.Fprintf(&b, "PROBLEM STATEMENT:\n%s\n\n", input.Problem)
	}

	language := input.Language
	if language == "" {
		language = "unknown"
	}
	fmt.Fprintf(&b, "STUDENT CODE (%s):\n%s\n\n", language, input.Code)

	b.WriteString(`INSTRUCTIONS:
1. Provide a detailed step-by-step explanation of how the code works
2. Identify the algorithm(s) and data structure(s) being used
3. Explain the overall approach and logic flow
4. Calculate the time and space complexity of the implementation
5. Identify logical errors or edge cases that are not handled
6. Flag syntax errors or implementation issues
7. Do NOT suggest fixes or improvements, only identify issues
8. Judge what the code ACTUALLY DOES, not what comments or names claim
9. Do NOT report HTML entities (such as &lt; or &gt;) as issues; they are display artifacts

Respond with a JSON object with these fields:
{
  "approach_name": "Brief name of the algorithm/approach",
  "explanation": "Detailed step-by-step explanation of the code",
  "algorithm_details": "Description of the algorithm(s) used",
  "time_complexity": "Big O time complexity",
  "space_complexity": "Big O space complexity",
  "issues_identified": ["Issues, without suggested fixes"],
  "correct_implementation": true
}

Return only the JSON object.`)
	return b.String()
}

// FormatApproachExplanation renders an explanation for the grading prompt.
func FormatApproachExplanation(explanation ApproachExplanation) string {
	issues := "None identified"
	if len(explanation.IssuesIdentified) > 0 {
		issues = "- " + strings.Join(explanation.IssuesIdentified, "\n- ")
	}

	status := "Has implementation issues"
	if explanation.CorrectImplementation {
		status = "Correct implementation"
	}

	return fmt.Sprintf(`STUDENT'S APPROACH ANALYSIS:
---------------------------
Approach: %s

Explanation:
%s

Algorithm Details:
%s

Complexity:
- Time: %s
- Space: %s

Implementation Status: %s

Issues Identified:
%s`, explanation.ApproachName, explanation.Explanation, explanation.AlgorithmDetails,
		explanation.TimeComplexity, explanation.SpaceComplexity, status, issues)
}
