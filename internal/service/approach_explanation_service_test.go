package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/pkg/llm"
)

func TestParseApproachExplanationFiltersSanitizationArtifacts(t *testing.T) {
	reply := "Here is the analysis:\n" + `{
  "approach_name": "Binary Search",
  "explanation": "Halves the window",
  "algorithm_details": "Iterative",
  "time_complexity": "O(log n)",
  "space_complexity": "O(1)",
  "issues_identified": ["Uses &lt; instead of <", "HTML entity in comparison", "hi is never decremented"],
  "correct_implementation": true
}`

	explanation, err := parseApproachExplanation(reply)
	require.NoError(t, err)
	require.Equal(t, "Binary Search", explanation.ApproachName)
	require.Equal(t, []string{"hi is never decremented"}, explanation.IssuesIdentified)
	require.False(t, explanation.CorrectImplementation)
}

func TestParseApproachExplanationArtifactsOnlyMeansCorrect(t *testing.T) {
	explanation, err := parseApproachExplanation(`{
  "approach_name": "Binary Search",
  "issues_identified": ["Escaped characters in code"],
  "correct_implementation": false
}`)
	require.NoError(t, err)
	require.Empty(t, explanation.IssuesIdentified)
	require.True(t, explanation.CorrectImplementation)
	require.Equal(t, "Unknown", explanation.TimeComplexity)
}

func TestParseApproachExplanationKeepsFlagWithoutIssues(t *testing.T) {
	explanation, err := parseApproachExplanation(`{"approach_name": "", "correct_implementation": false}`)
	require.NoError(t, err)
	require.Equal(t, "Unknown approach", explanation.ApproachName)
	require.False(t, explanation.CorrectImplementation)
	require.Empty(t, explanation.IssuesIdentified)
}

func TestExplainFallsBackOnUnparseableReply(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockResponse{Text: "I think it is a binary search."})
	svc := NewApproachExplanationService(provider, zerolog.Nop())

	explanation := svc.Explain(context.Background(), ExplanationInput{Code: binarySearchCode, Language: "java"})
	require.Equal(t, "Unknown approach", explanation.ApproachName)
	require.Equal(t, []string{"Failed to analyze the code properly"}, explanation.IssuesIdentified)
	require.False(t, explanation.CorrectImplementation)
}

func TestExplainFallsBackOnModelError(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockResponse{Err: errors.New("quota exhausted")})
	svc := NewApproachExplanationService(provider, zerolog.Nop())

	explanation := svc.Explain(context.Background(), ExplanationInput{Code: binarySearchCode})
	require.Equal(t, "Analysis Error", explanation.ApproachName)
	require.Contains(t, explanation.Explanation, "quota exhausted")
	require.False(t, explanation.CorrectImplementation)
}

func TestExplainLabelsLanguageAndProblem(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockResponse{Text: binarySearchExplanation})
	svc := NewApproachExplanationService(provider, zerolog.Nop())

	explanation := svc.Explain(context.Background(), ExplanationInput{Code: binarySearchCode, Language: "java", Problem: searchProblem})
	require.Equal(t, "Binary Search", explanation.ApproachName)
	require.True(t, explanation.CorrectImplementation)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	require.Contains(t, calls[0].Prompt, "STUDENT CODE (java):")
	require.Contains(t, calls[0].Prompt, searchProblem)
	require.InDelta(t, 0.2, calls[0].Temperature, 1e-9)
}

func TestFormatApproachExplanation(t *testing.T) {
	formatted := FormatApproachExplanation(ApproachExplanation{
		ApproachName:     "Binary Search",
		TimeComplexity:   "O(log n)",
		SpaceComplexity:  "O(1)",
		IssuesIdentified: []string{"misses empty input"},
	})

	require.Contains(t, formatted, "STUDENT'S APPROACH ANALYSIS:")
	require.Contains(t, formatted, "Approach: Binary Search")
	require.Contains(t, formatted, "Implementation Status: Has implementation issues")
	require.Contains(t, formatted, "- misses empty input")
}
