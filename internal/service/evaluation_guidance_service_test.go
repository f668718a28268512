package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/examples"
	"github.com/noah-isme/gema-grader/internal/rubric"
	"github.com/noah-isme/gema-grader/pkg/llm"
)

func binarySearchExtraction(t *testing.T) ExtractedRubric {
	t.Helper()
	parsed := rubric.Parse(searchRubric)
	approach, ok := parsed.Approach("Solution 1")
	require.True(t, ok)
	return ExtractedRubric{
		Approach:       "Solution 1",
		Rubric:         approach,
		Confidence:     0.9,
		Explanation:    "strong match",
		OriginalRubric: parsed,
		MaxScore:       approach.MaxScore(),
	}
}

func TestParseGuidanceFillsMissingFields(t *testing.T) {
	guidance, err := parseGuidance(`{"algorithm_type": "Binary Search", "test_cases": "[1,2,3], 2 -> 1"}`, "Solution 1")
	require.NoError(t, err)

	require.Equal(t, "Binary Search", guidance.AlgorithmType)
	require.Equal(t, "[1,2,3], 2 -> 1", guidance.TestCases)
	require.Equal(t, "No specific algorithm_guidance provided for Solution 1", guidance.AlgorithmGuidance)
	require.Equal(t, "No specific misleading_patterns provided for Solution 1", guidance.MisleadingPatterns)
}

func TestSynthesizeFallsBackOnModelError(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockResponse{Err: errors.New("rate limited")})
	svc := NewEvaluationGuidanceService(provider, nil, time.Hour, zerolog.Nop())

	guidance := svc.Synthesize(context.Background(), GuidanceInput{Problem: searchProblem, Extracted: binarySearchExtraction(t)})
	require.Equal(t, FallbackGuidance("Solution 1"), guidance)
	require.Contains(t, guidance.AlgorithmGuidance, "approach 'Solution 1'")
}

func TestSynthesizeFallsBackOnUnparseableReply(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockResponse{Text: "Look for a loop."})
	svc := NewEvaluationGuidanceService(provider, nil, time.Hour, zerolog.Nop())

	guidance := svc.Synthesize(context.Background(), GuidanceInput{Problem: searchProblem})
	require.Equal(t, "Unknown", guidance.AlgorithmType)
}

func TestSynthesizeIncludesExamples(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockResponse{Text: searchGuidance})
	svc := NewEvaluationGuidanceService(provider, nil, time.Hour, zerolog.Nop())

	svc.Synthesize(context.Background(), GuidanceInput{
		Problem:   searchProblem,
		Extracted: binarySearchExtraction(t),
		Examples: &examples.Examples{
			Editorial: "Use two pointers.",
			Correct: []examples.Solution{
				{Name: "Correct1", Code: "correct one"},
				{Name: "Correct2", Code: "correct two"},
				{Name: "Correct3", Code: "correct three"},
			},
			Incorrect: []examples.Solution{{Name: "OffByOne", Code: "hi = n"}},
			Feedback:  map[string]string{"OffByOne": "hi must start at n-1"},
		},
	})

	prompt := provider.Calls()[0].Prompt
	require.Contains(t, prompt, "EDITORIAL SOLUTION:\nUse two pointers.")
	require.Contains(t, prompt, "correct two")
	require.NotContains(t, prompt, "correct three")
	require.Contains(t, prompt, "ERROR TYPE: OffByOne")
	require.Contains(t, prompt, "hi must start at n-1")
	require.Contains(t, prompt, "SELECTED APPROACH: Solution 1 (Binary Search)")
}

func TestGuidancePromptCountsOnlyIncorrectExamplesWithFeedback(t *testing.T) {
	prompt := buildGuidancePrompt(GuidanceInput{
		Problem:   searchProblem,
		Extracted: binarySearchExtraction(t),
		Examples: &examples.Examples{
			Incorrect: []examples.Solution{
				{Name: "NoFeedback", Code: "unexplained"},
				{Name: "OffByOne", Code: "hi = n"},
				{Name: "WrongMid", Code: "mid = lo + hi"},
				{Name: "NoReturn", Code: "pass"},
			},
			Feedback: map[string]string{
				"OffByOne": "hi must start at n-1",
				"WrongMid": "mid must be halved",
				"NoReturn": "must return -1",
			},
		},
	}, "Solution 1")

	require.NotContains(t, prompt, "NoFeedback")
	require.Contains(t, prompt, "ERROR TYPE: OffByOne")
	require.Contains(t, prompt, "ERROR TYPE: WrongMid")
	require.NotContains(t, prompt, "NoReturn")
	require.Equal(t, 2, strings.Count(prompt, "ERROR TYPE:"))

	bare := buildGuidancePrompt(GuidanceInput{
		Problem:   searchProblem,
		Extracted: binarySearchExtraction(t),
		Examples:  &examples.Examples{Incorrect: []examples.Solution{{Name: "Lonely", Code: "x"}}, Feedback: map[string]string{"Other": "y"}},
	}, "Solution 1")
	require.NotContains(t, bare, "COMMON ERRORS AND FEEDBACK")
}

func TestSynthesizeCachesSuccessfulGuidance(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	provider := llm.NewMockProvider(
		llm.MockResponse{Err: errors.New("temporary outage")},
		llm.MockResponse{Text: searchGuidance},
	)
	svc := NewEvaluationGuidanceService(provider, client, time.Hour, zerolog.Nop())
	input := GuidanceInput{Problem: searchProblem, Extracted: binarySearchExtraction(t)}

	first := svc.Synthesize(context.Background(), input)
	require.Equal(t, FallbackGuidance("Solution 1"), first)
	require.Empty(t, server.Keys(), "fallback guidance is not cached")

	second := svc.Synthesize(context.Background(), input)
	require.Equal(t, "Binary Search", second.AlgorithmType)
	require.Len(t, server.Keys(), 1)
	require.Contains(t, server.Keys()[0], ":Solution_1")

	third := svc.Synthesize(context.Background(), input)
	require.Equal(t, second, third)
	require.Equal(t, 2, provider.CallCount())

	input.Problem = "A different problem"
	svc.Synthesize(context.Background(), input)
	require.Equal(t, 3, provider.CallCount())
}

func TestSynthesizeIgnoresUnavailableCache(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	defer client.Close()
	server.Close()

	provider := llm.NewMockProvider(llm.MockResponse{Text: searchGuidance})
	svc := NewEvaluationGuidanceService(provider, client, time.Hour, zerolog.Nop())

	guidance := svc.Synthesize(context.Background(), GuidanceInput{Problem: searchProblem, Extracted: binarySearchExtraction(t)})
	require.Equal(t, "Binary Search", guidance.AlgorithmType)
}
