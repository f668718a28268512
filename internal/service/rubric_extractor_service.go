package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/rubric"
	"github.com/noah-isme/gema-grader/pkg/llm"
	"github.com/noah-isme/gema-grader/pkg/llmjson"
)

// ErrRubricHasNoApproaches indicates the rubric text yielded nothing to grade against.
var ErrRubricHasNoApproaches = errors.New("rubric has no approaches")

const (
	approachEvaluationTemperature = 0.1

	// MatchBoost is added when the independent explanation names the approach.
	MatchBoost = 0.2
	// IncorrectPenalty is subtracted when the explanation reports defects.
	IncorrectPenalty = 0.2
	// FallbackConfidence is assigned when no approach scores above zero.
	FallbackConfidence = 0.1
)

// ExtractionInput is the sanitized material the approach selector works on.
type ExtractionInput struct {
	Problem       string
	Rubric        *rubric.Parsed
	Code          string
	Language      string
	ModelSolution string

	// Explanation is reused when present; otherwise it is generated.
	Explanation *ApproachExplanation
}

// RubricExtractorService picks the rubric approach a submission follows.
type RubricExtractorService interface {
	Extract(ctx context.Context, input ExtractionInput) (ExtractedRubric, error)
}

// RubricExtractorConfig tunes approach fan-out.
type RubricExtractorConfig struct {
	// MaxParallel bounds concurrent approach evaluations; zero means unbounded.
	MaxParallel int
}

type rubricExtractorService struct {
	llm       llm.Completer
	explainer ApproachExplanationService
	logger    zerolog.Logger
	config    RubricExtractorConfig
}

// NewRubricExtractorService constructs the approach disambiguation engine.
// explainer may be nil when callers always supply an explanation.
func NewRubricExtractorService(completer llm.Completer, explainer ApproachExplanationService, logger zerolog.Logger, cfg RubricExtractorConfig) RubricExtractorService {
	return &rubricExtractorService{
		llm:       completer,
		explainer: explainer,
		logger:    logger.With().Str("component", "rubric_extractor_service").Logger(),
		config:    cfg,
	}
}

func (s *rubricExtractorService) Extract(ctx context.Context, input ExtractionInput) (ExtractedRubric, error) {
	if input.Rubric == nil || input.Rubric.Len() == 0 {
		return ExtractedRubric{}, ErrRubricHasNoApproaches
	}

	explanation := input.Explanation
	if explanation == nil && s.explainer != nil {
		generated := s.explainer.Explain(ctx, ExplanationInput{Code: input.Code, Language: input.Language, Problem: input.Problem})
		explanation = &generated
	}

	evaluations := s.evaluateAll(ctx, input)
	if explanation != nil {
		evaluations = AugmentEvaluations(evaluations, *explanation, input.Rubric)
	}

	best, fallback := SelectApproach(evaluations, input.Rubric)
	outcome := "matched"
	if fallback {
		outcome = "fallback"
		s.logger.Warn().Str("approach", best.Approach).Msg("no approach with positive confidence, using fallback")
	}
	observability.ApproachSelections().WithLabelValues(outcome).Inc()

	selected, _ := input.Rubric.Approach(best.Approach)
	maxScore := rubric.MarksFor(input.Rubric, best.Approach)
	s.logger.Info().
		Str("approach", best.Approach).
		Float64("confidence", best.Confidence).
		Int("max_score", maxScore).
		Msg("selected rubric approach")

	return ExtractedRubric{
		Approach:            best.Approach,
		Rubric:              selected,
		Confidence:          best.Confidence,
		Explanation:         best.Explanation,
		OriginalRubric:      input.Rubric,
		MaxScore:            maxScore,
		AllEvaluations:      evaluations,
		ApproachExplanation: explanation,
		Fallback:            fallback,
	}, nil
}

// evaluateAll scores every approach concurrently. Each task converts its own
// failure into a zero-confidence record so siblings always finish.
func (s *rubricExtractorService) evaluateAll(ctx context.Context, input ExtractionInput) []ApproachEvaluation {
	keys := input.Rubric.Keys()
	results := make([]ApproachEvaluation, len(keys))

	var g errgroup.Group
	if s.config.MaxParallel > 0 {
		g.SetLimit(s.config.MaxParallel)
	}
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			approach, _ := input.Rubric.Approach(key)
			evaluation, err := s.evaluateApproach(ctx, input, key, approach)
			if err != nil {
				s.logger.Error().Err(err).Str("approach", key).Msg("approach evaluation failed")
				evaluation = ApproachEvaluation{
					Approach:      key,
					Confidence:    0,
					Explanation:   fmt.Sprintf("Error during evaluation: %v", err),
					KeyIndicators: []string{},
				}
			}
			results[i] = evaluation
			return nil
		})
	}
	_ = g.Wait()

	return results
}

type approachEvaluationPayload struct {
	Confidence    llmjson.Number  `json:"confidence"`
	Explanation   llmjson.Text    `json:"explanation"`
	KeyIndicators llmjson.Strings `json:"key_indicators"`
}

func (s *rubricExtractorService) evaluateApproach(ctx context.Context, input ExtractionInput, key string, approach rubric.Approach) (ApproachEvaluation, error) {
	ctx = llm.WithPurpose(ctx, "approach_evaluation")
	reply, err := s.llm.Complete(ctx, llm.Request{
		Prompt:      buildApproachEvaluationPrompt(input, key, approach),
		Temperature: approachEvaluationTemperature,
	})
	if err != nil {
		return ApproachEvaluation{}, err
	}

	payload, err := llmjson.DecodeAs[approachEvaluationPayload](reply)
	if err != nil {
		return ApproachEvaluation{}, err
	}

	indicators := []string(payload.KeyIndicators)
	if indicators == nil {
		indicators = []string{}
	}

	return ApproachEvaluation{
		Approach:      key,
		Confidence:    clampConfidence(float64(payload.Confidence)),
		Explanation:   payload.Explanation.String(),
		KeyIndicators: indicators,
	}, nil
}

// AugmentEvaluations folds the independent explanation into each evaluation
// and returns new records.
func AugmentEvaluations(evaluations []ApproachEvaluation, explanation ApproachExplanation, parsed *rubric.Parsed) []ApproachEvaluation {
	out := make([]ApproachEvaluation, 0, len(evaluations))
	detected := strings.ToLower(strings.TrimSpace(explanation.ApproachName))
	if detected == "unknown approach" || detected == "analysis error" {
		detected = ""
	}

	for _, evaluation := range evaluations {
		augmented := evaluation
		augmented.KeyIndicators = append([]string(nil), evaluation.KeyIndicators...)

		if detected != "" && approachMatches(detected, evaluation.Approach, parsed) {
			augmented.Confidence = clampConfidence(augmented.Confidence + MatchBoost)
			augmented.Explanation += fmt.Sprintf("\n\nApproach Explanation Boost: Detected matching approach '%s'", explanation.ApproachName)
		}

		if explanation.TimeComplexity != "Unknown" || explanation.SpaceComplexity != "Unknown" {
			augmented.Explanation += fmt.Sprintf("\n\nComplexity Insights:\n- Time Complexity: %s\n- Space Complexity: %s",
				explanation.TimeComplexity, explanation.SpaceComplexity)
		}

		if !explanation.CorrectImplementation {
			augmented.Confidence = clampConfidence(augmented.Confidence - IncorrectPenalty)
			augmented.Explanation += "\n\nWarning: Approach explanation identified potential implementation issues"
		}

		if len(explanation.IssuesIdentified) > 0 {
			augmented.Explanation += "\n\nIssues Identified:\n- " + strings.Join(explanation.IssuesIdentified, "\n- ")
		}

		out = append(out, augmented)
	}

	return out
}

// approachMatches compares the detected name with the approach key and its
// display name, case-insensitively and in both directions.
func approachMatches(detected, key string, parsed *rubric.Parsed) bool {
	candidates := []string{strings.ToLower(key)}
	if parsed != nil {
		if approach, ok := parsed.Approach(key); ok && strings.TrimSpace(approach.Name) != "" {
			candidates = append(candidates, strings.ToLower(strings.TrimSpace(approach.Name)))
		}
	}
	for _, candidate := range candidates {
		if strings.Contains(candidate, detected) || strings.Contains(detected, candidate) {
			return true
		}
	}
	return false
}

// SelectApproach returns the highest-confidence evaluation, annotated with a
// comparison against the runners-up. When nothing scores above zero the first
// rubric approach is returned with FallbackConfidence and fallback=true.
func SelectApproach(evaluations []ApproachEvaluation, parsed *rubric.Parsed) (ApproachEvaluation, bool) {
	sorted := make([]ApproachEvaluation, len(evaluations))
	copy(sorted, evaluations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	if len(sorted) > 0 && sorted[0].Confidence > 0 {
		best := sorted[0]
		if len(sorted) > 1 {
			var comparison strings.Builder
			comparison.WriteString("Comparison with other approaches:")
			for _, other := range sorted[1:] {
				fmt.Fprintf(&comparison, "\n- %s: %.2f (%.2f lower confidence)", other.Approach, other.Confidence, best.Confidence-other.Confidence)
			}
			best.Explanation += "\n\n" + comparison.String()
		}
		return best, false
	}

	first := ""
	if keys := parsed.Keys(); len(keys) > 0 {
		first = keys[0]
	}
	return ApproachEvaluation{
		Approach:      first,
		Confidence:    FallbackConfidence,
		Explanation:   "No approach matched with positive confidence. Using fallback approach.",
		KeyIndicators: []string{},
	}, true
}

// clampConfidence bounds value to [0, 1] and drops float noise from the
// additive adjustments.
func clampConfidence(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return math.Round(value*1e6) / 1e6
	}
}

// FormatRubricForEvaluation renders the selected approach as an enumerated list.
func FormatRubricForEvaluation(extracted ExtractedRubric) string {
	return rubric.FormatApproach(extracted.Approach, extracted.Rubric)
}

func buildApproachEvaluationPrompt(input ExtractionInput, key string, approach rubric.Approach) string {
	var description strings.Builder
	fmt.Fprintf(&description, "%s: %s", key, approach.Name)
	for _, line := range rubric.FormatPoints(approach) {
		description.WriteString("\n  " + line)
	}

	var b strings.Builder
	b.WriteString("You are an expert code evaluator specializing in identifying programming approaches.\n\n")
	fmt.Fprintf(&b, "PROBLEM STATEMENT:\n%s\n\n", input.Problem)
	fmt.Fprintf(&b, "YOU ARE EVALUATING THE FOLLOWING APPROACH ONLY:\n%s\n\n", description.String())
	fmt.Fprintf(&b, "STUDENT SOLUTION (SANITIZED):\n%s\n\n", input.Code)
	if strings.TrimSpace(input.ModelSolution) != "" {
		fmt.Fprintf(&b, "MODEL SOLUTION:\n%s\n\n", input.ModelSolution)
	}
	fmt.Fprintf(&b, `INSTRUCTIONS:
1. Analyze the student's solution, focusing on the algorithm and implementation style
2. Determine how well it matches the approach described above
3. Consider time complexity, space usage and implementation pattern
4. Cite specific evidence in the code that supports or contradicts this approach
5. Evaluate this ONE approach only
6. Be objective and thorough

Respond with a JSON object:
{
  "approach": "%s",
  "confidence": 0.0,
  "explanation": "Explanation with specific code evidence for the confidence level",
  "key_indicators": ["Code patterns that indicate this approach"]
}

Confidence reflects how likely the solution follows this approach:
- 0.8-1.0: strong match with clear evidence
- 0.5-0.8: moderate match with some differences
- 0.3-0.5: weak match with significant differences
- 0.0-0.3: very poor match, fundamentally different approach

Return only the JSON object.`, key)
	return b.String()
}
