package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/examples"
	"github.com/noah-isme/gema-grader/internal/rubric"
	"github.com/noah-isme/gema-grader/pkg/llm"
	"github.com/noah-isme/gema-grader/pkg/llmjson"
)

const (
	guidanceTemperature  = 0.3
	maxCorrectExamples   = 2
	maxIncorrectExamples = 2
)

// GuidanceInput is the material guidance is synthesized from.
type GuidanceInput struct {
	Problem   string
	Extracted ExtractedRubric
	Examples  *examples.Examples
}

// EvaluationGuidanceService produces approach-specific grading guidance.
type EvaluationGuidanceService interface {
	Synthesize(ctx context.Context, input GuidanceInput) AlgorithmGuidance
}

type evaluationGuidanceService struct {
	llm      llm.Completer
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewEvaluationGuidanceService constructs the guidance engine. cache may be nil.
func NewEvaluationGuidanceService(completer llm.Completer, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) EvaluationGuidanceService {
	return &evaluationGuidanceService{
		llm:      completer,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "evaluation_guidance_service").Logger(),
	}
}

// Synthesize never fails; errors yield FallbackGuidance for the approach.
func (s *evaluationGuidanceService) Synthesize(ctx context.Context, input GuidanceInput) AlgorithmGuidance {
	approach := input.Extracted.Approach
	if approach == "" {
		approach = "Unknown"
	}

	cacheKey := guidanceCacheKey(input)
	if cached, ok := s.fromCache(ctx, cacheKey); ok {
		s.logger.Debug().Str("approach", approach).Msg("guidance cache hit")
		return cached
	}

	guidance, err := s.generate(ctx, input, approach)
	if err != nil {
		s.logger.Warn().Err(err).Str("approach", approach).Msg("using fallback guidance")
		return FallbackGuidance(approach)
	}

	s.store(ctx, cacheKey, guidance)
	s.logger.Info().Str("approach", approach).Str("algorithm_type", guidance.AlgorithmType).Msg("generated evaluation guidance")
	return guidance
}

type guidancePayload struct {
	AlgorithmType             *llmjson.Text `json:"algorithm_type"`
	AlgorithmGuidance         *llmjson.Text `json:"algorithm_guidance"`
	TestCases                 *llmjson.Text `json:"test_cases"`
	CommonErrors              *llmjson.Text `json:"common_errors"`
	KeyImplementationPatterns *llmjson.Text `json:"key_implementation_patterns"`
	MisleadingPatterns        *llmjson.Text `json:"misleading_patterns"`
}

func (s *evaluationGuidanceService) generate(ctx context.Context, input GuidanceInput, approach string) (AlgorithmGuidance, error) {
	ctx = llm.WithPurpose(ctx, "evaluation_guidance")
	reply, err := s.llm.Complete(ctx, llm.Request{
		Prompt:      buildGuidancePrompt(input, approach),
		Temperature: guidanceTemperature,
	})
	if err != nil {
		return AlgorithmGuidance{}, err
	}

	return parseGuidance(reply, approach)
}

func parseGuidance(reply, approach string) (AlgorithmGuidance, error) {
	payload, err := llmjson.DecodeAs[guidancePayload](reply)
	if err != nil {
		return AlgorithmGuidance{}, err
	}

	field := func(value *llmjson.Text, name string) string {
		if value == nil {
			return fmt.Sprintf("No specific %s provided for %s", name, approach)
		}
		return value.String()
	}

	return AlgorithmGuidance{
		AlgorithmType:             field(payload.AlgorithmType, "algorithm_type"),
		AlgorithmGuidance:         field(payload.AlgorithmGuidance, "algorithm_guidance"),
		TestCases:                 field(payload.TestCases, "test_cases"),
		CommonErrors:              field(payload.CommonErrors, "common_errors"),
		KeyImplementationPatterns: field(payload.KeyImplementationPatterns, "key_implementation_patterns"),
		MisleadingPatterns:        field(payload.MisleadingPatterns, "misleading_patterns"),
	}, nil
}

// FallbackGuidance is the fixed guidance used when synthesis fails.
func FallbackGuidance(approach string) AlgorithmGuidance {
	return AlgorithmGuidance{
		AlgorithmType: approach,
		AlgorithmGuidance: fmt.Sprintf(`When evaluating code for approach '%s', consider both explicit and implicit correctness.
Focus on whether the code implements the core algorithm pattern correctly, regardless of how it is described.
Analyze what the code actually does, not what comments claim it does.
Consider multiple valid implementation variations that achieve the same algorithmic goal.`, approach),
		TestCases:    "No specific test cases provided.",
		CommonErrors: "No common errors identified.",
		KeyImplementationPatterns: fmt.Sprintf(`IMPORTANT: Focus on the actual code logic, not comments or variable names.
For approach '%s':
1. Correct initialization of necessary variables and data structures
2. Proper implementation of the core algorithm logic
3. Appropriate handling of edge cases
4. Correct computation and return of results
The code should be evaluated based on its actual behavior, not how it describes itself.`, approach),
		MisleadingPatterns: "No specific misleading patterns identified.",
	}
}

func (s *evaluationGuidanceService) fromCache(ctx context.Context, key string) (AlgorithmGuidance, bool) {
	if s.cache == nil {
		return AlgorithmGuidance{}, false
	}

	cached, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read guidance cache")
		}
		return AlgorithmGuidance{}, false
	}

	var guidance AlgorithmGuidance
	if err := json.Unmarshal([]byte(cached), &guidance); err != nil {
		return AlgorithmGuidance{}, false
	}
	return guidance, true
}

func (s *evaluationGuidanceService) store(ctx context.Context, key string, guidance AlgorithmGuidance) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(guidance)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store guidance cache")
	}
}

// guidanceCacheKey changes whenever the problem, the approach or the
// examples change.
func guidanceCacheKey(input GuidanceInput) string {
	hash := sha256.New()
	hash.Write([]byte(input.Problem))
	hash.Write([]byte{0})
	hash.Write([]byte(rubric.FormatApproach(input.Extracted.Approach, input.Extracted.Rubric)))
	if input.Examples != nil {
		if encoded, err := json.Marshal(input.Examples); err == nil {
			hash.Write([]byte{0})
			hash.Write(encoded)
		}
	}
	return fmt.Sprintf("guidance:%s:%s", hex.EncodeToString(hash.Sum(nil)), strings.ReplaceAll(input.Extracted.Approach, " ", "_"))
}

func buildGuidancePrompt(input GuidanceInput, approach string) string {
	var b strings.Builder
	b.WriteString("You are an expert in algorithms and code evaluation. Create specific guidance for evaluating\n")
	b.WriteString("student submissions for the problem below against one approach from the rubric.\n\n")
	fmt.Fprintf(&b, "PROBLEM STATEMENT:\n%s\n\n", input.Problem)
	fmt.Fprintf(&b, "SELECTED APPROACH: %s", approach)
	if name := input.Extracted.Rubric.Name; name != "" {
		fmt.Fprintf(&b, " (%s)", name)
	}
	fmt.Fprintf(&b, "\n\nAPPROACH DESCRIPTION:\n%s\n\n", input.Extracted.Explanation)
	fmt.Fprintf(&b, "RUBRIC POINTS FOR THIS APPROACH:\n%s\n", strings.Join(rubric.FormatPoints(input.Extracted.Rubric), "\n"))

	if ex := input.Examples; ex != nil {
		if ex.Editorial != "" {
			fmt.Fprintf(&b, "\nEDITORIAL SOLUTION:\n%s\n", ex.Editorial)
		}
		if len(ex.Correct) > 0 {
			b.WriteString("\nCORRECT SOLUTION EXAMPLES:\n")
			for i, example := range ex.Correct {
				if i == maxCorrectExamples {
					break
				}
				fmt.Fprintf(&b, "CORRECT EXAMPLE %d:\n%s\n", i+1, example.Code)
			}
		}
		// Only incorrect examples with feedback are shown and counted.
		written := 0
		for _, example := range ex.Incorrect {
			if written == maxIncorrectExamples {
				break
			}
			feedback, ok := ex.Feedback[example.Name]
			if !ok {
				continue
			}
			if written == 0 {
				b.WriteString("\nCOMMON ERRORS AND FEEDBACK:\n")
			}
			fmt.Fprintf(&b, "ERROR TYPE: %s\nCODE:\n%s\nFEEDBACK:\n%s\n", example.Name, example.Code, feedback)
			written++
		}
	}

	b.WriteString(`
INSTRUCTIONS:
1. Create specialized guidance for evaluating code against this approach
2. Include implementation variations that are valid for this approach
3. Describe edge cases and boundary conditions to consider
4. Give 4-5 representative test cases with expected outputs
5. List common errors students make with this approach

CRITICAL EVALUATION PRINCIPLES:
- Judge what the code ACTUALLY DOES, not what comments claim
- Variable names and comments may be misleading, intentionally or not
- Different styles and names are acceptable if the core algorithm pattern is followed
- Derive complexity from the implementation, not from comments

Respond with a JSON object whose values are all strings:
{
  "algorithm_type": "Name of the algorithm",
  "algorithm_guidance": "Detailed guidance for evaluation",
  "test_cases": "Representative test cases",
  "common_errors": "Common implementation mistakes",
  "key_implementation_patterns": "Patterns that indicate a correct implementation",
  "misleading_patterns": "Patterns to ignore"
}`)
	return b.String()
}
