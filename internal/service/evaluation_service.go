package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/examples"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/rubric"
	"github.com/noah-isme/gema-grader/internal/sanitizer"
	"github.com/noah-isme/gema-grader/internal/security"
	"github.com/noah-isme/gema-grader/pkg/llm"
	"github.com/noah-isme/gema-grader/pkg/llmjson"
)

const (
	omittedCriterionFeedback = "Criterion was not evaluated by the grader; no marks awarded."
	failedCriterionFeedback  = "Failed to evaluate this criterion"
)

// EvaluationService grades submissions end to end.
type EvaluationService interface {
	Evaluate(ctx context.Context, req dto.EvaluateRequest) dto.EvaluationResponse
	SecurityCheck(ctx context.Context, code string) dto.SecurityCheckResponse
	ParseRubric(text string) dto.RubricParseResponse
}

// EvaluationConfig tunes the grading pipeline.
type EvaluationConfig struct {
	StripComments bool
}

// EvaluationDependencies groups the engines the orchestrator drives.
type EvaluationDependencies struct {
	LLM       llm.Completer
	Explainer ApproachExplanationService
	Extractor RubricExtractorService
	Guidance  EvaluationGuidanceService
	Security  SecurityService
	Examples  examples.Loader
	Validator *validator.Validate
}

type evaluationService struct {
	deps   EvaluationDependencies
	config EvaluationConfig
	policy *bluemonday.Policy
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewEvaluationService constructs the evaluation orchestrator.
func NewEvaluationService(deps EvaluationDependencies, cfg EvaluationConfig, logger zerolog.Logger) EvaluationService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}

	return &evaluationService{
		deps:   deps,
		config: cfg,
		policy: bluemonday.StrictPolicy(),
		tracer: otel.Tracer("github.com/noah-isme/gema-grader/internal/service/evaluation"),
		logger: logger.With().Str("component", "evaluation_service").Logger(),
	}
}

// Evaluate never returns an error: every failure becomes a zero-score
// response with Error set. Code failing the injection guard is never sent
// for grading; its response also carries SecurityIssues.
func (s *evaluationService) Evaluate(parent context.Context, req dto.EvaluateRequest) (response dto.EvaluationResponse) {
	ctx, span := s.tracer.Start(parent, "grader.evaluate", trace.WithAttributes(
		attribute.String("grader.mode", modeOf(req)),
	))
	defer span.End()

	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error().Interface("panic", recovered).Msg("evaluation panicked")
			response = dto.NewFailedEvaluation(fmt.Sprintf("An error occurred during evaluation: %v", recovered))
		}
		status := "completed"
		switch {
		case response.Rejected():
			status = "rejected"
			span.SetStatus(codes.Error, *response.Error)
		case response.Failed():
			status = "error"
			span.SetStatus(codes.Error, *response.Error)
		}
		span.SetAttributes(attribute.Int("grader.score", response.Score), attribute.Int("grader.max_score", response.MaxScore))
		observability.Evaluations().WithLabelValues(status).Inc()
	}()

	response, err := s.evaluate(ctx, req)
	if err != nil {
		span.RecordError(err)
		s.logger.Error().Err(err).Msg("evaluation failed")
		return dto.NewFailedEvaluation(fmt.Sprintf("An error occurred during evaluation: %v", err))
	}

	return response
}

func (s *evaluationService) evaluate(ctx context.Context, req dto.EvaluateRequest) (dto.EvaluationResponse, error) {
	if err := s.deps.Validator.Struct(req); err != nil {
		return dto.EvaluationResponse{}, fmt.Errorf("invalid request: %w", err)
	}

	clean := sanitizer.Sanitize(req.ProblemStatement, req.Rubric, req.StudentCode, sanitizer.Options{StripComments: s.config.StripComments})
	language := strings.ToLower(strings.TrimSpace(req.Language))
	if language == "" {
		language = clean.Language
	}
	modelSolution := ""
	if strings.TrimSpace(req.ModelSolution) != "" {
		modelSolution = sanitizer.Text(req.ModelSolution)
	}

	parsed := rubric.Parse(clean.Rubric)
	if parsed.Len() == 0 {
		return dto.EvaluationResponse{}, ErrRubricHasNoApproaches
	}

	if s.deps.Security != nil {
		if report := s.deps.Security.Check(ctx, req.StudentCode); !report.Passed {
			rejection := &InsecureSubmissionError{Issues: report.Issues}
			s.logger.Warn().Strs("issues", report.Issues).Msg("code rejected before grading")
			return dto.NewRejectedEvaluation(rejection.Error(), report.Issues), nil
		}
	}

	explanation := s.deps.Explainer.Explain(ctx, ExplanationInput{Code: clean.Code, Language: language, Problem: clean.Problem})

	extracted, err := s.deps.Extractor.Extract(ctx, ExtractionInput{
		Problem:       clean.Problem,
		Rubric:        parsed,
		Code:          clean.Code,
		Language:      language,
		ModelSolution: modelSolution,
		Explanation:   &explanation,
	})
	if err != nil {
		return dto.EvaluationResponse{}, fmt.Errorf("select approach: %w", err)
	}

	material := gradingMaterial{
		problem:       clean.Problem,
		code:          clean.Code,
		modelSolution: modelSolution,
		extracted:     extracted,
		explanation:   FormatApproachExplanation(explanation),
	}
	if s.deps.Guidance != nil {
		guidance := s.deps.Guidance.Synthesize(ctx, GuidanceInput{
			Problem:   clean.Problem,
			Extracted: extracted,
			Examples:  s.loadExamples(ctx, req.ExamplesDir),
		})
		material.guidance = &guidance
	}

	if modeOf(req) == dto.EvaluationModePointwise {
		return s.gradePointwise(ctx, material), nil
	}
	return s.gradeComplete(ctx, material)
}

func (s *evaluationService) loadExamples(ctx context.Context, dir string) *examples.Examples {
	if s.deps.Examples == nil || strings.TrimSpace(dir) == "" {
		return nil
	}

	loaded, err := s.deps.Examples.Load(ctx, dir)
	if err != nil {
		s.logger.Warn().Err(err).Str("examples_dir", dir).Msg("failed to load problem examples")
		return nil
	}
	if loaded.Empty() {
		return nil
	}
	return &loaded
}

type gradingMaterial struct {
	problem       string
	code          string
	modelSolution string
	extracted     ExtractedRubric
	guidance      *AlgorithmGuidance
	explanation   string
}

type criterionPayload struct {
	Satisfied     llmjson.Flag   `json:"satisfied"`
	Justification llmjson.Text   `json:"justification"`
	MarksAwarded  llmjson.Number `json:"marks_awarded"`
}

type gradingPayload struct {
	ApproachUsed     llmjson.Text                `json:"approach_used"`
	Evaluation       map[string]criterionPayload `json:"evaluation"`
	TotalScore       llmjson.Number              `json:"total_score"`
	MaxPossibleScore llmjson.Number              `json:"max_possible_score"`
	Feedback         llmjson.Text                `json:"feedback"`
}

func (s *evaluationService) gradeComplete(ctx context.Context, material gradingMaterial) (dto.EvaluationResponse, error) {
	prompt := security.Wrap(buildGradingPrompt(material))

	reply, err := s.deps.LLM.Complete(llm.WithPurpose(ctx, "grading"), llm.Request{Prompt: prompt})
	if err != nil {
		return dto.EvaluationResponse{}, fmt.Errorf("grading request: %w", err)
	}

	payload, err := llmjson.DecodeAs[gradingPayload](reply)
	if err != nil {
		return dto.EvaluationResponse{}, fmt.Errorf("parse grading response: %w", err)
	}

	response := s.reconcile(material.extracted, payload.Evaluation)
	response.Summary = s.policy.Sanitize(payload.Feedback.String())
	return response, nil
}

// reconcile clamps every criterion to its rubric ceiling and recomputes the
// score. Criteria the model omitted score 0; unknown indices are dropped.
func (s *evaluationService) reconcile(extracted ExtractedRubric, evaluation map[string]criterionPayload) dto.EvaluationResponse {
	feedback := make(map[string]dto.FeedbackItem, len(extracted.Rubric.Points))
	total := 0

	ceilings := extracted.Rubric.MarksByIndex()
	for index := range extracted.Rubric.Points {
		key := strconv.Itoa(index + 1)
		maxPoints := ceilings[key]
		item, ok := evaluation[key]
		if !ok {
			s.logger.Warn().Str("criterion", key).Msg("grader omitted rubric criterion")
			feedback[key] = dto.FeedbackItem{PointsAwarded: 0, MaxPoints: maxPoints, Feedback: omittedCriterionFeedback}
			continue
		}

		awarded := ClampMarks(float64(item.MarksAwarded), maxPoints)
		feedback[key] = dto.FeedbackItem{
			PointsAwarded: awarded,
			MaxPoints:     maxPoints,
			Feedback:      s.policy.Sanitize(item.Justification.String()),
		}
		total += awarded
	}

	return dto.EvaluationResponse{
		Score:    total,
		MaxScore: extracted.MaxScore,
		Feedback: feedback,
		Approach: extracted.Approach,
	}
}

// ClampMarks truncates fractional marks and bounds them to [0, maxPoints].
// Bounds are applied before the integer conversion so huge or infinite
// values cannot overflow.
func ClampMarks(marks float64, maxPoints int) int {
	if maxPoints <= 0 || math.IsNaN(marks) || marks <= 0 {
		return 0
	}
	if marks >= float64(maxPoints) {
		return maxPoints
	}
	return int(math.Floor(marks))
}

// gradePointwise grades each criterion with its own call, then asks for a
// short summary of the results.
func (s *evaluationService) gradePointwise(ctx context.Context, material gradingMaterial) dto.EvaluationResponse {
	points := material.extracted.Rubric.Points
	results := make([]criterionPayload, len(points))

	var g errgroup.Group
	for i, point := range points {
		i, point := i, point
		g.Go(func() error {
			result, err := s.gradeCriterion(ctx, material, point)
			if err != nil {
				s.logger.Warn().Err(err).Int("criterion", i+1).Msg("criterion evaluation failed")
				result = criterionPayload{Justification: llmjson.Text(failedCriterionFeedback)}
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	evaluation := make(map[string]criterionPayload, len(results))
	for i, result := range results {
		evaluation[strconv.Itoa(i+1)] = result
	}

	response := s.reconcile(material.extracted, evaluation)
	response.Summary = s.summarize(ctx, material, response)
	return response
}

func (s *evaluationService) gradeCriterion(ctx context.Context, material gradingMaterial, point rubric.Point) (criterionPayload, error) {
	prompt := security.Wrap(fmt.Sprintf(`You are evaluating a student's code submission against one criterion.

PROBLEM:
%s

CRITERION: %s [%d mark(s)]

STUDENT CODE:
%s

Evaluate whether the code satisfies this criterion ONLY.
Respond with a JSON object:
{
  "satisfied": true,
  "justification": "Brief explanation",
  "marks_awarded": 0
}
marks_awarded must be between 0 and %d. Return only the JSON object.`, material.problem, point.Description, point.Marks, material.code, point.Marks))

	reply, err := s.deps.LLM.Complete(llm.WithPurpose(ctx, "criterion_grading"), llm.Request{Prompt: prompt})
	if err != nil {
		return criterionPayload{}, err
	}
	return llmjson.DecodeAs[criterionPayload](reply)
}

func (s *evaluationService) summarize(ctx context.Context, material gradingMaterial, response dto.EvaluationResponse) string {
	var lines []string
	for i, point := range material.extracted.Rubric.Points {
		item := response.Feedback[strconv.Itoa(i+1)]
		lines = append(lines, fmt.Sprintf("%d. %s: %d/%d - %s", i+1, point.Description, item.PointsAwarded, item.MaxPoints, item.Feedback))
	}

	prompt := fmt.Sprintf(`Based on the evaluation results below, write concise feedback for the student's submission.

PROBLEM:
%s

EVALUATION RESULTS:
%s

TOTAL SCORE: %d / %d

Provide helpful, constructive feedback in 3-5 sentences.`, material.problem, strings.Join(lines, "\n"), response.Score, response.MaxScore)

	reply, err := s.deps.LLM.Complete(llm.WithPurpose(ctx, "feedback_summary"), llm.Request{Prompt: prompt})
	if err != nil {
		s.logger.Warn().Err(err).Msg("feedback summary failed")
		return ""
	}
	return s.policy.Sanitize(strings.TrimSpace(reply))
}

func (s *evaluationService) SecurityCheck(ctx context.Context, code string) dto.SecurityCheckResponse {
	report := s.deps.Security.Check(ctx, code)
	issues := report.Issues
	if issues == nil {
		issues = []string{}
	}
	return dto.SecurityCheckResponse{Passed: report.Passed, Issues: issues}
}

func (s *evaluationService) ParseRubric(text string) dto.RubricParseResponse {
	return dto.NewRubricParseResponse(rubric.Parse(text))
}

func modeOf(req dto.EvaluateRequest) string {
	if req.Mode == dto.EvaluationModePointwise {
		return dto.EvaluationModePointwise
	}
	return dto.EvaluationModeComplete
}

const generalGuidance = `ALGORITHM EVALUATION GUIDANCE:
- Consider both explicit and implicit correctness
- Many algorithms have multiple valid implementations that use different patterns
- For search algorithms, pay attention to boundary conditions and edge cases
- Consider the overall logic and structure of the solution, not just specific lines
- A solution may be correct even if it implements the algorithm differently from what you expect
- Focus on whether the solution produces correct results for all possible inputs`

func formatGuidance(guidance *AlgorithmGuidance) string {
	if guidance == nil {
		return generalGuidance
	}
	return fmt.Sprintf(`ALGORITHM-SPECIFIC GUIDANCE FOR %s:
%s

KEY IMPLEMENTATION PATTERNS TO LOOK FOR:
%s

MISLEADING PATTERNS TO IGNORE:
%s

COMMON ERRORS TO WATCH FOR:
%s

TEST CASES FOR VERIFICATION:
%s`, strings.ToUpper(guidance.AlgorithmType), guidance.AlgorithmGuidance, guidance.KeyImplementationPatterns,
		guidance.MisleadingPatterns, guidance.CommonErrors, guidance.TestCases)
}

func buildGradingPrompt(material gradingMaterial) string {
	var b strings.Builder
	b.WriteString("You are a secure code evaluator with expertise in algorithms and programming languages.\n")
	b.WriteString("Evaluate the student code based SOLELY on the rubric below, fairly and objectively.\n\n")
	fmt.Fprintf(&b, "PROBLEM STATEMENT:\n%s\n\n", material.problem)
	fmt.Fprintf(&b, "%s\n\n", formatGuidance(material.guidance))

	if material.explanation != "" {
		fmt.Fprintf(&b, "%s\n\n", material.explanation)
		b.WriteString("NOTE: The analysis above describes the student's approach and its issues. Use it to understand\n")
		b.WriteString("the attempt, but base the evaluation on the actual code and the rubric criteria.\n\n")
	}

	fmt.Fprintf(&b, "RUBRIC:\n%s\n\n", FormatRubricForEvaluation(material.extracted))
	if material.modelSolution != "" {
		fmt.Fprintf(&b, "MODEL SOLUTION:\n%s\n\n", material.modelSolution)
	}
	fmt.Fprintf(&b, "STUDENT CODE:\n%s\n\n", material.code)

	b.WriteString(`EVALUATION INSTRUCTIONS:
1. Evaluate the student code against each point in the rubric
2. For each point, decide whether the implementation satisfies it
3. Give a brief, specific justification for each decision
4. Consider all valid implementations of the approach
5. Focus on algorithmic correctness rather than style unless the rubric says otherwise
6. Verify the code against the test cases above
7. Mark the code on what it DOES, not on its apparent intention
8. IGNORE misleading comments; when comments and implementation conflict, trust the implementation

Return the evaluation as a JSON object:
{
  "approach_used": "Solution N",
  "evaluation": {
    "1": {"satisfied": true, "justification": "Details from the code", "marks_awarded": 0},
    "2": {"satisfied": false, "justification": "Details from the code", "marks_awarded": 0}
  },
  "total_score": 0,
  "max_possible_score": 0,
  "feedback": "Overall feedback highlighting strengths and areas for improvement"
}`)
	return b.String()
}
