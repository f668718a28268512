package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/sanitizer"
)

var (
	// ErrSubmissionNotFound indicates the submission cannot be located.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrSubmissionForbidden indicates the submission belongs to another user.
	ErrSubmissionForbidden = errors.New("submission belongs to another user")
	// ErrEvaluationPending indicates results were requested before grading finished.
	ErrEvaluationPending = errors.New("evaluation not completed yet")
	// ErrQueueFull indicates the grading queue cannot accept more work.
	ErrQueueFull = errors.New("evaluation queue is full")
)

// SubmissionService accepts code for asynchronous grading and reports on it.
type SubmissionService interface {
	Submit(ctx context.Context, userID uint, req dto.SubmitRequest) (dto.SubmitResponse, error)
	Status(ctx context.Context, userID, submissionID uint) (dto.SubmissionStatusResponse, error)
	Results(ctx context.Context, userID, submissionID uint) (dto.SubmissionResultResponse, error)
	History(ctx context.Context, userID uint, limit int) ([]dto.SubmissionHistoryItem, error)
	Run(ctx context.Context) error
}

// SubmissionConfig sizes the worker pool.
type SubmissionConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

type submissionService struct {
	submissions repository.SubmissionRepository
	problems    repository.ProblemRepository
	evaluator   EvaluationService
	security    SecurityService
	publisher   EventPublisher
	validator   *validator.Validate
	config      SubmissionConfig
	queue       chan uint
	logger      zerolog.Logger

	// inflight holds IDs that are queued or being graded.
	mu       sync.Mutex
	inflight map[uint]struct{}
}

// NewSubmissionService constructs the submission workflow. publisher may be nil.
func NewSubmissionService(
	submissions repository.SubmissionRepository,
	problems repository.ProblemRepository,
	evaluator EvaluationService,
	securitySvc SecurityService,
	publisher EventPublisher,
	validate *validator.Validate,
	cfg SubmissionConfig,
	logger zerolog.Logger,
) SubmissionService {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	return &submissionService{
		submissions: submissions,
		problems:    problems,
		evaluator:   evaluator,
		security:    securitySvc,
		publisher:   publisher,
		validator:   validate,
		config:      cfg,
		queue:       make(chan uint, cfg.QueueSize),
		inflight:    map[uint]struct{}{},
		logger:      logger.With().Str("component", "submission_service").Logger(),
	}
}

func (s *submissionService) Submit(ctx context.Context, userID uint, req dto.SubmitRequest) (dto.SubmitResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmitResponse{}, err
	}

	if _, err := s.problems.GetByID(ctx, req.ProblemID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmitResponse{}, ErrProblemNotFound
		}
		return dto.SubmitResponse{}, err
	}

	if report := s.security.StaticScan(req.Code); !report.Passed {
		s.logger.Warn().Uint("user_id", userID).Strs("issues", report.Issues).Msg("submission rejected by static scan")
		return dto.SubmitResponse{}, &InsecureSubmissionError{Issues: report.Issues}
	}

	language := strings.ToLower(strings.TrimSpace(req.Language))
	if language == "" {
		language = sanitizer.DetectLanguage(req.Code)
	}

	submission := models.Submission{
		UserID:    userID,
		ProblemID: req.ProblemID,
		Code:      req.Code,
		Language:  language,
		Status:    models.SubmissionStatusPending,
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SubmitResponse{}, err
	}

	if !s.enqueue(submission.ID) {
		submission.Status = models.SubmissionStatusError
		submission.Error = ErrQueueFull.Error()
		if err := s.submissions.Update(ctx, &submission); err != nil {
			s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to mark overflowed submission")
		}
		return dto.SubmitResponse{}, ErrQueueFull
	}

	s.logger.Info().Uint("submission_id", submission.ID).Uint("problem_id", req.ProblemID).Str("language", language).Msg("submission queued")

	return dto.SubmitResponse{
		SubmissionID: submission.ID,
		Status:       submission.Status,
		Message:      "Submission received and queued for evaluation",
	}, nil
}

// enqueue queues id unless it is already queued or being graded. It
// reports false only when the queue is full.
func (s *submissionService) enqueue(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inflight[id]; ok {
		return true
	}

	select {
	case s.queue <- id:
		s.inflight[id] = struct{}{}
		observability.SubmissionQueueDepth().Set(float64(len(s.queue)))
		return true
	default:
		return false
	}
}

func (s *submissionService) release(id uint) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

func (s *submissionService) Status(ctx context.Context, userID, submissionID uint) (dto.SubmissionStatusResponse, error) {
	submission, err := s.owned(ctx, userID, submissionID)
	if err != nil {
		return dto.SubmissionStatusResponse{}, err
	}
	return dto.NewSubmissionStatusResponse(submission), nil
}

func (s *submissionService) Results(ctx context.Context, userID, submissionID uint) (dto.SubmissionResultResponse, error) {
	submission, err := s.owned(ctx, userID, submissionID)
	if err != nil {
		return dto.SubmissionResultResponse{}, err
	}
	if !submission.IsFinal() {
		return dto.SubmissionResultResponse{}, ErrEvaluationPending
	}
	return dto.NewSubmissionResultResponse(submission), nil
}

func (s *submissionService) History(ctx context.Context, userID uint, limit int) ([]dto.SubmissionHistoryItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{UserID: &userID, Limit: limit})
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionHistory(submissions), nil
}

func (s *submissionService) owned(ctx context.Context, userID, submissionID uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	if submission.UserID != userID {
		return models.Submission{}, ErrSubmissionForbidden
	}
	return submission, nil
}

// Run drains the queue with a fixed pool of workers until ctx is cancelled.
// Submissions left pending by a previous process are queued first.
func (s *submissionService) Run(ctx context.Context) error {
	s.resume(ctx)

	group, ctx := errgroup.WithContext(ctx)
	for worker := 0; worker < s.config.Workers; worker++ {
		workerLogger := s.logger.With().Int("worker", worker).Logger()
		group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case id := <-s.queue:
					observability.SubmissionQueueDepth().Set(float64(len(s.queue)))
					s.process(ctx, id, workerLogger)
				}
			}
		})
	}

	return group.Wait()
}

func (s *submissionService) resume(ctx context.Context) {
	status := models.SubmissionStatusPending
	pending, err := s.submissions.List(ctx, repository.SubmissionFilter{Status: &status})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load pending submissions")
		return
	}

	// List is newest first; replay oldest first.
	for i := len(pending) - 1; i >= 0; i-- {
		if !s.enqueue(pending[i].ID) {
			s.logger.Warn().Int("remaining", i+1).Msg("queue full while resuming pending submissions")
			return
		}
	}
	if len(pending) > 0 {
		s.logger.Info().Int("count", len(pending)).Msg("resumed pending submissions")
	}
}

func (s *submissionService) process(parent context.Context, id uint, logger zerolog.Logger) {
	defer s.release(id)

	ctx, cancel := context.WithTimeout(parent, s.config.Timeout)
	defer cancel()

	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		logger.Error().Err(err).Uint("submission_id", id).Msg("failed to load queued submission")
		return
	}
	if submission.IsFinal() {
		return
	}

	details, err := s.grade(ctx, &submission)
	if parent.Err() != nil {
		// Shutdown: leave it pending for the next resume.
		logger.Warn().Uint("submission_id", id).Msg("grading interrupted by shutdown; submission left pending")
		return
	}
	switch {
	case ctx.Err() != nil && submission.Status != models.SubmissionStatusCompleted:
		submission.Status = models.SubmissionStatusError
		submission.Error = fmt.Sprintf("evaluation timed out after %s", s.config.Timeout)
		submission.Analysis = nil
		details = nil
	case err != nil:
		submission.Status = models.SubmissionStatusError
		submission.Error = err.Error()
		details = nil
	}

	// Persist even when the grading context expired.
	saveCtx, cancelSave := context.WithTimeout(context.WithoutCancel(parent), 10*time.Second)
	defer cancelSave()
	if err := s.submissions.SaveResult(saveCtx, &submission, details); err != nil {
		logger.Error().Err(err).Uint("submission_id", id).Msg("failed to persist evaluation result")
		return
	}

	logger.Info().
		Uint("submission_id", id).
		Str("status", submission.Status).
		Int("score", submission.TotalScore).
		Int("max_score", submission.MaxScore).
		Msg("submission graded")

	if s.publisher != nil {
		s.publisher.Publish(saveCtx, EvaluationEvent{
			SubmissionID: submission.ID,
			UserID:       submission.UserID,
			ProblemID:    submission.ProblemID,
			Status:       submission.Status,
			Score:        submission.TotalScore,
			MaxScore:     submission.MaxScore,
			Approach:     submission.Approach,
			Error:        submission.Error,
			FinishedAt:   time.Now().UTC(),
		})
	}
}

type submissionAnalysis struct {
	Approach string   `json:"approach,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	Issues   []string `json:"issues,omitempty"`
}

// grade fills the submission's final state and returns its criterion details.
func (s *submissionService) grade(ctx context.Context, submission *models.Submission) ([]models.EvaluationDetail, error) {
	response := s.evaluator.Evaluate(ctx, dto.EvaluateRequest{
		ProblemStatement: submission.Problem.Description,
		Rubric:           submission.Problem.Rubric,
		StudentCode:      submission.Code,
		ModelSolution:    submission.Problem.Editorial,
		ExamplesDir:      submission.Problem.ExamplesDir,
		Language:         submission.Language,
	})
	if response.Rejected() {
		submission.Status = models.SubmissionStatusRejected
		submission.Error = (&InsecureSubmissionError{Issues: response.SecurityIssues}).Error()
		analysis, _ := json.Marshal(submissionAnalysis{Issues: response.SecurityIssues})
		submission.Analysis = datatypes.JSON(analysis)
		return nil, nil
	}
	if response.Failed() {
		return nil, errors.New(*response.Error)
	}

	details := make([]models.EvaluationDetail, 0, len(response.Feedback))
	for key, item := range response.Feedback {
		index, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("unexpected criterion key %q: %w", key, err)
		}
		details = append(details, models.EvaluationDetail{
			CriterionIndex: index,
			MaxScore:       item.MaxPoints,
			ScoreObtained:  item.PointsAwarded,
			Feedback:       item.Feedback,
		})
	}

	analysis, err := json.Marshal(submissionAnalysis{Approach: response.Approach, Summary: response.Summary})
	if err != nil {
		return nil, err
	}

	submission.Status = models.SubmissionStatusCompleted
	submission.TotalScore = response.Score
	submission.MaxScore = response.MaxScore
	submission.Approach = response.Approach
	submission.Error = ""
	submission.Analysis = datatypes.JSON(analysis)
	return details, nil
}
