package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/rubric"
)

// ErrProblemNotFound indicates the problem cannot be located.
var ErrProblemNotFound = errors.New("problem not found")

// ErrInvalidRubric indicates the rubric text has no gradable approach.
var ErrInvalidRubric = errors.New("rubric must contain at least one approach with points")

// ProblemService manages gradable problems.
type ProblemService interface {
	List(ctx context.Context) ([]dto.ProblemResponse, error)
	Get(ctx context.Context, id uint) (dto.ProblemResponse, error)
	Create(ctx context.Context, payload dto.ProblemRequest) (dto.ProblemResponse, error)
}

type problemService struct {
	problems  repository.ProblemRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewProblemService constructs the problem catalogue service.
func NewProblemService(problems repository.ProblemRepository, validate *validator.Validate, logger zerolog.Logger) ProblemService {
	return &problemService{
		problems:  problems,
		validator: validate,
		logger:    logger.With().Str("component", "problem_service").Logger(),
	}
}

func (s *problemService) List(ctx context.Context) ([]dto.ProblemResponse, error) {
	problems, err := s.problems.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]dto.ProblemResponse, 0, len(problems))
	for _, problem := range problems {
		out = append(out, newProblemResponse(problem, false))
	}
	return out, nil
}

func (s *problemService) Get(ctx context.Context, id uint) (dto.ProblemResponse, error) {
	problem, err := s.problems.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ProblemResponse{}, ErrProblemNotFound
		}
		return dto.ProblemResponse{}, err
	}
	return newProblemResponse(problem, true), nil
}

func (s *problemService) Create(ctx context.Context, payload dto.ProblemRequest) (dto.ProblemResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ProblemResponse{}, err
	}

	parsed := rubric.Parse(payload.Rubric)
	if parsed.Len() == 0 || rubric.TotalMarks(parsed) == 0 {
		return dto.ProblemResponse{}, ErrInvalidRubric
	}

	problem := models.Problem{
		Title:       payload.Title,
		Description: payload.Description,
		Topic:       payload.Topic,
		Rubric:      payload.Rubric,
		Editorial:   payload.Editorial,
		ExamplesDir: payload.ExamplesDir,
	}
	if err := s.problems.Create(ctx, &problem); err != nil {
		return dto.ProblemResponse{}, err
	}

	s.logger.Info().Uint("problem_id", problem.ID).Int("approaches", parsed.Len()).Msg("problem created")
	return newProblemResponse(problem, true), nil
}

func newProblemResponse(problem models.Problem, detailed bool) dto.ProblemResponse {
	parsed := rubric.Parse(problem.Rubric)
	approaches := make([]string, 0, parsed.Len())
	for _, key := range parsed.Keys() {
		approach, _ := parsed.Approach(key)
		approaches = append(approaches, key+": "+approach.Name)
	}

	response := dto.ProblemResponse{
		ID:         problem.ID,
		Title:      problem.Title,
		Summary:    problem.Summary(),
		Topic:      problem.Topic,
		Approaches: approaches,
		TotalMarks: rubric.TotalMarks(parsed),
	}
	if detailed {
		response.Description = problem.Description
		response.Rubric = problem.Rubric
	}
	return response
}
