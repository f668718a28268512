package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

// SubmissionHandler manages asynchronous grading endpoints.
type SubmissionHandler struct {
	service   service.SubmissionService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, validator *validator.Validate, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group. auth must set
// user_id; limit guards submission and may be nil.
func (h *SubmissionHandler) Register(router fiber.Router, auth, limit fiber.Handler) {
	if limit == nil {
		limit = func(c *fiber.Ctx) error { return c.Next() }
	}
	router.Post("/submit", auth, limit, middleware.RequireUser(h.submit))
	router.Get("/status/:id", auth, middleware.RequireUser(h.status))
	router.Get("/results/:id", auth, middleware.RequireUser(h.results))
	router.Get("/history", auth, middleware.RequireUser(h.history))
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	var payload dto.SubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	accepted, err := h.service.Submit(c.UserContext(), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, accepted.Message, accepted)
}

func (h *SubmissionHandler) status(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	status, err := h.service.Status(c.UserContext(), userIDFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, status.Message, status)
}

func (h *SubmissionHandler) results(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	results, err := h.service.Results(c.UserContext(), userIDFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "evaluation results retrieved", results)
}

func (h *SubmissionHandler) history(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	history, err := h.service.History(c.UserContext(), userIDFromContext(c), limit)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, history, "submission history retrieved", fiber.Map{"count": len(history)})
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	var insecure *service.InsecureSubmissionError
	switch {
	case errors.As(err, &insecure):
		return utils.Fail(c, fiber.StatusBadRequest, "submission rejected by security checks", fiber.Map{"issues": insecure.Issues})
	case validationDetails(err) != nil:
		return utils.Fail(c, fiber.StatusBadRequest, "invalid submission", validationDetails(err))
	case errors.Is(err, service.ErrProblemNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "problem not found")
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrSubmissionForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "submission belongs to another user")
	case errors.Is(err, service.ErrEvaluationPending):
		return utils.SendError(c, fiber.StatusConflict, "evaluation not completed yet")
	case errors.Is(err, service.ErrQueueFull):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "evaluation queue is full, try again later")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
