package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

// EvaluationHandler exposes synchronous grading, security checks and rubric parsing.
type EvaluationHandler struct {
	service   service.EvaluationService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewEvaluationHandler builds an evaluation handler instance.
func NewEvaluationHandler(service service.EvaluationService, validator *validator.Validate, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group. limit guards
// the model-backed endpoints and may be nil.
func (h *EvaluationHandler) Register(router fiber.Router, limit fiber.Handler) {
	if limit == nil {
		limit = func(c *fiber.Ctx) error { return c.Next() }
	}
	router.Post("/evaluate", limit, h.evaluate)
	router.Post("/security-check", limit, h.securityCheck)
	router.Post("/rubric/parse", h.parseRubric)
}

func (h *EvaluationHandler) evaluate(c *fiber.Ctx) error {
	var payload dto.EvaluateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid evaluation request", validationDetails(err))
	}

	response := h.service.Evaluate(c.UserContext(), payload)
	if response.Rejected() {
		requestLogger(h.logger, c).Warn().Strs("issues", response.SecurityIssues).Msg("evaluation rejected by security checks")
		return utils.Fail(c, fiber.StatusBadRequest, "submission rejected by security checks", fiber.Map{"issues": response.SecurityIssues})
	}
	if response.Failed() {
		requestLogger(h.logger, c).Warn().Str("error", *response.Error).Msg("evaluation returned an error response")
		return utils.SendSuccess(c, "evaluation failed", response)
	}

	return utils.SendSuccess(c, "evaluation completed", response)
}

func (h *EvaluationHandler) securityCheck(c *fiber.Ctx) error {
	var payload dto.SecurityCheckRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid security check request", validationDetails(err))
	}

	report := h.service.SecurityCheck(c.UserContext(), payload.Code)
	message := "code passed security checks"
	if !report.Passed {
		message = "code failed security checks"
	}
	return utils.SendSuccess(c, message, report)
}

func (h *EvaluationHandler) parseRubric(c *fiber.Ctx) error {
	var payload dto.RubricParseRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid rubric request", validationDetails(err))
	}

	return utils.SendSuccess(c, "rubric parsed", h.service.ParseRubric(payload.Rubric))
}
