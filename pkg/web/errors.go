package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/confops/ticketd/pkg/forms"
	"github.com/confops/ticketd/pkg/persistence"
	"github.com/confops/ticketd/pkg/workflow"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func forbidden(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(403).
		WithInstance(c.Path()).
		WithType("forbidden").
		WithDetail(detail)

	return c.Status(fiber.StatusForbidden).JSON(problem)
}

func unauthorized(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(401).
		WithInstance(c.Path()).
		WithType("unauthorized").
		WithDetail(detail)

	return c.Status(fiber.StatusUnauthorized).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleWorkflowError provides typed error handling for engine and template
// service errors. Submission failures carry their per-field messages.
func handleWorkflowError(c fiber.Ctx, err error) error {
	var fieldErrors forms.FieldErrors

	switch {
	case errors.As(err, &fieldErrors):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status": fiber.StatusBadRequest,
			"type":   "invalid_submission",
			"fields": fieldErrors,
		})

	case workflow.IsValidationError(err):
		return badRequest(c, err.Error())

	case workflow.IsForbiddenError(err):
		return forbidden(c, err.Error())

	case workflow.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsTemplateNotFound(err):
		return notFound(c, "template not found")

	case persistence.IsTicketNotFound(err):
		return notFound(c, "ticket not found")

	case persistence.IsStepNotFound(err):
		return notFound(c, "step not found")

	case persistence.IsUploadNotFound(err):
		return notFound(c, "upload not found")

	case persistence.IsVersionConflict(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("version_conflict").
			WithDetail("the ticket changed underneath this request, retry")

		return c.Status(fiber.StatusConflict).JSON(problem)

	default:
		// Log unexpected errors but don't expose details
		return internalError(c, err)
	}
}
