// Package web provides HTTP handlers and REST API endpoints for ticket workflows.
package web

import (
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/workflow"
)

type APIHandlers struct {
	engine          *workflow.Engine
	templateService *workflow.Templates
	uploadService   *workflow.Uploads
	validator       *validator.Validate
}

func NewAPIHandlers(
	engine *workflow.Engine,
	templateService *workflow.Templates,
	uploadService *workflow.Uploads,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		engine:          engine,
		templateService: templateService,
		uploadService:   uploadService,
		validator:       validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.templateService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "ticketd API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "ticketd API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// GetTickets lists the tickets visible to the calling user within their project.
func (h *APIHandlers) GetTickets(c fiber.Ctx) error {
	summaries, err := h.engine.ListTickets(c.Context(), currentProject(c), currentUser(c))
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(fiber.Map{"tickets": summaries})
}

func (h *APIHandlers) GetTicket(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Ticket ID is required")
	}

	detail, err := h.engine.FetchTicket(c.Context(), id, currentUser(c))
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) CreateTicket(c fiber.Ctx) error {
	var req CreateTicketRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ticket, err := h.engine.CreateTicket(c.Context(), workflow.CreateTicketRequest{
		TemplateID: req.TemplateID,
		Title:      req.Title,
		CreatedBy:  currentUser(c),
		Assignees:  req.Assignees,
	})
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ticket)
}

// SubmitForm answers the current form step of a ticket.
func (h *APIHandlers) SubmitForm(c fiber.Ctx) error {
	var req SubmitFormRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	ticket, err := h.engine.SubmitForm(c.Context(), workflow.SubmitFormRequest{
		TicketID: c.Params("id"),
		StepID:   c.Params("stepId"),
		UserID:   currentUser(c),
		Values:   req.Values,
	})
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(ticket)
}

// SubmitReview records a verdict on the current review step of a ticket.
func (h *APIHandlers) SubmitReview(c fiber.Ctx) error {
	var req SubmitReviewRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	ticket, err := h.engine.SubmitReview(c.Context(), workflow.SubmitReviewRequest{
		TicketID: c.Params("id"),
		StepID:   c.Params("stepId"),
		UserID:   currentUser(c),
		Approved: req.Approved,
		Comment:  req.Comment,
	})
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(ticket)
}

// GetTemplates lists the templates the caller can open tickets from or manages.
func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	templates, err := h.templateService.List(c.Context(), currentProject(c))
	if err != nil {
		return handleWorkflowError(c, err)
	}

	visible := make([]*models.Template, 0, len(templates))

	for _, template := range templates {
		ok, err := h.templateService.CanInitiate(c.Context(), template, currentUser(c))
		if err != nil {
			return handleWorkflowError(c, err)
		}

		if !ok {
			ok, err = h.templateService.ManagedBy(c.Context(), template, currentUser(c))
			if err != nil {
				return handleWorkflowError(c, err)
			}
		}

		if ok {
			visible = append(visible, template)
		}
	}

	return c.JSON(fiber.Map{"templates": visible})
}

// appendManager adds the user as a direct manager unless already listed.
func appendManager(managers []models.Target, userID string) []models.Target {
	for _, target := range managers {
		if target.Kind == models.TargetUser && target.UserID != nil && *target.UserID == userID {
			return managers
		}
	}

	return append(managers, models.UserTarget(userID))
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.templateService.FetchByID(c.Context(), id)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	var req CreateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	template := req.ToModel(currentProject(c))
	template.Managers = appendManager(template.Managers, currentUser(c))

	template, err := h.templateService.Create(c.Context(), template)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(template)
}

func (h *APIHandlers) AddTemplateStep(c fiber.Ctx) error {
	var req StepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	template, err := h.templateService.AddStep(c.Context(), c.Params("id"), req.ToModel())
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(template)
}

// GetAssignableUsers lists the users a step's operator designates.
func (h *APIHandlers) GetAssignableUsers(c fiber.Ctx) error {
	users, err := h.templateService.AssignableUsers(c.Context(), c.Params("id"), c.Params("stepId"))
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(fiber.Map{"users": users})
}

// GetTemplateTickets lists every ticket of a template, for its managers.
func (h *APIHandlers) GetTemplateTickets(c fiber.Ctx) error {
	template, err := h.templateService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleWorkflowError(c, err)
	}

	managed, err := h.templateService.ManagedBy(c.Context(), template, currentUser(c))
	if err != nil {
		return handleWorkflowError(c, err)
	}

	if !managed {
		return forbidden(c, "not a manager of this template")
	}

	tickets, err := h.templateService.ListTickets(c.Context(), template.ID)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(fiber.Map{"tickets": tickets})
}

// UploadFieldFile accepts a multipart attachment targeted at one upload field
// of a template's form step.
func (h *APIHandlers) UploadFieldFile(c fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "multipart field 'file' is required")
	}

	opened, err := header.Open()
	if err != nil {
		return badRequest(c, "failed to open uploaded file")
	}

	defer func() {
		_ = opened.Close()
	}()

	data, err := io.ReadAll(opened)
	if err != nil {
		return internalError(c, err)
	}

	upload, err := h.uploadService.Upload(c.Context(), workflow.UploadRequest{
		TemplateID: c.Params("id"),
		StepID:     c.Params("stepId"),
		FieldKey:   c.Params("fieldKey"),
		UserID:     currentUser(c),
		Filename:   header.Filename,
		Data:       data,
	})
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(upload)
}

// DownloadUpload streams an upload's content back with its stored mime type.
func (h *APIHandlers) DownloadUpload(c fiber.Ctx) error {
	upload, data, err := h.uploadService.Open(c.Context(), c.Params("id"))
	if err != nil {
		return handleWorkflowError(c, err)
	}

	c.Set(fiber.HeaderContentType, upload.Mime)
	c.Set(fiber.HeaderContentDisposition, `inline; filename="`+upload.Name+`"`)

	return c.Send(data)
}
