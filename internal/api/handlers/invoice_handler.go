package handlers

import (
	"context"
	"errors"
	"io"
	"strconv"

	"stroycrm/internal/dto"
	"stroycrm/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recognizer is the recognition pipeline; *service.RecognitionService
// implements it.
type Recognizer interface {
	Recognize(ctx context.Context, doc *service.UploadedDocument, opts service.RecognizeOptions) (*dto.RecognitionResponse, error)
	Formats() dto.FormatsResponse
	OCRReady() bool
}

// InvoiceManager stores recognized invoices; *service.InvoiceService
// implements it. Every call is scoped to the authenticated user.
type InvoiceManager interface {
	Get(ctx context.Context, userID, id uuid.UUID) (*dto.InvoiceResponse, error)
	ListByProject(ctx context.Context, userID, projectID uuid.UUID, limit, offset int) (*dto.InvoiceListResponse, error)
	Update(ctx context.Context, userID, id uuid.UUID, req *dto.UpdateInvoiceRequest) (*dto.InvoiceResponse, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type InvoiceHandler struct {
	recognizer Recognizer
	invoices   InvoiceManager
	logger     *zap.Logger
}

func NewInvoiceHandler(recognizer Recognizer, invoices InvoiceManager, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		recognizer: recognizer,
		invoices:   invoices,
		logger:     logger,
	}
}

// Recognize godoc
// @Summary Recognize an invoice
// @Description Upload an invoice (image, PDF, Office document or text) and get the extracted fields
// @Tags invoices
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Invoice file"
// @Param dpi formData int false "PDF rasterization DPI (72-600)"
// @Param projectId formData string false "Save the result as a draft of this project"
// @Security Bearer
// @Success 200 {object} dto.RecognitionResponse
// @Failure 400 {object} dto.RecognitionResponse
// @Failure 413 {object} dto.RecognitionResponse
// @Failure 422 {object} dto.RecognitionResponse
// @Failure 503 {object} dto.RecognitionResponse
// @Router /api/v1/invoices/recognize [post]
func (h *InvoiceHandler) Recognize(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	opts := service.RecognizeOptions{UserID: userID}
	if v := c.FormValue("dpi"); v != "" {
		dpi, err := strconv.Atoi(v)
		if err != nil {
			return badRequest(c, "Некорректное значение dpi")
		}
		opts.DPI = dpi
	}
	if v := c.FormValue("projectId"); v != "" {
		projectID, err := uuid.Parse(v)
		if err != nil {
			return badRequest(c, "Некорректный идентификатор проекта")
		}
		opts.ProjectID = &projectID
	}

	var doc *service.UploadedDocument
	if file, err := c.FormFile("file"); err == nil {
		src, err := file.Open()
		if err != nil {
			h.logger.Error("Failed to open uploaded file", zap.Error(err))
			return badRequest(c, "Не удалось прочитать файл")
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			h.logger.Error("Failed to read uploaded file", zap.Error(err))
			return badRequest(c, "Не удалось прочитать файл")
		}
		doc = &service.UploadedDocument{
			Name:     file.Filename,
			MIMEType: file.Header.Get("Content-Type"),
			Data:     data,
		}
	}

	resp, err := h.recognizer.Recognize(c.UserContext(), doc, opts)
	return c.Status(recognitionStatus(err)).JSON(resp)
}

func recognitionStatus(err error) int {
	if err == nil {
		return fiber.StatusOK
	}
	var rerr *service.RecognitionError
	if !errors.As(err, &rerr) {
		return fiber.StatusInternalServerError
	}
	switch rerr.Kind {
	case service.KindValidation:
		if errors.Is(err, service.ErrFileTooLarge) {
			return fiber.StatusRequestEntityTooLarge
		}
		return fiber.StatusBadRequest
	case service.KindConfiguration:
		return fiber.StatusServiceUnavailable
	case service.KindProcessing:
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusInternalServerError
}

// Formats godoc
// @Summary Accepted upload formats
// @Tags invoices
// @Produce json
// @Security Bearer
// @Success 200 {object} dto.FormatsResponse
// @Router /api/v1/recognition/formats [get]
func (h *InvoiceHandler) Formats(c *fiber.Ctx) error {
	return c.JSON(h.recognizer.Formats())
}

// GetInvoice godoc
// @Summary Get an invoice
// @Tags invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Security Bearer
// @Success 200 {object} dto.InvoiceResponse
// @Failure 404 {object} map[string]string
// @Router /api/v1/invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid invoice ID")
	}

	inv, err := h.invoices.Get(c.UserContext(), userID, id)
	if err != nil {
		return h.invoiceError(c, "get", err)
	}
	return c.JSON(inv)
}

// ListProjectInvoices godoc
// @Summary List the caller's invoices in a project
// @Tags invoices
// @Produce json
// @Param projectId path string true "Project ID"
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Security Bearer
// @Success 200 {object} dto.InvoiceListResponse
// @Router /api/v1/projects/{projectId}/invoices [get]
func (h *InvoiceHandler) ListProjectInvoices(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	projectID, err := uuid.Parse(c.Params("projectId"))
	if err != nil {
		return badRequest(c, "Invalid project ID")
	}

	list, err := h.invoices.ListByProject(c.UserContext(), userID, projectID, c.QueryInt("limit", 20), c.QueryInt("offset", 0))
	if err != nil {
		return h.invoiceError(c, "list", err)
	}
	return c.JSON(list)
}

// UpdateInvoice godoc
// @Summary Correct an invoice
// @Description Replace the extracted fields and/or confirm the draft
// @Tags invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param request body dto.UpdateInvoiceRequest true "Correction"
// @Security Bearer
// @Success 200 {object} dto.InvoiceResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/invoices/{id} [put]
func (h *InvoiceHandler) UpdateInvoice(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid invoice ID")
	}

	var req dto.UpdateInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	inv, err := h.invoices.Update(c.UserContext(), userID, id, &req)
	if err != nil {
		return h.invoiceError(c, "update", err)
	}
	return c.JSON(inv)
}

// DeleteInvoice godoc
// @Summary Delete an invoice
// @Tags invoices
// @Param id path string true "Invoice ID"
// @Security Bearer
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/v1/invoices/{id} [delete]
func (h *InvoiceHandler) DeleteInvoice(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid invoice ID")
	}

	if err := h.invoices.Delete(c.UserContext(), userID, id); err != nil {
		return h.invoiceError(c, "delete", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *InvoiceHandler) invoiceError(c *fiber.Ctx, op string, err error) error {
	switch {
	case errors.Is(err, service.ErrInvoiceNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Invoice not found",
		})
	case errors.Is(err, service.ErrInvalidStatus):
		return badRequest(c, "Invalid invoice status")
	}
	h.logger.Error("Invoice operation failed", zap.String("op", op), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   "Internal error",
	})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   "Unauthorized",
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

func getUserID(c *fiber.Ctx) (uuid.UUID, error) {
	userIDStr, ok := c.Locals("userID").(string)
	if !ok {
		return uuid.Nil, fiber.ErrUnauthorized
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, err
	}

	return userID, nil
}
