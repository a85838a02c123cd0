package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/safeher/internal/domain"
)

type ContactService interface {
	Add(ctx context.Context, name string, phone string) (*domain.Contact, error)
	Update(ctx context.Context, id string, name string, phone string) (*domain.Contact, error)
	Remove(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Contact, error)
	List(ctx context.Context) ([]domain.Contact, error)
	Count(ctx context.Context) (int64, error)
	Clear(ctx context.Context) (int64, error)
}

type ContactHandler struct {
	service ContactService
}

func NewContactHandler(service ContactService) (*ContactHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("contact service is required")
	}
	return &ContactHandler{service: service}, nil
}

func RegisterContactRoutes(router fiber.Router, service ContactService, auth fiber.Handler) error {
	h, err := NewContactHandler(service)
	if err != nil {
		return err
	}

	contacts := router.Group("/v1/contacts")
	if auth != nil {
		contacts.Use(auth)
	}
	contacts.Get("/", h.ListContacts)
	contacts.Post("/", h.CreateContact)
	contacts.Get("/count", h.CountContacts)
	contacts.Delete("/", h.ClearContacts)
	contacts.Get("/:id", h.GetContact)
	contacts.Put("/:id", h.UpdateContact)
	contacts.Delete("/:id", h.DeleteContact)

	return nil
}

type contactRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type contactResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

type listContactsResponse struct {
	Data []contactResponse `json:"data"`
	Meta countMeta         `json:"meta"`
}

type countMeta struct {
	Total int `json:"total"`
}

func (h *ContactHandler) CreateContact(c *fiber.Ctx) error {
	var req contactRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	created, err := h.service.Add(requestContext(c), req.Name, req.Phone)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toContactResponse(created))
}

func (h *ContactHandler) ListContacts(c *fiber.Ctx) error {
	contacts, err := h.service.List(requestContext(c))
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]contactResponse, 0, len(contacts))
	for i := range contacts {
		data = append(data, toContactResponse(&contacts[i]))
	}
	return c.Status(fiber.StatusOK).JSON(listContactsResponse{
		Data: data,
		Meta: countMeta{Total: len(data)},
	})
}

func (h *ContactHandler) GetContact(c *fiber.Ctx) error {
	contact, err := h.service.Get(requestContext(c), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toContactResponse(contact))
}

func (h *ContactHandler) UpdateContact(c *fiber.Ctx) error {
	var req contactRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updated, err := h.service.Update(requestContext(c), strings.TrimSpace(c.Params("id")), req.Name, req.Phone)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toContactResponse(updated))
}

func (h *ContactHandler) DeleteContact(c *fiber.Ctx) error {
	if err := h.service.Remove(requestContext(c), strings.TrimSpace(c.Params("id"))); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ContactHandler) CountContacts(c *fiber.Ctx) error {
	total, err := h.service.Count(requestContext(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"count": total})
}

func (h *ContactHandler) ClearContacts(c *fiber.Ctx) error {
	removed, err := h.service.Clear(requestContext(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"removed": removed})
}

func toContactResponse(contact *domain.Contact) contactResponse {
	if contact == nil {
		return contactResponse{}
	}
	return contactResponse{
		ID:        contact.ID,
		Name:      contact.Name,
		Phone:     contact.Phone,
		Position:  contact.Position,
		CreatedAt: contact.CreatedAt,
		UpdatedAt: contact.UpdatedAt,
	}
}
