package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/safeher/internal/domain"
	"github.com/kursadbilgin/safeher/internal/repository"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

// AlertTrigger is the foreground button path.
type AlertTrigger interface {
	Trigger(ctx context.Context, confirmed bool) (*domain.AlertAttempt, error)
}

type AlertHistory interface {
	GetByID(ctx context.Context, id string) (*domain.AlertAttempt, error)
	List(ctx context.Context, params repository.ListAlertsParams) ([]domain.AlertAttempt, int64, error)
}

type AlertHandler struct {
	trigger AlertTrigger
	history AlertHistory
}

func NewAlertHandler(trigger AlertTrigger, history AlertHistory) (*AlertHandler, error) {
	if trigger == nil {
		return nil, fmt.Errorf("alert trigger is required")
	}
	if history == nil {
		return nil, fmt.Errorf("alert history is required")
	}
	return &AlertHandler{trigger: trigger, history: history}, nil
}

func RegisterAlertRoutes(router fiber.Router, trigger AlertTrigger, history AlertHistory, auth fiber.Handler) error {
	h, err := NewAlertHandler(trigger, history)
	if err != nil {
		return err
	}

	alerts := router.Group("/v1/alerts")
	if auth != nil {
		alerts.Use(auth)
	}
	alerts.Post("/", h.CreateAlert)
	alerts.Get("/", h.ListAlerts)
	alerts.Get("/:id", h.GetAlert)

	return nil
}

type createAlertRequest struct {
	Confirmed bool `json:"confirmed"`
}

type alertResponse struct {
	ID               string    `json:"id"`
	Trigger          string    `json:"trigger"`
	ContactsTargeted []string  `json:"contactsTargeted"`
	Message          string    `json:"message,omitempty"`
	Outcome          string    `json:"outcome"`
	SentCount        int       `json:"sentCount"`
	FailedRecipients []string  `json:"failedRecipients,omitempty"`
	Error            *string   `json:"error,omitempty"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

type listAlertsResponse struct {
	Data []alertResponse `json:"data"`
	Meta listMeta        `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

// CreateAlert runs a manual alert. Without "confirmed" the phone is asked first.
func (h *AlertHandler) CreateAlert(c *fiber.Ctx) error {
	var req createAlertRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	attempt, err := h.trigger.Trigger(requestContext(c), req.Confirmed)
	var deliveryErr *domain.DeliveryFailedError
	if errors.As(err, &deliveryErr) && attempt != nil {
		return c.Status(fiber.StatusBadGateway).JSON(toAlertResponse(attempt))
	}
	if err != nil {
		return toHTTPError(err)
	}

	status := fiber.StatusCreated
	if attempt.Outcome == domain.OutcomeCancelled {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(toAlertResponse(attempt))
}

func (h *AlertHandler) GetAlert(c *fiber.Ctx) error {
	attempt, err := h.history.GetByID(requestContext(c), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toAlertResponse(attempt))
}

func (h *AlertHandler) ListAlerts(c *fiber.Ctx) error {
	params, err := parseListAlertsParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	attempts, total, err := h.history.List(requestContext(c), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]alertResponse, 0, len(attempts))
	for i := range attempts {
		data = append(data, toAlertResponse(&attempts[i]))
	}
	return c.Status(fiber.StatusOK).JSON(listAlertsResponse{
		Data: data,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseListAlertsParams(c *fiber.Ctx) (repository.ListAlertsParams, error) {
	params := repository.ListAlertsParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListAlertsParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListAlertsParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if raw := strings.ToLower(strings.TrimSpace(c.Query("outcome"))); raw != "" {
		outcome := domain.Outcome(raw)
		if !outcome.IsValid() {
			return repository.ListAlertsParams{}, fmt.Errorf("%w: invalid outcome %q", domain.ErrValidation, raw)
		}
		params.Outcome = &outcome
	}

	return params, nil
}

func toAlertResponse(a *domain.AlertAttempt) alertResponse {
	if a == nil {
		return alertResponse{}
	}
	targeted := a.ContactsTargeted
	if targeted == nil {
		targeted = []string{}
	}
	return alertResponse{
		ID:               a.ID,
		Trigger:          a.Trigger.String(),
		ContactsTargeted: targeted,
		Message:          a.Message,
		Outcome:          a.Outcome.String(),
		SentCount:        a.SentCount,
		FailedRecipients: a.FailedRecipients,
		Error:            a.Error,
		Latitude:         a.Latitude,
		Longitude:        a.Longitude,
		CreatedAt:        a.CreatedAt,
	}
}
