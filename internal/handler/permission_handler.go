package handler

import (
	"context"
	"fmt"
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/safeher/internal/domain"
)

type PermissionService interface {
	All(ctx context.Context) (map[domain.Capability]bool, error)
	Request(ctx context.Context, capability domain.Capability) (bool, error)
}

type PermissionHandler struct {
	service PermissionService
}

func NewPermissionHandler(service PermissionService) (*PermissionHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("permission service is required")
	}
	return &PermissionHandler{service: service}, nil
}

func RegisterPermissionRoutes(router fiber.Router, service PermissionService, auth fiber.Handler) error {
	h, err := NewPermissionHandler(service)
	if err != nil {
		return err
	}

	permissions := router.Group("/v1/permissions")
	if auth != nil {
		permissions.Use(auth)
	}
	permissions.Get("/", h.ListPermissions)
	permissions.Post("/:capability/request", h.RequestPermission)

	return nil
}

type permissionResponse struct {
	Capability string `json:"capability"`
	Granted    bool   `json:"granted"`
}

func (h *PermissionHandler) ListPermissions(c *fiber.Ctx) error {
	grants, err := h.service.All(requestContext(c))
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]permissionResponse, 0, len(grants))
	for capability, granted := range grants {
		data = append(data, permissionResponse{Capability: capability.String(), Granted: granted})
	}
	sort.Slice(data, func(i, j int) bool { return data[i].Capability < data[j].Capability })

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}

func (h *PermissionHandler) RequestPermission(c *fiber.Ctx) error {
	capability, err := domain.ParseCapabilityFromString(c.Params("capability"))
	if err != nil {
		return toHTTPError(err)
	}

	granted, err := h.service.Request(requestContext(c), capability)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(permissionResponse{Capability: capability.String(), Granted: granted})
}
