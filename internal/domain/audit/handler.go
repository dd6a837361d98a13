package audit

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinika/clinika/internal/platform/auth"
	"github.com/clinika/clinika/pkg/pagination"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	group := api.Group("", auth.RequireRole("admin", "lab_tech"))
	group.GET("/results/:id/audit", h.ListByResult)
	group.GET("/orders/:id/audit", h.ListByOrder)
}

func (h *Handler) ListByResult(c echo.Context) error {
	return h.list(c, h.repo.ListByResult)
}

func (h *Handler) ListByOrder(c echo.Context) error {
	return h.list(c, h.repo.ListByOrder)
}

func (h *Handler) list(c echo.Context, fetch func(ctx context.Context, id uuid.UUID, limit, offset int) ([]*Entry, int, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p := pagination.FromContext(c)
	items, total, err := fetch(c.Request().Context(), id, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}
