package lab

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinika/clinika/internal/platform/auth"
	"github.com/clinika/clinika/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "lab_tech"))
	readGroup.GET("/orders", h.ListOrders)
	readGroup.GET("/orders/:id", h.GetOrder)
	readGroup.GET("/orders/:id/results", h.GetOrderResults)

	orderGroup := api.Group("", auth.RequireRole("admin", "physician"))
	orderGroup.POST("/orders", h.CreateOrder)

	labGroup := api.Group("", auth.RequireRole("admin", "lab_tech"))
	labGroup.POST("/orders/:id/results", h.SubmitResults)
	labGroup.POST("/orders/:id/verify", h.VerifyOrder)
	labGroup.PUT("/orders/:id/status", h.UpdateStatus)
}

type createOrderRequest struct {
	PatientID uuid.UUID   `json:"patient_id"`
	VisitID   *uuid.UUID  `json:"visit_id"`
	Notes     *string     `json:"notes"`
	TestIDs   []uuid.UUID `json:"test_ids"`
}

func (h *Handler) CreateOrder(c echo.Context) error {
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o := &Order{
		PatientID: req.PatientID,
		VisitID:   req.VisitID,
		Notes:     req.Notes,
		OrderedBy: auth.UserIDFromContext(c.Request().Context()),
	}
	if err := h.svc.CreateOrder(c.Request().Context(), o, req.TestIDs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	o, err := h.svc.GetOrder(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) GetOrderResults(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	o, err := h.svc.GetOrder(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, o.Results)
}

func (h *Handler) ListOrders(c echo.Context) error {
	p := pagination.FromContext(c)
	var patientID *uuid.UUID
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		patientID = &id
	}
	items, total, err := h.svc.ListOrders(c.Request().Context(), patientID, c.QueryParam("status"), p.Limit, p.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

type statusRequest struct {
	Status string `json:"status" form:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": req.Status})
}

// SubmitResults accepts the three wire shapes of a results submission:
// a JSON body whose "results" member is either the nested object or a
// JSON-encoded string of it, or a form post with bracket-path keys
// (results[testId][section][field]=value).
func (h *Handler) SubmitResults(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	entries, err := h.decodeSubmission(c)
	if err != nil {
		return mapError(err)
	}

	actor := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.SubmitResults(c.Request().Context(), id, entries, actor); err != nil {
		return mapError(err)
	}

	o, err := h.svc.GetOrder(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "results saved",
		"order":   o,
	})
}

func (h *Handler) decodeSubmission(c echo.Context) (map[string]Node, error) {
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, echo.MIMEApplicationForm) ||
		strings.HasPrefix(contentType, echo.MIMEMultipartForm) {
		form, err := c.FormParams()
		if err != nil {
			return nil, ErrInvalidPayload
		}
		return DecodeBracketForm(form), nil
	}

	var body struct {
		Results any `json:"results"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return nil, ErrInvalidPayload
	}
	return DecodeEnvelope(body.Results)
}

func (h *Handler) VerifyOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.VerifyOrder(c.Request().Context(), id, actor); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "order verified"})
}

// mapError translates domain errors to HTTP ones. Persistence failures
// fall through as 500 with the driver message; the transaction has already
// rolled back by the time the error reaches here.
func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	case errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrUnknownTest),
		errors.Is(err, ErrInvalidStatus):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
