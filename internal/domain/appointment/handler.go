package appointment

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicflow/clinicflow/internal/platform/apperror"
	"github.com/clinicflow/clinicflow/internal/platform/auth"
	"github.com/clinicflow/clinicflow/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleClinic, auth.RoleAssigner, auth.RoleDoctor, auth.RoleJrDoctor))
	read.GET("/appointments", h.List)
	read.GET("/appointments/:appointmentId", h.Get)
	read.GET("/patients/:patientId/appointments", h.ListForPatient)

	clinic := api.Group("", auth.RequireRole(auth.RoleClinic, auth.RoleAssigner))
	clinic.POST("/appointments", h.Schedule)
	clinic.PATCH("/appointments/:appointmentId/status", h.UpdateStatus)
	clinic.POST("/appointments/:appointmentId/documents", h.AddDocument)
	clinic.PUT("/appointments/:appointmentId/documents/:docId", h.UpdateDocument)
	clinic.DELETE("/appointments/:appointmentId/documents/:docId", h.RemoveDocument)

	doctors := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleJrDoctor, auth.RoleClinic))
	doctors.PUT("/appointments/:appointmentId/assessment", h.RecordAssessment)
}

func (h *Handler) Schedule(c echo.Context) error {
	var in ScheduleInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Schedule(c.Request().Context(), in, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	a, err := h.svc.Get(c.Request().Context(), c.Param("appointmentId"))
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, key := range []string{"patient", "doctor", "status", "date", "lab"} {
		if v := c.QueryParam(key); v != "" {
			params[key] = v
		}
	}
	items, total, err := h.svc.List(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListForPatient(c echo.Context) error {
	items, err := h.svc.ListByPatient(c.Request().Context(), c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var body struct {
		Status Status `json:"status"`
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateStatus(c.Request().Context(), c.Param("appointmentId"), body.Status, body.Reason, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) RecordAssessment(c echo.Context) error {
	var in AssessmentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.RecordAssessment(c.Request().Context(), c.Param("appointmentId"), in, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) AddDocument(c echo.Context) error {
	var doc Document
	if err := c.Bind(&doc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.AddDocument(c.Request().Context(), c.Param("appointmentId"), doc, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) UpdateDocument(c echo.Context) error {
	var doc Document
	if err := c.Bind(&doc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateDocument(c.Request().Context(), c.Param("appointmentId"), c.Param("docId"), doc)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) RemoveDocument(c echo.Context) error {
	a, err := h.svc.RemoveDocument(c.Request().Context(), c.Param("appointmentId"), c.Param("docId"))
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}
