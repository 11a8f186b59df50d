package assignment

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicflow/clinicflow/internal/platform/apperror"
	"github.com/clinicflow/clinicflow/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleAssigner, auth.RoleClinic))
	g.POST("/patients/:patientId/assignment", h.AssignPatient)
	g.POST("/appointments/:appointmentId/assignment", h.AssignAppointment)
}

type assignBody struct {
	DoctorID    *uuid.UUID `json:"doctor_id"`
	Notes       string     `json:"notes"`
	SyncPatient bool       `json:"sync_patient"`
}

func (h *Handler) AssignPatient(c echo.Context) error {
	var body assignBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.AssignPatient(c.Request().Context(), c.Param("patientId"), body.DoctorID, body.Notes, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) AssignAppointment(c echo.Context) error {
	var body assignBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.AssignAppointment(c.Request().Context(), c.Param("appointmentId"), body.DoctorID, body.Notes, body.SyncPatient, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}
