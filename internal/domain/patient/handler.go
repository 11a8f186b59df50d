package patient

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
	read.GET("/patients", h.List)
	read.GET("/patients/buckets", h.Buckets)
	read.GET("/patients/:patientId", h.Get)
	read.GET("/patients/:patientId/workflow", h.Workflow)

	write := api.Group("", auth.RequireRole(auth.RoleClinic, auth.RoleAssigner))
	write.POST("/patients", h.Register)
	write.PUT("/patients/:patientId/profile", h.UpdateProfile)
	write.POST("/patients/:patientId/episodes", h.StartNewEpisode)
	write.POST("/patients/:patientId/documents", h.AddDocument)
	write.DELETE("/patients/:patientId/documents/:docId", h.RemoveDocument)

	complete := api.Group("", auth.RequireRole(auth.RoleClinic, auth.RoleDoctor))
	complete.POST("/patients/:patientId/status/completed", h.MarkCompleted)
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, created, err := h.svc.Register(c.Request().Context(), in, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	if created {
		return c.JSON(http.StatusCreated, p)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Get(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, key := range []string{"status", "doctor", "name", "phone"} {
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

func (h *Handler) UpdateProfile(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdateProfile(c.Request().Context(), c.Param("patientId"), in)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) StartNewEpisode(c echo.Context) error {
	p, err := h.svc.StartNewEpisode(c.Request().Context(), c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) MarkCompleted(c echo.Context) error {
	p, err := h.svc.MarkCompleted(c.Request().Context(), c.Param("patientId"), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

// Workflow returns the projection a queue screen needs: current status,
// assignment, and the denormalized timeline refs.
func (h *Handler) Workflow(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient_id":        p.PatientID,
		"name":              p.Name,
		"workflow_status":   p.WorkflowStatus,
		"assignment":        p.Assignment,
		"current_visit_id":  p.CurrentVisitID,
		"appointment_refs":  p.AppointmentRefs,
		"prescription_refs": p.PrescriptionRefs,
	})
}

func (h *Handler) Buckets(c echo.Context) error {
	b, err := h.svc.StatusBuckets(c.Request().Context(), c.QueryParam("window"))
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) AddDocument(c echo.Context) error {
	var doc Document
	if err := c.Bind(&doc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.AddDocument(c.Request().Context(), c.Param("patientId"), doc, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) RemoveDocument(c echo.Context) error {
	p, err := h.svc.RemoveDocument(c.Request().Context(), c.Param("patientId"), c.Param("docId"))
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, p)
}
