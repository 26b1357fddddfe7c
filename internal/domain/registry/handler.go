package registry

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/registry/internal/domain/records"
	"github.com/ehr/registry/internal/domain/scheduling"
	"github.com/ehr/registry/pkg/pagination"
)

// Handler exposes the registry Service over HTTP.
type Handler struct {
	svc *Service
	gen PatientGenerator
}

// NewHandler wires the HTTP surface. gen backs the synthetic registration
// endpoint and may be nil, in which case that endpoint rejects requests.
func NewHandler(svc *Service, gen PatientGenerator) *Handler {
	return &Handler{svc: svc, gen: gen}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients", h.ListPatients)
	api.POST("/patients", h.RegisterPatients)
	api.POST("/patients/generate", h.GeneratePatients)
	api.GET("/patients/:key", h.FindPatient)
	api.PATCH("/patients/:key", h.UpdatePatient)
	api.DELETE("/patients/:key", h.RemovePatient)
	api.POST("/patients/:key/prescriptions/pop", h.PopPrescription)

	api.GET("/doctors", h.ListDoctors)

	api.GET("/appointments", h.ListAppointments)
	api.POST("/appointments", h.Schedule)
	api.POST("/appointments/random", h.ScheduleRandom)

	api.GET("/queue", h.PeekQueue)
	api.POST("/queue/process", h.ProcessQueue)

	api.GET("/prescriptions/pending", h.PendingPrescriptions)
	api.POST("/prescriptions/issue", h.IssuePrescriptions)
}

// httpError maps core errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, records.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, records.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// -- Patients --

type registerRequest struct {
	Patients []records.NewPatient `json:"patients"`
}

type countRequest struct {
	Count int `json:"count"`
}

func (h *Handler) RegisterPatients(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Patients) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "patients is required")
	}
	created, err := h.svc.RegisterPatients(req.Patients)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) GeneratePatients(c echo.Context) error {
	if h.gen == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "no patient generator configured")
	}
	var req countRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.svc.Register(req.Count, h.gen)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)

	seq := h.svc.ListPatients()
	from, to := c.QueryParam("from"), c.QueryParam("to")
	if from != "" || to != "" {
		var err error
		if seq, err = h.svc.SearchPatients(from, to); err != nil {
			return httpError(err)
		}
	}

	all := slices.Collect(seq)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Slice(all, pg), len(all), pg.Limit, pg.Offset))
}

func (h *Handler) FindPatient(c echo.Context) error {
	sum, err := h.svc.FindPatient(c.Param("key"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

type updateRequest struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// value accepts both JSON strings and bare numbers, so {"value": 42} and
// {"value": "42"} are equivalent.
func (r updateRequest) value() string {
	var s string
	if err := json.Unmarshal(r.Value, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(r.Value))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Field == "" || len(req.Value) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "field and value are required")
	}
	p, err := h.svc.UpdatePatient(c.Param("key"), records.Field(req.Field), req.value())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) RemovePatient(c echo.Context) error {
	if err := h.svc.RemovePatient(c.Param("key")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type popResponse struct {
	Empty        bool                  `json:"empty"`
	Prescription *records.Prescription `json:"prescription,omitempty"`
}

func (h *Handler) PopPrescription(c echo.Context) error {
	rx, ok, err := h.svc.PopPrescription(c.Param("key"))
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return c.JSON(http.StatusOK, popResponse{Empty: true})
	}
	return c.JSON(http.StatusOK, popResponse{Prescription: &rx})
}

func (h *Handler) ListDoctors(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.ListDoctors())
}

// -- Scheduling --

type scheduleRequest struct {
	PatientKey string `json:"patient_key"`
	DoctorKey  string `json:"doctor_key"`
}

func (h *Handler) Schedule(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PatientKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_key is required")
	}
	appt, err := h.svc.Schedule(req.PatientKey, scheduling.ParseSelector(req.DoctorKey))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

type scheduleResult struct {
	PatientKey  string                  `json:"patient_key"`
	OK          bool                    `json:"ok"`
	Appointment *scheduling.Appointment `json:"appointment,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

func (h *Handler) ScheduleRandom(c echo.Context) error {
	var req countRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	results, err := h.svc.ScheduleRandom(req.Count)
	if err != nil {
		return httpError(err)
	}
	out := make([]scheduleResult, len(results))
	for i, r := range results {
		out[i] = scheduleResult{PatientKey: r.PatientKey, OK: r.OK, Appointment: r.Appointment}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	appts := h.svc.Appointments()
	if key := c.QueryParam("patient_key"); key != "" {
		appts = slices.DeleteFunc(appts, func(a scheduling.Appointment) bool { return a.PatientKey != key })
	}
	return c.JSON(http.StatusOK, appts)
}

// -- Consultation --

type processResponse struct {
	Empty     bool              `json:"empty"`
	Processed []records.Patient `json:"processed"`
}

func (h *Handler) PeekQueue(c echo.Context) error {
	queued := slices.Collect(h.svc.PeekQueue())
	if queued == nil {
		queued = []records.Patient{}
	}
	return c.JSON(http.StatusOK, queued)
}

func (h *Handler) ProcessQueue(c echo.Context) error {
	processed, ok := h.svc.ProcessQueue()
	if !ok {
		return c.JSON(http.StatusOK, processResponse{Empty: true, Processed: []records.Patient{}})
	}
	return c.JSON(http.StatusOK, processResponse{Processed: processed})
}

// -- Prescriptions --

type issueResponse struct {
	Empty  bool     `json:"empty"`
	Issued []Issued `json:"issued"`
}

func (h *Handler) PendingPrescriptions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Processed())
}

func (h *Handler) IssuePrescriptions(c echo.Context) error {
	issued, ok := h.svc.IssuePrescriptions()
	if !ok {
		return c.JSON(http.StatusOK, issueResponse{Empty: true, Issued: []Issued{}})
	}
	return c.JSON(http.StatusOK, issueResponse{Issued: issued})
}
