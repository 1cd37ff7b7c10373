package appointment

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mediease/mediease/internal/platform/apperror"
	"github.com/mediease/mediease/internal/platform/auth"
	"github.com/mediease/mediease/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/appointment_actions", h.Actions)

	api.POST("/appointments", h.Book)
	api.GET("/appointments/:id", h.Get)
	api.POST("/appointments/:id/cancel", h.Cancel)
	api.PUT("/appointments/:id/status", h.UpdateStatus)
	api.POST("/appointments/:id/reschedule", h.Reschedule)
	api.POST("/appointments/:id/notes", h.AddNotes)

	api.GET("/me/appointments", h.ListMine)
	api.GET("/me/appointments/stats", h.Stats)
}

type actionRequest struct {
	Action        string  `json:"action" form:"action"`
	SlotID        int64   `json:"slot_id" form:"slot_id"`
	AppointmentID int64   `json:"appointment_id" form:"appointment_id"`
	NewSlotID     int64   `json:"new_slot_id" form:"new_slot_id"`
	Status        string  `json:"status" form:"status"`
	Reason        string  `json:"reason" form:"reason"`
	Symptoms      string  `json:"symptoms" form:"symptoms"`
	Notes         *string `json:"notes" form:"notes"`
}

func (r *actionRequest) notes() string {
	if r.Notes == nil {
		return ""
	}
	return *r.Notes
}

func reply(c echo.Context, status int, body map[string]interface{}) error {
	body["success"] = true
	return c.JSON(status, body)
}

// -- Shared action bodies --

func (h *Handler) book(c echo.Context, status int, req BookRequest) error {
	conf, err := h.svc.Book(c.Request().Context(), auth.CurrentPrincipal(c), req)
	if err != nil {
		return err
	}
	return reply(c, status, map[string]interface{}{
		"appointment_id":      conf.AppointmentID,
		"message":             "Appointment booked successfully",
		"appointment_details": conf,
	})
}

func (h *Handler) cancel(c echo.Context, id int64, reason string) error {
	if err := h.svc.Cancel(c.Request().Context(), auth.CurrentPrincipal(c), id, reason); err != nil {
		return err
	}
	return reply(c, http.StatusOK, map[string]interface{}{"message": "Appointment cancelled successfully"})
}

func (h *Handler) updateStatus(c echo.Context, id int64, status string, notes *string) error {
	to, err := h.svc.UpdateStatus(c.Request().Context(), auth.CurrentPrincipal(c), id, status, notes)
	if err != nil {
		return err
	}
	return reply(c, http.StatusOK, map[string]interface{}{
		"message":    "Appointment status updated successfully",
		"new_status": to,
	})
}

func (h *Handler) reschedule(c echo.Context, id, newSlotID int64) error {
	res, err := h.svc.Reschedule(c.Request().Context(), auth.CurrentPrincipal(c), id, newSlotID)
	if err != nil {
		return err
	}
	return reply(c, http.StatusOK, map[string]interface{}{
		"message":     "Appointment rescheduled successfully",
		"new_slot_id": res.NewSlotID,
		"new_date":    res.NewDate,
		"new_time":    res.NewTime,
	})
}

func (h *Handler) details(c echo.Context, id int64) error {
	d, err := h.svc.GetDetails(c.Request().Context(), auth.CurrentPrincipal(c), id)
	if err != nil {
		return err
	}
	return reply(c, http.StatusOK, map[string]interface{}{"appointment": d.View(h.svc.Location())})
}

func (h *Handler) addNotes(c echo.Context, id int64, notes string) error {
	if err := h.svc.AddNotes(c.Request().Context(), auth.CurrentPrincipal(c), id, notes); err != nil {
		return err
	}
	return reply(c, http.StatusOK, map[string]interface{}{"message": "Notes added successfully"})
}

// Actions dispatches the action-style endpoint used by the web client.
func (h *Handler) Actions(c echo.Context) error {
	var req actionRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("Invalid request body")
	}
	switch req.Action {
	case "book_appointment":
		return h.book(c, http.StatusOK, BookRequest{SlotID: req.SlotID, Symptoms: req.Symptoms, Notes: req.notes()})
	case "cancel_appointment":
		return h.cancel(c, req.AppointmentID, req.Reason)
	case "update_appointment_status":
		return h.updateStatus(c, req.AppointmentID, req.Status, req.Notes)
	case "reschedule_appointment":
		return h.reschedule(c, req.AppointmentID, req.NewSlotID)
	case "get_appointment_details":
		return h.details(c, req.AppointmentID)
	case "add_appointment_notes":
		return h.addNotes(c, req.AppointmentID, req.notes())
	}
	return apperror.BadRequest("Invalid action")
}

// -- REST --

func appointmentID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.BadRequest("Invalid appointment ID")
	}
	return id, nil
}

func (h *Handler) Book(c echo.Context) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("Invalid request body")
	}
	return h.book(c, http.StatusCreated, req)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := appointmentID(c)
	if err != nil {
		return err
	}
	return h.details(c, id)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := appointmentID(c)
	if err != nil {
		return err
	}
	var body struct {
		Reason string `json:"reason" form:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return apperror.BadRequest("Invalid request body")
	}
	return h.cancel(c, id, body.Reason)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := appointmentID(c)
	if err != nil {
		return err
	}
	var body struct {
		Status string  `json:"status" form:"status"`
		Notes  *string `json:"notes" form:"notes"`
	}
	if err := c.Bind(&body); err != nil {
		return apperror.BadRequest("Invalid request body")
	}
	return h.updateStatus(c, id, body.Status, body.Notes)
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := appointmentID(c)
	if err != nil {
		return err
	}
	var body struct {
		NewSlotID int64 `json:"new_slot_id" form:"new_slot_id"`
	}
	if err := c.Bind(&body); err != nil {
		return apperror.BadRequest("Invalid request body")
	}
	return h.reschedule(c, id, body.NewSlotID)
}

func (h *Handler) AddNotes(c echo.Context) error {
	id, err := appointmentID(c)
	if err != nil {
		return err
	}
	var body struct {
		Notes string `json:"notes" form:"notes"`
	}
	if err := c.Bind(&body); err != nil {
		return apperror.BadRequest("Invalid request body")
	}
	return h.addNotes(c, id, body.Notes)
}

func listFilter(c echo.Context) ListFilter {
	return ListFilter{
		Status: c.QueryParam("status"),
		Range:  c.QueryParam("date"),
		Search: c.QueryParam("search"),
	}
}

// ListMine serves the caller's appointment list, or a CSV download when
// export=csv.
func (h *Handler) ListMine(c echo.Context) error {
	who := auth.CurrentPrincipal(c)
	if who == nil {
		return apperror.Unauthorized("Unauthorized")
	}
	f := listFilter(c)

	if c.QueryParam("export") == "csv" {
		if !who.Is(auth.RoleDoctor) {
			return apperror.Forbidden("Only doctors can export appointments")
		}
		f, err := h.svc.NormalizeFilter(f)
		if err != nil {
			return err
		}
		resp := c.Response()
		resp.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
		resp.Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+h.svc.ExportFilename()+`"`)
		resp.WriteHeader(http.StatusOK)
		return h.svc.ExportCSV(c.Request().Context(), who, f, resp)
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMine(c.Request().Context(), who, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Listing{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Stats(c echo.Context) error {
	st, err := h.svc.DoctorStats(c.Request().Context(), auth.CurrentPrincipal(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}
