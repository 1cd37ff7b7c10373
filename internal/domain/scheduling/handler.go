package scheduling

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mediease/mediease/internal/platform/apperror"
	"github.com/mediease/mediease/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/doctors/:id/slots", h.DaySlots)
	api.GET("/doctors/:id/availability", h.CheckDay)
	api.GET("/doctors/:id/schedule", h.Schedule)
	api.GET("/slots/:id", h.GetSlot)
	api.POST("/check_availability", h.CheckAvailability)

	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.POST("/me/slots", h.CreateSlots)
	doctor.GET("/me/slots", h.ListMySlots)
	doctor.DELETE("/me/slots/:id", h.DeleteSlot)
	doctor.POST("/me/slots/:id/toggle", h.ToggleSlot)

	// The bulk endpoint answers non-doctors itself with "Forbidden".
	api.POST("/bulk_slot_actions", h.BulkSlotActions)
}

func paramID(c echo.Context, message string) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.BadRequest(message)
	}
	return id, nil
}

// -- Public reads --

func (h *Handler) DaySlots(c echo.Context) error {
	id, err := paramID(c, "Invalid doctor ID")
	if err != nil {
		return err
	}
	out, err := h.svc.DaySlots(c.Request().Context(), id, c.QueryParam("date"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) CheckDay(c echo.Context) error {
	id, err := paramID(c, "Invalid doctor ID")
	if err != nil {
		return err
	}
	out, err := h.svc.CheckDay(c.Request().Context(), id, c.QueryParam("date"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Schedule(c echo.Context) error {
	id, err := paramID(c, "Invalid doctor ID")
	if err != nil {
		return err
	}
	out, err := h.svc.DoctorSchedule(c.Request().Context(), auth.CurrentPrincipal(c), id,
		c.QueryParam("start_date"), c.QueryParam("end_date"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetSlot(c echo.Context) error {
	id, err := paramID(c, "Invalid slot ID")
	if err != nil {
		return err
	}
	out, err := h.svc.SlotReport(c.Request().Context(), auth.CurrentPrincipal(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

type availabilityRequest struct {
	Action    string `json:"action" form:"action"`
	DoctorID  int64  `json:"doctor_id" form:"doctor_id"`
	SlotID    int64  `json:"slot_id" form:"slot_id"`
	Date      string `json:"date" form:"date"`
	StartDate string `json:"start_date" form:"start_date"`
	EndDate   string `json:"end_date" form:"end_date"`
}

// CheckAvailability is the action-dispatch form of the availability reads.
func (h *Handler) CheckAvailability(c echo.Context) error {
	var req availabilityRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("Invalid request body")
	}
	ctx := c.Request().Context()

	var (
		out interface{}
		err error
	)
	switch req.Action {
	case "check_doctor_availability":
		out, err = h.svc.CheckDay(ctx, req.DoctorID, req.Date)
	case "get_available_slots":
		out, err = h.svc.DaySlots(ctx, req.DoctorID, req.Date)
	case "check_slot_status":
		out, err = h.svc.SlotReport(ctx, auth.CurrentPrincipal(c), req.SlotID)
	case "get_doctor_schedule":
		out, err = h.svc.DoctorSchedule(ctx, auth.CurrentPrincipal(c), req.DoctorID, req.StartDate, req.EndDate)
	default:
		return apperror.BadRequest("Invalid action")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// -- Doctor maintenance --

func (h *Handler) CreateSlots(c echo.Context) error {
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("Invalid request body")
	}
	res, err := h.svc.CreateSlots(c.Request().Context(), auth.CurrentPrincipal(c), req)
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if res.Created == 0 {
		status = http.StatusOK
	}
	return c.JSON(status, map[string]interface{}{
		"success": res.Created > 0,
		"message": res.Message,
		"created": res.Created,
		"date":    res.Date,
	})
}

func (h *Handler) ListMySlots(c echo.Context) error {
	days, err := h.svc.ListUpcoming(c.Request().Context(), auth.CurrentPrincipal(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"days": days})
}

func (h *Handler) DeleteSlot(c echo.Context) error {
	id, err := paramID(c, "Invalid slot ID")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSlot(c.Request().Context(), auth.CurrentPrincipal(c), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "Slot deleted successfully!"})
}

type toggleRequest struct {
	IsAvailable *bool `json:"is_available" form:"is_available"`
}

func (h *Handler) ToggleSlot(c echo.Context) error {
	id, err := paramID(c, "Invalid slot ID")
	if err != nil {
		return err
	}
	var req toggleRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("Invalid request body")
	}
	if req.IsAvailable == nil {
		return apperror.BadRequest("is_available is required")
	}
	msg, err := h.svc.SetSlotAvailability(c.Request().Context(), auth.CurrentPrincipal(c), id, *req.IsAvailable)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": msg})
}

type bulkRequest struct {
	Action string `json:"action" form:"action"`
}

func (h *Handler) BulkSlotActions(c echo.Context) error {
	var req bulkRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("Invalid request body")
	}
	res, err := h.svc.BulkAction(c.Request().Context(), auth.CurrentPrincipal(c), req.Action)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  res.Message,
		"affected": res.Affected,
	})
}
