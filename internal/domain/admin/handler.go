package admin

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mediease/mediease/internal/domain/activity"
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
	g := api.Group("", auth.RequireRole(auth.RoleAdmin))
	g.GET("/get_doctor_details", h.DoctorDetails)
	g.GET("/user_details", h.UserDetails)
	g.GET("/admin/stats", h.SystemStats)
	g.GET("/admin/activity", h.ActivityLog)
}

func queryID(c echo.Context, name string, invalid error) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.QueryParam(name)), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid
	}
	return id, nil
}

func (h *Handler) DoctorDetails(c echo.Context) error {
	id, err := queryID(c, "doctor_id", ErrInvalidDoctorID)
	if err != nil {
		return err
	}
	rep, err := h.svc.DoctorDetails(c.Request().Context(), auth.CurrentPrincipal(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "doctor": rep})
}

func (h *Handler) UserDetails(c echo.Context) error {
	id, err := queryID(c, "user_id", ErrInvalidUserID)
	if err != nil {
		return err
	}
	rep, err := h.svc.UserDetails(c.Request().Context(), auth.CurrentPrincipal(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "user": rep})
}

func (h *Handler) SystemStats(c echo.Context) error {
	st, err := h.svc.SystemStats(c.Request().Context(), auth.CurrentPrincipal(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "stats": st})
}

// ActivityLog pages through the activity log, newest first. user_id and
// action narrow it.
func (h *Handler) ActivityLog(c echo.Context) error {
	var f activity.Filter
	if raw := c.QueryParam("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return apperror.BadRequest("Invalid user ID")
		}
		f.UserID = id
	}
	f.Action = strings.TrimSpace(c.QueryParam("action"))

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ActivityLog(c.Request().Context(), auth.CurrentPrincipal(c), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*activity.Entry{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
