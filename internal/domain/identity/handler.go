package identity

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mediease/mediease/internal/platform/apperror"
	"github.com/mediease/mediease/internal/platform/auth"
	"github.com/mediease/mediease/pkg/pagination"
)

// CookieConfig controls the session cookie written on login.
type CookieConfig struct {
	Name   string
	Secure bool
}

type Handler struct {
	svc    *Service
	cookie CookieConfig
}

func NewHandler(svc *Service, cookie CookieConfig) *Handler {
	return &Handler{svc: svc, cookie: cookie}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Public: the session middleware skips these paths.
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.GET("/specializations", h.ListSpecializations)

	api.POST("/auth/logout", h.Logout)
	api.GET("/auth/me", h.Me)
	api.PUT("/me/profile", h.UpdateProfile)

	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
}

func bindAndValidate(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return apperror.BadRequest("Invalid request body")
	}
	return c.Validate(dst)
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	auth.SetSessionCookie(c, h.cookie.Name, res.Token, res.ExpiresAt, h.cookie.Secure)
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success":    true,
		"message":    "Registration successful",
		"user":       res.User,
		"token":      res.Token,
		"expires_at": res.ExpiresAt,
	})
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	auth.SetSessionCookie(c, h.cookie.Name, res.Token, res.ExpiresAt, h.cookie.Secure)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"user":       res.User,
		"token":      res.Token,
		"expires_at": res.ExpiresAt,
	})
}

func (h *Handler) Logout(c echo.Context) error {
	if err := h.svc.Logout(c.Request().Context(), auth.CurrentPrincipal(c)); err != nil {
		return err
	}
	auth.ClearSessionCookie(c, h.cookie.Name, h.cookie.Secure)
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "Logged out"})
}

func (h *Handler) Me(c echo.Context) error {
	who := auth.CurrentPrincipal(c)
	if who == nil {
		return apperror.Unauthorized("Unauthorized")
	}
	u, d, err := h.svc.Me(c.Request().Context(), who)
	if err != nil {
		return err
	}
	out := map[string]interface{}{"user": u}
	if d != nil {
		out["doctor"] = d
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	who := auth.CurrentPrincipal(c)
	if who == nil {
		return apperror.Unauthorized("Unauthorized")
	}
	var req ProfileUpdate
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	u, err := h.svc.UpdateProfile(c.Request().Context(), who, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Profile updated successfully!",
		"user":    u,
	})
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := DoctorFilter{
		Search:         c.QueryParam("search"),
		Specialization: c.QueryParam("specialization"),
	}
	items, total, err := h.svc.SearchDoctors(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Doctor{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return apperror.BadRequest("Invalid doctor ID")
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListSpecializations(c echo.Context) error {
	names, err := h.svc.ListSpecializations(c.Request().Context())
	if err != nil {
		return err
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"specializations": names})
}
