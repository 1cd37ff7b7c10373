package scheduling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/mediease/mediease/internal/platform/apperror"
	"github.com/mediease/mediease/internal/platform/auth"
)

func newTestHandler() (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv()
	return NewHandler(env.svc), env, echo.New()
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_CreateSlots(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"date":"2025-06-02","start_time":"09:00","end_time":"10:00","duration":30}`

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/me/slots", body), rec)
	auth.SetPrincipal(c, drLee)
	if err := h.CreateSlots(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["message"] != "Created 2 availability slots successfully!" || resp["created"] != float64(2) {
		t.Errorf("unexpected response %v", resp)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(jsonRequest(http.MethodPost, "/api/v1/me/slots", body), rec)
	auth.SetPrincipal(c, drLee)
	if err := h.CreateSlots(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for a repeat request, got %d", rec.Code)
	}
}

func TestHandler_CreateSlots_Invalid(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"date":"2020-01-01","start_time":"09:00","end_time":"10:00","duration":30}`
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/me/slots", body), httptest.NewRecorder())
	auth.SetPrincipal(c, drLee)

	err := h.CreateSlots(c)
	if apperror.StatusOf(err) != http.StatusBadRequest || apperror.MessageOf(err) != "Please select a valid future date" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestHandler_DaySlots(t *testing.T) {
	h, env, e := newTestHandler()
	env.seed(t, drLee)
	doctorID := env.doctors.ids[drLee.UserID]

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?date=2025-06-02", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(doctorID, 10))
	if err := h.DaySlots(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp struct {
		Success bool `json:"success"`
		Slots   []struct {
			StartTime string `json:"start_time"`
			Status    string `json:"status"`
		} `json:"slots"`
		AvailableSlots int `json:"available_slots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || len(resp.Slots) != 2 || resp.AvailableSlots != 2 {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Slots[0].StartTime != "09:00" || resp.Slots[0].Status != "available" {
		t.Errorf("unexpected slot %+v", resp.Slots[0])
	}
}

func TestHandler_DaySlots_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("abc")

	if err := h.DaySlots(c); apperror.MessageOf(err) != "Invalid doctor ID" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestHandler_CheckAvailability(t *testing.T) {
	h, env, e := newTestHandler()
	ids := env.seed(t, drLee)
	doctorID := strconv.FormatInt(env.doctors.ids[drLee.UserID], 10)
	slotID := strconv.FormatInt(ids[0], 10)

	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{"day", `{"action":"check_doctor_availability","doctor_id":` + doctorID + `,"date":"2025-06-02"}`, http.StatusOK, "available"},
		{"slots", `{"action":"get_available_slots","doctor_id":` + doctorID + `,"date":"2025-06-02"}`, http.StatusOK, "slots"},
		{"slot", `{"action":"check_slot_status","slot_id":` + slotID + `}`, http.StatusOK, "is_bookable"},
		{"schedule", `{"action":"get_doctor_schedule","doctor_id":` + doctorID + `}`, http.StatusOK, "stats"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/check_availability", tt.body), rec)
			auth.SetPrincipal(c, patient)
			if err := h.CheckAvailability(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			var resp map[string]interface{}
			json.Unmarshal(rec.Body.Bytes(), &resp)
			if _, ok := resp[tt.field]; !ok {
				t.Errorf("expected %q in response %v", tt.field, resp)
			}
		})
	}
}

func TestHandler_CheckAvailability_Errors(t *testing.T) {
	h, _, e := newTestHandler()
	tests := []struct {
		body string
		msg  string
	}{
		{`{"action":"levitate"}`, "Invalid action"},
		{`{"action":"check_doctor_availability"}`, "Missing required parameters"},
		{`{"action":"get_available_slots","doctor_id":1,"date":"02-06-2025"}`, "Invalid date format"},
		{`{"action":"check_slot_status"}`, "Missing slot_id parameter"},
		{`{"action":"get_doctor_schedule"}`, "Missing doctor_id parameter"},
		{`{"action":`, "Invalid request body"},
	}
	for _, tt := range tests {
		c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/check_availability", tt.body), httptest.NewRecorder())
		err := h.CheckAvailability(c)
		if apperror.StatusOf(err) != http.StatusBadRequest || apperror.MessageOf(err) != tt.msg {
			t.Errorf("%s: expected 400 %q, got %v", tt.body, tt.msg, err)
		}
	}
}

func TestHandler_ToggleSlot(t *testing.T) {
	h, env, e := newTestHandler()
	ids := env.seed(t, drLee)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"is_available":false}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(ids[0], 10))
	auth.SetPrincipal(c, drLee)
	if err := h.ToggleSlot(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Slot disabled successfully!") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c = e.NewContext(jsonRequest(http.MethodPost, "/", `{}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(ids[0], 10))
	auth.SetPrincipal(c, drLee)
	if err := h.ToggleSlot(c); apperror.StatusOf(err) != http.StatusBadRequest {
		t.Errorf("expected 400 without is_available, got %v", err)
	}
}

func TestHandler_DeleteSlot(t *testing.T) {
	h, env, e := newTestHandler()
	ids := env.seed(t, drLee)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(ids[1], 10))
	auth.SetPrincipal(c, drLee)
	if err := h.DeleteSlot(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Slot deleted successfully!") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_BulkSlotActions(t *testing.T) {
	h, env, e := newTestHandler()
	env.seed(t, drLee)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/bulk_slot_actions", `{"action":"disable"}`), rec)
	auth.SetPrincipal(c, drLee)
	if err := h.BulkSlotActions(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["message"] != "All slots disabled" || resp["affected"] != float64(2) {
		t.Errorf("unexpected response %v", resp)
	}

	c = e.NewContext(jsonRequest(http.MethodPost, "/api/v1/bulk_slot_actions", `{"action":"enable"}`), httptest.NewRecorder())
	auth.SetPrincipal(c, patient)
	if err := h.BulkSlotActions(c); apperror.StatusOf(err) != http.StatusForbidden {
		t.Errorf("expected 403 for a patient, got %v", err)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, _, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"GET /api/v1/doctors/:id/slots":        false,
		"GET /api/v1/doctors/:id/availability": false,
		"GET /api/v1/doctors/:id/schedule":     false,
		"GET /api/v1/slots/:id":                false,
		"POST /api/v1/check_availability":      false,
		"POST /api/v1/me/slots":                false,
		"GET /api/v1/me/slots":                 false,
		"DELETE /api/v1/me/slots/:id":          false,
		"POST /api/v1/me/slots/:id/toggle":     false,
		"POST /api/v1/bulk_slot_actions":       false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}
