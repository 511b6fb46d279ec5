package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/goodtune/attendance/internal/attendance"
	"github.com/goodtune/attendance/internal/clock"
	"github.com/goodtune/attendance/internal/notify"
	"github.com/goodtune/attendance/internal/storage"
	"github.com/goodtune/attendance/internal/storage/bolt"
	"github.com/goodtune/attendance/internal/users"
	"github.com/rs/zerolog"
)

const adminID = 100

func setupTestServer(t *testing.T) (http.Handler, *clock.TestClock) {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "api.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clk := &clock.TestClock{CurrentTime: time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)}
	zone := clock.NewZone(time.UTC)

	dir, err := users.NewDirectory(store.Users(), []int64{adminID}, 16, clk, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDirectory() error = %v", err)
	}
	if _, err := dir.Register(context.Background(), storage.User{ID: 1, FirstName: "Ana"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ledger := attendance.NewLedger(store.Attendance(), zone, clk, attendance.DefaultDebounce, zerolog.Nop())
	svc := attendance.NewService(ledger, dir, notify.NewRecorder(), zerolog.Nop())

	return NewServer("127.0.0.1:0", svc, zerolog.Nop()).Handler(), clk
}

func do(t *testing.T, h http.Handler, method, path string, acting int64, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if acting != 0 {
		req.Header.Set(ActingUserHeader, strconv.FormatInt(acting, 10))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestAPI_CheckInCheckOut(t *testing.T) {
	h, clk := setupTestServer(t)

	rec, body := do(t, h, "POST", "/api/users/1/checkin", 0, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("checkin status = %d, body %v", rec.Code, body)
	}
	if body["outcome"] != "first_check_in" {
		t.Errorf("outcome = %v, want first_check_in", body["outcome"])
	}

	rec, body = do(t, h, "GET", "/api/users/1/status", 0, nil)
	if rec.Code != http.StatusOK || body["status"] != "open" {
		t.Errorf("status = %d %v, want open", rec.Code, body)
	}

	clk.Advance(8*time.Hour + 30*time.Minute)
	rec, body = do(t, h, "POST", "/api/users/1/checkout", 0, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout status = %d, body %v", rec.Code, body)
	}
	if body["total_hours"] != 8.5 {
		t.Errorf("total_hours = %v, want 8.5", body["total_hours"])
	}

	rec, body = do(t, h, "POST", "/api/users/1/checkout", 0, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second checkout status = %d, want 409", rec.Code)
	}
	if body["message"] != "You need to check in first" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestAPI_CheckInExplicitTime(t *testing.T) {
	h, _ := setupTestServer(t)

	at := time.Date(2024, 5, 3, 8, 15, 0, 0, time.UTC)
	rec, body := do(t, h, "POST", "/api/users/1/checkin", 0, EventRequest{At: &at})
	if rec.Code != http.StatusOK {
		t.Fatalf("checkin status = %d, body %v", rec.Code, body)
	}

	rec, body = do(t, h, "GET", "/api/users/1/history?date=2024-05-03", 0, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d, body %v", rec.Code, body)
	}
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}

	rec, _ = do(t, h, "GET", "/api/users/1/history?date=2024-05-04", 0, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("empty history status = %d, want 404", rec.Code)
	}

	rec, body = do(t, h, "GET", "/api/users/1/history?month=2024-05", 0, nil)
	if rec.Code != http.StatusOK || body["days_present"] != float64(1) {
		t.Errorf("month history = %d %v", rec.Code, body)
	}
}

func TestAPI_BadInput(t *testing.T) {
	h, _ := setupTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		acting int64
		want   int
	}{
		{"bad user id", "POST", "/api/users/abc/checkin", 0, http.StatusBadRequest},
		{"bad date", "GET", "/api/users/1/history?from=06-05-2024", 0, http.StatusBadRequest},
		{"bad month", "GET", "/api/users/1/history?month=May", 0, http.StatusBadRequest},
		{"bad report range", "GET", "/api/report?from=2024-05-06", adminID, http.StatusBadRequest},
		{"bad record day", "DELETE", "/api/users/1/records/yesterday", adminID, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, h, tt.method, tt.path, tt.acting, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %v)", rec.Code, tt.want, body)
			}
		})
	}

	req := httptest.NewRequest("GET", "/api/today", nil)
	req.Header.Set(ActingUserHeader, "nope")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad acting header status = %d, want 400", rec.Code)
	}
}

func TestAPI_AdminRoutes(t *testing.T) {
	h, _ := setupTestServer(t)

	do(t, h, "POST", "/api/users/1/checkin", 0, nil)

	rec, _ := do(t, h, "GET", "/api/today", 1, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("today as worker status = %d, want 403", rec.Code)
	}

	rec, body := do(t, h, "GET", "/api/today", adminID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("today status = %d, body %v", rec.Code, body)
	}
	if body["count"] != float64(1) || body["open"] != float64(1) {
		t.Errorf("today = %v, want one open entry", body)
	}

	rec, body = do(t, h, "GET", "/api/report?from=2024-05-01&to=2024-05-31", adminID, nil)
	if rec.Code != http.StatusOK || body["count"] != float64(1) {
		t.Errorf("report = %d %v", rec.Code, body)
	}

	rec, body = do(t, h, "DELETE", "/api/users/1/records/2024-05-06", adminID, nil)
	if rec.Code != http.StatusOK || body["message"] != "Attendance record deleted successfully" {
		t.Errorf("delete record = %d %v", rec.Code, body)
	}

	rec, body = do(t, h, "DELETE", "/api/users/1/records", adminID, nil)
	if rec.Code != http.StatusNotFound || body["message"] != "No attendance records found" {
		t.Errorf("clear empty = %d %v", rec.Code, body)
	}

	rec, body = do(t, h, "DELETE", "/api/users/1", adminID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("delete user = %d %v", rec.Code, body)
	}
}

func TestAPI_RegisterUser(t *testing.T) {
	h, _ := setupTestServer(t)

	rec, body := do(t, h, "PUT", "/api/users/2", 2, UserRequest{FirstName: "Bruno"})
	if rec.Code != http.StatusOK || body["first_name"] != "Bruno" {
		t.Fatalf("register = %d %v", rec.Code, body)
	}

	rec, _ = do(t, h, "PUT", "/api/users/2", 2, UserRequest{FirstName: "Bruno", IsAdmin: true})
	if rec.Code != http.StatusForbidden {
		t.Errorf("self promotion status = %d, want 403", rec.Code)
	}

	rec, body = do(t, h, "PUT", "/api/users/2", adminID, UserRequest{FirstName: "Bruno", IsAdmin: true})
	if rec.Code != http.StatusOK || body["is_admin"] != true {
		t.Errorf("admin promotion = %d %v", rec.Code, body)
	}

	rec, _ = do(t, h, "PUT", "/api/users/3", 3, UserRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty registration status = %d, want 400", rec.Code)
	}

	// User 2 is now the only stored admin, so the config fallback no longer applies.
	rec, body = do(t, h, "GET", "/api/users", 2, nil)
	if rec.Code != http.StatusOK || body["count"] != float64(2) {
		t.Errorf("list users = %d %v", rec.Code, body)
	}
}

func TestAPI_Health(t *testing.T) {
	h, _ := setupTestServer(t)

	rec, body := do(t, h, "GET", "/health", 0, nil)
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", rec.Code, body)
	}
}
