package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goodtune/attendance/internal/attendance"
	"github.com/goodtune/attendance/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// AttendanceHandler handles attendance API requests.
type AttendanceHandler struct {
	service *attendance.Service
	logger  zerolog.Logger
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(service *attendance.Service, logger zerolog.Logger) *AttendanceHandler {
	return &AttendanceHandler{
		service: service,
		logger:  logger.With().Str("handler", "attendance").Logger(),
	}
}

// EventRequest is the optional body of check-in and check-out.
type EventRequest struct {
	At *time.Time `json:"at,omitempty"`
}

// UserRequest is the body of a user registration.
type UserRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	IsAdmin   bool   `json:"is_admin"`
}

// CheckIn records a check-in.
func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	userID, at, ok := h.eventParams(w, r)
	if !ok {
		return
	}

	res, err := h.service.CheckIn(r.Context(), userID, at)
	if err != nil {
		h.fail(w, err, userID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"outcome": res.Outcome.String(),
		"message": res.Message(),
		"record":  res.Record,
	})
}

// CheckOut records a check-out.
func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	userID, at, ok := h.eventParams(w, r)
	if !ok {
		return
	}

	res, err := h.service.CheckOut(r.Context(), userID, at)
	if err != nil {
		h.fail(w, err, userID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":       res.Message(),
		"session_hours": res.SessionHours,
		"total_hours":   res.TotalHours,
		"record":        res.Record,
	})
}

// Status reports today's state of a user.
func (h *AttendanceHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}

	st, err := h.service.Ledger().Status(r.Context(), userID, time.Time{})
	if err != nil {
		h.fail(w, err, userID)
		return
	}

	body := map[string]interface{}{
		"status":      st.Kind.String(),
		"message":     st.Message(),
		"day":         st.Day.Format(storage.DayLayout),
		"total_hours": st.TotalHours,
		"sessions":    st.Sessions,
	}
	switch st.Kind {
	case attendance.StatusOpen:
		body["since"] = st.Since
	case attendance.StatusClosed:
		body["last_check_in"] = st.LastCheckIn
		body["last_check_out"] = st.LastCheckOut
	}
	writeJSON(w, http.StatusOK, body)
}

// History returns a user's records. Query: date, from/to, month (YYYY-MM) or limit.
func (h *AttendanceHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	ledger := h.service.Ledger()
	zone := ledger.Zone()
	q := r.URL.Query()

	if month := q.Get("month"); month != "" {
		m, err := time.ParseInLocation("2006-01", month, zone.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid month format. Please use YYYY-MM format.")
			return
		}
		summary, err := ledger.Month(ctx, userID, m.Year(), m.Month())
		if err != nil {
			h.fail(w, err, userID)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"month":         month,
			"records":       summary.Records,
			"count":         len(summary.Records),
			"days_present":  summary.DaysPresent,
			"complete_days": summary.CompleteDays,
			"total_hours":   summary.TotalHours,
		})
		return
	}

	var from, to time.Time
	if date := q.Get("date"); date != "" {
		q.Set("from", date)
		q.Set("to", date)
	}
	for key, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		day, err := zone.ParseDay(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format. Please use YYYY-MM-DD format.")
			return
		}
		*dst = day
	}

	records, err := ledger.History(ctx, userID, from, to)
	if err != nil {
		h.fail(w, err, userID)
		return
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if len(records) > limit {
			records = records[:limit]
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// RegisterUser creates or updates a directory entry. Granting or revoking
// the admin flag requires an admin.
func (h *AttendanceHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}

	var req UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FirstName == "" && req.Username == "" {
		writeError(w, http.StatusBadRequest, "first_name or username is required")
		return
	}

	ctx := r.Context()
	dir := h.service.Users()

	wasAdmin := false
	if existing, err := dir.Get(ctx, userID); err == nil {
		wasAdmin = existing.IsAdmin
	} else if !errors.Is(err, storage.ErrNotFound) {
		h.fail(w, err, userID)
		return
	}
	if req.IsAdmin != wasAdmin {
		isAdmin, err := dir.IsAdmin(ctx, actingUser(r))
		if err != nil {
			h.fail(w, err, userID)
			return
		}
		if !isAdmin {
			h.fail(w, attendance.ErrForbidden, userID)
			return
		}
	}

	user, err := dir.Register(ctx, storage.User{
		ID:        userID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		IsAdmin:   req.IsAdmin,
	})
	if err != nil {
		h.fail(w, err, userID)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// ListUsers returns the user directory. Admin only.
func (h *AttendanceHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dir := h.service.Users()

	isAdmin, err := dir.IsAdmin(ctx, actingUser(r))
	if err != nil {
		h.fail(w, err, 0)
		return
	}
	if !isAdmin {
		h.fail(w, attendance.ErrForbidden, 0)
		return
	}

	users, err := dir.List(ctx)
	if err != nil {
		h.fail(w, err, 0)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// Today returns the admin overview of the current day.
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Today(r.Context(), actingUser(r))
	if err != nil {
		h.fail(w, err, 0)
		return
	}

	open := 0
	for _, e := range entries {
		if e.Open {
			open++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"day":     h.service.Ledger().Today().Format(storage.DayLayout),
		"entries": entries,
		"count":   len(entries),
		"open":    open,
	})
}

// Report returns export rows for from..to inclusive. Admin only.
func (h *AttendanceHandler) Report(w http.ResponseWriter, r *http.Request) {
	zone := h.service.Ledger().Zone()
	q := r.URL.Query()

	from, err := zone.ParseDay(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format. Please use YYYY-MM-DD format.")
		return
	}
	to, err := zone.ParseDay(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format. Please use YYYY-MM-DD format.")
		return
	}

	rows, err := h.service.Report(r.Context(), actingUser(r), from, to)
	if err != nil {
		h.fail(w, err, 0)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"from":  q.Get("from"),
		"to":    q.Get("to"),
		"rows":  rows,
		"count": len(rows),
	})
}

// DeleteUser removes a user and their records. Admin only.
func (h *AttendanceHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}

	n, err := h.service.DeleteUser(r.Context(), actingUser(r), userID)
	if err != nil {
		h.fail(w, err, userID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": attendance.PurgeMessage("user", n),
		"deleted": n,
	})
}

// ClearAttendance removes every record of a user. Admin only.
func (h *AttendanceHandler) ClearAttendance(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}

	n, err := h.service.ClearAttendance(r.Context(), actingUser(r), userID)
	if err != nil {
		h.fail(w, err, userID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": attendance.PurgeMessage("clear", n),
		"deleted": n,
	})
}

// DeleteRecord removes one day's record of a user. Admin only.
func (h *AttendanceHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}

	day, err := h.service.Ledger().Zone().ParseDay(mux.Vars(r)["day"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format. Please use YYYY-MM-DD format.")
		return
	}

	if err := h.service.DeleteRecord(r.Context(), actingUser(r), userID, day); err != nil {
		h.fail(w, err, userID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": attendance.PurgeMessage("record", 1),
		"deleted": 1,
	})
}

// eventParams reads the user id and optional event time.
func (h *AttendanceHandler) eventParams(w http.ResponseWriter, r *http.Request) (int64, time.Time, bool) {
	userID, ok := userParam(w, r)
	if !ok {
		return 0, time.Time{}, false
	}

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return 0, time.Time{}, false
	}

	if req.At == nil {
		return userID, time.Time{}, true
	}
	return userID, *req.At, true
}

// fail maps a service error to a status code.
func (h *AttendanceHandler) fail(w http.ResponseWriter, err error, userID int64) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("Request failed")
	}
	writeError(w, status, attendance.UserMessage(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, attendance.ErrNoOpenSession), errors.Is(err, attendance.ErrOutOfOrder):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, attendance.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrRepositoryUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func userParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid user id %q", raw))
		return 0, false
	}
	return id, true
}
