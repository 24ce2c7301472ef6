package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"hairstudio/internal/domain"
	"hairstudio/internal/export"
	"hairstudio/internal/models"
	"hairstudio/internal/slots"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type slotsResponse struct {
	Date   string   `json:"date"`
	Status string   `json:"status"`
	Slots  []string `json:"slots"`
}

type createAppointmentRequest struct {
	models.BookingInput
	SkipAvailabilityCheck bool `json:"skip_availability_check"`
}

type cancelRequest struct {
	ByCustomer *bool `json:"by_customer"`
}

type moveRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type workingDayRequest struct {
	IsWorkingDay    *bool                `json:"is_working_day"`
	WorkingHours    *models.WorkingHours `json:"working_hours"`
	CustomTimeSlots []string             `json:"custom_time_slots"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleSlots: duration comes from the query, else from service_id, else the listing default.
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := strings.TrimSpace(q.Get("date"))
	if date == "" {
		s.writeServiceError(w, r, domain.InvalidInput("date is required"))
		return
	}

	duration, err := s.slotDuration(q.Get("duration"), q.Get("service_id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	status, result, err := s.calendar.DayStatus(r.Context(), date, duration)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if notBefore := strings.TrimSpace(q.Get("not_before")); notBefore != "" {
		result, err = slots.NotBefore(result, notBefore)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if status == slots.DayOpen && len(result) == 0 {
			status = slots.DayFullyBooked
		}
	}

	writeJSON(w, http.StatusOK, slotsResponse{Date: date, Status: status, Slots: result})
}

func (s *HTTPServer) slotDuration(rawDuration, serviceID string) (int, error) {
	if rawDuration = strings.TrimSpace(rawDuration); rawDuration != "" {
		d, err := strconv.Atoi(rawDuration)
		if err != nil || d <= 0 {
			return 0, domain.InvalidInput("duration must be a positive number of minutes")
		}
		return d, nil
	}
	if serviceID = strings.TrimSpace(serviceID); serviceID != "" {
		if s.catalog == nil {
			return 0, domain.InvalidInput("unknown service %q", serviceID)
		}
		svc, ok := s.catalog.GetService(serviceID)
		if !ok {
			return 0, domain.InvalidInput("unknown service %q", serviceID)
		}
		return svc.Duration, nil
	}
	return 0, nil
}

func (s *HTTPServer) handleServices(w http.ResponseWriter, _ *http.Request) {
	services := []*models.Service{}
	if s.catalog != nil {
		services = s.catalog.ActiveServices()
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (s *HTTPServer) handleListAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.calendar.ListAvailability(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"availability": list})
}

func (s *HTTPServer) handleSetWorkingDay(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")

	var body workingDayRequest
	if err := decodeJSON(w, r, &body, false); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	// без флага нельзя понять, открыть день или закрыть
	if body.IsWorkingDay == nil {
		s.writeServiceError(w, r, domain.InvalidInput("is_working_day is required"))
		return
	}

	if err := s.calendar.SetWorkingDay(r.Context(), date, *body.IsWorkingDay, body.WorkingHours, body.CustomTimeSlots); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	list, err := s.calendar.ListAvailability(r.Context(), date, date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if len(list) == 0 {
		s.writeServiceError(w, r, fmt.Errorf("availability %s: %w", date, domain.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, list[0])
}

func (s *HTTPServer) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	var body createAppointmentRequest
	if err := decodeJSON(w, r, &body, false); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if body.SkipAvailabilityCheck {
		allowed, err := s.auth.allows(r, PermWriteCalendar)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if !allowed {
			writeError(w, http.StatusForbidden, "skip_availability_check requires write:calendar")
			return
		}
	}

	id, err := s.calendar.CreateBooking(r.Context(), body.BookingInput, body.SkipAvailabilityCheck)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *HTTPServer) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.calendar.ListAppointments(r.Context(), q.Get("from"), q.Get("to"), q.Get("status"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": list})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		s.writeServiceError(w, r, domain.InvalidInput("from and to are required"))
		return
	}

	list, err := s.calendar.ListAppointments(r.Context(), from, to, q.Get("status"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	// Пишем в буфер, чтобы ошибка excelize не оборвала ответ на середине
	var buf bytes.Buffer
	if err := export.WriteAppointments(&buf, from, to, list); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	name := export.FileName(from, to)
	if s.exportDir != "" {
		if path, err := export.Archive(s.exportDir, name, buf.Bytes()); err != nil {
			s.log.Warn().Err(err).Msg("failed to archive export")
		} else {
			s.log.Info().Str("path", path).Int("appointments", len(list)).Msg("export archived")
		}
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *HTTPServer) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := s.calendar.GetAppointment(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) handleUpdateAppointment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var patch models.AppointmentPatch
	if err := decodeJSON(w, r, &patch, false); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if err := s.calendar.UpdateBooking(r.Context(), id, patch); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.respondAppointment(w, r, id)
}

// handleCancelAppointment is public: callers without write access always cancel as the customer.
func (s *HTTPServer) handleCancelAppointment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body cancelRequest
	if err := decodeJSON(w, r, &body, true); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	admin, err := s.auth.allows(r, PermWriteCalendar)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	byCustomer := true
	if admin {
		byCustomer = body.ByCustomer != nil && *body.ByCustomer
	}

	if err := s.calendar.CancelBooking(r.Context(), id, byCustomer); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.respondAppointment(w, r, id)
}

func (s *HTTPServer) handleMoveAppointment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body moveRequest
	if err := decodeJSON(w, r, &body, false); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if err := s.calendar.MoveBooking(r.Context(), id, body.Date, body.Time); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.respondAppointment(w, r, id)
}

func (s *HTTPServer) handleDeleteAppointment(w http.ResponseWriter, r *http.Request) {
	if err := s.calendar.DeleteAppointment(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) respondAppointment(w http.ResponseWriter, r *http.Request, id string) {
	appt, err := s.calendar.GetAppointment(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}
