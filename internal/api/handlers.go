package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
)

func actorFrom(r *http.Request) auth.Actor {
	actor, _ := auth.ActorFromContext(r.Context())
	return actor
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeRequestError(w, err)
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), actorFrom(r), req.toDomain())
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := newQueryParser(r.URL.Query())
		filter := q.filter()
		page := q.intParam("page")
		limit := q.intParam("limit")
		if err := q.Err(); err != nil {
			writeRequestError(w, err)
			return
		}

		res, err := svc.ListAppointments(r.Context(), actorFrom(r), filter, page, limit)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ListResponse{
			Appointments: toAppointmentResponses(res.Appointments),
			Total:        res.Total,
			Page:         res.Page,
			TotalPages:   res.TotalPages,
		})
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), actorFrom(r), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func updateAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeRequestError(w, err)
			return
		}

		appt, err := svc.UpdateAppointment(r.Context(), actorFrom(r), id, req.toDomain())
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func updateStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeRequestError(w, err)
			return
		}

		appt, err := svc.UpdateStatus(r.Context(), actorFrom(r), id, appointment.Status(req.Status))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeRequestError(w, err)
			return
		}

		appt, err := svc.RescheduleAppointment(r.Context(), actorFrom(r), id, req.NewDate.UTC())
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		if _, err := svc.CancelAppointment(r.Context(), actorFrom(r), id); err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, MessageResponse{Message: "Appointment cancelled successfully"})
	}
}

func availableSlotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, err := uuid.Parse(chi.URLParam(r, "clinicId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "clinicId must be a valid UUID")
			return
		}

		q := newQueryParser(r.URL.Query())
		date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
		if err != nil {
			q.fail("date", "must be YYYY-MM-DD")
		}
		var duration *int
		if r.URL.Query().Get("duration") != "" {
			d := q.intParam("duration")
			duration = &d
		}
		if err := q.Err(); err != nil {
			writeRequestError(w, err)
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), clinicID, date, duration)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]TimeSlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, TimeSlotResponse{
				Start:                 s.Start,
				End:                   s.End,
				Available:             s.Available,
				BlockingAppointmentID: s.BlockingAppointmentID,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func statsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := newQueryParser(r.URL.Query())
		filter := q.filter()
		if err := q.Err(); err != nil {
			writeRequestError(w, err)
			return
		}

		stats, err := svc.Stats(r.Context(), actorFrom(r), filter)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := StatsResponse{
			Total:                  stats.Total,
			ByStatus:               make(map[string]int, len(stats.ByStatus)),
			ByType:                 make(map[string]int, len(stats.ByType)),
			Telemedicine:           stats.Telemedicine,
			HomeVisits:             stats.HomeVisits,
			AverageDurationMinutes: stats.AverageDurationMinutes,
		}
		for s, n := range stats.ByStatus {
			resp.ByStatus[string(s)] = n
		}
		for t, n := range stats.ByType {
			resp.ByType[string(t)] = n
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func calendarHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := newQueryParser(r.URL.Query())
		filter := q.filter()
		if filter.From == nil {
			q.fail("date_from", "is required")
		}
		if filter.To == nil {
			q.fail("date_to", "is required")
		}
		if err := q.Err(); err != nil {
			writeRequestError(w, err)
			return
		}

		days, err := svc.Calendar(r.Context(), actorFrom(r), appointment.CalendarQuery{
			From:       *filter.From,
			To:         *filter.To,
			FromIsDate: q.isDate("date_from"),
			ToIsDate:   q.isDate("date_to"),
			Filter:     filter,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := CalendarResponse{Days: make([]CalendarDayResponse, 0, len(days))}
		for _, d := range days {
			day := CalendarDayResponse{Date: d.Date, Staff: make([]CalendarStaffResponse, 0, len(d.Staff))}
			for _, g := range d.Staff {
				day.Staff = append(day.Staff, CalendarStaffResponse{
					StaffID:      g.StaffID,
					StaffName:    g.StaffName,
					Appointments: toAppointmentResponses(g.Appointments),
				})
			}
			resp.Days = append(resp.Days, day)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
