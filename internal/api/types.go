package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	PetID     string  `json:"pet_id" validate:"required,uuid"`
	ClinicID  string  `json:"clinic_id" validate:"required,uuid"`
	OwnerID   *string `json:"owner_id" validate:"omitempty,uuid"`
	StaffID   *string `json:"staff_id" validate:"omitempty,uuid"`
	ServiceID *string `json:"service_id" validate:"omitempty,uuid"`

	ScheduledDate   *time.Time `json:"scheduled_date" validate:"required"`
	DurationMinutes *int       `json:"duration_minutes" validate:"omitempty,min=15,max=1440"`

	AppointmentType string  `json:"appointment_type" validate:"required"`
	Priority        string  `json:"priority"`
	Status          *string `json:"status"`

	IsTelemedicine   bool    `json:"is_telemedicine"`
	IsHomeVisit      bool    `json:"is_home_visit"`
	TelemedicineLink *string `json:"telemedicine_link" validate:"omitempty,url"`
	HomeVisitAddress *string `json:"home_visit_address" validate:"omitempty,max=500"`

	Notes            *string         `json:"notes" validate:"omitempty,max=4000"`
	Reason           *string         `json:"reason" validate:"omitempty,max=1000"`
	Symptoms         *string         `json:"symptoms" validate:"omitempty,max=4000"`
	PaymentStatus    *string         `json:"payment_status" validate:"omitempty,max=50"`
	ReminderSettings json.RawMessage `json:"reminder_settings"`
}

func (req CreateAppointmentRequest) toDomain() appointment.CreateRequest {
	out := appointment.CreateRequest{
		PetID:            uuid.MustParse(req.PetID),
		ClinicID:         uuid.MustParse(req.ClinicID),
		OwnerID:          optionalUUID(req.OwnerID),
		StaffID:          optionalUUID(req.StaffID),
		ServiceID:        optionalUUID(req.ServiceID),
		ScheduledDate:    req.ScheduledDate.UTC(),
		DurationMinutes:  req.DurationMinutes,
		Type:             appointment.Type(req.AppointmentType),
		Priority:         appointment.Priority(req.Priority),
		IsTelemedicine:   req.IsTelemedicine,
		IsHomeVisit:      req.IsHomeVisit,
		TelemedicineLink: req.TelemedicineLink,
		HomeVisitAddress: req.HomeVisitAddress,
		Notes:            req.Notes,
		Reason:           req.Reason,
		Symptoms:         req.Symptoms,
		PaymentStatus:    req.PaymentStatus,
		ReminderSettings: req.ReminderSettings,
	}
	if req.Status != nil {
		s := appointment.Status(*req.Status)
		out.Status = &s
	}
	return out
}

type UpdateAppointmentRequest struct {
	StaffID    *string `json:"staff_id" validate:"omitempty,uuid"`
	ClearStaff bool    `json:"clear_staff"`
	ServiceID  *string `json:"service_id" validate:"omitempty,uuid"`

	ScheduledDate   *time.Time `json:"scheduled_date"`
	DurationMinutes *int       `json:"duration_minutes" validate:"omitempty,min=15,max=1440"`

	AppointmentType *string `json:"appointment_type"`
	Priority        *string `json:"priority"`

	IsTelemedicine   *bool   `json:"is_telemedicine"`
	IsHomeVisit      *bool   `json:"is_home_visit"`
	TelemedicineLink *string `json:"telemedicine_link" validate:"omitempty,url"`
	HomeVisitAddress *string `json:"home_visit_address" validate:"omitempty,max=500"`

	Notes                *string         `json:"notes" validate:"omitempty,max=4000"`
	Reason               *string         `json:"reason" validate:"omitempty,max=1000"`
	Symptoms             *string         `json:"symptoms" validate:"omitempty,max=4000"`
	Diagnosis            *string         `json:"diagnosis" validate:"omitempty,max=4000"`
	TreatmentPlan        *string         `json:"treatment_plan" validate:"omitempty,max=4000"`
	Prescriptions        json.RawMessage `json:"prescriptions"`
	FollowUpInstructions *string         `json:"follow_up_instructions" validate:"omitempty,max=4000"`
	PaymentStatus        *string         `json:"payment_status" validate:"omitempty,max=50"`
	ReminderSettings     json.RawMessage `json:"reminder_settings"`
}

func (req UpdateAppointmentRequest) toDomain() appointment.UpdatePatch {
	patch := appointment.UpdatePatch{
		StaffID:              optionalUUID(req.StaffID),
		ClearStaff:           req.ClearStaff,
		ServiceID:            optionalUUID(req.ServiceID),
		DurationMinutes:      req.DurationMinutes,
		IsTelemedicine:       req.IsTelemedicine,
		IsHomeVisit:          req.IsHomeVisit,
		TelemedicineLink:     req.TelemedicineLink,
		HomeVisitAddress:     req.HomeVisitAddress,
		Notes:                req.Notes,
		Reason:               req.Reason,
		Symptoms:             req.Symptoms,
		Diagnosis:            req.Diagnosis,
		TreatmentPlan:        req.TreatmentPlan,
		Prescriptions:        req.Prescriptions,
		FollowUpInstructions: req.FollowUpInstructions,
		PaymentStatus:        req.PaymentStatus,
		ReminderSettings:     req.ReminderSettings,
	}
	if req.ScheduledDate != nil {
		t := req.ScheduledDate.UTC()
		patch.ScheduledDate = &t
	}
	if req.AppointmentType != nil {
		t := appointment.Type(*req.AppointmentType)
		patch.Type = &t
	}
	if req.Priority != nil {
		p := appointment.Priority(*req.Priority)
		patch.Priority = &p
	}
	return patch
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type RescheduleRequest struct {
	NewDate *time.Time `json:"new_date" validate:"required"`
}

func optionalUUID(s *string) *uuid.UUID {
	if s == nil {
		return nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil
	}
	return &id
}

type AppointmentResponse struct {
	ID        uuid.UUID  `json:"id"`
	PetID     uuid.UUID  `json:"pet_id"`
	OwnerID   uuid.UUID  `json:"owner_id"`
	ClinicID  uuid.UUID  `json:"clinic_id"`
	StaffID   *uuid.UUID `json:"staff_id"`
	ServiceID *uuid.UUID `json:"service_id"`

	ScheduledDate   time.Time `json:"scheduled_date"`
	ScheduledEnd    time.Time `json:"scheduled_end"`
	DurationMinutes int       `json:"duration_minutes"`

	AppointmentType string `json:"appointment_type"`
	Priority        string `json:"priority"`
	Status          string `json:"status"`
	IsActive        bool   `json:"is_active"`

	IsTelemedicine   bool    `json:"is_telemedicine"`
	IsHomeVisit      bool    `json:"is_home_visit"`
	TelemedicineLink *string `json:"telemedicine_link,omitempty"`
	HomeVisitAddress *string `json:"home_visit_address,omitempty"`

	Notes                *string         `json:"notes,omitempty"`
	Reason               *string         `json:"reason,omitempty"`
	Symptoms             *string         `json:"symptoms,omitempty"`
	Diagnosis            *string         `json:"diagnosis,omitempty"`
	TreatmentPlan        *string         `json:"treatment_plan,omitempty"`
	Prescriptions        json.RawMessage `json:"prescriptions,omitempty"`
	FollowUpInstructions *string         `json:"follow_up_instructions,omitempty"`
	PaymentStatus        *string         `json:"payment_status,omitempty"`
	ReminderSettings     json.RawMessage `json:"reminder_settings,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                   a.ID,
		PetID:                a.PetID,
		OwnerID:              a.OwnerID,
		ClinicID:             a.ClinicID,
		StaffID:              a.StaffID,
		ServiceID:            a.ServiceID,
		ScheduledDate:        a.ScheduledDate,
		ScheduledEnd:         a.End(),
		DurationMinutes:      a.DurationMinutes,
		AppointmentType:      string(a.Type),
		Priority:             string(a.Priority),
		Status:               string(a.Status),
		IsActive:             a.IsActive,
		IsTelemedicine:       a.IsTelemedicine,
		IsHomeVisit:          a.IsHomeVisit,
		TelemedicineLink:     a.TelemedicineLink,
		HomeVisitAddress:     a.HomeVisitAddress,
		Notes:                a.Notes,
		Reason:               a.Reason,
		Symptoms:             a.Symptoms,
		Diagnosis:            a.Diagnosis,
		TreatmentPlan:        a.TreatmentPlan,
		Prescriptions:        a.Prescriptions,
		FollowUpInstructions: a.FollowUpInstructions,
		PaymentStatus:        a.PaymentStatus,
		ReminderSettings:     a.ReminderSettings,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
}

func toAppointmentResponses(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

// ListResponse keeps the camelCase totalPages key existing clients read.
type ListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Total        int                   `json:"total"`
	Page         int                   `json:"page"`
	TotalPages   int                   `json:"totalPages"`
}

type TimeSlotResponse struct {
	Start                 time.Time  `json:"start"`
	End                   time.Time  `json:"end"`
	Available             bool       `json:"available"`
	BlockingAppointmentID *uuid.UUID `json:"blocking_appointment_id,omitempty"`
}

type StatsResponse struct {
	Total                  int            `json:"total"`
	ByStatus               map[string]int `json:"by_status"`
	ByType                 map[string]int `json:"by_type"`
	Telemedicine           int            `json:"telemedicine"`
	HomeVisits             int            `json:"home_visits"`
	AverageDurationMinutes float64        `json:"average_duration_minutes"`
}

type CalendarResponse struct {
	Days []CalendarDayResponse `json:"days"`
}

type CalendarDayResponse struct {
	Date  string                  `json:"date"`
	Staff []CalendarStaffResponse `json:"staff"`
}

type CalendarStaffResponse struct {
	StaffID      *uuid.UUID            `json:"staff_id"`
	StaffName    *string               `json:"staff_name,omitempty"`
	Appointments []AppointmentResponse `json:"appointments"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error         string       `json:"error"`
	Details       string       `json:"details,omitempty"`
	Fields        []FieldError `json:"fields,omitempty"`
	ConflictingID *uuid.UUID   `json:"conflicting_appointment_id,omitempty"`
}
