// Package appointments books services with staff and moves bookings through
// their lifecycle.
package appointments

import (
	"context"
	"errors"
	"strings"
	"time"

	"go-pos-tenancy/internal/models"

	"gorm.io/gorm"
)

var (
	ErrServiceNotFound     = errors.New("service not found")
	ErrInvalidDuration     = errors.New("duration must be positive")
	ErrSlotTaken           = errors.New("staff member is already booked at that time")
	ErrCustomerRequired    = errors.New("customer name is required")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrInvalidTransition   = errors.New("appointment cannot move to that status")
)

// transitions lists the statuses each status may move to.
var transitions = map[string][]string{
	models.AppointmentScheduled: {models.AppointmentConfirmed, models.AppointmentCancelled},
	models.AppointmentConfirmed: {models.AppointmentCompleted, models.AppointmentCancelled, models.AppointmentNoShow},
}

// CanTransition reports whether from -> to is allowed
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Service books appointments, stamping them with a UTC clock.
type Service struct {
	now func() time.Time
}

func NewService() *Service {
	return &Service{now: func() time.Time { return time.Now().UTC() }}
}

// BookingRequest is the input of Book. DurationMinutes overrides the
// service's default length when set.
type BookingRequest struct {
	ServiceID       uint      `json:"service_id" binding:"required"`
	StaffID         uint      `json:"staff_id" binding:"required"`
	CustomerName    string    `json:"customer_name"`
	StartsAt        time.Time `json:"starts_at" binding:"required"`
	DurationMinutes *int      `json:"duration_minutes"`
	Note            string    `json:"note"`
}

// Book creates a scheduled appointment if the staff member is free for the
// whole slot. Cancelled, completed and no-show bookings do not block a slot.
func (s *Service) Book(ctx context.Context, db *gorm.DB, req BookingRequest) (*models.Appointment, error) {
	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		return nil, ErrCustomerRequired
	}

	var appt *models.Appointment
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var svc models.Service
		err := tx.Where("id = ? AND active = ?", req.ServiceID, true).First(&svc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrServiceNotFound
		}
		if err != nil {
			return err
		}

		minutes := svc.DurationMinutes
		if req.DurationMinutes != nil {
			minutes = *req.DurationMinutes
		}
		if minutes <= 0 {
			return ErrInvalidDuration
		}
		start := req.StartsAt.UTC()
		end := start.Add(time.Duration(minutes) * time.Minute)

		var clashes int64
		err = tx.Model(&models.Appointment{}).
			Where("staff_id = ? AND status IN ?", req.StaffID, []string{models.AppointmentScheduled, models.AppointmentConfirmed}).
			Where("starts_at < ? AND ends_at > ?", end, start).
			Count(&clashes).Error
		if err != nil {
			return err
		}
		if clashes > 0 {
			return ErrSlotTaken
		}

		now := s.now()
		appt = &models.Appointment{
			ServiceID:    svc.ID,
			StaffID:      req.StaffID,
			CustomerName: name,
			StartsAt:     start,
			EndsAt:       end,
			Status:       models.AppointmentScheduled,
			Note:         req.Note,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return tx.Create(appt).Error
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// Transition moves an appointment to a new status. The update only applies if
// the status is still the one that was read.
func (s *Service) Transition(ctx context.Context, db *gorm.DB, id uint, to string) (*models.Appointment, error) {
	var appt models.Appointment
	err := db.WithContext(ctx).First(&appt, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	if !CanTransition(appt.Status, to) {
		return nil, ErrInvalidTransition
	}

	now := s.now()
	res := db.WithContext(ctx).Model(&models.Appointment{}).
		Where("id = ? AND status = ?", id, appt.Status).
		Updates(map[string]interface{}{"status": to, "updated_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidTransition
	}
	appt.Status = to
	appt.UpdatedAt = now
	return &appt, nil
}
