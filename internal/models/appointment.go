package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AppointmentStatus is the booking lifecycle, owned by the HTTP side.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// MeetingStatus is the live-consultation lifecycle, owned by the signaling
// hub through the appointments service.
type MeetingStatus string

const (
	MeetingPending MeetingStatus = "pending"
	MeetingActive  MeetingStatus = "active"
	MeetingEnded   MeetingStatus = "ended"
)

type Appointment struct {
	ID            string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	PatientID     string            `gorm:"type:varchar(36);index;not null" json:"patient_id"`
	DoctorID      string            `gorm:"type:varchar(36);index;not null" json:"doctor_id"`
	ScheduledAt   time.Time         `gorm:"not null" json:"scheduled_at"`
	Status        AppointmentStatus `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	MeetingStatus MeetingStatus     `gorm:"type:varchar(16);not null;default:pending" json:"meeting_status"`
	Notes         string            `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (a *Appointment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}
