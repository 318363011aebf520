package appointments

import (
	"context"
	"errors"
	"time"

	"github.com/arogya-labs/teleconsult/internal/models"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("appointment not found")

// Service is the appointment persistence layer. The signaling hub consumes
// it only through SetMeetingStatus and DoctorUserID; the HTTP handlers use
// the rest.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Create(ctx context.Context, patientID, doctorID string, scheduledAt time.Time, notes string) (*models.Appointment, error) {
	appt := &models.Appointment{
		PatientID:     patientID,
		DoctorID:      doctorID,
		ScheduledAt:   scheduledAt,
		Status:        models.AppointmentPending,
		MeetingStatus: models.MeetingPending,
		Notes:         notes,
	}
	if err := s.db.WithContext(ctx).Create(appt).Error; err != nil {
		return nil, err
	}
	return appt, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.Appointment, error) {
	var appt models.Appointment
	err := s.db.WithContext(ctx).First(&appt, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

// ListForUser returns the appointments a user participates in, newest
// first.
func (s *Service) ListForUser(ctx context.Context, userID string, role models.Role) ([]models.Appointment, error) {
	column := "patient_id"
	if role == models.RoleDoctor {
		column = "doctor_id"
	}
	var appts []models.Appointment
	err := s.db.WithContext(ctx).
		Where(column+" = ?", userID).
		Order("scheduled_at desc").
		Find(&appts).Error
	if err != nil {
		return nil, err
	}
	return appts, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id string, status models.AppointmentStatus) error {
	res := s.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMeetingStatus flips the live-consultation state. Called by the
// signaling hub on room open and end.
func (s *Service) SetMeetingStatus(ctx context.Context, id string, status models.MeetingStatus) error {
	res := s.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ?", id).
		Update("meeting_status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DoctorUserID resolves the doctor of an appointment for out-of-band
// notification delivery.
func (s *Service) DoctorUserID(ctx context.Context, id string) (string, error) {
	appt, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return appt.DoctorID, nil
}
