package push

import (
	"context"
	"log/slog"
	"time"

	"github.com/arogya-labs/teleconsult/internal/appointments"
)

// JoinAlerter implements the signaling hub's JoinNotifier: when a patient
// requests to join an appointment room with no doctor connected, the
// doctor gets a web-push nudge instead.
type JoinAlerter struct {
	appts  *appointments.Service
	push   *Service
	logger *slog.Logger
}

func NewJoinAlerter(appts *appointments.Service, push *Service, logger *slog.Logger) *JoinAlerter {
	return &JoinAlerter{appts: appts, push: push, logger: logger}
}

func (a *JoinAlerter) JoinRequested(appointmentID, displayName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	doctorID, err := a.appts.DoctorUserID(ctx, appointmentID)
	if err != nil {
		a.logger.Debug("join alert skipped", "appointment_id", appointmentID, "error", err)
		return
	}

	a.push.NotifyEvent(ctx, doctorID, "patient-waiting", map[string]string{
		"appointment_id": appointmentID,
		"display_name":   displayName,
	})
}
