package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arogya-labs/teleconsult/internal/database"
	"github.com/arogya-labs/teleconsult/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.Initialize(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	return NewService(db)
}

func TestCreateAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	at := time.Unix(1_700_100_000, 0).UTC()

	appt, err := svc.Create(ctx, "patient-1", "doctor-1", at, "follow-up")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if appt.ID == "" {
		t.Fatal("expected generated id")
	}
	if appt.Status != models.AppointmentPending || appt.MeetingStatus != models.MeetingPending {
		t.Fatalf("unexpected initial statuses %q/%q", appt.Status, appt.MeetingStatus)
	}

	got, err := svc.GetByID(ctx, appt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PatientID != "patient-1" || got.DoctorID != "doctor-1" || got.Notes != "follow-up" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if _, err := svc.GetByID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetMeetingStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	appt, err := svc.Create(ctx, "patient-1", "doctor-1", time.Unix(1_700_100_000, 0), "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.SetMeetingStatus(ctx, appt.ID, models.MeetingActive); err != nil {
		t.Fatalf("set active: %v", err)
	}
	got, _ := svc.GetByID(ctx, appt.ID)
	if got.MeetingStatus != models.MeetingActive {
		t.Fatalf("expected active, got %q", got.MeetingStatus)
	}

	if err := svc.SetMeetingStatus(ctx, appt.ID, models.MeetingEnded); err != nil {
		t.Fatalf("set ended: %v", err)
	}
	got, _ = svc.GetByID(ctx, appt.ID)
	if got.MeetingStatus != models.MeetingEnded {
		t.Fatalf("expected ended, got %q", got.MeetingStatus)
	}

	if err := svc.SetMeetingStatus(ctx, "nope", models.MeetingEnded); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	appt, err := svc.Create(ctx, "patient-1", "doctor-1", time.Unix(1_700_100_000, 0), "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.UpdateStatus(ctx, appt.ID, models.AppointmentConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	got, _ := svc.GetByID(ctx, appt.ID)
	if got.Status != models.AppointmentConfirmed {
		t.Fatalf("expected confirmed, got %q", got.Status)
	}
	if err := svc.UpdateStatus(ctx, "nope", models.AppointmentCancelled); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListForUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	base := time.Unix(1_700_100_000, 0).UTC()

	for i, doctor := range []string{"doctor-1", "doctor-1", "doctor-2"} {
		if _, err := svc.Create(ctx, "patient-1", doctor, base.Add(time.Duration(i)*time.Hour), ""); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	asPatient, err := svc.ListForUser(ctx, "patient-1", models.RolePatient)
	if err != nil {
		t.Fatalf("list as patient: %v", err)
	}
	if len(asPatient) != 3 {
		t.Fatalf("expected 3 appointments, got %d", len(asPatient))
	}
	for i := 1; i < len(asPatient); i++ {
		if asPatient[i].ScheduledAt.After(asPatient[i-1].ScheduledAt) {
			t.Fatal("expected newest-first ordering")
		}
	}

	asDoctor, err := svc.ListForUser(ctx, "doctor-1", models.RoleDoctor)
	if err != nil {
		t.Fatalf("list as doctor: %v", err)
	}
	if len(asDoctor) != 2 {
		t.Fatalf("expected 2 appointments for doctor-1, got %d", len(asDoctor))
	}

	empty, err := svc.ListForUser(ctx, "doctor-1", models.RolePatient)
	if err != nil {
		t.Fatalf("list mismatched role: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("doctor id in the patient column should match nothing, got %d", len(empty))
	}
}

func TestDoctorUserID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	appt, err := svc.Create(ctx, "patient-1", "doctor-1", time.Unix(1_700_100_000, 0), "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id, err := svc.DoctorUserID(ctx, appt.ID)
	if err != nil {
		t.Fatalf("doctor lookup: %v", err)
	}
	if id != "doctor-1" {
		t.Fatalf("expected doctor-1, got %q", id)
	}
	if _, err := svc.DoctorUserID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
