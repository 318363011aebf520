package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/arogya-labs/teleconsult/internal/appointments"
	"github.com/arogya-labs/teleconsult/internal/models"

	"github.com/gin-gonic/gin"
)

type createAppointmentRequest struct {
	DoctorID    string    `json:"doctor_id" binding:"required"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	Notes       string    `json:"notes"`
}

func (h *Handlers) CreateAppointment(c *gin.Context) {
	userID, role := currentUser(c)
	if role != models.RolePatient {
		c.JSON(http.StatusForbidden, gin.H{"error": "only patients can book appointments"})
		return
	}

	var req createAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var doctor models.User
	if err := h.db.Where("id = ? AND role = ?", req.DoctorID, models.RoleDoctor).First(&doctor).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "doctor not found"})
		return
	}

	appt, err := h.appts.Create(c.Request.Context(), userID, req.DoctorID, req.ScheduledAt, req.Notes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Best-effort: the doctor learns about the booking over any live
	// subscribed connection, and by web push otherwise.
	h.hub.NotifyUser(req.DoctorID, "appointment-booked", appt)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.push.NotifyEvent(ctx, req.DoctorID, "appointment-booked", map[string]string{
			"appointment_id": appt.ID,
			"scheduled_at":   appt.ScheduledAt.Format(time.RFC3339),
		})
	}()

	c.JSON(http.StatusCreated, appt)
}

func (h *Handlers) GetAppointment(c *gin.Context) {
	userID, _ := currentUser(c)

	appt, err := h.appts.GetByID(c.Request.Context(), c.Param("appointment_id"))
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "appointment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if appt.PatientID != userID && appt.DoctorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this appointment"})
		return
	}

	c.JSON(http.StatusOK, appt)
}

func (h *Handlers) ListAppointments(c *gin.Context) {
	userID, role := currentUser(c)

	appts, err := h.appts.ListForUser(c.Request.Context(), userID, role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"appointments": appts})
}

func (h *Handlers) ConfirmAppointment(c *gin.Context) {
	userID, role := currentUser(c)
	if role != models.RoleDoctor {
		c.JSON(http.StatusForbidden, gin.H{"error": "only doctors can confirm appointments"})
		return
	}

	appt, err := h.appts.GetByID(c.Request.Context(), c.Param("appointment_id"))
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "appointment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if appt.DoctorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your appointment"})
		return
	}

	if err := h.appts.UpdateStatus(c.Request.Context(), appt.ID, models.AppointmentConfirmed); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.hub.NotifyUser(appt.PatientID, "appointment-confirmed", gin.H{"appointment_id": appt.ID})

	c.JSON(http.StatusOK, gin.H{"appointment_id": appt.ID, "status": models.AppointmentConfirmed})
}
