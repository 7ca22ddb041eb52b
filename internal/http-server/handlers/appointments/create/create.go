package create

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"clinic-service/api"
	"clinic-service/pkg/response"
	"clinic-service/pkg/sl"
)

type AppointmentCreator interface {
	CreateAppointment(ctx context.Context, req *api.AppointmentRequest) (*api.AppointmentResponse, error)
}

type Request struct {
	api.AppointmentRequest
}

type Response struct {
	response.Response
	Appointment *api.AppointmentResponse `json:"appointment"`
}

func New(log *slog.Logger, creator AppointmentCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.appointments.create.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		if req.TimeSlotID == "" || req.PatientID == "" {
			log.Error("time_slot_id or patient_id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "time_slot_id and patient_id are required"))
			return
		}

		appointment, err := creator.CreateAppointment(r.Context(), &req.AppointmentRequest)

		if errors.Is(err, response.ErrLocked) {
			log.Error("slot is locked by another booking", slog.String("time_slot_id", req.TimeSlotID))
			w.WriteHeader(http.StatusLocked)
			render.JSON(w, r, response.Error(string(response.LOCKED), "time slot is being booked by another request"))
			return
		}

		if errors.Is(err, response.ErrSlotNotAvailable) {
			log.Error("slot is not available", slog.String("time_slot_id", req.TimeSlotID))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.SLOT_NOT_AVAILABLE), "time slot is not available"))
			return
		}

		if errors.Is(err, response.ErrConflict) {
			log.Error("booking conflict", slog.String("time_slot_id", req.TimeSlotID))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.CONFLICT), "booking conflict, please retry"))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("slot or patient not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "time slot or patient not found"))
			return
		}

		var validationErr *response.ValidationError
		if errors.As(err, &validationErr) {
			log.Error("validation failed", sl.Err(validationErr))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), validationErr.Message))
			return
		}

		if err != nil {
			log.Error("Failed to create appointment", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to create appointment"))
			return
		}

		log.Info("Appointment created",
			slog.String("id", appointment.ID),
			slog.Int("appointment_no", appointment.AppointmentNo),
		)

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, Response{
			Appointment: appointment,
		})
	}
}
