package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"clinic-service/api"
	"clinic-service/pkg/response"
	"clinic-service/pkg/sl"
)

type AppointmentStatusUpdater interface {
	UpdateAppointmentStatus(ctx context.Context, id string, req *api.AppointmentStatusRequest) (*api.AppointmentResponse, error)
}

type Request struct {
	api.AppointmentStatusRequest
}

type Response struct {
	response.Response
	Appointment *api.AppointmentResponse `json:"appointment"`
}

func New(log *slog.Logger, updater AppointmentStatusUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.appointments.status.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")
		if id == "" {
			log.Error("id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "id is required"))
			return
		}

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		appointment, err := updater.UpdateAppointmentStatus(r.Context(), id, &req.AppointmentStatusRequest)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("appointment not found", slog.String("id", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "appointment not found"))
			return
		}

		if errors.Is(err, response.ErrInvalidTransition) {
			log.Error("invalid status transition",
				slog.String("id", id),
				slog.String("status", req.Status),
			)
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.INVALID_TRANSITION), "status transition is not allowed"))
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
			log.Error("Failed to update appointment status", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to update appointment status"))
			return
		}

		log.Info("Appointment status updated",
			slog.String("id", id),
			slog.String("status", req.Status),
		)

		render.JSON(w, r, Response{
			Appointment: appointment,
		})
	}
}
