package get

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

type AppointmentGetter interface {
	GetAppointment(ctx context.Context, id string) (*api.AppointmentResponse, error)
	ListAppointments(ctx context.Context) ([]*api.AppointmentResponse, error)
	ListAppointmentsByUser(ctx context.Context, userID string) ([]*api.AppointmentResponse, error)
}

type Response struct {
	response.Response
	Appointment *api.AppointmentResponse `json:"appointment"`
}

type ListResponse struct {
	response.Response
	Appointments []*api.AppointmentResponse `json:"appointments"`
}

// ByID serves GET /appointments/{id}.
func ByID(log *slog.Logger, getter AppointmentGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.appointments.get.ByID"

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

		appointment, err := getter.GetAppointment(r.Context(), id)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("appointment not found", slog.String("id", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "appointment not found"))
			return
		}

		if err != nil {
			log.Error("Failed to get appointment", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get appointment"))
			return
		}

		render.JSON(w, r, Response{
			Appointment: appointment,
		})
	}
}

// All serves GET /appointments.
func All(log *slog.Logger, getter AppointmentGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.appointments.get.All"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		appointments, err := getter.ListAppointments(r.Context())
		if err != nil {
			log.Error("Failed to list appointments", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list appointments"))
			return
		}

		render.JSON(w, r, ListResponse{
			Appointments: appointments,
		})
	}
}

// ByUser serves GET /appointments/user/{userId}, matching the user as
// either the doctor or the patient of the appointment.
func ByUser(log *slog.Logger, getter AppointmentGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.appointments.get.ByUser"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		userID := chi.URLParam(r, "userId")
		if userID == "" {
			log.Error("userId is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "userId is required"))
			return
		}

		appointments, err := getter.ListAppointmentsByUser(r.Context(), userID)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("user not found", slog.String("user_id", userID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "user not found"))
			return
		}

		if err != nil {
			log.Error("Failed to list appointments", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list appointments"))
			return
		}

		render.JSON(w, r, ListResponse{
			Appointments: appointments,
		})
	}
}
