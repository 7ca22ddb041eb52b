package create

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

type MeetingCreator interface {
	RetryMeeting(ctx context.Context, appointmentID string) (*api.MeetingResponse, error)
}

type Response struct {
	response.Response
	Meeting *api.MeetingResponse `json:"meeting"`
}

// New serves POST /meetings/appointment/{appointmentId}. It provisions a
// meeting for an online appointment whose meeting creation failed during
// booking.
func New(log *slog.Logger, creator MeetingCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.meetings.create.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		appointmentID := chi.URLParam(r, "appointmentId")
		if appointmentID == "" {
			log.Error("appointmentId is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "appointmentId is required"))
			return
		}

		meeting, err := creator.RetryMeeting(r.Context(), appointmentID)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("appointment not found", slog.String("appointment_id", appointmentID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "appointment not found"))
			return
		}

		if errors.Is(err, response.ErrConflict) {
			log.Error("meeting already exists", slog.String("appointment_id", appointmentID))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.CONFLICT), "meeting already exists for this appointment"))
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
			log.Error("Failed to create meeting", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to create meeting"))
			return
		}

		log.Info("Meeting created", slog.String("appointment_id", appointmentID))

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, Response{
			Meeting: meeting,
		})
	}
}
