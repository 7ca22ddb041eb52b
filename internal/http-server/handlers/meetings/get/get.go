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

type MeetingGetter interface {
	GetMeetingByAppointment(ctx context.Context, appointmentID string) (*api.MeetingResponse, error)
}

type Response struct {
	response.Response
	Meeting *api.MeetingResponse `json:"meeting"`
}

// New serves GET /meetings/appointment/{appointmentId}.
func New(log *slog.Logger, getter MeetingGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.meetings.get.New"

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

		meeting, err := getter.GetMeetingByAppointment(r.Context(), appointmentID)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("meeting not found", slog.String("appointment_id", appointmentID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "meeting not found"))
			return
		}

		if err != nil {
			log.Error("Failed to get meeting", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get meeting"))
			return
		}

		render.JSON(w, r, Response{
			Meeting: meeting,
		})
	}
}
