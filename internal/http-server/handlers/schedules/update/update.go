package update

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"clinic-service/api"
	"clinic-service/internal/service"
	"clinic-service/pkg/response"
	"clinic-service/pkg/sl"
)

type ScheduleUpdater interface {
	UpdateSchedule(ctx context.Context, id string, req *api.DoctorScheduleUpdateRequest) (*api.DoctorScheduleResponse, error)
}

type Request struct {
	api.DoctorScheduleUpdateRequest
}

type Response struct {
	response.Response
	Schedule api.DoctorScheduleResponse `json:"schedule,omitempty"`
}

func New(log *slog.Logger, updater ScheduleUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.schedules.update.New"

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

		schedule, err := updater.UpdateSchedule(r.Context(), id, &req.DoctorScheduleUpdateRequest)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("schedule not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "schedule not found"))
			return
		}

		var overlapErr *service.OverlapError
		if errors.As(err, &overlapErr) {
			log.Error("schedule overlap", sl.Err(overlapErr))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.SCHEDULE_OVERLAP), overlapErr.Error()))
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
			log.Error("Failed to update schedule", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to update schedule"))
			return
		}

		log.Info("Schedule updated", slog.String("schedule_id", id))

		render.JSON(w, r, Response{
			Schedule: *schedule,
		})
	}
}
