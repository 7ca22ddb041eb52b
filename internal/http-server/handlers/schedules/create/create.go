package create

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"clinic-service/api"
	"clinic-service/internal/service"
	"clinic-service/pkg/response"
	"clinic-service/pkg/sl"
)

type ScheduleCreator interface {
	CreateSchedule(ctx context.Context, req *api.DoctorScheduleRequest) (*api.DoctorScheduleResponse, error)
}

type Request struct {
	api.DoctorScheduleRequest
}

type Response struct {
	response.Response
	Schedule api.DoctorScheduleResponse `json:"schedule,omitempty"`
}

func New(log *slog.Logger, creator ScheduleCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.schedules.create.New"

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

		log.Info("Request body decoded", slog.Any("request", req))

		if req.DoctorID == "" {
			log.Error("doctor_id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "doctor_id is required"))
			return
		}

		schedule, err := creator.CreateSchedule(r.Context(), &req.DoctorScheduleRequest)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("doctor not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "doctor not found"))
			return
		}

		if errors.Is(err, response.ErrNotADoctor) {
			log.Error("user is not a doctor")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), "user is not a doctor"))
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
			log.Error("Failed to create schedule", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to create schedule"))
			return
		}

		log.Info("Schedule created", slog.String("schedule_id", schedule.ID))

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, Response{
			Schedule: *schedule,
		})
	}
}
