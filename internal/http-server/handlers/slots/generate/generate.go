package generate

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

type SlotGenerator interface {
	GenerateSlots(ctx context.Context, req *api.SlotGenerateRequest) ([]*api.TimeSlotResponse, error)
}

type Request struct {
	api.SlotGenerateRequest
}

type Response struct {
	response.Response
	Slots []*api.TimeSlotResponse `json:"slots"`
}

// New serves POST /time-slots/generate (schedule id and optional date range
// in the body) and POST /time-slots/generate/{scheduleId}.
func New(log *slog.Logger, generator SlotGenerator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.slots.generate.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if scheduleID := chi.URLParam(r, "scheduleId"); scheduleID != "" {
			req.ScheduleID = scheduleID
		} else {
			if err := render.DecodeJSON(r.Body, &req); err != nil {
				log.Error("Failed to decode request body", sl.Err(err))
				w.WriteHeader(http.StatusBadRequest)
				render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
				return
			}
		}

		if req.ScheduleID == "" {
			log.Error("schedule_id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "schedule_id is required"))
			return
		}

		slots, err := generator.GenerateSlots(r.Context(), &req.SlotGenerateRequest)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("schedule not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "schedule not found"))
			return
		}

		if errors.Is(err, response.ErrScheduleInactive) {
			log.Error("schedule is not active")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), "schedule is not active"))
			return
		}

		if errors.Is(err, response.ErrSlotsExist) {
			log.Error("time slots already exist")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.SLOTS_EXIST), "time slots already exist for this schedule"))
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
			log.Error("Failed to generate slots", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to generate slots"))
			return
		}

		log.Info("Slots generated", slog.Int("count", len(slots)))

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, Response{
			Slots: slots,
		})
	}
}
