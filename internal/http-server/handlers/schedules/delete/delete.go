package delete

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"clinic-service/pkg/response"
	"clinic-service/pkg/sl"
)

type ScheduleDeleter interface {
	DeleteSchedule(ctx context.Context, id string) error
}

func New(log *slog.Logger, deleter ScheduleDeleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.schedules.delete.New"

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

		err := deleter.DeleteSchedule(r.Context(), id)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("schedule not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "schedule not found"))
			return
		}

		if err != nil {
			log.Error("Failed to delete schedule", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to delete schedule"))
			return
		}

		log.Info("Schedule deleted", slog.String("schedule_id", id))

		w.WriteHeader(http.StatusNoContent)
	}
}
