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

type SlotGetter interface {
	GetSlot(ctx context.Context, id string) (*api.TimeSlotResponse, error)
}

type Response struct {
	response.Response
	Slot *api.TimeSlotResponse `json:"slot"`
}

func New(log *slog.Logger, getter SlotGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.slots.get.New"

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

		slot, err := getter.GetSlot(r.Context(), id)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("slot not found", slog.String("id", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "time slot not found"))
			return
		}

		if err != nil {
			log.Error("Failed to get slot", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get time slot"))
			return
		}

		render.JSON(w, r, Response{
			Slot: slot,
		})
	}
}
