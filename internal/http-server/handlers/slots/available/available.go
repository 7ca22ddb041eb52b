package available

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"clinic-service/api"
	"clinic-service/pkg/response"
	"clinic-service/pkg/sl"
)

type AvailableSlotLister interface {
	ListAvailableSlots(ctx context.Context, doctorID string, from, to *time.Time) ([]*api.TimeSlotResponse, error)
}

type Response struct {
	response.Response
	Slots []*api.TimeSlotResponse `json:"slots"`
}

// New serves GET /time-slots/available/{doctorId}?startDate=&endDate=.
func New(log *slog.Logger, lister AvailableSlotLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.slots.available.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		doctorID := chi.URLParam(r, "doctorId")
		if doctorID == "" {
			log.Error("doctorId is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "doctorId is required"))
			return
		}

		from, err := parseOptionalDate(r.URL.Query().Get("startDate"))
		if err != nil {
			log.Error("Invalid startDate", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), "startDate must be in YYYY-MM-DD format"))
			return
		}

		to, err := parseOptionalDate(r.URL.Query().Get("endDate"))
		if err != nil {
			log.Error("Invalid endDate", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), "endDate must be in YYYY-MM-DD format"))
			return
		}

		slots, err := lister.ListAvailableSlots(r.Context(), doctorID, from, to)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("doctor not found", slog.String("doctor_id", doctorID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "doctor not found"))
			return
		}

		if err != nil {
			log.Error("Failed to list available slots", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list available slots"))
			return
		}

		render.JSON(w, r, Response{
			Slots: slots,
		})
	}
}

func parseOptionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}

	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}

	return &t, nil
}
