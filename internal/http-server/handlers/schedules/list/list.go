package list

import (
	"context"
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

type ScheduleLister interface {
	ListSchedulesByDoctor(ctx context.Context, doctorID string, from, to *time.Time) ([]*api.DoctorScheduleResponse, error)
	ListSchedulesByDateRange(ctx context.Context, from, to time.Time) ([]*api.DoctorScheduleResponse, error)
}

type Response struct {
	response.Response
	Schedules []*api.DoctorScheduleResponse `json:"schedules"`
}

// ByDoctor serves GET /doctor-schedules/doctor/{doctorId} with optional
// startDate/endDate filters.
func ByDoctor(log *slog.Logger, lister ScheduleLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.schedules.list.ByDoctor"

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

		from, ok := parseOptionalDate(w, r, log, "startDate")
		if !ok {
			return
		}
		to, ok := parseOptionalDate(w, r, log, "endDate")
		if !ok {
			return
		}

		schedules, err := lister.ListSchedulesByDoctor(r.Context(), doctorID, from, to)
		if err != nil {
			log.Error("Failed to list schedules", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list schedules"))
			return
		}

		render.JSON(w, r, Response{
			Schedules: schedules,
		})
	}
}

// ByDateRange serves GET /doctor-schedules/date-range; both bounds are
// required and only active schedules are returned.
func ByDateRange(log *slog.Logger, lister ScheduleLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.schedules.list.ByDateRange"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		from, err := time.Parse("2006-01-02", r.URL.Query().Get("startDate"))
		if err != nil {
			log.Error("invalid startDate", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "startDate is required, use YYYY-MM-DD"))
			return
		}

		to, err := time.Parse("2006-01-02", r.URL.Query().Get("endDate"))
		if err != nil {
			log.Error("invalid endDate", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "endDate is required, use YYYY-MM-DD"))
			return
		}

		schedules, err := lister.ListSchedulesByDateRange(r.Context(), from, to)
		if err != nil {
			log.Error("Failed to list schedules", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list schedules"))
			return
		}

		render.JSON(w, r, Response{
			Schedules: schedules,
		})
	}
}

func parseOptionalDate(w http.ResponseWriter, r *http.Request, log *slog.Logger, param string) (*time.Time, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return nil, true
	}

	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		log.Error("invalid date param", slog.String("param", param), sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error(string(response.BAD_REQUEST), param+" must be YYYY-MM-DD"))
		return nil, false
	}

	return &t, true
}
