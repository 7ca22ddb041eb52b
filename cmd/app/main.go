package main

import (
	"clinic-service/internal/config"
	schedCreate "clinic-service/internal/http-server/handlers/schedules/create"
	schedGet "clinic-service/internal/http-server/handlers/schedules/get"
	schedList "clinic-service/internal/http-server/handlers/schedules/list"
	schedUpdate "clinic-service/internal/http-server/handlers/schedules/update"
	schedDelete "clinic-service/internal/http-server/handlers/schedules/delete"
	slotGenerate "clinic-service/internal/http-server/handlers/slots/generate"
	slotGet "clinic-service/internal/http-server/handlers/slots/get"
	slotAvailable "clinic-service/internal/http-server/handlers/slots/available"
	slotStatus "clinic-service/internal/http-server/handlers/slots/status"
	apptCreate "clinic-service/internal/http-server/handlers/appointments/create"
	apptGet "clinic-service/internal/http-server/handlers/appointments/get"
	apptStatus "clinic-service/internal/http-server/handlers/appointments/status"
	meetingCreate "clinic-service/internal/http-server/handlers/meetings/create"
	meetingGet "clinic-service/internal/http-server/handlers/meetings/get"
	"clinic-service/internal/lock"
	"clinic-service/internal/meeting"
	svc "clinic-service/internal/service"
	"clinic-service/internal/storage/postgres"
	"clinic-service/internal/sweeper"
	slogpretty "clinic-service/pkg/handlers/slogPretty"
	mwLogger "clinic-service/pkg/middleware/mwLogger"
	"clinic-service/pkg/sl"
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {

	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting API", slog.String("env", cfg.Env))
	log.Debug("Debug messages are enabled")

	storage, err := postgres.New(cfg.StoragePath)
	if err != nil {
		log.Error("Failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	locker, err := lock.NewRedisLock(cfg.RedisAddr)
	if err != nil {
		log.Error("Failed to init redis lock", sl.Err(err))
		os.Exit(1)
	}

	meetings := meeting.NewClient(cfg.Meeting.BaseURL, cfg.Meeting.Token, cfg.Meeting.Timeout)

	service := svc.NewService(log, storage, locker, meetings)

	sweep := sweeper.New(log, storage, cfg.Sweeper.Interval)
	sweep.Start(context.Background())

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(mwLogger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)
	router.Use(CORS)

	// Doctor Schedules
	router.Post("/doctor-schedules", schedCreate.New(log, service))
	router.Get("/doctor-schedules/date-range", schedList.ByDateRange(log, service))
	router.Get("/doctor-schedules/{id}", schedGet.New(log, service))
	router.Get("/doctor-schedules/doctor/{doctorId}", schedList.ByDoctor(log, service))
	router.Put("/doctor-schedules/{id}", schedUpdate.New(log, service))
	router.Delete("/doctor-schedules/{id}", schedDelete.New(log, service))

	// Time Slots
	router.Post("/time-slots/generate", slotGenerate.New(log, service))
	router.Post("/time-slots/generate/{scheduleId}", slotGenerate.New(log, service))
	router.Get("/time-slots/{id}", slotGet.New(log, service))
	router.Get("/time-slots/available/{doctorId}", slotAvailable.New(log, service))
	router.Put("/time-slots/{id}/status", slotStatus.New(log, service))

	// Appointments
	router.Post("/appointments", apptCreate.New(log, service))
	router.Get("/appointments", apptGet.All(log, service))
	router.Get("/appointments/{id}", apptGet.ByID(log, service))
	router.Get("/appointments/user/{userId}", apptGet.ByUser(log, service))
	router.Put("/appointments/{id}/status", apptStatus.New(log, service))

	// Meetings
	router.Get("/meetings/appointment/{appointmentId}", meetingGet.New(log, service))
	router.Post("/meetings/appointment/{appointmentId}", meetingCreate.New(log, service))

	serv := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	serverErrCh := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", slog.String("addr", cfg.Address))
		if err := serv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		} else {
			serverErrCh <- nil
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			log.Error("HTTP server stopped unexpectedly", sl.Err(err))
		} else {
			log.Info("HTTP server stopped gracefully")
		}
	}

	shutdownTimeout := cfg.HTTPServer.ShutdownTimeout

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down HTTP server", slog.String("timeout", shutdownTimeout.String()))

	if err := serv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", sl.Err(err))
	} else {
		log.Info("Server shutdown complete")
	}

	sweep.Stop()
	log.Info("Schedule sweeper stopped")

	if storage != nil {
		if err := storage.Close(); err != nil {
			log.Error("Failed to close storage", sl.Err(err))
		} else {
			log.Info("Storage closed")
		}
	} else {
		log.Debug("Storage is nil, nothing to close")
	}

	if locker != nil {
		if err := locker.Close(); err != nil {
			log.Error("Failed to close locker", sl.Err(err))
		} else {
			log.Info("Locker closed")
		}
	}

	log.Info("Shutdown finished, server stopped")

}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
