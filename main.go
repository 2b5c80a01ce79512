package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"travelPlannerAPI/handlers"
	"travelPlannerAPI/internal/backend"
	"travelPlannerAPI/internal/calendar"
	"travelPlannerAPI/internal/config"
	"travelPlannerAPI/internal/workers"
	"travelPlannerAPI/middleware"
	"travelPlannerAPI/services"
)

var (
	cfg                *config.Config
	store              *backend.Backend
	scheduleService    *services.ScheduleService
	destinationService *services.DestinationService
	scheduler          *workers.Scheduler
)

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	if cfg.ClerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(cfg.ClerkSecretKey)
	log.Println("Clerk initialized successfully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err = backend.Open(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to open data service:", err)
	}
	log.Printf("Data service ready (%s)", cfg.DataBackend)

	var images services.ImageLocator
	if store.Bucket != nil {
		images = services.NewImageService(services.NewBucketLister(store.Bucket))
		log.Println("Destination images served from Firebase Storage")
	}

	nav := calendar.NewNavigator(cfg.Location())
	scheduleService = services.NewScheduleService(store.Data, nav)
	destinationService = services.NewDestinationService(store.Data, images)

	scheduler = workers.NewScheduler(cfg.Location(), time.Minute)
	if err := scheduler.Add("popular destinations refresh", cfg.PopularRefreshCron, refreshPopular); err != nil {
		log.Fatal(err)
	}

	middleware.ConfigureRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)
	middleware.InitPrometheus()
}

func refreshPopular(ctx context.Context) error {
	_, err := destinationService.RefreshPopular(ctx)
	return err
}

func main() {
	defer func() {
		log.Println("Closing data service...")
		store.Close()
	}()

	// Initialize handlers
	scheduleHandler := handlers.NewScheduleHandler(scheduleService, destinationService)
	calendarHandler := handlers.NewCalendarHandler(scheduleService)
	destinationHandler := handlers.NewDestinationHandler(destinationService)

	r := mux.NewRouter()

	standardRouter := r.PathPrefix("/").Subrouter()

	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	go middleware.CleanupVisitors(cleanupCtx)

	standardRouter.Use(middleware.RateLimitMiddleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass)(promhttp.Handler()))

	standardRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "data service unreachable"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "travelPlanner-api"}`))
	}).Methods("GET")

	api := standardRouter.PathPrefix("/api/v1").Subrouter()

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/calendar", calendarHandler.GetCalendar).Methods("GET")
	protected.HandleFunc("/calendar/page", calendarHandler.PageCalendar).Methods("GET")

	// export.ics must be registered before the {date} routes.
	protected.HandleFunc("/schedule/export.ics", scheduleHandler.ExportICS).Methods("GET")
	protected.HandleFunc("/schedule/{date}", scheduleHandler.GetSchedule).Methods("GET")
	protected.HandleFunc("/schedule/{date}/ws", scheduleHandler.StreamSchedule).Methods("GET")
	protected.HandleFunc("/schedule/{date}/entries", scheduleHandler.AddEntry).Methods("POST")
	protected.HandleFunc("/schedule/{date}/entries/{entryID}", scheduleHandler.UpdateEntry).Methods("PUT")
	protected.HandleFunc("/schedule/{date}/entries/{entryID}", scheduleHandler.DeleteEntry).Methods("DELETE")

	protected.HandleFunc("/destinations", destinationHandler.ListDestinations).Methods("GET")
	protected.HandleFunc("/destinations", destinationHandler.AddDestination).Methods("POST")
	protected.HandleFunc("/destinations/search", destinationHandler.SearchDestinations).Methods("GET")
	protected.HandleFunc("/destinations/popular", destinationHandler.GetPopular).Methods("GET")
	protected.HandleFunc("/destinations/{key}/view", destinationHandler.RecordView).Methods("POST")

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length", "Content-Disposition"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := ":" + cfg.Port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	scheduler.Start()
	scheduler.Go("popular destinations warmup", refreshPopular)

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	scheduler.Stop()

	log.Println("Server shutdown complete")
}
