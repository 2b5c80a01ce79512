package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"travelPlannerAPI/internal/backend"
	"travelPlannerAPI/internal/calendar"
	"travelPlannerAPI/internal/config"
	"travelPlannerAPI/services"
)

func main() {
	log.SetOutput(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := backend.Open(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to open data service:", err)
	}
	defer store.Close()

	schedule := services.NewScheduleService(store.Data, calendar.NewNavigator(cfg.Location()))
	app := NewApp(schedule, os.Stdout)

	if err := SetupCommands(app).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		store.Close()
		os.Exit(1)
	}
}
