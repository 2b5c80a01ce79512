package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"travelPlannerAPI/middleware"
	"travelPlannerAPI/services"
)

type DestinationHandler struct {
	destinationService *services.DestinationService
}

func NewDestinationHandler(destinationService *services.DestinationService) *DestinationHandler {
	return &DestinationHandler{
		destinationService: destinationService,
	}
}

func (h *DestinationHandler) ListDestinations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	destinations, err := h.destinationService.List(ctx)
	if err != nil {
		respondWithServiceError(w, "list destinations", err)
		return
	}

	respondWithJSON(w, http.StatusOK, destinations)
}

func (h *DestinationHandler) SearchDestinations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	query := r.URL.Query().Get("q")
	if query == "" {
		respondWithError(w, http.StatusBadRequest, "Search query parameter 'q' is required")
		return
	}

	destinations, err := h.destinationService.Search(ctx, query)
	if err != nil {
		respondWithServiceError(w, "search destinations", err)
		return
	}

	respondWithJSON(w, http.StatusOK, destinations)
}

func (h *DestinationHandler) GetPopular(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit := services.DefaultPopularLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondWithError(w, http.StatusBadRequest, "Query parameter 'limit' must be a positive integer")
			return
		}
		limit = n
	}

	destinations, err := h.destinationService.Popular(ctx, limit)
	if err != nil {
		respondWithServiceError(w, "load popular destinations", err)
		return
	}

	respondWithJSON(w, http.StatusOK, destinations)
}

func (h *DestinationHandler) AddDestination(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req services.NewDestinationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	destination, err := h.destinationService.Add(ctx, clerkID, req)
	if err != nil {
		respondWithServiceError(w, "add destination", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, destination)
}

func (h *DestinationHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	destination, err := h.destinationService.RecordViewByKey(ctx, mux.Vars(r)["key"])
	if err != nil {
		respondWithServiceError(w, "record destination view", err)
		return
	}
	if destination == nil {
		respondWithError(w, http.StatusNotFound, "Destination not found")
		return
	}

	respondWithJSON(w, http.StatusOK, destination)
}
