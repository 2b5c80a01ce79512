package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"travelPlannerAPI/internal/calendar"
	"travelPlannerAPI/internal/datasvc"
	"travelPlannerAPI/internal/itinerary"
	"travelPlannerAPI/services"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithServiceError answers 400 for input the services reject and
// 500 for everything else.
func respondWithServiceError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, calendar.ErrInvalidDate),
		errors.Is(err, itinerary.ErrEmptyDestination),
		errors.Is(err, datasvc.ErrInvalidKey),
		errors.Is(err, services.ErrIncompleteDestination):
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("Failed to %s: %v", action, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}
