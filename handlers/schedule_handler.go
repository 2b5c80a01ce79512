package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"travelPlannerAPI/internal/calendar"
	"travelPlannerAPI/internal/itinerary"
	"travelPlannerAPI/middleware"
	"travelPlannerAPI/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type ScheduleHandler struct {
	scheduleService    *services.ScheduleService
	destinationService *services.DestinationService
}

func NewScheduleHandler(scheduleService *services.ScheduleService, destinationService *services.DestinationService) *ScheduleHandler {
	return &ScheduleHandler{
		scheduleService:    scheduleService,
		destinationService: destinationService,
	}
}

type AddEntryRequest struct {
	DestinationName  string `json:"destination_name"`
	DestinationPlace string `json:"destination_place"`
}

type AddEntryResponse struct {
	Entry   itinerary.Entry `json:"entry"`
	Created bool            `json:"created"`
}

// rawField keeps user input as text so the editor can coerce it. It
// accepts a JSON string or number; null counts as absent.
type rawField struct {
	set   bool
	value string
}

func (f *rawField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	f.set = true
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &f.value)
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a string or number, got %s", b)
	}
	f.value = n.String()
	return nil
}

type UpdateEntryRequest struct {
	Plan   *string  `json:"plan"`
	Hour   rawField `json:"hour"`
	Minute rawField `json:"minute"`
}

func (h *ScheduleHandler) dateVar(w http.ResponseWriter, r *http.Request) (calendar.Date, bool) {
	date, err := calendar.ParseDate(mux.Vars(r)["date"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return calendar.Date{}, false
	}
	return date, true
}

func (h *ScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	date, ok := h.dateVar(w, r)
	if !ok {
		return
	}

	bucket, err := h.scheduleService.GetBucket(ctx, clerkID, date)
	if err != nil {
		respondWithServiceError(w, "load schedule", err)
		return
	}

	respondWithJSON(w, http.StatusOK, bucket)
}

func (h *ScheduleHandler) AddEntry(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	date, ok := h.dateVar(w, r)
	if !ok {
		return
	}

	var req AddEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, created, err := h.scheduleService.AddEntryIfAbsent(ctx, clerkID, date, req.DestinationName, req.DestinationPlace)
	if err != nil {
		respondWithServiceError(w, "add schedule entry", err)
		return
	}

	// Picking a destination for a day counts as a view.
	if h.destinationService != nil {
		if _, err := h.destinationService.RecordView(ctx, req.DestinationName); err != nil {
			log.Printf("Failed to record view of %q: %v", req.DestinationName, err)
		}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondWithJSON(w, status, AddEntryResponse{Entry: entry, Created: created})
}

func (h *ScheduleHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	date, ok := h.dateVar(w, r)
	if !ok {
		return
	}
	entryID := mux.Vars(r)["entryID"]

	var req UpdateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	bucket, err := h.scheduleService.GetBucket(ctx, clerkID, date)
	if err != nil {
		respondWithServiceError(w, "load schedule", err)
		return
	}
	entry, found := bucket.Get(entryID)
	if !found {
		respondWithError(w, http.StatusNotFound, "Schedule entry not found")
		return
	}

	editor := itinerary.NewEditor(entry)
	if req.Hour.set {
		editor.SetHour(req.Hour.value)
	}
	if req.Minute.set {
		editor.SetMinute(req.Minute.value)
	}
	if req.Plan != nil {
		editor.SetPlan(*req.Plan)
	}
	edit := editor.Submit()

	if err := h.scheduleService.UpdateEntry(ctx, clerkID, date, entryID, edit.Plan, edit.Hour, edit.Minute); err != nil {
		respondWithServiceError(w, "update schedule entry", err)
		return
	}

	entry.Plan, entry.Hour, entry.Minute = edit.Plan, edit.Hour, edit.Minute
	respondWithJSON(w, http.StatusOK, entry)
}

func (h *ScheduleHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	date, ok := h.dateVar(w, r)
	if !ok {
		return
	}

	if err := h.scheduleService.RemoveEntry(ctx, clerkID, date, mux.Vars(r)["entryID"]); err != nil {
		respondWithServiceError(w, "remove schedule entry", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *ScheduleHandler) ExportICS(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	ref, span, ok := calendarQuery(w, r, h.scheduleService.Navigator())
	if !ok {
		return
	}

	doc, err := h.scheduleService.ExportICS(ctx, clerkID, ref, span)
	if err != nil {
		respondWithServiceError(w, "export schedule", err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="itinerary-%s.ics"`, ref))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(doc))
}

// StreamSchedule upgrades to a websocket and pushes a snapshot of the day
// on every change.
func (h *ScheduleHandler) StreamSchedule(w http.ResponseWriter, r *http.Request) {
	clerkID, ok := middleware.GetClerkID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	date, ok := h.dateVar(w, r)
	if !ok {
		return
	}

	// The watch outlives the request context once the connection is hijacked.
	watch, err := h.scheduleService.LoadBucket(context.Background(), clerkID, date)
	if err != nil {
		respondWithServiceError(w, "watch schedule", err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Could not upgrade connection: %v", err)
		watch.Cancel()
		return
	}

	log.Printf("[BucketStream] %s watching %s", clerkID, date)
	go services.NewBucketStream(conn, watch).Run()
}

type CalendarHandler struct {
	scheduleService *services.ScheduleService
}

func NewCalendarHandler(scheduleService *services.ScheduleService) *CalendarHandler {
	return &CalendarHandler{scheduleService: scheduleService}
}

type CalendarPageResponse struct {
	Previous calendar.Date              `json:"previous"`
	Calendar *calendar.CalendarResponse `json:"calendar"`
}

// calendarQuery reads ?date= (default today) and ?span= (default week).
func calendarQuery(w http.ResponseWriter, r *http.Request, nav *calendar.Navigator) (calendar.Date, calendar.Span, bool) {
	ref := nav.Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := calendar.ParseDate(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return calendar.Date{}, "", false
		}
		ref = d
	}
	span, err := calendar.ParseSpan(r.URL.Query().Get("span"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return calendar.Date{}, "", false
	}
	return ref, span, true
}

func (h *CalendarHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	ref, span, ok := calendarQuery(w, r, h.scheduleService.Navigator())
	if !ok {
		return
	}

	grid, err := h.scheduleService.Calendar(ctx, clerkID, ref, span)
	if err != nil {
		respondWithServiceError(w, "load calendar", err)
		return
	}

	respondWithJSON(w, http.StatusOK, grid)
}

func (h *CalendarHandler) PageCalendar(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	ref, span, ok := calendarQuery(w, r, h.scheduleService.Navigator())
	if !ok {
		return
	}

	var direction int
	switch strings.ToLower(r.URL.Query().Get("direction")) {
	case "next", "forward":
		direction = 1
	case "prev", "previous", "back":
		direction = -1
	default:
		respondWithError(w, http.StatusBadRequest, "Query parameter 'direction' must be 'next' or 'prev'")
		return
	}

	paged := h.scheduleService.Navigator().Page(ref, span, direction)
	grid, err := h.scheduleService.Calendar(ctx, clerkID, paged, span)
	if err != nil {
		respondWithServiceError(w, "load calendar", err)
		return
	}

	respondWithJSON(w, http.StatusOK, CalendarPageResponse{Previous: ref, Calendar: grid})
}
