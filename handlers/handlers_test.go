package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelPlannerAPI/internal/calendar"
	"travelPlannerAPI/internal/datasvc"
	"travelPlannerAPI/internal/itinerary"
	"travelPlannerAPI/middleware"
	"travelPlannerAPI/services"
)

type testEnv struct {
	router       *mux.Router
	data         *datasvc.MemoryService
	schedule     *services.ScheduleService
	destinations *services.DestinationService
}

// withUser stands in for the Clerk middleware.
func withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := r.Header.Get("X-Test-User"); user != "" {
			r = r.WithContext(context.WithValue(r.Context(), middleware.ClerkIDKey, user))
		}
		next.ServeHTTP(w, r)
	})
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	data := datasvc.NewMemoryService()
	t.Cleanup(func() { data.Close() })

	nav := calendar.NewNavigator(time.UTC).WithClock(func() time.Time {
		return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	})
	schedule := services.NewScheduleService(data, nav)
	destinations := services.NewDestinationService(data, nil)

	scheduleHandler := NewScheduleHandler(schedule, destinations)
	calendarHandler := NewCalendarHandler(schedule)
	destinationHandler := NewDestinationHandler(destinations)

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(withUser)

	api.HandleFunc("/calendar", calendarHandler.GetCalendar).Methods("GET")
	api.HandleFunc("/calendar/page", calendarHandler.PageCalendar).Methods("GET")
	api.HandleFunc("/schedule/export.ics", scheduleHandler.ExportICS).Methods("GET")
	api.HandleFunc("/schedule/{date}", scheduleHandler.GetSchedule).Methods("GET")
	api.HandleFunc("/schedule/{date}/ws", scheduleHandler.StreamSchedule).Methods("GET")
	api.HandleFunc("/schedule/{date}/entries", scheduleHandler.AddEntry).Methods("POST")
	api.HandleFunc("/schedule/{date}/entries/{entryID}", scheduleHandler.UpdateEntry).Methods("PUT")
	api.HandleFunc("/schedule/{date}/entries/{entryID}", scheduleHandler.DeleteEntry).Methods("DELETE")
	api.HandleFunc("/destinations", destinationHandler.ListDestinations).Methods("GET")
	api.HandleFunc("/destinations", destinationHandler.AddDestination).Methods("POST")
	api.HandleFunc("/destinations/search", destinationHandler.SearchDestinations).Methods("GET")
	api.HandleFunc("/destinations/popular", destinationHandler.GetPopular).Methods("GET")
	api.HandleFunc("/destinations/{key}/view", destinationHandler.RecordView).Methods("POST")

	return &testEnv{router: r, data: data, schedule: schedule, destinations: destinations}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Test-User", "u1")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestScheduleRequiresUser(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest("GET", "/api/v1/schedule/2024-05-01", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScheduleRejectsBadDate(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/api/v1/schedule/2024-02-30", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/api/v1/schedule/yesterday/entries", `{"destination_name":"Hanoi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddEntryRejectsEmptyName(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/api/v1/schedule/2024-05-01/entries", `{"destination_name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/api/v1/schedule/2024-05-01/entries", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduleScenarioOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.data.Write(ctx, "destination/location 1", map[string]any{
		"name": "Hanoi", "place": "Vietnam", "price": "100", "description": "capital", "view": 0,
	}))

	rec := env.do(t, "POST", "/api/v1/schedule/2024-05-01/entries", `{"destination_name":"Hanoi","destination_place":"Vietnam"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	added := decode[AddEntryResponse](t, rec)
	assert.True(t, added.Created)

	rec = env.do(t, "POST", "/api/v1/schedule/2024-05-01/entries", `{"destination_name":"Hanoi","destination_place":"Vietnam"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[AddEntryResponse](t, rec)
	assert.False(t, again.Created)
	assert.Equal(t, added.Entry.ID, again.Entry.ID)

	rec = env.do(t, "GET", "/api/v1/schedule/2024-05-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	bucket := decode[itinerary.Bucket](t, rec)
	require.Len(t, bucket.Entries, 1)

	rec = env.do(t, "PUT", "/api/v1/schedule/2024-05-01/entries/"+added.Entry.ID,
		`{"plan":"Walk old quarter","hour":"14","minute":5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, "GET", "/api/v1/schedule/2024-05-01", "")
	bucket = decode[itinerary.Bucket](t, rec)
	require.Len(t, bucket.Entries, 1)
	got := bucket.Entries[0]
	assert.Equal(t, "Hanoi", got.DestinationName)
	assert.Equal(t, 14, got.Hour)
	assert.Equal(t, 5, got.Minute)
	assert.Equal(t, "Walk old quarter", got.Plan)

	rec = env.do(t, "DELETE", "/api/v1/schedule/2024-05-01/entries/"+added.Entry.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, "DELETE", "/api/v1/schedule/2024-05-01/entries/"+added.Entry.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, "GET", "/api/v1/schedule/2024-05-01", "")
	bucket = decode[itinerary.Bucket](t, rec)
	assert.Empty(t, bucket.Entries)

	// Both POSTs counted as views.
	popular, err := env.destinations.Popular(ctx, 1)
	require.NoError(t, err)
	require.Len(t, popular, 1)
	assert.Equal(t, 2, popular[0].View)
}

func TestUpdateEntryCoercesInput(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/api/v1/schedule/2024-05-01/entries", `{"destination_name":"Hue"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[AddEntryResponse](t, rec).Entry.ID

	rec = env.do(t, "PUT", "/api/v1/schedule/2024-05-01/entries/"+id, `{"hour":"99","minute":"30"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	entry := decode[itinerary.Entry](t, rec)
	assert.Equal(t, 24, entry.Hour)
	assert.Equal(t, 0, entry.Minute)

	rec = env.do(t, "PUT", "/api/v1/schedule/2024-05-01/entries/"+id, `{"hour":"abc","minute":-4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	entry = decode[itinerary.Entry](t, rec)
	assert.Equal(t, 0, entry.Hour)
	assert.Equal(t, 0, entry.Minute)

	rec = env.do(t, "PUT", "/api/v1/schedule/2024-05-01/entries/"+id, `{"minute":75}`)
	require.Equal(t, http.StatusOK, rec.Code)
	entry = decode[itinerary.Entry](t, rec)
	assert.Equal(t, 59, entry.Minute)

	rec = env.do(t, "PUT", "/api/v1/schedule/2024-05-01/entries/missing", `{"plan":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, "PUT", "/api/v1/schedule/2024-05-01/entries/"+id, `{"hour":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalendarEndpoints(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/api/v1/schedule/2024-05-08/entries", `{"destination_name":"Sapa"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, "GET", "/api/v1/calendar", "")
	require.Equal(t, http.StatusOK, rec.Code)
	grid := decode[calendar.CalendarResponse](t, rec)
	require.Len(t, grid.Days, 7)
	assert.Equal(t, "2024-04-29", grid.Days[0].Date.String())
	assert.True(t, grid.Days[2].IsToday)

	rec = env.do(t, "GET", "/api/v1/calendar/page?date=2024-05-01&direction=next", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[CalendarPageResponse](t, rec)
	assert.Equal(t, "2024-05-01", page.Previous.String())
	assert.Equal(t, "2024-05-08", page.Calendar.Reference.String())
	assert.Equal(t, 1, page.Calendar.Days[2].EntryCount)

	rec = env.do(t, "GET", "/api/v1/calendar?date=2024-05-01&span=fortnight", "")
	require.Equal(t, http.StatusOK, rec.Code)
	grid = decode[calendar.CalendarResponse](t, rec)
	assert.Len(t, grid.Days, 14)

	rec = env.do(t, "GET", "/api/v1/calendar?span=month", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, "GET", "/api/v1/calendar/page?direction=sideways", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportICSEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/api/v1/schedule/2024-05-01/entries", `{"destination_name":"Hanoi"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, "GET", "/api/v1/schedule/export.ics?date=2024-05-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")
	assert.Contains(t, rec.Body.String(), "SUMMARY:Hanoi")
}

func TestDestinationEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/v1/destinations", `{"name":"Hanoi","place":"Vietnam","price":"100","description":"capital"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	added := decode[services.Destination](t, rec)
	assert.Equal(t, "location 1", added.Key)

	rec = env.do(t, "POST", "/api/v1/destinations", `{"name":"Hue"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/api/v1/destinations/location%201/view", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[services.Destination](t, rec).View)

	rec = env.do(t, "POST", "/api/v1/destinations/location%209/view", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, "GET", "/api/v1/destinations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]services.Destination](t, rec), 1)

	rec = env.do(t, "GET", "/api/v1/destinations/search?q=Ha", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]services.Destination](t, rec), 1)

	rec = env.do(t, "GET", "/api/v1/destinations/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "GET", "/api/v1/destinations/popular?limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]services.Destination](t, rec), 1)

	rec = env.do(t, "GET", "/api/v1/destinations/popular?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamSchedule(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Set("X-Test-User", "u1")
		env.router.ServeHTTP(w, r)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/schedule/2024-05-01/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() services.BucketMessage {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg services.BucketMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	first := read()
	assert.Equal(t, "snapshot", first.Type)
	assert.Empty(t, first.Bucket.Entries)

	rec := env.do(t, "POST", "/api/v1/schedule/2024-05-01/entries", `{"destination_name":"Hanoi"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	next := read()
	require.Len(t, next.Bucket.Entries, 1)
	assert.Equal(t, "Hanoi", next.Bucket.Entries[0].DestinationName)
}
