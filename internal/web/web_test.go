package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"scoopcms/internal/content"
	"scoopcms/internal/scheduler"
	"scoopcms/internal/store"
)

const testSecret = "test-secret"

// Fixed clock for HTTP tests: Monday, July 15 2024.
func testNow() time.Time {
	return time.Date(2024, 7, 15, 9, 0, 0, 0, time.UTC)
}

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()

	st := store.NewMemory()
	svc := content.NewService(st).WithNow(testNow)
	job := &scheduler.Job{Store: st, Dir: content.EventsDir, Now: testNow}
	return NewServer(svc, job, testSecret), st
}

func seedDoc(t *testing.T, st store.Store, path, body string) {
	t.Helper()
	if _, err := st.Write(context.Background(), path, []byte(body), "", "seed"); err != nil {
		t.Fatalf("seed %s: %v", path, err)
	}
}

func do(t *testing.T, h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestRescheduleRequiresSecret(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	h := srv.Handler()

	// No credential at all.
	rec := do(t, h, http.MethodPost, "/api/events/reschedule", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing credential: status = %d, want 401", rec.Code)
	}

	// Wrong credential.
	rec = do(t, h, http.MethodPost, "/api/events/reschedule", "", map[string]string{
		"Authorization": "Bearer wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong credential: status = %d, want 401", rec.Code)
	}
}

func TestRescheduleUnconfiguredSecret(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	svc := content.NewService(st).WithNow(testNow)
	job := &scheduler.Job{Store: st, Dir: content.EventsDir, Now: testNow}
	srv := NewServer(svc, job, "")

	rec := do(t, srv.Handler(), http.MethodPost, "/api/events/reschedule", "", map[string]string{
		"Authorization": "Bearer anything",
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 when no secret is configured", rec.Code)
	}
}

func TestRescheduleRun(t *testing.T) {
	t.Parallel()

	srv, st := newTestServer(t)
	h := srv.Handler()
	auth := map[string]string{"Authorization": "Bearer " + testSecret}

	seedDoc(t, st, "content/events/weekly.json",
		`{"title":"Weekly","date":"2024-07-01","repeat":{"frequency":"weekly","byday":["WE"]}}`)
	seedDoc(t, st, "content/events/future.json",
		`{"title":"Future","date":"2024-08-01"}`)

	rec := do(t, h, http.MethodPost, "/api/events/reschedule", "", auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp rescheduleResponse
	decodeBody(t, rec, &resp)
	if resp.Status != "success" || resp.Message != "Events rescheduled successfully." {
		t.Fatalf("response = %+v", resp)
	}
	if len(resp.UpdatedEvents) != 1 || !strings.HasPrefix(resp.UpdatedEvents[0], "weekly ") {
		t.Fatalf("UpdatedEvents = %v", resp.UpdatedEvents)
	}

	// A second trigger has nothing left to do.
	rec = do(t, h, http.MethodPost, "/api/events/reschedule", "", auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("second run status = %d", rec.Code)
	}
	decodeBody(t, rec, &resp)
	if resp.Message != "No events needed rescheduling." || len(resp.UpdatedEvents) != 0 {
		t.Fatalf("second run response = %+v", resp)
	}
}

func TestRescheduleReportsPartialProgress(t *testing.T) {
	t.Parallel()

	srv, st := newTestServer(t)

	seedDoc(t, st, "content/events/weekly.json",
		`{"title":"Weekly","date":"2024-07-01","repeat":{"frequency":"weekly","byday":["WE"]}}`)
	seedDoc(t, st, "content/events/broken.json",
		`{"title":"Broken","date":"2024-07-01","repeat":{"frequency":"monthly","byday":"3FR","bymonthday":10}}`)

	rec := do(t, srv.Handler(), http.MethodPost, "/api/events/reschedule", "", map[string]string{
		"Authorization": "Bearer " + testSecret,
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 on partial failure", rec.Code)
	}

	var resp rescheduleResponse
	decodeBody(t, rec, &resp)
	if resp.Status != "error" {
		t.Fatalf("status field = %q", resp.Status)
	}
	if len(resp.UpdatedEvents) != 1 {
		t.Fatalf("partial progress lost: UpdatedEvents = %v", resp.UpdatedEvents)
	}
	if len(resp.Errors) != 1 || !strings.Contains(resp.Errors[0], "broken") {
		t.Fatalf("Errors = %v", resp.Errors)
	}
}

func TestEventCRUD(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	h := srv.Handler()

	// Create.
	rec := do(t, h, http.MethodPost, "/api/content/events",
		`{"title":"Trivia Night","date":"2024-08-02","time":"19:00","repeat":{"frequency":"monthly","byday":"1FR"}}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Success bool   `json:"success"`
		Slug    string `json:"slug"`
	}
	decodeBody(t, rec, &created)
	if created.Slug != "2024-07-15-trivia-night" {
		t.Fatalf("slug = %q", created.Slug)
	}

	// Read back.
	rec = do(t, h, http.MethodGet, "/api/content/events/"+created.Slug, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got struct {
		Title string `json:"title"`
		Date  string `json:"date"`
		SHA   string `json:"sha"`
	}
	decodeBody(t, rec, &got)
	if got.Title != "Trivia Night" || got.Date != "2024-08-02" || got.SHA == "" {
		t.Fatalf("get = %+v", got)
	}

	// List contains it.
	rec = do(t, h, http.MethodGet, "/api/content/events", "", nil)
	var list []map[string]any
	decodeBody(t, rec, &list)
	if len(list) != 1 {
		t.Fatalf("list = %v", list)
	}

	// Update with a stale revision conflicts.
	rec = do(t, h, http.MethodPut, "/api/content/events/"+created.Slug,
		`{"json":{"title":"Trivia Night","date":"2024-08-09"},"sha":"stale"}`, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("stale update status = %d, want 409", rec.Code)
	}

	// Update with the current revision.
	rec = do(t, h, http.MethodPut, "/api/content/events/"+created.Slug,
		`{"json":{"title":"Trivia Night","date":"2024-08-09"},"sha":"`+got.SHA+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Fetch the rotated revision, then delete.
	rec = do(t, h, http.MethodGet, "/api/content/events/"+created.Slug, "", nil)
	decodeBody(t, rec, &got)
	rec = do(t, h, http.MethodDelete, "/api/content/events/"+created.Slug,
		`{"sha":"`+got.SHA+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/content/events/"+created.Slug, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestCreateEventRejectsBadInput(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		name string
		body string
	}{
		{"missing title", `{"date":"2024-08-02"}`},
		{"missing date", `{"title":"No Date"}`},
		{"weekly with bymonthday", `{"title":"Bad Rule","date":"2024-08-02","repeat":{"frequency":"weekly","bymonthday":10}}`},
		{"until before anchor", `{"title":"Bad Until","date":"2024-08-02","repeat":{"frequency":"daily","until":"2024-07-01"}}`},
		{"not json", `{"title":`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, h, http.MethodPost, "/api/content/events", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAnnouncementsFilter(t *testing.T) {
	t.Parallel()

	srv, st := newTestServer(t)
	h := srv.Handler()

	seedDoc(t, st, "content/announcements/open.json",
		`{"title":"Summer Hours","startDate":"2024-07-01","endDate":"2024-08-31"}`)
	seedDoc(t, st, "content/announcements/expired.json",
		`{"title":"Spring Special","startDate":"2024-04-01","endDate":"2024-05-31"}`)

	rec := do(t, h, http.MethodGet, "/api/content/announcements", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var active []map[string]any
	decodeBody(t, rec, &active)
	if len(active) != 1 || active[0]["title"] != "Summer Hours" {
		t.Fatalf("active announcements = %v", active)
	}

	rec = do(t, h, http.MethodGet, "/api/content/announcements?full=true", "", nil)
	var all []map[string]any
	decodeBody(t, rec, &all)
	if len(all) != 2 {
		t.Fatalf("full announcements = %v", all)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	h := srv.Handler()

	// Nothing saved yet.
	rec := do(t, h, http.MethodGet, "/api/content/settings", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get before save status = %d, want 404", rec.Code)
	}

	rec = do(t, h, http.MethodPut, "/api/content/settings",
		`{"json":{"businessName":"Scoop Shop","hours":"12-9"}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/content/settings", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var doc singleDocument
	decodeBody(t, rec, &doc)
	if doc.SHA == "" {
		t.Fatal("settings revision is empty")
	}
	var settings map[string]any
	if err := json.Unmarshal(doc.JSON, &settings); err != nil {
		t.Fatalf("settings payload: %v", err)
	}
	if settings["businessName"] != "Scoop Shop" {
		t.Fatalf("settings = %v", settings)
	}
}

func TestPartiesRoundTrip(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/content/parties", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get before save status = %d, want 404", rec.Code)
	}

	rec = do(t, h, http.MethodPut, "/api/content/parties",
		`{"json":{"text":"Book your party at least two weeks ahead."}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/content/parties", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var doc singleDocument
	decodeBody(t, rec, &doc)
	if !strings.Contains(string(doc.JSON), "two weeks") || doc.SHA == "" {
		t.Fatalf("parties document = %+v", doc)
	}
}

func TestListDates(t *testing.T) {
	t.Parallel()

	srv, st := newTestServer(t)
	h := srv.Handler()

	seedDoc(t, st, "content/events/b.json", `{"title":"B","date":"2024-09-01"}`)
	seedDoc(t, st, "content/events/a.json", `{"title":"A","date":"2024-08-01"}`)
	seedDoc(t, st, "content/events/bad.json", `{"title": broken`)

	rec := do(t, h, http.MethodGet, "/api/events/list-dates", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var listing struct {
		Dates []struct {
			Slug string `json:"slug"`
			Date string `json:"date"`
		} `json:"eventDates"`
		Errors []string `json:"errors"`
	}
	decodeBody(t, rec, &listing)
	if len(listing.Dates) != 2 || listing.Dates[0].Slug != "a" || listing.Dates[1].Slug != "b" {
		t.Fatalf("dates = %+v, want a then b", listing.Dates)
	}
	if len(listing.Errors) != 1 {
		t.Fatalf("errors = %v, want one for the broken document", listing.Errors)
	}
}
