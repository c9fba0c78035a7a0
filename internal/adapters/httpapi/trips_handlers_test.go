package httpapi

import (
	"net/http"
	"testing"
	"time"
)

func createTrip(t *testing.T, api *testAPI, subject string, body map[string]any) Trip {
	t.Helper()
	rec := api.do(t, http.MethodPost, "/trips", subject, body)
	requireStatus(t, rec, http.StatusCreated)
	return decode[TripResponse](t, rec).Trip
}

func TestTrips_CreateAndVisibility(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	aliceID := api.provision(t, "alice", "Alice")
	bobID := api.provision(t, "bob", "Bob")
	api.provision(t, "carol", "Carol")

	start := api.clk.Now().Add(-time.Hour)
	trip := createTrip(t, api, "alice", map[string]any{
		"title":          "  Coast   run ",
		"startTime":      start,
		"participantIds": []string{bobID, aliceID, bobID},
	})
	if trip.Title != "Coast run" {
		t.Fatalf("title: got %q", trip.Title)
	}
	if trip.CreatorId != aliceID || trip.Status != "in_progress" {
		t.Fatalf("unexpected trip: %+v", trip)
	}
	if len(trip.Participants) != 1 || trip.Participants[0].UserId != bobID {
		t.Fatalf("participants: %+v", trip.Participants)
	}
	if !trip.Permissions.IsCreator || !trip.Permissions.CanEdit || trip.Permissions.IsUpcoming {
		t.Fatalf("creator permissions: %+v", trip.Permissions)
	}
	if trip.StatusDisplay.Label != "Active" || trip.StatusDisplay.TextColor != "text-green-800" {
		t.Fatalf("statusDisplay: %+v", trip.StatusDisplay)
	}

	rec := api.do(t, http.MethodGet, "/trips/"+trip.Id, "bob", nil)
	requireStatus(t, rec, http.StatusOK)
	got := decode[TripResponse](t, rec).Trip
	if got.Permissions.IsCreator || !got.Permissions.IsParticipant || !got.Permissions.CanEdit {
		t.Fatalf("participant permissions: %+v", got.Permissions)
	}

	rec = api.do(t, http.MethodGet, "/trips/"+trip.Id, "carol", nil)
	requireErrorCode(t, rec, http.StatusNotFound, "TRIP_NOT_FOUND")

	rec = api.do(t, http.MethodGet, "/trips/"+trip.Id+"/permissions", "carol", nil)
	requireStatus(t, rec, http.StatusOK)
	if p := decode[TripPermissionsResponse](t, rec).Permissions; p != (TripPermissions{}) {
		t.Fatalf("outsider permissions: %+v", p)
	}

	rec = api.do(t, http.MethodGet, "/trips/missing/permissions", "carol", nil)
	requireErrorCode(t, rec, http.StatusNotFound, "TRIP_NOT_FOUND")
}

func TestTrips_CreateRequiresProvisionedCaller(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/trips", "ghost", map[string]any{"title": "x"})
	requireErrorCode(t, rec, http.StatusNotFound, "USER_NOT_PROVISIONED")
}

func TestTrips_CreateValidation(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	api.provision(t, "alice", "Alice")

	rec := api.do(t, http.MethodPost, "/trips", "alice", map[string]any{"title": "   "})
	requireErrorCode(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	rec = api.do(t, http.MethodPost, "/trips", "alice", map[string]any{
		"title":          "t",
		"participantIds": []string{"nobody"},
	})
	requireErrorCode(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	now := api.clk.Now()
	rec = api.do(t, http.MethodPost, "/trips", "alice", map[string]any{
		"title":     "t",
		"startTime": now,
		"endTime":   now.Add(-time.Minute),
	})
	requireErrorCode(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestTrips_ListMyTrips_StatusFilterAndOrder(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	api.provision(t, "alice", "Alice")
	api.provision(t, "carol", "Carol")

	now := api.clk.Now()
	later := createTrip(t, api, "alice", map[string]any{"title": "later", "startTime": now.Add(48 * time.Hour)})
	undated := createTrip(t, api, "alice", map[string]any{"title": "undated"})
	earlier := createTrip(t, api, "alice", map[string]any{"title": "earlier", "startTime": now.Add(-48 * time.Hour)})
	createTrip(t, api, "carol", map[string]any{"title": "not mine"})

	rec := api.do(t, http.MethodPost, "/trips/"+earlier.Id+"/complete", "alice", nil)
	requireStatus(t, rec, http.StatusOK)

	rec = api.do(t, http.MethodGet, "/trips", "alice", nil)
	requireStatus(t, rec, http.StatusOK)
	list := decode[TripListResponse](t, rec).Trips
	if len(list) != 3 {
		t.Fatalf("len: got %d want 3", len(list))
	}
	if list[0].Id != earlier.Id || list[1].Id != later.Id || list[2].Id != undated.Id {
		t.Fatalf("order: %s, %s, %s", list[0].Title, list[1].Title, list[2].Title)
	}
	if list[1].StatusDisplay.Label != "Upcoming" || !list[1].Permissions.IsUpcoming {
		t.Fatalf("future trip should be upcoming: %+v", list[1])
	}

	rec = api.do(t, http.MethodGet, "/trips?status=completed", "alice", nil)
	requireStatus(t, rec, http.StatusOK)
	list = decode[TripListResponse](t, rec).Trips
	if len(list) != 1 || list[0].Id != earlier.Id || list[0].StatusDisplay.Label != "Completed" {
		t.Fatalf("completed filter: %+v", list)
	}

	rec = api.do(t, http.MethodGet, "/trips?status=upcoming", "alice", nil)
	requireErrorCode(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestTrips_UpdateTrip_NullableFields(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	api.provision(t, "alice", "Alice")
	trip := createTrip(t, api, "alice", map[string]any{
		"title":       "t",
		"description": "desc",
		"startTime":   api.clk.Now().Add(-time.Hour),
	})

	rec := api.do(t, http.MethodPatch, "/trips/"+trip.Id, "alice", `{"description":null,"title":"renamed"}`)
	requireStatus(t, rec, http.StatusOK)
	got := decode[TripResponse](t, rec).Trip
	if got.Title != "renamed" || got.Description != nil {
		t.Fatalf("patched: %+v", got)
	}
	if got.StartTime == nil {
		t.Fatalf("omitted startTime must be preserved")
	}

	rec = api.do(t, http.MethodPatch, "/trips/"+trip.Id, "alice", `{"title":null}`)
	requireErrorCode(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	rec = api.do(t, http.MethodPatch, "/trips/"+trip.Id, "alice", `{"startTime":null}`)
	requireStatus(t, rec, http.StatusOK)
	if got := decode[TripResponse](t, rec).Trip; got.StartTime != nil {
		t.Fatalf("startTime should be cleared")
	}
}

func TestTrips_ParticipantsAndSegments(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	api.provision(t, "alice", "Alice")
	bobID := api.provision(t, "bob", "Bob")
	trip := createTrip(t, api, "alice", map[string]any{"title": "t"})

	rec := api.do(t, http.MethodPost, "/trips/"+trip.Id+"/participants", "bob", map[string]any{"userId": bobID})
	requireErrorCode(t, rec, http.StatusNotFound, "TRIP_NOT_FOUND")

	rec = api.do(t, http.MethodPost, "/trips/"+trip.Id+"/participants", "alice", map[string]any{"userId": bobID})
	requireStatus(t, rec, http.StatusOK)

	rec = api.do(t, http.MethodPost, "/trips/"+trip.Id+"/segments", "bob", map[string]any{
		"mode":        "train",
		"origin":      "Oakland",
		"destination": "Sacramento",
	})
	requireStatus(t, rec, http.StatusOK)
	got := decode[TripResponse](t, rec).Trip
	if len(got.Segments) != 1 || got.Segments[0].Mode != "train" || got.Segments[0].Label != "🚆 Train" {
		t.Fatalf("segments: %+v", got.Segments)
	}

	rec = api.do(t, http.MethodPost, "/trips/"+trip.Id+"/segments", "bob", map[string]any{"mode": "boat"})
	er := requireErrorCode(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	if details, err := er.Error.Details.Get(); err != nil || details["allowed"] == nil {
		t.Fatalf("expected allowed modes in details: %s", rec.Body.String())
	}

	// Participants may leave on their own.
	rec = api.do(t, http.MethodDelete, "/trips/"+trip.Id+"/participants/"+bobID, "bob", nil)
	requireStatus(t, rec, http.StatusOK)
	rec = api.do(t, http.MethodGet, "/trips/"+trip.Id, "bob", nil)
	requireErrorCode(t, rec, http.StatusNotFound, "TRIP_NOT_FOUND")
}

func TestTrips_CompleteTrip(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	api.provision(t, "alice", "Alice")
	started := createTrip(t, api, "alice", map[string]any{"title": "t", "startTime": api.clk.Now().Add(-time.Hour)})
	upcoming := createTrip(t, api, "alice", map[string]any{"title": "u", "startTime": api.clk.Now().Add(time.Hour)})

	rec := api.do(t, http.MethodPost, "/trips/"+upcoming.Id+"/complete", "alice", nil)
	requireErrorCode(t, rec, http.StatusConflict, "TRIP_NOT_STARTED")

	rec = api.do(t, http.MethodPost, "/trips/"+started.Id+"/complete", "alice", nil)
	requireStatus(t, rec, http.StatusOK)
	got := decode[TripResponse](t, rec).Trip
	if got.Status != "completed" || got.EndTime == nil || !got.EndTime.Equal(api.clk.Now()) {
		t.Fatalf("completed trip: %+v", got)
	}

	rec = api.do(t, http.MethodPost, "/trips/"+started.Id+"/complete", "alice", nil)
	requireStatus(t, rec, http.StatusOK)

	rec = api.do(t, http.MethodPatch, "/trips/"+started.Id, "alice", map[string]any{"title": "again"})
	requireErrorCode(t, rec, http.StatusConflict, "TRIP_COMPLETED")
}

func TestTrips_DeleteTrip(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	api.provision(t, "alice", "Alice")
	bobID := api.provision(t, "bob", "Bob")
	api.provision(t, "carol", "Carol")
	trip := createTrip(t, api, "alice", map[string]any{"title": "t", "participantIds": []string{bobID}})

	rec := api.do(t, http.MethodDelete, "/trips/"+trip.Id, "carol", nil)
	requireErrorCode(t, rec, http.StatusNotFound, "TRIP_NOT_FOUND")

	rec = api.do(t, http.MethodDelete, "/trips/"+trip.Id, "bob", nil)
	requireErrorCode(t, rec, http.StatusForbidden, "FORBIDDEN")

	rec = api.do(t, http.MethodDelete, "/trips/"+trip.Id, "alice", nil)
	requireStatus(t, rec, http.StatusNoContent)

	rec = api.do(t, http.MethodGet, "/trips/"+trip.Id, "alice", nil)
	requireErrorCode(t, rec, http.StatusNotFound, "TRIP_NOT_FOUND")
}
