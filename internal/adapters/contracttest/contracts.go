package contracttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
	idempotencyport "github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/idempotency"
	triprepoport "github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/triprepo"
	userrepoport "github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/userrepo"
)

type CleanupFunc = func()

type UserRepoFactory func(t *testing.T) (userrepoport.Repository, CleanupFunc)
type TripRepoFactory func(t *testing.T) (triprepoport.Repository, CleanupFunc)
type IdemStoreFactory func(t *testing.T) (idempotencyport.Store, CleanupFunc)

func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	fp := idempotencyport.Fingerprint{
		Key:     idempotencyport.Key("k-" + uuid.NewString()),
		Subject: domain.SubjectID("sub-1"),
		Method:  "POST",
		Route:   "/trips",
	}
	if _, ok, err := store.Get(ctx, fp); err != nil || ok {
		t.Fatalf("Get before Put: ok=%v err=%v", ok, err)
	}

	rec := idempotencyport.Record{
		BodyHash:    "hash-abc",
		StatusCode:  201,
		ContentType: "application/json",
		Body:        []byte(`{"id":"t1"}`),
		CreatedAt:   time.Unix(123, 0).UTC(),
	}
	if err := store.Put(ctx, fp, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if got.BodyHash != "hash-abc" || string(got.Body) != `{"id":"t1"}` || got.ContentType != "application/json" || got.StatusCode != 201 {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Other subjects never see the slot.
	other := fp
	other.Subject = "sub-2"
	if _, ok, err := store.Get(ctx, other); err != nil || ok {
		t.Fatalf("Get other subject: ok=%v err=%v", ok, err)
	}

	// Overwrite semantics.
	rec2 := rec
	rec2.BodyHash = "hash-def"
	if err := store.Put(ctx, fp, rec2); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, ok, err = store.Get(ctx, fp)
	if err != nil || !ok || got.BodyHash != "hash-def" {
		t.Fatalf("expected overwritten record, got ok=%v err=%v hash=%q", ok, err, got.BodyHash)
	}

	// A completed slot cannot be reserved and survives Release.
	if cur, ok, err := store.Reserve(ctx, fp, idempotencyport.Record{BodyHash: "hash-xyz"}); err != nil || ok || cur.BodyHash != "hash-def" || cur.Pending() {
		t.Fatalf("Reserve on completed slot: ok=%v err=%v cur=%+v", ok, err, cur)
	}
	if err := store.Release(ctx, fp); err != nil {
		t.Fatalf("Release completed: %v", err)
	}
	if _, ok, err := store.Get(ctx, fp); err != nil || !ok {
		t.Fatalf("completed record released: ok=%v err=%v", ok, err)
	}

	// Reserve, lose the race, release, reserve again, complete.
	slot := fp
	slot.Key = idempotencyport.Key("k-" + uuid.NewString())
	pending, ok, err := store.Reserve(ctx, slot, idempotencyport.Record{BodyHash: "hash-1", CreatedAt: time.Now().UTC()})
	if err != nil || !ok || !pending.Pending() {
		t.Fatalf("first Reserve: ok=%v err=%v rec=%+v", ok, err, pending)
	}
	cur, ok, err := store.Reserve(ctx, slot, idempotencyport.Record{BodyHash: "hash-1", CreatedAt: time.Now().UTC()})
	if err != nil || ok || !cur.Pending() || cur.BodyHash != "hash-1" {
		t.Fatalf("second Reserve: ok=%v err=%v cur=%+v", ok, err, cur)
	}
	if err := store.Release(ctx, slot); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, ok, err := store.Get(ctx, slot); err != nil || ok {
		t.Fatalf("Get after Release: ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.Reserve(ctx, slot, idempotencyport.Record{BodyHash: "hash-1", CreatedAt: time.Now().UTC()}); err != nil || !ok {
		t.Fatalf("Reserve after Release: ok=%v err=%v", ok, err)
	}
	done := idempotencyport.Record{BodyHash: "hash-1", StatusCode: 201, ContentType: "application/json", Body: []byte(`{}`), CreatedAt: time.Now().UTC()}
	if err := store.Put(ctx, slot, done); err != nil {
		t.Fatalf("Put completing reservation: %v", err)
	}
	if got, ok, err := store.Get(ctx, slot); err != nil || !ok || got.Pending() || got.StatusCode != 201 {
		t.Fatalf("completed reservation: ok=%v err=%v rec=%+v", ok, err, got)
	}
}

func RunUserRepo(t *testing.T, newRepo UserRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(1000, 0).UTC()
	aID := domain.UserID(uuid.NewString())
	sub := domain.SubjectID("sub-" + uuid.NewString())
	if err := repo.Create(ctx, domain.User{
		ID:          aID,
		Subject:     sub,
		DisplayName: "Alice Johnson",
		Email:       "alice@example.com",
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	got, err := repo.GetByID(ctx, aID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Subject != sub || got.DisplayName != "Alice Johnson" || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected user: %#v", got)
	}
	if got, err := repo.GetBySubject(ctx, sub); err != nil || got.ID != aID {
		t.Fatalf("GetBySubject: id=%q err=%v", got.ID, err)
	}

	// Subject uniqueness.
	err = repo.Create(ctx, domain.User{
		ID:          domain.UserID(uuid.NewString()),
		Subject:     sub,
		DisplayName: "Alice 2",
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if !errors.Is(err, userrepoport.ErrSubjectAlreadyBound) {
		t.Fatalf("expected ErrSubjectAlreadyBound, got %v", err)
	}

	// Update changes profile fields only.
	got.DisplayName = "Alice J."
	got.UpdatedAt = now.Add(time.Minute)
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	after, err := repo.GetByID(ctx, aID)
	if err != nil || after.DisplayName != "Alice J." {
		t.Fatalf("after Update: %#v err=%v", after, err)
	}

	if _, err := repo.GetByID(ctx, domain.UserID(uuid.NewString())); !errors.Is(err, userrepoport.ErrNotFound) {
		t.Fatalf("GetByID missing: %v", err)
	}
	if _, err := repo.GetBySubject(ctx, "sub-missing-"+domain.SubjectID(uuid.NewString())); !errors.Is(err, userrepoport.ErrNotFound) {
		t.Fatalf("GetBySubject missing: %v", err)
	}
}

// RunTripRepo exercises trip persistence. Users are seeded first so adapters with
// referential integrity accept creator and participant ids.
func RunTripRepo(t *testing.T, newUserRepo UserRepoFactory, newTripRepo TripRepoFactory) {
	t.Helper()
	ctx := context.Background()

	users, uCleanup := newUserRepo(t)
	if uCleanup != nil {
		t.Cleanup(uCleanup)
	}
	trips, tCleanup := newTripRepo(t)
	if tCleanup != nil {
		t.Cleanup(tCleanup)
	}

	now := time.Unix(2000, 0).UTC()
	seedUser := func(name string) domain.UserID {
		id := domain.UserID(uuid.NewString())
		if err := users.Create(ctx, domain.User{
			ID:          id,
			Subject:     domain.SubjectID("sub-" + uuid.NewString()),
			DisplayName: name,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
		return id
	}
	creatorID := seedUser("Creator")
	riderID := seedUser("Rider")

	start := now.Add(48 * time.Hour)
	origin := "Oakland"
	tripID := domain.TripID(uuid.NewString())
	segID := domain.SegmentID(uuid.NewString())
	if err := trips.Create(ctx, domain.Trip{
		ID:           tripID,
		Title:        "Test Trip",
		CreatorID:    creatorID,
		Participants: []domain.Participant{{UID: riderID, JoinedAt: now}},
		StartTime:    &start,
		Status:       domain.TripStatusInProgress,
		Segments:     []domain.TripSegment{{ID: segID, Mode: domain.ModeTrain, Origin: &origin}},
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		t.Fatalf("Create trip: %v", err)
	}
	if err := trips.Create(ctx, domain.Trip{ID: tripID, Title: "dup", CreatorID: creatorID, Status: domain.TripStatusInProgress, CreatedAt: now, UpdatedAt: now}); !errors.Is(err, triprepoport.ErrAlreadyExists) {
		t.Fatalf("duplicate Create: %v", err)
	}

	got, err := trips.GetByID(ctx, tripID)
	if err != nil {
		t.Fatalf("GetByID trip: %v", err)
	}
	if got.Title != "Test Trip" || got.CreatorID != creatorID || got.Status != domain.TripStatusInProgress {
		t.Fatalf("unexpected trip: %#v", got)
	}
	if got.StartTime == nil || !got.StartTime.Equal(start) || got.EndTime != nil {
		t.Fatalf("unexpected times: start=%v end=%v", got.StartTime, got.EndTime)
	}
	if !got.HasParticipant(riderID) || len(got.Participants) != 1 {
		t.Fatalf("unexpected participants: %#v", got.Participants)
	}
	if len(got.Segments) != 1 || got.Segments[0].ID != segID || got.Segments[0].Mode != domain.ModeTrain ||
		got.Segments[0].Origin == nil || *got.Segments[0].Origin != origin {
		t.Fatalf("unexpected segments: %#v", got.Segments)
	}

	// Both the creator and the participant see it; an outsider does not.
	for _, uid := range []domain.UserID{creatorID, riderID} {
		list, err := trips.ListForUser(ctx, uid)
		if err != nil {
			t.Fatalf("ListForUser(%s): %v", uid, err)
		}
		if len(list) != 1 || list[0].ID != tripID {
			t.Fatalf("ListForUser(%s) = %#v", uid, list)
		}
	}
	outsider := seedUser("Outsider")
	if list, err := trips.ListForUser(ctx, outsider); err != nil || len(list) != 0 {
		t.Fatalf("ListForUser(outsider) = %#v err=%v", list, err)
	}

	// An earlier-starting trip sorts first; an unscheduled trip sorts last.
	earlier := now.Add(24 * time.Hour)
	earlyID := domain.TripID(uuid.NewString())
	undatedID := domain.TripID(uuid.NewString())
	for _, tr := range []domain.Trip{
		{ID: undatedID, Title: "Someday", CreatorID: creatorID, Status: domain.TripStatusInProgress, CreatedAt: now, UpdatedAt: now},
		{ID: earlyID, Title: "Early", CreatorID: creatorID, StartTime: &earlier, Status: domain.TripStatusInProgress, CreatedAt: now, UpdatedAt: now},
	} {
		if err := trips.Create(ctx, tr); err != nil {
			t.Fatalf("Create %s: %v", tr.Title, err)
		}
	}
	list, err := trips.ListForUser(ctx, creatorID)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(list) != 3 || list[0].ID != earlyID || list[1].ID != tripID || list[2].ID != undatedID {
		t.Fatalf("unexpected ordering: %#v", list)
	}

	// Save replaces participants and segments and records completion.
	end := now.Add(72 * time.Hour)
	got.Participants = nil
	got.Segments = append(got.Segments, domain.TripSegment{ID: domain.SegmentID(uuid.NewString()), Mode: domain.ModeBus})
	got.Status = domain.TripStatusCompleted
	got.EndTime = &end
	got.UpdatedAt = now.Add(time.Hour)
	if err := trips.Save(ctx, got); err != nil {
		t.Fatalf("Save: %v", err)
	}
	saved, err := trips.GetByID(ctx, tripID)
	if err != nil {
		t.Fatalf("GetByID after Save: %v", err)
	}
	if saved.Status != domain.TripStatusCompleted || saved.EndTime == nil || !saved.EndTime.Equal(end) {
		t.Fatalf("unexpected saved trip: %#v", saved)
	}
	if len(saved.Participants) != 0 || len(saved.Segments) != 2 || saved.Segments[1].Mode != domain.ModeBus {
		t.Fatalf("unexpected saved children: participants=%#v segments=%#v", saved.Participants, saved.Segments)
	}
	if list, err := trips.ListForUser(ctx, riderID); err != nil || len(list) != 0 {
		t.Fatalf("ListForUser(removed rider) = %#v err=%v", list, err)
	}

	if err := trips.Save(ctx, domain.Trip{ID: domain.TripID(uuid.NewString()), CreatorID: creatorID}); !errors.Is(err, triprepoport.ErrNotFound) {
		t.Fatalf("Save missing: %v", err)
	}

	if err := trips.Delete(ctx, tripID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := trips.GetByID(ctx, tripID); !errors.Is(err, triprepoport.ErrNotFound) {
		t.Fatalf("GetByID after Delete: %v", err)
	}
	if err := trips.Delete(ctx, tripID); !errors.Is(err, triprepoport.ErrNotFound) {
		t.Fatalf("Delete twice: %v", err)
	}
}
