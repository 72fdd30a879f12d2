package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/domain"
	"github.com/roach88/chronicle/internal/store"
	"github.com/roach88/chronicle/internal/store/memory"
	"github.com/roach88/chronicle/internal/testutil"
)

var userActor = domain.Actor{ID: "operator", Kind: domain.ActorUser}

type fixture struct {
	repo *memory.Store
	svc  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.New(ReferenceRules()...)
	t.Cleanup(func() { repo.Close() })
	clock := testutil.NewClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), time.Minute)
	rec := audit.NewRecorder(clock.Now, testutil.NewSequenceGenerator("tr"))
	return &fixture{
		repo: repo,
		svc:  New(repo, rec, testutil.NewSequenceGenerator("ent")),
	}
}

func (f *fixture) trail(t *testing.T) []domain.Transition {
	t.Helper()
	trail, err := f.repo.ListTransitions(context.Background(), store.TransitionFilter{})
	require.NoError(t, err)
	return trail
}

func TestCreateEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, err := f.svc.CreateEvent(ctx, CreateEventParams{
		Title:    "standup",
		StartsAt: "2024-07-01T10:00:00Z",
		EndsAt:   "2024-07-01T10:30:00Z",
		Actor:    userActor,
	})
	require.NoError(t, err)
	assert.Equal(t, "ent-0001", ev.ID)
	assert.Equal(t, domain.SyncLocalOnly, ev.SyncState)

	entity, found, err := f.repo.GetEntity(ctx, domain.TypeEvent, ev.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "standup", entity["title"])
	assert.Equal(t, string(domain.SyncLocalOnly), entity["syncState"])

	trail := f.trail(t)
	require.Len(t, trail, 1)
	assert.Equal(t, "", trail[0].FromState)
	assert.Equal(t, string(domain.SyncLocalOnly), trail[0].ToState)
	assert.Equal(t, "event created", trail[0].Reason)
}

func TestCreateEventValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		p    CreateEventParams
	}{
		{"empty title", CreateEventParams{StartsAt: "2024-07-01T10:00:00Z", Actor: userActor}},
		{"bad start", CreateEventParams{Title: "x", StartsAt: "yesterday", Actor: userActor}},
		{"bad end", CreateEventParams{Title: "x", StartsAt: "2024-07-01T10:00:00Z", EndsAt: "later", Actor: userActor}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateEvent(ctx, tc.p)
			assert.True(t, domain.IsInvalidRequest(err), "got %v", err)
		})
	}
	assert.Empty(t, f.trail(t))
}

func TestCreateEventOpenEnded(t *testing.T) {
	f := newFixture(t)

	ev, err := f.svc.CreateEvent(context.Background(), CreateEventParams{
		Title:    "reminder",
		StartsAt: "2024-07-01T10:00:00Z",
		Actor:    userActor,
	})
	require.NoError(t, err)
	assert.Empty(t, ev.EndsAt)

	// The stored entity omits endsAt entirely rather than keeping "".
	entity, _, err := f.repo.GetEntity(context.Background(), domain.TypeEvent, ev.ID)
	require.NoError(t, err)
	_, present := entity["endsAt"]
	assert.False(t, present)
}

func TestUpdateEventSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, err := f.svc.CreateEvent(ctx, CreateEventParams{
		Title:    "standup",
		StartsAt: "2024-07-01T10:00:00Z",
		EndsAt:   "2024-07-01T10:30:00Z",
		Actor:    userActor,
	})
	require.NoError(t, err)

	updated, err := f.svc.UpdateEventSchedule(ctx, UpdateEventScheduleParams{
		EventID:  ev.ID,
		StartsAt: "2024-07-01T11:00:00Z",
		EndsAt:   "2024-07-01T11:30:00Z",
		Actor:    userActor,
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-07-01T11:00:00Z", updated.StartsAt)
	assert.Equal(t, "2024-07-01T11:30:00Z", updated.EndsAt)

	trail := f.trail(t)
	require.Len(t, trail, 2)
	// Rescheduling does not change the sync state; the transition records
	// the schedule in metadata instead.
	assert.Equal(t, trail[1].FromState, trail[1].ToState)
	assert.Equal(t, "event rescheduled", trail[1].Reason)
	assert.Equal(t, "2024-07-01T11:00:00Z", trail[1].Metadata["startsAt"])
}

func TestUpdateEventScheduleDropsEndsAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, err := f.svc.CreateEvent(ctx, CreateEventParams{
		Title:    "standup",
		StartsAt: "2024-07-01T10:00:00Z",
		EndsAt:   "2024-07-01T10:30:00Z",
		Actor:    userActor,
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateEventSchedule(ctx, UpdateEventScheduleParams{
		EventID:  ev.ID,
		StartsAt: "2024-07-01T10:00:00Z",
		Actor:    userActor,
	})
	require.NoError(t, err)

	entity, _, err := f.repo.GetEntity(ctx, domain.TypeEvent, ev.ID)
	require.NoError(t, err)
	_, present := entity["endsAt"]
	assert.False(t, present)
}

func TestUpdateEventScheduleSyncedConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entity := domain.Entity{
		"id":        "ev-1",
		"title":     "standup",
		"startsAt":  "2024-07-01T10:00:00Z",
		"syncState": string(domain.SyncSynced),
	}
	require.NoError(t, f.repo.SaveEntity(ctx, domain.TypeEvent, "ev-1", entity))

	_, err := f.svc.UpdateEventSchedule(ctx, UpdateEventScheduleParams{
		EventID:  "ev-1",
		StartsAt: "2024-07-01T11:00:00Z",
		Actor:    userActor,
	})
	assert.True(t, domain.IsConflict(err), "got %v", err)

	stored, _, _ := f.repo.GetEntity(ctx, domain.TypeEvent, "ev-1")
	assert.Equal(t, "2024-07-01T10:00:00Z", stored["startsAt"])
}

func TestUpdateEventScheduleMissing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdateEventSchedule(context.Background(), UpdateEventScheduleParams{
		EventID:  "ev-missing",
		StartsAt: "2024-07-01T11:00:00Z",
		Actor:    userActor,
	})
	assert.True(t, domain.IsNotFound(err), "got %v", err)
}

func TestDeleteEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, err := f.svc.CreateEvent(ctx, CreateEventParams{
		Title:    "standup",
		StartsAt: "2024-07-01T10:00:00Z",
		Actor:    userActor,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteEvent(ctx, ev.ID, userActor, time.Time{}))
	if _, found, _ := f.repo.GetEntity(ctx, domain.TypeEvent, ev.ID); found {
		t.Error("event still present after delete")
	}

	trail := f.trail(t)
	require.Len(t, trail, 2)
	assert.Equal(t, string(domain.SyncLocalOnly), trail[1].FromState)
	assert.Equal(t, "deleted", trail[1].ToState)

	err = f.svc.DeleteEvent(ctx, ev.ID, userActor, time.Time{})
	assert.True(t, domain.IsNotFound(err), "got %v", err)
}

func TestDeleteEventBlockedByNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, err := f.svc.CreateEvent(ctx, CreateEventParams{
		Title:    "standup",
		StartsAt: "2024-07-01T10:00:00Z",
		Actor:    userActor,
	})
	require.NoError(t, err)

	notification := domain.Entity{
		"id":         "nt-1",
		"kind":       "approval_request",
		"entityType": domain.TypeEvent,
		"entityId":   ev.ID,
		"status":     string(domain.NotificationPending),
	}
	require.NoError(t, f.repo.SaveEntity(ctx, domain.TypeNotification, "nt-1", notification))

	err = f.svc.DeleteEvent(ctx, ev.ID, userActor, time.Time{})
	assert.True(t, domain.IsConflict(err), "got %v", err)

	// The failed delete leaves no audit record and keeps the event.
	if _, found, _ := f.repo.GetEntity(ctx, domain.TypeEvent, ev.ID); !found {
		t.Error("event was deleted despite the conflict")
	}
	assert.Len(t, f.trail(t), 1)
}

func TestCreateDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.CreateDraft(ctx, CreateDraftParams{
		Subject: "meeting minutes",
		Body:    "see attached",
		Actor:   userActor,
	})
	require.NoError(t, err)
	assert.Equal(t, "ent-0001", d.ID)
	assert.Equal(t, domain.DraftNew, d.Status)

	entity, found, err := f.repo.GetEntity(ctx, domain.TypeDraft, d.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "meeting minutes", entity["subject"])

	trail := f.trail(t)
	require.Len(t, trail, 1)
	assert.Equal(t, "draft created", trail[0].Reason)

	_, err = f.svc.CreateDraft(ctx, CreateDraftParams{Actor: userActor})
	assert.True(t, domain.IsInvalidRequest(err), "got %v", err)
}
