package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/chronicle/internal/domain"
	"github.com/roach88/chronicle/internal/store"
)

func openTestStore(t *testing.T, rules ...store.ReferenceRule) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chronicle.db"), rules...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testTransition(id, entityType, entityID string) domain.Transition {
	return domain.Transition{
		ID:         id,
		EntityType: entityType,
		EntityID:   entityID,
		FromState:  "",
		ToState:    "local_only",
		Actor:      domain.Actor{ID: "tester", Kind: domain.ActorUser},
		Reason:     "created",
		At:         time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestOpenCreatesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chronicle.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SaveEntity(ctx, "event", "ev-1", domain.Entity{"id": "ev-1", "title": "standup"}); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening must find the persisted entity and re-apply the schema
	// without error.
	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, found, err := s.GetEntity(ctx, "event", "ev-1")
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if !found || got["title"] != "standup" {
		t.Errorf("after reopen got %v found=%v", got, found)
	}
}

func TestSaveEntityValidatesAndReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveEntity(ctx, "", "ev-1", domain.Entity{}); !domain.IsInvalidRequest(err) {
		t.Errorf("empty type: got %v, want invalid_request", err)
	}
	if err := s.SaveEntity(ctx, "event", "", domain.Entity{}); !domain.IsInvalidRequest(err) {
		t.Errorf("empty id: got %v, want invalid_request", err)
	}

	if err := s.SaveEntity(ctx, "event", "ev-1", domain.Entity{"id": "ev-1", "title": "old"}); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}
	if err := s.SaveEntity(ctx, "event", "ev-1", domain.Entity{"id": "ev-1", "title": "new"}); err != nil {
		t.Fatalf("SaveEntity replace: %v", err)
	}

	got, _, err := s.GetEntity(ctx, "event", "ev-1")
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got["title"] != "new" {
		t.Errorf("title = %v, want new", got["title"])
	}
}

func TestGetEntityPreservesNumbers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Round-tripping through the JSON body column must not lose precision
	// on integers beyond float64's exact range.
	if err := s.SaveEntity(ctx, "event", "ev-1", domain.Entity{"id": "ev-1", "seq": int64(9007199254740993)}); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}
	got, _, err := s.GetEntity(ctx, "event", "ev-1")
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	n, ok := got["seq"].(interface{ String() string })
	if !ok || n.String() != "9007199254740993" {
		t.Errorf("seq = %#v, want json.Number 9007199254740993", got["seq"])
	}
}

func TestDeleteEntity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveEntity(ctx, "event", "ev-1", domain.Entity{"id": "ev-1"}); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}
	if err := s.DeleteEntity(ctx, "event", "ev-1"); err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}
	if _, found, _ := s.GetEntity(ctx, "event", "ev-1"); found {
		t.Error("entity still present after delete")
	}
	if err := s.DeleteEntity(ctx, "event", "ev-1"); err != nil {
		t.Errorf("delete absent: %v", err)
	}
}

func TestListEntitiesByteOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// COLLATE BINARY keeps ordering byte-wise, matching the in-memory
	// backend; "Z" sorts before "a".
	for _, id := range []string{"a", "Z", "b"} {
		if err := s.SaveEntity(ctx, "event", id, domain.Entity{"id": id}); err != nil {
			t.Fatalf("SaveEntity %s: %v", id, err)
		}
	}
	list, err := s.ListEntities(ctx, "event")
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len(list) = %d, want 3", len(list))
	}
	for i, want := range []string{"Z", "a", "b"} {
		if list[i]["id"] != want {
			t.Errorf("list[%d].id = %v, want %s", i, list[i]["id"], want)
		}
	}
}

func TestEntityTypes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveEntity(ctx, "event", "ev-1", domain.Entity{"id": "ev-1"}); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}
	if err := s.SaveEntity(ctx, "draft", "dr-1", domain.Entity{"id": "dr-1"}); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}

	types, err := s.EntityTypes(ctx)
	if err != nil {
		t.Fatalf("EntityTypes: %v", err)
	}
	if len(types) != 2 || types[0] != "draft" || types[1] != "event" {
		t.Errorf("types = %v, want [draft event]", types)
	}
}

func TestReferenceRules(t *testing.T) {
	s := openTestStore(t, store.ReferenceRule{FromType: "notification", Field: "entityId", ToType: "event"})
	ctx := context.Background()

	err := s.SaveEntity(ctx, "notification", "nt-1", domain.Entity{"id": "nt-1", "entityId": "ev-missing"})
	if !domain.IsConflict(err) {
		t.Fatalf("dangling save: got %v, want conflict", err)
	}
	if _, found, _ := s.GetEntity(ctx, "notification", "nt-1"); found {
		t.Error("rejected save left a partial write behind")
	}

	if err := s.SaveEntity(ctx, "event", "ev-1", domain.Entity{"id": "ev-1"}); err != nil {
		t.Fatalf("SaveEntity event: %v", err)
	}
	if err := s.SaveEntity(ctx, "notification", "nt-1", domain.Entity{"id": "nt-1", "entityId": "ev-1"}); err != nil {
		t.Fatalf("save with valid reference: %v", err)
	}

	if err := s.DeleteEntity(ctx, "event", "ev-1"); !domain.IsConflict(err) {
		t.Fatalf("delete referenced: got %v, want conflict", err)
	}
	if err := s.DeleteEntity(ctx, "notification", "nt-1"); err != nil {
		t.Fatalf("delete referrer: %v", err)
	}
	if err := s.DeleteEntity(ctx, "event", "ev-1"); err != nil {
		t.Errorf("delete after referrer removed: %v", err)
	}
}

func TestAppendAndListTransitions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tr1 := testTransition("tr-1", "event", "ev-1")
	tr1.Metadata = map[string]string{"executionId": "exec-1"}
	if err := s.AppendTransition(ctx, tr1); err != nil {
		t.Fatalf("AppendTransition: %v", err)
	}
	if err := s.AppendTransition(ctx, testTransition("tr-2", "event", "ev-1")); err != nil {
		t.Fatalf("AppendTransition: %v", err)
	}
	if err := s.AppendTransition(ctx, testTransition("tr-3", "draft", "dr-1")); err != nil {
		t.Fatalf("AppendTransition: %v", err)
	}

	all, err := s.ListTransitions(ctx, store.TransitionFilter{})
	if err != nil {
		t.Fatalf("ListTransitions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	for i, want := range []string{"tr-1", "tr-2", "tr-3"} {
		if all[i].ID != want {
			t.Errorf("all[%d].ID = %s, want %s", i, all[i].ID, want)
		}
	}
	if all[0].Metadata["executionId"] != "exec-1" {
		t.Errorf("metadata = %v, want executionId exec-1", all[0].Metadata)
	}
	if !all[0].At.Equal(tr1.At) {
		t.Errorf("at = %v, want %v", all[0].At, tr1.At)
	}
	if all[1].Metadata != nil {
		t.Errorf("tr-2 metadata = %v, want nil", all[1].Metadata)
	}

	filtered, err := s.ListTransitions(ctx, store.TransitionFilter{EntityType: "event", EntityID: "ev-1"})
	if err != nil {
		t.Fatalf("ListTransitions filtered: %v", err)
	}
	if len(filtered) != 2 {
		t.Errorf("len(filtered) = %d, want 2", len(filtered))
	}
}

func TestAppendTransitionDuplicateIDIsNoOp(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tr := testTransition("tr-1", "event", "ev-1")
	if err := s.AppendTransition(ctx, tr); err != nil {
		t.Fatalf("AppendTransition: %v", err)
	}

	replay := tr
	replay.Reason = "replayed with different body"
	if err := s.AppendTransition(ctx, replay); err != nil {
		t.Fatalf("replay append: %v", err)
	}

	all, err := s.ListTransitions(ctx, store.TransitionFilter{})
	if err != nil {
		t.Fatalf("ListTransitions: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len(all) = %d, want 1", len(all))
	}
	if all[0].Reason != "created" {
		t.Errorf("reason = %q, want the original record kept", all[0].Reason)
	}
}

func TestWithTransactionCommitsAndRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.SaveEntity(ctx, "event", "ev-1", domain.Entity{"id": "ev-1"}); err != nil {
			return err
		}
		return s.AppendTransition(ctx, testTransition("tr-1", "event", "ev-1"))
	})
	if err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}
	if _, found, _ := s.GetEntity(ctx, "event", "ev-1"); !found {
		t.Error("committed entity missing")
	}

	boom := errors.New("boom")
	err = s.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.SaveEntity(ctx, "event", "ev-1", domain.Entity{"id": "ev-1", "title": "during"}); err != nil {
			return err
		}
		if err := s.SaveEntity(ctx, "event", "ev-2", domain.Entity{"id": "ev-2"}); err != nil {
			return err
		}
		if err := s.AppendTransition(ctx, testTransition("tr-2", "event", "ev-2")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTransaction error = %v, want boom", err)
	}

	got, found, _ := s.GetEntity(ctx, "event", "ev-1")
	if !found || got["title"] != nil {
		t.Errorf("ev-1 after rollback = %v found=%v", got, found)
	}
	if _, found, _ := s.GetEntity(ctx, "event", "ev-2"); found {
		t.Error("ev-2 survived rollback")
	}
	trail, _ := s.ListTransitions(ctx, store.TransitionFilter{})
	if len(trail) != 1 {
		t.Errorf("len(trail) = %d after rollback, want 1", len(trail))
	}
}

func TestNestedTransactionSharesAncestorAtomicity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.SaveEntity(ctx, "event", "ev-1", domain.Entity{"id": "ev-1"}); err != nil {
			return err
		}
		if err := s.WithTransaction(ctx, func(ctx context.Context) error {
			return s.SaveEntity(ctx, "event", "ev-2", domain.Entity{"id": "ev-2"})
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTransaction error = %v, want boom", err)
	}
	if _, found, _ := s.GetEntity(ctx, "event", "ev-1"); found {
		t.Error("outer write survived rollback")
	}
	if _, found, _ := s.GetEntity(ctx, "event", "ev-2"); found {
		t.Error("nested write survived ancestor rollback")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := openTestStore(t)
	ctx := context.Background()

	if err := src.SaveEntity(ctx, "event", "ev-1", domain.Entity{"id": "ev-1", "title": "standup"}); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}
	if err := src.AppendTransition(ctx, testTransition("tr-1", "event", "ev-1")); err != nil {
		t.Fatalf("AppendTransition: %v", err)
	}

	path := filepath.Join(t.TempDir(), "state.snapshot.json")
	if err := src.PersistSnapshot(ctx, path); err != nil {
		t.Fatalf("PersistSnapshot: %v", err)
	}

	dst := openTestStore(t)
	if err := dst.LoadSnapshot(ctx, path); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	got, found, _ := dst.GetEntity(ctx, "event", "ev-1")
	if !found || got["title"] != "standup" {
		t.Errorf("restored entity = %v found=%v", got, found)
	}
	trail, _ := dst.ListTransitions(ctx, store.TransitionFilter{})
	if len(trail) != 1 || trail[0].ID != "tr-1" {
		t.Errorf("restored trail = %v, want one tr-1", trail)
	}

	// Importing the same snapshot again must not duplicate the trail.
	if err := dst.LoadSnapshot(ctx, path); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	trail, _ = dst.ListTransitions(ctx, store.TransitionFilter{})
	if len(trail) != 1 {
		t.Errorf("len(trail) = %d after re-import, want 1", len(trail))
	}
}
