// Package checkpoint persists named recovery points over the entity store.
//
// A checkpoint is bookkeeping: it records which entity refs and which audit
// log position define an "as of" moment, but does not freeze entity bodies.
// Recovery transitions the checkpoint and returns the refs in scope; callers
// that want body-level restore layer it on top (see store.Snapshotter).
package checkpoint

import (
	"context"
	"time"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/domain"
	"github.com/roach88/chronicle/internal/store"
)

// Service creates, keeps, and recovers checkpoints.
type Service struct {
	repo store.Repository
	rec  *audit.Recorder
	ids  domain.IDGenerator
}

func New(repo store.Repository, rec *audit.Recorder, ids domain.IDGenerator) *Service {
	return &Service{repo: repo, rec: rec, ids: ids}
}

// CreateParams names a new checkpoint. RollbackTarget may be empty, in which
// case a content hash of the name, refs, and cursor is used.
type CreateParams struct {
	Name           string
	SnapshotRefs   []domain.Ref
	AuditCursor    int64
	RollbackTarget string
	Actor          domain.Actor
	At             time.Time
}

// RecoverResult pairs the recovered checkpoint with the refs the caller
// should re-apply.
type RecoverResult struct {
	Checkpoint domain.Checkpoint
	Refs       []domain.Ref
}

// Create persists a checkpoint in status created. The refs and cursor are
// trusted to have been captured consistently by the caller.
func (s *Service) Create(ctx context.Context, p CreateParams) (domain.Checkpoint, error) {
	if p.Name == "" {
		return domain.Checkpoint{}, domain.NewInvalidRequest("checkpoint name must not be empty")
	}
	if p.AuditCursor < 0 {
		return domain.Checkpoint{}, domain.NewInvalidRequest("audit cursor must not be negative, got %d", p.AuditCursor)
	}

	at := p.At
	if at.IsZero() {
		at = s.rec.Now()
	}
	refs := make([]domain.Ref, len(p.SnapshotRefs))
	copy(refs, p.SnapshotRefs)

	target := p.RollbackTarget
	if target == "" {
		var err error
		target, err = domain.DefaultRollbackTarget(p.Name, refs, p.AuditCursor)
		if err != nil {
			return domain.Checkpoint{}, domain.WrapUnknown("derive rollback target", err)
		}
	}

	cp := domain.Checkpoint{
		ID:             s.ids.NewID(),
		Name:           p.Name,
		Status:         domain.CheckpointCreated,
		SnapshotRefs:   refs,
		AuditCursor:    p.AuditCursor,
		RollbackTarget: target,
		CreatedAt:      at.UTC(),
		UpdatedAt:      at.UTC(),
	}

	err := s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		entity, err := domain.ToEntity(cp)
		if err != nil {
			return domain.WrapUnknown("encode checkpoint", err)
		}
		if err := s.repo.SaveEntity(ctx, domain.TypeCheckpoint, cp.ID, entity); err != nil {
			return err
		}
		return s.record(ctx, audit.Params{
			EntityType: domain.TypeCheckpoint,
			EntityID:   cp.ID,
			ToState:    string(domain.CheckpointCreated),
			Actor:      p.Actor,
			Reason:     "checkpoint created: " + p.Name,
			At:         at,
			Metadata:   map[string]string{"rollbackTarget": target},
		})
	})
	if err != nil {
		return domain.Checkpoint{}, err
	}
	return cp, nil
}

// Keep transitions a checkpoint from created to kept.
func (s *Service) Keep(ctx context.Context, checkpointID string, actor domain.Actor, at time.Time) (domain.Checkpoint, error) {
	var kept domain.Checkpoint
	err := s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		entity, cp, err := s.load(ctx, checkpointID)
		if err != nil {
			return err
		}
		if cp.Status != domain.CheckpointCreated {
			return domain.NewConflict("checkpoint %q status is %q, expected %q", checkpointID, cp.Status, domain.CheckpointCreated)
		}
		if at.IsZero() {
			at = s.rec.Now()
		}

		entity["status"] = string(domain.CheckpointKept)
		entity["updatedAt"] = at.UTC().Format(time.RFC3339Nano)
		if err := s.repo.SaveEntity(ctx, domain.TypeCheckpoint, checkpointID, entity); err != nil {
			return err
		}
		if err := s.record(ctx, audit.Params{
			EntityType: domain.TypeCheckpoint,
			EntityID:   checkpointID,
			FromState:  string(domain.CheckpointCreated),
			ToState:    string(domain.CheckpointKept),
			Actor:      actor,
			Reason:     "checkpoint kept: " + cp.Name,
			At:         at,
		}); err != nil {
			return err
		}

		cp.Status = domain.CheckpointKept
		cp.UpdatedAt = at.UTC()
		kept = cp
		return nil
	})
	if err != nil {
		return domain.Checkpoint{}, err
	}
	return kept, nil
}

// Recover transitions a checkpoint to recovered and returns the refs that
// were fixed at creation. Recovering an already-recovered checkpoint is an
// idempotent no-op: the same refs come back and no transition is appended.
func (s *Service) Recover(ctx context.Context, checkpointID string, actor domain.Actor, at time.Time) (RecoverResult, error) {
	var result RecoverResult
	err := s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		entity, cp, err := s.load(ctx, checkpointID)
		if err != nil {
			return err
		}
		if cp.Status == domain.CheckpointRecovered {
			result = RecoverResult{Checkpoint: cp, Refs: cp.SnapshotRefs}
			return nil
		}
		if at.IsZero() {
			at = s.rec.Now()
		}

		from := cp.Status
		entity["status"] = string(domain.CheckpointRecovered)
		entity["updatedAt"] = at.UTC().Format(time.RFC3339Nano)
		if err := s.repo.SaveEntity(ctx, domain.TypeCheckpoint, checkpointID, entity); err != nil {
			return err
		}
		if err := s.record(ctx, audit.Params{
			EntityType: domain.TypeCheckpoint,
			EntityID:   checkpointID,
			FromState:  string(from),
			ToState:    string(domain.CheckpointRecovered),
			Actor:      actor,
			Reason:     "checkpoint recovered: " + cp.Name,
			At:         at,
			Metadata:   map[string]string{"rollbackTarget": cp.RollbackTarget},
		}); err != nil {
			return err
		}

		cp.Status = domain.CheckpointRecovered
		cp.UpdatedAt = at.UTC()
		result = RecoverResult{Checkpoint: cp, Refs: cp.SnapshotRefs}
		return nil
	})
	if err != nil {
		return RecoverResult{}, err
	}
	return result, nil
}

// Get returns a checkpoint by id.
func (s *Service) Get(ctx context.Context, checkpointID string) (domain.Checkpoint, error) {
	_, cp, err := s.load(ctx, checkpointID)
	return cp, err
}

func (s *Service) load(ctx context.Context, checkpointID string) (domain.Entity, domain.Checkpoint, error) {
	entity, found, err := s.repo.GetEntity(ctx, domain.TypeCheckpoint, checkpointID)
	if err != nil {
		return nil, domain.Checkpoint{}, domain.WrapUnknown("load checkpoint", err)
	}
	if !found {
		return nil, domain.Checkpoint{}, domain.NewNotFound("checkpoint %q does not exist", checkpointID)
	}
	cp, err := domain.CheckpointFromEntity(entity)
	if err != nil {
		return nil, domain.Checkpoint{}, domain.WrapUnknown("decode checkpoint", err)
	}
	return entity, cp, nil
}

func (s *Service) record(ctx context.Context, p audit.Params) error {
	tr, err := s.rec.Record(p)
	if err != nil {
		return err
	}
	if err := s.repo.AppendTransition(ctx, tr); err != nil {
		return domain.WrapUnknown("append audit transition", err)
	}
	return nil
}
