// Package conflict finds temporal overlaps between local, not-yet-synced
// events. Detection is a pure function over the repository's event
// collection; it never writes.
package conflict

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/chronicle/internal/domain"
	"github.com/roach88/chronicle/internal/store"
)

// epsilon is the span assigned to events with no end time, giving them the
// smallest non-empty half-open interval containing their start.
const epsilon = time.Nanosecond

// Pair is one unordered overlap, reported with First.ID < Second.ID in global
// mode, and First fixed to the target in single-target mode.
type Pair struct {
	First  domain.Event
	Second domain.Event
}

// Detector reads events from a repository and reports interval overlaps.
type Detector struct {
	repo store.Repository
}

// New creates a detector over the given repository.
func New(repo store.Repository) *Detector {
	return &Detector{repo: repo}
}

// candidate is an event with its parsed [start, end) interval.
type candidate struct {
	event domain.Event
	start time.Time
	end   time.Time
}

// overlaps reports whether two half-open intervals intersect.
func (c candidate) overlaps(other candidate) bool {
	return c.start.Before(other.end) && other.start.Before(c.end)
}

// Detect returns every pairwise overlap among local events, ordered by the
// pair's first then second identifiers.
func (d *Detector) Detect(ctx context.Context) ([]Pair, error) {
	candidates, err := d.candidates(ctx)
	if err != nil {
		return nil, err
	}

	var pairs []Pair
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[i].overlaps(candidates[j]) {
				pairs = append(pairs, Pair{First: candidates[i].event, Second: candidates[j].event})
			}
		}
	}
	return pairs, nil
}

// DetectFor returns overlaps against one target event, ordered by the other
// party's identifier. A missing target is not_found; a target that is synced
// or carries an invalid range has no conflicts by definition.
func (d *Detector) DetectFor(ctx context.Context, eventID string) ([]Pair, error) {
	if _, found, err := d.repo.GetEntity(ctx, domain.TypeEvent, eventID); err != nil {
		return nil, err
	} else if !found {
		return nil, domain.NewNotFound("event %q does not exist", eventID)
	}

	candidates, err := d.candidates(ctx)
	if err != nil {
		return nil, err
	}

	var target *candidate
	for i := range candidates {
		if candidates[i].event.ID == eventID {
			target = &candidates[i]
			break
		}
	}
	if target == nil {
		return nil, nil
	}

	var pairs []Pair
	for _, c := range candidates {
		if c.event.ID == eventID {
			continue
		}
		if target.overlaps(c) {
			pairs = append(pairs, Pair{First: target.event, Second: c.event})
		}
	}
	return pairs, nil
}

// candidates loads all events that are still subject to local conflict
// detection: events already synced to an external system are excluded, as
// are events whose interval cannot be parsed or whose end precedes its start.
// The result is ordered by event id so pair enumeration is deterministic.
func (d *Detector) candidates(ctx context.Context) ([]candidate, error) {
	entities, err := d.repo.ListEntities(ctx, domain.TypeEvent)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	var out []candidate
	for _, e := range entities {
		ev, err := domain.EventFromEntity(e)
		if err != nil {
			continue
		}
		if ev.SyncState == domain.SyncSynced {
			continue
		}
		start, err := time.Parse(time.RFC3339, ev.StartsAt)
		if err != nil {
			continue
		}
		end := start.Add(epsilon)
		if ev.EndsAt != "" {
			end, err = time.Parse(time.RFC3339, ev.EndsAt)
			if err != nil || end.Before(start) {
				continue
			}
		}
		out = append(out, candidate{event: ev, start: start, end: end})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].event.ID < out[j].event.ID })
	return out, nil
}
