package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/domain"
	"github.com/roach88/chronicle/internal/testutil"
)

func newTestRecorder() *Recorder {
	clock := testutil.NewClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), time.Minute)
	return NewRecorder(clock.Now, testutil.NewSequenceGenerator("tr"))
}

func validParams() Params {
	return Params{
		EntityType: domain.TypeEvent,
		EntityID:   "e1",
		FromState:  "local_only",
		ToState:    "pending_approval",
		Actor:      domain.Actor{ID: "alice", Kind: domain.ActorUser},
		Reason:     "sync requested",
	}
}

func TestRecord_AssemblesTransition(t *testing.T) {
	rec := newTestRecorder()

	tr, err := rec.Record(validParams())
	require.NoError(t, err)
	assert.Equal(t, "tr-0001", tr.ID)
	assert.Equal(t, domain.TypeEvent, tr.EntityType)
	assert.Equal(t, "e1", tr.EntityID)
	assert.Equal(t, "local_only", tr.FromState)
	assert.Equal(t, "pending_approval", tr.ToState)
	assert.Equal(t, "sync requested", tr.Reason)
	assert.Equal(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), tr.At)
	assert.Nil(t, tr.Metadata)
}

func TestRecord_ExplicitTimestampWins(t *testing.T) {
	rec := newTestRecorder()
	at := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)

	p := validParams()
	p.At = at
	tr, err := rec.Record(p)
	require.NoError(t, err)
	assert.Equal(t, at, tr.At)
}

func TestRecord_ClockAdvancesPerRecord(t *testing.T) {
	rec := newTestRecorder()

	first, err := rec.Record(validParams())
	require.NoError(t, err)
	second, err := rec.Record(validParams())
	require.NoError(t, err)

	assert.True(t, first.At.Before(second.At))
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRecord_CopiesMetadata(t *testing.T) {
	rec := newTestRecorder()
	meta := map[string]string{"notificationId": "n1"}

	p := validParams()
	p.Metadata = meta
	tr, err := rec.Record(p)
	require.NoError(t, err)

	meta["notificationId"] = "mutated"
	assert.Equal(t, "n1", tr.Metadata["notificationId"])
}

func TestRecord_Validation(t *testing.T) {
	rec := newTestRecorder()

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"empty entity type", func(p *Params) { p.EntityType = "" }},
		{"empty entity id", func(p *Params) { p.EntityID = "" }},
		{"empty reason", func(p *Params) { p.Reason = "" }},
		{"empty actor id", func(p *Params) { p.Actor.ID = "" }},
		{"unknown actor kind", func(p *Params) { p.Actor.Kind = "robot" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			_, err := rec.Record(p)
			require.Error(t, err)
			assert.True(t, domain.IsInvalidRequest(err))
		})
	}
}

func TestNewRecorder_NilClockDefaultsToWallClock(t *testing.T) {
	rec := NewRecorder(nil, testutil.NewSequenceGenerator("tr"))

	before := time.Now()
	tr, err := rec.Record(validParams())
	require.NoError(t, err)
	assert.False(t, tr.At.Before(before))
}
