package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func (s *captureSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func validEvent(stage Stage) Event {
	return Event{
		JobID:      UUIDToBytes(uuid.New()),
		TS:         time.Now().UTC(),
		Stage:      stage,
		County:     "duval",
		CaseNumber: "2026-TD-000123",
	}
}

func TestHubFlushesOnClose(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{FlushInterval: time.Hour}, sink)

	for i := 0; i < 10; i++ {
		hub.Emit(validEvent(StageRecordUpsert))
	}
	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 10, sink.total())
	require.True(t, sink.closed)
}

func TestHubFlushesOnBatchSize(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatch: 5, FlushInterval: time.Hour}, sink)
	defer hub.Close(context.Background())

	for i := 0; i < 5; i++ {
		hub.Emit(validEvent(StagePageDone))
	}
	require.Eventually(t, func() bool { return sink.total() == 5 }, time.Second, 10*time.Millisecond)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)

	hub.Emit(Event{Stage: StageJobStart}) // missing id and timestamp
	hub.Emit(Event{JobID: UUIDToBytes(uuid.New()), TS: time.Now(), Stage: "BOGUS"})
	hub.Emit(validEvent(StageJobStart))

	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 1, sink.total())
}

func TestHubEmitAfterCloseIsIgnored(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(validEvent(StageJobStart))
	require.Zero(t, sink.total())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	base := validEvent(StageRecordVerdict)
	require.NoError(t, base.Validate())

	noCase := base
	noCase.CaseNumber = ""
	require.Error(t, noCase.Validate())

	negDur := base
	negDur.Dur = -time.Second
	require.Error(t, negDur.Validate())

	pageDone := validEvent(StagePageDone)
	pageDone.CaseNumber = ""
	require.NoError(t, pageDone.Validate(), "page events are not case scoped")
}
