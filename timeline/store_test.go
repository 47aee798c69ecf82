package timeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStampsTimestampAndRecentReturnsNewestNOldestFirst(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		s.Record(TaskEvent{TaskID: fmt.Sprintf("t%d", i), Stage: StageQueued})
	}

	recent := s.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "t2", recent[0].TaskID)
	assert.Equal(t, "t4", recent[2].TaskID)
	for _, e := range recent {
		assert.False(t, e.Timestamp.IsZero(), "Record must stamp a zero Timestamp")
	}
}

func TestRecentWithNonPositiveNReturnsEverything(t *testing.T) {
	s := NewStore()
	s.Record(TaskEvent{Stage: StageQueued})
	s.Record(TaskEvent{Stage: StageRunning})

	assert.Len(t, s.Recent(0), 2)
	assert.Len(t, s.Recent(-1), 2)
	assert.Len(t, s.Recent(100), 2)
}

func TestSinceFiltersByTimestamp(t *testing.T) {
	s := NewStore()
	base := time.Now()
	s.Record(TaskEvent{TaskID: "old", Stage: StageQueued, Timestamp: base.Add(-time.Minute)})
	s.Record(TaskEvent{TaskID: "new", Stage: StageSettled, Timestamp: base.Add(time.Minute)})

	got := s.Since(base)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].TaskID)
}

func TestRecordEvictsOldestAtCapacity(t *testing.T) {
	s := &Store{cap: 3}
	for i := 0; i < 5; i++ {
		s.Record(TaskEvent{TaskID: fmt.Sprintf("t%d", i), Stage: StageQueued})
	}

	all := s.Recent(0)
	require.Len(t, all, 3)
	assert.Equal(t, "t2", all[0].TaskID)
	assert.Equal(t, "t4", all[2].TaskID)
}
