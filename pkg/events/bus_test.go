package events

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragshield/ragshield/pkg/models"
)

func testBus(t *testing.T, subscriberBuffer int) *Bus {
	t.Helper()
	b, err := NewBus(filepath.Join(t.TempDir(), "logs", "events.jsonl"), 64, subscriberBuffer)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func receive(t *testing.T, ch <-chan models.Event) models.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "subscriber channel closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return models.Event{}
	}
}

func TestPublishRejectsUnknownCode(t *testing.T) {
	b := testBus(t, 8)

	_, err := b.Publish("RAG-9999", models.LevelInfo, CategorySystem, "nope", "", nil)
	assert.ErrorIs(t, err, ErrUnknownCode)
	assert.Zero(t, b.Count())
}

func TestPublishAssignsAscendingIDs(t *testing.T) {
	b := testBus(t, 8)

	id1, err := b.Publish(CodeQueryReceived, models.LevelInfo, CategoryIntegrity, "first", "q1", nil)
	require.NoError(t, err)
	id2, err := b.Publish(CodeRetrievalCompleted, models.LevelInfo, CategoryIntegrity, "second", "q1", nil)
	require.NoError(t, err)

	assert.Greater(t, id2, id1)
}

func TestSubscriberSeesEventsInPublishOrder(t *testing.T) {
	b := testBus(t, 8)
	ch, cancel := b.Subscribe()
	defer cancel()

	codes := []string{CodeQueryReceived, CodeRetrievalCompleted, CodeDocQuarantined, CodeGenerationDone}
	for _, code := range codes {
		_, err := b.Publish(code, models.LevelInfo, CategoryIntegrity, "m", "q1", nil)
		require.NoError(t, err)
	}

	for _, expected := range codes {
		ev := receive(t, ch)
		assert.Equal(t, expected, ev.Code)
		assert.Equal(t, "q1", ev.CorrelationID)
	}
}

func TestRecentReturnsReverseChronological(t *testing.T) {
	b := testBus(t, 8)
	ch, cancel := b.Subscribe()
	defer cancel()

	_, err := b.Publish(CodeQueryReceived, models.LevelInfo, CategoryIntegrity, "first", "q1", nil)
	require.NoError(t, err)
	_, err = b.Publish(CodeDocQuarantined, models.LevelCritical, CategoryQuarantine, "second", "q1", nil)
	require.NoError(t, err)

	// Wait for the appender to persist both before reading the log.
	receive(t, ch)
	receive(t, ch)

	recent, err := b.Recent(10, "")
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, CodeDocQuarantined, recent[0].Code)
	assert.Equal(t, CodeQueryReceived, recent[1].Code)
}

func TestRecentFiltersByLevel(t *testing.T) {
	b := testBus(t, 8)
	ch, cancel := b.Subscribe()
	defer cancel()

	_, err := b.Publish(CodeQueryReceived, models.LevelInfo, CategoryIntegrity, "info", "q1", nil)
	require.NoError(t, err)
	_, err = b.Publish(CodeDocQuarantined, models.LevelCritical, CategoryQuarantine, "crit", "q1", nil)
	require.NoError(t, err)
	receive(t, ch)
	receive(t, ch)

	critical, err := b.Recent(10, models.LevelCritical)
	require.NoError(t, err)
	require.Len(t, critical, 1)
	assert.Equal(t, CodeDocQuarantined, critical[0].Code)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	b := testBus(t, 1)
	ch, cancel := b.Subscribe()
	defer cancel()

	// Publish without reading: the buffer of one fills and a later
	// fan-out closes the channel.
	for i := 0; i < 10; i++ {
		_, err := b.Publish(CodeQueryReceived, models.LevelInfo, CategoryIntegrity, "m", "q1", nil)
		require.NoError(t, err)
	}

	// Wait until the appender has processed every publish before reading.
	require.Eventually(t, func() bool { return b.Count() == 10 },
		2*time.Second, 10*time.Millisecond)

	// At most one event is buffered; the channel must already be closed
	// behind it.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // dropped as expected
			}
		case <-deadline:
			t.Fatal("slow subscriber was never dropped")
		}
	}
}

func TestEventIDsContinueAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	b1, err := NewBus(path, 8, 8)
	require.NoError(t, err)
	id1, err := b1.Publish(CodeQueryReceived, models.LevelInfo, CategoryIntegrity, "m", "", nil)
	require.NoError(t, err)
	b1.Close()

	b2, err := NewBus(path, 8, 8)
	require.NoError(t, err)
	defer b2.Close()
	id2, err := b2.Publish(CodeQueryReceived, models.LevelInfo, CategoryIntegrity, "m", "", nil)
	require.NoError(t, err)

	assert.Greater(t, id2, id1)
}

func TestPublishAfterCloseFails(t *testing.T) {
	b, err := NewBus(filepath.Join(t.TempDir(), "events.jsonl"), 8, 8)
	require.NoError(t, err)
	b.Close()

	_, err = b.Publish(CodeQueryReceived, models.LevelInfo, CategoryIntegrity, "m", "", nil)
	assert.ErrorIs(t, err, ErrClosed)
}
