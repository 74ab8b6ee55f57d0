package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "certverify/pkg/platform/audit"
	"certverify/pkg/platform/audit/store/memory"
)

func TestRingBufferDropsOldest(t *testing.T) {
	b := NewRingBuffer(2)
	b.Enqueue(audit.Event{DocumentID: "1"})
	b.Enqueue(audit.Event{DocumentID: "2"})
	b.Enqueue(audit.Event{DocumentID: "3"})

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, int64(1), b.Dropped())

	batch := b.DequeueBatch(10)
	require.Len(t, batch, 2)
	assert.Equal(t, "2", batch[0].DocumentID)
	assert.Equal(t, "3", batch[1].DocumentID)
	assert.Nil(t, b.DequeueBatch(1))
}

func TestWorkerFlushDeliversToSink(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	w := NewWorker(store, WithBatchSize(2))

	for _, id := range []string{"a", "b", "a"} {
		require.NoError(t, w.Emit(ctx, audit.Event{Action: audit.ActionVerified, DocumentID: id}))
	}
	assert.Equal(t, 3, w.Pending())

	w.Flush(ctx)
	assert.Equal(t, 0, w.Pending())

	events, err := store.ListByDocument(ctx, "a")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.NotEqual(t, events[0].ID, events[1].ID)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, audit.SeverityInfo, events[0].Severity)
}

type failingSink struct{ calls int }

func (f *failingSink) Emit(context.Context, audit.Event) error {
	f.calls++
	return errors.New("broker down")
}

func TestWorkerSurvivesSinkErrors(t *testing.T) {
	sink := &failingSink{}
	w := NewWorker(sink)
	require.NoError(t, w.Emit(context.Background(), audit.Event{Action: audit.ActionRejected}))
	w.Flush(context.Background())
	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, 0, w.Pending())
}

func TestRunFlushesOnShutdown(t *testing.T) {
	store := memory.NewInMemoryStore()
	w := NewWorker(store, WithFlushInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, w.Emit(ctx, audit.Event{Action: audit.ActionVerified, DocumentID: "doc"}))
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	events, err := store.ListByDocument(context.Background(), "doc")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
