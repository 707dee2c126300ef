package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gt06gateway/internal/core/model"
)

type memSink struct {
	mu   sync.Mutex
	recs []model.FrameRecord
	err  error
}

func (m *memSink) Name() string { return "mem" }

func (m *memSink) Write(_ context.Context, rec model.FrameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return m.err
}

func (m *memSink) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func TestEmitterDeliversToAllSinks(t *testing.T) {
	failing := &memSink{err: errors.New("unavailable")}
	ok := &memSink{}
	e := NewEmitter(8, failing, ok)

	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)

	e.Record(model.FrameRecord{Kind: "login", Serial: 1})
	e.Record(model.FrameRecord{Kind: "heartbeat", Serial: 2})

	require.Eventually(t, func() bool { return ok.len() == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, failing.len(), "a failing sink does not stop delivery")
	assert.Equal(t, uint16(1), ok.recs[0].Serial)

	cancel()
	<-e.Done()
}

func TestEmitterDropsWhenFull(t *testing.T) {
	sink := &memSink{}
	e := NewEmitter(2, sink)

	for i := 0; i < 5; i++ {
		e.Record(model.FrameRecord{Serial: uint16(i)})
	}
	assert.EqualValues(t, 3, e.Dropped())

	// queued records are drained on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Run(ctx)
	assert.Equal(t, 2, sink.len())
}
