package workers

import (
	"chat-core/mocks"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestFlushWorker_FlushesOnEveryTick(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	flusherMock := mocks.NewMockFlusher(ctrl)

	var flushes atomic.Int32
	flusherMock.EXPECT().
		Flush().
		DoAndReturn(func() error {
			flushes.Add(1)
			return nil
		}).
		AnyTimes()

	worker := NewFlushWorker(log, flusherMock, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// When the worker runs until its context expires
	req.NoError(worker.Run(ctx))

	// Then several ticks landed, plus the final drain
	req.GreaterOrEqual(flushes.Load(), int32(3))
}

func TestFlushWorker_FinalFlushOnShutdown(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	flusherMock := mocks.NewMockFlusher(ctrl)

	// Given an interval far longer than the test: the only Flush call
	// can come from the shutdown path
	flusherMock.EXPECT().Flush().Return(nil).Times(1)

	worker := NewFlushWorker(log, flusherMock, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(500 * time.Millisecond):
		req.Fail("Worker should have drained and returned after cancel")
	}
}

func TestFlushWorker_SurvivesFailedFlush(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	flusherMock := mocks.NewMockFlusher(ctrl)

	var flushes atomic.Int32
	flusherMock.EXPECT().
		Flush().
		DoAndReturn(func() error {
			flushes.Add(1)
			return errors.New("disk full")
		}).
		AnyTimes()

	worker := NewFlushWorker(log, flusherMock, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	// Then a failing store never turns into a worker error
	req.NoError(worker.Run(ctx))
	req.GreaterOrEqual(flushes.Load(), int32(2))
}
