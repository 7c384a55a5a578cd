package supervisor

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	errs map[string]error
}

func (s *recordingSink) Report(task string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs == nil {
		s.errs = make(map[string]error)
	}
	s.errs[task] = err
}

func TestPoolPanicIsIsolated(t *testing.T) {
	sink := &recordingSink{}
	p := NewPool(4, sink)

	var ran atomic.Int32
	require.NoError(t, p.Go(context.Background(), "bad", func(context.Context) error {
		panic("boom")
	}))
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Go(context.Background(), "good", func(context.Context) error {
			ran.Add(1)
			return nil
		}))
	}
	p.Wait()

	assert.Equal(t, int32(3), ran.Load())
	var pe *PanicError
	require.ErrorAs(t, sink.errs["bad"], &pe)
	assert.Equal(t, "boom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.NotContains(t, sink.errs, "good")
	assert.Equal(t, int64(0), p.InFlight())
}

func TestPoolReportsTaskErrors(t *testing.T) {
	sink := &recordingSink{}
	p := NewPool(1, sink)
	want := errors.New("dial tcp: connection refused")
	require.NoError(t, p.Go(context.Background(), "req-1", func(context.Context) error { return want }))
	p.Wait()
	assert.ErrorIs(t, sink.errs["req-1"], want)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(2, &recordingSink{})
	var running, peak atomic.Int32
	release := make(chan struct{})

	for i := 0; i < 2; i++ {
		require.NoError(t, p.Go(context.Background(), "t", func(context.Context) error {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			running.Add(-1)
			return nil
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Go(ctx, "blocked", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	p.Wait()
	assert.Equal(t, int32(2), peak.Load())
}

func TestPoolWaitTimeout(t *testing.T) {
	p := NewPool(1, &recordingSink{})
	release := make(chan struct{})
	require.NoError(t, p.Go(context.Background(), "slow", func(context.Context) error {
		<-release
		return nil
	}))
	assert.False(t, p.WaitTimeout(20*time.Millisecond))
	close(release)
	assert.True(t, p.WaitTimeout(time.Second))
}

func TestLogSinkCountsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))
	sink.Report("req-1", errors.New("timeout"))
	sink.Report("req-2", &PanicError{Value: "nil map", Stack: []byte("goroutine 1")})

	assert.Equal(t, uint64(2), sink.Reported())
	assert.Equal(t, uint64(1), sink.Panics())
	assert.Contains(t, buf.String(), `"task":"req-1"`)
	assert.Contains(t, buf.String(), "panic: nil map")
}
