// Package supervisor runs one goroutine per task behind a panic boundary and
// funnels every unexpected failure into a single ErrorSink.
package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrorSink receives failures from every task in the process.
type ErrorSink interface {
	Report(task string, err error)
}

// PanicError is reported when a task panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// LogSink logs reported failures at error level.
type LogSink struct {
	log      zerolog.Logger
	reported atomic.Uint64
	panics   atomic.Uint64
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Report(task string, err error) {
	s.reported.Add(1)
	evt := s.log.Error().Str("task", task).Err(err)
	if pe, ok := err.(*PanicError); ok {
		s.panics.Add(1)
		evt = evt.Bytes("stack", pe.Stack)
	}
	evt.Msg("task failed")
}

// Reported returns the number of failures seen so far.
func (s *LogSink) Reported() uint64 {
	return s.reported.Load()
}

// Panics returns how many of those were panics.
func (s *LogSink) Panics() uint64 {
	return s.panics.Load()
}

// Pool bounds the number of concurrently running tasks.
type Pool struct {
	sem      chan struct{}
	sink     ErrorSink
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// NewPool allows up to size concurrent tasks.
func NewPool(size int, sink ErrorSink) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size), sink: sink}
}

// Go waits for a free slot and starts task in its own goroutine. It returns
// ctx.Err() if ctx ends before a slot frees up; the task is then not run.
// A returned error or a panic from task is reported to the sink and goes no
// further.
func (p *Pool) Go(ctx context.Context, name string, task func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.sem <- struct{}{}:
	}
	p.inFlight.Add(1)
	p.wg.Add(1)
	go p.run(ctx, name, task)
	return nil
}

func (p *Pool) run(ctx context.Context, name string, task func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			p.sink.Report(name, &PanicError{Value: r, Stack: debug.Stack()})
		}
		p.inFlight.Add(-1)
		<-p.sem
		p.wg.Done()
	}()
	if err := task(ctx); err != nil {
		p.sink.Report(name, err)
	}
}

// InFlight returns the number of running tasks.
func (p *Pool) InFlight() int64 {
	return p.inFlight.Load()
}

// Wait blocks until every started task returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// WaitTimeout waits at most d and reports whether all tasks finished.
// Tasks still running are abandoned, not stopped.
func (p *Pool) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
