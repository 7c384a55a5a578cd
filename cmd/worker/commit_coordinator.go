package main

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"link-resolver/internal/queue"
)

// flushTimeout bounds the final commits once the coordinator is told to stop.
const flushTimeout = 5 * time.Second

// commitCoordinator buffers finished messages per partition and commits them in
// offset order, so an offset is never committed while an earlier one is still
// being resolved.
type commitCoordinator struct {
	reader     queue.MessageReader
	commitCh   <-chan kafka.Message
	metrics    *workerMetrics
	log        zerolog.Logger
	mu         sync.Mutex                      // guards nextOffset and pending
	nextOffset map[int]int64                   // per partition: lowest offset not yet committed
	pending    map[int]map[int64]kafka.Message // per partition: finished, uncommitted messages
}

func newCommitCoordinator(reader queue.MessageReader, commitCh <-chan kafka.Message, metrics *workerMetrics, log zerolog.Logger) *commitCoordinator {
	return &commitCoordinator{
		reader:     reader,
		commitCh:   commitCh,
		metrics:    metrics,
		log:        log,
		nextOffset: make(map[int]int64),
		pending:    make(map[int]map[int64]kafka.Message),
	}
}

// run commits until commitCh is closed or ctx ends, then flushes what it can.
func (c *commitCoordinator) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			c.flush(ctx)
			return
		case msg, ok := <-c.commitCh:
			if !ok {
				c.flush(ctx)
				return
			}
			c.enqueue(msg)
			c.drain(ctx, msg.Partition)
		}
	}
}

// track records msg as fetched. It must be called from the fetch loop before
// msg is handed to a task, so a partition's commits start at the lowest offset
// dispatched rather than the first one to finish.
func (c *commitCoordinator) track(msg kafka.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next, ok := c.nextOffset[msg.Partition]; !ok || msg.Offset < next {
		c.nextOffset[msg.Partition] = msg.Offset
	}
}

// enqueue records msg as finished. Messages that were never tracked wait in
// pending until their partition's commits reach them.
func (c *commitCoordinator) enqueue(msg kafka.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := msg.Partition
	if c.pending[p] == nil {
		c.pending[p] = make(map[int64]kafka.Message)
	}
	if _, dup := c.pending[p][msg.Offset]; !dup {
		c.metrics.commitPending.Inc()
	}
	c.pending[p][msg.Offset] = msg
}

// commitNext commits the next expected offset of partition if it is finished.
// Caller holds c.mu; it is released around the commit call. A failed commit is
// put back and stops the drain.
func (c *commitCoordinator) commitNext(ctx context.Context, partition int) bool {
	next, tracked := c.nextOffset[partition]
	msg, ok := c.pending[partition][next]
	if !tracked || !ok {
		return false
	}
	delete(c.pending[partition], next)
	c.metrics.commitPending.Dec()

	c.mu.Unlock()
	start := time.Now()
	err := c.reader.CommitMessages(ctx, msg)
	c.metrics.observeCommit(time.Since(start), err)
	c.mu.Lock()

	if err != nil {
		c.log.Warn().Err(err).Int("partition", partition).Int64("offset", next).Msg("commit failed")
		c.pending[partition][next] = msg
		c.metrics.commitPending.Inc()
		return false
	}
	c.nextOffset[partition] = next + 1
	return true
}

func (c *commitCoordinator) drain(ctx context.Context, partition int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.commitNext(ctx, partition) {
	}
}

// flush commits every contiguous run still buffered. It gets its own deadline
// because ctx may already be cancelled.
func (c *commitCoordinator) flush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	for p := range c.pending {
		for c.commitNext(ctx, p) {
		}
	}
}
