// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"

	"github.com/ManuGH/e2epg/internal/epg"
	"github.com/ManuGH/e2epg/internal/metrics"
)

// batcher buffers per-ref events and hands them to the sink once size events
// are pending, and on explicit flush.
type batcher struct {
	sink    EventSink
	size    int
	order   []string
	pending map[string][]epg.Event
	count   int
	phase   string
	onFlush func(events int, err error)
}

func newBatcher(sink EventSink, size int, onFlush func(int, error)) *batcher {
	return &batcher{
		sink:    sink,
		size:    size,
		pending: make(map[string][]epg.Event),
		onFlush: onFlush,
	}
}

// add buffers ev for ref and flushes when the batch is full.
func (b *batcher) add(ctx context.Context, ref string, ev epg.Event) error {
	if _, ok := b.pending[ref]; !ok {
		b.order = append(b.order, ref)
	}
	b.pending[ref] = append(b.pending[ref], ev)
	b.count++
	if b.count >= b.size {
		return b.flush(ctx)
	}
	return nil
}

// flush hands buffered events to the sink in first-added ref order and
// commits. A done ctx discards the buffer and returns its error.
func (b *batcher) flush(ctx context.Context) error {
	if b.count == 0 {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		b.reset()
		return err
	}

	for _, ref := range b.order {
		for _, ev := range b.pending[ref] {
			b.sink.AddEvent(ref, ev)
		}
	}
	n := b.count
	b.reset()

	err := b.sink.Commit(ctx)
	if err == nil {
		metrics.AddEventsCommitted(b.phase, n)
	}
	if b.onFlush != nil {
		b.onFlush(n, err)
	}
	return nil
}

func (b *batcher) reset() {
	b.order = b.order[:0]
	clear(b.pending)
	b.count = 0
}
