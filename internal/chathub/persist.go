package chathub

import (
	"context"
	"log/slog"

	"pairup/backend/internal/storage"
)

type persistOp struct {
	name string
	fn   func(storage.Storage) error
}

// Persister writes storage side effects behind the coordinator, in the order they
// were enqueued, so storage latency never holds the coordinator lock. Snapshots are a
// safety net: a full queue drops the op instead of blocking.
type Persister struct {
	storage storage.Storage
	queue   chan persistOp
	logger  *slog.Logger
}

func NewPersister(s storage.Storage, size int, logger *slog.Logger) *Persister {
	return &Persister{
		storage: s,
		queue:   make(chan persistOp, size),
		logger:  logger,
	}
}

// Enqueue schedules fn. It never blocks.
func (p *Persister) Enqueue(name string, fn func(storage.Storage) error) {
	if p.storage == nil {
		return
	}
	select {
	case p.queue <- persistOp{name: name, fn: fn}:
	default:
		p.logger.Warn("persist queue full, dropping op", "op", name)
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (p *Persister) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.Flush()
			return nil
		case op := <-p.queue:
			p.apply(op)
		}
	}
}

// Flush applies every op queued so far and returns.
func (p *Persister) Flush() {
	for {
		select {
		case op := <-p.queue:
			p.apply(op)
		default:
			return
		}
	}
}

// Pending returns the number of queued ops.
func (p *Persister) Pending() int { return len(p.queue) }

func (p *Persister) apply(op persistOp) {
	if err := op.fn(p.storage); err != nil {
		p.logger.Error("persist op failed", "op", op.name, "error", err)
	}
}
