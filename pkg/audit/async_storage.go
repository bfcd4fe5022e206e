package audit

import (
	"context"
	"sync"
	"time"
)

// AsyncOptions configures batching and buffering of an AsyncWriter.
type AsyncOptions struct {
	BufferSize     int           // max pending writes before new writes are dropped with ErrBufferFull
	BatchSize      int           // records per flush
	BatchTimeout   time.Duration // max wait for a partial batch
	StorageTimeout time.Duration // per-flush storage timeout
}

// AsyncWriter batches appends to an underlying Storage from a single worker
// goroutine. Reads, purges and tenant listing pass straight through.
type AsyncWriter struct {
	storage   Storage
	queue     chan pendingWrite
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	options   AsyncOptions
}

type pendingWrite struct {
	events  []SessionEvent
	entries []Entry
	result  chan error
}

var _ Storage = (*AsyncWriter)(nil)

// NewAsyncWriter starts the batching worker. The returned function stops it,
// flushing what is already queued.
func NewAsyncWriter(storage Storage, opts AsyncOptions) (*AsyncWriter, func(context.Context) error) {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}

	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 100 * time.Millisecond
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 5 * time.Second
	}

	aw := &AsyncWriter{
		storage: storage,
		queue:   make(chan pendingWrite, opts.BufferSize),
		done:    make(chan struct{}),
		options: opts,
	}

	aw.wg.Add(1)
	go aw.worker()

	return aw, aw.Close
}

// AppendEvents queues events and waits for the batch containing them.
func (aw *AsyncWriter) AppendEvents(ctx context.Context, events ...SessionEvent) error {
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return err
		}
	}
	return aw.enqueue(ctx, pendingWrite{events: events})
}

// AppendEntries queues entries and waits for the batch containing them.
func (aw *AsyncWriter) AppendEntries(ctx context.Context, entries ...Entry) error {
	for i := range entries {
		if err := entries[i].Validate(); err != nil {
			return err
		}
	}
	return aw.enqueue(ctx, pendingWrite{entries: entries})
}

func (aw *AsyncWriter) QueryEvents(ctx context.Context, c Criteria) ([]SessionEvent, error) {
	return aw.storage.QueryEvents(ctx, c)
}

func (aw *AsyncWriter) QueryEntries(ctx context.Context, c Criteria) ([]Entry, error) {
	return aw.storage.QueryEntries(ctx, c)
}

func (aw *AsyncWriter) PurgeOlderThan(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	return aw.storage.PurgeOlderThan(ctx, tenantID, cutoff)
}

func (aw *AsyncWriter) Tenants(ctx context.Context) ([]string, error) {
	return aw.storage.Tenants(ctx)
}

func (aw *AsyncWriter) enqueue(ctx context.Context, w pendingWrite) error {
	select {
	case <-aw.done:
		return ErrStorageNotAvailable
	default:
	}

	if len(w.events) == 0 && len(w.entries) == 0 {
		return nil
	}
	w.result = make(chan error, 1)

	select {
	case aw.queue <- w:
	default:
		return ErrBufferFull
	}

	select {
	case err := <-w.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (aw *AsyncWriter) worker() {
	defer aw.wg.Done()

	var (
		events       = make([]SessionEvent, 0, aw.options.BatchSize)
		entries      = make([]Entry, 0, aw.options.BatchSize)
		eventWaiters = make([]chan error, 0, aw.options.BatchSize)
		entryWaiters = make([]chan error, 0, aw.options.BatchSize)
	)

	ticker := time.NewTicker(aw.options.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(eventWaiters)+len(entryWaiters) == 0 {
			return
		}

		// Storage is isolated from caller contexts so one timed-out request
		// does not fail the whole batch.
		ctx, cancel := context.WithTimeout(context.Background(), aw.options.StorageTimeout)
		defer cancel()

		if len(eventWaiters) > 0 {
			err := aw.storage.AppendEvents(ctx, events...)
			for _, ch := range eventWaiters {
				ch <- err
			}
		}
		if len(entryWaiters) > 0 {
			err := aw.storage.AppendEntries(ctx, entries...)
			for _, ch := range entryWaiters {
				ch <- err
			}
		}

		clear(events)
		clear(entries)
		clear(eventWaiters)
		clear(entryWaiters)
		events, entries = events[:0], entries[:0]
		eventWaiters, entryWaiters = eventWaiters[:0], entryWaiters[:0]
	}

	add := func(w pendingWrite) {
		if len(w.events) > 0 {
			events = append(events, w.events...)
			eventWaiters = append(eventWaiters, w.result)
		}
		if len(w.entries) > 0 {
			entries = append(entries, w.entries...)
			entryWaiters = append(entryWaiters, w.result)
		}
		if len(events)+len(entries) >= aw.options.BatchSize {
			flush()
		}
	}

	for {
		select {
		case w := <-aw.queue:
			add(w)
		case <-ticker.C:
			flush()
		case <-aw.done:
			for {
				select {
				case w := <-aw.queue:
					add(w)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close stops accepting writes, flushes queued ones and waits for the worker
// until ctx is done. Safe to call more than once.
func (aw *AsyncWriter) Close(ctx context.Context) error {
	aw.closeOnce.Do(func() { close(aw.done) })

	finished := make(chan struct{})
	go func() {
		aw.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
