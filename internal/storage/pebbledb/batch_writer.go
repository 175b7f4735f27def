package pebbledb

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
)

type BatchWriterConfig struct {
	MaxBatchSize      int // Flush after this many ops (default: 256)
	ChannelBufferSize int
	FlushInterval     time.Duration
}

func DefaultBatchWriterConfig() BatchWriterConfig {
	return BatchWriterConfig{
		MaxBatchSize:      256,
		ChannelBufferSize: 4096,
		FlushInterval:     500 * time.Millisecond,
	}
}

// writeOp is either a mutation or, when flushed is set, a barrier that is
// released once everything queued before it has been committed.
type writeOp struct {
	key     []byte
	value   []byte
	delete  bool
	flushed chan struct{}
}

// BatchWriter coalesces record writes into periodic pebble batches. Writers
// never block on disk; readers call Flush first to observe their writes.
type BatchWriter struct {
	db      *pebble.DB
	config  BatchWriterConfig
	logger  *slog.Logger
	opCh    chan writeOp
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped atomic.Bool
}

func NewBatchWriter(db *pebble.DB, config BatchWriterConfig, logger *slog.Logger) *BatchWriter {
	defaults := DefaultBatchWriterConfig()
	if config.MaxBatchSize == 0 {
		config.MaxBatchSize = defaults.MaxBatchSize
	}
	if config.ChannelBufferSize == 0 {
		config.ChannelBufferSize = defaults.ChannelBufferSize
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = defaults.FlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	bw := &BatchWriter{
		db:     db,
		config: config,
		logger: logger,
		opCh:   make(chan writeOp, config.ChannelBufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go bw.flusher()

	return bw
}

func (bw *BatchWriter) Set(key, value []byte) {
	if bw.stopped.Load() {
		return
	}
	bw.opCh <- writeOp{key: key, value: value}
}

func (bw *BatchWriter) Delete(key []byte) {
	if bw.stopped.Load() {
		return
	}
	bw.opCh <- writeOp{key: key, delete: true}
}

// Flush blocks until every op queued before the call is committed.
func (bw *BatchWriter) Flush() {
	if bw.stopped.Load() {
		return
	}
	done := make(chan struct{})
	select {
	case bw.opCh <- writeOp{flushed: done}:
	case <-bw.doneCh:
		return
	}
	select {
	case <-done:
	case <-bw.doneCh:
	}
}

func (bw *BatchWriter) Close() error {
	if bw.stopped.Swap(true) {
		return nil
	}
	close(bw.stopCh)
	<-bw.doneCh
	return nil
}

func (bw *BatchWriter) flusher() {
	defer close(bw.doneCh)

	ticker := time.NewTicker(bw.config.FlushInterval)
	defer ticker.Stop()

	batch := bw.db.NewBatch()
	opCount := 0

	flush := func() {
		if opCount == 0 {
			return
		}
		if err := batch.Commit(pebble.Sync); err != nil {
			bw.logger.Error("batch commit failed", "ops", opCount, "error", err)
		}
		batch.Close()
		batch = bw.db.NewBatch()
		opCount = 0
	}

	apply := func(op writeOp) {
		switch {
		case op.flushed != nil:
			flush()
			close(op.flushed)
			return
		case op.delete:
			batch.Delete(op.key, nil)
		default:
			batch.Set(op.key, op.value, nil)
		}
		opCount++
		if opCount >= bw.config.MaxBatchSize {
			flush()
		}
	}

	for {
		select {
		case op := <-bw.opCh:
			apply(op)

		case <-ticker.C:
			flush()

		case <-bw.stopCh:
			for {
				select {
				case op := <-bw.opCh:
					apply(op)
				default:
					flush()
					batch.Close()
					return
				}
			}
		}
	}
}
