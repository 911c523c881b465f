package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tagmill/tagmill/internal/domain/tagging"
)

// HistoryService writes tag history records asynchronously through a
// buffered channel and a background worker, so recording an outcome
// never blocks event handling. Records are dropped (and counted) when
// the buffer is full.
type HistoryService struct {
	store         tagging.HistoryStore
	recordChan    chan tagging.Record
	wg            sync.WaitGroup
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration
	channelSize   int
	dropCount     atomic.Int64
}

// HistoryOption configures HistoryService.
type HistoryOption func(*HistoryService)

// WithHistoryBatchSize sets the number of records written per flush.
func WithHistoryBatchSize(size int) HistoryOption {
	return func(s *HistoryService) {
		s.batchSize = size
	}
}

// WithHistoryFlushInterval sets the maximum time a record waits
// buffered before being written.
func WithHistoryFlushInterval(interval time.Duration) HistoryOption {
	return func(s *HistoryService) {
		s.flushInterval = interval
	}
}

// WithHistoryChannelSize sets the record buffer size.
func WithHistoryChannelSize(size int) HistoryOption {
	return func(s *HistoryService) {
		s.recordChan = make(chan tagging.Record, size)
		s.channelSize = size
	}
}

// NewHistoryService creates a HistoryService over the given store.
func NewHistoryService(store tagging.HistoryStore, logger *slog.Logger, opts ...HistoryOption) *HistoryService {
	const defaultChannelSize = 1000
	s := &HistoryService{
		store:         store,
		recordChan:    make(chan tagging.Record, defaultChannelSize),
		channelSize:   defaultChannelSize,
		logger:        logger,
		batchSize:     100,
		flushInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the background worker. The worker runs until Stop
// closes the record channel, not until any caller context ends, so
// records queued while HTTP handlers drain during graceful shutdown
// are still flushed.
func (s *HistoryService) Start() {
	s.wg.Add(1)
	go s.worker()
}

// Record queues a history record without blocking. A full buffer drops
// the record and increments the drop counter.
func (s *HistoryService) Record(record tagging.Record) {
	select {
	case s.recordChan <- record:
	default:
		drops := s.dropCount.Add(1)
		s.logger.Warn("history record dropped",
			"nsvc", record.NSVC,
			"outcome", record.Outcome,
			"total_drops", drops,
		)
	}
}

// DroppedRecords returns total dropped records, for metrics.
func (s *HistoryService) DroppedRecords() int64 {
	return s.dropCount.Load()
}

// ChannelDepth returns current buffer usage, for monitoring.
func (s *HistoryService) ChannelDepth() int {
	return len(s.recordChan)
}

// ChannelCapacity returns the buffer size.
func (s *HistoryService) ChannelCapacity() int {
	return s.channelSize
}

// Stop signals the worker to stop and waits for the final flush.
func (s *HistoryService) Stop() {
	close(s.recordChan)
	s.wg.Wait()
}

func (s *HistoryService) worker() {
	defer s.wg.Done()

	batch := make([]tagging.Record, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case record, ok := <-s.recordChan:
			if !ok {
				// Channel closed: final flush.
				if len(batch) > 0 {
					s.flush(batch)
				}
				return
			}
			batch = append(batch, record)
			if len(batch) >= s.batchSize {
				s.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// flush writes a batch to the store under a bounded deadline. Errors
// are logged, not propagated: history must not fail event handling.
func (s *HistoryService) flush(batch []tagging.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Append(ctx, batch...); err != nil {
		s.logger.Error("failed to write history batch", "error", err, "count", len(batch))
	}
}
