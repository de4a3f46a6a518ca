package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"IndexBridge/internal/core"
	"IndexBridge/internal/ledger"
	"IndexBridge/internal/observability"
)

// Worker drains the engine's persist channel and batch-writes to
// Postgres. The engine sends on the channel with a blocking send, so
// if this worker falls behind the engine stalls rather than dropping
// a settled mutation.
type Worker struct {
	writer       *SettlementWriter
	db           *sql.DB
	input        <-chan core.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewWorker(db *sql.DB, input <-chan core.Output, batchSize int, flushTimeout time.Duration, metrics *observability.Metrics, log zerolog.Logger) *Worker {
	return &Worker{
		writer:       NewSettlementWriter(db),
		db:           db,
		input:        input,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log,
	}
}

// Run batches incoming outputs and flushes when the batch fills or the
// flush timeout fires. Blocks until ctx is cancelled or the input
// channel closes; either way the remaining batch is flushed first.
func (w *Worker) Run(ctx context.Context) error {
	journals := make([]ledger.JournalEntry, 0, w.batchSize*2)
	deliveries := make([]core.SettledDelivery, 0, w.batchSize)
	outputs := 0

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	reset := func() {
		journals = journals[:0]
		deliveries = deliveries[:0]
		outputs = 0
	}

	for {
		select {
		case <-ctx.Done():
			if outputs > 0 {
				if err := w.flush(context.Background(), journals, deliveries, outputs); err != nil {
					w.log.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case out, ok := <-w.input:
			if !ok {
				if outputs > 0 {
					if err := w.flush(context.Background(), journals, deliveries, outputs); err != nil {
						w.log.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			journals = append(journals, out.Journal...)
			if out.Delivery != nil {
				deliveries = append(deliveries, *out.Delivery)
			}
			outputs++

			if outputs >= w.batchSize {
				if err := w.flushWithRetry(ctx, journals, deliveries, outputs); err != nil {
					w.log.Error().Err(err).Msg("batch flush abandoned")
				}
				reset()
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if outputs > 0 {
				if err := w.flushWithRetry(ctx, journals, deliveries, outputs); err != nil {
					w.log.Error().Err(err).Msg("timeout flush abandoned")
				}
				reset()
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries failed flushes with exponential backoff. The
// worker never drops a batch: it retries until the write succeeds or
// the context is cancelled, in which case it attempts one last flush
// with a background context.
func (w *Worker) flushWithRetry(ctx context.Context, journals []ledger.JournalEntry, deliveries []core.SettledDelivery, outputs int) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("journals", len(journals)).
				Msg("persistence retry")
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), journals, deliveries, outputs); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := w.flush(ctx, journals, deliveries, outputs); err == nil {
			if attempt > 0 {
				w.log.Info().Int("attempts", attempt).Msg("persistence flush recovered")
			}
			return nil
		}
	}
}

func (w *Worker) flush(ctx context.Context, journals []ledger.JournalEntry, deliveries []core.SettledDelivery, outputs int) error {
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		w.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		w.countError("write_journal")
		return err
	}
	if err := w.writer.WriteDeliveryBatch(ctx, tx, deliveries); err != nil {
		w.countError("write_deliveries")
		return err
	}
	if err := tx.Commit(); err != nil {
		w.countError("tx_commit")
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(outputs))
		w.metrics.PersistJournalsWritten.Add(float64(len(journals)))
		w.metrics.PersistDeliveriesWritten.Add(float64(len(deliveries)))
	}
	return nil
}

func (w *Worker) countError(kind string) {
	if w.metrics != nil {
		w.metrics.PersistErrors.WithLabelValues(kind).Inc()
	}
}
