package worker

import (
	"context"
	"errors"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/metrics"
	"server/internal/queue"
)

const defaultPollInterval = 2 * time.Second

// MessageQueue is the transport contract the runner consumes.
type MessageQueue interface {
	Dequeue(ctx context.Context) (*queue.Delivery, error)
	Ack(ctx context.Context, deliveryID string) error
	ReapExhausted(ctx context.Context) ([]domain.EnhancementMessage, error)
}

// Runner polls the queue and drives the Handler. Acknowledgment happens only
// after the handler returns without error; any escaped error (or panic)
// leaves the message leased, so it is redelivered once the lease lapses.
type Runner struct {
	queue        MessageQueue
	handler      *Handler
	jobs         domain.JobRepository
	photos       domain.PhotoRepository
	pollInterval time.Duration
	logger       infra.Logger
}

// NewRunner wires a queue consumer.
func NewRunner(q MessageQueue, handler *Handler, jobs domain.JobRepository, photos domain.PhotoRepository, pollInterval time.Duration, logger infra.Logger) *Runner {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Runner{
		queue:        q,
		handler:      handler,
		jobs:         jobs,
		photos:       photos,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run consumes messages until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info().Msg("worker: started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		delivery, err := r.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				r.sleep(ctx, r.pollInterval)
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error().Err(err).Msg("worker: dequeue failed")
			r.sleep(ctx, r.pollInterval)
			continue
		}

		r.handleDelivery(ctx, delivery)
	}
}

func (r *Runner) handleDelivery(ctx context.Context, delivery *queue.Delivery) {
	log := r.logger.With().
		Str("delivery_id", delivery.ID).
		Str("job_id", delivery.Message.JobID).
		Int("attempt", delivery.Attempts).
		Logger()

	if delivery.Attempts > 1 {
		metrics.QueueRedeliveries.Inc()
		log.Info().Msg("worker: redelivered message")
	}

	// A panic must not take down the consumer loop, and must not ack: the
	// leased message gets redelivered after the lease expires.
	defer func() {
		if rec := recover(); rec != nil {
			metrics.MessagesProcessed.WithLabelValues("panic").Inc()
			log.Error().Interface("panic", rec).Msg("worker: handler panicked, message left for redelivery")
		}
	}()

	if err := r.handler.ProcessMessage(ctx, delivery.Message); err != nil {
		metrics.MessagesProcessed.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("worker: message handling failed, left for redelivery")
		return
	}

	if err := r.queue.Ack(ctx, delivery.ID); err != nil {
		// The work is done and idempotent, so a redelivery after this
		// failure is harmless.
		log.Error().Err(err).Msg("worker: ack failed")
		return
	}
	metrics.MessagesProcessed.WithLabelValues("ok").Inc()
	log.Info().Msg("worker: message processed")
}

// FailExhausted buries messages that exceeded the delivery attempt cap,
// failing their jobs and any photos still in flight. Scheduled via cron from
// the worker binary.
func (r *Runner) FailExhausted(ctx context.Context) {
	messages, err := r.queue.ReapExhausted(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("worker: reap exhausted messages failed")
		return
	}
	for _, msg := range messages {
		log := r.logger.With().Str("job_id", msg.JobID).Logger()
		job, err := r.jobs.GetByID(ctx, msg.JobID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				log.Error().Err(err).Msg("worker: load job for exhausted message")
			}
			continue
		}
		// An exhausted message over a finished job means only the ack kept
		// failing; the work itself is done and must not be rewritten.
		if job.Status.Terminal() {
			log.Debug().Str("status", string(job.Status)).Msg("worker: dropping exhausted message for finished job")
			continue
		}
		for _, ref := range msg.Photos {
			photo, err := r.photos.GetByID(ctx, ref.PhotoID)
			if err != nil || photo.Status.Terminal() {
				continue
			}
			if err := r.photos.MarkFailed(ctx, ref.PhotoID, "delivery attempts exhausted"); err != nil {
				log.Error().Err(err).Str("photo_id", ref.PhotoID).Msg("worker: fail exhausted photo")
			}
		}
		if err := r.jobs.Complete(ctx, msg.JobID, domain.JobStatusFailed, "too many delivery attempts"); err != nil {
			log.Error().Err(err).Msg("worker: fail exhausted job")
			continue
		}
		log.Warn().Msg("worker: job failed after exhausting delivery attempts")
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
