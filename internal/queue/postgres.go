package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// ErrEmpty is returned by Dequeue when no message is available.
var ErrEmpty = errors.New("queue: no message available")

// Delivery is one claimed message. The message stays invisible to other
// consumers until its lease expires; it is removed only by Ack, so a consumer
// crash leads to redelivery (at-least-once).
type Delivery struct {
	ID       string
	Attempts int
	Message  domain.EnhancementMessage
}

// PostgresQueue is a lease-based message queue on a queue_messages table.
// Claiming uses FOR UPDATE SKIP LOCKED so concurrent workers never grab the
// same message twice within a lease window.
type PostgresQueue struct {
	pool        *pgxpool.Pool
	lease       time.Duration
	maxAttempts int
}

// NewPostgresQueue creates a queue with the given lease duration and attempt cap.
func NewPostgresQueue(pool *pgxpool.Pool, lease time.Duration, maxAttempts int) *PostgresQueue {
	if lease <= 0 {
		lease = 10 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &PostgresQueue{pool: pool, lease: lease, maxAttempts: maxAttempts}
}

// Enqueue inserts a message, immediately visible to consumers.
func (q *PostgresQueue) Enqueue(ctx context.Context, msg domain.EnhancementMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: marshal message: %w", err)
	}
	query := `
INSERT INTO queue_messages (id, payload, attempts)
VALUES ($1, $2, 0);
`
	if _, err := q.pool.Exec(ctx, query, uuid.NewString(), payload); err != nil {
		return fmt.Errorf("queue: enqueue: %w", err)
	}
	return nil
}

// Dequeue claims the oldest visible message, extends its lease and bumps the
// attempt counter. Returns ErrEmpty when nothing is claimable.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	query := `
WITH next_message AS (
    SELECT id
    FROM queue_messages
    WHERE (leased_until IS NULL OR leased_until < now())
      AND attempts < $2
    ORDER BY created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
),
claimed AS (
    UPDATE queue_messages
    SET leased_until = now() + $1::interval, attempts = attempts + 1
    WHERE id IN (SELECT id FROM next_message)
    RETURNING id, payload, attempts
)
SELECT id, payload, attempts FROM claimed;
`
	leaseArg := fmt.Sprintf("%d seconds", int(q.lease.Seconds()))
	row := q.pool.QueryRow(ctx, query, leaseArg, q.maxAttempts)

	var (
		id       string
		payload  []byte
		attempts int
	)
	if err := row.Scan(&id, &payload, &attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("queue: claim: %w", err)
	}

	var msg domain.EnhancementMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("queue: decode message %s: %w", id, err)
	}
	return &Delivery{ID: id, Attempts: attempts, Message: msg}, nil
}

// Ack removes a fully processed message from the queue.
func (q *PostgresQueue) Ack(ctx context.Context, deliveryID string) error {
	if _, err := q.pool.Exec(ctx, `DELETE FROM queue_messages WHERE id = $1;`, deliveryID); err != nil {
		return fmt.Errorf("queue: ack %s: %w", deliveryID, err)
	}
	return nil
}

// ReapExhausted removes messages whose attempt count reached the cap and whose
// lease has lapsed, returning their payloads so the caller can fail the
// corresponding jobs.
func (q *PostgresQueue) ReapExhausted(ctx context.Context) ([]domain.EnhancementMessage, error) {
	query := `
DELETE FROM queue_messages
WHERE attempts >= $1
  AND (leased_until IS NULL OR leased_until < now())
RETURNING payload;
`
	rows, err := q.pool.Query(ctx, query, q.maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("queue: reap: %w", err)
	}
	defer rows.Close()

	var reaped []domain.EnhancementMessage
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("queue: reap scan: %w", err)
		}
		var msg domain.EnhancementMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		reaped = append(reaped, msg)
	}
	return reaped, rows.Err()
}
