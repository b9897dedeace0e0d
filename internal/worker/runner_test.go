package worker

import (
	"context"
	"errors"
	"testing"

	"server/internal/domain"
	"server/internal/queue"
)

type stubQueue struct {
	acked   []string
	reaped  []domain.EnhancementMessage
	reapErr error
}

func (s *stubQueue) Dequeue(ctx context.Context) (*queue.Delivery, error) {
	return nil, queue.ErrEmpty
}

func (s *stubQueue) Ack(ctx context.Context, deliveryID string) error {
	s.acked = append(s.acked, deliveryID)
	return nil
}

func (s *stubQueue) ReapExhausted(ctx context.Context) ([]domain.EnhancementMessage, error) {
	if s.reapErr != nil {
		return nil, s.reapErr
	}
	return s.reaped, nil
}

func TestHandleDeliveryAcksOnSuccess(t *testing.T) {
	f := newFixture(t, 1)
	q := &stubQueue{}
	r := NewRunner(q, f.handler, f.jobs, f.photos, 0, testLogger())

	r.handleDelivery(context.Background(), &queue.Delivery{ID: "d-1", Attempts: 1, Message: f.msg})

	if len(q.acked) != 1 || q.acked[0] != "d-1" {
		t.Fatalf("acked = %v, want [d-1]", q.acked)
	}
}

func TestHandleDeliveryLeavesMessageOnHandlerError(t *testing.T) {
	f := newFixture(t, 1)
	f.jobs.err = errors.New("connection refused")
	q := &stubQueue{}
	r := NewRunner(q, f.handler, f.jobs, f.photos, 0, testLogger())

	r.handleDelivery(context.Background(), &queue.Delivery{ID: "d-1", Attempts: 1, Message: f.msg})

	if len(q.acked) != 0 {
		t.Fatalf("message must not be acked after a handler error, got acks %v", q.acked)
	}
}

func TestHandleDeliveryRecoversFromPanic(t *testing.T) {
	f := newFixture(t, 1)
	q := &stubQueue{}
	r := NewRunner(q, f.handler, f.jobs, f.photos, 0, testLogger())
	f.handler.enhancer = panicEnhancer{}

	defer func() {
		if rec := recover(); rec != nil {
			t.Fatalf("panic escaped the delivery loop: %v", rec)
		}
	}()
	r.handleDelivery(context.Background(), &queue.Delivery{ID: "d-1", Attempts: 1, Message: f.msg})

	if len(q.acked) != 0 {
		t.Fatal("panicked delivery must not be acked")
	}
}

type panicEnhancer struct{}

func (panicEnhancer) Enhance(ctx context.Context, toolID, imageURL string, options map[string]string) (string, error) {
	panic("boom")
}

func TestFailExhaustedBuriesJobAndPhotos(t *testing.T) {
	f := newFixture(t, 2)
	q := &stubQueue{reaped: []domain.EnhancementMessage{f.msg}}
	r := NewRunner(q, f.handler, f.jobs, f.photos, 0, testLogger())

	r.FailExhausted(context.Background())

	job, _ := f.jobs.GetByID(context.Background(), f.msg.JobID)
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("job status = %s, want failed", job.Status)
	}
	if job.ErrorMessage != "too many delivery attempts" {
		t.Fatalf("job error = %q", job.ErrorMessage)
	}
	photos, _ := f.photos.ListByJobID(context.Background(), f.msg.JobID)
	for _, p := range photos {
		if p.Status != domain.PhotoStatusFailed {
			t.Fatalf("photo %s status = %s, want failed", p.ID, p.Status)
		}
	}
}

func TestFailExhaustedKeepsCompletedJob(t *testing.T) {
	f := newFixture(t, 1)
	// The job finished on an earlier delivery but the ack never landed, so
	// the message survived until the attempt cap.
	if err := f.handler.ProcessMessage(context.Background(), f.msg); err != nil {
		t.Fatalf("process: %v", err)
	}
	before, _ := f.jobs.GetByID(context.Background(), f.msg.JobID)
	if before.Status != domain.JobStatusCompleted || before.CompletedAt == nil {
		t.Fatalf("setup: job = %s", before.Status)
	}

	q := &stubQueue{reaped: []domain.EnhancementMessage{f.msg}}
	r := NewRunner(q, f.handler, f.jobs, f.photos, 0, testLogger())
	r.FailExhausted(context.Background())

	job, _ := f.jobs.GetByID(context.Background(), f.msg.JobID)
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("reaper rewrote a completed job: status = %s, error = %q", job.Status, job.ErrorMessage)
	}
	if job.CompletedAt == nil {
		t.Fatal("reaper cleared completed_at on a finished job")
	}
	photos, _ := f.photos.ListByJobID(context.Background(), f.msg.JobID)
	if photos[0].Status != domain.PhotoStatusCompleted {
		t.Fatalf("photo status = %s, want completed", photos[0].Status)
	}
}

func TestFailExhaustedKeepsFinishedPhotos(t *testing.T) {
	f := newFixture(t, 2)
	// First photo already finished before the delivery budget ran out.
	if err := f.photos.MarkCompleted(context.Background(), f.msg.Photos[0].PhotoID, "processed/job-1/photo-1.jpg", "", 0, 0); err != nil {
		t.Fatal(err)
	}
	q := &stubQueue{reaped: []domain.EnhancementMessage{f.msg}}
	r := NewRunner(q, f.handler, f.jobs, f.photos, 0, testLogger())

	r.FailExhausted(context.Background())

	photos, _ := f.photos.ListByJobID(context.Background(), f.msg.JobID)
	if photos[0].Status != domain.PhotoStatusCompleted || photos[0].ProcessedKey == "" {
		t.Fatal("completed photo must survive the reaper untouched")
	}
	if photos[1].Status != domain.PhotoStatusFailed {
		t.Fatalf("pending photo status = %s, want failed", photos[1].Status)
	}
}
