package imagery

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/joshuahaertel/friendexing/internal/metrics"
	"github.com/joshuahaertel/friendexing/internal/models"
)

// Worker is the single long-lived consumer of the authenticated upstream
// session. Callers enqueue a batch fetch and await its specific result; jobs
// run strictly one at a time in FIFO order, and a failed fetch fails only
// that job.
type Worker struct {
	client *Client
	queue  chan *job
}

type job struct {
	batchID string
	result  chan jobResult
}

type jobResult struct {
	batch *models.Batch
	err   error
}

// NewWorker creates a worker with a bounded FIFO queue.
func NewWorker(client *Client, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Worker{
		client: client,
		queue:  make(chan *job, queueSize),
	}
}

// Run logs in once and consumes jobs until the context is cancelled. A job
// failure is reported to its caller and the loop continues.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.client.Login(ctx); err != nil {
		return fmt.Errorf("worker login: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.drain(ctx.Err())
			return ctx.Err()
		case j := <-w.queue:
			batch, err := w.runJob(ctx, j.batchID)
			if err != nil {
				metrics.ImageJobs.WithLabelValues("failure").Inc()
				log.Error().Err(err).Str("batch_id", j.batchID).Msg("image acquisition job failed")
			} else {
				metrics.ImageJobs.WithLabelValues("success").Inc()
			}
			j.result <- jobResult{batch: batch, err: err}
		}
	}
}

// drain fails every queued job when the worker stops.
func (w *Worker) drain(err error) {
	for {
		select {
		case j := <-w.queue:
			j.result <- jobResult{err: fmt.Errorf("worker stopped: %w", err)}
		default:
			return
		}
	}
}

// Fetch enqueues a batch acquisition and awaits its result. It satisfies the
// state machine's BatchFetcher contract.
func (w *Worker) Fetch(ctx context.Context, batchID string) (*models.Batch, error) {
	j := &job{batchID: batchID, result: make(chan jobResult, 1)}
	select {
	case w.queue <- j:
	case <-ctx.Done():
		return nil, fmt.Errorf("enqueue batch fetch: %w", ctx.Err())
	}

	select {
	case result := <-j.result:
		return result.batch, result.err
	case <-ctx.Done():
		// The worker still finishes the job and caches nothing; only this
		// caller gives up.
		return nil, fmt.Errorf("await batch fetch: %w", ctx.Err())
	}
}

// runJob fetches the manifest and every image in it concurrently. Any image
// failure fails the whole batch.
func (w *Worker) runJob(ctx context.Context, batchID string) (*models.Batch, error) {
	timer := prometheus.NewTimer(metrics.ImageJobDuration)
	defer timer.ObserveDuration()

	manifestBytes, err := w.client.FetchManifest(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest for %s: %w", batchID, err)
	}
	entries, err := ParseManifest(manifestBytes)
	if err != nil {
		return nil, fmt.Errorf("parse manifest for %s: %w", batchID, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("manifest for %s contains no images", batchID)
	}

	images := make([]*models.Image, len(entries))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry ImageEntry) {
			defer wg.Done()
			img, err := w.fetchImage(ctx, entry)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			images[i] = img
		}(i, entry)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	log.Info().Str("batch_id", batchID).Int("images", len(images)).Msg("image batch assembled")
	return &models.Batch{ID: batchID, Images: images}, nil
}
