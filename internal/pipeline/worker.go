package pipeline

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/voxlab/speechforge/internal/models"
	"github.com/voxlab/speechforge/internal/queue"
	"github.com/voxlab/speechforge/internal/synth"
)

const dequeuePoll = 5 * time.Second

// Worker is the single-concurrency execution loop. It dequeues jobs in
// submission order and drives each one to a terminal state before touching
// the next; the synthesis backend never sees two calls in flight.
type Worker struct {
	store    Store
	queue    JobQueue
	synth    Synthesizer
	uploader Uploader
	temps    TempRemover
	watchdog *Watchdog
	waiters  *waiters
}

func newWorker(store Store, q JobQueue, s Synthesizer, u Uploader, t TempRemover, wd *Watchdog, w *waiters) *Worker {
	return &Worker{
		store:    store,
		queue:    q,
		synth:    s,
		uploader: u,
		temps:    t,
		watchdog: wd,
		waiters:  w,
	}
}

// Run processes jobs strictly sequentially until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	log.Println("[Worker] Started (concurrency: 1)")

	for {
		select {
		case <-ctx.Done():
			log.Println("[Worker] Shutting down...")
			return
		default:
			job, err := w.queue.Dequeue(ctx, dequeuePoll)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Printf("[Worker] Dequeue error: %v", err)
				continue
			}
			if job == nil {
				continue // queue empty, poll again
			}

			log.Printf("[Worker] Processing request %d (model=%s, reference=%t)",
				job.RequestID, job.ModelName, job.Reference != nil)

			url, err := w.process(ctx, job)
			if err != nil {
				log.Printf("[Worker] Request %d failed: %v", job.RequestID, err)
			} else {
				log.Printf("[Worker] Request %d completed: %s", job.RequestID, url)
			}

			w.waiters.resolve(job.RequestID, url, err)
		}
	}
}

// process drives one job through synthesis, upload and persistence. It always
// returns a terminal outcome, and the job's temp file (when marked
// delete-after-use) is removed on every exit path.
func (w *Worker) process(ctx context.Context, job *queue.Job) (string, error) {
	if job.Reference != nil && job.Reference.DeleteAfterUse {
		// Cleanup never escalates past this boundary; Remove logs and
		// tolerates an already-deleted file.
		defer w.temps.Remove(job.Reference.Path)
	}

	if err := w.store.MarkProcessing(ctx, job.RequestID); err != nil {
		log.Printf("[Worker] Failed to mark request %d processing: %v", job.RequestID, err)
	}

	policy := w.watchdog.PolicyFor(job.Text)
	if policy.LongRunning {
		cancel := w.watchdog.Arm(job.RequestID, func() {
			w.waiters.resolve(job.RequestID, "", &models.WatchdogTimeoutError{RequestID: job.RequestID})
		})
		defer cancel()
	}

	audio, err := w.synthesize(ctx, job, policy)
	if err != nil {
		w.fail(job.RequestID)
		return "", err
	}

	url, fileName, err := w.uploader.Upload(ctx, audio, job.Username, job.ModelName)
	if err != nil {
		w.fail(job.RequestID)
		return "", &models.StorageError{Err: err}
	}

	completed, err := w.store.MarkCompleted(ctx, job.RequestID)
	if err != nil {
		w.fail(job.RequestID)
		return "", &models.StorageError{Err: err}
	}
	if !completed {
		// The watchdog already force-failed the record; the late result is
		// discarded, not written.
		return "", &models.WatchdogTimeoutError{RequestID: job.RequestID}
	}

	artifact := &models.AudioArtifact{
		RequestID: job.RequestID,
		FileName:  fileName,
		URL:       url,
	}
	if err := w.store.CreateArtifact(ctx, artifact); err != nil {
		// The request is already terminal-completed and the audio is durable;
		// a missing history row is not worth failing the caller over.
		log.Printf("[Worker] Failed to record artifact for request %d: %v", job.RequestID, err)
	}

	return url, nil
}

// synthesize dispatches on the job variant and applies the policy's timeout.
func (w *Worker) synthesize(ctx context.Context, job *queue.Job, policy Policy) ([]byte, error) {
	if job.Reference == nil {
		return w.synth.Synthesize(ctx, job.Text, job.Language, job.ModelName, policy.Timeout)
	}

	// Fail fast if the temp file vanished before dispatch; no backend call.
	if _, err := os.Stat(job.Reference.Path); err != nil {
		return nil, &models.ResourceError{Path: job.Reference.Path, Err: err}
	}

	ref := synth.ReferenceInput{
		Path:           job.Reference.Path,
		Filename:       job.Reference.Filename,
		MimeType:       job.Reference.MimeType,
		PromptText:     job.Reference.PromptText,
		PromptLanguage: job.Reference.PromptLanguage,
	}
	return w.synth.SynthesizeWithReference(ctx, job.Text, job.Language, job.ModelName, ref, policy.Timeout)
}

// fail marks a request failed, leaving terminal states untouched.
func (w *Worker) fail(requestID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := w.store.MarkFailed(ctx, requestID); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[Worker] Failed to mark request %d failed: %v", requestID, err)
	}
}
