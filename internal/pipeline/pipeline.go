package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/voxlab/speechforge/internal/cache"
	"github.com/voxlab/speechforge/internal/models"
	"github.com/voxlab/speechforge/internal/queue"
	"github.com/voxlab/speechforge/internal/synth"
	"golang.org/x/sync/singleflight"
)

// Collaborator interfaces. The concrete implementations live in internal/db,
// internal/cache, internal/queue, internal/synth, internal/storage and
// internal/tempfiles; the pipeline only depends on these contracts.

type Store interface {
	CreateRequest(ctx context.Context, req *models.SynthesisRequest) error
	MarkProcessing(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64) (bool, error)
	MarkFailed(ctx context.Context, id int64) error
	FailIfProcessing(ctx context.Context, id int64) (bool, error)
	CreateArtifact(ctx context.Context, artifact *models.AudioArtifact) error
}

type ResultCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, url string) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, job *queue.Job) error
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, language, modelName string, timeout time.Duration) ([]byte, error)
	SynthesizeWithReference(ctx context.Context, text, language, modelName string, ref synth.ReferenceInput, timeout time.Duration) ([]byte, error)
}

type Uploader interface {
	Upload(ctx context.Context, data []byte, namespace, modelName string) (url, fileName string, err error)
}

type TempRemover interface {
	Remove(path string) error
}

// Config wires a Pipeline. All collaborators are required; limits fall back
// to the documented defaults when zero.
type Config struct {
	Store    Store
	Cache    ResultCache
	Queue    JobQueue
	Synth    Synthesizer
	Uploader Uploader
	Temps    TempRemover

	MaxTextLength     int
	ShortTextTimeout  time.Duration
	LongTextThreshold int
	WatchdogTimeout   time.Duration
}

// Pipeline is the explicit context object for the synthesis core: the façade
// entry point, the serialized worker, the watchdog and the in-process bridge
// between them. Constructed once at startup; no package-level state.
type Pipeline struct {
	store    Store
	cache    ResultCache
	queue    JobQueue
	temps    TempRemover
	watchdog *Watchdog
	worker   *Worker

	maxTextLength int

	group   singleflight.Group
	waiters *waiters
}

func New(cfg Config) *Pipeline {
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = 3000
	}
	if cfg.ShortTextTimeout <= 0 {
		cfg.ShortTextTimeout = 5 * time.Minute
	}
	if cfg.LongTextThreshold <= 0 {
		cfg.LongTextThreshold = 500
	}
	if cfg.WatchdogTimeout <= 0 {
		cfg.WatchdogTimeout = time.Hour
	}

	w := newWaiters()
	watchdog := NewWatchdog(cfg.Store, cfg.LongTextThreshold, cfg.ShortTextTimeout, cfg.WatchdogTimeout)

	return &Pipeline{
		store:         cfg.Store,
		cache:         cfg.Cache,
		queue:         cfg.Queue,
		temps:         cfg.Temps,
		watchdog:      watchdog,
		worker:        newWorker(cfg.Store, cfg.Queue, cfg.Synth, cfg.Uploader, cfg.Temps, watchdog, w),
		maxTextLength: cfg.MaxTextLength,
		waiters:       w,
	}
}

// Run drives the serialized worker until ctx is cancelled. Concurrency is
// fixed at 1: the synthesis backend handles one job at a time.
func (p *Pipeline) Run(ctx context.Context) {
	p.worker.Run(ctx)
}

// SubmitParams is the façade input. Reference is nil for plain-text jobs.
type SubmitParams struct {
	UserID    int64
	UserEmail string
	Username  string
	Text      string
	Language  string
	ModelName string
	Reference *queue.ReferenceAudio
}

// Submit validates the request, short-circuits on a fingerprint cache hit,
// persists a pending record, enqueues the job and blocks until the worker
// reports a terminal outcome. On success it returns the durable download URL
// and writes the cache entry.
func (p *Pipeline) Submit(ctx context.Context, params SubmitParams) (string, error) {
	if err := p.validate(params); err != nil {
		p.discardReference(params.Reference)
		return "", err
	}

	// Reference-audio jobs are keyed by a one-shot temp file, so they are
	// neither cached nor coalesced.
	if params.Reference != nil {
		return p.run(ctx, params)
	}

	key := cache.Key(params.UserID, params.Text, params.Language, params.ModelName)

	if url, err := p.cache.Get(ctx, key); err != nil {
		log.Printf("[Pipeline] Cache lookup failed, proceeding without fast path: %v", err)
	} else if url != "" {
		log.Printf("[Pipeline] Cache hit for user %d (model=%s)", params.UserID, params.ModelName)
		return url, nil
	}

	// Identical concurrent submissions coalesce into one backend call. The
	// shared run is detached from any single caller's context so one caller
	// disconnecting cannot fail the coalesced partners; each caller waits
	// under its own context below.
	ch := p.group.DoChan(key, func() (interface{}, error) {
		url, err := p.run(context.Background(), params)
		if err != nil {
			return "", err
		}

		if cacheErr := p.cache.Set(context.Background(), key, url); cacheErr != nil {
			log.Printf("[Pipeline] Cache write failed for request result: %v", cacheErr)
		}
		return url, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *Pipeline) validate(params SubmitParams) error {
	if params.Text == "" {
		return &models.ValidationError{Msg: "text is required"}
	}
	if params.Language == "" {
		return &models.ValidationError{Msg: "text_language is required"}
	}
	if params.ModelName == "" {
		return &models.ValidationError{Msg: "model_name is required"}
	}
	if n := len([]rune(params.Text)); n > p.maxTextLength {
		return &models.ValidationError{
			Msg: fmt.Sprintf("text length %d exceeds the %d character limit", n, p.maxTextLength),
		}
	}
	return nil
}

// run persists the pending record, enqueues the job and waits for the worker.
func (p *Pipeline) run(ctx context.Context, params SubmitParams) (string, error) {
	req := &models.SynthesisRequest{
		UserID:    params.UserID,
		UserEmail: params.UserEmail,
		Text:      params.Text,
		Language:  params.Language,
		ModelName: params.ModelName,
	}
	if err := p.store.CreateRequest(ctx, req); err != nil {
		return "", fmt.Errorf("failed to persist request: %w", err)
	}

	ch := p.waiters.register(req.ID)

	job := &queue.Job{
		RequestID: req.ID,
		Text:      params.Text,
		Language:  params.Language,
		ModelName: params.ModelName,
		UserID:    params.UserID,
		UserEmail: params.UserEmail,
		Username:  params.Username,
		Reference: params.Reference,
	}

	if err := p.queue.Enqueue(ctx, job); err != nil {
		p.waiters.drop(req.ID)
		// The job never reached the worker, so deletion ownership stays here.
		p.discardReference(params.Reference)
		if failErr := p.store.MarkFailed(context.Background(), req.ID); failErr != nil {
			log.Printf("[Pipeline] Failed to mark request %d failed after enqueue error: %v", req.ID, failErr)
		}
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Printf("[Pipeline] Request %d enqueued (textLen=%d, model=%s, reference=%t)",
		req.ID, len([]rune(params.Text)), params.ModelName, params.Reference != nil)

	select {
	case res := <-ch:
		return res.url, res.err
	case <-ctx.Done():
		// The caller gave up; the job still runs to its terminal state.
		p.waiters.drop(req.ID)
		return "", ctx.Err()
	}
}

// discardReference deletes a delete-after-use temp file for a job that never
// reached the worker. Once a job is enqueued the worker owns deletion instead.
func (p *Pipeline) discardReference(ref *queue.ReferenceAudio) {
	if ref == nil || !ref.DeleteAfterUse {
		return
	}
	if err := p.temps.Remove(ref.Path); err != nil {
		log.Printf("[Pipeline] Failed to remove rejected reference audio %s: %v", ref.Path, err)
	}
}

// IsClientError reports whether an error should map to a 4xx response rather
// than a 5xx one.
func IsClientError(err error) bool {
	var v *models.ValidationError
	return errors.As(err, &v)
}

// result is the terminal outcome handed from the worker to a waiting façade
// call.
type result struct {
	url string
	err error
}

// waiters bridges the synchronous façade and the asynchronous worker: one
// registered channel per in-flight request.
type waiters struct {
	mu sync.Mutex
	m  map[int64]chan result
}

func newWaiters() *waiters {
	return &waiters{m: make(map[int64]chan result)}
}

func (w *waiters) register(requestID int64) <-chan result {
	ch := make(chan result, 1)
	w.mu.Lock()
	w.m[requestID] = ch
	w.mu.Unlock()
	return ch
}

func (w *waiters) drop(requestID int64) {
	w.mu.Lock()
	delete(w.m, requestID)
	w.mu.Unlock()
}

// resolve delivers a terminal outcome at most once. Outcomes for abandoned or
// already-resolved requests are dropped.
func (w *waiters) resolve(requestID int64, url string, err error) {
	w.mu.Lock()
	ch, ok := w.m[requestID]
	if ok {
		delete(w.m, requestID)
	}
	w.mu.Unlock()

	if ok {
		ch <- result{url: url, err: err}
	}
}
