package pipeline

import (
	"context"
	"log"
	"time"
)

// Policy is the timeout policy for one job. Timeout == 0 means the synthesis
// call runs unbounded and the watchdog backstop applies instead.
type Policy struct {
	Timeout     time.Duration
	LongRunning bool
}

// Watchdog computes per-job timeout policies and arms the deferred failure
// check for long jobs. Short texts get a tight call-site deadline; long texts
// cannot, without false-positive failures, so a coarse backstop re-reads the
// persisted status after a fixed window and force-fails a request that is
// still processing.
type Watchdog struct {
	store        Store
	threshold    int           // texts at/above this rune count are long-running
	shortTimeout time.Duration // fixed deadline for short jobs
	maxWait      time.Duration // backstop window for long jobs
}

func NewWatchdog(store Store, threshold int, shortTimeout, maxWait time.Duration) *Watchdog {
	return &Watchdog{
		store:        store,
		threshold:    threshold,
		shortTimeout: shortTimeout,
		maxWait:      maxWait,
	}
}

// PolicyFor decides the policy from the text length.
func (w *Watchdog) PolicyFor(text string) Policy {
	if len([]rune(text)) < w.threshold {
		return Policy{Timeout: w.shortTimeout}
	}
	return Policy{LongRunning: true}
}

// Arm schedules the deferred check for a long-running request. When it fires
// it force-fails the request only if it is still processing; onFire is then
// invoked so the blocked submitter can be released. The returned cancel must
// be called once the job reaches a terminal state, so no timer dangles and no
// status is written twice.
func (w *Watchdog) Arm(requestID int64, onFire func()) (cancel func()) {
	timer := time.AfterFunc(w.maxWait, func() {
		ctx, cancelCheck := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelCheck()

		fired, err := w.store.FailIfProcessing(ctx, requestID)
		if err != nil {
			log.Printf("[Watchdog] Failed to check request %d: %v", requestID, err)
			return
		}
		if !fired {
			// The job finished first; nothing to do.
			return
		}

		log.Printf("[Watchdog] Request %d exceeded %v while processing, forced to failed", requestID, w.maxWait)
		if onFire != nil {
			onFire()
		}
	})

	return func() { timer.Stop() }
}
