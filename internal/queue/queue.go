package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const QueueSynthesis = "queue:synthesis"

type Queue struct {
	client *redis.Client
}

// ReferenceAudio describes the temp-file handle carried by a reference-audio
// job. DeleteAfterUse marks the worker as the deletion owner.
type ReferenceAudio struct {
	Path           string `json:"path"`
	Filename       string `json:"filename"`
	MimeType       string `json:"mime_type"`
	PromptText     string `json:"prompt_text"`
	PromptLanguage string `json:"prompt_language"`
	DeleteAfterUse bool   `json:"delete_after_use"`
}

// Job is the queue-resident unit consumed exactly once by the worker.
// Reference == nil means a plain-text job; otherwise a reference-audio job.
type Job struct {
	RequestID int64           `json:"request_id"`
	Text      string          `json:"text"`
	Language  string          `json:"text_language"`
	ModelName string          `json:"model_name"`
	UserID    int64           `json:"user_id"`
	UserEmail string          `json:"user_email"`
	Username  string          `json:"username"`
	Reference *ReferenceAudio `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue appends a job to the tail of the synthesis queue. Jobs are dequeued
// in enqueue order; both job variants share the one queue so ordering holds
// across them.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, QueueSynthesis, data).Err()
}

// Dequeue blocks up to timeout for the next job. Returns (nil, nil) when the
// queue stayed empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueSynthesis).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, QueueSynthesis).Result()
}
