package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Fingerprint is a Redis-backed cache mapping a request signature to the URL
// of a previously produced result. Entries expire after a fixed TTL; they are
// written only on successful completion.
type Fingerprint struct {
	client *redis.Client
	ttl    time.Duration
}

func NewFingerprint(redisURL string, ttl time.Duration) (*Fingerprint, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Fingerprint{client: client, ttl: ttl}, nil
}

func (f *Fingerprint) Close() error {
	return f.client.Close()
}

// Key derives the deterministic signature for a submission. The raw tuple is
// hashed so arbitrary text never ends up inside a Redis key.
func Key(userID int64, text, language, modelName string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d\x00%s\x00%s\x00%s", userID, text, language, modelName)))
	return "speech:" + hex.EncodeToString(sum[:])
}

// Get returns the cached URL for a key, or "" on a miss.
func (f *Fingerprint) Get(ctx context.Context, key string) (string, error) {
	url, err := f.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache get failed: %w", err)
	}
	return url, nil
}

// Set stores a result URL under the key with the configured TTL.
func (f *Fingerprint) Set(ctx context.Context, key, url string) error {
	return f.client.Set(ctx, key, url, f.ttl).Err()
}
