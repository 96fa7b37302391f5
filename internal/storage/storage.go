package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const audioContentType = "audio/wav"

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	PublicBaseURL string // empty = https://<endpoint>

	// DiskThreshold is the payload size, in bytes, at which uploads are
	// staged through a local file instead of an in-memory reader. Large
	// buffers get re-read by the client on retries; a file does not.
	DiskThreshold int64

	// StagingDir holds the short-lived staging files for large uploads.
	StagingDir string
}

// Storage uploads synthesized audio to an S3-compatible bucket and hands back
// directly fetchable URLs.
type Storage struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
	diskThreshold int64
	stagingDir    string
}

func New(cfg Config) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: true,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init storage client: %w", err)
	}

	publicBase := cfg.PublicBaseURL
	if publicBase == "" {
		publicBase = "https://" + cfg.Endpoint
	}

	threshold := cfg.DiskThreshold
	if threshold <= 0 {
		threshold = 5 * 1024 * 1024
	}

	stagingDir := cfg.StagingDir
	if stagingDir == "" {
		stagingDir = os.TempDir()
	}

	return &Storage{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(publicBase, "/"),
		diskThreshold: threshold,
		stagingDir:    stagingDir,
	}, nil
}

// Upload stores audio bytes under audio/<namespace>/<generated name> and
// returns the public URL plus the generated object file name.
func (s *Storage) Upload(ctx context.Context, data []byte, namespace, modelName string) (string, string, error) {
	fileName := GenerateObjectName(modelName)
	objectKey := path.Join("audio", sanitizeSegment(namespace), fileName)

	opts := minio.PutObjectOptions{
		ContentType:  audioContentType,
		UserMetadata: map[string]string{"uploaded-at": time.Now().Format(time.RFC3339)},
	}

	var err error
	if int64(len(data)) >= s.diskThreshold {
		err = s.uploadFromDisk(ctx, objectKey, data, opts)
	} else {
		_, err = s.client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(data), int64(len(data)), opts)
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to upload %s: %w", objectKey, err)
	}

	return s.PublicURL(objectKey), fileName, nil
}

// uploadFromDisk stages the payload to a local file and uploads from there.
// The staging file is removed on every exit path.
func (s *Storage) uploadFromDisk(ctx context.Context, objectKey string, data []byte, opts minio.PutObjectOptions) error {
	staging, err := os.CreateTemp(s.stagingDir, "upload-*.wav")
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}
	stagingPath := staging.Name()
	defer func() {
		if rmErr := os.Remove(stagingPath); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Printf("[Storage] Failed to remove staging file %s: %v", stagingPath, rmErr)
		}
	}()

	if _, err := staging.Write(data); err != nil {
		staging.Close()
		return fmt.Errorf("failed to write staging file: %w", err)
	}
	if err := staging.Close(); err != nil {
		return fmt.Errorf("failed to close staging file: %w", err)
	}

	log.Printf("[Storage] Payload %d bytes >= %d, uploading %s from disk", len(data), s.diskThreshold, objectKey)

	_, err = s.client.FPutObject(ctx, s.bucket, objectKey, stagingPath, opts)
	return err
}

// Download fetches an object's bytes. Used to materialize stored preset audio
// into a local temp file.
func (s *Storage) Download(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", objectKey, err)
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", objectKey, err)
	}

	return buf.Bytes(), nil
}

// PublicURL builds the directly fetchable URL for an object key.
func (s *Storage) PublicURL(objectKey string) string {
	escaped := url.PathEscape(objectKey)
	// Keep path separators readable
	escaped = strings.ReplaceAll(escaped, "%2F", "/")
	return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, s.bucket, escaped)
}

// ObjectKeyFromURL inverts PublicURL: it extracts the object key from a URL
// produced by this storage, rejecting URLs that point anywhere else.
func (s *Storage) ObjectKeyFromURL(rawURL string) (string, error) {
	prefix := s.publicBaseURL + "/" + s.bucket + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", fmt.Errorf("url %q is not served by this storage", rawURL)
	}

	escaped := strings.TrimPrefix(rawURL, prefix)
	key, err := url.PathUnescape(escaped)
	if err != nil {
		return "", fmt.Errorf("url %q has a malformed object key: %w", rawURL, err)
	}
	if key == "" {
		return "", fmt.Errorf("url %q has an empty object key", rawURL)
	}

	return key, nil
}

// GenerateObjectName builds a collision-resistant object file name:
// <model>_<unix-ms>-<random>.wav.
func GenerateObjectName(modelName string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s_%d-%s.wav", sanitizeSegment(modelName), time.Now().UnixMilli(), suffix)
}

// sanitizeSegment keeps user-supplied values safe to embed in an object key.
func sanitizeSegment(s string) string {
	if s == "" {
		return "anonymous"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ':
			return '_'
		}
		return r
	}, s)
}
