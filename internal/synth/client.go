package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/voxlab/speechforge/internal/models"
)

// Client calls the external synthesis backend and normalizes every failure
// into the pipeline's typed errors. Nothing downstream inspects HTTP shapes.
type Client struct {
	apiURL    string // plain-text endpoint
	refAPIURL string // reference-audio endpoint
	client    *http.Client
}

// ReferenceInput is the reference-audio payload for a multipart call. The
// adapter opens the file itself and holds it open for the full duration of
// the call; it never deletes the file — that stays with the job's owner.
type ReferenceInput struct {
	Path           string
	Filename       string
	MimeType       string
	PromptText     string
	PromptLanguage string
}

func NewClient(apiURL, refAPIURL string) *Client {
	return &Client{
		apiURL:    apiURL,
		refAPIURL: refAPIURL,
		// No client-level timeout: short jobs get a per-call deadline,
		// long jobs run unbounded under the watchdog.
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
}

type plainRequest struct {
	Text      string `json:"text"`
	Language  string `json:"text_language"`
	ModelName string `json:"model_name"`
}

// Synthesize issues the plain-text synthesis call. timeout == 0 means the
// call runs unbounded (the watchdog path).
func (c *Client) Synthesize(ctx context.Context, text, language, modelName string, timeout time.Duration) ([]byte, error) {
	body, err := json.Marshal(plainRequest{Text: text, Language: language, ModelName: modelName})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	log.Printf("[Synth] Calling backend (textLen=%d, lang=%s, model=%s, timeout=%v)",
		len(text), language, modelName, timeout)

	return c.do(ctx, c.apiURL, "application/json", bytes.NewReader(body), timeout)
}

// SynthesizeWithReference issues the multipart reference-audio call. The
// reference file is streamed to the backend; the call does not return until
// the request body has been fully consumed, so the backing file may be
// deleted safely once this function returns.
func (c *Client) SynthesizeWithReference(ctx context.Context, text, language, modelName string, ref ReferenceInput, timeout time.Duration) ([]byte, error) {
	f, err := os.Open(ref.Path)
	if err != nil {
		return nil, &models.ResourceError{Path: ref.Path, Err: err}
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeReferenceForm(mw, f, text, language, modelName, ref)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	log.Printf("[Synth] Calling backend with reference audio (textLen=%d, lang=%s, model=%s, file=%s, timeout=%v)",
		len(text), language, modelName, ref.Filename, timeout)

	return c.do(ctx, c.refAPIURL, mw.FormDataContentType(), pr, timeout)
}

func writeReferenceForm(mw *multipart.Writer, f *os.File, text, language, modelName string, ref ReferenceInput) error {
	fields := map[string]string{
		"text":            text,
		"text_language":   language,
		"model_name":      modelName,
		"prompt_text":     ref.PromptText,
		"prompt_language": ref.PromptLanguage,
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	part, err := mw.CreateFormFile("ref_wav_file", ref.Filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to stream reference audio: %w", err)
	}

	return nil
}

// do runs the request and normalizes the outcome: audio bytes on success, a
// typed taxonomy error on every failure.
func (c *Client) do(ctx context.Context, url, contentType string, body io.Reader, timeout time.Duration) ([]byte, error) {
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		if timeout > 0 && errors.Is(err, context.DeadlineExceeded) {
			return nil, &models.TimeoutError{Budget: timeout.String()}
		}
		// A cancelled caller is not a backend fault.
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		return nil, &models.UpstreamError{Msg: fmt.Sprintf("cannot reach synthesis backend at %s: %v", url, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if timeout > 0 && errors.Is(err, context.DeadlineExceeded) {
			return nil, &models.TimeoutError{Budget: timeout.String()}
		}
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		return nil, &models.UpstreamError{Status: resp.StatusCode, Msg: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &models.UpstreamError{Status: resp.StatusCode, Msg: extractErrorMessage(data)}
	}

	// A JSON body where audio was expected is an error envelope
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return nil, &models.UpstreamError{Status: resp.StatusCode, Msg: extractErrorMessage(data)}
	}

	if len(data) == 0 {
		return nil, &models.EmptyResponseError{}
	}

	log.Printf("[Synth] Backend returned %d audio bytes", len(data))
	return data, nil
}

// extractErrorMessage pulls a human-readable message out of a backend error
// body, which may be a JSON envelope, a plain string, or garbage.
func extractErrorMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Detail != "" {
			return envelope.Detail
		}
	}

	s := strings.TrimSpace(string(body))
	if s == "" {
		return "backend returned no error detail"
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
