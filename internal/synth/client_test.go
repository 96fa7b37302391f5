package synth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/voxlab/speechforge/internal/models"
)

func TestSynthesizeReturnsAudio(t *testing.T) {
	var got plainRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFFaudio"))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.URL)
	audio, err := c.Synthesize(context.Background(), "hello", "en", "m1", time.Second)
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}

	if string(audio) != "RIFFaudio" {
		t.Errorf("unexpected audio bytes: %q", audio)
	}
	if got.Text != "hello" || got.Language != "en" || got.ModelName != "m1" {
		t.Errorf("backend received wrong payload: %+v", got)
	}
}

func TestSynthesizeNon200IsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message": "model not loaded"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.URL)
	_, err := c.Synthesize(context.Background(), "hello", "en", "m1", time.Second)

	var up *models.UpstreamError
	if !errors.As(err, &up) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if up.Status != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", up.Status)
	}
	if !strings.Contains(up.Msg, "model not loaded") {
		t.Errorf("expected the envelope message to surface, got %q", up.Msg)
	}
}

func TestSynthesizeJSONBodyOn200IsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"detail": "text too long for model"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.URL)
	_, err := c.Synthesize(context.Background(), "hello", "en", "m1", time.Second)

	var up *models.UpstreamError
	if !errors.As(err, &up) {
		t.Fatalf("expected UpstreamError for JSON-typed 200, got %v", err)
	}
	if !strings.Contains(up.Msg, "text too long for model") {
		t.Errorf("expected the detail field to surface, got %q", up.Msg)
	}
}

func TestSynthesizeEmptyBodyIsEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
	}))
	defer server.Close()

	c := NewClient(server.URL, server.URL)
	_, err := c.Synthesize(context.Background(), "hello", "en", "m1", time.Second)

	var empty *models.EmptyResponseError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptyResponseError, got %v", err)
	}
}

func TestSynthesizeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte("RIFFaudio"))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.URL)
	_, err := c.Synthesize(context.Background(), "hello", "en", "m1", 30*time.Millisecond)

	var to *models.TimeoutError
	if !errors.As(err, &to) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
}

func TestSynthesizeCallerCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte("RIFFaudio"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	c := NewClient(server.URL, server.URL)
	_, err := c.Synthesize(ctx, "hello", "en", "m1", 0)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var up *models.UpstreamError
	if errors.As(err, &up) {
		t.Error("a cancelled caller must not be reported as a backend fault")
	}
}

func TestSynthesizeUnreachableBackend(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "http://127.0.0.1:1")
	_, err := c.Synthesize(context.Background(), "hello", "en", "m1", time.Second)

	var up *models.UpstreamError
	if !errors.As(err, &up) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if up.Status != 0 {
		t.Errorf("unreachable backend should carry no HTTP status, got %d", up.Status)
	}
}

func TestSynthesizeWithReferenceStreamsForm(t *testing.T) {
	refPath := filepath.Join(t.TempDir(), "ref.wav")
	if err := os.WriteFile(refPath, []byte("RIFFreference"), 0o644); err != nil {
		t.Fatalf("failed to write reference file: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}

		for field, want := range map[string]string{
			"text":            "hello",
			"text_language":   "en",
			"model_name":      "m1",
			"prompt_text":     "a calm voice",
			"prompt_language": "en",
		} {
			if got := r.FormValue(field); got != want {
				t.Errorf("field %s = %q, want %q", field, got, want)
			}
		}

		file, header, err := r.FormFile("ref_wav_file")
		if err != nil {
			t.Errorf("missing ref_wav_file part: %v", err)
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Filename != "ref.wav" {
			t.Errorf("filename = %q, want ref.wav", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "RIFFreference" {
			t.Errorf("file content = %q", data)
		}

		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFFcloned"))
	}))
	defer server.Close()

	c := NewClient("http://unused.invalid", server.URL)
	ref := ReferenceInput{
		Path:           refPath,
		Filename:       "ref.wav",
		MimeType:       "audio/wav",
		PromptText:     "a calm voice",
		PromptLanguage: "en",
	}

	audio, err := c.SynthesizeWithReference(context.Background(), "hello", "en", "m1", ref, time.Second)
	if err != nil {
		t.Fatalf("synthesize with reference failed: %v", err)
	}
	if string(audio) != "RIFFcloned" {
		t.Errorf("unexpected audio bytes: %q", audio)
	}

	// The adapter holds the file open for the call but never deletes it.
	if _, err := os.Stat(refPath); err != nil {
		t.Errorf("reference file should still exist after the call: %v", err)
	}
}

func TestSynthesizeWithReferenceMissingFile(t *testing.T) {
	c := NewClient("http://unused.invalid", "http://unused.invalid")
	ref := ReferenceInput{Path: filepath.Join(t.TempDir(), "gone.wav"), Filename: "gone.wav"}

	_, err := c.SynthesizeWithReference(context.Background(), "hello", "en", "m1", ref, time.Second)

	var re *models.ResourceError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResourceError, got %v", err)
	}
}

func TestExtractErrorMessage(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"message": "boom"}`, "boom"},
		{`{"detail": "bad input"}`, "bad input"},
		{`plain text failure`, "plain text failure"},
		{``, "backend returned no error detail"},
	}

	for _, tc := range cases {
		if got := extractErrorMessage([]byte(tc.body)); got != tc.want {
			t.Errorf("extractErrorMessage(%q) = %q, want %q", tc.body, got, tc.want)
		}
	}
}
