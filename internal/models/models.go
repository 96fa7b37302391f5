package models

import (
	"time"
)

// Enums
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusProcessing RequestStatus = "processing"
	RequestStatusCompleted  RequestStatus = "completed"
	RequestStatusFailed     RequestStatus = "failed"
)

// Terminal reports whether a status is final. A request never leaves a
// terminal status.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusFailed
}

// Models

// SynthesisRequest is the persisted record for one submitted synthesis job.
// Created by the façade with status pending; status is mutated only by the
// worker (and by the watchdog on its behalf).
type SynthesisRequest struct {
	ID        int64         `json:"id"`
	UserID    int64         `json:"user_id"`
	UserEmail string        `json:"user_email"`
	Text      string        `json:"text"`
	Language  string        `json:"text_language"`
	ModelName string        `json:"model_name"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AudioArtifact records a synthesized audio file that has been uploaded to
// durable storage. Written once, on success, and immutable afterwards.
type AudioArtifact struct {
	ID        int64     `json:"id"`
	RequestID int64     `json:"request_id"`
	FileName  string    `json:"file_name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryEntry is one row of a user's request history: the request joined
// with its artifact URL when one exists.
type HistoryEntry struct {
	ID          int64         `json:"id"`
	Text        string        `json:"text"`
	Language    string        `json:"text_language"`
	ModelName   string        `json:"model_name"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	DownloadURL *string       `json:"download_url,omitempty"`
}

// HistoryFilter narrows a history query. Zero values mean "no filter".
type HistoryFilter struct {
	Keyword   string
	ModelName string
	Status    RequestStatus
	Limit     int
	Offset    int
}

// DTOs for API responses

type GenerateRequest struct {
	Text           string `json:"text"`
	Language       string `json:"text_language"`
	ModelName      string `json:"model_name"`
	Username       string `json:"username,omitempty"`
	PromptText     string `json:"prompt_text,omitempty"`
	PromptLanguage string `json:"prompt_language,omitempty"`
	PresetAudioURL string `json:"preset_audio_url,omitempty"`
}

type GenerateResponse struct {
	DownloadLink string `json:"downloadLink"`
}

type HistoryResponse struct {
	Entries []HistoryEntry `json:"history"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}
