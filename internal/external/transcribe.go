package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"mizan/internal/config"
	"mizan/internal/types"
)

// transcriptionModel is the Whisper model used for voice incident reports.
const transcriptionModel = "whisper-1"

// TranscriptionClient converts voice-note audio into text via the OpenAI
// audio transcriptions endpoint. Used when staff report incidents by voice
// message instead of typing.
type TranscriptionClient struct {
	base   *BaseClient
	cfg    config.AgentConfig
	logger *slog.Logger
}

// NewTranscriptionClient creates a TranscriptionClient. Returns nil when no
// API key is configured; callers treat a nil client as "transcription
// disabled" and fall back to asking the user to type the report.
func NewTranscriptionClient(httpClient *http.Client, cfg config.AgentConfig, logger *slog.Logger) *TranscriptionClient {
	if cfg.TranscriptionAPIKey == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"transcription",
		RetryPolicy{
			MaxRetries: 1,
			MinWait:    time.Second,
			MaxWait:    5 * time.Second,
		},
		"Mizan/1.0",
	)

	return &TranscriptionClient{base: base, cfg: cfg, logger: logger}
}

// Transcribe submits audio bytes for transcription and returns the text.
// filename carries the extension the endpoint uses to sniff the container
// format (WhatsApp voice notes are .ogg opus).
func (c *TranscriptionClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "voice-note.ogg"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"Transcribe: failed to build multipart body",
			err,
		)
	}
	if _, err := part.Write(audio); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"Transcribe: failed to write audio payload",
			err,
		)
	}
	if err := mw.WriteField("model", transcriptionModel); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"Transcribe: failed to write model field",
			err,
		)
	}
	if err := mw.Close(); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"Transcribe: failed to finalize multipart body",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TranscriptionURL, &buf)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"Transcribe: failed to create request",
			err,
		)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.TranscriptionAPIKey)

	resp, err := c.base.Do(req)
	if err != nil {
		if _, ok := types.AsAppError(err); ok {
			return "", err
		}
		return "", types.NewAppError(types.ErrCodeUpstreamTranscribe, "Transcribe: request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamTranscribe,
			"Transcribe: failed to read response body",
			err,
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", types.NewAppError(
			types.ErrCodeUpstreamTranscribe,
			fmt.Sprintf("Transcribe: transcription API error (%d)", resp.StatusCode),
			nil,
		)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamTranscribe,
			"Transcribe: failed to decode transcription response",
			err,
		)
	}

	return strings.TrimSpace(parsed.Text), nil
}
