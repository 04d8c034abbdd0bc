package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL  = "https://api.elevenlabs.io/v1"
	defaultVoiceID  = "21m00Tcm4TlvDq8ikWAM" // Rachel
	defaultSTTModel = "scribe_v1"
	defaultTTSModel = "eleven_turbo_v2_5"
)

// ElevenLabsClient implements Transcriber and Synthesizer against the
// ElevenLabs HTTP API.
type ElevenLabsClient struct {
	apiKey   string
	voiceID  string
	sttModel string
	ttsModel string
	baseURL  string
	client   *http.Client
}

// ElevenLabsOption customizes the client.
type ElevenLabsOption func(*ElevenLabsClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) ElevenLabsOption {
	return func(c *ElevenLabsClient) {
		if trimmed := strings.TrimSuffix(strings.TrimSpace(url), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithVoice overrides the TTS voice.
func WithVoice(voiceID string) ElevenLabsOption {
	return func(c *ElevenLabsClient) {
		if voiceID != "" {
			c.voiceID = voiceID
		}
	}
}

// WithModels overrides the STT and TTS model identifiers.
func WithModels(sttModel, ttsModel string) ElevenLabsOption {
	return func(c *ElevenLabsClient) {
		if sttModel != "" {
			c.sttModel = sttModel
		}
		if ttsModel != "" {
			c.ttsModel = ttsModel
		}
	}
}

// NewElevenLabsClient creates a speech client. The API key is required;
// callers that have no key should leave speech disabled instead.
func NewElevenLabsClient(apiKey string, opts ...ElevenLabsOption) (*ElevenLabsClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("elevenlabs api key is required")
	}
	c := &ElevenLabsClient{
		apiKey:   strings.TrimSpace(apiKey),
		voiceID:  defaultVoiceID,
		sttModel: defaultSTTModel,
		ttsModel: defaultTTSModel,
		baseURL:  defaultBaseURL,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Transcribe converts audio bytes to text.
func (c *ElevenLabsClient) Transcribe(ctx context.Context, data []byte, filename, mime string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty audio payload")
	}
	if filename == "" {
		filename = "audio.webm"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build multipart form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write audio payload: %w", err)
	}
	if err := mw.WriteField("model_id", c.sttModel); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finalize multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/speech-to-text", &body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return parsed.Text, nil
}

// Synthesize converts text to speech, returning MP3 audio as base64.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string) (*Audio, error) {
	payload, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": c.ttsModel,
		"voice_settings": map[string]float64{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", c.baseURL, c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("synthesis failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read synthesis response: %w", err)
	}

	return &Audio{
		Base64: base64.StdEncoding.EncodeToString(audio),
		Mime:   "audio/mpeg",
	}, nil
}

// Interface checks.
var (
	_ Transcriber = (*ElevenLabsClient)(nil)
	_ Synthesizer = (*ElevenLabsClient)(nil)
)
