package speech

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTranscribeParsesText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speech-to-text" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("xi-api-key"); got != "el-key" {
			t.Errorf("unexpected api key header: %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("request is not multipart: %v", err)
		}
		if got := r.FormValue("model_id"); got == "" {
			t.Error("model_id field missing")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hello from the candidate"}`))
	}))
	defer srv.Close()

	client, err := NewElevenLabsClient("el-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewElevenLabsClient failed: %v", err)
	}
	text, err := client.Transcribe(context.Background(), []byte("fake-webm"), "clip.webm", "audio/webm")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello from the candidate" {
		t.Errorf("unexpected transcript: %q", text)
	}
}

func TestTranscribeRejectsEmptyPayload(t *testing.T) {
	t.Parallel()

	client, err := NewElevenLabsClient("el-key")
	if err != nil {
		t.Fatalf("NewElevenLabsClient failed: %v", err)
	}
	if _, err := client.Transcribe(context.Background(), nil, "a.webm", "audio/webm"); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestSynthesizeEncodesAudio(t *testing.T) {
	t.Parallel()

	mp3 := []byte{0xFF, 0xFB, 0x90, 0x00}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/text-to-speech/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write(mp3)
	}))
	defer srv.Close()

	client, err := NewElevenLabsClient("el-key", WithBaseURL(srv.URL), WithVoice("voice-1"))
	if err != nil {
		t.Fatalf("NewElevenLabsClient failed: %v", err)
	}
	audio, err := client.Synthesize(context.Background(), "thanks for joining")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if audio.Mime != "audio/mpeg" {
		t.Errorf("unexpected mime: %s", audio.Mime)
	}
	if audio.Base64 != base64.StdEncoding.EncodeToString(mp3) {
		t.Errorf("audio not base64-encoded correctly: %q", audio.Base64)
	}
}

func TestSynthesizeSurfacesAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid key"}`))
	}))
	defer srv.Close()

	client, err := NewElevenLabsClient("bad-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewElevenLabsClient failed: %v", err)
	}
	if _, err := client.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
