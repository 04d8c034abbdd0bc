// Package speech provides speech-to-text and text-to-speech ports backed by
// the ElevenLabs API.
package speech

import "context"

// Audio is synthesized speech ready to embed in a JSON response.
type Audio struct {
	Base64 string `json:"audio_base64"`
	Mime   string `json:"audio_mime"`
}

// Transcriber converts candidate audio to text. Transcription failure is a
// hard failure of the turn: there is no text to process without it.
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, filename, mime string) (string, error)
}

// Synthesizer voices interviewer utterances. Synthesis failure is soft: the
// turn proceeds with text only.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Audio, error)
}
