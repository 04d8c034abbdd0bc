package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/interviewd/internal/domain"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

var errNoChoices = errors.New("chat completion returned no choices")

// OpenAIClient implements Generator and Evaluator against an OpenAI-style
// chat-completions endpoint.
type OpenAIClient struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// OpenAIOption customizes the client.
type OpenAIOption func(*OpenAIClient)

// WithEndpoint overrides the chat-completions endpoint.
func WithEndpoint(endpoint string) OpenAIOption {
	return func(c *OpenAIClient) {
		if trimmed := strings.TrimSpace(endpoint); trimmed != "" {
			c.endpoint = trimmed
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(c *OpenAIClient) {
		if client != nil {
			c.client = client
		}
	}
}

// NewOpenAIClient creates a chat-completions client.
func NewOpenAIClient(apiKey, model string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	if model == "" {
		model = "gpt-4o"
	}
	c := &OpenAIClient{
		apiKey:   strings.TrimSpace(apiKey),
		model:    model,
		endpoint: defaultOpenAIEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate produces an interviewer utterance for the given stage and context.
func (c *OpenAIClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	messages := []chatMessage{{Role: "system", Content: buildSystemPrompt(req)}}
	for _, m := range req.History {
		messages = append(messages, chatMessage{Role: roleFor(m.Speaker), Content: m.Text})
	}

	return c.complete(ctx, chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.5,
	})
}

// Evaluate rates a candidate answer. Unrecognized verdicts default to OKAY so
// a rambling model never counts against the candidate.
func (c *OpenAIClient) Evaluate(ctx context.Context, question, answer, expectedLevel string) (Judgment, error) {
	if expectedLevel == "" {
		expectedLevel = "mid"
	}
	prompt := fmt.Sprintf(`You are evaluating a technical interview answer.

QUESTION: %s
CANDIDATE ANSWER: %s
EXPECTED LEVEL: %s

Rate the answer:
- POOR: Wrong, "I don't know", nonsense, or completely off-topic
- OKAY: Partially correct, shows some understanding
- GOOD: Correct and appropriate for the level

Reply with ONLY one word: POOR, OKAY, or GOOD`, question, answer, expectedLevel)

	raw, err := c.complete(ctx, chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}

	switch verdict := Judgment(strings.ToUpper(strings.TrimSpace(raw))); verdict {
	case JudgmentPoor, JudgmentOkay, JudgmentGood:
		return verdict, nil
	default:
		return JudgmentOkay, nil
	}
}

// Complete answers a single free-form prompt. Used by the post-interview
// analysis pass, which builds its own prompt instead of a staged one.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.3,
	})
}

func (c *OpenAIClient) complete(ctx context.Context, req chatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("chat completion failed (%d): %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("chat completion failed with status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", errNoChoices
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func roleFor(speaker domain.Speaker) string {
	switch speaker {
	case domain.SpeakerCandidate:
		return "user"
	case domain.SpeakerInterviewer:
		return "assistant"
	default:
		return "system"
	}
}

// Interface checks.
var (
	_ Generator = (*OpenAIClient)(nil)
	_ Evaluator = (*OpenAIClient)(nil)
)
