// Package llm wraps the Gen AI SDK behind the small surface the extraction
// pipeline and the agent need: plain completion, completion with an attached
// file, and audio transcription.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/nmorozov/kopilka/internal/config"
)

// Client is a thin wrapper over the Gen AI client. It is safe for concurrent
// use; the underlying SDK client handles its own connection pooling.
type Client struct {
	client      *genai.Client
	textModel   string
	visionModel string
	timeout     time.Duration
	log         zerolog.Logger
}

// NewClient creates a Gen AI client. Vertex vs Gemini Dev is controlled via
// env vars:
//   - GOOGLE_GENAI_USE_VERTEXAI=True -> Vertex AI
//   - GOOGLE_CLOUD_PROJECT
//   - GOOGLE_CLOUD_LOCATION
func NewClient(ctx context.Context, cfg config.GeminiConfig, log zerolog.Logger) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		// API version v1 is what docs use for current Gemini models.
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create genai client: %w", err)
	}

	return &Client{
		client:      client,
		textModel:   cfg.TextModel,
		visionModel: cfg.VisionModel,
		timeout:     cfg.Timeout,
		log:         log,
	}, nil
}

// Complete sends a text-only prompt and returns the raw model text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.textModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("llm: generate content: %w", err)
	}

	text := resp.Text()
	c.log.Debug().
		Str("model", c.textModel).
		Int("prompt_len", len(prompt)).
		Int("response_len", len(text)).
		Msg("Completion finished")

	return text, nil
}

// CompleteWithFile sends a prompt plus inline file bytes (image or PDF) to
// the vision model.
func (c *Client) CompleteWithFile(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     data,
					},
				},
			},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.visionModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("llm: generate content with file: %w", err)
	}

	text := resp.Text()
	c.log.Debug().
		Str("model", c.visionModel).
		Str("mime_type", mimeType).
		Int("file_size", len(data)).
		Int("response_len", len(text)).
		Msg("File completion finished")

	return text, nil
}

// Transcribe turns an audio recording into plain text. Gemini handles the
// common messenger formats (ogg/opus, mp3, wav) natively, so no separate
// speech-to-text service is needed.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	prompt := "Transcribe this audio recording verbatim.\n" +
		"The speaker most likely talks in Russian about money.\n" +
		"Return ONLY the transcribed text, no commentary, no timestamps."

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     audio,
					},
				},
			},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.textModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("llm: transcribe audio: %w", err)
	}

	return strings.TrimSpace(resp.Text()), nil
}

// Chat runs one multi-turn completion for the assistant agent. History comes
// in oldest-first; the last element is the current user message.
func (c *Client) Chat(ctx context.Context, model string, history []ChatTurn) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		contents = append(contents, &genai.Content{
			Role:  turn.Role,
			Parts: []*genai.Part{{Text: turn.Text}},
		})
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("llm: chat: %w", err)
	}

	return resp.Text(), nil
}

// ChatTurn is one message in an agent conversation. Role is "user" or
// "model", matching the Gen AI wire roles.
type ChatTurn struct {
	Role string
	Text string
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
