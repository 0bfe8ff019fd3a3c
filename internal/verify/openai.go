package verify

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type openaiTranscriber struct {
	client *openai.Client
	model  string
}

func newOpenAITranscriber(apiKey, model string, opts *clientOptions) *openaiTranscriber {
	config := openai.DefaultConfig(apiKey)
	if opts.baseURL != "" {
		config.BaseURL = opts.baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &openaiTranscriber{client: openai.NewClientWithConfig(config), model: model}
}

func (t *openaiTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: path,
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
