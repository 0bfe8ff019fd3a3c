package verify

import (
	"context"
	"fmt"
)

// Transcriber turns a saved WAV file into the text a recognizer heard.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL string
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

func NewTranscriber(provider, apiKey, model string, opts ...Option) (Transcriber, error) {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case "openai":
		return newOpenAITranscriber(apiKey, model, o), nil
	case "deepgram":
		return newDeepgramTranscriber(apiKey, model, o), nil
	default:
		return nil, fmt.Errorf("unknown verify provider %q: supported providers are openai, deepgram", provider)
	}
}
