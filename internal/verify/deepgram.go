package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	prerecorded "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

const defaultDeepgramModel = "nova-2"

var initDeepgram sync.Once

type deepgramTranscriber struct {
	model    string
	fromFile func(ctx context.Context, path string, opts *interfaces.PreRecordedTranscriptionOptions) (any, error)
}

func newDeepgramTranscriber(apiKey, model string, opts *clientOptions) *deepgramTranscriber {
	initDeepgram.Do(func() {
		client.Init(client.InitLib{LogLevel: client.LogLevelDefault})
	})

	cOptions := &interfaces.ClientOptions{}
	if opts.baseURL != "" {
		cOptions.Host = opts.baseURL
	}
	dg := prerecorded.New(client.NewREST(apiKey, cOptions))

	if model == "" {
		model = defaultDeepgramModel
	}
	return &deepgramTranscriber{
		model: model,
		fromFile: func(ctx context.Context, path string, o *interfaces.PreRecordedTranscriptionOptions) (any, error) {
			return dg.FromFile(ctx, path, o)
		},
	}
}

func (t *deepgramTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	res, err := t.fromFile(ctx, path, &interfaces.PreRecordedTranscriptionOptions{
		Model:       t.model,
		SmartFormat: true,
		Punctuate:   true,
	})
	if err != nil {
		return "", fmt.Errorf("deepgram transcription: %w", err)
	}
	return firstTranscript(res)
}

// firstTranscript pulls the top alternative of the first channel out of a
// pre-recorded response.
func firstTranscript(res any) (string, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("encode deepgram response: %w", err)
	}

	var body struct {
		Results *struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("decode deepgram response: %w", err)
	}
	if body.Results == nil || len(body.Results.Channels) == 0 || len(body.Results.Channels[0].Alternatives) == 0 {
		return "", errors.New("deepgram: no transcript in response")
	}

	return strings.TrimSpace(body.Results.Channels[0].Alternatives[0].Transcript), nil
}
