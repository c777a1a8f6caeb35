package transcriber

import (
	"context"
	"encoding/json"
)

type OpenAI struct {
	baseTranscriber
}

func NewOpenAI(apiKey string) *OpenAI {
	apiURL := "https://api.openai.com/v1/audio/transcriptions"
	return &OpenAI{
		baseTranscriber: baseTranscriber{
			client: NewTracedClient(apiURL),
			apiURL: apiURL,
			apiKey: apiKey,
			model:  "whisper-1",
		},
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Transcribe(ctx context.Context, path string) (*Result, error) {
	resp, err := o.postFile(ctx, o.Name(), path, [][2]string{
		{"model", o.model},
		{"response_format", "json"},
		{"language", o.lang},
	})
	if err != nil {
		return nil, err
	}

	var oResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &oResp); err != nil {
		return nil, parseError(o.Name(), err)
	}

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:      oResp.Text,
		Metrics:   resp.Metrics,
		RateLimit: remaining + "/" + limit,
	}, nil
}
