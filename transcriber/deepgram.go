package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
)

type Deepgram struct {
	baseTranscriber
}

func NewDeepgram(apiKey string) *Deepgram {
	return &Deepgram{
		baseTranscriber: baseTranscriber{
			client: NewTracedClient("https://api.deepgram.com"),
			apiURL: "https://api.deepgram.com/v1/listen",
			apiKey: apiKey,
			model:  "nova-3",
			lang:   "en",
		},
	}
}

func (d *Deepgram) Name() string { return "deepgram" }

type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (d *Deepgram) Transcribe(ctx context.Context, path string) (*Result, error) {
	audioData, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Provider: d.Name(), Err: err}
	}

	q := url.Values{}
	q.Set("model", d.model)
	q.Set("smart_format", "true")
	if d.lang != "" {
		q.Set("language", d.lang)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", d.apiURL+"?"+q.Encode(), bytes.NewReader(audioData))
	if err != nil {
		return nil, &Error{Provider: d.Name(), Err: err}
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", contentType(path))

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, transportError(d.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(d.Name(), resp)
	}

	var dgResp deepgramResponse
	if err := json.Unmarshal(resp.Body, &dgResp); err != nil {
		return nil, parseError(d.Name(), err)
	}

	var text string
	var confidence float64
	if len(dgResp.Results.Channels) > 0 && len(dgResp.Results.Channels[0].Alternatives) > 0 {
		alt := dgResp.Results.Channels[0].Alternatives[0]
		text = alt.Transcript
		confidence = alt.Confidence
	}

	remaining := firstNonEmpty(resp.Header,
		"x-dg-ratelimit-remaining", "x-ratelimit-remaining", "ratelimit-remaining")
	limit := firstNonEmpty(resp.Header,
		"x-dg-ratelimit-limit", "x-ratelimit-limit", "ratelimit-limit")

	return &Result{
		Text:       text,
		Metrics:    resp.Metrics,
		RateLimit:  remaining + "/" + limit,
		Confidence: confidence,
		Duration:   dgResp.Metadata.Duration,
	}, nil
}
