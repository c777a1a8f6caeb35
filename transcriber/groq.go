package transcriber

import (
	"context"
	"encoding/json"
)

type Groq struct {
	baseTranscriber
}

func NewGroq(apiKey string) *Groq {
	apiURL := "https://api.groq.com/openai/v1/audio/transcriptions"
	return &Groq{
		baseTranscriber: baseTranscriber{
			client: NewTracedClient(apiURL),
			apiURL: apiURL,
			apiKey: apiKey,
			model:  "whisper-large-v3-turbo",
		},
	}
}

func (g *Groq) Name() string { return "groq" }

type groqResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Text         string  `json:"text"`
		NoSpeechProb float64 `json:"no_speech_prob"`
		AvgLogProb   float64 `json:"avg_logprob"`
	} `json:"segments"`
}

func (g *Groq) Transcribe(ctx context.Context, path string) (*Result, error) {
	resp, err := g.postFile(ctx, g.Name(), path, [][2]string{
		{"model", g.model},
		{"response_format", "verbose_json"},
		{"language", g.lang},
	})
	if err != nil {
		return nil, err
	}

	var gResp groqResponse
	if err := json.Unmarshal(resp.Body, &gResp); err != nil {
		return nil, parseError(g.Name(), err)
	}

	// Highest no-speech probability and mean log probability across
	// the provider's own sub-segments.
	var noSpeechProb, avgLogProb float64
	if len(gResp.Segments) > 0 {
		var logProbSum float64
		for _, seg := range gResp.Segments {
			noSpeechProb = max(noSpeechProb, seg.NoSpeechProb)
			logProbSum += seg.AvgLogProb
		}
		avgLogProb = logProbSum / float64(len(gResp.Segments))
	}

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:         gResp.Text,
		Metrics:      resp.Metrics,
		RateLimit:    remaining + "/" + limit,
		NoSpeechProb: noSpeechProb,
		AvgLogProb:   avgLogProb,
		Duration:     gResp.Duration,
	}, nil
}
