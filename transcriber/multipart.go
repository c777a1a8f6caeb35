package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// postFile uploads path as the "file" field of a multipart form, the
// request shape shared by the OpenAI-compatible endpoints.
func (b *baseTranscriber) postFile(ctx context.Context, provider, path string, fields [][2]string) (*TracedResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Provider: provider, Err: err}
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio"+filepath.Ext(path))
	if err != nil {
		return nil, &Error{Provider: provider, Err: err}
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, &Error{Provider: provider, Err: fmt.Errorf("reading %s: %w", filepath.Base(path), err)}
	}
	for _, kv := range fields {
		if kv[1] != "" {
			writer.WriteField(kv[0], kv[1])
		}
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", b.apiURL, &body)
	if err != nil {
		return nil, &Error{Provider: provider, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, transportError(provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(provider, resp)
	}
	return resp, nil
}
