package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTP implements the Extractor interface against a plain JSON endpoint.
//
// The request body is {"instructions": ..., "image": {"mimeType": ..., "data": ...}}.
// The reply text is read from "text", "response" or Ollama's "message.content".
type HTTP struct {
	url     string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

// NewHTTP creates a new HTTP Extractor instance
func NewHTTP(url string, apiKey string, timeout time.Duration) (*HTTP, error) {
	if url == "" {
		return nil, fmt.Errorf("extraction url is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &HTTP{
		url:     url,
		apiKey:  apiKey,
		timeout: timeout,
		client:  &http.Client{},
	}, nil
}

type extractRequest struct {
	Instructions string       `json:"instructions"`
	Image        EncodedImage `json:"image"`
}

type extractResponse struct {
	Text     string `json:"text"`
	Response string `json:"response"`
	Message  struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Extract posts the image and instructions and returns the reply text
func (h *HTTP) Extract(ctx context.Context, image EncodedImage, instructions string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	jsonData, err := json.Marshal(extractRequest{Instructions: instructions, Image: image})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", serviceError(ctx, fmt.Errorf("calling extraction API: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", serviceError(ctx, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &ServiceError{Kind: Status, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", bytes.TrimSpace(body))}
	}

	var out extractResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &ServiceError{Kind: Envelope, Err: fmt.Errorf("decoding response: %w", err)}
	}

	switch {
	case out.Text != "":
		return out.Text, nil
	case out.Response != "":
		return out.Response, nil
	case out.Message.Content != "":
		return out.Message.Content, nil
	}
	return "", &ServiceError{Kind: Envelope, Err: errors.New("response has no text")}
}

// Close is a no-op for the HTTP client
func (h *HTTP) Close() error {
	return nil
}
