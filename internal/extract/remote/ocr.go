// Package remote implements the extract interfaces against HTTP services.
// All clients propagate the caller's context and trace via otelhttp, so an
// extraction deadline set by the pipeline cancels the request in flight.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config configures a remote extraction client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// OCRClient calls an OCR service that accepts a multipart file upload and
// returns extracted text with a confidence score.
type OCRClient struct {
	baseURL string
	client  *http.Client
}

func NewOCRClient(cfg Config) *OCRClient {
	return &OCRClient{
		baseURL: cfg.BaseURL,
		client:  newHTTPClient(cfg.Timeout),
	}
}

type ocrResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

func (c *OCRClient) ExtractText(ctx context.Context, content []byte, contentType string) (string, float64, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fw, err := writer.CreateFormFile("file", "document")
	if err != nil {
		return "", 0, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(content); err != nil {
		return "", 0, fmt.Errorf("write form file: %w", err)
	}
	if err := writer.WriteField("content_type", contentType); err != nil {
		return "", 0, fmt.Errorf("write form field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", &buf)
	if err != nil {
		return "", 0, fmt.Errorf("create ocr request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", 0, fmt.Errorf("ocr service returned %d: %s", resp.StatusCode, body)
	}

	var out ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("decode ocr response: %w", err)
	}
	if out.Error != "" {
		return "", 0, fmt.Errorf("ocr service: %s", out.Error)
	}
	return out.Text, out.Confidence, nil
}
