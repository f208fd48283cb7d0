package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"medindex/internal/model"
)

// NERClient calls an entity recognition service over JSON.
type NERClient struct {
	baseURL string
	client  *http.Client
}

func NewNERClient(cfg Config) *NERClient {
	return &NERClient{
		baseURL: cfg.BaseURL,
		client:  newHTTPClient(cfg.Timeout),
	}
}

type nerEntity struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

type nerResponse struct {
	Entities []nerEntity `json:"entities"`
	Error    string      `json:"error,omitempty"`
}

func (c *NERClient) ExtractEntities(ctx context.Context, text string) ([]model.Entity, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/entities", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create ner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ner request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ner service returned %d: %s", resp.StatusCode, body)
	}

	var out nerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ner response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ner service: %s", out.Error)
	}

	entities := make([]model.Entity, 0, len(out.Entities))
	for _, e := range out.Entities {
		entities = append(entities, model.Entity{
			Text:       e.Text,
			Label:      model.ParseEntityLabel(e.Label),
			Start:      e.Start,
			End:        e.End,
			Confidence: e.Confidence,
		})
	}
	return entities, nil
}
