package moderation

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

// ErrTransport: классификатор недоступен или ответил не по протоколу.
// Такой отказ не означает, что контент запрещён.
var ErrTransport = errors.New("moderation transport failure")

const defaultTimeout = 10 * time.Second

// maxResponseBytes ограничивает чтение ответа классификатора.
const maxResponseBytes = 1 << 20

// Result: вердикт удалённого классификатора для одного текста.
type Result struct {
	Flagged    bool
	Categories map[string]bool
}

// Classifier: удалённая классификация текста.
type Classifier interface {
	Classify(ctx context.Context, input string) (Result, error)
}

// Client вызывает HTTP API модерации (формат OpenAI moderations). Если URL пустой,
// каждый вызов возвращает ErrTransport, т.е. гейт пропускает контент в деградированном режиме.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт клиент. timeout <= 0, 10s.
func NewClient(url, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	Input string `json:"input"`
}

type classifyResponse struct {
	Results []struct {
		Flagged    bool           `json:"flagged"`
		Categories map[string]any `json:"categories"`
	} `json:"results"`
}

func (c *Client) Classify(ctx context.Context, input string) (Result, error) {
	if c.url == "" {
		return Result{}, fmt.Errorf("%w: classifier url not configured", ErrTransport)
	}
	body, err := json.Marshal(classifyRequest{Input: input})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return Result{}, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}
	var out classifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("%w: decode: %v", ErrTransport, err)
	}
	if len(out.Results) == 0 {
		return Result{}, fmt.Errorf("%w: empty results", ErrTransport)
	}
	first := out.Results[0]
	res := Result{Flagged: first.Flagged, Categories: make(map[string]bool, len(first.Categories))}
	for k, v := range first.Categories {
		if b, ok := v.(bool); ok {
			res.Categories[k] = b
		}
	}
	return res, nil
}
