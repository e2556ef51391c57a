package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Embedder produces CLIP embeddings for images and texts in the same vector space.
type Embedder interface {
	EmbedImage(ctx context.Context, jpeg []byte) ([]float64, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float64, error)
}

// Options configures a CLIPClient. Model defaults to ViT-B/32 and Timeout to 120s.
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// CLIPClient talks to an OpenAI-style /v1/embeddings endpoint served by a CLIP model.
type CLIPClient struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewCLIPClient returns a client for opts.BaseURL, which is required.
func NewCLIPClient(opts Options) (*CLIPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("clip base url required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "ViT-B/32"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &CLIPClient{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		model:      model,
		timeout:    timeout,
		httpClient: hc,
	}, nil
}

type imageInput struct {
	Image string `json:"image"`
}

type embeddingsRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// EmbedImage sends jpeg as a base64 data URI and returns its embedding.
func (c *CLIPClient) EmbedImage(ctx context.Context, jpeg []byte) ([]float64, error) {
	if len(jpeg) == 0 {
		return nil, errors.New("empty image payload")
	}
	uri := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
	out, err := c.embed(ctx, []imageInput{{Image: uri}}, 1)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedTexts embeds texts in one request; the result is ordered like texts.
func (c *CLIPClient) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	return c.embed(ctx, texts, len(texts))
}

func (c *CLIPClient) embed(ctx context.Context, input any, n int) ([][]float64, error) {
	var resp embeddingsResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/embeddings", embeddingsRequest{Model: c.model, Input: input}, &resp); err != nil {
		return nil, err
	}
	out := make([][]float64, n)
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < n {
			out[d.Index] = d.Embedding
		}
	}
	for i := range out {
		if len(out[i]) == 0 {
			return nil, fmt.Errorf("%w: %d", ErrMissingEmbeddingAt, i)
		}
	}
	return out, nil
}

func (c *CLIPClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseHTTPError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode embedding response: %w", err)
	}
	return nil
}
