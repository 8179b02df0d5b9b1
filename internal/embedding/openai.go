package embedding

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	// OpenAIDefaultBaseURL is the default embedding endpoint.
	OpenAIDefaultBaseURL = "https://api.openai.com/v1"
	// OpenAIDefaultModel is the default embedding model.
	OpenAIDefaultModel = "text-embedding-3-small"
	// OpenAIDefaultDimension is the dimensionality of the default model.
	OpenAIDefaultDimension = 1536

	openAIHTTPTimeout = 30 * time.Second
)

// OpenAIClient talks to an OpenAI-compatible embeddings endpoint (including
// LiteLLM-style proxies).
type OpenAIClient struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	modelName  string
	dimensions int
}

// Compile-time check that OpenAIClient implements Client.
var _ Client = (*OpenAIClient)(nil)

type openAIEmbedRequest struct {
	Input          interface{} `json:"input"`
	Model          string      `json:"model"`
	EncodingFormat string      `json:"encoding_format"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// NewOpenAIClient creates an embedding client against baseURL (empty means
// the public OpenAI endpoint) using modelName with the given dimensionality.
func NewOpenAIClient(baseURL, apiKey, modelName string, dimensions int) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding api key is required")
	}
	if baseURL == "" {
		baseURL = OpenAIDefaultBaseURL
	}
	if modelName == "" {
		modelName = OpenAIDefaultModel
	}
	if dimensions <= 0 {
		dimensions = OpenAIDefaultDimension
	}

	return &OpenAIClient{
		client:     &http.Client{Timeout: openAIHTTPTimeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		modelName:  modelName,
		dimensions: dimensions,
	}, nil
}

// Dimensions returns the configured vector dimensionality.
func (c *OpenAIClient) Dimensions() int { return c.dimensions }

// Embed returns the embedding for text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return make([]float32, c.dimensions), nil
	}
	results, err := c.embedRequest(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("embedding API returned no results for model %s", c.modelName)
	}
	return results[0], nil
}

// EmbedBatch returns embeddings for texts, in input order.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results, err := c.embedRequest(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(results) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d results for %d inputs (model=%s)",
			len(results), len(texts), c.modelName)
	}
	return results, nil
}

func (c *OpenAIClient) embedRequest(ctx context.Context, input interface{}) ([][]float32, error) {
	reqBody := openAIEmbedRequest{
		Input:          input,
		Model:          c.modelName,
		EncodingFormat: "float",
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send embedding request to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodySnippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding API error (model=%s, status=%d): %s",
			c.modelName, resp.StatusCode, strings.TrimSpace(string(bodySnippet)))
	}

	var embedResp openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode embedding response from %s: %w", c.baseURL, err)
	}

	// Sort by index to preserve order
	sort.Slice(embedResp.Data, func(i, j int) bool {
		return embedResp.Data[i].Index < embedResp.Data[j].Index
	})

	results := make([][]float32, len(embedResp.Data))
	for i, d := range embedResp.Data {
		results[i] = d.Embedding
	}
	return results, nil
}
