// Package llm holds the Ollama HTTP collaborators: text generation for
// answers and the embedding function behind the retrieval adapter.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ragshield/ragshield/pkg/models"
)

// ErrGeneration wraps answer-generation failures. The pipeline degrades to
// an LLM_ERROR answer instead of failing the query.
var ErrGeneration = errors.New("llm generation failed")

// Client talks to a local Ollama server over its JSON HTTP API.
type Client struct {
	baseURL    string
	model      string
	embedModel string
	httpClient *http.Client
}

// NewClient builds an Ollama client. model serves /api/generate and
// embedModel serves /api/embeddings.
func NewClient(baseURL, model, embedModel string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingsResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Answer generates a response to the query grounded in the passed
// documents.
func (c *Client) Answer(ctx context.Context, query string, docs []models.Document) (string, error) {
	resp, err := c.generate(ctx, buildPrompt(query, docs))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return resp, nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var out embeddingsResponse
	err := c.post(ctx, "/api/embeddings", embeddingsRequest{Model: c.embedModel, Prompt: text}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding from model %s", c.embedModel)
	}
	return out.Embedding, nil
}

// Probe checks that the Ollama server is reachable. Called once at
// startup; a failure is fatal.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama probe returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	var out generateResponse
	err := c.post(ctx, "/api/generate", generateRequest{Model: c.model, Prompt: prompt, Stream: false}, &out)
	if err != nil {
		return "", err
	}
	return out.Response, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response from %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s returned HTTP %d: %s", path, resp.StatusCode, truncate(string(raw), 200))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

// buildPrompt frames the query for a security-analyst persona with the
// retrieved documents as numbered context blocks.
func buildPrompt(query string, docs []models.Document) string {
	var b strings.Builder
	b.WriteString("You are a security analyst assistant. Answer the question using only the provided context documents. Be precise about severity, affected versions, and remediation steps. If the context does not contain the answer, say so.\n\n")
	b.WriteString("Context documents:\n")
	for i, doc := range docs {
		fmt.Fprintf(&b, "\n[Document %d] (source: %s)\n%s\n", i+1, doc.Metadata.Source, doc.Content)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
