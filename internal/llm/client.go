package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Client talks to a local Ollama server over its native HTTP API.
type Client struct {
	baseURL    string
	model      string
	label      string // role name used in debug log lines (e.g. "ROUTER", "CHAT")
	httpClient *http.Client
}

// New creates a Client for the given Ollama base URL and model.
// The label tags this client's debug log lines; empty defaults to "LLM".
func New(baseURL, model, label string) *Client {
	if label == "" {
		label = "LLM"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		label:      label,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// GenOptions tune a single Generate call.
type GenOptions struct {
	Temperature float64
	MaxTokens   int // Ollama num_predict; 0 leaves the model default
}

type generateRequest struct {
	Model   string      `json:"model"`
	System  string      `json:"system,omitempty"`
	Prompt  string      `json:"prompt"`
	Stream  bool        `json:"stream"`
	Options *genOptions `json:"options,omitempty"`
}

// Temperature carries no omitempty tag: the intent classifier sends an
// explicit 0.
type genOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// Usage reports token consumption for one model call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

type generateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

// Generate sends one blocking completion request and returns the full reply
// text and token usage.
func (c *Client) Generate(ctx context.Context, system, prompt string, opts *GenOptions) (string, Usage, error) {
	log.Printf("[%s] ── PROMPT ──────────────────────────────────────\n%s\n── END PROMPT ──────────────────────────────────", c.label, prompt)

	payload := generateRequest{
		Model:  c.model,
		System: system,
		Prompt: prompt,
		Stream: false,
	}
	if opts != nil {
		payload.Options = &genOptions{Temperature: opts.Temperature, NumPredict: opts.MaxTokens}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", Usage{}, fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", Usage{}, fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("llm: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, fmt.Errorf("llm: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", Usage{}, fmt.Errorf("llm: HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var genResp generateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", Usage{}, fmt.Errorf("llm: unmarshal response: %w", err)
	}

	if genResp.Error != "" {
		return "", Usage{}, fmt.Errorf("llm: API error: %s", genResp.Error)
	}

	usage := Usage{PromptTokens: genResp.PromptEvalCount, CompletionTokens: genResp.EvalCount}
	log.Printf("[%s] ── RESPONSE (tokens: prompt=%d completion=%d) ──\n%s\n── END RESPONSE ────────────────────────────────",
		c.label, usage.PromptTokens, usage.CompletionTokens, genResp.Response)
	return genResp.Response, usage, nil
}

// Chunk is one streamed fragment of a model reply. A chunk with a non-nil
// Err is the last value delivered before the channel closes.
type Chunk struct {
	Text string
	Err  error
}

// Stream sends a streaming completion request and returns a channel of reply
// fragments in arrival order. Ollama streams newline-delimited JSON objects;
// each carries a piece of the reply in "response" and the final one sets
// "done" plus token counts.
//
// Expectations:
//   - Fragments arrive on the channel in stream order
//   - The channel is closed after the "done" chunk
//   - A server-side error mid-stream is delivered as a Chunk with Err set
//   - Canceling ctx closes the channel without blocking the producer
func (c *Client) Stream(ctx context.Context, system, prompt string) (<-chan Chunk, error) {
	payload := generateRequest{
		Model:  c.model,
		System: system,
		Prompt: prompt,
		Stream: true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: http request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("llm: HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		emit := func(ch Chunk) bool {
			select {
			case out <- ch:
				return true
			case <-ctx.Done():
				return false
			}
		}

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk generateResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				emit(Chunk{Err: fmt.Errorf("llm: decode stream chunk: %w", err)})
				return
			}
			if chunk.Error != "" {
				emit(Chunk{Err: fmt.Errorf("llm: API error: %s", chunk.Error)})
				return
			}
			if chunk.Response != "" && !emit(Chunk{Text: chunk.Response}) {
				return
			}
			if chunk.Done {
				log.Printf("[%s] stream done (tokens: prompt=%d completion=%d)",
					c.label, chunk.PromptEvalCount, chunk.EvalCount)
				return
			}
		}
		if err := sc.Err(); err != nil {
			emit(Chunk{Err: fmt.Errorf("llm: read stream: %w", err)})
		}
	}()
	return out, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Healthy reports whether the Ollama server is reachable and the configured
// model is installed.
//
// Expectations:
//   - Returns nil when /api/tags lists the configured model
//   - Matches a bare "llama3.2" against an installed "llama3.2:latest"
//   - Returns an error naming the model when it is not installed
//   - Returns an error when the server is unreachable
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("llm: create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("llm: server unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llm: HTTP %d from /api/tags", resp.StatusCode)
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("llm: unmarshal tags: %w", err)
	}
	for _, m := range tags.Models {
		if m.Name == c.model || strings.SplitN(m.Name, ":", 2)[0] == c.model {
			return nil
		}
	}
	return fmt.Errorf("llm: model %q not installed (try: ollama pull %s)", c.model, c.model)
}

// WarmUp fires a one-token generate so the model is resident in memory
// before the first real request. Latency hiding only; failures are logged
// and swallowed.
func (c *Client) WarmUp(ctx context.Context) {
	start := time.Now()
	if _, _, err := c.Generate(ctx, "", "Hello!", &GenOptions{MaxTokens: 1}); err != nil {
		log.Printf("[%s] WARNING: warm-up failed: %v (first request may be slow)", c.label, err)
		return
	}
	log.Printf("[%s] model %s warm after %s", c.label, c.model, time.Since(start).Round(time.Millisecond))
}

// StripThinkBlocks removes all <think>...</think> blocks from s.
// Reasoning models (e.g. deepseek-r1, qwen3) emit these before their real
// reply. The blocks are not part of structured output and must be stripped
// before JSON parsing.
//
// Expectations:
//   - Removes a single <think>...</think> block
//   - Removes multiple <think>...</think> blocks
//   - Strips an unclosed <think> block from its start to end of string
//   - Returns s unchanged when no <think> tag is present
func StripThinkBlocks(s string) string {
	for {
		start := strings.Index(s, "<think>")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "</think>")
		if end == -1 {
			// Unclosed block — strip from opening tag to end of string.
			s = s[:start]
			break
		}
		s = s[:start] + s[start+end+len("</think>"):]
	}
	return strings.TrimSpace(s)
}

// StripFences removes markdown code fences (```json ... ```) from model
// output, and also strips <think>...</think> reasoning blocks.
func StripFences(s string) string {
	s = StripThinkBlocks(strings.TrimSpace(s))
	if strings.HasPrefix(s, "```") {
		// Remove opening fence line
		idx := strings.Index(s, "\n")
		if idx != -1 {
			s = s[idx+1:]
		}
		// Remove closing fence
		if i := strings.LastIndex(s, "```"); i != -1 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
