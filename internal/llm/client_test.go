package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(url string) *Client {
	return New(url, "llama3.2", "TEST")
}

// --- Generate ---

func TestGenerate_SendsNativePayloadAndReturnsReply(t *testing.T) {
	// A blocking generate posts model/system/prompt with stream:false and an
	// explicit temperature, and returns the reply text plus token usage.
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path: got %q, want %q", r.URL.Path, "/api/generate")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("request body not JSON: %v", err)
		}
		fmt.Fprintln(w, `{"response":"{\"action\":\"chat\"}","done":true,"prompt_eval_count":42,"eval_count":7}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	reply, usage, err := c.Generate(context.Background(), "classify intents", "open youtube", &GenOptions{Temperature: 0})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if reply != `{"action":"chat"}` {
		t.Errorf("reply: got %q, want %q", reply, `{"action":"chat"}`)
	}
	if usage.PromptTokens != 42 || usage.CompletionTokens != 7 {
		t.Errorf("usage: got %+v, want prompt=42 completion=7", usage)
	}
	if got["model"] != "llama3.2" {
		t.Errorf("model: got %v, want llama3.2", got["model"])
	}
	if got["stream"] != false {
		t.Errorf("stream: got %v, want false", got["stream"])
	}
	opts, ok := got["options"].(map[string]any)
	if !ok {
		t.Fatalf("expected options object in payload, got %v", got["options"])
	}
	if opts["temperature"] != float64(0) {
		t.Errorf("temperature: got %v, want 0", opts["temperature"])
	}
}

func TestGenerate_NilOptionsOmitsOptionsField(t *testing.T) {
	// Without GenOptions the payload carries no "options" key at all
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		fmt.Fprintln(w, `{"response":"ok","done":true}`)
	}))
	defer srv.Close()

	if _, _, err := newTestClient(srv.URL).Generate(context.Background(), "", "hi", nil); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if _, present := got["options"]; present {
		t.Errorf("expected no options key, got %v", got["options"])
	}
}

func TestGenerate_SurfacesAPIError(t *testing.T) {
	// An in-band {"error": ...} becomes a Go error naming the cause
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error":"model 'nope' not found"}`)
	}))
	defer srv.Close()

	_, _, err := newTestClient(srv.URL).Generate(context.Background(), "", "hi", nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "model 'nope' not found") {
		t.Errorf("expected API error message, got %q", err.Error())
	}
}

func TestGenerate_SurfacesHTTPStatus(t *testing.T) {
	// A non-200 status becomes an error carrying the status code
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, _, err := newTestClient(srv.URL).Generate(context.Background(), "", "hi", nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "HTTP 500") {
		t.Errorf("expected 'HTTP 500' in error, got %q", err.Error())
	}
}

// --- Stream ---

func TestStream_DeliversFragmentsInOrder(t *testing.T) {
	// NDJSON chunks arrive on the channel in order; done closes it
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":"Hel"}`+"\n")
		io.WriteString(w, `{"response":"lo!"}`+"\n")
		io.WriteString(w, `{"done":true,"prompt_eval_count":3,"eval_count":2}`+"\n")
	}))
	defer srv.Close()

	ch, err := newTestClient(srv.URL).Stream(context.Background(), "", "greet me")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	var sb strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("unexpected chunk error: %v", chunk.Err)
		}
		sb.WriteString(chunk.Text)
	}
	if got := sb.String(); got != "Hello!" {
		t.Errorf("got %q, want %q", got, "Hello!")
	}
}

func TestStream_ErrorChunkTerminatesStream(t *testing.T) {
	// A server-side error mid-stream is delivered as the final chunk
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":"partial"}`+"\n")
		io.WriteString(w, `{"error":"gpu fell over"}`+"\n")
	}))
	defer srv.Close()

	ch, err := newTestClient(srv.URL).Stream(context.Background(), "", "greet me")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	var last Chunk
	var text strings.Builder
	for chunk := range ch {
		last = chunk
		text.WriteString(chunk.Text)
	}
	if text.String() != "partial" {
		t.Errorf("text before error: got %q, want %q", text.String(), "partial")
	}
	if last.Err == nil {
		t.Fatal("expected final chunk to carry an error")
	}
	if !strings.Contains(last.Err.Error(), "gpu fell over") {
		t.Errorf("expected server error message, got %q", last.Err.Error())
	}
}

func TestStream_BadStatusFailsBeforeChannel(t *testing.T) {
	// A non-200 response fails the call synchronously, no channel to drain
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Stream(context.Background(), "", "hi"); err == nil {
		t.Error("expected error, got nil")
	}
}

// --- Healthy ---

func tagsServer(t *testing.T, names ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path: got %q, want %q", r.URL.Path, "/api/tags")
		}
		models := make([]map[string]string, 0, len(names))
		for _, n := range names {
			models = append(models, map[string]string{"name": n})
		}
		json.NewEncoder(w).Encode(map[string]any{"models": models})
	}))
}

func TestHealthy_ModelInstalled(t *testing.T) {
	// Returns nil when /api/tags lists the configured model
	srv := tagsServer(t, "qwen2.5:3b", "llama3.2")
	defer srv.Close()
	if err := newTestClient(srv.URL).Healthy(context.Background()); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestHealthy_BareNameMatchesTaggedModel(t *testing.T) {
	// Matches a bare "llama3.2" against an installed "llama3.2:latest"
	srv := tagsServer(t, "llama3.2:latest")
	defer srv.Close()
	if err := newTestClient(srv.URL).Healthy(context.Background()); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestHealthy_MissingModelNamed(t *testing.T) {
	// Returns an error naming the model when it is not installed
	srv := tagsServer(t, "mistral:7b")
	defer srv.Close()
	err := newTestClient(srv.URL).Healthy(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "llama3.2") {
		t.Errorf("expected model name in error, got %q", err.Error())
	}
}

func TestHealthy_ServerUnreachable(t *testing.T) {
	// Returns an error when the server is unreachable
	srv := tagsServer(t)
	url := srv.URL
	srv.Close()
	if err := newTestClient(url).Healthy(context.Background()); err == nil {
		t.Error("expected error, got nil")
	}
}

// --- StripThinkBlocks ---

func TestStripThinkBlocks_RemovesSingleBlock(t *testing.T) {
	// Removes a single <think>...</think> block
	got := StripThinkBlocks("<think>let me reason</think>\n{\"action\": \"chat\"}")
	want := "{\"action\": \"chat\"}"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStripThinkBlocks_RemovesMultipleBlocks(t *testing.T) {
	// Removes multiple <think>...</think> blocks
	got := StripThinkBlocks("<think>first</think>{\"a\":1}<think>second</think>{\"b\":2}")
	if strings.Contains(got, "<think>") || strings.Contains(got, "</think>") {
		t.Errorf("expected all think blocks removed, got %q", got)
	}
}

func TestStripThinkBlocks_UnclosedBlockStrippedToEnd(t *testing.T) {
	// Strips an unclosed <think> block from its start to end of string
	got := StripThinkBlocks("{\"action\": \"chat\"}<think>orphaned reasoning")
	want := "{\"action\": \"chat\"}"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStripThinkBlocks_NoTagReturnedUnchanged(t *testing.T) {
	// Returns s unchanged when no <think> tag is present
	input := "{\"action\": \"execute\", \"command\": \"ls\"}"
	got := StripThinkBlocks(input)
	if got != input {
		t.Errorf("expected unchanged, got %q", got)
	}
}

// --- StripFences ---

func TestStripFences_RemovesJSONFence(t *testing.T) {
	got := StripFences("```json\n{\"action\": \"chat\"}\n```")
	want := "{\"action\": \"chat\"}"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStripFences_BareTextUnchanged(t *testing.T) {
	got := StripFences(`{"action": "chat"}`)
	want := `{"action": "chat"}`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
