// Package router turns raw utterances into chat or execute intents using
// the language model as a classifier. The classifier is an untrusted
// oracle: its reply must match a strict JSON shape before it is believed,
// and every failure folds into the non-executing chat intent.
package router

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/afif25fradana/luna-voice-assistant-offline/internal/bus"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/llm"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/shortcuts"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/types"
)

const systemPrompt = `You are the intent router for a voice assistant. Classify the user's request and respond with ONLY a JSON object. No markdown, no prose, no code fences.

Actions:
- Conversation, questions, anything that needs no machine action:
  {"action":"chat"}
- Run a shell command the user asked for:
  {"action":"execute","command":"<the literal command>"}
- Open a website, file, or application:
  {"action":"open_url","url":"<full URL, file:// path, or application name>"}
- Search the web:
  {"action":"search_google","query":"<search term>"}
- Launch one of the user's named shortcuts:
  {"action":"open_shortcut","key":"<key from the available list>","params":{"<name>":"<value>"}}

Rules:
- For well-known websites ALWAYS emit a full URL ("open youtube" -> "https://www.youtube.com").
- For local applications use the bare name ("open firefox" -> "firefox").
- The command field carries the command text alone, with no explanation around it.
- Pick open_shortcut only when a key from the available list clearly matches; extract {param} values from the request.
- When unsure, prefer {"action":"chat"}.

Examples:
- "what's the weather like" -> {"action":"chat"}
- "show me the files here" -> {"action":"execute","command":"ls -la"}
- "how much disk space is left" -> {"action":"execute","command":"df -h"}
- "open youtube" -> {"action":"open_url","url":"https://www.youtube.com"}
- "search for python tutorials" -> {"action":"search_google","query":"python tutorials"}`

// Classifier is the single model call the router depends on. Satisfied by
// *llm.Client; tests substitute a deterministic stub.
type Classifier interface {
	Generate(ctx context.Context, system, prompt string, opts *llm.GenOptions) (string, llm.Usage, error)
}

// Router classifies utterances. Stateless between calls; safe for
// sequential reuse across requests.
type Router struct {
	llm   Classifier
	b     *bus.Bus
	table *shortcuts.Table
}

// New creates a Router publishing its decisions on b and canonicalizing
// open/search/shortcut verdicts through table.
func New(b *bus.Bus, c Classifier, table *shortcuts.Table) *Router {
	return &Router{llm: c, b: b, table: table}
}

// verdict is the only reply shape the classifier is trusted to produce.
type verdict struct {
	Action  string            `json:"action"`
	Command string            `json:"command"`
	URL     string            `json:"url"`
	Query   string            `json:"query"`
	Key     string            `json:"key"`
	Params  map[string]string `json:"params"`
}

// Route classifies utt and returns the resulting intent. It never returns
// an error: an unreachable classifier, a malformed reply, or an unknown
// action all resolve to the chat intent, and the chat path deals with
// whatever is wrong from there.
//
// Expectations:
//   - "chat" verdicts become a chat intent carrying the utterance text
//   - "execute" verdicts become an execute intent with the cleaned command
//   - "open_url", "search_google", and "open_shortcut" verdicts are
//     canonicalized into execute intents via the shortcuts table
//   - Wrapper prose and code fences around the JSON verdict are tolerated
//   - Everything else, including classifier failure, becomes a chat intent
//   - Identical utterance and history produce the identical intent given a
//     deterministic classifier
func (r *Router) Route(ctx context.Context, utt types.Utterance) types.Intent {
	intent, fellBack := r.classify(ctx, utt)

	r.b.Publish(types.Message{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		From:      types.RoleRouter,
		To:        types.RoleAssistant,
		Type:      types.MsgIntentRouted,
		Payload: types.IntentEvent{
			UtteranceID: utt.ID,
			Kind:        string(intent.Kind),
			Command:     intent.Command,
			FellBack:    fellBack,
		},
	})
	return intent
}

func (r *Router) classify(ctx context.Context, utt types.Utterance) (types.Intent, bool) {
	raw, _, err := r.llm.Generate(ctx, systemPrompt, r.buildPrompt(utt), &llm.GenOptions{Temperature: 0})
	if err != nil {
		log.Printf("[ROUTER] WARNING: classifier unavailable, falling back to chat: %v", err)
		return types.ChatIntent(utt.Text), true
	}

	jsonStr := extractJSON(llm.StripFences(raw))
	if jsonStr == "" {
		log.Printf("[ROUTER] WARNING: no JSON in classifier reply, falling back to chat (raw: %s)", firstN(raw, 200))
		return types.ChatIntent(utt.Text), true
	}

	var v verdict
	if err := json.Unmarshal([]byte(jsonStr), &v); err != nil {
		log.Printf("[ROUTER] WARNING: unparseable classifier reply, falling back to chat: %v (raw: %s)", err, firstN(raw, 200))
		return types.ChatIntent(utt.Text), true
	}

	switch v.Action {
	case "chat":
		log.Printf("[ROUTER] intent=chat")
		return types.ChatIntent(utt.Text), false
	case "execute":
		cmd := cleanCommand(v.Command)
		if cmd == "" {
			log.Printf("[ROUTER] WARNING: execute verdict without a command, falling back to chat")
			return types.ChatIntent(utt.Text), true
		}
		log.Printf("[ROUTER] intent=execute command=%q", firstN(cmd, 120))
		return types.ExecuteIntent(cmd), false
	case "open_url":
		if v.URL == "" {
			log.Printf("[ROUTER] WARNING: open_url verdict without a url, falling back to chat")
			return types.ChatIntent(utt.Text), true
		}
		cmd := r.table.OpenURL(v.URL)
		log.Printf("[ROUTER] intent=open_url command=%q", firstN(cmd, 120))
		return types.ExecuteIntent(cmd), false
	case "search_google":
		if v.Query == "" {
			log.Printf("[ROUTER] WARNING: search verdict without a query, falling back to chat")
			return types.ChatIntent(utt.Text), true
		}
		cmd := r.table.Search(v.Query)
		log.Printf("[ROUTER] intent=search command=%q", firstN(cmd, 120))
		return types.ExecuteIntent(cmd), false
	case "open_shortcut":
		cmd, err := r.table.Expand(v.Key, v.Params)
		if err != nil {
			log.Printf("[ROUTER] WARNING: %v, falling back to chat", err)
			return types.ChatIntent(utt.Text), true
		}
		log.Printf("[ROUTER] intent=shortcut key=%q command=%q", v.Key, firstN(cmd, 120))
		return types.ExecuteIntent(cmd), false
	default:
		log.Printf("[ROUTER] WARNING: unknown action %q, falling back to chat", v.Action)
		return types.ChatIntent(utt.Text), true
	}
}

// buildPrompt assembles the user prompt: recent history for follow-up
// disambiguation, the available shortcut keys, then the utterance itself.
func (r *Router) buildPrompt(utt types.Utterance) string {
	var sb strings.Builder
	if len(utt.History) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, turn := range utt.History {
			sb.WriteString(turn.Role)
			sb.WriteString(": ")
			sb.WriteString(turn.Text)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if keys := r.table.Keys(); len(keys) > 0 {
		sb.WriteString("Available shortcut keys:\n")
		for _, k := range keys {
			sb.WriteString("- ")
			sb.WriteString(k)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("User request: ")
	sb.WriteString(utt.Text)
	return sb.String()
}

// extractJSON returns the outermost {...} span of s, stripping any
// conversational wrapper the classifier wrapped around its verdict.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// cleanCommand strips stray backticks and whitespace from a classifier
// command.
func cleanCommand(cmd string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(cmd), "`"))
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
