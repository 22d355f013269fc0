package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/afif25fradana/luna-voice-assistant-offline/internal/types"
)

// EventKind labels one structured line in the audit log.
type EventKind string

const (
	KindUtterance EventKind = "utterance"
	KindIntent    EventKind = "intent"
	KindVerdict   EventKind = "verdict"
	KindExecution EventKind = "execution"
	KindResponse  EventKind = "response"
	KindLifecycle EventKind = "lifecycle"
)

// Event is one JSONL line in the audit log.
// Fields are omitempty so each event only serialises relevant data.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp string    `json:"ts"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`

	// utterance / response
	UtteranceID string `json:"utterance_id,omitempty"`
	Text        string `json:"text,omitempty"`

	// intent
	Intent   string `json:"intent,omitempty"` // "chat" | "execute"
	Command  string `json:"command,omitempty"`
	FellBack bool   `json:"fell_back,omitempty"`

	// verdict
	Allowed *bool  `json:"allowed,omitempty"` // pointer: false must be serialised
	Reason  string `json:"reason,omitempty"`

	// execution
	ExitCode    *int  `json:"exit_code,omitempty"` // pointer: 0 must be serialised
	TimedOut    bool  `json:"timed_out,omitempty"`
	DurationMs  int64 `json:"duration_ms,omitempty"`
	StdoutBytes int   `json:"stdout_bytes,omitempty"`
	StderrBytes int   `json:"stderr_bytes,omitempty"`

	// response
	ResponseKind string `json:"response_kind,omitempty"` // "chat" | "execute" | "refusal" | "fallback"
	ElapsedMs    int64  `json:"elapsed_ms,omitempty"`

	// lifecycle
	State  string `json:"state,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Auditor taps the message bus read-only and writes one structured Event per
// pipeline message to a JSONL file. Every routing decision, safety verdict,
// and execution outcome ends up here, so a session can be reconstructed after
// the fact.
type Auditor struct {
	tap     <-chan types.Message
	logPath string
	mu      sync.Mutex
	logFile *os.File
}

// New creates an Auditor reading from tap and appending to logPath.
func New(tap <-chan types.Message, logPath string) *Auditor {
	return &Auditor{
		tap:     tap,
		logPath: logPath,
	}
}

// Run starts the auditor loop. It blocks until ctx is cancelled.
func (a *Auditor) Run(ctx context.Context) {
	if err := os.MkdirAll(filepath.Dir(a.logPath), 0o755); err != nil {
		log.Printf("[AUDIT] ERROR: create log dir: %v", err)
		return
	}

	f, err := os.OpenFile(a.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("[AUDIT] ERROR: open log file: %v", err)
		return
	}
	a.mu.Lock()
	a.logFile = f
	a.mu.Unlock()
	defer f.Close()

	log.Printf("[AUDIT] started; writing to %s", a.logPath)

	for {
		select {
		case <-ctx.Done():
			a.drainTap()
			return
		case msg, ok := <-a.tap:
			if !ok {
				return
			}
			a.process(msg)
		}
	}
}

// drainTap records whatever the bus already delivered before shutdown, so the
// trail ends with the final response and lifecycle events rather than cutting
// off mid-request.
func (a *Auditor) drainTap() {
	for {
		select {
		case msg := <-a.tap:
			a.process(msg)
		default:
			return
		}
	}
}

func (a *Auditor) process(msg types.Message) {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		From:      string(msg.From),
		To:        string(msg.To),
	}

	switch msg.Type {
	case types.MsgUtteranceReceived:
		var ev types.UtteranceEvent
		if err := decodePayload(msg.Payload, &ev); err != nil {
			log.Printf("[AUDIT] WARNING: bad %s payload: %v", msg.Type, err)
			return
		}
		e.Kind = KindUtterance
		e.UtteranceID = ev.UtteranceID
		e.Text = ev.Text

	case types.MsgIntentRouted:
		var ev types.IntentEvent
		if err := decodePayload(msg.Payload, &ev); err != nil {
			log.Printf("[AUDIT] WARNING: bad %s payload: %v", msg.Type, err)
			return
		}
		e.Kind = KindIntent
		e.UtteranceID = ev.UtteranceID
		e.Intent = ev.Kind
		e.Command = ev.Command
		e.FellBack = ev.FellBack

	case types.MsgCommandChecked:
		var ev types.VerdictEvent
		if err := decodePayload(msg.Payload, &ev); err != nil {
			log.Printf("[AUDIT] WARNING: bad %s payload: %v", msg.Type, err)
			return
		}
		e.Kind = KindVerdict
		e.UtteranceID = ev.UtteranceID
		e.Command = ev.Command
		e.Allowed = &ev.Allowed
		e.Reason = ev.Reason
		if !ev.Allowed {
			log.Printf("[AUDIT] DENIED: %q (%s)", ev.Command, ev.Reason)
		}

	case types.MsgCommandRun:
		var ev types.ResultEvent
		if err := decodePayload(msg.Payload, &ev); err != nil {
			log.Printf("[AUDIT] WARNING: bad %s payload: %v", msg.Type, err)
			return
		}
		e.Kind = KindExecution
		e.UtteranceID = ev.UtteranceID
		e.Command = ev.Command
		e.ExitCode = &ev.ExitCode
		e.TimedOut = ev.TimedOut
		e.DurationMs = ev.DurationMs
		e.StdoutBytes = ev.StdoutBytes
		e.StderrBytes = ev.StderrBytes

	case types.MsgResponseReady:
		var ev types.ResponseEvent
		if err := decodePayload(msg.Payload, &ev); err != nil {
			log.Printf("[AUDIT] WARNING: bad %s payload: %v", msg.Type, err)
			return
		}
		e.Kind = KindResponse
		e.UtteranceID = ev.UtteranceID
		e.ResponseKind = ev.Kind
		e.Text = ev.Text
		e.ElapsedMs = ev.ElapsedMs

	case types.MsgLifecycle:
		var ev types.LifecycleEvent
		if err := decodePayload(msg.Payload, &ev); err != nil {
			log.Printf("[AUDIT] WARNING: bad %s payload: %v", msg.Type, err)
			return
		}
		e.Kind = KindLifecycle
		e.State = ev.State
		e.Detail = ev.Detail

	default:
		return
	}

	a.writeEvent(e)
}

func (a *Auditor) writeEvent(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.logFile == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("[AUDIT] ERROR: marshal event: %v", err)
		return
	}
	if _, err := fmt.Fprintf(a.logFile, "%s\n", data); err != nil {
		log.Printf("[AUDIT] ERROR: write event: %v", err)
	}
}

func decodePayload(payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
