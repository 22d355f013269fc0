// Package assistant contains the Orchestrator, the single component that
// walks one utterance through the pipeline: route the intent, check and run
// commands, or stream a chat reply, then render exactly one response.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/afif25fradana/luna-voice-assistant-offline/internal/bus"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/llm"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/memory"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/speech"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/types"
)

// Per-request states. Every utterance walks
// RECEIVED → ROUTING → {EXECUTING | CHATTING} → RESPONDING → DONE.
type requestState string

const (
	stateReceived   requestState = "RECEIVED"
	stateRouting    requestState = "ROUTING"
	stateExecuting  requestState = "EXECUTING"
	stateChatting   requestState = "CHATTING"
	stateResponding requestState = "RESPONDING"
	stateDone       requestState = "DONE"
)

// LifecycleState is the assistant-wide run state.
type LifecycleState string

const (
	StateRunning  LifecycleState = "RUNNING"
	StateDraining LifecycleState = "DRAINING"
	StateStopped  LifecycleState = "STOPPED"
)

// ErrNotRunning is returned by Handle outside the RUNNING state.
var ErrNotRunning = errors.New("assistant: not accepting utterances")

// filteredApology replaces a reply the response filter emptied out.
const filteredApology = "I'm sorry, I encountered an issue with that response or it was filtered. Could you ask something else?"

// execMemoryClip bounds how much of a command's output is remembered as the
// assistant turn; full output still goes to the user.
const execMemoryClip = 200

// speechClip bounds how much of a reply is voiced.
const speechClip = 400

// IntentRouter classifies one utterance. Never errors: unusable classifier
// output must already have been folded into a Chat intent.
type IntentRouter interface {
	Route(ctx context.Context, utt types.Utterance) types.Intent
}

// Validator decides whether a command may run.
type Validator interface {
	Validate(command string) types.Verdict
}

// CommandRunner executes one validated command under a deadline.
type CommandRunner interface {
	Run(ctx context.Context, command string, timeout time.Duration) types.ExecutionResult
}

// Chatter streams a conversational reply.
type Chatter interface {
	Stream(ctx context.Context, system, prompt string) (<-chan llm.Chunk, error)
}

// Orchestrator owns the request state machine and the assistant lifecycle.
// The pipeline per utterance is strictly sequential; the bus carries
// observability events only.
type Orchestrator struct {
	b         *bus.Bus
	router    IntentRouter
	validator Validator
	runner    CommandRunner
	chatter   Chatter
	store     *memory.Store // nil runs memory-less
	speaker   speech.Speaker
	timeout   time.Duration // per-command execution budget

	persona string // chat system prompt; empty leaves the model's default voice

	mu       sync.Mutex
	state    LifecycleState
	inflight sync.WaitGroup
}

// New wires an Orchestrator. A nil speaker falls back to NullSpeaker; a nil
// store runs the assistant without conversation memory.
func New(b *bus.Bus, router IntentRouter, validator Validator, runner CommandRunner, chatter Chatter, store *memory.Store, speaker speech.Speaker, timeout time.Duration) *Orchestrator {
	if speaker == nil {
		speaker = speech.NullSpeaker{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Orchestrator{
		b:         b,
		router:    router,
		validator: validator,
		runner:    runner,
		chatter:   chatter,
		store:     store,
		speaker:   speaker,
		timeout:   timeout,
	}
}

// SetPersona installs a system prompt for the chat path. Call before Start.
func (o *Orchestrator) SetPersona(persona string) {
	o.persona = strings.TrimSpace(persona)
}

// Start moves the assistant into RUNNING and announces it on the bus.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	o.state = StateRunning
	o.mu.Unlock()
	log.Printf("[ASSISTANT] lifecycle: RUNNING")
	o.publishLifecycle(StateRunning, "")
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() LifecycleState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Shutdown drains the assistant: no new utterances are accepted, in-flight
// work (including queued speech) completes, then the state becomes STOPPED.
// Safe to call more than once; later calls return once draining is done.
//
// Expectations:
//   - Transitions RUNNING → DRAINING → STOPPED, both announced on the bus
//   - Blocks until every in-flight Handle call has returned
//   - Handle returns ErrNotRunning for utterances arriving after Shutdown began
func (o *Orchestrator) Shutdown(detail string) {
	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		o.inflight.Wait()
		return
	}
	o.state = StateDraining
	o.mu.Unlock()

	log.Printf("[ASSISTANT] lifecycle: RUNNING → DRAINING (%s)", detail)
	o.publishLifecycle(StateDraining, detail)

	o.inflight.Wait()

	o.mu.Lock()
	o.state = StateStopped
	o.mu.Unlock()
	log.Printf("[ASSISTANT] lifecycle: DRAINING → STOPPED")
	o.publishLifecycle(StateStopped, "")
}

// Handle walks one utterance through the pipeline and returns the final
// response text. Chat replies may additionally arrive incrementally through
// onFragment (nil is fine); execute and refusal responses never stream.
//
// Expectations:
//   - Chat intents never touch the Validator or the CommandRunner
//   - A denied command is never executed; the refusal names the denial reason
//   - Each utterance produces exactly one response and one ResponseReady event
//   - Classifier or model failures surface as apology text, never as a panic
//   - Empty or whitespace-only input is a no-op
func (o *Orchestrator) Handle(ctx context.Context, text string, onFragment func(string)) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		return "", ErrNotRunning
	}
	o.inflight.Add(1)
	o.mu.Unlock()
	defer o.inflight.Done()

	start := time.Now()
	utt := types.Utterance{
		ID:      uuid.New().String(),
		Text:    text,
		History: o.store.Recent(),
	}
	o.step(utt.ID, stateReceived)
	o.publish(types.RoleUser, types.RoleAssistant, types.MsgUtteranceReceived, types.UtteranceEvent{
		UtteranceID: utt.ID,
		Text:        utt.Text,
	})
	o.store.Append(types.Turn{Role: "user", Text: utt.Text})

	o.step(utt.ID, stateRouting)
	intent := o.router.Route(ctx, utt)

	var final, kind string
	switch intent.Kind {
	case types.IntentExecute:
		final, kind = o.runCommand(ctx, utt, intent.Command)
	default:
		final, kind = o.chat(ctx, utt, onFragment)
	}

	o.step(utt.ID, stateResponding)
	o.rememberReply(kind, final)
	o.publish(types.RoleAssistant, types.RoleUser, types.MsgResponseReady, types.ResponseEvent{
		UtteranceID: utt.ID,
		Kind:        kind,
		Text:        final,
		ElapsedMs:   time.Since(start).Milliseconds(),
	})
	o.speak(final)

	o.step(utt.ID, stateDone)
	return final, nil
}

// runCommand is the EXECUTING branch: validate, then run or refuse.
func (o *Orchestrator) runCommand(ctx context.Context, utt types.Utterance, command string) (final, kind string) {
	o.step(utt.ID, stateExecuting)

	verdict := o.validator.Validate(command)
	o.publish(types.RoleValidator, types.RoleAssistant, types.MsgCommandChecked, types.VerdictEvent{
		UtteranceID: utt.ID,
		Command:     command,
		Allowed:     verdict.Allowed,
		Reason:      verdict.Reason,
	})
	if !verdict.Allowed {
		log.Printf("[ASSISTANT] refused %q: %s", firstN(command, 60), verdict.Reason)
		return fmt.Sprintf("⚠️ This action is restricted for security reasons: %s.", verdict.Reason), "refusal"
	}

	res := o.runner.Run(ctx, command, o.timeout)
	o.publish(types.RoleExecutor, types.RoleAssistant, types.MsgCommandRun, types.ResultEvent{
		UtteranceID: utt.ID,
		Command:     command,
		ExitCode:    res.ExitCode,
		TimedOut:    res.TimedOut,
		DurationMs:  res.Duration.Milliseconds(),
		StdoutBytes: len(res.Stdout),
		StderrBytes: len(res.Stderr),
	})
	return renderResult(res), "execute"
}

// chat is the CHATTING branch: stream the model reply, relay fragments, and
// filter the gathered text before it becomes the response of record.
func (o *Orchestrator) chat(ctx context.Context, utt types.Utterance, onFragment func(string)) (final, kind string) {
	o.step(utt.ID, stateChatting)

	ch, err := o.chatter.Stream(ctx, o.persona, chatPrompt(utt))
	if err != nil {
		log.Printf("[ASSISTANT] WARNING: chat stream failed: %v", err)
		return fmt.Sprintf("Error: Failed to connect to Ollama. %v", err), "fallback"
	}

	var raw strings.Builder
	var streamErr error
	for c := range ch {
		if c.Err != nil {
			streamErr = c.Err
			break
		}
		raw.WriteString(c.Text)
		if onFragment != nil {
			onFragment(c.Text)
		}
	}
	if streamErr != nil {
		if raw.Len() == 0 {
			log.Printf("[ASSISTANT] WARNING: chat stream failed: %v", streamErr)
			return fmt.Sprintf("Error: Failed to connect to Ollama. %v", streamErr), "fallback"
		}
		// Keep what arrived; the user already saw it.
		log.Printf("[ASSISTANT] WARNING: chat stream interrupted after %d bytes: %v", raw.Len(), streamErr)
	}

	clean := llm.CleanReply(raw.String())
	if clean == "" {
		return filteredApology, "fallback"
	}
	return clean, "chat"
}

// rememberReply appends the assistant turn. Command output is clipped so one
// verbose command does not crowd the recent window that seeds future prompts.
func (o *Orchestrator) rememberReply(kind, text string) {
	if kind == "execute" {
		text = firstN(text, execMemoryClip)
	}
	o.store.Append(types.Turn{Role: "assistant", Text: text})
}

// speak voices the reply in the background; Shutdown waits for it.
func (o *Orchestrator) speak(text string) {
	spoken := firstN(text, speechClip)
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		if err := o.speaker.Say(context.Background(), spoken); err != nil {
			log.Printf("[ASSISTANT] WARNING: speech failed: %v", err)
		}
	}()
}

// renderResult turns an ExecutionResult into user-facing text: stdout on
// success, stderr and exit code on failure, an explicit notice on timeout.
func renderResult(res types.ExecutionResult) string {
	if res.TimedOut {
		msg := fmt.Sprintf("⚠️ Command timed out after %s and was terminated.", res.Duration.Round(time.Second))
		if out := strings.TrimSpace(res.Stdout); out != "" {
			msg += "\nPartial output:\n" + out
		}
		return msg
	}
	if res.Success() {
		if out := strings.TrimSpace(res.Stdout); out != "" {
			return out
		}
		return "Okay, I executed that command."
	}
	detail := strings.TrimSpace(res.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(res.Stdout)
	}
	if detail == "" {
		return fmt.Sprintf("Command failed (exit %d).", res.ExitCode)
	}
	return fmt.Sprintf("Command failed (exit %d):\n%s", res.ExitCode, detail)
}

// chatPrompt replays the conversation as "role: text" lines and appends the
// current utterance, matching the format the model saw during earlier turns.
func chatPrompt(utt types.Utterance) string {
	var b strings.Builder
	for _, turn := range utt.History {
		b.WriteString(turn.Role)
		b.WriteString(": ")
		b.WriteString(turn.Text)
		b.WriteString("\n")
	}
	b.WriteString("user: ")
	b.WriteString(utt.Text)
	return b.String()
}

func (o *Orchestrator) step(id string, s requestState) {
	log.Printf("[ASSISTANT] %s state=%s", shortID(id), s)
}

func (o *Orchestrator) publish(from, to types.Role, t types.MessageType, payload any) {
	o.b.Publish(types.Message{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		From:      from,
		To:        to,
		Type:      t,
		Payload:   payload,
	})
}

func (o *Orchestrator) publishLifecycle(s LifecycleState, detail string) {
	o.publish(types.RoleAssistant, types.RoleUser, types.MsgLifecycle, types.LifecycleEvent{
		State:  string(s),
		Detail: detail,
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstN(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
