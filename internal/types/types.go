package types

import "time"

// Role identifiers
type Role string

const (
	RoleUser      Role = "User"
	RoleAssistant Role = "Assistant"
	RoleRouter    Role = "Router"
	RoleValidator Role = "Validator"
	RoleExecutor  Role = "Executor"
	RoleMemory    Role = "Memory"
	RoleAuditor   Role = "Auditor"
	RoleSpeech    Role = "Speech"
)

// MessageType identifies the payload type of a bus message
type MessageType string

const (
	MsgUtteranceReceived MessageType = "UtteranceReceived" // User → Assistant: a new request entered the pipeline
	MsgIntentRouted      MessageType = "IntentRouted"      // Router → Assistant: classification outcome
	MsgCommandChecked    MessageType = "CommandChecked"    // Validator → Assistant: safety verdict for a command
	MsgCommandRun        MessageType = "CommandRun"        // Executor → Assistant: execution outcome
	MsgResponseReady     MessageType = "ResponseReady"     // Assistant → User: final response text
	MsgLifecycle         MessageType = "Lifecycle"         // Assistant → User: RUNNING/DRAINING/STOPPED transition
)

// Message is the envelope for all observability traffic on the bus
type Message struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	From      Role        `json:"from"`
	To        Role        `json:"to"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
}

// Turn is one prior conversation exchange element, as stored in memory and
// replayed into prompts.
type Turn struct {
	Role string `json:"role"` // "user" | "assistant"
	Text string `json:"text"`
	At   string `json:"at,omitempty"` // RFC3339
}

// Utterance is one immutable unit of user input plus the conversation
// history it arrived with.
type Utterance struct {
	ID      string
	Text    string
	History []Turn
}

// IntentKind discriminates the two Intent variants.
type IntentKind string

const (
	IntentChat    IntentKind = "chat"
	IntentExecute IntentKind = "execute"
)

// Intent is the Router's classification of an utterance. Exactly one of the
// two variants is populated: Chat carries Text, Execute carries Command.
type Intent struct {
	Kind    IntentKind
	Text    string // chat text (the utterance), set for IntentChat
	Command string // command text to run, set for IntentExecute
}

// ChatIntent builds the conversational variant.
func ChatIntent(text string) Intent {
	return Intent{Kind: IntentChat, Text: text}
}

// ExecuteIntent builds the command variant.
func ExecuteIntent(command string) Intent {
	return Intent{Kind: IntentExecute, Command: command}
}

// Verdict is the Validator's answer for one command string.
// The zero value is a denial, so a forgotten verdict can never allow execution.
type Verdict struct {
	Allowed bool
	Reason  string // populated when denied
}

// Allow builds the permitting verdict.
func Allow() Verdict {
	return Verdict{Allowed: true}
}

// Deny builds a denial carrying its user-facing reason.
func Deny(reason string) Verdict {
	return Verdict{Allowed: false, Reason: reason}
}

// Exit codes the Executor reports for outcomes that never produced a child
// exit status. The values follow shell conventions so "exit 126" in a
// response reads the same as it would from a terminal.
const (
	ExitMalformed     = 2   // command text could not be tokenized
	ExitTimeout       = 124 // deadline exceeded, process tree terminated
	ExitNotExecutable = 126 // spawn refused: permission denied
	ExitNotFound      = 127 // spawn refused: binary not found
	ExitCancelled     = 130 // caller cancelled mid-run
	ExitKilled        = 137 // terminated by SIGKILL outside the timeout path
)

// ExecutionResult is the structured outcome of running one validated command.
type ExecutionResult struct {
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	TimedOut  bool          `json:"timed_out"`
	Duration  time.Duration `json:"-"`
	Truncated bool          `json:"truncated,omitempty"` // either stream was clipped to the output bound
}

// Success reports whether the command completed normally with exit status 0.
func (r ExecutionResult) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// UtteranceEvent announces a new request entering the pipeline.
type UtteranceEvent struct {
	UtteranceID string `json:"utterance_id"`
	Text        string `json:"text"`
}

// IntentEvent reports the Router's decision for an utterance.
type IntentEvent struct {
	UtteranceID string `json:"utterance_id"`
	Kind        string `json:"kind"` // "chat" | "execute"
	Command     string `json:"command,omitempty"`
	FellBack    bool   `json:"fell_back,omitempty"` // classifier unusable; defaulted to chat
}

// VerdictEvent reports a validation verdict for a candidate command.
type VerdictEvent struct {
	UtteranceID string `json:"utterance_id"`
	Command     string `json:"command"`
	Allowed     bool   `json:"allowed"`
	Reason      string `json:"reason,omitempty"`
}

// ResultEvent summarises an execution outcome. Full streams stay with the
// Orchestrator; the bus only carries sizes.
type ResultEvent struct {
	UtteranceID string `json:"utterance_id"`
	Command     string `json:"command"`
	ExitCode    int    `json:"exit_code"`
	TimedOut    bool   `json:"timed_out,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
	StdoutBytes int    `json:"stdout_bytes"`
	StderrBytes int    `json:"stderr_bytes"`
}

// ResponseEvent carries the final response for an utterance.
type ResponseEvent struct {
	UtteranceID string `json:"utterance_id"`
	Kind        string `json:"kind"` // branch that produced it: "chat" | "execute" | "refusal" | "fallback"
	Text        string `json:"text"`
	ElapsedMs   int64  `json:"elapsed_ms"`
}

// LifecycleEvent reports an assistant lifecycle transition.
type LifecycleEvent struct {
	State  string `json:"state"` // "RUNNING" | "DRAINING" | "STOPPED"
	Detail string `json:"detail,omitempty"`
}
