package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	runewidth "github.com/mattn/go-runewidth"

	"github.com/afif25fradana/luna-voice-assistant-offline/internal/types"
)

// ANSI codes
const (
	ansiReset   = "\033[0m"
	ansiDim     = "\033[2m"
	ansiCyan    = "\033[36m"
	ansiYellow  = "\033[33m"
	ansiGreen   = "\033[32m"
	ansiRed     = "\033[31m"
	ansiMagenta = "\033[35m"
	ansiBlue    = "\033[34m"
)

var roleEmoji = map[types.Role]string{
	types.RoleUser:      "👤",
	types.RoleAssistant: "🌙",
	types.RoleRouter:    "🧭",
	types.RoleValidator: "🛡️ ",
	types.RoleExecutor:  "⚙️ ",
	types.RoleMemory:    "💾",
	types.RoleAuditor:   "📡",
	types.RoleSpeech:    "🔊",
}

var msgColor = map[types.MessageType]string{
	types.MsgUtteranceReceived: ansiCyan,
	types.MsgIntentRouted:      ansiBlue,
	types.MsgCommandChecked:    ansiYellow,
	types.MsgCommandRun:        ansiMagenta,
	types.MsgResponseReady:     ansiGreen,
	types.MsgLifecycle:         ansiDim,
}

var msgStatus = map[types.MessageType]string{
	types.MsgUtteranceReceived: "🧭 routing intent...",
	types.MsgIntentRouted:      "🌙 deciding...",
	types.MsgCommandChecked:    "⚙️  running...",
	types.MsgCommandRun:        "🌙 composing reply...",
}

// dynamicStatus returns a spinner label for msg, enriched with payload detail
// for message types where the static label alone is not informative enough.
func dynamicStatus(msg types.Message) string {
	switch msg.Type {
	case types.MsgIntentRouted:
		var in types.IntentEvent
		if remarshal(msg.Payload, &in) == nil {
			if in.Kind == "execute" {
				return "🛡️  checking " + clip(in.Command, 45)
			}
			return "💬 thinking..."
		}
	case types.MsgCommandChecked:
		var v types.VerdictEvent
		if remarshal(msg.Payload, &v) == nil && !v.Allowed {
			return "🚫 refusing..."
		}
	}
	if s := msgStatus[msg.Type]; s != "" {
		return s
	}
	return ""
}

var spinRunes = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// Display renders a live inter-role flow visualization to stdout.
// It reads every bus message and animates one pipeline box per utterance,
// opened by UtteranceReceived and closed by ResponseReady.
type Display struct {
	sub      <-chan types.Message
	abortCh  chan struct{}
	pauseCh  chan struct{}
	resumeCh chan struct{}

	mu     sync.Mutex
	status string

	started      time.Time
	inTask       bool
	spinIdx      int
	paused       bool // true between Pause()/Resume(); holds all rendering
	suppressed   bool // true after Abort(); blocks new pipeline boxes until Resume()
	pendingClose bool // a ResponseReady arrived while paused
}

// New creates a Display reading from sub.
func New(sub <-chan types.Message) *Display {
	return &Display{
		sub:      sub,
		abortCh:  make(chan struct{}, 1),
		pauseCh:  make(chan struct{}, 1),
		resumeCh: make(chan struct{}, 1),
	}
}

// Abort signals the display to immediately close the current pipeline box
// and suppress any subsequent stale messages until Resume() is called.
// Safe to call from any goroutine.
func (d *Display) Abort() {
	select {
	case d.abortCh <- struct{}{}:
	default:
	}
}

// Pause clears the spinner line and holds all rendering so the caller can
// write to stdout (the REPL pauses while a chat reply streams).
// Safe to call from any goroutine.
func (d *Display) Pause() {
	select {
	case d.pauseCh <- struct{}{}:
	default:
	}
}

// Resume lifts a Pause() or post-Abort suppression. If the pipeline box was
// completed while paused, its closing line is printed now.
// Safe to call from any goroutine.
func (d *Display) Resume() {
	select {
	case d.resumeCh <- struct{}{}:
	default:
	}
}

// Run is the main goroutine. It renders flow lines and animates the spinner.
// All terminal writes happen within this single goroutine so no extra locking
// is needed for I/O.
func (d *Display) Run(ctx context.Context) {
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Print("\r\033[K")
			return

		case <-d.abortCh:
			if d.inTask {
				fmt.Print("\r\033[K")
				d.endTask("❌")
			}
			d.mu.Lock()
			d.suppressed = true
			d.mu.Unlock()

		case <-d.pauseCh:
			fmt.Print("\r\033[K")
			d.mu.Lock()
			d.paused = true
			d.mu.Unlock()

		case <-d.resumeCh:
			d.mu.Lock()
			d.paused = false
			d.suppressed = false
			d.mu.Unlock()
			if d.pendingClose && d.inTask {
				d.endTask("✅")
				d.pendingClose = false
			}

		case msg, ok := <-d.sub:
			if !ok {
				return
			}
			if msg.Type == types.MsgLifecycle {
				d.printLifecycle(msg)
				continue
			}
			d.mu.Lock()
			paused, sup := d.paused, d.suppressed
			d.mu.Unlock()
			if paused {
				// The REPL owns stdout right now; remember a completed box.
				if msg.Type == types.MsgResponseReady {
					d.pendingClose = true
				}
				continue
			}
			if !d.inTask {
				if sup {
					// Drain stale post-abort messages silently; don't open a new box.
					continue
				}
				d.startTask()
			}
			// Clear spinner line before printing a new flow line.
			fmt.Print("\r\033[K")
			d.printFlow(msg)
			d.setStatus(dynamicStatus(msg))
			if msg.Type == types.MsgResponseReady {
				d.endTask("✅")
			}

		case <-ticker.C:
			d.mu.Lock()
			paused := d.paused
			d.mu.Unlock()
			if !d.inTask || paused {
				continue
			}
			frame := spinRunes[d.spinIdx%len(spinRunes)]
			d.spinIdx++
			d.mu.Lock()
			status := d.status
			d.mu.Unlock()
			fmt.Printf("\r%s%s%s %s", ansiCyan, string(frame), ansiReset, status)
		}
	}
}

func (d *Display) startTask() {
	d.started = time.Now()
	d.inTask = true
	d.setStatus("listening...")
	fmt.Printf("\n%s┌─── 🌙 luna pipeline %s%s\n", ansiDim, strings.Repeat("─", 38), ansiReset)
}

func (d *Display) endTask(icon string) {
	d.inTask = false
	elapsed := time.Since(d.started).Round(time.Millisecond)
	fmt.Printf("\r\033[K%s└─── %s  %v %s%s\n", ansiDim, icon, elapsed, strings.Repeat("─", 35), ansiReset)
}

func (d *Display) setStatus(s string) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

func (d *Display) printFlow(msg types.Message) {
	// ResponseReady is surfaced via endTask; skip its flow line.
	if msg.Type == types.MsgResponseReady {
		return
	}

	from := roleLabel(msg.From)
	to := roleLabel(msg.To)

	label := string(msg.Type)
	if det := msgDetail(msg); det != "" {
		label += ": " + det
	}

	color := msgColor[msg.Type]
	if color == "" {
		color = ansiDim
	}

	fmt.Printf("  %s ──[%s%s%s]──► %s\n", from, color, label, ansiReset, to)
}

// printLifecycle renders a standalone state line; lifecycle transitions never
// open a pipeline box.
func (d *Display) printLifecycle(msg types.Message) {
	var ev types.LifecycleEvent
	if remarshal(msg.Payload, &ev) != nil {
		return
	}
	color := ansiDim
	switch ev.State {
	case "RUNNING":
		color = ansiGreen
	case "DRAINING":
		color = ansiYellow
	case "STOPPED":
		color = ansiRed
	}
	fmt.Print("\r\033[K")
	if ev.Detail != "" {
		fmt.Printf("%s● luna %s%s %s(%s)%s\n", color, ev.State, ansiReset, ansiDim, ev.Detail, ansiReset)
		return
	}
	fmt.Printf("%s● luna %s%s\n", color, ev.State, ansiReset)
}

func roleLabel(r types.Role) string {
	emoji, ok := roleEmoji[r]
	if !ok {
		emoji = "•"
	}
	return emoji + " " + string(r)
}

func msgDetail(msg types.Message) string {
	switch msg.Type {
	case types.MsgUtteranceReceived:
		var u types.UtteranceEvent
		if remarshal(msg.Payload, &u) == nil && u.Text != "" {
			return clip(u.Text, 55)
		}
	case types.MsgIntentRouted:
		var in types.IntentEvent
		if remarshal(msg.Payload, &in) == nil {
			switch {
			case in.Kind == "execute":
				return "execute: " + clip(in.Command, 45)
			case in.FellBack:
				return "chat (fallback)"
			default:
				return "chat"
			}
		}
	case types.MsgCommandChecked:
		var v types.VerdictEvent
		if remarshal(msg.Payload, &v) == nil {
			if v.Allowed {
				return "allowed"
			}
			return "denied: " + clip(v.Reason, 45)
		}
	case types.MsgCommandRun:
		var r types.ResultEvent
		if remarshal(msg.Payload, &r) == nil {
			if r.TimedOut {
				return fmt.Sprintf("timed out after %dms", r.DurationMs)
			}
			return fmt.Sprintf("exit %d (%dms)", r.ExitCode, r.DurationMs)
		}
	}
	return ""
}

// clip truncates s to a display width of at most n cells, appending "…" if
// trimmed. Width-aware so emoji and CJK in utterances don't overflow the box.
func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.Truncate(s, n, "…")
}

func remarshal(src, dst any) error {
	b, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
