// Package safety decides whether candidate shell commands are allowed to
// reach the executor. It owns the command blacklist and the structural
// heuristics that back the validator's verdicts.
package safety

// DefaultDenylist returns the built-in blacklist used when the config file
// does not set security.blacklist. Entries are matched as case-insensitive
// substrings of the whole command line.
func DefaultDenylist() []string {
	return []string{
		"rm -rf",
		"format",
		"shutdown",
		":(){:|:&};",
		"mkfs",
		"dd if=",
		"chmod 777",
		"chown root",
	}
}
