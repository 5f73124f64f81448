// Package security implements the stateless security policy decision layer:
// is this command/path allowed, and what does the current autonomy level
// permit. None of these checks perform I/O side effects beyond the
// filesystem reads required to resolve symlinks.
package security

import (
	"os"
	"path/filepath"
	"strings"
)

// AutonomyLevel is the policy dial governing whether and how tools may run.
type AutonomyLevel int

const (
	ReadOnly AutonomyLevel = iota
	Supervised
	Full
)

func (a AutonomyLevel) String() string {
	switch a {
	case ReadOnly:
		return "read_only"
	case Supervised:
		return "supervised"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// ParseAutonomyLevel accepts the canonical names plus a couple of common
// aliases seen in config files ("readonly", "read-only").
func ParseAutonomyLevel(s string) (AutonomyLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read_only", "readonly", "read-only":
		return ReadOnly, true
	case "supervised":
		return Supervised, true
	case "full":
		return Full, true
	default:
		return ReadOnly, false
	}
}

// Policy is an immutable-per-turn value object. Construct once per turn (or
// share across an ephemeral agent's single turn) and never mutate in place;
// SetAutonomy on the owning agent replaces the policy wholesale.
type Policy struct {
	Autonomy         AutonomyLevel
	AllowedCommands  map[string]struct{}
	WorkspaceDir     string // must already be absolute; canonicalized lazily
	BlockedPaths     []string
	HTTPAllowedHosts map[string]struct{} // empty set means "no allow-list restriction beyond SSRF guard"
	InjectionCheck   bool
}

// New builds a Policy from plain slices, normalizing the command/host sets
// into membership maps.
func New(autonomy AutonomyLevel, allowedCommands []string, workspaceDir string, blockedPaths []string, httpAllowedHosts []string, injectionCheck bool) Policy {
	cmds := make(map[string]struct{}, len(allowedCommands))
	for _, c := range allowedCommands {
		cmds[c] = struct{}{}
	}
	hosts := make(map[string]struct{}, len(httpAllowedHosts))
	for _, h := range httpAllowedHosts {
		hosts[strings.ToLower(h)] = struct{}{}
	}
	return Policy{
		Autonomy:         autonomy,
		AllowedCommands:  cmds,
		WorkspaceDir:     workspaceDir,
		BlockedPaths:     append([]string(nil), blockedPaths...),
		HTTPAllowedHosts: hosts,
		InjectionCheck:   injectionCheck,
	}
}

// Default mirrors the conservative defaults a freshly-constructed agent
// should start with: Supervised autonomy, a short read-mostly command
// whitelist, and the usual system directories blocked.
func Default(workspaceDir string) Policy {
	return New(
		Supervised,
		[]string{"ls", "cat", "grep", "find", "echo", "pwd", "git", "head", "tail", "wc"},
		workspaceDir,
		[]string{"/etc", "/usr", "/bin", "/sbin", "/var", "/tmp", "/root"},
		nil,
		true,
	)
}

// IsCommandAllowed extracts the first whitespace-separated token of cmdline,
// takes its basename, and reports whether it is in AllowedCommands. An
// empty command line is never allowed.
func (p Policy) IsCommandAllowed(cmdline string) bool {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return false
	}
	base := basenameOf(fields[0])
	if base == "" {
		return false
	}
	_, ok := p.AllowedCommands[base]
	return ok
}

func basenameOf(token string) string {
	idx := strings.LastIndexByte(token, '/')
	if idx < 0 {
		return token
	}
	return token[idx+1:]
}

// IsPathAllowed canonicalizes path (resolving symlinks, walking up to the
// nearest existing ancestor if the path itself doesn't exist yet) and
// reports whether the resolved form is a descendant of WorkspaceDir and not
// a descendant of any BlockedPaths entry.
func (p Policy) IsPathAllowed(path string) bool {
	if path == "" {
		return false
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(p.WorkspaceDir, abs)
	}
	resolved, err := canonicalizeWithAncestors(abs)
	if err != nil {
		return false
	}
	workspace, err := canonicalizeWithAncestors(p.WorkspaceDir)
	if err != nil {
		return false
	}
	if !isPrefixDescendant(resolved, workspace) {
		return false
	}
	for _, blocked := range p.BlockedPaths {
		blockedAbs := blocked
		if !filepath.IsAbs(blockedAbs) {
			blockedAbs = filepath.Join(p.WorkspaceDir, blockedAbs)
		}
		blockedResolved, err := canonicalizeWithAncestors(blockedAbs)
		if err != nil {
			// Blocked path doesn't exist on this machine: fall back to a
			// lexical prefix check so configured blocklists still bite.
			blockedResolved = filepath.Clean(blockedAbs)
		}
		if isPrefixDescendant(resolved, blockedResolved) {
			return false
		}
	}
	return true
}

// canonicalizeWithAncestors resolves symlinks in path. If path does not
// exist, it walks up to the longest existing ancestor, resolves that
// ancestor's symlinks, then re-appends the non-existent suffix components
// (normalized, without touching the filesystem again) in their original
// order. This matches is_path_allowed's documented non-existent-path
// behavior: a path that WOULD resolve under the workspace once created is
// still allowed.
func canonicalizeWithAncestors(path string) (string, error) {
	clean := filepath.Clean(path)
	resolved, err := filepath.EvalSymlinks(clean)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	var suffix []string
	cur := clean
	for {
		parent := filepath.Dir(cur)
		if parent == cur {
			// Reached filesystem root without finding an existing ancestor.
			return "", err
		}
		suffix = append([]string{filepath.Base(cur)}, suffix...)
		cur = parent
		resolvedAncestor, aerr := filepath.EvalSymlinks(cur)
		if aerr == nil {
			return filepath.Join(append([]string{resolvedAncestor}, suffix...)...), nil
		}
		if !os.IsNotExist(aerr) {
			return "", aerr
		}
	}
}

// isPrefixDescendant reports whether child is base itself or a descendant
// of base, comparing cleaned path components (not byte prefixes, so
// "/workspace-evil" is never mistaken for a descendant of "/workspace").
func isPrefixDescendant(child, base string) bool {
	child = filepath.Clean(child)
	base = filepath.Clean(base)
	if child == base {
		return true
	}
	rel, err := filepath.Rel(base, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// AllowsExecution reports whether the autonomy level permits any tool
// execution at all (ReadOnly forbids all side-effecting operations).
func (p Policy) AllowsExecution() bool {
	return p.Autonomy != ReadOnly
}

// RequiresConfirmation reports whether a Supervised confirm callback must
// be consulted before a side-effecting tool runs.
func (p Policy) RequiresConfirmation() bool {
	return p.Autonomy == Supervised
}

// WithAutonomy returns a copy of p with a different autonomy level, used by
// set_autonomy (mid-session widening) and by the scheduler forcing Full on
// an ephemeral agent's policy after construction.
func (p Policy) WithAutonomy(level AutonomyLevel) Policy {
	p.Autonomy = level
	return p
}
