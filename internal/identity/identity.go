// Package identity assembles the identity context injected into the
// system prompt: up to four files (global user profile, project persona
// falling back to global persona, project behavior rules), each read
// safely and truncated at an 8 KiB UTF-8 boundary.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxFileBytes = 8 * 1024

type identityFile struct {
	sectionName  string
	relativePath string
}

// globalFiles are read relative to dataDir (the agent's data directory,
// typically ~/.claw/).
var globalFiles = []identityFile{
	{sectionName: "User preferences", relativePath: "USER.md"},
}

// projectFiles are read relative to workspaceDir.
var projectFiles = []identityFile{
	{sectionName: "Project behavior rules", relativePath: ".claw/AGENT.md"},
}

const (
	soulGlobal  = "SOUL.md"
	soulProject = ".claw/SOUL.md"
)

// Load assembles the identity context string from up to four files:
// global user profile, project persona (falling back to global persona
// if the project one is missing), and project behavior rules. Returns
// "" if nothing is loadable.
func Load(workspaceDir, dataDir string) string {
	type section struct{ name, content string }
	var sections []section

	pushIfNonempty := func(name, content string) {
		if strings.TrimSpace(content) != "" {
			sections = append(sections, section{name, content})
		}
	}

	for _, f := range globalFiles {
		if content, ok := readFileSafe(filepath.Join(dataDir, f.relativePath)); ok {
			pushIfNonempty(f.sectionName, content)
		}
	}

	projectSoulPath := filepath.Join(workspaceDir, soulProject)
	globalSoulPath := filepath.Join(dataDir, soulGlobal)
	if content, ok := readFileSafe(projectSoulPath); ok {
		pushIfNonempty("Agent persona (project)", content)
	} else if content, ok := readFileSafe(globalSoulPath); ok {
		pushIfNonempty("Agent persona", content)
	}

	for _, f := range projectFiles {
		if content, ok := readFileSafe(filepath.Join(workspaceDir, f.relativePath)); ok {
			pushIfNonempty(f.sectionName, content)
		}
	}

	if len(sections) == 0 {
		return ""
	}

	var b strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&b, "### %s\n%s\n\n", s.name, strings.TrimSpace(s.content))
	}
	return strings.TrimSpace(b.String())
}

// readFileSafe reads path, returning (content, true) on success. A
// missing file returns (_, false) silently; any other read error also
// returns (_, false) (logged by the caller's surrounding context if
// desired — this package stays I/O-error-silent).
// Content larger than 8 KiB is truncated at the nearest UTF-8 boundary
// and annotated with a truncation marker.
func readFileSafe(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	if len(data) == 0 {
		return "", false
	}

	truncated := false
	if len(data) > maxFileBytes {
		data = data[:maxFileBytes]
		truncated = true
	}

	// Back off to the last valid UTF-8 boundary.
	end := len(data)
	for end > 0 && !isUTF8Boundary(data, end) {
		end--
	}
	if end == 0 {
		return "", false
	}
	content := string(data[:end])
	if truncated {
		content += "\n\n[content truncated]"
	}
	return content, true
}

// isUTF8Boundary reports whether cutting data at index i falls on a
// rune boundary (i.e. data[i:] does not begin with a UTF-8 continuation
// byte, and i == len(data) is always a boundary).
func isUTF8Boundary(data []byte, i int) bool {
	if i == len(data) {
		return true
	}
	return data[i]&0xC0 != 0x80
}
