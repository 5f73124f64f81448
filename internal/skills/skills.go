// Package skills implements the three-tier skill system: lightweight L1
// metadata stays resident in the system prompt, full L2 instructions and
// L3 sibling resource listings load on demand when the agent invokes the
// skill tool. Sources are layered builtin < global < project, with a
// same-name skill at a higher tier overriding a lower one.
package skills

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed builtin/*.md
var builtinFS embed.FS

// Source identifies where a skill came from, which determines whether it
// can be edited or deleted and how it is labeled to the user.
type Source int

const (
	SourceBuiltin Source = iota
	SourceGlobal
	SourceProject
)

func (s Source) String() string {
	switch s {
	case SourceBuiltin:
		return "builtin"
	case SourceGlobal:
		return "global"
	case SourceProject:
		return "project"
	default:
		return "unknown"
	}
}

// Meta is the L1 metadata kept resident in the system prompt.
type Meta struct {
	Name        string
	Description string
	Tags        []string
	Source      Source
	// Path is the directory containing SKILL.md; empty for builtin skills.
	Path string
}

// Content is the full L2 instructions plus the L3 resource file listing,
// loaded only when the agent asks for a specific skill by name.
type Content struct {
	Meta         Meta
	Instructions string
	Resources    []string
}

var builtinNames = []string{"code-review", "git-commit", "go-dev", "remote-tool-install"}

// ParseSkillMD parses a SKILL.md document's YAML-ish frontmatter, returning
// name, description, tags, and body (frontmatter stripped). It accepts a
// restricted frontmatter dialect: one `key: value` pair per line, no
// nested structures, tags as a bracketed comma list.
func ParseSkillMD(content string) (name, description string, tags []string, body string, err error) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "---") {
		return "", "", nil, "", fmt.Errorf("SKILL.md missing frontmatter (must start with ---)")
	}

	rest := content[3:]
	end := strings.Index(rest, "---")
	if end == -1 {
		return "", "", nil, "", fmt.Errorf("frontmatter not closed (missing trailing ---)")
	}

	frontmatter := strings.TrimSpace(rest[:end])
	body = strings.TrimSpace(rest[end+3:])

	for _, line := range strings.Split(frontmatter, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "name:"):
			name = unquote(strings.TrimSpace(strings.TrimPrefix(line, "name:")))
		case strings.HasPrefix(line, "description:"):
			description = unquote(strings.TrimSpace(strings.TrimPrefix(line, "description:")))
		case strings.HasPrefix(line, "tags:"):
			val := strings.TrimSpace(strings.TrimPrefix(line, "tags:"))
			val = strings.TrimPrefix(val, "[")
			val = strings.TrimSuffix(val, "]")
			for _, t := range strings.Split(val, ",") {
				t = unquote(strings.TrimSpace(t))
				if t != "" {
					tags = append(tags, t)
				}
			}
		}
	}

	if name == "" {
		return "", "", nil, "", fmt.Errorf("SKILL.md frontmatter missing name field")
	}
	if description == "" {
		return "", "", nil, "", fmt.Errorf("SKILL.md frontmatter missing description field")
	}
	return name, description, tags, body, nil
}

func unquote(s string) string {
	return strings.Trim(s, "\"")
}

// ValidateName checks a skill name against ^[a-z0-9][a-z0-9-]*$, length 1-64.
func ValidateName(name string) error {
	if name == "" || len(name) > 64 {
		return fmt.Errorf("skill name length must be between 1 and 64")
	}
	for _, c := range name {
		if !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9') && c != '-' {
			return fmt.Errorf("skill name may only contain lowercase letters, digits, and hyphens, got: %s", name)
		}
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("skill name may not start with a hyphen")
	}
	return nil
}

// ScanDir reads dir for immediate subdirectories containing a SKILL.md and
// returns their L1 metadata. A missing dir, or a subdirectory whose
// SKILL.md fails to parse, is skipped silently (the latter is the agent's
// own config mistake, not a fatal error for the whole load).
func ScanDir(dir string, source Source) []Meta {
	var out []Meta
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		skillFile := filepath.Join(path, "SKILL.md")
		data, err := os.ReadFile(skillFile)
		if err != nil {
			continue
		}
		name, description, tags, _, err := ParseSkillMD(string(data))
		if err != nil {
			continue
		}
		out = append(out, Meta{
			Name:        name,
			Description: description,
			Tags:        tags,
			Source:      source,
			Path:        path,
		})
	}
	return out
}

// Builtin loads the L1 metadata for the compiled-in skill set.
func Builtin() []Meta {
	var out []Meta
	for _, name := range builtinNames {
		data, err := builtinFS.ReadFile("builtin/" + name + ".md")
		if err != nil {
			continue
		}
		parsedName, description, tags, _, err := ParseSkillMD(string(data))
		if err != nil {
			continue
		}
		out = append(out, Meta{
			Name:        parsedName,
			Description: description,
			Tags:        tags,
			Source:      SourceBuiltin,
		})
	}
	return out
}

// Load merges builtin, global, and project skills, project overriding
// global overriding builtin on a name collision, and returns them sorted
// by name for a stable system-prompt listing.
func Load(workspaceDir, globalDir string) []Meta {
	projectDir := filepath.Join(workspaceDir, ".claw", "skills")
	projectSkills := ScanDir(projectDir, SourceProject)
	globalSkills := ScanDir(globalDir, SourceGlobal)
	builtin := Builtin()

	var merged []Meta
	indexByName := make(map[string]int)
	add := func(m Meta) {
		if i, ok := indexByName[m.Name]; ok {
			merged[i] = m
			return
		}
		indexByName[m.Name] = len(merged)
		merged = append(merged, m)
	}
	for _, m := range builtin {
		add(m)
	}
	for _, m := range globalSkills {
		add(m)
	}
	for _, m := range projectSkills {
		add(m)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	return merged
}

// LoadContent loads the full L2 instructions and L3 resource listing for
// the named skill out of the already-merged metadata list.
func LoadContent(name string, metas []Meta) (Content, error) {
	var meta Meta
	found := false
	for _, m := range metas {
		if m.Name == name {
			meta = m
			found = true
			break
		}
	}
	if !found {
		names := make([]string, len(metas))
		for i, m := range metas {
			names[i] = m.Name
		}
		avail := "(none)"
		if len(names) > 0 {
			avail = strings.Join(names, ", ")
		}
		return Content{}, fmt.Errorf("skill %q not found. available skills: %s", name, avail)
	}

	var instructions string
	var resources []string

	if meta.Source == SourceBuiltin {
		data, err := builtinFS.ReadFile("builtin/" + meta.Name + ".md")
		if err != nil {
			return Content{}, fmt.Errorf("builtin skill %q is missing its content", meta.Name)
		}
		_, _, _, body, err := ParseSkillMD(string(data))
		if err != nil {
			return Content{}, err
		}
		instructions = body
	} else {
		skillFile := filepath.Join(meta.Path, "SKILL.md")
		data, err := os.ReadFile(skillFile)
		if err != nil {
			return Content{}, fmt.Errorf("reading %s: %w", skillFile, err)
		}
		_, _, _, body, err := ParseSkillMD(string(data))
		if err != nil {
			return Content{}, err
		}
		instructions = body
		resources = listResources(meta.Path)
	}

	return Content{Meta: meta, Instructions: instructions, Resources: resources}, nil
}

// listResources lists every file in dir other than SKILL.md, sorted.
func listResources(dir string) []string {
	var out []string
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if entry.Name() == "SKILL.md" {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(out)
	return out
}
