// Package resource defines the resource categories handled by the installers
// and the reference format used to address a resource on GitHub.
package resource

import (
	"bufio"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category determines where a resource is looked up in the remote repository
// and where it lands locally.
type Category string

const (
	CategorySkill   Category = "skill"
	CategoryCommand Category = "command"
	CategoryAgent   Category = "agent"
)

// IsBundle reports whether resources of this category are directories rather
// than single markdown files. Skills ship as a directory containing SKILL.md
// plus any supporting files; commands and agents are single files.
func (c Category) IsBundle() bool {
	return c == CategorySkill
}

// Ref addresses a resource in a GitHub user's resource repository.
type Ref struct {
	Owner string
	Name  string
}

func (r Ref) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRef parses "<owner>/<name>" into its components.
func ParseRef(s string) (Ref, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Ref{}, fmt.Errorf("invalid reference %q: expected <username>/<name>", s)
	}
	return Ref{Owner: parts[0], Name: parts[1]}, nil
}

// Metadata is the YAML frontmatter carried by SKILL.md files.
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// ParseFrontmatter extracts the YAML frontmatter between leading "---" markers.
// Content without a frontmatter block yields zero Metadata and no error.
func ParseFrontmatter(content []byte) (Metadata, error) {
	var meta Metadata

	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != "---" {
		return meta, nil
	}

	var block strings.Builder
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			closed = true
			break
		}
		block.WriteString(line)
		block.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return meta, err
	}
	if !closed {
		return Metadata{}, nil
	}

	if err := yaml.Unmarshal([]byte(block.String()), &meta); err != nil {
		return Metadata{}, fmt.Errorf("parse frontmatter: %w", err)
	}
	return meta, nil
}
