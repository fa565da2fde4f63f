// Package config resolves install destinations for each target environment
// and loads user overrides from the TOML config file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"agent-resources/internal/resource"
)

// Environment describes where each resource category lives relative to the
// install base. Global dirs apply to --global installs; when empty, the
// project-relative dir is reused under the home directory.
type Environment struct {
	SkillDir         string `toml:"skill-dir"`
	CommandDir       string `toml:"command-dir"`
	AgentDir         string `toml:"agent-dir"`
	GlobalSkillDir   string `toml:"global-skill-dir,omitempty"`
	GlobalCommandDir string `toml:"global-command-dir,omitempty"`
	GlobalAgentDir   string `toml:"global-agent-dir,omitempty"`
}

// Dir returns the environment's directory for a category, falling back to the
// project-relative dir when no global override is configured.
func (e Environment) Dir(category resource.Category, global bool) string {
	var dir, globalDir string
	switch category {
	case resource.CategoryCommand:
		dir, globalDir = e.CommandDir, e.GlobalCommandDir
	case resource.CategoryAgent:
		dir, globalDir = e.AgentDir, e.GlobalAgentDir
	default:
		dir, globalDir = e.SkillDir, e.GlobalSkillDir
	}
	if global && globalDir != "" {
		return globalDir
	}
	return dir
}

// Config is the user-facing configuration. Environments are merged over the
// built-in defaults by name; a user entry replaces the default wholesale.
type Config struct {
	Environments map[string]Environment `toml:"environments"`
}

// DefaultEnvironment is used when --env is not given.
const DefaultEnvironment = "claude"

// Defaults returns the built-in environment layouts.
func Defaults() map[string]Environment {
	return map[string]Environment{
		"claude": {
			SkillDir:   filepath.Join(".claude", "skills"),
			CommandDir: filepath.Join(".claude", "commands"),
			AgentDir:   filepath.Join(".claude", "agents"),
		},
		"opencode": {
			SkillDir:         filepath.Join(".opencode", "skill"),
			CommandDir:       filepath.Join(".opencode", "command"),
			AgentDir:         filepath.Join(".opencode", "agent"),
			GlobalSkillDir:   filepath.Join(".config", "opencode", "skill"),
			GlobalCommandDir: filepath.Join(".config", "opencode", "command"),
			GlobalAgentDir:   filepath.Join(".config", "opencode", "agent"),
		},
		"codex": {
			SkillDir:   filepath.Join(".codex", "skills"),
			CommandDir: filepath.Join(".codex", "commands"),
			AgentDir:   filepath.Join(".codex", "agents"),
		},
	}
}

// FilePath returns the config file location under the user config dir.
func FilePath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "agent-resources", "config.toml"), nil
}

// Load reads the user config file and merges it over the defaults. A missing
// file is not an error: the defaults are returned as-is.
func Load() (Config, error) {
	path, err := FilePath()
	if err != nil {
		return Config{}, err
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit file path.
func LoadFrom(path string) (Config, error) {
	cfg := Config{Environments: Defaults()}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, err
	}
	var user Config
	if _, err := toml.DecodeFile(path, &user); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	for name, env := range user.Environments {
		cfg.Environments[name] = env
	}
	return cfg, nil
}

// Environment looks up a named environment, defaulting to claude. Unknown
// names error listing what is available.
func (c Config) Environment(name string) (Environment, error) {
	if name == "" {
		name = DefaultEnvironment
	}
	env, ok := c.Environments[name]
	if !ok {
		return Environment{}, fmt.Errorf("unknown environment %q. Available: %s", name, strings.Join(c.EnvironmentNames(), ", "))
	}
	return env, nil
}

// EnvironmentNames returns the configured environment names, sorted.
func (c Config) EnvironmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Destination resolves the install directory for a category. A custom dest
// wins over the environment convention and supports ~ expansion. Otherwise
// the environment dir is joined onto the home dir (global) or cwd (project).
func (c Config) Destination(category resource.Category, global bool, customDest, envName string) (string, error) {
	if customDest != "" {
		return expandHome(customDest)
	}

	env, err := c.Environment(envName)
	if err != nil {
		return "", err
	}

	var base string
	if global {
		base, err = os.UserHomeDir()
	} else {
		base, err = os.Getwd()
	}
	if err != nil {
		return "", err
	}
	return filepath.Join(base, env.Dir(category, global)), nil
}

func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], string(filepath.Separator))), nil
	}
	return path, nil
}

// Ensure creates the config file with defaults if it does not exist yet.
func Ensure(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	defaults := Config{Environments: Defaults()}
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(defaults); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// Print writes the merged config as TOML.
func (c Config) Print(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
