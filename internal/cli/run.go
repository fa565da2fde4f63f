// Package cli implements the shared command core behind the install-skill,
// install-command, and install-agent binaries.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"agent-resources/internal/config"
	"agent-resources/internal/fetch"
	"agent-resources/internal/installer"
	"agent-resources/internal/resource"
)

// DefaultRepo is the repository name fetched when --repo is not given.
const DefaultRepo = "agent-resources"

type Options struct {
	CommandName string
	Category    resource.Category
}

func Run(args []string, opts Options) error {
	cmdName := opts.CommandName
	if cmdName == "" {
		cmdName = filepath.Base(args[0])
	}

	if len(args) > 1 && args[1] == "config" {
		return runConfigCommand(args[2:], cmdName)
	}

	fs := flag.NewFlagSet(cmdName, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var overwrite bool
	var global bool
	var showVersion bool
	var repoName string
	var dest string
	var envName string

	fs.BoolVar(&overwrite, "overwrite", false, "overwrite the resource if it already exists")
	fs.BoolVar(&overwrite, "o", false, "alias for --overwrite")
	fs.BoolVar(&global, "global", false, "install under the home directory instead of the project")
	fs.BoolVar(&global, "g", false, "alias for --global")
	fs.StringVar(&repoName, "repo", DefaultRepo, "repository name to fetch from")
	fs.StringVar(&repoName, "r", DefaultRepo, "alias for --repo")
	fs.StringVar(&dest, "dest", "", "custom destination directory")
	fs.StringVar(&dest, "d", "", "alias for --dest")
	fs.StringVar(&envName, "env", "", "target environment (claude, opencode, codex)")
	fs.StringVar(&envName, "e", "", "alias for --env")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.BoolVar(&showVersion, "v", false, "alias for --version")

	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage: %s [options] <username>/<%s-name>\n", cmdName, opts.Category)
		fmt.Fprintf(out, "       %s config [--init] [-e|--edit]\n\n", cmdName)
		fmt.Fprintf(out, "Add a %s from a GitHub user's %s repository.\n", opts.Category, DefaultRepo)
		fmt.Fprintln(out, "Run without arguments to open the interactive installer.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Options:")
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  -o, --overwrite\tOverwrite the resource if it already exists")
		fmt.Fprintln(tw, "  -g, --global\tInstall under the home directory instead of the project")
		fmt.Fprintf(tw, "  -r, --repo\tRepository name to fetch from (default: %s)\n", DefaultRepo)
		fmt.Fprintln(tw, "  -d, --dest\tCustom destination directory")
		fmt.Fprintln(tw, "  -e, --env\tTarget environment (claude, opencode, codex)")
		fmt.Fprintln(tw, "  -v, --version\tPrint version and exit")
		fmt.Fprintln(tw, "  -h, --help\tShow help")
		_ = tw.Flush()
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("%s %s\n", cmdName, Version)
		return nil
	}

	if fs.NArg() > 1 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args()[1:], " "))
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	refArg := fs.Arg(0)
	if refArg == "" {
		answers, err := promptInstallTUI(opts.Category, cfg)
		if err != nil {
			if errors.Is(err, errCanceled) {
				return nil
			}
			return err
		}
		refArg = answers.ref
		envName = answers.env
		global = answers.global
		overwrite = answers.overwrite
	}

	ref, err := resource.ParseRef(refArg)
	if err != nil {
		return err
	}

	destDir, err := cfg.Destination(opts.Category, global, dest, envName)
	if err != nil {
		return err
	}
	scope := "project"
	if global {
		scope = "user"
	}

	infof("Fetching %s '%s' from %s/%s...", opts.Category, ref.Name, ref.Owner, repoName)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	resolved, cleanup, err := fetch.New().Resource(ctx, ref, repoName, opts.Category)
	if err != nil {
		return err
	}
	defer cleanup()

	installed, err := installer.Install(resolved, destDir, ref.Name, overwrite)
	if err != nil {
		return err
	}

	successf("Added %s '%s' to %s (%s scope)", opts.Category, ref.Name, installed, scope)
	if opts.Category == resource.CategorySkill {
		if meta := installer.Metadata(installed); meta.Description != "" {
			faintf("%s", meta.Description)
		}
	}
	return nil
}

func runConfigCommand(args []string, cmdName string) error {
	fs := flag.NewFlagSet(cmdName+" config", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var edit bool
	var init bool
	fs.BoolVar(&edit, "edit", false, "edit config in $EDITOR/$VISUAL")
	fs.BoolVar(&edit, "e", false, "alias for --edit")
	fs.BoolVar(&init, "init", false, "create config with defaults if missing")
	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage: %s config [--init] [-e|--edit]\n\n", cmdName)
		fmt.Fprintln(out, "Options:")
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  --init\tCreate config file with defaults")
		fmt.Fprintln(tw, "  -e, --edit\tEdit config in $EDITOR/$VISUAL")
		fmt.Fprintln(tw, "  -h, --help\tShow help")
		_ = tw.Flush()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	configPath, err := config.FilePath()
	if err != nil {
		return err
	}

	if init {
		if err := config.Ensure(configPath); err != nil {
			return err
		}
	}

	if edit {
		if err := config.Ensure(configPath); err != nil {
			return err
		}
		return editConfigFile(configPath)
	}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		fmt.Printf("Config not found at %s\n", configPath)
		fmt.Printf("Run `%s config --init` to create it.\n", cmdName)
		return nil
	} else if err != nil {
		return err
	}
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Print(os.Stdout); err != nil {
		return err
	}
	fmt.Printf("\nConfig path: %s\n", configPath)
	return nil
}

func editConfigFile(path string) error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		editor = "vi"
	}
	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
