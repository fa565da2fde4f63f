package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"agent-resources/internal/config"
	"agent-resources/internal/resource"
)

var errCanceled = errors.New("canceled")

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type installAnswers struct {
	ref       string
	env       string
	global    bool
	overwrite bool
}

// promptInstallTUI gathers the install parameters interactively when the
// binary is invoked without a resource reference.
func promptInstallTUI(category resource.Category, cfg config.Config) (installAnswers, error) {
	ref, err := textInputTUI(
		fmt.Sprintf("Install %s", category),
		fmt.Sprintf("Enter <username>/<%s-name>:", category),
		"",
	)
	if err != nil {
		return installAnswers{}, err
	}
	if ref == "" {
		return installAnswers{}, errors.New("no resource reference entered")
	}

	envs := cfg.EnvironmentNames()
	envIdx, err := selectIndexTUI("Target environment", envs)
	if err != nil {
		return installAnswers{}, err
	}

	cwd, _ := os.Getwd()
	home, _ := os.UserHomeDir()
	scopeIdx, err := selectIndexTUI("Install scope", []string{
		fmt.Sprintf("Project (%s)", cwd),
		fmt.Sprintf("Global (%s)", home),
	})
	if err != nil {
		return installAnswers{}, err
	}

	overwriteIdx, err := selectIndexTUI("If it is already installed", []string{
		"Keep the existing copy",
		"Overwrite it",
	})
	if err != nil {
		return installAnswers{}, err
	}

	return installAnswers{
		ref:       ref,
		env:       envs[envIdx],
		global:    scopeIdx == 1,
		overwrite: overwriteIdx == 1,
	}, nil
}

func selectIndexTUI(title string, items []string) (int, error) {
	if len(items) == 0 {
		return -1, errors.New("no items to select")
	}
	model := newSingleSelectModel(title, items)
	program := tea.NewProgram(model, tea.WithAltScreen())
	finalModel, err := program.Run()
	if err != nil {
		return -1, err
	}
	finalState, ok := finalModel.(singleSelectModel)
	if !ok {
		return -1, errors.New("unexpected TUI state")
	}
	if finalState.canceled {
		return -1, errCanceled
	}
	return finalState.selectedIndex, nil
}

type singleSelectModel struct {
	title         string
	items         []string
	cursor        int
	selectedIndex int
	canceled      bool
}

func newSingleSelectModel(title string, items []string) singleSelectModel {
	return singleSelectModel{
		title:         title,
		items:         items,
		selectedIndex: -1,
	}
}

func (m singleSelectModel) Init() tea.Cmd {
	return nil
}

func (m singleSelectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.canceled = true
			return m, tea.Quit
		case "enter":
			m.selectedIndex = m.cursor
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		}
	}
	return m, nil
}

func (m singleSelectModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	for i, item := range m.items {
		cursor := " "
		if m.cursor == i {
			cursor = cursorStyle.Render(">")
		}
		b.WriteString(fmt.Sprintf("%s %s\n", cursor, item))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("j/k or ↑/↓ to move, enter to confirm, q to quit"))
	b.WriteString("\n")
	return b.String()
}

func textInputTUI(title, prompt, value string) (string, error) {
	model := newTextInputModel(title, prompt, value)
	program := tea.NewProgram(model, tea.WithAltScreen())
	finalModel, err := program.Run()
	if err != nil {
		return "", err
	}
	finalState, ok := finalModel.(textInputModel)
	if !ok {
		return "", errors.New("unexpected TUI state")
	}
	if finalState.canceled {
		return "", errCanceled
	}
	return strings.TrimSpace(finalState.value), nil
}

type textInputModel struct {
	title    string
	prompt   string
	value    string
	cursor   int
	canceled bool
}

func newTextInputModel(title, prompt, value string) textInputModel {
	return textInputModel{
		title:  title,
		prompt: prompt,
		value:  value,
		cursor: len(value),
	}
}

func (m textInputModel) Init() tea.Cmd {
	return nil
}

func (m textInputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.canceled = true
			return m, tea.Quit
		case "enter":
			return m, tea.Quit
		case "left":
			if m.cursor > 0 {
				m.cursor--
			}
		case "right":
			if m.cursor < len(m.value) {
				m.cursor++
			}
		case "backspace":
			if m.cursor > 0 {
				m.value = m.value[:m.cursor-1] + m.value[m.cursor:]
				m.cursor--
			}
		case "delete":
			if m.cursor < len(m.value) {
				m.value = m.value[:m.cursor] + m.value[m.cursor+1:]
			}
		default:
			if msg.Type == tea.KeyRunes {
				insert := string(msg.Runes)
				m.value = m.value[:m.cursor] + insert + m.value[m.cursor:]
				m.cursor += len(insert)
			}
		}
	}
	return m, nil
}

func (m textInputModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(m.prompt)
	b.WriteString("\n")
	if m.value == "" {
		b.WriteString(cursorStyle.Render("|"))
	} else {
		before := m.value[:m.cursor]
		after := m.value[m.cursor:]
		b.WriteString(before)
		b.WriteString(cursorStyle.Render("|"))
		b.WriteString(after)
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("type to edit, enter to confirm, esc to quit"))
	b.WriteString("\n")
	return b.String()
}
