// Package pause implements the operator login checkpoint: the pipeline
// blocks here until the operator confirms they have logged in to the app
// on the emulator screen. No timeout by design - this is a wait on human
// action, exitable only by confirmation or interrupt.
package pause

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// ErrAborted is returned when the operator interrupts the checkpoint
// instead of confirming it.
var ErrAborted = fmt.Errorf("checkpoint aborted by operator")

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type model struct {
	spin    spinner.Model
	message string
	done    bool
	aborted bool
}

func newModel(message string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	return model{spin: s, message: message}
}

func (m model) Init() tea.Cmd {
	return m.spin.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	if m.done || m.aborted {
		return ""
	}
	return fmt.Sprintf("\n  %s %s\n\n  %s\n",
		m.spin.View(),
		promptStyle.Render(m.message),
		hintStyle.Render("press enter to continue · esc to abort"))
}

// Wait blocks until the operator confirms. With a terminal on stdin it
// runs the spinner UI; otherwise it falls back to reading a line, so the
// tool still works under a dumb terminal or a script harness.
func Wait(ctx context.Context, message string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return waitLine(ctx, message)
	}

	prog := tea.NewProgram(newModel(message), tea.WithContext(ctx))
	out, err := prog.Run()
	if err != nil {
		if ctx.Err() != nil {
			return ErrAborted
		}
		return err
	}
	if m, ok := out.(model); ok && m.aborted {
		return ErrAborted
	}
	return nil
}

func waitLine(ctx context.Context, message string) error {
	fmt.Printf("%s\n>>> press ENTER to continue... ", message)
	lineCh := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(os.Stdin).ReadString('\n')
		lineCh <- err
	}()
	select {
	case <-ctx.Done():
		return ErrAborted
	case err := <-lineCh:
		if err != nil {
			return ErrAborted
		}
		return nil
	}
}

// Confirm asks a yes/no question on the plain terminal (used for the
// shutdown prompt, which does not warrant a full-screen UI).
func Confirm(question string) bool {
	fmt.Printf("%s (y/N): ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
