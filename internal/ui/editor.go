package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/yourusername/k8s-console/internal/action"
	"go.uber.org/zap"
)

// Sender delivers messages to a running program
type Sender interface {
	Send(msg tea.Msg)
}

// ResolveEditor picks the editor command: an explicit setting first, then
// $KUBE_EDITOR, then $EDITOR, then vi
func ResolveEditor(configured string) string {
	for _, candidate := range []string{configured, os.Getenv("KUBE_EDITOR"), os.Getenv("EDITOR")} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return "vi"
}

// Editor runs an external editor on a temporary file while the program
// releases the terminal. It implements action.Editor.
type Editor struct {
	command string
	sender  Sender
	logger  *zap.Logger
}

// NewEditor creates an editor that suspends the program through sender
func NewEditor(command string, sender Sender, logger *zap.Logger) *Editor {
	return &Editor{command: command, sender: sender, logger: logger}
}

// Edit writes text to a file named name, opens it and returns the saved
// content. A non-zero editor exit is reported as action.ErrEditAborted.
func (e *Editor) Edit(ctx context.Context, name, text string) (string, error) {
	dir, err := os.MkdirTemp("", "k8s-console-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}

	args := strings.Fields(e.command)
	if len(args) == 0 {
		return "", errors.New("no editor configured")
	}
	cmd := exec.Command(args[0], append(args[1:], path)...)

	e.logger.Debug("Launching editor", zap.String("command", e.command), zap.String("file", path))

	done := make(chan error, 1)
	e.sender.Send(execMsg{cmd: cmd, done: done})

	select {
	case err = <-done:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", action.ErrEditAborted
		}
		return "", fmt.Errorf("run editor %q: %w", e.command, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read edited file: %w", err)
	}
	return string(data), nil
}

// SystemClipboard writes to the OS clipboard
type SystemClipboard struct{}

// WriteAll copies text to the clipboard
func (SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return errors.New("no clipboard utility available")
	}
	return clipboard.WriteAll(text)
}
