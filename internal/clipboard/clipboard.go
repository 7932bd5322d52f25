package clipboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

var ErrUnavailable = errors.New("no clipboard command available")

const copyTimeout = 4 * time.Second

type command struct {
	name string
	args []string
	// detach is set for tools that keep running to serve the selection.
	detach bool
}

// Copier writes text to the system clipboard through pbcopy, wl-copy or xclip.
type Copier struct {
	GOOS     string
	LookPath func(string) (string, error)
}

func (c *Copier) CopyText(ctx context.Context, value string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cmd, err := c.detect()
	if err != nil {
		return err
	}

	if cmd.detach {
		return startDetached(cmd, value)
	}

	copyCtx, cancel := context.WithTimeout(ctx, copyTimeout)
	defer cancel()

	proc := exec.CommandContext(copyCtx, cmd.name, cmd.args...)
	proc.Stdin = strings.NewReader(value)
	proc.Stdout = io.Discard
	proc.Stderr = io.Discard

	if err := proc.Run(); err != nil {
		if errors.Is(copyCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("copy to clipboard timed out: %w", copyCtx.Err())
		}
		return fmt.Errorf("copy to clipboard with %s: %w", cmd.name, err)
	}
	return nil
}

// Tool reports which clipboard command would be used.
func (c *Copier) Tool() (string, error) {
	cmd, err := c.detect()
	if err != nil {
		return "", err
	}
	return cmd.name, nil
}

func (c *Copier) detect() (command, error) {
	candidates := []command{
		{name: "wl-copy"},
		{name: "xclip", args: []string{"-selection", "clipboard", "-in", "-silent"}, detach: true},
	}
	if c.goos() == "darwin" {
		candidates = []command{{name: "pbcopy"}}
	}

	for _, candidate := range candidates {
		if _, err := c.lookPath()(candidate.name); err == nil {
			return candidate, nil
		}
	}
	return command{}, ErrUnavailable
}

func (c *Copier) goos() string {
	if c.GOOS != "" {
		return c.GOOS
	}
	return runtime.GOOS
}

func (c *Copier) lookPath() func(string) (string, error) {
	if c.LookPath != nil {
		return c.LookPath
	}
	return exec.LookPath
}

func startDetached(cmd command, value string) error {
	proc := exec.Command(cmd.name, cmd.args...)
	proc.Stdout = io.Discard
	proc.Stderr = io.Discard

	stdin, err := proc.StdinPipe()
	if err != nil {
		return fmt.Errorf("open clipboard stdin: %w", err)
	}

	if err := proc.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start clipboard command: %w", err)
	}

	if _, err := io.WriteString(stdin, value); err != nil {
		_ = stdin.Close()
		_ = proc.Process.Kill()
		return fmt.Errorf("write clipboard data: %w", err)
	}

	if err := stdin.Close(); err != nil {
		_ = proc.Process.Kill()
		return fmt.Errorf("close clipboard stdin: %w", err)
	}

	_ = proc.Process.Release()
	return nil
}
