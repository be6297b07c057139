package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// HistoryFile returns the readline history path under dir, creating dir
func HistoryFile(dir string) string {
	if dir == "" {
		return ""
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ""
	}
	return filepath.Join(dir, "chat_history")
}

// Run reads lines with readline until /exit, EOF or ctx is done
func Run(ctx context.Context, s *Session, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            fmt.Sprintf("%sYou: %s", colorGreen, colorReset),
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	out := rl.Stdout()
	fmt.Fprintf(out, "\n%sTalking to %s%s\n", colorCyan, s.Citizen().Name, colorReset)
	fmt.Fprintf(out, "%sType /help for help, /exit to leave%s\n\n", colorGray, colorReset)

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				fmt.Fprintf(out, "%sPress Ctrl+D or type /exit to leave%s\n", colorYellow, colorReset)
				continue
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				fmt.Fprintf(out, "\n%sGoodbye!%s\n", colorCyan, colorReset)
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}
		if s.Handle(ctx, line, out) {
			fmt.Fprintf(out, "%sGoodbye!%s\n", colorCyan, colorReset)
			return nil
		}
	}
}
