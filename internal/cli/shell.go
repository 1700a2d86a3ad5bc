package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	flag "github.com/spf13/pflag"
)

const shellPrompt = "scribe> "

// ShellCmd returns the shell command.
func ShellCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage: "shell",
		Short: "Run commands interactively",
		Long: `Start an interactive session running the same commands as the command
line, without the "scribe" prefix. Quote arguments containing spaces.
Section content must be given inline. Type "help" for commands and "exit"
to leave.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args)
			if err != nil {
				return err
			}

			return runShell(ctx, o, a)
		},
	}
}

func runShell(ctx context.Context, o *IO, a *app) error {
	p := a.prompter()

	// The prompter owns stdin now.
	a.stdin = nil

	state, interactive := p.(*liner.State)
	if interactive {
		state.SetCompleter(func(line string) []string { return completeCommand(a, line) })
		loadHistory(state, a.cfg.Env)

		defer saveHistory(state, a.cfg.Env)

		o.Println("scribe shell. Type 'help' for commands, 'exit' to leave.")
	}

	for ctx.Err() == nil {
		line, err := p.Prompt(shellPrompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				if interactive {
					o.Println("Bye!")
				}

				return nil
			}

			return err
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p.AppendHistory(line)

		words, err := splitLine(line)
		if err != nil {
			o.ErrPrintln("error:", err)

			continue
		}

		switch words[0] {
		case "exit", "quit", "q":
			if interactive {
				o.Println("Bye!")
			}

			return nil
		case "help", "?":
			for _, c := range commands(a) {
				o.Println(c.HelpLine())
			}

			o.Println("  exit / quit / q")

			continue
		case "shell":
			o.ErrPrintln("error: already in the shell")

			continue
		}

		cmd, cmdArgs := lookup(commands(a), words)
		if cmd == nil {
			o.ErrPrintln("error: unknown command:", words[0], "(type 'help' for commands)")

			continue
		}

		sub := NewIO(o.out, o.errOut)
		if cmd.Run(ctx, sub, cmdArgs) == 0 {
			sub.Finish()
		}
	}

	return ctx.Err()
}

func completeCommand(a *app, line string) []string {
	var out []string

	for _, c := range commands(a) {
		if strings.HasPrefix(c.Name(), line) {
			out = append(out, c.Name()+" ")
		}
	}

	return out
}

// historyFile returns the path to the shell history file.
func historyFile(env map[string]string) string {
	home := env["HOME"]
	if home == "" {
		return ""
	}

	return filepath.Join(home, ".scribe_history")
}

func loadHistory(state *liner.State, env map[string]string) {
	path := historyFile(env)
	if path == "" {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		return
	}

	defer func() { _ = f.Close() }()

	_, _ = state.ReadHistory(f)
}

func saveHistory(state *liner.State, env map[string]string) {
	path := historyFile(env)
	if path == "" {
		return
	}

	f, err := os.Create(path)
	if err != nil {
		return
	}

	defer func() { _ = f.Close() }()

	_, _ = state.WriteHistory(f)
}
