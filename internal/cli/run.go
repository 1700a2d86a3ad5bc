// Package cli implements the scribe command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/calvinalkan/scribe/internal/scribe"
)

const (
	minArgs      = 2
	consumedOne  = 1
	consumedTwo  = 2
	consumedNone = 0
	helpFlag     = "--help"
)

// Run is the main entry point. Returns exit code.
//
// sigCh may be nil. When it delivers a signal the context of the running
// command is cancelled, which aborts lock waits and assistant calls.
func Run(stdin io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	if len(args) < minArgs {
		printUsage(out)

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	if len(flags.remaining) == 0 || flags.remaining[0] == "-h" || flags.remaining[0] == helpFlag {
		printUsage(out)

		return 0
	}

	cfg, err := scribe.LoadConfig(scribe.LoadConfigInput{
		WorkDirOverride: flags.workDir,
		ConfigPath:      flags.configPath,
		DataDirOverride: flags.dataDir,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut)

		return 1
	}

	level := cfg.SlogLevel()
	if flags.verbose {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case sig := <-sigCh:
				logger.Warn("interrupted", "signal", sig.String())
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	a := newApp(&cfg, logger, stdin)

	defer func() {
		closeErr := a.close()
		if closeErr != nil {
			logger.Warn("close", "error", closeErr)
		}
	}()

	cmds := commands(a)

	cmd, cmdArgs := lookup(cmds, flags.remaining)
	if cmd == nil {
		fprintln(errOut, "error: unknown command:", strings.Join(flags.remaining[:min(2, len(flags.remaining))], " "))
		printUsage(errOut)

		return 1
	}

	ioCtx := NewIO(out, errOut)

	code := cmd.Run(ctx, ioCtx, cmdArgs)
	if code != 0 {
		return code
	}

	// Finish handles warnings and exit code
	return ioCtx.Finish()
}

// commands returns every command, in help order.
func commands(a *app) []*Command {
	return []*Command{
		CreateCmd(a),
		DocsCmd(a),
		ShowCmd(a),
		SectionsCmd(a),
		CheckCmd(a),
		RepairCmd(a),
		LockCmd(a),
		UnlockCmd(a),
		CheckLockCmd(a),
		LocksCmd(a),
		SaveSectionCmd(a),
		ListVersionsCmd(a),
		ShowVersionCmd(a),
		RollbackSectionCmd(a),
		DeleteSectionCmd(a),
		EditCmd(a),
		DeleteCmd(a),
		ActivityCmd(a),
		AIReviewCmd(a),
		AIAssessCmd(a),
		AISuggestCmd(a),
		AIProfileCmd(a),
		ShellCmd(a),
		PrintConfigCmd(a),
	}
}

// lookup finds the command named by the leading words of args. Two-word
// names ("ai review") win over one-word names.
func lookup(cmds []*Command, args []string) (*Command, []string) {
	byName := make(map[string]*Command, len(cmds))
	for _, c := range cmds {
		byName[c.Name()] = c
	}

	if len(args) >= 2 {
		if c, ok := byName[args[0]+" "+args[1]]; ok {
			return c, args[2:]
		}
	}

	if len(args) >= 1 {
		if c, ok := byName[args[0]]; ok {
			return c, args[1:]
		}
	}

	return nil, nil
}

type globalFlags struct {
	workDir    string
	configPath string
	dataDir    string
	verbose    bool
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	idx := 0
	for idx < len(args) {
		consumed, err := parseFlag(args, idx, &flags)
		if err != nil {
			return globalFlags{}, err
		}

		if consumed == 0 {
			// Not a flag, this is the command
			flags.remaining = args[idx:]

			break
		}

		idx += consumed
	}

	return flags, nil
}

// parseFlag tries to parse a flag at args[idx]. Returns number of args consumed (0 if not a flag).
func parseFlag(args []string, idx int, flags *globalFlags) (int, error) {
	arg := args[idx]

	// -C/--cwd flag (work directory)
	if (arg == "-C" || arg == "--cwd") && idx+1 < len(args) {
		flags.workDir = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "-C"); ok && after != "" {
		flags.workDir = after

		return consumedOne, nil
	}

	if after, ok := strings.CutPrefix(arg, "--cwd="); ok {
		flags.workDir = after

		return consumedOne, nil
	}

	// -c/--config flag
	if arg == "-c" || arg == "--config" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("%w: %s", scribe.ErrFlagRequiresArg, arg)
		}

		flags.configPath = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--config="); ok {
		flags.configPath = after

		return consumedOne, nil
	}

	// --data-dir flag
	if arg == "--data-dir" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("%w: %s", scribe.ErrFlagRequiresArg, arg)
		}

		flags.dataDir = args[idx+1]
		if flags.dataDir == "" {
			return consumedNone, scribe.ErrDataDirEmpty
		}

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--data-dir="); ok {
		if after == "" {
			return consumedNone, scribe.ErrDataDirEmpty
		}

		flags.dataDir = after

		return consumedOne, nil
	}

	if arg == "-v" || arg == "--verbose" {
		flags.verbose = true

		return consumedOne, nil
	}

	// -h/--help flags
	if arg == "-h" || arg == helpFlag {
		flags.remaining = []string{helpFlag}

		return len(args) - idx, nil
	}

	// Unknown flag
	if strings.HasPrefix(arg, "-") && arg != "-" {
		return consumedNone, fmt.Errorf("%w: %s", scribe.ErrUnknownFlag, arg)
	}

	// Not a flag
	return consumedNone, nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(writer io.Writer) {
	fprintln(writer, `scribe - section-based collaborative markdown editing

Usage: scribe [options] <command> [args]

Options:
  -C, --cwd <dir>        Run as if started in <dir>
  -c, --config <file>    Use specified config file
  --data-dir <dir>       Override the data directory
  -v, --verbose          Log debug output to stderr

Commands:`)

	for _, c := range commands(nil) {
		fprintln(writer, c.HelpLine())
	}
}
