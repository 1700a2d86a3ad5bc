package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/calvinalkan/scribe/internal/scribe"

	flag "github.com/spf13/pflag"
)

// EditCmd returns the edit command.
func EditCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("edit", flag.ContinueOnError),
		Usage: "edit <doc> <section> <user>",
		Short: "Edit a section in $EDITOR",
		Long: `Lock a section, open its body in your editor and save the result as a new
version when the editor exits. The lock is released afterwards unless user
held it before.

The editor is taken from the editor config key, then $EDITOR, then the
first of zed, vi and nano found on PATH.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>", "<section>", "<user>")
			if err != nil {
				return err
			}

			return execEdit(ctx, o, a, args[0], args[1], args[2])
		},
	}
}

func execEdit(ctx context.Context, o *IO, a *app, doc, sectionID, user string) error {
	err := scribe.ValidateUser(user)
	if err != nil {
		return err
	}

	name, err := a.section(ctx, o, doc, sectionID)
	if err != nil {
		return err
	}

	editor, err := resolveEditor(a.cfg, a.cfg.Env)
	if err != nil {
		return err
	}

	held, err := a.locks.Owner(ctx, name, sectionID)
	if err != nil {
		return err
	}

	ok, err := a.locks.Lock(ctx, name, sectionID, user)
	if err != nil {
		return err
	}

	if !ok {
		holder, _ := a.locks.Owner(ctx, name, sectionID)

		return fmt.Errorf("%w: section %s is already locked by %s", scribe.ErrLockHeld, sectionID, holder)
	}

	if held != user {
		defer func() {
			_, unlockErr := a.locks.Unlock(context.WithoutCancel(ctx), name, sectionID, user)
			if unlockErr != nil {
				a.logger.Warn("release edit lock", "doc", name, "section", sectionID, "error", unlockErr)
			}
		}()
	}

	content, err := a.docs.Load(ctx, name)
	if err != nil {
		return err
	}

	body, err := sectionBody(content, name, sectionID)
	if err != nil {
		return err
	}

	path, err := writeEditFile(a.cfg.Env, name, sectionID, body)
	if err != nil {
		return err
	}

	defer func() { _ = os.Remove(path) }()

	err = runEditor(ctx, editor, path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading edited section: %w", err)
	}

	edited := strings.TrimRight(string(data), "\n")
	if edited == body {
		o.Printf("No changes to section %s.\n", sectionID)

		return nil
	}

	ts, err := a.versions.SaveSection(ctx, name, sectionID, user, edited)
	if err != nil {
		return err
	}

	o.Printf("Section %s saved as new version %s.\n", sectionID, ts)

	return nil
}

// writeEditFile writes body to a fresh temp file under $TMPDIR.
func writeEditFile(env map[string]string, doc, sectionID, body string) (string, error) {
	dir := env["TMPDIR"]
	if dir == "" {
		dir = os.TempDir()
	}

	pattern := fmt.Sprintf("scribe-%s-%s-*.md", strings.TrimSuffix(doc, scribe.DocumentExt), sectionID)

	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("creating edit file: %w", err)
	}

	_, err = f.WriteString(body + "\n")
	closeErr := f.Close()

	err = errors.Join(err, closeErr)
	if err != nil {
		_ = os.Remove(f.Name())

		return "", fmt.Errorf("writing edit file: %w", err)
	}

	return f.Name(), nil
}

// resolveEditor checks for an available editor using the env map.
// Priority: config.Editor -> $EDITOR -> zed -> vi -> nano -> error.
func resolveEditor(cfg *scribe.Config, env map[string]string) (string, error) {
	// 1. Check config.Editor
	if cfg.Editor != "" {
		_, lookErr := exec.LookPath(cfg.Editor)
		if lookErr == nil {
			return cfg.Editor, nil
		}
	}

	// 2. Check $EDITOR from env map
	if editor := env["EDITOR"]; editor != "" {
		_, lookErr := exec.LookPath(editor)
		if lookErr == nil {
			return editor, nil
		}
	}

	for _, candidate := range []string{"zed", "vi", "nano"} {
		_, lookErr := exec.LookPath(candidate)
		if lookErr == nil {
			return candidate, nil
		}
	}

	return "", scribe.ErrNoEditorFound
}

// runEditor runs editor on path attached to the terminal and waits for it.
func runEditor(ctx context.Context, editor, path string) error {
	var cmd *exec.Cmd

	// zed opens the file in a new window
	if filepath.Base(editor) == "zed" {
		cmd = exec.CommandContext(ctx, editor, "-n", path)
	} else {
		cmd = exec.CommandContext(ctx, editor, path)
	}

	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", scribe.ErrEditorFailed, editor, err)
	}

	return nil
}
