package cli

import (
	"context"
	"strings"

	"github.com/calvinalkan/scribe/internal/scribe"

	flag "github.com/spf13/pflag"
)

// SaveSectionCmd returns the save-section command.
func SaveSectionCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("save-section", flag.ContinueOnError),
		Usage: "save-section <doc> <section> <user> [content|-]",
		Short: "Replace a section body and record a version",
		Long: `Replace the body of a section and record it as a new version. Without
content, or with "-", the body is read from stdin.

The section must be unlocked or locked by user; while another user holds it
the save waits lock_wait_retries times lock_wait_interval_ms, then fails.
A body with several headings is split into sibling sections. A body that
contains section markers is rejected.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 3 {
				args = append(args, stdinArg)
			}

			err := wantArgs(args, "<doc>", "<section>", "<user>", "[content]")
			if err != nil {
				return err
			}

			body, err := readContent(a.stdin, args[3])
			if err != nil {
				return err
			}

			return saveSection(ctx, o, a, args[0], args[1], args[2], body)
		},
	}
}

func saveSection(ctx context.Context, o *IO, a *app, doc, sectionID, user, body string) error {
	name, err := a.section(ctx, o, doc, sectionID)
	if err != nil {
		return err
	}

	ts, err := a.versions.SaveSection(ctx, name, sectionID, user, strings.TrimRight(body, "\n"))
	if err != nil {
		return err
	}

	o.Printf("Section %s saved as new version %s.\n", sectionID, ts)

	return nil
}

// ListVersionsCmd returns the list-versions command.
func ListVersionsCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("list-versions", flag.ContinueOnError),
		Usage: "list-versions <doc> <section>",
		Short: "List the versions of a section, newest first",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>", "<section>")
			if err != nil {
				return err
			}

			name, err := scribe.DocumentName(args[0])
			if err != nil {
				return err
			}

			err = a.open(ctx)
			if err != nil {
				return err
			}

			entries, err := a.versions.History(ctx, name, args[1])
			if err != nil {
				return err
			}

			if len(entries) == 0 {
				o.Printf("No versions of section %s.\n", args[1])

				return nil
			}

			o.Printf("Previous versions of section %s:\n", args[1])

			for _, e := range entries {
				o.Printf("  %s\t%s\n", e.Timestamp, e.User)
			}

			return nil
		},
	}
}

// ShowVersionCmd returns the show-version command.
func ShowVersionCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("show-version", flag.ContinueOnError),
		Usage: "show-version <doc> <section> <timestamp>",
		Short: "Print the content of one version",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>", "<section>", "<timestamp>")
			if err != nil {
				return err
			}

			name, err := scribe.DocumentName(args[0])
			if err != nil {
				return err
			}

			err = a.open(ctx)
			if err != nil {
				return err
			}

			v, err := a.versions.Get(ctx, name, args[1], args[2])
			if err != nil {
				return err
			}

			o.Println(v.Content)

			return nil
		},
	}
}

// RollbackSectionCmd returns the rollback-section command.
func RollbackSectionCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("rollback-section", flag.ContinueOnError),
		Usage: "rollback-section <doc> <section> <timestamp> <user>",
		Short: "Restore a section to an earlier version",
		Long: `Restore the content of an earlier version into a section. The restored
content is saved as a new version, so the rollback itself can be rolled back.
Nothing is saved when the section already holds that content.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>", "<section>", "<timestamp>", "<user>")
			if err != nil {
				return err
			}

			sectionID, ts, user := args[1], args[2], args[3]

			name, err := a.section(ctx, o, args[0], sectionID)
			if err != nil {
				return err
			}

			out, err := a.versions.Rollback(ctx, name, sectionID, ts, user)
			if err != nil {
				return err
			}

			if !out.Changed {
				o.Printf("Section %s already matches version %s.\n", sectionID, ts)

				return nil
			}

			o.Printf("Section %s rolled back to version %s (new version %s).\n", sectionID, ts, out.Timestamp)

			return nil
		},
	}
}

// DeleteSectionCmd returns the delete-section command.
func DeleteSectionCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("delete-section", flag.ContinueOnError),
		Usage: "delete-section <doc> <section> <user>",
		Short: "Delete a section with its markers",
		Long: `Delete a section, markers and body. The section must be unlocked or
locked by user. The first section of a document cannot be deleted. Versions
of the section are kept.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>", "<section>", "<user>")
			if err != nil {
				return err
			}

			name, err := a.section(ctx, o, args[0], args[1])
			if err != nil {
				return err
			}

			err = a.docs.DeleteSection(ctx, name, args[1], args[2])
			if err != nil {
				return err
			}

			o.Printf("Section %s deleted.\n", args[1])

			return nil
		},
	}
}
