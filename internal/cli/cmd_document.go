package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/calvinalkan/scribe/internal/assist"
	"github.com/calvinalkan/scribe/internal/document"
	"github.com/calvinalkan/scribe/internal/marker"
	"github.com/calvinalkan/scribe/internal/scribe"
	"github.com/calvinalkan/scribe/internal/section"

	flag "github.com/spf13/pflag"
)

// CreateCmd returns the create command.
func CreateCmd(a *app) *Command {
	flags := flag.NewFlagSet("create", flag.ContinueOnError)
	user := flags.StringP("user", "u", "", "Creator of the document (default $USER)")
	title := flags.StringP("title", "t", "", "Heading of the placeholder section (default the name)")
	content := flags.String("content", "", `Initial markdown content ("-" reads stdin)`)
	useAI := flags.Bool("ai", false, "Draft the initial content with the assistant")
	profile := profileFlags(flags)

	return &Command{
		Flags: flags,
		Usage: "create <doc> [flags]",
		Short: "Create a document",
		Long: `Create a new document. Headings in the initial content are labelled as
sections; without content the document gets a single "# <title>" section.
--role, --purpose and --lang set the assistant profile of the document.

Prints the document name.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>")
			if err != nil {
				return err
			}

			name, err := scribe.DocumentName(args[0])
			if err != nil {
				return err
			}

			body, err := readContent(a.stdin, *content)
			if err != nil {
				return err
			}

			if *useAI {
				if strings.TrimSpace(body) != "" {
					return fmt.Errorf("%w: --ai and --content are mutually exclusive", scribe.ErrInvalidInput)
				}

				body, err = draft(ctx, a, profile.get(), *title, name)
				if err != nil {
					return err
				}
			}

			err = a.open(ctx)
			if err != nil {
				return err
			}

			meta, err := a.docs.Create(ctx, document.CreateRequest{
				Name:    name,
				User:    actor(*user, a.cfg.Env),
				Title:   *title,
				Content: body,
				Profile: profile.get(),
			})
			if err != nil {
				return err
			}

			o.Println(meta.Name)

			return nil
		},
	}
}

func draft(ctx context.Context, a *app, p scribe.Profile, title, name string) (string, error) {
	assistant, err := a.assistant()
	if err != nil {
		return "", err
	}

	if title == "" {
		title = strings.TrimSuffix(name, scribe.DocumentExt)
	}

	return assistant.CreateContent(ctx, scribe.DefaultProfile().Merge(p), title)
}

// DocsCmd returns the docs command.
func DocsCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("docs", flag.ContinueOnError),
		Usage: "docs",
		Short: "List documents",
		Long:  "List every document with its creator and creation time.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args)
			if err != nil {
				return err
			}

			err = a.open(ctx)
			if err != nil {
				return err
			}

			metas, err := a.docs.List(ctx)
			if err != nil {
				return err
			}

			for _, m := range metas {
				creator, created := "-", "-"
				if m.Creator != "" {
					creator = m.Creator
				}

				if !m.CreatedAt.IsZero() {
					created = m.CreatedAt.UTC().Format(time.DateTime)
				}

				o.Printf("%s\t%s\t%s\n", m.Name, creator, created)
			}

			return nil
		},
	}
}

// ShowCmd returns the show command.
func ShowCmd(a *app) *Command {
	flags := flag.NewFlagSet("show", flag.ContinueOnError)
	sectionID := flags.StringP("section", "s", "", "Show only this section")
	plain := flags.Bool("plain", false, "Omit section markers")

	return &Command{
		Flags: flags,
		Usage: "show <doc> [--section ID] [--plain]",
		Short: "Print a document or one section",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>")
			if err != nil {
				return err
			}

			name, content, err := a.load(ctx, o, args[0])
			if err != nil {
				return err
			}

			if *sectionID != "" {
				content, err = sectionBody(content, name, *sectionID)
				if err != nil {
					return err
				}

				content += "\n"
			}

			if *plain {
				content = assist.Plain(content)
			}

			o.Printf("%s", content)

			return nil
		},
	}
}

// SectionsCmd returns the sections command.
func SectionsCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("sections", flag.ContinueOnError),
		Usage: "sections <doc>",
		Short: "List sections with their heading and lock holder",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>")
			if err != nil {
				return err
			}

			name, content, err := a.load(ctx, o, args[0])
			if err != nil {
				return err
			}

			held, err := a.locks.CheckAll(ctx, name)
			if err != nil {
				return err
			}

			for _, s := range section.All(content) {
				heading := s.Heading
				if heading == "" {
					heading = "(no heading)"
				}

				line := s.ID + "\t" + heading
				if user, ok := held[s.ID]; ok {
					line += "\tlocked by " + user
				}

				o.Println(line)
			}

			return nil
		},
	}
}

// CheckCmd returns the check command.
func CheckCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("check", flag.ContinueOnError),
		Usage: "check <doc>",
		Short: "Validate the section markers of a document",
		Long: `Validate the section markers of a document as stored, without repairing
it. Exits 1 and names the first problem when the document is malformed.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>")
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

			content, err := a.docs.Load(ctx, name)
			if err != nil {
				return err
			}

			err = marker.Check(content)
			if err != nil {
				return scribe.WithContext(err, name, "")
			}

			o.Println(marker.ValidMessage)

			return nil
		},
	}
}

// RepairCmd returns the repair command.
func RepairCmd(a *app) *Command {
	flags := flag.NewFlagSet("repair", flag.ContinueOnError)
	dryRun := flags.BoolP("dry-run", "n", false, "Print the repaired document without writing it")
	user := flags.StringP("user", "u", "", "User recorded in the activity log (default $USER)")

	return &Command{
		Flags: flags,
		Usage: "repair <doc> [--dry-run]",
		Short: "Label headings and repair section markers",
		Long: `Label unmarked headings as sections and repair broken markers: unclosed
sections are closed, headings outside a section get their own section and
sections with several headings are split. Nested sections and closing
markers for unknown sections cannot be repaired automatically.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>")
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

			if *dryRun {
				content, err := a.docs.Load(ctx, name)
				if err != nil {
					return err
				}

				repaired, err := a.docs.Normalize(content)
				if err != nil {
					return scribe.WithContext(err, name, "")
				}

				if repaired == content {
					o.Println("Document " + name + " needs no repair.")

					return nil
				}

				o.Printf("%s", repaired)

				return nil
			}

			changed, err := a.docs.Sanitize(ctx, name, actor(*user, a.cfg.Env))
			if err != nil {
				return err
			}

			if changed {
				o.Println("Document " + name + " repaired.")
			} else {
				o.Println("Document " + name + " needs no repair.")
			}

			return nil
		},
	}
}

// DeleteCmd returns the delete command.
func DeleteCmd(a *app) *Command {
	flags := flag.NewFlagSet("delete", flag.ContinueOnError)
	yes := flags.BoolP("yes", "y", false, "Do not ask for confirmation")
	user := flags.StringP("user", "u", "", "User recorded in the activity log (default $USER)")

	return &Command{
		Flags: flags,
		Usage: "delete <doc> [--yes]",
		Short: "Delete a document with its versions and locks",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>")
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

			exists, err := a.docs.Exists(name)
			if err != nil {
				return err
			}

			if !exists {
				return scribe.WithContext(scribe.ErrDocumentNotFound, name, "")
			}

			if !*yes {
				ok, err := confirm(a.prompter(), "Delete "+name+" with all its versions and locks?")
				if err != nil {
					return err
				}

				if !ok {
					o.Println("Aborted.")

					return nil
				}
			}

			err = a.docs.Delete(ctx, name, actor(*user, a.cfg.Env))
			if err != nil {
				return err
			}

			o.Println("Document " + name + " deleted.")

			return nil
		},
	}
}

// ActivityCmd returns the activity command.
func ActivityCmd(a *app) *Command {
	flags := flag.NewFlagSet("activity", flag.ContinueOnError)
	limit := flags.IntP("limit", "n", 20, "Number of events to show (0 for all)")

	return &Command{
		Flags: flags,
		Usage: "activity <doc> [--limit N]",
		Short: "Show the activity log of a document",
		Long:  "Show the recorded lock, save, rollback and repair events of a document, newest first.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>")
			if err != nil {
				return err
			}

			name, err := scribe.DocumentName(args[0])
			if err != nil {
				return err
			}

			if *limit < 0 {
				return fmt.Errorf("%w: --limit must not be negative", scribe.ErrInvalidInput)
			}

			err = a.open(ctx)
			if err != nil {
				return err
			}

			events, err := a.activity.List(ctx, name, *limit)
			if err != nil {
				return err
			}

			for _, ev := range events {
				fields := []string{ev.At.UTC().Format(time.DateTime), string(ev.Action), orDash(ev.Section), orDash(ev.User)}
				if ev.Detail != "" {
					fields = append(fields, ev.Detail)
				}

				o.Println(strings.Join(fields, "\t"))
			}

			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

// profileValues collects the assistant profile flags.
type profileValues struct {
	role, purpose, lang *string
}

func profileFlags(flags *flag.FlagSet) profileValues {
	return profileValues{
		role:    flags.String("role", "", "Assistant role, e.g. \"technical writer\""),
		purpose: flags.String("purpose", "", "Purpose of the document"),
		lang:    flags.String("lang", "", "Language of the document"),
	}
}

func (p profileValues) get() scribe.Profile {
	return scribe.Profile{Role: *p.role, Purpose: *p.purpose, Lang: *p.lang}
}

func (p profileValues) empty() bool {
	return p.get() == scribe.Profile{}
}
