package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/calvinalkan/scribe/internal/assist"
	"github.com/calvinalkan/scribe/internal/scribe"

	flag "github.com/spf13/pflag"
)

// AIReviewCmd returns the ai review command.
func AIReviewCmd(a *app) *Command {
	flags := flag.NewFlagSet("ai review", flag.ContinueOnError)
	apply := flags.Bool("apply", false, "Apply the corrections through section saves")
	user := flags.StringP("user", "u", "", "User saving the corrections (default $USER)")

	return &Command{
		Flags: flags,
		Usage: "ai review <doc> [--apply --user U]",
		Short: "Review grammar and spelling with the assistant",
		Long: `Ask the assistant for up to ten critical grammar, spelling and syntax
problems, using the document's profile.

--apply replaces each excerpt in the section that contains it and saves the
section as a new version. Sections locked by another user are skipped.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>")
			if err != nil {
				return err
			}

			name, content, profile, assistant, err := aiSetup(ctx, o, a, args[0])
			if err != nil {
				return err
			}

			corrections, err := assistant.ReviewGrammar(ctx, profile, content)
			if err != nil {
				return err
			}

			if len(corrections) == 0 {
				o.Println("No grammar problems found.")

				return nil
			}

			if !*apply {
				for i, c := range corrections {
					o.Printf("%d. [%s]\n   - %s\n   + %s\n", i+1, orDash(c.Section), c.Original, c.Corrected)
				}

				return nil
			}

			results, err := assist.Apply(ctx, a.docs, a.versions, name, actor(*user, a.cfg.Env), corrections)
			if err != nil {
				return err
			}

			for i, r := range results {
				switch {
				case r.Section == "":
					o.Warn(fmt.Sprintf("correction %d skipped", i+1), "excerpt not found: "+oneLine(r.Correction.Original))
				case r.Err != nil:
					o.Warn(fmt.Sprintf("correction %d skipped", i+1), r.Err.Error())
				default:
					o.Printf("%d. section %s saved as new version %s.\n", i+1, r.Section, r.Timestamp)
				}
			}

			return nil
		},
	}
}

// AIAssessCmd returns the ai assess command.
func AIAssessCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("ai assess", flag.ContinueOnError),
		Usage: "ai assess <doc>",
		Short: "Assess the content of a document",
		Long: `Ask the assistant to infer the type and purpose of the document and to
assess it against five criteria, with recommendations.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>")
			if err != nil {
				return err
			}

			_, content, profile, assistant, err := aiSetup(ctx, o, a, args[0])
			if err != nil {
				return err
			}

			res, err := assistant.AssessContent(ctx, profile, content)
			if err != nil {
				return err
			}

			o.Println("Type of document:", res.TypeOfDocument)
			o.Println("Purpose:", res.Purpose)
			o.Println("Expected content:", res.ExpectedContent)

			for i, c := range res.Criteria {
				o.Println()
				o.Printf("%d. %s\n", i+1, c)

				if i < len(res.Assessment) {
					o.Println("   Assessment:", res.Assessment[i])
				}

				if i < len(res.Recommendations) {
					o.Println("   Recommendation:", res.Recommendations[i])
				}
			}

			return nil
		},
	}
}

// AISuggestCmd returns the ai suggest command.
func AISuggestCmd(a *app) *Command {
	flags := flag.NewFlagSet("ai suggest", flag.ContinueOnError)
	save := flags.Bool("save", false, "Save the suggestion as a new version of the section")
	user := flags.StringP("user", "u", "", "User saving the suggestion (default $USER)")

	return &Command{
		Flags: flags,
		Usage: "ai suggest <doc> <section> [--save --user U]",
		Short: "Suggest a rewrite of one section",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>", "<section>")
			if err != nil {
				return err
			}

			name, content, profile, assistant, err := aiSetup(ctx, o, a, args[0])
			if err != nil {
				return err
			}

			suggestion, err := assistant.SuggestSection(ctx, profile, content, args[1])
			if err != nil {
				return scribe.WithContext(err, name, args[1])
			}

			if !*save {
				o.Println(suggestion)

				return nil
			}

			return saveSection(ctx, o, a, name, args[1], actor(*user, a.cfg.Env), suggestion)
		},
	}
}

// AIProfileCmd returns the ai profile command.
func AIProfileCmd(a *app) *Command {
	flags := flag.NewFlagSet("ai profile", flag.ContinueOnError)
	user := flags.StringP("user", "u", "", "User recorded in the activity log (default $USER)")
	profile := profileFlags(flags)

	return &Command{
		Flags: flags,
		Usage: "ai profile <doc> [--role R --purpose P --lang L]",
		Short: "Show or update the assistant profile of a document",
		Long: `Show the assistant profile of a document: the role the assistant writes
as, the purpose of the document and its language. Given flags update the
matching fields.`,
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

			var p scribe.Profile

			if profile.empty() {
				meta, err := a.docs.Meta(ctx, name)
				if err != nil {
					return err
				}

				p = meta.Profile
			} else {
				p, err = a.docs.SetProfile(ctx, name, actor(*user, a.cfg.Env), profile.get())
				if err != nil {
					return err
				}
			}

			o.Println("role=" + p.Role)
			o.Println("purpose=" + p.Purpose)
			o.Println("lang=" + p.Lang)

			return nil
		},
	}
}

// aiSetup loads doc with its profile and builds the assistant.
func aiSetup(ctx context.Context, o *IO, a *app, doc string) (string, string, scribe.Profile, *assist.Assistant, error) {
	assistant, err := a.assistant()
	if err != nil {
		return "", "", scribe.Profile{}, nil, err
	}

	name, content, err := a.load(ctx, o, doc)
	if err != nil {
		return "", "", scribe.Profile{}, nil, err
	}

	meta, err := a.docs.Meta(ctx, name)
	if err != nil {
		return "", "", scribe.Profile{}, nil, err
	}

	if strings.TrimSpace(content) == "" {
		return "", "", scribe.Profile{}, nil, scribe.WithContext(errors.New("document is empty"), name, "")
	}

	return name, content, meta.Profile, assistant, nil
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		s = s[:57] + "..."
	}

	return s
}
