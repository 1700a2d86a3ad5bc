package cli

import (
	"context"

	"github.com/calvinalkan/scribe/internal/scribe"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			err := wantArgs(args)
			if err != nil {
				return err
			}

			execPrintConfig(o, a.cfg)

			return nil
		},
	}
}

func execPrintConfig(o *IO, cfg *scribe.Config) {
	for _, line := range scribe.FormatConfig(*cfg) {
		o.Println(line)
	}

	o.Println("")
	o.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" && cfg.Sources.DotEnv == "" {
		o.Println("(defaults only)")

		return
	}

	if cfg.Sources.Global != "" {
		o.Println("global_config=" + cfg.Sources.Global)
	}

	if cfg.Sources.Project != "" {
		o.Println("project_config=" + cfg.Sources.Project)
	}

	if cfg.Sources.DotEnv != "" {
		o.Println("dotenv=" + cfg.Sources.DotEnv)
	}
}
