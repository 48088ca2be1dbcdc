package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JamesPrial/officedesk/internal/app"
	"github.com/JamesPrial/officedesk/internal/logging"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	Format     string // "text" | "json"

	// sink overrides the config's log destination in tests.
	sink *logging.Sink
}

var validFormats = []string{"text", "json"}

func newRootCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "officedesk",
		Short:         "Shared office dashboard document tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", opts.ConfigPath, "config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newConnectCommand(opts))
	return cmd
}

func (o *rootOptions) newApp() (*app.App, error) {
	return app.New(app.Options{ConfigPath: o.ConfigPath, Sink: o.sink})
}

// emit writes v as indented JSON in json format, or text otherwise.
func (o *rootOptions) emit(w io.Writer, v any, text string) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
