package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JamesPrial/officedesk/internal/handlestore"
	"github.com/JamesPrial/officedesk/internal/importer"
	"github.com/JamesPrial/officedesk/internal/storage"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll the document and broadcast changes to connected clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Serve(ctx)
		},
	}
}

type statusOutput struct {
	Storage  string `json:"storage"`
	Location string `json:"location"`
	Version  uint64 `json:"version"`
	Tasks    int    `json:"tasks"`
	Events   int    `json:"events"`
	Clients  int    `json:"clients"`
	Profiles int    `json:"profiles"`
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which document is connected and what it holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			if err := a.Connect(ctx); err != nil {
				return err
			}
			doc, err := a.Gateway.Load(ctx)
			if err != nil {
				return err
			}

			out := statusOutput{
				Storage:  a.Backend().Kind().String(),
				Location: a.Backend().Describe(),
				Version:  a.Gateway.Version(),
				Tasks:    len(doc.Tasks),
				Events:   len(doc.Events),
				Clients:  len(doc.Clients),
				Profiles: len(doc.ClientProfiles),
			}
			text := fmt.Sprintf("%s storage at %s (version %d)\n%d tasks, %d events, %d clients, %d profiles",
				out.Storage, out.Location, out.Version, out.Tasks, out.Events, out.Clients, out.Profiles)
			return opts.emit(cmd.OutOrStdout(), out, text)
		},
	}
}

func newImportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <workbook.xlsx>",
		Short: "Merge clients from the first sheet of an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open workbook: %w", err)
			}
			defer func() { _ = f.Close() }()

			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			if err := a.Connect(ctx); err != nil {
				return err
			}
			rep, err := importer.Import(ctx, a.Repos.Clients, f)
			if err != nil {
				return err
			}
			text := fmt.Sprintf("Imported %s: %d added, %d updated, %d rows skipped",
				rep.Sheet, rep.Added, rep.Updated, rep.Skipped)
			return opts.emit(cmd.OutOrStdout(), rep, text)
		},
	}
}

type connectFlags struct {
	file     string
	sqlite   string
	postgres string
	forget   bool
}

// handle returns the handle the flags name. Exactly one store must be given.
func (f connectFlags) handle() (handlestore.Handle, error) {
	var hs []handlestore.Handle
	if f.file != "" {
		hs = append(hs, handlestore.Handle{Mode: storage.BackendFile, Path: f.file})
	}
	if f.sqlite != "" {
		hs = append(hs, handlestore.Handle{Mode: storage.BackendSQLite, Path: f.sqlite})
	}
	if f.postgres != "" {
		hs = append(hs, handlestore.Handle{Mode: storage.BackendPostgres, DSN: f.postgres})
	}
	if len(hs) != 1 {
		return handlestore.Handle{}, errors.New("give exactly one of --file, --sqlite or --postgres")
	}
	return hs[0], nil
}

func newConnectCommand(opts *rootOptions) *cobra.Command {
	var flags connectFlags
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Grant access to a document store and remember it",
		Long: `Grant access to a document store and remember it for later sessions.

A document file that does not exist yet is created empty. --forget drops the
remembered store so the configured storage is used again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if flags.forget {
				if err := a.Handles.Clear(); err != nil {
					return err
				}
				return opts.emit(cmd.OutOrStdout(), map[string]bool{"forgotten": true}, "Forgot the granted document store")
			}

			h, err := flags.handle()
			if err != nil {
				return err
			}
			if err := a.Grant(cmd.Context(), h); err != nil {
				return err
			}
			out := map[string]string{"storage": a.Backend().Kind().String(), "location": a.Backend().Describe()}
			return opts.emit(cmd.OutOrStdout(), out, fmt.Sprintf("Connected to %s storage at %s", out["storage"], out["location"]))
		},
	}

	cmd.Flags().StringVar(&flags.file, "file", "", "shared JSON document file")
	cmd.Flags().StringVar(&flags.sqlite, "sqlite", "", "SQLite database file")
	cmd.Flags().StringVar(&flags.postgres, "postgres", "", "PostgreSQL connection string")
	cmd.Flags().BoolVar(&flags.forget, "forget", false, "forget the granted store")
	return cmd
}
