// Package app wires configuration, storage, the gateway, repositories, the
// sync controller and the notify hub into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JamesPrial/officedesk/internal/config"
	"github.com/JamesPrial/officedesk/internal/docstore"
	"github.com/JamesPrial/officedesk/internal/handlestore"
	"github.com/JamesPrial/officedesk/internal/logging"
	"github.com/JamesPrial/officedesk/internal/notify"
	"github.com/JamesPrial/officedesk/internal/repo"
	"github.com/JamesPrial/officedesk/internal/storage"
	"github.com/JamesPrial/officedesk/internal/syncctl"
)

// Options configure New.
type Options struct {
	// ConfigPath defaults to config.DefaultPath().
	ConfigPath string

	// Sink defaults to one built from the config's log_file.
	Sink *logging.Sink

	// Now defaults to time.Now.
	Now func() time.Time
}

// App holds the wired components of one officedesk process.
type App struct {
	Config   config.Config
	Logger   *log.Logger
	Registry *prometheus.Registry
	Gateway  *docstore.Gateway
	Repos    *repo.Repos
	Handles  *handlestore.Store

	sink    *logging.Sink
	ownSink bool
	backend storage.DocumentBackend
}

// New loads configuration and builds a disconnected App. Call Connect before
// using the repositories.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	sink, own := opts.Sink, false
	if sink == nil {
		sink, own = logging.NewSink(cfg.LogFile), true
	}

	handles, err := handlestore.New(cfg.HandlePath)
	if err != nil {
		if own {
			_ = sink.Close()
		}
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	gw := docstore.New(docstore.Options{
		Concurrency: docstore.ParseConcurrency(cfg.Concurrency),
		Logger:      sink.Logger("docstore"),
		Metrics:     docstore.NewMetrics(reg),
	})

	return &App{
		Config:   cfg,
		Logger:   sink.Logger("officedesk"),
		Registry: reg,
		Gateway:  gw,
		Repos:    repo.New(gw, opts.Now),
		Handles:  handles,
		sink:     sink,
		ownSink:  own,
	}, nil
}

// Close releases the log file when App opened it.
func (a *App) Close() error {
	if a.ownSink {
		return a.sink.Close()
	}
	return nil
}

// Connect restores the granted handle, falling back to configured storage
// when there is none or it cannot be read, and connects the gateway.
func (a *App) Connect(ctx context.Context) error {
	opts := a.storageOptions()

	h, ok, err := a.Handles.Get()
	switch {
	case errors.Is(err, handlestore.ErrRestoreFailed):
		a.Logger.Printf("Could not restore storage handle, using configured storage: %v", err)
	case err != nil:
		return err
	case ok:
		opts = withHandle(opts, h)
	}

	backend, err := storage.GetStorageBackend(opts)
	if err != nil {
		return err
	}
	if err := a.Gateway.Connect(ctx, backend); err != nil {
		return err
	}
	a.backend = backend
	return nil
}

// Grant connects to the store h names and remembers it for later sessions.
// A granted document file that does not exist yet is created empty.
func (a *App) Grant(ctx context.Context, h handlestore.Handle) error {
	backend, err := storage.GetStorageBackend(withHandle(a.storageOptions(), h))
	if err != nil {
		return err
	}
	if jb, ok := backend.(*storage.JSONBackend); ok {
		if err := jb.CreateIfMissing(ctx); err != nil {
			return err
		}
	}
	if err := a.Gateway.Connect(ctx, backend); err != nil {
		return err
	}
	if err := a.Handles.Put(h); err != nil {
		return fmt.Errorf("remember handle: %w", err)
	}
	a.backend = backend
	a.Logger.Printf("Granted %s storage at %s", h.Mode, backend.Describe())
	return nil
}

// Backend returns the connected backend, or nil.
func (a *App) Backend() storage.DocumentBackend {
	return a.backend
}

// NewController builds a sync controller over the gateway. File storage is
// also watched when the config enables it.
func (a *App) NewController() *syncctl.Controller {
	opts := syncctl.Options{
		Interval: a.Config.PollInterval,
		Logger:   a.sink.Logger("sync"),
	}
	if jb, ok := a.backend.(*storage.JSONBackend); ok && a.Config.Watch {
		opts.WatchPath = jb.DocFile
	}
	return syncctl.New(a.Gateway, opts)
}

// Serve connects, starts polling and runs the notify hub until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Connect(ctx); err != nil {
		return err
	}

	ctl := a.NewController()
	hub := notify.NewServer(notify.Config{
		Addr:     a.Config.Listen,
		Surfaces: ctl,
		Status:   ctl.Status,
		Registry: a.Registry,
		Logger:   a.sink.Logger("notify"),
	})
	a.Wire(ctx, ctl, hub)

	if err := hub.Start(); err != nil {
		return err
	}
	if err := ctl.Start(ctx); err != nil {
		_ = hub.Stop()
		return err
	}
	a.Logger.Printf("Serving %s on %s", a.backend.Describe(), hub.Addr())

	<-ctx.Done()
	ctl.Stop()
	return hub.Stop()
}

// Wire connects controller and hub events: reloaded documents and saves are
// broadcast, a failed reload disconnects the gateway before the hub reports
// it, and a client's reconnect request runs Reconnect. ctx bounds the polling
// that a reconnect restarts.
func (a *App) Wire(ctx context.Context, ctl *syncctl.Controller, hub *notify.Server) {
	ctl.OnChange(hub.DocumentChanged)
	ctl.OnDisconnect(func(err error) {
		a.Gateway.Disconnect()
		hub.Disconnected(err)
	})
	a.Gateway.OnSave(hub.Saved)
	hub.OnReconnect(func() (*storage.Document, uint64, error) {
		return a.Reconnect(ctx, ctl)
	})
}

// Reconnect connects again from the remembered handle (or configured storage)
// and resumes ctl's polling. It returns the freshly loaded document.
func (a *App) Reconnect(ctx context.Context, ctl *syncctl.Controller) (*storage.Document, uint64, error) {
	if err := a.Connect(ctx); err != nil {
		return nil, 0, err
	}
	if ctl != nil {
		if err := ctl.Start(ctx); err != nil {
			return nil, 0, fmt.Errorf("resume polling: %w", err)
		}
	}
	a.Logger.Printf("Reconnected to %s", a.backend.Describe())
	return a.Gateway.Cached(), a.Gateway.Version(), nil
}

func (a *App) storageOptions() storage.Options {
	return storage.Options{
		Backend:      a.Config.Backend,
		DataDir:      a.Config.DataDir,
		DocumentPath: a.Config.DocumentPath,
		SQLitePath:   a.Config.SQLitePath,
		PostgresDSN:  a.Config.PostgresDSN,
	}
}

// withHandle points opts at the store h names.
func withHandle(opts storage.Options, h handlestore.Handle) storage.Options {
	opts.Backend = strings.ToLower(strings.TrimSpace(h.Mode))
	switch opts.Backend {
	case storage.BackendFile:
		opts.DocumentPath = h.Path
	case storage.BackendSQLite:
		opts.SQLitePath = h.Path
	case storage.BackendPostgres:
		opts.PostgresDSN = h.DSN
	}
	return opts
}
