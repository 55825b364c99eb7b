package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"kbdash/internal/auth"
	"kbdash/internal/backend"
	"kbdash/internal/config"
	"kbdash/internal/dashboard"
	"kbdash/internal/logger"
	"kbdash/internal/monitor"
	"kbdash/internal/storage"
)

// app is the assembled component graph shared by all commands.
type app struct {
	cfg       config.Config
	log       *logger.Logger
	monitor   *monitor.Monitor
	sessions  *auth.Sessions
	gateway   *auth.Gateway
	dashboard *dashboard.Service
}

func newApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err = cfg.WithBaseURL(opts.apiURL)
	if err != nil {
		return nil, fmt.Errorf("--api-url: %w", err)
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("initialise logger: %w", err)
	}

	sessionStore, err := storage.NewSessionStorage(cfg.SessionPath())
	if err != nil {
		return nil, fmt.Errorf("initialise session storage: %w", err)
	}

	monOpts := monitor.OptionsFromConfig(cfg)
	monOpts.Logger = log
	if cfg.Connectivity.PersistHistory {
		history, err := storage.NewProbeHistoryStorage(cfg.HistoryPath())
		if err != nil {
			return nil, fmt.Errorf("initialise probe history: %w", err)
		}
		monOpts.Store = history
	}
	mon := monitor.New(monOpts)

	sessions := auth.NewSessions(sessionStore)
	client := backend.New(cfg, mon, sessions, log)

	return &app{
		cfg:       cfg,
		log:       log,
		monitor:   mon,
		sessions:  sessions,
		gateway:   auth.NewGateway(client, sessions, log),
		dashboard: dashboard.NewService(client, mon, cfg, log),
	}, nil
}

// loadSession adopts the stored session for one-shot commands.
func (a *app) loadSession() error {
	if _, err := a.sessions.Load(); err != nil {
		return fmt.Errorf("read stored session: %w", err)
	}
	return nil
}

func (a *app) close() {
	a.monitor.Stop()
	a.log.Sync()
}

// withApp assembles the app, optionally loads the stored session and
// tears everything down after fn returns.
func withApp(opts *rootOptions, session bool, fn func(a *app) error) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.close()
	if session {
		if err := a.loadSession(); err != nil {
			return err
		}
	}
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
