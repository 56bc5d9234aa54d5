// Command canvas is the terminal client of a sticky-canvas server.
//
// Settings come from $XDG_CONFIG_HOME/sticky-canvas/client.toml; flags
// override the file for one run, and --save-config writes them back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/oauth2"

	"github.com/kuitang/sticky-canvas/internal/auth"
	"github.com/kuitang/sticky-canvas/internal/canvas"
	"github.com/kuitang/sticky-canvas/internal/config"
	"github.com/kuitang/sticky-canvas/internal/errs"
	"github.com/kuitang/sticky-canvas/internal/obs"
	"github.com/kuitang/sticky-canvas/internal/storeclient"
	"github.com/kuitang/sticky-canvas/internal/tui"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "canvas:", err)
		os.Exit(1)
	}
}

type cliOptions struct {
	configPath string
	save       bool
	apply      func(*config.ClientConfig)
}

func parseArgs(args []string) (cliOptions, error) {
	var (
		opts                            cliOptions
		server, app, token              string
		devUID, devEmail, devName, logF string
		follow                          bool
	)
	fs := flag.NewFlagSet("canvas", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Settings file (default $XDG_CONFIG_HOME/sticky-canvas/client.toml)")
	fs.BoolVar(&opts.save, "save-config", false, "Write the effective settings back to the settings file")
	fs.StringVar(&server, "server", "", "Canvas server URL")
	fs.StringVar(&app, "app", "", "Application id")
	fs.StringVar(&token, "token", "", "ID token from the identity provider")
	fs.StringVar(&devUID, "dev-uid", "", "Sign in with a development token for this uid (server must run --no-oidc)")
	fs.StringVar(&devEmail, "dev-email", "", "Email claim of the development token")
	fs.StringVar(&devName, "dev-name", "", "Name claim of the development token")
	fs.BoolVar(&follow, "follow", false, "Recenter on notes other sessions create or move")
	fs.StringVar(&logF, "log-file", "", "Write logs to this file")
	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	opts.apply = func(c *config.ClientConfig) {
		if set["server"] {
			c.Server.URL = server
		}
		if set["app"] {
			c.Server.AppID = app
		}
		if set["token"] {
			c.Identity.Token = token
		}
		if set["dev-uid"] {
			c.Identity.DevUID = devUID
		}
		if set["dev-email"] {
			c.Identity.DevEmail = devEmail
		}
		if set["dev-name"] {
			c.Identity.DevName = devName
		}
		if set["follow"] {
			c.Canvas.FollowRemote = follow
		}
		if set["log-file"] {
			c.Logging.File = logF
		}
	}
	return opts, nil
}

func loadSettings(opts cliOptions) (config.ClientConfig, string, error) {
	path := opts.configPath
	if path == "" {
		p, err := config.ClientConfigPath()
		if err != nil {
			return config.ClientConfig{}, "", err
		}
		path = p
	}
	cfg, err := config.LoadClientConfig(path)
	if err != nil {
		return config.ClientConfig{}, "", err
	}
	opts.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return config.ClientConfig{}, "", err
	}
	return cfg, path, nil
}

func tokenSource(ctx context.Context, cfg config.ClientConfig) oauth2.TokenSource {
	if cfg.UsesDevToken() {
		return auth.NewDevTokenSource(ctx, cfg.Server.URL, auth.DevTokenRequest{
			UID:   cfg.Identity.DevUID,
			Email: cfg.Identity.DevEmail,
			Name:  cfg.Identity.DevName,
		})
	}
	return auth.StaticTokenSource(cfg.Identity.Token)
}

// setupLogging sends logs to the configured file; the terminal belongs to
// the UI.
func setupLogging(cfg config.ClientConfig) (io.Closer, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		return nil, err
	}
	obs.SetLevel(lvl)
	if cfg.Logging.File == "" {
		obs.SetOutput(io.Discard)
		return io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	obs.SetOutput(f)
	return f, nil
}

func run(args []string) error {
	opts, err := parseArgs(args)
	if err != nil {
		return err
	}
	cfg, path, err := loadSettings(opts)
	if err != nil {
		return err
	}
	if opts.save {
		if err := config.SaveClientConfig(path, cfg); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
	}
	logCloser, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := storeclient.New(ctx, cfg.Server.URL, cfg.Server.AppID, tokenSource(ctx, cfg))
	log := obs.Pkg("main").With("session_id", client.SessionID())

	user := "signed in"
	if profile, err := client.Me(ctx); err != nil {
		if errs.CodeOf(err) == errs.Unavailable {
			return err
		}
		log.Warn("profile lookup failed", "error", err)
	} else {
		user = profile.Label()
	}

	sink := tui.NewFrameSink()
	ctrl := canvas.New(client, canvas.Options{
		ZoomStep:     cfg.Canvas.ZoomStep,
		FollowRemote: cfg.Canvas.FollowRemote,
		Renderer:     sink,
	})
	model := tui.New(ctrl, tui.Options{
		User: user,
		Export: func(ctx context.Context) (string, error) {
			res, err := client.Export(ctx)
			return res.URL, err
		},
	})
	prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))

	go sink.Run(ctx, prog.Send)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := ctrl.Mount(ctx); err != nil {
			log.Warn("initial subscribe failed", "error", err)
		}
		_ = ctrl.Run(ctx)
	}()

	_, err = prog.Run()
	stop()
	<-loopDone
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
