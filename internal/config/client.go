package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/kuitang/sticky-canvas/internal/viewport"
)

const (
	clientDirName      = "sticky-canvas"
	clientFileName     = "client.toml"
	defaultServerURL   = "http://localhost:8080"
	defaultClientLevel = "warn"
)

// ClientConfig is the terminal client's settings file.
type ClientConfig struct {
	Server   ClientServerConfig   `toml:"server"`
	Identity ClientIdentityConfig `toml:"identity"`
	Canvas   ClientCanvasConfig   `toml:"canvas"`
	Logging  ClientLoggingConfig  `toml:"logging"`
}

type ClientServerConfig struct {
	URL   string `toml:"url"`
	AppID string `toml:"app_id"`
}

// ClientIdentityConfig selects how the client signs in: a fixed ID token
// from the identity provider, or a development token minted by a server
// running with --no-oidc.
type ClientIdentityConfig struct {
	Token    string `toml:"token"`
	DevUID   string `toml:"dev_uid"`
	DevEmail string `toml:"dev_email"`
	DevName  string `toml:"dev_name"`
}

type ClientCanvasConfig struct {
	ZoomStep     float64 `toml:"zoom_step"`
	FollowRemote bool    `toml:"follow_remote"`
}

type ClientLoggingConfig struct {
	Level string `toml:"level"`
	// File receives the log; the terminal is owned by the UI.
	File string `toml:"file"`
}

// DefaultClientConfig returns the settings used when no file exists.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Server: ClientServerConfig{
			URL:   defaultServerURL,
			AppID: defaultAppID,
		},
		Canvas: ClientCanvasConfig{
			ZoomStep: viewport.ZoomStep,
		},
		Logging: ClientLoggingConfig{
			Level: defaultClientLevel,
		},
	}
}

// ClientConfigPath returns $XDG_CONFIG_HOME/sticky-canvas/client.toml, or
// the platform's user config directory when XDG_CONFIG_HOME is unset.
func ClientConfigPath() (string, error) {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		base = dir
	}
	return filepath.Join(base, clientDirName, clientFileName), nil
}

// LoadClientConfig reads path over the defaults. A missing or empty file
// yields the defaults.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := readTOML(path, &cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("read %s: %w", path, err)
	}
	return cfg, nil
}

// SaveClientConfig writes cfg to path, creating the directory.
func SaveClientConfig(path string, cfg ClientConfig) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// UsesDevToken reports whether the client should mint development tokens.
func (c ClientConfig) UsesDevToken() bool {
	return c.Identity.Token == "" && c.Identity.DevUID != ""
}

// Validate checks the settings after flags have been applied.
func (c ClientConfig) Validate() error {
	var errs []string
	u, err := url.Parse(c.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "server.url must be an http(s) URL")
	}
	if !validAppID(c.Server.AppID) {
		errs = append(errs, "server.app_id must be 1-128 characters of [A-Za-z0-9._-]")
	}
	if c.Identity.Token == "" && c.Identity.DevUID == "" {
		errs = append(errs, "identity.token or identity.dev_uid is required")
	}
	if c.Canvas.ZoomStep <= 0 || c.Canvas.ZoomStep > viewport.MaxZoom-viewport.MinZoom {
		errs = append(errs, "canvas.zoom_step must be in (0, 2.8]")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn or error")
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func readTOML(path string, out any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return toml.Unmarshal(data, out)
}
