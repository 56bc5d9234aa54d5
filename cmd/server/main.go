// Command canvas-server serves the sticky-canvas document store, identity
// verification, and chat proxy over HTTP.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuitang/sticky-canvas/internal/api"
	"github.com/kuitang/sticky-canvas/internal/auth"
	"github.com/kuitang/sticky-canvas/internal/chat"
	"github.com/kuitang/sticky-canvas/internal/config"
	"github.com/kuitang/sticky-canvas/internal/crypto"
	"github.com/kuitang/sticky-canvas/internal/db"
	"github.com/kuitang/sticky-canvas/internal/docstore"
	"github.com/kuitang/sticky-canvas/internal/obs"
	"github.com/kuitang/sticky-canvas/internal/ratelimit"
	"github.com/kuitang/sticky-canvas/internal/s3client"
)

const (
	devTokenIssuer  = "sticky-canvas-dev"
	inMemoryBucket  = "canvas-exports"
	shutdownTimeout = 10 * time.Second
	chatMaxRetries  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		return err
	}
	obs.Init()
	cfg.PrintStartupSummary(stdout)

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Streams clear their own write deadline.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return serve(ctx, srv)
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	log := obs.Pkg("main")
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// app is the wired server with everything it must release on exit.
type app struct {
	handler http.Handler
	limiter *ratelimit.RateLimiter
	closers []func() error
}

func (a *app) Close() {
	log := obs.Pkg("main")
	if a.limiter != nil {
		a.limiter.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("close failed", "error", err)
		}
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	db.DataDirectory = cfg.DatabasePath
	accounts, err := db.OpenAccountsDB()
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.CloseAll)
	profiles := auth.NewProfileService(accounts)

	repo, err := openRepository(ctx, cfg, accounts, a)
	if err != nil {
		return nil, err
	}

	var storeOpts []docstore.Option
	exporter, err := openExporter(ctx, cfg, a)
	if err != nil {
		return nil, err
	}
	storeOpts = append(storeOpts, docstore.WithExporter(exporter))
	store := docstore.NewService(repo, storeOpts...)

	var chatSvc *chat.Service
	if !cfg.NoChat {
		chatSvc = chat.New(chat.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			MaxRetries: chatMaxRetries,
		})
	}

	routerCfg := api.RouterConfig{
		Handler:        api.NewHandler(store, profiles, chatSvc),
		Profiles:       profiles,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}
	if cfg.NoOIDC {
		issuer, err := devIssuer(cfg)
		if err != nil {
			return nil, err
		}
		routerCfg.Verifier = issuer.Verifier()
		routerCfg.DevIssuer = issuer
	} else {
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCAudience)
		if err != nil {
			return nil, fmt.Errorf("oidc: %w", err)
		}
		routerCfg.Verifier = v
	}
	a.limiter = ratelimit.NewRateLimiter(cfg.RateLimitConfig)
	routerCfg.Limiter = a.limiter

	a.handler = api.NewRouter(routerCfg)
	ready = true
	return a, nil
}

func openRepository(ctx context.Context, cfg *config.Config, accounts *db.AccountsDB, a *app) (docstore.Repository, error) {
	if cfg.UsePostgres() {
		pg, err := db.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		return docstore.NewPostgresRepository(pg), nil
	}
	master, err := cfg.MasterKeyBytes()
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	return docstore.NewSQLiteRepository(crypto.NewKeyManager(master, accounts)), nil
}

func openExporter(ctx context.Context, cfg *config.Config, a *app) (docstore.Exporter, error) {
	if cfg.NoS3 {
		mem, err := s3client.NewInMemory(ctx, inMemoryBucket)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, mem.Close)
		return mem.Client, nil
	}
	return s3client.New(ctx, s3client.Config{
		Endpoint:        cfg.AWSEndpointS3,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		BucketName:      cfg.AWSBucketName,
		PublicURL:       cfg.AWSPublicURL,
		UsePathStyle:    cfg.AWSEndpointS3 != "",
	})
}

// devIssuer builds the development token issuer from TOKEN_SIGNING_KEY, or
// from a random key that lives as long as the process.
func devIssuer(cfg *config.Config) (*auth.Issuer, error) {
	seed, err := cfg.SigningSeed()
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	var key ed25519.PrivateKey
	if seed != nil {
		key = ed25519.NewKeyFromSeed(seed)
	} else {
		obs.Pkg("main").Warn("TOKEN_SIGNING_KEY not set; dev tokens will not survive a restart")
		if _, key, err = ed25519.GenerateKey(rand.Reader); err != nil {
			return nil, err
		}
	}
	return auth.NewIssuer(devTokenIssuer, cfg.AppID, key), nil
}
