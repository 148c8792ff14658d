// Command server runs the weft web surface.
//
// Configuration is read from a YAML file (--config, $WEFT_CONFIG,
// ./config.yaml or /etc/weft/config.yaml) and WEFT_ environment overrides.
// Variables from an optional dotenv file (--env-file, default .env) are
// added to the environment first; variables already set win.
// See pkg/config for the full set of keys.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rhuss/weft/pkg/api"
	"github.com/rhuss/weft/pkg/auth"
	"github.com/rhuss/weft/pkg/auth/apikey"
	"github.com/rhuss/weft/pkg/auth/jwt"
	"github.com/rhuss/weft/pkg/config"
	"github.com/rhuss/weft/pkg/debug"
	"github.com/rhuss/weft/pkg/hook"
	"github.com/rhuss/weft/pkg/session"
	"github.com/rhuss/weft/pkg/session/memory"
	"github.com/rhuss/weft/pkg/session/postgres"
	"github.com/rhuss/weft/pkg/web"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath, envFile string
	cmd := &cobra.Command{
		Use:           "weft",
		Short:         "Serve one request pipeline over HTTP, HTTPS and a websocket channel",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return err
			}
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration; missing is fine")
	return cmd
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("no env file found", "path", path)
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	slog.Info("loaded env file", "path", path)
	return nil
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if unknown := debug.Init(cfg.Log.Debug, cfg.Log.Level); len(unknown) > 0 {
		slog.Warn("ignoring unknown debug categories", "categories", unknown, "known", debug.Known)
	}
	if cats := debug.Selected(); len(cats) > 0 {
		slog.Info("debug logging enabled", "categories", cats)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authn, closeAuth, err := buildAuthenticator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAuth()

	opts := []web.Option{web.WithLogger(slog.Default())}
	if authn != nil {
		opts = append(opts, web.WithAuthenticator(authn))
	}
	if cfg.Auth.RateLimit.Enabled {
		opts = append(opts, web.WithRateLimiter(buildRateLimiter(cfg.Auth.RateLimit)))
	}

	bus := hook.New()
	web.OnRouting(bus, func(_ context.Context, ev *web.RoutingEvent) error {
		if ev.Stage != web.StageSetup {
			return nil
		}
		return ev.Pipeline.HandleFunc(http.MethodGet, "/healthz", func(_ *api.Request, res api.Response) error {
			return res.Send("ok\n")
		})
	})

	surface := web.New(*cfg, bus, opts...)
	if err := surface.Initialize(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return surface.Shutdown(shutdownCtx)
}

// buildRateLimiter merges the request and frame tier tables. A tier named
// only in frame_tiers keeps the default request budget, and the other way
// round.
func buildRateLimiter(rl config.RateLimitConfig) *auth.InProcessLimiter {
	fallback := auth.TierConfig{RequestsPerMinute: rl.DefaultRPM, FramesPerMinute: rl.DefaultFPM}
	tiers := make(map[string]auth.TierConfig, len(rl.Tiers)+len(rl.FrameTiers))
	for name, rpm := range rl.Tiers {
		tiers[name] = auth.TierConfig{RequestsPerMinute: rpm, FramesPerMinute: rl.DefaultFPM}
	}
	for name, fpm := range rl.FrameTiers {
		tc, ok := tiers[name]
		if !ok {
			tc.RequestsPerMinute = rl.DefaultRPM
		}
		tc.FramesPerMinute = fpm
		tiers[name] = tc
	}
	return auth.NewInProcessLimiter(tiers, fallback)
}

// buildAuthenticator returns the authenticator for cfg.Auth.Type, or nil
// for "none". The returned close function releases any backing store.
func buildAuthenticator(ctx context.Context, cfg *config.Config) (auth.Authenticator, func(), error) {
	noop := func() {}

	switch cfg.Auth.Type {
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			id := auth.Identity{Subject: k.Subject, ServiceTier: k.ServiceTier}
			if k.TenantID != "" {
				id.Metadata = map[string]string{"tenant_id": k.TenantID}
			}
			entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Identity: id})
		}
		slog.Info("authentication enabled", "type", "apikey", "keys", len(entries))
		return apikey.New(entries), noop, nil

	case "jwt":
		j := cfg.Auth.JWT
		slog.Info("authentication enabled", "type", "jwt", "issuer", j.Issuer)
		return jwt.New(jwt.Config{
			Issuer:        j.Issuer,
			Audience:      j.Audience,
			JWKSURL:       j.JWKSURL,
			UserClaim:     j.UserClaim,
			TenantClaim:   j.TenantClaim,
			TierClaim:     j.TierClaim,
			ScopesClaim:   j.ScopesClaim,
			LoggedInClaim: j.LoggedInClaim,
			CacheTTL:      j.CacheTTL,
		}), noop, nil

	case "session":
		store, err := buildSessionStore(ctx, cfg.Session)
		if err != nil {
			return nil, noop, err
		}
		slog.Info("authentication enabled", "type", "session", "store", cfg.Session.Store, "cookie", cfg.Session.Cookie)
		closeStore := func() {
			if err := store.Close(); err != nil {
				slog.Warn("closing session store", "error", err)
			}
		}
		return session.NewAuthenticator(store, cfg.Session.Cookie), closeStore, nil
	}

	slog.Info("authentication disabled")
	return nil, noop, nil
}

func buildSessionStore(ctx context.Context, cfg config.SessionConfig) (session.Store, error) {
	if cfg.Store == "postgres" {
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("creating postgres session store: %w", err)
		}
		return store, nil
	}
	return memory.New(cfg.MaxSize), nil
}
