package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/api"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/auth"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/config"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/scorer"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/store"
)

var (
	servePort    int
	serveRefresh time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		srv, err := buildServer(ctx, cfg, st)
		if err != nil {
			return err
		}
		if _, err := srv.Refresh(ctx); err != nil {
			return err
		}
		if serveRefresh > 0 {
			go refreshLoop(ctx, srv, serveRefresh)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().DurationVar(&serveRefresh, "refresh", 0, "reload the source table on this interval (0 disables)")
	rootCmd.AddCommand(serveCmd)
}

// buildServer wires the API dependencies. Q&A and reports are enabled only
// when their API keys are set. st may be nil.
func buildServer(ctx context.Context, c *config.Config, st store.Store) (*api.Server, error) {
	rules, err := scorer.RulesFromConfig(c.Scoring)
	if err != nil {
		return nil, err
	}
	gate, err := auth.NewGate(c.Auth.Users, c.Auth.PasswordHash)
	if err != nil {
		return nil, err
	}

	loader := newLoader(c)
	deps := api.Deps{
		Rules:          rules,
		Workers:        c.Scoring.Workers,
		Source:         loader,
		Gate:           gate,
		Sessions:       auth.NewSessions(c.Auth.JWTSecret, time.Duration(c.Auth.TokenTTLHours)*time.Hour),
		AllowedOrigins: c.Server.AllowedOrigins,
	}
	if st != nil {
		deps.Store = st
	}

	if c.Anthropic.Key != "" {
		deps.Reporter = newReporter(c)
		if c.Jina.Key != "" {
			ans, err := newAnswerer(ctx, c, loader)
			if err != nil {
				zap.L().Warn("serve: q&a disabled", zap.Error(err))
			} else {
				deps.Answerer = ans
			}
		}
	}
	return api.New(deps), nil
}

func refreshLoop(ctx context.Context, srv *api.Server, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := srv.Refresh(ctx); err != nil {
				zap.L().Warn("serve: scheduled refresh failed", zap.Error(err))
			}
		}
	}
}
