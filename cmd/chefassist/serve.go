package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chefassist/internal/audit"
	"chefassist/internal/capability"
	"chefassist/internal/engine"
	"chefassist/internal/guard"
)

var skipAudit bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant API and metrics servers",
	Long: `Run the assistant API and, when enabled, the Prometheus metrics server.

The channel policy audit runs before the listeners open; any finding aborts
startup.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&skipAudit, "skip-audit", false, "Start without running the channel policy audit")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !skipAudit {
		auditor, err := audit.New(capability.DefaultPolicy(), guard.DefaultRules(), audit.WithLogger(log.With("component", "audit")))
		if err != nil {
			return err
		}
		report, err := auditor.Run(ctx)
		if err != nil {
			return err
		}
		if err := report.Err(); err != nil {
			return fmt.Errorf("refusing to start: %w", err)
		}
	}

	eng, err := engine.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to initialize llm: %w", err)
	}

	gin.SetMode(cfg.Server.Mode)
	a, err := buildApp(cfg, log, eng)
	if err != nil {
		return err
	}
	defer a.Close()

	servers := []*http.Server{{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: a.server.Router(),
	}}
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, a.collector.Handler())
		servers = append(servers, &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			log.Info("server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
