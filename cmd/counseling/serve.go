package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/alem-hub/counseling-hub/internal/interface/http"
	"github.com/alem-hub/counseling-hub/internal/interface/http/handlers"
	"github.com/alem-hub/counseling-hub/pkg/logger"
)

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.HTTP.Port = port
			}
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides HTTP_PORT)")
	return cmd
}

// runServe запускает HTTP сервер и останавливает его по отмене ctx.
func runServe(ctx context.Context, a *app) error {
	svc, err := a.services(ctx)
	if err != nil {
		return err
	}

	health := handlers.NewCompositeHealthChecker(a.cfg.App.Version)
	health.AddCheck("store", handlers.NewPingCheck(a.store))
	if a.statusCache != nil && a.cache != nil {
		health.AddCheck("status_cache", handlers.NewPingCheck(a.cache))
	}

	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = a.cfg.HTTP.Host
	httpCfg.Port = a.cfg.HTTP.Port
	httpCfg.ReadTimeout = a.cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = a.cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = a.cfg.HTTP.IdleTimeout
	httpCfg.AllowedOrigins = a.cfg.HTTP.AllowedOrigins
	httpCfg.AdminAPIKey = a.cfg.HTTP.AdminAPIKey
	httpCfg.AdminAPIKeyHash = a.cfg.HTTP.AdminAPIKeyHash
	httpCfg.Version = a.cfg.App.Version

	if httpCfg.AdminAPIKey == "" && httpCfg.AdminAPIKeyHash == "" {
		a.log.Warn("no admin key configured, admin routes will reject every request")
	}

	srv := httpapi.NewServer(httpCfg, httpapi.Dependencies{
		SubmitProfile:      svc.submitProfile,
		SubmitAcademics:    svc.submitAcademics,
		SubmitPayment:      svc.submitPayment,
		GenerateRankings:   svc.generateRankings,
		AllocateSeats:      svc.allocateSeats,
		OverrideAllocation: svc.overrideAllocation,
		ReviewPayment:      svc.reviewPayment,
		VerifyAllPayments:  svc.verifyAllPayments,
		GetStudentStatus:   svc.studentStatus,
		ListStudents:       svc.listStudents,
		GetRankings:        svc.rankings,
		GetSeatSummary:     svc.seatSummary,
		GetDashboardStats:  svc.dashboardStats,
		Logger:             a.log,
		HealthChecker:      health,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.App.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Info("server stopped", logger.String("address", srv.Address()))
	return nil
}
