package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	httpapi "github.com/maverika/maverika/internal/api/http"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var companies []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the task dispatcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.setup()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			for _, raw := range companies {
				companyID, err := uuid.Parse(raw)
				if err != nil {
					return err
				}
				n, err := a.eves.LoadCompany(ctx, companyID)
				if err != nil {
					return err
				}
				logger.Info().Str("company_id", raw).Int("eves", n).Msg("company workers loaded")
			}

			apiServer := httpapi.NewServer(a.orch, a.eves, a.comm,
				promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}), logger)
			httpServer := &http.Server{
				Addr:        cfg.HTTPAddr,
				Handler:     apiServer.Router(),
				ReadTimeout: 15 * time.Second,
				IdleTimeout: 60 * time.Second,
			}

			var wg conc.WaitGroup
			wg.Go(func() {
				if err := a.dispatcher.Run(ctx); err != nil {
					logger.Error().Err(err).Msg("dispatcher stopped with error")
				}
			})
			wg.Go(func() {
				logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server started")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error().Err(err).Msg("http server failed")
					stop()
				}
			})

			<-ctx.Done()
			logger.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
			wg.Wait()
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&companies, "company", nil, "company id whose stored workers are activated at startup (repeatable)")
	return cmd
}
