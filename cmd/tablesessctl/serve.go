package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/minus-twelve/tablesess"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Sweep expired sessions on a schedule and serve metrics",
	Long: `Serve runs the expiration sweeper on the configured cron schedule and
exposes /metrics and /healthz over HTTP until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		e, err := setup(ctx, cmd, tablesess.NewMetricsObserver(tablesess.WithRegistry(reg)))
		if err != nil {
			return err
		}

		listen, _ := cmd.Flags().GetString("listen")
		if listen == "" {
			listen = e.cfg.Metrics.Listen
		}
		if listen == "" {
			listen = ":9090"
		}

		scheduler, err := tablesess.NewScheduler(e.store, e.cfg.Sweep.Schedule, e.log)
		if err != nil {
			return err
		}
		scheduler.Start(ctx)
		defer scheduler.Stop()

		srv := &http.Server{
			Addr:              listen,
			Handler:           newServeRouter(e.store, reg),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			e.log.WithField("addr", listen).WithField("schedule", e.cfg.Sweep.Schedule).Info("serving session sweeper")
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
			e.log.Info("shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			e.log.WithError(err).Warn("graceful shutdown did not complete")
			return srv.Close()
		}
		return nil
	},
}

func newServeRouter(store tablesess.Store, reg *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		n, err := store.Count(ctx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": n})
	})
	return r
}

func init() {
	serveCmd.Flags().StringP("listen", "l", "", "Address for /metrics and /healthz (overrides metrics.listen)")
	rootCmd.AddCommand(serveCmd)
}
