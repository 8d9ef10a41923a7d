package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/abx-sheet-sync/internal/app"
	"github.com/Guizzs26/abx-sheet-sync/internal/broker"
	"github.com/Guizzs26/abx-sheet-sync/internal/models"
	"github.com/Guizzs26/abx-sheet-sync/internal/service"
	"github.com/Guizzs26/abx-sheet-sync/pkg/infra"
	"github.com/Guizzs26/abx-sheet-sync/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var (
		filter service.Filter
		order  service.SortOrder
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the table and re-list it whenever another instance writes",
		Long:  "Follows the change feed, prints the current records again after every write made elsewhere and exposes Prometheus metrics.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Config.RabbitMQURL == "" {
					return fmt.Errorf("RABBITMQ_URL is required for watch")
				}

				// Graceful Shutdown Context
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				logger := a.Logger
				logger.Info("🔥 Change feed watcher initializing...", "version", version, "backend", a.Config.Backend)

				go startObservabilityServer(ctx, a.Config.MetricsPort, logger)

				relist := func(ctx context.Context) {
					records, err := a.View.List(ctx, filter, order)
					if err != nil {
						fmt.Fprintln(cmd.ErrOrStderr(), service.UserMessage(err))
						return
					}
					renderTable(cmd.OutOrStdout(), records)
				}
				relist(ctx)

				feed := service.NewChangeFeedService(a.Cache, a.Config.InstanceID, logger.With("component", "change_feed"),
					service.WithChangeHook(func(ctx context.Context, ev models.ChangeEvent) {
						fmt.Fprintf(cmd.OutOrStdout(), "\n%s %s row %d by %s\n", ev.OccurredAt.Local().Format("15:04:05"), ev.Operation, ev.RowID, ev.Origin)
						relist(ctx)
					}))
				runConsumer(ctx, a.Config.RabbitMQURL, a.Config.InstanceID, feed, logger)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&filter.PatientID, "patient", "", "Only this patient")
	cmd.Flags().StringVar(&filter.Antibiotic, "antibiotic", "", "Only this antibiotic")
	cmd.Flags().StringVarP(&filter.Query, "query", "q", "", "Free-text search over every column")
	cmd.Flags().StringVar(&order.Column, "sort", "", "Sort column (default: row order)")
	cmd.Flags().BoolVar(&order.Desc, "desc", false, "Sort descending")

	return cmd
}

// runConsumer keeps a change-feed consumer connected until ctx ends, reconnecting with backoff
func runConsumer(ctx context.Context, url, instance string, handler broker.ChangeHandler, logger *slog.Logger) {
	connBackoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)

	for {
		select {
		case <-ctx.Done():
			logger.Info("🛑 Shutdown signal received")
			return
		default:
		}

		consumer, err := broker.NewRabbitMQConsumer(url, instance, handler, logger)
		if err != nil {
			metrics.HealthStatus.Set(0)
			metrics.BrokerReconnections.Inc()
			wait := connBackoff.Next()
			logger.Error("RabbitMQ connection failed, retrying...",
				"wait_duration", wait,
				"attempt", connBackoff.Attempts(),
				"error", err,
			)

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		connBackoff.Reset()
		metrics.HealthStatus.Set(1)
		logger.Info("✅ Connected to Broker. Listening for change events...")

		if err := consumer.Listen(ctx); err != nil {
			metrics.HealthStatus.Set(0)
			logger.Error("⚠️ Change feed connection lost", "error", err)
		}

		consumer.Close()
	}
}

func startObservabilityServer(ctx context.Context, port string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("WATCHER ALIVE"))
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("📊 Observability server online", "url", "http://localhost:"+port+"/metrics")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Observability server failed", "error", err)
	}
}
