// Package main boots the retail order service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/abcretail/order-service/internal/config"
	httpapi "github.com/abcretail/order-service/internal/http"
	"github.com/abcretail/order-service/internal/model"
	"github.com/abcretail/order-service/internal/obs"
	"github.com/abcretail/order-service/internal/order"
	"github.com/abcretail/order-service/internal/queue"
	"github.com/abcretail/order-service/internal/table"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "order-service",
		Short: "retail order service with an asynchronous fulfillment pipeline",
	}
	rootCmd.AddCommand(
		serveCommand(),
		seedCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newTables(cfg config.Config) (table.Client, error) {
	if cfg.DataDir == "" {
		return table.NewMemory(), nil
	}
	return table.NewPebble(cfg.DataDir)
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API and the fulfillment consumers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			obs.InitLogger()
			obs.RegisterMetrics()
			obs.Logger.Info("service_starting")

			tables, err := newTables(cfg)
			if err != nil {
				return err
			}
			defer tables.Close()

			orderQ := queue.New(cfg.QueueOrder, cfg.VisibilityTimeout, cfg.MaxDequeueCount)
			stockQ := queue.New(cfg.QueueStock, cfg.VisibilityTimeout, cfg.MaxDequeueCount)

			intake := order.NewIntake(cfg, tables, orderQ)
			status := order.NewStatus(cfg, tables, orderQ)
			queries := order.NewQueries(cfg, tables)
			fulfiller := order.NewFulfiller(cfg, tables, stockQ)
			sink := order.NewStockSink()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			fulfillment := queue.NewConsumer(cfg, "fulfillment", orderQ, fulfiller.Handle)
			fulfillment.Start(ctx)
			notifications := queue.NewConsumer(cfg, "stock-sink", stockQ, sink.Handle)
			notifications.Start(ctx)

			app := httpapi.NewApp(cfg, tables, intake, status, queries, orderQ, stockQ)
			mux := httpapi.NewRouter(app)

			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			go func() {
				obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					obs.Logger.Error("http_server_error", "error", err)
					os.Exit(1)
				}
			}()

			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
			s := <-sigc
			obs.Logger.Info("shutdown_signal", "signal", s.String())

			app.StartShutdown()
			obs.Logger.Info("shutdown_drain_begin",
				"order_queue_pending", orderQ.Len(),
				"stock_queue_pending", stockQ.Len(),
			)

			ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancelDrain()
			if fulfillment.DrainUntil(ctxDrain) && notifications.DrainUntil(ctxDrain) {
				obs.Logger.Info("shutdown_drain_complete")
			} else {
				obs.Logger.Warn("shutdown_drain_timeout")
			}

			ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelSrv()
			if err := srv.Shutdown(ctxSrv); err != nil {
				obs.Logger.Error("http_shutdown_error", "error", err)
			}
			fulfillment.Stop()
			notifications.Stop()
			obs.Logger.Info("service_stopped")
			return nil
		},
	}
}

func seedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "load a sample catalog of products and customers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			obs.InitLogger()

			tables, err := newTables(cfg)
			if err != nil {
				return err
			}
			defer tables.Close()

			products := []model.Product{
				{ID: "prod-espresso", ProductName: "Espresso Machine", Description: "15-bar pump espresso machine", Price: decimal.RequireFromString("249.90"), StockAvailable: 50},
				{ID: "prod-grinder", ProductName: "Burr Grinder", Description: "Conical burr coffee grinder", Price: decimal.RequireFromString("89.50"), StockAvailable: 120},
				{ID: "prod-kettle", ProductName: "Gooseneck Kettle", Description: "1L variable-temperature kettle", Price: decimal.RequireFromString("59.00"), StockAvailable: 75},
			}
			customers := []model.Customer{
				{ID: "cust-ada", Name: "Ada", Surname: "Okafor", Username: "ada.o", Email: "ada@example.com", ShippingAddress: "12 Harbour Rd"},
				{ID: "cust-jonas", Name: "Jonas", Surname: "Meyer", Username: "jmeyer", Email: "jonas@example.com", ShippingAddress: "4 Lindenstrasse"},
			}

			ctx := context.Background()
			for _, p := range products {
				if err := seedEntity(ctx, tables, cfg.TableProduct, p.ID, p); err != nil {
					return err
				}
			}
			for _, c := range customers {
				if err := seedEntity(ctx, tables, cfg.TableCustomer, c.ID, c); err != nil {
					return err
				}
			}
			obs.Logger.Info("seed_complete",
				"products", len(products),
				"customers", len(customers),
			)
			return nil
		},
	}
}

func seedEntity(ctx context.Context, tables table.Client, partition, row string, v any) error {
	e, err := table.Marshal(partition, row, v)
	if err != nil {
		return err
	}
	_, err = tables.Insert(ctx, e)
	if err == table.ErrEntityExists {
		obs.Logger.Info("seed_skip_existing", "partition", partition, "row", row)
		return nil
	}
	return err
}
