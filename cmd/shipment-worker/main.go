package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/Dekks/config"
	"github.com/BearBump/Dekks/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "shipment-worker",
	Short: "Dekks shipment reconciliation worker",
	Long: `shipment-worker keeps tracked container shipments in sync with the tracking provider:
it fetches fresh snapshots, records history, estimates emissions and notifies users on status changes.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler and the ops HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		httpAddr, _ := cmd.Flags().GetString("http-addr")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		err = RunShipmentWorker(ctx, cfg, defaultWorkerFactories(), workerHTTPOpts{
			httpAddr:    httpAddr,
			swaggerPath: os.Getenv("swaggerPath"),
			onListen: func(addr string) {
				slog.Info("worker http listening", "addr", addr)
			},
		})
		if err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile all tracked shipments once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		report, err := RunReconcileOnce(ctx, cfg, defaultWorkerFactories())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфига: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format))
	return cfg, nil
}

func init() {
	runCmd.Flags().String("http-addr", "", "ops HTTP listen address (overrides worker.http_addr)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reconcileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
