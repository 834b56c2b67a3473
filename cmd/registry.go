package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/fleet/bus"
	"github.com/adamgarcia4/goLearning/fleet/logger"
	"github.com/adamgarcia4/goLearning/fleet/registry"
	"github.com/adamgarcia4/goLearning/fleet/status"
	"github.com/adamgarcia4/goLearning/fleet/transport"
)

var (
	grpcAddr     string
	httpAddr     string
	triggerMode  string
	verifyClaims bool
	streamDelay  time.Duration
	databaseURL  string
	dropProb     float64
	dupeProb     float64
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Run the fleet registry",
	Long: `Run the registry: the robot roster and captain record over gRPC, a gRPC
broker robots can use as their broadcast bus, and the plaintext status surface
over HTTP.

Examples:
  # Defaults: gRPC on :50051, HTTP on :8080
  fleet registry

  # Reject implausible captain claims and keep an audit trail in postgres
  fleet registry --verify-claims --database-url=postgres://fleet@localhost/fleet

  # Exercise the election against a lossy bus
  fleet registry --drop=0.1 --dupe=0.1`,
	Run: runRegistry,
}

func init() {
	rootCmd.AddCommand(registryCmd)

	registryCmd.Flags().StringVar(&grpcAddr, "grpc-addr", getenv("FLEET_GRPC_ADDR", ":50051"), "gRPC listen address (env FLEET_GRPC_ADDR)")
	registryCmd.Flags().StringVar(&httpAddr, "http-addr", getenv("FLEET_HTTP_ADDR", DefaultHTTPAddr), "HTTP status listen address (env FLEET_HTTP_ADDR)")

	// Election flags
	registryCmd.Flags().StringVar(&triggerMode, "trigger", "epoch", "How election requests reach robots: epoch (every robot) or once (first poller)")
	registryCmd.Flags().BoolVar(&verifyClaims, "verify-claims", false, "Reject captain claims that do not hold up against their candidate set")
	registryCmd.Flags().DurationVar(&streamDelay, "stream-delay", 0, "Delay between robots in StreamAll")
	registryCmd.Flags().StringVar(&databaseURL, "database-url", getenv("DATABASE_URL", ""), "Postgres DSN for the captain report audit log (env DATABASE_URL)")

	// Broker flags
	registryCmd.Flags().Float64Var(&dropProb, "drop", 0, "Probability the broker drops a delivery")
	registryCmd.Flags().Float64Var(&dupeProb, "dupe", 0, "Probability the broker duplicates a delivery")
}

func runRegistry(cmd *cobra.Command, args []string) {
	// Initialize logger for non-interactive mode (write to stdout)
	logger.Init("", true)

	mode, err := registry.ParseTriggerMode(triggerMode)
	if err != nil {
		log.Fatalf("invalid --trigger: %v", err)
	}

	opts := registry.DefaultOptions()
	opts.TriggerMode = mode
	opts.VerifyClaims = verifyClaims
	opts.StreamDelay = streamDelay

	var reports *registry.GormReportLog
	if databaseURL != "" {
		reports, err = registry.OpenPostgresReportLog(databaseURL)
		if err != nil {
			log.Fatalf("failed to open report log: %v", err)
		}
		opts.Reports = reports
	}

	reg := registry.New(opts)
	broker := bus.NewFaultyMemoryBus(bus.Faults{DropProb: dropProb, DupeProb: dupeProb})

	g, err := transport.NewGRPC(grpcAddr)
	if err != nil {
		log.Fatalf("failed to create gRPC server: %v", err)
	}
	g.RegisterRegistry(transport.NewRegistryServer(reg))
	g.RegisterBroker(transport.NewBroker(broker))

	web := status.NewServer(httpAddr, reg)

	errs := make(chan error, 2)
	go func() { errs <- g.Start() }()
	go func() { errs <- web.Start() }()

	logger.Infof("Registry running (trigger=%s, verify-claims=%t)", mode, verifyClaims)

	// Wait for interrupt signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-errs:
		if err != nil {
			logger.Errorf("server failed: %v", err)
		}
	}

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := web.Shutdown(ctx); err != nil {
		logger.Errorf("Error stopping HTTP server: %v", err)
	}
	broker.Close()
	g.Stop()
	if reports != nil {
		if err := reports.Close(); err != nil {
			logger.Errorf("Error closing report log: %v", err)
		}
	}
	fmt.Println("registry stopped")
}
