package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/adamgarcia4/goLearning/fleet/transport"
)

// Defaults, overridable through the environment
const (
	DefaultRegistryAddr = "127.0.0.1:50051"
	DefaultHTTPAddr     = ":8080"
	DefaultMQTTBroker   = "tcp://127.0.0.1:1883"
)

var registryAddr string

var rootCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Robot fleet with captain election",
	Long: `A fleet of robots that elect one captain among themselves over a broadcast
bus, watch its heartbeat and re-elect when it goes quiet. A central registry
hands out robot ids and keeps the authoritative captain record.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&registryAddr, "registry", "r", getenv("FLEET_REGISTRY_ADDR", DefaultRegistryAddr), "Registry gRPC address (env FLEET_REGISTRY_ADDR)")
}

// getenv returns the environment variable k, or def when it is unset.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// dialRegistry connects to the registry at registryAddr.
func dialRegistry() (*grpc.ClientConn, *transport.RegistryClient, error) {
	conn, err := transport.Dial(registryAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to registry %s: %w", registryAddr, err)
	}
	return conn, transport.NewRegistryClient(conn), nil
}
