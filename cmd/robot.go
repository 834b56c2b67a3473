package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/fleet/bus"
	"github.com/adamgarcia4/goLearning/fleet/logger"
	"github.com/adamgarcia4/goLearning/fleet/robot"
	"github.com/adamgarcia4/goLearning/fleet/transport"
)

var (
	robotName  string
	busKind    string
	mqttBroker string
	robotCfg   = robot.DefaultConfig(robot.DefaultName)
)

var robotCmd = &cobra.Command{
	Use:   "robot",
	Short: "Run one robot",
	Long: `Run a robot: register with the registry, join the broadcast bus and take
part in captain elections until interrupted, then unregister.

Examples:
  # Use the registry's gRPC broker as the bus
  fleet robot --name=r2d2

  # Use an MQTT broker, as robots on other stacks do
  fleet robot --name=c3po --bus=mqtt --mqtt-broker=tcp://localhost:1883`,
	Run: runRobot,
}

func init() {
	rootCmd.AddCommand(robotCmd)

	robotCmd.Flags().StringVarP(&robotName, "name", "n", "", "Robot name (random if empty)")
	robotCmd.Flags().StringVar(&busKind, "bus", getenv("FLEET_BUS", "grpc"), "Broadcast bus: grpc (registry broker) or mqtt (env FLEET_BUS)")
	robotCmd.Flags().StringVar(&mqttBroker, "mqtt-broker", getenv("FLEET_MQTT_BROKER", DefaultMQTTBroker), "MQTT broker URL (env FLEET_MQTT_BROKER)")

	// Timing flags
	robotCmd.Flags().DurationVar(&robotCfg.HeartbeatInterval, "heartbeat-interval", robot.DefaultHeartbeatInterval, "Captain heartbeat interval")
	robotCmd.Flags().DurationVar(&robotCfg.HeartbeatTimeout, "heartbeat-timeout", robot.DefaultHeartbeatTimeout, "Silence after which followers elect a new captain")
	robotCmd.Flags().DurationVar(&robotCfg.DecisionWindow, "window", robot.DefaultDecisionWindow, "Candidacy collection window")
	robotCmd.Flags().DurationVar(&robotCfg.PollInterval, "poll-interval", robot.DefaultPollInterval, "Registry poll interval")
}

func runRobot(cmd *cobra.Command, args []string) {
	// Initialize logger for non-interactive mode (write to stdout)
	logger.Init("", true)

	if robotName == "" {
		robotName = "robot-" + uuid.NewString()[:8]
	}
	robotCfg.Name = robotName

	conn, reg, err := dialRegistry()
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer conn.Close()

	var b bus.Bus
	switch busKind {
	case "grpc":
		b = transport.NewBrokerBus(conn)
	case "mqtt":
		b, err = bus.DialMQTT(bus.MQTTConfig{Broker: mqttBroker, ClientID: robotName})
		if err != nil {
			log.Fatalf("failed to connect to MQTT broker: %v", err)
		}
	default:
		log.Fatalf("unknown --bus %q (want grpc or mqtt)", busKind)
	}
	defer b.Close()

	r, err := robot.New(robotCfg, reg, b)
	if err != nil {
		log.Fatalf("failed to create robot: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		log.Fatalf("failed to start robot: %v", err)
	}

	go func() {
		for ev := range r.Events() {
			logger.Infof("%s", ev)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if err := r.Stop(); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
	fmt.Println("robot stopped")
}
