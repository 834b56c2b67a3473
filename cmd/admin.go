package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/fleet/registry"
)

var electCmd = &cobra.Command{
	Use:   "elect",
	Short: "Ask the fleet to elect a new captain",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, reg, err := dialRegistry()
		if err != nil {
			return err
		}
		defer conn.Close()

		epoch, err := reg.RequestElection(context.Background())
		if errors.Is(err, registry.ErrEmptyFleet) {
			return fmt.Errorf("election rejected: %w", err)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "New captain election started (epoch %d)\n", epoch)
		return nil
	},
}

var captainCmd = &cobra.Command{
	Use:   "captain",
	Short: "Show the current captain",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, reg, err := dialRegistry()
		if err != nil {
			return err
		}
		defer conn.Close()

		captain, ok, err := reg.GetCaptain(context.Background())
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "None")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", captain.ID, captain.Name)
		return nil
	},
}

var robotsCmd = &cobra.Command{
	Use:   "robots",
	Short: "List registered robots",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, reg, err := dialRegistry()
		if err != nil {
			return err
		}
		defer conn.Close()

		count := 0
		for n, err := range reg.StreamAll(cmd.Context()) {
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", n.ID, n.Name)
			count++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d robots\n", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(electCmd)
	rootCmd.AddCommand(captainCmd)
	rootCmd.AddCommand(robotsCmd)
}
