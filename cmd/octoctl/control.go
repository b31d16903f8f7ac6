package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var bedName string

func addBedFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&bedName, "bed", "", "target a specific bed by name (default: all / the configured unit)")
}

// NewMoveCommand starts a timed move of a joint group.
func NewMoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <head|feet|both> <0-100>",
		Short: "Move a joint group to a position",
		Long:  "Start a timed move of the head, feet, or both joints to the given position percentage. The daemon estimates the duration from the calibrated full-travel time.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			position, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("position must be a number, got %q", args[1])
			}
			if err := newAPIClient().Move(bedName, args[0], position); err != nil {
				return err
			}
			cmd.Printf("moving %s to %d%%\n", args[0], position)
			return nil
		},
	}
	addBedFlag(cmd)
	return cmd
}

// NewStopCommand halts all movement.
func NewStopCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop all bed movement immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient().Stop(bedName); err != nil {
				return err
			}
			cmd.Println("stopped")
			return nil
		},
	}
	addBedFlag(cmd)
	return cmd
}

// NewLightCommand toggles the underbed light.
func NewLightCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "light <on|off>",
		Short:     "Switch the underbed light",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "light_off"
			if args[0] == "on" {
				action = "light_on"
			}
			return newAPIClient().Command(bedName, action)
		},
	}
	addBedFlag(cmd)
	return cmd
}
