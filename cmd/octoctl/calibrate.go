package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewCalibrateCommand groups the calibration workflow.
func NewCalibrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Measure a joint's full-travel time",
		Long: `Calibration measures how long a joint takes to travel its full range,
which the daemon uses to convert position percentages into timed moves.

Flow: lower the joint fully, run "calibrate start <part>", wait until the
joint reaches its highest point, then run "calibrate complete". The bed is
lowered back to flat automatically and the measured time takes effect.`,
	}
	cmd.AddCommand(newCalStartCommand(), newCalCompleteCommand())
	return cmd
}

func newCalStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <head|feet>",
		Short: "Start timing an upward traversal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient().CalibrationStart(bedName, args[0]); err != nil {
				return err
			}
			cmd.Printf("calibrating %s: watch the bed and run %s when it stops rising\n",
				args[0], bold("octoctl calibrate complete"))
			return nil
		},
	}
	addBedFlag(cmd)
	return cmd
}

func newCalCompleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Finish the measurement and lower the bed back down",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newAPIClient().CalibrationComplete(bedName)
			if err != nil {
				return err
			}
			cmd.Printf("%s full travel measured: %s\n", out.Part, color.GreenString("%.1fs", out.ElapsedSeconds))
			cmd.Println("lowering back to flat; update the config to keep this value across restarts:")
			cmd.Printf("  %s_full_travel_seconds: %.1f\n", out.Part, out.ElapsedSeconds)
			return nil
		},
	}
	addBedFlag(cmd)
	return cmd
}
