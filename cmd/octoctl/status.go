package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var bold = color.New(color.Bold).SprintFunc()

func connText(connected bool) string {
	if connected {
		return color.GreenString("connected")
	}
	return color.RedString("disconnected")
}

// NewStatusCommand prints the daemon's bed status.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the status of all configured beds",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := newAPIClient().Status()
			if err != nil {
				return err
			}
			if st.Combined {
				cmd.Println(bold("Mode:"), "combined (all beds move together)")
			}
			for _, b := range st.Beds {
				cmd.Printf("%s  %s  %s\n", bold(b.Name), b.Address, connText(b.Connected))
				cmd.Printf("  head %d%%  feet %d%%  (combined %d%%)\n", b.HeadPosition, b.FeetPosition, b.BothPosition)
				cmd.Printf("  travel: head %.1fs, feet %.1fs\n", b.HeadTravelSecs, b.FeetTravelSecs)
				if b.CalibrationState != "idle" {
					cmd.Printf("  calibration: %s (%s)\n", color.YellowString(b.CalibrationState), b.CalibrationPart)
				}
			}
			return nil
		},
	}
}
