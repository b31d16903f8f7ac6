package main

import (
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chaz8081/octoctl/internal/ble"
)

// NewScanCommand discovers nearby beds.
func NewScanCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for nearby beds",
		Long:  "Scan for BLE devices advertising the bed control service and print their addresses.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Printf("scanning for %s...\n", timeout)
			devices, err := ble.ScanForBeds(ble.NewHardwareAdapter(), timeout)
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				cmd.Println(color.YellowString("no beds found; make sure the bed is powered and in range"))
				return nil
			}
			for _, d := range devices {
				name := d.Name
				if name == "" {
					name = "(unnamed)"
				}
				cmd.Printf("%s  %s  RSSI %d\n", color.GreenString(d.Address), name, d.RSSI)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to scan")
	return cmd
}
