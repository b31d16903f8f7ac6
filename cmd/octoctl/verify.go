package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chaz8081/octoctl/internal/bed"
	"github.com/chaz8081/octoctl/internal/ble"
	"github.com/chaz8081/octoctl/internal/config"
)

// NewVerifyCommand checks an address/PIN pair against the bed.
func NewVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify (<bed-name> | <address> <pin>)",
		Short: "Connect to a bed and verify its PIN",
		Long: `Connect to a bed, authenticate with the 4-digit PIN and report whether
the bed accepted it. With one argument the bed is looked up in the config
by name; with two, the address and PIN are used directly (useful before
adding the bed to the config).`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var address, pin string
			if len(args) == 2 {
				address, pin = args[0], args[1]
			} else {
				cfg, err := config.Load(cfgPath)
				if err != nil {
					return err
				}
				found := false
				for _, b := range cfg.Beds {
					if b.Name == args[0] {
						address, pin = b.Address, b.PIN
						found = true
						break
					}
				}
				if !found {
					return fmt.Errorf("bed %q not found in %s", args[0], cfgPath)
				}
			}

			session, err := bed.NewSession(ble.NewHardwareAdapter(), address, pin, nil, bed.DefaultSessionOptions())
			if err != nil {
				return err
			}
			defer session.Disconnect()

			cmd.Printf("connecting to %s...\n", address)
			err = session.ConnectAndVerifyPIN(cmd.Context())
			switch {
			case err == nil:
				cmd.Println(color.GreenString("PIN accepted"))
				return nil
			case errors.Is(err, bed.ErrPinRejected):
				cmd.Println(color.RedString("PIN rejected; check the code printed on the remote"))
				return err
			case errors.Is(err, bed.ErrPinVerifyTimeout):
				cmd.Println(color.YellowString("no PIN response from the bed; it may not require one"))
				return err
			default:
				return err
			}
		},
	}
}
