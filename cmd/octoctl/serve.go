package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/octoctl/internal/bed"
	"github.com/chaz8081/octoctl/internal/ble"
	"github.com/chaz8081/octoctl/internal/config"
	"github.com/chaz8081/octoctl/internal/server"
)

// NewServeCommand runs the daemon in the foreground.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the octoctl daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg *config.Config) error {
	adapter := ble.NewHardwareAdapter()

	units := make([]server.Unit, 0, len(cfg.Beds))
	controls := make([]bed.Control, 0, len(cfg.Beds))
	sessions := make([]*bed.Session, 0, len(cfg.Beds))
	for _, bc := range cfg.Beds {
		session, err := bed.NewSession(adapter, bc.Address, bc.PIN, resolverFor(adapter, bc.Address), bed.DefaultSessionOptions())
		if err != nil {
			return fmt.Errorf("bed %q: %w", bc.Name, err)
		}
		ctrl, err := bed.NewBed(session, bc.Travel(), bed.DefaultArbiterOptions())
		if err != nil {
			return fmt.Errorf("bed %q: %w", bc.Name, err)
		}
		units = append(units, server.Unit{Name: bc.Name, Control: ctrl})
		controls = append(controls, ctrl)
		sessions = append(sessions, session)
	}

	target := controls[0]
	if cfg.Combined {
		agg, err := bed.NewAggregate(controls)
		if err != nil {
			return err
		}
		target = agg
	}

	// Best effort initial connect; beds out of range reconnect on demand.
	for i, ctrl := range controls {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		if err := ctrl.Connect(ctx); err != nil {
			slog.Warn("[daemon] initial connect failed", "bed", units[i].Name, "error", err)
		}
		cancel()
	}

	srv := server.New(units, target, cfg.Combined)
	httpSrv := &http.Server{Addr: cfg.Listen, Handler: srv.Handler()}

	go func() {
		slog.Info("[daemon] listening", "addr", cfg.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[daemon] http server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	slog.Info("[daemon] shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	for _, s := range sessions {
		_ = s.Disconnect()
	}
	return nil
}

// resolverFor re-scans for the bed before a reconnect attempt, picking up a
// re-advertised address. Returns "" when the bed is not currently visible.
func resolverFor(adapter ble.Adapter, address string) bed.Resolver {
	return func(ctx context.Context) (string, error) {
		devices, err := ble.ScanForBeds(adapter, 5*time.Second)
		if err != nil {
			return "", err
		}
		for _, d := range devices {
			if d.Address == address {
				return d.Address, nil
			}
		}
		return "", nil
	}
}
