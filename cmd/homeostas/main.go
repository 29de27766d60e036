package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GuramDuka/homeostas-go/internal/applog"
	"github.com/GuramDuka/homeostas-go/internal/server"
)

// A single foreground command starts the server and every configured
// tracker (spec.md §6 "Process interface"); --headless selects the
// non-UI mode this module implements (the UI is out of scope).
func main() {
	root := &cobra.Command{
		Use:   "homeostas",
		Short: "peer-to-peer directory synchronization daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			headless, _ := cmd.Flags().GetBool("headless")
			if !headless {
				return fmt.Errorf("UI mode is out of scope; run with --headless")
			}
			dir, _ := cmd.Flags().GetString("dir")
			return run(dir)
		},
	}

	root.Flags().Bool("headless", true, "run without a UI (the only mode this build implements)")
	root.Flags().String("dir", "", "override ~/.homeostas")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(dir string) error {
	sup, err := server.Open(dir)
	if err != nil {
		return fmt.Errorf("open supervisor: %w", err)
	}
	defer sup.Close()

	if err := applog.Init("info", ""); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applog.Info("homeostas starting", "dir", sup.Dir, "listen_port", sup.ListenPort)

	err = sup.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor exited: %w", err)
	}
	applog.Info("homeostas shut down cleanly")
	return nil
}
