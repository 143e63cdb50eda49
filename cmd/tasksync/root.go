package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dwestbrook/tasksync/internal/config"
	"github.com/dwestbrook/tasksync/internal/queue"
	"github.com/dwestbrook/tasksync/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tasksync",
	Short: "Offline-first task sync engine",
	Long: `tasksync keeps a local SQLite task database consistent with a remote
record store across unreliable connectivity.

Remote changes arrive through an ordered change feed; local changes are
written directly to the remote record API when it is reachable, or held
in a durable pending queue and replayed once it recovers.

Run 'tasksync init' once to configure the upstream endpoints, then
'tasksync daemon' to start the engine.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.tasksync/config.toml)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "tasks", Title: "Task Commands:"},
	)
}

// loadConfig reads the effective configuration or exits.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openLocal opens the local database and pending queue or exits. The
// caller must Close the returned store.
func openLocal(cfg *config.Config) (*store.Store, *queue.Store) {
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	if err := st.InitSchema(); err != nil {
		_ = st.Close()
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}

	q, err := queue.Open(cfg.QueuePath(), nil)
	if err != nil {
		_ = st.Close()
		fmt.Fprintf(os.Stderr, "Error opening pending queue: %v\n", err)
		os.Exit(1)
	}

	return st, q
}
