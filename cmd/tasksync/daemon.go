package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/dwestbrook/tasksync/internal/config"
	"github.com/dwestbrook/tasksync/internal/coordinator"
	"github.com/dwestbrook/tasksync/internal/feed"
	"github.com/dwestbrook/tasksync/internal/logging"
	"github.com/dwestbrook/tasksync/internal/monitor"
	"github.com/dwestbrook/tasksync/internal/remote"
	"github.com/dwestbrook/tasksync/internal/server"
	"github.com/dwestbrook/tasksync/internal/writer"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync engine",
	Long: `Run the tasksync engine in the foreground.

The daemon:
  1. Monitors both upstreams (record API and change feed) on a timer
  2. Pulls remote changes from the feed and applies them locally
  3. Replays queued local writes when the record API recovers
  4. Serves status, force-sync, and a WebSocket event stream for UIs

Stop with Ctrl+C; shutdown is graceful.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		return runDaemon(cfg)
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cfg *config.Config) error {
	sink := logging.Sink(logging.Options{FilePath: cfg.LogPath()})

	st, q := openLocal(cfg)
	defer st.Close()

	writeClient := remote.New(remote.Config{
		BaseURL:        cfg.RemoteURL,
		ProbeTimeout:   cfg.ProbeTimeout,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logging.New(sink, "remote"),
	})

	feedClient, err := feed.New(context.Background(), feed.Config{
		BaseURL:        cfg.FeedURL,
		Table:          cfg.FeedTable,
		Cursors:        feed.NewSQLCursorStore(st),
		ProbeTimeout:   cfg.ProbeTimeout,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logging.New(sink, "feed"),
	})
	if err != nil {
		return fmt.Errorf("failed to create feed client: %w", err)
	}

	mon := monitor.New(writeClient, feedClient, &monitor.Config{
		PollInterval:     cfg.PollInterval,
		FailureThreshold: cfg.FailureThreshold,
		Logger:           logging.New(sink, "monitor"),
	})

	coord := coordinator.New(st, q, writeClient, feedClient, mon, &coordinator.Config{
		SyncInterval: cfg.SyncInterval,
		Logger:       logging.New(sink, "coordinator"),
	})

	writes := writer.New(st, q, writeClient, mon, logging.New(sink, "writer"))

	srv := server.New(coord, writes, q, mon, &server.Config{
		Port:   cfg.ServerPort,
		Logger: logging.New(sink, "server"),
	})

	coord.Start()
	defer coord.Stop()

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start status server: %w", err)
	}
	defer func() {
		if err := srv.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}()

	stopConfigWatch := watchConfigFile(cfg, logging.New(sink, "daemon"))
	defer stopConfigWatch()

	fmt.Printf("tasksync daemon running (status server on :%d)\n", cfg.ServerPort)
	fmt.Println("Press Ctrl+C to stop...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Println("\nShutting down...")
	return nil
}

// watchConfigFile logs when the config file changes on disk so operators
// know a restart is needed to apply it. Returns a stop func.
func watchConfigFile(cfg *config.Config, logger interface{ Printf(string, ...any) }) func() {
	path := configPath
	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.toml")
	}
	if _, err := os.Stat(path); err != nil {
		return func() {}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Printf("Warning: failed to watch config: %v", err)
		return func() {}
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Printf("Warning: failed to watch config dir: %v", err)
		_ = watcher.Close()
		return func() {}
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name == path && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					logger.Printf("Config file changed; restart the daemon to apply")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Printf("Config watcher error: %v", err)
			}
		}
	}()

	return func() { _ = watcher.Close() }
}
