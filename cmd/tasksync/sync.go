package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwestbrook/tasksync/internal/types"
	"github.com/dwestbrook/tasksync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Force an immediate sync cycle",
	Long: `Ask the running daemon to probe both upstreams now, replay any pending
local writes, and pull remote changes, instead of waiting for the next
scheduled cycle.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		client := &http.Client{Timeout: 60 * time.Second}
		resp, err := client.Post(fmt.Sprintf("http://localhost:%d/sync", cfg.ServerPort), "application/json", bytes.NewReader(nil))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v (is the daemon running?)\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusConflict {
			fmt.Println("A sync cycle is already in progress.")
			return
		}
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: daemon returned status %d\n", resp.StatusCode)
			os.Exit(1)
		}

		var report types.ForceSyncReport
		if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
			fmt.Fprintf(os.Stderr, "Error decoding report: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Sync complete, status: %s\n", ui.RenderPass("✓"), ui.RenderStatus(report.Status.String()))
		if report.Replay != nil {
			fmt.Printf("  Replayed: %d/%d succeeded (%d failed)\n",
				report.Replay.Succeeded, report.Replay.Total, report.Replay.Failed)
		}
		if report.Sync != nil {
			fmt.Printf("  Pulled:   %d entries (%d inserts, %d updates, %d deletes)\n",
				report.Sync.Received, report.Sync.Inserts, report.Sync.Updates, report.Sync.Deletes)
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
