package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dwestbrook/tasksync/internal/server"
	"github.com/dwestbrook/tasksync/internal/ui"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show connection status and pending operations",
	Long: `Query the running daemon for the aggregate connection status, the
health of both upstreams, and the pending-operation count.

Output formats:
  tasksync status            # styled text
  tasksync status -o json    # machine-readable JSON
  tasksync status -o yaml    # machine-readable YAML`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		payload, err := fetchStatus(cfg.ServerPort)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v (is the daemon running?)\n", err)
			os.Exit(1)
		}

		switch statusOutput {
		case "json":
			out, _ := json.MarshalIndent(payload, "", "  ")
			fmt.Println(string(out))
		case "yaml":
			out, _ := yaml.Marshal(payload)
			fmt.Print(string(out))
		default:
			printStatus(payload)
		}
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text", "output format: text, json, yaml")
	rootCmd.AddCommand(statusCmd)
}

func fetchStatus(port int) (*server.StatusPayload, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/status", port))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	var payload server.StatusPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &payload, nil
}

func printStatus(p *server.StatusPayload) {
	fmt.Printf("Status:  %s\n", ui.RenderStatus(p.Status))
	fmt.Printf("Pending: %d operation(s)\n", p.Pending)
	for name, health := range p.Upstreams {
		marker := ui.RenderPass("up")
		if !health.Reachable {
			marker = ui.RenderFail(fmt.Sprintf("down (%d consecutive failures)", health.ConsecutiveFailures))
		}
		fmt.Printf("  %s upstream: %s\n", ui.RenderAccent(name), marker)
	}
}
