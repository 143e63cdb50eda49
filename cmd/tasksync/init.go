package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/dwestbrook/tasksync/internal/config"
	"github.com/dwestbrook/tasksync/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively create the tasksync config file",
	Long: `Create the tasksync configuration file, prompting for the two upstream
endpoints: the record API (writes) and the change feed (reads).

An existing config file is only replaced after confirmation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()

		path := configPath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "config.toml")
		}

		if _, err := os.Stat(path); err == nil {
			var overwrite bool
			confirm := huh.NewConfirm().
				Title(fmt.Sprintf("Config %s already exists. Overwrite?", path)).
				Value(&overwrite)
			if err := confirm.Run(); err != nil {
				return err
			}
			if !overwrite {
				fmt.Println("Aborted.")
				return nil
			}
		}

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Record API URL (write upstream)").
					Description("e.g. https://api.example.com").
					Value(&cfg.RemoteURL),
				huh.NewInput().
					Title("Change feed URL (read upstream)").
					Description("e.g. https://feed.example.com").
					Value(&cfg.FeedURL),
				huh.NewInput().
					Title("Replicated table").
					Value(&cfg.FeedTable),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}

		if err := cfg.Write(path); err != nil {
			return err
		}

		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), ui.RenderAccent(path))
		fmt.Println("Start the engine with: tasksync daemon")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
