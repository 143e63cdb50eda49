package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/dwestbrook/tasksync/internal/remote"
	"github.com/dwestbrook/tasksync/internal/task"
	"github.com/dwestbrook/tasksync/internal/ui"
	"github.com/dwestbrook/tasksync/internal/writer"
)

var (
	addDescription string
	addDue         string
)

var addCmd = &cobra.Command{
	Use:     "add <title>",
	GroupID: "tasks",
	Short:   "Add a task",
	Long: `Add a task to the local database and write it through to the remote
record store. When the remote is unreachable the create is queued and
replayed automatically once connectivity returns.

The --due flag accepts natural language:
  tasksync add "buy milk" --due tomorrow
  tasksync add "file taxes" --due "next friday"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, q := openLocal(cfg)
		defer st.Close()

		now := time.Now().UTC()
		t := &task.Task{
			ID:          uuid.NewString(),
			Title:       args[0],
			Description: addDescription,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if addDue != "" {
			due, err := parseDue(addDue)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			t.DueAt = &due
		}

		writes := writer.New(st, q, remote.New(remote.Config{
			BaseURL:        cfg.RemoteURL,
			ProbeTimeout:   cfg.ProbeTimeout,
			RequestTimeout: cfg.RequestTimeout,
		}), nil, nil)

		if err := writes.Create(context.Background(), t); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Added %s\n", ui.RenderPass("✓"), ui.RenderAccent(t.ID))
		if q.Count() > 0 {
			fmt.Printf("  %s\n", ui.RenderDim(fmt.Sprintf("%d operation(s) queued for replay", q.Count())))
		}
	},
}

var doneCmd = &cobra.Command{
	Use:     "done <id>",
	GroupID: "tasks",
	Short:   "Mark a task completed",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runFieldUpdate(args[0], map[string]any{"completed": true})
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	GroupID: "tasks",
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, q := openLocal(cfg)
		defer st.Close()

		writes := writer.New(st, q, remote.New(remote.Config{
			BaseURL:        cfg.RemoteURL,
			ProbeTimeout:   cfg.ProbeTimeout,
			RequestTimeout: cfg.RequestTimeout,
		}), nil, nil)

		if err := writes.Delete(context.Background(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), args[0])
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "tasks",
	Short:   "List local tasks",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, q := openLocal(cfg)
		defer st.Close()

		tasks, err := st.ListTasks(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks.")
			return
		}

		for _, t := range tasks {
			marker := " "
			if t.Completed {
				marker = ui.RenderPass("✓")
			}
			line := fmt.Sprintf("[%s] %s  %s", marker, ui.RenderDim(t.ID), t.Title)
			if t.DueAt != nil {
				line += ui.RenderWarn(fmt.Sprintf("  (due %s)", t.DueAt.Local().Format("2006-01-02")))
			}
			fmt.Println(line)
		}

		if q.Count() > 0 {
			fmt.Println(ui.RenderDim(fmt.Sprintf("%d operation(s) waiting for replay", q.Count())))
		}
	},
}

func runFieldUpdate(id string, fields map[string]any) {
	cfg := loadConfig()
	st, q := openLocal(cfg)
	defer st.Close()

	writes := writer.New(st, q, remote.New(remote.Config{
		BaseURL:        cfg.RemoteURL,
		ProbeTimeout:   cfg.ProbeTimeout,
		RequestTimeout: cfg.RequestTimeout,
	}), nil, nil)

	if err := writes.Update(context.Background(), id, fields); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s Updated %s\n", ui.RenderPass("✓"), id)
}

// parseDue turns natural language like "tomorrow" or "next friday" into a
// timestamp.
func parseDue(text string) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse due date %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand due date %q", text)
	}
	return r.Time.UTC(), nil
}

func init() {
	addCmd.Flags().StringVarP(&addDescription, "desc", "d", "", "task description")
	addCmd.Flags().StringVar(&addDue, "due", "", "due date in natural language (e.g. \"tomorrow\")")

	rootCmd.AddCommand(addCmd, doneCmd, rmCmd, listCmd)
}
