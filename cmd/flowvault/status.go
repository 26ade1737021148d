package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"flowvault/pkg/checkpoint"
	"flowvault/pkg/config"
	"flowvault/pkg/logger"
)

var statusVerbose bool

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show checkpoint progress from previous runs",
	Long: `Show the archival progress recorded in the checkpoint store: which
apps completed, which failed and why, and per-flow detail with --verbose.`,
	Example: `  # Summary of all apps
  flowvault status

  # Include per-flow status
  flowvault status --verbose`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false, "show per-flow status")
	statusCmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "", "checkpoint directory")
}

func runStatus(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if checkpointDir != "" {
		flags["checkpoint-dir"] = checkpointDir
	}
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := checkpoint.NewStore(cfg.Pipeline.CheckpointDir, logger.NewNop())
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	apps := store.Apps()
	if len(apps) == 0 {
		fmt.Println("No checkpoint data found. Run 'flowvault run' first.")
		return nil
	}

	appIDs := make([]string, 0, len(apps))
	for id := range apps {
		appIDs = append(appIDs, id)
	}
	sort.Strings(appIDs)

	var completed, failed, inProgress int
	for _, id := range appIDs {
		entry := apps[id]
		switch entry.Status {
		case checkpoint.StatusCompleted:
			completed++
		case checkpoint.StatusFailed:
			failed++
		case checkpoint.StatusInProgress:
			inProgress++
		}

		fmt.Printf("%-40s %s", id, entry.Status)
		if entry.Reason != "" {
			fmt.Printf("  (%s)", entry.Reason)
		}
		fmt.Println()

		if statusVerbose {
			printFlowStatuses(store, id)
		}
	}

	fmt.Println()
	fmt.Printf("%d apps: %d completed, %d failed, %d in progress\n",
		len(apps), completed, failed, inProgress)
	if failed > 0 || inProgress > 0 {
		fmt.Println("Rerun 'flowvault run' to resume unfinished work.")
	}
	return nil
}

func printFlowStatuses(store *checkpoint.Store, appID string) {
	flows := store.FlowStatuses(appID)
	if len(flows) == 0 {
		return
	}

	flowIDs := make([]string, 0, len(flows))
	for id := range flows {
		flowIDs = append(flowIDs, id)
	}
	sort.Strings(flowIDs)

	for _, id := range flowIDs {
		entry := flows[id]
		fmt.Printf("    %-36s %s", id, entry.Status)
		if entry.Reason != "" {
			fmt.Printf("  (%s)", entry.Reason)
		}
		fmt.Println()
	}
}
