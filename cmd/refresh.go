package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/openadeia/teesync/pkg/workflow"
	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh <project id>",
	Short: "Re-read the TEE e-Adeies status of a linked project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid project id %q", args[0])
		}

		return withEngine(func(ctx context.Context, engine *workflow.Engine, userID int64) error {
			out, err := engine.Refresh(ctx, userID, projectID)
			if err != nil {
				return reportError(err)
			}
			if out.Updated {
				fmt.Printf("Project %d moved to stage %s (TEE status: %s)\n", projectID, out.Stage, out.TEEStatus)
				return nil
			}
			fmt.Printf("Project %d is up to date at stage %s (TEE status: %s)\n", projectID, out.Stage, out.TEEStatus)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
