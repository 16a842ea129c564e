package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/openadeia/teesync/pkg/workflow"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "List your TEE e-Adeies applications and show which are already imported",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		return withEngine(func(ctx context.Context, engine *workflow.Engine, userID int64) error {
			res, err := engine.Sync(ctx, userID)
			if err != nil {
				return reportError(err)
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printApplications(res)
			return nil
		})
	},
}

func printApplications(res *workflow.SyncResult) {
	if res.Count == 0 {
		fmt.Println("No applications found on TEE e-Adeies.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "PERMIT CODE\tTITLE\tSTATUS\tSTAGE\tTYPE\tLOCAL\t")
	for _, a := range res.Applications {
		local := "-"
		switch {
		case a.Flagged:
			local = "invalid: " + a.Reason
		case a.AlreadyImported:
			local = fmt.Sprintf("#%d", a.LocalProjectID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n", a.PermitCode, a.Title, a.StatusText, a.Stage, a.PermitType, local)
	}
	w.Flush()
	fmt.Printf("\n%d applications, synced at %s\n", res.Count, res.SyncedAt.Local().Format("2006-01-02 15:04:05"))
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Bool("json", false, "Print the result as JSON")
}
