package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/openadeia/teesync/internal/utils"
	"github.com/openadeia/teesync/pkg/permit"
	"github.com/openadeia/teesync/pkg/workflow"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import [permit codes...]",
	Short: "Import TEE e-Adeies applications as local projects",
	Long: `Fetches your applications from TEE e-Adeies and imports the selected ones as
local projects. Pass permit codes to pick applications, or --all to import
every application that is not linked to a project yet.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			return fmt.Errorf("pass the permit codes to import or --all")
		}

		db, path, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		lock, err := utils.NewDBLock(path)
		if err != nil {
			return err
		}
		if err := lock.Lock(); err != nil {
			return err
		}
		defer lock.Unlock()

		engine, err := newEngine(db)
		if err != nil {
			return err
		}
		ctx := context.Background()
		userID, err := cliUser(ctx, db)
		if err != nil {
			return err
		}

		synced, err := engine.Sync(ctx, userID)
		if err != nil {
			return reportError(err)
		}
		apps, missing := selectApplications(synced, args, all)
		for _, code := range missing {
			utils.Log.Warnf("permit %s is not among your TEE e-Adeies applications", code)
		}

		res, err := engine.Import(ctx, userID, apps)
		if errors.Is(err, workflow.ErrNothingToImport) {
			fmt.Println("Nothing to import.")
			return nil
		}
		if err != nil {
			return err
		}
		printImport(res)
		return nil
	},
}

// selectApplications picks the applications named by codes, or every
// application not imported yet when all is set. Codes not found are
// returned as missing.
func selectApplications(res *workflow.SyncResult, codes []string, all bool) ([]permit.Application, []string) {
	var apps []permit.Application
	if all {
		for _, a := range res.Applications {
			if !a.AlreadyImported {
				apps = append(apps, a.Application)
			}
		}
		return apps, nil
	}

	byCode := make(map[string]permit.Application, len(res.Applications))
	for _, a := range res.Applications {
		byCode[a.PermitCode] = a.Application
	}
	var missing []string
	for _, code := range codes {
		app, ok := byCode[code]
		if !ok {
			missing = append(missing, code)
			continue
		}
		apps = append(apps, app)
	}
	return apps, missing
}

func printImport(res *workflow.ImportResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "PERMIT CODE\tACTION\tPROJECT\t")
	for _, r := range res.Results {
		project := r.Code
		switch {
		case r.Action == workflow.OUTCOME_INVALID:
			project = r.Reason
		case project == "" && r.ID != 0:
			project = fmt.Sprintf("#%d", r.ID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", r.PermitCode, r.Action, project)
	}
	w.Flush()
	fmt.Printf("\n%d imported\n", res.Imported)
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().Bool("all", false, "Import every application not linked to a project")
}
