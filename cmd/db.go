package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"text/tabwriter"

	"github.com/openadeia/teesync/pkg/permit"
	"github.com/openadeia/teesync/pkg/storage"
	"github.com/spf13/cobra"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the teesync database",
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, dbPath, err := openStore()
		if err != nil {
			return err
		}
		db.Close()

		// Check if sqlite3 is in PATH
		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		// Print schema first
		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, dbPath, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, dbPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

// projectsCmd represents the projects command
var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Lists the local projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		stageFlag, _ := cmd.Flags().GetString("stage")
		linked, _ := cmd.Flags().GetBool("linked")

		opts := storage.ListOptions{LinkedOnly: linked}
		if stageFlag != "" {
			stage, ok := permit.ParseStage(stageFlag)
			if !ok {
				return fmt.Errorf("unknown stage %q", stageFlag)
			}
			opts.Stage = stage
		}

		db, _, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		projects, err := db.ListProjects(context.Background(), opts)
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No projects in the database.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tCODE\tPERMIT CODE\tSTAGE\tTYPE\tTITLE\tLAST SYNC\t")
		for _, p := range projects {
			synced := "-"
			if !p.SyncedAt.IsZero() {
				synced = p.SyncedAt.Local().Format("2006-01-02 15:04")
			}
			permitCode := p.PermitCode
			if permitCode == "" {
				permitCode = "-"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t\n", p.ID, p.Code, permitCode, p.Stage, p.Type, p.Title, synced)
		}
		w.Flush()
		return nil
	},
}

// logsCmd represents the logs command
var logsCmd = &cobra.Command{
	Use:   "logs <project id>",
	Short: "Prints the workflow log of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid project id %q", args[0])
		}
		limit, _ := cmd.Flags().GetInt("limit")

		db, _, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		logs, err := db.ListWorkflowLogs(context.Background(), projectID, limit)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			fmt.Println("No workflow log entries for this project.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "WHEN\tFROM\tTO\tACTION\t")
		for _, l := range logs {
			from := string(l.FromStage)
			if from == "" {
				from = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", l.CreatedAt.Local().Format("2006-01-02 15:04:05"), from, l.ToStage, l.Action)
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(projectsCmd)
	dbCmd.AddCommand(logsCmd)

	projectsCmd.Flags().String("stage", "", "Only list projects at this stage")
	projectsCmd.Flags().Bool("linked", false, "Only list projects linked to TEE e-Adeies")
	logsCmd.Flags().Int("limit", 50, "Maximum number of entries")
}
