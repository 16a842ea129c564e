package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openadeia/teesync/pkg/workflow"
	"github.com/spf13/cobra"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage the stored TEE e-Adeies login",
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the TEE e-Adeies username and password (encrypted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = os.Getenv("TEESYNC_TEE_PASSWORD")
		}
		if password == "" {
			fmt.Fprint(os.Stderr, "TEE password: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}

		return withEngine(func(ctx context.Context, engine *workflow.Engine, userID int64) error {
			if err := engine.SetCredentials(ctx, userID, username, password); err != nil {
				return err
			}
			fmt.Println("TEE credentials saved.")
			return nil
		})
	},
}

var credentialsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show whether a TEE e-Adeies login is stored",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, engine *workflow.Engine, userID int64) error {
			st, err := engine.Status(ctx, userID)
			if err != nil {
				return err
			}
			if !st.Configured {
				fmt.Println("No TEE credentials configured.")
				return nil
			}
			fmt.Printf("TEE username: %s\n", *st.TEEUsername)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsShowCmd)

	credentialsSetCmd.Flags().String("username", "", "TEE e-Adeies username")
	credentialsSetCmd.Flags().String("password", "", "TEE e-Adeies password (prompted for, or read from TEESYNC_TEE_PASSWORD, when empty)")
	credentialsSetCmd.MarkFlagRequired("username")
}
