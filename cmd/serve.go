package cmd

import (
	"github.com/openadeia/teesync/internal/server"
	"github.com/openadeia/teesync/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the synchronization API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		engine, err := newEngine(db)
		if err != nil {
			return err
		}

		accounts := viper.GetStringMapString("server.accounts")
		if len(accounts) == 0 {
			utils.Log.Warnf("No server.accounts configured: the API is open and runs as user %q", server.LOCAL_USER)
		}
		return server.New(engine, accounts).Start(viper.GetString("server.listen"))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}
