package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/openadeia/teesync/internal/utils"
	"github.com/openadeia/teesync/pkg/tee"
	"github.com/openadeia/teesync/pkg/whttp"
	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "teesync",
	Short: "Synchronize permit applications from TEE e-Adeies.",
	Long: `teesync logs into the TEE e-Adeies portal with your engineer account, lists
your permit applications and imports them as local projects, keeping their
workflow stage in step with the portal.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		proxy := viper.GetString("proxy")
		if proxy == "" {
			return nil
		}
		return whttp.SetupProxy(proxy)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.teesync.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("logformat", "text", "Log format. Available: text, json")
	rootCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/teesync/teesync.sqlite)")
	rootCmd.PersistentFlags().StringP("user", "u", "", "Host user the command acts as (default: local)")

	for _, name := range []string{"proxy", "dbpath", "user"} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// A .env next to the binary is optional.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".teesync")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TEESYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values for all keys
	viper.SetDefault("tee.portal_url", tee.DEFAULT_PORTAL_URL)
	viper.SetDefault("tee.sso_url", tee.DEFAULT_SSO_URL)
	viper.SetDefault("tee.request_timeout", whttp.DEFAULT_TIMEOUT.String())
	viper.SetDefault("tee.browser.enabled", false)
	viper.SetDefault("tee.browser.exec_path", "")
	viper.SetDefault("tee.browser.timeout", tee.DEFAULT_BROWSER_TIMEOUT.String())
	viper.SetDefault("secret", "")
	viper.SetDefault("server.listen", ":8080")
	viper.SetDefault("server.accounts", map[string]string{})

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.teesync.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
	formatString, _ := rootCmd.PersistentFlags().GetString("logformat")
	utils.SetLogFormat(formatString)
}
