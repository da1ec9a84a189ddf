package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "sitekeeper",
	Short: "sitekeeper — a small templated site with an access log",
	Long: `sitekeeper serves a handful of templated pages behind an access-log
middleware, with a maintenance page for everything else. The tail command
follows the access log live.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: $HOME/.sitekeeper.yaml or ./.sitekeeper.yaml)")
	rootCmd.PersistentFlags().String("log-file", "server.log", "access log path")
	_ = viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 3000)
	v.SetDefault("log_file", "server.log")
	v.SetDefault("views", "")
	v.SetDefault("public", "public")
	v.SetDefault("maintenance", true)
}

func initConfig() {
	// A missing .env is normal.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".sitekeeper")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("sitekeeper")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
	}
}
