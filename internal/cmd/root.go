package cmd

import (
	"strings"

	"github.com/Jaineel22/os-chatsystem/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is the release reported by --version and the welcome banner.
var Version = "2.1.0"

var rootCmd = &cobra.Command{
	Use:   "oschat",
	Short: "Two-person terminal chat over System V shared memory",
	Long: `oschat connects exactly two processes on the same machine through a
shared memory segment guarded by a semaphore pair.

The first process to start creates the segment and waits; the second one
joins it. Type a message and press Enter to send it. Type exit, bye, quit or
q (or press Ctrl-D) to leave.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runChat,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Version = Version

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/oschat/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.Flags().StringP("name", "n", "", "display name sent with each message (default: $USER)")
	_ = viper.BindPFlag("chat.name", rootCmd.Flags().Lookup("name"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/oschat")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("OSCHAT")
	// Replace dots with underscores for nested keys in env vars
	// e.g., OSCHAT_CHAT_NAME for chat.name
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
