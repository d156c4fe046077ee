package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Jaineel22/os-chatsystem/internal/config"
	"github.com/Jaineel22/os-chatsystem/internal/console"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify oschat configuration",
	Long: `View or modify oschat configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  oschat config set chat.name alice
  oschat config set chat.poll_interval_ms 100
  oschat config set ui.color never
  oschat config set history.enabled false

The new value is validated against the whole configuration before it is
written.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/oschat/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var configThemeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Manage the console color theme",
}

var configThemeExportCmd = &cobra.Command{
	Use:   "export [output-file]",
	Short: "Write a sample theme to YAML",
	Long: `Write a complete sample theme, close to the default colors, as a starting
point for customization. Point ui.theme at the edited file to use it.

If no output file is specified, the YAML is printed to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigThemeExport,
}

var configThemeValidateCmd = &cobra.Command{
	Use:   "validate <theme-file>",
	Short: "Check a theme file",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigThemeValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configThemeCmd)
	configThemeCmd.AddCommand(configThemeExportCmd)
	configThemeCmd.AddCommand(configThemeValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(out, "Configuration is invalid, showing defaults:\n%v\n\n", err)
		cfg = config.Default()
	}

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	// Only keys with a registered default are settable; the default's type
	// decides how value is parsed.
	if !isKnownKey(key) {
		return fmt.Errorf("unknown configuration key: %s\nRun 'oschat config show' to see valid keys", key)
	}

	var typedValue any
	switch viper.Get(key).(type) {
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = b
	case int:
		// Base 0 accepts hex keys such as 0x4f534348
		n, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		typedValue = int(n)
	default:
		typedValue = value
	}

	previous := viper.Get(key)
	viper.Set(key, typedValue)
	if _, err := config.Load(); err != nil {
		viper.Set(key, previous)
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = config.ConfigFile()
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

// isKnownKey reports whether key has a default.
func isKnownKey(key string) bool {
	for _, k := range viper.AllKeys() {
		if k == key {
			return true
		}
	}
	return false
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'oschat config set' to modify values", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Generate a commented config file
	configContent := `# oschat configuration

# Conversation settings
chat:
  # Name shown to the other participant (max 19 bytes, default: $USER)
  name: ""
  # First wait after finding the message queue full, doubled per retry
  backoff_ms: 2000
  # Upper bound for the doubling wait
  max_backoff_ms: 8000
  # How long to wait for the peer's signal before checking the queue anyway
  poll_interval_ms: 250
  # How long the leave notice may wait for room in a full queue
  leave_timeout_ms: 5000

# Shared resources; both participants must use the same keys
ipc:
  shm_key: 0x4f534348
  sem_key: 0x4f534349
  perm: "0666"
  # How often and how long a joining process waits for the segment
  ready_poll_interval_ms: 50
  ready_timeout_ms: 10000
  # Remove resources left behind by a crashed session at startup
  reclaim_stale: true

# Chat transcript
history:
  enabled: true
  file: chat_history.log
  # Rotate to <file>.old past this size
  max_size_kb: 1024

# Terminal output
ui:
  # auto, always or never
  color: auto
  banner: true
  timestamps: true
  # Optional theme file (see 'oschat config theme export')
  theme: ""

# Diagnostic logs (see 'oschat logs')
logging:
  enabled: true
  # debug, info, warn or error
  level: info
  # Defaults to the logs directory next to this file
  dir: ""
  max_size_mb: 10
  max_backups: 3
  compress: false
`

	if err := os.WriteFile(configFile, []byte(configContent), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize oschat's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. $HOME/.config/oschat/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: OSCHAT_* (e.g., OSCHAT_CHAT_NAME)")
	return nil
}

func runConfigThemeExport(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(console.SampleTheme())
	if err != nil {
		return fmt.Errorf("failed to encode theme: %w", err)
	}

	if len(args) == 0 {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}

	path := args[0]
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("file already exists: %s", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write theme: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Theme written to %s\n", path)
	return nil
}

func runConfigThemeValidate(cmd *cobra.Command, args []string) error {
	theme, err := console.LoadThemeFile(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Theme %q is valid\n", theme.Name)
	return nil
}
