package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/PolarWolf314/nudge/internal/configs"
	"github.com/PolarWolf314/nudge/internal/ui"
	"github.com/PolarWolf314/nudge/internal/utils"

	"github.com/spf13/cobra"
)

var (
	configInitEmail  string
	configInitName   string
	configInitDriver string
	configInitURI    string
	configInitPeers  string
	configShowJSON   bool

	// ConfigCmd is the top-level config command.
	ConfigCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage nudge configuration",
		Long: `Provides commands for managing your identity and sync settings.

The configuration lives at ~/.config/nudge/config.toml. Sync intervals,
the store connection and the key cache location can be edited there.

Examples:
  # Set up your identity interactively
  nudge config init

  # Connect to a MongoDB store and link two peers
  nudge config init --email alice@example.com --store mongo --uri mongodb://localhost:27017 --peers bob,carol

  # Show the current configuration
  nudge config show`,
	}
)

func init() {
	addCommonFlags(ConfigCmd)

	configInitCmd.Flags().StringVarP(&configInitEmail, "email", "e", "", "your email address")
	configInitCmd.Flags().StringVarP(&configInitName, "name", "n", "", "your display name (optional)")
	configInitCmd.Flags().StringVar(&configInitDriver, "store", "", "document store driver: memory or mongo")
	configInitCmd.Flags().StringVar(&configInitURI, "uri", "", "document store connection uri")
	configInitCmd.Flags().StringVar(&configInitPeers, "peers", "", "comma separated ids of peers to link")
	configShowCmd.Flags().BoolVar(&configShowJSON, "json", false, "output in JSON format")

	ConfigCmd.AddCommand(configInitCmd)
	ConfigCmd.AddCommand(configShowCmd)
}

func resetConfigState() {
	configInitEmail = ""
	configInitName = ""
	configInitDriver = ""
	configInitURI = ""
	configInitPeers = ""
	configShowJSON = false
}

// promptForInput prompts the user for input with an optional default value.
func promptForInput(reader *bufio.Reader, prompt, defaultValue string) (string, error) {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", prompt, defaultValue)
	} else {
		fmt.Printf("%s: ", prompt)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	input = strings.TrimSpace(input)
	if input == "" && defaultValue != "" {
		return defaultValue, nil
	}
	return input, nil
}

// applyConfigFlags copies the init flags onto config, prompting for the
// identity fields when they were not given and stdin is a terminal.
func applyConfigFlags(config *configs.Config, interactive bool) error {
	reader := bufio.NewReader(os.Stdin)

	email := configInitEmail
	if email == "" && interactive {
		var err error
		if email, err = promptForInput(reader, "Email address", config.User.Email); err != nil {
			return err
		}
	}
	if email != "" {
		if !utils.IsValidEmail(email) {
			return fmt.Errorf("invalid email format: %s", email)
		}
		config.User.Email = email
	}

	name := configInitName
	if name == "" && interactive {
		defaultName := config.User.DisplayName
		if defaultName == "" {
			defaultName = utils.DefaultDisplayName()
		}
		var err error
		if name, err = promptForInput(reader, "Display name (optional)", defaultName); err != nil {
			return err
		}
	}
	if name != "" {
		config.User.DisplayName = name
	}

	if configInitDriver != "" {
		config.Store.Driver = configInitDriver
	}
	if configInitURI != "" {
		config.Store.URI = configInitURI
	}
	if configInitPeers != "" {
		config.User.Peers = utils.SplitIDs(configInitPeers)
	}
	return nil
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize your user configuration",
	Long: `Sets up your nudge identity and store connection.

A user id is generated the first time. Values not passed as flags are
prompted for when running in a terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting config init command")

		config, err := configs.EnsureConfig()
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to load config: %v", err)
		}

		interactive := utils.IsTerminal() && configInitEmail == "" && configInitName == ""
		if interactive {
			fmt.Println(ui.Info.Sprint("Welcome to nudge!") + " Let's set up your identity.")
			fmt.Println()
		}
		if err := applyConfigFlags(config, interactive); err != nil {
			fmt.Println(ui.Failed(err.Error()))
			return nil
		}
		if err := config.Validate(); err != nil {
			fmt.Println(ui.Failed(err.Error()))
			return nil
		}

		if err := configs.SaveConfig(config); err != nil {
			return Logger.ErrorfAndReturn("Failed to save config: %v", err)
		}

		fmt.Println(ui.Done("Configuration saved to " + ui.Path.Sprint(configs.UserNudgeSettings.ConfigPath)))
		fmt.Println()
		printUserSummary(config)
		fmt.Println()
		fmt.Println(ui.Next("Run " + ui.Code.Sprint("nudge keys init") + " to create your encryption keys"))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting config show command")

		config, err := configs.LoadConfig()
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to load config: %v", err)
		}

		if configShowJSON {
			output, err := json.MarshalIndent(config, "", "  ")
			if err != nil {
				return Logger.ErrorfAndReturn("Failed to marshal config to JSON: %v", err)
			}
			fmt.Println(string(output))
			return nil
		}

		if config.User.ID == "" {
			fmt.Println(ui.Caution("No user configuration found."))
			fmt.Println()
			fmt.Println(ui.Next("Run " + ui.Code.Sprint("nudge config init") + " to set up your identity"))
			return nil
		}

		fmt.Println(ui.Info.Sprint("Configuration") + " " + ui.Muted.Sprint(configs.UserNudgeSettings.ConfigPath) + ":")
		fmt.Println()
		printUserSummary(config)
		fmt.Println()
		fmt.Printf("  %-16s %s\n", "Key cache:", ui.Path.Sprint(config.Cache.Path))
		fmt.Printf("  %-16s %s\n", "Debounce:", config.Sync.Debounce)
		fmt.Printf("  %-16s %s\n", "Health check:", config.Sync.HealthCheck)
		fmt.Printf("  %-16s %d\n", "Peer cap:", config.Sync.PeerCap)
		fmt.Printf("  %-16s %d\n", "Batch size:", config.Migration.BatchSize)
		fmt.Printf("  %-16s %s\n", "Bridge relock:", config.Bridge.RelockAfter)
		return nil
	},
}

func printUserSummary(config *configs.Config) {
	fmt.Printf("  %-16s %s\n", "User ID:", ui.Highlight.Sprint(config.User.ID))
	if config.User.Email != "" {
		fmt.Printf("  %-16s %s\n", "Email:", ui.Highlight.Sprint(config.User.Email))
	}
	if config.User.DisplayName != "" {
		fmt.Printf("  %-16s %s\n", "Name:", ui.Highlight.Sprint(config.User.DisplayName))
	}
	store := config.Store.Driver
	if config.Store.URI != "" {
		store += " " + ui.Muted.Sprint(config.Store.URI)
	}
	fmt.Printf("  %-16s %s\n", "Store:", store)
	if len(config.User.Peers) > 0 {
		fmt.Printf("  %-16s %s\n", "Peers:", strings.Join(config.User.Peers, ", "))
	}
}
