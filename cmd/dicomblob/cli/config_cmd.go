package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/meigma/dicomblob/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage dicomblob configuration",
	Long: `View and initialize dicomblob configuration.

Without arguments, displays the current effective configuration after
defaults, the config file, and DICOMBLOB_* environment variables are
applied.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := configFile
		if path == "" {
			var err error
			if path, err = config.File(); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long: `Create a configuration file holding the default settings.

The file is created at ~/.config/dicomblob/config.yaml (or
$XDG_CONFIG_HOME/dicomblob/config.yaml if set), or at --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	configPath := configFile
	if configPath == "" {
		var err error
		if configPath, err = config.File(); err != nil {
			return err
		}
	}

	if _, statErr := os.Stat(configPath); statErr == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return err
	}

	v := viper.New()
	if err := config.SetDefaults(v); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file: %s\n", configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	v, err := config.New(configFile)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}
