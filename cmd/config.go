package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"botweave/internal/config"
	"botweave/internal/paths"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the daemon configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default config file",
	Long: `Write the default configuration with explanatory comments to
<data_dir>/botweave.yaml (or the path given with --config). Fails if
the file already exists.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		path := cfgFile
		if path == "" {
			path = paths.ConfigPath(paths.ResolveDataDir(cfg.DataDir))
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s", path)
		}
		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}
		fmt.Printf("Created %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE: func(_ *cobra.Command, _ []string) error {
		out, err := yaml.Marshal(viper.AllSettings())
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Update one key in the config file",
	Long: `Update a single dotted key in the config file, preserving comments
and the rest of the layout.

Examples:
  botweave config set server.port 9000
  botweave config set scheduler.timezone UTC`,
	Args: cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = paths.ConfigPath(paths.ResolveDataDir(cfg.DataDir))
		}
		if err := config.SetValue(path, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Set %s = %s in %s\n", args[0], args[1], path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
