package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/birdsync/birdsync/pkg/settings"
)

var saveConfig bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults and flags are applied.
Passwords are masked.

With --save, the effective configuration (passwords included) is written
back to the file given by --config, or to the default location.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if saveConfig {
			path, err := saveSettings(cfg)
			if err != nil {
				return err
			}
			fmt.Printf("Configuration saved to %s\n", path)
			return nil
		}

		data, err := yaml.Marshal(masked(cfg))
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&saveConfig, "save", false, "Write the effective configuration to the settings file")
}

func saveSettings(s *settings.Settings) (string, error) {
	if configPath != "" {
		return configPath, s.SaveTo(configPath)
	}
	return settings.DefaultSettingsPath(), s.Save()
}

func masked(s *settings.Settings) *settings.Settings {
	shown := *s
	if shown.Redis.Password != "" {
		shown.Redis.Password = "********"
	}
	if shown.SSH.Password != "" {
		shown.SSH.Password = "********"
	}
	return &shown
}
