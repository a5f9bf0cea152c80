package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/planner/internal/config"
	"github.com/mschirtzinger/planner/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults and PLANNER_* environment
overrides are applied. The travel API key is masked.`,
	Run: func(cmd *cobra.Command, args []string) {
		asTOML, _ := cmd.Flags().GetBool("toml")

		cfg, err := config.Load(configPath)
		if err != nil {
			fatalf("%v", err)
		}
		if asTOML {
			if err := cfg.WriteTOML(os.Stdout); err != nil {
				fatalf("%v", err)
			}
			return
		}

		masked := *cfg
		if masked.Travel.APIKey != "" {
			masked.Travel.APIKey = "********"
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(&masked); err != nil {
			fatalf("%v", err)
		}
		_ = enc.Close()
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		fmt.Println(path)
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fatalf("%v", err)
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, ui.RenderFail("invalid configuration:"))
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("%s configuration is valid\n", ui.RenderPass("✓"))
	},
}

func init() {
	configShowCmd.Flags().Bool("toml", false, "Print as TOML")
	configCmd.AddCommand(configShowCmd, configPathCmd, configCheckCmd)
	rootCmd.AddCommand(configCmd)
}
